package app

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"

	"ipgate/internal/app/server"
	"ipgate/internal/config"
	"ipgate/internal/database"
	"ipgate/internal/gate"
	"ipgate/internal/geo"
	"ipgate/internal/jobs/detector"
	"ipgate/internal/jobs/maintenance"
	jobruntime "ipgate/internal/jobs/runtime"
	"ipgate/internal/notify"
	"ipgate/internal/support"
)

const defaultPort = 8080

func Run() error {
	if err := godotenv.Load(); err != nil {
		log.Warn("No .env file found. Falling back to system environment variables.")
	}

	log.SetLevel(log.DebugLevel)

	portFlag := flag.Int("port", defaultPort, "Port for the API server")
	productionFlag := flag.Bool("production", false, "Run in production mode")
	flag.Parse()

	config.SetProductionMode(*productionFlag)
	config.ReadSettings()
	cfg := config.GetConfig()

	port := resolvePort("PORT", *portFlag)

	if _, err := database.SetupDB(); err != nil {
		return fmt.Errorf("failed to set up database: %w", err)
	}

	redisClient, err := support.GetRedisClient()
	if err != nil {
		return fmt.Errorf("failed to get redis client: %w", err)
	}
	defer func() {
		if err := support.CloseRedisClient(); err != nil {
			log.Warn("error closing redis client", "error", err)
		}
	}()

	var provider geo.Provider
	if maxmind, err := geo.OpenMaxMind(cfg.Geo.DatabasePath); err != nil {
		log.Warn("GeoIP database unavailable, events will not be geolocated", "path", cfg.Geo.DatabasePath, "error", err)
	} else {
		provider = maxmind
		defer maxmind.Close()
	}
	resolver := geo.NewResolver(provider, redisClient, cfg.GeoCacheTTL())

	notifier := notify.NewFromEnv()

	cache := gate.NewBlockCache(database.IsIPBlocked, cfg.CacheTTL())
	requestGate := gate.NewGate(cache,
		gate.WithFailOpen(cfg.Gate.FailOpen),
		gate.WithLookupTimeout(cfg.LookupTimeout()),
		gate.WithEnricher(resolver),
	)
	defer requestGate.Flush()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go cache.StartJanitor(ctx, time.Minute)
	go detector.StartDetectionRoutine(ctx)
	go maintenance.StartRetentionRoutine(ctx)
	go jobruntime.StartSecurityReportRoutine(ctx, notifier)

	return server.OpenRoutes(port, requestGate, resolver, notifier)
}

func resolvePort(envKey string, fallback int) int {
	if port := readPort(envKey); port != 0 {
		return port
	}
	return fallback
}

func readPort(envKey string) int {
	raw := os.Getenv(envKey)
	if raw == "" {
		return 0
	}
	port, err := strconv.Atoi(raw)
	if err != nil || port == 0 {
		log.Warn("invalid port override", "env", envKey, "value", raw)
		return 0
	}
	return port
}
