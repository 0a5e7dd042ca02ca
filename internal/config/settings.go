package config

import (
	_ "embed"
	"encoding/json"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"ipgate/internal/support"
)

type Config struct {
	Gate struct {
		// CacheTTLSeconds bounds how stale a gate decision may be relative to
		// the blocklist table.
		CacheTTLSeconds     int  `json:"cache_ttl_seconds"`
		LookupTimeoutMillis int  `json:"lookup_timeout_millis"`
		FailOpen            bool `json:"fail_open"`
	} `json:"gate"`

	Detector struct {
		VolumeThreshold          int64    `json:"volume_threshold"`
		SensitivePathThreshold   int64    `json:"sensitive_path_threshold"`
		SensitivePaths           []string `json:"sensitive_paths"`
		DetectionIntervalSeconds int      `json:"detection_interval_seconds"`
	} `json:"detector"`

	Retention struct {
		RetentionDays        int `json:"retention_days"`
		SweepIntervalSeconds int `json:"sweep_interval_seconds"`
	} `json:"retention"`

	Geo struct {
		DatabasePath    string `json:"database_path"`
		CacheTTLSeconds int    `json:"cache_ttl_seconds"`
	} `json:"geo"`

	Report struct {
		Enabled         bool   `json:"enabled"`
		Recipient       string `json:"recipient"`
		IntervalSeconds int    `json:"interval_seconds"`
	} `json:"report"`
}

func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.Gate.CacheTTLSeconds) * time.Second
}

func (c Config) LookupTimeout() time.Duration {
	return time.Duration(c.Gate.LookupTimeoutMillis) * time.Millisecond
}

func (c Config) DetectionInterval() time.Duration {
	return time.Duration(c.Detector.DetectionIntervalSeconds) * time.Second
}

func (c Config) SweepInterval() time.Duration {
	return time.Duration(c.Retention.SweepIntervalSeconds) * time.Second
}

func (c Config) GeoCacheTTL() time.Duration {
	return time.Duration(c.Geo.CacheTTLSeconds) * time.Second
}

func (c Config) ReportInterval() time.Duration {
	return time.Duration(c.Report.IntervalSeconds) * time.Second
}

const settingsFilePath = "data/settings.json"

var (
	//go:embed default_settings.json
	defaultConfig []byte

	configValue atomic.Value
	configMu    sync.Mutex

	InProductionMode bool
)

func init() {
	configValue.Store(defaultConfigValue())
}

func defaultConfigValue() Config {
	var cfg Config
	if err := json.Unmarshal(defaultConfig, &cfg); err != nil {
		log.Error("Error parsing embedded default settings", "error", err)
	}
	return cfg
}

// ReadSettings loads data/settings.json, creating it from the embedded
// defaults when missing, then layers environment overrides on top.
func ReadSettings() {
	data, err := os.ReadFile(settingsFilePath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn("Settings file not found, creating with default configuration")

			if err := os.MkdirAll("data", os.ModePerm); err != nil {
				log.Error("Error creating directory for settings file", "error", err)
				return
			}
			if err := os.WriteFile(settingsFilePath, defaultConfig, os.ModePerm); err != nil {
				log.Error("Error writing default settings file", "error", err)
				return
			}

			data = defaultConfig
		} else {
			log.Error("Error reading settings file", "error", err)
			return
		}
	}

	newConfig := defaultConfigValue()
	if err := json.Unmarshal(data, &newConfig); err != nil {
		log.Error("Error unmarshalling settings file", "error", err)
		return
	}

	applyEnvOverrides(&newConfig)

	configMu.Lock()
	configValue.Store(newConfig)
	configMu.Unlock()

	log.Debug("Settings file loaded successfully")
}

// SetConfig applies a new configuration and persists it to the settings file.
func SetConfig(newConfig Config) {
	configMu.Lock()
	defer configMu.Unlock()

	configValue.Store(newConfig)

	data, err := json.MarshalIndent(newConfig, "", "  ")
	if err != nil {
		log.Error("Error marshalling new configuration", "error", err)
		return
	}
	if err := os.WriteFile(settingsFilePath, data, os.ModePerm); err != nil {
		log.Error("Error writing new configuration to file", "error", err)
		return
	}

	log.Debug("Configuration updated and written to file successfully")
}

func GetConfig() Config {
	return configValue.Load().(Config)
}

func SetProductionMode(enabled bool) {
	InProductionMode = enabled
}

// SetConfigForTests stores cfg without touching the settings file and returns
// a restore func.
func SetConfigForTests(cfg Config) func() {
	configMu.Lock()
	previous := configValue.Load().(Config)
	configValue.Store(cfg)
	configMu.Unlock()

	return func() {
		configMu.Lock()
		configValue.Store(previous)
		configMu.Unlock()
	}
}

func applyEnvOverrides(cfg *Config) {
	cfg.Gate.CacheTTLSeconds = support.GetEnvInt("CACHE_TTL_SECONDS", cfg.Gate.CacheTTLSeconds)
	cfg.Gate.LookupTimeoutMillis = support.GetEnvInt("GATE_LOOKUP_TIMEOUT_MILLIS", cfg.Gate.LookupTimeoutMillis)
	cfg.Gate.FailOpen = support.GetEnvBool("GATE_FAIL_OPEN", cfg.Gate.FailOpen)

	cfg.Detector.VolumeThreshold = int64(support.GetEnvInt("VOLUME_THRESHOLD", int(cfg.Detector.VolumeThreshold)))
	cfg.Detector.SensitivePathThreshold = int64(support.GetEnvInt("SENSITIVE_PATH_THRESHOLD", int(cfg.Detector.SensitivePathThreshold)))
	cfg.Detector.DetectionIntervalSeconds = support.GetEnvInt("DETECTION_INTERVAL_SECONDS", cfg.Detector.DetectionIntervalSeconds)

	if raw := support.GetEnv("SENSITIVE_PATHS", ""); raw != "" {
		var paths []string
		for _, p := range strings.Split(raw, ",") {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				paths = append(paths, trimmed)
			}
		}
		if len(paths) > 0 {
			cfg.Detector.SensitivePaths = paths
		}
	}

	cfg.Retention.RetentionDays = support.GetEnvInt("RETENTION_DAYS", cfg.Retention.RetentionDays)
	cfg.Retention.SweepIntervalSeconds = support.GetEnvInt("SWEEP_INTERVAL_SECONDS", cfg.Retention.SweepIntervalSeconds)

	cfg.Geo.DatabasePath = support.GetEnv("GEOIP_DB_PATH", cfg.Geo.DatabasePath)
	cfg.Geo.CacheTTLSeconds = support.GetEnvInt("GEO_CACHE_TTL_SECONDS", cfg.Geo.CacheTTLSeconds)

	cfg.Report.Recipient = support.GetEnv("REPORT_RECIPIENT", cfg.Report.Recipient)
}
