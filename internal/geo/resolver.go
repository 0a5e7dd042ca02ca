package geo

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"ipgate/internal/database"
	"ipgate/internal/domain"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const geoCacheKeyPrefix = "ipgate:geo:"

// Resolver wraps a Provider with a long-TTL redis cache and persists every
// successful lookup. It is only ever consulted off the request-gating path.
type Resolver struct {
	provider Provider
	cache    *redis.Client
	ttl      time.Duration
	group    singleflight.Group
}

// NewResolver builds a Resolver. cache may be nil, in which case every
// resolve goes to the provider (still coalesced per address).
func NewResolver(provider Provider, cache *redis.Client, ttl time.Duration) *Resolver {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Resolver{
		provider: provider,
		cache:    cache,
		ttl:      ttl,
	}
}

// Resolve returns the location for ip, from cache when possible. Successful
// provider lookups are cached and upserted into the geolocation table.
// ErrUnavailable is returned when no provider is configured or the provider
// has no answer.
func (r *Resolver) Resolve(ctx context.Context, ip string) (Location, error) {
	if r.provider == nil {
		return Location{}, ErrUnavailable
	}

	if cached, ok := r.fromCache(ctx, ip); ok {
		return cached, nil
	}

	result, err, _ := r.group.Do(ip, func() (interface{}, error) {
		if cached, ok := r.fromCache(ctx, ip); ok {
			return cached, nil
		}

		location, err := r.provider.Lookup(ip)
		if err != nil {
			return Location{}, err
		}

		r.store(ctx, ip, location)
		return location, nil
	})
	if err != nil {
		return Location{}, err
	}
	return result.(Location), nil
}

// Enrich adapts Resolve for the gate: lookup failures degrade to empty
// fields instead of errors.
func (r *Resolver) Enrich(ctx context.Context, ip string) (string, string) {
	location, err := r.Resolve(ctx, ip)
	if err != nil {
		if !errors.Is(err, ErrUnavailable) {
			log.Debug("Geolocation enrichment failed", "ip", ip, "error", err)
		}
		return "", ""
	}
	return location.Country, location.City
}

func (r *Resolver) fromCache(ctx context.Context, ip string) (Location, bool) {
	if r.cache == nil {
		return Location{}, false
	}

	raw, err := r.cache.Get(ctx, geoCacheKeyPrefix+ip).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Debug("Geolocation cache read failed", "ip", ip, "error", err)
		}
		return Location{}, false
	}

	var location Location
	if err := json.Unmarshal([]byte(raw), &location); err != nil {
		return Location{}, false
	}
	return location, true
}

func (r *Resolver) store(ctx context.Context, ip string, location Location) {
	if r.cache != nil {
		if payload, err := json.Marshal(location); err == nil {
			if err := r.cache.Set(ctx, geoCacheKeyPrefix+ip, payload, r.ttl).Err(); err != nil {
				log.Debug("Geolocation cache write failed", "ip", ip, "error", err)
			}
		}
	}

	err := database.UpsertGeolocation(ctx, domain.IPGeolocation{
		IP:        ip,
		Country:   location.Country,
		City:      location.City,
		Region:    location.Region,
		Latitude:  location.Latitude,
		Longitude: location.Longitude,
		Timezone:  location.Timezone,
	})
	if err != nil {
		log.Warn("Failed to persist geolocation", "ip", ip, "error", err)
	}
}
