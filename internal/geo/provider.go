package geo

import (
	"errors"
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"
)

// Location is the result of a geolocation lookup.
type Location struct {
	Country   string  `json:"country"`
	City      string  `json:"city,omitempty"`
	Region    string  `json:"region,omitempty"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
	Timezone  string  `json:"timezone,omitempty"`
}

// ErrUnavailable is the explicit "no location known" result. Callers treat it
// as a normal outcome, not a failure.
var ErrUnavailable = errors.New("geo: location unavailable")

// Provider answers geolocation lookups for single addresses.
type Provider interface {
	Lookup(ip string) (Location, error)
}

// MaxMindProvider reads a GeoLite2/GeoIP2 City database from disk.
type MaxMindProvider struct {
	reader *geoip2.Reader
}

func OpenMaxMind(path string) (*MaxMindProvider, error) {
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("geo: open maxmind database: %w", err)
	}
	return &MaxMindProvider{reader: reader}, nil
}

func (p *MaxMindProvider) Lookup(ip string) (Location, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return Location{}, ErrUnavailable
	}

	record, err := p.reader.City(parsed)
	if err != nil {
		return Location{}, ErrUnavailable
	}

	country := record.Country.Names["en"]
	if country == "" {
		// Private and unrouted addresses come back empty from the database.
		return Location{}, ErrUnavailable
	}

	location := Location{
		Country:   country,
		City:      record.City.Names["en"],
		Latitude:  record.Location.Latitude,
		Longitude: record.Location.Longitude,
		Timezone:  record.Location.TimeZone,
	}
	if len(record.Subdivisions) > 0 {
		location.Region = record.Subdivisions[0].Names["en"]
	}
	return location, nil
}

func (p *MaxMindProvider) Close() error {
	return p.reader.Close()
}
