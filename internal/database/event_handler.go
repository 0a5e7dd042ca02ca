package database

import (
	"context"
	"errors"
	"strings"
	"time"

	"ipgate/internal/api/dto"
	"ipgate/internal/domain"
)

const (
	defaultEventPageSize = 50
	maxEventPageSize     = 500
)

// EventFilter narrows ListRequestEvents. Zero values mean "no filter".
type EventFilter struct {
	IP       string
	Path     string
	Country  string
	Page     int
	PageSize int
}

func InsertRequestEvent(ctx context.Context, event *domain.RequestEvent) error {
	if DB == nil {
		return errors.New("database not initialised")
	}
	if event == nil {
		return errors.New("nil request event")
	}

	db := DB
	if ctx != nil {
		db = db.WithContext(ctx)
	}

	return db.Create(event).Error
}

func ListRequestEvents(ctx context.Context, filter EventFilter) ([]domain.RequestEvent, error) {
	if DB == nil {
		return nil, errors.New("database not initialised")
	}

	db := DB
	if ctx != nil {
		db = db.WithContext(ctx)
	}

	query := db.Model(&domain.RequestEvent{})
	if filter.IP != "" {
		query = query.Where("ip = ?", filter.IP)
	}
	if filter.Path != "" {
		query = query.Where("path LIKE ?", "%"+filter.Path+"%")
	}
	if filter.Country != "" {
		query = query.Where("country LIKE ?", "%"+filter.Country+"%")
	}

	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = defaultEventPageSize
	}
	if pageSize > maxEventPageSize {
		pageSize = maxEventPageSize
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}

	var events []domain.RequestEvent
	err := query.
		Order("timestamp DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

func CountAllEvents(ctx context.Context) (int64, error) {
	return countEvents(ctx, time.Time{})
}

func CountEventsSince(ctx context.Context, since time.Time) (int64, error) {
	return countEvents(ctx, since)
}

func countEvents(ctx context.Context, since time.Time) (int64, error) {
	if DB == nil {
		return 0, errors.New("database not initialised")
	}

	db := DB
	if ctx != nil {
		db = db.WithContext(ctx)
	}

	query := db.Model(&domain.RequestEvent{})
	if !since.IsZero() {
		query = query.Where("timestamp >= ?", since)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// CountEventsFromIPs counts in-window events originating from any of the given
// addresses. Used by the security report to estimate traffic from blocked IPs.
func CountEventsFromIPs(ctx context.Context, since time.Time, ips []string) (int64, error) {
	if DB == nil {
		return 0, errors.New("database not initialised")
	}
	if len(ips) == 0 {
		return 0, nil
	}

	db := DB
	if ctx != nil {
		db = db.WithContext(ctx)
	}

	var count int64
	err := db.Model(&domain.RequestEvent{}).
		Where("timestamp >= ?", since).
		Where("ip IN ?", ips).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// VolumeOffenders returns per-IP totals for the window starting at since,
// keeping only addresses with strictly more than threshold requests.
func VolumeOffenders(ctx context.Context, since time.Time, threshold int64) ([]dto.IPCount, error) {
	if DB == nil {
		return nil, errors.New("database not initialised")
	}

	db := DB
	if ctx != nil {
		db = db.WithContext(ctx)
	}

	var offenders []dto.IPCount
	err := db.Model(&domain.RequestEvent{}).
		Select("ip, COUNT(*) AS count").
		Where("timestamp >= ?", since).
		Group("ip").
		Having("COUNT(*) > ?", threshold).
		Scan(&offenders).Error
	if err != nil {
		return nil, err
	}
	return offenders, nil
}

// SensitivePathOffenders is VolumeOffenders restricted to the configured
// sensitive paths (exact match, as the admin endpoints register them).
func SensitivePathOffenders(ctx context.Context, since time.Time, paths []string, threshold int64) ([]dto.IPCount, error) {
	if DB == nil {
		return nil, errors.New("database not initialised")
	}
	if len(paths) == 0 {
		return nil, nil
	}

	db := DB
	if ctx != nil {
		db = db.WithContext(ctx)
	}

	var offenders []dto.IPCount
	err := db.Model(&domain.RequestEvent{}).
		Select("ip, COUNT(*) AS count").
		Where("timestamp >= ?", since).
		Where("path IN ?", paths).
		Group("ip").
		Having("COUNT(*) > ?", threshold).
		Scan(&offenders).Error
	if err != nil {
		return nil, err
	}
	return offenders, nil
}

// DistinctSensitivePaths lists which of the sensitive paths an address touched
// in the window, for the detector's reason string.
func DistinctSensitivePaths(ctx context.Context, ip string, since time.Time, paths []string) ([]string, error) {
	if DB == nil {
		return nil, errors.New("database not initialised")
	}
	if len(paths) == 0 {
		return nil, nil
	}

	db := DB
	if ctx != nil {
		db = db.WithContext(ctx)
	}

	var touched []string
	err := db.Model(&domain.RequestEvent{}).
		Distinct("path").
		Where("ip = ?", ip).
		Where("timestamp >= ?", since).
		Where("path IN ?", paths).
		Order("path ASC").
		Pluck("path", &touched).Error
	if err != nil {
		return nil, err
	}
	return touched, nil
}

// DeleteEventsBefore removes all events strictly older than cutoff and
// returns how many rows were deleted.
func DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if DB == nil {
		return 0, errors.New("database not initialised")
	}

	db := DB
	if ctx != nil {
		db = db.WithContext(ctx)
	}

	result := db.Where("timestamp < ?", cutoff).Delete(&domain.RequestEvent{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func UniqueIPCount(ctx context.Context, since time.Time) (int64, error) {
	if DB == nil {
		return 0, errors.New("database not initialised")
	}

	db := DB
	if ctx != nil {
		db = db.WithContext(ctx)
	}

	query := db.Model(&domain.RequestEvent{}).Distinct("ip")
	if !since.IsZero() {
		query = query.Where("timestamp >= ?", since)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func UniqueCountryCount(ctx context.Context) (int64, error) {
	if DB == nil {
		return 0, errors.New("database not initialised")
	}

	db := DB
	if ctx != nil {
		db = db.WithContext(ctx)
	}

	var count int64
	err := db.Model(&domain.RequestEvent{}).
		Distinct("country").
		Where("country <> ''").
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func TopPaths(ctx context.Context, since time.Time, limit int) ([]dto.PathCount, error) {
	if DB == nil {
		return nil, errors.New("database not initialised")
	}

	db := DB
	if ctx != nil {
		db = db.WithContext(ctx)
	}

	var paths []dto.PathCount
	err := db.Model(&domain.RequestEvent{}).
		Select("path, COUNT(*) AS count").
		Where("timestamp >= ?", since).
		Group("path").
		Order("count DESC").
		Limit(limit).
		Scan(&paths).Error
	if err != nil {
		return nil, err
	}
	return paths, nil
}

func TopCountries(ctx context.Context, since time.Time, limit int) ([]dto.CountryCount, error) {
	if DB == nil {
		return nil, errors.New("database not initialised")
	}

	db := DB
	if ctx != nil {
		db = db.WithContext(ctx)
	}

	var countries []dto.CountryCount
	err := db.Model(&domain.RequestEvent{}).
		Select("country, COUNT(*) AS count").
		Where("timestamp >= ?", since).
		Where("country <> ''").
		Group("country").
		Order("count DESC").
		Limit(limit).
		Scan(&countries).Error
	if err != nil {
		return nil, err
	}
	return countries, nil
}

func TopIPs(ctx context.Context, since time.Time, limit int) ([]dto.IPCount, error) {
	if DB == nil {
		return nil, errors.New("database not initialised")
	}

	db := DB
	if ctx != nil {
		db = db.WithContext(ctx)
	}

	var ips []dto.IPCount
	err := db.Model(&domain.RequestEvent{}).
		Select("ip, MAX(country) AS country, COUNT(*) AS count").
		Where("timestamp >= ?", since).
		Group("ip").
		Order("count DESC").
		Limit(limit).
		Scan(&ips).Error
	if err != nil {
		return nil, err
	}
	return ips, nil
}

// RequestsByDay buckets events per calendar day. CAST(date(...) AS TEXT)
// keeps the projection portable between postgres and the sqlite test driver.
func RequestsByDay(ctx context.Context, since time.Time) ([]dto.DayCount, error) {
	if DB == nil {
		return nil, errors.New("database not initialised")
	}

	db := DB
	if ctx != nil {
		db = db.WithContext(ctx)
	}

	var days []dto.DayCount
	err := db.Model(&domain.RequestEvent{}).
		Select("CAST(date(timestamp) AS TEXT) AS date, COUNT(*) AS count").
		Where("timestamp >= ?", since).
		Group("date(timestamp)").
		Order("date ASC").
		Scan(&days).Error
	if err != nil {
		return nil, err
	}

	for i := range days {
		// Postgres may append a midnight time component when casting.
		if idx := strings.IndexByte(days[i].Date, ' '); idx > 0 {
			days[i].Date = days[i].Date[:idx]
		}
	}
	return days, nil
}
