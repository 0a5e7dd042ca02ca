package database

import (
	"context"
	"errors"
	"time"

	"ipgate/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UpsertSuspiciousEntry inserts or replaces the single row for entry.IP.
// Reason, count, timestamp and active flag are overwritten on conflict, so
// repeated detector runs over an unchanged window converge to one row with
// stable field values. Concurrent upserts are last-writer-wins by design.
func UpsertSuspiciousEntry(ctx context.Context, entry domain.SuspiciousEntry) error {
	if DB == nil {
		return errors.New("database not initialised")
	}
	if entry.IP == "" {
		return errors.New("suspicious entry requires an ip")
	}

	if entry.DetectedAt.IsZero() {
		entry.DetectedAt = time.Now().UTC()
	}

	db := DB
	if ctx != nil {
		db = db.WithContext(ctx)
	}

	return db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "ip"}},
		DoUpdates: clause.Assignments(map[string]any{
			"reason":        gorm.Expr("EXCLUDED.reason"),
			"detected_at":   gorm.Expr("EXCLUDED.detected_at"),
			"is_active":     gorm.Expr("EXCLUDED.is_active"),
			"request_count": gorm.Expr("EXCLUDED.request_count"),
		}),
	}).Create(&entry).Error
}

func ListSuspiciousEntries(ctx context.Context, activeOnly bool) ([]domain.SuspiciousEntry, error) {
	if DB == nil {
		return nil, errors.New("database not initialised")
	}

	db := DB
	if ctx != nil {
		db = db.WithContext(ctx)
	}

	query := db.Model(&domain.SuspiciousEntry{})
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}

	var entries []domain.SuspiciousEntry
	if err := query.Order("detected_at DESC").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func CountActiveSuspicious(ctx context.Context) (int64, error) {
	if DB == nil {
		return 0, errors.New("database not initialised")
	}

	db := DB
	if ctx != nil {
		db = db.WithContext(ctx)
	}

	var count int64
	err := db.Model(&domain.SuspiciousEntry{}).
		Where("is_active = ?", true).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func CountSuspiciousSince(ctx context.Context, since time.Time) (int64, error) {
	if DB == nil {
		return 0, errors.New("database not initialised")
	}

	db := DB
	if ctx != nil {
		db = db.WithContext(ctx)
	}

	var count int64
	err := db.Model(&domain.SuspiciousEntry{}).
		Where("detected_at >= ?", since).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}
