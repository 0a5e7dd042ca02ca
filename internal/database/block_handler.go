package database

import (
	"context"
	"errors"

	"ipgate/internal/domain"

	"gorm.io/gorm"
)

// IsIPBlocked reports whether an active block entry exists for the address.
// This is the only blocklist operation on the request path; the gate calls it
// through the blocklist cache, never directly per request.
func IsIPBlocked(ctx context.Context, ip string) (bool, error) {
	if DB == nil {
		return false, errors.New("database not initialised")
	}

	db := DB
	if ctx != nil {
		db = db.WithContext(ctx)
	}

	var count int64
	err := db.Model(&domain.BlockEntry{}).
		Where("ip = ? AND is_active = ?", ip, true).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// CreateBlockEntry inserts a block for the address, or reactivates an
// existing one. Returns the stored entry and whether it was newly created.
func CreateBlockEntry(ctx context.Context, ip, reason string) (domain.BlockEntry, bool, error) {
	if DB == nil {
		return domain.BlockEntry{}, false, errors.New("database not initialised")
	}

	db := DB
	if ctx != nil {
		db = db.WithContext(ctx)
	}

	var entry domain.BlockEntry
	err := db.Where("ip = ?", ip).First(&entry).Error
	switch {
	case err == nil:
		entry.Reason = reason
		entry.IsActive = true
		if err := db.Model(&domain.BlockEntry{}).
			Where("ip = ?", ip).
			Updates(map[string]any{"reason": reason, "is_active": true}).Error; err != nil {
			return domain.BlockEntry{}, false, err
		}
		return entry, false, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		entry = domain.BlockEntry{IP: ip, Reason: reason, IsActive: true}
		if err := db.Create(&entry).Error; err != nil {
			return domain.BlockEntry{}, false, err
		}
		return entry, true, nil
	default:
		return domain.BlockEntry{}, false, err
	}
}

// DeactivateBlockEntry soft-deletes a block. The gate keeps rejecting the
// address until its cache entry expires.
func DeactivateBlockEntry(ctx context.Context, ip string) (bool, error) {
	if DB == nil {
		return false, errors.New("database not initialised")
	}

	db := DB
	if ctx != nil {
		db = db.WithContext(ctx)
	}

	result := db.Model(&domain.BlockEntry{}).
		Where("ip = ? AND is_active = ?", ip, true).
		Update("is_active", false)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func ListBlockEntries(ctx context.Context, activeOnly bool) ([]domain.BlockEntry, error) {
	if DB == nil {
		return nil, errors.New("database not initialised")
	}

	db := DB
	if ctx != nil {
		db = db.WithContext(ctx)
	}

	query := db.Model(&domain.BlockEntry{})
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}

	var entries []domain.BlockEntry
	if err := query.Order("created_at DESC").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func CountActiveBlocks(ctx context.Context) (int64, error) {
	if DB == nil {
		return 0, errors.New("database not initialised")
	}

	db := DB
	if ctx != nil {
		db = db.WithContext(ctx)
	}

	var count int64
	err := db.Model(&domain.BlockEntry{}).
		Where("is_active = ?", true).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// ListBlockedIPs returns just the addresses of active blocks.
func ListBlockedIPs(ctx context.Context) ([]string, error) {
	if DB == nil {
		return nil, errors.New("database not initialised")
	}

	db := DB
	if ctx != nil {
		db = db.WithContext(ctx)
	}

	var ips []string
	err := db.Model(&domain.BlockEntry{}).
		Where("is_active = ?", true).
		Pluck("ip", &ips).Error
	if err != nil {
		return nil, err
	}
	return ips, nil
}
