package database

import (
	"context"
	"errors"

	"ipgate/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UpsertGeolocation stores or refreshes the persisted location for an address.
func UpsertGeolocation(ctx context.Context, record domain.IPGeolocation) error {
	if DB == nil {
		return errors.New("database not initialised")
	}
	if record.IP == "" {
		return errors.New("geolocation record requires an ip")
	}

	db := DB
	if ctx != nil {
		db = db.WithContext(ctx)
	}

	return db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "ip"}},
		DoUpdates: clause.Assignments(map[string]any{
			"country":   gorm.Expr("EXCLUDED.country"),
			"city":      gorm.Expr("EXCLUDED.city"),
			"region":    gorm.Expr("EXCLUDED.region"),
			"latitude":  gorm.Expr("EXCLUDED.latitude"),
			"longitude": gorm.Expr("EXCLUDED.longitude"),
			"timezone":  gorm.Expr("EXCLUDED.timezone"),
		}),
	}).Create(&record).Error
}

func GetGeolocation(ctx context.Context, ip string) (domain.IPGeolocation, error) {
	if DB == nil {
		return domain.IPGeolocation{}, errors.New("database not initialised")
	}

	db := DB
	if ctx != nil {
		db = db.WithContext(ctx)
	}

	var record domain.IPGeolocation
	if err := db.Where("ip = ?", ip).First(&record).Error; err != nil {
		return domain.IPGeolocation{}, err
	}
	return record, nil
}

func ListGeolocations(ctx context.Context) ([]domain.IPGeolocation, error) {
	if DB == nil {
		return nil, errors.New("database not initialised")
	}

	db := DB
	if ctx != nil {
		db = db.WithContext(ctx)
	}

	var records []domain.IPGeolocation
	if err := db.Order("last_updated DESC").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}
