package maintenance

import (
	"context"
	"fmt"
	"testing"
	"time"

	"ipgate/internal/config"
	"ipgate/internal/database"
	"ipgate/internal/domain"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupSweepTest(t *testing.T, retentionDays int) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_fk=1", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	if err := db.AutoMigrate(&domain.RequestEvent{}); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}

	database.DB = db
	t.Cleanup(func() {
		database.DB = nil
	})

	cfg := config.GetConfig()
	cfg.Retention.RetentionDays = retentionDays
	restore := config.SetConfigForTests(cfg)
	t.Cleanup(restore)

	return db
}

func seedEventAt(t *testing.T, db *gorm.DB, at time.Time) {
	t.Helper()

	event := domain.RequestEvent{
		IP:         "203.0.113.5",
		Timestamp:  at,
		Path:       "/home",
		Method:     "GET",
		StatusCode: 200,
	}
	if err := db.Create(&event).Error; err != nil {
		t.Fatalf("seed event: %v", err)
	}
}

func TestRunRetentionSweep(t *testing.T) {
	db := setupSweepTest(t, 30)

	now := time.Now().UTC()
	seedEventAt(t, db, now.AddDate(0, 0, -31))
	seedEventAt(t, db, now.AddDate(0, 0, -31))
	seedEventAt(t, db, now.AddDate(0, 0, -29))

	deleted, err := RunRetentionSweep(context.Background(), now)
	if err != nil {
		t.Fatalf("RunRetentionSweep: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("deleted = %d, want 2", deleted)
	}

	var remaining int64
	if err := db.Model(&domain.RequestEvent{}).Count(&remaining).Error; err != nil {
		t.Fatalf("count remaining: %v", err)
	}
	if remaining != 1 {
		t.Fatalf("remaining = %d, want the event inside the horizon kept", remaining)
	}
}

func TestRunRetentionSweep_EmptyWindow(t *testing.T) {
	db := setupSweepTest(t, 30)

	now := time.Now().UTC()
	seedEventAt(t, db, now.Add(-time.Hour))

	deleted, err := RunRetentionSweep(context.Background(), now)
	if err != nil {
		t.Fatalf("RunRetentionSweep: %v", err)
	}
	if deleted != 0 {
		t.Fatalf("deleted = %d, want 0", deleted)
	}

	var remaining int64
	if err := db.Model(&domain.RequestEvent{}).Count(&remaining).Error; err != nil {
		t.Fatalf("count remaining: %v", err)
	}
	if remaining != 1 {
		t.Fatalf("remaining = %d, want 1", remaining)
	}
}

func TestRunRetentionSweep_DefaultsHorizonWhenUnset(t *testing.T) {
	db := setupSweepTest(t, 0)

	now := time.Now().UTC()
	seedEventAt(t, db, now.AddDate(0, 0, -31))
	seedEventAt(t, db, now.AddDate(0, 0, -10))

	deleted, err := RunRetentionSweep(context.Background(), now)
	if err != nil {
		t.Fatalf("RunRetentionSweep: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("deleted = %d, want the thirty day fallback applied", deleted)
	}
}
