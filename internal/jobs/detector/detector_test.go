package detector

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"ipgate/internal/config"
	"ipgate/internal/database"
	"ipgate/internal/domain"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupDetectorTest(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_fk=1", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	if err := db.Exec("PRAGMA busy_timeout = 5000").Error; err != nil {
		t.Fatalf("set busy timeout: %v", err)
	}
	if err := db.AutoMigrate(&domain.RequestEvent{}, &domain.SuspiciousEntry{}); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}

	database.DB = db
	t.Cleanup(func() {
		database.DB = nil
	})

	cfg := config.GetConfig()
	cfg.Detector.VolumeThreshold = 100
	cfg.Detector.SensitivePathThreshold = 10
	cfg.Detector.SensitivePaths = []string{"/admin/", "/login/"}
	restore := config.SetConfigForTests(cfg)
	t.Cleanup(restore)

	return db
}

func seedEvents(t *testing.T, db *gorm.DB, ip, path string, count int, at time.Time) {
	t.Helper()

	events := make([]domain.RequestEvent, 0, count)
	for i := 0; i < count; i++ {
		events = append(events, domain.RequestEvent{
			IP:         ip,
			Timestamp:  at,
			Path:       path,
			Method:     "GET",
			StatusCode: 200,
		})
	}
	if err := db.Create(&events).Error; err != nil {
		t.Fatalf("seed events: %v", err)
	}
}

func loadEntry(t *testing.T, db *gorm.DB, ip string) domain.SuspiciousEntry {
	t.Helper()

	var entry domain.SuspiciousEntry
	if err := db.Where("ip = ?", ip).First(&entry).Error; err != nil {
		t.Fatalf("load suspicious entry for %s: %v", ip, err)
	}
	return entry
}

func TestRunDetection_VolumeRule(t *testing.T) {
	db := setupDetectorTest(t)

	now := time.Now().UTC()
	seedEvents(t, db, "203.0.113.5", "/index", 101, now.Add(-30*time.Minute))
	seedEvents(t, db, "198.51.100.7", "/index", 100, now.Add(-30*time.Minute))

	flagged, err := RunDetection(context.Background(), now)
	if err != nil {
		t.Fatalf("RunDetection: %v", err)
	}
	if flagged != 1 {
		t.Fatalf("flagged = %d, want only the address above the threshold", flagged)
	}

	entry := loadEntry(t, db, "203.0.113.5")
	if entry.Reason != "high request volume: 101 requests in 1 hour" {
		t.Fatalf("reason = %q, want volume reason with the observed count", entry.Reason)
	}
	if entry.RequestCount != 101 || !entry.IsActive {
		t.Fatalf("entry = %+v, want active with count 101", entry)
	}

	var count int64
	if err := db.Model(&domain.SuspiciousEntry{}).Where("ip = ?", "198.51.100.7").Count(&count).Error; err != nil {
		t.Fatalf("count entries: %v", err)
	}
	if count != 0 {
		t.Fatal("exactly-at-threshold traffic must not be flagged")
	}
}

func TestRunDetection_SensitivePathRule(t *testing.T) {
	db := setupDetectorTest(t)

	now := time.Now().UTC()
	seedEvents(t, db, "198.51.100.9", "/admin/", 6, now.Add(-40*time.Minute))
	seedEvents(t, db, "198.51.100.9", "/login/", 5, now.Add(-20*time.Minute))
	seedEvents(t, db, "192.0.2.44", "/admin/", 10, now.Add(-20*time.Minute))

	flagged, err := RunDetection(context.Background(), now)
	if err != nil {
		t.Fatalf("RunDetection: %v", err)
	}
	if flagged != 1 {
		t.Fatalf("flagged = %d, want 1", flagged)
	}

	entry := loadEntry(t, db, "198.51.100.9")
	if !strings.HasPrefix(entry.Reason, "excessive access to sensitive paths: ") {
		t.Fatalf("reason = %q, want sensitive path reason", entry.Reason)
	}
	if !strings.Contains(entry.Reason, "/admin/") || !strings.Contains(entry.Reason, "/login/") {
		t.Fatalf("reason = %q, want both touched paths listed", entry.Reason)
	}
	if entry.RequestCount != 11 {
		t.Fatalf("request count = %d, want 11", entry.RequestCount)
	}
}

func TestRunDetection_Idempotent(t *testing.T) {
	db := setupDetectorTest(t)

	now := time.Now().UTC()
	seedEvents(t, db, "203.0.113.5", "/index", 150, now.Add(-30*time.Minute))

	if _, err := RunDetection(context.Background(), now); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if _, err := RunDetection(context.Background(), now); err != nil {
		t.Fatalf("second run: %v", err)
	}

	var count int64
	if err := db.Model(&domain.SuspiciousEntry{}).Count(&count).Error; err != nil {
		t.Fatalf("count entries: %v", err)
	}
	if count != 1 {
		t.Fatalf("entries = %d, want one row per address across repeated runs", count)
	}
}

func TestRunDetection_SensitiveRuleOverwritesVolumeReason(t *testing.T) {
	db := setupDetectorTest(t)

	// One address trips both rules in the same window. The sensitive-path
	// upsert runs second and its reason wins.
	now := time.Now().UTC()
	seedEvents(t, db, "203.0.113.5", "/index", 95, now.Add(-30*time.Minute))
	seedEvents(t, db, "203.0.113.5", "/admin/", 11, now.Add(-20*time.Minute))

	flagged, err := RunDetection(context.Background(), now)
	if err != nil {
		t.Fatalf("RunDetection: %v", err)
	}
	if flagged != 2 {
		t.Fatalf("flagged = %d, want both rules counted", flagged)
	}

	entry := loadEntry(t, db, "203.0.113.5")
	if !strings.HasPrefix(entry.Reason, "excessive access to sensitive paths: ") {
		t.Fatalf("reason = %q, want the sensitive path reason to win", entry.Reason)
	}
	if entry.RequestCount != 11 {
		t.Fatalf("request count = %d, want the sensitive path count", entry.RequestCount)
	}

	var count int64
	if err := db.Model(&domain.SuspiciousEntry{}).Count(&count).Error; err != nil {
		t.Fatalf("count entries: %v", err)
	}
	if count != 1 {
		t.Fatalf("entries = %d, want a single row for the address", count)
	}
}

func TestRunDetection_QuietWindowFlagsNothing(t *testing.T) {
	db := setupDetectorTest(t)

	now := time.Now().UTC()
	seedEvents(t, db, "203.0.113.5", "/index", 150, now.Add(-2*time.Hour))

	flagged, err := RunDetection(context.Background(), now)
	if err != nil {
		t.Fatalf("RunDetection: %v", err)
	}
	if flagged != 0 {
		t.Fatalf("flagged = %d, want 0 for traffic outside the window", flagged)
	}

	var count int64
	if err := db.Model(&domain.SuspiciousEntry{}).Count(&count).Error; err != nil {
		t.Fatalf("count entries: %v", err)
	}
	if count != 0 {
		t.Fatalf("entries = %d, want none", count)
	}
}
