package detector

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ipgate/internal/config"
	"ipgate/internal/database"
	"ipgate/internal/domain"
	"ipgate/internal/support"

	"github.com/charmbracelet/log"
)

const (
	detectionWindow  = time.Hour
	detectionLockKey = "ipgate:leader:anomaly_detection"
	runTimeout       = 2 * time.Minute
)

// StartDetectionRoutine runs the anomaly detector on its configured interval
// under a redis leadership lock, so one replica scans per deployment. A
// failed run is logged and the next tick proceeds normally.
func StartDetectionRoutine(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	err := support.RunWithLeader(ctx, detectionLockKey, support.DefaultLeadershipTTL, func(leaderCtx context.Context) {
		runDetectionLoop(leaderCtx)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Anomaly detection routine stopped", "error", err)
	}
}

func runDetectionLoop(ctx context.Context) {
	interval := config.GetConfig().DetectionInterval()
	if interval <= 0 {
		interval = detectionWindow
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce(ctx)
		}
	}
}

func runOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	flagged, err := RunDetection(runCtx, time.Now().UTC())
	if err != nil {
		log.Error("Anomaly detection run failed", "error", err)
		return
	}
	log.Info("Anomaly detection run completed", "flagged", flagged)
}

// RunDetection scans the trailing one-hour window ending at now and upserts a
// suspicious entry per offending address. Running it twice over an unchanged
// window is idempotent: entries are keyed by IP and replaced, never appended.
//
// When both rules flag the same address in one run, the sensitive-path upsert
// lands second and overwrites the volume reason. That matches the original
// behaviour; merging the reasons would arguably be better but is deliberately
// not done here.
func RunDetection(ctx context.Context, now time.Time) (int, error) {
	cfg := config.GetConfig()
	since := now.Add(-detectionWindow)

	flagged := 0
	var errs []error

	volumeOffenders, err := database.VolumeOffenders(ctx, since, cfg.Detector.VolumeThreshold)
	if err != nil {
		errs = append(errs, fmt.Errorf("detector: volume rule query: %w", err))
	}
	for _, offender := range volumeOffenders {
		entry := domain.SuspiciousEntry{
			IP:           offender.IP,
			Reason:       fmt.Sprintf("high request volume: %d requests in 1 hour", offender.Count),
			DetectedAt:   now,
			IsActive:     true,
			RequestCount: offender.Count,
		}
		if err := database.UpsertSuspiciousEntry(ctx, entry); err != nil {
			errs = append(errs, fmt.Errorf("detector: volume rule upsert %s: %w", offender.IP, err))
			continue
		}
		flagged++
	}

	pathOffenders, err := database.SensitivePathOffenders(ctx, since, cfg.Detector.SensitivePaths, cfg.Detector.SensitivePathThreshold)
	if err != nil {
		errs = append(errs, fmt.Errorf("detector: sensitive path rule query: %w", err))
	}
	for _, offender := range pathOffenders {
		touched, err := database.DistinctSensitivePaths(ctx, offender.IP, since, cfg.Detector.SensitivePaths)
		if err != nil {
			errs = append(errs, fmt.Errorf("detector: sensitive paths for %s: %w", offender.IP, err))
			continue
		}

		entry := domain.SuspiciousEntry{
			IP:           offender.IP,
			Reason:       fmt.Sprintf("excessive access to sensitive paths: %s", strings.Join(touched, ", ")),
			DetectedAt:   now,
			IsActive:     true,
			RequestCount: offender.Count,
		}
		if err := database.UpsertSuspiciousEntry(ctx, entry); err != nil {
			errs = append(errs, fmt.Errorf("detector: sensitive path rule upsert %s: %w", offender.IP, err))
			continue
		}
		flagged++
	}

	return flagged, errors.Join(errs...)
}
