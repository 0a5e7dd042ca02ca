package maintenance

import (
	"context"
	"errors"
	"time"

	"ipgate/internal/config"
	"ipgate/internal/database"
	"ipgate/internal/support"

	"github.com/charmbracelet/log"
)

const (
	retentionLockKey = "ipgate:leader:retention_sweep"
	sweepTimeout     = 10 * time.Minute
)

// StartRetentionRoutine deletes expired request events on the configured
// interval (daily by default), under a redis leadership lock. The sweep needs
// no coordination with the gate or the detector: it only ever touches rows
// older than the retention horizon, far outside any detection window.
func StartRetentionRoutine(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	err := support.RunWithLeader(ctx, retentionLockKey, support.DefaultLeadershipTTL, func(leaderCtx context.Context) {
		runRetentionLoop(leaderCtx)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Retention sweep routine stopped", "error", err)
	}
}

func runRetentionLoop(ctx context.Context) {
	interval := config.GetConfig().SweepInterval()
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sweepOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweepOnce(ctx)
		}
	}
}

func sweepOnce(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()

	deleted, err := RunRetentionSweep(sweepCtx, time.Now().UTC())
	if err != nil {
		log.Error("Retention sweep failed", "error", err)
		return
	}
	log.Info("Retention sweep completed", "deleted", deleted)
}

// RunRetentionSweep removes request events older than the retention horizon
// ending at now and returns how many rows were deleted.
func RunRetentionSweep(ctx context.Context, now time.Time) (int64, error) {
	retentionDays := config.GetConfig().Retention.RetentionDays
	if retentionDays <= 0 {
		retentionDays = 30
	}

	cutoff := now.AddDate(0, 0, -retentionDays)
	return database.DeleteEventsBefore(ctx, cutoff)
}
