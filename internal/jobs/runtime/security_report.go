package runtime

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ipgate/internal/config"
	"ipgate/internal/database"
	"ipgate/internal/notify"
	"ipgate/internal/support"

	"github.com/charmbracelet/log"
)

const (
	reportLockKey = "ipgate:leader:security_report"
	reportTimeout = time.Minute
	reportWindow  = 24 * time.Hour
)

// StartSecurityReportRoutine mails a daily traffic summary through the
// notifier. Delivery failures are logged and never retried; the next
// scheduled report covers the gap.
func StartSecurityReportRoutine(ctx context.Context, notifier notify.Notifier) {
	if ctx == nil {
		ctx = context.Background()
	}

	err := support.RunWithLeader(ctx, reportLockKey, support.DefaultLeadershipTTL, func(leaderCtx context.Context) {
		runReportLoop(leaderCtx, notifier)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Security report routine stopped", "error", err)
	}
}

func runReportLoop(ctx context.Context, notifier notify.Notifier) {
	interval := config.GetConfig().ReportInterval()
	if interval <= 0 {
		interval = reportWindow
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reportCtx, cancel := context.WithTimeout(ctx, reportTimeout)
			if err := SendSecurityReport(reportCtx, notifier, time.Now().UTC()); err != nil {
				log.Error("Security report failed", "error", err)
			}
			cancel()
		}
	}
}

// SendSecurityReport aggregates the trailing 24 hours and delivers the
// summary to the configured recipient.
func SendSecurityReport(ctx context.Context, notifier notify.Notifier, now time.Time) error {
	cfg := config.GetConfig()
	if !cfg.Report.Enabled {
		return nil
	}
	if cfg.Report.Recipient == "" {
		log.Debug("Security report skipped, no recipient configured")
		return nil
	}
	if notifier == nil {
		return errors.New("report: nil notifier")
	}

	since := now.Add(-reportWindow)

	totalRequests, err := database.CountEventsSince(ctx, since)
	if err != nil {
		return fmt.Errorf("report: count requests: %w", err)
	}

	blockedIPs, err := database.ListBlockedIPs(ctx)
	if err != nil {
		return fmt.Errorf("report: list blocked ips: %w", err)
	}
	blockedAttempts, err := database.CountEventsFromIPs(ctx, since, blockedIPs)
	if err != nil {
		return fmt.Errorf("report: count blocked traffic: %w", err)
	}

	newSuspicious, err := database.CountSuspiciousSince(ctx, since)
	if err != nil {
		return fmt.Errorf("report: count suspicious: %w", err)
	}

	date := now.Format("2006-01-02")
	subject := fmt.Sprintf("Daily Security Report - %s", date)

	var body strings.Builder
	fmt.Fprintf(&body, "Security summary for the 24 hours ending %s\n\n", now.Format(time.RFC1123))
	fmt.Fprintf(&body, "Total requests:                %d\n", totalRequests)
	fmt.Fprintf(&body, "Requests from blocked IPs:     %d\n", blockedAttempts)
	fmt.Fprintf(&body, "Newly flagged suspicious IPs:  %d\n", newSuspicious)
	fmt.Fprintf(&body, "Currently blocked IPs:         %d\n", len(blockedIPs))

	if err := notifier.Send(ctx, cfg.Report.Recipient, subject, body.String()); err != nil {
		return fmt.Errorf("report: deliver: %w", err)
	}

	log.Info("Security report sent", "recipient", cfg.Report.Recipient, "date", date)
	return nil
}
