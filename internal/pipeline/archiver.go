// Package pipeline coordinates the long-running background workers: the
// chain indexer and the cold-storage archiver.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/curvemarket/internal/domain"
)

// archiveLockTTL bounds how long one replica can hold the archive lock; a
// crashed holder frees it by expiry.
const archiveLockTTL = 30 * time.Minute

// Archiver runs periodic cold-storage archive passes over the settlement log
// and price history.
type Archiver struct {
	blobArchiver  domain.Archiver
	locks         domain.LockManager
	retentionDays int
	logger        *slog.Logger
}

// NewArchiver creates an Archiver. locks may be nil when only one replica
// ever runs in archive mode.
func NewArchiver(blobArchiver domain.Archiver, locks domain.LockManager, retentionDays int, logger *slog.Logger) *Archiver {
	return &Archiver{
		blobArchiver:  blobArchiver,
		locks:         locks,
		retentionDays: retentionDays,
		logger:        logger.With(slog.String("component", "archiver")),
	}
}

// Run executes a single archive pass: rows older than the retention window
// are copied to cold storage. A concurrent pass on another replica makes
// this one a silent no-op via the distributed lock.
func (a *Archiver) Run(ctx context.Context) error {
	if a.locks != nil {
		unlock, err := a.locks.Acquire(ctx, "archive", archiveLockTTL)
		if errors.Is(err, domain.ErrLockHeld) {
			a.logger.Info("archive pass already running elsewhere, skipping")
			return nil
		}
		if err != nil {
			return fmt.Errorf("acquire archive lock: %w", err)
		}
		defer unlock()
	}

	cutoff := time.Now().UTC().Add(-time.Duration(a.retentionDays) * 24 * time.Hour)
	a.logger.Info("starting archive pass",
		slog.Time("cutoff", cutoff),
		slog.Int("retention_days", a.retentionDays),
	)

	txCount, err := a.blobArchiver.ArchiveTransactions(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archiving transactions before %v: %w", cutoff, err)
	}
	bucketCount, err := a.blobArchiver.ArchiveBuckets(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archiving price buckets before %v: %w", cutoff, err)
	}

	a.logger.Info("archive pass complete",
		slog.Int64("transactions_archived", txCount),
		slog.Int64("buckets_archived", bucketCount),
	)
	return nil
}

// RunCron runs archive passes on a cron schedule until ctx is cancelled.
// The expression uses the standard 5-field format
// "minute hour day-of-month month day-of-week"; "0 3 1 * *" runs at 03:00
// on the first of every month.
func (a *Archiver) RunCron(ctx context.Context, cronExpr string) error {
	a.logger.Info("archiver cron started", slog.String("cron", cronExpr))

	for {
		next, err := nextCronTime(cronExpr, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("parsing cron expression %q: %w", cronExpr, err)
		}

		a.logger.Info("archiver waiting for next trigger",
			slog.Time("next_run", next),
		)

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			a.logger.Info("archiver cron stopped")
			return ctx.Err()
		case <-timer.C:
			if err := a.Run(ctx); err != nil {
				a.logger.Error("archive pass failed", slog.String("error", err.Error()))
			}
		}
	}
}

// cronField is one parsed cron field.
type cronField struct {
	wildcard bool
	values   []int
}

func (f cronField) matches(val int) bool {
	if f.wildcard {
		return true
	}
	for _, v := range f.values {
		if v == val {
			return true
		}
	}
	return false
}

// parseCronField parses a single cron field (e.g. "0", "*", "1,15").
func parseCronField(field string) (cronField, error) {
	if field == "*" {
		return cronField{wildcard: true}, nil
	}

	parts := strings.Split(field, ",")
	values := make([]int, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return cronField{}, fmt.Errorf("invalid cron field value %q: %w", p, err)
		}
		values = append(values, v)
	}
	return cronField{values: values}, nil
}

// parsedCron holds the five parsed fields.
type parsedCron struct {
	minute     cronField
	hour       cronField
	dayOfMonth cronField
	month      cronField
	dayOfWeek  cronField
}

func (c parsedCron) matchesTime(t time.Time) bool {
	return c.minute.matches(t.Minute()) &&
		c.hour.matches(t.Hour()) &&
		c.dayOfMonth.matches(t.Day()) &&
		c.month.matches(int(t.Month())) &&
		c.dayOfWeek.matches(int(t.Weekday()))
}

// parseCron parses a 5-field cron expression.
func parseCron(expr string) (parsedCron, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return parsedCron{}, fmt.Errorf("cron expression must have 5 fields, got %d", len(fields))
	}

	var (
		c   parsedCron
		err error
	)
	if c.minute, err = parseCronField(fields[0]); err != nil {
		return parsedCron{}, fmt.Errorf("parsing minute field: %w", err)
	}
	if c.hour, err = parseCronField(fields[1]); err != nil {
		return parsedCron{}, fmt.Errorf("parsing hour field: %w", err)
	}
	if c.dayOfMonth, err = parseCronField(fields[2]); err != nil {
		return parsedCron{}, fmt.Errorf("parsing day-of-month field: %w", err)
	}
	if c.month, err = parseCronField(fields[3]); err != nil {
		return parsedCron{}, fmt.Errorf("parsing month field: %w", err)
	}
	if c.dayOfWeek, err = parseCronField(fields[4]); err != nil {
		return parsedCron{}, fmt.Errorf("parsing day-of-week field: %w", err)
	}
	return c, nil
}

// nextCronTime finds the first minute after 'after' matching the expression,
// searching up to one year ahead.
func nextCronTime(cronExpr string, after time.Time) (time.Time, error) {
	cron, err := parseCron(cronExpr)
	if err != nil {
		return time.Time{}, err
	}

	candidate := after.Truncate(time.Minute).Add(time.Minute)
	limit := after.Add(366 * 24 * time.Hour)

	for candidate.Before(limit) {
		if cron.matchesTime(candidate) {
			return candidate, nil
		}
		candidate = candidate.Add(time.Minute)
	}
	return time.Time{}, fmt.Errorf("no matching cron time found within one year for %q", cronExpr)
}
