package pipeline

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alanyoungcy/curvemarket/internal/domain"
)

type fakeBlobArchiver struct {
	txCalls     int
	bucketCalls int
	lastCutoff  time.Time
}

func (f *fakeBlobArchiver) ArchiveTransactions(ctx context.Context, before time.Time) (int64, error) {
	f.txCalls++
	f.lastCutoff = before
	return 3, nil
}

func (f *fakeBlobArchiver) ArchiveBuckets(ctx context.Context, before time.Time) (int64, error) {
	f.bucketCalls++
	return 7, nil
}

type fakeLocks struct {
	held     bool
	acquired int
	released int
}

func (f *fakeLocks) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if f.held {
		return nil, domain.ErrLockHeld
	}
	f.acquired++
	return func() { f.released++ }, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestArchiverRun(t *testing.T) {
	blob := &fakeBlobArchiver{}
	locks := &fakeLocks{}
	a := NewArchiver(blob, locks, 90, discardLogger())

	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if blob.txCalls != 1 || blob.bucketCalls != 1 {
		t.Errorf("archive calls = %d/%d, want 1/1", blob.txCalls, blob.bucketCalls)
	}
	if locks.acquired != 1 || locks.released != 1 {
		t.Errorf("lock acquired/released = %d/%d, want 1/1", locks.acquired, locks.released)
	}

	wantCutoff := time.Now().UTC().Add(-90 * 24 * time.Hour)
	if d := blob.lastCutoff.Sub(wantCutoff); d < -time.Minute || d > time.Minute {
		t.Errorf("cutoff = %v, want about %v", blob.lastCutoff, wantCutoff)
	}
}

func TestArchiverRunSkipsWhenLockHeld(t *testing.T) {
	blob := &fakeBlobArchiver{}
	a := NewArchiver(blob, &fakeLocks{held: true}, 90, discardLogger())

	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if blob.txCalls != 0 || blob.bucketCalls != 0 {
		t.Errorf("archived despite held lock: %d/%d calls", blob.txCalls, blob.bucketCalls)
	}
}

func TestNextCronTime(t *testing.T) {
	after := time.Date(2026, 8, 30, 12, 34, 56, 0, time.UTC)

	next, err := nextCronTime("0 3 1 * *", after)
	if err != nil {
		t.Fatalf("next cron time: %v", err)
	}
	want := time.Date(2026, 9, 1, 3, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("next = %v, want %v", next, want)
	}

	// Wildcard minutes trigger on the next minute boundary.
	next, err = nextCronTime("* * * * *", after)
	if err != nil {
		t.Fatalf("next cron time: %v", err)
	}
	want = time.Date(2026, 8, 30, 12, 35, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("next = %v, want %v", next, want)
	}

	if _, err := nextCronTime("bad cron", after); err == nil {
		t.Error("malformed expression accepted")
	}
}
