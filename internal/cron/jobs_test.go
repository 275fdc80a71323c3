package cron

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

// testArchiver implements ConversationArchiver for job tests.
type testArchiver struct {
	calls   atomic.Int32
	archive func(before time.Time) (int, error)
}

func (a *testArchiver) ArchiveIdle(_ context.Context, before time.Time) (int, error) {
	a.calls.Add(1)
	if a.archive != nil {
		return a.archive(before)
	}
	return 0, nil
}

// testRoller implements UsageRoller for job tests.
type testRoller struct {
	gotDay time.Time
	rows   int
	err    error
}

func (r *testRoller) RollupUsage(_ context.Context, day time.Time) (int, error) {
	r.gotDay = day
	return r.rows, r.err
}

func TestArchiveJob_Defaults(t *testing.T) {
	t.Parallel()
	j := &ArchiveJob{Logger: slog.Default()}
	if j.Name() != "conversation_archive" {
		t.Errorf("name = %q, want conversation_archive", j.Name())
	}
	if j.Schedule() != "30 * * * *" {
		t.Errorf("schedule = %q, want 30 * * * *", j.Schedule())
	}
}

func TestArchiveJob_Run(t *testing.T) {
	t.Parallel()

	arch := &testArchiver{
		archive: func(before time.Time) (int, error) {
			want := time.Now().Add(-2 * time.Hour)
			if d := before.Sub(want); d < -time.Minute || d > time.Minute {
				t.Errorf("cutoff %v not near %v", before, want)
			}
			return 4, nil
		},
	}

	j := &ArchiveJob{Repo: arch, IdleAfter: 2 * time.Hour, Logger: slog.Default()}
	if err := j.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if arch.calls.Load() != 1 {
		t.Errorf("archive calls = %d, want 1", arch.calls.Load())
	}
}

func TestArchiveJob_PropagatesError(t *testing.T) {
	t.Parallel()
	wantErr := errors.New("store offline")
	j := &ArchiveJob{
		Repo:   &testArchiver{archive: func(time.Time) (int, error) { return 0, wantErr }},
		Logger: slog.Default(),
	}
	if err := j.Run(context.Background()); !errors.Is(err, wantErr) {
		t.Fatalf("error = %v, want %v", err, wantErr)
	}
}

func TestRollupJob_Run(t *testing.T) {
	t.Parallel()

	roller := &testRoller{rows: 12}
	j := &RollupJob{Repo: roller, Logger: slog.Default()}
	if err := j.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantDay := time.Now().UTC().AddDate(0, 0, -1).Truncate(24 * time.Hour)
	if !roller.gotDay.Equal(wantDay) {
		t.Errorf("rollup day = %v, want %v", roller.gotDay, wantDay)
	}
	if j.Schedule() != "15 0 * * *" {
		t.Errorf("schedule = %q, want 15 0 * * *", j.Schedule())
	}
}

func TestCleanupJob_Run(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	j := &CleanupJob{
		Target:  cleanerFunc(func() int { calls.Add(1); return 2 }),
		JobName: "ratelimit_cleanup",
		Logger:  slog.Default(),
	}
	if err := j.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("cleanup calls = %d, want 1", calls.Load())
	}
	if j.Name() != "ratelimit_cleanup" {
		t.Errorf("name = %q, want ratelimit_cleanup", j.Name())
	}
}

type cleanerFunc func() int

func (f cleanerFunc) Cleanup() int { return f() }
