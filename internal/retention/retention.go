// Package retention implements the operational sweep purging rows older
// than the configured Policy (SPEC_FULL.md's retention
// configuration expansion). It is an add-on the engine's core scope never
// depends on: Sweeper only ever deletes already-settled state (published
// events, superseded snapshots, abandoned DLQ entries).
package retention

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukex/aob/internal/dlq"
	"github.com/dukex/aob/internal/store"
	"github.com/robfig/cron/v3"
)

// Policy bounds how long settled state is kept before the sweep purges
// it. Zero fields disable purging for that category.
type Policy struct {
	EventTTL    time.Duration
	SnapshotTTL time.Duration
	DLQTTL      time.Duration
}

// Sweeper runs Policy-driven purges on a cron schedule, grounded on
// operion's pkg/triggers/schedule.ScheduleTrigger's cron/v3 wiring
// (SkipIfStillRunning + Recover chain, so an overrunning sweep never
// stacks concurrent runs and a panic never kills the process).
type Sweeper struct {
	store    store.EventStore
	dlq      dlq.DLQ
	policy   Policy
	schedule string
	logger   *slog.Logger
	cron     *cron.Cron
}

// New constructs a Sweeper. schedule is a standard 5-field cron
// expression (e.g. "0 3 * * *" for a nightly 03:00 sweep).
func New(logger *slog.Logger, st store.EventStore, d dlq.DLQ, policy Policy, schedule string) *Sweeper {
	return &Sweeper{
		store:    st,
		dlq:      d,
		policy:   policy,
		schedule: schedule,
		logger:   logger.With("module", "retention_sweeper"),
	}
}

// Start registers the sweep on the configured cron schedule and starts
// the scheduler. It is not itself blocking; call Stop to shut down.
func (s *Sweeper) Start(ctx context.Context) error {
	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	if _, err := s.cron.AddFunc(s.schedule, func() { s.Sweep(ctx) }); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "starting retention sweeper", "schedule", s.schedule)
	s.cron.Start()

	return nil
}

// Stop halts the cron scheduler, waiting for any in-flight sweep to finish.
func (s *Sweeper) Stop(ctx context.Context) {
	if s.cron == nil {
		return
	}

	<-s.cron.Stop().Done()
	s.logger.InfoContext(ctx, "retention sweeper stopped")
}

// Sweep runs one purge pass immediately, independent of the cron
// schedule — exported so tests and an operator-triggered purge endpoint
// can invoke it directly.
func (s *Sweeper) Sweep(ctx context.Context) {
	now := time.Now().UTC()

	if s.policy.SnapshotTTL > 0 {
		n, err := s.store.PurgeSnapshots(ctx, now.Add(-s.policy.SnapshotTTL))
		if err != nil {
			s.logger.ErrorContext(ctx, "purge snapshots failed", "error", err)
		} else if n > 0 {
			s.logger.InfoContext(ctx, "purged snapshots", "count", n)
		}
	}

	if s.policy.EventTTL > 0 {
		n, err := s.store.PurgeEvents(ctx, now.Add(-s.policy.EventTTL))
		if err != nil {
			s.logger.ErrorContext(ctx, "purge events failed", "error", err)
		} else if n > 0 {
			s.logger.InfoContext(ctx, "purged events", "count", n)
		}
	}

	if s.policy.DLQTTL > 0 {
		ids, err := s.dlq.PurgeExpired(ctx, now.Add(-s.policy.DLQTTL))
		if err != nil {
			s.logger.ErrorContext(ctx, "purge dlq failed", "error", err)
		} else if len(ids) > 0 {
			s.logger.InfoContext(ctx, "purged abandoned dlq entries", "count", len(ids), "event_ids", ids)
		}
	}
}
