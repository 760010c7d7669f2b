package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/aob/internal/dlq"
	"github.com/dukex/aob/internal/lease"
	"github.com/dukex/aob/internal/store"
	"github.com/dukex/aob/pkg/models"
)

// LeaderKey is the fixed lease key arbitrating which process runs the
// publisher loop when several are deployed for availability (§4.3).
const LeaderKey = "outbox-publisher"

const (
	// DefaultBatchSize is B in §4.3's algorithm.
	DefaultBatchSize = 50
	// DefaultMaxAttempts is R in §4.3's algorithm.
	DefaultMaxAttempts = 5
	// DefaultPollInterval is the sleep between scans when nothing is left
	// to publish.
	DefaultPollInterval = 2 * time.Second
	// DefaultQuarantineTTL is how long a DLQ'd entry waits before it is
	// eligible for dlq_list(readyForRetry=true) (§4.9).
	DefaultQuarantineTTL = 15 * time.Minute
	// DefaultLeaseTTL is the publisher leadership lease's TTL.
	DefaultLeaseTTL = 30 * time.Second
)

// Publisher drains store.EventStore's outbox to a Bus in strictly
// ascending per-correlation_id order, quarantining an entry to the DLQ
// once it exceeds MaxAttempts (§4.3).
type Publisher struct {
	store  store.EventStore
	bus    Bus
	dlq    dlq.DLQ
	lease  lease.Manager
	logger *slog.Logger

	BatchSize     int
	MaxAttempts   int
	PollInterval  time.Duration
	QuarantineTTL time.Duration
	LeaseTTL      time.Duration
}

// New constructs a Publisher with the §4.3 defaults; override the exported
// fields before calling Run to tune batch size, attempt budget, etc.
func New(logger *slog.Logger, st store.EventStore, bus Bus, d dlq.DLQ, lm lease.Manager) *Publisher {
	return &Publisher{
		store:         st,
		bus:           bus,
		dlq:           d,
		lease:         lm,
		logger:        logger,
		BatchSize:     DefaultBatchSize,
		MaxAttempts:   DefaultMaxAttempts,
		PollInterval:  DefaultPollInterval,
		QuarantineTTL: DefaultQuarantineTTL,
		LeaseTTL:      DefaultLeaseTTL,
	}
}

// Run holds the publisher leadership lease and drains the outbox until ctx
// is cancelled. It is safe to run one Publisher per process; only the
// lease holder actually scans and publishes (§4.3's "leadership arbitrated
// by Lease C4").
func (p *Publisher) Run(ctx context.Context) error {
	token, err := p.lease.Acquire(ctx, LeaderKey, p.LeaseTTL)
	if err != nil {
		return fmt.Errorf("outbox: acquire leadership: %w", err)
	}

	defer func() { _ = p.lease.Release(context.WithoutCancel(ctx), token, LeaderKey) }()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := p.lease.Renew(ctx, token, LeaderKey, p.LeaseTTL); err != nil {
			return fmt.Errorf("outbox: leadership lost: %w", err)
		}

		n, err := p.drainOnce(ctx)
		if err != nil {
			p.logger.ErrorContext(ctx, "outbox drain failed", "error", err)
		}

		if n == p.BatchSize {
			// More work likely waiting; loop immediately rather than sleep.
			continue
		}

		timer := time.NewTimer(p.PollInterval)

		select {
		case <-ctx.Done():
			timer.Stop()

			return ctx.Err()
		case <-timer.C:
		}
	}
}

// drainOnce runs one pass of §4.3's algorithm steps 1-4 and returns the
// number of entries it read.
func (p *Publisher) drainOnce(ctx context.Context) (int, error) {
	entries, _, err := p.store.ScanOutbox(ctx, p.BatchSize, "")
	if err != nil {
		return 0, fmt.Errorf("outbox: scan: %w", err)
	}

	var published []string

	// A run whose entry failed in this pass publishes nothing further in
	// it, so its later events never overtake the failed one.
	held := make(map[string]bool)

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			break
		}

		if held[entry.CorrelationID] {
			continue
		}

		ev := models.Event{
			ID:             entry.EventID,
			CorrelationID:  entry.CorrelationID,
			SequenceNumber: entry.SequenceNumber,
			Type:           entry.Type,
			Payload:        entry.Payload,
			IdempotencyKey: entry.IdempotencyKey,
		}

		if pubErr := p.bus.Publish(ctx, entry.CorrelationID, ev); pubErr != nil {
			if quarErr := p.handleFailure(ctx, entry, pubErr); quarErr != nil {
				return len(published), quarErr
			}

			held[entry.CorrelationID] = true

			continue
		}

		published = append(published, entry.EventID)
	}

	if len(published) > 0 {
		if err := p.store.MarkPublished(ctx, published); err != nil {
			return len(published), fmt.Errorf("outbox: mark published: %w", err)
		}
	}

	return len(entries), nil
}

// handleFailure records the failed publish attempt and, once it exceeds
// MaxAttempts, quarantines the event to the DLQ and marks it published so
// it no longer appears in the live backlog (§4.3 step 4, §4.9).
func (p *Publisher) handleFailure(ctx context.Context, entry models.OutboxEntry, cause error) error {
	if err := p.store.MarkPublishFailed(ctx, entry.EventID, cause.Error()); err != nil {
		return fmt.Errorf("outbox: record publish failure: %w", err)
	}

	attempts := entry.Attempts + 1
	if attempts <= p.MaxAttempts {
		p.logger.WarnContext(ctx, "publish attempt failed, will retry", "event_id", entry.EventID, "attempt", attempts, "error", cause)

		return nil
	}

	p.logger.ErrorContext(ctx, "publish attempts exhausted, quarantining", "event_id", entry.EventID, "attempts", attempts)

	if err := p.dlq.Quarantine(ctx, entry.EventID, cause.Error(), p.QuarantineTTL); err != nil {
		return fmt.Errorf("outbox: quarantine: %w", err)
	}

	return p.store.MarkPublished(ctx, []string{entry.EventID})
}
