// Package audit implements the Decision Recorder (C6, §4.6): a write-only
// sink that receives one DecisionRecord per node invocation. The recorder
// is never on the critical path of state changes — sink failures are
// logged as deferred-record events and never fail the engine (§7).
package audit

import (
	"context"
	"log/slog"

	"github.com/dukex/aob/pkg/models"
)

// Sink is the adapter contract the engine writes decisions to.
type Sink interface {
	Record(ctx context.Context, record models.DecisionRecord) error
}

// Recorder wraps a Sink so that sink failures never propagate to the
// engine: it logs a deferred-record event and continues (§7 sink_unavailable).
type Recorder struct {
	sink   Sink
	logger *slog.Logger
}

// New constructs a Recorder around the given sink.
func New(logger *slog.Logger, sink Sink) *Recorder {
	return &Recorder{sink: sink, logger: logger}
}

func (r *Recorder) Record(ctx context.Context, record models.DecisionRecord) {
	if r.sink == nil {
		return
	}

	if err := r.sink.Record(ctx, record); err != nil {
		r.logger.ErrorContext(ctx, "decision sink unavailable, deferring record",
			"error", err,
			"correlation_id", record.CorrelationID,
			"node_id", record.NodeID,
		)
	}
}
