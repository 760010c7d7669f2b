package models

import "time"

// Snapshot captures run state up to a given sequence number (§3, §4.8).
type Snapshot struct {
	ID            string     `json:"id"`
	CorrelationID string     `json:"correlation_id"`
	UpToSequence  int64      `json:"up_to_sequence"`
	RunContext    RunContext `json:"run_context"`
	ReadySet      []string   `json:"ready_set"`
	PendingHumans []string   `json:"pending_humans"`
	Completed     []string   `json:"completed"`
	CreatedAt     time.Time  `json:"created_at"`
}

// OutboxEntry is a row of the transactional outbox (§3, §4.3). It carries
// enough of the originating event to publish without a second read against
// the event log, matching the append call that writes both rows in the
// same transaction.
type OutboxEntry struct {
	EventID        string         `json:"event_id"`
	CorrelationID  string         `json:"correlation_id"`
	SequenceNumber int64          `json:"sequence_number"`
	Type           EventType      `json:"type"`
	Payload        map[string]any `json:"payload"`
	IdempotencyKey string         `json:"idempotency_key"`
	PublishedAt    *time.Time     `json:"published_at,omitempty"`
	Attempts       int            `json:"attempts"`
	LastError      string         `json:"last_error,omitempty"`
}

// DLQEntry quarantines an event whose publication exhausted retries (§4.9).
type DLQEntry struct {
	EventID        string    `json:"event_id"`
	Error          string    `json:"error"`
	QuarantineUntil time.Time `json:"quarantine_until"`
	ManualRetries  int       `json:"manual_retries"`
}
