package models

import "time"

// EventType is drawn from the closed vocabulary of §3.
type EventType string

const (
	EventWorkflowStarted   EventType = "workflow.started"
	EventNodeStarted       EventType = "node.started"
	EventNodeCompleted     EventType = "node.completed"
	EventNodeFailed        EventType = "node.failed"
	EventPolicyDenied      EventType = "policy.denied"
	EventHumanAwaited      EventType = "human.awaited"
	EventHumanApproved     EventType = "human.approved"
	EventHumanRejected     EventType = "human.rejected"
	EventWorkflowCompleted EventType = "workflow.completed"
	EventWorkflowFailed    EventType = "workflow.failed"
	EventSnapshotCreated   EventType = "snapshot.created"
)

// terminalEvents are terminal for their correlation_id (§3 runtime invariants).
var terminalEvents = map[EventType]bool{
	EventWorkflowCompleted: true,
	EventWorkflowFailed:    true,
}

// IsTerminal reports whether t ends the run it belongs to.
func (t EventType) IsTerminal() bool {
	return terminalEvents[t]
}

// Event is one row of the append-only per-run log (§3).
type Event struct {
	ID             string         `json:"id"`
	CorrelationID  string         `json:"correlation_id"`
	SequenceNumber int64          `json:"sequence_number"`
	Type           EventType      `json:"type"`
	Payload        map[string]any `json:"payload"`
	IdempotencyKey string         `json:"idempotency_key"`
	CreatedAt      time.Time      `json:"created_at"`
}
