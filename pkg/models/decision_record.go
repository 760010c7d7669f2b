package models

import "time"

// AgentMeta captures the extended, model-specific fields recorded only for
// Agent node invocations (carried over from the original prototype's
// DecisionRecord, see SPEC_FULL.md "supplemented features").
type AgentMeta struct {
	Prompt       string         `json:"prompt,omitempty"`
	ModelVersion string         `json:"model_version,omitempty"`
	ToolIO       []map[string]any `json:"tool_io,omitempty"`
	FeatureFlags map[string]any `json:"feature_flags,omitempty"`
}

// DecisionRecord is one audit row per node invocation (§3, §4.6).
type DecisionRecord struct {
	CorrelationID   string         `json:"correlation_id"`
	NodeID          string         `json:"node_id"`
	NodeName        string         `json:"node_name"`
	NodeKind        NodeKind       `json:"node_kind"`
	Allowed         bool           `json:"allowed"`
	PoliciesApplied []string       `json:"policies_applied"`
	InputSnapshot   map[string]any `json:"input_snapshot"`
	OutputSnapshot  map[string]any `json:"output_snapshot"`
	ExternalCalls   []string       `json:"external_calls,omitempty"`
	CostMeters      map[string]any `json:"cost_meters,omitempty"`
	LatencyMS       int64          `json:"latency_ms"`
	CreatedAt       time.Time      `json:"created_at"`
	Agent           *AgentMeta     `json:"agent,omitempty"`
}
