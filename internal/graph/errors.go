package graph

import "fmt"

// ErrorKind enumerates the CompileError variants from spec §4.1.
type ErrorKind string

const (
	ErrUnknownNodeReference ErrorKind = "unknown_node_reference"
	ErrDuplicateNodeID      ErrorKind = "duplicate_node_id"
	ErrCycleDetected        ErrorKind = "cycle_detected"
	ErrEmptyGraph           ErrorKind = "empty_graph"
	ErrMissingApprovalKey   ErrorKind = "missing_approval_key"
	ErrInvalidRetryPolicy   ErrorKind = "invalid_retry_policy"
	ErrNoStartNode          ErrorKind = "no_start_node"
	ErrMultipleStartNodes   ErrorKind = "multiple_start_nodes"
	ErrInvalidNodeConfig    ErrorKind = "invalid_node_config"
)

// CompileError reports why compile() rejected a WorkflowSpec, naming the
// offending location per the variant.
type CompileError struct {
	Kind    ErrorKind
	NodeID  string
	Field   string
	Path    []string
	Message string
}

func (e *CompileError) Error() string {
	switch e.Kind {
	case ErrCycleDetected:
		return fmt.Sprintf("cycle_detected: %v", e.Path)
	case ErrMissingApprovalKey:
		return fmt.Sprintf("missing_approval_key: node %q", e.NodeID)
	case ErrInvalidRetryPolicy:
		return fmt.Sprintf("invalid_retry_policy: node %q field %q", e.NodeID, e.Field)
	case ErrDuplicateNodeID:
		return fmt.Sprintf("duplicate_node_id: %q", e.NodeID)
	case ErrUnknownNodeReference:
		return fmt.Sprintf("unknown_node_reference: %q", e.NodeID)
	case ErrInvalidNodeConfig:
		return fmt.Sprintf("invalid_node_config: node %q: %s", e.NodeID, e.Message)
	default:
		if e.Message != "" {
			return string(e.Kind) + ": " + e.Message
		}

		return string(e.Kind)
	}
}
