package models

// WorkflowSpec is the declarative, compiler input form (§6) of a workflow:
// an identifier plus an ordered set of nodes and edges. It is decoded
// directly from the YAML front-end documented in SPEC_FULL.md.
type WorkflowSpec struct {
	ID    string `json:"id"    yaml:"id"    validate:"required"`
	Nodes []Node `json:"nodes" yaml:"nodes" validate:"required,min=1,dive"`
	Edges []Edge `json:"edges" yaml:"edges" validate:"dive"`
}
