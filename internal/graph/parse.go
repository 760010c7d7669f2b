package graph

import (
	"fmt"

	"github.com/dukex/aob/pkg/models"
	"gopkg.in/yaml.v3"
)

// ParseSpec decodes the YAML front-end form of a WorkflowSpec (SPEC_FULL.md
// §6) without compiling it. Callers that need a runtime Graph should use
// CompileYAML, which parses and compiles in one step.
func ParseSpec(data []byte) (models.WorkflowSpec, error) {
	var spec models.WorkflowSpec

	if err := yaml.Unmarshal(data, &spec); err != nil {
		return models.WorkflowSpec{}, fmt.Errorf("graph: parse workflow spec: %w", err)
	}

	return spec, nil
}

// CompileYAML parses data as a WorkflowSpec and compiles it, returning both
// the decoded spec (useful for echoing back to a caller) and the Graph.
func CompileYAML(data []byte) (models.WorkflowSpec, *Graph, error) {
	spec, err := ParseSpec(data)
	if err != nil {
		return models.WorkflowSpec{}, nil, err
	}

	g, err := Compile(spec)
	if err != nil {
		return spec, nil, err
	}

	return spec, g, nil
}
