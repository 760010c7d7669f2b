package cmdutil

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dukex/aob/internal/behaviors"
	"github.com/dukex/aob/internal/engine"
	"gopkg.in/yaml.v3"
)

// behaviorSpec is one entry of a behaviors config file: which Behavior
// implementation a Task/Agent node id dispatches to. Node ids are
// workflow-specific (engine.Registry is keyed by node id, not by a node
// type), so this file is how an operator wires a deployment's concrete
// WorkflowSpecs to concrete HTTP endpoints without recompiling the binary.
type behaviorSpec struct {
	Type    string            `yaml:"type"`
	Method  string            `yaml:"method"`
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`
	Timeout time.Duration     `yaml:"timeout"`
}

type behaviorsFile struct {
	Behaviors map[string]behaviorSpec `yaml:"behaviors"`
}

// NewBehaviorRegistry loads a behaviors config YAML file (see behaviorSpec)
// into an engine.Registry. An empty path yields an empty registry, valid
// for workflows made only of Human/Terminal nodes.
func NewBehaviorRegistry(logger *slog.Logger, path string) (engine.Registry, error) {
	registry := engine.Registry{}

	if path == "" {
		return registry, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cmdutil: read behaviors config: %w", err)
	}

	var file behaviorsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("cmdutil: parse behaviors config: %w", err)
	}

	for nodeID, spec := range file.Behaviors {
		switch spec.Type {
		case "http":
			registry[nodeID] = behaviors.NewHTTPBehavior(spec.Method, spec.URL, spec.Headers, spec.Timeout)
		case "log":
			registry[nodeID] = behaviors.NewLogBehavior(logger)
		default:
			return nil, fmt.Errorf("cmdutil: unknown behavior type %q for node %q", spec.Type, nodeID)
		}
	}

	return registry, nil
}
