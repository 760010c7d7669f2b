package graph

import (
	"encoding/json"
	"fmt"

	"github.com/dukex/aob/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

// validateNodeConfig checks n.Config against n.ConfigSchema when the node
// declares one. A node with no ConfigSchema skips validation entirely —
// Config is then opaque to the compiler and is only interpreted by
// whatever Behavior the deployment registers for this node id.
func validateNodeConfig(n models.Node) error {
	if n.ConfigSchema == "" {
		return nil
	}

	schemaLoader := gojsonschema.NewStringLoader(n.ConfigSchema)

	configJSON, err := json.Marshal(n.Config)
	if err != nil {
		return &CompileError{Kind: ErrInvalidNodeConfig, NodeID: n.ID, Message: "config is not JSON-encodable: " + err.Error()}
	}

	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(configJSON))
	if err != nil {
		return &CompileError{Kind: ErrInvalidNodeConfig, NodeID: n.ID, Message: "malformed config_schema: " + err.Error()}
	}

	if !result.Valid() {
		return &CompileError{Kind: ErrInvalidNodeConfig, NodeID: n.ID, Message: fmt.Sprint(result.Errors())}
	}

	return nil
}
