package graph_test

import (
	"errors"
	"testing"

	"github.com/dukex/aob/internal/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const urlConfigSchema = `{
	"type": "object",
	"required": ["url"],
	"properties": {
		"url": {"type": "string"},
		"method": {"type": "string"}
	}
}`

func TestCompileValidNodeConfig(t *testing.T) {
	spec := simpleSpec()
	spec.Nodes[0].Config = map[string]any{"url": "https://example.test", "method": "POST"}
	spec.Nodes[0].ConfigSchema = urlConfigSchema

	_, err := graph.Compile(spec)
	require.NoError(t, err)
}

func TestCompileInvalidNodeConfig(t *testing.T) {
	spec := simpleSpec()
	spec.Nodes[0].Config = map[string]any{"method": "POST"}
	spec.Nodes[0].ConfigSchema = urlConfigSchema

	_, err := graph.Compile(spec)

	var cerr *graph.CompileError

	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, graph.ErrInvalidNodeConfig, cerr.Kind)
	assert.Equal(t, "A", cerr.NodeID)
}

func TestCompileNodeWithoutConfigSchemaSkipsValidation(t *testing.T) {
	spec := simpleSpec()
	spec.Nodes[0].Config = map[string]any{"anything": true}

	_, err := graph.Compile(spec)
	require.NoError(t, err)
}
