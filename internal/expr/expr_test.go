package expr_test

import (
	"testing"

	"github.com/dukex/aob/internal/expr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvalFieldAccess(t *testing.T) {
	e, err := expr.Parse("bag.customer.id")
	require.NoError(t, err)

	bag := map[string]any{
		"customer": map[string]any{"id": "cust-1"},
	}

	v, err := e.Eval(bag)
	require.NoError(t, err)
	assert.Equal(t, "cust-1", v)
}

func TestEvalIndexAndTransform(t *testing.T) {
	e, err := expr.Parse("bag.items[0].sku | upper")
	require.NoError(t, err)

	bag := map[string]any{
		"items": []any{
			map[string]any{"sku": "abc"},
		},
	}

	v, err := e.Eval(bag)
	require.NoError(t, err)
	assert.Equal(t, "ABC", v)
}

func TestEvalMissingDefault(t *testing.T) {
	e, err := expr.Parse("bag.retries | default(0)")
	require.NoError(t, err)

	v, err := e.Eval(map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, float64(0), v)
}

func TestEvalOutOfRangeIndex(t *testing.T) {
	e, err := expr.Parse("bag.items[5]")
	require.NoError(t, err)

	v, err := e.Eval(map[string]any{"items": []any{"a"}})
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestParseRejectsNonBagRoot(t *testing.T) {
	_, err := expr.Parse("ctx.bag")
	require.Error(t, err)
}

func TestParseRejectsUnknownTransform(t *testing.T) {
	_, err := expr.Parse("bag.x | reverse")
	require.Error(t, err)
}

func TestEmptyExprReturnsWholeBag(t *testing.T) {
	e, err := expr.Parse("")
	require.NoError(t, err)

	bag := map[string]any{"a": 1}
	v, err := e.Eval(bag)
	require.NoError(t, err)
	assert.Equal(t, bag, v)
}
