package behaviors_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dukex/aob/internal/behaviors"
	"github.com/dukex/aob/internal/engine"
	"github.com/dukex/aob/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPBehaviorSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"echo": body})
	}))
	defer srv.Close()

	b := behaviors.NewHTTPBehavior(http.MethodPost, srv.URL, nil, 0)

	out, err := b.Execute(context.Background(), map[string]any{"x": 1.0}, models.NewRunContext(nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, out["status_code"])
}

func TestHTTPBehaviorServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	b := behaviors.NewHTTPBehavior(http.MethodGet, srv.URL, nil, 0)

	_, err := b.Execute(context.Background(), nil, models.NewRunContext(nil))
	require.Error(t, err)
	assert.True(t, engine.IsTransient(err))
}

func TestHTTPBehaviorClientErrorIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	b := behaviors.NewHTTPBehavior(http.MethodGet, srv.URL, nil, 0)

	_, err := b.Execute(context.Background(), nil, models.NewRunContext(nil))
	require.Error(t, err)
	assert.False(t, engine.IsTransient(err))
}
