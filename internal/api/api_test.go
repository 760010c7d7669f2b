package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/dukex/aob/internal/api"
	"github.com/dukex/aob/internal/audit"
	"github.com/dukex/aob/internal/dlq"
	"github.com/dukex/aob/internal/engine"
	"github.com/dukex/aob/internal/graph/memrepo"
	"github.com/dukex/aob/internal/lease"
	"github.com/dukex/aob/internal/oracle"
	"github.com/dukex/aob/internal/store/memory"
	"github.com/dukex/aob/pkg/models"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const specYAML = `
id: greet-wf
nodes:
  - id: greet
    kind: task
    name: greet
  - id: review
    kind: human
    name: review
    approval_key: review-ok
  - id: done
    kind: terminal
    name: done
edges:
  - from: greet
    to: review
  - from: review
    to: done
`

func newTestAPI(t *testing.T) *api.API {
	t.Helper()

	st := memory.New()
	lm := lease.NewMemory()
	rec := audit.New(testLogger(), audit.NewMemorySink())
	eng := engine.New(testLogger(), st, lm, oracle.AllowAll(), rec, 0, time.Second)

	behaviors := engine.Registry{
		"greet": engine.BehaviorFunc(func(_ context.Context, _ any, _ models.RunContext) (map[string]any, error) {
			return map[string]any{"greeted": true}, nil
		}),
	}

	specs := memrepo.New()
	runs := api.NewMemoryRunIndex()
	d := dlq.NewMemory()

	return api.New(testLogger(), eng, behaviors, specs, runs, st, d, nil)
}

func httpRequest(method, target string, body []byte, contentType string) *http.Request {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, _ := http.NewRequest(method, target, reader)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	return req
}

func TestCreateAndGetWorkflow(t *testing.T) {
	a := newTestAPI(t)
	app := a.App()

	resp, err := app.Test(httpRequest(http.MethodPost, "/workflows/", []byte(specYAML), "application/yaml"))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	require.Equal(t, "greet-wf", created["id"])

	getResp, err := app.Test(httpRequest(http.MethodGet, "/workflows/greet-wf", nil, ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, getResp.StatusCode)
}

func TestGetWorkflowNotFound(t *testing.T) {
	a := newTestAPI(t)
	app := a.App()

	resp, err := app.Test(httpRequest(http.MethodGet, "/workflows/missing", nil, ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStartRunAndResume(t *testing.T) {
	a := newTestAPI(t)
	app := a.App()

	createResp, err := app.Test(httpRequest(http.MethodPost, "/workflows/", []byte(specYAML), "application/yaml"))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, createResp.StatusCode)

	startBody, _ := json.Marshal(map[string]any{"initial_bag": map[string]any{"x": 1}})

	startResp, err := app.Test(httpRequest(http.MethodPost, "/workflows/greet-wf/runs", startBody, "application/json"))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, startResp.StatusCode)

	var started map[string]any
	require.NoError(t, json.NewDecoder(startResp.Body).Decode(&started))
	correlationID, _ := started["correlation_id"].(string)
	require.NotEmpty(t, correlationID)

	snapResp, err := app.Test(httpRequest(http.MethodGet, "/runs/"+correlationID+"/snapshot", nil, ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, snapResp.StatusCode)

	resumeBody, _ := json.Marshal(map[string]any{"node_id": "review", "approved": true})

	resumeResp, err := app.Test(httpRequest(http.MethodPost, "/runs/"+correlationID+"/resume", resumeBody, "application/json"))
	require.NoError(t, err)
	require.Equal(t, http.StatusNoContent, resumeResp.StatusCode)

	eventsResp, err := app.Test(httpRequest(http.MethodGet, "/runs/"+correlationID+"/events", nil, ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, eventsResp.StatusCode)

	var events []models.Event
	require.NoError(t, json.NewDecoder(eventsResp.Body).Decode(&events))
	require.NotEmpty(t, events)

	replayResp, err := app.Test(httpRequest(http.MethodGet, "/runs/"+correlationID+"/replay", nil, ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, replayResp.StatusCode)

	var state api.RunStateResponse
	require.NoError(t, json.NewDecoder(replayResp.Body).Decode(&state))
	require.True(t, state.Done)
	require.Contains(t, state.Completed, "done")

	listResp, err := app.Test(httpRequest(http.MethodGet, "/runs/"+correlationID+"/snapshots", nil, ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, listResp.StatusCode)

	var listed map[string][]string
	require.NoError(t, json.NewDecoder(listResp.Body).Decode(&listed))

	if len(listed["snapshot_ids"]) > 0 {
		snapshotID := listed["snapshot_ids"][0]

		scopedResp, err := app.Test(httpRequest(http.MethodGet, "/runs/"+correlationID+"/replay?snapshot_id="+snapshotID, nil, ""))
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, scopedResp.StatusCode)

		var scoped api.RunStateResponse
		require.NoError(t, json.NewDecoder(scopedResp.Body).Decode(&scoped))
		require.False(t, scoped.Done, "a mid-run snapshot must halt before the terminal event")
	}

	unknownResp, err := app.Test(httpRequest(http.MethodGet, "/runs/"+correlationID+"/replay?snapshot_id=does-not-exist", nil, ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, unknownResp.StatusCode)
}

func TestResumeUnknownRun(t *testing.T) {
	a := newTestAPI(t)
	app := a.App()

	resumeBody, _ := json.Marshal(map[string]any{"node_id": "review", "approved": true})

	resp, err := app.Test(httpRequest(http.MethodPost, "/runs/does-not-exist/resume", resumeBody, "application/json"))
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDLQList(t *testing.T) {
	a := newTestAPI(t)
	app := a.App()

	resp, err := app.Test(httpRequest(http.MethodGet, "/dlq/", nil, ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var entries []models.DLQEntry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entries))
	require.Empty(t, entries)
}
