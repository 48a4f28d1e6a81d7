package httpapi_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/deepnoodle-ai/invoiceflow"
	"github.com/deepnoodle-ai/invoiceflow/httpapi"
	"github.com/deepnoodle-ai/invoiceflow/stages"
	"github.com/deepnoodle-ai/invoiceflow/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	return newServerWithStore(t, invoiceflow.NewMemoryStore())
}

func newServerWithStore(t *testing.T, store invoiceflow.Store) *httptest.Server {
	t.Helper()
	collaborators, _, err := tools.Resolve(tools.NewRegistry(nil), tools.ResolveOptions{})
	require.NoError(t, err)
	engine, err := invoiceflow.NewEngine(invoiceflow.EngineOptions{
		Stages:        stages.All(nil),
		Instances:     store,
		Checkpoints:   store,
		Ledger:        store,
		Collaborators: collaborators,
	})
	require.NoError(t, err)
	srv := httptest.NewServer(httpapi.New(engine, httpapi.WithMaxBodyBytes(64<<10)))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url string, body any) (int, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

var mismatched = map[string]any{
	"invoice_id":    "INV-2024-002",
	"vendor_name":   "Acme Corp",
	"amount":        6000,
	"currency":      "USD",
	"po_references": []string{"PO-2024-001"},
	"line_items": []map[string]any{
		{"desc": "Unknown Item", "qty": 100, "unit_price": 60, "total": 6000},
	},
}

var matched = map[string]any{
	"invoice_id":    "INV-2024-001",
	"vendor_name":   "Acme Corp",
	"amount":        1000,
	"po_references": []string{"PO-2024-001"},
	"line_items": []map[string]any{
		{"desc": "Widget A", "qty": 10, "unit_price": 50, "total": 500},
		{"desc": "Widget B", "qty": 5, "unit_price": 100, "total": 500},
	},
}

func TestHealthz(t *testing.T) {
	srv := newServer(t)
	code, body := do(t, http.MethodGet, srv.URL+"/healthz", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

func TestRunMatched(t *testing.T) {
	srv := newServer(t)
	code, body := do(t, http.MethodPost, srv.URL+"/workflow/run", matched)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "COMPLETED", body["status"])
	assert.Equal(t, "Workflow completed successfully", body["message"])
	assert.NotContains(t, body, "checkpoint_id")

	code, status := do(t, http.MethodGet, srv.URL+"/workflow/status/"+body["instance_id"].(string), nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, status["complete"])
	assert.Equal(t, false, status["paused"])
	assert.Equal(t, "COMPLETE", status["current_stage"])
}

func TestReviewRoundTrip(t *testing.T) {
	srv := newServer(t)

	code, run := do(t, http.MethodPost, srv.URL+"/workflow/run", mismatched)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "PAUSED", run["status"])
	assert.Equal(t, "Workflow paused for human review", run["message"])
	checkpoint := run["checkpoint_id"].(string)
	assert.Equal(t, "/human-review/"+checkpoint, run["review_url"])

	code, pending := do(t, http.MethodGet, srv.URL+"/human-review/pending", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1.0, pending["total"])
	items := pending["items"].([]any)
	assert.Equal(t, checkpoint, items[0].(map[string]any)["checkpoint_id"])

	code, decided := do(t, http.MethodPost, srv.URL+"/human-review/decision", map[string]string{
		"checkpoint_id": checkpoint,
		"decision":      "ACCEPT",
		"reviewer_id":   "r1",
	})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "COMPLETED", decided["status"])
	assert.Equal(t, "RECONCILE", decided["next_stage"])
	assert.Equal(t, fmt.Sprintf("%s:%s", run["instance_id"], checkpoint), decided["resume_token"])

	code, pending = do(t, http.MethodGet, srv.URL+"/human-review/pending", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 0.0, pending["total"])
	assert.Empty(t, pending["items"])

	code, again := do(t, http.MethodPost, srv.URL+"/human-review/decision", map[string]string{
		"checkpoint_id": checkpoint,
		"decision":      "REJECT",
	})
	assert.Equal(t, http.StatusConflict, code)
	assert.Contains(t, again["error"], "already decided")

	code, cps := do(t, http.MethodGet, srv.URL+"/workflow/checkpoints/"+run["instance_id"].(string), nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1.0, cps["total"])
}

func TestDecisionErrors(t *testing.T) {
	srv := newServer(t)

	code, body := do(t, http.MethodPost, srv.URL+"/human-review/decision", map[string]string{
		"checkpoint_id": "ckpt_missing",
		"decision":      "ACCEPT",
	})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Contains(t, body["error"], "checkpoint not found")

	code, _ = do(t, http.MethodPost, srv.URL+"/human-review/decision", map[string]string{
		"checkpoint_id": "ckpt_missing",
		"decision":      "MAYBE",
	})
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = do(t, http.MethodPost, srv.URL+"/human-review/decision", "{not json")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, body["error"], "invalid JSON")
}

func TestRunValidation(t *testing.T) {
	srv := newServer(t)
	code, body := do(t, http.MethodPost, srv.URL+"/workflow/run", map[string]any{"vendor_name": "Acme Corp"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, body["error"], "validation failed")

	code, _ = do(t, http.MethodGet, srv.URL+"/workflow/all", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestListAndDelete(t *testing.T) {
	srv := newServer(t)
	_, done := do(t, http.MethodPost, srv.URL+"/workflow/run", matched)
	_, paused := do(t, http.MethodPost, srv.URL+"/workflow/run", mismatched)

	code, list := do(t, http.MethodGet, srv.URL+"/workflow/all", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 2.0, list["total"])

	code, list = do(t, http.MethodGet, srv.URL+"/workflow/all?status=PAUSED", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1.0, list["total"])

	code, list = do(t, http.MethodGet, srv.URL+"/workflow/all?limit=1", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, list["workflows"], 1)
	assert.Equal(t, 2.0, list["total"])

	code, _ = do(t, http.MethodGet, srv.URL+"/workflow/all?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	id := paused["instance_id"].(string)
	code, body := do(t, http.MethodDelete, srv.URL+"/workflow/"+id, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Workflow "+id+" deleted successfully", body["message"])

	code, _ = do(t, http.MethodDelete, srv.URL+"/workflow/"+id, nil)
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = do(t, http.MethodGet, srv.URL+"/workflow/status/"+id, nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, inst := do(t, http.MethodGet, srv.URL+"/workflow/"+done["instance_id"].(string), nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, inst, "stage_outputs")
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{invoiceflow.NewValidationError("amount", "must be positive"), http.StatusBadRequest},
		{invoiceflow.ErrInstanceNotFound, http.StatusNotFound},
		{fmt.Errorf("lookup: %w", invoiceflow.ErrCheckpointNotFound), http.StatusNotFound},
		{invoiceflow.ErrAlreadyDecided, http.StatusConflict},
		{invoiceflow.ErrCheckpointNotOpen, http.StatusConflict},
		{invoiceflow.ErrInstanceFailed, http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, httpapi.StatusCode(tt.err), tt.err.Error())
	}
}

func TestIDsCannotEscapeDataDir(t *testing.T) {
	root := t.TempDir()
	store, err := invoiceflow.NewFileStore(filepath.Join(root, "data"))
	require.NoError(t, err)
	victim := filepath.Join(root, "victim.json")
	require.NoError(t, os.WriteFile(victim, []byte(`{"id": "victim"}`), 0o644))
	srv := newServerWithStore(t, store)

	escaped := "..%2F..%2Fvictim"
	for _, tc := range []struct{ method, path string }{
		{http.MethodDelete, "/workflow/" + escaped},
		{http.MethodGet, "/workflow/" + escaped},
		{http.MethodGet, "/workflow/status/" + escaped},
		{http.MethodGet, "/workflow/checkpoints/" + escaped},
		{http.MethodGet, "/workflow/history/" + escaped},
		{http.MethodPost, "/workflow/resume/" + escaped},
	} {
		code, body := do(t, tc.method, srv.URL+tc.path, nil)
		assert.Equal(t, http.StatusNotFound, code, "%s %s: %v", tc.method, tc.path, body)
	}

	code, _ := do(t, http.MethodPost, srv.URL+"/human-review/decision", map[string]any{
		"checkpoint_id": "../../victim",
		"decision":      "ACCEPT",
	})
	assert.Equal(t, http.StatusNotFound, code)

	assert.FileExists(t, victim)
}
