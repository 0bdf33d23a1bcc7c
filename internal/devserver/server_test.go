package devserver_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/boardsync/internal/devserver"
	"github.com/gosuda/boardsync/internal/protocol"
)

type taskResponse struct {
	Task protocol.Task `json:"task"`
}

type tasksResponse struct {
	Tasks []protocol.Task `json:"tasks"`
}

func newTestServer(t *testing.T, cfg devserver.Config) (*httptest.Server, string) {
	t.Helper()

	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "test-secret"
	}
	srv := devserver.New(cfg)
	t.Cleanup(srv.Close)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	token, err := devserver.MintToken(cfg.JWTSecret, "tester", time.Hour)
	require.NoError(t, err)
	return ts, token
}

func doJSON(t *testing.T, method, url, token string, body any) *http.Response {
	t.Helper()

	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, rd)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	ts, _ := newTestServer(t, devserver.Config{})

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestDashboardServed(t *testing.T) {
	t.Parallel()
	ts, _ := newTestServer(t, devserver.Config{})

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "boardsync dev board")
}

func TestRESTRequiresAuth(t *testing.T) {
	t.Parallel()
	ts, _ := newTestServer(t, devserver.Config{})

	resp := doJSON(t, http.MethodGet, ts.URL+"/api/v1/boards/board-1/tasks", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/v1/boards/board-1/tasks", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRESTUnknownBoard(t *testing.T) {
	t.Parallel()
	ts, token := newTestServer(t, devserver.Config{})

	resp := doJSON(t, http.MethodGet, ts.URL+"/api/v1/boards/nope/tasks", token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRESTTaskLifecycle(t *testing.T) {
	t.Parallel()
	ts, token := newTestServer(t, devserver.Config{Boards: []string{"board-1"}})
	base := ts.URL + "/api/v1/boards/board-1/tasks"

	resp := doJSON(t, http.MethodGet, base, token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list tasksResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list.Tasks, 4)

	resp = doJSON(t, http.MethodPost, base, token, protocol.Task{Title: "Write release notes", Priority: "medium"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created taskResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.NotEmpty(t, created.Task.ID)
	assert.Equal(t, protocol.StatusInbox, created.Task.Status)

	resp = doJSON(t, http.MethodGet, base, token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list = tasksResponse{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list.Tasks, 5)
	assert.Equal(t, created.Task.ID, list.Tasks[0].ID, "new tasks are prepended")

	resp = doJSON(t, http.MethodPatch, base+"/"+created.Task.ID, token, map[string]string{"status": "done"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var moved taskResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&moved))
	assert.Equal(t, protocol.StatusDone, moved.Task.Status)

	resp = doJSON(t, http.MethodDelete, base+"/"+created.Task.ID, token, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doJSON(t, http.MethodDelete, base+"/"+created.Task.ID, token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRESTCreateExistingID(t *testing.T) {
	t.Parallel()
	ts, token := newTestServer(t, devserver.Config{})
	base := ts.URL + "/api/v1/boards/board-1/tasks"

	resp := doJSON(t, http.MethodPost, base, token, protocol.Task{ID: "t1", Title: "Other title", Status: protocol.StatusDone})
	require.Equal(t, http.StatusOK, resp.StatusCode, "existing id returns the stored task")
	var got taskResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "Fix login bug", got.Task.Title)
}

func TestRESTMoveValidation(t *testing.T) {
	t.Parallel()
	ts, token := newTestServer(t, devserver.Config{})
	base := ts.URL + "/api/v1/boards/board-1/tasks"

	resp := doJSON(t, http.MethodPatch, base+"/t1", token, map[string]string{"status": "archived"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp = doJSON(t, http.MethodPatch, base+"/missing", token, map[string]string{"status": "done"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, base, token, map[string]int{"title": 7})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
