package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahul/orbit/internal/agent"
	"github.com/rahul/orbit/internal/executor"
	"github.com/rahul/orbit/internal/governance"
	"github.com/rahul/orbit/internal/observability"
	"github.com/rahul/orbit/internal/planner"
	"github.com/rahul/orbit/internal/steps"
	"github.com/rahul/orbit/internal/store"
	"github.com/rahul/orbit/internal/tools"
)

const testOrigin = "http://localhost:1420"

type launcherRunner struct {
	fail bool
}

func (r launcherRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, int, error) {
	if r.fail {
		return nil, []byte("Unable to find application"), 1, errors.New("exit status 1")
	}
	return nil, nil, 0, nil
}

type fixture struct {
	agent    *agent.Agent
	hub      *steps.Hub
	registry *tools.Registry
	audit    *store.AuditStore
	server   *Server
	http     *httptest.Server
}

func newFixture(t *testing.T, policy governance.PolicyEngine) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	registry, browser := tools.NewDefaultRegistry(tools.Options{
		Home:          t.TempDir(),
		Launcher:      []string{"open", "-a"},
		Headless:      true,
		ScreenshotDir: t.TempDir(),
		Runner:        launcherRunner{},
	})
	audit, err := store.NewAuditStore("")
	require.NoError(t, err)

	metrics := observability.NewMetrics()
	hub := steps.NewHub(64)
	exec := executor.New(hub, executor.Options{Recorder: executor.Recorders(audit, metrics)})
	a := &agent.Agent{
		Planner:  planner.New(registry),
		Executor: exec,
		Policy:   policy,
		Security: audit,
		Rejects:  metrics,
	}

	s := NewServer(ServerOptions{
		AllowedOrigins: []string{testOrigin, "tauri://localhost"},
		Agent:          a,
		Hub:            hub,
		Registry:       registry,
		Audit:          audit,
		Metrics:        metrics,
	})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		exec.Close()
		browser.Close()
		audit.Close()
		hub.Close()
	})

	return &fixture{agent: a, hub: hub, registry: registry, audit: audit, server: s, http: ts}
}

func (f *fixture) post(t *testing.T, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(f.http.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	return resp, decode(t, resp)
}

func (f *fixture) get(t *testing.T, path string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Get(f.http.URL + path)
	require.NoError(t, err)
	return resp, decode(t, resp)
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 && bytes.HasPrefix(bytes.TrimSpace(raw), []byte("{")) {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return out
}

func (f *fixture) submit(t *testing.T, command string) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"command": command})
	resp, out := f.post(t, "/run", string(body))
	require.Equal(t, http.StatusAccepted, resp.StatusCode, out)
	runID, _ := out["run_id"].(string)
	require.NotEmpty(t, runID)
	return runID
}

func (f *fixture) wait(t *testing.T, runID string) executor.Run {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	run, err := f.agent.Executor.Wait(ctx, runID)
	require.NoError(t, err)
	return run
}

func TestServer_RunAccepted(t *testing.T) {
	f := newFixture(t, nil)

	runID := f.submit(t, "create 2 files in documents")
	run := f.wait(t, runID)
	assert.Equal(t, steps.RunCompleted, run.Status)

	resp, out := f.get(t, "/runs/"+runID)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, runID, out["run_id"])
	assert.Equal(t, "completed", out["status"])
	assert.Equal(t, "http", out["source"])

	resp, out = f.get(t, "/runs")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, out["runs"], 1)
}

func TestServer_RunRejections(t *testing.T) {
	f := newFixture(t, nil)

	tests := []struct {
		name   string
		body   string
		status int
		kind   string
	}{
		{"malformed json", `{"command":`, http.StatusBadRequest, ""},
		{"missing command", `{}`, http.StatusBadRequest, ""},
		{"empty command", `{"command":""}`, http.StatusBadRequest, ""},
		{"unparseable", `{"command":"frobnicate the whatsit"}`, http.StatusUnprocessableEntity, "UnparseableCommand"},
		{"blank", `{"command":"   "}`, http.StatusUnprocessableEntity, "UnparseableCommand"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, out := f.post(t, "/run", tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.NotEmpty(t, out["error"])
			if tt.kind != "" {
				assert.Equal(t, tt.kind, out["kind"])
			}
		})
	}

	assert.Empty(t, f.agent.Executor.List())
}

func TestServer_ToolNotFound(t *testing.T) {
	f := newFixture(t, nil)
	// A planner with an empty registry matches rules but binds nothing.
	f.agent.Planner = planner.New(tools.NewRegistry())

	resp, out := f.post(t, "/run", `{"command":"open notion"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "ToolNotFound", out["kind"])
}

func TestServer_PolicyDenied(t *testing.T) {
	policy, err := governance.NewPolicyEngine([]string{"delete_file"}, nil)
	require.NoError(t, err)
	f := newFixture(t, policy)

	resp, out := f.post(t, "/run", `{"command":"delete file notes.md"}`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "PolicyDenied", out["kind"])
	assert.Empty(t, f.agent.Executor.List())
}

func TestServer_Plan(t *testing.T) {
	f := newFixture(t, nil)

	resp, out := f.post(t, "/plan", `{"command":"create 2 files then open notion"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	planned, ok := out["steps"].([]any)
	require.True(t, ok)
	assert.Len(t, planned, 2)
	assert.Empty(t, f.agent.Executor.List())
}

func TestServer_RunNotFound(t *testing.T) {
	f := newFixture(t, nil)

	resp, _ := f.get(t, "/runs/nope")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = f.get(t, "/audit/summary/nope")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_Tools(t *testing.T) {
	f := newFixture(t, nil)

	resp, out := f.get(t, "/tools")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list, ok := out["tools"].([]any)
	require.True(t, ok)
	assert.Len(t, list, len(f.registry.Names()))

	var names []string
	for _, item := range list {
		names = append(names, item.(map[string]any)["name"].(string))
	}
	assert.Contains(t, names, "create_files")
	assert.Contains(t, names, "open_app")
}

func TestServer_Audit(t *testing.T) {
	f := newFixture(t, nil)
	runID := f.submit(t, "create 1 file in documents")
	f.wait(t, runID)

	resp, out := f.get(t, "/audit/logs?run_id="+runID)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 4, out["count"])

	resp, out = f.get(t, "/audit/logs?run_id="+runID+"&event_type=step_complete&limit=1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, out["count"])

	resp, _ = f.get(t, "/audit/logs?limit=abc")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, out = f.get(t, "/audit/summary/"+runID)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "completed", out["status"])
	assert.EqualValues(t, 1, out["successful_steps"])
}

func TestServer_HealthAndMetrics(t *testing.T) {
	f := newFixture(t, nil)

	resp, out := f.get(t, "/health")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", out["status"])
	assert.Equal(t, Version, out["version"])

	resp, err := http.Get(f.http.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "orbit_http_requests_total")
}

func TestServer_CORS(t *testing.T) {
	f := newFixture(t, nil)

	preflight := func(origin string) *http.Response {
		req, err := http.NewRequest(http.MethodOptions, f.http.URL+"/run", nil)
		require.NoError(t, err)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", "POST")
		req.Header.Set("Access-Control-Request-Headers", "Content-Type")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp
	}

	resp := preflight(testOrigin)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, testOrigin, resp.Header.Get("Access-Control-Allow-Origin"))

	resp = preflight("tauri://localhost")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = preflight("http://evil.example")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func dialStream(t *testing.T, f *fixture, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	// The subscription is taken right after the handshake.
	require.Eventually(t, func() bool { return f.hub.Len() == 1 }, 2*time.Second, 5*time.Millisecond)
	return conn
}

func readEvents(t *testing.T, conn *websocket.Conn, runID string) []steps.Event {
	t.Helper()
	var out []steps.Event
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var evt steps.Event
		require.NoError(t, conn.ReadJSON(&evt))
		if evt.RunID != runID {
			continue
		}
		out = append(out, evt)
		if evt.StepID > 0 && evt.Status.Terminal() {
			return out
		}
	}
}

func TestServer_StreamDeliversLifecycle(t *testing.T) {
	f := newFixture(t, nil)
	conn := dialStream(t, f, "")

	runID := f.submit(t, "create 3 files in documents")
	events := readEvents(t, conn, runID)

	require.Len(t, events, 4)
	assert.Equal(t, 0, events[0].StepID)
	assert.Equal(t, "Planned 1 step(s)", events[0].Message)
	assert.Equal(t, steps.StatusQueued, events[1].Status)
	assert.Equal(t, steps.StatusRunning, events[2].Status)
	assert.Equal(t, steps.StatusOK, events[3].Status)
	for i := 1; i < len(events); i++ {
		assert.True(t, events[i].Timestamp.After(events[i-1].Timestamp))
	}
}

func TestServer_StreamRunFilter(t *testing.T) {
	f := newFixture(t, nil)

	first := f.submit(t, "wait 1 second")
	conn := dialStream(t, f, "?run_id="+first)
	second := f.submit(t, "create 1 file in documents")
	f.wait(t, second)
	f.wait(t, first)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var evt steps.Event
		require.NoError(t, conn.ReadJSON(&evt))
		assert.Equal(t, first, evt.RunID)
		if evt.StepID > 0 && evt.Status.Terminal() {
			break
		}
	}
}

func TestServer_StreamDisconnectUnsubscribes(t *testing.T) {
	f := newFixture(t, nil)
	conn := dialStream(t, f, "")

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return f.hub.Len() == 0 }, 2*time.Second, 5*time.Millisecond)

	runID := f.submit(t, "create 1 file in documents")
	assert.Equal(t, steps.RunCompleted, f.wait(t, runID).Status)
}

func TestServer_StreamRejectsForeignOrigin(t *testing.T) {
	f := newFixture(t, nil)

	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/ws"
	header := http.Header{"Origin": []string{"http://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, 0, f.hub.Len())
}
