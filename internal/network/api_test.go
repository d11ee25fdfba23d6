package network

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MRamiBalles/uplink-sim/server/internal/domain"
	"github.com/MRamiBalles/uplink-sim/server/internal/engine"
	"github.com/MRamiBalles/uplink-sim/server/internal/infra/storage"
	"github.com/MRamiBalles/uplink-sim/server/internal/platform/logger"
	"github.com/MRamiBalles/uplink-sim/server/internal/platform/optimization"
	"github.com/MRamiBalles/uplink-sim/server/internal/world"
)

const (
	publicServer = "234.773.0.666"
	testMachine  = "128.185.0.4"
)

type testServer struct {
	eng    *engine.Engine
	hub    *Hub
	server *httptest.Server
}

func newTestServer(t *testing.T, tuning *optimization.Config) *testServer {
	t.Helper()

	store, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	seed, err := world.LoadSeed("")
	require.NoError(t, err)

	log := logger.Discard()
	hub := NewHub(log, nil, tuning.MaxClientsPerSession)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	eng := engine.NewEngine(store, hub, log, engine.WithWorld(world.NewSeedGenerator(seed)))
	srv := httptest.NewServer(NewServer(eng, hub, tuning, log, nil))
	t.Cleanup(srv.Close)
	return &testServer{eng: eng, hub: hub, server: srv}
}

func (ts *testServer) do(t *testing.T, method, path string, body any, out any) int {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.server.URL+path, &buf)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil && resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (ts *testServer) createSession(t *testing.T) string {
	t.Helper()
	var created struct {
		Session domain.Session `json:"session"`
		Player  domain.Player  `json:"player"`
	}
	code := ts.do(t, http.MethodPost, "/api/sessions", map[string]string{"account_ref": "acct", "handle": "neo"}, &created)
	require.Equal(t, http.StatusCreated, code)
	require.NotEmpty(t, created.Session.ID)
	assert.Equal(t, "neo", created.Player.Handle)
	return created.Session.ID
}

func TestAPISessionFlow(t *testing.T) {
	ts := newTestServer(t, optimization.DefaultConfig())
	id := ts.createSession(t)
	base := "/api/sessions/" + id

	var status domain.SessionStatus
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, base, nil, &status))
	assert.True(t, status.Active)
	assert.Equal(t, int64(3000), status.Balance)

	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPut, base+"/speed", map[string]int{"speed": 3}, nil))

	var node domain.BounceNode
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, base+"/bounces", map[string]string{"address": testMachine}, &node))
	assert.Equal(t, testMachine, node.Address)

	var screen engine.ScreenData
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, base+"/connect", nil, &screen))
	assert.Equal(t, domain.ScreenPassword, screen.ScreenType)

	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, base+"/screen",
		map[string]string{"action": "password_submit", "password": "rosebud"}, &screen))
	assert.Equal(t, domain.ScreenMenu, screen.ScreenType)

	var tasks []domain.RunningTask
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, base+"/tasks", nil, &tasks))
	assert.Empty(t, tasks)

	require.Equal(t, http.StatusNoContent, ts.do(t, http.MethodPost, base+"/disconnect", nil, nil))
	require.Equal(t, http.StatusNoContent, ts.do(t, http.MethodDelete, base+"/bounces/0", nil, nil))

	var pending []domain.ScheduledEvent
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, base+"/events", nil, &pending))
	assert.NotEmpty(t, pending, "initial events are queued")
}

func TestAPIErrorMapping(t *testing.T) {
	ts := newTestServer(t, optimization.DefaultConfig())
	id := ts.createSession(t)
	base := "/api/sessions/" + id

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"unknown session", http.MethodGet, "/api/sessions/missing", nil, http.StatusNotFound},
		{"invalid speed", http.MethodPut, base + "/speed", map[string]int{"speed": 7}, http.StatusBadRequest},
		{"missing speed", http.MethodPut, base + "/speed", map[string]int{}, http.StatusBadRequest},
		{"unknown address", http.MethodPost, base + "/bounces", map[string]string{"address": "9.9.9.9"}, http.StatusBadRequest},
		{"bad position", http.MethodDelete, base + "/bounces/first", nil, http.StatusBadRequest},
		{"missing position", http.MethodDelete, base + "/bounces/4", nil, http.StatusNotFound},
		{"empty chain", http.MethodPost, base + "/connect", nil, http.StatusBadRequest},
		{"unknown event", http.MethodPost, base + "/events", map[string]any{"kind": "warp", "trigger_tick": 5}, http.StatusBadRequest},
		{"malformed body", http.MethodPost, base + "/hardware", "not an object", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body map[string]string
			code := ts.do(t, tt.method, tt.path, tt.body, &body)
			assert.Equal(t, tt.want, code)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestAPIHealth(t *testing.T) {
	ts := newTestServer(t, optimization.DefaultConfig())
	var body map[string]string
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/healthz", nil, &body))
	assert.Equal(t, "ok", body["status"])
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://uplink.example"})

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Origin", "https://UPLINK.example")
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://evil.example")
	assert.False(t, check(req))

	assert.True(t, originChecker(nil)(req))
}
