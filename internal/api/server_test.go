package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/gray-logic-gluehome/internal/cloud"
	"github.com/nerrad567/gray-logic-gluehome/internal/coordinator"
	"github.com/nerrad567/gray-logic-gluehome/internal/entity"
	"github.com/nerrad567/gray-logic-gluehome/internal/history"
	"github.com/nerrad567/gray-logic-gluehome/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-gluehome/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-gluehome/internal/operation"
)

// fakeCoordinator serves a fixed directory and records refreshes.
type fakeCoordinator struct {
	mu         sync.Mutex
	dir        *coordinator.Directory
	lastErr    error
	refreshErr error
	refreshes  int
	subs       []func(coordinator.Update)
}

func (f *fakeCoordinator) Current() *coordinator.Directory {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dir
}

func (f *fakeCoordinator) Lock(id string) (cloud.Lock, bool) {
	return f.Current().Lock(id)
}

func (f *fakeCoordinator) LastError() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastErr
}

func (f *fakeCoordinator) Refresh(_ context.Context) (*coordinator.Directory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	if f.refreshErr != nil {
		return nil, fmt.Errorf("%w: %w", coordinator.ErrUpdateFailed, f.refreshErr)
	}
	return f.dir, nil
}

func (f *fakeCoordinator) Subscribe(fn func(coordinator.Update)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = append(f.subs, fn)
	return func() {}
}

func (f *fakeCoordinator) push(u coordinator.Update) {
	f.mu.Lock()
	if u.Err == nil {
		f.dir = u.Directory
	}
	subs := append([]func(coordinator.Update){}, f.subs...)
	f.mu.Unlock()
	for _, fn := range subs {
		fn(u)
	}
}

// fakeRunner returns a canned result for every run.
type fakeRunner struct {
	mu      sync.Mutex
	result  operation.Result
	err     error
	actions []string
}

func (f *fakeRunner) Run(_ context.Context, lock cloud.Lock, action string) (operation.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, lock.ID+":"+action)
	return f.result, f.err
}

// fakeHistory returns canned entries and records the requested limit.
type fakeHistory struct {
	entries []history.Entry
	err     error
	limit   int
}

func (f *fakeHistory) List(_ context.Context, _ string, limit int) ([]history.Entry, error) {
	f.limit = limit
	return f.entries, f.err
}

func battery(v int) *int { return &v }

func testDirectory() *coordinator.Directory {
	return &coordinator.Directory{
		Locks: []cloud.Lock{
			{
				ID:               "lock-front",
				Description:      "Front door",
				SerialNumber:     "1a2b3c4d",
				FirmwareVersion:  "1.0.4",
				BatteryStatus:    battery(80),
				ConnectionStatus: cloud.ConnectionConnected,
				LastLockEvent:    cloud.LockEvent{EventType: "remoteLock"},
			},
			{
				ID:               "lock-back",
				Description:      "Back door",
				SerialNumber:     "9z8y",
				ConnectionStatus: cloud.ConnectionDisconnected,
			},
		},
		FetchedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
}

func testWSConfig() config.WebSocketConfig {
	return config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10}
}

type testDeps struct {
	coord   *fakeCoordinator
	runner  *fakeRunner
	history *fakeHistory
}

// testServer creates a Server over fakes with a loaded directory.
func testServer(t *testing.T) (*Server, testDeps) {
	t.Helper()

	deps := testDeps{
		coord:   &fakeCoordinator{dir: testDirectory()},
		runner:  &fakeRunner{},
		history: &fakeHistory{},
	}

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host:     "127.0.0.1",
			Port:     0,
			Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
		},
		WS:          testWSConfig(),
		Logger:      testLogger(),
		Coordinator: deps.coord,
		Entities:    entity.NewSet(deps.coord, deps.runner),
		History:     deps.history,
		Gatherer:    prometheus.NewRegistry(),
		Version:     "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return srv, deps
}

func do(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, w.Body.String())
	}
}

func TestNew_RequiredDeps(t *testing.T) {
	coord := &fakeCoordinator{}
	set := entity.NewSet(coord, &fakeRunner{})

	tests := []struct {
		name string
		deps Deps
	}{
		{"no logger", Deps{Coordinator: coord, Entities: set}},
		{"no coordinator", Deps{Logger: testLogger(), Entities: set}},
		{"no entities", Deps{Logger: testLogger(), Coordinator: coord}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.deps); err == nil {
				t.Error("New() should fail")
			}
		})
	}
}

// ─── Health ────────────────────────────────────────────────────────

func TestHealth(t *testing.T) {
	srv, _ := testServer(t)

	w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/health")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var resp map[string]any
	decode(t, w, &resp)
	if resp["status"] != "ok" {
		t.Errorf("status = %v, want ok", resp["status"])
	}
	if resp["version"] != "test" {
		t.Errorf("version = %v, want test", resp["version"])
	}
	if resp["locks"] != float64(2) {
		t.Errorf("locks = %v, want 2", resp["locks"])
	}
	if resp["last_refresh"] != "2026-03-01T12:00:00Z" {
		t.Errorf("last_refresh = %v", resp["last_refresh"])
	}
}

func TestHealth_Degraded(t *testing.T) {
	srv, deps := testServer(t)
	deps.coord.lastErr = errors.New("coordinator: update failed: timeout")

	var resp map[string]any
	w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/health")
	decode(t, w, &resp)

	if resp["status"] != "degraded" {
		t.Errorf("status = %v, want degraded", resp["status"])
	}
	if resp["last_error"] == nil {
		t.Error("last_error should be reported")
	}
	// The last good directory is still served.
	if resp["locks"] != float64(2) {
		t.Errorf("locks = %v, want 2", resp["locks"])
	}
}

func TestHealth_NoDirectory(t *testing.T) {
	srv, deps := testServer(t)
	deps.coord.dir = nil

	var resp map[string]any
	decode(t, do(t, srv.buildRouter(), http.MethodGet, "/api/v1/health"), &resp)
	if resp["status"] != "starting" {
		t.Errorf("status = %v, want starting", resp["status"])
	}
}

func TestRequestID(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	w := do(t, router, http.MethodGet, "/api/v1/health")
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID should be generated")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-id-1")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-ID"); got != "client-id-1" {
		t.Errorf("X-Request-ID = %q, want client-id-1", got)
	}
}

func TestNotFound(t *testing.T) {
	srv, _ := testServer(t)
	w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/nope")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

// ─── Locks ─────────────────────────────────────────────────────────

func TestListLocks(t *testing.T) {
	srv, _ := testServer(t)

	w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/locks")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp struct {
		Locks []LockView `json:"locks"`
		Count int        `json:"count"`
	}
	decode(t, w, &resp)

	if resp.Count != 2 || len(resp.Locks) != 2 {
		t.Fatalf("count = %d, locks = %d, want 2", resp.Count, len(resp.Locks))
	}

	front := resp.Locks[0]
	if front.ID != "lock-front" {
		t.Errorf("first lock = %q, want directory order", front.ID)
	}
	if front.State != entity.StateLocked {
		t.Errorf("state = %q, want locked", front.State)
	}
	if !front.Available {
		t.Error("connected lock should be available")
	}
	if front.Device.Model != "1a2b" {
		t.Errorf("model = %q, want 1a2b", front.Device.Model)
	}
	if len(front.Entities) != 4 {
		t.Errorf("entities = %d, want 4", len(front.Entities))
	}

	back := resp.Locks[1]
	if back.Available {
		t.Error("disconnected lock should be unavailable")
	}
	if back.State != entity.StateUnknown {
		t.Errorf("state = %q, want unknown", back.State)
	}
}

func TestListLocks_NoDirectory(t *testing.T) {
	srv, deps := testServer(t)
	deps.coord.dir = nil

	w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/locks")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"locks":[]`) {
		t.Errorf("body = %s, want empty locks array", w.Body.String())
	}
}

func TestGetLock(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	w := do(t, router, http.MethodGet, "/api/v1/locks/lock-front")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var view LockView
	decode(t, w, &view)
	if view.Device.Name != "Front door" {
		t.Errorf("name = %q, want Front door", view.Device.Name)
	}

	w = do(t, router, http.MethodGet, "/api/v1/locks/missing")
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown lock status = %d, want 404", w.Code)
	}
}

func TestLockCommand_Settled(t *testing.T) {
	srv, deps := testServer(t)
	deps.runner.result = operation.Result{
		Outcome:   operation.Settled,
		Operation: cloud.Operation{ID: "op-1", Status: cloud.StatusCompleted},
		Attempts:  3,
	}

	w := do(t, srv.buildRouter(), http.MethodPost, "/api/v1/locks/lock-front/unlock")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", w.Code, w.Body.String())
	}

	var res CommandResult
	decode(t, w, &res)
	if res.Outcome != "settled" || res.OperationID != "op-1" || res.Attempts != 3 {
		t.Errorf("result = %+v", res)
	}
	if res.Action != cloud.ActionUnlock {
		t.Errorf("action = %q, want unlock", res.Action)
	}
	if len(deps.runner.actions) != 1 || deps.runner.actions[0] != "lock-front:unlock" {
		t.Errorf("runner calls = %v", deps.runner.actions)
	}
}

func TestLockCommand_Unresolved(t *testing.T) {
	srv, deps := testServer(t)
	deps.runner.result = operation.Result{
		Outcome:   operation.Unresolved,
		Operation: cloud.Operation{ID: "op-2", Status: cloud.StatusPending},
		Attempts:  30,
	}

	w := do(t, srv.buildRouter(), http.MethodPost, "/api/v1/locks/lock-front/lock")
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", w.Code)
	}
	var res CommandResult
	decode(t, w, &res)
	if res.Outcome != "unresolved" || res.Status != cloud.StatusPending {
		t.Errorf("result = %+v", res)
	}
}

func TestLockCommand_Errors(t *testing.T) {
	tests := []struct {
		name     string
		lockID   string
		err      error
		wantCode int
		wantErr  string
	}{
		{
			name:     "invalid auth",
			lockID:   "lock-front",
			err:      fmt.Errorf("creating operation: %w", cloud.ErrInvalidAuth),
			wantCode: http.StatusBadGateway,
			wantErr:  ErrCodeUpstreamAuth,
		},
		{
			name:     "operation failed",
			lockID:   "lock-front",
			err:      &operation.FailedError{LockDescription: "Front door", Action: "lock", Reason: "jammed"},
			wantCode: http.StatusConflict,
			wantErr:  ErrCodeOperationFailed,
		},
		{
			name:     "network error",
			lockID:   "lock-front",
			err:      &cloud.NetworkError{Err: errors.New("connection refused")},
			wantCode: http.StatusBadGateway,
			wantErr:  ErrCodeUpstream,
		},
		{
			name:     "server error",
			lockID:   "lock-front",
			err:      &cloud.ServerError{StatusCode: 503},
			wantCode: http.StatusBadGateway,
			wantErr:  ErrCodeUpstream,
		},
		{
			name:     "unknown lock",
			lockID:   "missing",
			wantCode: http.StatusNotFound,
			wantErr:  ErrCodeNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, deps := testServer(t)
			deps.runner.err = tt.err

			w := do(t, srv.buildRouter(), http.MethodPost, "/api/v1/locks/"+tt.lockID+"/lock")
			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.wantCode, w.Body.String())
			}
			var apiErr Error
			decode(t, w, &apiErr)
			if apiErr.Code != tt.wantErr {
				t.Errorf("code = %q, want %q", apiErr.Code, tt.wantErr)
			}
		})
	}
}

func TestLockCommand_WrongMethod(t *testing.T) {
	srv, _ := testServer(t)
	w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/locks/lock-front/lock")
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", w.Code)
	}
}

func TestWriteUpstreamError_Mapping(t *testing.T) {
	tests := []struct {
		err      error
		wantCode int
	}{
		{entity.ErrLockNotFound, http.StatusNotFound},
		{operation.ErrInvalidAction, http.StatusBadRequest},
		{context.Canceled, statusClientClosedRequest},
		{&cloud.NonSuccessfulResponseError{StatusCode: 404}, http.StatusBadGateway},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		writeUpstreamError(w, tt.err)
		if w.Code != tt.wantCode {
			t.Errorf("writeUpstreamError(%v) = %d, want %d", tt.err, w.Code, tt.wantCode)
		}
	}
}

// ─── Operations history ────────────────────────────────────────────

func TestListOperations(t *testing.T) {
	srv, deps := testServer(t)
	deps.history.entries = []history.Entry{
		{ID: "h2", LockID: "lock-front", Action: "unlock", Outcome: "settled", Attempts: 2},
		{ID: "h1", LockID: "lock-front", Action: "lock", Outcome: "failed", Reason: "jammed"},
	}

	w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/locks/lock-front/operations?limit=10")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp struct {
		LockID     string          `json:"lock_id"`
		Operations []history.Entry `json:"operations"`
		Count      int             `json:"count"`
	}
	decode(t, w, &resp)
	if resp.Count != 2 || resp.Operations[0].ID != "h2" {
		t.Errorf("response = %+v", resp)
	}
	if deps.history.limit != 10 {
		t.Errorf("limit passed = %d, want 10", deps.history.limit)
	}
}

func TestListOperations_BadLimit(t *testing.T) {
	srv, _ := testServer(t)
	for _, q := range []string{"abc", "0", "-5"} {
		w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/locks/lock-front/operations?limit="+q)
		if w.Code != http.StatusBadRequest {
			t.Errorf("limit=%s status = %d, want 400", q, w.Code)
		}
	}
}

func TestListOperations_StoreError(t *testing.T) {
	srv, deps := testServer(t)
	deps.history.err = errors.New("disk I/O error")

	w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/locks/lock-front/operations")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestListOperations_NoHistory(t *testing.T) {
	srv, _ := testServer(t)
	srv.history = nil

	w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/locks/lock-front/operations")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

// ─── Refresh and metrics ───────────────────────────────────────────

func TestRefresh(t *testing.T) {
	srv, deps := testServer(t)

	w := do(t, srv.buildRouter(), http.MethodPost, "/api/v1/refresh")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp map[string]any
	decode(t, w, &resp)
	if resp["locks"] != float64(2) {
		t.Errorf("locks = %v, want 2", resp["locks"])
	}
	if deps.coord.refreshes != 1 {
		t.Errorf("refreshes = %d, want 1", deps.coord.refreshes)
	}
}

func TestRefresh_Failure(t *testing.T) {
	srv, deps := testServer(t)
	deps.coord.refreshErr = cloud.ErrInvalidAuth

	w := do(t, srv.buildRouter(), http.MethodPost, "/api/v1/refresh")
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", w.Code)
	}
	var apiErr Error
	decode(t, w, &apiErr)
	if apiErr.Code != ErrCodeUpstreamAuth {
		t.Errorf("code = %q, want %q", apiErr.Code, ErrCodeUpstreamAuth)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "gluehome_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Add(3)

	srv, _ := testServer(t)
	srv.gatherer = reg

	w := do(t, srv.buildRouter(), http.MethodGet, "/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body, _ := io.ReadAll(w.Body)
	if !strings.Contains(string(body), "gluehome_test_total 3") {
		t.Errorf("metrics body missing counter:\n%s", body)
	}
}

// ─── Lifecycle ─────────────────────────────────────────────────────

func TestServer_StartAndClose(t *testing.T) {
	srv, _ := testServer(t)

	if err := srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck before Start should fail")
	}
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if err := srv.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error: %v", err)
	}
	if err := srv.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
	if err := srv.Close(); err != nil {
		t.Errorf("second Close() error: %v", err)
	}
}

func TestServer_HealthCheckCancelled(t *testing.T) {
	srv, _ := testServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := srv.HealthCheck(ctx); err == nil {
		t.Error("HealthCheck with cancelled context should fail")
	}
}
