package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-gluehome/internal/cloud"
	"github.com/nerrad567/gray-logic-gluehome/internal/entity"
	"github.com/nerrad567/gray-logic-gluehome/internal/operation"
)

// LockView is the API rendering of one lock and its entities.
type LockView struct {
	ID        string            `json:"id"`
	Device    entity.DeviceInfo `json:"device"`
	State     string            `json:"state"`
	Available bool              `json:"available"`
	Entities  []entity.State    `json:"entities"`
}

// CommandResult is the response to a lock or unlock request that did not fail.
type CommandResult struct {
	LockID      string `json:"lock_id"`
	Action      string `json:"action"`
	Outcome     string `json:"outcome"`
	OperationID string `json:"operation_id"`
	Status      string `json:"status"`
	Attempts    int    `json:"attempts"`
	State       string `json:"state"`
}

// lockView renders a lock from the current directory. It returns false if
// the lock is not in the directory.
func (s *Server) lockView(id string) (LockView, bool) {
	lock, ok := s.coordinator.Current().Lock(id)
	if !ok {
		return LockView{}, false
	}

	entities := s.entities.ForLock(id)
	states := make([]entity.State, 0, len(entities))
	for _, e := range entities {
		states = append(states, e.Snapshot())
	}

	le := s.entities.Lock(id)
	return LockView{
		ID:        id,
		Device:    entity.NewDeviceInfo(lock),
		State:     le.State(),
		Available: le.Available(),
		Entities:  states,
	}, true
}

// handleHealth returns the bridge health as seen by the API.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"status":         "ok",
		"version":        s.version,
		"uptime_seconds": int64(time.Since(s.startTime).Seconds()),
		"ws_clients":     s.hub.ClientCount(),
	}

	dir := s.coordinator.Current()
	if dir != nil {
		resp["locks"] = len(dir.Locks)
		resp["last_refresh"] = dir.FetchedAt.UTC().Format(time.RFC3339)
	} else {
		resp["status"] = "starting"
	}
	if err := s.coordinator.LastError(); err != nil {
		resp["status"] = "degraded"
		resp["last_error"] = err.Error()
	}
	if s.mqtt != nil {
		resp["mqtt_connected"] = s.mqtt.IsConnected()
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleListLocks returns every lock in the current directory.
func (s *Server) handleListLocks(w http.ResponseWriter, _ *http.Request) {
	ids := s.coordinator.Current().IDs()
	views := make([]LockView, 0, len(ids))
	for _, id := range ids {
		if v, ok := s.lockView(id); ok {
			views = append(views, v)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"locks": views,
		"count": len(views),
	})
}

// handleGetLock returns one lock.
func (s *Server) handleGetLock(w http.ResponseWriter, r *http.Request) {
	view, ok := s.lockView(chi.URLParam(r, "id"))
	if !ok {
		writeNotFound(w, "lock not found")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleLock(w http.ResponseWriter, r *http.Request) {
	s.runCommand(w, r, cloud.ActionLock)
}

func (s *Server) handleUnlock(w http.ResponseWriter, r *http.Request) {
	s.runCommand(w, r, cloud.ActionUnlock)
}

// runCommand issues action and waits for the operation to leave pending.
// A settled operation is 200; an unresolved one is 202 since the lock may
// still act on it.
func (s *Server) runCommand(w http.ResponseWriter, r *http.Request, action string) {
	id := chi.URLParam(r, "id")
	if _, ok := s.coordinator.Current().Lock(id); !ok {
		writeNotFound(w, "lock not found")
		return
	}

	lock := s.entities.Lock(id)
	result, err := lock.Execute(r.Context(), action)
	if err != nil {
		s.logger.Warn("lock command failed", "lock_id", id, "action", action, "error", err)
		writeUpstreamError(w, err)
		return
	}

	status := http.StatusOK
	if result.Outcome == operation.Unresolved {
		status = http.StatusAccepted
	}
	writeJSON(w, status, CommandResult{
		LockID:      id,
		Action:      action,
		Outcome:     string(result.Outcome),
		OperationID: result.Operation.ID,
		Status:      result.Operation.Status,
		Attempts:    result.Attempts,
		State:       lock.State(),
	})
}

// handleListOperations returns the command history of one lock, newest first.
func (s *Server) handleListOperations(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "operation history is not configured")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	id := chi.URLParam(r, "id")
	entries, err := s.history.List(r.Context(), id, limit)
	if err != nil {
		s.logger.Error("listing operation history failed", "lock_id", id, "error", err)
		writeInternalError(w, "failed to list operations")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"lock_id":    id,
		"operations": entries,
		"count":      len(entries),
	})
}

// handleRefresh refreshes the lock directory now and returns the result.
// On failure the previous directory stays current.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	dir, err := s.coordinator.Refresh(r.Context())
	if err != nil {
		writeUpstreamError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"locks":      len(dir.Locks),
		"fetched_at": dir.FetchedAt.UTC().Format(time.RFC3339),
	})
}
