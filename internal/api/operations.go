package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/valvectl/internal/history"
)

// maxListLimit caps the ?limit query parameter.
const maxListLimit = 500

// handleListOperations returns recent operations, newest first.
func (s *Server) handleListOperations(w http.ResponseWriter, r *http.Request) {
	if s.repo == nil {
		writeServiceUnavailable(w, "history is not configured")
		return
	}

	limit := history.DefaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = min(n, maxListLimit)
	}

	ops, err := s.repo.ListOperations(r.Context(), limit)
	if err != nil {
		s.logger.Error("listing operations failed", "error", err)
		writeInternalError(w, "failed to list operations")
		return
	}
	if ops == nil {
		ops = []history.Operation{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"operations": ops,
		"count":      len(ops),
	})
}

// handleGetOperation returns a single operation.
func (s *Server) handleGetOperation(w http.ResponseWriter, r *http.Request) {
	if s.repo == nil {
		writeServiceUnavailable(w, "history is not configured")
		return
	}

	id := chi.URLParam(r, "id")
	op, err := s.repo.GetOperation(r.Context(), id)
	if err != nil {
		if errors.Is(err, history.ErrOperationNotFound) {
			writeNotFound(w, "operation not found")
			return
		}
		s.logger.Error("getting operation failed", "operation_id", id, "error", err)
		writeInternalError(w, "failed to get operation")
		return
	}

	writeJSON(w, http.StatusOK, op)
}

// handleOperationLogs returns the recorded events of an operation.
// ?after=N returns only events with seq > N, for polling clients.
func (s *Server) handleOperationLogs(w http.ResponseWriter, r *http.Request) {
	if s.repo == nil {
		writeServiceUnavailable(w, "history is not configured")
		return
	}

	after := 0
	if raw := r.URL.Query().Get("after"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeBadRequest(w, "after must be a non-negative integer")
			return
		}
		after = n
	}

	id := chi.URLParam(r, "id")
	op, err := s.repo.GetOperation(r.Context(), id)
	if err != nil {
		if errors.Is(err, history.ErrOperationNotFound) {
			writeNotFound(w, "operation not found")
			return
		}
		s.logger.Error("getting operation failed", "operation_id", id, "error", err)
		writeInternalError(w, "failed to get operation")
		return
	}

	events, err := s.repo.ListEvents(r.Context(), id, after)
	if err != nil {
		s.logger.Error("listing events failed", "operation_id", id, "error", err)
		writeInternalError(w, "failed to list events")
		return
	}
	if events == nil {
		events = []history.EventRecord{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"operation_id": id,
		"status":       op.Status,
		"events":       events,
		"count":        len(events),
	})
}
