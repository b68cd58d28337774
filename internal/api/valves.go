package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/nerrad567/valvectl/internal/history"
	"github.com/nerrad567/valvectl/internal/operation"
	"github.com/nerrad567/valvectl/internal/relay"
)

// stopTimeout bounds how long POST /valves/stop waits for teardown.
const stopTimeout = 30 * time.Second

// operateResponse is the response body for POST /valves/operate.
type operateResponse struct {
	OperationID string         `json:"operation_id"`
	Status      history.Status `json:"status"`
	Stream      string         `json:"stream"`
}

// resultResponse describes a finished operation.
type resultResponse struct {
	OperationID string       `json:"operation_id"`
	Report      relay.Report `json:"report"`
	Error       string       `json:"error,omitempty"`
}

// handleOperate validates a list of pin records and starts an operation.
//
// The body is the same JSON list the CLI accepts:
//
//	[{"pin": 17, "state": true, "duration": 5, "order": 1}]
func (s *Server) handleOperate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "request body too large")
			return
		}
		writeBadRequest(w, "failed to read request body")
		return
	}

	records, err := relay.ParseRecords(body)
	if err != nil {
		writeValidationError(w, err.Error())
		return
	}
	specs, err := relay.Validate(records, s.defaultDuration)
	if err != nil {
		writeValidationError(w, err.Error())
		return
	}

	id, err := s.manager.Start(specs, history.SourceAPI)
	if err != nil {
		s.writeStartError(w, err)
		return
	}

	subject := ""
	if claims := claimsFromContext(r.Context()); claims != nil {
		subject = claims.Subject
	}
	s.logger.Info("operation accepted", "operation_id", id, "subject", subject, "channels", len(specs))

	writeJSON(w, http.StatusAccepted, operateResponse{
		OperationID: id,
		Status:      history.StatusRunning,
		Stream:      "/api/v1/operations/" + id + "/stream",
	})
}

func (s *Server) writeStartError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, relay.ErrInvalidPlan):
		writeValidationError(w, err.Error())
	case errors.Is(err, operation.ErrBusy):
		writeConflict(w, err.Error())
	case errors.Is(err, operation.ErrShuttingDown):
		writeServiceUnavailable(w, "server is shutting down")
	case errors.Is(err, operation.ErrDriverSetup):
		s.logger.Error("driver setup failed", "error", err)
		writeInternalError(w, "failed to prepare hardware")
	default:
		s.logger.Error("starting operation failed", "error", err)
		writeInternalError(w, "failed to start operation")
	}
}

// handleStop stops the active operation and waits for its teardown.
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	// Teardown continues even if the caller goes away.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), stopTimeout)
	defer cancel()

	result, err := s.manager.Stop(ctx)
	if err != nil {
		switch {
		case errors.Is(err, operation.ErrNoActiveOperation):
			writeNotFound(w, "no active operation")
		case errors.Is(err, context.DeadlineExceeded):
			writeError(w, http.StatusGatewayTimeout, ErrCodeInternal, "operation did not stop in time")
		default:
			writeInternalError(w, "failed to stop operation")
		}
		return
	}

	writeJSON(w, http.StatusOK, newResultResponse(result))
}

func newResultResponse(result operation.Result) resultResponse {
	resp := resultResponse{
		OperationID: result.OperationID,
		Report:      result.Report,
	}
	if result.Err != nil {
		resp.Error = result.Err.Error()
	}
	return resp
}
