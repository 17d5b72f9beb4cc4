/*
handlers.go - HTTP API handlers for the payroll engine

PURPOSE:
  Exposes the payroll engine via REST API. Handles HTTP request/response
  and JSON serialization, and delegates every decision to payroll.Engine.

ENDPOINTS:
  Records (period = YYYY-MM):
    GET    /api/payroll/{employeeID}/{period}                     Current record
    POST   /api/payroll/{employeeID}/{period}/calculate           Body: payroll.Inputs
    POST   /api/payroll/{employeeID}/{period}/hr-adjustment       Body: payroll.HRInputs
    POST   /api/payroll/{employeeID}/{period}/finance-adjustment  Body: payroll.FinanceInputs
    POST   /api/payroll/{employeeID}/{period}/commission          Body: payroll.CommissionSubmission
    POST   /api/payroll/{employeeID}/{period}/approve
    POST   /api/payroll/{employeeID}/{period}/lock
    POST   /api/payroll/{employeeID}/{period}/finalize

  Batch:
    POST   /api/batch/{period}             Body: BatchRequest (optional)

  History:
    GET    /api/history?employee_id=&period=

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors (details lists the offending fields)
  - 401: Missing actor headers
  - 403: Role not allowed for the transition
  - 409: Invalid state, or concurrent modification (retry after re-fetch)
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/warp/payroll-engine/payroll"
)

// Actor headers.
const (
	HeaderActorID   = "X-Actor-ID"
	HeaderActorRole = "X-Actor-Role"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine *payroll.Engine
	Logger *zap.Logger

	// Seeder enables /api/scenarios/load; nil in production.
	Seeder Seeder
}

// NewHandler creates a new handler around engine.
func NewHandler(engine *payroll.Engine, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{Engine: engine, Logger: logger}
}

// =============================================================================
// RECORD HANDLERS
// =============================================================================

// GetRecord returns the live record.
// GET /api/payroll/{employeeID}/{period}
func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	period, ok := periodParam(w, r)
	if !ok {
		return
	}
	rec, err := h.Engine.Record(r.Context(), chi.URLParam(r, "employeeID"), period)
	h.respond(w, r, http.StatusOK, rec, err)
}

// Calculate builds or recomputes a draft record from raw inputs. It runs as
// the system actor; submitted records answer 409.
// POST /api/payroll/{employeeID}/{period}/calculate
func (h *Handler) Calculate(w http.ResponseWriter, r *http.Request) {
	period, ok := periodParam(w, r)
	if !ok {
		return
	}
	var in payroll.Inputs
	if !decodeBody(w, r, &in, false) {
		return
	}
	rec, err := h.Engine.Calculate(r.Context(), chi.URLParam(r, "employeeID"), period, in)
	h.respond(w, r, http.StatusOK, rec, err)
}

// SubmitHRAdjustment records HR inputs.
// POST /api/payroll/{employeeID}/{period}/hr-adjustment
func (h *Handler) SubmitHRAdjustment(w http.ResponseWriter, r *http.Request) {
	period, actor, ok := periodAndActor(w, r)
	if !ok {
		return
	}
	var in payroll.HRInputs
	if !decodeBody(w, r, &in, true) {
		return
	}
	rec, err := h.Engine.SubmitHRAdjustment(r.Context(), chi.URLParam(r, "employeeID"), period, in, actor)
	h.respond(w, r, http.StatusOK, rec, err)
}

// SubmitFinanceAdjustment records finance allowances and deductions.
// POST /api/payroll/{employeeID}/{period}/finance-adjustment
func (h *Handler) SubmitFinanceAdjustment(w http.ResponseWriter, r *http.Request) {
	period, actor, ok := periodAndActor(w, r)
	if !ok {
		return
	}
	var in payroll.FinanceInputs
	if !decodeBody(w, r, &in, true) {
		return
	}
	rec, err := h.Engine.SubmitFinanceAdjustment(r.Context(), chi.URLParam(r, "employeeID"), period, in, actor)
	h.respond(w, r, http.StatusOK, rec, err)
}

// SubmitCommission merges commission. An empty body loads the agent's
// stored sales for the period.
// POST /api/payroll/{employeeID}/{period}/commission
func (h *Handler) SubmitCommission(w http.ResponseWriter, r *http.Request) {
	period, actor, ok := periodAndActor(w, r)
	if !ok {
		return
	}
	var sub payroll.CommissionSubmission
	if !decodeBody(w, r, &sub, true) {
		return
	}
	rec, err := h.Engine.SubmitCommission(r.Context(), chi.URLParam(r, "employeeID"), period, sub, actor)
	h.respond(w, r, http.StatusOK, rec, err)
}

// Approve moves a finance-reviewed record to approved.
// POST /api/payroll/{employeeID}/{period}/approve
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	period, actor, ok := periodAndActor(w, r)
	if !ok {
		return
	}
	rec, err := h.Engine.Approve(r.Context(), chi.URLParam(r, "employeeID"), period, actor)
	h.respond(w, r, http.StatusOK, rec, err)
}

// Lock freezes an approved record.
// POST /api/payroll/{employeeID}/{period}/lock
func (h *Handler) Lock(w http.ResponseWriter, r *http.Request) {
	period, actor, ok := periodAndActor(w, r)
	if !ok {
		return
	}
	rec, err := h.Engine.Lock(r.Context(), chi.URLParam(r, "employeeID"), period, actor)
	h.respond(w, r, http.StatusOK, rec, err)
}

// Finalize writes a history snapshot of a record that is not yet approved
// or locked. Status is unchanged.
// POST /api/payroll/{employeeID}/{period}/finalize
func (h *Handler) Finalize(w http.ResponseWriter, r *http.Request) {
	period, actor, ok := periodAndActor(w, r)
	if !ok {
		return
	}
	snap, err := h.Engine.Finalize(r.Context(), chi.URLParam(r, "employeeID"), period, actor)
	h.respond(w, r, http.StatusCreated, snap, err)
}

// =============================================================================
// BATCH AND HISTORY
// =============================================================================

// CalculateBatch recalculates many employees. Per-employee failures are in
// the response body; the status is 200 unless the run could not start.
// POST /api/batch/{period}
func (h *Handler) CalculateBatch(w http.ResponseWriter, r *http.Request) {
	period, ok := periodParam(w, r)
	if !ok {
		return
	}
	var req BatchRequest
	if !decodeBody(w, r, &req, true) {
		return
	}
	res, err := h.Engine.CalculateBatch(r.Context(), period, req.EmployeeIDs)
	if err != nil {
		h.respond(w, r, 0, nil, err)
		return
	}
	failed := res.Failed
	if failed == nil {
		failed = []payroll.BatchFailure{}
	}
	succeeded := res.Succeeded
	if succeeded == nil {
		succeeded = []payroll.PayrollRecord{}
	}
	writeJSON(w, http.StatusOK, BatchResponse{Period: period.String(), Succeeded: succeeded, Failed: failed})
}

// ListHistory returns finalized snapshots.
// GET /api/history?employee_id=emp-1&period=2025-03
func (h *Handler) ListHistory(w http.ResponseWriter, r *http.Request) {
	var filter payroll.HistoryFilter
	if id := r.URL.Query().Get("employee_id"); id != "" {
		filter.EmployeeID = &id
	}
	if raw := r.URL.Query().Get("period"); raw != "" {
		p, err := ParsePeriod(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, CodeValidation, "Invalid period (use YYYY-MM)", err)
			return
		}
		filter.Period = &p
	}

	snaps, err := h.Engine.History(r.Context(), filter)
	if err != nil {
		h.respond(w, r, 0, nil, err)
		return
	}
	if snaps == nil {
		snaps = []payroll.PayrollHistory{}
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Snapshots: snaps, Count: len(snaps)})
}

// =============================================================================
// HELPERS
// =============================================================================

// ParsePeriod parses YYYY-MM.
func ParsePeriod(s string) (payroll.Period, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return payroll.Period{}, err
	}
	return payroll.NewPeriod(t.Year(), t.Month()), nil
}

func periodParam(w http.ResponseWriter, r *http.Request) (payroll.Period, bool) {
	p, err := ParsePeriod(chi.URLParam(r, "period"))
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidation, "Invalid period (use YYYY-MM)", err)
		return payroll.Period{}, false
	}
	return p, true
}

func periodAndActor(w http.ResponseWriter, r *http.Request) (payroll.Period, payroll.Actor, bool) {
	period, ok := periodParam(w, r)
	if !ok {
		return payroll.Period{}, payroll.Actor{}, false
	}
	actor := payroll.Actor{
		ID:   r.Header.Get(HeaderActorID),
		Role: payroll.Role(r.Header.Get(HeaderActorRole)),
	}
	if actor.ID == "" || actor.Role == "" {
		writeError(w, http.StatusUnauthorized, CodeMissingActor, "X-Actor-ID and X-Actor-Role headers are required", nil)
		return payroll.Period{}, payroll.Actor{}, false
	}
	return period, actor, true
}

// decodeBody decodes JSON into dst. With optional set, an empty body leaves
// dst at its zero value.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any, optional bool) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || (optional && errors.Is(err, io.EOF)) {
		return true
	}
	writeError(w, http.StatusBadRequest, CodeValidation, "Invalid request body", err)
	return false
}

// respond writes body on success or maps err onto a status code.
func (h *Handler) respond(w http.ResponseWriter, r *http.Request, status int, body any, err error) {
	if err == nil {
		writeJSON(w, status, body)
		return
	}

	var verr *payroll.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, CodeValidation, "Validation failed", verr.Fields)
	case errors.Is(err, payroll.ErrUnauthorizedTransition):
		writeError(w, http.StatusForbidden, CodeUnauthorized, err.Error(), nil)
	case errors.Is(err, payroll.ErrConcurrentModification):
		writeError(w, http.StatusConflict, CodeConflict, err.Error(), nil)
	case errors.Is(err, payroll.ErrInvalidState):
		writeError(w, http.StatusConflict, CodeInvalidState, err.Error(), nil)
	default:
		h.Logger.Error("payroll request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, CodeInternal, "Internal error", nil)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	resp := ErrorResponse{Error: message, Code: code}
	switch d := details.(type) {
	case nil:
	case error:
		resp.Details = d.Error()
	default:
		resp.Details = d
	}
	writeJSON(w, status, resp)
}
