/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Request bodies reuse the payroll input types directly (payroll.Inputs,
  payroll.HRInputs, payroll.FinanceInputs, payroll.CommissionSubmission),
  which already carry json tags and validation. This file holds the
  wrappers the engine does not define.

NAMING CONVENTION:
  - *Request: Request body types from clients
  - *Response: Response wrappers
*/
package api

import (
	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// BatchRequest lists the employees to recalculate; empty means everyone.
type BatchRequest struct {
	EmployeeIDs []string `json:"employee_ids,omitempty"`
}

// BatchResponse reports a batch run.
type BatchResponse struct {
	Period    string                  `json:"period"`
	Succeeded []payroll.PayrollRecord `json:"succeeded"`
	Failed    []payroll.BatchFailure  `json:"failed"`
}

// HistoryResponse wraps finalized snapshots.
type HistoryResponse struct {
	Snapshots []payroll.PayrollHistory `json:"snapshots"`
	Count     int                      `json:"count"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// Error codes carried in ErrorResponse.Code.
const (
	CodeValidation   = "validation_error"
	CodeUnauthorized = "unauthorized_transition"
	CodeInvalidState = "invalid_state"
	CodeConflict     = "concurrent_modification"
	CodeMissingActor = "missing_actor"
	CodeInternal     = "internal_error"
)
