/*
Package payroll provides the payroll computation and approval engine.

PURPOSE:
  Turns an employee's basic salary, attendance, overtime, allowances,
  deductions and sales into a PayrollRecord, and walks that record through
  a role-gated approval lifecycle while keeping a field-level audit trail.

KEY CONCEPTS IN THIS FILE (types.go):
  - Period: one (month, year) pay period
  - Actor: explicit caller identity + role, passed to every mutation
  - Status: draft → hr_submitted → finance_reviewed → approved → locked
  - PayrollRecord: one per (employee, period); inputs, derived values, trail
  - CommissionRecord: per (agent, period) commission breakdown
  - PayrollHistory: immutable snapshot created by Finalize
  - AuditLogEntry: one tracked-field change

DESIGN PRINCIPLES:
  1. Precision: money and hours are decimal.Decimal, never float64
  2. Explicit identity: no ambient user/role lookups inside the engine
  3. Append-only audit: entries are created, never edited or removed
  4. Copy on read/write: stores hand out clones so snapshots stay frozen

SEE ALSO:
  - rates.go: configurable constants used by the calculators
  - aggregator.go: builds a record from inputs
  - engine.go: lifecycle operations
*/
package payroll

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PERIOD
// =============================================================================

// Period is one pay period.
type Period struct {
	Month time.Month `json:"month"`
	Year  int        `json:"year"`
}

func NewPeriod(year int, month time.Month) Period {
	return Period{Month: month, Year: year}
}

// Validate reports a malformed period as a ValidationError.
func (p Period) Validate() error {
	var fields []FieldError
	if p.Month < time.January || p.Month > time.December {
		fields = append(fields, FieldError{Field: "period.month", Message: "must be between 1 and 12"})
	}
	if p.Year < 1970 || p.Year > 9999 {
		fields = append(fields, FieldError{Field: "period.year", Message: "must be between 1970 and 9999"})
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// Start returns the first instant of the period (UTC).
func (p Period) Start() time.Time {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
}

// End returns the last instant of the period (UTC).
func (p Period) End() time.Time {
	return p.Start().AddDate(0, 1, 0).Add(-time.Nanosecond)
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// =============================================================================
// ACTORS AND ROLES
// =============================================================================

type Role string

const (
	RoleHR      Role = "hr"
	RoleFinance Role = "finance"
	RoleAdmin   Role = "admin"
	RoleHRAdmin Role = "hr_admin"
	RoleSystem  Role = "system"
)

// Actor identifies who performs an operation. ID references the external
// identity store; the engine never embeds user data.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// SystemActor is recorded as changedBy for actor-less recomputation.
var SystemActor = Actor{ID: "system", Role: RoleSystem}

// =============================================================================
// STATUS
// =============================================================================

type Status string

const (
	StatusDraft           Status = "draft"
	StatusHRSubmitted     Status = "hr_submitted"
	StatusFinanceReviewed Status = "finance_reviewed"
	StatusApproved        Status = "approved"
	StatusLocked          Status = "locked"
)

var statusRank = map[Status]int{
	StatusDraft:           0,
	StatusHRSubmitted:     1,
	StatusFinanceReviewed: 2,
	StatusApproved:        3,
	StatusLocked:          4,
}

// Rank orders statuses; unknown statuses rank -1.
func (s Status) Rank() int {
	if r, ok := statusRank[s]; ok {
		return r
	}
	return -1
}

// Frozen reports whether business values may no longer change.
func (s Status) Frozen() bool {
	return s == StatusApproved || s == StatusLocked
}

// =============================================================================
// INPUT TYPES
// =============================================================================

// OvertimeHours holds hours worked per overtime category.
type OvertimeHours struct {
	Day     decimal.Decimal `json:"day" validate:"gte=0"`
	Night   decimal.Decimal `json:"night" validate:"gte=0"`
	RestDay decimal.Decimal `json:"rest_day" validate:"gte=0"`
	Holiday decimal.Decimal `json:"holiday" validate:"gte=0"`
}

// Sale is a single sale attributed to an agent.
type Sale struct {
	ID           string          `json:"id" validate:"required"`
	AgentID      string          `json:"agent_id,omitempty"`
	CustomerName string          `json:"customer_name,omitempty"`
	SaleAmount   decimal.Decimal `json:"sale_amount" validate:"gte=0"`
	Date         time.Time       `json:"date"`
}

// EmployeeProfile is the slice of employee data the engine needs.
type EmployeeProfile struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Department  string          `json:"department"`
	BasicSalary decimal.Decimal `json:"basic_salary"`
	// AgentID is set for sales agents; commission is computed from their sales.
	AgentID string `json:"agent_id,omitempty"`
}

func (p EmployeeProfile) IsAgent() bool { return p.AgentID != "" }

// =============================================================================
// PAYROLL RECORD
// =============================================================================

// PayrollRecord is the payroll result for one employee in one period.
//
// INVARIANTS (after every successful mutation):
//   - GrossSalary == BasicSalary + OvertimePay + HRAllowances + FinanceAllowances + SalesCommission
//   - NetSalary == GrossSalary - (IncomeTax + Pension + LateDeduction + AbsenceDeduction + FinanceDeductions)
//   - Status only moves forward; a locked record is never mutated
//   - AuditLog only grows
type PayrollRecord struct {
	EmployeeID string `json:"employee_id"`
	Period     Period `json:"period"`

	// Inputs
	BasicSalary       decimal.Decimal `json:"basic_salary"`
	OvertimeHours     OvertimeHours   `json:"overtime_hours"`
	LateDays          int             `json:"late_days"`
	AbsenceDays       int             `json:"absence_days"`
	HRAllowances      decimal.Decimal `json:"hr_allowances"`
	FinanceAllowances decimal.Decimal `json:"finance_allowances"`
	FinanceDeductions decimal.Decimal `json:"finance_deductions"`
	NumberOfSales     int             `json:"number_of_sales"`

	// Derived
	OvertimePay      decimal.Decimal `json:"overtime_pay"`
	IncomeTax        decimal.Decimal `json:"income_tax"`
	Pension          decimal.Decimal `json:"pension"`
	EmployerPension  decimal.Decimal `json:"employer_pension"`
	SalesCommission  decimal.Decimal `json:"sales_commission"`
	GrossSalary      decimal.Decimal `json:"gross_salary"`
	NetSalary        decimal.Decimal `json:"net_salary"`
	LateDeduction    decimal.Decimal `json:"late_deduction"`
	AbsenceDeduction decimal.Decimal `json:"absence_deduction"`

	// Lifecycle
	Status            Status `json:"status"`
	HRSubmittedBy     string `json:"hr_submitted_by,omitempty"`
	FinanceReviewedBy string `json:"finance_reviewed_by,omitempty"`
	ApprovedBy        string `json:"approved_by,omitempty"`
	LockedBy          string `json:"locked_by,omitempty"`

	AuditLog []AuditLogEntry `json:"audit_log"`

	// Version is bumped on every save; see Repository.SavePayrollRecord.
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy.
func (r PayrollRecord) Clone() PayrollRecord {
	out := r
	if r.AuditLog != nil {
		out.AuditLog = make([]AuditLogEntry, len(r.AuditLog))
		copy(out.AuditLog, r.AuditLog)
	}
	return out
}

// Inputs extracts the caller-supplied values the record was built from.
func (r PayrollRecord) Inputs() Inputs {
	basic := r.BasicSalary
	return Inputs{
		BasicSalary:       &basic,
		OvertimeHours:     r.OvertimeHours,
		LateDays:          r.LateDays,
		AbsenceDays:       r.AbsenceDays,
		HRAllowances:      r.HRAllowances,
		FinanceAllowances: r.FinanceAllowances,
		FinanceDeductions: r.FinanceDeductions,
		Commission: &CommissionTotals{
			NetCommission: r.SalesCommission,
			NumberOfSales: r.NumberOfSales,
		},
	}
}

// =============================================================================
// COMMISSION RECORD
// =============================================================================

// CommissionDetail is the per-sale breakdown.
type CommissionDetail struct {
	SaleID          string          `json:"sale_id"`
	SaleAmount      decimal.Decimal `json:"sale_amount"`
	GrossCommission decimal.Decimal `json:"gross_commission"`
	CommissionTax   decimal.Decimal `json:"commission_tax"`
	NetCommission   decimal.Decimal `json:"net_commission"`
	Date            time.Time       `json:"date"`
}

// CommissionTotals are the aggregate commission figures for a period.
type CommissionTotals struct {
	GrossCommission decimal.Decimal `json:"gross_commission"`
	CommissionTax   decimal.Decimal `json:"commission_tax"`
	NetCommission   decimal.Decimal `json:"net_commission" validate:"gte=0"`
	NumberOfSales   int             `json:"number_of_sales" validate:"gte=0"`
}

// CommissionRecord is owned per (agent, period), independently of the
// payroll record it is merged into.
// CommissionSource tells where a commission record's figures came from.
type CommissionSource string

const (
	// CommissionFromStoredSales is computed from the agent's sales in the
	// repository; batch runs refresh it.
	CommissionFromStoredSales CommissionSource = "stored_sales"
	// CommissionFromSubmittedSales is computed from sales Finance supplied.
	CommissionFromSubmittedSales CommissionSource = "submitted_sales"
	// CommissionFromManualTotals holds totals Finance entered directly.
	CommissionFromManualTotals CommissionSource = "manual"
)

type CommissionRecord struct {
	AgentID           string             `json:"agent_id"`
	EmployeeID        string             `json:"employee_id"`
	Period            Period             `json:"period"`
	CommissionDetails []CommissionDetail `json:"commission_details"`
	Totals            CommissionTotals   `json:"totals"`
	Manual            bool               `json:"manual"`
	Source            CommissionSource   `json:"source"`
	UpdatedBy         string             `json:"updated_by,omitempty"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

// Refreshable reports whether a batch run may recompute the record from
// stored sales.
func (c CommissionRecord) Refreshable() bool {
	return c.Source == CommissionFromStoredSales
}

func (c CommissionRecord) Clone() CommissionRecord {
	out := c
	if c.CommissionDetails != nil {
		out.CommissionDetails = make([]CommissionDetail, len(c.CommissionDetails))
		copy(out.CommissionDetails, c.CommissionDetails)
	}
	return out
}

// =============================================================================
// HISTORY SNAPSHOT
// =============================================================================

// PayrollHistory is the immutable snapshot written by Finalize.
type PayrollHistory struct {
	ID          string            `json:"id"`
	EmployeeID  string            `json:"employee_id"`
	Period      Period            `json:"period"`
	Record      PayrollRecord     `json:"record"`
	Commission  *CommissionRecord `json:"commission,omitempty"`
	FinalizedBy string            `json:"finalized_by"`
	FinalizedAt time.Time         `json:"finalized_at"`
}

func (h PayrollHistory) Clone() PayrollHistory {
	out := h
	out.Record = h.Record.Clone()
	if h.Commission != nil {
		c := h.Commission.Clone()
		out.Commission = &c
	}
	return out
}

// HistoryFilter selects snapshots; nil fields match everything.
type HistoryFilter struct {
	EmployeeID *string
	Period     *Period
}

func (f HistoryFilter) Matches(h PayrollHistory) bool {
	if f.EmployeeID != nil && *f.EmployeeID != h.EmployeeID {
		return false
	}
	if f.Period != nil && *f.Period != h.Period {
		return false
	}
	return true
}

// =============================================================================
// AUDIT LOG ENTRY
// =============================================================================

// AuditLogEntry records one tracked-field change. Immutable once created.
type AuditLogEntry struct {
	ID        string    `json:"id"`
	FieldName string    `json:"field_name"`
	OldValue  string    `json:"old_value"`
	NewValue  string    `json:"new_value"`
	ChangedBy string    `json:"changed_by"`
	ChangedAt time.Time `json:"changed_at"`
}
