package payroll

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// AUDIT LOGGER
// =============================================================================

// trackedField reads one audited field as a string.
type trackedField struct {
	name  string
	value func(PayrollRecord) string
}

// trackedFields is the fixed diff order; entries are emitted in this order.
var trackedFields = []trackedField{
	{"basic_salary", func(r PayrollRecord) string { return r.BasicSalary.String() }},
	{"overtime_hours.day", func(r PayrollRecord) string { return r.OvertimeHours.Day.String() }},
	{"overtime_hours.night", func(r PayrollRecord) string { return r.OvertimeHours.Night.String() }},
	{"overtime_hours.rest_day", func(r PayrollRecord) string { return r.OvertimeHours.RestDay.String() }},
	{"overtime_hours.holiday", func(r PayrollRecord) string { return r.OvertimeHours.Holiday.String() }},
	{"late_days", func(r PayrollRecord) string { return strconv.Itoa(r.LateDays) }},
	{"absence_days", func(r PayrollRecord) string { return strconv.Itoa(r.AbsenceDays) }},
	{"hr_allowances", func(r PayrollRecord) string { return r.HRAllowances.String() }},
	{"finance_allowances", func(r PayrollRecord) string { return r.FinanceAllowances.String() }},
	{"finance_deductions", func(r PayrollRecord) string { return r.FinanceDeductions.String() }},
	{"number_of_sales", func(r PayrollRecord) string { return strconv.Itoa(r.NumberOfSales) }},
	{"overtime_pay", func(r PayrollRecord) string { return r.OvertimePay.String() }},
	{"sales_commission", func(r PayrollRecord) string { return r.SalesCommission.String() }},
	{"late_deduction", func(r PayrollRecord) string { return r.LateDeduction.String() }},
	{"absence_deduction", func(r PayrollRecord) string { return r.AbsenceDeduction.String() }},
	{"gross_salary", func(r PayrollRecord) string { return r.GrossSalary.String() }},
	{"income_tax", func(r PayrollRecord) string { return r.IncomeTax.String() }},
	{"pension", func(r PayrollRecord) string { return r.Pension.String() }},
	{"employer_pension", func(r PayrollRecord) string { return r.EmployerPension.String() }},
	{"net_salary", func(r PayrollRecord) string { return r.NetSalary.String() }},
	{"status", func(r PayrollRecord) string { return string(r.Status) }},
	{"hr_submitted_by", func(r PayrollRecord) string { return r.HRSubmittedBy }},
	{"finance_reviewed_by", func(r PayrollRecord) string { return r.FinanceReviewedBy }},
	{"approved_by", func(r PayrollRecord) string { return r.ApprovedBy }},
	{"locked_by", func(r PayrollRecord) string { return r.LockedBy }},
}

// TrackedFieldNames lists the audited fields in diff order.
func TrackedFieldNames() []string {
	names := make([]string, len(trackedFields))
	for i, f := range trackedFields {
		names[i] = f.name
	}
	return names
}

// AuditLogger diffs two versions of a record.
type AuditLogger struct {
	Now   func() time.Time
	NewID func() string
}

func NewAuditLogger(now func() time.Time) *AuditLogger {
	if now == nil {
		now = time.Now
	}
	return &AuditLogger{Now: now, NewID: func() string { return uuid.NewString() }}
}

// Record returns one entry per tracked field whose value differs between
// previous and next, stamped with actor.ID and a single timestamp. It never
// touches either record's AuditLog; the caller appends and persists.
//
// A brand-new record is diffed against the zero record, so every non-zero
// field produces an entry.
func (l *AuditLogger) Record(previous, next PayrollRecord, actor Actor) []AuditLogEntry {
	var entries []AuditLogEntry
	at := l.Now().UTC()
	for _, f := range trackedFields {
		oldValue, newValue := f.value(previous), f.value(next)
		if oldValue == newValue {
			continue
		}
		entries = append(entries, AuditLogEntry{
			ID:        l.NewID(),
			FieldName: f.name,
			OldValue:  oldValue,
			NewValue:  newValue,
			ChangedBy: actor.ID,
			ChangedAt: at,
		})
	}
	return entries
}
