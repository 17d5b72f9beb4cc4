package payroll_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/payroll"
)

func TestAuditLogger_OneEntryPerChangedField(t *testing.T) {
	logger := payroll.NewAuditLogger(func() time.Time { return fixedNow })

	// GIVEN
	prev := payroll.PayrollRecord{
		BasicSalary:  dec("3000"),
		HRAllowances: dec("100"),
		GrossSalary:  dec("3100"),
		Status:       payroll.StatusHRSubmitted,
	}
	next := prev.Clone()
	next.HRAllowances = dec("250")
	next.GrossSalary = dec("3250")
	next.Status = payroll.StatusFinanceReviewed

	// WHEN
	entries := logger.Record(prev, next, financeActor)

	// THEN: ordered by the tracked field list
	require.Len(t, entries, 3)
	assert.Equal(t, "hr_allowances", entries[0].FieldName)
	assert.Equal(t, "100", entries[0].OldValue)
	assert.Equal(t, "250", entries[0].NewValue)
	assert.Equal(t, "gross_salary", entries[1].FieldName)
	assert.Equal(t, "status", entries[2].FieldName)
	assert.Equal(t, "hr_submitted", entries[2].OldValue)
	assert.Equal(t, "finance_reviewed", entries[2].NewValue)

	for _, e := range entries {
		assert.Equal(t, "u-fin", e.ChangedBy)
		assert.Equal(t, fixedNow, e.ChangedAt)
		assert.NotEmpty(t, e.ID)
	}
	assert.NotEqual(t, entries[0].ID, entries[1].ID)
}

func TestAuditLogger_NoChangeNoEntries(t *testing.T) {
	logger := payroll.NewAuditLogger(nil)
	rec := payroll.PayrollRecord{BasicSalary: dec("3000"), Status: payroll.StatusDraft}

	assert.Empty(t, logger.Record(rec, rec.Clone(), hrActor))
}

func TestAuditLogger_EqualDecimalsAreNotChanges(t *testing.T) {
	logger := payroll.NewAuditLogger(nil)
	prev := payroll.PayrollRecord{BasicSalary: dec("3000")}
	next := payroll.PayrollRecord{BasicSalary: dec("3000.00")}

	assert.Empty(t, logger.Record(prev, next, hrActor))
}

func TestAuditLogger_DoesNotTouchRecords(t *testing.T) {
	logger := payroll.NewAuditLogger(nil)
	prev := payroll.PayrollRecord{}
	next := payroll.PayrollRecord{BasicSalary: dec("1")}

	logger.Record(prev, next, hrActor)

	assert.Nil(t, prev.AuditLog)
	assert.Nil(t, next.AuditLog)
}

func TestTrackedFieldNames(t *testing.T) {
	names := payroll.TrackedFieldNames()
	assert.Contains(t, names, "net_salary")
	assert.Contains(t, names, "approved_by")
	assert.Equal(t, "basic_salary", names[0])
}
