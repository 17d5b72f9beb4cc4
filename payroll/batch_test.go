package payroll_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/payroll"
)

func TestBatch_FailuresAreIsolated(t *testing.T) {
	repo := newTestStore()
	obs := &recordingObserver{}
	e := newTestEngine(t, repo, payroll.WithObserver(obs), payroll.WithBatchConcurrency(2))
	ctx := context.Background()

	// GIVEN: emp-1 is locked, emp-2 has no record, ghost does not exist
	walkTo(t, e, payroll.StatusLocked)

	// WHEN
	res, err := e.CalculateBatch(ctx, march2025, []string{"emp-2", "emp-1", "ghost"})
	require.NoError(t, err)

	// THEN
	require.Len(t, res.Succeeded, 1)
	assert.Equal(t, "emp-2", res.Succeeded[0].EmployeeID)
	assert.Equal(t, payroll.StatusDraft, res.Succeeded[0].Status)
	assertDecimal(t, "5000", res.Succeeded[0].BasicSalary)
	assertInvariants(t, res.Succeeded[0])

	require.Len(t, res.Failed, 2)
	assert.Equal(t, "emp-1", res.Failed[0].EmployeeID)
	assert.ErrorIs(t, res.Failed[0].Err, payroll.ErrInvalidState)
	assert.Equal(t, "ghost", res.Failed[1].EmployeeID)
	assert.True(t, payroll.IsValidationError(res.Failed[1].Err))
	assert.NotEmpty(t, res.Failed[1].Reason)

	assert.Equal(t, 1, obs.batches)
}

func TestBatch_AllEmployeesWhenNoneListed(t *testing.T) {
	repo := newTestStore()
	repo.AddSale(payroll.Sale{ID: "s-1", AgentID: "agent-7", SaleAmount: dec("1000"), Date: time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)})
	e := newTestEngine(t, repo)

	res, err := e.CalculateBatch(context.Background(), march2025, nil)
	require.NoError(t, err)

	require.Len(t, res.Succeeded, 3)
	assert.Empty(t, res.Failed)

	// Listed order is by id
	assert.Equal(t, "agent-emp", res.Succeeded[0].EmployeeID)
	assert.Equal(t, 1, res.Succeeded[0].NumberOfSales)
	assertDecimal(t, "95", res.Succeeded[0].SalesCommission)
	for _, r := range res.Succeeded {
		assertInvariants(t, r)
	}
}

func TestBatch_RecomputesFromStoredInputs(t *testing.T) {
	repo := newTestStore()
	e := newTestEngine(t, repo)
	ctx := context.Background()

	before := walkTo(t, e, payroll.StatusFinanceReviewed)

	res, err := e.CalculateBatch(ctx, march2025, []string{"emp-1"})
	require.NoError(t, err)
	require.Len(t, res.Succeeded, 1)

	after := res.Succeeded[0]
	assert.Equal(t, payroll.StatusFinanceReviewed, after.Status)
	assert.True(t, before.NetSalary.Equal(after.NetSalary))
	assert.True(t, before.HRAllowances.Equal(after.HRAllowances))
	assert.Equal(t, before.Version+1, after.Version)
	assert.Len(t, after.AuditLog, len(before.AuditLog), "nothing changed so nothing is logged")
}

func TestBatch_KeepsManualCommission(t *testing.T) {
	repo := newTestStore()
	repo.AddSale(payroll.Sale{ID: "s-1", AgentID: "agent-7", SaleAmount: dec("1000"), Date: time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)})
	e := newTestEngine(t, repo)
	ctx := context.Background()

	_, err := e.SubmitHRAdjustment(ctx, "agent-emp", march2025, payroll.HRInputs{}, hrActor)
	require.NoError(t, err)
	_, err = e.SubmitCommission(ctx, "agent-emp", march2025, payroll.CommissionSubmission{
		Manual: &payroll.CommissionTotals{NetCommission: dec("42"), NumberOfSales: 1},
	}, financeActor)
	require.NoError(t, err)

	res, err := e.CalculateBatch(ctx, march2025, []string{"agent-emp"})
	require.NoError(t, err)
	require.Len(t, res.Succeeded, 1)
	assertDecimal(t, "42", res.Succeeded[0].SalesCommission)
}

func TestBatch_KeepsSubmittedSales(t *testing.T) {
	repo := newTestStore()
	repo.AddSale(payroll.Sale{ID: "s-1", AgentID: "agent-7", SaleAmount: dec("1000"), Date: time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)})
	e := newTestEngine(t, repo)
	ctx := context.Background()

	// GIVEN: Finance reviewed commission on sales it supplied
	_, err := e.SubmitHRAdjustment(ctx, "agent-emp", march2025, payroll.HRInputs{}, hrActor)
	require.NoError(t, err)
	reviewed, err := e.SubmitCommission(ctx, "agent-emp", march2025, payroll.CommissionSubmission{
		Sales: []payroll.Sale{{ID: "x-1", AgentID: "agent-7", SaleAmount: dec("50000"), Date: time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC)}},
	}, financeActor)
	require.NoError(t, err)
	assertDecimal(t, "4750", reviewed.SalesCommission)

	// WHEN
	res, err := e.CalculateBatch(ctx, march2025, []string{"agent-emp"})

	// THEN: the stored sale does not replace the reviewed figures
	require.NoError(t, err)
	require.Len(t, res.Succeeded, 1)
	assertDecimal(t, "4750", res.Succeeded[0].SalesCommission)
	assert.Len(t, res.Succeeded[0].AuditLog, len(reviewed.AuditLog))

	cr, err := repo.LoadCommissionRecord(ctx, "agent-7", march2025)
	require.NoError(t, err)
	require.NotNil(t, cr)
	assert.Equal(t, payroll.CommissionFromSubmittedSales, cr.Source)
	require.Len(t, cr.CommissionDetails, 1)
	assert.Equal(t, "x-1", cr.CommissionDetails[0].SaleID)
}

func TestBatch_RefreshesStoredSales(t *testing.T) {
	repo := newTestStore()
	repo.AddSale(payroll.Sale{ID: "s-1", AgentID: "agent-7", SaleAmount: dec("1000"), Date: time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)})
	e := newTestEngine(t, repo)
	ctx := context.Background()

	_, err := e.SubmitHRAdjustment(ctx, "agent-emp", march2025, payroll.HRInputs{}, hrActor)
	require.NoError(t, err)
	rec, err := e.SubmitCommission(ctx, "agent-emp", march2025, payroll.CommissionSubmission{}, financeActor)
	require.NoError(t, err)
	assertDecimal(t, "95", rec.SalesCommission)

	// A sale recorded after review is picked up by the next batch
	repo.AddSale(payroll.Sale{ID: "s-2", AgentID: "agent-7", SaleAmount: dec("2000"), Date: time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC)})
	res, err := e.CalculateBatch(ctx, march2025, []string{"agent-emp"})
	require.NoError(t, err)
	require.Len(t, res.Succeeded, 1)
	assertDecimal(t, "285", res.Succeeded[0].SalesCommission)
}

func TestBatch_MalformedPeriod(t *testing.T) {
	e := newTestEngine(t, newTestStore())

	_, err := e.CalculateBatch(context.Background(), payroll.Period{Month: 14, Year: 2025}, nil)
	assert.True(t, payroll.IsValidationError(err))
}
