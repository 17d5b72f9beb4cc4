package postgres_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/store/postgres"
)

var march = payroll.NewPeriod(2025, time.March)

// newTestStore connects to PAYROLL_TEST_POSTGRES_DSN and starts from empty tables.
func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := os.Getenv("PAYROLL_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("PAYROLL_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	store, err := postgres.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Truncate(ctx))

	require.NoError(t, store.SaveEmployee(ctx, payroll.EmployeeProfile{
		ID: "emp-1", Name: "Abebe", Department: "ops", BasicSalary: decimal.NewFromInt(3000),
	}))
	require.NoError(t, store.SaveEmployee(ctx, payroll.EmployeeProfile{
		ID: "agent-emp", Name: "Dawit", Department: "sales", BasicSalary: decimal.NewFromInt(2000), AgentID: "agent-7",
	}))
	return store
}

func TestStore_Employees(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	emp, err := store.GetEmployee(ctx, "agent-emp")
	require.NoError(t, err)
	assert.Equal(t, "agent-7", emp.AgentID)
	assert.True(t, decimal.NewFromInt(2000).Equal(emp.BasicSalary))

	_, err = store.GetEmployee(ctx, "ghost")
	assert.ErrorIs(t, err, payroll.ErrEmployeeNotFound)

	all, err := store.ListEmployeesForPeriod(ctx, march, payroll.EmployeeFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestStore_SalesQueries(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	at := func(m time.Month, d int) time.Time { return time.Date(2025, m, d, 15, 30, 0, 0, time.UTC) }

	require.NoError(t, store.SaveSale(ctx, payroll.Sale{ID: "s-1", AgentID: "agent-7", SaleAmount: decimal.NewFromInt(100), Date: at(time.March, 1)}))
	require.NoError(t, store.SaveSale(ctx, payroll.Sale{ID: "s-2", AgentID: "agent-7", SaleAmount: decimal.RequireFromString("200.50"), Date: at(time.March, 31)}))
	require.NoError(t, store.SaveSale(ctx, payroll.Sale{ID: "s-3", AgentID: "agent-7", SaleAmount: decimal.NewFromInt(300), Date: at(time.April, 2)}))

	got, err := store.ListSalesForAgent(ctx, "agent-7", payroll.SalesForPeriod(march))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, decimal.RequireFromString("200.5").Equal(got[1].SaleAmount))
}

func TestStore_PayrollRecordVersioning(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 3, 31, 12, 0, 0, 0, time.UTC)

	rec := payroll.PayrollRecord{EmployeeID: "emp-1", Period: march, Status: payroll.StatusDraft, Version: 1, UpdatedAt: now}
	entries := []payroll.AuditLogEntry{
		{ID: "a-1", FieldName: "basic_salary", OldValue: "0", NewValue: "3000", ChangedBy: "system", ChangedAt: now},
	}
	require.NoError(t, store.SavePayrollRecord(ctx, rec, entries))
	assert.ErrorIs(t, store.SavePayrollRecord(ctx, rec, nil), payroll.ErrVersionConflict)

	next := rec
	next.Version = 2
	next.Status = payroll.StatusHRSubmitted
	require.NoError(t, store.SavePayrollRecord(ctx, next, nil))
	assert.ErrorIs(t, store.SavePayrollRecord(ctx, next, nil), payroll.ErrVersionConflict)

	got, err := store.LoadPayrollRecord(ctx, "emp-1", march)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(2), got.Version)
	assert.Equal(t, payroll.StatusHRSubmitted, got.Status)
	require.Len(t, got.AuditLog, 1)
	assert.True(t, now.Equal(got.AuditLog[0].ChangedAt))
}

func TestStore_WithTxRollsBack(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.WithTx(ctx, func(r payroll.Repository) error {
		require.NoError(t, r.SavePayrollRecord(ctx, payroll.PayrollRecord{EmployeeID: "emp-1", Period: march, Status: payroll.StatusDraft, Version: 1}, nil))
		require.NoError(t, r.SaveCommissionRecord(ctx, payroll.CommissionRecord{AgentID: "agent-7", Period: march}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	rec, err := store.LoadPayrollRecord(ctx, "emp-1", march)
	require.NoError(t, err)
	assert.Nil(t, rec)
	cr, err := store.LoadCommissionRecord(ctx, "agent-7", march)
	require.NoError(t, err)
	assert.Nil(t, cr)
}

func TestStore_DrivesEngine(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	rates := payroll.DefaultRates()
	rates.Commission = payroll.CommissionRates{Rate: decimal.RequireFromString("0.10"), TaxRate: decimal.RequireFromString("0.05")}
	engine, err := payroll.NewEngine(store, rates)
	require.NoError(t, err)

	hr := payroll.Actor{ID: "u-hr", Role: payroll.RoleHR}
	fin := payroll.Actor{ID: "u-fin", Role: payroll.RoleFinance}
	admin := payroll.Actor{ID: "u-admin", Role: payroll.RoleAdmin}

	_, err = engine.SubmitHRAdjustment(ctx, "emp-1", march, payroll.HRInputs{}, hr)
	require.NoError(t, err)
	_, err = engine.SubmitFinanceAdjustment(ctx, "emp-1", march, payroll.FinanceInputs{}, fin)
	require.NoError(t, err)
	_, err = engine.Approve(ctx, "emp-1", march, admin)
	require.NoError(t, err)
	_, err = engine.Lock(ctx, "emp-1", march, admin)
	require.NoError(t, err)
	snap, err := engine.Finalize(ctx, "emp-1", march, fin)
	require.NoError(t, err)

	id := "emp-1"
	history, err := store.ListPayrollHistory(ctx, payroll.HistoryFilter{EmployeeID: &id})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, snap.ID, history[0].ID)
	assert.Equal(t, payroll.StatusLocked, history[0].Record.Status)
}
