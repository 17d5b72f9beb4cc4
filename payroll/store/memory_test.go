package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/payroll/store"
)

var march = payroll.NewPeriod(2025, time.March)

func TestMemory_VersionContract(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()

	// First write must carry version 1
	rec := payroll.PayrollRecord{EmployeeID: "emp-1", Period: march, Version: 2}
	assert.ErrorIs(t, m.SavePayrollRecord(ctx, rec, nil), payroll.ErrVersionConflict)

	rec.Version = 1
	require.NoError(t, m.SavePayrollRecord(ctx, rec, nil))

	// A second writer based on version 0 loses
	assert.ErrorIs(t, m.SavePayrollRecord(ctx, rec, nil), payroll.ErrVersionConflict)

	rec.Version = 2
	require.NoError(t, m.SavePayrollRecord(ctx, rec, nil))

	got, err := m.LoadPayrollRecord(ctx, "emp-1", march)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
}

func TestMemory_ReturnsCopies(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	rec := payroll.PayrollRecord{
		EmployeeID: "emp-1",
		Period:     march,
		Version:    1,
		AuditLog:   []payroll.AuditLogEntry{{ID: "a-1", FieldName: "basic_salary"}},
	}
	require.NoError(t, m.SavePayrollRecord(ctx, rec, rec.AuditLog))

	got, err := m.LoadPayrollRecord(ctx, "emp-1", march)
	require.NoError(t, err)
	got.AuditLog[0].FieldName = "tampered"

	again, err := m.LoadPayrollRecord(ctx, "emp-1", march)
	require.NoError(t, err)
	assert.Equal(t, "basic_salary", again.AuditLog[0].FieldName)
}

func TestMemory_MissingRecordIsNil(t *testing.T) {
	got, err := store.NewMemory().LoadPayrollRecord(context.Background(), "nobody", march)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemory_Employees(t *testing.T) {
	m := store.NewMemory()
	m.AddEmployee(payroll.EmployeeProfile{ID: "b", Department: "ops"})
	m.AddEmployee(payroll.EmployeeProfile{ID: "a", Department: "sales"})
	m.AddEmployee(payroll.EmployeeProfile{ID: "c", Department: "ops"})
	ctx := context.Background()

	_, err := m.GetEmployee(ctx, "zzz")
	assert.ErrorIs(t, err, payroll.ErrEmployeeNotFound)

	all, err := m.ListEmployeesForPeriod(ctx, march, payroll.EmployeeFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "a", all[0].ID)

	ops, err := m.ListEmployeesForPeriod(ctx, march, payroll.EmployeeFilter{Department: "ops"})
	require.NoError(t, err)
	assert.Len(t, ops, 2)
}

func TestMemory_SalesByPeriodAndRange(t *testing.T) {
	m := store.NewMemory()
	day := func(mo time.Month, d int) time.Time { return time.Date(2025, mo, d, 9, 0, 0, 0, time.UTC) }
	m.AddSale(payroll.Sale{ID: "s-3", AgentID: "ag", SaleAmount: decimal.NewFromInt(3), Date: day(time.April, 1)})
	m.AddSale(payroll.Sale{ID: "s-1", AgentID: "ag", SaleAmount: decimal.NewFromInt(1), Date: day(time.March, 1)})
	m.AddSale(payroll.Sale{ID: "s-2", AgentID: "ag", SaleAmount: decimal.NewFromInt(2), Date: day(time.March, 31)})
	ctx := context.Background()

	inMarch, err := m.ListSalesForAgent(ctx, "ag", payroll.SalesForPeriod(march))
	require.NoError(t, err)
	require.Len(t, inMarch, 2)
	assert.Equal(t, "s-1", inMarch[0].ID)
	assert.Equal(t, "s-2", inMarch[1].ID)

	// Range wins over period
	q := payroll.SalesForPeriod(march)
	q.Range = &payroll.DateRange{Start: day(time.March, 15), End: day(time.April, 30)}
	ranged, err := m.ListSalesForAgent(ctx, "ag", q)
	require.NoError(t, err)
	require.Len(t, ranged, 2)
	assert.Equal(t, "s-2", ranged[0].ID)
	assert.Equal(t, "s-3", ranged[1].ID)
}

func TestMemory_HistoryFilter(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	april := payroll.NewPeriod(2025, time.April)
	require.NoError(t, m.SavePayrollHistorySnapshot(ctx, payroll.PayrollHistory{ID: "h1", EmployeeID: "e1", Period: march}))
	require.NoError(t, m.SavePayrollHistorySnapshot(ctx, payroll.PayrollHistory{ID: "h2", EmployeeID: "e1", Period: april}))
	require.NoError(t, m.SavePayrollHistorySnapshot(ctx, payroll.PayrollHistory{ID: "h3", EmployeeID: "e2", Period: march}))

	e1 := "e1"
	got, err := m.ListPayrollHistory(ctx, payroll.HistoryFilter{EmployeeID: &e1})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = m.ListPayrollHistory(ctx, payroll.HistoryFilter{Period: &march})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestTxMemory_RollbackOnError(t *testing.T) {
	tm := store.NewTxMemory()
	ctx := context.Background()
	boom := errors.New("boom")

	err := tm.WithTx(ctx, func(r payroll.Repository) error {
		require.NoError(t, r.SavePayrollRecord(ctx, payroll.PayrollRecord{EmployeeID: "emp-1", Period: march, Version: 1}, nil))
		require.NoError(t, r.SaveCommissionRecord(ctx, payroll.CommissionRecord{AgentID: "ag", Period: march}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	rec, err := tm.LoadPayrollRecord(ctx, "emp-1", march)
	require.NoError(t, err)
	assert.Nil(t, rec)
	cr, err := tm.LoadCommissionRecord(ctx, "ag", march)
	require.NoError(t, err)
	assert.Nil(t, cr)
}

func TestTxMemory_Commit(t *testing.T) {
	tm := store.NewTxMemory()
	ctx := context.Background()

	err := tm.WithTx(ctx, func(r payroll.Repository) error {
		return r.SavePayrollRecord(ctx, payroll.PayrollRecord{EmployeeID: "emp-1", Period: march, Version: 1}, nil)
	})
	require.NoError(t, err)

	rec, err := tm.LoadPayrollRecord(ctx, "emp-1", march)
	require.NoError(t, err)
	require.NotNil(t, rec)
}
