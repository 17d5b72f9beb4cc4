package payroll_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/payroll/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var (
	march2025 = payroll.NewPeriod(2025, time.March)
	fixedNow  = time.Date(2025, time.March, 31, 12, 0, 0, 0, time.UTC)

	hrActor      = payroll.Actor{ID: "u-hr", Role: payroll.RoleHR}
	hrAdminActor = payroll.Actor{ID: "u-hradmin", Role: payroll.RoleHRAdmin}
	financeActor = payroll.Actor{ID: "u-fin", Role: payroll.RoleFinance}
	adminActor   = payroll.Actor{ID: "u-admin", Role: payroll.RoleAdmin}
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

// testRates uses the 10% / 5% commission pair.
func testRates() payroll.Rates {
	r := payroll.DefaultRates()
	r.Commission = payroll.CommissionRates{Rate: dec("0.10"), TaxRate: dec("0.05")}
	return r
}

func newTestStore() *store.TxMemory {
	mem := store.NewTxMemory()
	mem.AddEmployee(payroll.EmployeeProfile{ID: "emp-1", Name: "Abebe", Department: "ops", BasicSalary: dec("3000")})
	mem.AddEmployee(payroll.EmployeeProfile{ID: "emp-2", Name: "Sara", Department: "ops", BasicSalary: dec("5000")})
	mem.AddEmployee(payroll.EmployeeProfile{ID: "agent-emp", Name: "Dawit", Department: "sales", BasicSalary: dec("2000"), AgentID: "agent-7"})
	return mem
}

func newTestEngine(t *testing.T, repo payroll.Repository, opts ...payroll.Option) *payroll.Engine {
	t.Helper()
	opts = append([]payroll.Option{payroll.WithClock(func() time.Time { return fixedNow })}, opts...)
	e, err := payroll.NewEngine(repo, testRates(), opts...)
	require.NoError(t, err)
	return e
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	require.Truef(t, dec(want).Equal(got), "want %s, got %s %v", want, got, msgAndArgs)
}

// assertInvariants checks the gross and net identities exactly.
func assertInvariants(t *testing.T, r payroll.PayrollRecord) {
	t.Helper()
	gross := r.BasicSalary.Add(r.OvertimePay).Add(r.HRAllowances).Add(r.FinanceAllowances).Add(r.SalesCommission)
	require.True(t, gross.Equal(r.GrossSalary), "gross %s != %s", r.GrossSalary, gross)
	net := r.GrossSalary.Sub(r.IncomeTax.Add(r.Pension).Add(r.LateDeduction).Add(r.AbsenceDeduction).Add(r.FinanceDeductions))
	require.True(t, net.Equal(r.NetSalary), "net %s != %s", r.NetSalary, net)
}
