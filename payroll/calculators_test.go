package payroll_test

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// TAX
// =============================================================================

func TestIncomeTax_BracketBoundaries(t *testing.T) {
	tests := []struct {
		income string
		want   string
	}{
		{"0", "0"},
		{"600", "0"},
		{"1000", "40"},
		{"1600", "100"},
		{"3200", "340"},
		{"5200", "740"},
		{"10000", "1940"},
		{"12000", "2540"},
	}
	for _, tt := range tests {
		t.Run(tt.income, func(t *testing.T) {
			assertDecimal(t, tt.want, payroll.ComputeIncomeTax(dec(tt.income)))
		})
	}
}

func TestIncomeTax_NegativeClampedToZero(t *testing.T) {
	assert.True(t, payroll.ComputeIncomeTax(dec("-500")).IsZero())
}

func TestIncomeTax_RoundsOnceHalfAwayFromZero(t *testing.T) {
	// GIVEN: 605 → 10% of 5 = 0.5
	// THEN: rounds up to 1
	assertDecimal(t, "1", payroll.ComputeIncomeTax(dec("605")))

	// GIVEN: 3582.5 → 340 + 20% of 382.5 = 416.5
	assertDecimal(t, "417", payroll.ComputeIncomeTax(dec("3582.5")))

	// GIVEN: 604.9 → 0.49
	assertDecimal(t, "0", payroll.ComputeIncomeTax(dec("604.9")))
}

func TestIncomeTax_Monotonic(t *testing.T) {
	prev := decimal.Zero
	step := dec("37.5")
	for income := decimal.Zero; income.LessThan(dec("20000")); income = income.Add(step) {
		tax := payroll.ComputeIncomeTax(income)
		require.False(t, tax.LessThan(prev), "tax decreased at income %s: %s < %s", income, tax, prev)
		prev = tax
	}
}

func TestTaxTable_CustomBrackets(t *testing.T) {
	table := payroll.TaxTable{
		{Threshold: dec("0"), Base: dec("0"), Rate: dec("0.05")},
		{Threshold: dec("1000"), Base: dec("50"), Rate: dec("0.5")},
	}
	assertDecimal(t, "25", table.Compute(dec("500")))
	assertDecimal(t, "100", table.Compute(dec("1100")))
}

// =============================================================================
// PENSION
// =============================================================================

func TestPension_EmployeeShareIsRoundedSevenPercentOfBasic(t *testing.T) {
	for _, basic := range []string{"0", "1234", "1250", "3000", "7777.77", "15000"} {
		t.Run(basic, func(t *testing.T) {
			b := dec(basic)
			shares := payroll.ComputePension(b, b)
			assert.True(t, b.Mul(dec("0.07")).Round(0).Equal(shares.EmployeeShare))
		})
	}
}

func TestPension_Shares(t *testing.T) {
	shares := payroll.ComputePension(dec("1250"), dec("3582.5"))

	// 1250 * 0.07 = 87.5 → 88
	assertDecimal(t, "88", shares.EmployeeShare)
	// 3582.5 * 0.11 = 394.075 → 394
	assertDecimal(t, "394", shares.EmployerShare)
}

// =============================================================================
// OVERTIME
// =============================================================================

func TestOvertime_DayHours(t *testing.T) {
	res, err := payroll.ComputeOvertime(dec("3000"), payroll.OvertimeHours{Day: dec("10")})
	require.NoError(t, err)

	// hourly = 3000/30/8 = 12.5; 10 * 12.5 * 1.5 = 187.5
	assertDecimal(t, "187.5", res.PerCategory.Day)
	assertDecimal(t, "187.5", res.Total)
	assert.True(t, res.PerCategory.Night.IsZero())
}

func TestOvertime_AllCategories(t *testing.T) {
	res, err := payroll.ComputeOvertime(dec("3000"), payroll.OvertimeHours{
		Day:     dec("10"),
		Night:   dec("4"),
		RestDay: dec("2"),
		Holiday: dec("1"),
	})
	require.NoError(t, err)

	assertDecimal(t, "187.5", res.PerCategory.Day)
	assertDecimal(t, "87.5", res.PerCategory.Night)
	assertDecimal(t, "50", res.PerCategory.RestDay)
	assertDecimal(t, "31.25", res.PerCategory.Holiday)
	assertDecimal(t, "356.25", res.Total)
}

func TestOvertime_HourlyRate(t *testing.T) {
	assertDecimal(t, "12.5", payroll.DefaultRates().HourlyRate(dec("3000")))
}

func TestOvertime_NegativeHoursRejected(t *testing.T) {
	_, err := payroll.ComputeOvertime(dec("3000"), payroll.OvertimeHours{Night: dec("-1"), Holiday: dec("-2")})

	var verr *payroll.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, []string{"overtime_hours.night", "overtime_hours.holiday"}, verr.FieldNames())
	assert.True(t, payroll.IsValidationError(err))
}

// =============================================================================
// COMMISSION
// =============================================================================

func TestCommission_PerSaleAndTotals(t *testing.T) {
	sales := []payroll.Sale{
		{ID: "s-1", CustomerName: "Acme", SaleAmount: dec("1000"), Date: time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)},
		{ID: "s-2", CustomerName: "Globex", SaleAmount: dec("2500"), Date: time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC)},
	}
	res, err := payroll.ComputeCommission(sales, payroll.CommissionRates{Rate: dec("0.10"), TaxRate: dec("0.05")}, 2)
	require.NoError(t, err)

	require.Len(t, res.Details, 2)
	assert.Equal(t, "s-2", res.Details[1].SaleID)
	assertDecimal(t, "250", res.Details[1].GrossCommission)
	assertDecimal(t, "12.5", res.Details[1].CommissionTax)
	assertDecimal(t, "237.5", res.Details[1].NetCommission)

	assertDecimal(t, "350", res.GrossCommission)
	assertDecimal(t, "17.5", res.CommissionTax)
	assertDecimal(t, "332.5", res.NetCommission)
	assert.Equal(t, 2, res.NumberOfSales)
}

func TestCommission_SmallTaxRateRoundsPerSale(t *testing.T) {
	// 7% / 0.075%: gross 70, tax 0.0525 → 0.05
	res, err := payroll.ComputeCommission(
		[]payroll.Sale{{ID: "s-1", SaleAmount: dec("1000")}},
		payroll.CommissionRates{Rate: dec("0.07"), TaxRate: dec("0.00075")},
		2,
	)
	require.NoError(t, err)
	assertDecimal(t, "70", res.GrossCommission)
	assertDecimal(t, "0.05", res.CommissionTax)
	assertDecimal(t, "69.95", res.NetCommission)
}

func TestCommission_UsesRoundingPlaces(t *testing.T) {
	sales := []payroll.Sale{{ID: "s-1", SaleAmount: dec("1234.56")}}
	rates := payroll.CommissionRates{Rate: dec("0.07"), TaxRate: dec("0.05")}

	// gross 86.4192, tax on the rounded gross
	whole, err := payroll.ComputeCommission(sales, rates, 0)
	require.NoError(t, err)
	assertDecimal(t, "86", whole.GrossCommission)
	assertDecimal(t, "4", whole.CommissionTax)
	assertDecimal(t, "82", whole.NetCommission)

	fine, err := payroll.ComputeCommission(sales, rates, 3)
	require.NoError(t, err)
	assertDecimal(t, "86.419", fine.GrossCommission)
	assertDecimal(t, "4.321", fine.CommissionTax)
	assertDecimal(t, "82.098", fine.NetCommission)
}

func TestCommission_NoSales(t *testing.T) {
	res, err := payroll.ComputeCommission(nil, payroll.CommissionRates{Rate: dec("0.10"), TaxRate: dec("0.05")}, 2)
	require.NoError(t, err)
	assert.True(t, res.NetCommission.IsZero())
	assert.Equal(t, 0, res.NumberOfSales)
}

func TestCommission_RequiresConfiguredRates(t *testing.T) {
	_, err := payroll.ComputeCommission([]payroll.Sale{{ID: "s-1", SaleAmount: dec("10")}}, payroll.CommissionRates{}, 2)
	assert.ErrorIs(t, err, payroll.ErrCommissionNotConfigured)
}

func TestCommission_NegativeSaleRejected(t *testing.T) {
	_, err := payroll.ComputeCommission(
		[]payroll.Sale{{ID: "s-1", SaleAmount: dec("10")}, {ID: "s-2", SaleAmount: dec("-1")}},
		payroll.CommissionRates{Rate: dec("0.10"), TaxRate: dec("0.05")},
		2,
	)
	var verr *payroll.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, []string{"sales[1].sale_amount"}, verr.FieldNames())
}

// =============================================================================
// RATES
// =============================================================================

func TestRates_DefaultsNeedCommissionPair(t *testing.T) {
	err := payroll.DefaultRates().Validate()
	assert.ErrorIs(t, err, payroll.ErrCommissionNotConfigured)

	assert.NoError(t, testRates().Validate())
}

func TestRates_RejectsDiscontinuousBrackets(t *testing.T) {
	r := testRates()
	r.TaxBrackets[2].Base = dec("99")
	assert.Error(t, r.Validate())
}

func TestRates_TaxBaseBasic(t *testing.T) {
	r := testRates()
	r.TaxBase = payroll.TaxBaseBasic
	assertDecimal(t, "3000", r.TaxableIncome(dec("3000"), dec("3582.5")))
	assertDecimal(t, "3582.5", testRates().TaxableIncome(dec("3000"), dec("3582.5")))
}
