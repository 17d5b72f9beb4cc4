package payroll

import "github.com/shopspring/decimal"

// =============================================================================
// PENSION CALCULATOR
// =============================================================================

// PensionShares splits pension contributions. Only EmployeeShare is deducted
// from net pay; EmployerShare is reported for employer cost accounting.
type PensionShares struct {
	EmployeeShare decimal.Decimal
	EmployerShare decimal.Decimal
}

// ComputePension uses the default 7% employee / 11% employer rates.
func ComputePension(basic, gross decimal.Decimal) PensionShares {
	return DefaultRates().ComputePension(basic, gross)
}

// ComputePension returns round(basic * employee rate) and
// round(gross * employer rate), both to whole units.
func (r Rates) ComputePension(basic, gross decimal.Decimal) PensionShares {
	return PensionShares{
		EmployeeShare: basic.Mul(r.PensionEmployeeRate).Round(0),
		EmployerShare: gross.Mul(r.PensionEmployerRate).Round(0),
	}
}
