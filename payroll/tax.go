package payroll

import "github.com/shopspring/decimal"

// =============================================================================
// TAX CALCULATOR
// =============================================================================

// ComputeIncomeTax applies the default bracket table to a monthly income.
func ComputeIncomeTax(income decimal.Decimal) decimal.Decimal {
	return TaxTable(DefaultTaxBrackets).Compute(income)
}

// TaxTable is an ascending list of brackets starting at threshold 0.
type TaxTable []TaxBracket

// Compute returns the tax owed on income, rounded half away from zero to a
// whole unit once at the end. Negative income is treated as zero.
//
// A bracket applies to income strictly above its threshold, so income equal
// to a threshold is taxed by the bracket below. With a continuous table the
// two give the same result.
func (t TaxTable) Compute(income decimal.Decimal) decimal.Decimal {
	if income.IsNegative() {
		income = decimal.Zero
	}
	if len(t) == 0 {
		return decimal.Zero
	}

	bracket := t[0]
	for _, b := range t[1:] {
		if !income.GreaterThan(b.Threshold) {
			break
		}
		bracket = b
	}

	tax := bracket.Base.Add(bracket.Rate.Mul(income.Sub(bracket.Threshold)))
	if tax.IsNegative() {
		tax = decimal.Zero
	}
	return tax.Round(0)
}

// TaxableIncome picks the tax base configured in r.
func (r Rates) TaxableIncome(basic, gross decimal.Decimal) decimal.Decimal {
	if r.TaxBase == TaxBaseBasic {
		return basic
	}
	return gross
}
