package payroll

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// RATES - Every constant a calculator depends on
// =============================================================================

// TaxBase selects which income the progressive tax applies to.
type TaxBase string

const (
	TaxBaseGross TaxBase = "gross"
	TaxBaseBasic TaxBase = "basic"
)

// TaxBracket applies to income above Threshold:
//
//	tax = Base + Rate * (income - Threshold)
type TaxBracket struct {
	Threshold decimal.Decimal
	Base      decimal.Decimal
	Rate      decimal.Decimal
}

// OvertimeMultipliers are the pay multipliers per overtime category.
type OvertimeMultipliers struct {
	Day     decimal.Decimal
	Night   decimal.Decimal
	RestDay decimal.Decimal
	Holiday decimal.Decimal
}

// CommissionRates is the single authoritative commission constant pair.
type CommissionRates struct {
	Rate    decimal.Decimal
	TaxRate decimal.Decimal
}

func (c CommissionRates) Configured() bool {
	return c.Rate.IsPositive() && !c.TaxRate.IsNegative()
}

// Rates holds the configuration shared by all calculators. Build it with
// DefaultRates (or the factory package) and set Commission explicitly.
type Rates struct {
	TaxBrackets []TaxBracket
	TaxBase     TaxBase

	PensionEmployeeRate decimal.Decimal
	PensionEmployerRate decimal.Decimal

	// Hourly rate = basic / MonthDays / DayHours.
	MonthDays           int
	DayHours            int
	OvertimeMultipliers OvertimeMultipliers

	// Late/absence daily rate = basic / DeductionDayDivisor.
	DeductionDayDivisor int

	// RoundingPlaces applies to derived sub-terms other than tax and pension,
	// which always round to whole units.
	RoundingPlaces int32

	Commission CommissionRates
}

// DefaultTaxBrackets is the monthly progressive table.
var DefaultTaxBrackets = []TaxBracket{
	{Threshold: decimal.Zero, Base: decimal.Zero, Rate: decimal.Zero},
	{Threshold: decimal.NewFromInt(600), Base: decimal.Zero, Rate: decimal.RequireFromString("0.10")},
	{Threshold: decimal.NewFromInt(1600), Base: decimal.NewFromInt(100), Rate: decimal.RequireFromString("0.15")},
	{Threshold: decimal.NewFromInt(3200), Base: decimal.NewFromInt(340), Rate: decimal.RequireFromString("0.20")},
	{Threshold: decimal.NewFromInt(5200), Base: decimal.NewFromInt(740), Rate: decimal.RequireFromString("0.25")},
	{Threshold: decimal.NewFromInt(10000), Base: decimal.NewFromInt(1940), Rate: decimal.RequireFromString("0.30")},
}

// DefaultRates returns every default except the commission pair, which
// stays unset until product signs off on a value.
func DefaultRates() Rates {
	brackets := make([]TaxBracket, len(DefaultTaxBrackets))
	copy(brackets, DefaultTaxBrackets)
	return Rates{
		TaxBrackets:         brackets,
		TaxBase:             TaxBaseGross,
		PensionEmployeeRate: decimal.RequireFromString("0.07"),
		PensionEmployerRate: decimal.RequireFromString("0.11"),
		MonthDays:           30,
		DayHours:            8,
		OvertimeMultipliers: OvertimeMultipliers{
			Day:     decimal.RequireFromString("1.5"),
			Night:   decimal.RequireFromString("1.75"),
			RestDay: decimal.RequireFromString("2.0"),
			Holiday: decimal.RequireFromString("2.5"),
		},
		DeductionDayDivisor: 30,
		RoundingPlaces:      2,
	}
}

// Validate checks the rates are usable. The tax table must start at zero,
// ascend, and be continuous: each Base equals the tax accumulated at its
// Threshold, which keeps the function monotonic.
func (r Rates) Validate() error {
	if len(r.TaxBrackets) == 0 {
		return fmt.Errorf("rates: at least one tax bracket is required")
	}
	if !r.TaxBrackets[0].Threshold.IsZero() {
		return fmt.Errorf("rates: first tax bracket must start at 0")
	}
	for i, b := range r.TaxBrackets {
		if b.Rate.IsNegative() || b.Base.IsNegative() {
			return fmt.Errorf("rates: tax bracket %d has a negative rate or base", i)
		}
		if i == 0 {
			continue
		}
		prev := r.TaxBrackets[i-1]
		if !b.Threshold.GreaterThan(prev.Threshold) {
			return fmt.Errorf("rates: tax bracket %d threshold must be above %s", i, prev.Threshold)
		}
		expected := prev.Base.Add(prev.Rate.Mul(b.Threshold.Sub(prev.Threshold)))
		if !expected.Equal(b.Base) {
			return fmt.Errorf("rates: tax bracket %d base %s does not continue previous bracket (want %s)", i, b.Base, expected)
		}
	}
	if r.TaxBase != TaxBaseGross && r.TaxBase != TaxBaseBasic {
		return fmt.Errorf("rates: unknown tax base %q", r.TaxBase)
	}
	if r.PensionEmployeeRate.IsNegative() || r.PensionEmployerRate.IsNegative() {
		return fmt.Errorf("rates: pension rates must be non-negative")
	}
	if r.MonthDays <= 0 || r.DayHours <= 0 || r.DeductionDayDivisor <= 0 {
		return fmt.Errorf("rates: month days, day hours and deduction divisor must be positive")
	}
	m := r.OvertimeMultipliers
	for _, v := range []decimal.Decimal{m.Day, m.Night, m.RestDay, m.Holiday} {
		if !v.IsPositive() {
			return fmt.Errorf("rates: overtime multipliers must be positive")
		}
	}
	if r.RoundingPlaces < 0 {
		return fmt.Errorf("rates: rounding places must be non-negative")
	}
	if !r.Commission.Configured() {
		return ErrCommissionNotConfigured
	}
	return nil
}

func (r Rates) round(d decimal.Decimal) decimal.Decimal {
	return d.Round(r.RoundingPlaces)
}
