package payroll

import "github.com/shopspring/decimal"

// =============================================================================
// OVERTIME CALCULATOR
// =============================================================================

// OvertimeResult is the overtime pay per category and in total. Each
// category is rounded once; Total is the exact sum of the rounded values.
type OvertimeResult struct {
	PerCategory OvertimeHours
	Total       decimal.Decimal
}

// ComputeOvertime uses the default 30-day month, 8-hour day and multipliers.
func ComputeOvertime(basic decimal.Decimal, hours OvertimeHours) (OvertimeResult, error) {
	return DefaultRates().ComputeOvertime(basic, hours)
}

// HourlyRate is basic / MonthDays / DayHours, unrounded.
func (r Rates) HourlyRate(basic decimal.Decimal) decimal.Decimal {
	return basic.
		Div(decimal.NewFromInt(int64(r.MonthDays))).
		Div(decimal.NewFromInt(int64(r.DayHours)))
}

// ComputeOvertime rejects negative hours with a ValidationError naming each
// offending category.
func (r Rates) ComputeOvertime(basic decimal.Decimal, hours OvertimeHours) (OvertimeResult, error) {
	if err := validateOvertimeHours(hours); err != nil {
		return OvertimeResult{}, err
	}

	// Multiply before dividing so exact results like 10 * 3000 * 1.5 / 240
	// are not disturbed by a truncated hourly rate.
	divisor := decimal.NewFromInt(int64(r.MonthDays * r.DayHours))
	pay := func(h, multiplier decimal.Decimal) decimal.Decimal {
		return r.round(h.Mul(basic).Mul(multiplier).Div(divisor))
	}

	m := r.OvertimeMultipliers
	per := OvertimeHours{
		Day:     pay(hours.Day, m.Day),
		Night:   pay(hours.Night, m.Night),
		RestDay: pay(hours.RestDay, m.RestDay),
		Holiday: pay(hours.Holiday, m.Holiday),
	}
	return OvertimeResult{
		PerCategory: per,
		Total:       per.Day.Add(per.Night).Add(per.RestDay).Add(per.Holiday),
	}, nil
}

func validateOvertimeHours(h OvertimeHours) error {
	var fields []FieldError
	check := func(name string, v decimal.Decimal) {
		if v.IsNegative() {
			fields = append(fields, FieldError{Field: "overtime_hours." + name, Message: "must not be negative"})
		}
	}
	check("day", h.Day)
	check("night", h.Night)
	check("rest_day", h.RestDay)
	check("holiday", h.Holiday)
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}
