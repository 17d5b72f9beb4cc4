package payroll

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// INPUTS
// =============================================================================

// Inputs is everything a record is built from. BasicSalary is required;
// every other value defaults to zero.
//
// Commission comes from Sales when Sales is non-nil, otherwise from the
// Commission totals (manual entry, or the totals already on a record).
type Inputs struct {
	BasicSalary       *decimal.Decimal  `json:"basic_salary" validate:"required,gte=0"`
	OvertimeHours     OvertimeHours     `json:"overtime_hours"`
	LateDays          int               `json:"late_days" validate:"gte=0"`
	AbsenceDays       int               `json:"absence_days" validate:"gte=0"`
	HRAllowances      decimal.Decimal   `json:"hr_allowances" validate:"gte=0"`
	FinanceAllowances decimal.Decimal   `json:"finance_allowances" validate:"gte=0"`
	FinanceDeductions decimal.Decimal   `json:"finance_deductions" validate:"gte=0"`
	Sales             []Sale            `json:"sales,omitempty" validate:"omitempty,dive"`
	Commission        *CommissionTotals `json:"commission,omitempty"`
}

// HRInputs are the values HR owns. A nil BasicSalary keeps the current one.
type HRInputs struct {
	BasicSalary   *decimal.Decimal `json:"basic_salary,omitempty" validate:"omitempty,gte=0"`
	OvertimeHours OvertimeHours    `json:"overtime_hours"`
	LateDays      int              `json:"late_days" validate:"gte=0"`
	AbsenceDays   int              `json:"absence_days" validate:"gte=0"`
	HRAllowances  decimal.Decimal  `json:"hr_allowances" validate:"gte=0"`
}

func (h HRInputs) apply(in Inputs) Inputs {
	if h.BasicSalary != nil {
		basic := *h.BasicSalary
		in.BasicSalary = &basic
	}
	in.OvertimeHours = h.OvertimeHours
	in.LateDays = h.LateDays
	in.AbsenceDays = h.AbsenceDays
	in.HRAllowances = h.HRAllowances
	return in
}

// FinanceInputs are the values Finance owns.
type FinanceInputs struct {
	FinanceAllowances decimal.Decimal `json:"finance_allowances" validate:"gte=0"`
	FinanceDeductions decimal.Decimal `json:"finance_deductions" validate:"gte=0"`
}

func (f FinanceInputs) apply(in Inputs) Inputs {
	in.FinanceAllowances = f.FinanceAllowances
	in.FinanceDeductions = f.FinanceDeductions
	return in
}

// DateRange selects sales by date, inclusive on both ends.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// CommissionSubmission supplies commission one of three ways, in order of
// precedence: explicit Sales, Manual totals, or the agent's stored sales
// for the period (or Range, when set).
type CommissionSubmission struct {
	Sales  []Sale            `json:"sales,omitempty" validate:"omitempty,dive"`
	Manual *CommissionTotals `json:"manual,omitempty"`
	Range  *DateRange        `json:"range,omitempty"`
}

// =============================================================================
// AGGREGATOR
// =============================================================================

// Aggregator composes the calculators into a PayrollRecord. It is pure and
// safe for concurrent use.
type Aggregator struct {
	Rates Rates
}

func NewAggregator(rates Rates) *Aggregator {
	return &Aggregator{Rates: rates}
}

// Computation is a built record plus the intermediate results that went
// into it.
type Computation struct {
	Record     PayrollRecord
	Overtime   OvertimeResult
	Pension    PensionShares
	Commission *CommissionResult
}

// BuildRecord returns a record carrying identity, inputs and derived values.
// Lifecycle fields, audit log and version are left zero for the caller.
func (a *Aggregator) BuildRecord(employeeID string, period Period, in Inputs) (PayrollRecord, error) {
	c, err := a.Build(employeeID, period, in)
	if err != nil {
		return PayrollRecord{}, err
	}
	return c.Record, nil
}

// Build computes a record in this order: basic and attendance, overtime,
// commission, deductions, gross, tax, pension, net. Every derived sub-term
// is rounded once, so gross and net are exact sums of what is stored.
func (a *Aggregator) Build(employeeID string, period Period, in Inputs) (Computation, error) {
	if employeeID == "" {
		return Computation{}, newValidationError("employee_id", "is required")
	}
	if err := period.Validate(); err != nil {
		return Computation{}, err
	}
	if err := validateStruct(in); err != nil {
		return Computation{}, err
	}
	r := a.Rates
	basic := *in.BasicSalary

	overtime, err := r.ComputeOvertime(basic, in.OvertimeHours)
	if err != nil {
		return Computation{}, err
	}

	var (
		commission    *CommissionResult
		netCommission = decimal.Zero
		numberOfSales int
	)
	switch {
	case in.Sales != nil:
		res, err := ComputeCommission(in.Sales, r.Commission, r.RoundingPlaces)
		if err != nil {
			return Computation{}, err
		}
		commission = &res
		netCommission = res.NetCommission
		numberOfSales = res.NumberOfSales
	case in.Commission != nil:
		netCommission = in.Commission.NetCommission
		numberOfSales = in.Commission.NumberOfSales
	}

	dailyRate := basic.Div(decimal.NewFromInt(int64(r.DeductionDayDivisor)))
	lateDeduction := r.round(dailyRate.Mul(decimal.NewFromInt(int64(in.LateDays))))
	absenceDeduction := r.round(dailyRate.Mul(decimal.NewFromInt(int64(in.AbsenceDays))))

	gross := basic.
		Add(overtime.Total).
		Add(in.HRAllowances).
		Add(in.FinanceAllowances).
		Add(netCommission)

	tax := TaxTable(r.TaxBrackets).Compute(r.TaxableIncome(basic, gross))
	pension := r.ComputePension(basic, gross)

	net := gross.Sub(tax.
		Add(pension.EmployeeShare).
		Add(lateDeduction).
		Add(absenceDeduction).
		Add(in.FinanceDeductions))

	rec := PayrollRecord{
		EmployeeID:        employeeID,
		Period:            period,
		BasicSalary:       basic,
		OvertimeHours:     in.OvertimeHours,
		LateDays:          in.LateDays,
		AbsenceDays:       in.AbsenceDays,
		HRAllowances:      in.HRAllowances,
		FinanceAllowances: in.FinanceAllowances,
		FinanceDeductions: in.FinanceDeductions,
		NumberOfSales:     numberOfSales,
		OvertimePay:       overtime.Total,
		IncomeTax:         tax,
		Pension:           pension.EmployeeShare,
		EmployerPension:   pension.EmployerShare,
		SalesCommission:   netCommission,
		GrossSalary:       gross,
		NetSalary:         net,
		LateDeduction:     lateDeduction,
		AbsenceDeduction:  absenceDeduction,
	}
	return Computation{
		Record:     rec,
		Overtime:   overtime,
		Pension:    pension,
		Commission: commission,
	}, nil
}
