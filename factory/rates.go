/*
Package factory provides rates document to payroll.Rates conversion.

PURPOSE:
  Turns a JSON or YAML rates document into payroll.Rates so tax brackets,
  pension shares, overtime multipliers and the commission pair can change
  without a release. Anything the document omits keeps the value from
  payroll.DefaultRates(); the result always passes Rates.Validate.

DOCUMENT SCHEMA (YAML shown, JSON uses the same keys):
  tax_base: gross            # or basic
  tax_brackets:              # optional, replaces the whole table
    - {threshold: 0,   base: 0,   rate: 0}
    - {threshold: 600, base: 0,   rate: 0.10}
  pension:
    employee_rate: 0.07
    employer_rate: 0.11
  overtime:
    month_days: 30
    day_hours: 8
    multipliers: {day: 1.5, night: 1.75, rest_day: 2.0, holiday: 2.5}
  deduction_day_divisor: 30
  rounding_places: 2
  commission:
    preset: report_b         # or explicit rate / tax_rate (explicit wins)

COMMISSION PRESETS:
  The commission pair has no default. Two candidates circulate in the
  existing reports and are offered by name so a deployment picks one
  deliberately:
    report_a  rate 7%,  tax 0.075%
    report_b  rate 10%, tax 5%

USAGE:
  rates, err := factory.LoadRatesFile("rates.yaml")
  if err != nil {
      log.Fatal(err)
  }
  engine, err := payroll.NewEngine(repo, rates)

SEE ALSO:
  - payroll/rates.go: Rates type and validation
*/
package factory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// DOCUMENT TYPES
// =============================================================================

// RatesDocument is the serialized form of payroll.Rates. Pointer fields
// distinguish "absent" from zero.
type RatesDocument struct {
	TaxBase             string         `json:"tax_base,omitempty" yaml:"tax_base,omitempty"`
	TaxBrackets         []BracketDoc   `json:"tax_brackets,omitempty" yaml:"tax_brackets,omitempty"`
	Pension             *PensionDoc    `json:"pension,omitempty" yaml:"pension,omitempty"`
	Overtime            *OvertimeDoc   `json:"overtime,omitempty" yaml:"overtime,omitempty"`
	DeductionDayDivisor *int           `json:"deduction_day_divisor,omitempty" yaml:"deduction_day_divisor,omitempty"`
	RoundingPlaces      *int32         `json:"rounding_places,omitempty" yaml:"rounding_places,omitempty"`
	Commission          *CommissionDoc `json:"commission,omitempty" yaml:"commission,omitempty"`
}

// BracketDoc is one row of the progressive tax table.
type BracketDoc struct {
	Threshold decimal.Decimal `json:"threshold" yaml:"threshold"`
	Base      decimal.Decimal `json:"base" yaml:"base"`
	Rate      decimal.Decimal `json:"rate" yaml:"rate"`
}

// PensionDoc holds the pension shares.
type PensionDoc struct {
	EmployeeRate *decimal.Decimal `json:"employee_rate,omitempty" yaml:"employee_rate,omitempty"`
	EmployerRate *decimal.Decimal `json:"employer_rate,omitempty" yaml:"employer_rate,omitempty"`
}

// OvertimeDoc holds the hourly-rate divisors and multipliers.
type OvertimeDoc struct {
	MonthDays   *int            `json:"month_days,omitempty" yaml:"month_days,omitempty"`
	DayHours    *int            `json:"day_hours,omitempty" yaml:"day_hours,omitempty"`
	Multipliers *MultipliersDoc `json:"multipliers,omitempty" yaml:"multipliers,omitempty"`
}

// MultipliersDoc holds per-category overtime multipliers.
type MultipliersDoc struct {
	Day     *decimal.Decimal `json:"day,omitempty" yaml:"day,omitempty"`
	Night   *decimal.Decimal `json:"night,omitempty" yaml:"night,omitempty"`
	RestDay *decimal.Decimal `json:"rest_day,omitempty" yaml:"rest_day,omitempty"`
	Holiday *decimal.Decimal `json:"holiday,omitempty" yaml:"holiday,omitempty"`
}

// CommissionDoc selects the commission pair by preset name, explicit
// values, or a preset with one value overridden.
type CommissionDoc struct {
	Preset  string           `json:"preset,omitempty" yaml:"preset,omitempty"`
	Rate    *decimal.Decimal `json:"rate,omitempty" yaml:"rate,omitempty"`
	TaxRate *decimal.Decimal `json:"tax_rate,omitempty" yaml:"tax_rate,omitempty"`
}

// =============================================================================
// COMMISSION PRESETS
// =============================================================================

const (
	PresetReportA = "report_a"
	PresetReportB = "report_b"
)

var commissionPresets = map[string]payroll.CommissionRates{
	PresetReportA: {Rate: decimal.RequireFromString("0.07"), TaxRate: decimal.RequireFromString("0.00075")},
	PresetReportB: {Rate: decimal.RequireFromString("0.10"), TaxRate: decimal.RequireFromString("0.05")},
}

// CommissionPreset returns a named commission pair.
func CommissionPreset(name string) (payroll.CommissionRates, bool) {
	c, ok := commissionPresets[name]
	return c, ok
}

// PresetNames lists the known commission presets, sorted.
func PresetNames() []string {
	names := make([]string, 0, len(commissionPresets))
	for n := range commissionPresets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// =============================================================================
// PARSING
// =============================================================================

// ParseRatesJSON parses a JSON rates document.
func ParseRatesJSON(data []byte) (payroll.Rates, error) {
	var doc RatesDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return payroll.Rates{}, fmt.Errorf("failed to parse rates JSON: %w", err)
	}
	return FromDocument(doc)
}

// ParseRatesYAML parses a YAML rates document.
func ParseRatesYAML(data []byte) (payroll.Rates, error) {
	var doc RatesDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return payroll.Rates{}, fmt.Errorf("failed to parse rates YAML: %w", err)
	}
	return FromDocument(doc)
}

// LoadRatesFile reads a rates document, choosing the format by extension
// (.json, .yaml, .yml).
func LoadRatesFile(path string) (payroll.Rates, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return payroll.Rates{}, fmt.Errorf("failed to read rates file: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return ParseRatesJSON(data)
	case ".yaml", ".yml":
		return ParseRatesYAML(data)
	default:
		return payroll.Rates{}, fmt.Errorf("unsupported rates file extension %q", filepath.Ext(path))
	}
}

// FromDocument overlays doc on payroll.DefaultRates and validates the result.
func FromDocument(doc RatesDocument) (payroll.Rates, error) {
	rates := payroll.DefaultRates()

	if doc.TaxBase != "" {
		rates.TaxBase = payroll.TaxBase(strings.ToLower(doc.TaxBase))
	}
	if len(doc.TaxBrackets) > 0 {
		rates.TaxBrackets = make([]payroll.TaxBracket, len(doc.TaxBrackets))
		for i, b := range doc.TaxBrackets {
			rates.TaxBrackets[i] = payroll.TaxBracket{Threshold: b.Threshold, Base: b.Base, Rate: b.Rate}
		}
	}

	if p := doc.Pension; p != nil {
		setDecimal(&rates.PensionEmployeeRate, p.EmployeeRate)
		setDecimal(&rates.PensionEmployerRate, p.EmployerRate)
	}

	if o := doc.Overtime; o != nil {
		if o.MonthDays != nil {
			rates.MonthDays = *o.MonthDays
		}
		if o.DayHours != nil {
			rates.DayHours = *o.DayHours
		}
		if m := o.Multipliers; m != nil {
			setDecimal(&rates.OvertimeMultipliers.Day, m.Day)
			setDecimal(&rates.OvertimeMultipliers.Night, m.Night)
			setDecimal(&rates.OvertimeMultipliers.RestDay, m.RestDay)
			setDecimal(&rates.OvertimeMultipliers.Holiday, m.Holiday)
		}
	}

	if doc.DeductionDayDivisor != nil {
		rates.DeductionDayDivisor = *doc.DeductionDayDivisor
	}
	if doc.RoundingPlaces != nil {
		rates.RoundingPlaces = *doc.RoundingPlaces
	}

	if c := doc.Commission; c != nil {
		if c.Preset != "" {
			preset, ok := CommissionPreset(c.Preset)
			if !ok {
				return payroll.Rates{}, fmt.Errorf("unknown commission preset %q (known: %s)", c.Preset, strings.Join(PresetNames(), ", "))
			}
			rates.Commission = preset
		}
		setDecimal(&rates.Commission.Rate, c.Rate)
		setDecimal(&rates.Commission.TaxRate, c.TaxRate)
	}

	if err := rates.Validate(); err != nil {
		return payroll.Rates{}, err
	}
	return rates, nil
}

// ToDocument renders rates in document form, with an explicit commission pair.
func ToDocument(r payroll.Rates) RatesDocument {
	doc := RatesDocument{
		TaxBase:             string(r.TaxBase),
		Pension:             &PensionDoc{EmployeeRate: ptr(r.PensionEmployeeRate), EmployerRate: ptr(r.PensionEmployerRate)},
		DeductionDayDivisor: ptr(r.DeductionDayDivisor),
		RoundingPlaces:      ptr(r.RoundingPlaces),
		Overtime: &OvertimeDoc{
			MonthDays: ptr(r.MonthDays),
			DayHours:  ptr(r.DayHours),
			Multipliers: &MultipliersDoc{
				Day:     ptr(r.OvertimeMultipliers.Day),
				Night:   ptr(r.OvertimeMultipliers.Night),
				RestDay: ptr(r.OvertimeMultipliers.RestDay),
				Holiday: ptr(r.OvertimeMultipliers.Holiday),
			},
		},
		Commission: &CommissionDoc{Rate: ptr(r.Commission.Rate), TaxRate: ptr(r.Commission.TaxRate)},
	}
	for _, b := range r.TaxBrackets {
		doc.TaxBrackets = append(doc.TaxBrackets, BracketDoc{Threshold: b.Threshold, Base: b.Base, Rate: b.Rate})
	}
	return doc
}

func setDecimal(dst *decimal.Decimal, v *decimal.Decimal) {
	if v != nil {
		*dst = *v
	}
}

func ptr[T any](v T) *T { return &v }
