package payroll

import (
	"strconv"

	"github.com/shopspring/decimal"
)

// =============================================================================
// COMMISSION CALCULATOR
// =============================================================================

// CommissionResult holds the per-sale breakdown and the period totals.
type CommissionResult struct {
	Details         []CommissionDetail
	GrossCommission decimal.Decimal
	CommissionTax   decimal.Decimal
	NetCommission   decimal.Decimal
	NumberOfSales   int
}

// Totals drops the per-sale breakdown.
func (c CommissionResult) Totals() CommissionTotals {
	return CommissionTotals{
		GrossCommission: c.GrossCommission,
		CommissionTax:   c.CommissionTax,
		NetCommission:   c.NetCommission,
		NumberOfSales:   c.NumberOfSales,
	}
}

// ComputeCommission computes commission on each sale:
//
//	gross = amount * rate
//	tax   = gross * taxRate
//	net   = gross - tax
//
// Per-sale gross and tax are rounded to places; net and the totals are
// exact sums of rounded values so the breakdown always adds up.
func ComputeCommission(sales []Sale, rates CommissionRates, places int32) (CommissionResult, error) {
	if !rates.Configured() {
		return CommissionResult{}, ErrCommissionNotConfigured
	}

	var fields []FieldError
	for i, s := range sales {
		if s.SaleAmount.IsNegative() {
			fields = append(fields, FieldError{Field: saleField(i, "sale_amount"), Message: "must not be negative"})
		}
	}
	if len(fields) > 0 {
		return CommissionResult{}, &ValidationError{Fields: fields}
	}

	res := CommissionResult{
		Details:         make([]CommissionDetail, 0, len(sales)),
		GrossCommission: decimal.Zero,
		CommissionTax:   decimal.Zero,
		NetCommission:   decimal.Zero,
	}
	for _, s := range sales {
		gross := s.SaleAmount.Mul(rates.Rate).Round(places)
		tax := gross.Mul(rates.TaxRate).Round(places)
		net := gross.Sub(tax)

		res.Details = append(res.Details, CommissionDetail{
			SaleID:          s.ID,
			SaleAmount:      s.SaleAmount,
			GrossCommission: gross,
			CommissionTax:   tax,
			NetCommission:   net,
			Date:            s.Date,
		})
		res.GrossCommission = res.GrossCommission.Add(gross)
		res.CommissionTax = res.CommissionTax.Add(tax)
		res.NetCommission = res.NetCommission.Add(net)
	}
	res.NumberOfSales = len(sales)
	return res, nil
}

func saleField(i int, name string) string {
	return "sales[" + strconv.Itoa(i) + "]." + name
}
