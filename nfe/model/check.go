package model

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ItemsTotal sums the declared line totals.
func (in *DocumentInput) ItemsTotal() decimal.Decimal {
	total := decimal.Zero
	for _, it := range in.Items {
		total = total.Add(it.Total)
	}
	return total
}

// GrandTotal is the declared total plus freight and insurance. A document
// without a declared total uses the sum of its lines.
func (in *DocumentInput) GrandTotal() decimal.Decimal {
	base := in.Header.Total
	if base.IsZero() {
		base = in.ItemsTotal()
	}
	return Sum(base, OrZero(in.Header.Freight), OrZero(in.Header.Insurance))
}

// CheckTotals verifies the arithmetic the caller is responsible for: every
// line total equals quantity x unit price and the declared total equals the
// sum of the lines plus freight and insurance, both within tolerance.
// Every deviation is reported.
func (in *DocumentInput) CheckTotals(tolerance decimal.Decimal) error {
	var errs []error
	for i, it := range in.Items {
		expected := it.Quantity.Mul(it.UnitPrice)
		if expected.Sub(it.Total).Abs().GreaterThan(tolerance) {
			errs = append(errs, NewFieldError(
				fmt.Sprintf("items[%d].total", i), it.Total.String(),
				fmt.Sprintf("expected %s", FormatCurrency(expected))))
		}
	}

	if !in.Header.Total.IsZero() {
		expected := Sum(in.ItemsTotal(), OrZero(in.Header.Freight), OrZero(in.Header.Insurance))
		if expected.Sub(in.Header.Total).Abs().GreaterThan(tolerance) {
			errs = append(errs, NewFieldError("header.total", in.Header.Total.String(),
				fmt.Sprintf("expected %s", FormatCurrency(expected))))
		}
	}

	return errors.Join(errs...)
}
