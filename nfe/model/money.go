package model

import (
	"github.com/shopspring/decimal"
)

const (
	QuantityPlaces  = 4
	UnitPricePlaces = 10
	CurrencyPlaces  = 2
)

// DefaultTolerance accepted between quantity x unit price and the declared line total.
var DefaultTolerance = decimal.New(1, -2)

func FormatQuantity(d decimal.Decimal) string  { return d.StringFixed(QuantityPlaces) }
func FormatUnitPrice(d decimal.Decimal) string { return d.StringFixed(UnitPricePlaces) }
func FormatCurrency(d decimal.Decimal) string  { return d.StringFixed(CurrencyPlaces) }

// Sum sums a slice of decimals
func Sum(values ...decimal.Decimal) decimal.Decimal {
	result := decimal.Zero
	for _, v := range values {
		result = result.Add(v)
	}
	return result
}

// OrZero dereferences an optional amount.
func OrZero(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}

// MustFromString parses decimal from string, panics on error
func MustFromString(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}
