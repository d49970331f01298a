package model_test

import (
	"testing"

	"github.com/alapierre/go-nfe-client/nfe"
	"github.com/alapierre/go-nfe-client/nfe/internal/fixture"
	"github.com/alapierre/go-nfe-client/nfe/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckTotals_OK(t *testing.T) {
	in := fixture.Input()
	assert.NoError(t, in.CheckTotals(model.DefaultTolerance))
}

func TestCheckTotals_ReportsEveryDeviation(t *testing.T) {
	in := fixture.Input()
	in.Items[0].Total = decimal.RequireFromString("99.00")
	in.Header.Total = decimal.RequireFromString("150.00")

	err := in.CheckTotals(model.DefaultTolerance)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "items[0].total")
	assert.Contains(t, err.Error(), "header.total")
	assert.ErrorIs(t, err, nfe.ErrInvalidInput)
}

func TestCheckTotals_WithinTolerance(t *testing.T) {
	in := fixture.Input()
	in.Items[0].Quantity = decimal.RequireFromString("3")
	in.Items[0].UnitPrice = decimal.RequireFromString("33.333")
	in.Items[0].Total = decimal.RequireFromString("100.00")
	assert.NoError(t, in.CheckTotals(model.DefaultTolerance))
}

func TestGrandTotal(t *testing.T) {
	in := fixture.Input()
	freight := decimal.RequireFromString("5")
	in.Header.Freight = &freight
	assert.Equal(t, "105.00", model.FormatCurrency(in.GrandTotal()))

	in.Header.Total = decimal.Zero
	assert.Equal(t, "105.00", model.FormatCurrency(in.GrandTotal()), "falls back to the sum of the lines")
}

func TestFormat(t *testing.T) {
	d := model.MustFromString("1.23456")
	assert.Equal(t, "1.2346", model.FormatQuantity(d))
	assert.Equal(t, "1.2345600000", model.FormatUnitPrice(d))
	assert.Equal(t, "1.23", model.FormatCurrency(d))
	assert.Equal(t, "0.00", model.FormatCurrency(model.OrZero(nil)))
}

func TestFieldError(t *testing.T) {
	err := model.NewFieldError("header.nature", nil, "is required")
	assert.Equal(t, "invalid header.nature: is required", err.Error())

	err = model.NewFieldError("items[0].total", "1", "expected 2.00")
	assert.Equal(t, "invalid items[0].total: expected 2.00 (value=1)", err.Error())
}
