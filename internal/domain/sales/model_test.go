package sales

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ncfpos/internal/core/apperror"
	"ncfpos/internal/core/id"
	"ncfpos/internal/core/types"
)

func TestCalculateTotals_RoundsPerLine(t *testing.T) {
	s := &Sale{Lines: []Line{
		{Description: "Chicle", Quantity: decimal.NewFromInt(3), UnitPrice: types.MustMoney("0.33"), Taxable: true},
		{Description: "Agua", Quantity: decimal.RequireFromString("1.5"), UnitPrice: types.MustMoney("25.00")},
	}}

	s.CalculateTotals()

	assert.Equal(t, 1, s.Lines[0].LineNo)
	assert.Equal(t, 2, s.Lines[1].LineNo)
	assert.Equal(t, "0.99", s.Lines[0].Amount.StringFixed(2))
	assert.Equal(t, "0.18", s.Lines[0].ITBIS.StringFixed(2))
	assert.True(t, s.Lines[1].ITBIS.IsZero())
	assert.Equal(t, "38.49", s.Subtotal.StringFixed(2))
	assert.Equal(t, "0.18", s.ITBIS.StringFixed(2))
	assert.Equal(t, "38.67", s.Total.StringFixed(2))
}

func TestValidate(t *testing.T) {
	line := Line{Description: "Item", Quantity: decimal.NewFromInt(1), UnitPrice: types.MustMoney("10")}

	tests := []struct {
		name    string
		sale    Sale
		wantErr bool
	}{
		{"consumo without buyer", Sale{StoreID: id.New(), InvoiceType: "B02", Lines: []Line{line}}, false},
		{"fiscal with rnc", Sale{StoreID: id.New(), InvoiceType: "B01", CustomerName: "ACME SRL", CustomerRNC: "131-12345-6", Lines: []Line{line}}, false},
		{"fiscal without rnc", Sale{StoreID: id.New(), InvoiceType: "B01", CustomerName: "ACME SRL", Lines: []Line{line}}, true},
		{"fiscal without name", Sale{StoreID: id.New(), InvoiceType: "B01", CustomerRNC: "131123456", Lines: []Line{line}}, true},
		{"bad optional rnc", Sale{StoreID: id.New(), InvoiceType: "B02", CustomerRNC: "12", Lines: []Line{line}}, true},
		{"client supplied number", Sale{StoreID: id.New(), InvoiceType: "B02", InvoiceNumber: "B02-00000001", Lines: []Line{line}}, true},
		{"no lines", Sale{StoreID: id.New(), InvoiceType: "B02"}, true},
		{"no store", Sale{InvoiceType: "B02", Lines: []Line{line}}, true},
		{"bad type", Sale{StoreID: id.New(), InvoiceType: "X1", Lines: []Line{line}}, true},
		{"zero quantity", Sale{StoreID: id.New(), InvoiceType: "B02", Lines: []Line{{Description: "x", UnitPrice: types.MustMoney("1")}}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.sale.Validate(context.Background())
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperror.IsValidation(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestValidate_NormalizesRNC(t *testing.T) {
	s := Sale{
		StoreID:      id.New(),
		InvoiceType:  "B01",
		CustomerName: "ACME SRL",
		CustomerRNC:  " 131-12345-6 ",
		Lines:        []Line{{Description: "Item", Quantity: decimal.NewFromInt(1)}},
	}
	require.NoError(t, s.Validate(context.Background()))
	assert.Equal(t, "131123456", s.CustomerRNC)
}
