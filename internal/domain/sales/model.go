// Package sales provides the sale (fiscal transaction) creation flow.
package sales

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"ncfpos/internal/core/apperror"
	"ncfpos/internal/core/id"
	"ncfpos/internal/core/numerator"
	"ncfpos/internal/core/types"
)

// ITBISRate is the general ITBIS rate.
var ITBISRate = types.MustMoney("0.18")

var rncPattern = regexp.MustCompile(`^([0-9]{9}|[0-9]{11})$`)

// MaxClientKeyLength bounds Sale.ClientKey.
const MaxClientKeyLength = 128

// Sale is a fiscal transaction. InvoiceNumber is assigned once, at creation,
// and never changes afterwards. ClientKey is the terminal's idempotency key;
// it is unique per store and commits together with the sale.
type Sale struct {
	ID            id.ID       `db:"id" json:"id"`
	StoreID       id.ID       `db:"store_id" json:"store_id"`
	InvoiceType   string      `db:"invoice_type_id" json:"invoice_type_id"`
	InvoiceNumber string      `db:"invoice_number" json:"invoice_number"`
	CustomerName  string      `db:"customer_name" json:"customer_name,omitempty"`
	CustomerRNC   string      `db:"customer_rnc" json:"customer_rnc,omitempty"`
	Subtotal      types.Money `db:"subtotal" json:"subtotal"`
	ITBIS         types.Money `db:"itbis" json:"itbis"`
	Total         types.Money `db:"total" json:"total"`
	CreatedBy     string      `db:"created_by" json:"created_by,omitempty"`
	ClientKey     string      `db:"client_key" json:"-"`
	CreatedAt     time.Time   `db:"created_at" json:"created_at"`

	Lines []Line `db:"-" json:"lines"`

	// Replayed is set by Service.Create when ClientKey matched a stored sale.
	Replayed bool `db:"-" json:"-"`
}

// Line is one sold item.
type Line struct {
	SaleID      id.ID           `db:"sale_id" json:"-"`
	LineNo      int             `db:"line_no" json:"line_no"`
	Description string          `db:"description" json:"description"`
	Quantity    decimal.Decimal `db:"quantity" json:"quantity"`
	UnitPrice   types.Money     `db:"unit_price" json:"unit_price"`
	Taxable     bool            `db:"taxable" json:"taxable"`
	Amount      types.Money     `db:"amount" json:"amount"`
	ITBIS       types.Money     `db:"itbis" json:"itbis"`
}

// Key returns the counter this sale draws its number from.
func (s *Sale) Key() numerator.Key {
	return numerator.Key{StoreID: s.StoreID, InvoiceType: s.InvoiceType}
}

// Validate checks the sale before a number is issued for it.
func (s *Sale) Validate(_ context.Context) error {
	if id.IsNil(s.StoreID) {
		return apperror.NewValidation("store id is required")
	}
	if !numerator.ValidTypeCode(s.InvoiceType) {
		return apperror.NewValidation("invalid invoice type").
			WithDetail("invoice_type", s.InvoiceType)
	}
	if s.InvoiceNumber != "" {
		return apperror.NewValidation("invoice number is assigned by the server").
			WithDetail("invoice_number", s.InvoiceNumber)
	}
	if len(s.Lines) == 0 {
		return apperror.NewValidation("sale must have at least one line")
	}
	if len(s.ClientKey) > MaxClientKeyLength {
		return apperror.NewValidation("client key too long").
			WithDetail("max_length", MaxClientKeyLength)
	}

	s.CustomerRNC = strings.ReplaceAll(strings.TrimSpace(s.CustomerRNC), "-", "")
	if numerator.RequiresBuyerRNC(s.InvoiceType) {
		if !rncPattern.MatchString(s.CustomerRNC) {
			return apperror.NewValidation("customer RNC/cedula is required for this invoice type").
				WithDetail("invoice_type", s.InvoiceType).
				WithDetail("customer_rnc", s.CustomerRNC)
		}
		if strings.TrimSpace(s.CustomerName) == "" {
			return apperror.NewValidation("customer name is required for this invoice type").
				WithDetail("invoice_type", s.InvoiceType)
		}
	} else if s.CustomerRNC != "" && !rncPattern.MatchString(s.CustomerRNC) {
		return apperror.NewValidation("invalid customer RNC/cedula").
			WithDetail("customer_rnc", s.CustomerRNC)
	}

	for i, l := range s.Lines {
		if strings.TrimSpace(l.Description) == "" {
			return apperror.NewValidation("line description is required").WithDetail("line", i+1)
		}
		if !l.Quantity.IsPositive() {
			return apperror.NewValidation("line quantity must be positive").WithDetail("line", i+1)
		}
		if l.UnitPrice.IsNegative() {
			return apperror.NewValidation("line unit price must not be negative").WithDetail("line", i+1)
		}
	}
	return nil
}

// CalculateTotals fills line amounts, ITBIS and the sale totals.
// ITBIS is computed per line and rounded to cents before summing.
func (s *Sale) CalculateTotals() {
	subtotal := types.Zero()
	itbis := types.Zero()

	for i := range s.Lines {
		l := &s.Lines[i]
		l.LineNo = i + 1
		l.Amount = types.RoundMoney(l.UnitPrice.Mul(l.Quantity))
		l.ITBIS = types.Zero()
		if l.Taxable {
			l.ITBIS = types.ApplyRate(l.Amount, ITBISRate)
		}
		subtotal = subtotal.Add(l.Amount)
		itbis = itbis.Add(l.ITBIS)
	}

	s.Subtotal = subtotal
	s.ITBIS = itbis
	s.Total = subtotal.Add(itbis)
}
