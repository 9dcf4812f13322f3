package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"ncfpos/internal/core/id"
	"ncfpos/internal/domain/sales"
)

// CreateSaleRequest is the body of POST /sales.
// Quantities and prices accept JSON numbers or strings.
type CreateSaleRequest struct {
	InvoiceType  string            `json:"invoice_type_id" binding:"required"`
	CustomerName string            `json:"customer_name"`
	CustomerRNC  string            `json:"customer_rnc"`
	Lines        []SaleLineRequest `json:"lines" binding:"required,min=1,dive"`
}

type SaleLineRequest struct {
	Description string          `json:"description" binding:"required"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Taxable     bool            `json:"taxable"`
}

// ToSale builds the domain sale for storeID.
func (r *CreateSaleRequest) ToSale(storeID id.ID) *sales.Sale {
	sale := &sales.Sale{
		StoreID:      storeID,
		InvoiceType:  r.InvoiceType,
		CustomerName: r.CustomerName,
		CustomerRNC:  r.CustomerRNC,
		Lines:        make([]sales.Line, 0, len(r.Lines)),
	}
	for _, l := range r.Lines {
		sale.Lines = append(sale.Lines, sales.Line{
			Description: l.Description,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			Taxable:     l.Taxable,
		})
	}
	return sale
}

// SaleResponse renders money with two decimals.
type SaleResponse struct {
	ID            id.ID              `json:"id"`
	InvoiceType   string             `json:"invoice_type_id"`
	InvoiceNumber string             `json:"invoice_number"`
	CustomerName  string             `json:"customer_name,omitempty"`
	CustomerRNC   string             `json:"customer_rnc,omitempty"`
	Subtotal      string             `json:"subtotal"`
	ITBIS         string             `json:"itbis"`
	Total         string             `json:"total"`
	CreatedBy     string             `json:"created_by,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	Lines         []SaleLineResponse `json:"lines,omitempty"`
}

type SaleLineResponse struct {
	LineNo      int    `json:"line_no"`
	Description string `json:"description"`
	Quantity    string `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	Taxable     bool   `json:"taxable"`
	Amount      string `json:"amount"`
	ITBIS       string `json:"itbis"`
}

// FromSale converts a sale to its response form.
func FromSale(s *sales.Sale) SaleResponse {
	resp := SaleResponse{
		ID:            s.ID,
		InvoiceType:   s.InvoiceType,
		InvoiceNumber: s.InvoiceNumber,
		CustomerName:  s.CustomerName,
		CustomerRNC:   s.CustomerRNC,
		Subtotal:      s.Subtotal.StringFixed(2),
		ITBIS:         s.ITBIS.StringFixed(2),
		Total:         s.Total.StringFixed(2),
		CreatedBy:     s.CreatedBy,
		CreatedAt:     s.CreatedAt,
	}
	for _, l := range s.Lines {
		resp.Lines = append(resp.Lines, SaleLineResponse{
			LineNo:      l.LineNo,
			Description: l.Description,
			Quantity:    l.Quantity.String(),
			UnitPrice:   l.UnitPrice.StringFixed(2),
			Taxable:     l.Taxable,
			Amount:      l.Amount.StringFixed(2),
			ITBIS:       l.ITBIS.StringFixed(2),
		})
	}
	return resp
}

// SaleListRequest filters GET /sales.
type SaleListRequest struct {
	PageRequest
	InvoiceType string `form:"invoice_type_id"`
}
