package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	"ncfpos/internal/domain/sales"
	"ncfpos/internal/infrastructure/http/v1/dto"
	"ncfpos/internal/infrastructure/http/v1/middleware"
)

// SaleHandler creates and reads sales.
type SaleHandler struct {
	BaseHandler
	service *sales.Service
}

// NewSaleHandler creates a sale handler.
func NewSaleHandler(service *sales.Service) *SaleHandler {
	return &SaleHandler{service: service}
}

// Create handles POST /sales. The invoice number is issued by the server.
// The idempotency key is stored with the sale, so a replay returns the
// original sale even when no response was recorded for the key.
func (h *SaleHandler) Create(c *gin.Context) {
	storeID, ok := h.StoreID(c)
	if !ok {
		return
	}
	var req dto.CreateSaleRequest
	if !h.BindJSON(c, &req) {
		return
	}
	req.InvoiceType = strings.ToUpper(strings.TrimSpace(req.InvoiceType))

	sale := req.ToSale(storeID)
	sale.ClientKey = c.GetHeader(middleware.HeaderIdempotencyKey)
	if err := h.service.Create(c.Request.Context(), sale); err != nil {
		h.HandleError(c, err)
		return
	}
	if sale.Replayed {
		c.Header(middleware.HeaderIdempotentReplay, "true")
	}
	h.Created(c, dto.FromSale(sale))
}

// Get handles GET /sales/:id.
func (h *SaleHandler) Get(c *gin.Context) {
	storeID, ok := h.StoreID(c)
	if !ok {
		return
	}
	saleID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	sale, err := h.service.GetByID(c.Request.Context(), storeID, saleID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.OK(c, dto.FromSale(sale))
}

// List handles GET /sales.
func (h *SaleHandler) List(c *gin.Context) {
	storeID, ok := h.StoreID(c)
	if !ok {
		return
	}
	var req dto.SaleListRequest
	if !h.BindQuery(c, &req) {
		return
	}
	req.Defaults()

	list, err := h.service.List(c.Request.Context(), sales.ListFilter{
		StoreID:     storeID,
		InvoiceType: strings.ToUpper(req.InvoiceType),
		Limit:       req.Limit,
		Offset:      req.Offset,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	items := make([]dto.SaleResponse, 0, len(list))
	for _, s := range list {
		items = append(items, dto.FromSale(s))
	}
	h.OK(c, dto.ListResponse[dto.SaleResponse]{Items: items, Limit: req.Limit, Offset: req.Offset})
}
