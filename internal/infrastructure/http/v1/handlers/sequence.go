package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	"ncfpos/internal/core/apperror"
	"ncfpos/internal/core/numerator"
	"ncfpos/internal/domain/sequence"
	"ncfpos/internal/infrastructure/http/v1/dto"
)

// SequenceHandler exposes the invoice sequence allocator.
type SequenceHandler struct {
	BaseHandler
	service *sequence.Service
	audit   sequence.AuditTrail // Optional.
}

// NewSequenceHandler creates a sequence handler. audit may be nil.
func NewSequenceHandler(service *sequence.Service, audit sequence.AuditTrail) *SequenceHandler {
	return &SequenceHandler{service: service, audit: audit}
}

// key builds the counter key from the store scope and the :type parameter.
func (h *SequenceHandler) key(c *gin.Context) (numerator.Key, bool) {
	storeID, ok := h.StoreID(c)
	if !ok {
		return numerator.Key{}, false
	}
	return numerator.Key{
		StoreID:     storeID,
		InvoiceType: strings.ToUpper(c.Param("type")),
	}, true
}

// List handles GET /sequences.
func (h *SequenceHandler) List(c *gin.Context) {
	storeID, ok := h.StoreID(c)
	if !ok {
		return
	}
	counters, err := h.service.List(c.Request.Context(), storeID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.OK(c, dto.ItemsResponse[dto.CounterResponse]{Items: dto.FromCounters(counters)})
}

// PeekNext handles GET /sequences/:type/next.
func (h *SequenceHandler) PeekNext(c *gin.Context) {
	key, ok := h.key(c)
	if !ok {
		return
	}
	number, err := h.service.PeekNext(c.Request.Context(), key)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.OK(c, dto.NumberResponse{InvoiceType: key.InvoiceType, Number: number})
}

// IssueNext handles POST /sequences/:type/issue.
func (h *SequenceHandler) IssueNext(c *gin.Context) {
	key, ok := h.key(c)
	if !ok {
		return
	}
	number, err := h.service.IssueNext(c.Request.Context(), key)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, dto.NumberResponse{InvoiceType: key.InvoiceType, Number: number})
}

// SetCounter handles PUT /sequences/:type.
func (h *SequenceHandler) SetCounter(c *gin.Context) {
	key, ok := h.key(c)
	if !ok {
		return
	}
	var req dto.SetCounterRequest
	if !h.BindJSON(c, &req) {
		return
	}
	counter, err := h.service.SetCounter(c.Request.Context(), key, *req.CurrentNumber)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.OK(c, dto.FromCounter(counter))
}

// Provision handles POST /sequences/provision.
func (h *SequenceHandler) Provision(c *gin.Context) {
	storeID, ok := h.StoreID(c)
	if !ok {
		return
	}
	var req dto.ProvisionRequest
	if !h.BindJSON(c, &req) {
		return
	}
	for i, t := range req.InvoiceTypes {
		req.InvoiceTypes[i] = strings.ToUpper(strings.TrimSpace(t))
	}
	counters, err := h.service.Provision(c.Request.Context(), storeID, req.InvoiceTypes, req.Initial)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.OK(c, dto.ItemsResponse[dto.CounterResponse]{Items: dto.FromCounters(counters)})
}

// Reconcile handles GET /sequences/audit.
func (h *SequenceHandler) Reconcile(c *gin.Context) {
	storeID, ok := h.StoreID(c)
	if !ok {
		return
	}
	report, err := h.service.Reconcile(c.Request.Context(), storeID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.OK(c, gin.H{
		"store_id": report.StoreID,
		"checked":  report.Checked,
		"behind":   report.Behind,
		"healthy":  report.Healthy(),
	})
}

// History handles GET /sequences/history.
func (h *SequenceHandler) History(c *gin.Context) {
	if h.audit == nil {
		h.HandleError(c, apperror.NewNotFound("audit trail", "disabled"))
		return
	}
	storeID, ok := h.StoreID(c)
	if !ok {
		return
	}
	var req dto.HistoryRequest
	if !h.BindQuery(c, &req) {
		return
	}
	if req.Limit == 0 {
		req.Limit = 100
	}
	entries, err := h.audit.StoreHistory(c.Request.Context(), storeID, req.Limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.OK(c, dto.ItemsResponse[dto.AuditEntryResponse]{Items: dto.FromAuditEntries(entries)})
}
