package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ncfpos/internal/core/apperror"
	appctx "ncfpos/internal/core/context"
	"ncfpos/internal/core/id"
)

// BaseHandler provides common handler utilities.
type BaseHandler struct{}

// BindJSON binds and validates JSON request body.
func (h *BaseHandler) BindJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		h.HandleError(c, apperror.NewValidation("invalid request body").WithDetail("error", err.Error()))
		return false
	}
	return true
}

// BindQuery binds and validates query parameters.
func (h *BaseHandler) BindQuery(c *gin.Context, obj any) bool {
	if err := c.ShouldBindQuery(obj); err != nil {
		h.HandleError(c, apperror.NewValidation("invalid query parameters").WithDetail("error", err.Error()))
		return false
	}
	return true
}

// HandleError registers error on Gin context and aborts request.
// The JSON body is produced by middleware (ErrorHandler or Idempotency).
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// StoreID returns the store resolved by middleware.StoreScope.
func (h *BaseHandler) StoreID(c *gin.Context) (id.ID, bool) {
	storeID, err := id.Parse(appctx.GetStoreID(c.Request.Context()))
	if err != nil {
		h.HandleError(c, apperror.NewValidation("store is not selected"))
		return id.ID{}, false
	}
	return storeID, true
}

// PathID parses a uuid path parameter.
func (h *BaseHandler) PathID(c *gin.Context, param string) (id.ID, bool) {
	v, err := id.Parse(c.Param(param))
	if err != nil {
		h.HandleError(c, apperror.NewValidation("invalid "+param).WithDetail(param, c.Param(param)))
		return id.ID{}, false
	}
	return v, true
}

// OK sends 200 response with data.
func (h *BaseHandler) OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, data)
}

// Created sends 201 response with data.
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, data)
}
