package v1

import (
	"github.com/gin-gonic/gin"

	"ncfpos/internal/infrastructure/http/v1/middleware"
)

// Roles understood by the API.
const (
	RoleAdmin       = "admin"
	RoleIntegration = "integration"
)

// SequenceRouteHandler is the set of sequence endpoints.
type SequenceRouteHandler interface {
	List(c *gin.Context)
	PeekNext(c *gin.Context)
	IssueNext(c *gin.Context)
	SetCounter(c *gin.Context)
	Provision(c *gin.Context)
	Reconcile(c *gin.Context)
	History(c *gin.Context)
}

// SaleRouteHandler is the set of sale endpoints.
type SaleRouteHandler interface {
	Create(c *gin.Context)
	Get(c *gin.Context)
	List(c *gin.Context)
}

// RegisterSequenceRoutes mounts the allocator endpoints on group.
// Reads are open to any user of the store; writes need admin, and raw
// issuance is also allowed to integrations that number their own documents.
func RegisterSequenceRoutes(group *gin.RouterGroup, handler SequenceRouteHandler) {
	admin := middleware.RequireRole(RoleAdmin)

	group.GET("", handler.List)
	group.GET("/audit", admin, handler.Reconcile)
	group.GET("/history", admin, handler.History)
	group.POST("/provision", admin, handler.Provision)
	group.GET("/:type/next", handler.PeekNext)
	group.POST("/:type/issue", middleware.RequireRole(RoleAdmin, RoleIntegration), handler.IssueNext)
	group.PUT("/:type", admin, handler.SetCounter)
}

// RegisterSaleRoutes mounts the sale endpoints on group.
func RegisterSaleRoutes(group *gin.RouterGroup, handler SaleRouteHandler) {
	group.POST("", handler.Create)
	group.GET("", handler.List)
	group.GET("/:id", handler.Get)
}
