package v1

import (
	"github.com/gin-gonic/gin"

	appctx "routeledger/internal/core/context"
	"routeledger/internal/infrastructure/http/v1/handlers"
	"routeledger/internal/infrastructure/http/v1/middleware"
)

func registerShopRoutes(group *gin.RouterGroup, h *handlers.ShopHandler) {
	group.POST("", h.Create)
	group.GET("", h.List)
	group.GET("/:id", h.Get)
	group.DELETE("/:id", h.Remove)
	group.PUT("/:id/route", h.SetRoute)
	group.GET("/:id/balance", h.Balance)
	group.POST("/:id/pay-tomorrow", h.PayTomorrow)
	group.GET("/:id/payments", h.Payments)
	group.GET("/:id/pending", h.Pending)
}

func registerProductRoutes(group *gin.RouterGroup, h *handlers.ProductHandler) {
	group.POST("", h.Create)
	group.GET("", h.List)
	group.GET("/:id", h.Get)
	group.POST("/:id/restock", h.Restock)
	group.PUT("/:id/price", h.SetPrice)
	group.GET("/:id/movements", h.Movements)
}

func registerDeliveryRoutes(group *gin.RouterGroup, h *handlers.DeliveryHandler) {
	group.POST("", h.Create)
	group.GET("", h.List)
	group.GET("/deleted", h.Deleted)
	group.GET("/:id", h.Get)
	group.DELETE("/:id", h.Delete)
	group.POST("/:id/restore", h.Restore)
}

func registerMoneyRoutes(group *gin.RouterGroup, h *handlers.PaymentHandler) {
	group.POST("/payments", h.Record)
	group.POST("/pending", h.AddPending)
	group.GET("/collection", h.Collection)
}

// Running a settlement needs the settlement scope; reading archives does not.
func registerSettlementRoutes(group *gin.RouterGroup, h *handlers.SettlementHandler) {
	group.POST("/run", middleware.RequireScope(appctx.ScopeSettlement), h.Run)
	group.GET("/status", h.Status)
	group.GET("/preview", h.Preview)
	group.GET("/summary", h.Summary)
	group.GET("/archives", h.Archives)
	group.GET("/archives/:id", h.Archive)
	group.GET("/archives/:id/export", h.Export)
}
