package handlers

import (
	"github.com/gin-gonic/gin"

	"routeledger/internal/domain/payment"
	"routeledger/internal/domain/shop"
	"routeledger/internal/infrastructure/http/v1/dto"
)

// ShopHandler serves the shop directory and per-shop balances.
type ShopHandler struct {
	*BaseHandler
	directory  *shop.Directory
	reconciler *payment.Reconciler
}

// NewShopHandler creates a shop handler.
func NewShopHandler(base *BaseHandler, directory *shop.Directory, reconciler *payment.Reconciler) *ShopHandler {
	return &ShopHandler{BaseHandler: base, directory: directory, reconciler: reconciler}
}

// Create handles POST /shops
func (h *ShopHandler) Create(c *gin.Context) {
	var req dto.CreateShopRequest
	if !h.BindJSON(c, &req) {
		return
	}
	s, err := h.directory.Register(c.Request.Context(), req.Name, req.Route)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.CreatedWith(c, s)
}

// List handles GET /shops
func (h *ShopHandler) List(c *gin.Context) {
	var q dto.ShopListQuery
	if !h.BindQuery(c, &q) {
		return
	}
	shops, err := h.directory.List(c.Request.Context(), q.IncludeRemoved)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewList(shops))
}

// Get handles GET /shops/:id
func (h *ShopHandler) Get(c *gin.Context) {
	shopID, ok := h.PathID(c)
	if !ok {
		return
	}
	s, err := h.directory.Get(c.Request.Context(), shopID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, s)
}

// Remove handles DELETE /shops/:id
func (h *ShopHandler) Remove(c *gin.Context) {
	shopID, ok := h.PathID(c)
	if !ok {
		return
	}
	s, err := h.directory.Remove(c.Request.Context(), shopID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, s)
}

// SetRoute handles PUT /shops/:id/route
func (h *ShopHandler) SetRoute(c *gin.Context) {
	shopID, ok := h.PathID(c)
	if !ok {
		return
	}
	var req dto.UpdateRouteRequest
	if !h.BindJSON(c, &req) {
		return
	}
	s, err := h.directory.SetRoute(c.Request.Context(), shopID, req.Route)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, s)
}

// Balance handles GET /shops/:id/balance
func (h *ShopHandler) Balance(c *gin.Context) {
	shopID, ok := h.PathID(c)
	if !ok {
		return
	}
	b, err := h.reconciler.GetBalance(c.Request.Context(), shopID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, b)
}

// PayTomorrow handles POST /shops/:id/pay-tomorrow
func (h *ShopHandler) PayTomorrow(c *gin.Context) {
	shopID, ok := h.PathID(c)
	if !ok {
		return
	}
	var req dto.PayTomorrowRequest
	if !h.BindJSON(c, &req) {
		return
	}
	s, err := h.reconciler.MarkPayTomorrow(c.Request.Context(), shopID, req.Note)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, s)
}

// Payments handles GET /shops/:id/payments
func (h *ShopHandler) Payments(c *gin.Context) {
	shopID, ok := h.PathID(c)
	if !ok {
		return
	}
	var q dto.HistoryQuery
	if !h.BindQuery(c, &q) {
		return
	}
	items, err := h.reconciler.Payments(c.Request.Context(), shopID, q.All)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewList(items))
}

// Pending handles GET /shops/:id/pending
func (h *ShopHandler) Pending(c *gin.Context) {
	shopID, ok := h.PathID(c)
	if !ok {
		return
	}
	var q dto.HistoryQuery
	if !h.BindQuery(c, &q) {
		return
	}
	items, err := h.reconciler.PendingEntries(c.Request.Context(), shopID, q.All)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewList(items))
}
