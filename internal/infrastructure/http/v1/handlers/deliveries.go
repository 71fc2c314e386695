package handlers

import (
	"github.com/gin-gonic/gin"

	"routeledger/internal/domain/delivery"
	"routeledger/internal/infrastructure/http/v1/dto"
)

// DeliveryHandler serves the delivery ledger.
type DeliveryHandler struct {
	*BaseHandler
	ledger *delivery.Ledger
}

// NewDeliveryHandler creates a delivery handler.
func NewDeliveryHandler(base *BaseHandler, ledger *delivery.Ledger) *DeliveryHandler {
	return &DeliveryHandler{BaseHandler: base, ledger: ledger}
}

// Create handles POST /deliveries
func (h *DeliveryHandler) Create(c *gin.Context) {
	var req dto.CreateDeliveryRequest
	if !h.BindJSON(c, &req) {
		return
	}
	in, err := req.ToDomain()
	if err != nil {
		h.Error(c, err)
		return
	}
	d, err := h.ledger.Create(c.Request.Context(), in)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.CreatedWith(c, d)
}

// List handles GET /deliveries
func (h *DeliveryHandler) List(c *gin.Context) {
	var q dto.DeliveryListQuery
	if !h.BindQuery(c, &q) {
		return
	}
	f, err := q.ToFilter()
	if err != nil {
		h.Error(c, err)
		return
	}
	items, err := h.ledger.List(c.Request.Context(), f)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewList(items))
}

// Deleted handles GET /deliveries/deleted
func (h *DeliveryHandler) Deleted(c *gin.Context) {
	var q dto.DeletedQuery
	if !h.BindQuery(c, &q) {
		return
	}
	shopID, err := dto.ParseOptionalID("shopId", q.ShopID)
	if err != nil {
		h.Error(c, err)
		return
	}
	items, err := h.ledger.Deleted(c.Request.Context(), shopID, q.Limit)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewList(items))
}

// Get handles GET /deliveries/:id
func (h *DeliveryHandler) Get(c *gin.Context) {
	deliveryID, ok := h.PathID(c)
	if !ok {
		return
	}
	d, err := h.ledger.Get(c.Request.Context(), deliveryID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, d)
}

// Delete handles DELETE /deliveries/:id
func (h *DeliveryHandler) Delete(c *gin.Context) {
	deliveryID, ok := h.PathID(c)
	if !ok {
		return
	}
	d, err := h.ledger.Delete(c.Request.Context(), deliveryID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, d)
}

// Restore handles POST /deliveries/:id/restore
func (h *DeliveryHandler) Restore(c *gin.Context) {
	deliveryID, ok := h.PathID(c)
	if !ok {
		return
	}
	d, err := h.ledger.Restore(c.Request.Context(), deliveryID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, d)
}
