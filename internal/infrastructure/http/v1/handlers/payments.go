package handlers

import (
	"github.com/gin-gonic/gin"

	"routeledger/internal/domain/payment"
	"routeledger/internal/infrastructure/http/v1/dto"
)

// PaymentHandler serves payments, pending entries and the collection view.
type PaymentHandler struct {
	*BaseHandler
	reconciler *payment.Reconciler
}

// NewPaymentHandler creates a payment handler.
func NewPaymentHandler(base *BaseHandler, reconciler *payment.Reconciler) *PaymentHandler {
	return &PaymentHandler{BaseHandler: base, reconciler: reconciler}
}

// Record handles POST /payments
func (h *PaymentHandler) Record(c *gin.Context) {
	var req dto.RecordPaymentRequest
	if !h.BindJSON(c, &req) {
		return
	}
	in, err := req.ToDomain()
	if err != nil {
		h.Error(c, err)
		return
	}
	p, err := h.reconciler.RecordPayment(c.Request.Context(), in)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.CreatedWith(c, p)
}

// AddPending handles POST /pending
func (h *PaymentHandler) AddPending(c *gin.Context) {
	var req dto.AddPendingRequest
	if !h.BindJSON(c, &req) {
		return
	}
	in, err := req.ToDomain()
	if err != nil {
		h.Error(c, err)
		return
	}
	e, err := h.reconciler.AddPendingAmount(c.Request.Context(), in)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.CreatedWith(c, e)
}

// Collection handles GET /collection
func (h *PaymentHandler) Collection(c *gin.Context) {
	view, err := h.reconciler.CollectionView(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, view)
}
