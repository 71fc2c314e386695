package handlers

import (
	"github.com/gin-gonic/gin"

	"routeledger/internal/domain/stock"
	"routeledger/internal/infrastructure/http/v1/dto"
)

// ProductHandler serves products and the stock journal.
type ProductHandler struct {
	*BaseHandler
	registry *stock.Registry
}

// NewProductHandler creates a product handler.
func NewProductHandler(base *BaseHandler, registry *stock.Registry) *ProductHandler {
	return &ProductHandler{BaseHandler: base, registry: registry}
}

// Create handles POST /products
func (h *ProductHandler) Create(c *gin.Context) {
	var req dto.CreateProductRequest
	if !h.BindJSON(c, &req) {
		return
	}
	price, opening, err := req.Parse()
	if err != nil {
		h.Error(c, err)
		return
	}
	p, err := h.registry.AddProduct(c.Request.Context(), req.Name, price, opening)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.CreatedWith(c, p)
}

// List handles GET /products
func (h *ProductHandler) List(c *gin.Context) {
	products, err := h.registry.ListProducts(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewList(products))
}

// Get handles GET /products/:id
func (h *ProductHandler) Get(c *gin.Context) {
	productID, ok := h.PathID(c)
	if !ok {
		return
	}
	p, err := h.registry.Peek(c.Request.Context(), productID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, p)
}

// Restock handles POST /products/:id/restock
func (h *ProductHandler) Restock(c *gin.Context) {
	productID, ok := h.PathID(c)
	if !ok {
		return
	}
	var req dto.RestockRequest
	if !h.BindJSON(c, &req) {
		return
	}
	qty, err := req.Parse()
	if err != nil {
		h.Error(c, err)
		return
	}
	p, err := h.registry.Restock(c.Request.Context(), productID, qty)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, p)
}

// SetPrice handles PUT /products/:id/price
func (h *ProductHandler) SetPrice(c *gin.Context) {
	productID, ok := h.PathID(c)
	if !ok {
		return
	}
	var req dto.SetPriceRequest
	if !h.BindJSON(c, &req) {
		return
	}
	price, err := req.Parse()
	if err != nil {
		h.Error(c, err)
		return
	}
	p, err := h.registry.SetPrice(c.Request.Context(), productID, price)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, p)
}

// Movements handles GET /products/:id/movements
func (h *ProductHandler) Movements(c *gin.Context) {
	productID, ok := h.PathID(c)
	if !ok {
		return
	}
	var q dto.MovementQuery
	if !h.BindQuery(c, &q) {
		return
	}
	movements, err := h.registry.Movements(c.Request.Context(), productID, q.Limit)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewList(movements))
}
