package handlers

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"routeledger/internal/core/apperror"
	"routeledger/internal/core/types"
	"routeledger/internal/domain/settlement"
	"routeledger/internal/infrastructure/export"
	"routeledger/internal/infrastructure/http/v1/dto"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// SettlementHandler serves the daily settlement and its archives.
type SettlementHandler struct {
	*BaseHandler
	engine *settlement.Engine
}

// NewSettlementHandler creates a settlement handler.
func NewSettlementHandler(base *BaseHandler, engine *settlement.Engine) *SettlementHandler {
	return &SettlementHandler{BaseHandler: base, engine: engine}
}

// Run handles POST /settlement/run
func (h *SettlementHandler) Run(c *gin.Context) {
	var req dto.RunSettlementRequest
	if c.Request.ContentLength != 0 && !h.BindJSON(c, &req) {
		return
	}
	day, err := dto.DateQuery{Date: req.Date}.Day()
	if err != nil {
		h.Error(c, err)
		return
	}
	res, err := h.engine.Run(c.Request.Context(), day)
	if err != nil {
		h.Error(c, err)
		return
	}
	if res.AlreadySettled {
		h.OK(c, res)
		return
	}
	h.CreatedWith(c, res)
}

// Status handles GET /settlement/status
func (h *SettlementHandler) Status(c *gin.Context) {
	h.OK(c, h.engine.Status())
}

// Preview handles GET /settlement/preview
func (h *SettlementHandler) Preview(c *gin.Context) {
	var q dto.DateQuery
	if !h.BindQuery(c, &q) {
		return
	}
	day, err := q.Day()
	if err != nil {
		h.Error(c, err)
		return
	}
	p, err := h.engine.Preview(c.Request.Context(), day)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, p)
}

// Archives handles GET /settlement/archives
func (h *SettlementHandler) Archives(c *gin.Context) {
	var q dto.RangeQuery
	if !h.BindQuery(c, &q) {
		return
	}
	from, to, err := q.Bounds()
	if err != nil {
		h.Error(c, err)
		return
	}
	archives, err := h.engine.ListArchives(c.Request.Context(), from, to)
	if err != nil {
		h.Error(c, err)
		return
	}
	items := make([]dto.ArchiveHeader, len(archives))
	for i, a := range archives {
		items[i] = dto.FromArchive(a)
	}
	h.OK(c, dto.NewList(items))
}

// Archive handles GET /settlement/archives/:id
func (h *SettlementHandler) Archive(c *gin.Context) {
	archiveID, ok := h.PathID(c)
	if !ok {
		return
	}
	a, err := h.engine.GetArchive(c.Request.Context(), archiveID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, a)
}

// Export handles GET /settlement/archives/:id/export
func (h *SettlementHandler) Export(c *gin.Context) {
	archiveID, ok := h.PathID(c)
	if !ok {
		return
	}
	a, err := h.engine.GetArchive(c.Request.Context(), archiveID)
	if err != nil {
		h.Error(c, err)
		return
	}
	var buf bytes.Buffer
	if err := export.WriteArchive(&buf, a); err != nil {
		h.Error(c, apperror.NewInternal(err))
		return
	}
	name := fmt.Sprintf("settlement-%s-%d.xlsx", types.FormatDay(a.Date), a.Sequence)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

// Summary handles GET /settlement/summary
func (h *SettlementHandler) Summary(c *gin.Context) {
	var q dto.DateQuery
	if !h.BindQuery(c, &q) {
		return
	}
	day, err := q.Day()
	if err != nil {
		h.Error(c, err)
		return
	}
	s, err := h.engine.DailySummary(c.Request.Context(), day)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, s)
}
