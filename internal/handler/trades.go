package handler

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ZkAGI/pawpad-rofl/internal/repository"
)

type TradesHandler struct {
	Repo repository.TradeRepository
}

func (h *TradesHandler) Register(r *gin.Engine) {
	r.GET("/api/v1/trades", h.list)
}

func (h *TradesHandler) list(c *gin.Context) {
	if h.Repo == nil {
		Unavailable(c, "repo")
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	asset := strQueryPtr(c, "asset")
	if asset != nil {
		upper := strings.ToUpper(*asset)
		asset = &upper
	}
	items, err := h.Repo.ListTradeRecords(c.Request.Context(), repository.ListTradeRecordsParams{
		Limit:   limit,
		Offset:  offset,
		UID:     strQueryPtr(c, "uid"),
		Asset:   asset,
		Status:  strQueryPtr(c, "status"),
		CycleID: strQueryPtr(c, "cycle_id"),
		OrderBy: "timestamp",
		Asc:     boolPtr(false),
	})
	if err != nil {
		Upstream(c, err)
		return
	}
	Page(c, items, limit, offset, len(items))
}
