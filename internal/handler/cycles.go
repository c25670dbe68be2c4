package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ZkAGI/pawpad-rofl/internal/scheduler"
)

type CycleRunner interface {
	Run(ctx context.Context, cycleID string) scheduler.Summary
}

// CyclesHandler starts an out-of-schedule cycle. The cycle runs on BaseCtx,
// not the request context, so it survives the response.
type CyclesHandler struct {
	Runner  CycleRunner
	BaseCtx context.Context
	Logger  *zap.Logger
}

func (h *CyclesHandler) Register(r *gin.Engine) {
	r.POST("/api/v1/cycles/run", h.run)
}

func (h *CyclesHandler) run(c *gin.Context) {
	if h.Runner == nil {
		Unavailable(c, "scheduler")
		return
	}
	ctx := h.BaseCtx
	if ctx == nil {
		ctx = context.Background()
	}
	cycleID := "manual-" + uuid.NewString()
	go func() {
		sum := h.Runner.Run(ctx, cycleID)
		if h.Logger != nil {
			h.Logger.Info("manual cycle done", zap.String("cycle_id", cycleID), zap.String("halted", sum.Halted))
		}
	}()
	Accepted(c, map[string]any{"cycle_id": cycleID})
}
