package handler

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/ZkAGI/pawpad-rofl/internal/scheduler"
	"github.com/ZkAGI/pawpad-rofl/internal/signal"
)

type CycleReporter interface {
	LastSummary() *scheduler.Summary
}

type SignalHealth interface {
	Health() map[signal.Asset]signal.HealthStatus
}

// SignerReporter exposes the address that pays for audit transactions, so
// operators know which account to fund.
type SignerReporter interface {
	SignerAddress(ctx context.Context) (common.Address, error)
}

type StatusHandler struct {
	TradingDisabled bool
	Cycles          CycleReporter
	Signals         SignalHealth
	AuditSigner     SignerReporter
}

func (h *StatusHandler) Register(r *gin.Engine) {
	r.GET("/api/v1/status", h.status)
}

func (h *StatusHandler) status(c *gin.Context) {
	out := map[string]any{
		"trading_disabled": h.TradingDisabled,
		"last_cycle":       nil,
		"signals":          map[signal.Asset]signal.HealthStatus{},
	}
	if h.Cycles != nil {
		if last := h.Cycles.LastSummary(); last != nil {
			out["last_cycle"] = last
		}
	}
	if h.Signals != nil {
		out["signals"] = h.Signals.Health()
	}
	if h.AuditSigner != nil {
		if addr, err := h.AuditSigner.SignerAddress(c.Request.Context()); err == nil {
			out["audit_signer"] = addr.Hex()
		} else {
			out["audit_signer_error"] = err.Error()
		}
	}
	Ok(c, out, nil)
}
