package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ZkAGI/pawpad-rofl/internal/paas"
)

// Entry is one successful trade to be recorded.
type Entry struct {
	UID     string
	Action  string
	TxHash  string
	Meta    map[string]any
	CycleID string
}

// ActionName formats the audit action, e.g. TRADE_BUY_ETH.
func ActionName(action, asset string) string {
	return "TRADE_" + strings.ToUpper(action) + "_" + strings.ToUpper(asset)
}

func (e Entry) MetaJSON() string {
	if len(e.Meta) == 0 {
		return "{}"
	}
	b, err := json.Marshal(e.Meta)
	if err != nil {
		return "{}"
	}
	return string(b)
}

type Emitter interface {
	RecordAudit(ctx context.Context, entry Entry) error
}

// Multi sends the entry to every emitter and joins their errors.
type Multi []Emitter

func (m Multi) RecordAudit(ctx context.Context, entry Entry) error {
	var errs []error
	for _, e := range m {
		if e == nil {
			continue
		}
		if err := e.RecordAudit(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Gated forwards only while Enabled reports true.
type Gated struct {
	Emitter Emitter
	Enabled func(ctx context.Context) bool
}

func (g Gated) RecordAudit(ctx context.Context, entry Entry) error {
	if g.Emitter == nil || (g.Enabled != nil && !g.Enabled(ctx)) {
		return nil
	}
	return g.Emitter.RecordAudit(ctx, entry)
}

// OpsLogEmitter mirrors audit entries to the easyweb3 ops log.
type OpsLogEmitter struct {
	Client *paas.Client
}

func (o *OpsLogEmitter) RecordAudit(ctx context.Context, entry Entry) error {
	if o == nil || o.Client == nil {
		return nil
	}
	err := o.Client.CreateLog(ctx, paas.CreateLogRequest{
		Action: "pawpad_trade_audit",
		Level:  "info",
		Details: map[string]any{
			"uid":      entry.UID,
			"action":   entry.Action,
			"tx_hash":  entry.TxHash,
			"meta":     entry.Meta,
			"cycle_id": entry.CycleID,
		},
	})
	if err != nil {
		return fmt.Errorf("ops log audit: %w", err)
	}
	return nil
}
