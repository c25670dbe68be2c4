package trade

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/ZkAGI/pawpad-rofl/internal/audit"
	"github.com/ZkAGI/pawpad-rofl/internal/models"
	"github.com/ZkAGI/pawpad-rofl/internal/repository"
	"github.com/ZkAGI/pawpad-rofl/internal/signal"
)

// Task is one (user, asset) pair for one cycle.
type Task struct {
	CycleID            string
	UID                string
	AllowedAssets      []string
	MaxTradeAmountUSDC decimal.Decimal
	Signal             signal.Signal
}

func (t Task) assetAllowed() bool {
	for _, a := range t.AllowedAssets {
		if strings.EqualFold(strings.TrimSpace(a), string(t.Signal.Asset)) {
			return true
		}
	}
	return false
}

// Attempt is the finalized outcome of one Task.
type Attempt struct {
	UID           string
	Asset         signal.Asset
	Action        signal.Action
	SignalPrice   decimal.Decimal
	QuotedPrice   *decimal.Decimal
	DeviationPct  *decimal.Decimal
	TxHash        string
	SubmittedTx   string
	Status        Status
	FailureReason FailureReason
	SkipReason    string
	Err           error
}

type Dispatcher struct {
	Registry Registry
	Trades   repository.TradeRepository
	Audit    audit.Emitter
	Logger   *zap.Logger
	Now      func() time.Time
}

func (d *Dispatcher) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now().UTC()
	}
	return time.Now().UTC()
}

// Dispatch runs one task to completion. It never panics and never returns
// an error; the outcome is in the Attempt.
func (d *Dispatcher) Dispatch(ctx context.Context, task Task) Attempt {
	att := Attempt{
		UID:         task.UID,
		Asset:       task.Signal.Asset,
		Action:      task.Signal.Action,
		SignalPrice: task.Signal.Price,
		Status:      StatusPending,
	}
	log := d.logger().With(
		zap.String("cycle_id", task.CycleID),
		zap.String("uid", task.UID),
		zap.String("asset", string(att.Asset)),
		zap.String("action", string(att.Action)),
	)

	switch {
	case att.Action != signal.ActionBuy && att.Action != signal.ActionSell:
		return skip(att, "hold")
	case !task.assetAllowed():
		return skip(att, "asset_not_allowed")
	case !task.MaxTradeAmountUSDC.IsPositive():
		return skip(att, "zero_amount")
	case ctx.Err() != nil:
		return skip(att, "cancelled")
	}
	executor, ok := d.Registry.Lookup(att.Asset)
	if !ok {
		log.Warn("no executor for asset")
		return skip(att, "no_executor")
	}

	att.Status = StatusAttempting
	log.Info("executing trade",
		zap.String("price", task.Signal.Price.String()),
		zap.String("amount_usdc", task.MaxTradeAmountUSDC.String()),
		zap.Any("score", task.Signal.Score),
		zap.Any("confidence", task.Signal.Confidence),
	)
	req := Request{
		CycleID:     task.CycleID,
		UID:         task.UID,
		Asset:       att.Asset,
		Action:      att.Action,
		AmountUSDC:  task.MaxTradeAmountUSDC,
		SignalPrice: task.Signal.Price,
	}
	res, err := safeExecute(ctx, executor, req)
	att = finalize(att, res, err)

	if att.Status == StatusSuccess {
		log.Info("trade confirmed", zap.String("tx_hash", att.TxHash))
	} else {
		log.Warn("trade failed",
			zap.String("reason", string(att.FailureReason)),
			zap.String("submitted_tx", att.SubmittedTx),
			zap.Error(att.Err),
		)
	}

	// Persistence and audit use a context detached from task cancellation
	// so a finished swap is always written down.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	record := d.buildRecord(task, att)
	if d.Trades != nil {
		if err := d.Trades.AppendTradeRecord(wctx, record); err != nil {
			log.Error("append trade record failed", zap.Error(err))
		}
	}
	if att.Status == StatusSuccess && d.Audit != nil {
		entry := audit.Entry{
			UID:     task.UID,
			Action:  audit.ActionName(string(att.Action), string(att.Asset)),
			TxHash:  att.TxHash,
			CycleID: task.CycleID,
			Meta: map[string]any{
				"price":  task.Signal.Price.InexactFloat64(),
				"amount": task.MaxTradeAmountUSDC.InexactFloat64(),
			},
		}
		if err := d.Audit.RecordAudit(wctx, entry); err != nil {
			log.Warn("audit emit failed", zap.Error(err))
		}
	}
	return att
}

func skip(att Attempt, reason string) Attempt {
	att.Status = StatusSkipped
	att.SkipReason = reason
	return att
}

func safeExecute(ctx context.Context, ex Executor, req Request) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{}
			err = Failf(ReasonChainException, "executor panic: %v", r)
		}
	}()
	return ex.Execute(ctx, req)
}

func finalize(att Attempt, res Result, err error) Attempt {
	if err == nil && strings.TrimSpace(res.TxHash) == "" {
		err = Fail(ReasonChainException, errors.New("executor returned no transaction hash"))
	}
	if err != nil {
		f := AsFailure(err)
		att.Status = StatusFailed
		att.TxHash = FailedTxHash
		att.FailureReason = f.Reason
		att.SubmittedTx = f.SubmittedTx
		att.QuotedPrice = f.QuotedPrice
		att.DeviationPct = f.DeviationPct
		att.Err = err
		return att
	}
	att.Status = StatusSuccess
	att.TxHash = res.TxHash
	att.QuotedPrice = res.QuotedPrice
	att.DeviationPct = res.DeviationPct
	return att
}

func (d *Dispatcher) buildRecord(task Task, att Attempt) *models.TradeRecord {
	tokenIn := string(att.Asset)
	if att.Action == signal.ActionBuy {
		tokenIn = "USDC"
	}
	rec := &models.TradeRecord{
		CycleID:          task.CycleID,
		UID:              task.UID,
		Chain:            string(ChainFor(att.Asset)),
		Asset:            string(att.Asset),
		Action:           string(att.Action),
		AmountIn:         task.MaxTradeAmountUSDC.String(),
		TokenIn:          tokenIn,
		SignalPrice:      att.SignalPrice,
		QuotedPrice:      att.QuotedPrice,
		DeviationPct:     att.DeviationPct,
		SignalScore:      task.Signal.Score,
		SignalConfidence: task.Signal.Confidence,
		TxHash:           att.TxHash,
		Status:           string(att.Status),
		Timestamp:        d.now(),
	}
	if att.SubmittedTx != "" {
		s := att.SubmittedTx
		rec.SubmittedTxHash = &s
	}
	meta := map[string]any{}
	if att.FailureReason != "" {
		r := string(att.FailureReason)
		rec.FailureReason = &r
	}
	if att.Err != nil {
		meta["error"] = truncate(att.Err.Error(), 500)
	}
	if !task.Signal.Timestamp.IsZero() {
		meta["signal_timestamp"] = task.Signal.Timestamp.Format(time.RFC3339)
	}
	if len(meta) > 0 {
		if b, err := json.Marshal(meta); err == nil {
			rec.Meta = datatypes.JSON(b)
		}
	}
	return rec
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return fmt.Sprintf("%s...", s[:n])
}
