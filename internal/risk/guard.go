package risk

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ZkAGI/pawpad-rofl/internal/config"
)

const (
	maxBps = 10000

	// MaxClockSkew tolerates provider clocks running slightly ahead of ours.
	MaxClockSkew = 60 * time.Second
)

var (
	ErrInvalidPrice      = errors.New("risk: invalid price")
	ErrDeviationTooHigh  = errors.New("risk: price deviation too high")
	ErrInvalidQuoteInput = errors.New("risk: invalid quote amounts")
)

var hundred = decimal.NewFromInt(100)

// IsSignalFresh reports whether ts is within maxAge of now. A zero timestamp
// is never fresh.
func IsSignalFresh(ts time.Time, maxAge time.Duration, now time.Time) bool {
	if ts.IsZero() {
		return false
	}
	age := now.Sub(ts)
	if age < -MaxClockSkew {
		return false
	}
	return age <= maxAge
}

// ComputeMinOut returns floor(expectedOut * (10000 - bps) / 10000) with bps
// clamped to [0, 10000].
func ComputeMinOut(expectedOut *big.Int, slippageBps int) *big.Int {
	if expectedOut == nil || expectedOut.Sign() <= 0 {
		return new(big.Int)
	}
	if slippageBps < 0 {
		slippageBps = 0
	}
	if slippageBps > maxBps {
		slippageBps = maxBps
	}
	out := new(big.Int).Mul(expectedOut, big.NewInt(int64(maxBps-slippageBps)))
	return out.Quo(out, big.NewInt(maxBps))
}

// PriceDeviationPercent returns |quoted - signal| / signal * 100.
func PriceDeviationPercent(quoted, signal decimal.Decimal) (decimal.Decimal, error) {
	if !signal.IsPositive() {
		return decimal.Zero, ErrInvalidPrice
	}
	return quoted.Sub(signal).Abs().Div(signal).Mul(hundred), nil
}

// WithinDeviationLimit reports dev <= maxPct. A non-positive limit disables
// the check.
func WithinDeviationLimit(dev, maxPct decimal.Decimal) bool {
	if !maxPct.IsPositive() {
		return true
	}
	return dev.LessThanOrEqual(maxPct)
}

// ImpliedPrice converts raw integer amounts into quote units per base unit,
// e.g. USDC (6 decimals) per ETH (18 decimals).
func ImpliedPrice(quoteAmount *big.Int, quoteDecimals int32, baseAmount *big.Int, baseDecimals int32) (decimal.Decimal, error) {
	if quoteAmount == nil || baseAmount == nil || quoteAmount.Sign() <= 0 || baseAmount.Sign() <= 0 {
		return decimal.Zero, ErrInvalidQuoteInput
	}
	q := decimal.NewFromBigInt(quoteAmount, -quoteDecimals)
	b := decimal.NewFromBigInt(baseAmount, -baseDecimals)
	return q.DivRound(b, 8), nil
}

// Guard carries the configured thresholds to the execution adapters.
type Guard struct {
	MaxSlippageBps  int
	MaxDeviationPct decimal.Decimal
	SignalMaxAge    time.Duration
	Now             func() time.Time
}

func NewGuard(cfg config.TradingConfig) *Guard {
	return &Guard{
		MaxSlippageBps:  cfg.MaxSlippageBps,
		MaxDeviationPct: decimal.NewFromFloat(cfg.MaxPriceDeviationPct),
		SignalMaxAge:    cfg.SignalMaxAge,
	}
}

func (g *Guard) now() time.Time {
	if g == nil || g.Now == nil {
		return time.Now()
	}
	return g.Now()
}

func (g *Guard) Fresh(ts time.Time) bool {
	if g == nil {
		return false
	}
	return IsSignalFresh(ts, g.SignalMaxAge, g.now())
}

func (g *Guard) MinOut(expectedOut *big.Int) *big.Int {
	bps := 0
	if g != nil {
		bps = g.MaxSlippageBps
	}
	return ComputeMinOut(expectedOut, bps)
}

// CheckDeviation returns the deviation of quoted from signal. The error wraps
// ErrInvalidPrice or ErrDeviationTooHigh; the deviation is still returned in
// the latter case so callers can record it.
func (g *Guard) CheckDeviation(quoted, signal decimal.Decimal) (decimal.Decimal, error) {
	dev, err := PriceDeviationPercent(quoted, signal)
	if err != nil {
		return decimal.Zero, err
	}
	limit := decimal.Zero
	if g != nil {
		limit = g.MaxDeviationPct
	}
	if !WithinDeviationLimit(dev, limit) {
		return dev, fmt.Errorf("%w: %s%% > %s%%", ErrDeviationTooHigh, dev.StringFixed(2), limit.String())
	}
	return dev, nil
}
