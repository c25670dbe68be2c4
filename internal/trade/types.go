package trade

import (
	"context"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/ZkAGI/pawpad-rofl/internal/signal"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusAttempting Status = "attempting"
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
	StatusSkipped    Status = "skipped"
)

// FailedTxHash is stored in place of a hash for every failed attempt.
const FailedTxHash = "failed"

type Chain string

const (
	ChainBase   Chain = "base"
	ChainSolana Chain = "solana"
)

func ChainFor(asset signal.Asset) Chain {
	if asset == signal.AssetSOL {
		return ChainSolana
	}
	return ChainBase
}

// Quote is the result of a read-only price query. Amounts are in the
// smallest unit of each token.
type Quote struct {
	AmountIn    *big.Int
	ExpectedOut *big.Int
	MinOut      *big.Int
	// ImpliedPrice is USD per unit of the traded asset.
	ImpliedPrice decimal.Decimal
}

// Request is what an execution adapter needs to place one swap.
type Request struct {
	CycleID     string
	UID         string
	Asset       signal.Asset
	Action      signal.Action
	AmountUSDC  decimal.Decimal
	SignalPrice decimal.Decimal
}

type Result struct {
	TxHash       string
	QuotedPrice  *decimal.Decimal
	DeviationPct *decimal.Decimal
}

// Executor places a swap on one chain. Every non-nil error it returns is a
// *Failure.
type Executor interface {
	Execute(ctx context.Context, req Request) (Result, error)
}

type ExecutorFunc func(ctx context.Context, req Request) (Result, error)

func (f ExecutorFunc) Execute(ctx context.Context, req Request) (Result, error) {
	return f(ctx, req)
}
