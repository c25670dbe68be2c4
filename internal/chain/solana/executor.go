package solana

import (
	"context"
	"errors"
	"math/big"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ZkAGI/pawpad-rofl/internal/config"
	"github.com/ZkAGI/pawpad-rofl/internal/risk"
	"github.com/ZkAGI/pawpad-rofl/internal/signal"
	"github.com/ZkAGI/pawpad-rofl/internal/tee"
	"github.com/ZkAGI/pawpad-rofl/internal/trade"
)

const (
	usdcDecimals = 6
	solDecimals  = 9

	sendMaxRetries = 3
)

type chainRPC interface {
	GetBalance(ctx context.Context, pubkey string) (uint64, error)
	SendTransaction(ctx context.Context, wireBase64 string, opts SendOptions) (string, error)
}

type swapBuilder interface {
	Quote(ctx context.Context, req QuoteRequest) (*JupiterQuote, error)
	Swap(ctx context.Context, quote *JupiterQuote, userPublicKey string) (string, error)
}

// Executor swaps USDC and SOL through the Jupiter aggregator.
type Executor struct {
	RPC       chainRPC
	Jupiter   swapBuilder
	Confirmer Confirmer
	Keys      tee.KeyDeriver
	Guard     *risk.Guard
	Logger    *zap.Logger

	MinFeeLamports uint64
}

func NewExecutor(cfg config.SolanaConfig, keys tee.KeyDeriver, guard *risk.Guard, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	rpc := NewRPCClient(cfg.RPCURL, cfg.Commitment)
	var confirmer Confirmer = &PollConfirmer{RPC: rpc, Timeout: cfg.ConfirmTimeout}
	if cfg.WSURL != "" {
		confirmer = &WSConfirmer{
			URL:        cfg.WSURL,
			Commitment: rpc.Commitment(),
			Timeout:    cfg.ConfirmTimeout,
			Fallback:   confirmer,
			Logger:     logger,
		}
	}
	return &Executor{
		RPC:            rpc,
		Jupiter:        NewJupiterClient(cfg),
		Confirmer:      confirmer,
		Keys:           keys,
		Guard:          guard,
		Logger:         logger,
		MinFeeLamports: cfg.MinFeeLamports,
	}
}

func (e *Executor) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

func (e *Executor) Execute(ctx context.Context, req trade.Request) (res trade.Result, err error) {
	// submitted is the locally computed signature once a send was attempted.
	var submitted string
	defer func() {
		if r := recover(); r != nil {
			res = trade.Result{}
			err = trade.Failf(trade.ReasonChainException, "solana executor panic: %v", r).WithSubmitted(submitted)
		}
	}()

	material, err := e.Keys.DeriveSigningKey(ctx, tee.SolanaKeyID(req.UID), tee.KindEd25519)
	if err != nil {
		return trade.Result{}, trade.Fail(trade.ReasonChainException, err)
	}
	kp, err := NewKeypair(material)
	if err != nil {
		return trade.Result{}, trade.Fail(trade.ReasonChainException, err)
	}
	owner := kp.Address()

	lamports, err := e.RPC.GetBalance(ctx, owner)
	if err != nil {
		return trade.Result{}, trade.Fail(trade.ReasonChainException, err)
	}
	if lamports < e.MinFeeLamports {
		return trade.Result{}, trade.Failf(trade.ReasonInsufficientFeeBalance, "sol balance %d < %d lamports", lamports, e.MinFeeLamports)
	}
	if !req.SignalPrice.IsPositive() {
		return trade.Result{}, trade.Failf(trade.ReasonInvalidPrice, "signal price %s", req.SignalPrice)
	}

	var qreq QuoteRequest
	switch req.Action {
	case signal.ActionBuy:
		qreq = QuoteRequest{
			InputMint:  USDCMint,
			OutputMint: SOLMint,
			Amount:     req.AmountUSDC.Shift(usdcDecimals).Truncate(0).BigInt(),
		}
	case signal.ActionSell:
		qreq = QuoteRequest{
			InputMint:  SOLMint,
			OutputMint: USDCMint,
			Amount:     req.AmountUSDC.Shift(solDecimals).Div(req.SignalPrice).Truncate(0).BigInt(),
		}
	default:
		return trade.Result{}, trade.Failf(trade.ReasonChainException, "unsupported action %q", req.Action)
	}
	if qreq.Amount.Sign() <= 0 {
		return trade.Result{}, trade.Failf(trade.ReasonChainException, "trade amount %s", req.AmountUSDC)
	}
	if e.Guard != nil {
		qreq.SlippageBps = e.Guard.MaxSlippageBps
	}

	quote, err := e.Jupiter.Quote(ctx, qreq)
	if err != nil {
		if errors.Is(err, ErrEmptyQuote) {
			return trade.Result{}, trade.Fail(trade.ReasonInvalidQuote, err)
		}
		return trade.Result{}, trade.Fail(trade.ReasonChainException, err)
	}
	minOut := e.Guard.MinOut(quote.OutAmount)
	if quote.OtherAmountThreshold == nil || quote.OtherAmountThreshold.Cmp(minOut) < 0 {
		return trade.Result{}, trade.Failf(trade.ReasonInvalidQuote, "quote threshold %v below min out %s", quote.OtherAmountThreshold, minOut)
	}

	implied, err := impliedPrice(req.Action, qreq.Amount, quote.OutAmount)
	if err != nil {
		return trade.Result{}, trade.Fail(trade.ReasonInvalidQuote, err)
	}
	dev, err := e.Guard.CheckDeviation(implied, req.SignalPrice)
	switch {
	case errors.Is(err, risk.ErrDeviationTooHigh):
		return trade.Result{}, trade.Fail(trade.ReasonPriceDeviationTooHigh, err).WithPrices(&implied, &dev)
	case errors.Is(err, risk.ErrInvalidPrice):
		return trade.Result{}, trade.Fail(trade.ReasonInvalidPrice, err)
	case err != nil:
		return trade.Result{}, trade.Fail(trade.ReasonChainException, err)
	}

	swapTx, err := e.Jupiter.Swap(ctx, quote, owner)
	if err != nil {
		if errors.Is(err, ErrNoSwapTransaction) {
			return trade.Result{}, trade.Fail(trade.ReasonNoSwapTransaction, err).WithPrices(&implied, &dev)
		}
		return trade.Result{}, trade.Fail(trade.ReasonChainException, err).WithPrices(&implied, &dev)
	}

	wire, localSig, err := signSwapTransaction(swapTx, kp)
	if err != nil {
		return trade.Result{}, trade.Fail(trade.ReasonChainException, err).WithPrices(&implied, &dev)
	}
	// A send that errors may still have reached a leader, so the signature
	// is kept for reconciliation.
	submitted = localSig
	sig, err := e.RPC.SendTransaction(ctx, wire, SendOptions{MaxRetries: sendMaxRetries})
	if err != nil {
		return trade.Result{}, trade.Fail(trade.ReasonChainException, err).WithSubmitted(submitted).WithPrices(&implied, &dev)
	}
	submitted = sig
	e.logger().Info("solana swap submitted",
		zap.String("uid", req.UID),
		zap.String("action", string(req.Action)),
		zap.String("signature", sig),
	)
	if err := e.Confirmer.Confirm(ctx, sig); err != nil {
		return trade.Result{}, trade.Fail(trade.ReasonConfirmationError, err).WithSubmitted(sig).WithPrices(&implied, &dev)
	}
	return trade.Result{TxHash: sig, QuotedPrice: &implied, DeviationPct: &dev}, nil
}

// impliedPrice is USDC per SOL for either swap direction.
func impliedPrice(action signal.Action, amountIn, amountOut *big.Int) (decimal.Decimal, error) {
	if action == signal.ActionBuy {
		return risk.ImpliedPrice(amountIn, usdcDecimals, amountOut, solDecimals)
	}
	return risk.ImpliedPrice(amountOut, usdcDecimals, amountIn, solDecimals)
}

// signSwapTransaction returns the signed wire transaction and its id, the
// first signature.
func signSwapTransaction(b64 string, kp *Keypair) (string, string, error) {
	tx, err := DecodeTransaction(b64)
	if err != nil {
		return "", "", err
	}
	if _, err := SignTransaction(tx, kp); err != nil {
		return "", "", err
	}
	wire, err := EncodeTransaction(tx)
	if err != nil {
		return "", "", err
	}
	return wire, tx.Signatures[0].String(), nil
}
