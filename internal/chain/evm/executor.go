package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
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
	ethDecimals  = 18

	// sellGasReserve is the gas budget kept back from a native sell so the
	// swap can still pay for itself.
	sellGasReserve = 300_000
)

// Executor swaps USDC and ETH through a UniswapV2-style router on Base.
type Executor struct {
	Backend Backend
	Sender  *Sender
	Quoter  *Quoter
	Keys    tee.KeyDeriver
	Guard   *risk.Guard
	Logger  *zap.Logger

	Router   common.Address
	USDC     common.Address
	WETH     common.Address
	Deadline time.Duration
	Now      func() time.Time
}

func NewExecutor(cfg config.EVMConfig, backend Backend, keys tee.KeyDeriver, guard *risk.Guard, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	router := common.HexToAddress(cfg.Router)
	return &Executor{
		Backend: backend,
		Sender: &Sender{
			Backend:        backend,
			ChainID:        big.NewInt(cfg.ChainID),
			ConfirmTimeout: cfg.ConfirmTimeout,
			PollInterval:   cfg.PollInterval,
		},
		Quoter:   &Quoter{Caller: backend, Router: router, Guard: guard},
		Keys:     keys,
		Guard:    guard,
		Logger:   logger,
		Router:   router,
		USDC:     common.HexToAddress(cfg.USDC),
		WETH:     common.HexToAddress(cfg.WETH),
		Deadline: cfg.Deadline,
	}
}

func (e *Executor) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

func (e *Executor) Execute(ctx context.Context, req trade.Request) (res trade.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = trade.Result{}
			err = trade.Failf(trade.ReasonChainException, "evm executor panic: %v", r)
		}
	}()

	if !req.SignalPrice.IsPositive() {
		return trade.Result{}, trade.Failf(trade.ReasonInvalidPrice, "signal price %s", req.SignalPrice)
	}
	material, err := e.Keys.DeriveSigningKey(ctx, tee.EVMKeyID(req.UID), tee.KindSecp256k1)
	if err != nil {
		return trade.Result{}, trade.Fail(trade.ReasonChainException, err)
	}
	signer, err := NewSigner(material)
	if err != nil {
		return trade.Result{}, trade.Fail(trade.ReasonChainException, err)
	}

	switch req.Action {
	case signal.ActionBuy:
		return e.buy(ctx, signer, req)
	case signal.ActionSell:
		return e.sell(ctx, signer, req)
	}
	return trade.Result{}, trade.Failf(trade.ReasonChainException, "unsupported action %q", req.Action)
}

// buy spends USDC for native ETH.
func (e *Executor) buy(ctx context.Context, signer *Signer, req trade.Request) (trade.Result, error) {
	amountIn := toUnits(req.AmountUSDC, usdcDecimals)
	if amountIn.Sign() <= 0 {
		return trade.Result{}, trade.Failf(trade.ReasonChainException, "trade amount %s", req.AmountUSDC)
	}

	balance, err := e.erc20Uint(ctx, "balanceOf", signer.Address)
	if err != nil {
		return trade.Result{}, trade.Fail(trade.ReasonChainException, err)
	}
	if balance.Cmp(amountIn) < 0 {
		return trade.Result{}, trade.Failf(trade.ReasonInsufficientBalance, "usdc balance %s < %s", balance, amountIn)
	}

	allowance, err := e.erc20Uint(ctx, "allowance", signer.Address, e.Router)
	if err != nil {
		return trade.Result{}, trade.Fail(trade.ReasonChainException, err)
	}
	if allowance.Cmp(amountIn) < 0 {
		data, err := ERC20ABI.Pack("approve", e.Router, amountIn)
		if err != nil {
			return trade.Result{}, trade.Fail(trade.ReasonChainException, err)
		}
		if f := e.submit(ctx, signer, TxRequest{To: e.USDC, Data: data}, nil); f != nil {
			return trade.Result{}, f
		}
		e.logger().Info("evm approve confirmed", zap.String("uid", req.UID))
	}

	quote, err := e.Quoter.Quote(ctx, amountIn, []common.Address{e.USDC, e.WETH})
	if err != nil {
		return trade.Result{}, quoteFailure(err)
	}
	implied, err := risk.ImpliedPrice(amountIn, usdcDecimals, quote.ExpectedOut, ethDecimals)
	if err != nil {
		return trade.Result{}, trade.Fail(trade.ReasonInvalidQuote, err)
	}
	dev, f := e.checkDeviation(implied, req.SignalPrice)
	if f != nil {
		return trade.Result{}, f
	}

	data, err := RouterABI.Pack("swapExactTokensForETH", amountIn, quote.MinOut, []common.Address{e.USDC, e.WETH}, signer.Address, e.deadline())
	if err != nil {
		return trade.Result{}, trade.Fail(trade.ReasonChainException, err)
	}
	var tx *types.Transaction
	if f := e.submit(ctx, signer, TxRequest{To: e.Router, Data: data}, &tx); f != nil {
		return trade.Result{}, f.WithPrices(&implied, &dev)
	}
	return trade.Result{TxHash: tx.Hash().Hex(), QuotedPrice: &implied, DeviationPct: &dev}, nil
}

// sell spends native ETH worth AmountUSDC at the signal price.
func (e *Executor) sell(ctx context.Context, signer *Signer, req trade.Request) (trade.Result, error) {
	amountWei := req.AmountUSDC.Shift(ethDecimals).Div(req.SignalPrice).Truncate(0).BigInt()
	if amountWei.Sign() <= 0 {
		return trade.Result{}, trade.Failf(trade.ReasonChainException, "trade amount %s", req.AmountUSDC)
	}

	balance, err := e.Backend.BalanceAt(ctx, signer.Address, nil)
	if err != nil {
		return trade.Result{}, trade.Fail(trade.ReasonChainException, err)
	}
	feeCap, err := e.Sender.MaxFeePerGas(ctx)
	if err != nil {
		return trade.Result{}, trade.Fail(trade.ReasonChainException, err)
	}
	reserve := new(big.Int).Mul(feeCap, big.NewInt(sellGasReserve))
	if need := new(big.Int).Add(amountWei, reserve); balance.Cmp(need) < 0 {
		return trade.Result{}, trade.Failf(trade.ReasonInsufficientBalance, "eth balance %s < %s plus gas reserve %s", balance, amountWei, reserve)
	}

	quote, err := e.Quoter.Quote(ctx, amountWei, []common.Address{e.WETH, e.USDC})
	if err != nil {
		return trade.Result{}, quoteFailure(err)
	}
	implied, err := risk.ImpliedPrice(quote.ExpectedOut, usdcDecimals, amountWei, ethDecimals)
	if err != nil {
		return trade.Result{}, trade.Fail(trade.ReasonInvalidQuote, err)
	}
	dev, f := e.checkDeviation(implied, req.SignalPrice)
	if f != nil {
		return trade.Result{}, f
	}

	data, err := RouterABI.Pack("swapExactETHForTokens", quote.MinOut, []common.Address{e.WETH, e.USDC}, signer.Address, e.deadline())
	if err != nil {
		return trade.Result{}, trade.Fail(trade.ReasonChainException, err)
	}
	var tx *types.Transaction
	if f := e.submit(ctx, signer, TxRequest{To: e.Router, Value: amountWei, Data: data}, &tx); f != nil {
		return trade.Result{}, f.WithPrices(&implied, &dev)
	}
	return trade.Result{TxHash: tx.Hash().Hex(), QuotedPrice: &implied, DeviationPct: &dev}, nil
}

func (e *Executor) checkDeviation(implied, signalPrice decimal.Decimal) (decimal.Decimal, *trade.Failure) {
	dev, err := e.Guard.CheckDeviation(implied, signalPrice)
	switch {
	case errors.Is(err, risk.ErrDeviationTooHigh):
		return dev, trade.Fail(trade.ReasonPriceDeviationTooHigh, err).WithPrices(&implied, &dev)
	case errors.Is(err, risk.ErrInvalidPrice):
		return dev, trade.Fail(trade.ReasonInvalidPrice, err)
	case err != nil:
		return dev, trade.Fail(trade.ReasonChainException, err)
	}
	return dev, nil
}

// submit sends a transaction and waits for it. Failures before submission
// are CHAIN_EXCEPTION; anything after carries the submitted hash.
func (e *Executor) submit(ctx context.Context, signer *Signer, req TxRequest, out **types.Transaction) *trade.Failure {
	tx, _, err := e.Sender.SendAndWait(ctx, signer, req)
	if tx == nil {
		if err == nil {
			err = errors.New("evm: no transaction")
		}
		return trade.Fail(trade.ReasonChainException, err)
	}
	if err != nil {
		return trade.Fail(trade.ReasonConfirmationError, err).WithSubmitted(tx.Hash().Hex())
	}
	if out != nil {
		*out = tx
	}
	return nil
}

func (e *Executor) erc20Uint(ctx context.Context, method string, args ...any) (*big.Int, error) {
	data, err := ERC20ABI.Pack(method, args...)
	if err != nil {
		return nil, err
	}
	usdc := e.USDC
	out, err := e.Backend.CallContract(ctx, ethereum.CallMsg{To: &usdc, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	res, err := ERC20ABI.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", method, err)
	}
	if len(res) == 0 {
		return nil, fmt.Errorf("decode %s: empty result", method)
	}
	v, ok := res[0].(*big.Int)
	if !ok || v == nil {
		return nil, fmt.Errorf("decode %s: unexpected %T", method, res[0])
	}
	return v, nil
}

func (e *Executor) deadline() *big.Int {
	now := time.Now()
	if e.Now != nil {
		now = e.Now()
	}
	d := e.Deadline
	if d <= 0 {
		d = 20 * time.Minute
	}
	return big.NewInt(now.Add(d).Unix())
}

func quoteFailure(err error) *trade.Failure {
	if errors.Is(err, ErrEmptyQuote) {
		return trade.Fail(trade.ReasonInvalidQuote, err)
	}
	return trade.Fail(trade.ReasonChainException, err)
}

// toUnits truncates amount to an integer count of 10^-decimals units.
func toUnits(amount decimal.Decimal, decimals int32) *big.Int {
	return amount.Shift(decimals).Truncate(0).BigInt()
}
