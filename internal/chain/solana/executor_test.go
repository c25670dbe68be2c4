package solana

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/ZkAGI/pawpad-rofl/internal/config"
	"github.com/ZkAGI/pawpad-rofl/internal/risk"
	"github.com/ZkAGI/pawpad-rofl/internal/signal"
	"github.com/ZkAGI/pawpad-rofl/internal/tee"
	"github.com/ZkAGI/pawpad-rofl/internal/trade"
)

type fakeRPC struct {
	balance uint64
	sendErr error
	sent    []string
	opts    []SendOptions
}

func (f *fakeRPC) GetBalance(context.Context, string) (uint64, error) { return f.balance, nil }

func (f *fakeRPC) SendTransaction(_ context.Context, wire string, opts SendOptions) (string, error) {
	f.sent = append(f.sent, wire)
	f.opts = append(f.opts, opts)
	if f.sendErr != nil {
		return "", f.sendErr
	}
	return "sig-1", nil
}

type fakeJupiter struct {
	outAmount *big.Int
	threshold func(out *big.Int) *big.Int
	swapTx    string

	quotes []QuoteRequest
	swaps  int
}

func (f *fakeJupiter) Quote(_ context.Context, req QuoteRequest) (*JupiterQuote, error) {
	f.quotes = append(f.quotes, req)
	if f.outAmount == nil || f.outAmount.Sign() <= 0 {
		return nil, ErrEmptyQuote
	}
	q := &JupiterQuote{Raw: []byte(`{}`), InAmount: req.Amount, OutAmount: f.outAmount}
	if f.threshold != nil {
		q.OtherAmountThreshold = f.threshold(f.outAmount)
	} else {
		q.OtherAmountThreshold = risk.ComputeMinOut(f.outAmount, req.SlippageBps)
	}
	return q, nil
}

func (f *fakeJupiter) Swap(context.Context, *JupiterQuote, string) (string, error) {
	f.swaps++
	if f.swapTx == "" {
		return "", ErrNoSwapTransaction
	}
	return f.swapTx, nil
}

type fakeConfirmer struct{ err error }

func (f *fakeConfirmer) Confirm(context.Context, string) error { return f.err }

var testKeys = &tee.MockDeriver{Secret: []byte("test")}

func userKeypair(t *testing.T, uid string) *Keypair {
	t.Helper()
	material, err := testKeys.DeriveSigningKey(context.Background(), tee.SolanaKeyID(uid), tee.KindEd25519)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	kp, err := NewKeypair(material)
	if err != nil {
		t.Fatalf("keypair: %v", err)
	}
	return kp
}

func newTestSolExecutor(t *testing.T, rpc *fakeRPC, jup *fakeJupiter, conf Confirmer) *Executor {
	t.Helper()
	if jup.swapTx == "unsigned" {
		jup.swapTx = buildTestTx(t, userKeypair(t, "user-1").PublicKey(), true)
	}
	return &Executor{
		RPC:            rpc,
		Jupiter:        jup,
		Confirmer:      conf,
		Keys:           testKeys,
		Guard:          risk.NewGuard(config.TradingConfig{MaxSlippageBps: 100, MaxPriceDeviationPct: 5}),
		MinFeeLamports: 2_000_000,
	}
}

func solRequest(action signal.Action) trade.Request {
	return trade.Request{
		UID:         "user-1",
		Asset:       signal.AssetSOL,
		Action:      action,
		AmountUSDC:  decimal.NewFromInt(100),
		SignalPrice: decimal.NewFromInt(150),
	}
}

func failureReason(t *testing.T, err error) trade.FailureReason {
	t.Helper()
	var f *trade.Failure
	if !errors.As(err, &f) {
		t.Fatalf("err=%v is not a *trade.Failure", err)
	}
	return f.Reason
}

func TestSolanaLowFeeBalanceSkipsQuote(t *testing.T) {
	rpc := &fakeRPC{balance: 1_999_999}
	jup := &fakeJupiter{outAmount: big.NewInt(1)}
	ex := newTestSolExecutor(t, rpc, jup, &fakeConfirmer{})

	_, err := ex.Execute(context.Background(), solRequest(signal.ActionBuy))
	if r := failureReason(t, err); r != trade.ReasonInsufficientFeeBalance {
		t.Fatalf("reason=%s want=INSUFFICIENT_FEE_BALANCE", r)
	}
	if len(jup.quotes) != 0 {
		t.Fatalf("quote calls=%d want=0", len(jup.quotes))
	}
}

func TestSolanaInvalidPrice(t *testing.T) {
	jup := &fakeJupiter{outAmount: big.NewInt(1)}
	ex := newTestSolExecutor(t, &fakeRPC{balance: 5_000_000}, jup, &fakeConfirmer{})
	req := solRequest(signal.ActionSell)
	req.SignalPrice = decimal.Zero

	_, err := ex.Execute(context.Background(), req)
	if r := failureReason(t, err); r != trade.ReasonInvalidPrice {
		t.Fatalf("reason=%s want=INVALID_PRICE", r)
	}
	if len(jup.quotes) != 0 {
		t.Fatalf("quote calls=%d want=0", len(jup.quotes))
	}
}

func TestSolanaBuySignsAndConfirms(t *testing.T) {
	rpc := &fakeRPC{balance: 5_000_000}
	// 100 USDC buys 0.657894736 SOL, about 152 USDC/SOL.
	jup := &fakeJupiter{outAmount: big.NewInt(657_894_736), swapTx: "unsigned"}
	ex := newTestSolExecutor(t, rpc, jup, &fakeConfirmer{})

	res, err := ex.Execute(context.Background(), solRequest(signal.ActionBuy))
	if err != nil {
		t.Fatalf("Execute err=%v", err)
	}
	if res.TxHash != "sig-1" {
		t.Fatalf("txHash=%s want=sig-1", res.TxHash)
	}
	q := jup.quotes[0]
	if q.InputMint != USDCMint || q.OutputMint != SOLMint || q.Amount.Int64() != 100_000_000 || q.SlippageBps != 100 {
		t.Fatalf("quote request=%+v", q)
	}
	if res.DeviationPct == nil || res.DeviationPct.StringFixed(2) != "1.33" {
		t.Fatalf("deviation=%v want=1.33", res.DeviationPct)
	}
	if len(rpc.sent) != 1 || rpc.opts[0].MaxRetries != 3 || rpc.opts[0].SkipPreflight {
		t.Fatalf("sent=%d opts=%+v", len(rpc.sent), rpc.opts)
	}

	tx, err := DecodeTransaction(rpc.sent[0])
	if err != nil {
		t.Fatalf("parse sent: %v", err)
	}
	if !signedBy(t, userKeypair(t, "user-1"), tx) {
		t.Fatalf("sent transaction is not signed by the user key")
	}
}

func TestSolanaSellAmountInLamports(t *testing.T) {
	jup := &fakeJupiter{outAmount: big.NewInt(99_000_000), swapTx: "unsigned"}
	ex := newTestSolExecutor(t, &fakeRPC{balance: 5_000_000}, jup, &fakeConfirmer{})

	if _, err := ex.Execute(context.Background(), solRequest(signal.ActionSell)); err != nil {
		t.Fatalf("Execute err=%v", err)
	}
	q := jup.quotes[0]
	if q.InputMint != SOLMint || q.OutputMint != USDCMint || q.Amount.Int64() != 666_666_666 {
		t.Fatalf("quote request=%+v want SOL->USDC 666666666", q)
	}
}

func TestSolanaDeviationTooHighStopsBeforeSwap(t *testing.T) {
	// About 165 USDC/SOL against a 150 signal.
	jup := &fakeJupiter{outAmount: big.NewInt(606_060_606), swapTx: "unsigned"}
	ex := newTestSolExecutor(t, &fakeRPC{balance: 5_000_000}, jup, &fakeConfirmer{})

	_, err := ex.Execute(context.Background(), solRequest(signal.ActionBuy))
	if r := failureReason(t, err); r != trade.ReasonPriceDeviationTooHigh {
		t.Fatalf("reason=%s want=PRICE_DEVIATION_TOO_HIGH", r)
	}
	if jup.swaps != 0 {
		t.Fatalf("swap calls=%d want=0", jup.swaps)
	}
}

func TestSolanaQuoteThresholdBelowMinOut(t *testing.T) {
	jup := &fakeJupiter{
		outAmount: big.NewInt(657_894_736),
		threshold: func(out *big.Int) *big.Int { return new(big.Int).Div(out, big.NewInt(2)) },
		swapTx:    "unsigned",
	}
	ex := newTestSolExecutor(t, &fakeRPC{balance: 5_000_000}, jup, &fakeConfirmer{})

	_, err := ex.Execute(context.Background(), solRequest(signal.ActionBuy))
	if r := failureReason(t, err); r != trade.ReasonInvalidQuote {
		t.Fatalf("reason=%s want=INVALID_QUOTE", r)
	}
}

func TestSolanaEmptyQuoteAndSwap(t *testing.T) {
	ex := newTestSolExecutor(t, &fakeRPC{balance: 5_000_000}, &fakeJupiter{}, &fakeConfirmer{})
	_, err := ex.Execute(context.Background(), solRequest(signal.ActionBuy))
	if r := failureReason(t, err); r != trade.ReasonInvalidQuote {
		t.Fatalf("reason=%s want=INVALID_QUOTE", r)
	}

	ex = newTestSolExecutor(t, &fakeRPC{balance: 5_000_000}, &fakeJupiter{outAmount: big.NewInt(657_894_736)}, &fakeConfirmer{})
	_, err = ex.Execute(context.Background(), solRequest(signal.ActionBuy))
	if r := failureReason(t, err); r != trade.ReasonNoSwapTransaction {
		t.Fatalf("reason=%s want=NO_SWAP_TRANSACTION", r)
	}
}

func TestSolanaConfirmationFailureKeepsSignature(t *testing.T) {
	jup := &fakeJupiter{outAmount: big.NewInt(657_894_736), swapTx: "unsigned"}
	ex := newTestSolExecutor(t, &fakeRPC{balance: 5_000_000}, jup, &fakeConfirmer{err: ErrConfirmTimeout})

	_, err := ex.Execute(context.Background(), solRequest(signal.ActionBuy))
	var f *trade.Failure
	if !errors.As(err, &f) || f.Reason != trade.ReasonConfirmationError || f.SubmittedTx != "sig-1" {
		t.Fatalf("err=%v want CONFIRMATION_ERROR with sig-1", err)
	}
}

func TestSolanaSendFailureKeepsLocalSignature(t *testing.T) {
	jup := &fakeJupiter{outAmount: big.NewInt(657_894_736), swapTx: "unsigned"}
	rpc := &fakeRPC{balance: 5_000_000, sendErr: errors.New("request timed out")}
	ex := newTestSolExecutor(t, rpc, jup, &fakeConfirmer{})

	_, err := ex.Execute(context.Background(), solRequest(signal.ActionBuy))
	var f *trade.Failure
	if !errors.As(err, &f) || f.Reason != trade.ReasonChainException {
		t.Fatalf("err=%v want CHAIN_EXCEPTION", err)
	}
	tx, err := DecodeTransaction(rpc.sent[0])
	if err != nil {
		t.Fatalf("parse sent: %v", err)
	}
	if want := tx.Signatures[0].String(); f.SubmittedTx != want {
		t.Fatalf("submitted=%q want=%q", f.SubmittedTx, want)
	}
}

func TestSolanaExecutorWithoutLogger(t *testing.T) {
	jup := &fakeJupiter{outAmount: big.NewInt(657_894_736), swapTx: "unsigned"}
	ex := newTestSolExecutor(t, &fakeRPC{balance: 5_000_000}, jup, &fakeConfirmer{})
	ex.Logger = nil

	res, err := ex.Execute(context.Background(), solRequest(signal.ActionBuy))
	if err != nil || res.TxHash != "sig-1" {
		t.Fatalf("txHash=%q err=%v want=sig-1,nil", res.TxHash, err)
	}
}
