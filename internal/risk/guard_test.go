package risk

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ZkAGI/pawpad-rofl/internal/config"
)

func TestComputeMinOut(t *testing.T) {
	cases := []struct {
		amount int64
		bps    int
		want   int64
	}{
		{1000000, 100, 990000},
		{1000000, 50, 995000},
		{1000000, 0, 1000000},
		{1000000, 10000, 0},
		{999, 1, 998},
		{1000000, -5, 1000000},
		{1000000, 20000, 0},
	}
	for _, c := range cases {
		got := ComputeMinOut(big.NewInt(c.amount), c.bps)
		if got.Cmp(big.NewInt(c.want)) != 0 {
			t.Fatalf("ComputeMinOut(%d,%d)=%s want=%d", c.amount, c.bps, got, c.want)
		}
	}
	if got := ComputeMinOut(nil, 100); got.Sign() != 0 {
		t.Fatalf("ComputeMinOut(nil)=%s want=0", got)
	}
}

func TestComputeMinOutNeverExceedsAmount(t *testing.T) {
	amount, _ := new(big.Int).SetString("123456789012345678901234567890", 10)
	for bps := 0; bps <= 10000; bps += 37 {
		got := ComputeMinOut(amount, bps)
		if got.Cmp(amount) > 0 {
			t.Fatalf("bps=%d minOut=%s > amount=%s", bps, got, amount)
		}
		if bps == 0 && got.Cmp(amount) != 0 {
			t.Fatalf("bps=0 minOut=%s want=%s", got, amount)
		}
	}
}

func TestIsSignalFresh(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if !IsSignalFresh(now.Add(-time.Second), 10*time.Minute, now) {
		t.Fatalf("1s old signal should be fresh")
	}
	if IsSignalFresh(now.Add(-time.Hour), 10*time.Minute, now) {
		t.Fatalf("1h old signal should be stale")
	}
	if IsSignalFresh(time.Time{}, 10*time.Minute, now) {
		t.Fatalf("missing timestamp should be stale")
	}
	if !IsSignalFresh(now.Add(-10*time.Minute), 10*time.Minute, now) {
		t.Fatalf("signal exactly at max age should be fresh")
	}
	if !IsSignalFresh(now.Add(30*time.Second), 10*time.Minute, now) {
		t.Fatalf("small future skew should be fresh")
	}
	if IsSignalFresh(now.Add(5*time.Minute), 10*time.Minute, now) {
		t.Fatalf("far future timestamp should be stale")
	}
}

func TestPriceDeviationPercent(t *testing.T) {
	dev, err := PriceDeviationPercent(decimal.NewFromInt(3300), decimal.NewFromInt(3000))
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if !dev.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("dev=%s want=10", dev)
	}
	dev, _ = PriceDeviationPercent(decimal.NewFromInt(2700), decimal.NewFromInt(3000))
	if !dev.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("dev=%s want=10 for lower quote", dev)
	}
	if _, err := PriceDeviationPercent(decimal.NewFromInt(1), decimal.Zero); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("err=%v want=%v", err, ErrInvalidPrice)
	}
}

func TestWithinDeviationLimit(t *testing.T) {
	five := decimal.NewFromInt(5)
	if !WithinDeviationLimit(decimal.NewFromInt(5), five) {
		t.Fatalf("dev equal to limit should pass")
	}
	if WithinDeviationLimit(decimal.NewFromFloat(5.01), five) {
		t.Fatalf("dev above limit should fail")
	}
	if !WithinDeviationLimit(decimal.NewFromInt(500), decimal.Zero) {
		t.Fatalf("zero limit disables the check")
	}
}

func TestImpliedPrice(t *testing.T) {
	// 100 USDC for 0.0325 ETH.
	usdc := big.NewInt(100_000_000)
	wei, _ := new(big.Int).SetString("32500000000000000", 10)
	price, err := ImpliedPrice(usdc, 6, wei, 18)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	want := decimal.RequireFromString("3076.92307692")
	if !price.Equal(want) {
		t.Fatalf("price=%s want=%s", price, want)
	}
	if _, err := ImpliedPrice(big.NewInt(0), 6, wei, 18); !errors.Is(err, ErrInvalidQuoteInput) {
		t.Fatalf("err=%v want=%v", err, ErrInvalidQuoteInput)
	}
}

func TestGuardCheckDeviation(t *testing.T) {
	g := NewGuard(config.TradingConfig{MaxSlippageBps: 100, MaxPriceDeviationPct: 5})
	dev, err := g.CheckDeviation(decimal.NewFromInt(3050), decimal.NewFromInt(3000))
	if err != nil {
		t.Fatalf("3050 vs 3000 err=%v", err)
	}
	if dev.StringFixed(2) != "1.67" {
		t.Fatalf("dev=%s want=1.67", dev.StringFixed(2))
	}
	dev, err = g.CheckDeviation(decimal.NewFromInt(3300), decimal.NewFromInt(3000))
	if !errors.Is(err, ErrDeviationTooHigh) {
		t.Fatalf("err=%v want=%v", err, ErrDeviationTooHigh)
	}
	if !dev.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("dev=%s want=10", dev)
	}
	if got := g.MinOut(big.NewInt(1000000)); got.Int64() != 990000 {
		t.Fatalf("MinOut=%s want=990000", got)
	}
}

func TestGuardFresh(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	g := &Guard{SignalMaxAge: 600 * time.Second, Now: func() time.Time { return now }}
	if g.Fresh(now.Add(-time.Hour)) {
		t.Fatalf("1h old should be stale with 600s max age")
	}
	if !g.Fresh(now.Add(-time.Minute)) {
		t.Fatalf("1m old should be fresh")
	}
}
