package signal

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestNormalizeAction(t *testing.T) {
	cases := map[string]struct {
		in   any
		want Action
	}{
		"lower buy":  {"buy", ActionBuy},
		"padded":     {"  Sell ", ActionSell},
		"hold":       {"HOLD", ActionHold},
		"unknown":    {"moon", ActionHold},
		"empty":      {"", ActionHold},
		"nil":        {nil, ActionHold},
		"number":     {42.0, ActionHold},
		"bool":       {true, ActionHold},
		"object":     {map[string]any{"x": 1}, ActionHold},
		"near match": {"BUYY", ActionHold},
	}
	for name, c := range cases {
		if got := NormalizeAction(c.in); got != c.want {
			t.Fatalf("%s: NormalizeAction(%v)=%s want=%s", name, c.in, got, c.want)
		}
	}
}

func TestParseFullPayload(t *testing.T) {
	raw := []byte(`{"asset":"ETH","signal":"buy","price":3000.5,"score":0.8,"confidence":"0.65","timestamp":"2026-03-01T12:00:00Z"}`)
	sig, err := Parse(AssetETH, raw)
	if err != nil {
		t.Fatalf("Parse err=%v", err)
	}
	if sig.Action != ActionBuy {
		t.Fatalf("action=%s want=BUY", sig.Action)
	}
	if !sig.Price.Equal(decimal.RequireFromString("3000.5")) {
		t.Fatalf("price=%s want=3000.5", sig.Price)
	}
	if sig.Score == nil || *sig.Score != 0.8 {
		t.Fatalf("score=%v want=0.8", sig.Score)
	}
	if sig.Confidence == nil || *sig.Confidence != 0.65 {
		t.Fatalf("confidence=%v want=0.65", sig.Confidence)
	}
	want := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if !sig.Timestamp.Equal(want) {
		t.Fatalf("timestamp=%v want=%v", sig.Timestamp, want)
	}
}

func TestParseActionAlias(t *testing.T) {
	sig, err := Parse(AssetSOL, []byte(`{"action":"SELL","price":"150"}`))
	if err != nil {
		t.Fatalf("Parse err=%v", err)
	}
	if sig.Action != ActionSell {
		t.Fatalf("action=%s want=SELL", sig.Action)
	}
	if !sig.Timestamp.IsZero() {
		t.Fatalf("missing timestamp should be zero, got %v", sig.Timestamp)
	}
}

func TestParseFailsClosed(t *testing.T) {
	if _, err := Parse(AssetETH, []byte(`not json`)); !errors.Is(err, ErrMalformed) {
		t.Fatalf("err=%v want=%v", err, ErrMalformed)
	}
	if _, err := Parse(AssetETH, []byte(`["BUY"]`)); !errors.Is(err, ErrMalformed) {
		t.Fatalf("array err=%v want=%v", err, ErrMalformed)
	}
	if _, err := Parse(AssetETH, []byte(`{"asset":"SOL","signal":"BUY"}`)); !errors.Is(err, ErrAssetMismatch) {
		t.Fatalf("err=%v want=%v", err, ErrAssetMismatch)
	}
	sig, err := Parse(AssetETH, []byte(`{"signal":7,"price":"abc","timestamp":"yesterday"}`))
	if err != nil {
		t.Fatalf("Parse err=%v", err)
	}
	if sig.Action != ActionHold || !sig.Price.IsZero() || !sig.Timestamp.IsZero() {
		t.Fatalf("garbled payload=%+v want HOLD, zero price, zero timestamp", sig)
	}
}

func TestParseUnixTimestamps(t *testing.T) {
	sig, _ := Parse(AssetETH, []byte(`{"signal":"BUY","timestamp":1772366400}`))
	if sig.Timestamp.Unix() != 1772366400 {
		t.Fatalf("seconds timestamp=%v", sig.Timestamp)
	}
	sig, _ = Parse(AssetETH, []byte(`{"signal":"BUY","timestamp":1772366400123}`))
	if sig.Timestamp.UnixMilli() != 1772366400123 {
		t.Fatalf("millis timestamp=%v", sig.Timestamp)
	}
}

func TestParseAsset(t *testing.T) {
	if a, ok := ParseAsset(" eth "); !ok || a != AssetETH {
		t.Fatalf("ParseAsset(eth)=%s,%v", a, ok)
	}
	if _, ok := ParseAsset("BTC"); ok {
		t.Fatalf("BTC should not parse")
	}
}
