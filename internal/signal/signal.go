package signal

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Asset string

const (
	AssetETH Asset = "ETH"
	AssetSOL Asset = "SOL"
)

var Assets = []Asset{AssetETH, AssetSOL}

func ParseAsset(raw string) (Asset, bool) {
	switch Asset(strings.ToUpper(strings.TrimSpace(raw))) {
	case AssetETH:
		return AssetETH, true
	case AssetSOL:
		return AssetSOL, true
	}
	return "", false
}

type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// NormalizeAction maps any upstream value onto BUY, SELL or HOLD. Anything it
// does not recognise becomes HOLD.
func NormalizeAction(raw any) Action {
	s, ok := raw.(string)
	if !ok {
		return ActionHold
	}
	switch Action(strings.ToUpper(strings.TrimSpace(s))) {
	case ActionBuy:
		return ActionBuy
	case ActionSell:
		return ActionSell
	}
	return ActionHold
}

type Signal struct {
	Asset      Asset
	Action     Action
	Price      decimal.Decimal
	Score      *float64
	Confidence *float64
	// Timestamp is zero when the payload had none or it could not be parsed.
	Timestamp time.Time
}

var (
	ErrMalformed     = errors.New("signal: malformed payload")
	ErrAssetMismatch = errors.New("signal: asset mismatch")
)

type wirePayload struct {
	Asset      json.RawMessage `json:"asset"`
	Signal     json.RawMessage `json:"signal"`
	Action     json.RawMessage `json:"action"`
	Price      json.RawMessage `json:"price"`
	Score      json.RawMessage `json:"score"`
	Confidence json.RawMessage `json:"confidence"`
	Timestamp  json.RawMessage `json:"timestamp"`
}

// Parse validates a provider payload for asset. Only a body that is not a
// JSON object, or one naming a different asset, is rejected; every other
// defect degrades to a safe value (HOLD, zero price, zero timestamp).
func Parse(asset Asset, raw []byte) (Signal, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Signal{}, ErrMalformed
	}
	var p wirePayload
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return Signal{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if s, ok := rawString(p.Asset); ok && s != "" {
		got, known := ParseAsset(s)
		if !known || got != asset {
			return Signal{}, fmt.Errorf("%w: got %q want %q", ErrAssetMismatch, s, asset)
		}
	}

	actionRaw := p.Signal
	if isAbsent(actionRaw) {
		actionRaw = p.Action
	}
	var action any
	if !isAbsent(actionRaw) {
		_ = json.Unmarshal(actionRaw, &action)
	}

	sig := Signal{
		Asset:     asset,
		Action:    NormalizeAction(action),
		Timestamp: parseTimestamp(p.Timestamp),
	}
	if price, ok := rawDecimal(p.Price); ok {
		sig.Price = price
	}
	if v, ok := rawDecimal(p.Score); ok {
		f := v.InexactFloat64()
		sig.Score = &f
	}
	if v, ok := rawDecimal(p.Confidence); ok {
		f := v.InexactFloat64()
		sig.Confidence = &f
	}
	return sig, nil
}

func isAbsent(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

func rawString(raw json.RawMessage) (string, bool) {
	if isAbsent(raw) || raw[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return strings.TrimSpace(s), true
}

// rawDecimal accepts a JSON number or a numeric string.
func rawDecimal(raw json.RawMessage) (decimal.Decimal, bool) {
	if isAbsent(raw) {
		return decimal.Zero, false
	}
	text := string(raw)
	if s, ok := rawString(raw); ok {
		text = s
	}
	d, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func parseTimestamp(raw json.RawMessage) time.Time {
	if isAbsent(raw) {
		return time.Time{}
	}
	if s, ok := rawString(raw); ok {
		for _, layout := range timestampLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC()
			}
		}
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			return fromUnix(n)
		}
		return time.Time{}
	}
	n, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return time.Time{}
	}
	return fromUnix(n)
}

// fromUnix treats values above 1e12 as milliseconds.
func fromUnix(n float64) time.Time {
	if n <= 0 {
		return time.Time{}
	}
	if n > 1e12 {
		return time.UnixMilli(int64(n)).UTC()
	}
	return time.Unix(int64(n), 0).UTC()
}
