package solana

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/ZkAGI/pawpad-rofl/internal/config"
)

const (
	SOLMint  = "So11111111111111111111111111111111111111112"
	USDCMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

var (
	ErrEmptyQuote        = errors.New("jupiter: quote has no output amount")
	ErrNoSwapTransaction = errors.New("jupiter: swap response has no transaction")
)

// JupiterClient wraps the aggregator quote and swap endpoints.
type JupiterClient struct {
	QuoteURL     string
	SwapURL      string
	APIKey       string
	QuoteTimeout time.Duration
	SwapTimeout  time.Duration
	HTTP         *http.Client
	Limiter      *rate.Limiter
}

func NewJupiterClient(cfg config.SolanaConfig) *JupiterClient {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	return &JupiterClient{
		QuoteURL:     cfg.JupiterQuoteURL,
		SwapURL:      cfg.JupiterSwapURL,
		APIKey:       strings.TrimSpace(cfg.JupiterAPIKey),
		QuoteTimeout: cfg.QuoteTimeout,
		SwapTimeout:  cfg.SwapTimeout,
		HTTP:         &http.Client{Timeout: 60 * time.Second},
		Limiter:      rate.NewLimiter(rate.Limit(rps), 1),
	}
}

type QuoteRequest struct {
	InputMint   string
	OutputMint  string
	Amount      *big.Int
	SlippageBps int
}

// JupiterQuote keeps the raw response so it can be handed back to Swap
// unchanged.
type JupiterQuote struct {
	Raw                  json.RawMessage
	InAmount             *big.Int
	OutAmount            *big.Int
	OtherAmountThreshold *big.Int
}

func (c *JupiterClient) Quote(ctx context.Context, req QuoteRequest) (*JupiterQuote, error) {
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return nil, errors.New("jupiter: quote amount must be positive")
	}
	u, err := url.Parse(c.QuoteURL)
	if err != nil {
		return nil, fmt.Errorf("jupiter: quote url: %w", err)
	}
	q := u.Query()
	q.Set("inputMint", req.InputMint)
	q.Set("outputMint", req.OutputMint)
	q.Set("amount", req.Amount.String())
	q.Set("slippageBps", strconv.Itoa(req.SlippageBps))
	u.RawQuery = q.Encode()

	body, err := c.do(ctx, http.MethodGet, u.String(), nil, c.QuoteTimeout)
	if err != nil {
		return nil, fmt.Errorf("jupiter quote: %w", err)
	}

	var fields struct {
		InAmount             string `json:"inAmount"`
		OutAmount            string `json:"outAmount"`
		OtherAmountThreshold string `json:"otherAmountThreshold"`
	}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("jupiter quote: decode: %w", err)
	}
	out, ok := new(big.Int).SetString(strings.TrimSpace(fields.OutAmount), 10)
	if !ok || out.Sign() <= 0 {
		return nil, ErrEmptyQuote
	}
	quote := &JupiterQuote{Raw: json.RawMessage(body), OutAmount: out}
	if in, ok := new(big.Int).SetString(strings.TrimSpace(fields.InAmount), 10); ok {
		quote.InAmount = in
	} else {
		quote.InAmount = new(big.Int).Set(req.Amount)
	}
	if th, ok := new(big.Int).SetString(strings.TrimSpace(fields.OtherAmountThreshold), 10); ok {
		quote.OtherAmountThreshold = th
	}
	return quote, nil
}

type swapRequest struct {
	QuoteResponse             json.RawMessage `json:"quoteResponse"`
	UserPublicKey             string          `json:"userPublicKey"`
	WrapAndUnwrapSol          bool            `json:"wrapAndUnwrapSol"`
	DynamicComputeUnitLimit   bool            `json:"dynamicComputeUnitLimit"`
	PrioritizationFeeLamports string          `json:"prioritizationFeeLamports"`
}

// Swap asks the aggregator to build a transaction for quote and returns it
// base64-encoded and unsigned.
func (c *JupiterClient) Swap(ctx context.Context, quote *JupiterQuote, userPublicKey string) (string, error) {
	if quote == nil || len(quote.Raw) == 0 {
		return "", errors.New("jupiter: swap without quote")
	}
	payload, err := json.Marshal(swapRequest{
		QuoteResponse:             quote.Raw,
		UserPublicKey:             userPublicKey,
		WrapAndUnwrapSol:          true,
		DynamicComputeUnitLimit:   true,
		PrioritizationFeeLamports: "auto",
	})
	if err != nil {
		return "", err
	}
	body, err := c.do(ctx, http.MethodPost, c.SwapURL, payload, c.SwapTimeout)
	if err != nil {
		return "", fmt.Errorf("jupiter swap: %w", err)
	}
	var out struct {
		SwapTransaction string `json:"swapTransaction"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("jupiter swap: decode: %w", err)
	}
	if strings.TrimSpace(out.SwapTransaction) == "" {
		return "", ErrNoSwapTransaction
	}
	return out.SwapTransaction, nil
}

func (c *JupiterClient) do(ctx context.Context, method, endpoint string, payload []byte, timeout time.Duration) ([]byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	var rd io.Reader
	if payload != nil {
		rd = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, rd)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.APIKey != "" {
		req.Header.Set("x-api-key", c.APIKey)
	}
	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, truncate(string(body), 300))
	}
	return body, nil
}
