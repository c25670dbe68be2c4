package solana

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"
	"unicode/utf8"
)

const (
	defaultRPCTimeout = 30 * time.Second
	defaultRetries    = 2
	defaultRetryDelay = 500 * time.Millisecond
	maxRetryDelay     = 5 * time.Second
)

// RPCClient is a JSON-RPC 2.0 client for the Solana HTTP endpoint.
type RPCClient struct {
	endpoint   string
	commitment string
	client     *http.Client
	maxRetries int
	retryDelay time.Duration
	requestID  atomic.Uint64
}

type RPCOption func(*RPCClient)

func WithHTTPClient(client *http.Client) RPCOption {
	return func(c *RPCClient) { c.client = client }
}

func WithRetries(n int, delay time.Duration) RPCOption {
	return func(c *RPCClient) {
		c.maxRetries = n
		c.retryDelay = delay
	}
}

func NewRPCClient(endpoint, commitment string, opts ...RPCOption) *RPCClient {
	if commitment == "" {
		commitment = CommitmentConfirmed
	}
	c := &RPCClient{
		endpoint:   endpoint,
		commitment: commitment,
		client:     &http.Client{Timeout: defaultRPCTimeout},
		maxRetries: defaultRetries,
		retryDelay: defaultRetryDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  *RPCError       `json:"error,omitempty"`
}

type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// call retries transport failures, 429 and 5xx. JSON-RPC errors are final.
func (c *RPCClient) call(ctx context.Context, method string, params []any, result any) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: c.requestID.Add(1), Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	delay := c.retryDelay
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			if delay > maxRetryDelay {
				delay = maxRetryDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("%s: %w", method, err)
			continue
		}
		respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("%s: read response: %w", method, err)
			continue
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("%s: http %d", method, resp.StatusCode)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%s: http %d: %s", method, resp.StatusCode, truncate(string(respBody), 300))
		}

		var rpcResp rpcResponse
		if err := json.Unmarshal(respBody, &rpcResp); err != nil {
			return fmt.Errorf("%s: decode response: %w", method, err)
		}
		if rpcResp.Error != nil {
			return rpcResp.Error
		}
		if result != nil && len(rpcResp.Result) > 0 {
			if err := json.Unmarshal(rpcResp.Result, result); err != nil {
				return fmt.Errorf("%s: decode result: %w", method, err)
			}
		}
		return nil
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *RPCClient) GetBalance(ctx context.Context, pubkey string) (uint64, error) {
	var out struct {
		Value uint64 `json:"value"`
	}
	params := []any{pubkey, map[string]any{"commitment": c.commitment}}
	if err := c.call(ctx, "getBalance", params, &out); err != nil {
		return 0, err
	}
	return out.Value, nil
}

type SendOptions struct {
	SkipPreflight bool
	MaxRetries    int
}

// SendTransaction submits a base64 wire transaction and returns its signature.
func (c *RPCClient) SendTransaction(ctx context.Context, wireBase64 string, opts SendOptions) (string, error) {
	cfg := map[string]any{
		"encoding":            "base64",
		"skipPreflight":       opts.SkipPreflight,
		"preflightCommitment": c.commitment,
	}
	if opts.MaxRetries > 0 {
		cfg["maxRetries"] = opts.MaxRetries
	}
	var sig string
	if err := c.call(ctx, "sendTransaction", []any{wireBase64, cfg}, &sig); err != nil {
		return "", err
	}
	return sig, nil
}

// SignatureStatus mirrors one entry of getSignatureStatuses. A nil status
// means the cluster has not seen the signature yet.
type SignatureStatus struct {
	Slot               uint64          `json:"slot"`
	Confirmations      *uint64         `json:"confirmations"`
	Err                json.RawMessage `json:"err"`
	ConfirmationStatus string          `json:"confirmationStatus"`
}

func (s *SignatureStatus) Failed() bool {
	return s != nil && len(s.Err) > 0 && string(s.Err) != "null"
}

func (c *RPCClient) GetSignatureStatus(ctx context.Context, signature string) (*SignatureStatus, error) {
	var out struct {
		Value []*SignatureStatus `json:"value"`
	}
	params := []any{[]string{signature}, map[string]any{"searchTransactionHistory": false}}
	if err := c.call(ctx, "getSignatureStatuses", params, &out); err != nil {
		return nil, err
	}
	if len(out.Value) == 0 {
		return nil, nil
	}
	return out.Value[0], nil
}

func (c *RPCClient) Commitment() string { return c.commitment }

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
