package solana

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

const (
	CommitmentProcessed = "processed"
	CommitmentConfirmed = "confirmed"
	CommitmentFinalized = "finalized"
)

var (
	ErrConfirmTimeout = errors.New("solana: confirmation timed out")
	ErrTxFailed       = errors.New("solana: transaction failed on chain")
)

func commitmentRank(level string) int {
	switch level {
	case CommitmentProcessed:
		return 1
	case CommitmentConfirmed:
		return 2
	case CommitmentFinalized:
		return 3
	}
	return 0
}

// Confirmer blocks until signature reaches the configured commitment.
type Confirmer interface {
	Confirm(ctx context.Context, signature string) error
}

type statusSource interface {
	GetSignatureStatus(ctx context.Context, signature string) (*SignatureStatus, error)
	Commitment() string
}

// PollConfirmer polls getSignatureStatuses.
type PollConfirmer struct {
	RPC      statusSource
	Interval time.Duration
	Timeout  time.Duration
}

func (p *PollConfirmer) Confirm(ctx context.Context, signature string) error {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	interval := p.Interval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	want := commitmentRank(p.RPC.Commitment())
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	var lastErr error
	for {
		st, err := p.RPC.GetSignatureStatus(ctx, signature)
		switch {
		case err != nil:
			lastErr = err
		case st.Failed():
			return fmt.Errorf("%w: %s: %s", ErrTxFailed, signature, string(st.Err))
		case st != nil && commitmentRank(st.ConfirmationStatus) >= want:
			return nil
		}
		select {
		case <-ctx.Done():
			if lastErr != nil {
				return fmt.Errorf("%w: %s: %v", ErrConfirmTimeout, signature, lastErr)
			}
			return fmt.Errorf("%w: %s", ErrConfirmTimeout, signature)
		case <-ticker.C:
		}
	}
}

// WSConfirmer waits on a signatureSubscribe notification. When the socket
// cannot be opened it hands over to Fallback.
type WSConfirmer struct {
	URL        string
	Commitment string
	Timeout    time.Duration
	Fallback   Confirmer
	Logger     *zap.Logger
}

type wsNotification struct {
	Method string `json:"method"`
	Params struct {
		Result struct {
			Value struct {
				Err json.RawMessage `json:"err"`
			} `json:"value"`
		} `json:"result"`
	} `json:"params"`
	Error *RPCError `json:"error"`
}

func (w *WSConfirmer) Confirm(ctx context.Context, signature string) error {
	timeout := w.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, strings.TrimSpace(w.URL), nil)
	if err != nil {
		if w.Fallback == nil {
			return fmt.Errorf("solana ws dial: %w", err)
		}
		if w.Logger != nil {
			w.Logger.Warn("solana ws unavailable, polling instead", zap.Error(err))
		}
		return w.Fallback.Confirm(ctx, signature)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "done") }()

	commitment := w.Commitment
	if commitment == "" {
		commitment = CommitmentConfirmed
	}
	sub, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "signatureSubscribe",
		Params:  []any{signature, map[string]any{"commitment": commitment}},
	})
	if err != nil {
		return err
	}
	if err := conn.Write(ctx, websocket.MessageText, sub); err != nil {
		return fmt.Errorf("solana ws subscribe: %w", err)
	}

	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%w: %s", ErrConfirmTimeout, signature)
			}
			return fmt.Errorf("solana ws read: %w", err)
		}
		var n wsNotification
		if err := json.Unmarshal(msg, &n); err != nil {
			continue
		}
		if n.Error != nil {
			return fmt.Errorf("solana ws subscribe: %w", n.Error)
		}
		if n.Method != "signatureNotification" {
			continue
		}
		if e := n.Params.Result.Value.Err; len(e) > 0 && string(e) != "null" {
			return fmt.Errorf("%w: %s: %s", ErrTxFailed, signature, string(e))
		}
		return nil
	}
}
