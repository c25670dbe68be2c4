package tee

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/ZkAGI/pawpad-rofl/internal/config"
)

type KeyKind string

const (
	KindSecp256k1 KeyKind = "secp256k1"
	KindEd25519   KeyKind = "ed25519"
)

const SapphireSignerKeyID = "pawpad:sapphire:signer:v1"

func EVMKeyID(uid string) string    { return "pawpad:user:" + uid + ":evm:v1" }
func SolanaKeyID(uid string) string { return "pawpad:user:" + uid + ":sol:v1" }

// KeyDeriver returns deterministic key material for keyID. Callers use the
// first 32 bytes as the private key or seed.
type KeyDeriver interface {
	DeriveSigningKey(ctx context.Context, keyID string, kind KeyKind) ([]byte, error)
}

var ErrShortKey = errors.New("tee: derived key shorter than 32 bytes")

func New(cfg config.TEEConfig) KeyDeriver {
	if cfg.Mock {
		return &MockDeriver{Secret: []byte(cfg.DevSecret)}
	}
	return NewROFLClient(cfg.Socket)
}

// ROFLClient talks to rofl-appd over its unix socket.
type ROFLClient struct {
	Socket string
	HTTP   *http.Client
}

func NewROFLClient(socket string) *ROFLClient {
	return &ROFLClient{
		Socket: socket,
		HTTP: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, "unix", socket)
				},
			},
		},
	}
}

type generateRequest struct {
	KeyID string  `json:"key_id"`
	Kind  KeyKind `json:"kind"`
}

type generateResponse struct {
	Key string `json:"key"`
}

func (c *ROFLClient) DeriveSigningKey(ctx context.Context, keyID string, kind KeyKind) ([]byte, error) {
	if strings.TrimSpace(keyID) == "" {
		return nil, errors.New("tee: empty key id")
	}
	body, _ := json.Marshal(generateRequest{KeyID: keyID, Kind: kind})
	// rofl-appd rejects requests without Host: localhost.
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://localhost/rofl/v1/keys/generate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tee: rofl-appd: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("tee: rofl-appd http %d: %s", resp.StatusCode, preview(b))
	}
	var out generateResponse
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("tee: decode key response: %w", err)
	}
	return DecodeKey(out.Key)
}

// DecodeKey strips an optional 0x prefix and whitespace and requires at
// least 32 bytes.
func DecodeKey(raw string) ([]byte, error) {
	s := strings.Join(strings.Fields(raw), "")
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if s == "" {
		return nil, errors.New("tee: key missing from response")
	}
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("tee: key is not hex: %w", err)
	}
	if len(key) < 32 {
		return nil, ErrShortKey
	}
	return key, nil
}

// MockDeriver derives keys locally as HMAC-SHA256(secret, keyID). Only for
// development; the same secret always yields the same keys.
type MockDeriver struct {
	Secret []byte
}

func (m *MockDeriver) DeriveSigningKey(_ context.Context, keyID string, kind KeyKind) ([]byte, error) {
	if strings.TrimSpace(keyID) == "" {
		return nil, errors.New("tee: empty key id")
	}
	mac := hmac.New(sha256.New, m.Secret)
	mac.Write([]byte(string(kind) + "|" + keyID))
	return mac.Sum(nil), nil
}

func preview(b []byte) string {
	s := strings.Join(strings.Fields(string(b)), " ")
	if len(s) > 300 {
		return s[:300]
	}
	return s
}
