package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/ZkAGI/pawpad-rofl/internal/config"
	"github.com/ZkAGI/pawpad-rofl/internal/models"
	"github.com/ZkAGI/pawpad-rofl/internal/repository"
)

const maxPayloadBytes = 1 << 20

// Fetcher returns the latest signal for an asset. Callers treat any error as
// "no signal".
type Fetcher interface {
	Fetch(ctx context.Context, asset Asset) (Signal, error)
}

type HealthStatus struct {
	Status     string     `json:"status"`
	LastPollAt *time.Time `json:"last_poll_at,omitempty"`
	LastError  *string    `json:"last_error,omitempty"`
}

// HTTPFetcher polls the signal provider and keeps every raw payload in the
// signal log.
type HTTPFetcher struct {
	HTTP   *http.Client
	Logger *zap.Logger
	URLs   map[Asset]string

	Logs repository.SignalLogRepository
	// LogEnabled gates signal log writes; nil means always on.
	LogEnabled func(ctx context.Context) bool

	mu     sync.Mutex
	health map[Asset]HealthStatus
}

func NewHTTPFetcher(cfg config.SignalsConfig, logs repository.SignalLogRepository, logger *zap.Logger) *HTTPFetcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPFetcher{
		HTTP:   &http.Client{Timeout: timeout},
		Logger: logger,
		URLs: map[Asset]string{
			AssetETH: strings.TrimSpace(cfg.ETHURL),
			AssetSOL: strings.TrimSpace(cfg.SOLURL),
		},
		Logs: logs,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, asset Asset) (Signal, error) {
	now := time.Now().UTC()
	raw, err := f.fetchRaw(ctx, asset)
	if err != nil {
		f.setHealth(asset, now, "down", err)
		return Signal{}, err
	}
	f.store(ctx, asset, raw, now)

	sig, err := Parse(asset, raw)
	if err != nil {
		f.setHealth(asset, now, "degraded", err)
		return Signal{}, err
	}
	f.setHealth(asset, now, "healthy", nil)
	return sig, nil
}

func (f *HTTPFetcher) fetchRaw(ctx context.Context, asset Asset) ([]byte, error) {
	endpoint := f.URLs[asset]
	if endpoint == "" {
		return nil, fmt.Errorf("signal: no endpoint for %s", asset)
	}
	client := f.HTTP
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("signal: http %d: %s", resp.StatusCode, truncate(string(body), 300))
	}
	return body, nil
}

// store is best effort: a failed write is logged and dropped.
func (f *HTTPFetcher) store(ctx context.Context, asset Asset, raw []byte, ts time.Time) {
	if f.Logs == nil || !json.Valid(raw) {
		return
	}
	if f.LogEnabled != nil && !f.LogEnabled(ctx) {
		return
	}
	err := f.Logs.InsertSignalLog(ctx, &models.SignalLog{
		Asset:     string(asset),
		Payload:   datatypes.JSON(raw),
		Timestamp: ts,
	})
	if err != nil {
		f.logger().Warn("signal log insert failed", zap.String("asset", string(asset)), zap.Error(err))
	}
}

func (f *HTTPFetcher) Health() map[Asset]HealthStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[Asset]HealthStatus, len(f.health))
	for k, v := range f.health {
		out[k] = v
	}
	return out
}

func (f *HTTPFetcher) setHealth(asset Asset, ts time.Time, status string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.health == nil {
		f.health = map[Asset]HealthStatus{}
	}
	h := HealthStatus{Status: status, LastPollAt: &ts}
	if err != nil {
		msg := err.Error()
		h.LastError = &msg
	}
	f.health[asset] = h
}

func (f *HTTPFetcher) logger() *zap.Logger {
	if f.Logger == nil {
		return zap.NewNop()
	}
	return f.Logger
}

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
