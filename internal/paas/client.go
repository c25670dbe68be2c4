package paas

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
)

const DefaultAgent = "pawpad-trader"

// Client posts ops logs to the easyweb3 platform. It logs in with an API key
// and refreshes the bearer token shortly before it expires.
type Client struct {
	BaseURL string
	APIKey  string
	Agent   string

	mu        sync.RWMutex
	token     string
	expiresAt time.Time

	HTTP *http.Client
}

// NewFromEnv returns nil unless both EASYWEB3_API_BASE and EASYWEB3_API_KEY
// are set.
func NewFromEnv() *Client {
	base := strings.TrimSpace(os.Getenv("EASYWEB3_API_BASE"))
	key := strings.TrimSpace(os.Getenv("EASYWEB3_API_KEY"))
	if base == "" || key == "" {
		return nil
	}
	agent := strings.TrimSpace(os.Getenv("PAWPAD_PAAS_AGENT"))
	if agent == "" {
		agent = DefaultAgent
	}
	return &Client{
		BaseURL: base,
		APIKey:  key,
		Agent:   agent,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

type loginResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

func (c *Client) Login(ctx context.Context) error {
	apiKey := strings.TrimSpace(c.APIKey)
	if apiKey == "" {
		return errors.New("paas api key is empty")
	}
	body, _ := json.Marshal(map[string]any{"api_key": apiKey})
	b, err := c.post(ctx, "/api/v1/auth/login", body, "")
	if err != nil {
		return fmt.Errorf("paas login: %w", err)
	}
	var lr loginResponse
	if err := json.Unmarshal(b, &lr); err != nil {
		return err
	}
	exp, _ := time.Parse(time.RFC3339, strings.TrimSpace(lr.ExpiresAt))

	c.mu.Lock()
	c.token = strings.TrimSpace(lr.Token)
	c.expiresAt = exp
	c.mu.Unlock()
	return nil
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) EnsureToken(ctx context.Context) error {
	c.mu.RLock()
	tok := c.token
	exp := c.expiresAt
	c.mu.RUnlock()
	if tok == "" || (!exp.IsZero() && time.Until(exp) < 2*time.Minute) {
		return c.Login(ctx)
	}
	return nil
}

type CreateLogRequest struct {
	Agent      string         `json:"agent"`
	Action     string         `json:"action"`
	Level      string         `json:"level"`
	Details    map[string]any `json:"details"`
	SessionKey string         `json:"session_key"`
	Metadata   map[string]any `json:"metadata"`
}

func (c *Client) CreateLog(ctx context.Context, req CreateLogRequest) error {
	if err := c.EnsureToken(ctx); err != nil {
		return err
	}
	if req.Agent == "" {
		req.Agent = c.agent()
	}
	if req.Metadata == nil {
		req.Metadata = map[string]any{}
	}
	b, err := json.Marshal(req)
	if err != nil {
		return err
	}
	if _, err := c.post(ctx, "/api/v1/logs", b, c.Token()); err != nil {
		return fmt.Errorf("paas create log: %w", err)
	}
	return nil
}

// LogBestEffort sends a log with its own short timeout and drops any error.
func (c *Client) LogBestEffort(action, level string, details map[string]any) {
	if c == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = c.CreateLog(ctx, CreateLogRequest{Action: action, Level: level, Details: details})
}

func (c *Client) post(ctx context.Context, path string, body []byte, bearer string) ([]byte, error) {
	base := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if base == "" {
		return nil, errors.New("paas base url is empty")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return b, nil
}

func (c *Client) agent() string {
	if strings.TrimSpace(c.Agent) == "" {
		return DefaultAgent
	}
	return c.Agent
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return &http.Client{Timeout: 10 * time.Second}
}
