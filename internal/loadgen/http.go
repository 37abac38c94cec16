package loadgen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/okian/scoreboard/internal/adapters/auth"
)

const tokenTTL = time.Hour

// errThrottled marks a 429 from the service.
var errThrottled = errors.New("throttled")

// client signs a token per user and decodes response envelopes.
type client struct {
	base   string
	secret string
	http   *http.Client

	mu     sync.Mutex
	tokens map[string]string
}

func newClient(cfg *Config) *client {
	return &client{
		base:   strings.TrimRight(cfg.BaseURL, "/"),
		secret: cfg.Secret,
		http:   &http.Client{Timeout: cfg.Timeout},
		tokens: make(map[string]string),
	}
}

func (c *client) token(userID string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if tok, ok := c.tokens[userID]; ok {
		return tok, nil
	}
	tok, err := auth.Sign(c.secret, auth.Identity{UserID: userID, Role: auth.RoleUser}, tokenTTL)
	if err != nil {
		return "", fmt.Errorf("sign token for %s: %w", userID, err)
	}
	c.tokens[userID] = tok
	return tok, nil
}

// do sends a request as userID and decodes the envelope data into out.
func (c *client) do(ctx context.Context, method, path, userID string, body any, headers map[string]string, out any) (int, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request body: %w", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		tok, err := c.token(userID)
		if err != nil {
			return 0, err
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read %s %s: %w", method, path, err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return resp.StatusCode, errThrottled
	}
	if out == nil {
		return resp.StatusCode, nil
	}
	env := envelope[json.RawMessage]{}
	if err := json.Unmarshal(raw, &env); err != nil {
		return resp.StatusCode, fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	if !env.Success {
		return resp.StatusCode, fmt.Errorf("%s %s: %d %s: %s", method, path, resp.StatusCode, env.Kind, env.Message)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode %s %s data: %w", method, path, err)
	}
	return resp.StatusCode, nil
}

// healthy verifies the service is running.
func (c *client) healthy(ctx context.Context) error {
	code, err := c.do(ctx, http.MethodGet, "/healthz", "", nil, nil, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	if code != http.StatusOK {
		return fmt.Errorf("service health check failed with status: %d", code)
	}
	return nil
}

func (c *client) page(ctx context.Context, as string, number, size int) (page, error) {
	var p page
	_, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/ranking/full-ranking?page=%d&limit=%d", number, size), as, nil, nil, &p)
	return p, err
}

func (c *client) top(ctx context.Context, as string, k int) (leaderboard, error) {
	var l leaderboard
	_, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/ranking/leaderboard?limit=%d", k), as, nil, nil, &l)
	return l, err
}

func (c *client) rankOf(ctx context.Context, as, userID string) (rank, error) {
	var r rank
	_, err := c.do(ctx, http.MethodGet, "/rank/"+url.PathEscape(userID), as, nil, nil, &r)
	return r, err
}

type addResult struct {
	mutation
	Duplicate bool `json:"duplicate"`
}

func (c *client) addPoints(ctx context.Context, userID string, points int64, key string) (addResult, error) {
	var res addResult
	_, err := c.do(ctx, http.MethodPost, "/ranking/add-points", userID,
		map[string]int64{"points": points},
		map[string]string{"Idempotency-Key": key}, &res)
	return res, err
}
