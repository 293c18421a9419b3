package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"journal-sync/internal/config"
	"journal-sync/internal/logger"
	"journal-sync/pkg/errors"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
)

// Client talks to the REST gateway that owns attendance, grades, lessons and
// attestation results.
type Client struct {
	cfg         *config.GatewayConfig
	httpClient  *http.Client
	authManager *AuthManager
	cache       *cache.Cache
	sleep       func(ctx context.Context, d time.Duration) error
	log         zerolog.Logger
}

func NewClient(cfg *config.Config) *Client {
	httpClient := &http.Client{
		Timeout: cfg.Gateway.Timeout,
	}
	return &Client{
		cfg:         &cfg.Gateway,
		httpClient:  httpClient,
		authManager: NewAuthManager(&cfg.Gateway, httpClient),
		cache:       cache.New(cfg.Gateway.CacheTTL, 2*cfg.Gateway.CacheTTL),
		sleep:       sleepCtx,
		log:         logger.For("gateway"),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// idempotent methods are safe to resend after a network or 5xx failure.
func idempotent(method string) bool {
	return method == http.MethodGet || method == http.MethodDelete
}

// backoff returns the wait before retry attempt n (1-based), doubling and capped.
func (c *Client) backoff(attempt int) time.Duration {
	d := c.cfg.RetryDelay << (attempt - 1)
	if d <= 0 || d > c.cfg.MaxRetryWait {
		return c.cfg.MaxRetryWait
	}
	return d
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	attempts := 1
	if idempotent(method) {
		attempts += c.cfg.MaxRetries
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			wait := c.backoff(attempt)
			c.log.Warn().
				Err(lastErr).
				Str("method", method).
				Str("path", path).
				Int("attempt", attempt+1).
				Dur("wait", wait).
				Msg("Gateway request failed, retrying")
			if err := c.sleep(ctx, wait); err != nil {
				return err
			}
		}

		lastErr = c.send(ctx, method, path, query, payload, out)
		if lastErr == nil || !errors.IsRetryable(lastErr) {
			return lastErr
		}
	}

	return fmt.Errorf("%w: %w", errors.ErrGatewayUnavailable, lastErr)
}

func (c *Client) send(ctx context.Context, method, path string, query url.Values, payload []byte, out interface{}) error {
	fullURL := c.cfg.BaseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.authManager.Enabled() {
		token, err := c.authManager.GetToken(ctx)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	c.log.Debug().Str("method", method).Str("url", fullURL).Msg("Gateway request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.NewRetryableError(err, "HTTP request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil || resp.StatusCode == http.StatusNoContent {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	}

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	statusErr := errors.StatusError{
		Method:     method,
		Path:       path,
		StatusCode: resp.StatusCode,
		Body:       string(respBody),
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized && c.authManager.Enabled():
		// Token might be expired, retry will refresh it
		c.authManager.Invalidate()
		return errors.NewRetryableError(statusErr, "authentication failed")
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		return errors.NewRetryableError(statusErr, "gateway unavailable")
	default:
		return statusErr
	}
}
