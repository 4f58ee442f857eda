// Package httpclient calls internal JSON endpoints of collaborating services.
package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/appLSI/decentralized-rental-app-sub000/pkg/retry"
	"github.com/appLSI/decentralized-rental-app-sub000/pkg/telemetry"
)

var (
	// ErrNotFound is returned for a 404 response
	ErrNotFound = errors.New("resource not found")
	// ErrUnavailable wraps transport failures and 5xx responses after retries
	ErrUnavailable = errors.New("service unavailable")
)

// TokenSource provides bearer tokens for outgoing calls
type TokenSource interface {
	Token() (string, error)
}

// StatusError is a non-2xx response that is not retried
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// Config configures a Client
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	Tokens     TokenSource
	HTTPClient *http.Client
}

// Client performs GET requests that decode JSON bodies
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	retrier *retry.Retrier
}

// New creates a client. Timeout applies to every attempt.
func New(cfg *Config) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    hc,
		tokens:  cfg.Tokens,
		retrier: retry.New(&retry.Config{
			MaxRetries:      cfg.MaxRetries,
			InitialInterval: 200 * time.Millisecond,
			MaxInterval:     2 * time.Second,
			Multiplier:      2,
			JitterFactor:    0.1,
		}),
	}
}

// GetJSON fetches path and decodes the body into out. 404 maps to ErrNotFound
// and other 4xx responses to *StatusError without retry. Transport errors and
// 5xx responses are retried and then reported as ErrUnavailable.
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	ctx, span := telemetry.StartSpan(ctx, "httpclient.get")
	defer span.End()

	result := c.retrier.Do(ctx, func(ctx context.Context) error {
		return c.get(ctx, path, out)
	})
	if result.Err == nil {
		return nil
	}

	err := result.Err
	if !errors.Is(err, ErrNotFound) && !isStatusError(err) {
		err = fmt.Errorf("%w: %s: %w", ErrUnavailable, path, result.Err)
	}
	telemetry.SetSpanError(ctx, err)
	return err
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return retry.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")

	if c.tokens != nil {
		token, err := c.tokens.Token()
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	headers := map[string]string{}
	telemetry.InjectHeaders(ctx, headers)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return retry.Permanent(ErrNotFound)
	case resp.StatusCode >= 500:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	case resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return retry.Permanent(&StatusError{StatusCode: resp.StatusCode, Body: string(body)})
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return retry.Permanent(fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func isStatusError(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode < 500
}
