// Package rest provides a shared HTTP client for the JSON REST APIs the bot
// consumes. It layers request timeouts, retries with exponential backoff, and
// response decoding on top of net/http.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	domerrors "github.com/oorion/avery-messenger-bot/internal/errors"
)

// maxResponseBytes caps upstream response bodies to guard against
// pathological payloads.
const maxResponseBytes = 4 << 20

// Client is an HTTP client for upstream JSON APIs with retry support
type Client struct {
	httpClient  *http.Client
	maxRetries  int
	bearerToken string
}

// NewClient creates a new REST client.
// timeout bounds each individual request attempt; maxRetries is the number of
// additional attempts after the first.
func NewClient(timeout time.Duration, maxRetries int) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		maxRetries: maxRetries,
	}
}

// WithBearerToken returns a copy of the client that attaches the token as an
// Authorization header on every request.
func (c *Client) WithBearerToken(token string) *Client {
	clone := *c
	clone.bearerToken = token
	return &clone
}

// GetJSON performs a GET request and decodes the JSON response into out.
func (c *Client) GetJSON(ctx context.Context, url string, out any) error {
	return c.doJSON(ctx, http.MethodGet, url, nil, out)
}

// PostJSON performs a POST request with a JSON body and decodes the JSON
// response into out. body may be nil; out may be nil to discard the response.
func (c *Client) PostJSON(ctx context.Context, url string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
	}
	return c.doJSON(ctx, http.MethodPost, url, payload, out)
}

// doJSON performs the request with retry and decodes the response.
func (c *Client) doJSON(ctx context.Context, method, url string, payload []byte, out any) error {
	var raw []byte

	err := RetryWithBackoff(ctx, c.maxRetries, 1*time.Second, func() error {
		var bodyReader io.Reader
		if payload != nil {
			bodyReader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}

		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.bearerToken != "" {
			req.Header.Set("Authorization", "Bearer "+c.bearerToken)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return domerrors.NewAPIError(url, 0, err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			apiErr := domerrors.NewAPIError(url, resp.StatusCode, fmt.Errorf("unexpected status %d", resp.StatusCode))
			switch resp.StatusCode {
			case 429, 500, 502, 503, 504:
				// Transient, worth retrying
				return apiErr
			default:
				// Client errors are permanent
				return Permanent(apiErr)
			}
		}

		raw, err = io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return domerrors.NewAPIError(url, resp.StatusCode, fmt.Errorf("failed to read body: %w", err))
		}
		return nil
	})
	if err != nil {
		return err
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return domerrors.NewAPIError(url, 0, fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}
