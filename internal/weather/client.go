// Package weather wraps the Dark Sky forecast API for taproom weather
// lookups.
package weather

import (
	"context"
	"fmt"
	"net/url"
	"time"

	domerrors "github.com/oorion/avery-messenger-bot/internal/errors"
	"github.com/oorion/avery-messenger-bot/internal/logger"
	"github.com/oorion/avery-messenger-bot/internal/metrics"
	"github.com/oorion/avery-messenger-bot/internal/rest"
)

// taproomCoordinates is the fixed forecast point, the Boulder taproom.
const taproomCoordinates = "40.0626984,-105.2047749"

// Client fetches forecasts for the taproom.
type Client struct {
	rest    *rest.Client
	baseURL string
	token   string
	metrics *metrics.Metrics
	logger  *logger.Logger
}

// NewClient creates a forecast client.
func NewClient(baseURL, token string, timeout time.Duration, maxRetries int, m *metrics.Metrics, log *logger.Logger) *Client {
	return &Client{
		rest:    rest.NewClient(timeout, maxRetries),
		baseURL: baseURL,
		token:   token,
		metrics: m,
		logger:  log.WithModule("weather"),
	}
}

// Configured reports whether a forecast API token is present.
func (c *Client) Configured() bool {
	return c.token != ""
}

type forecastResponse struct {
	Minutely  *summaryBlock `json:"minutely"`
	Hourly    *summaryBlock `json:"hourly"`
	Currently *struct {
		Summary     string  `json:"summary"`
		Temperature float64 `json:"temperature"`
	} `json:"currently"`
}

type summaryBlock struct {
	Summary string `json:"summary"`
}

// Forecast returns a one-line summary of conditions at the taproom. It
// prefers the minutely summary and falls back to hourly, then current
// conditions, since the minutely block is absent outside North America
// and during data gaps.
func (c *Client) Forecast(ctx context.Context) (string, error) {
	if !c.Configured() {
		return "", fmt.Errorf("forecast token: %w", domerrors.ErrNotConfigured)
	}

	endpoint := fmt.Sprintf("%s/forecast/%s/%s", c.baseURL, url.PathEscape(c.token), taproomCoordinates)

	start := time.Now()
	var resp forecastResponse
	err := c.rest.GetJSON(ctx, endpoint, &resp)
	duration := time.Since(start).Seconds()

	if err != nil {
		c.metrics.RecordUpstream("forecast", "error", duration)
		return "", fmt.Errorf("forecast lookup: %w", err)
	}
	c.metrics.RecordUpstream("forecast", "success", duration)

	switch {
	case resp.Minutely != nil && resp.Minutely.Summary != "":
		return resp.Minutely.Summary, nil
	case resp.Hourly != nil && resp.Hourly.Summary != "":
		return resp.Hourly.Summary, nil
	case resp.Currently != nil && resp.Currently.Summary != "":
		return fmt.Sprintf("%s, %.0f degrees.", resp.Currently.Summary, resp.Currently.Temperature), nil
	}
	return "", fmt.Errorf("forecast response: %w", domerrors.ErrNotFound)
}
