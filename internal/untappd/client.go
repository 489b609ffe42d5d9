// Package untappd wraps the Untappd v4 API for beer popularity lookups.
package untappd

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

// Client talks to the Untappd API. A zero credentials client reports
// ErrNotConfigured instead of making requests.
type Client struct {
	rest         *rest.Client
	baseURL      string
	clientID     string
	clientSecret string
	metrics      *metrics.Metrics
	logger       *logger.Logger
}

// NewClient creates an Untappd API client.
func NewClient(baseURL, clientID, clientSecret string, timeout time.Duration, maxRetries int, m *metrics.Metrics, log *logger.Logger) *Client {
	return &Client{
		rest:         rest.NewClient(timeout, maxRetries),
		baseURL:      baseURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		metrics:      m,
		logger:       log.WithModule("untappd"),
	}
}

// Configured reports whether API credentials are present.
func (c *Client) Configured() bool {
	return c.clientID != "" && c.clientSecret != ""
}

type searchResponse struct {
	Response struct {
		Beers struct {
			Items []struct {
				CheckinCount int `json:"checkin_count"`
				Beer         struct {
					BID      int    `json:"bid"`
					BeerName string `json:"beer_name"`
				} `json:"beer"`
			} `json:"items"`
		} `json:"beers"`
	} `json:"response"`
}

// CheckinCount returns the check-in count of the top search hit for the
// given beer name. A beer with no search hits returns zero with no error.
func (c *Client) CheckinCount(ctx context.Context, beerName string) (int, error) {
	if !c.Configured() {
		return 0, fmt.Errorf("untappd credentials: %w", domerrors.ErrNotConfigured)
	}

	endpoint := fmt.Sprintf("%s/v4/search/beer?q=%s&client_id=%s&client_secret=%s",
		c.baseURL, url.QueryEscape(beerName), url.QueryEscape(c.clientID), url.QueryEscape(c.clientSecret))

	start := time.Now()
	var resp searchResponse
	err := c.rest.GetJSON(ctx, endpoint, &resp)
	duration := time.Since(start).Seconds()

	if err != nil {
		c.metrics.RecordUpstream("untappd", "error", duration)
		return 0, fmt.Errorf("untappd beer search: %w", err)
	}
	c.metrics.RecordUpstream("untappd", "success", duration)

	if len(resp.Response.Beers.Items) == 0 {
		return 0, nil
	}
	return resp.Response.Beers.Items[0].CheckinCount, nil
}
