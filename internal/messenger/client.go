// Package messenger provides the Facebook Messenger platform boundary:
// the Send API client for outbound replies and the webhook envelope types
// for inbound deliveries.
package messenger

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/oorion/avery-messenger-bot/internal/logger"
	"github.com/oorion/avery-messenger-bot/internal/metrics"
	"github.com/oorion/avery-messenger-bot/internal/ratelimit"
	"github.com/oorion/avery-messenger-bot/internal/rest"
)

// defaultMaxTextLength is the Send API text limit used when the config does
// not override it. Replies at or over the limit are split into two sequential
// deliveries, the first carrying exactly limit-1 characters.
const defaultMaxTextLength = 320

// Client sends messages through the Messenger Send API.
type Client struct {
	rest      *rest.Client
	baseURL   string
	pageToken string
	maxText   int
	limiter   *ratelimit.Limiter
	metrics   *metrics.Metrics
	logger    *logger.Logger
}

// ClientConfig holds configuration for creating a new Client.
type ClientConfig struct {
	BaseURL       string
	PageToken     string
	MaxTextLength int
	Timeout       time.Duration
	Limiter       *ratelimit.Limiter
	Metrics       *metrics.Metrics
	Logger        *logger.Logger
}

// NewClient creates a Send API client.
func NewClient(cfg ClientConfig) *Client {
	maxText := cfg.MaxTextLength
	if maxText <= 0 {
		maxText = defaultMaxTextLength
	}
	return &Client{
		rest:      rest.NewClient(cfg.Timeout, 0), // Send API calls are not retried; a duplicate reply is worse than a dropped one
		baseURL:   cfg.BaseURL,
		pageToken: cfg.PageToken,
		maxText:   maxText,
		limiter:   cfg.Limiter,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger.WithModule("messenger"),
	}
}

// sendRequest is the Send API request body.
type sendRequest struct {
	Recipient recipient `json:"recipient"`
	Message   message   `json:"message"`
}

type recipient struct {
	ID string `json:"id"`
}

type message struct {
	Text string `json:"text"`
}

// sendResponse is the Send API response body; Error is set on failure even
// with a 200 status.
type sendResponse struct {
	RecipientID string     `json:"recipient_id"`
	MessageID   string     `json:"message_id"`
	Error       *sendError `json:"error,omitempty"`
}

type sendError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    int    `json:"code"`
}

// SendText delivers a text reply to a Messenger user. Text at or over the
// platform limit is split into two deliveries; the second is sent only after
// the first completes, preserving display order.
func (c *Client) SendText(ctx context.Context, recipientID, text string) error {
	runes := []rune(text)
	if len(runes) < c.maxText {
		return c.deliver(ctx, recipientID, text)
	}

	if err := c.deliver(ctx, recipientID, string(runes[:c.maxText-1])); err != nil {
		// First chunk failures are logged but do not suppress the second
		// chunk, matching the platform behavior users already rely on.
		c.logger.WithError(err).WithField("recipient_id", recipientID).
			Error("Failed to deliver first message chunk")
	}
	return c.deliver(ctx, recipientID, string(runes[c.maxText-1:]))
}

// deliver performs one Send API call.
func (c *Client) deliver(ctx context.Context, recipientID, text string) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			c.metrics.RecordRateLimiterDrop("send")
			return fmt.Errorf("send rate limit wait: %w", err)
		}
	}

	endpoint := fmt.Sprintf("%s/me/messages?access_token=%s", c.baseURL, url.QueryEscape(c.pageToken))
	body := sendRequest{
		Recipient: recipient{ID: recipientID},
		Message:   message{Text: text},
	}

	start := time.Now()
	var resp sendResponse
	err := c.rest.PostJSON(ctx, endpoint, body, &resp)
	duration := time.Since(start).Seconds()

	if err == nil && resp.Error != nil {
		err = fmt.Errorf("send api error (code=%d, type=%s): %s", resp.Error.Code, resp.Error.Type, resp.Error.Message)
	}

	if err != nil {
		c.metrics.RecordSend("error")
		c.metrics.RecordUpstream("messenger", "error", duration)
		return err
	}

	c.metrics.RecordSend("success")
	c.metrics.RecordUpstream("messenger", "success", duration)
	return nil
}
