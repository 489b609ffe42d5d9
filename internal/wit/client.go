// Package wit drives conversations through the Wit.ai converse API. Each
// user message is resolved into a bounded loop of engine steps (merge,
// action, message, stop) executed against an Actions implementation.
package wit

import (
	"context"
	"fmt"
	"net/url"
	"time"

	domerrors "github.com/oorion/avery-messenger-bot/internal/errors"
	"github.com/oorion/avery-messenger-bot/internal/logger"
	"github.com/oorion/avery-messenger-bot/internal/metrics"
	"github.com/oorion/avery-messenger-bot/internal/rest"
	"github.com/oorion/avery-messenger-bot/internal/session"
)

// apiVersion pins the converse API behavior.
const apiVersion = "20160516"

// Step types returned by the converse endpoint.
const (
	StepMessage = "msg"
	StepMerge   = "merge"
	StepAction  = "action"
	StepStop    = "stop"
	StepError   = "error"
)

// Entity is one extracted entity instance.
type Entity struct {
	Value      any     `json:"value"`
	Confidence float64 `json:"confidence"`
}

// Entities maps entity names to their extracted instances.
type Entities map[string][]Entity

// FirstValue returns the string value of the first instance of the named
// entity, or "" when the entity is absent or not a string.
func (e Entities) FirstValue(name string) string {
	instances, ok := e[name]
	if !ok || len(instances) == 0 {
		return ""
	}
	switch v := instances[0].Value.(type) {
	case string:
		return v
	case map[string]any:
		// Ranged entities nest the value one level deeper.
		if s, ok := v["value"].(string); ok {
			return s
		}
	}
	return ""
}

// Actions is the contract the converse loop executes against. Merge and Run
// return the context for the next step; returning an error aborts the loop.
type Actions interface {
	// Say delivers a bot message to the user.
	Say(ctx context.Context, sessionID string, sessCtx *session.Context, message string) error

	// Merge folds extracted entities into the conversation context.
	Merge(ctx context.Context, sessionID string, sessCtx *session.Context, entities Entities, message string) (*session.Context, error)

	// Run executes a named custom action.
	Run(ctx context.Context, action, sessionID string, sessCtx *session.Context, entities Entities) (*session.Context, error)

	// Error reports a conversation-level failure.
	Error(ctx context.Context, sessionID string, sessCtx *session.Context, convErr error)
}

// ConverseResponse is one engine step.
type ConverseResponse struct {
	Type       string   `json:"type"`
	Message    string   `json:"msg"`
	Action     string   `json:"action"`
	Entities   Entities `json:"entities"`
	Confidence float64  `json:"confidence"`
}

// Client calls the converse API.
type Client struct {
	rest     *rest.Client
	baseURL  string
	maxSteps int
	metrics  *metrics.Metrics
	logger   *logger.Logger
}

// NewClient creates a converse API client.
func NewClient(baseURL, token string, timeout time.Duration, maxRetries, maxSteps int, m *metrics.Metrics, log *logger.Logger) *Client {
	return &Client{
		rest:     rest.NewClient(timeout, maxRetries).WithBearerToken(token),
		baseURL:  baseURL,
		maxSteps: maxSteps,
		metrics:  m,
		logger:   log.WithModule("wit"),
	}
}

// Converse requests the next engine step. message carries the user's text on
// the first step of a turn and must be empty on follow-up steps.
func (c *Client) Converse(ctx context.Context, sessionID, message string, sessCtx *session.Context) (*ConverseResponse, error) {
	endpoint := fmt.Sprintf("%s/converse?v=%s&session_id=%s", c.baseURL, apiVersion, url.QueryEscape(sessionID))
	if message != "" {
		endpoint += "&q=" + url.QueryEscape(message)
	}

	if sessCtx == nil {
		sessCtx = &session.Context{}
	}

	start := time.Now()
	var resp ConverseResponse
	err := c.rest.PostJSON(ctx, endpoint, sessCtx, &resp)
	duration := time.Since(start).Seconds()

	if err != nil {
		c.metrics.RecordUpstream("wit", "error", duration)
		return nil, fmt.Errorf("wit converse: %w", err)
	}
	c.metrics.RecordUpstream("wit", "success", duration)
	return &resp, nil
}

// RunActions resolves one user message into a completed conversation turn:
// it loops converse steps through the Actions implementation until the
// engine says stop or the step budget runs out, and returns the final
// conversation context.
func (c *Client) RunActions(ctx context.Context, sessionID, message string, sessCtx *session.Context, actions Actions) (*session.Context, error) {
	if sessCtx == nil {
		sessCtx = &session.Context{}
	}

	for step := 0; step < c.maxSteps; step++ {
		resp, err := c.Converse(ctx, sessionID, message, sessCtx)
		if err != nil {
			actions.Error(ctx, sessionID, sessCtx, err)
			return sessCtx, err
		}
		// Only the first step carries the user's text.
		message = ""

		c.metrics.RecordConverseStep(resp.Type)
		c.logger.WithField("session_id", sessionID).
			Debugf("Converse step %d: type=%s action=%s", step, resp.Type, resp.Action)

		switch resp.Type {
		case StepStop:
			return sessCtx, nil

		case StepMessage:
			if err := actions.Say(ctx, sessionID, sessCtx, resp.Message); err != nil {
				actions.Error(ctx, sessionID, sessCtx, err)
				return sessCtx, err
			}

		case StepMerge:
			next, err := actions.Merge(ctx, sessionID, sessCtx, resp.Entities, resp.Message)
			if err != nil {
				actions.Error(ctx, sessionID, sessCtx, err)
				return sessCtx, err
			}
			sessCtx = next

		case StepAction:
			next, err := actions.Run(ctx, resp.Action, sessionID, sessCtx, resp.Entities)
			if err != nil {
				actions.Error(ctx, sessionID, sessCtx, err)
				return sessCtx, err
			}
			sessCtx = next

		case StepError:
			err := fmt.Errorf("converse engine reported an error for session %s", sessionID)
			actions.Error(ctx, sessionID, sessCtx, err)
			return sessCtx, err

		default:
			err := fmt.Errorf("unknown converse step type %q", resp.Type)
			actions.Error(ctx, sessionID, sessCtx, err)
			return sessCtx, err
		}
	}

	err := fmt.Errorf("conversation exceeded %d steps: %w", c.maxSteps, domerrors.ErrTimeout)
	actions.Error(ctx, sessionID, sessCtx, err)
	return sessCtx, err
}
