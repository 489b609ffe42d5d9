// Package actions implements the bot's conversation behavior: the built-in
// say, merge, and error steps the converse engine drives, plus the registry
// of custom actions that pull in beer, weather, and taproom data.
package actions

import (
	"context"
	"fmt"
	"time"

	"github.com/oorion/avery-messenger-bot/internal/brewery"
	domerrors "github.com/oorion/avery-messenger-bot/internal/errors"
	"github.com/oorion/avery-messenger-bot/internal/logger"
	"github.com/oorion/avery-messenger-bot/internal/messenger"
	"github.com/oorion/avery-messenger-bot/internal/metrics"
	"github.com/oorion/avery-messenger-bot/internal/session"
	"github.com/oorion/avery-messenger-bot/internal/untappd"
	"github.com/oorion/avery-messenger-bot/internal/weather"
	"github.com/oorion/avery-messenger-bot/internal/wit"
)

// Entity names the converse engine's trained stories emit.
const (
	entityBeerStyle = "beer_style"
	entityBeerName  = "beer_name"
	entityLocation  = "location"
)

// ActionFunc is one custom action. It receives the current conversation
// context and returns the context for the next engine step.
type ActionFunc func(ctx context.Context, sessionID string, sessCtx *session.Context, entities wit.Entities) (*session.Context, error)

// Handler implements the converse engine's action contract.
type Handler struct {
	sessions  *session.Store
	messenger *messenger.Client
	brewery   *brewery.Client
	untappd   *untappd.Client
	weather   *weather.Client
	metrics   *metrics.Metrics
	logger    *logger.Logger
	registry  map[string]ActionFunc
}

// HandlerConfig holds the dependencies for a new Handler.
type HandlerConfig struct {
	Sessions  *session.Store
	Messenger *messenger.Client
	Brewery   *brewery.Client
	Untappd   *untappd.Client
	Weather   *weather.Client
	Metrics   *metrics.Metrics
	Logger    *logger.Logger
}

// NewHandler creates a Handler with all custom actions registered.
func NewHandler(cfg HandlerConfig) *Handler {
	h := &Handler{
		sessions:  cfg.Sessions,
		messenger: cfg.Messenger,
		brewery:   cfg.Brewery,
		untappd:   cfg.Untappd,
		weather:   cfg.Weather,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger.WithModule("actions"),
	}
	h.registry = map[string]ActionFunc{
		"getStyle":    h.getStyle,
		"getBeerInfo": h.getBeerInfo,
		"getRelated":  h.getRelated,
		"getPopular":  h.getPopular,
		"getOnTap":    h.getOnTap,
		"getWeather":  h.getWeather,
		"getEvents":   h.getEvents,
		"beerFinder":  h.beerFinder,
	}
	return h
}

// Actions returns the registered custom action names.
func (h *Handler) Actions() []string {
	names := make([]string, 0, len(h.registry))
	for name := range h.registry {
		names = append(names, name)
	}
	return names
}

// Say resolves the session's Messenger user and delivers the message.
func (h *Handler) Say(ctx context.Context, sessionID string, _ *session.Context, message string) error {
	recipientID, err := h.sessions.RecipientID(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("resolve recipient for session %s: %w", sessionID, err)
	}
	return h.messenger.SendText(ctx, recipientID, message)
}

// Merge folds extracted entities into the conversation context. Absent
// entities never clear fields populated on earlier turns.
func (h *Handler) Merge(_ context.Context, _ string, sessCtx *session.Context, entities wit.Entities, _ string) (*session.Context, error) {
	next := sessCtx.Clone()
	if style := entities.FirstValue(entityBeerStyle); style != "" {
		next.BeerStyle = style
	}
	if beer := entities.FirstValue(entityBeerName); beer != "" {
		next.BeerName = beer
	}
	if loc := entities.FirstValue(entityLocation); loc != "" {
		next.Location = loc
	}
	return next, nil
}

// Run dispatches a named custom action.
func (h *Handler) Run(ctx context.Context, action, sessionID string, sessCtx *session.Context, entities wit.Entities) (*session.Context, error) {
	fn, ok := h.registry[action]
	if !ok {
		return sessCtx, fmt.Errorf("action %q: %w", action, domerrors.ErrActionUnknown)
	}

	start := time.Now()
	next, err := fn(ctx, sessionID, sessCtx, entities)
	duration := time.Since(start).Seconds()

	status := "success"
	if err != nil {
		status = "error"
	}
	h.metrics.RecordAction(action, status, duration)

	if err != nil {
		return sessCtx, fmt.Errorf("action %s: %w", action, err)
	}
	return next, nil
}

// Error logs a conversation-level failure.
func (h *Handler) Error(_ context.Context, sessionID string, _ *session.Context, convErr error) {
	h.logger.WithError(convErr).WithField("session_id", sessionID).
		Error("Conversation step failed")
}
