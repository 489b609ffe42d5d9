package actions

import (
	"context"
	"fmt"
	"strings"

	"github.com/oorion/avery-messenger-bot/internal/brewery"
	domerrors "github.com/oorion/avery-messenger-bot/internal/errors"
	"github.com/oorion/avery-messenger-bot/internal/session"
	"github.com/oorion/avery-messenger-bot/internal/wit"
)

// getWeather fetches the forecast at the taproom.
func (h *Handler) getWeather(ctx context.Context, _ string, sessCtx *session.Context, _ wit.Entities) (*session.Context, error) {
	forecast, err := h.weather.Forecast(ctx)
	if err != nil {
		return nil, err
	}

	next := sessCtx.Clone()
	next.Forecast = forecast
	return next, nil
}

// getEvents lists upcoming taproom events.
func (h *Handler) getEvents(ctx context.Context, _ string, sessCtx *session.Context, _ wit.Entities) (*session.Context, error) {
	events, err := h.brewery.Events(ctx)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("events: %w", domerrors.ErrNotFound)
	}

	lines := make([]string, 0, len(events))
	for _, event := range events {
		lines = append(lines, formatEvent(event))
	}

	next := sessCtx.Clone()
	next.Events = strings.Join(lines, "; ")
	return next, nil
}

// beerFinder lists retail locations, narrowed to the user's location when
// one was extracted.
func (h *Handler) beerFinder(ctx context.Context, _ string, sessCtx *session.Context, _ wit.Entities) (*session.Context, error) {
	locations, err := h.brewery.Locations(ctx)
	if err != nil {
		return nil, err
	}

	if sessCtx.Location != "" {
		locations = filterLocations(locations, sessCtx.Location)
	}
	if len(locations) == 0 {
		return nil, fmt.Errorf("locations: %w", domerrors.ErrNotFound)
	}

	lines := make([]string, 0, len(locations))
	for _, loc := range locations {
		lines = append(lines, fmt.Sprintf("%s (%s, %s)", loc.Name, loc.City, loc.State))
	}

	next := sessCtx.Clone()
	next.Locations = strings.Join(lines, ", ")
	return next, nil
}

func formatEvent(event brewery.Event) string {
	line := event.Name
	if event.StartDate != "" {
		line += " on " + event.StartDate
	}
	if event.StartTime != "" {
		line += " at " + event.StartTime
	}
	return line
}

// filterLocations keeps locations whose city or state matches the query,
// case-insensitively.
func filterLocations(locations []brewery.Location, query string) []brewery.Location {
	query = strings.ToLower(query)
	var matched []brewery.Location
	for _, loc := range locations {
		if strings.Contains(strings.ToLower(loc.City), query) ||
			strings.EqualFold(loc.State, query) {
			matched = append(matched, loc)
		}
	}
	return matched
}
