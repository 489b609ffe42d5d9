// Package brewery wraps the taproom REST API: beer catalog, style filters,
// tap list, events, and locations.
package brewery

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	domerrors "github.com/oorion/avery-messenger-bot/internal/errors"
	"github.com/oorion/avery-messenger-bot/internal/logger"
	"github.com/oorion/avery-messenger-bot/internal/metrics"
	"github.com/oorion/avery-messenger-bot/internal/rest"
)

// Client talks to the brewery API.
type Client struct {
	rest    *rest.Client
	baseURL string
	metrics *metrics.Metrics
	logger  *logger.Logger
}

// NewClient creates a brewery API client.
func NewClient(baseURL string, timeout time.Duration, maxRetries int, m *metrics.Metrics, log *logger.Logger) *Client {
	return &Client{
		rest:    rest.NewClient(timeout, maxRetries),
		baseURL: baseURL,
		metrics: m,
		logger:  log.WithModule("brewery"),
	}
}

// Filter is one selectable value inside a filter group (style, series, ...).
type Filter struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// Beer is a catalog entry as returned by list endpoints.
type Beer struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Style string `json:"style"`
	ABV   string `json:"abv"`
}

// BeerDetail is the full record for a single beer.
type BeerDetail struct {
	Beer
	Description  string `json:"description"`
	Availability string `json:"availability"`
	RelatedBeers []Beer `json:"related_beers"`
}

// Event is a scheduled taproom event.
type Event struct {
	Name      string `json:"name"`
	StartDate string `json:"start_date"`
	StartTime string `json:"start_time"`
	Location  string `json:"location"`
}

// Location is a retail location that carries the brewery's beer.
type Location struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	City    string `json:"city"`
	State   string `json:"state"`
}

type filtersResponse struct {
	BeerFilters map[string][]Filter `json:"beer_filters"`
}

type beersResponse struct {
	Beers []Beer `json:"beers"`
}

type beerDetailResponse struct {
	Beer BeerDetail `json:"beer"`
}

type onTapResponse struct {
	BeerList struct {
		Beers []Beer `json:"beers"`
	} `json:"beer_list"`
}

type eventsResponse struct {
	Events []Event `json:"events"`
}

type locationsResponse struct {
	Locations []Location `json:"locations"`
}

// StyleTypes fetches the filter groups and inverts them into a lookup from
// filter value name to its group key, so a user-supplied style like
// "Sour Ale" resolves to the query parameter the catalog expects.
func (c *Client) StyleTypes(ctx context.Context) (map[string]string, error) {
	var resp filtersResponse
	if err := c.get(ctx, "/beer-filters", &resp); err != nil {
		return nil, err
	}

	styleTypes := make(map[string]string)
	for group, filters := range resp.BeerFilters {
		for _, f := range filters {
			styleTypes[f.Name] = group
		}
	}
	return styleTypes, nil
}

// BeersByStyle lists the beers matching a resolved filter, e.g.
// styleType "style" and style "Sour Ale".
func (c *Client) BeersByStyle(ctx context.Context, styleType, style string) ([]Beer, error) {
	path := fmt.Sprintf("/beers?%s=%s", url.QueryEscape(styleType), url.QueryEscape(style))
	var resp beersResponse
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Beers, nil
}

// BeerByID fetches the detail record for one beer.
func (c *Client) BeerByID(ctx context.Context, id string) (*BeerDetail, error) {
	if id == "" {
		return nil, fmt.Errorf("beer id: %w", domerrors.ErrNotFound)
	}
	var resp beerDetailResponse
	if err := c.get(ctx, "/beers/"+url.PathEscape(id), &resp); err != nil {
		return nil, err
	}
	return &resp.Beer, nil
}

// OnTap lists the beers currently pouring in the taproom.
func (c *Client) OnTap(ctx context.Context) ([]Beer, error) {
	var resp onTapResponse
	if err := c.get(ctx, "/taproom/on-tap", &resp); err != nil {
		return nil, err
	}
	return resp.BeerList.Beers, nil
}

// Events lists upcoming taproom events.
func (c *Client) Events(ctx context.Context) ([]Event, error) {
	var resp eventsResponse
	if err := c.get(ctx, "/events", &resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

// Locations lists retail locations.
func (c *Client) Locations(ctx context.Context) ([]Location, error) {
	var resp locationsResponse
	if err := c.get(ctx, "/locations", &resp); err != nil {
		return nil, err
	}
	return resp.Locations, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	start := time.Now()
	err := c.rest.GetJSON(ctx, c.baseURL+path, out)
	duration := time.Since(start).Seconds()

	status := "success"
	if err != nil {
		status = "error"
	}
	c.metrics.RecordUpstream("brewery", status, duration)
	if err != nil {
		return fmt.Errorf("brewery %s: %w", strings.SplitN(path, "?", 2)[0], err)
	}
	return nil
}
