package actions

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	domerrors "github.com/oorion/avery-messenger-bot/internal/errors"
	"github.com/oorion/avery-messenger-bot/internal/session"
	"github.com/oorion/avery-messenger-bot/internal/wit"
)

// checkinFanout caps concurrent Untappd lookups per action.
const checkinFanout = 4

// popularLimit is how many beers a popularity answer names.
const popularLimit = 3

// getStyle resolves the user's style to a catalog filter and lists the
// matching beers. With Untappd credentials present the list is ordered by
// check-in count, most popular first.
func (h *Handler) getStyle(ctx context.Context, _ string, sessCtx *session.Context, _ wit.Entities) (*session.Context, error) {
	if sessCtx.BeerStyle == "" {
		return nil, fmt.Errorf("beer style: %w", domerrors.ErrMissingContext)
	}

	styleTypes, err := h.brewery.StyleTypes(ctx)
	if err != nil {
		return nil, err
	}
	styleType, ok := styleTypes[sessCtx.BeerStyle]
	if !ok {
		return nil, fmt.Errorf("style %q: %w", sessCtx.BeerStyle, domerrors.ErrNotFound)
	}

	beers, err := h.brewery.BeersByStyle(ctx, styleType, sessCtx.BeerStyle)
	if err != nil {
		return nil, err
	}
	if len(beers) == 0 {
		return nil, fmt.Errorf("beers for style %q: %w", sessCtx.BeerStyle, domerrors.ErrNotFound)
	}

	names := make([]string, 0, len(beers))
	namesAndIDs := make(map[string]string, len(beers))
	for _, beer := range beers {
		names = append(names, beer.Name)
		namesAndIDs[beer.Name] = beer.ID
	}

	next := sessCtx.Clone()
	next.BeerNamesAndIDs = namesAndIDs

	if h.untappd.Configured() {
		if ranked, ok := h.rankByCheckins(ctx, names); ok {
			next.Beers = strings.Join(ranked, ", ") + ", in order of popularity according to Untappd"
			return next, nil
		}
		// Every lookup failed; fall back to catalog order.
	}

	next.Beers = strings.Join(names, ", ")
	return next, nil
}

// getBeerInfo answers with a one-line description of the beer the user
// picked out of an earlier style listing.
func (h *Handler) getBeerInfo(ctx context.Context, _ string, sessCtx *session.Context, _ wit.Entities) (*session.Context, error) {
	beerID, err := h.resolveBeerID(sessCtx)
	if err != nil {
		return nil, err
	}

	detail, err := h.brewery.BeerByID(ctx, beerID)
	if err != nil {
		return nil, err
	}

	next := sessCtx.Clone()
	next.Description = fmt.Sprintf("%s is a %s with %s%% ABV", detail.Name, detail.Style, detail.ABV)
	return next, nil
}

// getRelated lists the beers the catalog relates to the user's current beer.
func (h *Handler) getRelated(ctx context.Context, _ string, sessCtx *session.Context, _ wit.Entities) (*session.Context, error) {
	beerID, err := h.resolveBeerID(sessCtx)
	if err != nil {
		return nil, err
	}

	detail, err := h.brewery.BeerByID(ctx, beerID)
	if err != nil {
		return nil, err
	}
	if len(detail.RelatedBeers) == 0 {
		return nil, fmt.Errorf("related beers for %q: %w", detail.Name, domerrors.ErrNotFound)
	}

	names := make([]string, 0, len(detail.RelatedBeers))
	for _, beer := range detail.RelatedBeers {
		names = append(names, beer.Name)
	}

	next := sessCtx.Clone()
	next.RelatedBeers = strings.Join(names, ", ")
	return next, nil
}

// getPopular names the most checked-in beers currently on tap.
func (h *Handler) getPopular(ctx context.Context, _ string, sessCtx *session.Context, _ wit.Entities) (*session.Context, error) {
	if !h.untappd.Configured() {
		return nil, fmt.Errorf("popularity lookup: %w", domerrors.ErrNotConfigured)
	}

	beers, err := h.brewery.OnTap(ctx)
	if err != nil {
		return nil, err
	}
	if len(beers) == 0 {
		return nil, fmt.Errorf("tap list: %w", domerrors.ErrNotFound)
	}

	names := make([]string, 0, len(beers))
	for _, beer := range beers {
		names = append(names, beer.Name)
	}
	ranked, ok := h.rankByCheckins(ctx, names)
	if !ok {
		return nil, fmt.Errorf("checkin counts: %w", domerrors.ErrNotFound)
	}
	if len(ranked) > popularLimit {
		ranked = ranked[:popularLimit]
	}

	next := sessCtx.Clone()
	next.PopularBeers = strings.Join(ranked, ", ")
	return next, nil
}

// getOnTap lists what is pouring in the taproom right now.
func (h *Handler) getOnTap(ctx context.Context, _ string, sessCtx *session.Context, _ wit.Entities) (*session.Context, error) {
	beers, err := h.brewery.OnTap(ctx)
	if err != nil {
		return nil, err
	}
	if len(beers) == 0 {
		return nil, fmt.Errorf("tap list: %w", domerrors.ErrNotFound)
	}

	names := make([]string, 0, len(beers))
	for _, beer := range beers {
		names = append(names, beer.Name)
	}

	next := sessCtx.Clone()
	next.Beers = strings.Join(names, ", ")
	return next, nil
}

// resolveBeerID maps the beer name in context to its catalog id via the
// name-to-id table populated by getStyle.
func (h *Handler) resolveBeerID(sessCtx *session.Context) (string, error) {
	if sessCtx.BeerName == "" {
		return "", fmt.Errorf("beer name: %w", domerrors.ErrMissingContext)
	}
	if len(sessCtx.BeerNamesAndIDs) == 0 {
		return "", fmt.Errorf("beer id table: %w", domerrors.ErrMissingContext)
	}
	id, ok := sessCtx.BeerNamesAndIDs[sessCtx.BeerName]
	if !ok {
		return "", fmt.Errorf("beer %q: %w", sessCtx.BeerName, domerrors.ErrNotFound)
	}
	return id, nil
}

// rankByCheckins orders beer names by Untappd check-in count, descending.
// A failed individual lookup is logged and excluded; the beer keeps its
// catalog position among the unranked. The second return is false only when
// no lookup succeeded.
func (h *Handler) rankByCheckins(ctx context.Context, names []string) ([]string, bool) {
	counts := make(map[string]int, len(names))
	var mu sync.Mutex

	var group errgroup.Group
	group.SetLimit(checkinFanout)
	for _, name := range names {
		group.Go(func() error {
			count, err := h.untappd.CheckinCount(ctx, name)
			if err != nil {
				h.logger.WithError(err).WithField("beer", name).
					Warn("Checkin lookup failed, beer excluded from ranking")
				return nil
			}
			mu.Lock()
			counts[name] = count
			mu.Unlock()
			return nil
		})
	}
	_ = group.Wait()

	ranked := make([]string, len(names))
	copy(ranked, names)
	sort.SliceStable(ranked, func(i, j int) bool {
		return counts[ranked[i]] > counts[ranked[j]]
	})
	return ranked, len(counts) > 0
}
