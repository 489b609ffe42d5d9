package actions

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/oorion/avery-messenger-bot/internal/brewery"
	domerrors "github.com/oorion/avery-messenger-bot/internal/errors"
	"github.com/oorion/avery-messenger-bot/internal/logger"
	"github.com/oorion/avery-messenger-bot/internal/messenger"
	"github.com/oorion/avery-messenger-bot/internal/session"
	"github.com/oorion/avery-messenger-bot/internal/storage"
	"github.com/oorion/avery-messenger-bot/internal/untappd"
	"github.com/oorion/avery-messenger-bot/internal/weather"
	"github.com/oorion/avery-messenger-bot/internal/wit"
)

// testBackends fakes every upstream the handler talks to.
type testBackends struct {
	brewery   http.Handler
	untappd   http.Handler
	weather   http.Handler
	messenger http.Handler
	withUT    bool
}

func newTestHandler(t *testing.T, backends testBackends) (*Handler, *session.Store) {
	t.Helper()

	log := logger.New("error")
	timeout := 5 * time.Second

	serve := func(h http.Handler) string {
		if h == nil {
			h = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Errorf("unexpected upstream call %s %s", r.Method, r.URL)
			})
		}
		server := httptest.NewServer(h)
		t.Cleanup(server.Close)
		return server.URL
	}

	db, err := storage.New(filepath.Join(t.TempDir(), "sessions.db"), time.Hour)
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	sessions := session.NewStore(db, nil, log)

	utID, utSecret := "", ""
	if backends.withUT {
		utID, utSecret = "id", "secret"
	}

	handler := NewHandler(HandlerConfig{
		Sessions:  sessions,
		Messenger: messenger.NewClient(messenger.ClientConfig{BaseURL: serve(backends.messenger), PageToken: "tok", Timeout: timeout, Logger: log}),
		Brewery:   brewery.NewClient(serve(backends.brewery), timeout, 0, nil, log),
		Untappd:   untappd.NewClient(serve(backends.untappd), utID, utSecret, timeout, 0, nil, log),
		Weather:   weather.NewClient(serve(backends.weather), "tok", timeout, 0, nil, log),
		Metrics:   nil,
		Logger:    log,
	})
	return handler, sessions
}

func breweryFixture(t *testing.T) http.Handler {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/beer-filters", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"beer_filters": {"style": [{"name": "Sour Ale"}, {"name": "IPA"}]}}`))
	})
	mux.HandleFunc("/beers", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"beers": [
			{"id": "raspberry-sour", "name": "Raspberry Sour", "style": "Sour Ale", "abv": "6.5"},
			{"id": "liliko-i", "name": "Liliko'i Kepolo", "style": "Sour Ale", "abv": "5.4"}
		]}`))
	})
	mux.HandleFunc("/beers/raspberry-sour", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"beer": {"id": "raspberry-sour", "name": "Raspberry Sour", "style": "Sour Ale", "abv": "6.5",
			"related_beers": [{"id": "liliko-i", "name": "Liliko'i Kepolo"}]}}`))
	})
	mux.HandleFunc("/taproom/on-tap", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"beer_list": {"beers": [
			{"id": "white-rascal", "name": "White Rascal"},
			{"id": "avery-ipa", "name": "Avery IPA"},
			{"id": "ellies", "name": "Ellie's Brown Ale"},
			{"id": "ipa", "name": "IPA"}
		]}}`))
	})
	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"events": [
			{"name": "Firkin Friday", "start_date": "2016-04-15", "start_time": "16:00"},
			{"name": "Tour", "start_date": "2016-04-16"}
		]}`))
	})
	mux.HandleFunc("/locations", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"locations": [
			{"name": "Taproom", "city": "Boulder", "state": "CO"},
			{"name": "Bottle Shop", "city": "Denver", "state": "CO"},
			{"name": "Depot", "city": "Kansas City", "state": "MO"}
		]}`))
	})
	return mux
}

// untappdFixture ranks beers by a fixed check-in table.
func untappdFixture(counts map[string]int) http.Handler {
	return untappdFlakyFixture(counts, nil)
}

// untappdFlakyFixture additionally fails lookups for the named beers.
func untappdFlakyFixture(counts map[string]int, fail map[string]bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("q")
		if fail[name] {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		count := counts[name]
		json.NewEncoder(w).Encode(map[string]any{
			"response": map[string]any{
				"beers": map[string]any{
					"items": []map[string]any{{"checkin_count": count}},
				},
			},
		})
	})
}

func TestMergeFoldsEntities(t *testing.T) {
	handler, _ := newTestHandler(t, testBackends{})

	entities := wit.Entities{
		"beer_style": {{Value: "Sour Ale"}},
		"beer_name":  {{Value: "Raspberry Sour"}},
	}
	next, err := handler.Merge(context.Background(), "sess-1", &session.Context{Location: "Boulder"}, entities, "")
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if next.BeerStyle != "Sour Ale" || next.BeerName != "Raspberry Sour" {
		t.Errorf("entities not folded: %+v", next)
	}
	// Existing fields survive a merge that does not mention them.
	if next.Location != "Boulder" {
		t.Errorf("merge cleared Location: %+v", next)
	}
}

func TestMergeBeerNameEntity(t *testing.T) {
	handler, _ := newTestHandler(t, testBackends{})

	next, err := handler.Merge(context.Background(), "sess-1", &session.Context{},
		wit.Entities{"beer_name": {{Value: "Raspberry Sour"}}}, "")
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if next.BeerName != "Raspberry Sour" {
		t.Errorf("BeerName = %q, want Raspberry Sour", next.BeerName)
	}
}

func TestGetStyleCatalogOrder(t *testing.T) {
	handler, _ := newTestHandler(t, testBackends{brewery: breweryFixture(t)})

	next, err := handler.Run(context.Background(), "getStyle", "sess-1",
		&session.Context{BeerStyle: "Sour Ale"}, nil)
	if err != nil {
		t.Fatalf("getStyle: %v", err)
	}
	if next.Beers != "Raspberry Sour, Liliko'i Kepolo" {
		t.Errorf("Beers = %q", next.Beers)
	}
	if next.BeerNamesAndIDs["Raspberry Sour"] != "raspberry-sour" {
		t.Errorf("name-to-id table = %v", next.BeerNamesAndIDs)
	}
}

func TestGetStyleRankedByUntappd(t *testing.T) {
	handler, _ := newTestHandler(t, testBackends{
		brewery: breweryFixture(t),
		untappd: untappdFixture(map[string]int{"Raspberry Sour": 10, "Liliko'i Kepolo": 900}),
		withUT:  true,
	})

	next, err := handler.Run(context.Background(), "getStyle", "sess-1",
		&session.Context{BeerStyle: "Sour Ale"}, nil)
	if err != nil {
		t.Fatalf("getStyle: %v", err)
	}
	want := "Liliko'i Kepolo, Raspberry Sour, in order of popularity according to Untappd"
	if next.Beers != want {
		t.Errorf("Beers = %q, want %q", next.Beers, want)
	}
}

func TestGetStyleRanksPastFailedLookup(t *testing.T) {
	handler, _ := newTestHandler(t, testBackends{
		brewery: breweryFixture(t),
		untappd: untappdFlakyFixture(
			map[string]int{"Liliko'i Kepolo": 900},
			map[string]bool{"Raspberry Sour": true},
		),
		withUT: true,
	})

	next, err := handler.Run(context.Background(), "getStyle", "sess-1",
		&session.Context{BeerStyle: "Sour Ale"}, nil)
	if err != nil {
		t.Fatalf("getStyle: %v", err)
	}
	// A single failed lookup drops that beer to the bottom, not the ranking.
	want := "Liliko'i Kepolo, Raspberry Sour, in order of popularity according to Untappd"
	if next.Beers != want {
		t.Errorf("Beers = %q, want %q", next.Beers, want)
	}
}

func TestGetStyleAllLookupsFailedCatalogOrder(t *testing.T) {
	handler, _ := newTestHandler(t, testBackends{
		brewery: breweryFixture(t),
		untappd: untappdFlakyFixture(nil,
			map[string]bool{"Raspberry Sour": true, "Liliko'i Kepolo": true}),
		withUT: true,
	})

	next, err := handler.Run(context.Background(), "getStyle", "sess-1",
		&session.Context{BeerStyle: "Sour Ale"}, nil)
	if err != nil {
		t.Fatalf("getStyle: %v", err)
	}
	if next.Beers != "Raspberry Sour, Liliko'i Kepolo" {
		t.Errorf("Beers = %q, want catalog order without ranking suffix", next.Beers)
	}
}

func TestGetStyleMissingContext(t *testing.T) {
	handler, _ := newTestHandler(t, testBackends{})
	_, err := handler.Run(context.Background(), "getStyle", "sess-1", &session.Context{}, nil)
	if !errors.Is(err, domerrors.ErrMissingContext) {
		t.Errorf("err = %v, want ErrMissingContext", err)
	}
}

func TestGetStyleUnknownStyle(t *testing.T) {
	handler, _ := newTestHandler(t, testBackends{brewery: breweryFixture(t)})
	_, err := handler.Run(context.Background(), "getStyle", "sess-1",
		&session.Context{BeerStyle: "Lambic"}, nil)
	if !errors.Is(err, domerrors.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestGetBeerInfo(t *testing.T) {
	handler, _ := newTestHandler(t, testBackends{brewery: breweryFixture(t)})

	sessCtx := &session.Context{
		BeerName:        "Raspberry Sour",
		BeerNamesAndIDs: map[string]string{"Raspberry Sour": "raspberry-sour"},
	}
	next, err := handler.Run(context.Background(), "getBeerInfo", "sess-1", sessCtx, nil)
	if err != nil {
		t.Fatalf("getBeerInfo: %v", err)
	}
	if next.Description != "Raspberry Sour is a Sour Ale with 6.5% ABV" {
		t.Errorf("Description = %q", next.Description)
	}
}

func TestGetBeerInfoMissingContext(t *testing.T) {
	handler, _ := newTestHandler(t, testBackends{})
	_, err := handler.Run(context.Background(), "getBeerInfo", "sess-1",
		&session.Context{BeerName: "Raspberry Sour"}, nil)
	if !errors.Is(err, domerrors.ErrMissingContext) {
		t.Errorf("err = %v, want ErrMissingContext", err)
	}
}

func TestGetRelated(t *testing.T) {
	handler, _ := newTestHandler(t, testBackends{brewery: breweryFixture(t)})

	sessCtx := &session.Context{
		BeerName:        "Raspberry Sour",
		BeerNamesAndIDs: map[string]string{"Raspberry Sour": "raspberry-sour"},
	}
	next, err := handler.Run(context.Background(), "getRelated", "sess-1", sessCtx, nil)
	if err != nil {
		t.Fatalf("getRelated: %v", err)
	}
	if next.RelatedBeers != "Liliko'i Kepolo" {
		t.Errorf("RelatedBeers = %q", next.RelatedBeers)
	}
}

func TestGetOnTap(t *testing.T) {
	handler, _ := newTestHandler(t, testBackends{brewery: breweryFixture(t)})

	next, err := handler.Run(context.Background(), "getOnTap", "sess-1", &session.Context{}, nil)
	if err != nil {
		t.Fatalf("getOnTap: %v", err)
	}
	if next.Beers != "White Rascal, Avery IPA, Ellie's Brown Ale, IPA" {
		t.Errorf("Beers = %q", next.Beers)
	}
}

func TestGetPopularTopThree(t *testing.T) {
	handler, _ := newTestHandler(t, testBackends{
		brewery: breweryFixture(t),
		untappd: untappdFixture(map[string]int{
			"White Rascal": 48211, "Avery IPA": 30100, "Ellie's Brown Ale": 22000, "IPA": 9000,
		}),
		withUT: true,
	})

	next, err := handler.Run(context.Background(), "getPopular", "sess-1", &session.Context{}, nil)
	if err != nil {
		t.Fatalf("getPopular: %v", err)
	}
	if next.PopularBeers != "White Rascal, Avery IPA, Ellie's Brown Ale" {
		t.Errorf("PopularBeers = %q", next.PopularBeers)
	}
}

func TestGetPopularRanksPastFailedLookup(t *testing.T) {
	handler, _ := newTestHandler(t, testBackends{
		brewery: breweryFixture(t),
		untappd: untappdFlakyFixture(
			map[string]int{"Avery IPA": 30100, "Ellie's Brown Ale": 22000, "IPA": 9000},
			map[string]bool{"White Rascal": true},
		),
		withUT: true,
	})

	next, err := handler.Run(context.Background(), "getPopular", "sess-1", &session.Context{}, nil)
	if err != nil {
		t.Fatalf("getPopular: %v", err)
	}
	if next.PopularBeers != "Avery IPA, Ellie's Brown Ale, IPA" {
		t.Errorf("PopularBeers = %q", next.PopularBeers)
	}
}

func TestGetPopularUnconfigured(t *testing.T) {
	handler, _ := newTestHandler(t, testBackends{brewery: breweryFixture(t)})
	_, err := handler.Run(context.Background(), "getPopular", "sess-1", &session.Context{}, nil)
	if !errors.Is(err, domerrors.ErrNotConfigured) {
		t.Errorf("err = %v, want ErrNotConfigured", err)
	}
}

func TestGetWeather(t *testing.T) {
	handler, _ := newTestHandler(t, testBackends{
		weather: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"minutely": {"summary": "Clear for the hour."}}`))
		}),
	})

	next, err := handler.Run(context.Background(), "getWeather", "sess-1", &session.Context{}, nil)
	if err != nil {
		t.Fatalf("getWeather: %v", err)
	}
	if next.Forecast != "Clear for the hour." {
		t.Errorf("Forecast = %q", next.Forecast)
	}
}

func TestGetEvents(t *testing.T) {
	handler, _ := newTestHandler(t, testBackends{brewery: breweryFixture(t)})

	next, err := handler.Run(context.Background(), "getEvents", "sess-1", &session.Context{}, nil)
	if err != nil {
		t.Fatalf("getEvents: %v", err)
	}
	want := "Firkin Friday on 2016-04-15 at 16:00; Tour on 2016-04-16"
	if next.Events != want {
		t.Errorf("Events = %q, want %q", next.Events, want)
	}
}

func TestBeerFinderAllLocations(t *testing.T) {
	handler, _ := newTestHandler(t, testBackends{brewery: breweryFixture(t)})

	next, err := handler.Run(context.Background(), "beerFinder", "sess-1", &session.Context{}, nil)
	if err != nil {
		t.Fatalf("beerFinder: %v", err)
	}
	if next.Locations != "Taproom (Boulder, CO), Bottle Shop (Denver, CO), Depot (Kansas City, MO)" {
		t.Errorf("Locations = %q", next.Locations)
	}
}

func TestBeerFinderFiltersByUserLocation(t *testing.T) {
	handler, _ := newTestHandler(t, testBackends{brewery: breweryFixture(t)})

	next, err := handler.Run(context.Background(), "beerFinder", "sess-1",
		&session.Context{Location: "Denver"}, nil)
	if err != nil {
		t.Fatalf("beerFinder: %v", err)
	}
	if next.Locations != "Bottle Shop (Denver, CO)" {
		t.Errorf("Locations = %q", next.Locations)
	}
}

func TestRunUnknownAction(t *testing.T) {
	handler, _ := newTestHandler(t, testBackends{})
	_, err := handler.Run(context.Background(), "launchRockets", "sess-1", &session.Context{}, nil)
	if !errors.Is(err, domerrors.ErrActionUnknown) {
		t.Errorf("err = %v, want ErrActionUnknown", err)
	}
}

func TestRunPreservesContextOnFailure(t *testing.T) {
	handler, _ := newTestHandler(t, testBackends{
		brewery: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "catalog down", http.StatusInternalServerError)
		}),
	})
	sessCtx := &session.Context{BeerStyle: "Sour Ale", Beers: "old listing"}
	next, err := handler.Run(context.Background(), "getOnTap", "sess-1", sessCtx, nil)
	if err == nil {
		t.Fatal("expected upstream error")
	}
	if next != sessCtx {
		t.Error("failed action should return the untouched input context")
	}
}

func TestSayDeliversToSessionUser(t *testing.T) {
	var delivered struct {
		Recipient struct {
			ID string `json:"id"`
		} `json:"recipient"`
		Message struct {
			Text string `json:"text"`
		} `json:"message"`
	}
	handler, sessions := newTestHandler(t, testBackends{
		messenger: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := json.NewDecoder(r.Body).Decode(&delivered); err != nil {
				t.Fatalf("decode send request: %v", err)
			}
			w.Write([]byte(`{"message_id": "mid.1"}`))
		}),
	})

	sessionID, err := sessions.FindOrCreate(context.Background(), "fb-user-9")
	if err != nil {
		t.Fatalf("FindOrCreate: %v", err)
	}
	if err := handler.Say(context.Background(), sessionID, nil, "Cheers!"); err != nil {
		t.Fatalf("Say: %v", err)
	}
	if delivered.Recipient.ID != "fb-user-9" {
		t.Errorf("recipient = %q, want fb-user-9", delivered.Recipient.ID)
	}
	if delivered.Message.Text != "Cheers!" {
		t.Errorf("text = %q, want Cheers!", delivered.Message.Text)
	}
}

func TestSayUnknownSession(t *testing.T) {
	handler, _ := newTestHandler(t, testBackends{})
	if err := handler.Say(context.Background(), "no-such-session", nil, "hi"); err == nil {
		t.Error("expected error for unknown session")
	}
}

func TestActionsRegistryNames(t *testing.T) {
	handler, _ := newTestHandler(t, testBackends{})
	names := handler.Actions()
	want := map[string]bool{
		"getStyle": true, "getBeerInfo": true, "getRelated": true, "getPopular": true,
		"getOnTap": true, "getWeather": true, "getEvents": true, "beerFinder": true,
	}
	if len(names) != len(want) {
		t.Fatalf("got %d actions, want %d: %v", len(names), len(want), names)
	}
	for _, name := range names {
		if !want[name] {
			t.Errorf("unexpected action %q", name)
		}
	}
}
