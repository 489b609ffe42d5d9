// Package config provides centralized timeout constants for the application.
//
// These values are tuned around:
//   - Messenger Platform constraints (webhook acknowledgment, Send API text limit)
//   - Wit.ai converse loop latency (one HTTP round trip per action step)
//   - Brewery / Untappd / forecast.io API response times
package config

import "time"

// Turn processing timeouts
const (
	// TurnProcessing is the timeout for one full conversation turn: the
	// converse loop plus every action it invokes, including the getStyle
	// checkin fan-out. The Messenger webhook is acknowledged long before
	// this; the turn runs detached from the HTTP request.
	TurnProcessing = 60 * time.Second

	// APIRequest is the timeout for a single upstream REST call
	// (brewery catalog, Untappd search, forecast.io, Send API).
	APIRequest = 10 * time.Second

	// APIRetryInitial is the initial delay before retrying a failed upstream
	// call. Uses exponential backoff: 1s -> 2s -> 4s
	APIRetryInitial = 1 * time.Second
)

// HTTP server timeouts
const (
	// WebhookHTTPRead is the HTTP server read timeout for webhook requests.
	// Should be short since the platform sends small JSON payloads.
	WebhookHTTPRead = 10 * time.Second

	// WebhookHTTPWrite is the HTTP server write timeout. The webhook responds
	// immediately, so this only needs to cover response serialization.
	WebhookHTTPWrite = 15 * time.Second

	// WebhookHTTPIdle is the HTTP server idle timeout for keep-alive connections.
	WebhookHTTPIdle = 120 * time.Second
)

// Background job intervals
const (
	// SessionEvictionInterval is how often expired sessions are purged.
	SessionEvictionInterval = 10 * time.Minute

	// MetricsUpdateInterval is how often the session-count gauge is refreshed.
	MetricsUpdateInterval = 1 * time.Minute
)

// Messenger API constraints
const (
	// MessengerMaxTextLength is the Send API text limit. Messages at or over
	// this length are split into two sequential deliveries.
	MessengerMaxTextLength = 320
)
