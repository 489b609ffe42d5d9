package app

import (
	"context"
	"time"

	"github.com/oorion/avery-messenger-bot/internal/config"
)

// evictExpiredSessions periodically removes sessions idle past their TTL,
// exits on context cancellation.
func (a *Application) evictExpiredSessions(ctx context.Context) {
	a.logger.Debug("Session eviction job started")
	defer a.logger.Debug("Session eviction job stopped")

	ticker := time.NewTicker(config.SessionEvictionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.runSessionEviction(ctx)
		}
	}
}

func (a *Application) runSessionEviction(ctx context.Context) {
	start := time.Now()

	evicted, err := a.sessions.EvictExpired(ctx)
	if err != nil {
		a.logger.WithError(err).Error("Session eviction failed")
		return
	}
	if evicted > 0 {
		remaining, _ := a.sessions.Count(ctx)
		a.logger.WithField("evicted", evicted).
			WithField("remaining", remaining).
			WithField("duration_ms", time.Since(start).Milliseconds()).
			Info("Expired sessions evicted")
	}
}

// updateSessionMetrics periodically records the active session count.
func (a *Application) updateSessionMetrics(ctx context.Context) {
	a.logger.Debug("Session metrics job started")
	defer a.logger.Debug("Session metrics job stopped")

	ticker := time.NewTicker(config.MetricsUpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			count, err := a.sessions.Count(ctx)
			if err != nil {
				a.logger.WithError(err).Warn("Failed to count sessions for metrics")
				continue
			}
			a.metrics.SetActiveSessions(count)
		}
	}
}
