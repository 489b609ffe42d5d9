// Package session provides the per-user conversation session store.
// Sessions map a Messenger user id to a stable session id and the
// conversation context carried between turns. Persistence is SQLite-backed
// with TTL eviction instead of an unbounded in-process map.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	domerrors "github.com/oorion/avery-messenger-bot/internal/errors"
	"github.com/oorion/avery-messenger-bot/internal/logger"
	"github.com/oorion/avery-messenger-bot/internal/metrics"
	"github.com/oorion/avery-messenger-bot/internal/storage"
)

// Store manages conversation sessions.
// It guarantees at most one session per platform user and serializes turns
// per session so concurrent webhook deliveries for the same user cannot race
// on context.
type Store struct {
	db      *storage.DB
	metrics *metrics.Metrics
	logger  *logger.Logger

	createMu sync.Mutex // serializes session creation

	turnMu sync.Mutex
	turns  map[string]*turnLock
}

// turnLock serializes action sequences for one session.
type turnLock struct {
	mu   sync.Mutex
	refs int
}

// NewStore creates a session store backed by db.
func NewStore(db *storage.DB, m *metrics.Metrics, log *logger.Logger) *Store {
	return &Store{
		db:      db,
		metrics: m,
		logger:  log.WithModule("session"),
		turns:   make(map[string]*turnLock),
	}
}

// FindOrCreate returns the session id for a platform user, creating a new
// session with empty context on first contact. Repeated calls for the same
// user always return the same id; concurrent first messages cannot create
// two sessions.
func (s *Store) FindOrCreate(ctx context.Context, fbUserID string) (string, error) {
	if fbUserID == "" {
		return "", fmt.Errorf("%w: empty user id", domerrors.ErrSessionNotFound)
	}

	rec, err := s.db.FindSessionByUserID(ctx, fbUserID)
	if err == nil {
		return rec.ID, nil
	}
	if !isNotFound(err) {
		return "", err
	}

	s.createMu.Lock()
	defer s.createMu.Unlock()

	// Re-check under the lock: another delivery may have just created it.
	rec, err = s.db.FindSessionByUserID(ctx, fbUserID)
	if err == nil {
		return rec.ID, nil
	}
	if !isNotFound(err) {
		return "", err
	}

	id := uuid.NewString()
	if err := s.db.InsertSession(ctx, id, fbUserID); err != nil {
		return "", err
	}

	s.metrics.RecordSessionCreated()
	s.logger.WithField("session_id", id).Debug("Session created")
	return id, nil
}

// Acquire locks the session for one conversation turn and returns the
// release function. Turns for the same session run strictly one at a time;
// turns for different sessions proceed independently.
func (s *Store) Acquire(sessionID string) func() {
	s.turnMu.Lock()
	lock, ok := s.turns[sessionID]
	if !ok {
		lock = &turnLock{}
		s.turns[sessionID] = lock
	}
	lock.refs++
	s.turnMu.Unlock()

	lock.mu.Lock()

	return func() {
		lock.mu.Unlock()

		s.turnMu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.turns, sessionID)
		}
		s.turnMu.Unlock()
	}
}

// Context loads the conversation context for a session.
func (s *Store) Context(ctx context.Context, sessionID string) (*Context, error) {
	rec, err := s.db.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	var conv Context
	if err := json.Unmarshal([]byte(rec.Context), &conv); err != nil {
		return nil, fmt.Errorf("failed to decode session context: %w", err)
	}
	return &conv, nil
}

// SetContext persists the conversation context for a session. This is called
// once per turn, after the NLU engine signals completion.
func (s *Store) SetContext(ctx context.Context, sessionID string, conv *Context) error {
	if conv == nil {
		conv = &Context{}
	}
	raw, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("failed to encode session context: %w", err)
	}
	return s.db.UpdateSessionContext(ctx, sessionID, string(raw))
}

// Touch refreshes a session's idle timestamp without rewriting its context.
// Turns that end without changing the conversation state still count as
// activity for eviction purposes.
func (s *Store) Touch(ctx context.Context, sessionID string) error {
	return s.db.TouchSession(ctx, sessionID)
}

// RecipientID resolves the Messenger user a session belongs to.
// The say action uses this to address outbound deliveries.
func (s *Store) RecipientID(ctx context.Context, sessionID string) (string, error) {
	rec, err := s.db.GetSession(ctx, sessionID)
	if err != nil {
		return "", err
	}
	return rec.FBUserID, nil
}

// EvictExpired removes sessions idle beyond the configured TTL.
func (s *Store) EvictExpired(ctx context.Context) (int64, error) {
	deleted, err := s.db.DeleteExpiredSessions(ctx)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		s.metrics.RecordSessionsEvicted(int(deleted))
		s.logger.WithField("deleted", deleted).Info("Expired sessions evicted")
	}
	return deleted, nil
}

// Count returns the number of stored sessions.
func (s *Store) Count(ctx context.Context) (int, error) {
	return s.db.CountSessions(ctx)
}

func isNotFound(err error) bool {
	return errors.Is(err, domerrors.ErrSessionNotFound)
}
