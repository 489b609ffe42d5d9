package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	domerrors "github.com/oorion/avery-messenger-bot/internal/errors"
)

// SessionRecord is one row of the sessions table. Context is the JSON-encoded
// conversation state as last returned by the NLU engine.
type SessionRecord struct {
	ID        string
	FBUserID  string
	Context   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// InsertSession creates a new session row.
// Returns an error if a session for the same user already exists; callers
// handle the conflict by re-reading (see session.Store.FindOrCreate).
func (db *DB) InsertSession(ctx context.Context, id, fbUserID string) error {
	now := time.Now().Unix()
	query := `
		INSERT INTO sessions (id, fb_user_id, context, created_at, updated_at)
		VALUES (?, ?, '{}', ?, ?)
	`
	if _, err := db.conn.ExecContext(ctx, query, id, fbUserID, now, now); err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// FindSessionByUserID returns the session for a platform user id.
// Returns ErrSessionNotFound when no session exists.
func (db *DB) FindSessionByUserID(ctx context.Context, fbUserID string) (*SessionRecord, error) {
	query := `
		SELECT id, fb_user_id, context, created_at, updated_at
		FROM sessions
		WHERE fb_user_id = ?
	`
	return db.scanSession(db.conn.QueryRowContext(ctx, query, fbUserID))
}

// GetSession returns the session with the given id.
// Returns ErrSessionNotFound when no session exists.
func (db *DB) GetSession(ctx context.Context, id string) (*SessionRecord, error) {
	query := `
		SELECT id, fb_user_id, context, created_at, updated_at
		FROM sessions
		WHERE id = ?
	`
	return db.scanSession(db.conn.QueryRowContext(ctx, query, id))
}

func (db *DB) scanSession(row *sql.Row) (*SessionRecord, error) {
	var rec SessionRecord
	var createdAt, updatedAt int64

	err := row.Scan(&rec.ID, &rec.FBUserID, &rec.Context, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domerrors.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}

	rec.CreatedAt = time.Unix(createdAt, 0)
	rec.UpdatedAt = time.Unix(updatedAt, 0)
	return &rec, nil
}

// UpdateSessionContext replaces the stored context JSON and refreshes the
// session's idle timestamp.
func (db *DB) UpdateSessionContext(ctx context.Context, id, contextJSON string) error {
	query := `
		UPDATE sessions SET context = ?, updated_at = ? WHERE id = ?
	`
	res, err := db.conn.ExecContext(ctx, query, contextJSON, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to update session context: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return domerrors.ErrSessionNotFound
	}
	return nil
}

// TouchSession refreshes the session's idle timestamp without changing
// its context.
func (db *DB) TouchSession(ctx context.Context, id string) error {
	query := `UPDATE sessions SET updated_at = ? WHERE id = ?`
	if _, err := db.conn.ExecContext(ctx, query, time.Now().Unix(), id); err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}

// DeleteExpiredSessions removes sessions idle for longer than the configured
// TTL. Returns the number of sessions removed.
func (db *DB) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-db.sessionTTL).Unix()
	res, err := db.conn.ExecContext(ctx, `DELETE FROM sessions WHERE updated_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return deleted, nil
}

// CountSessions returns the number of stored sessions.
func (db *DB) CountSessions(ctx context.Context) (int, error) {
	var count int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return count, nil
}
