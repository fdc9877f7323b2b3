package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Elinez19/kleva/session"
)

const sessionColumns = `id, account_id, device, origin, created_at, last_activity, expires_at`

// SessionStore implements session.Store and session.RefreshStore.
type SessionStore struct{ db *DB }

var (
	_ session.Store        = (*SessionStore)(nil)
	_ session.RefreshStore = (*SessionStore)(nil)
)

func NewSessionStore(db *DB) *SessionStore { return &SessionStore{db: db} }

func (s *SessionStore) Save(ctx context.Context, sess *session.Session) error {
	const q = `
INSERT INTO sessions (id, account_id, device, origin, created_at, last_activity, expires_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE
SET last_activity = EXCLUDED.last_activity, expires_at = EXCLUDED.expires_at`
	_, err := s.db.Pool.Exec(ctx, q, sess.ID, sess.AccountID, sess.Device, sess.Origin,
		sess.CreatedAt, sess.LastActivity, sess.ExpiresAt)
	return err
}

func (s *SessionStore) Get(ctx context.Context, id string) (*session.Session, error) {
	q := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`
	var sess session.Session
	err := s.db.Pool.QueryRow(ctx, q, id).Scan(&sess.ID, &sess.AccountID, &sess.Device, &sess.Origin,
		&sess.CreatedAt, &sess.LastActivity, &sess.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *SessionStore) Touch(ctx context.Context, id string, at time.Time) error {
	const q = `UPDATE sessions SET last_activity = $2 WHERE id = $1`
	tag, err := s.db.Pool.Exec(ctx, q, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return session.ErrNotFound
	}
	return nil
}

func (s *SessionStore) Delete(ctx context.Context, id string) (string, error) {
	const q = `DELETE FROM sessions WHERE id = $1 RETURNING account_id`
	var accountID string
	err := s.db.Pool.QueryRow(ctx, q, id).Scan(&accountID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", session.ErrNotFound
	}
	return accountID, err
}

func (s *SessionStore) DeleteAllForAccount(ctx context.Context, accountID string) ([]string, error) {
	const q = `DELETE FROM sessions WHERE account_id = $1 RETURNING id`
	rows, err := s.db.Pool.Query(ctx, q, accountID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (s *SessionStore) ListForAccount(ctx context.Context, accountID string, now time.Time) ([]*session.Session, error) {
	q := `SELECT ` + sessionColumns + ` FROM sessions
WHERE account_id = $1 AND expires_at > $2
ORDER BY last_activity DESC`
	rows, err := s.db.Pool.Query(ctx, q, accountID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*session.Session
	for rows.Next() {
		var sess session.Session
		if err := rows.Scan(&sess.ID, &sess.AccountID, &sess.Device, &sess.Origin,
			&sess.CreatedAt, &sess.LastActivity, &sess.ExpiresAt); err != nil {
			return nil, err
		}
		out = append(out, &sess)
	}
	return out, rows.Err()
}

func (s *SessionStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.db.Pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *SessionStore) SaveRefresh(ctx context.Context, r *session.RefreshRecord) error {
	const q = `
INSERT INTO refresh_tokens (hash, account_id, session_id, device, origin, created_at, expires_at, revoked)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := s.db.Pool.Exec(ctx, q, r.Hash, r.AccountID, r.SessionID, r.Device, r.Origin,
		r.CreatedAt, r.ExpiresAt, r.Revoked)
	return err
}

func (s *SessionStore) GetRefresh(ctx context.Context, hash string) (*session.RefreshRecord, error) {
	const q = `
SELECT hash, account_id, session_id, device, origin, created_at, expires_at, revoked
FROM refresh_tokens WHERE hash = $1`
	var r session.RefreshRecord
	err := s.db.Pool.QueryRow(ctx, q, hash).Scan(&r.Hash, &r.AccountID, &r.SessionID, &r.Device,
		&r.Origin, &r.CreatedAt, &r.ExpiresAt, &r.Revoked)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, session.ErrRefreshNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *SessionStore) RevokeRefresh(ctx context.Context, hash string) (bool, error) {
	const q = `UPDATE refresh_tokens SET revoked = TRUE WHERE hash = $1 AND NOT revoked`
	tag, err := s.db.Pool.Exec(ctx, q, hash)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *SessionStore) RevokeRefreshForSession(ctx context.Context, sessionID string) error {
	const q = `UPDATE refresh_tokens SET revoked = TRUE WHERE session_id = $1 AND NOT revoked`
	_, err := s.db.Pool.Exec(ctx, q, sessionID)
	return err
}

func (s *SessionStore) RevokeRefreshForAccount(ctx context.Context, accountID string) error {
	const q = `UPDATE refresh_tokens SET revoked = TRUE WHERE account_id = $1 AND NOT revoked`
	_, err := s.db.Pool.Exec(ctx, q, accountID)
	return err
}

func (s *SessionStore) DeleteExpiredRefresh(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.db.Pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at <= $1`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
