package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/Elinez19/kleva/session"
)

func TestSessionStore_SaveAndGet(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	s := NewSessionStore(db)
	ctx := context.Background()
	now := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	sess := &session.Session{
		ID: "s1", AccountID: "a1", Device: "firefox", Origin: "203.0.113.7",
		CreatedAt: now, LastActivity: now, ExpiresAt: now.Add(7 * 24 * time.Hour),
	}

	mock.ExpectExec(`INSERT INTO sessions`).
		WithArgs(sess.ID, sess.AccountID, sess.Device, sess.Origin, sess.CreatedAt, sess.LastActivity, sess.ExpiresAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, s.Save(ctx, sess))

	mock.ExpectQuery(`SELECT id, account_id, device, origin, created_at, last_activity, expires_at FROM sessions WHERE id = \$1`).
		WithArgs("s1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "account_id", "device", "origin", "created_at", "last_activity", "expires_at"}).
			AddRow(sess.ID, sess.AccountID, sess.Device, sess.Origin, sess.CreatedAt, sess.LastActivity, sess.ExpiresAt))
	got, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, *sess, *got)

	mock.ExpectQuery(`FROM sessions WHERE id = \$1`).
		WithArgs("gone").
		WillReturnError(pgx.ErrNoRows)
	_, err = s.Get(ctx, "gone")
	require.ErrorIs(t, err, session.ErrNotFound)
}

func TestSessionStore_Delete(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	s := NewSessionStore(db)
	ctx := context.Background()

	mock.ExpectQuery(`DELETE FROM sessions WHERE id = \$1 RETURNING account_id`).
		WithArgs("s1").
		WillReturnRows(pgxmock.NewRows([]string{"account_id"}).AddRow("a1"))
	owner, err := s.Delete(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, "a1", owner)

	mock.ExpectQuery(`DELETE FROM sessions WHERE id = \$1`).
		WithArgs("s1").
		WillReturnError(pgx.ErrNoRows)
	_, err = s.Delete(ctx, "s1")
	require.ErrorIs(t, err, session.ErrNotFound)

	mock.ExpectQuery(`DELETE FROM sessions WHERE account_id = \$1 RETURNING id`).
		WithArgs("a1").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("s2").AddRow("s3"))
	ids, err := s.DeleteAllForAccount(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, []string{"s2", "s3"}, ids)
}

func TestSessionStore_Touch(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	s := NewSessionStore(db)
	at := time.Date(2026, 2, 1, 9, 30, 0, 0, time.UTC)

	mock.ExpectExec(`UPDATE sessions SET last_activity = \$2 WHERE id = \$1`).
		WithArgs("s1", at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	require.ErrorIs(t, s.Touch(context.Background(), "s1", at), session.ErrNotFound)
}

func TestSessionStore_RevokeRefreshOnce(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	s := NewSessionStore(db)
	ctx := context.Background()

	mock.ExpectExec(`UPDATE refresh_tokens SET revoked = TRUE WHERE hash = \$1 AND NOT revoked`).
		WithArgs("h").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	ok, err := s.RevokeRefresh(ctx, "h")
	require.NoError(t, err)
	require.True(t, ok)

	mock.ExpectExec(`UPDATE refresh_tokens SET revoked = TRUE WHERE hash = \$1`).
		WithArgs("h").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	ok, err = s.RevokeRefresh(ctx, "h")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSessionStore_GetRefresh(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	s := NewSessionStore(db)
	ctx := context.Background()
	now := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM refresh_tokens WHERE hash = \$1`).
		WithArgs("h").
		WillReturnRows(pgxmock.NewRows([]string{"hash", "account_id", "session_id", "device", "origin", "created_at", "expires_at", "revoked"}).
			AddRow("h", "a1", "s1", "firefox", "203.0.113.7", now, now.Add(time.Hour), false))
	rec, err := s.GetRefresh(ctx, "h")
	require.NoError(t, err)
	require.True(t, rec.UsableAt(now))
	require.Equal(t, "s1", rec.SessionID)

	mock.ExpectQuery(`FROM refresh_tokens WHERE hash = \$1`).
		WithArgs("unknown").
		WillReturnError(pgx.ErrNoRows)
	_, err = s.GetRefresh(ctx, "unknown")
	require.ErrorIs(t, err, session.ErrRefreshNotFound)
}

func TestSessionStore_Cleanup(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	s := NewSessionStore(db)
	ctx := context.Background()
	now := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectExec(`DELETE FROM sessions WHERE expires_at <= \$1`).
		WithArgs(now).
		WillReturnResult(pgxmock.NewResult("DELETE", 4))
	n, err := s.DeleteExpired(ctx, now)
	require.NoError(t, err)
	require.EqualValues(t, 4, n)

	mock.ExpectExec(`DELETE FROM refresh_tokens WHERE expires_at <= \$1`).
		WithArgs(now).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	n, err = s.DeleteExpiredRefresh(ctx, now)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)
}
