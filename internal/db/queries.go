package db

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

type PortalSession struct {
	ID              string
	CookieID        string
	JarPath         string
	LoginUrl        string
	FinalUrl        string
	HttpCode        int64
	Authenticated   bool
	WasLivewire     bool
	LivewireSuccess bool
	HasAuthCookies  bool
	CreatedAt       int64
	LastUsedAt      int64
}

const portalSessionColumns = `id, cookie_id, jar_path, login_url, final_url, http_code,
authenticated, was_livewire, livewire_success, has_auth_cookies, created_at, last_used_at`

func scanPortalSession(row interface{ Scan(...any) error }) (PortalSession, error) {
	var s PortalSession
	err := row.Scan(
		&s.ID,
		&s.CookieID,
		&s.JarPath,
		&s.LoginUrl,
		&s.FinalUrl,
		&s.HttpCode,
		&s.Authenticated,
		&s.WasLivewire,
		&s.LivewireSuccess,
		&s.HasAuthCookies,
		&s.CreatedAt,
		&s.LastUsedAt,
	)
	return s, err
}

const upsertPortalSession = `INSERT INTO PortalSession (` + portalSessionColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    cookie_id = excluded.cookie_id,
    jar_path = excluded.jar_path,
    login_url = excluded.login_url,
    final_url = excluded.final_url,
    http_code = excluded.http_code,
    authenticated = excluded.authenticated,
    was_livewire = excluded.was_livewire,
    livewire_success = excluded.livewire_success,
    has_auth_cookies = excluded.has_auth_cookies,
    last_used_at = excluded.last_used_at`

func (q *Queries) UpsertPortalSession(ctx context.Context, s PortalSession) error {
	_, err := q.db.ExecContext(ctx, upsertPortalSession,
		s.ID,
		s.CookieID,
		s.JarPath,
		s.LoginUrl,
		s.FinalUrl,
		s.HttpCode,
		s.Authenticated,
		s.WasLivewire,
		s.LivewireSuccess,
		s.HasAuthCookies,
		s.CreatedAt,
		s.LastUsedAt,
	)
	return err
}

const getPortalSession = `SELECT ` + portalSessionColumns + ` FROM PortalSession WHERE id = ?`

func (q *Queries) GetPortalSession(ctx context.Context, id string) (PortalSession, error) {
	row := q.db.QueryRowContext(ctx, getPortalSession, id)
	return scanPortalSession(row)
}

const touchPortalSession = `UPDATE PortalSession SET last_used_at = ? WHERE id = ?`

func (q *Queries) TouchPortalSession(ctx context.Context, id string, lastUsedAt int64) error {
	_, err := q.db.ExecContext(ctx, touchPortalSession, lastUsedAt, id)
	return err
}

const deletePortalSession = `DELETE FROM PortalSession WHERE id = ?`

func (q *Queries) DeletePortalSession(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, deletePortalSession, id)
	return err
}

const listStalePortalSessions = `SELECT ` + portalSessionColumns + ` FROM PortalSession
WHERE last_used_at < ? ORDER BY last_used_at`

func (q *Queries) ListStalePortalSessions(ctx context.Context, before int64) ([]PortalSession, error) {
	rows, err := q.db.QueryContext(ctx, listStalePortalSessions, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PortalSession
	for rows.Next() {
		s, err := scanPortalSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

const countPortalSessions = `SELECT count(*) FROM PortalSession`

func (q *Queries) CountPortalSessions(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, countPortalSessions).Scan(&n)
	return n, err
}
