package db

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPortalSessionQueries(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	database, err := OpenDB(ctx, filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer database.Close()

	qry := New(database)

	_, err = qry.GetPortalSession(ctx, "unknown")
	require.True(t, errors.Is(err, sql.ErrNoRows))

	session := PortalSession{
		ID:              "front-end-id",
		CookieID:        "webscraper_abc_100",
		JarPath:         "/tmp/webscraper_abc_100.json",
		LoginUrl:        "https://portal.example.nl/magic/abc",
		FinalUrl:        "https://portal.example.nl/1/dashboard",
		HttpCode:        200,
		Authenticated:   true,
		WasLivewire:     true,
		LivewireSuccess: true,
		CreatedAt:       100,
		LastUsedAt:      100,
	}
	require.NoError(t, qry.UpsertPortalSession(ctx, session))

	stored, err := qry.GetPortalSession(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, session, stored)

	session.HasAuthCookies = true
	session.LastUsedAt = 150
	require.NoError(t, qry.UpsertPortalSession(ctx, session))
	stored, err = qry.GetPortalSession(ctx, session.ID)
	require.NoError(t, err)
	require.True(t, stored.HasAuthCookies)
	require.EqualValues(t, 100, stored.CreatedAt)

	other := session
	other.ID = "other"
	other.CookieID = "webscraper_def_200"
	other.LastUsedAt = 300
	require.NoError(t, qry.UpsertPortalSession(ctx, other))

	stale, err := qry.ListStalePortalSessions(ctx, 200)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	require.Equal(t, "front-end-id", stale[0].ID)

	require.NoError(t, qry.TouchPortalSession(ctx, session.ID, 400))
	stale, err = qry.ListStalePortalSessions(ctx, 350)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	require.Equal(t, "other", stale[0].ID)

	require.NoError(t, qry.DeletePortalSession(ctx, "other"))
	count, err := qry.CountPortalSessions(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
}

func TestMakeTx(t *testing.T) {
	ctx := context.Background()
	database, err := OpenDB(ctx, ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer database.Close()

	makeTx := NewMakeTx(database)

	tx, discard, _, err := makeTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.UpsertPortalSession(ctx, PortalSession{ID: "a", CookieID: "a", JarPath: "a", LoginUrl: "a"}))
	require.NoError(t, discard())

	count, err := New(database).CountPortalSessions(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 0, count)

	tx, _, commit, err := makeTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.UpsertPortalSession(ctx, PortalSession{ID: "a", CookieID: "a", JarPath: "a", LoginUrl: "a"}))
	require.NoError(t, commit())

	count, err = New(database).CountPortalSessions(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
}

func TestOpenDBRequiresPath(t *testing.T) {
	_, err := OpenDB(context.Background(), "")
	require.Error(t, err)
}
