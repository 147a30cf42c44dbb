// Package session owns the portal sessions created from magic links: their cookie jars on
// disk, their metadata in the database and the portal clients bound to them.
package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"fleetassist-backend/internal/components/assert"
	"fleetassist-backend/internal/components/chrono"
	"fleetassist-backend/internal/components/telemetry"
	"fleetassist-backend/internal/db"
	"fleetassist-backend/internal/portal"
	"fleetassist-backend/internal/portal/cookiestore"
	"fleetassist-backend/internal/portal/livewire"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/mazen160/go-random"
)

const (
	report_store_login = "store.login"
	report_store_load  = "store.load"
	report_store_reset = "store.reset"
	report_store_sweep = "store.sweep"
)

// ErrNoSession is returned for ids that do not belong to a live session.
var ErrNoSession = errors.New("no session")

// ErrJarMissing is returned when the cookie jar of a session disappeared from disk, it wraps
// portal.ErrSessionExpired.
var ErrJarMissing = fmt.Errorf("cookie jar missing: %w", portal.ErrSessionExpired)

type Session struct {
	ID       string
	CookieID string
	JarPath  string

	LoginURL string
	FinalURL string
	HTTPCode int

	Authenticated   bool
	WasLivewire     bool
	LivewireSuccess bool
	HasAuthCookies  bool

	CreatedAt  time.Time
	LastUsedAt time.Time
}

func sessionFromRow(row db.PortalSession) Session {
	return Session{
		ID:              row.ID,
		CookieID:        row.CookieID,
		JarPath:         row.JarPath,
		LoginURL:        row.LoginUrl,
		FinalURL:        row.FinalUrl,
		HTTPCode:        int(row.HttpCode),
		Authenticated:   row.Authenticated,
		WasLivewire:     row.WasLivewire,
		LivewireSuccess: row.LivewireSuccess,
		HasAuthCookies:  row.HasAuthCookies,
		CreatedAt:       time.Unix(row.CreatedAt, 0),
		LastUsedAt:      time.Unix(row.LastUsedAt, 0),
	}
}

func (s Session) row() db.PortalSession {
	return db.PortalSession{
		ID:              s.ID,
		CookieID:        s.CookieID,
		JarPath:         s.JarPath,
		LoginUrl:        s.LoginURL,
		FinalUrl:        s.FinalURL,
		HttpCode:        int64(s.HTTPCode),
		Authenticated:   s.Authenticated,
		WasLivewire:     s.WasLivewire,
		LivewireSuccess: s.LivewireSuccess,
		HasAuthCookies:  s.HasAuthCookies,
		CreatedAt:       s.CreatedAt.Unix(),
		LastUsedAt:      s.LastUsedAt.Unix(),
	}
}

type Options struct {
	// JarDir holds the cookie jar files, it defaults to the os temp directory.
	JarDir string
	Portal portal.Options

	ClientCacheSize int
	ClientTTL       time.Duration

	// StaleAfter is how long a session may go unused before Sweep removes it, 0 keeps
	// sessions until they are reset.
	StaleAfter time.Duration
}

func DefaultOptions() Options {
	return Options{
		JarDir:          os.TempDir(),
		Portal:          portal.DefaultOptions(),
		ClientCacheSize: 2048,
		ClientTTL:       time.Minute * 15,
	}
}

type Store struct {
	qry     *db.Queries
	makeTx  db.MakeTx
	opts    Options
	auth    livewire.Authenticator
	clients *expirable.LRU[string, *portal.Client]
	time    chrono.API
	tel     telemetry.API

	locksMutex sync.Mutex
	locks      map[string]*sessionLock
}

func NewStore(database *sql.DB, opts Options, time chrono.API, tel telemetry.API) *Store {
	assert.NotNil(database, "database")
	assert.NotNil(time, "time")
	assert.NotNil(tel, "tel")

	if opts.JarDir == "" {
		opts.JarDir = os.TempDir()
	}
	if opts.ClientCacheSize <= 0 {
		opts.ClientCacheSize = 2048
	}

	return &Store{
		qry:     db.New(database),
		makeTx:  db.NewMakeTx(database),
		opts:    opts,
		auth:    livewire.NewAuthenticator(tel),
		clients: expirable.NewLRU[string, *portal.Client](opts.ClientCacheSize, nil, opts.ClientTTL),
		time:    time,
		tel:     telemetry.NewScopedAPI("session", tel),
		locks:   map[string]*sessionLock{},
	}
}

// Authenticator returns the authenticator used for every session of the store.
func (s *Store) Authenticator() livewire.Authenticator {
	return s.auth
}

// sessionLock serializes requests of one session, it is dropped from the store once nobody
// holds or waits for it.
type sessionLock struct {
	mutex sync.Mutex
	refs  int
}

func (s *Store) lock(id string) func() {
	s.locksMutex.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &sessionLock{}
		s.locks[id] = l
	}
	l.refs++
	s.locksMutex.Unlock()

	l.mutex.Lock()
	return func() {
		l.mutex.Unlock()

		s.locksMutex.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, id)
		}
		s.locksMutex.Unlock()
	}
}

func newCookieID(now time.Time) (string, error) {
	nonce, err := random.String(13)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("webscraper_%s_%d", nonce, now.Unix()), nil
}

// Login authenticates a fresh cookie jar with the magic link and records the session. The jar
// is deleted again when the magic link cannot be fetched.
func (s *Store) Login(ctx context.Context, link string) (Session, livewire.Result, error) {
	now := s.time.Now()
	cookieID, err := newCookieID(now)
	if err != nil {
		return Session{}, livewire.Result{}, fmt.Errorf("generate cookie id: %w", err)
	}

	jar := cookiestore.Open(s.opts.JarDir, cookieID)
	client, err := portal.NewClient(jar, s.opts.Portal, s.tel)
	if err != nil {
		return Session{}, livewire.Result{}, err
	}

	result, err := s.auth.Authenticate(ctx, link, client, jar)
	if err != nil {
		closeErr := jar.Close()
		if closeErr != nil {
			s.tel.ReportBroken(report_store_login, closeErr)
		}
		return Session{}, result, err
	}

	session := Session{
		ID:              uuid.NewString(),
		CookieID:        cookieID,
		JarPath:         jar.Path(),
		LoginURL:        link,
		FinalURL:        result.FinalURL,
		HTTPCode:        result.StatusCode,
		Authenticated:   true,
		WasLivewire:     result.WasLivewire,
		LivewireSuccess: result.LivewireSuccess,
		HasAuthCookies:  result.HasAuthCookies,
		CreatedAt:       now,
		LastUsedAt:      now,
	}
	err = s.qry.UpsertPortalSession(ctx, session.row())
	if err != nil {
		s.tel.ReportBroken(report_store_login, fmt.Errorf("insert session: %w", err))
		jar.Close()
		return Session{}, result, err
	}

	s.clients.Add(session.ID, client)
	s.tel.ReportDebug("session created", session.ID, result.State.String())
	return session, result, nil
}

// Get returns the stored session without touching it.
func (s *Store) Get(ctx context.Context, id string) (Session, error) {
	row, err := s.qry.GetPortalSession(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNoSession
	}
	if err != nil {
		s.tel.ReportBroken(report_store_load, err, id)
		return Session{}, err
	}
	return sessionFromRow(row), nil
}

func (s *Store) client(session Session) (*portal.Client, error) {
	cached, hit := s.clients.Get(session.ID)
	if hit {
		return cached, nil
	}
	client, err := portal.NewClient(cookiestore.Open(s.opts.JarDir, session.CookieID), s.opts.Portal, s.tel)
	if err != nil {
		return nil, err
	}
	s.clients.Add(session.ID, client)
	return client, nil
}

// With runs fn with the session's portal client. Calls for the same session never overlap,
// so every round trip sees the cookies of the one before it.
func (s *Store) With(ctx context.Context, id string, fn func(Session, *portal.Client) error) error {
	if id == "" {
		return ErrNoSession
	}

	unlock := s.lock(id)
	defer unlock()

	session, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if _, err := os.Stat(session.JarPath); err != nil {
		s.clients.Remove(id)
		return ErrJarMissing
	}

	client, err := s.client(session)
	if err != nil {
		return err
	}

	session.LastUsedAt = s.time.Now()
	err = s.qry.TouchPortalSession(ctx, id, session.LastUsedAt.Unix())
	if err != nil {
		s.tel.ReportWarning(report_store_load, fmt.Errorf("touch session: %w", err), id)
	}

	return fn(session, client)
}

// Reset deletes the session's cookie jar and forgets the session. Unknown ids are ignored.
func (s *Store) Reset(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}

	unlock := s.lock(id)
	defer unlock()

	session, err := s.Get(ctx, id)
	if errors.Is(err, ErrNoSession) {
		return nil
	}
	if err != nil {
		return err
	}

	s.clients.Remove(id)

	// the row only goes away once the jar is gone, a failed reset can be retried
	tx, discard, commit, err := s.makeTx(ctx)
	if err != nil {
		s.tel.ReportBroken(report_store_reset, fmt.Errorf("begin tx: %w", err), id)
		return err
	}
	err = tx.DeletePortalSession(ctx, id)
	if err != nil {
		discard()
		s.tel.ReportBroken(report_store_reset, fmt.Errorf("delete session: %w", err), id)
		return err
	}
	err = cookiestore.Open(s.opts.JarDir, session.CookieID).Close()
	if err != nil {
		discard()
		s.tel.ReportBroken(report_store_reset, err, id)
		return err
	}
	err = commit()
	if err != nil {
		s.tel.ReportBroken(report_store_reset, fmt.Errorf("commit: %w", err), id)
		return err
	}
	return nil
}

// Sweep resets every session unused for longer than Options.StaleAfter and returns how many
// were removed.
func (s *Store) Sweep(ctx context.Context) (int, error) {
	if s.opts.StaleAfter <= 0 {
		return 0, nil
	}

	stale, err := s.qry.ListStalePortalSessions(ctx, s.time.Now().Add(-s.opts.StaleAfter).Unix())
	if err != nil {
		s.tel.ReportBroken(report_store_sweep, err)
		return 0, err
	}

	removed := 0
	for _, row := range stale {
		err := s.Reset(ctx, row.ID)
		if err != nil {
			continue
		}
		removed++
	}

	count, err := s.qry.CountPortalSessions(ctx)
	if err == nil {
		s.tel.ReportCount(report_store_sweep, count)
	}
	return removed, nil
}

// ScheduleSweep runs Sweep on the given cron spec.
func (s *Store) ScheduleSweep(cron chrono.CronAPI, spec string) error {
	return cron.Cron(spec, func() {
		removed, err := s.Sweep(context.Background())
		if err != nil {
			return
		}
		if removed > 0 {
			s.tel.ReportDebug("swept stale sessions", removed)
		}
	})
}
