package commands

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"fleetassist-backend/internal/api"
	"fleetassist-backend/internal/components/chrono"
	"fleetassist-backend/internal/components/telemetry"
	"fleetassist-backend/internal/db"
	"fleetassist-backend/internal/dispatch"
	"fleetassist-backend/internal/extract"
	"fleetassist-backend/internal/llm"
	"fleetassist-backend/internal/portal"
	"fleetassist-backend/internal/session"
)

// app holds everything a command needs, it is built from the configuration once per run.
type app struct {
	cfg      Config
	tel      telemetry.API
	time     chrono.API
	database *sql.DB
	store    *session.Store
	shutdown telemetry.Shutdown
}

func initTelemetry(ctx context.Context, cfg Config) (telemetry.API, telemetry.Shutdown, error) {
	telemetry.InitSlog(verbose)
	if verbose {
		slog.DebugContext(ctx, "verbose logging enabled")
	}

	tel := telemetry.SlogAPI{}
	shutdown, err := telemetry.Setup(ctx, "fleetassist", cfg.Telemetry, tel)
	if err != nil {
		return nil, nil, fmt.Errorf("setup telemetry: %w", err)
	}
	return tel, shutdown, nil
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := readConfig(configPath)
	if err != nil {
		return nil, err
	}

	tel, shutdown, err := initTelemetry(ctx, cfg)
	if err != nil {
		return nil, err
	}

	database, err := db.OpenDB(ctx, cfg.Session.Database)
	if err != nil {
		shutdown(context.Background())
		return nil, fmt.Errorf("open database: %w", err)
	}

	staleAfter, err := cfg.staleAfter()
	if err != nil {
		database.Close()
		shutdown(context.Background())
		return nil, err
	}

	portalOpts := portal.DefaultOptions()
	portalOpts.InsecureSkipVerify = !cfg.Portal.VerifyTLS
	portalOpts.RequestsPerSecond = cfg.Portal.RequestsPerSecond
	if verbose {
		output, err := telemetry.NewFilesystemOutput(".dev/resty/portal")
		if err != nil {
			tel.ReportWarning("app.resty-output", err)
		} else {
			portalOpts.Output = output
		}
	}

	sessionOpts := session.DefaultOptions()
	sessionOpts.JarDir = cfg.Session.JarDir
	sessionOpts.Portal = portalOpts
	sessionOpts.StaleAfter = staleAfter

	clock, err := chrono.NewStandardImpl(cfg.Timezone)
	if err != nil {
		database.Close()
		shutdown(context.Background())
		return nil, err
	}
	return &app{
		cfg:      cfg,
		tel:      tel,
		time:     clock,
		database: database,
		store:    session.NewStore(database, sessionOpts, clock, tel),
		shutdown: shutdown,
	}, nil
}

func (a *app) Close() {
	err := a.database.Close()
	if err != nil {
		a.tel.ReportWarning("app.close", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = a.shutdown(ctx)
	if err != nil {
		a.tel.ReportWarning("app.close", err)
	}
}

func (a *app) extractor() extract.Extractor {
	e := extract.DefaultExtractor()
	if a.cfg.Portal.AnchorPhrase != "" {
		e.AnchorPhrase = a.cfg.Portal.AnchorPhrase
	}
	return e
}

func (a *app) contractsURL() string {
	return strings.TrimRight(a.cfg.Portal.BaseURL, "/") + "/" + strings.TrimLeft(a.cfg.Portal.ContractsPath, "/")
}

// dispatcher returns nil when no model is configured.
func (a *app) dispatcher(ctx context.Context) (*dispatch.Dispatcher, error) {
	if a.cfg.LLM.APIKey == "" {
		return nil, nil
	}
	model, err := llm.New(ctx, a.cfg.LLM)
	if err != nil {
		return nil, err
	}
	opts := dispatch.DefaultOptions()
	opts.BaseURL = a.cfg.Portal.BaseURL
	opts.TenantPrefix = a.cfg.Portal.TenantPrefix
	opts.Extractor = a.extractor()
	d := dispatch.NewDispatcher(model, opts, a.tel)
	return &d, nil
}

func (a *app) apiOptions() api.Options {
	opts := api.DefaultOptions()
	opts.ContractsURL = a.contractsURL()
	opts.RecordsPerPage = a.cfg.Portal.RecordsPerPage
	opts.SecureCookie = a.cfg.Server.SecureCookie
	opts.Extractor = a.extractor()
	if a.cfg.LLM.Provider == "openai" {
		opts.ModelMissing = "OpenAI API Key not configured"
	}
	return opts
}

func (a *app) contractsPortal(client *portal.Client) dispatch.ContractsPortal {
	return dispatch.ContractsPortal{
		Client:         client,
		Livewire:       a.store.Authenticator(),
		ContractsURL:   a.contractsURL(),
		RecordsPerPage: a.cfg.Portal.RecordsPerPage,
	}
}

// the session created by the last login is remembered next to the cookie jars so the other
// commands can default to it.
func (a *app) lastSessionPath() string {
	return filepath.Join(a.cfg.Session.JarDir, "fleetassist_cli_session")
}

func (a *app) rememberSession(id string) error {
	return os.WriteFile(a.lastSessionPath(), []byte(id), 0600)
}

func (a *app) forgetSession() error {
	err := os.Remove(a.lastSessionPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (a *app) sessionID() (string, error) {
	if sessionArg != "" {
		return sessionArg, nil
	}
	contents, err := os.ReadFile(a.lastSessionPath())
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("no session, run login first")
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(contents)), nil
}
