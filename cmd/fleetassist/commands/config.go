package commands

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"fleetassist-backend/internal/components/chrono"
	"fleetassist-backend/internal/components/telemetry"
	"fleetassist-backend/internal/llm"
	"fleetassist-backend/lib/configutil"

	"github.com/joho/godotenv"
)

type PortalConfig struct {
	BaseURL        string `json:"base_url"`
	ContractsPath  string `json:"contracts_path"`
	TenantPrefix   string `json:"tenant_prefix"`
	RecordsPerPage string `json:"records_per_page"`
	AnchorPhrase   string `json:"anchor_phrase"`
	// VerifyTLS turns certificate verification on, the portal's acceptance environment
	// serves a self-signed certificate.
	VerifyTLS         bool    `json:"verify_tls"`
	RequestsPerSecond float64 `json:"requests_per_second"`
}

type SessionConfig struct {
	Database string `json:"database"`
	JarDir   string `json:"jar_dir"`
	// StaleAfter is a duration string, sessions unused for longer are swept.
	StaleAfter string `json:"stale_after"`
	SweepCron  string `json:"sweep_cron"`
}

type ServerConfig struct {
	Listen       string `json:"listen"`
	SecureCookie bool   `json:"secure_cookie"`
}

type Config struct {
	Timezone  string           `json:"timezone"`
	Portal    PortalConfig     `json:"portal"`
	Session   SessionConfig    `json:"session"`
	Server    ServerConfig     `json:"server"`
	LLM       llm.Config       `json:"llm"`
	Telemetry telemetry.Config `json:"telemetry"`
}

func defaultConfig() Config {
	return Config{
		Timezone: chrono.DefaultTimezone,
		Portal: PortalConfig{
			BaseURL:           "https://www.acc.fleet.nl/",
			ContractsPath:     "1/contracts",
			TenantPrefix:      "1/",
			RecordsPerPage:    "100",
			RequestsPerSecond: 2,
		},
		Session: SessionConfig{
			Database:   ".dev/fleetassist.db",
			JarDir:     os.TempDir(),
			StaleAfter: "24h",
			SweepCron:  "@every 1h",
		},
		Server: ServerConfig{
			Listen: "0.0.0.0:8000",
		},
		LLM: llm.Config{
			Provider: "gemini",
		},
	}
}

func (c Config) staleAfter() (time.Duration, error) {
	if c.Session.StaleAfter == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Session.StaleAfter)
	if err != nil {
		return 0, fmt.Errorf("session.stale_after: %w", err)
	}
	return d, nil
}

// envKeys maps a provider to the environment variable holding its api key.
var envKeys = map[string]string{
	"gemini": "GEMINI_API_KEY",
	"openai": "OPENAI_API_KEY",
}

// readConfig reads the configuration file (a missing file means defaults) and applies the
// .env file and environment on top.
func readConfig(path string) (Config, error) {
	err := godotenv.Load()
	if err != nil {
		slog.Debug("no .env file found, using environment")
	}

	cfg, err := configutil.ReadConfig(path, defaultConfig())
	if errors.Is(err, configutil.ErrNotFound) {
		slog.Info("config not found, using defaults", "path", path)
		err = nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if key := os.Getenv(envKeys[cfg.LLM.Provider]); key != "" {
		cfg.LLM.APIKey = key
	}
	return cfg, nil
}
