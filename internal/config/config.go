package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

type Config struct {
	ListenAddr string
	BaseURL    string
	LogLevel   string

	DB struct {
		DSN string
	}

	Session struct {
		Secret string
	}

	Calendar Calendar

	PrometheusEnabled bool
	TrustedProxies    []string
}

// Calendar configures the Google Calendar mirror.
type Calendar struct {
	SyncEnabled     bool
	ClientID        string
	ClientSecret    string
	CredentialsFile string
	TokenFile       string
	RedirectURL     string
	CalendarID      string
	TimeZone        string
	Timeout         time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{}

	cfg.ListenAddr = getenvDefault("APP_LISTEN_ADDR", ":8080")
	cfg.BaseURL = getenvDefault("APP_BASE_URL", "http://localhost:8080")
	cfg.LogLevel = getenvDefault("APP_LOG_LEVEL", "info")
	cfg.DB.DSN = os.Getenv("APP_DB_DSN")

	if cfg.DB.DSN == "" {
		host := os.Getenv("APP_DB_HOST")
		name := os.Getenv("APP_DB_NAME")
		user := os.Getenv("APP_DB_USER")
		password := os.Getenv("APP_DB_PASSWORD")
		port := getenvDefault("APP_DB_PORT", "5432")
		sslmode := getenvDefault("APP_DB_SSLMODE", "disable")

		if host != "" && name != "" && user != "" && password != "" {
			cfg.DB.DSN = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, password, host, port, name, sslmode)
		}
	}

	cfg.Session.Secret = os.Getenv("APP_SESSION_SECRET")
	cfg.PrometheusEnabled = getenvBool("APP_PROMETHEUS_ENDPOINT_ENABLED", false)
	cfg.TrustedProxies = getenvList("APP_TRUSTED_PROXIES")

	cal, err := LoadCalendar()
	if err != nil {
		return nil, err
	}
	cfg.Calendar = *cal

	if cfg.DB.DSN == "" {
		return nil, errors.New("APP_DB_DSN is required (or set APP_DB_HOST, APP_DB_NAME, APP_DB_USER, and APP_DB_PASSWORD)")
	}
	if cfg.Session.Secret == "" {
		return nil, errors.New("APP_SESSION_SECRET is required")
	}
	if len(cfg.Session.Secret) < 32 {
		return nil, fmt.Errorf("APP_SESSION_SECRET must be at least 32 characters long (got %d)", len(cfg.Session.Secret))
	}

	if len(cfg.TrustedProxies) == 0 {
		slog.Warn("no APP_TRUSTED_PROXIES configured; forwarded client addresses will be trusted from any peer")
	}

	return cfg, nil
}

// LoadCalendar reads only the calendar settings. The auth command uses it
// directly since it needs neither the database nor a session secret.
func LoadCalendar() (*Calendar, error) {
	cal := &Calendar{}
	cal.ClientID = os.Getenv("APP_GOOGLE_CLIENT_ID")
	cal.ClientSecret = os.Getenv("APP_GOOGLE_CLIENT_SECRET")
	cal.CredentialsFile = os.Getenv("APP_GOOGLE_CREDENTIALS_FILE")
	cal.TokenFile = getenvDefault("APP_GOOGLE_TOKEN_FILE", "token.json")
	cal.RedirectURL = getenvDefault("APP_GOOGLE_REDIRECT_URL", "urn:ietf:wg:oauth:2.0:oob")
	cal.CalendarID = getenvDefault("APP_GOOGLE_CALENDAR_ID", "primary")
	cal.TimeZone = getenvDefault("APP_CALENDAR_TIMEZONE", "Asia/Kolkata")

	hasClient := (cal.ClientID != "" && cal.ClientSecret != "") || cal.CredentialsFile != ""
	cal.SyncEnabled = getenvBool("APP_CALENDAR_SYNC_ENABLED", hasClient)

	timeout, err := getenvDuration("APP_CALENDAR_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("APP_CALENDAR_TIMEOUT must be positive (got %s)", timeout)
	}
	cal.Timeout = timeout

	if _, err := time.LoadLocation(cal.TimeZone); err != nil {
		return nil, fmt.Errorf("APP_CALENDAR_TIMEZONE %q is invalid: %w", cal.TimeZone, err)
	}
	if cal.SyncEnabled && !hasClient {
		return nil, errors.New("calendar sync requires APP_GOOGLE_CLIENT_ID and APP_GOOGLE_CLIENT_SECRET or APP_GOOGLE_CREDENTIALS_FILE")
	}
	return cal, nil
}

// Location returns the configured calendar zone. LoadCalendar has already
// validated the name, so UTC is only a fallback for zero values.
func (c Calendar) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// SlogLevel maps APP_LOG_LEVEL onto a slog level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func getenvList(key string) []string {
	if v := os.Getenv(key); v != "" {
		var result []string
		for _, item := range strings.Split(v, ",") {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return nil
}
