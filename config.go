package folio

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/labstack/gommon/log"

	"github.com/eringen/folio/content"
	"github.com/eringen/folio/session"
)

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"
)

// SiteConfig holds all configuration for a folio site.
type SiteConfig struct {
	Env  string `env:"FOLIO_ENV"`  // "production" selects the remote store (default "development")
	Addr string `env:"FOLIO_ADDR"` // Listen address (default ":3000")

	Name        string `env:"FOLIO_SITE_NAME"`        // Site name (default "Blog")
	URL         string `env:"FOLIO_SITE_URL"`         // Canonical URL (default "http://localhost:3000")
	Description string `env:"FOLIO_SITE_DESCRIPTION"` // Feed description

	ContentDir string `env:"FOLIO_CONTENT_DIR"` // Local post directory (default "content/posts")

	RepoOwner     string        `env:"FOLIO_REPO_OWNER"`
	RepoName      string        `env:"FOLIO_REPO_NAME"`
	RepoBranch    string        `env:"FOLIO_REPO_BRANCH"`    // default "main"
	RepoDir       string        `env:"FOLIO_REPO_DIR"`       // default "content/posts"
	RepoAPIURL    string        `env:"FOLIO_REPO_API_URL"`   // empty means api.github.com
	TokenEnv      string        `env:"FOLIO_TOKEN_ENV"`      // Variable holding the repo token (default "GITHUB_TOKEN")
	RemoteTimeout time.Duration `env:"FOLIO_REMOTE_TIMEOUT"` // default 10s

	AdminAnswer     string `env:"FOLIO_ADMIN_ANSWER"`
	AdminAnswerHash string `env:"FOLIO_ADMIN_ANSWER_HASH"` // bcrypt, wins over AdminAnswer

	SessionSecret string        `env:"FOLIO_SESSION_SECRET"` // Required: cookie signing secret
	SessionTTL    time.Duration `env:"FOLIO_SESSION_TTL"`    // default 12h
	SessionDBPath string        `env:"FOLIO_SESSION_DB"`     // empty keeps the session in memory
	CookieSecure  bool          `env:"FOLIO_COOKIE_SECURE"`  // Set true for HTTPS
	DisableCSRF   bool          `env:"FOLIO_DISABLE_CSRF"`

	PostCacheTTL  time.Duration `env:"FOLIO_POST_CACHE_TTL"` // default 5min
	LoginAttempts int           `env:"FOLIO_LOGIN_ATTEMPTS"` // default 5
	LoginWindow   time.Duration `env:"FOLIO_LOGIN_WINDOW"`   // default 1min

	LogLevel string `env:"FOLIO_LOG_LEVEL"` // debug, info, warn, error, off (default "info")
}

func (c *SiteConfig) setDefaults() {
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
	if c.Env == "" {
		c.Env = EnvDevelopment
	}
	if c.Addr == "" {
		c.Addr = ":3000"
	}
	if c.Name == "" {
		c.Name = "Blog"
	}
	if c.URL == "" {
		c.URL = "http://localhost:3000"
	}
	if c.ContentDir == "" {
		c.ContentDir = "content/posts"
	}
	if c.RepoBranch == "" {
		c.RepoBranch = "main"
	}
	if c.RepoDir == "" {
		c.RepoDir = "content/posts"
	}
	if c.TokenEnv == "" {
		c.TokenEnv = "GITHUB_TOKEN"
	}
	if c.RemoteTimeout == 0 {
		c.RemoteTimeout = 10 * time.Second
	}
	if c.SessionTTL == 0 {
		c.SessionTTL = session.DefaultTTL
	}
	if c.PostCacheTTL == 0 {
		c.PostCacheTTL = 5 * time.Minute
	}
	if c.LoginAttempts == 0 {
		c.LoginAttempts = 5
	}
	if c.LoginWindow == 0 {
		c.LoginWindow = time.Minute
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Production reports whether the site runs against the remote store.
func (c SiteConfig) Production() bool {
	return c.Env == EnvProduction
}

// Validate checks the settings that have no usable default.
func (c SiteConfig) Validate() error {
	var errs []error
	if c.SessionSecret == "" {
		errs = append(errs, errors.New("FOLIO_SESSION_SECRET is required"))
	}
	if c.AdminAnswer == "" && c.AdminAnswerHash == "" {
		errs = append(errs, errors.New("FOLIO_ADMIN_ANSWER or FOLIO_ADMIN_ANSWER_HASH is required"))
	}
	if c.Production() && (c.RepoOwner == "" || c.RepoName == "") {
		errs = append(errs, errors.New("FOLIO_REPO_OWNER and FOLIO_REPO_NAME are required in production"))
	}
	if c.LoginAttempts < 0 {
		errs = append(errs, errors.New("FOLIO_LOGIN_ATTEMPTS must not be negative"))
	}
	if _, err := parseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// LoadConfig reads an optional .env file and then the process environment.
func LoadConfig() (SiteConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return SiteConfig{}, fmt.Errorf("load .env: %w", err)
	}
	var cfg SiteConfig
	if err := env.Parse(&cfg); err != nil {
		return SiteConfig{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.setDefaults()
	return cfg, nil
}

// LoadConfigFrom parses cfg from an explicit environment map.
func LoadConfigFrom(environ map[string]string) (SiteConfig, error) {
	var cfg SiteConfig
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return SiteConfig{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.setDefaults()
	return cfg, nil
}

func parseLogLevel(s string) (log.Lvl, error) {
	switch strings.ToLower(s) {
	case "debug":
		return log.DEBUG, nil
	case "", "info":
		return log.INFO, nil
	case "warn":
		return log.WARN, nil
	case "error":
		return log.ERROR, nil
	case "off":
		return log.OFF, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}

// Option configures additional App behavior.
type Option func(*App)

// WithCustomRoutes registers additional routes on the Echo instance.
// The callback receives the App after the built-in routes are set up.
func WithCustomRoutes(fn func(*App)) Option {
	return func(a *App) {
		a.customRoutes = append(a.customRoutes, fn)
	}
}

// WithStore uses s instead of the store selected by Env.
func WithStore(s content.Store) Option {
	return func(a *App) {
		a.Store = s
	}
}

// WithSessionManager uses m instead of building one from the config.
func WithSessionManager(m *session.Manager) Option {
	return func(a *App) {
		a.Sessions = m
	}
}

// WithEnvLookup replaces os.LookupEnv for the production credential check.
func WithEnvLookup(fn func(string) (string, bool)) Option {
	return func(a *App) {
		a.lookupEnv = fn
	}
}

// WithClock overrides the time source of the cache and the session manager.
func WithClock(now func() time.Time) Option {
	return func(a *App) {
		a.now = now
	}
}
