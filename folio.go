// Package folio serves a slug-addressed blog backed by a local directory in
// development or a GitHub repository in production, with a single admin
// session guarding every write.
package folio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/eringen/folio/content"
	"github.com/eringen/folio/content/local"
	"github.com/eringen/folio/content/remote"
	"github.com/eringen/folio/session"
)

// App is the central folio application. It wires together the content
// store, session manager, cache, handlers and middleware.
type App struct {
	Config   SiteConfig
	Echo     *echo.Echo
	Store    content.Store
	Sessions *session.Manager
	Cache    *PostCache

	loginLimiter *LoginLimiter
	lookupEnv    func(string) (string, bool)
	now          func() time.Time
	customRoutes []func(*App)
	closers      []io.Closer
	ready        bool
}

// New creates a new App with the given configuration.
func New(cfg SiteConfig, opts ...Option) *App {
	cfg.setDefaults()

	a := &App{
		Config:    cfg,
		Echo:      echo.New(),
		lookupEnv: os.LookupEnv,
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Init validates the config, opens the store and session manager unless
// they were injected, and registers middleware and routes. Start calls it;
// tests call it directly and drive a.Echo through httptest.
func (a *App) Init(ctx context.Context) error {
	if a.ready {
		return nil
	}
	if err := a.Config.Validate(); err != nil {
		return fmt.Errorf("folio: invalid config: %w", err)
	}
	lvl, _ := parseLogLevel(a.Config.LogLevel)
	a.Echo.Logger.SetLevel(lvl)

	if a.Store == nil {
		store, err := OpenContentStore(a.Config, a.lookupEnv, a.Echo.Logger)
		if err != nil {
			return fmt.Errorf("folio: init store: %w", err)
		}
		a.Store = store
	}

	if a.Sessions == nil {
		var store session.Store
		if a.Config.SessionDBPath != "" {
			s, err := session.OpenSQLiteStore(a.Config.SessionDBPath)
			if err != nil {
				return fmt.Errorf("folio: init session store: %w", err)
			}
			a.closers = append(a.closers, s)
			store = s
		}
		m, err := session.NewManager(ctx, store,
			session.WithTTL(a.Config.SessionTTL),
			session.WithClock(a.now),
			session.WithAnswer(a.Config.AdminAnswer),
			session.WithAnswerHash(a.Config.AdminAnswerHash),
		)
		if err != nil {
			return fmt.Errorf("folio: init sessions: %w", err)
		}
		a.Sessions = m
	}

	a.Cache = NewPostCache(a.Store, a.Config.PostCacheTTL, a.now)
	a.loginLimiter = NewLoginLimiter(a.Config.LoginAttempts, a.Config.LoginWindow)

	if a.Config.Production() {
		if v, ok := a.lookupEnv(a.Config.TokenEnv); !ok || v == "" {
			a.Echo.Logger.Errorf("folio: %s is not set, admin content routes will fail", a.Config.TokenEnv)
		}
	}

	a.setupMiddleware()
	a.setupRoutes()

	for _, fn := range a.customRoutes {
		fn(a)
	}
	a.ready = true
	return nil
}

// Start initializes the app and serves until the server is shut down.
func (a *App) Start(ctx context.Context) error {
	if err := a.Init(ctx); err != nil {
		return err
	}
	if err := a.Echo.Start(a.Config.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (a *App) Shutdown(ctx context.Context) error {
	return a.Echo.Shutdown(ctx)
}

func (a *App) setupRoutes() {
	e := a.Echo

	// Public routes
	e.GET("/healthz", handleHealth)
	e.GET("/sitemap.xml", a.handleSitemap)
	e.GET("/feed.xml", a.handleFeed)
	e.GET("/blog/posts", a.handleListPosts)
	e.GET("/blog/posts/:slug", a.handleGetPost)

	// Session routes
	e.GET("/admin/login", a.handleLoginPage)
	e.POST("/admin/login", a.handleLogin)
	e.GET("/admin/logout", a.handleLogout)
	e.POST("/admin/logout", a.handleLogout)

	// Admin content routes: the environment gate runs before the guard.
	admin := e.Group(adminAPIPrefix, a.environmentGate, requireSession)
	admin.GET("/posts", a.handleAdminList)
	admin.GET("/posts/:slug", a.handleAdminGet)
	admin.POST("/posts", a.handleAdminUpsert)
	admin.POST("/delete", a.handleAdminDelete)
	admin.DELETE("/posts/:slug", a.handleAdminDeleteSlug)
}

// Close cleans up resources. Call this when the app is shutting down.
func (a *App) Close() error {
	if a.loginLimiter != nil {
		a.loginLimiter.Stop()
	}
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// OpenContentStore selects the content strategy once: production uses the
// remote repository, everything else the local directory. The remote token
// is looked up on every request, so a missing token surfaces as a
// configuration error instead of an anonymous call.
func OpenContentStore(cfg SiteConfig, lookupEnv func(string) (string, bool), logger content.Logger) (content.Store, error) {
	cfg.setDefaults()
	if lookupEnv == nil {
		lookupEnv = os.LookupEnv
	}
	if !cfg.Production() {
		var opts []local.Option
		if logger != nil {
			opts = append(opts, local.WithLogger(logger))
		}
		return local.New(cfg.ContentDir, opts...)
	}
	var opts []remote.Option
	if logger != nil {
		opts = append(opts, remote.WithLogger(logger))
	}
	tokenEnv := cfg.TokenEnv
	return remote.New(remote.Config{
		Owner:   cfg.RepoOwner,
		Repo:    cfg.RepoName,
		Branch:  cfg.RepoBranch,
		Dir:     cfg.RepoDir,
		BaseURL: cfg.RepoAPIURL,
		Timeout: cfg.RemoteTimeout,
		Token: func() string {
			v, _ := lookupEnv(tokenEnv)
			return v
		},
	}, opts...)
}
