package folio

import (
	"net/http"
	"strings"

	"github.com/gorilla/sessions"
	echosession "github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/eringen/folio/apperr"
	"github.com/eringen/folio/session"
)

const (
	sessionName    = "admin_session"
	tokenKey       = "token"
	adminAPIPrefix = "/admin/api"
)

func (a *App) setupMiddleware() {
	e := a.Echo

	e.IPExtractor = echo.ExtractIPFromXFFHeader(
		echo.TrustLoopback(true),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(true),
	)

	e.HTTPErrorHandler = a.httpErrorHandler

	e.Pre(middleware.NonWWWRedirect())

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			c.Logger().Infof("%s %s -> %d (%s)", v.Method, v.URI, v.Status, v.Latency)
			return nil
		},
	}))

	e.Use(middleware.Recover())

	e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Level: 5,
	}))

	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		ContentSecurityPolicy: "default-src 'self'; style-src 'self' 'unsafe-inline'; form-action 'self'",
		HSTSMaxAge:            31536000,
		HSTSExcludeSubdomains: false,
	}))

	e.Use(echosession.Middleware(a.newCookieStore()))
	e.Use(a.sessionContext)

	e.Use(middleware.CSRFWithConfig(middleware.CSRFConfig{
		ContextKey:  middleware.DefaultCSRFConfig.ContextKey,
		TokenLookup: "header:X-CSRF-Token,form:_csrf",
		CookieName:  "_csrf",
		CookiePath:  "/",
		CookieSameSite: func() http.SameSite {
			return http.SameSiteLaxMode
		}(),
		CookieSecure: a.Config.CookieSecure,
		Skipper: func(c echo.Context) bool {
			if a.Config.DisableCSRF || bearerToken(c) != "" {
				return true
			}
			// The gate rejects these before any handler runs.
			return strings.HasPrefix(c.Request().URL.Path, adminAPIPrefix+"/") && a.credentialMissing()
		},
		ErrorHandler: func(err error, c echo.Context) error {
			return c.JSON(http.StatusForbidden, errorBody("forbidden"))
		},
	}))

	e.Use(cacheControlMiddleware)
}

func cacheControlMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		path := c.Request().URL.Path
		switch {
		case path == "/sitemap.xml" || path == "/feed.xml":
			c.Response().Header().Set("Cache-Control", "public, max-age=3600")
		case strings.HasPrefix(path, "/admin"), path == "/healthz":
			c.Response().Header().Set("Cache-Control", "no-store")
		default:
			c.Response().Header().Set("Cache-Control", "public, max-age=60")
		}
		return next(c)
	}
}

func (a *App) newCookieStore() *sessions.CookieStore {
	store := sessions.NewCookieStore([]byte(a.Config.SessionSecret))
	store.Options = &sessions.Options{
		Path:     "/",
		HttpOnly: true,
		MaxAge:   int(a.Config.SessionTTL.Seconds()),
		SameSite: http.SameSiteLaxMode,
		Secure:   a.Config.CookieSecure,
	}
	return store
}

// sessionContext makes the session manager reachable from every request
// context.
func (a *App) sessionContext(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		c.SetRequest(req.WithContext(session.NewContext(req.Context(), a.Sessions)))
		return next(c)
	}
}

// environmentGate refuses admin content traffic in production when the
// repository token is missing. It runs on every request and touches
// neither the session manager nor the store.
func (a *App) environmentGate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if a.credentialMissing() {
			return apperr.New(apperr.KindConfiguration, a.Config.TokenEnv+" is not set")
		}
		return next(c)
	}
}

func (a *App) credentialMissing() bool {
	if !a.Config.Production() {
		return false
	}
	v, ok := a.lookupEnv(a.Config.TokenEnv)
	return !ok || strings.TrimSpace(v) == ""
}

// requireSession is the access guard for privileged routes.
func requireSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		m, ok := session.FromContext(c.Request().Context())
		if !ok {
			return apperr.New(apperr.KindInternal, "session manager missing from request context")
		}
		if err := m.Require(requestToken(c)); err != nil {
			return err
		}
		return next(c)
	}
}

// requestToken returns the bearer token when an Authorization header carries
// one, and the signed cookie's token otherwise. A bearer request never falls
// back to the cookie, which keeps the CSRF skip for bearer requests sound.
func requestToken(c echo.Context) string {
	if token := bearerToken(c); token != "" {
		return token
	}
	if sess, err := echosession.Get(sessionName, c); err == nil {
		if token, ok := sess.Values[tokenKey].(string); ok && token != "" {
			return token
		}
	}
	return ""
}

func bearerToken(c echo.Context) string {
	h := c.Request().Header.Get(echo.HeaderAuthorization)
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func setSessionCookie(c echo.Context, token string, maxAge int) error {
	// A stale or tampered cookie fails to decode but still yields a fresh
	// session to overwrite it with.
	sess, err := echosession.Get(sessionName, c)
	if sess == nil {
		return err
	}
	sess.Values[tokenKey] = token
	sess.Options.MaxAge = maxAge
	return sess.Save(c.Request(), c.Response())
}

func clearSessionCookie(c echo.Context) error {
	sess, err := echosession.Get(sessionName, c)
	if sess == nil {
		return err
	}
	delete(sess.Values, tokenKey)
	sess.Options.MaxAge = -1
	return sess.Save(c.Request(), c.Response())
}

// CsrfToken extracts the CSRF token from the Echo context.
func CsrfToken(c echo.Context) string {
	token, _ := c.Get(middleware.DefaultCSRFConfig.ContextKey).(string)
	return token
}
