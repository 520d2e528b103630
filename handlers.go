package folio

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/eringen/folio/apperr"
)

func handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (a *App) handleListPosts(c echo.Context) error {
	posts, err := a.Cache.Published(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true, "posts": posts})
}

func (a *App) handleGetPost(c echo.Context) error {
	post, err := a.Cache.Post(c.Request().Context(), c.Param("slug"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true, "post": post})
}

func (a *App) handleSitemap(c echo.Context) error {
	posts, err := a.Cache.Published(c.Request().Context())
	if err != nil {
		return err
	}
	return a.renderSitemap(c, posts)
}

func (a *App) handleFeed(c echo.Context) error {
	posts, err := a.Cache.Published(c.Request().Context())
	if err != nil {
		return err
	}
	return a.renderRSS(c, posts)
}

func errorBody(msg string) map[string]any {
	return map[string]any{"success": false, "error": msg}
}

// publicPath reports whether path belongs to the anonymous read surface,
// which never shows error detail.
func publicPath(path string) bool {
	return strings.HasPrefix(path, "/blog/") || path == "/feed.xml" || path == "/sitemap.xml"
}

// errorResponse turns err into a status code and a caller-safe message.
func errorResponse(err error, path string) (int, string) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg, ok := he.Message.(string)
		if !ok || he.Code >= 500 {
			msg = strings.ToLower(http.StatusText(he.Code))
		}
		return he.Code, msg
	}

	kind := apperr.KindOf(err)
	code := apperr.Status(kind)
	switch kind {
	case apperr.KindValidation, apperr.KindConflict, apperr.KindUnauthorized:
		if msg := apperr.MessageOf(err); msg != "" && !publicPath(path) {
			return code, msg
		}
	case apperr.KindConfiguration:
		if !publicPath(path) {
			return code, "server misconfigured"
		}
	}
	switch code {
	case http.StatusBadRequest:
		return code, "invalid request"
	case http.StatusUnauthorized:
		return code, "authentication required"
	case http.StatusNotFound:
		return code, "not found"
	case http.StatusConflict:
		return code, "conflict"
	case http.StatusServiceUnavailable:
		return code, "service unavailable"
	}
	return code, "internal server error"
}

func (a *App) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	req := c.Request()
	code, msg := errorResponse(err, req.URL.Path)
	if code >= 500 {
		c.Logger().Errorf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	if req.Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = c.JSON(code, errorBody(msg))
}
