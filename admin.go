package folio

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/eringen/folio/apperr"
	"github.com/eringen/folio/content"
	"github.com/eringen/folio/views"
)

const adminHome = "/admin"

func (a *App) handleLoginPage(c echo.Context) error {
	return renderPage(c, http.StatusOK, views.Login(a.Config.Name, CsrfToken(c)))
}

func (a *App) handleLogin(c echo.Context) error {
	ip := c.RealIP()
	if !a.loginLimiter.Check(ip) {
		return echo.NewHTTPError(http.StatusTooManyRequests, "too many login attempts, try again later")
	}
	var req struct {
		Answer string `json:"answer" form:"answer"`
	}
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("malformed request body")
	}
	if strings.TrimSpace(req.Answer) == "" {
		return apperr.Validation("answer is required")
	}
	if !a.Sessions.ValidateChallenge(req.Answer) {
		a.loginLimiter.Record(ip)
		c.Logger().Warnf("failed admin login from %s", ip)
		return apperr.Unauthorized("invalid answer")
	}

	ctx := c.Request().Context()
	token, expires, err := a.Sessions.CreateSession(ctx)
	if err != nil {
		return err
	}
	maxAge := int(expires.Sub(a.now()).Seconds())
	if maxAge < 1 {
		maxAge = int(a.Config.SessionTTL.Seconds())
	}
	if err := setSessionCookie(c, token, maxAge); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success":   true,
		"token":     token,
		"expiresAt": expires,
	})
}

// handleLogout ends the caller's session. It never fails: an unknown or
// missing session is already logged out.
func (a *App) handleLogout(c echo.Context) error {
	if err := a.Sessions.EndSession(c.Request().Context(), requestToken(c)); err != nil {
		c.Logger().Errorf("end session: %v", err)
	}
	if err := clearSessionCookie(c); err != nil {
		c.Logger().Warnf("clear session cookie: %v", err)
	}
	if wantsJSON(c) {
		return c.JSON(http.StatusOK, map[string]any{"success": true})
	}
	return c.Redirect(http.StatusFound, "/admin/login")
}

func (a *App) handleAdminList(c echo.Context) error {
	posts, err := a.Store.List(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true, "posts": posts})
}

func (a *App) handleAdminGet(c echo.Context) error {
	post, err := a.Store.Get(c.Request().Context(), c.Param("slug"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true, "post": post})
}

// upsertRequest carries only the fields the caller actually sent.
type upsertRequest struct {
	Slug   string
	Fields content.Fields
}

func (a *App) handleAdminUpsert(c echo.Context) error {
	req, err := parseUpsert(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	if req.Slug == "" {
		var title, body string
		var published bool
		if req.Fields.Title != nil {
			title = *req.Fields.Title
		}
		if req.Fields.Body != nil {
			body = *req.Fields.Body
		}
		if req.Fields.Published != nil {
			published = *req.Fields.Published
		}
		post, err := a.Store.Create(ctx, title, body, published)
		if err != nil {
			return err
		}
		a.Cache.Invalidate()
		c.Logger().Infof("created post %s", post.Slug)
		return c.JSON(http.StatusCreated, map[string]any{"success": true, "post": post})
	}

	if req.Fields.Empty() {
		return apperr.Validation("nothing to update")
	}
	post, err := a.Store.Update(ctx, req.Slug, req.Fields)
	if err != nil {
		return err
	}
	a.Cache.Invalidate()
	c.Logger().Infof("updated post %s", post.Slug)
	return c.JSON(http.StatusOK, map[string]any{"success": true, "post": post})
}

func (a *App) handleAdminDelete(c echo.Context) error {
	slug := strings.TrimSpace(c.FormValue("slug"))
	if slug == "" {
		return apperr.Validation("slug is required")
	}
	deleted, err := a.Store.Delete(c.Request().Context(), slug)
	if err != nil {
		return err
	}
	if deleted {
		a.Cache.Invalidate()
		c.Logger().Infof("deleted post %s", slug)
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true, "redirectUrl": adminHome})
}

func (a *App) handleAdminDeleteSlug(c echo.Context) error {
	deleted, err := a.Store.Delete(c.Request().Context(), c.Param("slug"))
	if err != nil {
		return err
	}
	if deleted {
		a.Cache.Invalidate()
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true, "deleted": deleted})
}

func parseUpsert(c echo.Context) (upsertRequest, error) {
	req := c.Request()
	if strings.HasPrefix(req.Header.Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		return parseUpsertJSON(req.Body)
	}
	form, err := c.FormParams()
	if err != nil {
		return upsertRequest{}, apperr.Validation("malformed form body")
	}
	out := upsertRequest{Slug: strings.TrimSpace(form.Get("slug"))}
	if form.Has("title") {
		v := form.Get("title")
		out.Fields.Title = &v
	}
	if form.Has("body") {
		v := form.Get("body")
		out.Fields.Body = &v
	}
	if form.Has("published") {
		v, err := parseBool(form.Get("published"))
		if err != nil {
			return upsertRequest{}, err
		}
		out.Fields.Published = &v
	}
	return out, nil
}

func parseUpsertJSON(r io.Reader) (upsertRequest, error) {
	var body struct {
		Slug      string          `json:"slug"`
		Title     *string         `json:"title"`
		Body      *string         `json:"body"`
		Published json.RawMessage `json:"published"`
	}
	if err := json.NewDecoder(r).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		return upsertRequest{}, apperr.Validation("malformed JSON body")
	}
	out := upsertRequest{
		Slug:   strings.TrimSpace(body.Slug),
		Fields: content.Fields{Title: body.Title, Body: body.Body},
	}
	if len(body.Published) > 0 && string(body.Published) != "null" {
		var v bool
		if err := json.Unmarshal(body.Published, &v); err != nil {
			var s string
			if err := json.Unmarshal(body.Published, &s); err != nil {
				return upsertRequest{}, apperr.Validation("published must be a boolean")
			}
			if v, err = parseBool(s); err != nil {
				return upsertRequest{}, err
			}
		}
		out.Fields.Published = &v
	}
	return out, nil
}

// parseBool accepts checkbox values as well as the strconv forms.
func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on", "yes":
		return true, nil
	case "", "off", "no":
		return false, nil
	}
	v, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return false, apperr.Validation("published must be a boolean")
	}
	return v, nil
}

func wantsJSON(c echo.Context) bool {
	return strings.Contains(c.Request().Header.Get(echo.HeaderAccept), echo.MIMEApplicationJSON)
}
