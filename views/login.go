// Package views holds the HTML the admin surface renders.
package views

import (
	"context"
	"io"
	"strings"

	"github.com/a-h/templ"
)

// Login renders the challenge form. The form posts the answer and the CSRF
// token to /admin/login.
func Login(siteName, csrfToken string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		b.WriteString(`<!doctype html><html lang="en"><head><meta charset="utf-8">`)
		b.WriteString(`<meta name="viewport" content="width=device-width, initial-scale=1">`)
		b.WriteString(`<title>Admin login | `)
		b.WriteString(templ.EscapeString(siteName))
		b.WriteString(`</title></head><body>`)
		b.WriteString(`<main><h1>`)
		b.WriteString(templ.EscapeString(siteName))
		b.WriteString(`</h1><form method="post" action="/admin/login">`)
		b.WriteString(`<input type="hidden" name="_csrf" value="`)
		b.WriteString(templ.EscapeString(csrfToken))
		b.WriteString(`"><label for="answer">Answer</label>`)
		b.WriteString(`<input id="answer" name="answer" type="password" autocomplete="current-password" required autofocus>`)
		b.WriteString(`<button type="submit">Sign in</button></form></main></body></html>`)
		_, err := io.WriteString(w, b.String())
		return err
	})
}
