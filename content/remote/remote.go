// Package remote stores posts as files committed to a GitHub repository
// through the contents API. Every mutation is a commit.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/go-github/v66/github"
	"github.com/labstack/gommon/log"

	"github.com/eringen/folio/apperr"
	"github.com/eringen/folio/content"
	"github.com/eringen/folio/slug"
)

// DefaultTimeout bounds a single API call.
const DefaultTimeout = 10 * time.Second

// errMissingToken is returned by the transport when no credential is set.
var errMissingToken = errors.New("remote content token is not set")

// TokenFunc returns the API credential. It is called on every request so a
// rotated or removed credential takes effect without a restart.
type TokenFunc func() string

// Config locates the repository holding the posts.
type Config struct {
	Owner          string
	Repo           string
	Branch         string        // default "main"
	Dir            string        // default "content/posts"
	BaseURL        string        // API root, empty for api.github.com
	Timeout        time.Duration // default DefaultTimeout
	CommitterName  string
	CommitterEmail string
	Token          TokenFunc
}

func (c *Config) setDefaults() {
	if c.Branch == "" {
		c.Branch = "main"
	}
	if c.Dir == "" {
		c.Dir = "content/posts"
	}
	c.Dir = strings.Trim(c.Dir, "/")
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Token == nil {
		c.Token = func() string { return "" }
	}
}

// Store is a content.Store backed by a GitHub repository.
type Store struct {
	cfg    Config
	client *github.Client
	now    func() time.Time
	log    content.Logger
}

var _ content.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithLogger sets the logger used for retries and skipped files.
func WithLogger(l content.Logger) Option {
	return func(s *Store) {
		s.log = l
	}
}

// New builds a Store. It performs no network calls.
func New(cfg Config, opts ...Option) (*Store, error) {
	if cfg.Owner == "" || cfg.Repo == "" {
		return nil, fmt.Errorf("remote content: owner and repo are required")
	}
	cfg.setDefaults()

	httpClient := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: &tokenTransport{token: cfg.Token, base: http.DefaultTransport},
	}
	client := github.NewClient(httpClient)
	if cfg.BaseURL != "" {
		base := cfg.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("remote content: parse base url: %w", err)
		}
		client.BaseURL = u
	}

	s := &Store{
		cfg:    cfg,
		client: client,
		now:    content.Now,
		log:    log.New("content"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// tokenTransport authenticates every request with the current token and
// refuses to send anonymous requests.
type tokenTransport struct {
	token TokenFunc
	base  http.RoundTripper
}

func (t *tokenTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	token := t.token()
	if token == "" {
		if req.Body != nil {
			req.Body.Close()
		}
		return nil, errMissingToken
	}
	r := req.Clone(req.Context())
	r.Header.Set("Authorization", "Bearer "+token)
	return t.base.RoundTrip(r)
}

func (s *Store) filePath(key string) string {
	return path.Join(s.cfg.Dir, content.FileName(key))
}

func (s *Store) committer() *github.CommitAuthor {
	if s.cfg.CommitterName == "" || s.cfg.CommitterEmail == "" {
		return nil
	}
	return &github.CommitAuthor{
		Name:  github.String(s.cfg.CommitterName),
		Email: github.String(s.cfg.CommitterEmail),
	}
}

// call runs fn under the per-call timeout.
func (s *Store) call(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	return fn(ctx)
}

// read runs a read call, retrying once on a transient failure before giving
// up with Unavailable.
func (s *Store) read(ctx context.Context, what string, fn func(context.Context) error) error {
	err := s.call(ctx, fn)
	if err == nil || !errors.Is(err, apperr.ErrTransient) {
		return err
	}
	s.log.Warnf("%s: retrying after %v", what, err)
	err = s.call(ctx, fn)
	if errors.Is(err, apperr.ErrTransient) {
		return apperr.Wrap(apperr.KindUnavailable, "content backend unavailable", err)
	}
	return err
}

func statusOf(err error) int {
	var ge *github.ErrorResponse
	if errors.As(err, &ge) && ge.Response != nil {
		return ge.Response.StatusCode
	}
	return 0
}

func classifyRead(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, errMissingToken) {
		return apperr.Wrap(apperr.KindConfiguration, "remote content credential missing", err)
	}
	if statusOf(err) == http.StatusNotFound {
		return apperr.Wrap(apperr.KindNotFound, "post not found", err)
	}
	return apperr.Wrap(apperr.KindTransient, "content backend read failed", err)
}

func classifyWrite(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, errMissingToken) {
		return apperr.Wrap(apperr.KindConfiguration, "remote content credential missing", err)
	}
	switch statusOf(err) {
	case http.StatusConflict, http.StatusUnprocessableEntity:
		return apperr.Wrap(apperr.KindConflict, "post was changed concurrently", err)
	case http.StatusNotFound:
		return apperr.Wrap(apperr.KindNotFound, "post not found", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		err = apperr.Wrap(apperr.KindTransient, "content backend timed out", err)
	}
	return apperr.Wrap(apperr.KindUnavailable, "content backend write failed", err)
}

// getFile returns the raw file under key without decoding it.
func (s *Store) getFile(ctx context.Context, key string) (*github.RepositoryContent, error) {
	var file *github.RepositoryContent
	err := s.read(ctx, "get "+key, func(ctx context.Context) error {
		f, _, _, err := s.client.Repositories.GetContents(ctx, s.cfg.Owner, s.cfg.Repo, s.filePath(key),
			&github.RepositoryContentGetOptions{Ref: s.cfg.Branch})
		if err != nil {
			return classifyRead(err)
		}
		if f == nil {
			return apperr.NotFound("post not found")
		}
		file = f
		return nil
	})
	return file, err
}

// fetch returns the post and the blob SHA used as its version token.
func (s *Store) fetch(ctx context.Context, key string) (content.Post, string, error) {
	file, err := s.getFile(ctx, key)
	if err != nil {
		return content.Post{}, "", err
	}
	text, err := file.GetContent()
	if err != nil {
		return content.Post{}, "", apperr.Wrap(apperr.KindInternal, "decode remote file", err)
	}
	p, err := content.Decode(key, []byte(text))
	if err != nil {
		return content.Post{}, "", apperr.Wrap(apperr.KindInternal, "decode remote file", err)
	}
	return p, file.GetSHA(), nil
}

// List returns every decodable post in the configured directory.
func (s *Store) List(ctx context.Context) ([]content.Summary, error) {
	var entries []*github.RepositoryContent
	err := s.read(ctx, "list posts", func(ctx context.Context) error {
		_, dir, _, err := s.client.Repositories.GetContents(ctx, s.cfg.Owner, s.cfg.Repo, s.cfg.Dir,
			&github.RepositoryContentGetOptions{Ref: s.cfg.Branch})
		if err != nil {
			return classifyRead(err)
		}
		entries = dir
		return nil
	})
	if errors.Is(err, apperr.ErrNotFound) {
		return []content.Summary{}, nil
	}
	if err != nil {
		return nil, err
	}

	posts := make([]content.Summary, 0, len(entries))
	for _, e := range entries {
		if e.GetType() != "file" {
			continue
		}
		key, ok := content.SlugFromFileName(e.GetName())
		if !ok || !slug.Valid(key) {
			continue
		}
		p, _, err := s.fetch(ctx, key)
		switch {
		case err == nil:
			posts = append(posts, p.Summary())
		case errors.Is(err, apperr.ErrNotFound):
			// removed since the directory listing
		case apperr.KindOf(err) == apperr.KindInternal:
			s.log.Warnf("skipping %s: %v", e.GetPath(), err)
		default:
			return nil, err
		}
	}
	content.SortSummaries(posts)
	return posts, nil
}

// Get returns the post stored under key.
func (s *Store) Get(ctx context.Context, key string) (content.Post, error) {
	if !slug.Valid(key) {
		return content.Post{}, apperr.NotFound("post not found")
	}
	p, _, err := s.fetch(ctx, key)
	return p, err
}

// Create commits a new file under the first free slug derived from title.
func (s *Store) Create(ctx context.Context, title, body string, published bool) (content.Post, error) {
	title, base, err := content.PrepareCreate(title)
	if err != nil {
		return content.Post{}, err
	}

	retried := false
	for n := 1; n <= content.MaxSlugAttempts; {
		key := slug.WithSuffix(base, n)
		p := content.NewPost(key, title, body, published, s.now())
		data, err := content.Encode(p)
		if err != nil {
			return content.Post{}, apperr.Wrap(apperr.KindInternal, "encode post", err)
		}
		err = s.call(ctx, func(ctx context.Context) error {
			_, _, err := s.client.Repositories.CreateFile(ctx, s.cfg.Owner, s.cfg.Repo, s.filePath(key),
				&github.RepositoryContentFileOptions{
					Message:   github.String("Create post " + key),
					Content:   data,
					Branch:    github.String(s.cfg.Branch),
					Committer: s.committer(),
				})
			return classifyWrite(err)
		})
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, apperr.ErrConflict) {
			return content.Post{}, err
		}

		// A conflict means either the path is taken or the branch moved.
		_, _, ferr := s.fetch(ctx, key)
		switch {
		case ferr == nil, apperr.KindOf(ferr) == apperr.KindInternal:
			n++
			continue
		case !errors.Is(ferr, apperr.ErrNotFound):
			return content.Post{}, ferr
		case retried:
			return content.Post{}, err
		}
		retried = true
		s.log.Warnf("create %s: retrying after %v", key, err)
	}
	return content.Post{}, content.ErrSlugsExhausted(base)
}

// Update applies f with a fetch-modify-commit cycle guarded by the file SHA.
// The cycle is retried once on a version conflict.
func (s *Store) Update(ctx context.Context, key string, f content.Fields) (content.Post, error) {
	if !slug.Valid(key) {
		return content.Post{}, apperr.NotFound("post not found")
	}
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		var (
			p   content.Post
			sha string
		)
		p, sha, err = s.fetch(ctx, key)
		if err != nil {
			return content.Post{}, err
		}
		if err = f.Apply(&p, s.now()); err != nil {
			return content.Post{}, err
		}
		data, encErr := content.Encode(p)
		if encErr != nil {
			return content.Post{}, apperr.Wrap(apperr.KindInternal, "encode post", encErr)
		}
		err = s.call(ctx, func(ctx context.Context) error {
			_, _, err := s.client.Repositories.UpdateFile(ctx, s.cfg.Owner, s.cfg.Repo, s.filePath(key),
				&github.RepositoryContentFileOptions{
					Message:   github.String("Update post " + key),
					Content:   data,
					SHA:       github.String(sha),
					Branch:    github.String(s.cfg.Branch),
					Committer: s.committer(),
				})
			return classifyWrite(err)
		})
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, apperr.ErrConflict) {
			return content.Post{}, err
		}
		s.log.Warnf("update %s: version conflict (attempt %d): %v", key, attempt+1, err)
	}
	return content.Post{}, err
}

// Delete removes the file under key. It reports false when already absent.
func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	if !slug.Valid(key) {
		return false, nil
	}
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		// Undecodable files are still removable.
		var file *github.RepositoryContent
		file, err = s.getFile(ctx, key)
		if errors.Is(err, apperr.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		sha := file.GetSHA()
		err = s.call(ctx, func(ctx context.Context) error {
			_, _, err := s.client.Repositories.DeleteFile(ctx, s.cfg.Owner, s.cfg.Repo, s.filePath(key),
				&github.RepositoryContentFileOptions{
					Message:   github.String("Delete post " + key),
					SHA:       github.String(sha),
					Branch:    github.String(s.cfg.Branch),
					Committer: s.committer(),
				})
			return classifyWrite(err)
		})
		if err == nil {
			return true, nil
		}
		if errors.Is(err, apperr.ErrNotFound) {
			return false, nil
		}
		if !errors.Is(err, apperr.ErrConflict) {
			return false, err
		}
		s.log.Warnf("delete %s: version conflict (attempt %d): %v", key, attempt+1, err)
	}
	return false, err
}
