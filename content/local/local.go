// Package local stores posts as front-matter files in a directory.
package local

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/labstack/gommon/log"

	"github.com/eringen/folio/apperr"
	"github.com/eringen/folio/content"
	"github.com/eringen/folio/slug"
)

// Store is a content.Store over one directory. Writes are serialized by a
// single mutex and land through write-temp-then-rename, so readers never see
// a partial file and take no lock.
type Store struct {
	dir string
	mu  sync.Mutex
	now func() time.Time
	log content.Logger
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

// WithLogger sets the logger used for skipped files.
func WithLogger(l content.Logger) Option {
	return func(s *Store) {
		s.log = l
	}
}

// New opens (or creates) the content directory.
func New(dir string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create content dir: %w", err)
	}
	s := &Store{
		dir: dir,
		now: content.Now,
		log: log.New("content"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Dir returns the content directory.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, content.FileName(key))
}

// List returns every decodable post in the directory, newest first.
func (s *Store) List(ctx context.Context) ([]content.Summary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "list posts", err)
	}
	posts := make([]content.Summary, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		key, ok := content.SlugFromFileName(e.Name())
		if !ok || !slug.Valid(key) {
			continue
		}
		p, err := s.read(key)
		if err != nil {
			if !errors.Is(err, apperr.ErrNotFound) {
				s.log.Warnf("skipping %s: %v", e.Name(), err)
			}
			continue
		}
		posts = append(posts, p.Summary())
	}
	content.SortSummaries(posts)
	return posts, nil
}

// Get returns the post stored under key.
func (s *Store) Get(ctx context.Context, key string) (content.Post, error) {
	if err := ctx.Err(); err != nil {
		return content.Post{}, err
	}
	if !slug.Valid(key) {
		return content.Post{}, apperr.NotFound("post not found")
	}
	return s.read(key)
}

func (s *Store) read(key string) (content.Post, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return content.Post{}, apperr.NotFound("post not found")
		}
		return content.Post{}, apperr.Wrap(apperr.KindInternal, "read post", err)
	}
	p, err := content.Decode(key, data)
	if err != nil {
		return content.Post{}, apperr.Wrap(apperr.KindInternal, "read post", err)
	}
	return p, nil
}

// Create stores a new post under the first free slug derived from title.
func (s *Store) Create(ctx context.Context, title, body string, published bool) (content.Post, error) {
	if err := ctx.Err(); err != nil {
		return content.Post{}, err
	}
	title, base, err := content.PrepareCreate(title)
	if err != nil {
		return content.Post{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for n := 1; n <= content.MaxSlugAttempts; n++ {
		key := slug.WithSuffix(base, n)
		taken, err := s.exists(key)
		if err != nil {
			return content.Post{}, err
		}
		if taken {
			continue
		}
		p := content.NewPost(key, title, body, published, s.now())
		if err := s.write(p); err != nil {
			return content.Post{}, err
		}
		return p, nil
	}
	return content.Post{}, content.ErrSlugsExhausted(base)
}

func (s *Store) exists(key string) (bool, error) {
	_, err := os.Lstat(s.path(key))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, apperr.Wrap(apperr.KindInternal, "stat post", err)
	}
}

// Update applies f to the post stored under key.
func (s *Store) Update(ctx context.Context, key string, f content.Fields) (content.Post, error) {
	if err := ctx.Err(); err != nil {
		return content.Post{}, err
	}
	if !slug.Valid(key) {
		return content.Post{}, apperr.NotFound("post not found")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.read(key)
	if err != nil {
		return content.Post{}, err
	}
	if err := f.Apply(&p, s.now()); err != nil {
		return content.Post{}, err
	}
	if err := s.write(p); err != nil {
		return content.Post{}, err
	}
	return p, nil
}

// Delete removes the post stored under key.
func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if !slug.Valid(key) {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(key)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, apperr.Wrap(apperr.KindInternal, "delete post", err)
	}
	return true, nil
}

func (s *Store) write(p content.Post) error {
	data, err := content.Encode(p)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "write post", err)
	}
	if err := writeFileAtomic(s.dir, s.path(p.Slug), data); err != nil {
		return apperr.Wrap(apperr.KindInternal, "write post", err)
	}
	return nil
}

// writeFileAtomic writes data to a temp file in dir, syncs it and renames it
// over target.
func writeFileAtomic(dir, target string, data []byte) (err error) {
	tmp, err := os.CreateTemp(dir, ".folio-*.tmp")
	if err != nil {
		return err
	}
	name := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(name)
		}
	}()
	if _, err = tmp.Write(data); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(name, 0o644); err != nil {
		return err
	}
	return os.Rename(name, target)
}
