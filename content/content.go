// Package content defines the blog post model and the Store contract shared
// by the local filesystem and remote repository strategies.
package content

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/eringen/folio/apperr"
	"github.com/eringen/folio/slug"
)

// MaxSlugAttempts bounds numeric suffixing when a derived slug is taken.
const MaxSlugAttempts = 100

// Post is a single blog post. Slug is fixed at creation.
type Post struct {
	Slug      string    `json:"slug"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Published bool      `json:"published"`
}

// Summary is a Post without its body, as returned by List.
type Summary struct {
	Slug      string    `json:"slug"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Published bool      `json:"published"`
}

// Summary strips the body.
func (p Post) Summary() Summary {
	return Summary{
		Slug:      p.Slug,
		Title:     p.Title,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
		Published: p.Published,
	}
}

// Fields is a partial update. Nil fields are left unchanged.
type Fields struct {
	Title     *string
	Body      *string
	Published *bool
}

// Empty reports whether no field is set.
func (f Fields) Empty() bool {
	return f.Title == nil && f.Body == nil && f.Published == nil
}

// Apply copies the set fields onto p and stamps UpdatedAt.
func (f Fields) Apply(p *Post, now time.Time) error {
	if f.Title != nil {
		title := strings.TrimSpace(*f.Title)
		if title == "" {
			return apperr.Validation("title is required")
		}
		p.Title = title
	}
	if f.Body != nil {
		p.Body = *f.Body
	}
	if f.Published != nil {
		p.Published = *f.Published
	}
	p.UpdatedAt = now
	return nil
}

// Store is implemented by every content backend. Implementations must be
// safe for concurrent use.
type Store interface {
	// List returns every post, newest first by CreatedAt.
	List(ctx context.Context) ([]Summary, error)
	// Get returns the post with exactly this slug or an apperr NotFound.
	Get(ctx context.Context, slug string) (Post, error)
	// Create derives a slug from title, disambiguating with a numeric
	// suffix when taken, and stores the post.
	Create(ctx context.Context, title, body string, published bool) (Post, error)
	// Update applies a partial update and refreshes UpdatedAt.
	Update(ctx context.Context, slug string, f Fields) (Post, error)
	// Delete removes the post. It reports false when it was already absent.
	Delete(ctx context.Context, slug string) (bool, error)
}

// Logger is the subset of echo's logger the stores use.
type Logger interface {
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// PrepareCreate trims title and derives the base slug for a new post.
func PrepareCreate(title string) (string, string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", "", apperr.Validation("title is required")
	}
	base := slug.Slugify(title)
	if base == "" {
		return "", "", apperr.Validation("title must contain letters or digits")
	}
	return title, base, nil
}

// NewPost builds a fresh post with both timestamps set to now.
func NewPost(slug, title, body string, published bool, now time.Time) Post {
	return Post{
		Slug:      slug,
		Title:     title,
		Body:      body,
		CreatedAt: now,
		UpdatedAt: now,
		Published: published,
	}
}

// Now returns the current time in the precision stored on disk.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

// SortSummaries orders posts newest first, breaking ties by slug.
func SortSummaries(posts []Summary) {
	sort.SliceStable(posts, func(i, j int) bool {
		if !posts[i].CreatedAt.Equal(posts[j].CreatedAt) {
			return posts[i].CreatedAt.After(posts[j].CreatedAt)
		}
		return posts[i].Slug < posts[j].Slug
	})
}

// PublishedOnly filters out drafts, keeping order.
func PublishedOnly(posts []Summary) []Summary {
	out := make([]Summary, 0, len(posts))
	for _, p := range posts {
		if p.Published {
			out = append(out, p)
		}
	}
	return out
}

// ErrSlugsExhausted is returned when every suffix up to MaxSlugAttempts is taken.
func ErrSlugsExhausted(base string) error {
	return apperr.Conflict("no free slug for " + base)
}
