// Package contenttest holds the behavioural checks every content.Store
// implementation must pass.
package contenttest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/eringen/folio/apperr"
	"github.com/eringen/folio/content"
)

// Clock is a manually advanced time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts a clock at a fixed instant.
func NewClock() *Clock {
	return &Clock{now: time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Factory builds an empty store driven by clock.
type Factory func(t *testing.T, clock *Clock) content.Store

// Run executes the shared store contract against newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(*testing.T, content.Store, *Clock)
	}{
		{"EmptyList", testEmptyList},
		{"CreateAndGet", testCreateAndGet},
		{"GetIsCaseSensitive", testGetIsCaseSensitive},
		{"CreateValidation", testCreateValidation},
		{"DuplicateTitleGetsSuffix", testDuplicateTitleGetsSuffix},
		{"UpdateChangesOnlyGivenFields", testUpdateChangesOnlyGivenFields},
		{"UpdateTitleKeepsSlug", testUpdateTitleKeepsSlug},
		{"UpdateMissing", testUpdateMissing},
		{"DeleteIsIdempotent", testDeleteIsIdempotent},
		{"ListNewestFirst", testListNewestFirst},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := NewClock()
			tt.fn(t, newStore(t, clock), clock)
		})
	}
}

func testEmptyList(t *testing.T, s content.Store, _ *Clock) {
	posts, err := s.List(context.Background())
	if err != nil {
		t.Fatalf("List on empty store failed: %v", err)
	}
	if len(posts) != 0 {
		t.Fatalf("expected no posts, got %d", len(posts))
	}
}

func testCreateAndGet(t *testing.T, s content.Store, clock *Clock) {
	ctx := context.Background()
	created, err := s.Create(ctx, "Hello, World!", "First body", true)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if created.Slug != "hello-world" {
		t.Fatalf("Slug = %q, want %q", created.Slug, "hello-world")
	}
	if !created.CreatedAt.Equal(clock.Now()) {
		t.Errorf("CreatedAt = %v, want %v", created.CreatedAt, clock.Now())
	}

	got, err := s.Get(ctx, "hello-world")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Title != "Hello, World!" || got.Body != "First body" || !got.Published {
		t.Errorf("Get = %+v", got)
	}
	if !got.CreatedAt.Equal(got.UpdatedAt) {
		t.Errorf("CreatedAt %v != UpdatedAt %v", got.CreatedAt, got.UpdatedAt)
	}

	_, err = s.Get(ctx, "missing-slug")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func testGetIsCaseSensitive(t *testing.T, s content.Store, _ *Clock) {
	ctx := context.Background()
	if _, err := s.Create(ctx, "Case Test", "", false); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := s.Get(ctx, "Case-Test"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected NotFound for differently cased slug, got %v", err)
	}
	if _, err := s.Get(ctx, "../case-test"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected NotFound for path-like slug, got %v", err)
	}
}

func testCreateValidation(t *testing.T, s content.Store, _ *Clock) {
	ctx := context.Background()
	for _, title := range []string{"", "   ", "?!?"} {
		if _, err := s.Create(ctx, title, "body", true); !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("Create(%q): expected validation error, got %v", title, err)
		}
	}
	posts, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(posts) != 0 {
		t.Fatalf("rejected creates must not store anything, got %d posts", len(posts))
	}
}

func testDuplicateTitleGetsSuffix(t *testing.T, s content.Store, _ *Clock) {
	ctx := context.Background()
	want := []string{"same-title", "same-title-2", "same-title-3"}
	for _, slug := range want {
		p, err := s.Create(ctx, "Same Title", "body of "+slug, true)
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if p.Slug != slug {
			t.Fatalf("Slug = %q, want %q", p.Slug, slug)
		}
	}
	got, err := s.Get(ctx, "same-title-2")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Body != "body of same-title-2" {
		t.Errorf("Body = %q", got.Body)
	}
}

func testUpdateChangesOnlyGivenFields(t *testing.T, s content.Store, clock *Clock) {
	ctx := context.Background()
	created, err := s.Create(ctx, "Editable", "before", false)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	clock.Advance(time.Minute)

	body := "x"
	updated, err := s.Update(ctx, created.Slug, content.Fields{Body: &body})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.Body != "x" {
		t.Errorf("Body = %q, want %q", updated.Body, "x")
	}
	if updated.Title != created.Title || updated.Slug != created.Slug || updated.Published != created.Published {
		t.Errorf("unexpected change: %+v vs %+v", updated, created)
	}
	if !updated.CreatedAt.Equal(created.CreatedAt) {
		t.Errorf("CreatedAt changed: %v -> %v", created.CreatedAt, updated.CreatedAt)
	}
	if !updated.UpdatedAt.Equal(clock.Now()) {
		t.Errorf("UpdatedAt = %v, want %v", updated.UpdatedAt, clock.Now())
	}

	got, err := s.Get(ctx, created.Slug)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Body != "x" || !got.UpdatedAt.Equal(clock.Now()) {
		t.Errorf("update not persisted: %+v", got)
	}
}

func testUpdateTitleKeepsSlug(t *testing.T, s content.Store, _ *Clock) {
	ctx := context.Background()
	created, err := s.Create(ctx, "Original Title", "", true)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	title := "Completely Different"
	published := false
	updated, err := s.Update(ctx, created.Slug, content.Fields{Title: &title, Published: &published})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.Slug != "original-title" || updated.Title != title || updated.Published {
		t.Errorf("Update = %+v", updated)
	}
	if _, err := s.Get(ctx, "completely-different"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("title change must not create a new slug, got %v", err)
	}

	blank := ""
	if _, err := s.Update(ctx, created.Slug, content.Fields{Title: &blank}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error for blank title, got %v", err)
	}
}

func testUpdateMissing(t *testing.T, s content.Store, _ *Clock) {
	body := "x"
	_, err := s.Update(context.Background(), "nope", content.Fields{Body: &body})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func testDeleteIsIdempotent(t *testing.T, s content.Store, _ *Clock) {
	ctx := context.Background()
	p, err := s.Create(ctx, "Short Lived", "", true)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	deleted, err := s.Delete(ctx, p.Slug)
	if err != nil || !deleted {
		t.Fatalf("first Delete = %v, %v; want true, nil", deleted, err)
	}
	deleted, err = s.Delete(ctx, p.Slug)
	if err != nil || deleted {
		t.Fatalf("second Delete = %v, %v; want false, nil", deleted, err)
	}
	if _, err := s.Get(ctx, p.Slug); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected NotFound after delete, got %v", err)
	}
}

func testListNewestFirst(t *testing.T, s content.Store, clock *Clock) {
	ctx := context.Background()
	for _, title := range []string{"First", "Second", "Third"} {
		if _, err := s.Create(ctx, title, "", title != "Second"); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		clock.Advance(time.Hour)
	}
	posts, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	want := []string{"third", "second", "first"}
	if len(posts) != len(want) {
		t.Fatalf("List returned %d posts, want %d", len(posts), len(want))
	}
	for i, p := range posts {
		if p.Slug != want[i] {
			t.Errorf("posts[%d] = %q, want %q", i, p.Slug, want[i])
		}
	}
	if published := content.PublishedOnly(posts); len(published) != 2 {
		t.Errorf("expected 2 published posts, got %d", len(published))
	}
}

// Seed writes raw bytes as the stored file for key, bypassing the codec.
type Seed func(t *testing.T, key string, raw []byte)

// SeededFactory builds an empty store plus a way to plant raw files in it.
type SeededFactory func(t *testing.T, clock *Clock) (content.Store, Seed)

// RunSeeded executes the checks that need files the codec would never write.
func RunSeeded(t *testing.T, newStore SeededFactory) {
	tests := []struct {
		name string
		fn   func(*testing.T, content.Store, Seed)
	}{
		{"ListSkipsCorruptFile", testListSkipsCorruptFile},
		{"GetCorruptFileFails", testGetCorruptFileFails},
		{"DeleteCorruptFile", testDeleteCorruptFile},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, seed := newStore(t, NewClock())
			tt.fn(t, s, seed)
		})
	}
}

func testListSkipsCorruptFile(t *testing.T, s content.Store, seed Seed) {
	ctx := context.Background()
	if _, err := s.Create(ctx, "Good", "body", true); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	seed(t, "broken", []byte("not front matter"))

	posts, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(posts) != 1 || posts[0].Slug != "good" {
		t.Fatalf("expected only the decodable post, got %+v", posts)
	}
}

func testGetCorruptFileFails(t *testing.T, s content.Store, seed Seed) {
	seed(t, "broken", []byte("not front matter"))
	_, err := s.Get(context.Background(), "broken")
	if err == nil || errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected a decode failure, got %v", err)
	}
}

func testDeleteCorruptFile(t *testing.T, s content.Store, seed Seed) {
	ctx := context.Background()
	seed(t, "broken", []byte("not front matter"))

	deleted, err := s.Delete(ctx, "broken")
	if err != nil || !deleted {
		t.Fatalf("Delete(broken) = %v, %v; want true, nil", deleted, err)
	}
	deleted, err = s.Delete(ctx, "broken")
	if err != nil || deleted {
		t.Fatalf("second Delete(broken) = %v, %v; want false, nil", deleted, err)
	}
}
