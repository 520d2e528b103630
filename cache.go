package folio

import (
	"context"
	"sync"
	"time"

	"github.com/eringen/folio/apperr"
	"github.com/eringen/folio/content"
)

// PostCache is an in-memory cache of the published listing with TTL.
// Admin mutations call Invalidate.
type PostCache struct {
	mu      sync.RWMutex
	posts   []content.Summary
	loaded  bool
	fetched time.Time
	ttl     time.Duration
	store   content.Store
	now     func() time.Time
}

// NewPostCache creates a PostCache backed by the given Store.
func NewPostCache(s content.Store, ttl time.Duration, now func() time.Time) *PostCache {
	if now == nil {
		now = time.Now
	}
	return &PostCache{store: s, ttl: ttl, now: now}
}

func (c *PostCache) valid() bool {
	return c.loaded && c.now().Sub(c.fetched) < c.ttl
}

// Invalidate clears the cache so the next read triggers a fresh load.
func (c *PostCache) Invalidate() {
	c.mu.Lock()
	c.posts = nil
	c.loaded = false
	c.mu.Unlock()
}

func (c *PostCache) load(ctx context.Context) error {
	if c.valid() {
		return nil
	}
	all, err := c.store.List(ctx)
	if err != nil {
		return err
	}
	c.posts = content.PublishedOnly(all)
	c.loaded = true
	c.fetched = c.now()
	return nil
}

// Published returns published posts, newest first. It tries a read lock
// first and only takes the write lock when a reload is needed.
func (c *PostCache) Published(ctx context.Context) ([]content.Summary, error) {
	c.mu.RLock()
	if c.valid() {
		posts := c.posts
		c.mu.RUnlock()
		return posts, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.load(ctx); err != nil {
		return nil, err
	}
	return c.posts, nil
}

// Post returns a published post with its body. Drafts and slugs missing
// from the listing are NotFound without a store round trip.
func (c *PostCache) Post(ctx context.Context, slug string) (content.Post, error) {
	posts, err := c.Published(ctx)
	if err != nil {
		return content.Post{}, err
	}
	for _, p := range posts {
		if p.Slug != slug {
			continue
		}
		post, err := c.store.Get(ctx, slug)
		if err != nil {
			return content.Post{}, err
		}
		if !post.Published {
			break
		}
		return post, nil
	}
	return content.Post{}, apperr.NotFound("post not found")
}
