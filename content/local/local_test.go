package local

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/eringen/folio/content"
	"github.com/eringen/folio/content/contenttest"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return s
}

func TestStoreContract(t *testing.T) {
	contenttest.Run(t, func(t *testing.T, clock *contenttest.Clock) content.Store {
		s, err := New(t.TempDir(), WithClock(clock.Now))
		if err != nil {
			t.Fatalf("failed to create store: %v", err)
		}
		return s
	})
}

func TestStoreContractSeeded(t *testing.T) {
	contenttest.RunSeeded(t, func(t *testing.T, clock *contenttest.Clock) (content.Store, contenttest.Seed) {
		s, err := New(t.TempDir(), WithClock(clock.Now))
		if err != nil {
			t.Fatalf("failed to create store: %v", err)
		}
		return s, func(t *testing.T, key string, raw []byte) {
			if err := os.WriteFile(s.path(key), raw, 0o644); err != nil {
				t.Fatalf("seed %s: %v", key, err)
			}
		}
	})
}

func TestNewCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "posts")
	if _, err := New(dir); err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Fatalf("expected directory %s to exist", dir)
	}
}

func TestCreateWritesFrontMatterFile(t *testing.T) {
	s := setupTestStore(t)
	if _, err := s.Create(context.Background(), "Hello, World!", "body", true); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(s.Dir(), "hello-world.md"))
	if err != nil {
		t.Fatalf("expected post file: %v", err)
	}
	text := string(data)
	if !strings.HasPrefix(text, "---\n") || !strings.Contains(text, "published: true") || !strings.HasSuffix(text, "---\nbody") {
		t.Errorf("unexpected file contents:\n%s", text)
	}
}

func TestWritesLeaveNoTempFiles(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	p, err := s.Create(ctx, "Temp Check", "one", false)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	body := "two"
	if _, err := s.Update(ctx, p.Slug, content.Fields{Body: &body}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	entries, err := os.ReadDir(s.Dir())
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "temp-check.md" {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("directory contents = %v, want [temp-check.md]", names)
	}
}

func TestListSkipsForeignAndCorruptFiles(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	if _, err := s.Create(ctx, "Good Post", "", true); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	files := map[string]string{
		"broken.md":     "no front matter here",
		"README.txt":    "not a post",
		"Upper-Case.md": "---\ntitle: Upper\n---\n",
	}
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(s.Dir(), name), []byte(data), 0o644); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
	}
	if err := os.Mkdir(filepath.Join(s.Dir(), "drafts.md"), 0o755); err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}

	posts, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(posts) != 1 || posts[0].Slug != "good-post" {
		t.Fatalf("List = %+v, want only good-post", posts)
	}
}

func TestConcurrentCreateSameTitle(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]content.Post, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = s.Create(ctx, "Hello World", "body", true)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("Create %d failed: %v", i, err)
		}
	}
	slugs := map[string]bool{results[0].Slug: true, results[1].Slug: true}
	if !slugs["hello-world"] || !slugs["hello-world-2"] {
		t.Fatalf("slugs = %v, want hello-world and hello-world-2", slugs)
	}

	posts, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(posts) != 2 {
		t.Fatalf("expected exactly 2 posts, got %d", len(posts))
	}
	for _, p := range posts {
		got, err := s.Get(ctx, p.Slug)
		if err != nil {
			t.Fatalf("Get(%s) failed: %v", p.Slug, err)
		}
		if got.Body != "body" || got.Title != "Hello World" {
			t.Errorf("corrupted post %s: %+v", p.Slug, got)
		}
	}
}

func TestDeleteInvalidSlug(t *testing.T) {
	s := setupTestStore(t)
	outside := filepath.Join(filepath.Dir(s.Dir()), "keep.md")
	if err := os.WriteFile(outside, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	deleted, err := s.Delete(context.Background(), "../keep")
	if err != nil || deleted {
		t.Fatalf("Delete(../keep) = %v, %v; want false, nil", deleted, err)
	}
	if _, err := os.Stat(outside); err != nil {
		t.Fatalf("file outside content dir was touched: %v", err)
	}
}
