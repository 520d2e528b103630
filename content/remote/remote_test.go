package remote

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/eringen/folio/apperr"
	"github.com/eringen/folio/content"
	"github.com/eringen/folio/content/contenttest"
)

const (
	testOwner = "acme"
	testRepo  = "site"
	testToken = "test-token"
)

type fakeFile struct {
	data []byte
	sha  string
}

// fakeGitHub implements the slice of the contents API the store uses.
type fakeGitHub struct {
	mu           sync.Mutex
	files        map[string]fakeFile
	seq          int
	failGets     int
	conflictPuts int
	delay        time.Duration
	requests     int
	commits      []string
}

func newFakeGitHub() *fakeGitHub {
	return &fakeGitHub{files: make(map[string]fakeFile)}
}

func (f *fakeGitHub) put(p string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	f.files[p] = fakeFile{data: data, sha: fmt.Sprintf("sha-%d", f.seq)}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeGitHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-r.Context().Done():
			return
		}
	}
	if r.Header.Get("Authorization") != "Bearer "+testToken {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Bad credentials"})
		return
	}
	prefix := "/repos/" + testOwner + "/" + testRepo + "/contents/"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	}
	p := strings.TrimPrefix(r.URL.Path, prefix)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests++

	switch r.Method {
	case http.MethodGet:
		f.serveGet(w, p)
	case http.MethodPut:
		f.servePut(w, r, p)
	case http.MethodDelete:
		f.serveDelete(w, r, p)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"message": "method"})
	}
}

func (f *fakeGitHub) serveGet(w http.ResponseWriter, p string) {
	if f.failGets > 0 {
		f.failGets--
		writeJSON(w, http.StatusBadGateway, map[string]string{"message": "upstream hiccup"})
		return
	}
	if file, ok := f.files[p]; ok {
		writeJSON(w, http.StatusOK, map[string]any{
			"type":     "file",
			"name":     path.Base(p),
			"path":     p,
			"sha":      file.sha,
			"encoding": "base64",
			"content":  base64.StdEncoding.EncodeToString(file.data),
		})
		return
	}
	var entries []map[string]any
	for name, file := range f.files {
		if path.Dir(name) == p {
			entries = append(entries, map[string]any{
				"type": "file",
				"name": path.Base(name),
				"path": name,
				"sha":  file.sha,
			})
		}
	}
	if entries == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

type fileRequest struct {
	Message string  `json:"message"`
	Content []byte  `json:"content"`
	SHA     *string `json:"sha"`
	Branch  string  `json:"branch"`
}

func (f *fakeGitHub) servePut(w http.ResponseWriter, r *http.Request, p string) {
	var req fileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}
	if f.conflictPuts > 0 {
		f.conflictPuts--
		writeJSON(w, http.StatusConflict, map[string]string{"message": "is at sha-x but expected sha-y"})
		return
	}
	existing, ok := f.files[p]
	switch {
	case req.SHA == nil && ok:
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": `Invalid request. "sha" wasn't supplied.`})
		return
	case req.SHA != nil && !ok:
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	case req.SHA != nil && *req.SHA != existing.sha:
		writeJSON(w, http.StatusConflict, map[string]string{"message": "sha mismatch"})
		return
	}
	f.seq++
	sha := fmt.Sprintf("sha-%d", f.seq)
	f.files[p] = fakeFile{data: req.Content, sha: sha}
	f.commits = append(f.commits, req.Message)
	code := http.StatusOK
	if req.SHA == nil {
		code = http.StatusCreated
	}
	writeJSON(w, code, map[string]any{
		"content": map[string]any{"name": path.Base(p), "path": p, "sha": sha},
		"commit":  map[string]any{"sha": fmt.Sprintf("commit-%d", f.seq), "message": req.Message},
	})
}

func (f *fakeGitHub) serveDelete(w http.ResponseWriter, r *http.Request, p string) {
	var req fileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}
	existing, ok := f.files[p]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	}
	if req.SHA == nil || *req.SHA != existing.sha {
		writeJSON(w, http.StatusConflict, map[string]string{"message": "sha mismatch"})
		return
	}
	delete(f.files, p)
	f.commits = append(f.commits, req.Message)
	writeJSON(w, http.StatusOK, map[string]any{
		"content": nil,
		"commit":  map[string]any{"sha": "commit-delete", "message": req.Message},
	})
}

func newTestStore(t *testing.T, fake *fakeGitHub, opts ...Option) *Store {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	s, err := New(Config{
		Owner:   testOwner,
		Repo:    testRepo,
		BaseURL: srv.URL,
		Timeout: time.Second,
		Token:   func() string { return testToken },
	}, opts...)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return s
}

func TestStoreContract(t *testing.T) {
	contenttest.Run(t, func(t *testing.T, clock *contenttest.Clock) content.Store {
		return newTestStore(t, newFakeGitHub(), WithClock(clock.Now))
	})
}

func TestStoreContractSeeded(t *testing.T) {
	contenttest.RunSeeded(t, func(t *testing.T, clock *contenttest.Clock) (content.Store, contenttest.Seed) {
		fake := newFakeGitHub()
		s := newTestStore(t, fake, WithClock(clock.Now))
		return s, func(_ *testing.T, key string, raw []byte) {
			fake.put(s.filePath(key), raw)
		}
	})
}

func TestNewRequiresRepository(t *testing.T) {
	if _, err := New(Config{Owner: testOwner}); err == nil {
		t.Fatal("expected error without repo")
	}
}

func TestCreateCommitsFile(t *testing.T) {
	fake := newFakeGitHub()
	s := newTestStore(t, fake)
	if _, err := s.Create(context.Background(), "Hello, World!", "body", true); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	file, ok := fake.files["content/posts/hello-world.md"]
	if !ok {
		t.Fatalf("expected file at content/posts/hello-world.md, have %v", fake.files)
	}
	if !strings.HasSuffix(string(file.data), "---\nbody") {
		t.Errorf("unexpected file contents:\n%s", file.data)
	}
	if len(fake.commits) != 1 || fake.commits[0] != "Create post hello-world" {
		t.Errorf("commits = %v", fake.commits)
	}
}

func TestCreateSkipsExternallyTakenSlug(t *testing.T) {
	fake := newFakeGitHub()
	fake.put("content/posts/launch.md", []byte("---\ntitle: Launch\ncreatedAt: 2026-01-01T00:00:00Z\n---\n"))
	s := newTestStore(t, fake)
	p, err := s.Create(context.Background(), "Launch", "", true)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if p.Slug != "launch-2" {
		t.Fatalf("Slug = %q, want launch-2", p.Slug)
	}
}

func TestReadRetriesOnceThenSucceeds(t *testing.T) {
	fake := newFakeGitHub()
	s := newTestStore(t, fake)
	if _, err := s.Create(context.Background(), "Retry Me", "", true); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	fake.failGets = 1
	if _, err := s.Get(context.Background(), "retry-me"); err != nil {
		t.Fatalf("expected retry to absorb one failure, got %v", err)
	}
}

func TestReadEscalatesToUnavailable(t *testing.T) {
	fake := newFakeGitHub()
	s := newTestStore(t, fake)
	fake.failGets = 2
	_, err := s.Get(context.Background(), "anything")
	if !errors.Is(err, apperr.ErrUnavailable) {
		t.Fatalf("expected Unavailable, got %v", err)
	}
	if !errors.Is(err, apperr.ErrTransient) {
		t.Fatalf("expected transient cause to be kept, got %v", err)
	}
}

func TestUpdateRetriesConflictOnce(t *testing.T) {
	fake := newFakeGitHub()
	s := newTestStore(t, fake)
	ctx := context.Background()
	if _, err := s.Create(ctx, "Busy Post", "v1", true); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	fake.conflictPuts = 1
	body := "v2"
	if _, err := s.Update(ctx, "busy-post", content.Fields{Body: &body}); err != nil {
		t.Fatalf("expected one conflict to be retried, got %v", err)
	}

	fake.conflictPuts = 2
	body = "v3"
	_, err := s.Update(ctx, "busy-post", content.Fields{Body: &body})
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected Conflict, got %v", err)
	}
	got, err := s.Get(ctx, "busy-post")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Body != "v2" {
		t.Fatalf("Body = %q, conflicting write must not land", got.Body)
	}
}

func TestMissingTokenIsConfigurationError(t *testing.T) {
	fake := newFakeGitHub()
	srv := httptest.NewServer(fake)
	defer srv.Close()
	s, err := New(Config{Owner: testOwner, Repo: testRepo, BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx := context.Background()
	if _, err := s.List(ctx); !errors.Is(err, apperr.ErrConfiguration) {
		t.Errorf("List: expected Configuration error, got %v", err)
	}
	if _, err := s.Create(ctx, "Nope", "", true); !errors.Is(err, apperr.ErrConfiguration) {
		t.Errorf("Create: expected Configuration error, got %v", err)
	}
	if fake.requests != 0 {
		t.Errorf("expected no requests without a token, got %d", fake.requests)
	}
}

func TestTokenIsReadPerRequest(t *testing.T) {
	fake := newFakeGitHub()
	srv := httptest.NewServer(fake)
	defer srv.Close()
	var mu sync.Mutex
	token := ""
	s, err := New(Config{
		Owner:   testOwner,
		Repo:    testRepo,
		BaseURL: srv.URL,
		Token: func() string {
			mu.Lock()
			defer mu.Unlock()
			return token
		},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, err := s.List(context.Background()); !errors.Is(err, apperr.ErrConfiguration) {
		t.Fatalf("expected Configuration error, got %v", err)
	}
	mu.Lock()
	token = testToken
	mu.Unlock()
	if _, err := s.List(context.Background()); err != nil {
		t.Fatalf("expected List to succeed once the token is set, got %v", err)
	}
}

func TestTimeoutIsBounded(t *testing.T) {
	fake := newFakeGitHub()
	fake.delay = 500 * time.Millisecond
	srv := httptest.NewServer(fake)
	defer srv.Close()
	s, err := New(Config{
		Owner:   testOwner,
		Repo:    testRepo,
		BaseURL: srv.URL,
		Timeout: 50 * time.Millisecond,
		Token:   func() string { return testToken },
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	start := time.Now()
	_, err = s.Get(context.Background(), "slow")
	if !errors.Is(err, apperr.ErrUnavailable) || !errors.Is(err, apperr.ErrTransient) {
		t.Fatalf("expected Unavailable wrapping Transient, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 400*time.Millisecond {
		t.Fatalf("Get took %v, timeout not applied", elapsed)
	}
}

func TestDeleteMissingIsNotAnError(t *testing.T) {
	s := newTestStore(t, newFakeGitHub())
	deleted, err := s.Delete(context.Background(), "ghost")
	if err != nil || deleted {
		t.Fatalf("Delete = %v, %v; want false, nil", deleted, err)
	}
}
