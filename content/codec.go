package content

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Extension is the file suffix used for stored posts.
const Extension = ".md"

const fence = "---"

var errNoFrontMatter = errors.New("missing front matter")

type frontMatter struct {
	Title     string    `yaml:"title"`
	CreatedAt time.Time `yaml:"createdAt"`
	UpdatedAt time.Time `yaml:"updatedAt"`
	Published bool      `yaml:"published"`
}

// FileName returns the stored file name for slug.
func FileName(slug string) string {
	return slug + Extension
}

// SlugFromFileName is the inverse of FileName. ok is false for files that
// are not posts.
func SlugFromFileName(name string) (string, bool) {
	if !strings.HasSuffix(name, Extension) {
		return "", false
	}
	s := strings.TrimSuffix(name, Extension)
	return s, s != ""
}

// Encode renders p as YAML front matter followed by the body.
func Encode(p Post) ([]byte, error) {
	meta, err := yaml.Marshal(frontMatter{
		Title:     p.Title,
		CreatedAt: p.CreatedAt.UTC(),
		UpdatedAt: p.UpdatedAt.UTC(),
		Published: p.Published,
	})
	if err != nil {
		return nil, fmt.Errorf("encode front matter: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString(fence + "\n")
	buf.Write(meta)
	buf.WriteString(fence + "\n")
	buf.WriteString(p.Body)
	return buf.Bytes(), nil
}

// Decode parses a stored post. The body is returned byte-exact.
func Decode(slug string, data []byte) (Post, error) {
	header, body, ok := splitFrontMatter(strings.TrimPrefix(string(data), "\ufeff"))
	if !ok {
		return Post{}, fmt.Errorf("decode %s: %w", slug, errNoFrontMatter)
	}
	var meta frontMatter
	if err := yaml.Unmarshal([]byte(header), &meta); err != nil {
		return Post{}, fmt.Errorf("decode %s: %w", slug, err)
	}
	if strings.TrimSpace(meta.Title) == "" {
		return Post{}, fmt.Errorf("decode %s: title is empty", slug)
	}
	if meta.UpdatedAt.IsZero() {
		meta.UpdatedAt = meta.CreatedAt
	}
	return Post{
		Slug:      slug,
		Title:     meta.Title,
		Body:      body,
		CreatedAt: meta.CreatedAt.UTC(),
		UpdatedAt: meta.UpdatedAt.UTC(),
		Published: meta.Published,
	}, nil
}

// splitFrontMatter cuts s into the YAML between the opening and closing
// fence lines and everything after the closing fence.
func splitFrontMatter(s string) (string, string, bool) {
	first, rest, found := strings.Cut(s, "\n")
	if !found || strings.TrimRight(first, "\r") != fence {
		return "", "", false
	}
	pos := 0
	for {
		end := strings.IndexByte(rest[pos:], '\n')
		line := rest[pos:]
		if end >= 0 {
			line = rest[pos : pos+end]
		}
		if strings.TrimRight(line, "\r") == fence {
			if end < 0 {
				return rest[:pos], "", true
			}
			return rest[:pos], rest[pos+end+1:], true
		}
		if end < 0 {
			return "", "", false
		}
		pos += end + 1
	}
}
