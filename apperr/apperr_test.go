package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestIsMatchesByKind(t *testing.T) {
	err := fmt.Errorf("load post: %w", NotFound("post not found"))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected wrapped error to match ErrNotFound")
	}
	if errors.Is(err, ErrConflict) {
		t.Fatalf("did not expect NotFound to match ErrConflict")
	}
}

func TestKindOfForeignError(t *testing.T) {
	if got := KindOf(errors.New("boom")); got != KindInternal {
		t.Fatalf("KindOf = %q, want %q", got, KindInternal)
	}
	if got := KindOf(Wrap(KindTransient, "fetch", errors.New("reset"))); got != KindTransient {
		t.Fatalf("KindOf = %q, want %q", got, KindTransient)
	}
}

func TestErrorMessageIncludesCause(t *testing.T) {
	err := Wrap(KindUnavailable, "content backend unavailable", errors.New("dial tcp: timeout"))
	if got := err.Error(); got != "content backend unavailable: dial tcp: timeout" {
		t.Fatalf("Error() = %q", got)
	}
	if MessageOf(err) != "content backend unavailable" {
		t.Fatalf("MessageOf = %q", MessageOf(err))
	}
}

func TestStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindValidation, http.StatusBadRequest},
		{KindUnauthorized, http.StatusUnauthorized},
		{KindNotFound, http.StatusNotFound},
		{KindConflict, http.StatusConflict},
		{KindTransient, http.StatusServiceUnavailable},
		{KindUnavailable, http.StatusServiceUnavailable},
		{KindConfiguration, http.StatusInternalServerError},
		{KindInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := Status(tt.kind); got != tt.want {
			t.Errorf("Status(%q) = %d, want %d", tt.kind, got, tt.want)
		}
	}
}
