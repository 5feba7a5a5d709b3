package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", Validation("bad", "content", "content required"), http.StatusBadRequest},
		{"not found", ErrNotFound, http.StatusNotFound},
		{"unauthorized", Unauthorized("missing_credential", "no token"), http.StatusUnauthorized},
		{"forbidden", ErrForbidden, http.StatusForbidden},
		{"conflict", ErrCounterUnderflow, http.StatusConflict},
		{"storage", Storage(errors.New("disk full")), http.StatusInternalServerError},
		{"upstream", Upstream(errors.New("smtp down")), http.StatusBadGateway},
		{"plain", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Status(tt.err); got != tt.want {
				t.Errorf("Status() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestIsMatchesWrappedSentinel(t *testing.T) {
	err := fmt.Errorf("accept: %w", ErrForbidden.Wrap(errors.New("coordinator mismatch")))
	if !errors.Is(err, ErrForbidden) {
		t.Fatal("errors.Is should match the sentinel through wrapping")
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatal("errors.Is should not match a different sentinel")
	}
}

func TestPublic(t *testing.T) {
	if Public(Storage(errors.New("x"))) {
		t.Error("storage errors must not be public")
	}
	if !Public(ErrEventClosed) {
		t.Error("state conflicts are public")
	}
}
