//go:build windows

package window

import (
	"errors"
	"testing"
)

func TestUser32MissingWindow(t *testing.T) {
	if err := user32Control("activate", "no such window 7f3c2e"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
