package domain

import (
	"testing"
	"time"
)

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	v, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("parse time: %v", err)
	}
	return v
}

func TestSeconds_RoundsUp(t *testing.T) {
	if got := Seconds(50 * time.Second); got != 50 {
		t.Fatalf("expected 50, got %d", got)
	}
	if got := Seconds(49300 * time.Millisecond); got != 50 {
		t.Fatalf("expected 50, got %d", got)
	}
	if got := Seconds(-time.Second); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}
