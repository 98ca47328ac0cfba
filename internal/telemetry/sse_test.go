package telemetry

import (
	"net/http/httptest"
	"testing"
)

func TestStartingCursor_PrefersAfterSeqQueryParam(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/runs/r1/stream?after_seq=5", nil)
	r.Header.Set("Last-Event-ID", "2")
	if got := startingCursor(r); got != 5 {
		t.Fatalf("expected after_seq to win, got %d", got)
	}
}

func TestStartingCursor_FallsBackToLastEventID(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/runs/r1/stream", nil)
	r.Header.Set("Last-Event-ID", "7")
	if got := startingCursor(r); got != 7 {
		t.Fatalf("expected Last-Event-ID fallback, got %d", got)
	}
}

func TestStartingCursor_DefaultsToZero(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/runs/r1/stream", nil)
	if got := startingCursor(r); got != 0 {
		t.Fatalf("expected default 0, got %d", got)
	}
}
