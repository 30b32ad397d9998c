package timeutil

import (
	"testing"
	"time"
)

func TestParseWindowDefault(t *testing.T) {
	dur, label, err := ParseWindow("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := 7 * 24 * time.Hour
	if dur != want {
		t.Fatalf("expected %v, got %v", want, dur)
	}
	if label != "1w" {
		t.Fatalf("expected label 1w, got %s", label)
	}
}

func TestParseWindowComposite(t *testing.T) {
	dur, label, err := ParseWindow("1w2d6h30m")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := (7*24+2*24+6)*time.Hour + 30*time.Minute
	if dur != want {
		t.Fatalf("expected %v, got %v", want, dur)
	}
	if label != "1w2d6h30m" {
		t.Fatalf("unexpected label: %s", label)
	}
}

func TestParseWindowInvalid(t *testing.T) {
	if _, _, err := ParseWindow("noop"); err == nil {
		t.Fatalf("expected error for invalid window")
	}
}

func TestRange(t *testing.T) {
	loc := time.FixedZone("shop", 2*60*60)
	now := time.Date(2025, 5, 10, 15, 30, 0, 0, loc)

	tests := []struct {
		spec  string
		since time.Time
		until time.Time
		label string
	}{
		{"", now.Add(-7 * 24 * time.Hour), now, "last 1w"},
		{"3d", now.Add(-3 * 24 * time.Hour), now, "last 3d"},
		{"today", time.Date(2025, 5, 10, 0, 0, 0, 0, loc), now, "today"},
		{"2025-05-01", time.Date(2025, 5, 1, 0, 0, 0, 0, loc), now, "since 2025-05-01"},
		{"2025-05-01..2025-05-02",
			time.Date(2025, 5, 1, 0, 0, 0, 0, loc),
			time.Date(2025, 5, 2, 23, 59, 59, 999999999, loc),
			"2025-05-01..2025-05-02"},
	}
	for _, tt := range tests {
		since, until, label, err := Range(tt.spec, now)
		if err != nil {
			t.Fatalf("%q: unexpected error: %v", tt.spec, err)
		}
		if !since.Equal(tt.since) || !until.Equal(tt.until) || label != tt.label {
			t.Fatalf("%q: got %v..%v %q", tt.spec, since, until, label)
		}
	}

	if _, _, _, err := Range("2025-05-01..soon", now); err == nil {
		t.Fatal("expected error for bad end date")
	}
}
