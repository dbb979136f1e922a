package timeparse

import (
	"testing"
	"time"
)

func TestParseDateTime(t *testing.T) {
	loc := time.UTC
	now := time.Date(2026, 2, 8, 15, 0, 0, 0, loc)

	cases := []struct {
		in   string
		want string
	}{
		{"today", "2026-02-08T00:00:00Z"},
		{"tomorrow", "2026-02-09T00:00:00Z"},
		{"+7d", "2026-02-15T00:00:00Z"},
		{"-1d", "2026-02-07T00:00:00Z"},
		{"2026-02-20", "2026-02-20T00:00:00Z"},
		{"2026-02-20T09:30:00", "2026-02-20T09:30:00Z"},
		{"2026-02-20 14:00", "2026-02-20T14:00:00Z"},
	}

	for _, tc := range cases {
		got, err := ParseDateTime(tc.in, now, loc)
		if err != nil {
			t.Fatalf("ParseDateTime(%q) error: %v", tc.in, err)
		}
		if got.UTC().Format(time.RFC3339) != tc.want {
			t.Fatalf("ParseDateTime(%q) = %s, want %s", tc.in, got.UTC().Format(time.RFC3339), tc.want)
		}
	}
}

func TestParseDateTimeRejectsGarbage(t *testing.T) {
	if _, err := ParseDateTime("next blue moon", time.Now(), time.UTC); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := ParseDateTime("  ", time.Now(), time.UTC); err == nil {
		t.Fatalf("expected error for empty input")
	}
}

func TestCombine(t *testing.T) {
	now := time.Date(2026, 2, 8, 15, 0, 0, 0, time.UTC)
	got, err := Combine("tomorrow", "14:30", now, time.UTC)
	if err != nil {
		t.Fatalf("Combine error: %v", err)
	}
	if want := "2026-02-09T14:30:00Z"; got.Format(time.RFC3339) != want {
		t.Fatalf("Combine = %s, want %s", got.Format(time.RFC3339), want)
	}
	if _, err := Combine("tomorrow", "25:99", now, time.UTC); err == nil {
		t.Fatalf("expected clock error")
	}
}
