package app

import "testing"

func TestBuildVersionString(t *testing.T) {
	SetBuildInfo("v0.3.0", "9f2c1e4", "2026-03-01T08:00:00Z")
	if got, want := BuildVersionString(), "v0.3.0 (9f2c1e4) 2026-03-01T08:00:00Z"; got != want {
		t.Fatalf("BuildVersionString() = %q, want %q", got, want)
	}
	SetBuildInfo("v0.3.1", "", "")
	if got, want := BuildVersionString(), "v0.3.1 (9f2c1e4) 2026-03-01T08:00:00Z"; got != want {
		t.Fatalf("empty fields must keep previous values: got %q want %q", got, want)
	}
}
