package app

import (
	"strings"
	"testing"
	"time"
)

func TestNormalizeReminderOffset(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{in: "30m", want: -30 * time.Minute},
		{in: "-15m", want: -15 * time.Minute},
		{in: " 2h ", want: -2 * time.Hour},
		{in: "0s", wantErr: true},
		{in: "soon", wantErr: true},
	}
	for _, tc := range tests {
		got, err := normalizeReminderOffset(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("normalizeReminderOffset(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("normalizeReminderOffset(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("normalizeReminderOffset(%q): got=%s want=%s", tc.in, got, tc.want)
		}
	}
}

func TestICSDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{-30 * time.Minute, "-PT30M"},
		{-time.Hour, "-PT1H0M"},
		{-24 * time.Hour, "-P1D"},
		{-26 * time.Hour, "-P1DT2H0M"},
		{15 * time.Minute, "PT15M"},
		{-time.Hour - 90*time.Second, "-PT1H1M"},
	}
	for _, tc := range tests {
		if got := icsDuration(tc.in); got != tc.want {
			t.Fatalf("icsDuration(%s): got=%q want=%q", tc.in, got, tc.want)
		}
	}
}

func TestICSAlarm(t *testing.T) {
	got := icsAlarm(-30*time.Minute, "Appointment with Ada, Cardiology")
	want := "BEGIN:VALARM\r\nACTION:DISPLAY\r\nTRIGGER:-PT30M\r\nDESCRIPTION:Appointment with Ada\\, Cardiology\r\nEND:VALARM\r\n"
	if got != want {
		t.Fatalf("unexpected alarm:\n%q\nwant:\n%q", got, want)
	}
	if !strings.HasSuffix(got, "\r\n") {
		t.Fatalf("alarm must end with CRLF")
	}
}
