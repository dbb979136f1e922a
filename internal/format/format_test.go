package format

import (
	"math/big"
	"testing"
	"time"
)

func TestFormatCurrency(t *testing.T) {
	oneEth := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	cases := []struct {
		in   *big.Int
		want string
	}{
		{nil, "0"},
		{big.NewInt(0), "0"},
		{oneEth, "1.0000"},
		{new(big.Int).Div(oneEth, big.NewInt(20)), "0.0500"},
		{new(big.Int).Mul(oneEth, big.NewInt(12)), "12.0000"},
	}
	for _, tc := range cases {
		if got := FormatCurrency(tc.in); got != tc.want {
			t.Fatalf("FormatCurrency(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestParseCurrency(t *testing.T) {
	got, err := ParseCurrency("0.05")
	if err != nil {
		t.Fatalf("ParseCurrency error: %v", err)
	}
	if want := big.NewInt(50_000_000_000_000_000); got.Cmp(want) != 0 {
		t.Fatalf("got %s, want %s", got, want)
	}
	if _, err := ParseCurrency("-1"); err != ErrNegativeAmount {
		t.Fatalf("expected ErrNegativeAmount, got %v", err)
	}
	if _, err := ParseCurrency("0.0000000000000000001"); err != ErrTooPrecise {
		t.Fatalf("expected ErrTooPrecise, got %v", err)
	}
	if _, err := ParseCurrency("abc"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestFormatAddress(t *testing.T) {
	if got := FormatAddress("0x5fbdb2315678afecb367f032d93f642f64180aa3"); got != "0x5FbD...0aa3" {
		t.Fatalf("unexpected short address: %q", got)
	}
	if got := FormatAddress(""); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
	if got := FormatAddress("0x12"); got != "0x12" {
		t.Fatalf("expected passthrough, got %q", got)
	}
}

func TestUnixRoundTrip(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*3600)
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, loc)
	ts, err := ToUnix("2026-03-14T09:30:00", now, loc)
	if err != nil {
		t.Fatalf("ToUnix error: %v", err)
	}
	back := FromUnix(ts, loc)
	if back.Format("2006-01-02 15:04") != "2026-03-14 09:30" {
		t.Fatalf("round trip mismatch: %s", back)
	}
	if got := FormatDate(ts, loc); got != "Sat, Mar 14, 2026, 09:30 AM" {
		t.Fatalf("FormatDate = %q", got)
	}
	if FormatDate(0, loc) != "" {
		t.Fatalf("zero timestamp should render empty")
	}
}

func TestRelative(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	if got := Relative(now.Add(72*time.Hour), now); got != "3 days from now" {
		t.Fatalf("Relative = %q", got)
	}
	if Relative(time.Time{}, now) != "" {
		t.Fatalf("zero time should render empty")
	}
}

func TestExactCurrencyRoundTrip(t *testing.T) {
	for _, wei := range []*big.Int{big.NewInt(1), big.NewInt(50_000_000_000_000), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)} {
		back, err := ParseCurrency(ExactCurrency(wei))
		if err != nil {
			t.Fatalf("parse %s: %v", ExactCurrency(wei), err)
		}
		if back.Cmp(wei) != 0 {
			t.Fatalf("round trip changed %s to %s", wei, back)
		}
	}
}
