package app

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDayBounds(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*3600)
	anchor := time.Date(2026, 2, 10, 14, 30, 0, 0, loc)
	start, end := dayBounds(anchor)
	if got, want := start.Format(time.RFC3339), "2026-02-10T00:00:00+02:00"; got != want {
		t.Fatalf("start=%s want=%s", got, want)
	}
	if got, want := end.Format(time.RFC3339), "2026-02-11T00:00:00+02:00"; got != want {
		t.Fatalf("end=%s want=%s", got, want)
	}
}

func TestWeekBoundsMondayStart(t *testing.T) {
	anchor := time.Date(2026, 2, 11, 9, 0, 0, 0, time.UTC) // Wednesday
	start, end := weekBounds(anchor, time.Monday)
	if got, want := start.Format(time.RFC3339), "2026-02-09T00:00:00Z"; got != want {
		t.Fatalf("start=%s want=%s", got, want)
	}
	if got, want := end.Format(time.RFC3339), "2026-02-16T00:00:00Z"; got != want {
		t.Fatalf("end=%s want=%s", got, want)
	}
}

func TestWeekBoundsSundayStart(t *testing.T) {
	anchor := time.Date(2026, 2, 11, 9, 0, 0, 0, time.UTC) // Wednesday
	start, end := weekBounds(anchor, time.Sunday)
	if got, want := start.Format(time.RFC3339), "2026-02-08T00:00:00Z"; got != want {
		t.Fatalf("start=%s want=%s", got, want)
	}
	if got, want := end.Format(time.RFC3339), "2026-02-15T00:00:00Z"; got != want {
		t.Fatalf("end=%s want=%s", got, want)
	}
}

func TestParseWeekStart(t *testing.T) {
	wd, err := parseWeekStart("monday")
	if err != nil || wd != time.Monday {
		t.Fatalf("expected monday, got %v err=%v", wd, err)
	}
	wd, err = parseWeekStart("sun")
	if err != nil || wd != time.Sunday {
		t.Fatalf("expected sunday, got %v err=%v", wd, err)
	}
	if _, err := parseWeekStart("fri"); err == nil {
		t.Fatalf("expected error for invalid week start")
	}
}

func TestEarliestBookableIsTomorrow(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)
	now := time.Date(2026, 3, 2, 23, 30, 0, 0, loc)
	got := earliestBookable(now, loc)
	if want := time.Date(2026, 3, 3, 0, 0, 0, 0, loc); !got.Equal(want) {
		t.Fatalf("earliest=%s want=%s", got, want)
	}
}

func TestOutputModesAreMutuallyExclusive(t *testing.T) {
	h := newHarness(t, common.Address{})
	_, _, code := h.run("specializations", "--json", "--plain")
	assert.Equal(t, exitUsage, code)
}

func TestInvalidContractAddressIsUsageError(t *testing.T) {
	h := newHarness(t, common.Address{})
	_, stderr, code := h.run("doctors", "list", "--contract", "0x123")
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr, "--contract")
}

func TestAppointmentsAlias(t *testing.T) {
	h := newHarness(t, common.Address{}).withoutWallet()
	env, _, code := h.runJSON("appts", "list")
	require.Equal(t, 0, code)
	assert.Equal(t, "appointments.list", env.Command)
}

func TestFieldsProjectionInPlainMode(t *testing.T) {
	h := newHarness(t, common.Address{})
	h.seedDoctor(doctorAddr, "Ada", "Cardiology", eth("0.05"))
	stdout, stderr, code := h.run("doctors", "list", "--plain", "--fields", "name,fee_eth")
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "Ada\t0.0500\n", stdout)
}

func TestUnderscoreFlagNames(t *testing.T) {
	h := newHarness(t, common.Address{})
	_, stderr, code := h.run("doctors", "list", "--rpc_url", "http://127.0.0.1:8545", "--json")
	assert.Equal(t, 0, code, stderr)
}
