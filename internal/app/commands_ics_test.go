package app

import (
	"strings"
	"testing"
	"time"

	"github.com/agis/medbook/internal/contract"
	"github.com/ethereum/go-ethereum/common"
)

func icsFixture() []contract.Appointment {
	return []contract.Appointment{
		{
			ID:          7,
			Doctor:      doctorAddr,
			Patient:     patientAddr,
			DateTime:    time.Date(2026, 3, 3, 10, 30, 0, 0, time.UTC),
			Description: "Chest pain; follow-up, bring results",
			Status:      contract.StatusScheduled,
			Fee:         eth("0.05"),
		},
		{
			ID:       8,
			Doctor:   strayAddr,
			Patient:  patientAddr,
			DateTime: time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC),
			Status:   contract.StatusCancelled,
			Fee:      eth("0.1"),
		},
	}
}

func TestBuildICSContainsCalendarAndEvents(t *testing.T) {
	names := map[string]string{doctorAddr.Hex(): "Ada"}
	got := buildICS(icsFixture(), defaultContractAddress, names, testNow, 0)
	for _, want := range []string{
		"BEGIN:VCALENDAR\r\n",
		"UID:medbook-7@0x5fbdb2315678afecb367f032d93f642f64180aa3\r\n",
		"DTSTART:20260303T103000Z\r\n",
		"DTEND:20260303T110000Z\r\n",
		"DTSTAMP:20260302T090000Z\r\n",
		"SUMMARY:Appointment with Ada\r\n",
		"DESCRIPTION:Chest pain\\; follow-up\\, bring results\r\n",
		"X-MEDBOOK-FEE:0.0500 ETH\r\n",
		"SUMMARY:Appointment with 0x90F7...b906\r\n",
		"STATUS:CANCELLED\r\n",
		"END:VCALENDAR\r\n",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("missing %q in ICS:\n%s", want, got)
		}
	}
	if strings.Contains(got, "BEGIN:VALARM") {
		t.Fatalf("no alarm expected without a reminder")
	}
}

func TestBuildICSAlarmOnlyForScheduled(t *testing.T) {
	got := buildICS(icsFixture(), defaultContractAddress, nil, testNow, -2*time.Hour)
	if n := strings.Count(got, "BEGIN:VALARM"); n != 1 {
		t.Fatalf("expected one alarm, got %d", n)
	}
	if !strings.Contains(got, "TRIGGER:-PT2H0M\r\n") {
		t.Fatalf("unexpected trigger in:\n%s", got)
	}
}

func TestBuildICSEmpty(t *testing.T) {
	got := buildICS(nil, common.Address{}.Hex(), nil, testNow, 0)
	if strings.Contains(got, "BEGIN:VEVENT") {
		t.Fatalf("expected no events")
	}
	if !strings.HasPrefix(got, "BEGIN:VCALENDAR\r\n") {
		t.Fatalf("invalid ICS output: %q", got)
	}
}
