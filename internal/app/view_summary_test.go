package app

import (
	"testing"
	"time"

	"github.com/agis/medbook/internal/contract"
)

func TestSummarizeByDay(t *testing.T) {
	loc := time.UTC
	from := time.Date(2026, 3, 2, 0, 0, 0, 0, loc)
	to := time.Date(2026, 3, 4, 0, 0, 0, 0, loc)
	appts := []contract.Appointment{
		{DateTime: time.Date(2026, 3, 2, 10, 0, 0, 0, loc), Status: contract.StatusScheduled},
		{DateTime: time.Date(2026, 3, 2, 12, 0, 0, 0, loc), Status: contract.StatusCompleted},
		{DateTime: time.Date(2026, 3, 4, 9, 0, 0, 0, loc), Status: contract.StatusCancelled},
	}
	rows := summarizeByDay(appts, from, to, loc)
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[0].Date != "2026-03-02" || rows[0].Total != 2 || rows[0].Scheduled != 1 || rows[0].Closed != 1 {
		t.Fatalf("unexpected day 1 summary: %+v", rows[0])
	}
	if rows[1].Date != "2026-03-03" || rows[1].Total != 0 {
		t.Fatalf("unexpected day 2 summary: %+v", rows[1])
	}
	if rows[2].Date != "2026-03-04" || rows[2].Total != 1 || rows[2].Closed != 1 {
		t.Fatalf("unexpected day 3 summary: %+v", rows[2])
	}
	if got := rows[0].PlainLines()[0]; got != "2026-03-02\t2 total\t1 scheduled\t1 closed" {
		t.Fatalf("unexpected plain line: %q", got)
	}
}

func TestSummarizeByDayUsesLocation(t *testing.T) {
	athens := time.FixedZone("EET", 2*3600)
	from := time.Date(2026, 3, 3, 0, 0, 0, 0, athens)
	// 23:00 UTC on the 2nd is already the 3rd in Athens.
	appts := []contract.Appointment{{DateTime: time.Date(2026, 3, 2, 23, 0, 0, 0, time.UTC)}}
	rows := summarizeByDay(appts, from, from, athens)
	if len(rows) != 1 || rows[0].Total != 1 {
		t.Fatalf("expected the appointment on 2026-03-03, got %+v", rows)
	}
}

func TestSummarizeByDayEmptyRange(t *testing.T) {
	from := time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)
	if rows := summarizeByDay(nil, from, from.AddDate(0, 0, -1), time.UTC); rows != nil {
		t.Fatalf("expected nil for inverted range, got %+v", rows)
	}
}
