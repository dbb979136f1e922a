package app

import (
	"fmt"
	"time"

	"github.com/agis/medbook/internal/contract"
	"github.com/agis/medbook/internal/timeparse"
)

type daySummary struct {
	Date      string `json:"date"`
	Total     int    `json:"total"`
	Scheduled int    `json:"scheduled"`
	Closed    int    `json:"closed"`
}

// summarizeByDay buckets appointments per calendar day in loc, emitting a
// row for every day in [from, to] including empty ones.
func summarizeByDay(appts []contract.Appointment, from, to time.Time, loc *time.Location) []daySummary {
	if to.Before(from) {
		return nil
	}
	buckets := map[string]*daySummary{}
	for _, a := range appts {
		day := a.DateTime.In(loc).Format("2006-01-02")
		row, ok := buckets[day]
		if !ok {
			row = &daySummary{Date: day}
			buckets[day] = row
		}
		row.Total++
		if a.Status == contract.StatusScheduled {
			row.Scheduled++
		} else {
			row.Closed++
		}
	}

	start := timeparse.StartOfDay(from.In(loc))
	end := timeparse.StartOfDay(to.In(loc))
	rows := make([]daySummary, 0, int(end.Sub(start)/(24*time.Hour))+1)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		key := d.Format("2006-01-02")
		if row, ok := buckets[key]; ok {
			rows = append(rows, *row)
			continue
		}
		rows = append(rows, daySummary{Date: key})
	}
	return rows
}

func (d daySummary) PlainLines() []string {
	return []string{fmt.Sprintf("%s\t%d total\t%d scheduled\t%d closed", d.Date, d.Total, d.Scheduled, d.Closed)}
}
