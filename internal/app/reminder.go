package app

import (
	"fmt"
	"strings"
	"time"
)

// normalizeReminderOffset parses a reminder lead time. Positive values
// mean "before the appointment".
func normalizeReminderOffset(v string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return 0, err
	}
	if d == 0 {
		return 0, fmt.Errorf("offset must not be zero")
	}
	if d > 0 {
		d = -d
	}
	return d, nil
}

// icsAlarm renders a VALARM block firing offset relative to DTSTART.
func icsAlarm(offset time.Duration, summary string) string {
	var b strings.Builder
	b.WriteString("BEGIN:VALARM\r\n")
	b.WriteString("ACTION:DISPLAY\r\n")
	b.WriteString("TRIGGER:" + icsDuration(offset) + "\r\n")
	b.WriteString("DESCRIPTION:" + escapeICSText(summary) + "\r\n")
	b.WriteString("END:VALARM\r\n")
	return b.String()
}

// icsDuration formats d as an RFC 5545 duration, e.g. -PT30M.
func icsDuration(d time.Duration) string {
	sign := ""
	if d < 0 {
		sign = "-"
		d = -d
	}
	d = d.Truncate(time.Minute)
	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	out := sign + "P"
	if days > 0 {
		out += fmt.Sprintf("%dD", days)
	}
	if d > 0 || days == 0 {
		out += "T"
		if h := d / time.Hour; h > 0 {
			out += fmt.Sprintf("%dH", h)
			d -= h * time.Hour
		}
		out += fmt.Sprintf("%dM", d/time.Minute)
	}
	return out
}
