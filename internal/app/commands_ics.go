package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/agis/medbook/internal/contract"
	"github.com/agis/medbook/internal/format"
)

// appointmentLength is the calendar block written for each appointment.
const appointmentLength = 30 * time.Minute

// buildICS renders appointments as an iCalendar feed. Cancelled
// appointments are kept with STATUS:CANCELLED.
// A non-zero reminder adds a VALARM to scheduled appointments.
func buildICS(items []contract.Appointment, contractAddr string, doctorNames map[string]string, now time.Time, reminder time.Duration) string {
	var b strings.Builder
	b.WriteString("BEGIN:VCALENDAR\r\n")
	b.WriteString("VERSION:2.0\r\n")
	b.WriteString("PRODID:-//medbook//EN\r\n")
	b.WriteString("CALSCALE:GREGORIAN\r\n")
	stamp := now.UTC().Format("20060102T150405Z")
	for _, a := range items {
		b.WriteString("BEGIN:VEVENT\r\n")
		b.WriteString(fmt.Sprintf("UID:medbook-%d@%s\r\n", a.ID, strings.ToLower(contractAddr)))
		b.WriteString("DTSTAMP:" + stamp + "\r\n")
		b.WriteString("DTSTART:" + a.DateTime.UTC().Format("20060102T150405Z") + "\r\n")
		b.WriteString("DTEND:" + a.DateTime.Add(appointmentLength).UTC().Format("20060102T150405Z") + "\r\n")
		doctor := doctorNames[a.Doctor.Hex()]
		if doctor == "" {
			doctor = format.FormatAddress(a.Doctor.Hex())
		}
		summary := "Appointment with " + doctor
		b.WriteString("SUMMARY:" + escapeICSText(summary) + "\r\n")
		if strings.TrimSpace(a.Description) != "" {
			b.WriteString("DESCRIPTION:" + escapeICSText(a.Description) + "\r\n")
		}
		b.WriteString("STATUS:" + icsStatus(a.Status) + "\r\n")
		b.WriteString(fmt.Sprintf("X-MEDBOOK-FEE:%s ETH\r\n", format.FormatCurrency(a.Fee)))
		b.WriteString("X-MEDBOOK-STATE:" + a.Status.String() + "\r\n")
		if reminder != 0 && a.Status == contract.StatusScheduled {
			b.WriteString(icsAlarm(reminder, summary))
		}
		b.WriteString("END:VEVENT\r\n")
	}
	b.WriteString("END:VCALENDAR\r\n")
	return b.String()
}

func icsStatus(s contract.AppointmentStatus) string {
	if s == contract.StatusCancelled {
		return "CANCELLED"
	}
	return "CONFIRMED"
}

func escapeICSText(v string) string {
	replacer := strings.NewReplacer("\\", "\\\\", ";", "\\;", ",", "\\,", "\n", "\\n", "\r", "")
	return replacer.Replace(v)
}
