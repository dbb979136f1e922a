package booking

import (
	"sort"
	"strings"
	"time"

	"github.com/agis/medbook/internal/contract"
)

type DoctorFilter struct {
	Query          string
	Specialization string
}

// FilterDoctors matches Query case-insensitively against name or hospital
// and Specialization exactly. Empty fields match everything.
func FilterDoctors(list []contract.Doctor, f DoctorFilter) []contract.Doctor {
	q := strings.ToLower(strings.TrimSpace(f.Query))
	out := make([]contract.Doctor, 0, len(list))
	for _, d := range list {
		if f.Specialization != "" && d.Specialization != f.Specialization {
			continue
		}
		if q != "" &&
			!strings.Contains(strings.ToLower(d.Name), q) &&
			!strings.Contains(strings.ToLower(d.HospitalName), q) {
			continue
		}
		out = append(out, d)
	}
	return out
}

type AppointmentFilter struct {
	Status *contract.AppointmentStatus
	From   time.Time
	To     time.Time
}

func FilterAppointments(list []contract.Appointment, f AppointmentFilter) []contract.Appointment {
	out := make([]contract.Appointment, 0, len(list))
	for _, a := range list {
		if f.Status != nil && a.Status != *f.Status {
			continue
		}
		if !f.From.IsZero() && a.DateTime.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && !a.DateTime.Before(f.To) {
			continue
		}
		out = append(out, a)
	}
	return out
}

// SortByDateTime orders appointments by scheduled time, newest first when
// desc is set. Ties fall back to id.
func SortByDateTime(list []contract.Appointment, desc bool) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.DateTime.Equal(b.DateTime) {
			if desc {
				return a.ID > b.ID
			}
			return a.ID < b.ID
		}
		if desc {
			return a.DateTime.After(b.DateTime)
		}
		return a.DateTime.Before(b.DateTime)
	})
}

// CanCancel reports whether the cancel action should be offered. The
// contract decides whether it is actually allowed.
func CanCancel(a contract.Appointment, now time.Time) bool {
	return a.Status == contract.StatusScheduled && a.DateTime.After(now)
}

// CanComplete reports whether the complete and no-show actions should be
// offered to role.
func CanComplete(a contract.Appointment, r Role) bool {
	d, ok := r.(DoctorRole)
	return ok && a.Status == contract.StatusScheduled && a.Doctor == d.Profile.Address
}
