package app

import (
	"fmt"

	"github.com/agis/medbook/internal/booking"
	"github.com/agis/medbook/internal/contract"
	"github.com/agis/medbook/internal/format"
	"github.com/agis/medbook/internal/timeparse"
	"github.com/spf13/cobra"
)

const (
	recentAppointments = 5
	dashboardDays      = 7
)

type dashboardView struct {
	Doctor   contract.Doctor   `json:"doctor"`
	Stats    booking.Stats     `json:"stats"`
	GrossETH string            `json:"gross_eth"`
	NetETH   string            `json:"net_eth"`
	Recent   []appointmentView `json:"recent"`
	Week     []daySummary      `json:"week"`
}

func (d dashboardView) PlainLines() []string {
	lines := []string{
		fmt.Sprintf("Dr. %s, %s at %s", d.Doctor.Name, d.Doctor.Specialization, d.Doctor.HospitalName),
		fmt.Sprintf("appointments: %d total, %d scheduled, %d completed, %d cancelled, %d no-show",
			d.Stats.Total, d.Stats.Scheduled, d.Stats.Completed, d.Stats.Cancelled, d.Stats.NoShow),
		fmt.Sprintf("earned: %s ETH gross, ~%s ETH net (%d%%)", d.GrossETH, d.NetETH, booking.DisplayNetPercent),
	}
	if len(d.Recent) > 0 {
		lines = append(lines, "recent:")
		for _, a := range d.Recent {
			lines = append(lines, a.PlainLines()...)
		}
	}
	if len(d.Week) > 0 {
		lines = append(lines, "next 7 days:")
		for _, w := range d.Week {
			lines = append(lines, w.PlainLines()...)
		}
	}
	return lines
}

func newDashboardCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Doctor statistics and recent appointments",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, rt, ro, err := buildContext(cmd, opts, "dashboard")
			if err != nil {
				return err
			}
			defer rt.Close()
			ctx, cancel := commandContext(ro)
			defer cancel()
			role, items, state, err := loadAppointments(ctx, rt)
			if err != nil {
				return fail(p, err)
			}
			if state != nil {
				return successWithMeta(ctx, p, ro, *state, map[string]any{"state": state.State}, nil)
			}
			doctor, ok := role.(booking.DoctorRole)
			if !ok {
				s := pageState{State: stateDoctorsOnly, Message: "The dashboard is only available to doctors."}
				return successWithMeta(ctx, p, ro, s, map[string]any{"state": s.State, "role": role.Kind()}, nil)
			}

			now := nowFunc()
			stats := booking.Summarize(items)
			from := timeparse.StartOfDay(now.In(rt.loc))
			to := from.AddDate(0, 0, dashboardDays-1)
			upcoming := booking.FilterAppointments(items, booking.AppointmentFilter{From: from, To: from.AddDate(0, 0, dashboardDays)})
			view := dashboardView{
				Doctor:   doctor.Profile,
				Stats:    stats,
				GrossETH: format.FormatCurrency(stats.GrossEarned),
				NetETH:   format.FormatCurrency(stats.NetEstimate),
				Recent:   appointmentViews(booking.Recent(items, recentAppointments), role, now, rt.loc),
				Week:     summarizeByDay(upcoming, from, to, rt.loc),
			}
			return successWithMeta(ctx, p, ro, view, map[string]any{"role": role.Kind()}, nil)
		},
	}
}
