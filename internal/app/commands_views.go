package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/agis/medbook/internal/booking"
	"github.com/agis/medbook/internal/contract"
	"github.com/agis/medbook/internal/timeparse"
	"github.com/spf13/cobra"
)

// rangeView lists the account's appointments in one window around an
// anchor day.
type rangeView struct {
	use    string
	short  string
	flag   string
	view   string
	bounds func(anchor time.Time, weekStart time.Weekday) (time.Time, time.Time)
}

func newTodayCmd(opts *globalOptions) *cobra.Command {
	return newRangeViewCmd(opts, rangeView{
		use: "today", short: "Appointments for a day (defaults to today)", flag: "day", view: "day",
		bounds: func(anchor time.Time, _ time.Weekday) (time.Time, time.Time) { return dayBounds(anchor) },
	})
}

func newWeekCmd(opts *globalOptions) *cobra.Command {
	return newRangeViewCmd(opts, rangeView{
		use: "week", short: "Appointments for a week", flag: "of", view: "week",
		bounds: weekBounds,
	})
}

func newRangeViewCmd(opts *globalOptions, rv rangeView) *cobra.Command {
	var anchorS, weekStartS string
	var summary bool
	cmd := &cobra.Command{
		Use:   rv.use,
		Short: rv.short,
		RunE: func(c *cobra.Command, _ []string) error {
			p, rt, ro, err := buildContext(c, opts, "appointments."+rv.use)
			if err != nil {
				return err
			}
			defer rt.Close()
			now := nowFunc()
			anchor, err := timeparse.ParseDateTime(anchorS, now, rt.loc)
			if err != nil {
				return failWithHint(p, contract.ErrInvalidUsage, err, fmt.Sprintf("Use --%s as today, tomorrow, +Nd, or YYYY-MM-DD", rv.flag), exitUsage)
			}
			ws, err := parseWeekStart(weekStartS)
			if err != nil {
				return failWithHint(p, contract.ErrInvalidUsage, err, "Use --week-start monday|sunday", exitUsage)
			}
			start, end := rv.bounds(anchor, ws)

			ctx, cancel := commandContext(ro)
			defer cancel()
			role, all, state, err := loadAppointments(ctx, rt)
			if err != nil {
				return fail(p, err)
			}
			if state != nil {
				return successWithMeta(ctx, p, ro, *state, map[string]any{"state": state.State}, nil)
			}
			items := booking.FilterAppointments(all, booking.AppointmentFilter{From: start, To: end})
			booking.SortByDateTime(items, false)
			meta := map[string]any{"view": rv.view, "from": start.Format("2006-01-02"), "to": end.AddDate(0, 0, -1).Format("2006-01-02")}
			if summary {
				rows := summarizeByDay(items, start, end.AddDate(0, 0, -1), rt.loc)
				meta["count"] = len(rows)
				meta["summary"] = true
				return successWithMeta(ctx, p, ro, rows, meta, nil)
			}
			meta["count"] = len(items)
			return successWithMeta(ctx, p, ro, appointmentViews(items, role, now, rt.loc), meta, nil)
		},
	}
	cmd.Flags().StringVar(&anchorS, rv.flag, "today", "Day selector")
	cmd.Flags().StringVar(&weekStartS, "week-start", "monday", "Week start day: monday|sunday")
	cmd.Flags().BoolVar(&summary, "summary", false, "Group by day with counts")
	return cmd
}

// dayBounds returns [start of day, start of next day).
func dayBounds(t time.Time) (time.Time, time.Time) {
	start := timeparse.StartOfDay(t)
	return start, start.AddDate(0, 0, 1)
}

func weekBounds(t time.Time, weekStart time.Weekday) (time.Time, time.Time) {
	start := timeparse.StartOfDay(t)
	offset := (int(start.Weekday()) - int(weekStart) + 7) % 7
	start = start.AddDate(0, 0, -offset)
	return start, start.AddDate(0, 0, 7)
}

func parseWeekStart(v string) (time.Weekday, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "monday", "mon":
		return time.Monday, nil
	case "sunday", "sun":
		return time.Sunday, nil
	default:
		return time.Monday, fmt.Errorf("invalid week start: %s", v)
	}
}
