package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/agis/medbook/internal/backend"
	"github.com/agis/medbook/internal/booking"
	"github.com/agis/medbook/internal/contract"
	"github.com/agis/medbook/internal/output"
	"github.com/agis/medbook/internal/timeparse"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
)

func newAppointmentsCmd(opts *globalOptions) *cobra.Command {
	appts := &cobra.Command{Use: "appointments", Aliases: []string{"appts"}, Short: "List, book and manage appointments"}
	appts.AddCommand(
		newAppointmentsListCmd(opts),
		newBookCmd(opts),
		newQuickBookCmd(opts),
		newAppointmentActionCmd(opts, appointmentAction{
			use:     "cancel",
			short:   "Cancel a scheduled appointment",
			kinds:   []string{"doctor", "patient"},
			allowed: func(a contract.Appointment, _ booking.Role, now time.Time) bool { return booking.CanCancel(a, now) },
			submit:  (*booking.Store).CancelAppointment,
			message: "Appointment cancelled successfully!",
		}),
		newAppointmentActionCmd(opts, appointmentAction{
			use:     "complete",
			short:   "Mark an appointment as completed (doctors)",
			kinds:   []string{"doctor"},
			allowed: func(a contract.Appointment, r booking.Role, _ time.Time) bool { return booking.CanComplete(a, r) },
			submit:  (*booking.Store).CompleteAppointment,
			message: "Appointment marked as completed!",
		}),
		newAppointmentActionCmd(opts, appointmentAction{
			use:     "no-show",
			short:   "Mark an appointment as a no-show (doctors)",
			kinds:   []string{"doctor"},
			allowed: func(a contract.Appointment, r booking.Role, _ time.Time) bool { return booking.CanComplete(a, r) },
			submit:  (*booking.Store).MarkNoShow,
			message: "Appointment marked as no-show.",
		}),
		newExportCmd(opts),
		newTodayCmd(opts),
		newWeekCmd(opts),
	)
	return appts
}

// loadAppointments connects without prompting and lists the account's
// appointments. A non-nil state means there is nothing to list.
func loadAppointments(ctx context.Context, rt *runtime) (booking.Role, []contract.Appointment, *pageState, error) {
	connected, err := rt.connect(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	if !connected {
		s := connectWalletState()
		return nil, nil, &s, nil
	}
	role := rt.store.ResolveRole(ctx)
	if _, ok := role.(booking.Unregistered); ok {
		s := registerFirstState(rt.session.Account().Hex())
		return role, nil, &s, nil
	}
	items, err := timed(ctx, "contract.appointments", rt.store.ListAppointments)
	if err != nil {
		return role, nil, nil, err
	}
	return role, items, nil, nil
}

func newAppointmentsListCmd(opts *globalOptions) *cobra.Command {
	var statusS, fromS, toS string
	var wheres []string
	var desc, byDay bool
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the connected account's appointments",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, rt, ro, err := buildContext(cmd, opts, "appointments.list")
			if err != nil {
				return err
			}
			defer rt.Close()
			now := nowFunc()
			var f booking.AppointmentFilter
			if statusS != "" {
				st, err := contract.ParseStatus(statusS)
				if err != nil {
					return failWithHint(p, contract.ErrInvalidUsage, err, "Use --status scheduled|completed|cancelled|no-show", exitUsage)
				}
				f.Status = &st
			}
			if fromS != "" {
				if f.From, err = timeparse.ParseDateTime(fromS, now, rt.loc); err != nil {
					return failWithHint(p, contract.ErrInvalidUsage, err, "Use valid --from/--to values", exitUsage)
				}
			}
			if toS != "" {
				if f.To, err = timeparse.ParseDateTime(toS, now, rt.loc); err != nil {
					return failWithHint(p, contract.ErrInvalidUsage, err, "Use valid --from/--to values", exitUsage)
				}
			}
			preds, err := parsePredicates(wheres)
			if err != nil {
				return failWithHint(p, contract.ErrInvalidUsage, err, "Use --where field<op>value, e.g. fee>=0.01 or description~checkup", exitUsage)
			}
			if byDay && (f.From.IsZero() || f.To.IsZero()) {
				return failWithHint(p, contract.ErrInvalidUsage, errors.New("--by-day needs --from and --to"), "", exitUsage)
			}

			ctx, cancel := commandContext(ro)
			defer cancel()
			role, all, state, err := loadAppointments(ctx, rt)
			if err != nil {
				return fail(p, err)
			}
			if state != nil {
				return successWithMeta(ctx, p, ro, *state, map[string]any{"state": state.State}, nil)
			}
			items, err := matcher{now: now, loc: rt.loc}.apply(booking.FilterAppointments(all, f), preds)
			if err != nil {
				return failWithHint(p, contract.ErrInvalidUsage, err, "", exitUsage)
			}
			booking.SortByDateTime(items, desc)
			if limit > 0 && len(items) > limit {
				items = items[:limit]
			}
			meta := map[string]any{"count": len(items), "total": len(all), "role": role.Kind()}
			if byDay {
				return successWithMeta(ctx, p, ro, summarizeByDay(items, f.From, f.To, rt.loc), meta, nil)
			}
			return successWithMeta(ctx, p, ro, appointmentViews(items, role, now, rt.loc), meta, nil)
		},
	}
	cmd.Flags().StringVar(&statusS, "status", "", "Only this status")
	cmd.Flags().StringVar(&fromS, "from", "", "Range start")
	cmd.Flags().StringVar(&toS, "to", "", "Range end (exclusive)")
	cmd.Flags().StringArrayVar(&wheres, "where", nil, "Filter predicate field<op>value (repeatable); fields: id, status, doctor, patient, description, fee, at")
	cmd.Flags().BoolVar(&desc, "desc", false, "Newest first")
	cmd.Flags().BoolVar(&byDay, "by-day", false, "Print per-day counts instead of appointments")
	cmd.Flags().IntVar(&limit, "limit", 0, "Limit appointments printed")
	return cmd
}

// earliestBookable is the start of tomorrow in loc.
func earliestBookable(now time.Time, loc *time.Location) time.Time {
	return timeparse.StartOfDay(now.In(loc)).AddDate(0, 0, 1)
}

func newBookCmd(opts *globalOptions) *cobra.Command {
	var doctorS, atS, reason string
	cmd := &cobra.Command{
		Use:   "book",
		Short: "Book an appointment with a doctor, paying their consultation fee",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, rt, ro, err := buildContext(cmd, opts, "appointments.book")
			if err != nil {
				return err
			}
			defer rt.Close()
			doctor, err := parseAddress(doctorS)
			if err != nil {
				return failWithHint(p, contract.ErrInvalidUsage, err, "Pass --doctor with a 0x-prefixed address", exitUsage)
			}
			at, err := parseAppointmentTime(atS, nowFunc(), rt.loc)
			if err != nil {
				return failWithHint(p, contract.ErrInvalidUsage, err, "Use --at like 2026-03-01T10:30 or 'tomorrow 10:30'", exitUsage)
			}
			return submitBooking(p, rt, ro, quickBooking{Doctor: doctor, At: at, Reason: reason})
		},
	}
	cmd.Flags().StringVar(&doctorS, "doctor", "", "Doctor address")
	cmd.Flags().StringVar(&atS, "at", "", "Appointment date and time")
	cmd.Flags().StringVar(&reason, "reason", "", "Reason for the visit")
	return cmd
}

func newQuickBookCmd(opts *globalOptions) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "quick-book <text>",
		Short: "Book from one line of text: <day> <HH:MM> <doctor> <reason>",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, rt, ro, err := buildContext(cmd, opts, "appointments.quick-book")
			if err != nil {
				return err
			}
			defer rt.Close()
			in, err := parseQuickBook(args[0], nowFunc(), rt.loc)
			if err != nil {
				return failWithHint(p, contract.ErrInvalidUsage, err, `Example: medbook appointments quick-book "tomorrow 10:30 0x70997970C51812dc3A010C7d01b50e0d17dc79C8 Annual checkup"`, exitUsage)
			}
			if dryRun {
				return p.Success(in, map[string]any{"dry_run": true}, nil)
			}
			return submitBooking(p, rt, ro, in)
		},
	}
	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "Preview without booking")
	return cmd
}

// submitBooking rejects bad input before any network call, then pays the
// doctor's current consultation fee.
func submitBooking(p output.Printer, rt *runtime, ro *globalOptions, in quickBooking) error {
	if strings.TrimSpace(in.Reason) == "" {
		return fail(p, &booking.ValidationError{Fields: map[string]string{"Description": "Description is required"}})
	}
	if in.At.Before(earliestBookable(nowFunc(), rt.loc)) {
		return fail(p, booking.ErrPastDate)
	}

	ctx, cancel := writeContext()
	defer cancel()
	if _, err := rt.requireRole(ctx, "patient"); err != nil {
		return fail(p, err)
	}
	d, err := rt.store.Doctor(ctx, in.Doctor)
	if err != nil {
		if errors.Is(err, backend.ErrNoData) {
			return failWithHint(p, contract.ErrNotFound, fmt.Errorf("%w: doctor %s", errNotFound, in.Doctor.Hex()), "Run `medbook doctors list`", exitNotFound)
		}
		return fail(p, err)
	}
	if !d.IsActive {
		return failWithHint(p, contract.ErrInvalidUsage, fmt.Errorf("doctor %s is not accepting appointments", d.Name), "Run `medbook doctors list`", exitUsage)
	}
	if !rt.store.CheckSlot(ctx, in.Doctor, in.At) {
		return failWithHint(p, contract.ErrInvalidUsage, errors.New("time slot not available"), fmt.Sprintf("Run `medbook doctors slots %s --date %s`", in.Doctor.Hex(), in.At.Format("2006-01-02")), exitUsage)
	}

	res, err := rt.store.BookAppointment(ctx, booking.BookRequest{
		Doctor:      in.Doctor,
		DateTime:    in.At,
		Description: in.Reason,
		Fee:         d.ConsultationFee,
	})
	if err != nil {
		return fail(p, err)
	}
	view := newTxView(res, "Appointment booked successfully!")
	if a, ok := findBooked(rt.store.Appointments(), in.Doctor, in.At); ok {
		av := newAppointmentView(a, rt.store.Role(), nowFunc(), rt.loc)
		view.Appointment = &av
	}
	return successWithMeta(ctx, p, ro, view, nil, nil)
}

// findBooked picks the newest appointment with doctor at t.
func findBooked(list []contract.Appointment, doctor common.Address, t time.Time) (contract.Appointment, bool) {
	var found contract.Appointment
	ok := false
	for _, a := range list {
		if a.Doctor != doctor || !a.DateTime.Equal(t.Truncate(time.Second)) {
			continue
		}
		if !ok || a.ID > found.ID {
			found, ok = a, true
		}
	}
	return found, ok
}

type appointmentAction struct {
	use     string
	short   string
	kinds   []string
	allowed func(contract.Appointment, booking.Role, time.Time) bool
	submit  func(*booking.Store, context.Context, uint64) (*booking.Result, error)
	message string
}

func newAppointmentActionCmd(opts *globalOptions, act appointmentAction) *cobra.Command {
	return &cobra.Command{
		Use:   act.use + " <id>",
		Short: act.short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, rt, ro, err := buildContext(cmd, opts, "appointments."+act.use)
			if err != nil {
				return err
			}
			defer rt.Close()
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil || id == 0 {
				return failWithHint(p, contract.ErrInvalidUsage, fmt.Errorf("invalid appointment id: %q", args[0]), "Ids are shown by `medbook appointments list`", exitUsage)
			}
			ctx, cancel := writeContext()
			defer cancel()
			role, err := rt.requireRole(ctx, act.kinds...)
			if err != nil {
				return fail(p, err)
			}
			items, err := rt.store.ListAppointments(ctx)
			if err != nil {
				return fail(p, err)
			}
			a, ok := findAppointment(items, id)
			if !ok {
				return fail(p, fmt.Errorf("%w: appointment #%d", errNotFound, id))
			}
			if !act.allowed(a, role, nowFunc()) {
				return failWithHint(p, contract.ErrInvalidUsage, fmt.Errorf("appointment #%d cannot be changed: it is %s", id, a.Status), "", exitUsage)
			}
			res, err := act.submit(rt.store, ctx, id)
			if err != nil {
				return fail(p, err)
			}
			view := newTxView(res, act.message)
			if a, ok := findAppointment(rt.store.Appointments(), id); ok {
				av := newAppointmentView(a, role, nowFunc(), rt.loc)
				view.Appointment = &av
			}
			return successWithMeta(ctx, p, ro, view, map[string]any{"id": id}, nil)
		},
	}
}

func findAppointment(list []contract.Appointment, id uint64) (contract.Appointment, bool) {
	for _, a := range list {
		if a.ID == id {
			return a, true
		}
	}
	return contract.Appointment{}, false
}

func newExportCmd(opts *globalOptions) *cobra.Command {
	var fromS, toS, outPath, remindS string
	var includeCancelled bool
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export appointments to ICS",
		RunE: func(c *cobra.Command, _ []string) error {
			p, rt, ro, err := buildContext(c, opts, "appointments.export")
			if err != nil {
				return err
			}
			defer rt.Close()
			now := nowFunc()
			var f booking.AppointmentFilter
			if fromS != "" {
				if f.From, err = timeparse.ParseDateTime(fromS, now, rt.loc); err != nil {
					return failWithHint(p, contract.ErrInvalidUsage, err, "Use valid --from/--to values", exitUsage)
				}
			}
			if toS != "" {
				if f.To, err = timeparse.ParseDateTime(toS, now, rt.loc); err != nil {
					return failWithHint(p, contract.ErrInvalidUsage, err, "Use valid --from/--to values", exitUsage)
				}
			}
			var reminder time.Duration
			if remindS != "" {
				if reminder, err = normalizeReminderOffset(remindS); err != nil {
					return failWithHint(p, contract.ErrInvalidUsage, err, "Use --remind like 30m or 2h", exitUsage)
				}
			}
			ctx, cancel := commandContext(ro)
			defer cancel()
			_, all, state, err := loadAppointments(ctx, rt)
			if err != nil {
				return fail(p, err)
			}
			if state != nil {
				return successWithMeta(ctx, p, ro, *state, map[string]any{"state": state.State}, nil)
			}
			items := booking.FilterAppointments(all, f)
			if !includeCancelled {
				kept := items[:0]
				for _, a := range items {
					if a.Status != contract.StatusCancelled {
						kept = append(kept, a)
					}
				}
				items = kept
			}
			booking.SortByDateTime(items, false)

			var warnings []string
			names := map[string]string{}
			doctors, err := timed(ctx, "contract.active_doctors", rt.store.ListDoctors)
			if err != nil {
				warnings = append(warnings, "doctor names unavailable: "+err.Error())
			}
			for _, d := range doctors {
				names[d.Address.Hex()] = d.Name
			}

			ics := buildICS(items, rt.contract.Hex(), names, now, reminder)
			meta := map[string]any{"count": len(items)}
			if strings.TrimSpace(outPath) != "" {
				if err := os.WriteFile(outPath, []byte(ics), 0o644); err != nil {
					return failWithHint(p, contract.ErrGeneric, err, "Check destination path permissions", exitGeneric)
				}
				return successWithMeta(ctx, p, ro, map[string]any{"path": outPath, "appointments": len(items)}, meta, warnings)
			}
			if m := p.EffectiveSuccessMode(); m == output.ModeJSON || m == output.ModeJSONL {
				return successWithMeta(ctx, p, ro, map[string]any{"ics": ics, "appointments": len(items)}, meta, warnings)
			}
			_, _ = fmt.Fprint(c.OutOrStdout(), ics)
			return nil
		},
	}
	cmd.Flags().StringVar(&fromS, "from", "", "Range start")
	cmd.Flags().StringVar(&toS, "to", "", "Range end (exclusive)")
	cmd.Flags().BoolVar(&includeCancelled, "include-cancelled", false, "Keep cancelled appointments as STATUS:CANCELLED")
	cmd.Flags().StringVar(&remindS, "remind", "", "Add an alarm this long before each scheduled appointment")
	cmd.Flags().StringVar(&outPath, "out", "", "Output file path (default stdout)")
	return cmd
}
