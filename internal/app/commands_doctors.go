package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/agis/medbook/internal/backend"
	"github.com/agis/medbook/internal/booking"
	"github.com/agis/medbook/internal/contract"
	"github.com/agis/medbook/internal/timeparse"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// Bookable slots run from 09:00 to 17:30 in 30 minute steps.
const (
	slotFirstHour = 9
	slotLastHour  = 17
	slotStep      = 30 * time.Minute
)

func newDoctorsCmd(opts *globalOptions) *cobra.Command {
	doctors := &cobra.Command{Use: "doctors", Short: "Browse registered doctors"}

	var search, specialization string
	list := &cobra.Command{
		Use:   "list",
		Short: "List active doctors",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, rt, ro, err := buildContext(cmd, opts, "doctors.list")
			if err != nil {
				return err
			}
			defer rt.Close()
			if specialization != "" && !contract.IsSpecialization(specialization) {
				return failWithHint(p, contract.ErrInvalidUsage, fmt.Errorf("unknown specialization: %s", specialization), "Run `medbook specializations` for the accepted values", exitUsage)
			}
			ctx, cancel := commandContext(ro)
			defer cancel()
			all, err := timed(ctx, "contract.active_doctors", rt.store.ListDoctors)
			if err != nil {
				return fail(p, err)
			}
			items := booking.FilterDoctors(all, booking.DoctorFilter{Query: search, Specialization: specialization})
			return successWithMeta(ctx, p, ro, doctorViews(items), map[string]any{"count": len(items), "total": len(all)}, nil)
		},
	}
	list.Flags().StringVar(&search, "search", "", "Match name or hospital (case-insensitive)")
	list.Flags().StringVar(&specialization, "specialization", "", "Exact specialization")

	show := &cobra.Command{
		Use:   "show <address>",
		Short: "Show one doctor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, rt, ro, err := buildContext(cmd, opts, "doctors.show")
			if err != nil {
				return err
			}
			defer rt.Close()
			addr, err := parseAddress(args[0])
			if err != nil {
				return failWithHint(p, contract.ErrInvalidUsage, err, "Pass a 0x-prefixed doctor address", exitUsage)
			}
			ctx, cancel := commandContext(ro)
			defer cancel()
			d, err := timed(ctx, "contract.doctor", func(ctx context.Context) (*contract.Doctor, error) {
				return rt.store.Doctor(ctx, addr)
			})
			if err != nil {
				if errors.Is(err, backend.ErrNoData) {
					return failWithHint(p, contract.ErrNotFound, fmt.Errorf("%w: doctor %s", errNotFound, addr.Hex()), "Run `medbook doctors list`", exitNotFound)
				}
				return fail(p, err)
			}
			return successWithMeta(ctx, p, ro, newDoctorView(*d), nil, nil)
		},
	}

	var dateS string
	slots := &cobra.Command{
		Use:   "slots <address>",
		Short: "Show which bookable times are free for a doctor on a day",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, rt, ro, err := buildContext(cmd, opts, "doctors.slots")
			if err != nil {
				return err
			}
			defer rt.Close()
			addr, err := parseAddress(args[0])
			if err != nil {
				return failWithHint(p, contract.ErrInvalidUsage, err, "Pass a 0x-prefixed doctor address", exitUsage)
			}
			day, err := timeparse.ParseDateTime(dateS, nowFunc(), rt.loc)
			if err != nil {
				return failWithHint(p, contract.ErrInvalidUsage, err, "Use --date as tomorrow, +Nd, or YYYY-MM-DD", exitUsage)
			}
			day = timeparse.StartOfDay(day)
			if day.Before(earliestBookable(nowFunc(), rt.loc)) {
				return fail(p, booking.ErrPastDate)
			}
			ctx, cancel := commandContext(ro)
			defer cancel()
			rows := checkSlots(ctx, rt.store, addr, slotGrid(day))
			free := 0
			for _, r := range rows {
				if r.Available {
					free++
				}
			}
			return successWithMeta(ctx, p, ro, rows, map[string]any{"date": day.Format("2006-01-02"), "count": len(rows), "available": free}, nil)
		},
	}
	slots.Flags().StringVar(&dateS, "date", "tomorrow", "Day to check")

	doctors.AddCommand(list, show, slots)
	return doctors
}

func newSpecializationsCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "specializations",
		Short: "List accepted doctor specializations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, rt, _, err := buildContext(cmd, opts, "specializations")
			if err != nil {
				return err
			}
			defer rt.Close()
			return p.Success(textList(contract.Specializations), map[string]any{"count": len(contract.Specializations)}, nil)
		},
	}
}

// slotGrid lists the bookable start times on day.
func slotGrid(day time.Time) []time.Time {
	start := time.Date(day.Year(), day.Month(), day.Day(), slotFirstHour, 0, 0, 0, day.Location())
	end := time.Date(day.Year(), day.Month(), day.Day(), slotLastHour, 30, 0, 0, day.Location())
	var out []time.Time
	for t := start; !t.After(end); t = t.Add(slotStep) {
		out = append(out, t)
	}
	return out
}

func checkSlots(ctx context.Context, store *booking.Store, doctor common.Address, times []time.Time) []slotView {
	rows := make([]slotView, len(times))
	var g errgroup.Group
	g.SetLimit(6)
	for i, t := range times {
		i, t := i, t
		g.Go(func() error {
			rows[i] = slotView{Time: t, Label: t.Format("15:04"), Available: store.CheckSlot(ctx, doctor, t)}
			return nil
		})
	}
	_ = g.Wait()
	return rows
}

func parseAddress(v string) (common.Address, error) {
	if !common.IsHexAddress(v) {
		return common.Address{}, fmt.Errorf("invalid address: %q", v)
	}
	return common.HexToAddress(v), nil
}
