package app

import (
	"context"
	"fmt"
	"strconv"

	"github.com/agis/medbook/internal/booking"
	"github.com/agis/medbook/internal/contract"
	"github.com/agis/medbook/internal/format"
	"github.com/spf13/cobra"
)

const maxPlatformFeePercent = 100

type platformView struct {
	contract.PlatformInfo
	IsOwner bool `json:"is_owner"`
}

func (v platformView) PlainLines() []string {
	owner := format.FormatAddress(v.Owner.Hex())
	if v.IsOwner {
		owner += " (you)"
	}
	return []string{
		"owner: " + owner,
		fmt.Sprintf("platform fee: %d%%", v.PlatformFeePercent),
		fmt.Sprintf("appointments: %d", v.TotalAppointments),
	}
}

func newAdminCmd(opts *globalOptions) *cobra.Command {
	admin := &cobra.Command{Use: "admin", Short: "Platform owner operations"}

	info := &cobra.Command{
		Use:   "info",
		Short: "Show platform owner, fee and appointment count",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, rt, ro, err := buildContext(cmd, opts, "admin.info")
			if err != nil {
				return err
			}
			defer rt.Close()
			ctx, cancel := commandContext(ro)
			defer cancel()
			var warnings []string
			if _, err := rt.connect(ctx); err != nil {
				warnings = append(warnings, err.Error())
			}
			info, err := timed(ctx, "contract.platform", rt.store.Platform)
			if err != nil {
				return fail(p, err)
			}
			view := platformView{PlatformInfo: *info}
			if acct := rt.session.Account(); acct != nil {
				view.IsOwner = *acct == info.Owner
			}
			return successWithMeta(ctx, p, ro, view, nil, warnings)
		},
	}

	setFee := &cobra.Command{
		Use:   "set-fee <percent>",
		Short: "Change the platform fee percentage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			percent, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil || percent > maxPlatformFeePercent {
				p, rt, _, berr := buildContext(cmd, opts, "admin.set-fee")
				if berr != nil {
					return berr
				}
				rt.Close()
				return failWithHint(p, contract.ErrInvalidUsage, fmt.Errorf("invalid fee percent: %q", args[0]), "Pass a whole number from 0 to 100", exitUsage)
			}
			return runAdminWrite(cmd, opts, "admin.set-fee", func(s *booking.Store, ctx context.Context) (*booking.Result, error) {
				return s.SetPlatformFee(ctx, percent)
			}, fmt.Sprintf("Platform fee set to %d%%.", percent))
		},
	}

	withdraw := &cobra.Command{
		Use:   "withdraw",
		Short: "Withdraw accumulated platform fees to the owner",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAdminWrite(cmd, opts, "admin.withdraw", (*booking.Store).WithdrawPlatformFees, "Platform fees withdrawn.")
		},
	}

	transfer := &cobra.Command{
		Use:   "transfer <address>",
		Short: "Transfer platform ownership",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseAddress(args[0])
			if err != nil {
				p, rt, _, berr := buildContext(cmd, opts, "admin.transfer")
				if berr != nil {
					return berr
				}
				rt.Close()
				return failWithHint(p, contract.ErrInvalidUsage, err, "Pass the new owner's 0x-prefixed address", exitUsage)
			}
			return runAdminWrite(cmd, opts, "admin.transfer", func(s *booking.Store, ctx context.Context) (*booking.Result, error) {
				return s.TransferOwnership(ctx, addr)
			}, "Ownership transferred to "+addr.Hex()+".")
		},
	}

	admin.AddCommand(info, setFee, withdraw, transfer)
	return admin
}

// runAdminWrite refuses accounts known not to own the platform. An
// unreadable owner is left to the contract to reject.
func runAdminWrite(cmd *cobra.Command, opts *globalOptions, command string, submit func(*booking.Store, context.Context) (*booking.Result, error), message string) error {
	p, rt, ro, err := buildContext(cmd, opts, command)
	if err != nil {
		return err
	}
	defer rt.Close()
	ctx, cancel := writeContext()
	defer cancel()
	if err := rt.requireConnection(ctx); err != nil {
		return fail(p, err)
	}
	var warnings []string
	info, err := rt.store.Platform(ctx)
	switch {
	case err != nil:
		rt.log.WithError(err).Debug("owner check skipped")
		warnings = append(warnings, "owner check skipped: "+err.Error())
	case *rt.session.Account() != info.Owner:
		return failWithHint(p, contract.ErrInvalidUsage,
			fmt.Errorf("%w: only the platform owner %s can do this", errWrongRole, format.FormatAddress(info.Owner.Hex())),
			"Run `medbook admin info`", exitUsage)
	}
	res, err := submit(rt.store, ctx)
	if err != nil {
		return fail(p, err)
	}
	return successWithMeta(ctx, p, ro, newTxView(res, message), nil, warnings)
}
