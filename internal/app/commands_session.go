package app

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/agis/medbook/internal/booking"
	"github.com/agis/medbook/internal/contract"
	"github.com/agis/medbook/internal/output"
	"github.com/agis/medbook/internal/wallet"
	"github.com/spf13/cobra"
)

type statusResult struct {
	Ready         bool                  `json:"ready"`
	Degraded      bool                  `json:"degraded"`
	Contract      string                `json:"contract"`
	RPCURL        string                `json:"rpc_url"`
	Keystore      string                `json:"keystore"`
	Profile       string                `json:"profile"`
	TZ            string                `json:"tz,omitempty"`
	OutputMode    string                `json:"output_mode"`
	SchemaVersion string                `json:"schema_version"`
	Session       contract.SessionState `json:"session"`
	Checks        []contract.Check      `json:"checks"`
	NextSteps     []string              `json:"next_steps,omitempty"`
	ReasonCodes   []string              `json:"degraded_reason_codes,omitempty"`
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "medbook %s\n", BuildVersionString())
		},
	}
}

func newStatusCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show wallet, network and contract health",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, rt, ro, err := buildContext(cmd, opts, "status")
			if err != nil {
				return err
			}
			defer rt.Close()
			ctx, cancel := commandContext(ro)
			defer cancel()
			checks := runChecks(ctx, rt)
			setup := buildSetupResult(checks)
			reasonCodes := deriveDegradedReasonCodes(checks)
			res := statusResult{
				Ready:         setup.Ready,
				Degraded:      setup.Degraded,
				Contract:      rt.contract.Hex(),
				RPCURL:        ro.RPCURL,
				Keystore:      ro.Keystore,
				Profile:       ro.Profile,
				TZ:            ro.TZ,
				OutputMode:    string(p.EffectiveSuccessMode()),
				SchemaVersion: ro.SchemaVersion,
				Session:       rt.session.State(),
				Checks:        checks,
				NextSteps:     setup.NextSteps,
				ReasonCodes:   reasonCodes,
			}
			meta := map[string]any{
				"ready":                 res.Ready,
				"degraded":              res.Degraded,
				"checks":                len(res.Checks),
				"degraded_reason_codes": reasonCodes,
			}
			if p.EffectiveSuccessMode() == output.ModePlain {
				_ = printStatusPlain(cmd.OutOrStdout(), res)
			} else {
				_ = successWithMeta(ctx, p, ro, res, meta, setup.Notes)
			}
			if !setup.Ready {
				return Wrap(exitUnavailable, fmt.Errorf("status not ready: %s", strings.Join(reasonCodes, ",")))
			}
			return nil
		},
	}
}

type connectResult struct {
	Session contract.SessionState `json:"session"`
	Role    booking.RoleView      `json:"role"`
}

func (c connectResult) PlainLines() []string {
	if c.Session.Account == nil {
		return []string{"not connected"}
	}
	return []string{"connected " + c.Session.Account.Hex() + " on chain " + c.Session.ChainID, "role: " + c.Role.Kind}
}

func newConnectCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "Unlock the wallet account and check the network",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, rt, ro, err := buildContext(cmd, opts, "connect")
			if err != nil {
				return err
			}
			defer rt.Close()
			ctx, cancel := commandContext(ro)
			defer cancel()
			if rt.provider == nil {
				return fail(p, wallet.ErrNoWallet)
			}
			if err := rt.session.Connect(ctx); err != nil {
				return fail(p, err)
			}
			role := rt.store.ResolveRole(ctx)
			res := connectResult{Session: rt.session.State(), Role: booking.ViewOf(role)}
			return successWithMeta(ctx, p, ro, res, map[string]any{"role": role.Kind()}, nil)
		},
	}
}

type watchEvent struct {
	At      time.Time             `json:"at"`
	Event   string                `json:"event"`
	Session contract.SessionState `json:"session"`
	Role    string                `json:"role"`
	Error   string                `json:"error,omitempty"`
}

func (w watchEvent) PlainLines() []string {
	account := "disconnected"
	if w.Session.Account != nil {
		account = w.Session.Account.Hex()
	}
	line := fmt.Sprintf("%s\t%s\t%s\trole=%s", w.At.Format(time.RFC3339), w.Event, account, w.Role)
	if w.Error != "" {
		line += "\terror=" + w.Error
	}
	return []string{line}
}

func newWatchCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow wallet account and chain changes until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, rt, _, err := buildContext(cmd, opts, "watch")
			if err != nil {
				return err
			}
			defer rt.Close()
			if rt.provider == nil {
				return fail(p, wallet.ErrNoWallet)
			}
			ctx, cancel := writeContext()
			defer cancel()

			// Each event line is a standalone record.
			lp := p
			if lp.EffectiveSuccessMode() == output.ModeJSON {
				lp.Mode = output.ModeJSONL
			}
			emit := func(name string, err error) {
				role := "none"
				if rt.session.State().Connected() {
					role = rt.store.ResolveRole(ctx).Kind()
				}
				ev := watchEvent{At: nowFunc().UTC(), Event: name, Session: rt.session.State(), Role: role}
				if err != nil {
					ev.Error = err.Error()
				}
				_ = lp.Success([]watchEvent{ev}, nil, nil)
			}

			_, err = rt.session.AutoConnect(ctx)
			emit("start", err)
			if err := rt.session.Run(ctx, func(ev wallet.Event, err error) { emit(ev.Kind.String(), err) }); err != nil {
				return fail(p, err)
			}
			return nil
		},
	}
}

func newCompletionCmd(root *cobra.Command) *cobra.Command {
	return &cobra.Command{
		Use:   "completion <bash|zsh|fish|powershell>",
		Short: "Generate shell completion scripts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			shell := strings.ToLower(args[0])
			switch shell {
			case "bash":
				return root.GenBashCompletion(cmd.OutOrStdout())
			case "zsh":
				return root.GenZshCompletion(cmd.OutOrStdout())
			case "fish":
				return root.GenFishCompletion(cmd.OutOrStdout(), true)
			case "powershell":
				return root.GenPowerShellCompletion(cmd.OutOrStdout())
			default:
				return Wrap(exitUsage, fmt.Errorf("unsupported shell: %s", shell))
			}
		},
	}
}

func printStatusPlain(out io.Writer, res statusResult) error {
	_, _ = fmt.Fprintf(out, "ready=%t degraded=%t contract=%s rpc=%s profile=%s output_mode=%s checks=%d\n", res.Ready, res.Degraded, res.Contract, res.RPCURL, res.Profile, res.OutputMode, len(res.Checks))
	if len(res.ReasonCodes) > 0 {
		_, _ = fmt.Fprintf(out, "reasons=%s\n", strings.Join(res.ReasonCodes, ","))
	}
	for _, c := range res.Checks {
		_, _ = fmt.Fprintf(out, "[%s] %s: %s\n", c.Status, c.Name, c.Message)
	}
	for _, step := range res.NextSteps {
		_, _ = fmt.Fprintf(out, "next: %s\n", step)
	}
	return nil
}
