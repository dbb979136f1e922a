package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/agis/medbook/internal/contract"
	"github.com/agis/medbook/internal/output"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type globalOptions struct {
	JSON            bool
	JSONL           bool
	Plain           bool
	Fields          string
	Quiet           bool
	Verbose         bool
	NoColor         bool
	NoInput         bool
	Profile         string
	Config          string
	ContractAddress string
	RPCURL          string
	Keystore        string
	Journal         string
	TZ              string
	Timeout         time.Duration
	RPS             float64
	SchemaVersion   string
}

func Execute() int {
	cmd := NewRootCommand()
	err := cmd.Execute()
	if err != nil {
		renderTopLevelError(cmd, err)
	}
	return ExitCode(err)
}

func NewRootCommand() *cobra.Command {
	opts := &globalOptions{
		Profile:         "default",
		ContractAddress: defaultContractAddress,
		RPCURL:          defaultRPCURL,
		Timeout:         15 * time.Second,
		SchemaVersion:   contract.SchemaVersion,
	}

	root := &cobra.Command{
		Use:           "medbook",
		Short:         "Book and manage medical appointments on the MedBooking contract",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       BuildVersionString(),
	}
	root.SetVersionTemplate("medbook {{.Version}}\n")
	root.SetGlobalNormalizationFunc(normalizeFlagName)

	root.PersistentFlags().BoolVar(&opts.JSON, "json", false, "Output structured JSON")
	root.PersistentFlags().BoolVar(&opts.JSONL, "jsonl", false, "Output newline-delimited JSON")
	root.PersistentFlags().BoolVar(&opts.Plain, "plain", false, "Output stable plain text")
	root.PersistentFlags().StringVar(&opts.Fields, "fields", "", "Projected fields, comma-separated")
	root.PersistentFlags().BoolVarP(&opts.Quiet, "quiet", "q", false, "Reduce success output")
	root.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "Verbose diagnostics")
	root.PersistentFlags().BoolVar(&opts.NoColor, "no-color", false, "Disable color output")
	root.PersistentFlags().BoolVar(&opts.NoInput, "no-input", false, "Disable passphrase prompts")
	root.PersistentFlags().StringVar(&opts.Profile, "profile", "default", "Config profile")
	root.PersistentFlags().StringVar(&opts.Config, "config", "", "Config file path")
	root.PersistentFlags().StringVar(&opts.ContractAddress, "contract", defaultContractAddress, "MedBooking contract address")
	root.PersistentFlags().StringVar(&opts.RPCURL, "rpc-url", defaultRPCURL, "JSON-RPC endpoint")
	root.PersistentFlags().StringVar(&opts.Keystore, "keystore", "", "Keystore directory holding the wallet account")
	root.PersistentFlags().StringVar(&opts.Journal, "journal", "", "Transaction journal database path")
	root.PersistentFlags().StringVar(&opts.TZ, "tz", "", "IANA timezone for dates")
	root.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 15*time.Second, "Contract read timeout (e.g. 10s, 1m, 0 to disable)")
	root.PersistentFlags().Float64Var(&opts.RPS, "rps", 0, "Max contract detail reads per second (0 for no limit)")
	root.PersistentFlags().StringVar(&opts.SchemaVersion, "schema-version", contract.SchemaVersion, "Output schema version")

	root.AddCommand(newStatusCmd(opts))
	root.AddCommand(newConnectCmd(opts))
	root.AddCommand(newWatchCmd(opts))
	root.AddCommand(newHomeCmd(opts))
	root.AddCommand(newDoctorsCmd(opts))
	root.AddCommand(newSpecializationsCmd(opts))
	root.AddCommand(newRegisterCmd(opts))
	root.AddCommand(newProfileCmd(opts))
	root.AddCommand(newAppointmentsCmd(opts))
	root.AddCommand(newDashboardCmd(opts))
	root.AddCommand(newAdminCmd(opts))
	root.AddCommand(newHistoryCmd(opts))
	root.AddCommand(newVersionCmd())
	root.AddCommand(newCompletionCmd(root))

	return root
}

// normalizeFlagName accepts underscores in flag names: --rpc_url is --rpc-url.
func normalizeFlagName(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
}

// buildContext resolves options and wires the printer and the runtime.
// Callers must Close the runtime.
func buildContext(cmd *cobra.Command, opts *globalOptions, command string) (output.Printer, *runtime, *globalOptions, error) {
	resolved, err := resolveGlobalOptions(cmd, opts)
	if err != nil {
		return output.Printer{}, nil, nil, Wrap(exitUsage, err)
	}
	if conflictCount(resolved.JSON, resolved.JSONL, resolved.Plain) > 1 {
		return output.Printer{}, nil, nil, Wrap(exitUsage, errors.New("--json, --jsonl, and --plain are mutually exclusive"))
	}
	mode := output.ModeAuto
	if resolved.JSON {
		mode = output.ModeJSON
	} else if resolved.JSONL {
		mode = output.ModeJSONL
	} else if resolved.Plain {
		mode = output.ModePlain
	}

	printer := output.Printer{
		Mode:          mode,
		Command:       command,
		Fields:        splitCSV(resolved.Fields),
		Quiet:         resolved.Quiet,
		NoColor:       resolved.NoColor,
		SchemaVersion: resolved.SchemaVersion,
		Out:           cmd.OutOrStdout(),
		Err:           cmd.ErrOrStderr(),
	}

	rt, err := newRuntime(cmd, resolved, printer)
	if err != nil {
		return printer, nil, nil, failWithHint(printer, contract.ErrInvalidUsage, err, "Use --contract with a 0x-prefixed address", exitUsage)
	}
	if resolved.Verbose {
		_, _ = fmt.Fprintf(printer.Err, "medbook: command=%s contract=%s rpc=%s mode=%s tz=%s profile=%s timeout=%s\n", command, resolved.ContractAddress, resolved.RPCURL, mode, resolved.TZ, resolved.Profile, resolved.Timeout)
	}
	return printer, rt, resolved, nil
}

// commandContext bounds contract reads by --timeout.
func commandContext(ro *globalOptions) (context.Context, context.CancelFunc) {
	timing := &timingRecorder{calls: map[string]time.Duration{}}
	base := context.WithValue(context.Background(), timingContextKey{}, timing)
	if ro == nil || ro.Timeout <= 0 {
		return context.WithCancel(base)
	}
	return context.WithTimeout(base, ro.Timeout)
}

// writeContext never expires: a confirmation wait lasts as long as the
// network takes. Interrupt only stops waiting.
func writeContext() (context.Context, context.CancelFunc) {
	timing := &timingRecorder{calls: map[string]time.Duration{}}
	base := context.WithValue(context.Background(), timingContextKey{}, timing)
	return signalContext(base)
}

type timeoutResult[T any] struct {
	val T
	err error
}

type timingContextKey struct{}

type timingRecorder struct {
	mu    sync.Mutex
	calls map[string]time.Duration
}

func (r *timingRecorder) add(name string, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[name] += d
}

func backendTimings(ctx context.Context) map[string]string {
	rec, _ := ctx.Value(timingContextKey{}).(*timingRecorder)
	if rec == nil {
		return nil
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.calls) == 0 {
		return nil
	}
	keys := make([]string, 0, len(rec.calls))
	for k := range rec.calls {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		out[k] = rec.calls[k].String()
	}
	return out
}

func withTimeout[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	ch := make(chan timeoutResult[T], 1)
	go func() {
		v, err := fn()
		ch <- timeoutResult[T]{val: v, err: err}
	}()
	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case res := <-ch:
		return res.val, res.err
	}
}

// timed runs one contract call under ctx, tagging deadline errors with
// phase and recording its duration.
func timed[T any](ctx context.Context, phase string, fn func(context.Context) (T, error)) (T, error) {
	start := time.Now()
	v, err := withTimeout(ctx, func() (T, error) { return fn(ctx) })
	err = annotateCallError(ctx, phase, err)
	recordTiming(ctx, phase, time.Since(start))
	return v, err
}

func recordTiming(ctx context.Context, name string, d time.Duration) {
	rec, _ := ctx.Value(timingContextKey{}).(*timingRecorder)
	if rec == nil {
		return
	}
	rec.add(name, d)
}

func successWithMeta(ctx context.Context, p output.Printer, ro *globalOptions, data any, meta map[string]any, warnings []string) error {
	if ro != nil && ro.Verbose {
		timings := backendTimings(ctx)
		if len(timings) > 0 {
			if meta == nil {
				meta = map[string]any{}
			}
			meta["timings"] = timings
			_, _ = fmt.Fprintf(p.Err, "medbook: timings=%v\n", timings)
		}
	}
	return p.Success(data, meta, warnings)
}

func renderTopLevelError(cmd *cobra.Command, err error) {
	var appErr AppError
	if errors.As(err, &appErr) && appErr.Printed {
		return
	}
	if wantsStructuredErrorOutput(os.Args[1:]) {
		printer := output.Printer{
			Mode:          output.ModeJSON,
			SchemaVersion: contract.SchemaVersion,
			Err:           cmd.ErrOrStderr(),
		}
		_ = printer.Error(errorCodeForExit(ExitCode(err)), err.Error(), "")
		return
	}
	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "error: %s\n", err.Error())
}

func wantsStructuredErrorOutput(args []string) bool {
	for _, arg := range args {
		switch {
		case arg == "--":
			return false
		case arg == "--json", arg == "--jsonl":
			return true
		case strings.HasPrefix(arg, "--json="), strings.HasPrefix(arg, "--jsonl="):
			return true
		}
	}
	return false
}

func errorCodeForExit(code int) contract.ErrorCode {
	switch code {
	case exitUsage:
		return contract.ErrInvalidUsage
	case exitWallet:
		return contract.ErrNotConnected
	case exitNotFound:
		return contract.ErrNotFound
	case exitRejected:
		return contract.ErrTxRejected
	case exitUnavailable:
		return contract.ErrChainUnavailable
	case exitBusy:
		return contract.ErrBusy
	default:
		return contract.ErrGeneric
	}
}

func resolveLocation(tz string) *time.Location {
	if strings.TrimSpace(tz) != "" {
		if loc, err := time.LoadLocation(tz); err == nil {
			return loc
		}
	}
	return time.Local
}

func conflictCount(vals ...bool) int {
	total := 0
	for _, v := range vals {
		if v {
			total++
		}
	}
	return total
}

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		v := strings.TrimSpace(p)
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
