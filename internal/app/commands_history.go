package app

import (
	"errors"
	"fmt"

	"github.com/agis/medbook/internal/contract"
	"github.com/agis/medbook/internal/format"
	"github.com/agis/medbook/internal/journal"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var errJournalOff = errors.New("transaction journal is disabled")

type historyEntry struct {
	journal.Entry
}

func (e historyEntry) PlainLines() []string {
	line := fmt.Sprintf("%s\t%s\t%s\t%s\t%s", e.ID[:8], humanize.Time(e.At), e.Action, e.Status, format.FormatAddress(e.Account))
	if e.TxHash != "" {
		line += "\t" + e.TxHash
	}
	if e.Message != "" {
		line += "\t" + e.Message
	}
	return []string{line}
}

func newHistoryCmd(opts *globalOptions) *cobra.Command {
	history := &cobra.Command{Use: "history", Short: "Inspect transactions submitted from this machine"}

	var limit, offset int
	var account, status string
	list := &cobra.Command{
		Use:   "list",
		Short: "List recent transactions, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, rt, ro, err := buildContext(cmd, opts, "history.list")
			if err != nil {
				return err
			}
			defer rt.Close()
			if rt.journal == nil {
				return failWithHint(p, contract.ErrGeneric, errJournalOff, "Set --journal or MEDBOOK_JOURNAL to a writable path", exitGeneric)
			}
			switch journal.Status(status) {
			case "", journal.StatusPending, journal.StatusConfirmed, journal.StatusFailed:
			default:
				return failWithHint(p, contract.ErrInvalidUsage, fmt.Errorf("unknown status: %s", status), "Use --status pending|confirmed|failed", exitUsage)
			}
			ctx, cancel := commandContext(ro)
			defer cancel()
			entries, more, err := rt.journal.List(ctx, journal.ListOptions{Limit: limit, Offset: offset, Account: account, Status: journal.Status(status)})
			if err != nil {
				return failWithHint(p, contract.ErrGeneric, err, "Check journal file permissions", exitGeneric)
			}
			rows := make([]historyEntry, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, historyEntry{e})
			}
			return successWithMeta(ctx, p, ro, rows, map[string]any{"count": len(rows), "offset": offset, "has_more": more}, nil)
		},
	}
	list.Flags().IntVar(&limit, "limit", 20, "Maximum entries")
	list.Flags().IntVar(&offset, "offset", 0, "Entries to skip")
	list.Flags().StringVar(&account, "account", "", "Only this account")
	list.Flags().StringVar(&status, "status", "", "Only pending, confirmed or failed")

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one journal entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, rt, ro, err := buildContext(cmd, opts, "history.show")
			if err != nil {
				return err
			}
			defer rt.Close()
			if rt.journal == nil {
				return failWithHint(p, contract.ErrGeneric, errJournalOff, "Set --journal or MEDBOOK_JOURNAL to a writable path", exitGeneric)
			}
			ctx, cancel := commandContext(ro)
			defer cancel()
			e, err := rt.journal.Get(ctx, args[0])
			if err != nil {
				if errors.Is(err, journal.ErrNotFound) {
					return failWithHint(p, contract.ErrNotFound, err, "Run `medbook history list` to see entry ids", exitNotFound)
				}
				return fail(p, err)
			}
			return successWithMeta(ctx, p, ro, historyEntry{e}, nil, nil)
		},
	}

	history.AddCommand(list, show)
	return history
}
