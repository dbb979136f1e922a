package app

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/agis/medbook/internal/contract"
	"github.com/agis/medbook/internal/format"
	"github.com/agis/medbook/internal/wallet"
)

type setupResult struct {
	Ready     bool             `json:"ready"`
	Degraded  bool             `json:"degraded"`
	Checks    []contract.Check `json:"checks"`
	NextSteps []string         `json:"next_steps,omitempty"`
	Notes     []string         `json:"notes,omitempty"`
}

// runChecks probes the wallet, its network, the contract and the journal
// without prompting.
func runChecks(ctx context.Context, rt *runtime) []contract.Check {
	checks := make([]contract.Check, 0, 4)

	if rt.provider == nil {
		msg := wallet.ErrNoWallet.Error()
		if rt.providerErr != nil {
			msg = rt.providerErr.Error()
		}
		checks = append(checks, contract.Check{Name: "wallet", Status: "fail", Message: msg})
		checks = append(checks, contract.Check{Name: "network", Status: "skip", Message: "no wallet to ask for its chain"})
	} else {
		accounts, err := timed(ctx, "wallet.accounts", rt.provider.Accounts)
		switch {
		case err != nil:
			checks = append(checks, contract.Check{Name: "wallet", Status: "fail", Message: err.Error()})
		case len(accounts) == 0:
			checks = append(checks, contract.Check{Name: "wallet", Status: "fail", Message: wallet.ErrNoWallet.Error()})
		default:
			checks = append(checks, contract.Check{Name: "wallet", Status: "ok", Message: fmt.Sprintf("%d account(s), primary %s", len(accounts), format.FormatAddress(accounts[0].Hex()))})
		}
		chainID, err := timed(ctx, "wallet.chain_id", rt.provider.ChainID)
		switch {
		case err != nil:
			checks = append(checks, contract.Check{Name: "network", Status: "fail", Message: err.Error()})
		case chainID != wallet.ExpectedChainID:
			checks = append(checks, contract.Check{Name: "network", Status: "fail", Message: (&wallet.WrongNetworkError{Current: chainID}).Error()})
		default:
			checks = append(checks, contract.Check{Name: "network", Status: "ok", Message: "chain id " + chainID})
		}
	}

	hasCode, err := timed(ctx, "contract.has_code", func(ctx context.Context) (bool, error) {
		r, err := rt.readOnly(ctx)
		if err != nil {
			return false, err
		}
		return r.HasCode(ctx)
	})
	switch {
	case err != nil:
		checks = append(checks, contract.Check{Name: "contract", Status: "fail", Message: err.Error()})
	case !hasCode:
		checks = append(checks, contract.Check{Name: "contract", Status: "fail", Message: "no contract code at " + rt.contract.Hex()})
	default:
		checks = append(checks, contract.Check{Name: "contract", Status: "ok", Message: "deployed at " + rt.contract.Hex()})
	}

	if rt.journal != nil {
		checks = append(checks, contract.Check{Name: "journal", Status: "ok", Message: "recording transactions"})
	} else {
		checks = append(checks, contract.Check{Name: "journal", Status: "warn", Message: "journal disabled or not writable"})
	}
	return checks
}

func buildSetupResult(checks []contract.Check) setupResult {
	res := setupResult{Ready: true, Checks: checks}

	has := func(name string) (string, bool) {
		for _, c := range checks {
			if strings.EqualFold(strings.TrimSpace(c.Name), name) {
				return strings.ToLower(strings.TrimSpace(c.Status)), true
			}
		}
		return "", false
	}

	walletStatus, hasWallet := has("wallet")
	networkStatus, hasNetwork := has("network")
	contractStatus, hasContract := has("contract")
	journalStatus, hasJournal := has("journal")

	if !hasWallet || walletStatus != "ok" {
		res.Ready = false
		res.NextSteps = append(res.NextSteps, "Create or import an account: `geth account new --keystore <dir>`, then pass --keystore <dir>.")
	}
	if hasNetwork && networkStatus == "fail" {
		res.Ready = false
		res.NextSteps = append(res.NextSteps, "Point --rpc-url at Localhost 8545 (chain id 31337).")
	}
	if !hasContract || contractStatus != "ok" {
		res.Ready = false
		res.NextSteps = append(res.NextSteps, "Deploy MedBooking to the local node or set MEDBOOK_CONTRACT_ADDRESS.")
	}
	if hasJournal && journalStatus != "ok" {
		res.Degraded = true
		res.Notes = append(res.Notes, "Transactions will not be recorded in the local journal.")
	}

	if res.Ready {
		res.NextSteps = append(res.NextSteps, "Browse doctors with: `medbook doctors list`")
		res.NextSteps = append(res.NextSteps, "Register with: `medbook register patient --name <name> --contact <contact>`")
	}
	return res
}

func deriveDegradedReasonCodes(checks []contract.Check) []string {
	codeSet := map[string]struct{}{}
	for _, c := range checks {
		status := strings.ToLower(strings.TrimSpace(c.Status))
		if status == "" || status == "ok" || status == "skip" {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(c.Name))
		name = strings.ReplaceAll(name, " ", "_")
		name = strings.ReplaceAll(name, "-", "_")
		if name == "" {
			name = "unknown_check"
		}
		codeSet[name+"_"+status] = struct{}{}
	}
	if len(codeSet) == 0 {
		return nil
	}
	out := make([]string, 0, len(codeSet))
	for code := range codeSet {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}
