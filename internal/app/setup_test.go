package app

import (
	"reflect"
	"testing"

	"github.com/agis/medbook/internal/contract"
)

func TestBuildSetupResultReady(t *testing.T) {
	checks := []contract.Check{
		{Name: "wallet", Status: "ok"},
		{Name: "network", Status: "ok"},
		{Name: "contract", Status: "ok"},
		{Name: "journal", Status: "ok"},
	}
	res := buildSetupResult(checks)
	if !res.Ready {
		t.Fatalf("expected ready result")
	}
	if res.Degraded {
		t.Fatalf("expected non-degraded result")
	}
	if len(res.NextSteps) == 0 {
		t.Fatalf("expected next steps")
	}
}

func TestBuildSetupResultMissingWallet(t *testing.T) {
	checks := []contract.Check{
		{Name: "wallet", Status: "fail"},
		{Name: "network", Status: "skip"},
		{Name: "contract", Status: "ok"},
	}
	res := buildSetupResult(checks)
	if res.Ready {
		t.Fatalf("expected not ready result")
	}
	if len(res.NextSteps) != 1 {
		t.Fatalf("expected only the wallet remediation, got %v", res.NextSteps)
	}
}

func TestBuildSetupResultWrongNetworkAndNoContract(t *testing.T) {
	checks := []contract.Check{
		{Name: "wallet", Status: "ok"},
		{Name: "network", Status: "fail"},
		{Name: "contract", Status: "fail"},
	}
	res := buildSetupResult(checks)
	if res.Ready {
		t.Fatalf("expected not ready result")
	}
	if len(res.NextSteps) != 2 {
		t.Fatalf("expected network and contract remediation, got %v", res.NextSteps)
	}
}

func TestBuildSetupResultJournalOnlyDegrades(t *testing.T) {
	checks := []contract.Check{
		{Name: "wallet", Status: "ok"},
		{Name: "network", Status: "ok"},
		{Name: "contract", Status: "ok"},
		{Name: "journal", Status: "warn"},
	}
	res := buildSetupResult(checks)
	if !res.Ready {
		t.Fatalf("expected ready result when only the journal is unavailable")
	}
	if !res.Degraded {
		t.Fatalf("expected degraded=true")
	}
}

func TestDeriveDegradedReasonCodes(t *testing.T) {
	got := deriveDegradedReasonCodes([]contract.Check{
		{Name: "wallet", Status: "ok"},
		{Name: "network", Status: "skip"},
		{Name: "Contract", Status: "FAIL"},
		{Name: "journal", Status: "warn"},
	})
	want := []string{"contract_fail", "journal_warn"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("reason codes mismatch: got=%v want=%v", got, want)
	}
}
