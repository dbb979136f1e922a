package app

import (
	"errors"
	"fmt"
	"testing"

	"github.com/agis/medbook/internal/backend"
	"github.com/agis/medbook/internal/booking"
	"github.com/agis/medbook/internal/contract"
	"github.com/agis/medbook/internal/journal"
	"github.com/agis/medbook/internal/wallet"
)

func TestExitCode(t *testing.T) {
	if code := ExitCode(nil); code != 0 {
		t.Fatalf("expected 0, got %d", code)
	}
	if code := ExitCode(errors.New("x")); code != 1 {
		t.Fatalf("expected 1, got %d", code)
	}
	if code := ExitCode(Wrap(7, errors.New("x"))); code != 7 {
		t.Fatalf("expected 7, got %d", code)
	}
}

func TestClassifyFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code contract.ErrorCode
		exit int
	}{
		{"validation", &booking.ValidationError{Fields: map[string]string{"Name": "required"}}, contract.ErrInvalidUsage, exitUsage},
		{"past date", booking.ErrPastDate, contract.ErrInvalidUsage, exitUsage},
		{"busy", booking.ErrBusy, contract.ErrBusy, exitBusy},
		{"already registered", fmt.Errorf("%w as a patient", booking.ErrAlreadyRegistered), contract.ErrTxRejected, exitRejected},
		{"no wallet", wallet.ErrNoWallet, contract.ErrWalletMissing, exitWallet},
		{"wrong network", &wallet.WrongNetworkError{Current: "1"}, contract.ErrWrongNetwork, exitWallet},
		{"rejected", wallet.ErrUserRejected, contract.ErrNotConnected, exitWallet},
		{"journal miss", journal.ErrNotFound, contract.ErrNotFound, exitNotFound},
		{"wrong role", fmt.Errorf("%w: requires doctor", errWrongRole), contract.ErrInvalidUsage, exitUsage},
		{"unregistered", errNotRegistered, contract.ErrNotRegistered, exitUsage},
		{"no data", backend.ErrNoData, contract.ErrChainUnavailable, exitUnavailable},
		{"revert", booking.TxError{Category: booking.Other, Message: "Time slot not available"}, contract.ErrTxRejected, exitRejected},
		{"generic", errors.New("boom"), contract.ErrGeneric, exitGeneric},
	}
	for _, tc := range tests {
		code, exit, _ := classifyFailure(tc.err)
		if code != tc.code || exit != tc.exit {
			t.Fatalf("%s: got (%s, %d) want (%s, %d)", tc.name, code, exit, tc.code, tc.exit)
		}
	}
}
