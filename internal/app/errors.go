package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/agis/medbook/internal/backend"
	"github.com/agis/medbook/internal/booking"
	"github.com/agis/medbook/internal/contract"
	"github.com/agis/medbook/internal/journal"
	"github.com/agis/medbook/internal/output"
	"github.com/agis/medbook/internal/wallet"
)

const (
	exitGeneric     = 1
	exitUsage       = 2
	exitWallet      = 3
	exitNotFound    = 4
	exitRejected    = 5
	exitUnavailable = 6
	exitBusy        = 7
)

type AppError struct {
	Code    int
	Err     error
	Printed bool
}

func (e AppError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit code %d", e.Code)
	}
	return e.Err.Error()
}

func (e AppError) Unwrap() error { return e.Err }

func Wrap(code int, err error) error {
	if err == nil {
		return nil
	}
	return AppError{Code: code, Err: err}
}

func WrapPrinted(code int, err error) error {
	if err == nil {
		return nil
	}
	return AppError{Code: code, Err: err, Printed: true}
}

func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var e AppError
	if errors.As(err, &e) {
		return e.Code
	}
	return exitGeneric
}

func failWithHint(printer output.Printer, code contract.ErrorCode, err error, hint string, exitCode int) error {
	if err == nil {
		err = errors.New("unknown error")
	}
	_ = printer.ErrorMeta(code, err.Error(), hint, callErrorMeta(err))
	return WrapPrinted(exitCode, err)
}

// classifyFailure maps a domain error onto an error code, exit code and hint.
func classifyFailure(err error) (contract.ErrorCode, int, string) {
	var verr *booking.ValidationError
	var wrong *wallet.WrongNetworkError
	var txErr booking.TxError
	switch {
	case errors.As(err, &verr), errors.Is(err, booking.ErrPastDate):
		return contract.ErrInvalidUsage, exitUsage, "Fix the highlighted fields and retry"
	case errors.Is(err, booking.ErrBusy):
		return contract.ErrBusy, exitBusy, "Wait for the previous transaction to confirm"
	case errors.Is(err, booking.ErrAlreadyRegistered):
		return contract.ErrTxRejected, exitRejected, "Run `medbook home` to see your profile"
	case errors.Is(err, wallet.ErrNoWallet):
		return contract.ErrWalletMissing, exitWallet, "Create an account with `geth account new --keystore <dir>` and pass --keystore"
	case errors.As(err, &wrong):
		return contract.ErrWrongNetwork, exitWallet, "Point --rpc-url at Localhost 8545 (chain id 31337)"
	case errors.Is(err, wallet.ErrNotConnected), errors.Is(err, wallet.ErrUserRejected), errors.Is(err, wallet.ErrConnectInProgress):
		return contract.ErrNotConnected, exitWallet, "Run `medbook connect` and unlock your account"
	case errors.Is(err, journal.ErrNotFound), errors.Is(err, errNotFound):
		return contract.ErrNotFound, exitNotFound, ""
	case errors.Is(err, errWrongRole):
		return contract.ErrInvalidUsage, exitUsage, "Run `medbook home` to see your role"
	case errors.Is(err, errNotRegistered):
		return contract.ErrNotRegistered, exitUsage, "Run `medbook register patient` or `medbook register doctor` first"
	case errors.As(err, &txErr):
		switch txErr.Category {
		case booking.UserCancelled:
			return contract.ErrNotConnected, exitWallet, ""
		case booking.WrongNetwork:
			return contract.ErrWrongNetwork, exitWallet, ""
		case booking.ContractUnreachable:
			return contract.ErrChainUnavailable, exitUnavailable, "Run `medbook status` for remediation"
		default:
			return contract.ErrTxRejected, exitRejected, ""
		}
	case errors.Is(err, backend.ErrNoData), errors.Is(err, context.DeadlineExceeded):
		return contract.ErrChainUnavailable, exitUnavailable, "Run `medbook status` for remediation"
	}
	cat := booking.Classify(err).Category
	if cat == booking.ContractUnreachable || cat == booking.WrongNetwork {
		return contract.ErrChainUnavailable, exitUnavailable, "Run `medbook status` for remediation"
	}
	return contract.ErrGeneric, exitGeneric, ""
}

// fail prints err with the code and hint its kind implies.
func fail(printer output.Printer, err error) error {
	code, exit, hint := classifyFailure(err)
	return failWithHint(printer, code, err, hint, exit)
}

var (
	errNotFound      = errors.New("not found")
	errNotRegistered = errors.New("account is not registered")
	errWrongRole     = errors.New("not available for this role")
)
