package booking

import (
	"context"
	"errors"
	"strings"

	"github.com/agis/medbook/internal/backend"
	"github.com/agis/medbook/internal/wallet"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

type Category int

const (
	Other Category = iota
	UserCancelled
	InsufficientFunds
	WrongNetwork
	ContractUnreachable
)

func (c Category) String() string {
	switch c {
	case UserCancelled:
		return "user_cancelled"
	case InsufficientFunds:
		return "insufficient_funds"
	case WrongNetwork:
		return "wrong_network"
	case ContractUnreachable:
		return "contract_unreachable"
	default:
		return "other"
	}
}

const (
	msgCancelled   = "Transaction was cancelled. Approve the transaction in your wallet to continue."
	msgFunds       = "Insufficient funds for transaction"
	msgNetwork     = "Network error. Please ensure you're on Localhost 8545 (Chain ID: " + wallet.ExpectedChainID + ")"
	msgUnreachable = "Could not reach the MedBooking contract. Check the RPC endpoint and contract address."
)

// TxError is a write failure translated for display.
type TxError struct {
	Category Category
	Message  string
	// Reason is the extracted revert reason or provider message before
	// categorization.
	Reason string
	Err    error
}

func (e TxError) Error() string { return e.Message }
func (e TxError) Unwrap() error { return e.Err }

// Classify turns a raw write failure into a user-facing message. The node and
// wallet do not expose typed errors, so this is string matching on whatever
// text the failure carries.
func Classify(err error) TxError {
	if err == nil {
		return TxError{}
	}
	reason := extractReason(err)
	lower := strings.ToLower(reason)
	te := TxError{Reason: reason, Err: err}

	var wrong *wallet.WrongNetworkError
	switch {
	case errors.Is(err, wallet.ErrUserRejected) ||
		containsAny(lower, "user rejected", "user denied", "action_rejected", "denied transaction"):
		te.Category, te.Message = UserCancelled, msgCancelled
	case containsAny(lower, "insufficient funds"):
		te.Category, te.Message = InsufficientFunds, msgFunds
	case errors.Is(err, bind.ErrNoCode) || errors.Is(err, backend.ErrNoData) ||
		containsAny(lower, "no contract code", "connection refused", "no such host", "could not decode", "missing revert data", "call exception"):
		te.Category, te.Message = ContractUnreachable, msgUnreachable
	case errors.As(err, &wrong) || containsAny(lower, "network", "chain"):
		te.Category, te.Message = WrongNetwork, msgNetwork
	case errors.Is(err, context.DeadlineExceeded):
		te.Category, te.Message = ContractUnreachable, msgUnreachable
	default:
		te.Category, te.Message = Other, reason
	}
	return te
}

// extractReason prefers a revert reason, then the innermost provider
// message, then the error text itself.
func extractReason(err error) string {
	var de rpc.DataError
	if errors.As(err, &de) {
		if s, ok := de.ErrorData().(string); ok {
			if data, decErr := hexutil.Decode(s); decErr == nil {
				if reason, unpackErr := abi.UnpackRevert(data); unpackErr == nil && reason != "" {
					return reason
				}
			}
		}
	}
	msg := err.Error()
	if i := strings.Index(msg, "execution reverted: "); i >= 0 {
		if reason := strings.TrimSpace(msg[i+len("execution reverted: "):]); reason != "" {
			return reason
		}
	}
	var re rpc.Error
	if errors.As(err, &re) {
		if m := strings.TrimSpace(re.Error()); m != "" {
			return m
		}
	}
	inner := err
	for {
		next := errors.Unwrap(inner)
		if next == nil {
			break
		}
		inner = next
	}
	if m := strings.TrimSpace(inner.Error()); m != "" && inner != err {
		return m
	}
	return msg
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
