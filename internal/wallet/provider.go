// Package wallet owns the connection between the terminal client and a
// signing wallet: which account is active, which chain it is on, and the
// contract handle bound to that pair.
package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/agis/medbook/internal/backend"
	"github.com/ethereum/go-ethereum/common"
)

// ExpectedChainID is the local development chain (Anvil / Hardhat).
const ExpectedChainID = "31337"

var (
	ErrNoWallet          = errors.New("no wallet found: create or import a keystore account to use medbook")
	ErrUserRejected      = errors.New("user rejected the request")
	ErrConnectInProgress = errors.New("wallet connection already in progress")
	ErrNotConnected      = errors.New("wallet not connected")
)

// WrongNetworkError is returned by Connect when the wallet reports a chain
// other than ExpectedChainID.
type WrongNetworkError struct {
	Current string
}

func (e *WrongNetworkError) Error() string {
	return fmt.Sprintf("wrong network: switch to Localhost 8545 (chain id %s), current: %s", ExpectedChainID, e.Current)
}

type EventKind int

const (
	AccountsChanged EventKind = iota
	ChainChanged
)

func (k EventKind) String() string {
	switch k {
	case AccountsChanged:
		return "accounts_changed"
	case ChainChanged:
		return "chain_changed"
	default:
		return "unknown"
	}
}

// Event is a notification pushed by the wallet outside of any request.
type Event struct {
	Kind     EventKind
	Accounts []common.Address
	ChainID  string
}

// Provider is the wallet surface the session depends on.
type Provider interface {
	// Accounts lists already-authorized accounts without prompting.
	Accounts(ctx context.Context) ([]common.Address, error)
	// RequestAccounts may prompt the user (unlock, approve).
	RequestAccounts(ctx context.Context) ([]common.Address, error)
	ChainID(ctx context.Context) (string, error)
	// Bind returns a contract handle that signs as account.
	Bind(ctx context.Context, account common.Address, chainID string) (backend.Backend, error)
	// Events is closed when ctx is done.
	Events(ctx context.Context) <-chan Event
}
