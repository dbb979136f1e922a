package wallet

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/agis/medbook/internal/backend"
	"github.com/agis/medbook/internal/contract"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

// Session tracks the connected account and its contract handle. One session
// exists per process and is passed to whatever needs it.
type Session struct {
	provider Provider
	log      *logrus.Entry

	connecting atomic.Bool

	mu      sync.RWMutex
	account *common.Address
	chainID string
	handle  backend.Backend
	lastErr string
	onReset []func()
}

// NewSession builds a disconnected session. provider may be nil when no
// wallet is installed; Connect then reports ErrNoWallet.
func NewSession(provider Provider, log *logrus.Entry) *Session {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Session{provider: provider, log: log.WithField("component", "wallet")}
}

// Connect requests accounts, verifies the chain and binds the contract
// handle. Only one Connect runs at a time. A failed attempt leaves the
// session disconnected, whatever it was connected to before.
func (s *Session) Connect(ctx context.Context) error {
	if s.provider == nil {
		return s.abort(ErrNoWallet)
	}
	if !s.connecting.CompareAndSwap(false, true) {
		return ErrConnectInProgress
	}
	defer s.connecting.Store(false)
	s.clearError()

	accounts, err := s.provider.RequestAccounts(ctx)
	if err != nil {
		return s.abort(err)
	}
	if len(accounts) == 0 {
		return s.abort(ErrNoWallet)
	}
	chainID, err := s.provider.ChainID(ctx)
	if err != nil {
		return s.abort(err)
	}
	if chainID != ExpectedChainID {
		return s.abort(&WrongNetworkError{Current: chainID})
	}
	account := accounts[0]
	handle, err := s.provider.Bind(ctx, account, chainID)
	if err != nil {
		return s.abort(err)
	}

	s.mu.Lock()
	s.account = &account
	s.chainID = chainID
	s.handle = handle
	s.mu.Unlock()
	s.log.WithField("account", account.Hex()).Debug("wallet connected")
	return nil
}

// abort drops the connection and records err as the session error.
func (s *Session) abort(err error) error {
	s.mu.Lock()
	s.account = nil
	s.chainID = ""
	s.handle = nil
	s.lastErr = err.Error()
	s.mu.Unlock()
	return err
}

// Disconnect forgets the local session. Wallet permissions are untouched.
func (s *Session) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.account = nil
	s.chainID = ""
	s.handle = nil
}

// AutoConnect connects only when the wallet already exposes an account
// without prompting. It returns false when there was nothing to connect.
func (s *Session) AutoConnect(ctx context.Context) (bool, error) {
	if s.provider == nil {
		return false, nil
	}
	accounts, err := s.provider.Accounts(ctx)
	if err != nil {
		s.log.WithError(err).Debug("silent account probe failed")
		return false, nil
	}
	if len(accounts) == 0 {
		return false, nil
	}
	if err := s.Connect(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// OnReset registers fn to run after a chain change wiped the session.
func (s *Session) OnReset(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onReset = append(s.onReset, fn)
}

// Reset drops all session state, runs the reset hooks and reconnects as a
// fresh start would.
func (s *Session) Reset(ctx context.Context) error {
	s.mu.Lock()
	s.account = nil
	s.chainID = ""
	s.handle = nil
	s.lastErr = ""
	hooks := append([]func(){}, s.onReset...)
	s.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
	_, err := s.AutoConnect(ctx)
	return err
}

// HandleEvent applies one wallet notification.
func (s *Session) HandleEvent(ctx context.Context, ev Event) error {
	switch ev.Kind {
	case AccountsChanged:
		if len(ev.Accounts) == 0 {
			s.log.Debug("wallet exposed no accounts, disconnecting")
			s.Disconnect()
			return nil
		}
		current := s.Account()
		if current != nil && *current == ev.Accounts[0] {
			return nil
		}
		return s.Connect(ctx)
	case ChainChanged:
		s.log.WithField("chain_id", ev.ChainID).Debug("chain changed, resetting session")
		return s.Reset(ctx)
	}
	return nil
}

// Run consumes provider events until ctx is done. handled, when non-nil, is
// called after every event with the error HandleEvent returned.
func (s *Session) Run(ctx context.Context, handled func(Event, error)) error {
	if s.provider == nil {
		return ErrNoWallet
	}
	for ev := range s.provider.Events(ctx) {
		err := s.HandleEvent(ctx, ev)
		if err != nil {
			s.log.WithError(err).WithField("event", ev.Kind.String()).Warn("wallet event handling failed")
		}
		if handled != nil {
			handled(ev, err)
		}
	}
	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (s *Session) Account() *common.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.account == nil {
		return nil
	}
	a := *s.account
	return &a
}

// Handle returns the bound contract handle and its signing account.
func (s *Session) Handle() (backend.Backend, common.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.handle == nil || s.account == nil {
		return nil, common.Address{}, ErrNotConnected
	}
	return s.handle, *s.account, nil
}

func (s *Session) State() contract.SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := contract.SessionState{
		ChainID:    s.chainID,
		Connecting: s.connecting.Load(),
		Error:      s.lastErr,
	}
	if s.account != nil {
		a := *s.account
		st.Account = &a
	}
	return st
}

func (s *Session) clearError() {
	s.mu.Lock()
	s.lastErr = ""
	s.mu.Unlock()
}
