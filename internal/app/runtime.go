package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/agis/medbook/internal/backend"
	"github.com/agis/medbook/internal/booking"
	"github.com/agis/medbook/internal/journal"
	"github.com/agis/medbook/internal/output"
	"github.com/agis/medbook/internal/wallet"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// walletProvider is a wallet that can also hand out an unsigned handle.
type walletProvider interface {
	wallet.Provider
	ReadOnly(ctx context.Context) (backend.Backend, error)
	Close()
}

// Swapped by tests.
var (
	providerFactory = newKeystoreProvider
	readerFactory   = dialReader
	nowFunc         = time.Now
)

type providerConfig struct {
	Keystore string
	RPCURL   string
	Contract common.Address
	NoInput  bool
	In       *os.File
	Prompt   io.Writer
	Log      *logrus.Entry
}

func newKeystoreProvider(cfg providerConfig) (walletProvider, error) {
	in := cfg.In
	if cfg.NoInput {
		in = nil
	}
	p, err := wallet.NewKeystoreProvider(wallet.KeystoreConfig{
		Dir:        cfg.Keystore,
		RPCURL:     cfg.RPCURL,
		Contract:   cfg.Contract,
		Passphrase: wallet.EnvOrPrompt("MEDBOOK_PASSPHRASE", in, cfg.Prompt),
		Log:        cfg.Log,
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// dialReader serves account-independent reads when no keystore exists.
func dialReader(ctx context.Context, rpcURL string, address common.Address) (backend.Reader, func(), error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}
	be, err := backend.NewEthBackend(address, client, nil)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	return be, client.Close, nil
}

// runtime is the per-invocation object graph: one provider, one session,
// one store.
type runtime struct {
	log         *logrus.Entry
	provider    walletProvider
	providerErr error
	session     *wallet.Session
	store       *booking.Store
	journal     *journal.Journal
	loc         *time.Location
	contract    common.Address
	rpcURL      string

	mu      sync.Mutex
	reader  backend.Reader
	closers []func()
}

func newLogger(out io.Writer, verbose bool) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(out)
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	log.SetLevel(logrus.WarnLevel)
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	return log
}

func newRuntime(cmd *cobra.Command, ro *globalOptions, printer output.Printer) (*runtime, error) {
	if !common.IsHexAddress(ro.ContractAddress) {
		return nil, fmt.Errorf("invalid contract address: %q", ro.ContractAddress)
	}
	log := logrus.NewEntry(newLogger(cmd.ErrOrStderr(), ro.Verbose))
	rt := &runtime{
		log:      log,
		loc:      resolveLocation(ro.TZ),
		contract: common.HexToAddress(ro.ContractAddress),
		rpcURL:   ro.RPCURL,
	}

	provider, err := providerFactory(providerConfig{
		Keystore: ro.Keystore,
		RPCURL:   ro.RPCURL,
		Contract: rt.contract,
		NoInput:  ro.NoInput,
		In:       os.Stdin,
		Prompt:   cmd.ErrOrStderr(),
		Log:      log,
	})
	if err != nil {
		log.WithError(err).Debug("wallet provider unavailable")
		rt.providerErr = err
	} else {
		rt.provider = provider
		rt.closers = append(rt.closers, provider.Close)
	}
	// A nil interface keeps Session's no-wallet branch reachable.
	var p wallet.Provider
	if rt.provider != nil {
		p = rt.provider
	}
	rt.session = wallet.NewSession(p, log)

	if path := strings.TrimSpace(ro.Journal); path != "" && path != "off" {
		j, err := journal.Open(path)
		if err != nil {
			log.WithError(err).Warn("transaction journal unavailable")
		} else {
			rt.journal = j
			rt.closers = append(rt.closers, func() { _ = j.Close() })
		}
	}

	opts := booking.Options{
		Notifier: output.NewNotices(printer),
		Log:      log,
		ReadOnly: rt.readOnly,
		RPS:      ro.RPS,
		Now:      nowFunc,
		Location: rt.loc,
	}
	if rt.journal != nil {
		opts.Journal = rt.journal
	}
	rt.store = booking.NewStore(rt.session, opts)
	rt.session.OnReset(rt.store.Reset)
	return rt, nil
}

func (rt *runtime) Close() {
	if rt == nil {
		return
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}

func (rt *runtime) readOnly(ctx context.Context) (backend.Reader, error) {
	if rt.provider != nil {
		return rt.provider.ReadOnly(ctx)
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.reader != nil {
		return rt.reader, nil
	}
	r, closeFn, err := readerFactory(ctx, rt.rpcURL, rt.contract)
	if err != nil {
		return nil, err
	}
	rt.reader = r
	if closeFn != nil {
		rt.closers = append(rt.closers, closeFn)
	}
	return r, nil
}

// connect attaches the session to an already available account. It
// reports false when there is no wallet or no account to use.
func (rt *runtime) connect(ctx context.Context) (bool, error) {
	if rt.provider == nil {
		return false, nil
	}
	return rt.session.AutoConnect(ctx)
}

// requireConnection connects or fails with a wallet error.
func (rt *runtime) requireConnection(ctx context.Context) error {
	if rt.provider == nil {
		if rt.providerErr != nil && !errors.Is(rt.providerErr, wallet.ErrNoWallet) {
			return rt.providerErr
		}
		return wallet.ErrNoWallet
	}
	ok, err := rt.session.AutoConnect(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return wallet.ErrNoWallet
	}
	return nil
}

// requireRole connects, resolves the role and checks it is one of kinds.
func (rt *runtime) requireRole(ctx context.Context, kinds ...string) (booking.Role, error) {
	if err := rt.requireConnection(ctx); err != nil {
		return nil, err
	}
	role := rt.store.ResolveRole(ctx)
	for _, k := range kinds {
		if role.Kind() == k {
			return role, nil
		}
	}
	if _, ok := role.(booking.Unregistered); ok {
		return role, errNotRegistered
	}
	return role, fmt.Errorf("%w: requires %s, account is a %s", errWrongRole, strings.Join(kinds, " or "), role.Kind())
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
