package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"os"
	"sync"

	"github.com/agis/medbook/internal/backend"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"
)

// RPCClient is the subset of *ethclient.Client the keystore provider needs.
type RPCClient interface {
	backend.ChainClient
	ChainID(ctx context.Context) (*big.Int, error)
	SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error)
	Close()
}

type KeystoreConfig struct {
	Dir        string
	RPCURL     string
	Contract   common.Address
	Passphrase PassphraseFunc
	Log        *logrus.Entry
	// Dial overrides how the RPC client is created.
	Dial func(ctx context.Context, url string) (RPCClient, error)
}

// KeystoreProvider is a wallet backed by a go-ethereum keystore directory
// and a JSON-RPC node.
type KeystoreProvider struct {
	cfg KeystoreConfig
	ks  *keystore.KeyStore
	log *logrus.Entry

	mu       sync.Mutex
	client   RPCClient
	unlocked map[common.Address]bool
}

// NewKeystoreProvider returns ErrNoWallet when dir does not exist.
func NewKeystoreProvider(cfg KeystoreConfig) (*KeystoreProvider, error) {
	if cfg.Dir == "" {
		return nil, ErrNoWallet
	}
	info, err := os.Stat(cfg.Dir)
	if err != nil || !info.IsDir() {
		return nil, ErrNoWallet
	}
	if cfg.Dial == nil {
		cfg.Dial = func(ctx context.Context, url string) (RPCClient, error) {
			return ethclient.DialContext(ctx, url)
		}
	}
	if cfg.Passphrase == nil {
		cfg.Passphrase = func(accounts.Account) (string, error) { return "", ErrUserRejected }
	}
	log := cfg.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &KeystoreProvider{
		cfg:      cfg,
		ks:       keystore.NewKeyStore(cfg.Dir, keystore.StandardScryptN, keystore.StandardScryptP),
		log:      log.WithField("component", "keystore"),
		unlocked: map[common.Address]bool{},
	}, nil
}

func (p *KeystoreProvider) Accounts(context.Context) ([]common.Address, error) {
	return addresses(p.ks.Accounts()), nil
}

// RequestAccounts unlocks the primary account, prompting for its passphrase.
func (p *KeystoreProvider) RequestAccounts(context.Context) ([]common.Address, error) {
	accs := p.ks.Accounts()
	if len(accs) == 0 {
		return nil, ErrNoWallet
	}
	if err := p.unlock(accs[0]); err != nil {
		return nil, err
	}
	return addresses(accs), nil
}

func (p *KeystoreProvider) unlock(acc accounts.Account) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.unlocked[acc.Address] {
		return nil
	}
	pass, err := p.cfg.Passphrase(acc)
	if err != nil {
		return err
	}
	if err := p.ks.Unlock(acc, pass); err != nil {
		if errors.Is(err, keystore.ErrDecrypt) {
			return fmt.Errorf("%w: wrong passphrase for %s", ErrUserRejected, acc.Address.Hex())
		}
		return err
	}
	p.unlocked[acc.Address] = true
	return nil
}

func (p *KeystoreProvider) rpc(ctx context.Context) (RPCClient, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return p.client, nil
	}
	client, err := p.cfg.Dial(ctx, p.cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", p.cfg.RPCURL, err)
	}
	p.client = client
	return client, nil
}

func (p *KeystoreProvider) ChainID(ctx context.Context) (string, error) {
	client, err := p.rpc(ctx)
	if err != nil {
		return "", err
	}
	id, err := client.ChainID(ctx)
	if err != nil {
		return "", fmt.Errorf("chain id: %w", err)
	}
	return id.String(), nil
}

func (p *KeystoreProvider) Bind(ctx context.Context, account common.Address, chainID string) (backend.Backend, error) {
	acc, err := p.ks.Find(accounts.Account{Address: account})
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNoWallet, account.Hex())
	}
	if err := p.unlock(acc); err != nil {
		return nil, err
	}
	id, ok := new(big.Int).SetString(chainID, 10)
	if !ok {
		return nil, fmt.Errorf("invalid chain id %q", chainID)
	}
	opts, err := bind.NewKeyStoreTransactorWithChainID(p.ks, acc, id)
	if err != nil {
		return nil, err
	}
	client, err := p.rpc(ctx)
	if err != nil {
		return nil, err
	}
	return backend.NewEthBackend(p.cfg.Contract, client, opts)
}

// ReadOnly returns a handle without a signer, for commands that only read.
func (p *KeystoreProvider) ReadOnly(ctx context.Context) (backend.Backend, error) {
	client, err := p.rpc(ctx)
	if err != nil {
		return nil, err
	}
	return backend.NewEthBackend(p.cfg.Contract, client, nil)
}

// Events reports keystore account changes and, when the node supports
// subscriptions, chain id changes observed on new heads.
func (p *KeystoreProvider) Events(ctx context.Context) <-chan Event {
	out := make(chan Event, 4)
	walletEvents := make(chan accounts.WalletEvent, 8)
	sub := p.ks.Subscribe(walletEvents)

	heads := make(chan *types.Header, 8)
	var headErr <-chan error
	var headSub ethereum.Subscription
	lastChain := ""
	if client, err := p.rpc(ctx); err == nil {
		if id, err := client.ChainID(ctx); err == nil {
			lastChain = id.String()
		}
		if s, err := client.SubscribeNewHead(ctx, heads); err == nil {
			headSub = s
			headErr = s.Err()
		} else {
			p.log.WithError(err).Debug("node does not support head subscriptions")
		}
	}

	go func() {
		defer close(out)
		defer sub.Unsubscribe()
		if headSub != nil {
			defer headSub.Unsubscribe()
		}
		emit := func(ev Event) bool {
			select {
			case out <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-walletEvents:
				if ev.Kind == accounts.WalletOpened {
					continue
				}
				if !emit(Event{Kind: AccountsChanged, Accounts: addresses(p.ks.Accounts())}) {
					return
				}
			case <-heads:
				client, err := p.rpc(ctx)
				if err != nil {
					continue
				}
				id, err := client.ChainID(ctx)
				if err != nil {
					p.log.WithError(err).Warn("chain id probe failed")
					continue
				}
				if current := id.String(); current != lastChain {
					lastChain = current
					if !emit(Event{Kind: ChainChanged, ChainID: current}) {
						return
					}
				}
			case err := <-headErr:
				if err != nil {
					p.log.WithError(err).Warn("head subscription ended")
				}
				headErr = nil
			}
		}
	}()
	return out
}

// Close releases the RPC connection.
func (p *KeystoreProvider) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		p.client.Close()
		p.client = nil
	}
}

func addresses(accs []accounts.Account) []common.Address {
	out := make([]common.Address, 0, len(accs))
	for _, a := range accs {
		out = append(out, a.Address)
	}
	return out
}
