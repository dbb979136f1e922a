package wallet

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func newKeystoreDir(t *testing.T, pass string) (string, common.Address) {
	t.Helper()
	dir := t.TempDir()
	ks := keystore.NewKeyStore(dir, keystore.LightScryptN, keystore.LightScryptP)
	acc, err := ks.NewAccount(pass)
	require.NoError(t, err)
	return dir, acc.Address
}

func TestKeystoreProviderMissingDir(t *testing.T) {
	_, err := NewKeystoreProvider(KeystoreConfig{Dir: filepath.Join(t.TempDir(), "nope")})
	require.ErrorIs(t, err, ErrNoWallet)

	_, err = NewKeystoreProvider(KeystoreConfig{})
	require.ErrorIs(t, err, ErrNoWallet)
}

func TestKeystoreProviderEmptyDir(t *testing.T) {
	p, err := NewKeystoreProvider(KeystoreConfig{Dir: t.TempDir()})
	require.NoError(t, err)

	accs, err := p.Accounts(context.Background())
	require.NoError(t, err)
	require.Empty(t, accs)

	_, err = p.RequestAccounts(context.Background())
	require.ErrorIs(t, err, ErrNoWallet)
}

func TestKeystoreProviderUnlock(t *testing.T) {
	dir, addr := newKeystoreDir(t, "secret")

	p, err := NewKeystoreProvider(KeystoreConfig{Dir: dir, Passphrase: StaticPassphrase("secret")})
	require.NoError(t, err)
	accs, err := p.RequestAccounts(context.Background())
	require.NoError(t, err)
	require.Equal(t, []common.Address{addr}, accs)

	wrong, err := NewKeystoreProvider(KeystoreConfig{Dir: dir, Passphrase: StaticPassphrase("nope")})
	require.NoError(t, err)
	_, err = wrong.RequestAccounts(context.Background())
	require.ErrorIs(t, err, ErrUserRejected)

	declined, err := NewKeystoreProvider(KeystoreConfig{Dir: dir})
	require.NoError(t, err)
	_, err = declined.RequestAccounts(context.Background())
	require.ErrorIs(t, err, ErrUserRejected)
}

func TestEnvOrPromptPrefersEnv(t *testing.T) {
	t.Setenv("MEDBOOK_TEST_PASSPHRASE", "from-env")
	fn := EnvOrPrompt("MEDBOOK_TEST_PASSPHRASE", nil, os.Stderr)
	pass, err := fn(accounts.Account{})
	require.NoError(t, err)
	require.Equal(t, "from-env", pass)
}

func TestEnvOrPromptWithoutTerminal(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "stdin")
	require.NoError(t, err)
	defer f.Close()

	fn := EnvOrPrompt("MEDBOOK_TEST_PASSPHRASE_UNSET", f, os.Stderr)
	_, err = fn(accounts.Account{})
	require.ErrorIs(t, err, ErrUserRejected)
}
