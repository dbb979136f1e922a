package wallet

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/mattn/go-isatty"
	"golang.org/x/term"
)

// PassphraseFunc supplies the passphrase that unlocks account. Returning
// ErrUserRejected means the user declined.
type PassphraseFunc func(account accounts.Account) (string, error)

// StaticPassphrase always returns pass.
func StaticPassphrase(pass string) PassphraseFunc {
	return func(accounts.Account) (string, error) { return pass, nil }
}

// EnvOrPrompt reads the passphrase from envVar, falling back to an
// interactive prompt when in is a terminal.
func EnvOrPrompt(envVar string, in *os.File, out io.Writer) PassphraseFunc {
	return func(acc accounts.Account) (string, error) {
		if v, ok := os.LookupEnv(envVar); ok {
			return v, nil
		}
		if in == nil || !(isatty.IsTerminal(in.Fd()) || isatty.IsCygwinTerminal(in.Fd())) {
			return "", fmt.Errorf("%w: set %s or run from a terminal", ErrUserRejected, envVar)
		}
		fmt.Fprintf(out, "Passphrase for %s: ", acc.Address.Hex())
		raw, err := term.ReadPassword(int(in.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrUserRejected, err)
		}
		pass := strings.TrimRight(string(raw), "\r\n")
		if pass == "" {
			return "", ErrUserRejected
		}
		return pass, nil
	}
}
