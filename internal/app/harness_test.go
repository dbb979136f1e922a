package app

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/agis/medbook/internal/backend"
	"github.com/agis/medbook/internal/backend/backendtest"
	"github.com/agis/medbook/internal/format"
	"github.com/agis/medbook/internal/wallet"
	"github.com/ethereum/go-ethereum/common"
)

var (
	ownerAddr   = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	doctorAddr  = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	patientAddr = common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")
	strayAddr   = common.HexToAddress("0x90F79bf6EB2c4f870365E785982E1f101E93b906")
)

// testNow is a Monday morning.
var testNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// memWallet is a wallet backed by the in-memory contract.
type memWallet struct {
	mem      *backendtest.Memory
	accounts []common.Address
	chainID  string
	// script, when set, is delivered by Events before the stream closes.
	script   []wallet.Event
}

func (w *memWallet) Accounts(context.Context) ([]common.Address, error) {
	return w.accounts, nil
}

func (w *memWallet) RequestAccounts(context.Context) ([]common.Address, error) {
	if len(w.accounts) == 0 {
		return nil, wallet.ErrUserRejected
	}
	return w.accounts, nil
}

func (w *memWallet) ChainID(context.Context) (string, error) { return w.chainID, nil }

func (w *memWallet) Bind(_ context.Context, account common.Address, _ string) (backend.Backend, error) {
	return w.mem.As(account), nil
}

func (w *memWallet) Events(ctx context.Context) <-chan wallet.Event {
	ch := make(chan wallet.Event)
	go func() {
		defer close(ch)
		if w.script == nil {
			<-ctx.Done()
			return
		}
		for _, ev := range w.script {
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

func (w *memWallet) ReadOnly(context.Context) (backend.Backend, error) {
	return w.mem.As(common.Address{}), nil
}

func (w *memWallet) Close() {}

type harness struct {
	t      *testing.T
	mem    *backendtest.Memory
	wallet *memWallet
	dir    string
}

// newHarness points config and journal at a temp dir and swaps the wallet
// factories for an in-memory chain. account may be zero for "no account".
func newHarness(t *testing.T, account common.Address) *harness {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, ".config"))
	t.Setenv("MEDBOOK_JOURNAL", filepath.Join(dir, "journal.db"))
	t.Setenv("MEDBOOK_TIMEZONE", "UTC")

	mem := backendtest.NewMemory(ownerAddr, func() time.Time { return testNow })
	w := &memWallet{mem: mem, chainID: wallet.ExpectedChainID}
	if account != (common.Address{}) {
		w.accounts = []common.Address{account}
	}

	prevProvider, prevReader, prevNow := providerFactory, readerFactory, nowFunc
	providerFactory = func(providerConfig) (walletProvider, error) { return w, nil }
	readerFactory = func(context.Context, string, common.Address) (backend.Reader, func(), error) {
		return mem.As(common.Address{}), nil, nil
	}
	nowFunc = func() time.Time { return testNow }
	t.Cleanup(func() {
		providerFactory, readerFactory, nowFunc = prevProvider, prevReader, prevNow
	})
	return &harness{t: t, mem: mem, wallet: w, dir: dir}
}

// withoutWallet makes the provider factory report that no keystore exists.
func (h *harness) withoutWallet() *harness {
	providerFactory = func(providerConfig) (walletProvider, error) { return nil, wallet.ErrNoWallet }
	return h
}

func (h *harness) run(args ...string) (string, string, int) {
	h.t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	if err != nil {
		renderTopLevelError(cmd, err)
	}
	return out.String(), errOut.String(), ExitCode(err)
}

// runJSON runs args with --json and decodes the success envelope.
func (h *harness) runJSON(args ...string) (envelope, string, int) {
	h.t.Helper()
	stdout, stderr, code := h.run(append(args, "--json")...)
	var env envelope
	if code == 0 {
		if err := json.Unmarshal([]byte(stdout), &env); err != nil {
			h.t.Fatalf("decode %v: %v\n%s", args, err, stdout)
		}
	}
	return env, stderr, code
}

type envelope struct {
	Command  string          `json:"command"`
	Data     json.RawMessage `json:"data"`
	Meta     map[string]any  `json:"meta"`
	Warnings []string        `json:"warnings"`
}

func (e envelope) decode(t *testing.T, v any) {
	t.Helper()
	if err := json.Unmarshal(e.Data, v); err != nil {
		t.Fatalf("decode data: %v\n%s", err, e.Data)
	}
}

func eth(v string) *big.Int {
	wei, err := format.ParseCurrency(v)
	if err != nil {
		panic(err)
	}
	return wei
}

func (h *harness) seedDoctor(addr common.Address, name, specialization string, fee *big.Int) {
	h.t.Helper()
	h.mine(h.mem.As(addr).RegisterDoctor(context.Background(), backend.DoctorInput{
		Name: name, Specialization: specialization, HospitalName: "City Hospital", ConsultationFee: fee,
	}))
}

func (h *harness) seedPatient(addr common.Address, name string) {
	h.t.Helper()
	h.mine(h.mem.As(addr).RegisterPatient(context.Background(), backend.PatientInput{Name: name, ContactInfo: name + "@example.com"}))
}

func (h *harness) seedBooking(patient, doctor common.Address, at time.Time, fee *big.Int) {
	h.t.Helper()
	h.mine(h.mem.As(patient).BookAppointment(context.Background(), backend.BookingInput{
		Doctor: doctor, DateTime: uint64(at.Unix()), Description: "checkup", Value: fee,
	}))
}

func (h *harness) mine(tx backend.PendingTx, err error) {
	h.t.Helper()
	if err != nil {
		h.t.Fatalf("seed: %v", err)
	}
	if _, err := tx.Wait(context.Background()); err != nil {
		h.t.Fatalf("seed wait: %v", err)
	}
}

func hasCall(calls []string, name string) bool {
	for _, c := range calls {
		if c == name {
			return true
		}
	}
	return false
}
