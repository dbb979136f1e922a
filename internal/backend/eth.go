package backend

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	_ "embed"

	"github.com/agis/medbook/internal/contract"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

//go:embed medbook.abi.json
var abiJSON string

var ErrReadOnly = errors.New("contract handle has no signer")

var parseABI = sync.OnceValues(func() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(abiJSON))
})

// ABI returns the parsed MedBooking contract ABI.
func ABI() (abi.ABI, error) { return parseABI() }

// ChainClient is what ethclient.Client provides.
type ChainClient interface {
	bind.ContractBackend
	bind.DeployBackend
}

type doctorTuple struct {
	WalletAddress   common.Address
	Name            string
	Specialization  string
	HospitalName    string
	ConsultationFee *big.Int
	IsActive        bool
	RegisteredAt    *big.Int
}

type appointmentTuple struct {
	Id          *big.Int
	Patient     common.Address
	Doctor      common.Address
	DateTime    *big.Int
	Description string
	Status      uint8
	Fee         *big.Int
	CreatedAt   *big.Int
}

// EthBackend talks to a deployed MedBooking contract over JSON-RPC.
type EthBackend struct {
	address common.Address
	client  ChainClient
	bound   *bind.BoundContract
	opts    *bind.TransactOpts
}

// NewEthBackend binds the contract at address. opts may be nil for a
// read-only handle.
func NewEthBackend(address common.Address, client ChainClient, opts *bind.TransactOpts) (*EthBackend, error) {
	parsed, err := ABI()
	if err != nil {
		return nil, fmt.Errorf("parse contract abi: %w", err)
	}
	return &EthBackend{
		address: address,
		client:  client,
		bound:   bind.NewBoundContract(address, parsed, client, client, client),
		opts:    opts,
	}, nil
}

func (b *EthBackend) Address() common.Address { return b.address }

func (b *EthBackend) HasCode(ctx context.Context) (bool, error) {
	code, err := b.client.CodeAt(ctx, b.address, nil)
	if err != nil {
		return false, err
	}
	return len(code) > 0, nil
}

func (b *EthBackend) Platform(ctx context.Context) (*contract.PlatformInfo, error) {
	owner, err := b.call(ctx, "owner")
	if err != nil {
		return nil, err
	}
	fee, err := b.call(ctx, "platformFeePercent")
	if err != nil {
		return nil, err
	}
	total, err := b.call(ctx, "totalAppointments")
	if err != nil {
		return nil, err
	}
	return &contract.PlatformInfo{
		Owner:              convert[common.Address](owner[0]),
		PlatformFeePercent: bigToUint64(convert[*big.Int](fee[0])),
		TotalAppointments:  bigToUint64(convert[*big.Int](total[0])),
	}, nil
}

func (b *EthBackend) Doctor(ctx context.Context, addr common.Address) (*contract.Doctor, error) {
	out, err := b.call(ctx, "getDoctorDetails", addr)
	if err != nil {
		return nil, err
	}
	d := toDoctor(convert[doctorTuple](out[0]))
	return &d, nil
}

func (b *EthBackend) Patient(ctx context.Context, addr common.Address) (*contract.Patient, error) {
	out, err := b.call(ctx, "patients", addr)
	if err != nil {
		return nil, err
	}
	if len(out) < 5 {
		return nil, fmt.Errorf("patients: %w", ErrNoData)
	}
	return &contract.Patient{
		Address:      convert[common.Address](out[0]),
		Name:         convert[string](out[1]),
		ContactInfo:  convert[string](out[2]),
		IsRegistered: convert[bool](out[3]),
		RegisteredAt: unixTime(convert[*big.Int](out[4])),
	}, nil
}

func (b *EthBackend) ActiveDoctors(ctx context.Context) ([]contract.Doctor, error) {
	out, err := b.call(ctx, "getActiveDoctors")
	if err != nil {
		return nil, err
	}
	raw := convert[[]doctorTuple](out[0])
	items := make([]contract.Doctor, 0, len(raw))
	for _, t := range raw {
		items = append(items, toDoctor(t))
	}
	return items, nil
}

func (b *EthBackend) AllDoctorAddresses(ctx context.Context) ([]common.Address, error) {
	out, err := b.call(ctx, "getAllDoctors")
	if err != nil {
		return nil, err
	}
	return convert[[]common.Address](out[0]), nil
}

func (b *EthBackend) DoctorAppointmentIDs(ctx context.Context, addr common.Address) ([]uint64, error) {
	return b.ids(ctx, "getDoctorAppointments", addr)
}

func (b *EthBackend) PatientAppointmentIDs(ctx context.Context, addr common.Address) ([]uint64, error) {
	return b.ids(ctx, "getPatientAppointments", addr)
}

func (b *EthBackend) ids(ctx context.Context, method string, addr common.Address) ([]uint64, error) {
	out, err := b.call(ctx, method, addr)
	if err != nil {
		return nil, err
	}
	raw := convert[[]*big.Int](out[0])
	ids := make([]uint64, 0, len(raw))
	for _, v := range raw {
		ids = append(ids, bigToUint64(v))
	}
	return ids, nil
}

func (b *EthBackend) Appointment(ctx context.Context, id uint64) (*contract.Appointment, error) {
	out, err := b.call(ctx, "getAppointmentDetails", new(big.Int).SetUint64(id))
	if err != nil {
		return nil, err
	}
	t := convert[appointmentTuple](out[0])
	return &contract.Appointment{
		ID:          bigToUint64(t.Id),
		Patient:     t.Patient,
		Doctor:      t.Doctor,
		DateTime:    unixTime(t.DateTime),
		Description: t.Description,
		Status:      contract.AppointmentStatus(t.Status),
		Fee:         t.Fee,
		CreatedAt:   unixTime(t.CreatedAt),
	}, nil
}

func (b *EthBackend) IsSlotAvailable(ctx context.Context, doctor common.Address, dateTime uint64) (bool, error) {
	out, err := b.call(ctx, "isSlotAvailable", doctor, new(big.Int).SetUint64(dateTime))
	if err != nil {
		return false, err
	}
	return convert[bool](out[0]), nil
}

func (b *EthBackend) RegisterDoctor(ctx context.Context, in DoctorInput) (PendingTx, error) {
	return b.transact(ctx, nil, "registerDoctor", in.Name, in.Specialization, in.HospitalName, nonNil(in.ConsultationFee))
}

func (b *EthBackend) UpdateDoctorProfile(ctx context.Context, in DoctorInput) (PendingTx, error) {
	return b.transact(ctx, nil, "updateDoctorProfile", in.Name, in.Specialization, in.HospitalName, nonNil(in.ConsultationFee))
}

func (b *EthBackend) DeactivateDoctor(ctx context.Context) (PendingTx, error) {
	return b.transact(ctx, nil, "deactivateDoctor")
}

func (b *EthBackend) RegisterPatient(ctx context.Context, in PatientInput) (PendingTx, error) {
	return b.transact(ctx, nil, "registerPatient", in.Name, in.ContactInfo)
}

func (b *EthBackend) UpdatePatientProfile(ctx context.Context, in PatientInput) (PendingTx, error) {
	return b.transact(ctx, nil, "updatePatientProfile", in.Name, in.ContactInfo)
}

func (b *EthBackend) BookAppointment(ctx context.Context, in BookingInput) (PendingTx, error) {
	return b.transact(ctx, in.Value, "bookAppointment", in.Doctor, new(big.Int).SetUint64(in.DateTime), in.Description)
}

func (b *EthBackend) CancelAppointment(ctx context.Context, id uint64) (PendingTx, error) {
	return b.transact(ctx, nil, "cancelAppointment", new(big.Int).SetUint64(id))
}

func (b *EthBackend) CompleteAppointment(ctx context.Context, id uint64) (PendingTx, error) {
	return b.transact(ctx, nil, "completeAppointment", new(big.Int).SetUint64(id))
}

func (b *EthBackend) MarkNoShow(ctx context.Context, id uint64) (PendingTx, error) {
	return b.transact(ctx, nil, "markNoShow", new(big.Int).SetUint64(id))
}

func (b *EthBackend) UpdatePlatformFee(ctx context.Context, percent uint64) (PendingTx, error) {
	return b.transact(ctx, nil, "updatePlatformFee", new(big.Int).SetUint64(percent))
}

func (b *EthBackend) WithdrawPlatformFees(ctx context.Context) (PendingTx, error) {
	return b.transact(ctx, nil, "withdrawPlatformFees")
}

func (b *EthBackend) TransferOwnership(ctx context.Context, newOwner common.Address) (PendingTx, error) {
	return b.transact(ctx, nil, "transferOwnership", newOwner)
}

func (b *EthBackend) call(ctx context.Context, method string, args ...any) ([]any, error) {
	opts := &bind.CallOpts{Context: ctx}
	if b.opts != nil {
		opts.From = b.opts.From
	}
	var out []any
	if err := b.bound.Call(opts, &out, method, args...); err != nil {
		return nil, fmt.Errorf("%s: %w", method, normalizeCallError(err))
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: %w", method, ErrNoData)
	}
	return out, nil
}

func (b *EthBackend) transact(ctx context.Context, value *big.Int, method string, args ...any) (PendingTx, error) {
	if b.opts == nil {
		return nil, ErrReadOnly
	}
	opts := *b.opts
	opts.Context = ctx
	opts.Value = value
	tx, err := b.bound.Transact(&opts, method, args...)
	if err != nil {
		return nil, err
	}
	return &ethPendingTx{tx: tx, client: b.client}, nil
}

type ethPendingTx struct {
	tx     *types.Transaction
	client bind.DeployBackend
}

func (p *ethPendingTx) Hash() common.Hash { return p.tx.Hash() }

func (p *ethPendingTx) Wait(ctx context.Context) (*contract.Receipt, error) {
	receipt, err := bind.WaitMined(ctx, p.client, p.tx)
	if err != nil {
		return nil, err
	}
	out := &contract.Receipt{TxHash: receipt.TxHash, GasUsed: receipt.GasUsed}
	if receipt.BlockNumber != nil {
		out.BlockNumber = receipt.BlockNumber.Uint64()
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return out, fmt.Errorf("%s: %w", receipt.TxHash.Hex(), ErrReverted)
	}
	return out, nil
}

// An empty return from an existing contract means "nothing stored here".
func normalizeCallError(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "attempting to unmarshal an empty string") {
		return ErrNoData
	}
	return err
}

func convert[T any](v any) T {
	return *abi.ConvertType(v, new(T)).(*T)
}

func toDoctor(t doctorTuple) contract.Doctor {
	return contract.Doctor{
		Address:         t.WalletAddress,
		Name:            t.Name,
		Specialization:  t.Specialization,
		HospitalName:    t.HospitalName,
		ConsultationFee: t.ConsultationFee,
		IsActive:        t.IsActive,
		RegisteredAt:    unixTime(t.RegisteredAt),
	}
}

func bigToUint64(v *big.Int) uint64 {
	if v == nil || !v.IsUint64() {
		return 0
	}
	return v.Uint64()
}

func unixTime(v *big.Int) time.Time {
	ts := bigToUint64(v)
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(int64(ts), 0).UTC()
}

func nonNil(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
