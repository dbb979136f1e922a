package backend

import (
	"context"
	"errors"
	"math/big"

	"github.com/agis/medbook/internal/contract"
	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrNoData is returned when a read produced no data at all, which the
	// contract does for addresses it has never seen.
	ErrNoData = errors.New("no data returned for call")
	// ErrReverted is returned by PendingTx.Wait when the transaction was mined
	// but execution failed.
	ErrReverted = errors.New("transaction reverted on chain")
)

type DoctorInput struct {
	Name            string
	Specialization  string
	HospitalName    string
	ConsultationFee *big.Int
}

type PatientInput struct {
	Name        string
	ContactInfo string
}

type BookingInput struct {
	Doctor      common.Address
	DateTime    uint64
	Description string
	Value       *big.Int
}

// PendingTx is a submitted transaction. Wait blocks until the network
// confirms it; there is no client-side timeout beyond ctx.
type PendingTx interface {
	Hash() common.Hash
	Wait(ctx context.Context) (*contract.Receipt, error)
}

// Reader is the read-only half of the contract surface.
type Reader interface {
	HasCode(context.Context) (bool, error)
	Platform(context.Context) (*contract.PlatformInfo, error)
	Doctor(context.Context, common.Address) (*contract.Doctor, error)
	Patient(context.Context, common.Address) (*contract.Patient, error)
	ActiveDoctors(context.Context) ([]contract.Doctor, error)
	AllDoctorAddresses(context.Context) ([]common.Address, error)
	DoctorAppointmentIDs(context.Context, common.Address) ([]uint64, error)
	PatientAppointmentIDs(context.Context, common.Address) ([]uint64, error)
	Appointment(context.Context, uint64) (*contract.Appointment, error)
	IsSlotAvailable(ctx context.Context, doctor common.Address, dateTime uint64) (bool, error)
}

// Writer submits state-changing calls signed by the bound account.
type Writer interface {
	RegisterDoctor(context.Context, DoctorInput) (PendingTx, error)
	UpdateDoctorProfile(context.Context, DoctorInput) (PendingTx, error)
	DeactivateDoctor(context.Context) (PendingTx, error)
	RegisterPatient(context.Context, PatientInput) (PendingTx, error)
	UpdatePatientProfile(context.Context, PatientInput) (PendingTx, error)
	BookAppointment(context.Context, BookingInput) (PendingTx, error)
	CancelAppointment(context.Context, uint64) (PendingTx, error)
	CompleteAppointment(context.Context, uint64) (PendingTx, error)
	MarkNoShow(context.Context, uint64) (PendingTx, error)
	UpdatePlatformFee(context.Context, uint64) (PendingTx, error)
	WithdrawPlatformFees(context.Context) (PendingTx, error)
	TransferOwnership(context.Context, common.Address) (PendingTx, error)
}

// Backend is a contract handle bound to one signing account.
type Backend interface {
	Reader
	Writer
	Address() common.Address
}
