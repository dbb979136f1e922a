package contract

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const SchemaVersion = "v1"

type ErrorCode string

const (
	ErrGeneric          ErrorCode = "GENERIC_FAILURE"
	ErrInvalidUsage     ErrorCode = "INVALID_USAGE"
	ErrWalletMissing    ErrorCode = "WALLET_MISSING"
	ErrWrongNetwork     ErrorCode = "WRONG_NETWORK"
	ErrNotConnected     ErrorCode = "NOT_CONNECTED"
	ErrNotRegistered    ErrorCode = "NOT_REGISTERED"
	ErrNotFound         ErrorCode = "NOT_FOUND"
	ErrTxRejected       ErrorCode = "TRANSACTION_REJECTED"
	ErrChainUnavailable ErrorCode = "CHAIN_UNAVAILABLE"
	ErrBusy             ErrorCode = "BUSY"
)

type ErrorEnvelope struct {
	SchemaVersion string         `json:"schema_version"`
	Error         ErrorBody      `json:"error"`
	Meta          map[string]any `json:"meta,omitempty"`
}

type ErrorBody struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Hint    string    `json:"hint,omitempty"`
}

type SuccessEnvelope struct {
	SchemaVersion string         `json:"schema_version"`
	Command       string         `json:"command"`
	GeneratedAt   time.Time      `json:"generated_at"`
	Data          any            `json:"data"`
	Meta          map[string]any `json:"meta"`
	Warnings      []string       `json:"warnings"`
}

// Doctor mirrors the contract's doctor record.
type Doctor struct {
	Address         common.Address `json:"address"`
	Name            string         `json:"name"`
	Specialization  string         `json:"specialization"`
	HospitalName    string         `json:"hospital_name"`
	ConsultationFee *big.Int       `json:"consultation_fee"`
	IsActive        bool           `json:"is_active"`
	RegisteredAt    time.Time      `json:"registered_at"`
}

type Patient struct {
	Address      common.Address `json:"address"`
	Name         string         `json:"name"`
	ContactInfo  string         `json:"contact_info"`
	IsRegistered bool           `json:"is_registered"`
	RegisteredAt time.Time      `json:"registered_at"`
}

type Appointment struct {
	ID          uint64            `json:"id"`
	Patient     common.Address    `json:"patient"`
	Doctor      common.Address    `json:"doctor"`
	DateTime    time.Time         `json:"date_time"`
	Description string            `json:"description"`
	Status      AppointmentStatus `json:"status"`
	Fee         *big.Int          `json:"fee"`
	CreatedAt   time.Time         `json:"created_at"`
}

// AppointmentStatus is the uint8 status enum stored on chain.
type AppointmentStatus uint8

const (
	StatusScheduled AppointmentStatus = iota
	StatusCompleted
	StatusCancelled
	StatusNoShow
)

var statusNames = [...]string{"Scheduled", "Completed", "Cancelled", "NoShow"}

func (s AppointmentStatus) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "Unknown"
}

func (s AppointmentStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *AppointmentStatus) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	v, err := ParseStatus(name)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func ParseStatus(name string) (AppointmentStatus, error) {
	n := strings.NewReplacer(" ", "", "-", "", "_", "").Replace(strings.TrimSpace(name))
	for i, s := range statusNames {
		if strings.EqualFold(s, n) {
			return AppointmentStatus(i), nil
		}
	}
	return 0, fmt.Errorf("unknown appointment status: %s", name)
}

var Specializations = []string{
	"General Practice",
	"Cardiology",
	"Dermatology",
	"Endocrinology",
	"Gastroenterology",
	"Neurology",
	"Oncology",
	"Ophthalmology",
	"Orthopedics",
	"Pediatrics",
	"Psychiatry",
	"Pulmonology",
	"Radiology",
	"Urology",
}

func IsSpecialization(v string) bool {
	for _, s := range Specializations {
		if s == v {
			return true
		}
	}
	return false
}

type PlatformInfo struct {
	Owner              common.Address `json:"owner"`
	PlatformFeePercent uint64         `json:"platform_fee_percent"`
	TotalAppointments  uint64         `json:"total_appointments"`
}

type Receipt struct {
	TxHash      common.Hash `json:"tx_hash"`
	BlockNumber uint64      `json:"block_number"`
	GasUsed     uint64      `json:"gas_used"`
}

// SessionState is the local wallet session snapshot. It is rebuilt on every run.
type SessionState struct {
	Account    *common.Address `json:"account,omitempty"`
	ChainID    string          `json:"chain_id,omitempty"`
	Connecting bool            `json:"connecting"`
	Error      string          `json:"error,omitempty"`
}

func (s SessionState) Connected() bool { return s.Account != nil }

type Check struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message"`
}
