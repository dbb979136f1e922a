// Package backendtest provides an in-memory MedBooking contract for tests.
package backendtest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/agis/medbook/internal/backend"
	"github.com/agis/medbook/internal/contract"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

var revertSelector = crypto.Keccak256([]byte("Error(string)"))[:4]

// RevertError looks like the JSON-RPC error a node returns when gas
// estimation hits a require() failure.
type RevertError struct {
	Reason string
}

func (e *RevertError) Error() string { return "execution reverted: " + e.Reason }

func (e *RevertError) ErrorCode() int { return 3 }

func (e *RevertError) ErrorData() interface{} {
	stringType, _ := abi.NewType("string", "", nil)
	packed, _ := abi.Arguments{{Type: stringType}}.Pack(e.Reason)
	return hexutil.Encode(append(append([]byte{}, revertSelector...), packed...))
}

func revert(reason string) error { return &RevertError{Reason: reason} }

// Memory is a single contract instance shared by every account handle.
type Memory struct {
	mu sync.Mutex

	owner      common.Address
	feePercent uint64
	now        func() time.Time

	doctors     map[common.Address]*contract.Doctor
	doctorOrder []common.Address
	patients    map[common.Address]*contract.Patient
	appts       []*contract.Appointment
	byDoctor    map[common.Address][]uint64
	byPatient   map[common.Address][]uint64
	feesHeld    *big.Int
	txCount     int64

	// Deployed=false makes every call fail the way a missing contract does.
	Deployed bool
	// ReadErr, when set, is returned by every read.
	ReadErr error
	// SubmitErr maps a method name to an error returned before submission.
	SubmitErr map[string]error
	// HoldWaits blocks PendingTx.Wait until closed.
	HoldWaits chan struct{}

	calls []string
}

func NewMemory(owner common.Address, now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{
		owner:      owner,
		feePercent: 5,
		now:        now,
		doctors:    map[common.Address]*contract.Doctor{},
		patients:   map[common.Address]*contract.Patient{},
		byDoctor:   map[common.Address][]uint64{},
		byPatient:  map[common.Address][]uint64{},
		feesHeld:   new(big.Int),
		Deployed:   true,
		SubmitErr:  map[string]error{},
	}
}

// As returns a contract handle whose transactions are sent from account.
func (m *Memory) As(account common.Address) backend.Backend {
	return &handle{m: m, from: account}
}

// Calls returns the method names invoked so far, in order.
func (m *Memory) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *Memory) ResetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// SetStatus forces an appointment status, bypassing contract rules.
func (m *Memory) SetStatus(id uint64, st contract.AppointmentStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a := m.appt(id); a != nil {
		a.Status = st
	}
}

func (m *Memory) record(method string) error {
	m.calls = append(m.calls, method)
	if !m.Deployed {
		return fmt.Errorf("%s: no contract code at given address", method)
	}
	return nil
}

func (m *Memory) read(method string) error {
	if err := m.record(method); err != nil {
		return err
	}
	return m.ReadErr
}

func (m *Memory) write(method string) error {
	if err := m.record(method); err != nil {
		return err
	}
	if err := m.SubmitErr[method]; err != nil {
		return err
	}
	return nil
}

func (m *Memory) appt(id uint64) *contract.Appointment {
	if id == 0 || id > uint64(len(m.appts)) {
		return nil
	}
	return m.appts[id-1]
}

func (m *Memory) pending() backend.PendingTx {
	m.txCount++
	return &pendingTx{hash: common.BigToHash(big.NewInt(m.txCount)), block: uint64(m.txCount), hold: m.HoldWaits}
}

type pendingTx struct {
	hash  common.Hash
	block uint64
	hold  chan struct{}
}

func (p *pendingTx) Hash() common.Hash { return p.hash }

func (p *pendingTx) Wait(ctx context.Context) (*contract.Receipt, error) {
	if p.hold != nil {
		select {
		case <-p.hold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return &contract.Receipt{TxHash: p.hash, BlockNumber: p.block, GasUsed: 21000}, nil
}

type handle struct {
	m    *Memory
	from common.Address
}

func (h *handle) Address() common.Address { return common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3") }

func (h *handle) HasCode(context.Context) (bool, error) {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	return h.m.Deployed, nil
}

func (h *handle) Platform(context.Context) (*contract.PlatformInfo, error) {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	if err := h.m.read("platform"); err != nil {
		return nil, err
	}
	return &contract.PlatformInfo{Owner: h.m.owner, PlatformFeePercent: h.m.feePercent, TotalAppointments: uint64(len(h.m.appts))}, nil
}

func (h *handle) Doctor(_ context.Context, addr common.Address) (*contract.Doctor, error) {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	if err := h.m.read("getDoctorDetails"); err != nil {
		return nil, err
	}
	d, ok := h.m.doctors[addr]
	if !ok {
		return &contract.Doctor{ConsultationFee: new(big.Int)}, nil
	}
	cp := *d
	return &cp, nil
}

func (h *handle) Patient(_ context.Context, addr common.Address) (*contract.Patient, error) {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	if err := h.m.read("patients"); err != nil {
		return nil, err
	}
	p, ok := h.m.patients[addr]
	if !ok {
		return &contract.Patient{}, nil
	}
	cp := *p
	return &cp, nil
}

func (h *handle) ActiveDoctors(context.Context) ([]contract.Doctor, error) {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	if err := h.m.read("getActiveDoctors"); err != nil {
		return nil, err
	}
	out := make([]contract.Doctor, 0, len(h.m.doctorOrder))
	for _, a := range h.m.doctorOrder {
		if d := h.m.doctors[a]; d.IsActive {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (h *handle) AllDoctorAddresses(context.Context) ([]common.Address, error) {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	if err := h.m.read("getAllDoctors"); err != nil {
		return nil, err
	}
	return append([]common.Address(nil), h.m.doctorOrder...), nil
}

func (h *handle) DoctorAppointmentIDs(_ context.Context, addr common.Address) ([]uint64, error) {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	if err := h.m.read("getDoctorAppointments"); err != nil {
		return nil, err
	}
	return append([]uint64(nil), h.m.byDoctor[addr]...), nil
}

func (h *handle) PatientAppointmentIDs(_ context.Context, addr common.Address) ([]uint64, error) {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	if err := h.m.read("getPatientAppointments"); err != nil {
		return nil, err
	}
	return append([]uint64(nil), h.m.byPatient[addr]...), nil
}

func (h *handle) Appointment(_ context.Context, id uint64) (*contract.Appointment, error) {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	if err := h.m.read("getAppointmentDetails"); err != nil {
		return nil, err
	}
	a := h.m.appt(id)
	if a == nil {
		return nil, revert("Appointment does not exist")
	}
	cp := *a
	return &cp, nil
}

func (h *handle) IsSlotAvailable(_ context.Context, doctor common.Address, dateTime uint64) (bool, error) {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	if err := h.m.read("isSlotAvailable"); err != nil {
		return false, err
	}
	return h.m.slotFree(doctor, dateTime), nil
}

func (m *Memory) slotFree(doctor common.Address, dateTime uint64) bool {
	for _, id := range m.byDoctor[doctor] {
		a := m.appt(id)
		if a.Status == contract.StatusScheduled && uint64(a.DateTime.Unix()) == dateTime {
			return false
		}
	}
	return true
}

func (h *handle) RegisterDoctor(_ context.Context, in backend.DoctorInput) (backend.PendingTx, error) {
	m := h.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.write("registerDoctor"); err != nil {
		return nil, err
	}
	if _, ok := m.doctors[h.from]; ok {
		return nil, revert("Doctor already registered")
	}
	if in.Name == "" {
		return nil, revert("Name required")
	}
	if in.ConsultationFee == nil || in.ConsultationFee.Sign() <= 0 {
		return nil, revert("Fee must be greater than 0")
	}
	m.doctors[h.from] = &contract.Doctor{
		Address:         h.from,
		Name:            in.Name,
		Specialization:  in.Specialization,
		HospitalName:    in.HospitalName,
		ConsultationFee: new(big.Int).Set(in.ConsultationFee),
		IsActive:        true,
		RegisteredAt:    m.now().UTC().Truncate(time.Second),
	}
	m.doctorOrder = append(m.doctorOrder, h.from)
	return m.pending(), nil
}

func (h *handle) UpdateDoctorProfile(_ context.Context, in backend.DoctorInput) (backend.PendingTx, error) {
	m := h.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.write("updateDoctorProfile"); err != nil {
		return nil, err
	}
	d, ok := m.doctors[h.from]
	if !ok {
		return nil, revert("Not a registered doctor")
	}
	d.Name, d.Specialization, d.HospitalName = in.Name, in.Specialization, in.HospitalName
	if in.ConsultationFee != nil {
		d.ConsultationFee = new(big.Int).Set(in.ConsultationFee)
	}
	return m.pending(), nil
}

func (h *handle) DeactivateDoctor(context.Context) (backend.PendingTx, error) {
	m := h.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.write("deactivateDoctor"); err != nil {
		return nil, err
	}
	d, ok := m.doctors[h.from]
	if !ok || !d.IsActive {
		return nil, revert("Not an active doctor")
	}
	d.IsActive = false
	return m.pending(), nil
}

func (h *handle) RegisterPatient(_ context.Context, in backend.PatientInput) (backend.PendingTx, error) {
	m := h.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.write("registerPatient"); err != nil {
		return nil, err
	}
	if p, ok := m.patients[h.from]; ok && p.IsRegistered {
		return nil, revert("Patient already registered")
	}
	if in.Name == "" {
		return nil, revert("Name required")
	}
	m.patients[h.from] = &contract.Patient{
		Address:      h.from,
		Name:         in.Name,
		ContactInfo:  in.ContactInfo,
		IsRegistered: true,
		RegisteredAt: m.now().UTC().Truncate(time.Second),
	}
	return m.pending(), nil
}

func (h *handle) UpdatePatientProfile(_ context.Context, in backend.PatientInput) (backend.PendingTx, error) {
	m := h.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.write("updatePatientProfile"); err != nil {
		return nil, err
	}
	p, ok := m.patients[h.from]
	if !ok {
		return nil, revert("Not a registered patient")
	}
	p.Name, p.ContactInfo = in.Name, in.ContactInfo
	return m.pending(), nil
}

func (h *handle) BookAppointment(_ context.Context, in backend.BookingInput) (backend.PendingTx, error) {
	m := h.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.write("bookAppointment"); err != nil {
		return nil, err
	}
	if p, ok := m.patients[h.from]; !ok || !p.IsRegistered {
		return nil, revert("Patient not registered")
	}
	d, ok := m.doctors[in.Doctor]
	if !ok || !d.IsActive {
		return nil, revert("Doctor not active")
	}
	if int64(in.DateTime) <= m.now().Unix() {
		return nil, revert("Appointment must be in the future")
	}
	if in.Value == nil || in.Value.Cmp(d.ConsultationFee) != 0 {
		return nil, revert("Incorrect consultation fee")
	}
	if !m.slotFree(in.Doctor, in.DateTime) {
		return nil, revert("Time slot not available")
	}
	id := uint64(len(m.appts) + 1)
	m.appts = append(m.appts, &contract.Appointment{
		ID:          id,
		Patient:     h.from,
		Doctor:      in.Doctor,
		DateTime:    time.Unix(int64(in.DateTime), 0).UTC(),
		Description: in.Description,
		Status:      contract.StatusScheduled,
		Fee:         new(big.Int).Set(in.Value),
		CreatedAt:   m.now().UTC().Truncate(time.Second),
	})
	m.byDoctor[in.Doctor] = append(m.byDoctor[in.Doctor], id)
	m.byPatient[h.from] = append(m.byPatient[h.from], id)
	return m.pending(), nil
}

func (h *handle) CancelAppointment(_ context.Context, id uint64) (backend.PendingTx, error) {
	m := h.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.write("cancelAppointment"); err != nil {
		return nil, err
	}
	a := m.appt(id)
	if a == nil {
		return nil, revert("Appointment does not exist")
	}
	if a.Patient != h.from && a.Doctor != h.from {
		return nil, revert("Not authorized")
	}
	if a.Status != contract.StatusScheduled {
		return nil, revert("Appointment not scheduled")
	}
	a.Status = contract.StatusCancelled
	return m.pending(), nil
}

func (h *handle) CompleteAppointment(_ context.Context, id uint64) (backend.PendingTx, error) {
	return h.doctorTransition("completeAppointment", id, contract.StatusCompleted)
}

func (h *handle) MarkNoShow(_ context.Context, id uint64) (backend.PendingTx, error) {
	return h.doctorTransition("markNoShow", id, contract.StatusNoShow)
}

func (h *handle) doctorTransition(method string, id uint64, to contract.AppointmentStatus) (backend.PendingTx, error) {
	m := h.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.write(method); err != nil {
		return nil, err
	}
	a := m.appt(id)
	if a == nil {
		return nil, revert("Appointment does not exist")
	}
	if a.Doctor != h.from {
		return nil, revert("Only the doctor can do this")
	}
	if a.Status != contract.StatusScheduled {
		return nil, revert("Appointment not scheduled")
	}
	a.Status = to
	if to == contract.StatusCompleted {
		fee := new(big.Int).Mul(a.Fee, new(big.Int).SetUint64(m.feePercent))
		m.feesHeld.Add(m.feesHeld, fee.Div(fee, big.NewInt(100)))
	}
	return m.pending(), nil
}

func (h *handle) UpdatePlatformFee(_ context.Context, percent uint64) (backend.PendingTx, error) {
	m := h.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := h.ownerWrite("updatePlatformFee"); err != nil {
		return nil, err
	}
	if percent > 10 {
		return nil, revert("Fee cannot exceed 10%")
	}
	m.feePercent = percent
	return m.pending(), nil
}

func (h *handle) WithdrawPlatformFees(context.Context) (backend.PendingTx, error) {
	m := h.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := h.ownerWrite("withdrawPlatformFees"); err != nil {
		return nil, err
	}
	if m.feesHeld.Sign() == 0 {
		return nil, revert("No fees to withdraw")
	}
	m.feesHeld = new(big.Int)
	return m.pending(), nil
}

func (h *handle) TransferOwnership(_ context.Context, newOwner common.Address) (backend.PendingTx, error) {
	m := h.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := h.ownerWrite("transferOwnership"); err != nil {
		return nil, err
	}
	if newOwner == (common.Address{}) {
		return nil, revert("Invalid address")
	}
	m.owner = newOwner
	return m.pending(), nil
}

func (h *handle) ownerWrite(method string) error {
	if err := h.m.write(method); err != nil {
		return err
	}
	if h.from != h.m.owner {
		return revert("Only owner")
	}
	return nil
}

// ErrTransport is a stand-in for a JSON-RPC connection failure.
var ErrTransport = errors.New("dial tcp 127.0.0.1:8545: connect: connection refused")
