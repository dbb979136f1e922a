// Package booking keeps the client-side view of the MedBooking contract in
// sync and submits transactions against it.
package booking

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agis/medbook/internal/backend"
	"github.com/agis/medbook/internal/contract"
	"github.com/agis/medbook/internal/format"
	"github.com/agis/medbook/internal/journal"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// HandleSource yields the connected contract handle. *wallet.Session is one.
type HandleSource interface {
	Handle() (backend.Backend, common.Address, error)
}

// Recorder journals submitted transactions. *journal.Journal is one.
type Recorder interface {
	Begin(ctx context.Context, account, action string) (string, error)
	Update(ctx context.Context, id, txHash string, status journal.Status, message string) error
}

type Options struct {
	Notifier Notifier
	Log      *logrus.Entry
	Journal  Recorder
	// ReadOnly supplies a handle for account-independent reads when no
	// wallet is connected.
	ReadOnly func(ctx context.Context) (backend.Reader, error)
	// Concurrency bounds parallel appointment detail reads.
	Concurrency int
	// RPS throttles detail reads. Zero disables throttling.
	RPS      float64
	Burst    int
	Now      func() time.Time
	Location *time.Location
}

type Store struct {
	src      HandleSource
	notify   Notifier
	log      *logrus.Entry
	journal  Recorder
	readOnly func(ctx context.Context) (backend.Reader, error)
	limiter  *rate.Limiter
	workers  int
	now      func() time.Time
	loc      *time.Location

	busy     atomic.Int32
	flightMu sync.Mutex
	inFlight map[string]bool

	mu           sync.RWMutex
	doctors      []contract.Doctor
	appointments []contract.Appointment
	role         Role
}

func NewStore(src HandleSource, opts Options) *Store {
	if opts.Notifier == nil {
		opts.Notifier = NopNotifier{}
	}
	if opts.Log == nil {
		opts.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RPS > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RPS), burst)
	}
	return &Store{
		src:      src,
		notify:   opts.Notifier,
		log:      opts.Log.WithField("component", "booking"),
		journal:  opts.Journal,
		readOnly: opts.ReadOnly,
		limiter:  limiter,
		workers:  opts.Concurrency,
		now:      opts.Now,
		loc:      opts.Location,
		inFlight: map[string]bool{},
	}
}

// Busy reports whether any store operation is outstanding.
func (s *Store) Busy() bool { return s.busy.Load() > 0 }

func (s *Store) enter() func() {
	s.busy.Add(1)
	return func() { s.busy.Add(-1) }
}

// acquire marks key in flight. A second acquire of the same key fails until
// the first is released.
func (s *Store) acquire(key string) (func(), error) {
	s.flightMu.Lock()
	defer s.flightMu.Unlock()
	if s.inFlight[key] {
		return nil, fmt.Errorf("%s: %w", key, ErrBusy)
	}
	s.inFlight[key] = true
	leave := s.enter()
	return func() {
		s.flightMu.Lock()
		delete(s.inFlight, key)
		s.flightMu.Unlock()
		leave()
	}, nil
}

func (s *Store) reader(ctx context.Context) (backend.Reader, error) {
	h, _, err := s.src.Handle()
	if err == nil {
		return h, nil
	}
	if s.readOnly != nil {
		return s.readOnly(ctx)
	}
	return nil, err
}

// Doctors returns the cached doctor list.
func (s *Store) Doctors() []contract.Doctor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]contract.Doctor(nil), s.doctors...)
}

// Appointments returns the cached appointment list.
func (s *Store) Appointments() []contract.Appointment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]contract.Appointment(nil), s.appointments...)
}

// Role returns the last resolved role, or Unregistered if none was resolved.
func (s *Store) Role() Role {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.role == nil {
		return Unregistered{}
	}
	return s.role
}

// Reset drops every cached list and the resolved role.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doctors = nil
	s.appointments = nil
	s.role = nil
}

// ResolveRole probes the doctor registry first and the patient registry
// second. It never fails: read errors are logged and resolve to Unregistered.
func (s *Store) ResolveRole(ctx context.Context) Role {
	defer s.enter()()
	role := s.probeRole(ctx)
	s.mu.Lock()
	s.role = role
	s.mu.Unlock()
	return role
}

func (s *Store) probeRole(ctx context.Context) Role {
	h, account, err := s.src.Handle()
	if err != nil {
		return Unregistered{}
	}
	d, err := h.Doctor(ctx, account)
	switch {
	case err == nil && d.IsActive:
		return DoctorRole{Profile: *d}
	case err != nil && !absent(err):
		s.log.WithError(err).Warn("doctor lookup failed")
		return Unregistered{}
	}
	p, err := h.Patient(ctx, account)
	switch {
	case err == nil && p.IsRegistered:
		return PatientRole{Profile: *p}
	case err != nil && !absent(err):
		s.log.WithError(err).Warn("patient lookup failed")
	}
	return Unregistered{}
}

// absent reports read failures that only mean "no record for this address":
// an empty result or a revert from the lookup itself.
func absent(err error) bool {
	if errors.Is(err, backend.ErrNoData) {
		return true
	}
	var de rpc.DataError
	return errors.As(err, &de) || strings.Contains(err.Error(), "execution reverted")
}

// ListDoctors replaces the cached list with the active doctors.
func (s *Store) ListDoctors(ctx context.Context) ([]contract.Doctor, error) {
	defer s.enter()()
	r, err := s.reader(ctx)
	if err != nil {
		return nil, err
	}
	list, err := r.ActiveDoctors(ctx)
	if err != nil {
		s.log.WithError(err).Warn("fetch doctors failed")
		s.notify.Error("doctors", "Failed to fetch doctors")
		return nil, err
	}
	s.mu.Lock()
	s.doctors = list
	s.mu.Unlock()
	return append([]contract.Doctor(nil), list...), nil
}

// Doctor reads one doctor record. ErrNoData means the address is unknown.
func (s *Store) Doctor(ctx context.Context, addr common.Address) (*contract.Doctor, error) {
	r, err := s.reader(ctx)
	if err != nil {
		return nil, err
	}
	d, err := r.Doctor(ctx, addr)
	if err != nil {
		return nil, err
	}
	if d.Address == (common.Address{}) {
		return nil, backend.ErrNoData
	}
	return d, nil
}

// Platform reads owner, fee percent and appointment count.
func (s *Store) Platform(ctx context.Context) (*contract.PlatformInfo, error) {
	r, err := s.reader(ctx)
	if err != nil {
		return nil, err
	}
	return r.Platform(ctx)
}

// ListAppointments fetches the caller's appointment ids for the resolved
// role, then every record, and replaces the cached list.
func (s *Store) ListAppointments(ctx context.Context) ([]contract.Appointment, error) {
	defer s.enter()()
	h, account, err := s.src.Handle()
	if err != nil {
		return nil, err
	}
	var ids []uint64
	switch s.Role().(type) {
	case DoctorRole:
		ids, err = h.DoctorAppointmentIDs(ctx, account)
	case PatientRole:
		ids, err = h.PatientAppointmentIDs(ctx, account)
	}
	if err != nil {
		s.log.WithError(err).Warn("fetch appointment ids failed")
		s.notify.Error("appointments", "Failed to fetch appointments")
		return nil, err
	}

	items := make([]contract.Appointment, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			if err := s.limiter.Wait(gctx); err != nil {
				return err
			}
			a, err := h.Appointment(gctx, id)
			if err != nil {
				return fmt.Errorf("appointment %d: %w", id, err)
			}
			items[i] = *a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.log.WithError(err).Warn("fetch appointment details failed")
		s.notify.Error("appointments", "Failed to fetch appointments")
		return nil, err
	}
	s.mu.Lock()
	s.appointments = items
	s.mu.Unlock()
	return append([]contract.Appointment(nil), items...), nil
}

// CheckSlot reports whether doctor is free at ts. Read failures count as
// taken.
func (s *Store) CheckSlot(ctx context.Context, doctor common.Address, ts time.Time) bool {
	r, err := s.reader(ctx)
	if err != nil {
		return false
	}
	ok, err := r.IsSlotAvailable(ctx, doctor, uint64(ts.Unix()))
	if err != nil {
		s.log.WithError(err).Warn("slot check failed")
		return false
	}
	return ok
}

// Result is a confirmed write.
type Result struct {
	Action  string            `json:"action"`
	Receipt *contract.Receipt `json:"receipt"`
}

type write struct {
	key     string
	// target narrows the in-flight key, e.g. an appointment id.
	target  string
	pending string
	success string
	send    func(ctx context.Context, h backend.Backend) (backend.PendingTx, error)
	refresh func(ctx context.Context)
}

func (w write) flightKey() string {
	if w.target == "" {
		return w.key
	}
	return w.key + ":" + w.target
}

// run submits, waits for confirmation and refreshes. The cache only changes
// through the refresh after confirmation.
func (s *Store) run(ctx context.Context, w write) (*Result, error) {
	release, err := s.acquire(w.flightKey())
	if err != nil {
		return nil, err
	}
	defer release()

	h, account, err := s.src.Handle()
	if err != nil {
		return nil, err
	}
	log := s.log.WithFields(logrus.Fields{"action": w.key, "account": account.Hex()})
	entryID := s.journalBegin(ctx, account, w.key)

	tx, err := w.send(ctx, h)
	if err != nil {
		return nil, s.fail(ctx, log, entryID, w.key, err)
	}
	log = log.WithField("tx", tx.Hash().Hex())
	s.notify.Pending(w.key, w.pending)
	s.journalUpdate(ctx, entryID, tx.Hash().Hex(), journal.StatusPending, "")

	receipt, err := tx.Wait(ctx)
	if err != nil {
		return nil, s.fail(ctx, log, entryID, w.key, err)
	}
	s.notify.Success(w.key, w.success)
	s.journalUpdate(ctx, entryID, "", journal.StatusConfirmed, fmt.Sprintf("block %d", receipt.BlockNumber))
	log.Debug("transaction confirmed")

	if w.refresh != nil {
		w.refresh(ctx)
	}
	return &Result{Action: w.key, Receipt: receipt}, nil
}

func (s *Store) fail(ctx context.Context, log *logrus.Entry, entryID, key string, err error) error {
	te := Classify(err)
	log.WithError(err).WithField("category", te.Category.String()).Warn("transaction failed")
	s.notify.Error(key, te.Message)
	s.journalUpdate(context.WithoutCancel(ctx), entryID, "", journal.StatusFailed, te.Message)
	return te
}

func (s *Store) journalBegin(ctx context.Context, account common.Address, action string) string {
	if s.journal == nil {
		return ""
	}
	id, err := s.journal.Begin(ctx, account.Hex(), action)
	if err != nil {
		s.log.WithError(err).Warn("journal write failed")
		return ""
	}
	return id
}

func (s *Store) journalUpdate(ctx context.Context, id, hash string, status journal.Status, msg string) {
	if s.journal == nil || id == "" {
		return
	}
	if err := s.journal.Update(ctx, id, hash, status, msg); err != nil {
		s.log.WithError(err).Warn("journal update failed")
	}
}

func (s *Store) refreshRole(ctx context.Context) { s.ResolveRole(ctx) }

func (s *Store) refreshAppointments(ctx context.Context) {
	if _, err := s.ListAppointments(ctx); err != nil {
		s.log.WithError(err).Warn("refresh after confirmed transaction failed")
	}
}

// RegisterDoctor validates form, rejects an account that already is an
// active doctor, and submits the registration.
func (s *Store) RegisterDoctor(ctx context.Context, form DoctorForm) (*Result, error) {
	if err := validateStruct(form); err != nil {
		return nil, err
	}
	fee, err := format.ParseCurrency(form.Fee)
	if err != nil {
		return nil, &ValidationError{Fields: map[string]string{"Fee": err.Error()}}
	}
	if s.alreadyRegistered(ctx, true) {
		s.notify.Error("register_doctor", "You are already registered as a doctor!")
		return nil, ErrAlreadyRegistered
	}
	in := backend.DoctorInput{Name: form.Name, Specialization: form.Specialization, HospitalName: form.HospitalName, ConsultationFee: fee}
	return s.run(ctx, write{
		key:     "register_doctor",
		pending: "Registering doctor...",
		success: "Successfully registered as doctor!",
		send: func(ctx context.Context, h backend.Backend) (backend.PendingTx, error) {
			return h.RegisterDoctor(ctx, in)
		},
		refresh: s.refreshRole,
	})
}

func (s *Store) RegisterPatient(ctx context.Context, form PatientForm) (*Result, error) {
	if err := validateStruct(form); err != nil {
		return nil, err
	}
	if s.alreadyRegistered(ctx, false) {
		s.notify.Error("register_patient", "You are already registered as a patient!")
		return nil, ErrAlreadyRegistered
	}
	in := backend.PatientInput{Name: form.Name, ContactInfo: form.ContactInfo}
	return s.run(ctx, write{
		key:     "register_patient",
		pending: "Registering patient...",
		success: "Successfully registered as patient!",
		send: func(ctx context.Context, h backend.Backend) (backend.PendingTx, error) {
			return h.RegisterPatient(ctx, in)
		},
		refresh: s.refreshRole,
	})
}

// alreadyRegistered is advisory. A failed read lets the registration
// proceed and the contract decides.
func (s *Store) alreadyRegistered(ctx context.Context, doctor bool) bool {
	h, account, err := s.src.Handle()
	if err != nil {
		return false
	}
	if doctor {
		d, err := h.Doctor(ctx, account)
		if err != nil {
			s.log.WithError(err).Debug("registration pre-check failed, continuing")
			return false
		}
		return d.IsActive
	}
	p, err := h.Patient(ctx, account)
	if err != nil {
		s.log.WithError(err).Debug("registration pre-check failed, continuing")
		return false
	}
	return p.IsRegistered
}

func (s *Store) UpdateDoctorProfile(ctx context.Context, form DoctorForm) (*Result, error) {
	if err := validateStruct(form); err != nil {
		return nil, err
	}
	fee, err := format.ParseCurrency(form.Fee)
	if err != nil {
		return nil, &ValidationError{Fields: map[string]string{"Fee": err.Error()}}
	}
	in := backend.DoctorInput{Name: form.Name, Specialization: form.Specialization, HospitalName: form.HospitalName, ConsultationFee: fee}
	return s.run(ctx, write{
		key:     "update_doctor_profile",
		pending: "Updating profile...",
		success: "Profile updated!",
		send: func(ctx context.Context, h backend.Backend) (backend.PendingTx, error) {
			return h.UpdateDoctorProfile(ctx, in)
		},
		refresh: s.refreshRole,
	})
}

func (s *Store) DeactivateDoctor(ctx context.Context) (*Result, error) {
	return s.run(ctx, write{
		key:     "deactivate_doctor",
		pending: "Deactivating doctor profile...",
		success: "Doctor profile deactivated",
		send: func(ctx context.Context, h backend.Backend) (backend.PendingTx, error) {
			return h.DeactivateDoctor(ctx)
		},
		refresh: s.refreshRole,
	})
}

func (s *Store) UpdatePatientProfile(ctx context.Context, form PatientForm) (*Result, error) {
	if err := validateStruct(form); err != nil {
		return nil, err
	}
	in := backend.PatientInput{Name: form.Name, ContactInfo: form.ContactInfo}
	return s.run(ctx, write{
		key:     "update_patient_profile",
		pending: "Updating profile...",
		success: "Profile updated!",
		send: func(ctx context.Context, h backend.Backend) (backend.PendingTx, error) {
			return h.UpdatePatientProfile(ctx, in)
		},
		refresh: s.refreshRole,
	})
}

// BookAppointment validates req locally, then pays req.Fee into the
// booking. The caller must hold the patient role.
func (s *Store) BookAppointment(ctx context.Context, req BookRequest) (*Result, error) {
	if err := ValidateBooking(req, s.now(), s.loc); err != nil {
		return nil, err
	}
	in := backend.BookingInput{
		Doctor:      req.Doctor,
		DateTime:    uint64(req.DateTime.Unix()),
		Description: req.Description,
		Value:       req.Fee,
	}
	return s.run(ctx, write{
		key:     "book_appointment",
		pending: "Booking appointment...",
		success: "Appointment booked successfully!",
		send: func(ctx context.Context, h backend.Backend) (backend.PendingTx, error) {
			return h.BookAppointment(ctx, in)
		},
		refresh: s.refreshAppointments,
	})
}

func (s *Store) CancelAppointment(ctx context.Context, id uint64) (*Result, error) {
	return s.run(ctx, write{
		key:     "cancel_appointment",
		target:  strconv.FormatUint(id, 10),
		pending: "Cancelling appointment...",
		success: "Appointment cancelled successfully!",
		send: func(ctx context.Context, h backend.Backend) (backend.PendingTx, error) {
			return h.CancelAppointment(ctx, id)
		},
		refresh: s.refreshAppointments,
	})
}

func (s *Store) CompleteAppointment(ctx context.Context, id uint64) (*Result, error) {
	return s.run(ctx, write{
		key:     "complete_appointment",
		target:  strconv.FormatUint(id, 10),
		pending: "Completing appointment...",
		success: "Appointment completed!",
		send: func(ctx context.Context, h backend.Backend) (backend.PendingTx, error) {
			return h.CompleteAppointment(ctx, id)
		},
		refresh: s.refreshAppointments,
	})
}

func (s *Store) MarkNoShow(ctx context.Context, id uint64) (*Result, error) {
	return s.run(ctx, write{
		key:     "mark_no_show",
		target:  strconv.FormatUint(id, 10),
		pending: "Marking appointment as no-show...",
		success: "Appointment marked as no-show",
		send: func(ctx context.Context, h backend.Backend) (backend.PendingTx, error) {
			return h.MarkNoShow(ctx, id)
		},
		refresh: s.refreshAppointments,
	})
}

func (s *Store) SetPlatformFee(ctx context.Context, percent uint64) (*Result, error) {
	return s.run(ctx, write{
		key:     "update_platform_fee",
		pending: "Updating platform fee...",
		success: "Platform fee updated",
		send: func(ctx context.Context, h backend.Backend) (backend.PendingTx, error) {
			return h.UpdatePlatformFee(ctx, percent)
		},
	})
}

func (s *Store) WithdrawPlatformFees(ctx context.Context) (*Result, error) {
	return s.run(ctx, write{
		key:     "withdraw_platform_fees",
		pending: "Withdrawing platform fees...",
		success: "Platform fees withdrawn",
		send: func(ctx context.Context, h backend.Backend) (backend.PendingTx, error) {
			return h.WithdrawPlatformFees(ctx)
		},
	})
}

func (s *Store) TransferOwnership(ctx context.Context, newOwner common.Address) (*Result, error) {
	if newOwner == (common.Address{}) {
		return nil, &ValidationError{Fields: map[string]string{"NewOwner": "NewOwner is required"}}
	}
	return s.run(ctx, write{
		key:     "transfer_ownership",
		pending: "Transferring ownership...",
		success: "Ownership transferred",
		send: func(ctx context.Context, h backend.Backend) (backend.PendingTx, error) {
			return h.TransferOwnership(ctx, newOwner)
		},
	})
}
