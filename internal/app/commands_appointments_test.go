package app

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/agis/medbook/internal/contract"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apptRow struct {
	ID          uint64    `json:"id"`
	Doctor      string    `json:"doctor"`
	Patient     string    `json:"patient"`
	DateTime    time.Time `json:"date_time"`
	Status      string    `json:"status"`
	Fee         string    `json:"fee_eth"`
	Description string    `json:"description"`
	CanCancel   bool      `json:"can_cancel"`
	CanComplete bool      `json:"can_complete"`
}

func TestAppointmentsListWithoutWalletShowsConnectState(t *testing.T) {
	h := newHarness(t, common.Address{}).withoutWallet()
	env, _, code := h.runJSON("appointments", "list")
	require.Equal(t, 0, code)
	var st pageState
	env.decode(t, &st)
	assert.Equal(t, stateConnectWallet, st.State)
	assert.Empty(t, h.mem.Calls())
}

func TestAppointmentsListUnregisteredShowsRegisterFirst(t *testing.T) {
	h := newHarness(t, strayAddr)
	env, _, code := h.runJSON("appointments", "list")
	require.Equal(t, 0, code)
	var st pageState
	env.decode(t, &st)
	assert.Equal(t, stateRegisterFirst, st.State)
	assert.Equal(t, strayAddr.Hex(), st.Account)
	assert.False(t, hasCall(h.mem.Calls(), "getPatientAppointments"))
}

func TestBookAppointmentEndToEnd(t *testing.T) {
	h := newHarness(t, patientAddr)
	h.seedDoctor(doctorAddr, "Ada", "Cardiology", eth("0.05"))
	h.seedPatient(patientAddr, "Pat")

	env, stderr, code := h.runJSON("appointments", "book", "--doctor", doctorAddr.Hex(), "--at", "tomorrow 10:30", "--reason", "Chest pain")
	require.Equal(t, 0, code, stderr)
	var tx struct {
		Action      string   `json:"action"`
		Appointment *apptRow `json:"appointment"`
	}
	env.decode(t, &tx)
	assert.Equal(t, "book_appointment", tx.Action)
	require.NotNil(t, tx.Appointment)

	want := time.Date(2026, 3, 3, 10, 30, 0, 0, time.UTC)
	env, _, code = h.runJSON("appointments", "list")
	require.Equal(t, 0, code)
	var rows []apptRow
	env.decode(t, &rows)
	require.Len(t, rows, 1)
	assert.Equal(t, "Scheduled", rows[0].Status)
	assert.Equal(t, "0.0500", rows[0].Fee)
	assert.True(t, rows[0].DateTime.Equal(want), "got %s", rows[0].DateTime)
	assert.True(t, rows[0].CanCancel)
	assert.Equal(t, tx.Appointment.ID, rows[0].ID)
}

func TestBookPastDateFailsBeforeAnyCall(t *testing.T) {
	h := newHarness(t, patientAddr)
	_, stderr, code := h.run("appointments", "book", "--doctor", doctorAddr.Hex(), "--at", "today 15:00", "--reason", "x", "--json")
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr, string(contract.ErrInvalidUsage))
	assert.Empty(t, h.mem.Calls())
}

func TestBookMissingReasonFailsBeforeAnyCall(t *testing.T) {
	h := newHarness(t, patientAddr)
	_, _, code := h.run("appointments", "book", "--doctor", doctorAddr.Hex(), "--at", "+2d 10:00")
	assert.Equal(t, exitUsage, code)
	assert.Empty(t, h.mem.Calls())
}

func TestBookAsDoctorIsRefused(t *testing.T) {
	h := newHarness(t, doctorAddr)
	h.seedDoctor(doctorAddr, "Ada", "Cardiology", eth("0.05"))
	_, _, code := h.run("appointments", "book", "--doctor", doctorAddr.Hex(), "--at", "tomorrow 10:30", "--reason", "x")
	assert.Equal(t, exitUsage, code)
	assert.False(t, hasCall(h.mem.Calls(), "bookAppointment"))
}

func TestBookTakenSlotIsRefused(t *testing.T) {
	h := newHarness(t, patientAddr)
	h.seedDoctor(doctorAddr, "Ada", "Cardiology", eth("0.05"))
	h.seedPatient(patientAddr, "Pat")
	h.seedPatient(strayAddr, "Other")
	h.seedBooking(strayAddr, doctorAddr, time.Date(2026, 3, 3, 10, 30, 0, 0, time.UTC), eth("0.05"))
	h.mem.ResetCalls()

	_, stderr, code := h.run("appointments", "book", "--doctor", doctorAddr.Hex(), "--at", "2026-03-03 10:30", "--reason", "x")
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr, "time slot not available")
	assert.False(t, hasCall(h.mem.Calls(), "bookAppointment"))
}

func TestQuickBookDryRun(t *testing.T) {
	h := newHarness(t, patientAddr)
	env, _, code := h.runJSON("appointments", "quick-book", "tomorrow 09:30 "+doctorAddr.Hex()+" Annual checkup", "--dry-run")
	require.Equal(t, 0, code)
	var in quickBooking
	env.decode(t, &in)
	assert.Equal(t, doctorAddr, in.Doctor)
	assert.Equal(t, "Annual checkup", in.Reason)
	assert.Empty(t, h.mem.Calls())
}

func TestCancelAppointment(t *testing.T) {
	h := newHarness(t, patientAddr)
	h.seedDoctor(doctorAddr, "Ada", "Cardiology", eth("0.05"))
	h.seedPatient(patientAddr, "Pat")
	h.seedBooking(patientAddr, doctorAddr, testNow.Add(48*time.Hour), eth("0.05"))

	env, stderr, code := h.runJSON("appointments", "cancel", "1")
	require.Equal(t, 0, code, stderr)
	var tx struct {
		Appointment *apptRow `json:"appointment"`
	}
	env.decode(t, &tx)
	require.NotNil(t, tx.Appointment)
	assert.Equal(t, "Cancelled", tx.Appointment.Status)

	_, _, code = h.run("appointments", "cancel", "1")
	assert.Equal(t, exitUsage, code, "a cancelled appointment cannot be cancelled again")
}

func TestCancelUnknownAppointmentIsNotFound(t *testing.T) {
	h := newHarness(t, patientAddr)
	h.seedPatient(patientAddr, "Pat")
	_, _, code := h.run("appointments", "cancel", "42")
	assert.Equal(t, exitNotFound, code)
	assert.False(t, hasCall(h.mem.Calls(), "cancelAppointment"))
}

func TestCompleteRequiresDoctor(t *testing.T) {
	h := newHarness(t, patientAddr)
	h.seedDoctor(doctorAddr, "Ada", "Cardiology", eth("0.05"))
	h.seedPatient(patientAddr, "Pat")
	h.seedBooking(patientAddr, doctorAddr, testNow.Add(48*time.Hour), eth("0.05"))

	_, _, code := h.run("appointments", "complete", "1")
	assert.Equal(t, exitUsage, code)
	assert.False(t, hasCall(h.mem.Calls(), "completeAppointment"))
}

func TestDoctorCompletesAndMarksNoShow(t *testing.T) {
	h := newHarness(t, doctorAddr)
	h.seedDoctor(doctorAddr, "Ada", "Cardiology", eth("0.05"))
	h.seedPatient(patientAddr, "Pat")
	h.seedBooking(patientAddr, doctorAddr, testNow.Add(48*time.Hour), eth("0.05"))
	h.seedBooking(patientAddr, doctorAddr, testNow.Add(72*time.Hour), eth("0.05"))

	_, stderr, code := h.run("appointments", "complete", "1")
	require.Equal(t, 0, code, stderr)
	_, stderr, code = h.run("appointments", "no-show", "2")
	require.Equal(t, 0, code, stderr)

	env, _, code := h.runJSON("appointments", "list", "--status", "no-show")
	require.Equal(t, 0, code)
	var rows []apptRow
	env.decode(t, &rows)
	require.Len(t, rows, 1)
	assert.Equal(t, uint64(2), rows[0].ID)
}

func TestAppointmentsListWhereAndByDay(t *testing.T) {
	h := newHarness(t, patientAddr)
	h.seedDoctor(doctorAddr, "Ada", "Cardiology", eth("0.05"))
	h.seedDoctor(strayAddr, "Bo", "Neurology", eth("0.2"))
	h.seedPatient(patientAddr, "Pat")
	h.seedBooking(patientAddr, doctorAddr, testNow.Add(24*time.Hour), eth("0.05"))
	h.seedBooking(patientAddr, strayAddr, testNow.Add(48*time.Hour), eth("0.2"))

	env, _, code := h.runJSON("appointments", "list", "--where", "fee>=0.1")
	require.Equal(t, 0, code)
	var rows []apptRow
	env.decode(t, &rows)
	require.Len(t, rows, 1)
	assert.Equal(t, strayAddr.Hex(), common.HexToAddress(rows[0].Doctor).Hex())

	env, _, code = h.runJSON("appointments", "list", "--by-day", "--from", "2026-03-02", "--to", "2026-03-05")
	require.Equal(t, 0, code)
	var days []daySummary
	env.decode(t, &days)
	require.Len(t, days, 4)
	assert.Equal(t, 1, days[1].Scheduled)
	assert.Equal(t, 1, days[2].Scheduled)

	_, _, code = h.run("appointments", "list", "--where", "bogus")
	assert.Equal(t, exitUsage, code)
}

func TestAppointmentsWeekView(t *testing.T) {
	h := newHarness(t, patientAddr)
	h.seedDoctor(doctorAddr, "Ada", "Cardiology", eth("0.05"))
	h.seedPatient(patientAddr, "Pat")
	h.seedBooking(patientAddr, doctorAddr, testNow.Add(24*time.Hour), eth("0.05"))
	h.seedBooking(patientAddr, doctorAddr, testNow.Add(10*24*time.Hour), eth("0.05"))

	env, _, code := h.runJSON("appointments", "week")
	require.Equal(t, 0, code)
	var rows []apptRow
	env.decode(t, &rows)
	require.Len(t, rows, 1)
	assert.Equal(t, "2026-03-02", env.Meta["from"])
	assert.Equal(t, "2026-03-08", env.Meta["to"])
}

func TestExportICS(t *testing.T) {
	h := newHarness(t, patientAddr)
	h.seedDoctor(doctorAddr, "Ada", "Cardiology", eth("0.05"))
	h.seedPatient(patientAddr, "Pat")
	h.seedBooking(patientAddr, doctorAddr, testNow.Add(24*time.Hour), eth("0.05"))
	h.seedBooking(patientAddr, doctorAddr, testNow.Add(48*time.Hour), eth("0.05"))
	h.mem.SetStatus(2, contract.StatusCancelled)

	stdout, stderr, code := h.run("appointments", "export", "--plain", "--remind", "30m")
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, 1, strings.Count(stdout, "BEGIN:VEVENT"), "cancelled appointments are dropped by default")
	assert.Contains(t, stdout, "UID:medbook-1@"+strings.ToLower(defaultContractAddress))
	assert.Contains(t, stdout, "SUMMARY:Appointment with Ada")
	assert.Contains(t, stdout, "TRIGGER:-PT30M")

	out := filepath.Join(h.dir, "appts.ics")
	env, _, code := h.runJSON("appointments", "export", "--include-cancelled", "--out", out)
	require.Equal(t, 0, code)
	assert.EqualValues(t, 2, env.Meta["count"])
	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "STATUS:CANCELLED")
}
