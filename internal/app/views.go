package app

import (
	"fmt"
	"time"

	"github.com/agis/medbook/internal/booking"
	"github.com/agis/medbook/internal/contract"
	"github.com/agis/medbook/internal/format"
)

// Page states rendered when a view cannot show its content.
const (
	stateConnectWallet = "connect_wallet"
	stateRegisterFirst = "register_first"
	stateDoctorsOnly   = "doctors_only"
)

type pageState struct {
	State   string `json:"state"`
	Message string `json:"message"`
	Account string `json:"account,omitempty"`
}

func (s pageState) PlainLines() []string { return []string{s.Message} }

func connectWalletState() pageState {
	return pageState{State: stateConnectWallet, Message: "Please connect your wallet to continue. Run `medbook connect`."}
}

func registerFirstState(account string) pageState {
	return pageState{
		State:   stateRegisterFirst,
		Message: "Please register as a patient or doctor first. Run `medbook register patient` or `medbook register doctor`.",
		Account: account,
	}
}

type doctorView struct {
	contract.Doctor
	FeeETH string `json:"fee_eth"`
	Short  string `json:"short_address"`
}

func newDoctorView(d contract.Doctor) doctorView {
	return doctorView{Doctor: d, FeeETH: format.FormatCurrency(d.ConsultationFee), Short: format.FormatAddress(d.Address.Hex())}
}

func (d doctorView) PlainLines() []string {
	status := "active"
	if !d.IsActive {
		status = "inactive"
	}
	return []string{fmt.Sprintf("%s\t%s\t%s\t%s ETH\t%s\t%s", d.Name, d.Specialization, d.HospitalName, d.FeeETH, d.Short, status)}
}

func doctorViews(list []contract.Doctor) []doctorView {
	out := make([]doctorView, 0, len(list))
	for _, d := range list {
		out = append(out, newDoctorView(d))
	}
	return out
}

type appointmentView struct {
	contract.Appointment
	FeeETH      string `json:"fee_eth"`
	When        string `json:"when"`
	Relative    string `json:"relative"`
	CanCancel   bool   `json:"can_cancel"`
	CanComplete bool   `json:"can_complete"`
}

func newAppointmentView(a contract.Appointment, role booking.Role, now time.Time, loc *time.Location) appointmentView {
	return appointmentView{
		Appointment: a,
		FeeETH:      format.FormatCurrency(a.Fee),
		When:        format.FormatDate(uint64(a.DateTime.Unix()), loc),
		Relative:    format.Relative(a.DateTime, now),
		CanCancel:   booking.CanCancel(a, now),
		CanComplete: booking.CanComplete(a, role),
	}
}

func (a appointmentView) PlainLines() []string {
	return []string{fmt.Sprintf("#%d\t%s\t%s (%s)\tdoctor %s\tpatient %s\t%s ETH\t%s",
		a.ID, a.Status, a.When, a.Relative,
		format.FormatAddress(a.Doctor.Hex()), format.FormatAddress(a.Patient.Hex()),
		a.FeeETH, a.Description)}
}

func appointmentViews(list []contract.Appointment, role booking.Role, now time.Time, loc *time.Location) []appointmentView {
	out := make([]appointmentView, 0, len(list))
	for _, a := range list {
		out = append(out, newAppointmentView(a, role, now, loc))
	}
	return out
}

type homeView struct {
	Connected bool                   `json:"connected"`
	Session   contract.SessionState  `json:"session"`
	Role      booking.RoleView       `json:"role"`
	Platform  *contract.PlatformInfo `json:"platform,omitempty"`
	Contract  string                 `json:"contract"`
	Next      []string               `json:"next_steps,omitempty"`
}

func (h homeView) PlainLines() []string {
	lines := []string{"MedBooking " + format.FormatAddress(h.Contract)}
	if h.Session.Account != nil {
		lines = append(lines, "account: "+format.FormatAddress(h.Session.Account.Hex()), "role: "+h.Role.Kind)
	} else {
		lines = append(lines, "account: not connected")
	}
	if h.Role.Doctor != nil {
		lines = append(lines, fmt.Sprintf("doctor: %s, %s at %s", h.Role.Doctor.Name, h.Role.Doctor.Specialization, h.Role.Doctor.HospitalName))
	}
	if h.Role.Patient != nil {
		lines = append(lines, "patient: "+h.Role.Patient.Name)
	}
	if h.Platform != nil {
		lines = append(lines, fmt.Sprintf("platform: fee %d%%, %d appointments", h.Platform.PlatformFeePercent, h.Platform.TotalAppointments))
	}
	for _, n := range h.Next {
		lines = append(lines, "next: "+n)
	}
	return lines
}

type txView struct {
	Action      string `json:"action"`
	TxHash      string `json:"tx_hash"`
	BlockNumber uint64 `json:"block_number"`
	GasUsed     uint64 `json:"gas_used"`
	Message     string `json:"message"`

	Appointment *appointmentView `json:"appointment,omitempty"`
}

func newTxView(res *booking.Result, message string) txView {
	v := txView{Action: res.Action, Message: message}
	if res.Receipt != nil {
		v.TxHash = res.Receipt.TxHash.Hex()
		v.BlockNumber = res.Receipt.BlockNumber
		v.GasUsed = res.Receipt.GasUsed
	}
	return v
}

func (t txView) PlainLines() []string {
	out := []string{t.Message, fmt.Sprintf("tx %s in block %d", t.TxHash, t.BlockNumber)}
	if t.Appointment != nil {
		out = append(out, t.Appointment.PlainLines()...)
	}
	return out
}

type slotView struct {
	Time      time.Time `json:"time"`
	Label     string    `json:"label"`
	Available bool      `json:"available"`
}

func (s slotView) PlainLines() []string {
	mark := "free"
	if !s.Available {
		mark = "taken"
	}
	return []string{s.Label + "\t" + mark}
}

// textList prints one string per plain line.
type textList []string

func (l textList) PlainLines() []string { return l }
