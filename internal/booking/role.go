package booking

import "github.com/agis/medbook/internal/contract"

// Role is exactly one of Unregistered, DoctorRole or PatientRole.
type Role interface {
	Kind() string
	role()
}

type Unregistered struct{}

type DoctorRole struct {
	Profile contract.Doctor
}

type PatientRole struct {
	Profile contract.Patient
}

func (Unregistered) Kind() string { return "none" }
func (DoctorRole) Kind() string   { return "doctor" }
func (PatientRole) Kind() string  { return "patient" }

func (Unregistered) role() {}
func (DoctorRole) role()   {}
func (PatientRole) role()  {}

// RoleView is the serialized form of a Role.
type RoleView struct {
	Kind    string            `json:"kind"`
	Doctor  *contract.Doctor  `json:"doctor,omitempty"`
	Patient *contract.Patient `json:"patient,omitempty"`
}

func ViewOf(r Role) RoleView {
	switch v := r.(type) {
	case DoctorRole:
		d := v.Profile
		return RoleView{Kind: v.Kind(), Doctor: &d}
	case PatientRole:
		p := v.Profile
		return RoleView{Kind: v.Kind(), Patient: &p}
	default:
		return RoleView{Kind: Unregistered{}.Kind()}
	}
}
