package backend

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestABIExposesContractSurface(t *testing.T) {
	parsed, err := ABI()
	if err != nil {
		t.Fatalf("parse abi: %v", err)
	}
	for _, name := range []string{
		"getDoctorDetails", "patients", "getActiveDoctors", "getAllDoctors",
		"getDoctorAppointments", "getPatientAppointments", "getAppointmentDetails",
		"isSlotAvailable", "registerDoctor", "updateDoctorProfile", "deactivateDoctor",
		"registerPatient", "updatePatientProfile", "bookAppointment", "cancelAppointment",
		"completeAppointment", "markNoShow", "updatePlatformFee", "withdrawPlatformFees",
		"transferOwnership", "owner", "platformFeePercent", "totalAppointments",
	} {
		if _, ok := parsed.Methods[name]; !ok {
			t.Fatalf("abi missing method %s", name)
		}
	}
	if !parsed.Methods["bookAppointment"].IsPayable() {
		t.Fatalf("bookAppointment must be payable")
	}
	if _, ok := parsed.Events["AppointmentBooked"]; !ok {
		t.Fatalf("abi missing AppointmentBooked event")
	}
}

func TestDoctorTupleRoundTripsThroughABI(t *testing.T) {
	parsed, err := ABI()
	if err != nil {
		t.Fatal(err)
	}
	method := parsed.Methods["getDoctorDetails"]
	in := doctorTuple{
		WalletAddress:   common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8"),
		Name:            "Dr. Ada",
		Specialization:  "Cardiology",
		HospitalName:    "General",
		ConsultationFee: big.NewInt(1000),
		IsActive:        true,
		RegisteredAt:    big.NewInt(1_700_000_000),
	}
	packed, err := method.Outputs.Pack(in)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	out, err := method.Outputs.Unpack(packed)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	got := toDoctor(convert[doctorTuple](out[0]))
	if got.Name != "Dr. Ada" || got.Address != in.WalletAddress || !got.IsActive {
		t.Fatalf("unexpected doctor: %+v", got)
	}
	if got.RegisteredAt.Unix() != 1_700_000_000 {
		t.Fatalf("registered at mismatch: %s", got.RegisteredAt)
	}
}

func TestNormalizeCallError(t *testing.T) {
	err := normalizeCallError(errors.New("abi: attempting to unmarshal an empty string while arguments are expected"))
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
	other := errors.New("dial tcp: connection refused")
	if normalizeCallError(other) != other {
		t.Fatalf("expected passthrough")
	}
}

func TestBigToUint64(t *testing.T) {
	if bigToUint64(nil) != 0 {
		t.Fatalf("nil should be 0")
	}
	huge := new(big.Int).Lsh(big.NewInt(1), 70)
	if bigToUint64(huge) != 0 {
		t.Fatalf("overflow should be 0")
	}
	if bigToUint64(big.NewInt(42)) != 42 {
		t.Fatalf("expected 42")
	}
	if !unixTime(big.NewInt(0)).IsZero() {
		t.Fatalf("zero timestamp should be zero time")
	}
}
