package booking

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/agis/medbook/internal/contract"
	"github.com/agis/medbook/internal/format"
	"github.com/agis/medbook/internal/timeparse"
	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
)

var (
	ErrPastDate          = errors.New("appointment must be scheduled for tomorrow or later")
	ErrAlreadyRegistered = errors.New("account is already registered")
	ErrBusy              = errors.New("the same action is already in progress")
)

// ValidationError lists the failed fields of a form, keyed by field name.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	msgs := make([]string, 0, len(keys))
	for _, k := range keys {
		msgs = append(msgs, e.Fields[k])
	}
	return strings.Join(msgs, "; ")
}

type DoctorForm struct {
	Name           string `validate:"required"`
	Specialization string `validate:"required,specialization"`
	HospitalName   string `validate:"required"`
	Fee            string `validate:"required,eth"`
}

type PatientForm struct {
	Name        string `validate:"required"`
	ContactInfo string `validate:"required"`
}

type BookRequest struct {
	Doctor      common.Address `validate:"required"`
	DateTime    time.Time
	Description string `validate:"required"`
	Fee         *big.Int
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("specialization", func(fl validator.FieldLevel) bool {
		return contract.IsSpecialization(fl.Field().String())
	})
	_ = v.RegisterValidation("eth", func(fl validator.FieldLevel) bool {
		wei, err := format.ParseCurrency(fl.Field().String())
		return err == nil && wei.Sign() > 0
	})
	return v
}

func validateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &ValidationError{Fields: map[string]string{}}
	for _, e := range verrs {
		field := e.Field()
		switch e.Tag() {
		case "required":
			out.Fields[field] = field + " is required"
		case "specialization":
			out.Fields[field] = fmt.Sprintf("%s %q is not a known specialization", field, e.Value())
		case "eth":
			out.Fields[field] = field + " must be a positive ETH amount"
		default:
			out.Fields[field] = field + " is invalid"
		}
	}
	return out
}

// ValidateBooking checks a booking request without touching the network.
// The earliest bookable moment is the start of tomorrow in loc.
func ValidateBooking(req BookRequest, now time.Time, loc *time.Location) error {
	if err := validateStruct(req); err != nil {
		return err
	}
	if req.Fee == nil || req.Fee.Sign() <= 0 {
		return &ValidationError{Fields: map[string]string{"Fee": "Fee must be greater than zero"}}
	}
	if loc == nil {
		loc = time.Local
	}
	tomorrow := timeparse.StartOfDay(now.In(loc)).AddDate(0, 0, 1)
	if req.DateTime.IsZero() || req.DateTime.Before(tomorrow) {
		return ErrPastDate
	}
	return nil
}
