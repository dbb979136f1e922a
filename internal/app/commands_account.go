package app

import (
	"context"
	"fmt"

	"github.com/agis/medbook/internal/booking"
	"github.com/agis/medbook/internal/contract"
	"github.com/agis/medbook/internal/format"
	"github.com/spf13/cobra"
)

func newHomeCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "home",
		Short: "Show connection, role and platform summary",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, rt, ro, err := buildContext(cmd, opts, "home")
			if err != nil {
				return err
			}
			defer rt.Close()
			ctx, cancel := commandContext(ro)
			defer cancel()

			var warnings []string
			connected, err := rt.connect(ctx)
			if err != nil {
				warnings = append(warnings, err.Error())
			}
			role := booking.Role(booking.Unregistered{})
			if connected {
				role = rt.store.ResolveRole(ctx)
			}
			platform, err := timed(ctx, "contract.platform", rt.store.Platform)
			if err != nil {
				warnings = append(warnings, "platform info unavailable: "+err.Error())
			}

			view := homeView{
				Connected: connected,
				Session:   rt.session.State(),
				Role:      booking.ViewOf(role),
				Platform:  platform,
				Contract:  rt.contract.Hex(),
			}
			switch role.(type) {
			case booking.DoctorRole:
				view.Next = []string{"medbook dashboard", "medbook appointments list"}
			case booking.PatientRole:
				view.Next = []string{"medbook doctors list", "medbook appointments book --doctor <address> --at <time> --reason <text>"}
			default:
				if connected {
					view.Next = []string{"medbook register patient --name <name> --contact <contact>", "medbook register doctor --name <name> --specialization <s> --hospital <h> --fee <eth>"}
				} else {
					view.Next = []string{"medbook connect"}
				}
			}
			return successWithMeta(ctx, p, ro, view, map[string]any{"connected": connected, "role": role.Kind()}, warnings)
		},
	}
}

func newRegisterCmd(opts *globalOptions) *cobra.Command {
	register := &cobra.Command{Use: "register", Short: "Register the connected account as a doctor or patient"}

	var doctor booking.DoctorForm
	doctorCmd := &cobra.Command{
		Use:   "doctor",
		Short: "Register as a doctor",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRegistration(cmd, opts, "register.doctor", func(ctx context.Context, s *booking.Store) (*booking.Result, error) {
				return s.RegisterDoctor(ctx, doctor)
			}, "Successfully registered as doctor!")
		},
	}
	bindDoctorFlags(doctorCmd, &doctor)

	var patient booking.PatientForm
	patientCmd := &cobra.Command{
		Use:   "patient",
		Short: "Register as a patient",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRegistration(cmd, opts, "register.patient", func(ctx context.Context, s *booking.Store) (*booking.Result, error) {
				return s.RegisterPatient(ctx, patient)
			}, "Successfully registered as patient!")
		},
	}
	bindPatientFlags(patientCmd, &patient)

	register.AddCommand(doctorCmd, patientCmd)
	return register
}

func bindDoctorFlags(cmd *cobra.Command, form *booking.DoctorForm) {
	cmd.Flags().StringVar(&form.Name, "name", "", "Full name")
	cmd.Flags().StringVar(&form.Specialization, "specialization", "", "Specialization (see `medbook specializations`)")
	cmd.Flags().StringVar(&form.HospitalName, "hospital", "", "Hospital or clinic name")
	cmd.Flags().StringVar(&form.Fee, "fee", "", "Consultation fee in ETH")
}

func bindPatientFlags(cmd *cobra.Command, form *booking.PatientForm) {
	cmd.Flags().StringVar(&form.Name, "name", "", "Full name")
	cmd.Flags().StringVar(&form.ContactInfo, "contact", "", "Contact information")
}

// runRegistration refuses accounts that already hold a role before any
// transaction is built.
func runRegistration(cmd *cobra.Command, opts *globalOptions, command string, submit func(context.Context, *booking.Store) (*booking.Result, error), message string) error {
	p, rt, ro, err := buildContext(cmd, opts, command)
	if err != nil {
		return err
	}
	defer rt.Close()
	ctx, cancel := writeContext()
	defer cancel()

	if err := rt.requireConnection(ctx); err != nil {
		return fail(p, err)
	}
	if role := rt.store.ResolveRole(ctx); role.Kind() != (booking.Unregistered{}).Kind() {
		return fail(p, fmt.Errorf("%w as a %s", booking.ErrAlreadyRegistered, role.Kind()))
	}
	res, err := submit(ctx, rt.store)
	if err != nil {
		return fail(p, err)
	}
	view := newTxView(res, message)
	return successWithMeta(ctx, p, ro, view, map[string]any{"role": rt.store.Role().Kind()}, nil)
}

func newProfileCmd(opts *globalOptions) *cobra.Command {
	profile := &cobra.Command{Use: "profile", Short: "Show and change the connected account's profile"}

	show := &cobra.Command{
		Use:   "show",
		Short: "Show the connected account's profile",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, rt, ro, err := buildContext(cmd, opts, "profile.show")
			if err != nil {
				return err
			}
			defer rt.Close()
			ctx, cancel := commandContext(ro)
			defer cancel()
			role, err := rt.requireRole(ctx, "doctor", "patient")
			if err != nil {
				return fail(p, err)
			}
			return successWithMeta(ctx, p, ro, booking.ViewOf(role), map[string]any{"role": role.Kind()}, nil)
		},
	}

	var doctor booking.DoctorForm
	var patient booking.PatientForm
	update := &cobra.Command{
		Use:   "update",
		Short: "Update the profile; unset flags keep their current value",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, rt, ro, err := buildContext(cmd, opts, "profile.update")
			if err != nil {
				return err
			}
			defer rt.Close()
			ctx, cancel := writeContext()
			defer cancel()
			role, err := rt.requireRole(ctx, "doctor", "patient")
			if err != nil {
				return fail(p, err)
			}
			var res *booking.Result
			switch r := role.(type) {
			case booking.DoctorRole:
				form := mergeDoctorForm(cmd, doctor, r.Profile)
				res, err = rt.store.UpdateDoctorProfile(ctx, form)
			case booking.PatientRole:
				form := booking.PatientForm{
					Name:        firstNonEmpty(patient.Name, r.Profile.Name),
					ContactInfo: firstNonEmpty(patient.ContactInfo, r.Profile.ContactInfo),
				}
				res, err = rt.store.UpdatePatientProfile(ctx, form)
			}
			if err != nil {
				return fail(p, err)
			}
			return successWithMeta(ctx, p, ro, newTxView(res, "Profile updated successfully!"), map[string]any{"role": role.Kind()}, nil)
		},
	}
	bindDoctorFlags(update, &doctor)
	update.Flags().StringVar(&patient.ContactInfo, "contact", "", "Contact information (patients)")
	// --name is shared by both roles.
	update.PreRun = func(*cobra.Command, []string) { patient.Name = doctor.Name }

	deactivate := &cobra.Command{
		Use:   "deactivate",
		Short: "Stop accepting new appointments (doctors)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, rt, ro, err := buildContext(cmd, opts, "profile.deactivate")
			if err != nil {
				return err
			}
			defer rt.Close()
			ctx, cancel := writeContext()
			defer cancel()
			if _, err := rt.requireRole(ctx, "doctor"); err != nil {
				return fail(p, err)
			}
			res, err := rt.store.DeactivateDoctor(ctx)
			if err != nil {
				return fail(p, err)
			}
			return successWithMeta(ctx, p, ro, newTxView(res, "Doctor profile deactivated."), nil, nil)
		},
	}

	profile.AddCommand(show, update, deactivate)
	return profile
}

func mergeDoctorForm(cmd *cobra.Command, in booking.DoctorForm, current contract.Doctor) booking.DoctorForm {
	out := booking.DoctorForm{
		Name:           firstNonEmpty(in.Name, current.Name),
		Specialization: firstNonEmpty(in.Specialization, current.Specialization),
		HospitalName:   firstNonEmpty(in.HospitalName, current.HospitalName),
		Fee:            in.Fee,
	}
	if !cmd.Flags().Changed("fee") {
		out.Fee = format.ExactCurrency(current.ConsultationFee)
	}
	return out
}
