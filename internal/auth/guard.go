// Package auth holds the access guard: the single authorization path for
// every room, signaling and chat entry point. Room creation, room join,
// chat send and mark-read all call the same check, so policy cannot drift
// between features.
package auth

import (
	"context"

	"github.com/carebridge/telehealth-signaling/internal/appointment"
	"github.com/carebridge/telehealth-signaling/internal/errs"
)

// Role is the caller's role within an appointment.
type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
)

// Guard binds a caller to an appointment's patient/doctor pair.
type Guard struct {
	appointments appointment.Repository
}

func NewGuard(repo appointment.Repository) *Guard {
	return &Guard{appointments: repo}
}

// Authorize checks that userID is the patient or doctor of the appointment
// and returns the matching role. It is side-effect-free: the appointment
// lookup is the only external call and is bounded by ctx.
func (g *Guard) Authorize(ctx context.Context, userID, appointmentID string) (Role, error) {
	appt, err := g.appointments.Get(ctx, appointmentID)
	if err != nil {
		return "", err
	}
	return RoleFor(appt, userID)
}

// Appointment authorizes userID and returns the appointment itself, for
// callers that need its fields (e.g. the same-day gate).
func (g *Guard) Appointment(ctx context.Context, userID, appointmentID string) (*appointment.Appointment, error) {
	appt, err := g.appointments.Get(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if _, err := RoleFor(appt, userID); err != nil {
		return nil, err
	}
	return appt, nil
}

// Counterpart returns the other party of the appointment relative to userID.
func (g *Guard) Counterpart(ctx context.Context, userID, appointmentID string) (string, error) {
	appt, err := g.appointments.Get(ctx, appointmentID)
	if err != nil {
		return "", err
	}
	switch userID {
	case appt.PatientUserID:
		return appt.DoctorUserID, nil
	case appt.DoctorUserID:
		return appt.PatientUserID, nil
	}
	return "", errs.ErrNotParticipant
}

// RoleFor resolves userID against an already-loaded appointment.
func RoleFor(appt *appointment.Appointment, userID string) (Role, error) {
	switch userID {
	case appt.PatientUserID:
		return RolePatient, nil
	case appt.DoctorUserID:
		return RoleDoctor, nil
	}
	return "", errs.ErrNotParticipant
}
