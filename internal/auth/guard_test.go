package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carebridge/telehealth-signaling/internal/appointment"
	"github.com/carebridge/telehealth-signaling/internal/errs"
)

type stubRepo struct {
	appointments map[string]*appointment.Appointment
}

func (r *stubRepo) Get(_ context.Context, id string) (*appointment.Appointment, error) {
	appt, ok := r.appointments[id]
	if !ok {
		return nil, errs.ErrAppointmentNotFound
	}
	return appt, nil
}

func newTestGuard() *Guard {
	return NewGuard(&stubRepo{appointments: map[string]*appointment.Appointment{
		"A1": {
			ID:            "A1",
			PatientUserID: "patient-1",
			DoctorUserID:  "doctor-1",
			Date:          time.Now(),
			Status:        appointment.StatusConfirmed,
		},
	}})
}

func TestGuardAuthorize(t *testing.T) {
	guard := newTestGuard()

	tests := []struct {
		name          string
		userID        string
		appointmentID string
		wantRole      Role
		wantErr       error
	}{
		{name: "patient allowed", userID: "patient-1", appointmentID: "A1", wantRole: RolePatient},
		{name: "doctor allowed", userID: "doctor-1", appointmentID: "A1", wantRole: RoleDoctor},
		{name: "unrelated user denied", userID: "intruder", appointmentID: "A1", wantErr: errs.ErrNotParticipant},
		{name: "missing appointment", userID: "patient-1", appointmentID: "nope", wantErr: errs.ErrAppointmentNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			role, err := guard.Authorize(context.Background(), tt.userID, tt.appointmentID)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantRole, role)
		})
	}
}

func TestGuardCounterpart(t *testing.T) {
	guard := newTestGuard()

	other, err := guard.Counterpart(context.Background(), "patient-1", "A1")
	require.NoError(t, err)
	assert.Equal(t, "doctor-1", other)

	other, err = guard.Counterpart(context.Background(), "doctor-1", "A1")
	require.NoError(t, err)
	assert.Equal(t, "patient-1", other)

	_, err = guard.Counterpart(context.Background(), "intruder", "A1")
	assert.ErrorIs(t, err, errs.ErrNotParticipant)
}

func TestGuardAppointment(t *testing.T) {
	guard := newTestGuard()

	appt, err := guard.Appointment(context.Background(), "patient-1", "A1")
	require.NoError(t, err)
	assert.True(t, appt.IsToday(time.Now()))

	_, err = guard.Appointment(context.Background(), "intruder", "A1")
	assert.ErrorIs(t, err, errs.ErrNotParticipant)
}

func TestAppointmentIsToday(t *testing.T) {
	now := time.Date(2025, 6, 10, 15, 0, 0, 0, time.Local)
	appt := &appointment.Appointment{Date: time.Date(2025, 6, 10, 9, 0, 0, 0, time.Local)}
	assert.True(t, appt.IsToday(now))

	appt.Date = appt.Date.AddDate(0, 0, 1)
	assert.False(t, appt.IsToday(now))
}
