// Package appointment exposes read-only access to the booking system's
// appointment records. The booking service owns writes; this core only
// looks appointments up to bind users to rooms.
package appointment

import (
	"context"
	"time"
)

// Status mirrors the booking system's appointment lifecycle.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// Appointment is a scheduled consultation between a patient and a doctor.
type Appointment struct {
	ID            string    `gorm:"primaryKey;size:36" json:"id"`
	PatientUserID string    `gorm:"size:36;index" json:"patientUserId"`
	DoctorUserID  string    `gorm:"size:36;index" json:"doctorUserId"`
	Date          time.Time `json:"date"`
	Status        Status    `gorm:"size:20" json:"status"`
}

// IsToday reports whether the appointment falls on the same calendar day
// as now, in now's location.
func (a *Appointment) IsToday(now time.Time) bool {
	y1, m1, d1 := a.Date.In(now.Location()).Date()
	y2, m2, d2 := now.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// Repository looks appointments up in the booking store.
type Repository interface {
	Get(ctx context.Context, id string) (*Appointment, error)
}
