package appointment

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/carebridge/telehealth-signaling/internal/errs"
)

// Store reads appointments from the shared relational database.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Get(ctx context.Context, id string) (*Appointment, error) {
	var appt Appointment
	err := s.db.WithContext(ctx).First(&appt, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.ErrAppointmentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &appt, nil
}
