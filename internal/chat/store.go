package chat

import (
	"context"

	"gorm.io/gorm"
)

// MessageStore is the persistence collaborator for chat messages.
type MessageStore interface {
	Save(ctx context.Context, msg *Message) error
	ByAppointment(ctx context.Context, appointmentID string) ([]Message, error)
	MarkRead(ctx context.Context, appointmentID, readerUserID string) (int64, error)
	UnreadByUser(ctx context.Context, userID string) ([]UnreadCount, error)
}

// Store is the gorm-backed MessageStore.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the messages table.
func (s *Store) Migrate() error {
	return s.db.AutoMigrate(&Message{})
}

func (s *Store) Save(ctx context.Context, msg *Message) error {
	return s.db.WithContext(ctx).Create(msg).Error
}

// ByAppointment returns the full history in ascending creation order.
func (s *Store) ByAppointment(ctx context.Context, appointmentID string) ([]Message, error) {
	var out []Message
	err := s.db.WithContext(ctx).
		Where("appointment_id = ?", appointmentID).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}

// MarkRead flips IsRead on every message addressed to readerUserID in the
// appointment and returns how many rows changed.
func (s *Store) MarkRead(ctx context.Context, appointmentID, readerUserID string) (int64, error) {
	res := s.db.WithContext(ctx).Model(&Message{}).
		Where("appointment_id = ? AND receiver_id = ? AND is_read = ?", appointmentID, readerUserID, false).
		Update("is_read", true)
	return res.RowsAffected, res.Error
}

// UnreadByUser returns unread counts grouped by appointment.
func (s *Store) UnreadByUser(ctx context.Context, userID string) ([]UnreadCount, error) {
	var out []UnreadCount
	err := s.db.WithContext(ctx).Model(&Message{}).
		Select("appointment_id, COUNT(*) as count").
		Where("receiver_id = ? AND is_read = ?", userID, false).
		Group("appointment_id").
		Find(&out).Error
	return out, err
}
