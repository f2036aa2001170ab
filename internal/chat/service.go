package chat

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/carebridge/telehealth-signaling/internal/auth"
	"github.com/carebridge/telehealth-signaling/internal/errs"
	"github.com/carebridge/telehealth-signaling/internal/signal"
)

// Service is the message relay: every operation re-validates appointment
// membership through the access guard before touching the store or relay.
type Service struct {
	guard *auth.Guard
	store MessageStore
	relay *signal.Relay
}

func NewService(guard *auth.Guard, store MessageStore, relay *signal.Relay) *Service {
	return &Service{guard: guard, store: store, relay: relay}
}

// Send persists the message and then broadcasts it to the room under the
// receive-message kind. Persistence happens first; a failed broadcast is
// logged but never rolls the message back (at-least-once persistence,
// best-effort live delivery). senderConnectionID may be empty for
// REST-originated sends.
func (s *Service) Send(ctx context.Context, appointmentID, senderUserID, senderConnectionID string, in SendInput) (*Message, error) {
	if in.Content == "" && in.FileURL == "" {
		return nil, errs.NewValidation("content")
	}
	if in.MessageType == "" {
		in.MessageType = MessageTypeText
	}

	if _, err := s.guard.Authorize(ctx, senderUserID, appointmentID); err != nil {
		return nil, err
	}
	receiverID, err := s.guard.Counterpart(ctx, senderUserID, appointmentID)
	if err != nil {
		return nil, err
	}

	msg := &Message{
		ID:            uuid.New().String(),
		AppointmentID: appointmentID,
		SenderID:      senderUserID,
		ReceiverID:    receiverID,
		Content:       in.Content,
		MessageType:   in.MessageType,
		FileURL:       in.FileURL,
		FileName:      in.FileName,
		CreatedAt:     time.Now(),
	}
	if err := s.store.Save(ctx, msg); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("module", "chat.service").Msg("failed to encode message for broadcast")
		return msg, nil
	}
	s.relay.Deliver(appointmentID, senderConnectionID, signal.Message{
		Kind:       signal.KindReceiveMessage,
		FromUserID: senderUserID,
		Payload:    payload,
	})
	return msg, nil
}

// History returns the appointment's messages in ascending creation order.
// Late joiners read history here, never through the relay.
func (s *Service) History(ctx context.Context, appointmentID, userID string) ([]Message, error) {
	if _, err := s.guard.Authorize(ctx, userID, appointmentID); err != nil {
		return nil, err
	}
	return s.store.ByAppointment(ctx, appointmentID)
}

// MarkRead flips IsRead on every message where the reader is the receiver.
func (s *Service) MarkRead(ctx context.Context, appointmentID, readerUserID string) (int64, error) {
	if _, err := s.guard.Authorize(ctx, readerUserID, appointmentID); err != nil {
		return 0, err
	}
	return s.store.MarkRead(ctx, appointmentID, readerUserID)
}

// UnreadCounts returns the per-appointment unread breakdown for the user.
func (s *Service) UnreadCounts(ctx context.Context, userID string) ([]UnreadCount, error) {
	return s.store.UnreadByUser(ctx, userID)
}
