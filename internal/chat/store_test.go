package chat

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestStore(t *testing.T) *Store {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	store := NewStore(db)
	require.NoError(t, store.Migrate())
	return store
}

func seedMessage(t *testing.T, store *Store, appointmentID, sender, receiver, content string, at time.Time) *Message {
	msg := &Message{
		ID:            uuid.New().String(),
		AppointmentID: appointmentID,
		SenderID:      sender,
		ReceiverID:    receiver,
		Content:       content,
		MessageType:   MessageTypeText,
		CreatedAt:     at,
	}
	require.NoError(t, store.Save(context.Background(), msg))
	return msg
}

func TestStoreRoundTripAscendingOrder(t *testing.T) {
	store := newTestStore(t)
	base := time.Now().Add(-time.Hour)

	seedMessage(t, store, "A1", "patient-1", "doctor-1", "second", base.Add(2*time.Minute))
	seedMessage(t, store, "A1", "doctor-1", "patient-1", "first", base)
	seedMessage(t, store, "A1", "patient-1", "doctor-1", "third", base.Add(5*time.Minute))
	seedMessage(t, store, "A2", "patient-2", "doctor-2", "other appointment", base)

	got, err := store.ByAppointment(context.Background(), "A1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "first", got[0].Content)
	assert.Equal(t, "second", got[1].Content)
	assert.Equal(t, "third", got[2].Content)
	assert.Equal(t, "doctor-1", got[0].SenderID)
}

func TestStoreMarkRead(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()

	seedMessage(t, store, "A1", "doctor-1", "patient-1", "one", now)
	seedMessage(t, store, "A1", "doctor-1", "patient-1", "two", now.Add(time.Second))
	sent := seedMessage(t, store, "A1", "patient-1", "doctor-1", "mine", now.Add(2*time.Second))

	// Only messages addressed to the reader flip.
	updated, err := store.MarkRead(context.Background(), "A1", "patient-1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, updated)

	got, err := store.ByAppointment(context.Background(), "A1")
	require.NoError(t, err)
	for _, m := range got {
		if m.ID == sent.ID {
			assert.False(t, m.IsRead)
		} else {
			assert.True(t, m.IsRead)
		}
	}

	updated, err = store.MarkRead(context.Background(), "A1", "patient-1")
	require.NoError(t, err)
	assert.Zero(t, updated)
}

func TestStoreUnreadByUser(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()

	seedMessage(t, store, "A1", "doctor-1", "patient-1", "a", now)
	seedMessage(t, store, "A1", "doctor-1", "patient-1", "b", now)
	seedMessage(t, store, "A2", "doctor-2", "patient-1", "c", now)
	seedMessage(t, store, "A3", "patient-9", "doctor-9", "unrelated", now)

	counts, err := store.UnreadByUser(context.Background(), "patient-1")
	require.NoError(t, err)
	byAppt := map[string]int64{}
	for _, c := range counts {
		byAppt[c.AppointmentID] = c.Count
	}
	assert.EqualValues(t, 2, byAppt["A1"])
	assert.EqualValues(t, 1, byAppt["A2"])
	assert.NotContains(t, byAppt, "A3")
}
