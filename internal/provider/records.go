package provider

import (
	"context"
	"encoding/json"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/carebridge/telehealth-signaling/internal/errs"
)

const recordTTL = 24 * time.Hour

// RoomRecord binds a hosted provider room back to its appointment so later
// REST calls (join, end, participants) can re-validate membership.
type RoomRecord struct {
	RoomID        string    `json:"roomId"`
	RoomName      string    `json:"roomName"`
	AppointmentID string    `json:"appointmentId"`
	CreatedBy     string    `json:"createdBy"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Records stores room records in Redis with a TTL, keyed both by room ID
// and by appointment ID.
type Records struct {
	rdb *goredis.Client
}

func NewRecords(rdb *goredis.Client) *Records {
	return &Records{rdb: rdb}
}

func (r *Records) Save(ctx context.Context, rec RoomRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := r.rdb.Set(ctx, "video-room:"+rec.RoomID, data, recordTTL).Err(); err != nil {
		return err
	}
	return r.rdb.Set(ctx, "appt-room:"+rec.AppointmentID, rec.RoomID, recordTTL).Err()
}

func (r *Records) Get(ctx context.Context, roomID string) (*RoomRecord, error) {
	data, err := r.rdb.Get(ctx, "video-room:"+roomID).Result()
	if err == goredis.Nil {
		return nil, errs.ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec RoomRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// ByAppointment returns the existing record for an appointment, if any.
func (r *Records) ByAppointment(ctx context.Context, appointmentID string) (*RoomRecord, error) {
	roomID, err := r.rdb.Get(ctx, "appt-room:"+appointmentID).Result()
	if err == goredis.Nil {
		return nil, errs.ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, roomID)
}

func (r *Records) Delete(ctx context.Context, rec RoomRecord) {
	r.rdb.Del(ctx, "video-room:"+rec.RoomID)
	r.rdb.Del(ctx, "appt-room:"+rec.AppointmentID)
}
