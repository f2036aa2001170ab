// Package provider integrates the managed video-room service used when
// policy selects the hosted path over the self-hosted relay. Any provider
// failure surfaces as video-provider-unavailable and is never retried; the
// caller decides whether to fall back to the relay for chat continuity.
package provider

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/carlmjohnson/requests"
	"github.com/rs/zerolog/log"

	"github.com/carebridge/telehealth-signaling/config"
	"github.com/carebridge/telehealth-signaling/internal/errs"
)

// Room is the provider's view of a hosted video room.
type Room struct {
	RoomID           string `json:"roomId"`
	RoomName         string `json:"roomName"`
	Status           string `json:"status"`
	ParticipantCount int    `json:"participantCount"`
}

// Participant is one connected identity in a hosted room.
type Participant struct {
	Identity string    `json:"identity"`
	Status   string    `json:"status"`
	JoinedAt time.Time `json:"joinedAt"`
}

// Client talks to the provider's REST API with a bounded per-call timeout.
type Client struct {
	baseURL   string
	apiKey    string
	apiSecret string
	timeout   time.Duration
	tokenTTL  time.Duration
}

func NewClient(cfg config.ProviderConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	tokenTTL := cfg.TokenTTL
	if tokenTTL <= 0 {
		tokenTTL = time.Hour
	}
	return &Client{
		baseURL:   cfg.BaseURL,
		apiKey:    cfg.APIKey,
		apiSecret: cfg.APISecret,
		timeout:   timeout,
		tokenTTL:  tokenTTL,
	}
}

// CreateRoom provisions a hosted room under the given name.
func (c *Client) CreateRoom(ctx context.Context, name string) (*Room, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var out Room
	err := requests.URL(c.baseURL).
		Path("/v1/rooms").
		Bearer(c.apiKey).
		BodyJSON(map[string]string{"name": name}).
		ToJSON(&out).
		Fetch(ctx)
	if err != nil {
		return nil, c.unavailable("create room", err)
	}
	return &out, nil
}

// FetchRoom returns the hosted room's status and participant count.
func (c *Client) FetchRoom(ctx context.Context, roomID string) (*Room, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var out Room
	err := requests.URL(c.baseURL).
		Pathf("/v1/rooms/%s", roomID).
		Bearer(c.apiKey).
		ToJSON(&out).
		Fetch(ctx)
	if err != nil {
		return nil, c.unavailable("fetch room", err)
	}
	return &out, nil
}

// CompleteRoom transitions the hosted room to completed, ending the call
// for every connected participant.
func (c *Client) CompleteRoom(ctx context.Context, roomID string) (*Room, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var out Room
	err := requests.URL(c.baseURL).
		Pathf("/v1/rooms/%s", roomID).
		Method(http.MethodPost).
		Bearer(c.apiKey).
		BodyJSON(map[string]string{"status": "completed"}).
		ToJSON(&out).
		Fetch(ctx)
	if err != nil {
		return nil, c.unavailable("complete room", err)
	}
	return &out, nil
}

// ListParticipants returns the identities connected to the hosted room.
func (c *Client) ListParticipants(ctx context.Context, roomID string) ([]Participant, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var out []Participant
	err := requests.URL(c.baseURL).
		Pathf("/v1/rooms/%s/participants", roomID).
		Bearer(c.apiKey).
		ToJSON(&out).
		Fetch(ctx)
	if err != nil {
		return nil, c.unavailable("list participants", err)
	}
	return out, nil
}

func (c *Client) unavailable(op string, err error) error {
	log.Warn().Err(err).Str("module", "provider").Str("op", op).Msg("provider call failed")
	return fmt.Errorf("%w: %s: %v", errs.ErrProviderUnavailable, op, err)
}
