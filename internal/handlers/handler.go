// Package handlers wires the REST and WebSocket entry points. Every
// mutating route re-validates appointment membership through the access
// guard before touching the registry, relay, store or provider.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/carebridge/telehealth-signaling/config"
	"github.com/carebridge/telehealth-signaling/internal/auth"
	"github.com/carebridge/telehealth-signaling/internal/chat"
	"github.com/carebridge/telehealth-signaling/internal/errs"
	"github.com/carebridge/telehealth-signaling/internal/provider"
	"github.com/carebridge/telehealth-signaling/internal/room"
	"github.com/carebridge/telehealth-signaling/internal/signal"
)

type Handler struct {
	cfg      *config.Config
	guard    *auth.Guard
	rooms    *room.Registry
	relay    *signal.Relay
	chat     *chat.Service
	provider *provider.Client
	records  *provider.Records

	clients *clientSet
}

func New(
	cfg *config.Config,
	guard *auth.Guard,
	rooms *room.Registry,
	relay *signal.Relay,
	chatSvc *chat.Service,
	providerClient *provider.Client,
	records *provider.Records,
) *Handler {
	return &Handler{
		cfg:      cfg,
		guard:    guard,
		rooms:    rooms,
		relay:    relay,
		chat:     chatSvc,
		provider: providerClient,
		records:  records,
		clients:  newClientSet(),
	}
}

// respondError maps the error taxonomy onto HTTP statuses. Every rejected
// operation carries its reason code.
func respondError(c *gin.Context, err error) {
	code := errs.Code(err)
	status := http.StatusInternalServerError
	switch code {
	case errs.CodeAppointmentNotFound, errs.CodeRoomNotFound:
		status = http.StatusNotFound
	case errs.CodeNotParticipant:
		status = http.StatusForbidden
	case errs.CodeRoomFull:
		status = http.StatusConflict
	case errs.CodeValidation:
		status = http.StatusBadRequest
	case errs.CodeAppointmentNotToday:
		status = http.StatusUnprocessableEntity
	case errs.CodeProviderUnavailable:
		status = http.StatusBadGateway
	}
	c.JSON(status, gin.H{"error": code, "message": err.Error()})
}

// userID extracts the authenticated identity resolved by the JWT middleware.
func userID(c *gin.Context) (string, error) {
	v, ok := c.Get("user_id")
	if !ok {
		return "", errors.New("user not authenticated")
	}
	id, _ := v.(string)
	if id == "" {
		return "", errors.New("user not authenticated")
	}
	return id, nil
}
