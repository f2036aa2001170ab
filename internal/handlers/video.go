package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/carebridge/telehealth-signaling/internal/errs"
	"github.com/carebridge/telehealth-signaling/internal/provider"
)

// The managed path is policy-gated: only same-day appointments get a
// hosted room. Everything else stays on the self-hosted relay.

type createRoomRequest struct {
	AppointmentID string `json:"appointmentId" binding:"required"`
}

type createRoomResponse struct {
	RoomID   string `json:"roomId"`
	RoomName string `json:"roomName"`
}

// CreateVideoRoom provisions a managed provider room for a same-day
// appointment. Provider failure is reported as-is, with no retry; the
// caller may fall back to the self-hosted relay for chat continuity.
func (h *Handler) CreateVideoRoom(c *gin.Context) {
	uid, err := userID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errs.NewValidation("appointmentId"))
		return
	}

	appt, err := h.guard.Appointment(c.Request.Context(), uid, req.AppointmentID)
	if err != nil {
		respondError(c, err)
		return
	}
	if !appt.IsToday(time.Now()) {
		respondError(c, errs.ErrAppointmentNotToday)
		return
	}

	// Reuse an existing room: both parties must land in the same one.
	if rec, err := h.records.ByAppointment(c.Request.Context(), req.AppointmentID); err == nil {
		c.JSON(http.StatusOK, createRoomResponse{RoomID: rec.RoomID, RoomName: rec.RoomName})
		return
	}

	room, err := h.provider.CreateRoom(c.Request.Context(), "appointment-"+req.AppointmentID)
	if err != nil {
		respondError(c, err)
		return
	}

	rec := provider.RoomRecord{
		RoomID:        room.RoomID,
		RoomName:      room.RoomName,
		AppointmentID: req.AppointmentID,
		CreatedBy:     uid,
		CreatedAt:     time.Now(),
	}
	if err := h.records.Save(c.Request.Context(), rec); err != nil {
		log.Error().Err(err).Str("module", "handlers.video").Msg("failed to store room record")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create room"})
		return
	}

	log.Info().Str("module", "handlers.video").
		Str("room", room.RoomID).
		Str("appointment", req.AppointmentID).
		Str("user", uid).
		Msg("managed room created")
	c.JSON(http.StatusCreated, createRoomResponse{RoomID: room.RoomID, RoomName: room.RoomName})
}

type joinRoomRequest struct {
	RoomID string `json:"roomId" binding:"required"`
}

// JoinVideoRoom issues a provider access token for a room participant.
func (h *Handler) JoinVideoRoom(c *gin.Context) {
	uid, err := userID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var req joinRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errs.NewValidation("roomId"))
		return
	}

	rec, err := h.authorizeRoom(c, uid, req.RoomID)
	if err != nil {
		respondError(c, err)
		return
	}

	token, err := h.provider.IssueAccessToken(uid, rec.RoomName)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue access token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "roomName": rec.RoomName})
}

// GetVideoRoom reports the hosted room's live status.
func (h *Handler) GetVideoRoom(c *gin.Context) {
	uid, err := userID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	roomID := c.Param("roomId")
	if _, err := h.authorizeRoom(c, uid, roomID); err != nil {
		respondError(c, err)
		return
	}

	room, err := h.provider.FetchRoom(c.Request.Context(), roomID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

// ListVideoParticipants lists the identities connected to the hosted room.
func (h *Handler) ListVideoParticipants(c *gin.Context) {
	uid, err := userID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	roomID := c.Param("roomId")
	if _, err := h.authorizeRoom(c, uid, roomID); err != nil {
		respondError(c, err)
		return
	}

	participants, err := h.provider.ListParticipants(c.Request.Context(), roomID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"participants": participants})
}

type endCallRequest struct {
	RoomID string `json:"roomId" binding:"required"`
}

// EndVideoCall completes the hosted room for both parties.
func (h *Handler) EndVideoCall(c *gin.Context) {
	uid, err := userID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var req endCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errs.NewValidation("roomId"))
		return
	}

	rec, err := h.authorizeRoom(c, uid, req.RoomID)
	if err != nil {
		respondError(c, err)
		return
	}

	room, err := h.provider.CompleteRoom(c.Request.Context(), req.RoomID)
	if err != nil {
		respondError(c, err)
		return
	}
	h.records.Delete(c.Request.Context(), *rec)

	log.Info().Str("module", "handlers.video").
		Str("room", req.RoomID).
		Str("user", uid).
		Msg("managed room completed")
	c.JSON(http.StatusOK, gin.H{"status": room.Status})
}

// authorizeRoom resolves a provider room back to its appointment and
// re-validates the caller's membership: the same guard path as every
// other entry point.
func (h *Handler) authorizeRoom(c *gin.Context, uid, roomID string) (*provider.RoomRecord, error) {
	rec, err := h.records.Get(c.Request.Context(), roomID)
	if err != nil {
		return nil, err
	}
	if _, err := h.guard.Authorize(c.Request.Context(), uid, rec.AppointmentID); err != nil {
		return nil, err
	}
	return rec, nil
}
