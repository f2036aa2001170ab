package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/carebridge/telehealth-signaling/internal/chat"
	"github.com/carebridge/telehealth-signaling/internal/errs"
)

// GetMessages returns the appointment's chat history in ascending
// creation order. Late joiners read history here, not through the relay.
func (h *Handler) GetMessages(c *gin.Context) {
	uid, err := userID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	messages, err := h.chat.History(c.Request.Context(), c.Param("appointmentId"), uid)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

type sendMessageRequest struct {
	AppointmentID string           `json:"appointmentId" binding:"required"`
	Content       string           `json:"content"`
	MessageType   chat.MessageType `json:"messageType"`
	FileURL       string           `json:"fileUrl"`
	FileName      string           `json:"fileName"`
}

// SendMessage persists and broadcasts a chat message for callers without a
// live WebSocket (the send path is otherwise identical to the WS event).
func (h *Handler) SendMessage(c *gin.Context) {
	uid, err := userID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errs.NewValidation("appointmentId"))
		return
	}

	msg, err := h.chat.Send(c.Request.Context(), req.AppointmentID, uid, "", chat.SendInput{
		Content:     req.Content,
		MessageType: req.MessageType,
		FileURL:     req.FileURL,
		FileName:    req.FileName,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// MarkMessagesRead flips IsRead on every message addressed to the caller.
func (h *Handler) MarkMessagesRead(c *gin.Context) {
	uid, err := userID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	updated, err := h.chat.MarkRead(c.Request.Context(), c.Param("appointmentId"), uid)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

// GetUnreadCount returns the caller's unread totals per appointment.
func (h *Handler) GetUnreadCount(c *gin.Context) {
	uid, err := userID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	counts, err := h.chat.UnreadCounts(c.Request.Context(), uid)
	if err != nil {
		respondError(c, err)
		return
	}
	var total int64
	for _, uc := range counts {
		total += uc.Count
	}
	c.JSON(http.StatusOK, gin.H{"total": total, "byAppointment": counts})
}
