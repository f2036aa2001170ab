// Package chat implements the authorization-gated message relay: persist
// first, then best-effort live delivery over the signaling multiplexer.
package chat

import "time"

// MessageType distinguishes text from file attachments.
type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
	MessageTypeFile  MessageType = "file"
)

// Message is one persisted chat message between the appointment's parties.
type Message struct {
	ID            string      `gorm:"primaryKey;size:36" json:"id"`
	AppointmentID string      `gorm:"size:36;index" json:"appointmentId"`
	SenderID      string      `gorm:"size:36;index" json:"senderId"`
	ReceiverID    string      `gorm:"size:36;index" json:"receiverId"`
	Content       string      `gorm:"type:text" json:"content"`
	MessageType   MessageType `gorm:"size:16" json:"messageType"`
	FileURL       string      `json:"fileUrl,omitempty"`
	FileName      string      `json:"fileName,omitempty"`
	IsRead        bool        `gorm:"default:false" json:"isRead"`
	CreatedAt     time.Time   `json:"createdAt"`
}

// SendInput is the payload accepted from both the WS event and the REST
// endpoint.
type SendInput struct {
	Content     string      `json:"content"`
	MessageType MessageType `json:"messageType"`
	FileURL     string      `json:"fileUrl,omitempty"`
	FileName    string      `json:"fileName,omitempty"`
}

// UnreadCount is the per-appointment unread breakdown for one user.
type UnreadCount struct {
	AppointmentID string `json:"appointmentId"`
	Count         int64  `json:"count"`
}
