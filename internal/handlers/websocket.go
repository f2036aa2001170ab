package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/carebridge/telehealth-signaling/internal/chat"
	"github.com/carebridge/telehealth-signaling/internal/errs"
	"github.com/carebridge/telehealth-signaling/internal/room"
	"github.com/carebridge/telehealth-signaling/internal/signal"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is handled by middleware
		return true
	},
}

// Client represents one WebSocket connection and its logical task. Only
// the readPump goroutine mutates appointmentID, so same-sender message
// order is preserved end to end.
type Client struct {
	ID       string
	UserID   string
	UserName string
	Conn     *websocket.Conn
	SendCh   chan []byte

	appointmentID string
}

// Send implements signal.Outlet without blocking the relay.
func (c *Client) Send(data []byte) bool {
	select {
	case c.SendCh <- data:
		return true
	default:
		return false
	}
}

// clientSet tracks live connections so stale ones can be closed on evict.
type clientSet struct {
	mu      sync.Mutex
	clients map[string]*Client
}

func newClientSet() *clientSet {
	return &clientSet{clients: make(map[string]*Client)}
}

func (s *clientSet) add(c *Client) {
	s.mu.Lock()
	s.clients[c.ID] = c
	s.mu.Unlock()
}

func (s *clientSet) remove(id string) {
	s.mu.Lock()
	delete(s.clients, id)
	s.mu.Unlock()
}

func (s *clientSet) get(id string) (*Client, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[id]
	return c, ok
}

// HandleWS upgrades the connection and runs the per-connection event loop.
func (h *Handler) HandleWS(c *gin.Context) {
	uid, err := userID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}
	userName := c.GetString("user_name")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "handlers.ws").Msg("failed to upgrade connection")
		return
	}

	client := &Client{
		ID:       uuid.New().String(),
		UserID:   uid,
		UserName: userName,
		Conn:     conn,
		SendCh:   make(chan []byte, 256),
	}
	h.clients.add(client)
	h.relay.Attach(client.ID, client)

	log.Info().Str("module", "handlers.ws").
		Str("conn", client.ID).
		Str("user", uid).
		Msg("connection established")

	go h.writePump(client)
	go h.readPump(client)
}

func (h *Handler) readPump(c *Client) {
	defer func() {
		h.disconnect(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("module", "handlers.ws").Str("conn", c.ID).Msg("websocket error")
			}
			break
		}

		var msg signal.Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			h.sendError(c, errs.NewValidation("message"))
			continue
		}
		h.dispatch(c, msg)
	}
}

// dispatch routes one inbound event. Authorization and validation failures
// are reported back on the sender's connection; the registry and relay are
// never touched before the checks pass.
func (h *Handler) dispatch(c *Client, msg signal.Message) {
	switch msg.Kind {
	case signal.KindJoinAppointment:
		h.handleJoin(c, msg)
	case signal.KindSendMessage:
		h.handleSendMessage(c, msg)
	case signal.KindOffer, signal.KindAnswer, signal.KindCandidate:
		h.handleSignaling(c, msg)
	case signal.KindEndCall:
		h.handleEndCall(c)
	case signal.KindTypingStart, signal.KindTypingStop:
		h.handleTyping(c, msg)
	case signal.KindMediaState:
		h.handleMediaState(c, msg)
	case signal.KindAppointmentUpdate:
		h.handleAppointmentUpdate(c, msg)
	default:
		log.Debug().Str("module", "handlers.ws").Str("kind", string(msg.Kind)).Msg("unknown message type")
	}
}

type joinPayload struct {
	AppointmentID string `json:"appointmentId"`
}

func (h *Handler) handleJoin(c *Client, msg signal.Message) {
	appointmentID := msg.AppointmentID
	if appointmentID == "" {
		var p joinPayload
		if err := json.Unmarshal(msg.Payload, &p); err == nil {
			appointmentID = p.AppointmentID
		}
	}
	if appointmentID == "" {
		h.sendError(c, errs.NewValidation("appointmentId"))
		return
	}

	// Fail fast: the appointment lookup is bounded and never holds a
	// room lock.
	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.JoinTimeout)
	defer cancel()
	role, err := h.guard.Authorize(ctx, c.UserID, appointmentID)
	if err != nil {
		h.sendError(c, err)
		return
	}

	snap, evicted, err := h.rooms.Join(appointmentID, room.Participant{
		ConnectionID: c.ID,
		UserID:       c.UserID,
		Role:         role,
		Media:        room.MediaState{VideoOn: true},
	})
	if err != nil {
		h.sendError(c, err)
		return
	}
	c.appointmentID = appointmentID

	// App suspend/resume on mobile: the previous connection of the same
	// user was displaced, close it out.
	if evicted != nil {
		h.relay.Detach(evicted.ConnectionID)
		if stale, ok := h.clients.get(evicted.ConnectionID); ok {
			stale.Conn.Close()
		}
		log.Info().Str("module", "handlers.ws").
			Str("conn", evicted.ConnectionID).
			Str("user", evicted.UserID).
			Msg("evicted stale connection")
	}

	snapData, _ := json.Marshal(snap)
	h.relay.DeliverTo(c.ID, signal.Message{
		Kind:          signal.KindJoined,
		AppointmentID: appointmentID,
		Payload:       snapData,
	})

	joined, _ := json.Marshal(room.Participant{
		ConnectionID: c.ID,
		UserID:       c.UserID,
		Role:         role,
	})
	h.relay.Deliver(appointmentID, c.ID, signal.Message{
		Kind:       signal.KindParticipantJoined,
		FromUserID: c.UserID,
		Payload:    joined,
	})
}

func (h *Handler) handleSendMessage(c *Client, msg signal.Message) {
	if msg.AppointmentID == "" {
		h.sendError(c, errs.NewValidation("appointmentId"))
		return
	}
	var in chat.SendInput
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &in); err != nil {
			h.sendError(c, errs.NewValidation("payload"))
			return
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.JoinTimeout)
	defer cancel()
	if _, err := h.chat.Send(ctx, msg.AppointmentID, c.UserID, c.ID, in); err != nil {
		h.sendError(c, err)
	}
}

// handleSignaling relays offer/answer/candidate within the sender's room.
// The payload is never inspected: SDP and candidates are opaque blobs.
func (h *Handler) handleSignaling(c *Client, msg signal.Message) {
	if c.appointmentID == "" {
		h.sendError(c, errs.ErrNotInRoom)
		return
	}
	msg.FromUserID = c.UserID
	if err := h.relay.Relay(c.appointmentID, c.ID, msg); err != nil {
		// Stale or evicted sender: dropped silently on the wire.
		return
	}
	switch msg.Kind {
	case signal.KindOffer:
		h.rooms.NoteOffer(c.appointmentID)
	case signal.KindAnswer:
		h.rooms.NoteAnswer(c.appointmentID)
	}
}

// handleEndCall completes the room and notifies every other participant.
// The registered-sender rule applies here like any other signaling kind: an
// evicted connection cannot end the room its user rejoined.
func (h *Handler) handleEndCall(c *Client) {
	if c.appointmentID == "" {
		return
	}
	if snap, ok := h.rooms.Get(c.appointmentID); !ok || !snap.HasConnection(c.ID) {
		return
	}
	snap, ended := h.rooms.End(c.appointmentID)
	if !ended {
		return
	}
	h.notifyCallEnded(snap, c.ID)
	c.appointmentID = ""
}

func (h *Handler) handleTyping(c *Client, msg signal.Message) {
	if c.appointmentID == "" {
		return
	}
	msg.FromUserID = c.UserID
	if len(msg.Payload) == 0 {
		p, _ := json.Marshal(signal.TypingPayload{
			AppointmentID: c.appointmentID,
			UserID:        c.UserID,
			UserName:      c.UserName,
		})
		msg.Payload = p
	}
	h.relay.Relay(c.appointmentID, c.ID, msg)
}

type mediaStatePayload struct {
	Muted   bool `json:"muted"`
	VideoOn bool `json:"videoOn"`
}

func (h *Handler) handleMediaState(c *Client, msg signal.Message) {
	if c.appointmentID == "" {
		return
	}
	var p mediaStatePayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		h.sendError(c, errs.NewValidation("payload"))
		return
	}
	if _, ok := h.rooms.SetMediaState(c.appointmentID, c.ID, room.MediaState{Muted: p.Muted, VideoOn: p.VideoOn}); ok {
		msg.FromUserID = c.UserID
		h.relay.Relay(c.appointmentID, c.ID, msg)
	}
}

func (h *Handler) handleAppointmentUpdate(c *Client, msg signal.Message) {
	if c.appointmentID == "" {
		return
	}
	h.relay.Deliver(c.appointmentID, c.ID, signal.Message{
		Kind:       signal.KindAppointmentUpdated,
		FromUserID: c.UserID,
		Payload:    msg.Payload,
	})
}

// disconnect resolves a dropped connection deterministically: implicit
// leave, and if the call was mid-flight the whole room ends so the peer
// is not left talking to nobody.
func (h *Handler) disconnect(c *Client) {
	h.relay.Detach(c.ID)
	h.clients.remove(c.ID)

	// An evicted connection is already unbound; its disconnect must not
	// tear down the room its user just rejoined.
	appointmentID, bound := h.rooms.RoomOf(c.ID)
	if !bound {
		return
	}

	if snap, ok := h.rooms.Get(appointmentID); ok && snap.Status == room.StatusActive {
		ended, _ := h.rooms.End(appointmentID)
		h.notifyCallEnded(ended, c.ID)
		log.Info().Str("module", "handlers.ws").
			Str("appointment", appointmentID).
			Str("conn", c.ID).
			Msg("participant dropped mid-call, room ended")
		return
	}

	if _, closed := h.rooms.Leave(appointmentID, c.ID); !closed {
		left, _ := json.Marshal(gin.H{"connectionId": c.ID, "userId": c.UserID})
		h.relay.Deliver(appointmentID, c.ID, signal.Message{
			Kind:       signal.KindParticipantLeft,
			FromUserID: c.UserID,
			Payload:    left,
		})
	}
}

// notifyCallEnded reaches the remaining participants directly: the room is
// already gone from the registry, so room-scoped delivery cannot be used.
func (h *Handler) notifyCallEnded(snap room.Snapshot, excludeConnID string) {
	for _, connID := range snap.OtherConnections(excludeConnID) {
		h.relay.DeliverTo(connID, signal.Message{
			Kind:          signal.KindCallEnded,
			AppointmentID: snap.AppointmentID,
		})
	}
}

func (h *Handler) sendError(c *Client, err error) {
	h.relay.DeliverTo(c.ID, signal.Message{
		Kind:  signal.KindError,
		Error: errs.Code(err),
	})
}

func (h *Handler) writePump(c *Client) {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.SendCh:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Warn().Err(err).Str("module", "handlers.ws").Str("conn", c.ID).Msg("failed to write message")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
