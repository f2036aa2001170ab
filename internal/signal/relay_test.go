package signal

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carebridge/telehealth-signaling/internal/auth"
	"github.com/carebridge/telehealth-signaling/internal/errs"
	"github.com/carebridge/telehealth-signaling/internal/room"
)

// fakeOutlet records every delivered frame.
type fakeOutlet struct {
	mu        sync.Mutex
	frames    [][]byte
	rejectAll bool
}

func (o *fakeOutlet) Send(data []byte) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.rejectAll {
		return false
	}
	o.frames = append(o.frames, data)
	return true
}

func (o *fakeOutlet) messages(t *testing.T) []Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Message, 0, len(o.frames))
	for _, f := range o.frames {
		var m Message
		require.NoError(t, json.Unmarshal(f, &m))
		out = append(out, m)
	}
	return out
}

func setupRoom(t *testing.T) (*Relay, *room.Registry, *fakeOutlet, *fakeOutlet) {
	reg := room.NewRegistry()
	relay := NewRelay(reg)

	_, _, err := reg.Join("A1", room.Participant{ConnectionID: "p-conn", UserID: "patient-1", Role: auth.RolePatient})
	require.NoError(t, err)
	_, _, err = reg.Join("A1", room.Participant{ConnectionID: "d-conn", UserID: "doctor-1", Role: auth.RoleDoctor})
	require.NoError(t, err)

	p := &fakeOutlet{}
	d := &fakeOutlet{}
	relay.Attach("p-conn", p)
	relay.Attach("d-conn", d)
	return relay, reg, p, d
}

func TestRelayDeliversToOthersOnly(t *testing.T) {
	relay, _, p, d := setupRoom(t)

	sdp := json.RawMessage(`{"sdp":"v=0 original-offer"}`)
	err := relay.Relay("A1", "p-conn", Message{Kind: KindOffer, Payload: sdp})
	require.NoError(t, err)

	got := d.messages(t)
	require.Len(t, got, 1)
	assert.Equal(t, KindOffer, got[0].Kind)
	assert.Equal(t, "p-conn", got[0].From)
	// SDP passes through byte for byte.
	assert.JSONEq(t, string(sdp), string(got[0].Payload))

	// The sender never receives its own message.
	assert.Empty(t, p.messages(t))
}

func TestRelayDropsUnregisteredSender(t *testing.T) {
	relay, _, p, d := setupRoom(t)

	ghost := &fakeOutlet{}
	relay.Attach("ghost-conn", ghost)

	err := relay.Relay("A1", "ghost-conn", Message{Kind: KindOffer})
	assert.ErrorIs(t, err, errs.ErrNotInRoom)
	assert.Empty(t, p.messages(t))
	assert.Empty(t, d.messages(t))
}

func TestRelayUnknownRoom(t *testing.T) {
	reg := room.NewRegistry()
	relay := NewRelay(reg)
	err := relay.Relay("nope", "p-conn", Message{Kind: KindOffer})
	assert.ErrorIs(t, err, errs.ErrRoomNotFound)
}

func TestRelayEvictedSenderIsSilenced(t *testing.T) {
	relay, reg, _, d := setupRoom(t)

	// Patient rejoins from a new connection; the stale one must no longer
	// be able to signal into the room.
	_, evicted, err := reg.Join("A1", room.Participant{ConnectionID: "p-conn2", UserID: "patient-1", Role: auth.RolePatient})
	require.NoError(t, err)
	require.NotNil(t, evicted)

	err = relay.Relay("A1", "p-conn", Message{Kind: KindCandidate})
	assert.ErrorIs(t, err, errs.ErrNotInRoom)
	assert.Empty(t, d.messages(t))
}

func TestSameSenderOrderPreserved(t *testing.T) {
	relay, _, _, d := setupRoom(t)

	for i := 0; i < 10; i++ {
		payload, _ := json.Marshal(map[string]int{"seq": i})
		require.NoError(t, relay.Relay("A1", "p-conn", Message{Kind: KindCandidate, Payload: payload}))
	}

	got := d.messages(t)
	require.Len(t, got, 10)
	for i, m := range got {
		assert.JSONEq(t, fmt.Sprintf(`{"seq":%d}`, i), string(m.Payload))
	}
}

func TestDeliverSkipsExcludedConnection(t *testing.T) {
	relay, _, p, d := setupRoom(t)

	relay.Deliver("A1", "p-conn", Message{Kind: KindReceiveMessage})
	assert.Empty(t, p.messages(t))
	require.Len(t, d.messages(t), 1)

	relay.Deliver("A1", "", Message{Kind: KindCallEnded})
	require.Len(t, p.messages(t), 1)
	require.Len(t, d.messages(t), 2)
}

func TestFullBufferDoesNotBlockOthers(t *testing.T) {
	relay, _, _, _ := setupRoom(t)

	blocked := &fakeOutlet{rejectAll: true}
	relay.Attach("d-conn", blocked) // replace outlet with one that always drops

	// Relay must not error or block when one receiver drops the frame.
	err := relay.Relay("A1", "p-conn", Message{Kind: KindOffer})
	assert.NoError(t, err)
	assert.Empty(t, blocked.messages(t))
}

func TestDetachedConnectionIgnored(t *testing.T) {
	relay, _, _, d := setupRoom(t)
	relay.Detach("d-conn")

	err := relay.Relay("A1", "p-conn", Message{Kind: KindOffer})
	assert.NoError(t, err)
	assert.Empty(t, d.messages(t))
}
