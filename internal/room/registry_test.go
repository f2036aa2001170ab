package room

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carebridge/telehealth-signaling/internal/auth"
	"github.com/carebridge/telehealth-signaling/internal/errs"
)

func patient(conn string) Participant {
	return Participant{ConnectionID: conn, UserID: "patient-1", Role: auth.RolePatient}
}

func doctor(conn string) Participant {
	return Participant{ConnectionID: conn, UserID: "doctor-1", Role: auth.RoleDoctor}
}

func TestJoinCreatesWaitingRoom(t *testing.T) {
	reg := NewRegistry()

	snap, evicted, err := reg.Join("A1", patient("c1"))
	require.NoError(t, err)
	assert.Nil(t, evicted)
	assert.Equal(t, StatusWaiting, snap.Status)
	assert.Len(t, snap.Participants, 1)

	// A second distinct participant does not flip the room to active.
	snap, _, err = reg.Join("A1", doctor("c2"))
	require.NoError(t, err)
	assert.Equal(t, StatusWaiting, snap.Status)
	assert.Len(t, snap.Participants, 2)
}

func TestThirdDistinctUserRejected(t *testing.T) {
	reg := NewRegistry()
	_, _, err := reg.Join("A1", patient("c1"))
	require.NoError(t, err)
	_, _, err = reg.Join("A1", doctor("c2"))
	require.NoError(t, err)

	_, _, err = reg.Join("A1", Participant{ConnectionID: "c3", UserID: "intruder"})
	assert.ErrorIs(t, err, errs.ErrRoomFull)

	snap, ok := reg.Get("A1")
	require.True(t, ok)
	assert.Len(t, snap.Participants, 2)
	assert.False(t, snap.HasConnection("c3"))
}

func TestRejoinEvictsStaleConnection(t *testing.T) {
	reg := NewRegistry()
	_, _, err := reg.Join("A1", patient("c1"))
	require.NoError(t, err)
	_, _, err = reg.Join("A1", doctor("c2"))
	require.NoError(t, err)

	// App resume: same user, new connection. Last writer wins.
	snap, evicted, err := reg.Join("A1", patient("c9"))
	require.NoError(t, err)
	require.NotNil(t, evicted)
	assert.Equal(t, "c1", evicted.ConnectionID)
	assert.Equal(t, "patient-1", evicted.UserID)
	assert.Len(t, snap.Participants, 2)
	assert.True(t, snap.HasConnection("c9"))
	assert.False(t, snap.HasConnection("c1"))

	_, bound := reg.RoomOf("c1")
	assert.False(t, bound)
}

func TestHandshakeActivatesRoom(t *testing.T) {
	reg := NewRegistry()
	reg.Join("A1", patient("c1"))

	// Offer alone, with only one participant, must not activate.
	snap := reg.NoteOffer("A1")
	assert.Equal(t, StatusWaiting, snap.Status)

	reg.Join("A1", doctor("c2"))
	snap = reg.NoteOffer("A1")
	assert.Equal(t, StatusWaiting, snap.Status)

	snap = reg.NoteAnswer("A1")
	assert.Equal(t, StatusActive, snap.Status)
}

func TestLeaveResetsHandshake(t *testing.T) {
	reg := NewRegistry()
	reg.Join("A1", patient("c1"))
	reg.Join("A1", doctor("c2"))
	reg.NoteOffer("A1")

	// The offerer departs; its half of the handshake dies with it.
	reg.Leave("A1", "c1")
	reg.Join("A1", patient("c3"))

	// A lone answer against the new pairing must not activate the room.
	snap := reg.NoteAnswer("A1")
	assert.Equal(t, StatusWaiting, snap.Status)

	// A full offer/answer pair still does.
	reg.NoteOffer("A1")
	snap = reg.NoteAnswer("A1")
	assert.Equal(t, StatusActive, snap.Status)
}

func TestEvictionResetsHandshake(t *testing.T) {
	reg := NewRegistry()
	reg.Join("A1", patient("c1"))
	reg.Join("A1", doctor("c2"))
	reg.NoteOffer("A1")

	// The offerer's connection is displaced by a rejoin; the noted offer
	// belonged to the stale connection.
	_, evicted, err := reg.Join("A1", patient("c3"))
	require.NoError(t, err)
	require.NotNil(t, evicted)

	snap := reg.NoteAnswer("A1")
	assert.Equal(t, StatusWaiting, snap.Status)
}

func TestLeaveToEmptyRemovesRoom(t *testing.T) {
	reg := NewRegistry()
	reg.Join("A1", patient("c1"))
	reg.Join("A1", doctor("c2"))

	snap, closed := reg.Leave("A1", "c1")
	assert.False(t, closed)
	assert.Len(t, snap.Participants, 1)

	snap, closed = reg.Leave("A1", "c2")
	assert.True(t, closed)
	assert.Equal(t, StatusCompleted, snap.Status)

	_, ok := reg.Get("A1")
	assert.False(t, ok)

	// A later join starts a fresh waiting room.
	fresh, _, err := reg.Join("A1", patient("c3"))
	require.NoError(t, err)
	assert.Equal(t, StatusWaiting, fresh.Status)
}

func TestEndCompletesAndRemoves(t *testing.T) {
	reg := NewRegistry()
	reg.Join("A1", patient("c1"))
	reg.Join("A1", doctor("c2"))

	snap, ended := reg.End("A1")
	assert.True(t, ended)
	assert.Equal(t, StatusCompleted, snap.Status)
	// The snapshot still lists participants so the caller can notify them.
	assert.Len(t, snap.Participants, 2)

	_, ok := reg.Get("A1")
	assert.False(t, ok)

	_, ended = reg.End("A1")
	assert.False(t, ended)
}

func TestConnectionBelongsToOneRoom(t *testing.T) {
	reg := NewRegistry()
	reg.Join("A1", patient("c1"))

	// Joining a second appointment resolves as an implicit leave of the first.
	_, _, err := reg.Join("A2", patient("c1"))
	require.NoError(t, err)

	_, ok := reg.Get("A1")
	assert.False(t, ok)
	appt, bound := reg.RoomOf("c1")
	require.True(t, bound)
	assert.Equal(t, "A2", appt)
}

func TestSetMediaState(t *testing.T) {
	reg := NewRegistry()
	reg.Join("A1", patient("c1"))

	snap, ok := reg.SetMediaState("A1", "c1", MediaState{Muted: true, VideoOn: true})
	require.True(t, ok)
	assert.True(t, snap.Participants[0].Media.Muted)

	_, ok = reg.SetMediaState("A1", "ghost", MediaState{})
	assert.False(t, ok)
}

func TestConcurrentJoinLeaveAcrossRooms(t *testing.T) {
	reg := NewRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			appt := fmt.Sprintf("A%d", i)
			pConn := fmt.Sprintf("p-%d", i)
			dConn := fmt.Sprintf("d-%d", i)
			_, _, err := reg.Join(appt, patient(pConn))
			assert.NoError(t, err)
			_, _, err = reg.Join(appt, doctor(dConn))
			assert.NoError(t, err)
			reg.Leave(appt, pConn)
			reg.Leave(appt, dConn)
		}(i)
	}
	wg.Wait()

	for i := 0; i < 50; i++ {
		_, ok := reg.Get(fmt.Sprintf("A%d", i))
		assert.False(t, ok)
	}
}

func TestRoomNeverExceedsTwoDistinctUsers(t *testing.T) {
	reg := NewRegistry()
	reg.Join("A1", patient("c1"))
	reg.Join("A1", doctor("c2"))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			reg.Join("A1", Participant{
				ConnectionID: fmt.Sprintf("x-%d", i),
				UserID:       fmt.Sprintf("user-%d", i),
			})
		}(i)
	}
	wg.Wait()

	snap, ok := reg.Get("A1")
	require.True(t, ok)
	users := map[string]struct{}{}
	for _, p := range snap.Participants {
		users[p.UserID] = struct{}{}
	}
	assert.LessOrEqual(t, len(users), 2)
}
