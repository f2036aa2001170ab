package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carebridge/telehealth-signaling/config"
	"github.com/carebridge/telehealth-signaling/internal/errs"
)

func testClient(baseURL string) *Client {
	return NewClient(config.ProviderConfig{
		BaseURL:   baseURL,
		APIKey:    "api-key",
		APISecret: "api-secret",
		Timeout:   2 * time.Second,
		TokenTTL:  time.Hour,
	})
}

func TestCreateRoom(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/rooms", r.URL.Path)
		assert.Equal(t, "Bearer api-key", r.Header.Get("Authorization"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "appointment-A1", body["name"])

		json.NewEncoder(w).Encode(Room{RoomID: "rm-1", RoomName: body["name"], Status: "in-progress"})
	}))
	defer srv.Close()

	room, err := testClient(srv.URL).CreateRoom(context.Background(), "appointment-A1")
	require.NoError(t, err)
	assert.Equal(t, "rm-1", room.RoomID)
	assert.Equal(t, "appointment-A1", room.RoomName)
}

func TestFetchRoom(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/rooms/rm-1", r.URL.Path)
		json.NewEncoder(w).Encode(Room{RoomID: "rm-1", Status: "in-progress", ParticipantCount: 2})
	}))
	defer srv.Close()

	room, err := testClient(srv.URL).FetchRoom(context.Background(), "rm-1")
	require.NoError(t, err)
	assert.Equal(t, 2, room.ParticipantCount)
}

func TestListParticipants(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/rooms/rm-1/participants", r.URL.Path)
		json.NewEncoder(w).Encode([]Participant{
			{Identity: "patient-1", Status: "connected"},
			{Identity: "doctor-1", Status: "connected"},
		})
	}))
	defer srv.Close()

	participants, err := testClient(srv.URL).ListParticipants(context.Background(), "rm-1")
	require.NoError(t, err)
	require.Len(t, participants, 2)
	assert.Equal(t, "patient-1", participants[0].Identity)
}

func TestCompleteRoom(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		json.NewEncoder(w).Encode(Room{RoomID: "rm-1", Status: "completed"})
	}))
	defer srv.Close()

	room, err := testClient(srv.URL).CompleteRoom(context.Background(), "rm-1")
	require.NoError(t, err)
	assert.Equal(t, "completed", room.Status)
}

func TestProviderErrorSurfacesWithoutRetry(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).CreateRoom(context.Background(), "appointment-A1")
	assert.ErrorIs(t, err, errs.ErrProviderUnavailable)
	assert.Equal(t, 1, calls)
}

func TestProviderDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // provider unreachable

	_, err := testClient(srv.URL).FetchRoom(context.Background(), "rm-1")
	assert.ErrorIs(t, err, errs.ErrProviderUnavailable)
}

func TestIssueAccessToken(t *testing.T) {
	c := testClient("https://unused.example")

	tokenString, err := c.IssueAccessToken("patient-1", "appointment-A1")
	require.NoError(t, err)

	var claims AccessClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		return []byte("api-secret"), nil
	})
	require.NoError(t, err)
	assert.True(t, token.Valid)
	assert.Equal(t, "patient-1", claims.Identity)
	assert.Equal(t, "appointment-A1", claims.RoomName)
	assert.Equal(t, "api-key", claims.Issuer)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, time.Minute)
}
