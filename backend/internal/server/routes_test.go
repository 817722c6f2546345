package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BioHazard786/Warproom/backend/internal/config"
	"github.com/BioHazard786/Warproom/backend/internal/signaling"
	"github.com/BioHazard786/Warproom/internal/protocol"
)

func newTestServer(t *testing.T) (*httptest.Server, *signaling.Registry) {
	t.Helper()
	cfg := &config.Config{
		STUNServers:    []string{"stun:stun.example:3478"},
		TURNServers:    []string{"turn:turn.example:3478"},
		TURNUser:       "u",
		TURNPass:       "p",
		AllowedOrigins: []string{"*"},
	}
	registry := signaling.NewRegistry(nil)
	srv := httptest.NewServer(NewRouter(signaling.NewHub(registry, nil), cfg, nil))
	t.Cleanup(srv.Close)
	return srv, registry
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func write(t *testing.T, conn *websocket.Conn, msgType, roomID string, payload any) {
	t.Helper()
	msg := protocol.MustMessage(msgType, payload)
	msg.RoomID = roomID
	require.NoError(t, conn.WriteJSON(msg))
}

func read(t *testing.T, conn *websocket.Conn, msgType string) *protocol.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg protocol.Message
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, msgType, msg.Type)
	return &msg
}

func TestWebsocketSessionLifecycle(t *testing.T) {
	srv, registry := newTestServer(t)
	host := dial(t, srv)
	cand := dial(t, srv)

	write(t, host, protocol.TypeCreateRoom, "", protocol.CreateRoomPayload{HostID: "host"})
	var created protocol.RoomCreatedPayload
	require.NoError(t, read(t, host, protocol.TypeRoomCreated).DecodePayload(&created))

	write(t, cand, protocol.TypeJoinRequest, created.RoomID, protocol.JoinRequestPayload{
		Profile: protocol.Profile{ID: "cand"},
	})
	var req protocol.JoinRequestPayload
	require.NoError(t, read(t, host, protocol.TypeJoinRequest).DecodePayload(&req))

	write(t, host, protocol.TypeJoinAccept, "", protocol.JoinDecisionPayload{CorrelationID: req.CorrelationID})
	read(t, cand, protocol.TypeJoinAccepted)
	read(t, host, protocol.TypeCandidateBound)

	write(t, cand, protocol.TypeOffer, "", protocol.SessionDescription{Type: "offer", SDP: "v=0"})
	offer := read(t, host, protocol.TypeOffer)
	assert.Equal(t, req.CandidateConnID, offer.From)

	write(t, host, protocol.TypeAnswer, "", protocol.SessionDescription{Type: "answer", SDP: "v=0"})
	read(t, cand, protocol.TypeAnswer)

	st, ok := registry.Status(created.RoomID)
	require.True(t, ok)
	assert.Equal(t, signaling.RoomActive, st.State)

	// Dropping the host socket ends the candidate's session.
	host.Close()
	var left protocol.LeavePayload
	require.NoError(t, read(t, cand, protocol.TypeHostLeft).DecodePayload(&left))
	assert.Equal(t, protocol.ReasonDisconnected, left.Reason)
}

func TestRoomStatusEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	host := dial(t, srv)
	write(t, host, protocol.TypeCreateRoom, "", nil)
	var created protocol.RoomCreatedPayload
	require.NoError(t, read(t, host, protocol.TypeRoomCreated).DecodePayload(&created))

	resp, err := http.Get(srv.URL + "/api/v1/rooms/" + created.RoomID)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var st signaling.RoomStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.Equal(t, created.RoomID, st.ID)
	assert.Equal(t, signaling.RoomAwaitingCandidate, st.State)

	missing, err := http.Get(srv.URL + "/api/v1/rooms/none-such-room")
	require.NoError(t, err)
	missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestICEConfigEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/webrtc/config")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body webRTCConfig
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.ICEServers, 2)
	assert.Equal(t, []string{"stun:stun.example:3478"}, body.ICEServers[0].URLs)
	assert.Equal(t, "u", body.ICEServers[1].Username)
}

func TestHealthAndMetrics(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://interview.example"})

	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, check(r))

	r.Header.Set("Origin", "https://interview.example")
	assert.True(t, check(r))

	r.Header.Set("Origin", "https://evil.example")
	assert.False(t, check(r))
}
