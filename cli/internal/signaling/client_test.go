package signaling

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BioHazard786/Warproom/internal/protocol"
)

// echoRelay answers every message with room-created and closes on leave.
func echoRelay(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var msg protocol.Message
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if msg.Type == protocol.TypeLeave {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
				return
			}
			reply := protocol.MustMessage(protocol.TypeRoomCreated, protocol.RoomCreatedPayload{RoomID: "calm-graph-otter"})
			if err := conn.WriteJSON(reply); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func TestClientRoundTrip(t *testing.T) {
	srv := echoRelay(t)
	c := NewClient(wsURL(srv), nil)
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	require.NoError(t, c.Send(protocol.MustMessage(protocol.TypeCreateRoom, protocol.CreateRoomPayload{HostID: "h1"})))

	select {
	case msg := <-c.Incoming():
		require.NotNil(t, msg)
		assert.Equal(t, protocol.TypeRoomCreated, msg.Type)
		var p protocol.RoomCreatedPayload
		require.NoError(t, msg.DecodePayload(&p))
		assert.Equal(t, "calm-graph-otter", p.RoomID)
	case <-time.After(2 * time.Second):
		t.Fatal("no reply from relay")
	}
}

func TestClientServerCloseEndsIncoming(t *testing.T) {
	srv := echoRelay(t)
	c := NewClient(wsURL(srv), nil)
	require.NoError(t, c.Connect(context.Background()))

	require.NoError(t, c.Send(protocol.MustMessage(protocol.TypeLeave, nil)))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-c.Incoming():
			if !ok {
				assert.Eventually(t, func() bool {
					return errors.Is(c.Send(protocol.MustMessage(protocol.TypeLeave, nil)), ErrClosed)
				}, time.Second, 10*time.Millisecond)
				return
			}
		case <-deadline:
			t.Fatal("incoming not closed")
		}
	}
}

func TestClientSendAfterClose(t *testing.T) {
	srv := echoRelay(t)
	c := NewClient(wsURL(srv), nil)
	require.NoError(t, c.Connect(context.Background()))

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.Send(protocol.MustMessage(protocol.TypeLeave, nil)), ErrClosed)
}

func TestClientConnectRefused(t *testing.T) {
	srv := echoRelay(t)
	url := wsURL(srv)
	srv.Close()

	c := NewClient(url, nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.Error(t, c.Connect(ctx))
}
