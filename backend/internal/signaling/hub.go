package signaling

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/BioHazard786/Warproom/backend/internal/metrics"
	"github.com/BioHazard786/Warproom/internal/protocol"
)

// Hub dispatches events read from relay connections to the registry. It holds
// no state of its own; Handle runs on the sending connection's read goroutine
// and the registry's per-room locks serialize membership changes.
type Hub struct {
	registry *Registry
	log      *zap.Logger

	// observeRooms receives room and session counts after membership changes.
	observeRooms func(rooms, sessions int)
}

func NewHub(registry *Registry, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{registry: registry, log: log, observeRooms: metrics.ObserveRooms}
}

// Registry returns the registry the hub dispatches to.
func (h *Hub) Registry() *Registry { return h.registry }

// Register records a new connection. The connection is in no room until it
// sends create-room or join-request.
func (h *Hub) Register(c *Client) {
	metrics.ConnectionOpened()
	c.log.Debug("client registered", zap.String("remote", remoteAddr(c)))
}

// Unregister treats a dropped connection as a leave with reason
// "disconnected" and stops its write pump.
func (h *Hub) Unregister(c *Client) {
	h.registry.Leave(c, protocol.ReasonDisconnected)
	c.Close()
	metrics.ConnectionClosed()
	h.observe()
	c.log.Debug("client unregistered")
}

// Handle processes one event from c. Peer events never change membership,
// so only the other types refresh the room gauges.
func (h *Hub) Handle(c *Client, msg *protocol.Message) {
	if !protocol.IsPeerEvent(msg.Type) {
		defer h.observe()
	}

	switch msg.Type {
	case protocol.TypeCreateRoom:
		var p protocol.CreateRoomPayload
		if len(msg.Payload) > 0 {
			if err := msg.DecodePayload(&p); err != nil {
				h.fail(c, err)
				return
			}
		}
		hostID := p.HostID
		if hostID == "" {
			hostID = c.ID
		}
		room, err := h.registry.CreateRoom(c, hostID, p.Profile)
		if err != nil {
			h.fail(c, err)
			return
		}
		c.Deliver(event(room.ID, protocol.TypeRoomCreated, protocol.RoomCreatedPayload{
			RoomID: room.ID,
			ConnID: c.ID,
		}))

	case protocol.TypeJoinRequest:
		var p protocol.JoinRequestPayload
		if len(msg.Payload) > 0 {
			if err := msg.DecodePayload(&p); err != nil {
				h.fail(c, err)
				return
			}
		}
		if _, err := h.registry.RequestJoin(msg.RoomID, c, p.Profile); err != nil {
			reason := rejectReason(err)
			if reason == "" {
				h.fail(c, err)
				return
			}
			h.log.Info("join rejected", zap.String("room", msg.RoomID), zap.String("reason", reason))
			metrics.JoinOutcome(reason)
			c.Deliver(event(msg.RoomID, protocol.TypeJoinRejected, protocol.JoinRejectedPayload{Reason: reason}))
			return
		}
		metrics.JoinOutcome("queued")

	case protocol.TypeJoinAccept, protocol.TypeJoinReject:
		var p protocol.JoinDecisionPayload
		if err := msg.DecodePayload(&p); err != nil {
			h.fail(c, err)
			return
		}
		roomID, _ := c.membership()
		if msg.Type == protocol.TypeJoinAccept {
			if _, err := h.registry.AcceptJoin(roomID, c, p.CorrelationID); err != nil {
				h.fail(c, err)
				return
			}
			metrics.JoinOutcome("accepted")
			return
		}
		if err := h.registry.RejectJoin(roomID, c, p.CorrelationID); err != nil {
			h.fail(c, err)
			return
		}
		metrics.JoinOutcome(protocol.ReasonDeclined)

	case protocol.TypeLeave:
		var p protocol.LeavePayload
		if len(msg.Payload) > 0 {
			_ = msg.DecodePayload(&p)
		}
		if p.Reason == "" {
			p.Reason = protocol.ReasonLeft
		}
		h.registry.Leave(c, p.Reason)

	default:
		if !protocol.IsPeerEvent(msg.Type) {
			h.fail(c, fmt.Errorf("unknown message type %q", msg.Type))
			return
		}
		err := h.registry.Relay(c, msg)
		switch {
		case err == nil:
			metrics.Relayed(msg.Type)
		case errors.Is(err, ErrNotAllowed):
			// Silently dropped; the sender's role may not originate this event.
			_, role := c.membership()
			c.log.Warn("dropping event", zap.String("type", msg.Type), zap.String("role", role.String()))
			metrics.Dropped(msg.Type, "role")
		case errors.Is(err, ErrPeerUnavailable):
			metrics.Dropped(msg.Type, "peer-unavailable")
		default:
			metrics.Dropped(msg.Type, "no-session")
			h.fail(c, err)
		}
	}
}

func (h *Hub) fail(c *Client, err error) {
	c.log.Debug("request failed", zap.Error(err))
	c.Deliver(event("", protocol.TypeError, protocol.ErrorPayload{Error: err.Error()}))
}

func (h *Hub) observe() {
	h.observeRooms(h.registry.Counts())
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrRoomNotFound):
		return protocol.ReasonRoomNotFound
	case errors.Is(err, ErrRoomOccupied):
		return protocol.ReasonRoomOccupied
	}
	return ""
}

func remoteAddr(c *Client) string {
	if c.conn == nil {
		return ""
	}
	return c.conn.RemoteAddr().String()
}
