package room

import (
	"sync"

	"github.com/BioHazard786/Warproom/internal/protocol"
)

// memRelay is an in-memory stand-in for the relay serving one room with a
// host and any number of would-be candidates. Like the real relay it answers
// peer events sent outside a session with an error.
type memRelay struct {
	mu      sync.Mutex
	roomID  string
	host    *memConn
	bound   *memConn
	pending map[string]*memConn
}

func newMemRelay() *memRelay {
	return &memRelay{roomID: "calm-graph-otter", pending: make(map[string]*memConn)}
}

type memConn struct {
	relay   *memRelay
	id      string
	profile protocol.Profile
	in      chan *protocol.Message
	once    sync.Once
	closed  bool
}

func (r *memRelay) connect(id string) *memConn {
	return &memConn{relay: r, id: id, in: make(chan *protocol.Message, 1024)}
}

func (c *memConn) Send(msg *protocol.Message) error {
	c.relay.route(c, msg)
	return nil
}

func (c *memConn) Incoming() <-chan *protocol.Message { return c.in }

// Close drops the connection like a closed websocket would.
func (c *memConn) Close() error {
	c.relay.mu.Lock()
	defer c.relay.mu.Unlock()
	c.once.Do(func() {
		c.closed = true
		close(c.in)
	})
	return nil
}

func (c *memConn) deliverLocked(msg *protocol.Message) {
	if c == nil || c.closed {
		return
	}
	c.in <- msg
}

func (r *memRelay) route(from *memConn, msg *protocol.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if from.closed {
		return
	}

	switch msg.Type {
	case protocol.TypeCreateRoom:
		var p protocol.CreateRoomPayload
		_ = msg.DecodePayload(&p)
		from.profile = p.Profile
		r.host = from
		from.deliverLocked(protocol.MustMessage(protocol.TypeRoomCreated, protocol.RoomCreatedPayload{RoomID: r.roomID, ConnID: from.id}))

	case protocol.TypeJoinRequest:
		var p protocol.JoinRequestPayload
		_ = msg.DecodePayload(&p)
		if msg.RoomID != r.roomID || r.host == nil {
			from.deliverLocked(protocol.MustMessage(protocol.TypeJoinRejected, protocol.JoinRejectedPayload{Reason: protocol.ReasonRoomNotFound}))
			return
		}
		corr := from.id + "-req"
		from.profile = p.Profile
		r.pending[corr] = from
		r.host.deliverLocked(protocol.MustMessage(protocol.TypeJoinRequest, protocol.JoinRequestPayload{
			Profile:         p.Profile,
			CandidateConnID: from.id,
			CorrelationID:   corr,
		}))

	case protocol.TypeJoinAccept:
		var p protocol.JoinDecisionPayload
		_ = msg.DecodePayload(&p)
		cand, ok := r.pending[p.CorrelationID]
		if !ok || r.bound != nil {
			return
		}
		delete(r.pending, p.CorrelationID)
		for _, loser := range r.pending {
			loser.deliverLocked(protocol.MustMessage(protocol.TypeJoinRejected, protocol.JoinRejectedPayload{Reason: protocol.ReasonSessionTaken}))
		}
		r.pending = make(map[string]*memConn)
		r.bound = cand
		cand.deliverLocked(protocol.MustMessage(protocol.TypeJoinAccepted, protocol.JoinAcceptedPayload{
			HostConnID:      from.id,
			CandidateConnID: cand.id,
			RoomID:          r.roomID,
			Host:            from.profile,
		}))
		from.deliverLocked(protocol.MustMessage(protocol.TypeCandidateBound, protocol.CandidateBoundPayload{
			CandidateConnID: cand.id,
			CorrelationID:   p.CorrelationID,
			Profile:         cand.profile,
		}))

	case protocol.TypeJoinReject:
		var p protocol.JoinDecisionPayload
		_ = msg.DecodePayload(&p)
		if cand, ok := r.pending[p.CorrelationID]; ok {
			delete(r.pending, p.CorrelationID)
			cand.deliverLocked(protocol.MustMessage(protocol.TypeJoinRejected, protocol.JoinRejectedPayload{Reason: protocol.ReasonDeclined}))
		}

	case protocol.TypeLeave:
		var p protocol.LeavePayload
		_ = msg.DecodePayload(&p)
		if from == r.host {
			r.bound.deliverLocked(protocol.MustMessage(protocol.TypeHostLeft, protocol.LeavePayload{Reason: p.Reason}))
			r.host, r.bound = nil, nil
			return
		}
		if from == r.bound {
			r.bound = nil
			r.host.deliverLocked(protocol.MustMessage(protocol.TypeCandidateLeft, protocol.LeavePayload{Reason: p.Reason}))
		}

	default:
		var to *memConn
		role := protocol.RoleCandidate
		switch from {
		case r.host:
			role, to = protocol.RoleHost, r.bound
		case r.bound:
			to = r.host
		}
		if !protocol.AllowedFrom(msg.Type, role) {
			return
		}
		if to == nil {
			from.deliverLocked(protocol.MustMessage(protocol.TypeError, protocol.ErrorPayload{Error: "no active peer session"}))
			return
		}
		fwd := *msg
		fwd.From, fwd.To, fwd.RoomID = from.id, to.id, r.roomID
		to.deliverLocked(&fwd)
	}
}
