package signaling

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BioHazard786/Warproom/internal/protocol"
)

var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrRoomOccupied    = errors.New("room already has an active candidate")
	ErrSessionActive   = errors.New("a peer session is already active")
	ErrRequestNotFound = errors.New("join request not found")
	ErrNotHost         = errors.New("only the room host may do that")
	ErrAlreadyMember   = errors.New("connection already belongs to a room")
	ErrNoSession       = errors.New("no active peer session")
	ErrNotAllowed      = errors.New("event not allowed for this role")
	ErrPeerUnavailable = errors.New("peer connection unavailable")
)

// Observer receives a room snapshot after every membership change. It runs
// with the room lock held, so it must not block or call back into the
// registry.
type Observer func(RoomStatus)

// Registry owns every live room. The map is guarded by mu; each room guards
// its own membership, so operations on different rooms do not contend.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room

	log      *zap.Logger
	observer Observer
	now      func() time.Time
}

func NewRegistry(log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		rooms: make(map[string]*Room),
		log:   log,
		now:   time.Now,
	}
}

// SetObserver installs the status observer. Call before serving traffic.
func (r *Registry) SetObserver(o Observer) { r.observer = o }

func (r *Registry) notify(st RoomStatus) {
	if r.observer != nil {
		r.observer(st)
	}
}

func (r *Registry) get(id string) *Room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rooms[id]
}

// CreateRoom opens a room hosted by the given connection. A second call from
// the same connection returns the room it already hosts.
func (r *Registry) CreateRoom(host *Client, hostID string, profile protocol.Profile) (*Room, error) {
	if roomID, role := host.membership(); roomID != "" {
		if role == protocol.RoleHost {
			if room := r.get(roomID); room != nil {
				return room, nil
			}
		}
		return nil, ErrAlreadyMember
	}

	r.mu.Lock()
	id, err := r.newRoomIDLocked()
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}
	room := &Room{
		ID:          id,
		HostID:      hostID,
		CreatedAt:   r.now(),
		host:        host,
		hostProfile: profile,
	}
	r.rooms[id] = room
	r.mu.Unlock()

	host.setMembership(id, protocol.RoleHost)

	room.mu.Lock()
	r.notify(room.statusLocked())
	room.mu.Unlock()

	r.log.Info("room created", zap.String("room", id), zap.String("host", hostID), zap.String("conn", host.ID))
	return room, nil
}

// RequestJoin queues a join request and tells the host about it. Repeating
// the request from the same connection returns the queued request.
func (r *Registry) RequestJoin(roomID string, c *Client, profile protocol.Profile) (*JoinRequest, error) {
	room := r.get(roomID)
	if room == nil {
		return nil, ErrRoomNotFound
	}
	if current, _ := c.membership(); current != "" && current != roomID {
		return nil, ErrAlreadyMember
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	switch {
	case room.closed:
		return nil, ErrRoomNotFound
	case c == room.host:
		return nil, ErrAlreadyMember
	case room.session != nil:
		return nil, ErrRoomOccupied
	}

	if i := room.findPendingLocked(func(req *JoinRequest) bool { return req.client == c }); i >= 0 {
		return room.pending[i], nil
	}

	req := &JoinRequest{
		CorrelationID: uuid.NewString(),
		Profile:       profile,
		CreatedAt:     r.now(),
		client:        c,
	}
	room.pending = append(room.pending, req)
	c.setMembership(roomID, protocol.RoleCandidate)

	room.host.Deliver(event(room.ID, protocol.TypeJoinRequest, protocol.JoinRequestPayload{
		Profile:         profile,
		CandidateConnID: c.ID,
		CorrelationID:   req.CorrelationID,
	}))
	r.notify(room.statusLocked())
	return req, nil
}

// AcceptJoin binds the chosen request as the room's peer session. Every other
// pending request is rejected with "session-taken" and the queue is cleared.
func (r *Registry) AcceptJoin(roomID string, host *Client, correlationID string) (*PeerSession, error) {
	room := r.get(roomID)
	if room == nil {
		return nil, ErrRoomNotFound
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	switch {
	case room.closed:
		return nil, ErrRoomNotFound
	case host != room.host:
		return nil, ErrNotHost
	case room.session != nil:
		return nil, ErrSessionActive
	}

	i := room.findPendingLocked(func(req *JoinRequest) bool { return req.CorrelationID == correlationID })
	if i < 0 {
		return nil, ErrRequestNotFound
	}
	req := room.removePendingLocked(i)
	losers := room.pending
	room.pending = nil

	sess := &PeerSession{
		HostConnID:      host.ID,
		CandidateConnID: req.client.ID,
		StartedAt:       r.now(),
		candidate:       req.client,
	}
	room.session = sess

	for _, l := range losers {
		l.client.clearMembership(room.ID)
		l.client.Deliver(event(room.ID, protocol.TypeJoinRejected, protocol.JoinRejectedPayload{
			Reason: protocol.ReasonSessionTaken,
		}))
	}

	req.client.Deliver(event(room.ID, protocol.TypeJoinAccepted, protocol.JoinAcceptedPayload{
		HostConnID:      host.ID,
		CandidateConnID: req.client.ID,
		RoomID:          room.ID,
		Host:            room.hostProfile,
	}))
	host.Deliver(event(room.ID, protocol.TypeCandidateBound, protocol.CandidateBoundPayload{
		CandidateConnID: req.client.ID,
		CorrelationID:   req.CorrelationID,
		Profile:         req.Profile,
	}))

	r.notify(room.statusLocked())
	r.log.Info("candidate admitted",
		zap.String("room", room.ID),
		zap.String("candidate", req.client.ID),
		zap.Int("rejected", len(losers)),
	)
	return sess, nil
}

// RejectJoin declines a single pending request.
func (r *Registry) RejectJoin(roomID string, host *Client, correlationID string) error {
	room := r.get(roomID)
	if room == nil {
		return ErrRoomNotFound
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.closed {
		return ErrRoomNotFound
	}
	if host != room.host {
		return ErrNotHost
	}
	i := room.findPendingLocked(func(req *JoinRequest) bool { return req.CorrelationID == correlationID })
	if i < 0 {
		return ErrRequestNotFound
	}
	req := room.removePendingLocked(i)
	req.client.clearMembership(room.ID)
	req.client.Deliver(event(room.ID, protocol.TypeJoinRejected, protocol.JoinRejectedPayload{
		Reason: protocol.ReasonDeclined,
	}))
	r.notify(room.statusLocked())
	return nil
}

// Leave removes c from whatever room it belongs to. A leaving host destroys
// the room; a leaving candidate ends only the peer session; a pending
// requester is withdrawn from the queue. Connections in no room are ignored.
func (r *Registry) Leave(c *Client, reason string) {
	roomID, _ := c.membership()
	if roomID == "" {
		return
	}
	room := r.get(roomID)
	if room == nil {
		c.clearMembership(roomID)
		return
	}

	room.mu.Lock()
	if c == room.host {
		r.closeRoomLocked(room, reason)
		st := room.statusLocked()
		r.notify(st)
		room.mu.Unlock()

		r.mu.Lock()
		if r.rooms[room.ID] == room {
			delete(r.rooms, room.ID)
		}
		r.mu.Unlock()

		r.log.Info("room closed", zap.String("room", room.ID), zap.String("reason", reason))
		return
	}
	defer room.mu.Unlock()

	if room.session != nil && room.session.candidate == c {
		room.session = nil
		c.clearMembership(room.ID)
		room.host.Deliver(event(room.ID, protocol.TypeCandidateLeft, protocol.LeavePayload{Reason: reason}))
		r.notify(room.statusLocked())
		r.log.Info("candidate left", zap.String("room", room.ID), zap.String("reason", reason))
		return
	}

	if i := room.findPendingLocked(func(req *JoinRequest) bool { return req.client == c }); i >= 0 {
		req := room.removePendingLocked(i)
		c.clearMembership(room.ID)
		room.host.Deliver(event(room.ID, protocol.TypeJoinWithdrawn, protocol.JoinWithdrawnPayload{
			CorrelationID: req.CorrelationID,
		}))
		r.notify(room.statusLocked())
	}
}

func (r *Registry) closeRoomLocked(room *Room, reason string) {
	room.closed = true
	if room.session != nil {
		cand := room.session.candidate
		cand.clearMembership(room.ID)
		cand.Deliver(event(room.ID, protocol.TypeHostLeft, protocol.LeavePayload{Reason: reason}))
		room.session = nil
	}
	for _, req := range room.pending {
		req.client.clearMembership(room.ID)
		req.client.Deliver(event(room.ID, protocol.TypeJoinRejected, protocol.JoinRejectedPayload{
			Reason: protocol.ReasonRoomClosed,
		}))
	}
	room.pending = nil
	room.host.clearMembership(room.ID)
}

// Relay forwards a peer event from c to the other member of its session,
// stamping the sender, target and room.
func (r *Registry) Relay(c *Client, msg *protocol.Message) error {
	roomID, role := c.membership()
	if roomID == "" {
		return ErrNoSession
	}
	if !protocol.AllowedFrom(msg.Type, role) {
		return ErrNotAllowed
	}
	room := r.get(roomID)
	if room == nil {
		return ErrNoSession
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	peer := room.peerOfLocked(c)
	if peer == nil {
		return ErrNoSession
	}
	out := *msg
	out.From = c.ID
	out.To = peer.ID
	out.RoomID = room.ID
	if !peer.Deliver(&out) {
		return ErrPeerUnavailable
	}
	return nil
}

// Status returns a snapshot of the room.
func (r *Registry) Status(roomID string) (RoomStatus, bool) {
	room := r.get(roomID)
	if room == nil {
		return RoomStatus{}, false
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	return room.statusLocked(), true
}

// Counts returns the number of live rooms and of active peer sessions.
func (r *Registry) Counts() (rooms, sessions int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, room := range r.rooms {
		room.mu.Lock()
		if room.session != nil {
			sessions++
		}
		room.mu.Unlock()
	}
	return len(r.rooms), sessions
}

// newRoomIDLocked picks an unused adjective-concept-creature id.
// Must be called with r.mu held for writing.
func (r *Registry) newRoomIDLocked() (string, error) {
	lists := [][]string{adjectives, concepts, creatures}
	for attempt := 0; attempt < 64; attempt++ {
		words := make([]any, len(lists))
		for i, list := range lists {
			n, err := randomIndex(len(list))
			if err != nil {
				return "", fmt.Errorf("generate room id: %w", err)
			}
			words[i] = list[n]
		}
		id := fmt.Sprintf("%s-%s-%s", words...)
		if _, taken := r.rooms[id]; !taken {
			return id, nil
		}
	}
	return "", errors.New("generate room id: id space exhausted")
}

// randomIndex returns a cryptographically secure random index below max.
func randomIndex(max int) (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return 0, err
	}
	return int(n.Int64()), nil
}

func event(roomID, msgType string, payload any) *protocol.Message {
	msg := protocol.MustMessage(msgType, payload)
	msg.RoomID = roomID
	return msg
}
