package signaling

import (
	"sync"
	"time"

	"github.com/BioHazard786/Warproom/internal/protocol"
)

// RoomState is the coarse lifecycle state reported for a room.
type RoomState string

const (
	RoomAwaitingCandidate RoomState = "awaiting-candidate"
	RoomActive            RoomState = "active"
	RoomClosed            RoomState = "closed"
)

// Room is one interview room: a host, a queue of pending join requests and
// at most one bound candidate. All fields below mu are guarded by it; every
// membership change for the room is linearized through that lock.
type Room struct {
	ID        string
	HostID    string
	CreatedAt time.Time

	mu          sync.Mutex
	host        *Client
	hostProfile protocol.Profile
	session     *PeerSession
	pending     []*JoinRequest
	closed      bool
}

// JoinRequest is a candidate waiting for the host's decision.
type JoinRequest struct {
	CorrelationID string
	Profile       protocol.Profile
	CreatedAt     time.Time

	client *Client
}

// PeerSession binds the host connection to one admitted candidate connection.
type PeerSession struct {
	HostConnID      string
	CandidateConnID string
	StartedAt       time.Time

	candidate *Client
}

// RoomStatus is a point-in-time snapshot of a room, safe to hand out.
type RoomStatus struct {
	ID              string    `json:"id"`
	HostID          string    `json:"host_id"`
	State           RoomState `json:"state"`
	Pending         int       `json:"pending"`
	CandidateConnID string    `json:"candidate_conn_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// statusLocked must be called with r.mu held.
func (r *Room) statusLocked() RoomStatus {
	st := RoomStatus{
		ID:        r.ID,
		HostID:    r.HostID,
		State:     RoomAwaitingCandidate,
		Pending:   len(r.pending),
		CreatedAt: r.CreatedAt,
	}
	switch {
	case r.closed:
		st.State = RoomClosed
	case r.session != nil:
		st.State = RoomActive
		st.CandidateConnID = r.session.CandidateConnID
	}
	return st
}

// peerOfLocked returns the other member of the active session, or nil.
func (r *Room) peerOfLocked(c *Client) *Client {
	if r.session == nil {
		return nil
	}
	switch c {
	case r.host:
		return r.session.candidate
	case r.session.candidate:
		return r.host
	}
	return nil
}

func (r *Room) findPendingLocked(pred func(*JoinRequest) bool) int {
	for i, req := range r.pending {
		if pred(req) {
			return i
		}
	}
	return -1
}

func (r *Room) removePendingLocked(i int) *JoinRequest {
	req := r.pending[i]
	r.pending = append(r.pending[:i], r.pending[i+1:]...)
	return req
}
