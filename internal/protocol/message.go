// Package protocol defines the signaling wire format shared by the relay and
// the participant CLI.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Message is a single signaling event. It is encoded as one JSON text frame.
type Message struct {
	Type    string          `json:"type"`
	From    string          `json:"from,omitempty"`
	To      string          `json:"to,omitempty"`
	RoomID  string          `json:"room_id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Membership events.
const (
	TypeCreateRoom     = "create-room"
	TypeRoomCreated    = "room-created"
	TypeJoinRequest    = "join-request"
	TypeJoinAccept     = "join-accept"
	TypeJoinReject     = "join-reject"
	TypeJoinAccepted   = "join-accepted"
	TypeCandidateBound = "candidate-bound"
	TypeJoinRejected   = "join-rejected"
	TypeJoinWithdrawn  = "join-withdrawn"
	TypeLeave          = "leave"
	TypeHostLeft       = "host-left"
	TypeCandidateLeft  = "candidate-left"
	TypeError          = "error"
)

// Negotiation events, relayed peer to peer.
const (
	TypeOffer               = "offer"
	TypeAnswer              = "answer"
	TypeICECandidate        = "ice-candidate"
	TypeRenegotiationOffer  = "renegotiation-offer"
	TypeRenegotiationAnswer = "renegotiation-answer"
)

// Application events, relayed peer to peer once a session is active.
const (
	TypeCodeChanged         = "code-changed"
	TypeLanguageChanged     = "language-changed"
	TypeTestVectorsChanged  = "test-vectors-changed"
	TypeRunResult           = "run-result"
	TypeSubmissionResult    = "submission-result"
	TypeProctoringViolation = "proctoring-violation"
)

// Join rejection reasons.
const (
	ReasonRoomNotFound = "room-not-found"
	ReasonRoomOccupied = "room-occupied"
	ReasonSessionTaken = "session-taken"
	ReasonRoomClosed   = "room-closed"
	ReasonDeclined     = "declined"
)

// Leave reasons.
const (
	ReasonLeft         = "left"
	ReasonDisconnected = "disconnected"
)

// Role is the part a participant plays in a room.
type Role string

const (
	RoleHost      Role = "host"
	RoleCandidate Role = "candidate"
)

func (r Role) String() string { return string(r) }

// Profile identifies a participant to the other side.
type Profile struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

type CreateRoomPayload struct {
	HostID  string  `json:"host_id"`
	Profile Profile `json:"profile"`
}

type RoomCreatedPayload struct {
	RoomID string `json:"room_id"`
	ConnID string `json:"conn_id"`
}

// JoinRequestPayload is sent by a candidate with only Profile set; the relay
// fills in the connection and correlation ids before notifying the host.
type JoinRequestPayload struct {
	Profile         Profile `json:"profile"`
	CandidateConnID string  `json:"candidate_conn_id,omitempty"`
	CorrelationID   string  `json:"correlation_id,omitempty"`
}

type JoinDecisionPayload struct {
	CorrelationID string `json:"correlation_id"`
}

type JoinAcceptedPayload struct {
	HostConnID      string  `json:"host_conn_id"`
	CandidateConnID string  `json:"candidate_conn_id"`
	RoomID          string  `json:"room_id"`
	Host            Profile `json:"host"`
}

type CandidateBoundPayload struct {
	CandidateConnID string  `json:"candidate_conn_id"`
	CorrelationID   string  `json:"correlation_id"`
	Profile         Profile `json:"profile"`
}

type JoinRejectedPayload struct {
	Reason string `json:"reason"`
}

type JoinWithdrawnPayload struct {
	CorrelationID string `json:"correlation_id"`
}

type LeavePayload struct {
	Reason string `json:"reason,omitempty"`
}

type ErrorPayload struct {
	Error string `json:"error"`
}

// SessionDescription carries an SDP offer or answer.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// ICECandidatePayload mirrors the browser RTCIceCandidateInit shape.
type ICECandidatePayload struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

// NewMessage builds a message with the payload JSON-encoded. A nil payload
// leaves the payload field empty.
func NewMessage(msgType string, payload any) (*Message, error) {
	msg := &Message{Type: msgType}
	if payload == nil {
		return msg, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", msgType, err)
	}
	msg.Payload = raw
	return msg, nil
}

// MustMessage is NewMessage for payloads that cannot fail to encode.
func MustMessage(msgType string, payload any) *Message {
	msg, err := NewMessage(msgType, payload)
	if err != nil {
		panic(err)
	}
	return msg
}

// DecodePayload unmarshals the payload into v.
func (m *Message) DecodePayload(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("%s: empty payload", m.Type)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", m.Type, err)
	}
	return nil
}

// IsPeerEvent reports whether the event type is relayed verbatim between the
// two members of an active session.
func IsPeerEvent(msgType string) bool {
	switch msgType {
	case TypeOffer, TypeAnswer, TypeICECandidate,
		TypeRenegotiationOffer, TypeRenegotiationAnswer,
		TypeCodeChanged, TypeLanguageChanged, TypeTestVectorsChanged,
		TypeRunResult, TypeSubmissionResult, TypeProctoringViolation:
		return true
	}
	return false
}

// AllowedFrom reports whether a peer event may be sent by the given role.
// Test vectors are host-owned and execution results flow candidate to host.
func AllowedFrom(msgType string, role Role) bool {
	switch msgType {
	case TypeTestVectorsChanged:
		return role == RoleHost
	case TypeRunResult, TypeSubmissionResult, TypeProctoringViolation:
		return role == RoleCandidate
	}
	return IsPeerEvent(msgType)
}
