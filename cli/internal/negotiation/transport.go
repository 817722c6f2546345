package negotiation

import (
	"context"

	"github.com/BioHazard786/Warproom/internal/protocol"
)

// Transport is the peer connection a negotiation engine drives. Callbacks
// must be delivered from a goroutine other than the caller of any Transport
// method, since the engine holds its lock while calling in.
type Transport interface {
	// CreateOffer creates an offer and sets it as the local description.
	CreateOffer() (protocol.SessionDescription, error)
	// CreateAnswer answers the current remote offer and sets it locally.
	CreateAnswer() (protocol.SessionDescription, error)
	SetRemoteDescription(protocol.SessionDescription) error
	// Rollback discards a local offer that has not been answered.
	Rollback() error
	AddICECandidate(protocol.ICECandidatePayload) error

	// PublishMedia adds or removes local tracks to match want and returns
	// what is actually being sent. A non-nil error reports tracks that
	// could not be acquired; the returned state is still valid.
	PublishMedia(ctx context.Context, want MediaState) (MediaState, error)
	StopMedia()

	SendControl([]byte) error

	OnICECandidate(func(protocol.ICECandidatePayload))
	OnStateChange(func(TransportState))
	OnControl(func([]byte))

	Close() error
}

// Signaler sends a negotiation event to the remote participant.
type Signaler func(msgType string, payload any) error
