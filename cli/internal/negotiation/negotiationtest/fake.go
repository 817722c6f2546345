// Package negotiationtest provides an in-memory Transport pair for tests.
//
// The pair models just enough of a peer connection: signaling states, a
// single host candidate per side, and connectivity that succeeds once both
// sides hold a local and remote description and at least one remote
// candidate has been applied.
package negotiationtest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/BioHazard786/Warproom/cli/internal/negotiation"
	"github.com/BioHazard786/Warproom/internal/protocol"
)

var (
	ErrNoDevice       = errors.New("no capture device")
	ErrWrongState     = errors.New("invalid signaling state")
	ErrAnswerFailed   = errors.New("create answer failed")
	ErrNotConnected   = errors.New("not connected")
	ErrTransportClose = errors.New("transport closed")
)

type signalingState int

const (
	stable signalingState = iota
	haveLocalOffer
	haveRemoteOffer
)

type link struct {
	mu sync.Mutex
}

// Transport is one end of a fake peer connection.
type Transport struct {
	// FailMedia makes every track acquisition fail. Set before use.
	FailMedia   bool
	// FailAnswers makes the next n CreateAnswer calls fail. Set before use.
	FailAnswers int

	name string
	link *link
	peer *Transport

	signaling signalingState
	hasLocal  bool
	hasRemote bool
	applied   int
	gathered  bool
	connected bool
	closed    bool

	offers    int
	media     negotiation.MediaState
	published []negotiation.MediaState
	stops     int

	onICE     func(protocol.ICECandidatePayload)
	onState   func(negotiation.TransportState)
	onControl func([]byte)

	queue chan func()
	done  chan struct{}
}

// NewPair returns two linked transports.
func NewPair() (*Transport, *Transport) {
	l := &link{}
	a := newTransport("a", l)
	b := newTransport("b", l)
	a.peer, b.peer = b, a
	return a, b
}

func newTransport(name string, l *link) *Transport {
	t := &Transport{
		name:  name,
		link:  l,
		queue: make(chan func(), 1024),
		done:  make(chan struct{}),
	}
	go t.dispatch()
	return t
}

// dispatch runs callbacks in order on their own goroutine.
func (t *Transport) dispatch() {
	for {
		select {
		case fn := <-t.queue:
			fn()
		case <-t.done:
			return
		}
	}
}

func (t *Transport) post(fn func()) {
	if t.closed {
		return
	}
	t.queue <- fn
}

func (t *Transport) CreateOffer() (protocol.SessionDescription, error) {
	t.link.mu.Lock()
	defer t.link.mu.Unlock()

	if t.closed {
		return protocol.SessionDescription{}, ErrTransportClose
	}
	if t.signaling == haveRemoteOffer {
		return protocol.SessionDescription{}, ErrWrongState
	}
	t.offers++
	t.signaling = haveLocalOffer
	t.hasLocal = true
	t.gatherLocked()
	return protocol.SessionDescription{Type: "offer", SDP: fmt.Sprintf("offer-%s-%d", t.name, t.offers)}, nil
}

func (t *Transport) CreateAnswer() (protocol.SessionDescription, error) {
	t.link.mu.Lock()
	defer t.link.mu.Unlock()

	if t.closed {
		return protocol.SessionDescription{}, ErrTransportClose
	}
	if t.signaling != haveRemoteOffer {
		return protocol.SessionDescription{}, ErrWrongState
	}
	if t.FailAnswers > 0 {
		t.FailAnswers--
		return protocol.SessionDescription{}, ErrAnswerFailed
	}
	t.signaling = stable
	t.hasLocal = true
	t.gatherLocked()
	t.tryConnectLocked()
	return protocol.SessionDescription{Type: "answer", SDP: "answer-" + t.name}, nil
}

func (t *Transport) SetRemoteDescription(d protocol.SessionDescription) error {
	t.link.mu.Lock()
	defer t.link.mu.Unlock()

	if t.closed {
		return ErrTransportClose
	}
	switch d.Type {
	case "offer":
		if t.signaling == haveLocalOffer {
			return ErrWrongState
		}
		t.signaling = haveRemoteOffer
	case "answer":
		if t.signaling != haveLocalOffer {
			return ErrWrongState
		}
		t.signaling = stable
	default:
		return fmt.Errorf("unknown sdp type %q", d.Type)
	}
	t.hasRemote = true
	t.tryConnectLocked()
	return nil
}

func (t *Transport) Rollback() error {
	t.link.mu.Lock()
	defer t.link.mu.Unlock()
	if t.signaling != haveLocalOffer {
		return ErrWrongState
	}
	t.signaling = stable
	return nil
}

func (t *Transport) AddICECandidate(c protocol.ICECandidatePayload) error {
	t.link.mu.Lock()
	defer t.link.mu.Unlock()

	if t.closed {
		return ErrTransportClose
	}
	if !t.hasRemote {
		return errors.New("remote description not set")
	}
	t.applied++
	t.tryConnectLocked()
	return nil
}

func (t *Transport) PublishMedia(_ context.Context, want negotiation.MediaState) (negotiation.MediaState, error) {
	t.link.mu.Lock()
	defer t.link.mu.Unlock()

	t.published = append(t.published, want)
	if t.FailMedia && (want.Audio || want.Video) {
		t.media = negotiation.MediaState{}
		return t.media, ErrNoDevice
	}
	t.media = want
	return t.media, nil
}

func (t *Transport) StopMedia() {
	t.link.mu.Lock()
	defer t.link.mu.Unlock()
	t.media = negotiation.MediaState{}
	t.stops++
}

func (t *Transport) SendControl(data []byte) error {
	t.link.mu.Lock()
	defer t.link.mu.Unlock()

	if !t.connected || t.peer.closed {
		return ErrNotConnected
	}
	peer := t.peer
	msg := append([]byte(nil), data...)
	peer.post(func() {
		if peer.onControl != nil {
			peer.onControl(msg)
		}
	})
	return nil
}

func (t *Transport) OnICECandidate(fn func(protocol.ICECandidatePayload)) { t.onICE = fn }
func (t *Transport) OnStateChange(fn func(negotiation.TransportState))   { t.onState = fn }
func (t *Transport) OnControl(fn func([]byte))                          { t.onControl = fn }

func (t *Transport) Close() error {
	t.link.mu.Lock()
	defer t.link.mu.Unlock()

	if t.closed {
		return nil
	}
	if t.connected {
		peer := t.peer
		peer.post(func() {
			if peer.onState != nil {
				peer.onState(negotiation.TransportDisconnected)
			}
		})
	}
	t.closed = true
	t.connected = false
	close(t.done)
	return nil
}

// Connected reports whether connectivity checks have succeeded.
func (t *Transport) Connected() bool {
	t.link.mu.Lock()
	defer t.link.mu.Unlock()
	return t.connected
}

// Offers counts offers created, including renegotiations.
func (t *Transport) Offers() int {
	t.link.mu.Lock()
	defer t.link.mu.Unlock()
	return t.offers
}

// Media returns what the transport is currently sending.
func (t *Transport) Media() negotiation.MediaState {
	t.link.mu.Lock()
	defer t.link.mu.Unlock()
	return t.media
}

// Applied counts remote candidates accepted.
func (t *Transport) Applied() int {
	t.link.mu.Lock()
	defer t.link.mu.Unlock()
	return t.applied
}

// Stops counts StopMedia calls.
func (t *Transport) Stops() int {
	t.link.mu.Lock()
	defer t.link.mu.Unlock()
	return t.stops
}

func (t *Transport) Closed() bool {
	t.link.mu.Lock()
	defer t.link.mu.Unlock()
	return t.closed
}

func (t *Transport) gatherLocked() {
	if t.gathered {
		return
	}
	t.gathered = true
	mid := "0"
	c := protocol.ICECandidatePayload{
		Candidate: fmt.Sprintf("candidate:%s 1 udp 2130706431 127.0.0.1 5000 typ host", t.name),
		SDPMid:    &mid,
	}
	t.post(func() {
		if t.onICE != nil {
			t.onICE(c)
		}
	})
}

func (t *Transport) readyLocked() bool {
	return !t.closed && t.hasLocal && t.hasRemote && t.signaling == stable
}

func (t *Transport) tryConnectLocked() {
	if t.connected || t.peer == nil {
		return
	}
	if !t.readyLocked() || !t.peer.readyLocked() {
		return
	}
	if t.applied+t.peer.applied == 0 {
		return
	}
	for _, side := range []*Transport{t, t.peer} {
		side.connected = true
		s := side
		s.post(func() {
			if s.onState != nil {
				s.onState(negotiation.TransportConnected)
			}
		})
	}
}
