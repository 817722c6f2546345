package negotiation

import (
	"context"
	"errors"
	"fmt"
	"sync"

	pion "github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"github.com/BioHazard786/Warproom/cli/internal/config"
	"github.com/BioHazard786/Warproom/internal/protocol"
)

const controlChannelID = 0

type callbacks struct {
	ice     func(protocol.ICECandidatePayload)
	state   func(TransportState)
	control func([]byte)
}

// PionTransport is the production Transport backed by a pion PeerConnection.
// Callbacks are delivered in order on a dedicated goroutine.
type PionTransport struct {
	pc      *pion.PeerConnection
	control *pion.DataChannel
	source  MediaSource
	log     *zap.Logger

	mu       sync.Mutex
	senders  map[MediaKind]*pion.RTPSender
	unsent   [][]byte
	open     bool
	closed   bool
	handlers callbacks

	queue chan func()
	done  chan struct{}
}

// NewPionTransport creates the peer connection and its control channel.
// source may be nil, in which case publishing media always fails.
func NewPionTransport(cfg *config.Config, source MediaSource, log *zap.Logger) (*PionTransport, error) {
	if log == nil {
		log = zap.NewNop()
	}
	pc, err := pion.NewPeerConnection(iceConfiguration(cfg))
	if err != nil {
		return nil, NewError("create peer connection", err)
	}

	t := &PionTransport{
		pc:      pc,
		source:  source,
		log:     log,
		senders: make(map[MediaKind]*pion.RTPSender),
		queue:   make(chan func(), 256),
		done:    make(chan struct{}),
	}

	// Both sides create the same pre-negotiated channel, so neither waits
	// for OnDataChannel.
	ordered, negotiated := true, true
	id := uint16(controlChannelID)
	t.control, err = pc.CreateDataChannel("control", &pion.DataChannelInit{
		Ordered:    &ordered,
		Negotiated: &negotiated,
		ID:         &id,
	})
	if err != nil {
		pc.Close()
		return nil, NewError("create control channel", err)
	}

	t.control.OnOpen(t.flushControl)
	t.control.OnMessage(func(msg pion.DataChannelMessage) {
		data := msg.Data
		t.post(func() {
			if fn := t.handler().control; fn != nil {
				fn(data)
			}
		})
	})

	pc.OnICECandidate(func(c *pion.ICECandidate) {
		if c == nil {
			return
		}
		j := c.ToJSON()
		payload := protocol.ICECandidatePayload{
			Candidate:        j.Candidate,
			SDPMid:           j.SDPMid,
			SDPMLineIndex:    j.SDPMLineIndex,
			UsernameFragment: j.UsernameFragment,
		}
		t.post(func() {
			if fn := t.handler().ice; fn != nil {
				fn(payload)
			}
		})
	})

	pc.OnConnectionStateChange(func(s pion.PeerConnectionState) {
		state, ok := transportState(s)
		if !ok {
			return
		}
		t.post(func() {
			if fn := t.handler().state; fn != nil {
				fn(state)
			}
		})
	})

	go t.dispatch()
	return t, nil
}

func transportState(s pion.PeerConnectionState) (TransportState, bool) {
	switch s {
	case pion.PeerConnectionStateConnecting:
		return TransportConnecting, true
	case pion.PeerConnectionStateConnected:
		return TransportConnected, true
	case pion.PeerConnectionStateDisconnected:
		return TransportDisconnected, true
	case pion.PeerConnectionStateFailed:
		return TransportFailed, true
	case pion.PeerConnectionStateClosed:
		return TransportClosed, true
	}
	return TransportNew, false
}

func (t *PionTransport) dispatch() {
	for {
		select {
		case fn := <-t.queue:
			fn()
		case <-t.done:
			return
		}
	}
}

func (t *PionTransport) post(fn func()) {
	select {
	case t.queue <- fn:
	case <-t.done:
	}
}

func (t *PionTransport) handler() callbacks {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.handlers
}

func (t *PionTransport) OnICECandidate(fn func(protocol.ICECandidatePayload)) {
	t.mu.Lock()
	t.handlers.ice = fn
	t.mu.Unlock()
}

func (t *PionTransport) OnStateChange(fn func(TransportState)) {
	t.mu.Lock()
	t.handlers.state = fn
	t.mu.Unlock()
}

func (t *PionTransport) OnControl(fn func([]byte)) {
	t.mu.Lock()
	t.handlers.control = fn
	t.mu.Unlock()
}

func (t *PionTransport) CreateOffer() (protocol.SessionDescription, error) {
	offer, err := t.pc.CreateOffer(nil)
	if err != nil {
		return protocol.SessionDescription{}, err
	}
	if err := t.pc.SetLocalDescription(offer); err != nil {
		return protocol.SessionDescription{}, fmt.Errorf("set local description: %w", err)
	}
	return fromPion(t.pc.LocalDescription()), nil
}

func (t *PionTransport) CreateAnswer() (protocol.SessionDescription, error) {
	answer, err := t.pc.CreateAnswer(nil)
	if err != nil {
		return protocol.SessionDescription{}, err
	}
	if err := t.pc.SetLocalDescription(answer); err != nil {
		return protocol.SessionDescription{}, fmt.Errorf("set local description: %w", err)
	}
	return fromPion(t.pc.LocalDescription()), nil
}

func (t *PionTransport) SetRemoteDescription(d protocol.SessionDescription) error {
	var sdpType pion.SDPType
	switch d.Type {
	case "offer":
		sdpType = pion.SDPTypeOffer
	case "answer":
		sdpType = pion.SDPTypeAnswer
	default:
		return WrapError("set remote description", ErrUnexpectedSignal, d.Type)
	}
	return t.pc.SetRemoteDescription(pion.SessionDescription{Type: sdpType, SDP: d.SDP})
}

func (t *PionTransport) Rollback() error {
	return t.pc.SetLocalDescription(pion.SessionDescription{Type: pion.SDPTypeRollback})
}

func (t *PionTransport) AddICECandidate(c protocol.ICECandidatePayload) error {
	return t.pc.AddICECandidate(pion.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	})
}

func (t *PionTransport) PublishMedia(ctx context.Context, want MediaState) (MediaState, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var errs []error
	for _, kind := range []MediaKind{KindAudio, KindVideo} {
		enabled := want.Audio
		if kind == KindVideo {
			enabled = want.Video
		}
		sender := t.senders[kind]

		switch {
		case enabled && sender == nil:
			if err := ctx.Err(); err != nil {
				errs = append(errs, err)
				continue
			}
			if t.source == nil {
				errs = append(errs, fmt.Errorf("%s: no media source", kind))
				continue
			}
			track, err := t.source.Open(kind)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", kind, err))
				continue
			}
			s, err := t.pc.AddTrack(track)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: add track: %w", kind, err))
				continue
			}
			t.senders[kind] = s
			go drainRTCP(s)

		case !enabled && sender != nil:
			if err := t.pc.RemoveTrack(sender); err != nil {
				errs = append(errs, fmt.Errorf("%s: remove track: %w", kind, err))
				continue
			}
			delete(t.senders, kind)
		}
	}

	got := MediaState{Audio: t.senders[KindAudio] != nil, Video: t.senders[KindVideo] != nil}
	return got, errors.Join(errs...)
}

// drainRTCP reads incoming RTCP so interceptors keep running.
func drainRTCP(s *pion.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := s.Read(buf); err != nil {
			return
		}
	}
}

func (t *PionTransport) StopMedia() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for kind, s := range t.senders {
		if err := s.Stop(); err != nil {
			t.log.Debug("stop sender", zap.String("kind", string(kind)), zap.Error(err))
		}
		delete(t.senders, kind)
	}
}

// SendControl sends on the control channel, holding messages until it opens.
func (t *PionTransport) SendControl(data []byte) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	if !t.open {
		t.unsent = append(t.unsent, data)
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()
	return t.control.Send(data)
}

func (t *PionTransport) flushControl() {
	t.mu.Lock()
	t.open = true
	unsent := t.unsent
	t.unsent = nil
	t.mu.Unlock()

	for _, data := range unsent {
		if err := t.control.Send(data); err != nil {
			t.log.Debug("flush control message", zap.Error(err))
		}
	}
}

func (t *PionTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	close(t.done)
	t.mu.Unlock()

	if err := t.pc.Close(); err != nil {
		return NewError("close peer connection", err)
	}
	return nil
}

func fromPion(d *pion.SessionDescription) protocol.SessionDescription {
	if d == nil {
		return protocol.SessionDescription{}
	}
	return protocol.SessionDescription{Type: d.Type.String(), SDP: d.SDP}
}
