// Package negotiation drives the offer/answer/ICE exchange of one peer
// session and keeps it up to date when local media changes.
package negotiation

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BioHazard786/Warproom/internal/protocol"
)

const DefaultConnectTimeout = 20 * time.Second

// EventKind classifies what an engine reports to its owner.
type EventKind int

const (
	// EventConnected fires once, when the session first becomes Connected.
	EventConnected EventKind = iota
	// EventWarning carries a non-fatal failure in Err.
	EventWarning
	// EventReconnectSuggested fires when ConnectTimeout elapses without a
	// connection. The engine does not retry on its own; see Republish.
	EventReconnectSuggested
	// EventRemoteMedia carries the remote side's MediaState.
	EventRemoteMedia
	// EventRenegotiated fires after a renegotiation round completes.
	EventRenegotiated
)

type Event struct {
	Kind  EventKind
	Err   error
	Media MediaState
}

type Options struct {
	Role      protocol.Role
	Transport Transport
	Signal    Signaler
	// Emit must not block.
	Emit func(Event)
	// Media is the local media the participant wants to send.
	Media          MediaState
	ConnectTimeout time.Duration
	Logger         *zap.Logger
}

// Engine runs the negotiation state machine for one PeerSession. The
// candidate is the offerer and the polite side of renegotiation collisions;
// the host is the responder. All methods are safe for concurrent use.
type Engine struct {
	role      protocol.Role
	transport Transport
	signal    Signaler
	emit      func(Event)
	timeout   time.Duration
	log       *zap.Logger

	mu          sync.Mutex
	state       State
	closed      bool
	answered    bool
	transportUp bool
	remoteSet   bool
	pending     []protocol.ICECandidatePayload

	// renegotiating is set while our renegotiation offer awaits an answer;
	// queued records a renegotiation requested meanwhile.
	renegotiating bool
	queued        bool

	desired MediaState
	local   MediaState
	remote  MediaState
	timer   *time.Timer
}

func NewEngine(opts Options) *Engine {
	e := &Engine{
		role:      opts.Role,
		transport: opts.Transport,
		signal:    opts.Signal,
		emit:      opts.Emit,
		timeout:   opts.ConnectTimeout,
		log:       opts.Logger,
		desired:   opts.Media,
	}
	if e.timeout <= 0 {
		e.timeout = DefaultConnectTimeout
	}
	if e.log == nil {
		e.log = zap.NewNop()
	}
	if e.emit == nil {
		e.emit = func(Event) {}
	}
	e.log = e.log.With(zap.String("role", e.role.String()))

	e.transport.OnICECandidate(e.onLocalCandidate)
	e.transport.OnStateChange(e.onTransportState)
	e.transport.OnControl(e.onControl)
	return e
}

// State returns the current negotiation state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Renegotiating reports whether a renegotiation is in flight or queued.
func (e *Engine) Renegotiating() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.renegotiating || e.queued
}

// Media returns the local and remote media state as last known.
func (e *Engine) Media() (local, remote MediaState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.local, e.remote
}

// Start begins negotiation. The candidate publishes its tracks and sends
// the offer; the host waits for it. Both arm the connect timeout.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	if e.state != StateIdle {
		return ErrAlreadyStarted
	}
	e.armTimerLocked()
	if e.role != protocol.RoleCandidate {
		return nil
	}

	e.publishLocked(ctx)
	return e.sendOfferLocked()
}

func (e *Engine) sendOfferLocked() error {
	offer, err := e.transport.CreateOffer()
	if err != nil {
		return NewError("create offer", err)
	}
	e.state = StateOfferCreated

	if err := e.signal(protocol.TypeOffer, offer); err != nil {
		return NewError("send offer", err)
	}
	e.state = StateOfferSent
	e.log.Debug("offer sent")
	return nil
}

// HandleOffer answers the candidate's initial offer, then publishes the
// host's own tracks, which raises a renegotiation. An offer that could not
// be answered leaves the host in OfferReceived, where the candidate's
// re-offer is taken in its place.
func (e *Engine) HandleOffer(ctx context.Context, offer protocol.SessionDescription) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	if e.role != protocol.RoleHost || (e.state != StateIdle && e.state != StateOfferReceived) {
		return WrapError("handle offer", ErrUnexpectedSignal, e.state.String())
	}

	if err := e.transport.SetRemoteDescription(offer); err != nil {
		return NewError("set remote offer", err)
	}
	e.state = StateOfferReceived
	e.remoteDescriptionSetLocked()

	answer, err := e.transport.CreateAnswer()
	if err != nil {
		return NewError("create answer", err)
	}
	if err := e.signal(protocol.TypeAnswer, answer); err != nil {
		return NewError("send answer", err)
	}
	e.state = StateAnswerSent
	e.answered = true
	e.log.Debug("answer sent")

	if e.publishLocked(ctx) {
		e.renegotiateLocked()
	}
	e.maybeConnectedLocked()
	return nil
}

// HandleAnswer applies the host's answer to the initial offer.
func (e *Engine) HandleAnswer(answer protocol.SessionDescription) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	if e.state != StateOfferSent {
		return WrapError("handle answer", ErrUnexpectedSignal, e.state.String())
	}
	if err := e.transport.SetRemoteDescription(answer); err != nil {
		return NewError("set remote answer", err)
	}
	e.state = StateAnswerReceived
	e.answered = true
	e.remoteDescriptionSetLocked()
	e.maybeConnectedLocked()
	return nil
}

// HandleICECandidate applies a remote candidate, buffering it until the
// remote description is known. Failures are warnings, never fatal.
func (e *Engine) HandleICECandidate(c protocol.ICECandidatePayload) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	if !e.remoteSet {
		e.pending = append(e.pending, c)
		return
	}
	e.addCandidateLocked(c)
}

func (e *Engine) addCandidateLocked(c protocol.ICECandidatePayload) {
	if err := e.transport.AddICECandidate(c); err != nil {
		e.warnLocked(NewError("add ICE candidate", err))
	}
}

func (e *Engine) remoteDescriptionSetLocked() {
	e.remoteSet = true
	for _, c := range e.pending {
		e.addCandidateLocked(c)
	}
	e.pending = nil
}

// HandleRenegotiationOffer answers a renegotiation raised by the peer. If
// our own offer is in flight the host ignores the peer's offer and the
// candidate rolls its own back, answering first and re-offering after.
func (e *Engine) HandleRenegotiationOffer(offer protocol.SessionDescription) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	if !e.answered {
		return WrapError("handle renegotiation offer", ErrUnexpectedSignal, e.state.String())
	}

	if e.renegotiating {
		if e.role == protocol.RoleHost {
			e.log.Debug("ignoring colliding renegotiation offer")
			return nil
		}
		if err := e.transport.Rollback(); err != nil {
			e.warnLocked(NewError("rollback offer", err))
		}
		e.renegotiating = false
		e.queued = true
	}

	if err := e.transport.SetRemoteDescription(offer); err != nil {
		return NewError("set renegotiation offer", err)
	}
	answer, err := e.transport.CreateAnswer()
	if err != nil {
		return NewError("create renegotiation answer", err)
	}
	if err := e.signal(protocol.TypeRenegotiationAnswer, answer); err != nil {
		return NewError("send renegotiation answer", err)
	}
	e.emit(Event{Kind: EventRenegotiated})
	e.drainQueueLocked()
	return nil
}

// HandleRenegotiationAnswer completes our renegotiation round. Answers to
// offers we no longer have outstanding are ignored.
func (e *Engine) HandleRenegotiationAnswer(answer protocol.SessionDescription) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	if !e.renegotiating {
		e.log.Debug("ignoring stale renegotiation answer")
		return nil
	}
	if err := e.transport.SetRemoteDescription(answer); err != nil {
		e.renegotiating = false
		return NewError("set renegotiation answer", err)
	}
	e.renegotiating = false
	e.emit(Event{Kind: EventRenegotiated})
	e.drainQueueLocked()
	return nil
}

// SetMedia changes the local media. A change while Connected raises a
// renegotiation; media already flowing is not interrupted.
func (e *Engine) SetMedia(ctx context.Context, want MediaState) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	e.desired = want
	if e.publishLocked(ctx) {
		e.sendMediaStateLocked()
		e.renegotiateLocked()
	}
}

// Republish re-runs the publish step after a suggested reconnect. The
// candidate re-sends its offer if the session never connected.
func (e *Engine) Republish(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	e.publishLocked(ctx)
	if e.state == StateConnected {
		e.renegotiateLocked()
		return nil
	}

	e.armTimerLocked()
	if e.role == protocol.RoleCandidate && !e.answered {
		return e.sendOfferLocked()
	}
	return nil
}

// Close stops local tracks and tears the transport down. Idempotent.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	e.state = StateClosed
	if e.timer != nil {
		e.timer.Stop()
	}
	e.transport.StopMedia()
	return e.transport.Close()
}

// publishLocked reconciles local tracks with the desired media and reports
// whether what is being sent changed.
func (e *Engine) publishLocked(ctx context.Context) bool {
	got, err := e.transport.PublishMedia(ctx, e.desired)
	if err != nil {
		e.warnLocked(WrapError("publish media", errors.Join(ErrMediaUnavailable, err), "continuing without those tracks"))
	}
	changed := got != e.local
	e.local = got
	return changed
}

func (e *Engine) renegotiateLocked() {
	if e.state != StateConnected || e.renegotiating {
		e.queued = true
		return
	}
	offer, err := e.transport.CreateOffer()
	if err != nil {
		e.warnLocked(NewError("create renegotiation offer", err))
		return
	}
	if err := e.signal(protocol.TypeRenegotiationOffer, offer); err != nil {
		e.warnLocked(NewError("send renegotiation offer", err))
		return
	}
	e.renegotiating = true
	e.log.Debug("renegotiation offer sent")
}

func (e *Engine) drainQueueLocked() {
	if e.queued && !e.renegotiating && e.state == StateConnected {
		e.queued = false
		e.renegotiateLocked()
	}
}

// maybeConnectedLocked promotes the session once both descriptions are
// exchanged and the transport reports a working candidate pair.
func (e *Engine) maybeConnectedLocked() {
	if e.closed || e.state == StateConnected || !e.answered || !e.transportUp {
		return
	}
	e.state = StateConnected
	if e.timer != nil {
		e.timer.Stop()
	}
	e.log.Info("peer connected")
	e.emit(Event{Kind: EventConnected})
	e.sendMediaStateLocked()
	e.drainQueueLocked()
}

func (e *Engine) armTimerLocked() {
	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = time.AfterFunc(e.timeout, e.onConnectTimeout)
}

func (e *Engine) onConnectTimeout() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.state == StateConnected {
		return
	}
	e.log.Warn("connect timeout", zap.Duration("after", e.timeout), zap.String("state", e.state.String()))
	e.emit(Event{Kind: EventReconnectSuggested, Err: WrapError("connect", ErrConnectTimeout, e.state.String())})
}

func (e *Engine) sendMediaStateLocked() {
	if e.state != StateConnected {
		return
	}
	data, err := encodeControl(controlMediaState, e.local)
	if err != nil {
		e.log.Debug("encode media state", zap.Error(err))
		return
	}
	if err := e.transport.SendControl(data); err != nil {
		e.log.Debug("send media state", zap.Error(err))
	}
}

func (e *Engine) warnLocked(err error) {
	e.log.Warn("negotiation warning", zap.Error(err))
	e.emit(Event{Kind: EventWarning, Err: err})
}

func (e *Engine) onLocalCandidate(c protocol.ICECandidatePayload) {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return
	}
	if err := e.signal(protocol.TypeICECandidate, c); err != nil {
		e.log.Debug("send ICE candidate", zap.Error(err))
	}
}

func (e *Engine) onTransportState(s TransportState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}

	switch s {
	case TransportConnected:
		e.transportUp = true
		e.maybeConnectedLocked()
	case TransportDisconnected, TransportFailed:
		e.transportUp = false
		if e.state == StateConnected {
			e.warnLocked(WrapError("transport", ErrTransportDegraded, s.String()))
		}
	}
}

func (e *Engine) onControl(data []byte) {
	msg, err := decodeControl(data)
	if err != nil {
		e.log.Debug("decode control message", zap.Error(err))
		return
	}
	if msg.Type != controlMediaState {
		return
	}
	var st MediaState
	if err := msg.DecodePayload(&st); err != nil {
		e.log.Debug("decode media state", zap.Error(err))
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.remote = st
	e.emit(Event{Kind: EventRemoteMedia, Media: st})
}
