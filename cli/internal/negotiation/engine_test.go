package negotiation_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BioHazard786/Warproom/cli/internal/negotiation"
	"github.com/BioHazard786/Warproom/cli/internal/negotiation/negotiationtest"
	"github.com/BioHazard786/Warproom/internal/protocol"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type route int

const (
	deliver route = iota
	drop
	hold
)

// pipe carries signals one way, in order, like the relay does.
type pipe struct {
	mu    sync.Mutex
	rules map[string]route
	held  []*protocol.Message
	ch    chan *protocol.Message

	to   *negotiation.Engine
	errs []error
}

func newPipe() *pipe {
	return &pipe{rules: make(map[string]route), ch: make(chan *protocol.Message, 1024)}
}

func (p *pipe) signal(msgType string, payload any) error {
	msg, err := protocol.NewMessage(msgType, payload)
	if err != nil {
		return err
	}
	p.mu.Lock()
	switch p.rules[msgType] {
	case drop:
		p.mu.Unlock()
		return nil
	case hold:
		p.held = append(p.held, msg)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()
	p.ch <- msg
	return nil
}

func (p *pipe) set(msgType string, r route) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rules[msgType] = r
}

// release delivers held messages of msgType and stops holding it.
func (p *pipe) release(msgType string) {
	p.mu.Lock()
	delete(p.rules, msgType)
	var keep []*protocol.Message
	var out []*protocol.Message
	for _, m := range p.held {
		if m.Type == msgType {
			out = append(out, m)
		} else {
			keep = append(keep, m)
		}
	}
	p.held = keep
	p.mu.Unlock()

	for _, m := range out {
		p.ch <- m
	}
}

func (p *pipe) run(ctx context.Context) {
	for {
		select {
		case msg := <-p.ch:
			if err := p.apply(ctx, msg); err != nil {
				p.mu.Lock()
				p.errs = append(p.errs, err)
				p.mu.Unlock()
			}
		case <-ctx.Done():
			return
		}
	}
}

func (p *pipe) apply(ctx context.Context, msg *protocol.Message) error {
	switch msg.Type {
	case protocol.TypeICECandidate:
		var c protocol.ICECandidatePayload
		if err := msg.DecodePayload(&c); err != nil {
			return err
		}
		p.to.HandleICECandidate(c)
		return nil
	}

	var desc protocol.SessionDescription
	if err := msg.DecodePayload(&desc); err != nil {
		return err
	}
	switch msg.Type {
	case protocol.TypeOffer:
		return p.to.HandleOffer(ctx, desc)
	case protocol.TypeAnswer:
		return p.to.HandleAnswer(desc)
	case protocol.TypeRenegotiationOffer:
		return p.to.HandleRenegotiationOffer(desc)
	case protocol.TypeRenegotiationAnswer:
		return p.to.HandleRenegotiationAnswer(desc)
	}
	return errors.New("unexpected signal " + msg.Type)
}

func (p *pipe) failures() []error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]error(nil), p.errs...)
}

type recorder struct {
	mu     sync.Mutex
	events []negotiation.Event
}

func (r *recorder) emit(ev negotiation.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) count(kind negotiation.EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func (r *recorder) last(kind negotiation.EventKind) (negotiation.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Kind == kind {
			return r.events[i], true
		}
	}
	return negotiation.Event{}, false
}

type side struct {
	engine    *negotiation.Engine
	transport *negotiationtest.Transport
	events    *recorder
}

type harness struct {
	candidate, host side
	toHost, toCand  *pipe
}

type harnessOpts struct {
	timeout       time.Duration
	candMedia     negotiation.MediaState
	hostMedia     negotiation.MediaState
	candFailMedia bool
}

func newHarness(t *testing.T, opts harnessOpts) *harness {
	t.Helper()
	if opts.timeout == 0 {
		opts.timeout = waitFor
	}

	candT, hostT := negotiationtest.NewPair()
	candT.FailMedia = opts.candFailMedia

	h := &harness{toHost: newPipe(), toCand: newPipe()}
	h.candidate = side{transport: candT, events: &recorder{}}
	h.host = side{transport: hostT, events: &recorder{}}

	h.candidate.engine = negotiation.NewEngine(negotiation.Options{
		Role:           protocol.RoleCandidate,
		Transport:      candT,
		Signal:         h.toHost.signal,
		Emit:           h.candidate.events.emit,
		Media:          opts.candMedia,
		ConnectTimeout: opts.timeout,
	})
	h.host.engine = negotiation.NewEngine(negotiation.Options{
		Role:           protocol.RoleHost,
		Transport:      hostT,
		Signal:         h.toCand.signal,
		Emit:           h.host.events.emit,
		Media:          opts.hostMedia,
		ConnectTimeout: opts.timeout,
	})
	h.toHost.to = h.host.engine
	h.toCand.to = h.candidate.engine

	ctx, cancel := context.WithCancel(context.Background())
	go h.toHost.run(ctx)
	go h.toCand.run(ctx)
	t.Cleanup(func() {
		cancel()
		h.candidate.engine.Close()
		h.host.engine.Close()
	})
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	require.NoError(t, h.host.engine.Start(context.Background()))
	require.NoError(t, h.candidate.engine.Start(context.Background()))
}

func (h *harness) requireConnected(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.candidate.engine.State() == negotiation.StateConnected &&
			h.host.engine.State() == negotiation.StateConnected
	}, waitFor, tick)
}

func (h *harness) requireSettled(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool {
		return !h.candidate.engine.Renegotiating() && !h.host.engine.Renegotiating()
	}, waitFor, tick)
}

func TestSessionConnectsBothSides(t *testing.T) {
	h := newHarness(t, harnessOpts{
		candMedia: negotiation.MediaState{Audio: true, Video: true},
		hostMedia: negotiation.MediaState{Audio: true},
	})
	h.start(t)
	h.requireConnected(t)
	h.requireSettled(t)

	assert.Equal(t, 1, h.candidate.events.count(negotiation.EventConnected))
	assert.Equal(t, 1, h.host.events.count(negotiation.EventConnected))

	// The host publishes after answering, so its tracks arrive by renegotiation.
	assert.Equal(t, 1, h.candidate.transport.Offers())
	assert.Equal(t, 1, h.host.transport.Offers())
	assert.Equal(t, negotiation.MediaState{Audio: true}, h.host.transport.Media())
	assert.Equal(t, negotiation.MediaState{Audio: true, Video: true}, h.candidate.transport.Media())

	assert.Eventually(t, func() bool {
		_, remote := h.candidate.engine.Media()
		return remote == negotiation.MediaState{Audio: true}
	}, waitFor, tick)
	assert.Eventually(t, func() bool {
		_, remote := h.host.engine.Media()
		return remote == negotiation.MediaState{Audio: true, Video: true}
	}, waitFor, tick)

	assert.Empty(t, h.toHost.failures())
	assert.Empty(t, h.toCand.failures())
}

func TestNoConnectionWithoutAnswer(t *testing.T) {
	h := newHarness(t, harnessOpts{timeout: 100 * time.Millisecond})
	h.toCand.set(protocol.TypeAnswer, drop)
	h.start(t)

	assert.Never(t, func() bool {
		return h.candidate.engine.State() == negotiation.StateConnected ||
			h.host.engine.State() == negotiation.StateConnected
	}, 300*time.Millisecond, tick)

	assert.Equal(t, negotiation.StateOfferSent, h.candidate.engine.State())
	assert.Equal(t, negotiation.StateAnswerSent, h.host.engine.State())
	assert.Equal(t, 1, h.candidate.events.count(negotiation.EventReconnectSuggested))
	assert.Equal(t, 1, h.host.events.count(negotiation.EventReconnectSuggested))

	ev, ok := h.candidate.events.last(negotiation.EventReconnectSuggested)
	require.True(t, ok)
	assert.ErrorIs(t, ev.Err, negotiation.ErrConnectTimeout)
}

func TestNoConnectionWithoutCandidates(t *testing.T) {
	h := newHarness(t, harnessOpts{timeout: 100 * time.Millisecond})
	h.toHost.set(protocol.TypeICECandidate, drop)
	h.toCand.set(protocol.TypeICECandidate, drop)
	h.start(t)

	assert.Never(t, func() bool {
		return h.candidate.engine.State() == negotiation.StateConnected ||
			h.host.engine.State() == negotiation.StateConnected
	}, 300*time.Millisecond, tick)

	// Both descriptions were exchanged; only connectivity is missing.
	assert.Equal(t, negotiation.StateAnswerReceived, h.candidate.engine.State())
	assert.False(t, h.candidate.transport.Connected())
	assert.Equal(t, 1, h.candidate.events.count(negotiation.EventReconnectSuggested))
}

func TestCandidatesBufferedUntilRemoteDescription(t *testing.T) {
	_, hostT := negotiationtest.NewPair()
	events := &recorder{}
	var sent []string
	var mu sync.Mutex
	e := negotiation.NewEngine(negotiation.Options{
		Role:      protocol.RoleHost,
		Transport: hostT,
		Signal: func(msgType string, _ any) error {
			mu.Lock()
			sent = append(sent, msgType)
			mu.Unlock()
			return nil
		},
		Emit: events.emit,
	})
	t.Cleanup(func() { e.Close() })

	mid := "0"
	e.HandleICECandidate(protocol.ICECandidatePayload{Candidate: "candidate:1 1 udp 1 10.0.0.1 4000 typ host", SDPMid: &mid})
	e.HandleICECandidate(protocol.ICECandidatePayload{Candidate: "candidate:2 1 udp 1 10.0.0.2 4000 typ host", SDPMid: &mid})
	assert.Equal(t, 0, hostT.Applied())

	require.NoError(t, e.HandleOffer(context.Background(), protocol.SessionDescription{Type: "offer", SDP: "v=0"}))
	assert.Equal(t, 2, hostT.Applied())
	assert.Zero(t, events.count(negotiation.EventWarning))

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, sent, protocol.TypeAnswer)
}

func TestUnexpectedSignalsRejected(t *testing.T) {
	h := newHarness(t, harnessOpts{})

	err := h.candidate.engine.HandleOffer(context.Background(), protocol.SessionDescription{Type: "offer", SDP: "v=0"})
	assert.ErrorIs(t, err, negotiation.ErrUnexpectedSignal)

	err = h.host.engine.HandleAnswer(protocol.SessionDescription{Type: "answer", SDP: "v=0"})
	assert.ErrorIs(t, err, negotiation.ErrUnexpectedSignal)

	err = h.host.engine.HandleRenegotiationOffer(protocol.SessionDescription{Type: "offer", SDP: "v=0"})
	assert.ErrorIs(t, err, negotiation.ErrUnexpectedSignal)

	require.NoError(t, h.candidate.engine.Start(context.Background()))
	assert.ErrorIs(t, h.candidate.engine.Start(context.Background()), negotiation.ErrAlreadyStarted)
}

func TestMediaFailureProceedsWithoutTracks(t *testing.T) {
	h := newHarness(t, harnessOpts{
		candMedia:     negotiation.MediaState{Audio: true, Video: true},
		hostMedia:     negotiation.MediaState{Audio: true},
		candFailMedia: true,
	})
	h.start(t)
	h.requireConnected(t)

	ev, ok := h.candidate.events.last(negotiation.EventWarning)
	require.True(t, ok)
	assert.ErrorIs(t, ev.Err, negotiation.ErrMediaUnavailable)

	local, _ := h.candidate.engine.Media()
	assert.Equal(t, negotiation.MediaState{}, local)
	assert.Eventually(t, func() bool {
		_, remote := h.host.engine.Media()
		return remote == negotiation.MediaState{} && h.host.events.count(negotiation.EventRemoteMedia) > 0
	}, waitFor, tick)
}

func TestSetMediaRenegotiatesWithoutReset(t *testing.T) {
	h := newHarness(t, harnessOpts{
		candMedia: negotiation.MediaState{Audio: true, Video: true},
		hostMedia: negotiation.MediaState{Audio: true},
	})
	h.start(t)
	h.requireConnected(t)
	h.requireSettled(t)
	before := h.candidate.transport.Offers()

	h.candidate.engine.SetMedia(context.Background(), negotiation.MediaState{Audio: true})

	assert.Equal(t, negotiation.StateConnected, h.candidate.engine.State())
	h.requireSettled(t)
	assert.Equal(t, before+1, h.candidate.transport.Offers())
	assert.Equal(t, negotiation.StateConnected, h.candidate.engine.State())
	assert.Equal(t, negotiation.StateConnected, h.host.engine.State())
	assert.Equal(t, 1, h.candidate.events.count(negotiation.EventConnected))
	assert.Eventually(t, func() bool {
		_, remote := h.host.engine.Media()
		return remote == negotiation.MediaState{Audio: true}
	}, waitFor, tick)

	// Asking for what is already sent does nothing.
	h.candidate.engine.SetMedia(context.Background(), negotiation.MediaState{Audio: true})
	assert.False(t, h.candidate.engine.Renegotiating())
	assert.Equal(t, before+1, h.candidate.transport.Offers())
}

func TestRenegotiationQueuedWhileInFlight(t *testing.T) {
	h := newHarness(t, harnessOpts{
		candMedia: negotiation.MediaState{Audio: true, Video: true},
	})
	h.start(t)
	h.requireConnected(t)
	h.requireSettled(t)
	before := h.candidate.transport.Offers()

	h.toCand.set(protocol.TypeRenegotiationAnswer, hold)
	h.candidate.engine.SetMedia(context.Background(), negotiation.MediaState{Audio: true})
	h.candidate.engine.SetMedia(context.Background(), negotiation.MediaState{})

	assert.Equal(t, before+1, h.candidate.transport.Offers())
	assert.True(t, h.candidate.engine.Renegotiating())

	h.toCand.release(protocol.TypeRenegotiationAnswer)
	h.requireSettled(t)
	assert.Equal(t, before+2, h.candidate.transport.Offers())
	assert.Equal(t, negotiation.StateConnected, h.candidate.engine.State())
}

func TestRenegotiationCollisionPoliteCandidateYields(t *testing.T) {
	h := newHarness(t, harnessOpts{
		candMedia: negotiation.MediaState{Audio: true, Video: true},
		hostMedia: negotiation.MediaState{Audio: true},
	})
	h.start(t)
	h.requireConnected(t)
	h.requireSettled(t)
	candBefore := h.candidate.transport.Offers()
	hostBefore := h.host.transport.Offers()

	h.toHost.set(protocol.TypeRenegotiationOffer, hold)
	h.toCand.set(protocol.TypeRenegotiationOffer, hold)
	h.candidate.engine.SetMedia(context.Background(), negotiation.MediaState{Audio: true})
	h.host.engine.SetMedia(context.Background(), negotiation.MediaState{Audio: true, Video: true})
	require.True(t, h.candidate.engine.Renegotiating())
	require.True(t, h.host.engine.Renegotiating())

	// The host's copy of the candidate offer goes first so it is seen while
	// the host's own offer is outstanding.
	h.toHost.release(protocol.TypeRenegotiationOffer)
	h.toCand.release(protocol.TypeRenegotiationOffer)

	h.requireSettled(t)
	// Rolled back, then re-offered after answering the host.
	assert.Equal(t, candBefore+2, h.candidate.transport.Offers())
	assert.Equal(t, hostBefore+1, h.host.transport.Offers())
	assert.Equal(t, negotiation.StateConnected, h.candidate.engine.State())
	assert.Equal(t, negotiation.StateConnected, h.host.engine.State())
	assert.Empty(t, h.toHost.failures())
	assert.Empty(t, h.toCand.failures())

	assert.Eventually(t, func() bool {
		_, hostSees := h.host.engine.Media()
		_, candSees := h.candidate.engine.Media()
		return hostSees == negotiation.MediaState{Audio: true} &&
			candSees == negotiation.MediaState{Audio: true, Video: true}
	}, waitFor, tick)
}

func TestRepublishAfterTimeoutReoffers(t *testing.T) {
	h := newHarness(t, harnessOpts{timeout: 100 * time.Millisecond})
	h.toHost.set(protocol.TypeOffer, drop)
	h.start(t)

	require.Eventually(t, func() bool {
		return h.candidate.events.count(negotiation.EventReconnectSuggested) == 1
	}, waitFor, tick)
	assert.Equal(t, negotiation.StateOfferSent, h.candidate.engine.State())

	h.toHost.set(protocol.TypeOffer, deliver)
	require.NoError(t, h.candidate.engine.Republish(context.Background()))
	h.requireConnected(t)
	assert.Equal(t, 2, h.candidate.transport.Offers())
}

func TestRepublishRecoversFailedAnswer(t *testing.T) {
	h := newHarness(t, harnessOpts{timeout: 100 * time.Millisecond})
	h.host.transport.FailAnswers = 1
	h.start(t)

	require.Eventually(t, func() bool { return len(h.toHost.failures()) == 1 }, waitFor, tick)
	assert.ErrorIs(t, h.toHost.failures()[0], negotiationtest.ErrAnswerFailed)
	assert.Equal(t, negotiation.StateOfferReceived, h.host.engine.State())
	require.Eventually(t, func() bool {
		return h.candidate.events.count(negotiation.EventReconnectSuggested) == 1
	}, waitFor, tick)

	require.NoError(t, h.candidate.engine.Republish(context.Background()))
	h.requireConnected(t)
	assert.Len(t, h.toHost.failures(), 1)
	assert.Equal(t, 2, h.candidate.transport.Offers())
}

func TestTransportLossWarnsWithoutReset(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	h.start(t)
	h.requireConnected(t)

	require.NoError(t, h.host.engine.Close())
	assert.Equal(t, negotiation.StateClosed, h.host.engine.State())

	require.Eventually(t, func() bool {
		ev, ok := h.candidate.events.last(negotiation.EventWarning)
		return ok && errors.Is(ev.Err, negotiation.ErrTransportDegraded)
	}, waitFor, tick)
	assert.Equal(t, negotiation.StateConnected, h.candidate.engine.State())
}

func TestCloseStopsMediaAndIsIdempotent(t *testing.T) {
	h := newHarness(t, harnessOpts{candMedia: negotiation.MediaState{Audio: true}})
	require.NoError(t, h.candidate.engine.Start(context.Background()))

	require.NoError(t, h.candidate.engine.Close())
	require.NoError(t, h.candidate.engine.Close())
	assert.Equal(t, 1, h.candidate.transport.Stops())
	assert.True(t, h.candidate.transport.Closed())
	assert.Equal(t, negotiation.MediaState{}, h.candidate.transport.Media())

	assert.ErrorIs(t, h.candidate.engine.Start(context.Background()), negotiation.ErrClosed)
	assert.ErrorIs(t, h.candidate.engine.Republish(context.Background()), negotiation.ErrClosed)
}
