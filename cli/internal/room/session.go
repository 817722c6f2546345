// Package room runs one participant's side of an interview room: a single
// event loop fed by relay messages, local actions and negotiation events.
package room

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BioHazard786/Warproom/cli/internal/document"
	"github.com/BioHazard786/Warproom/cli/internal/execution"
	"github.com/BioHazard786/Warproom/cli/internal/negotiation"
	"github.com/BioHazard786/Warproom/cli/internal/proctor"
	"github.com/BioHazard786/Warproom/cli/internal/signaling"
	"github.com/BioHazard786/Warproom/internal/protocol"
)

var (
	ErrJoinRejected = errors.New("join rejected")
	ErrRelayLost    = errors.New("lost connection to relay")
	ErrSessionOver  = errors.New("session is over")
)

// Channel is the signaling connection to the relay.
type Channel interface {
	Send(*protocol.Message) error
	Incoming() <-chan *protocol.Message
	Close() error
}

// TransportFactory returns a fresh peer transport for each PeerSession.
type TransportFactory func() (negotiation.Transport, error)

type Phase string

const (
	PhaseConnecting        Phase = "connecting"
	PhaseAwaitingCandidate Phase = "awaiting-candidate"
	PhaseAwaitingApproval  Phase = "awaiting-approval"
	PhaseActive            Phase = "active"
	PhaseEnded             Phase = "ended"
)

type Options struct {
	Role protocol.Role
	// RoomID is the room a candidate asks to join. Hosts leave it empty.
	RoomID  string
	Profile protocol.Profile

	Channel      Channel
	NewTransport TransportFactory
	Execution    execution.Service
	Environment  proctor.Environment

	// ForwardViolations sends the candidate's proctoring violations to the
	// host. Off by default; violations are always shown locally.
	ForwardViolations bool

	Media          negotiation.MediaState
	ConnectTimeout time.Duration
	Logger         *zap.Logger

	// Notify receives a snapshot after every loop iteration that changed
	// something. It runs on the loop and must not block.
	Notify func(Snapshot)
}

// Snapshot is a consistent view of the session for display.
type Snapshot struct {
	Role        protocol.Role
	Phase       Phase
	RoomID      string
	Peer        *protocol.Profile
	Pending     []protocol.JoinRequestPayload
	Document    document.Document
	Negotiation negotiation.State
	LocalMedia  negotiation.MediaState
	RemoteMedia negotiation.MediaState
	Running     bool
	LastRun     *execution.RunResult
	LastSubmit  *execution.SubmissionResult
	Violations  int
	Log         []Notice
}

type peerEvent struct {
	gen int
	ev  negotiation.Event
}

// Session is one participant's room. Its methods other than Run and
// Snapshot post work onto the loop and return immediately.
type Session struct {
	role         protocol.Role
	profile      protocol.Profile
	ch           Channel
	newTransport TransportFactory
	forward      bool
	timeout      time.Duration
	notify       func(Snapshot)
	log          *zap.Logger

	doc      *document.Synchronizer
	exec     *execution.Dispatcher
	monitor  *proctor.Monitor
	handlers *signaling.Handler

	actions chan func()
	events  chan peerEvent
	quit    chan struct{}
	done    chan struct{}

	// stopped is set once the loop no longer takes actions.
	stopMu  sync.RWMutex
	stopped bool

	// Loop-owned state.
	ctx      context.Context
	phase    Phase
	roomID   string
	peer     *protocol.Profile
	peerConn string
	pending  []protocol.JoinRequestPayload
	engine   *negotiation.Engine
	gen      int
	media    negotiation.MediaState
	running  int
	lastRun  *execution.RunResult
	lastSub  *execution.SubmissionResult
	notices  noticeLog
	endErr   error

	mu     sync.Mutex
	latest Snapshot
}

func New(opts Options) *Session {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	s := &Session{
		role:         opts.Role,
		profile:      opts.Profile,
		ch:           opts.Channel,
		newTransport: opts.NewTransport,
		forward:      opts.ForwardViolations,
		timeout:      opts.ConnectTimeout,
		notify:       opts.Notify,
		log:          log.With(zap.String("role", opts.Role.String())),
		actions:      make(chan func(), 64),
		events:       make(chan peerEvent, 256),
		quit:         make(chan struct{}),
		done:         make(chan struct{}),
		phase:        PhaseConnecting,
		roomID:       opts.RoomID,
		media:        opts.Media,
	}
	s.doc = document.NewSynchronizer(opts.Role, s.sendToPeer)
	s.exec = execution.NewDispatcher(opts.Role, opts.Execution, s.send, s.log)
	s.monitor = proctor.NewMonitor(opts.Role, opts.Environment, s.onViolation)
	s.handlers = s.routes()
	s.latest = s.snapshot()
	return s
}

// Run drives the session until it ends, ctx is cancelled or the relay
// connection is lost. A host ending its own session returns nil.
func (s *Session) Run(ctx context.Context) error {
	s.ctx = ctx
	defer close(s.done)
	defer s.teardown()
	defer s.stop()

	if err := s.open(); err != nil {
		return err
	}
	s.publish()

	for {
		select {
		case <-ctx.Done():
			s.leave(protocol.ReasonLeft)
			return ctx.Err()

		case msg, ok := <-s.ch.Incoming():
			if !ok {
				s.stopPeer()
				s.notices.add(LevelError, "Lost connection to the relay")
				s.phase = PhaseEnded
				s.publish()
				return ErrRelayLost
			}
			if err := s.handlers.Dispatch(msg); err != nil {
				s.log.Warn("relay message", zap.String("type", msg.Type), zap.Error(err))
			}

		case fn := <-s.actions:
			fn()

		case pe := <-s.events:
			if pe.gen == s.gen {
				s.onPeerEvent(pe.ev)
			}
		}

		s.publish()
		if s.phase == PhaseEnded {
			return s.endErr
		}
	}
}

func (s *Session) open() error {
	if s.role == protocol.RoleHost {
		return s.send(protocol.TypeCreateRoom, protocol.CreateRoomPayload{HostID: s.profile.ID, Profile: s.profile})
	}
	msg, err := protocol.NewMessage(protocol.TypeJoinRequest, protocol.JoinRequestPayload{Profile: s.profile})
	if err != nil {
		return err
	}
	msg.RoomID = s.roomID
	if err := s.ch.Send(msg); err != nil {
		return fmt.Errorf("send join request: %w", err)
	}
	s.phase = PhaseAwaitingApproval
	s.notices.add(LevelInfo, "Asked to join %s, waiting for the host", s.roomID)
	return nil
}

// stop refuses further actions and runs the ones already queued, so every
// action that was accepted still happens.
func (s *Session) stop() {
	close(s.quit)
	s.stopMu.Lock()
	s.stopped = true
	s.stopMu.Unlock()

	for {
		select {
		case fn := <-s.actions:
			fn()
		default:
			s.publish()
			return
		}
	}
}

func (s *Session) teardown() {
	s.stopPeer()
	s.monitor.Deactivate()
	if err := s.ch.Close(); err != nil {
		s.log.Debug("close channel", zap.Error(err))
	}
}

// send is safe from any goroutine. The relay fills in sender, target and
// room.
func (s *Session) send(msgType string, payload any) error {
	msg, err := protocol.NewMessage(msgType, payload)
	if err != nil {
		return err
	}
	return s.ch.Send(msg)
}

// sendToPeer carries document changes. With no peer bound the edit stays
// local; the next candidate is seeded on bind.
func (s *Session) sendToPeer(msgType string, payload any) error {
	if s.peerConn == "" {
		return nil
	}
	return s.send(msgType, payload)
}

// do posts fn to the loop. It returns nil only if fn will run.
func (s *Session) do(fn func()) error {
	s.stopMu.RLock()
	defer s.stopMu.RUnlock()
	if s.stopped {
		return ErrSessionOver
	}
	select {
	case s.actions <- fn:
		return nil
	case <-s.quit:
		return ErrSessionOver
	}
}

// Snapshot returns the view published after the latest loop iteration.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

// Done is closed once Run has returned.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) publish() {
	snap := s.snapshot()
	s.mu.Lock()
	s.latest = snap
	s.mu.Unlock()
	if s.notify != nil {
		s.notify(snap)
	}
}

func (s *Session) snapshot() Snapshot {
	snap := Snapshot{
		Role:       s.role,
		Phase:      s.phase,
		RoomID:     s.roomID,
		Pending:    append([]protocol.JoinRequestPayload(nil), s.pending...),
		Document:   s.doc.Snapshot(),
		Running:    s.running > 0,
		LastRun:    s.lastRun,
		LastSubmit: s.lastSub,
		Violations: s.monitor.Count(proctor.FullscreenExit) + s.monitor.Count(proctor.VisibilityLost),
		Log:        s.notices.snapshot(),
	}
	if s.peer != nil {
		p := *s.peer
		snap.Peer = &p
	}
	if s.engine != nil {
		snap.Negotiation = s.engine.State()
		snap.LocalMedia, snap.RemoteMedia = s.engine.Media()
	}
	return snap
}

// Accept admits the pending request with correlationID. Host only.
func (s *Session) Accept(correlationID string) error {
	return s.do(func() { s.decide(protocol.TypeJoinAccept, correlationID) })
}

// Reject declines the pending request with correlationID. Host only.
func (s *Session) Reject(correlationID string) error {
	return s.do(func() { s.decide(protocol.TypeJoinReject, correlationID) })
}

func (s *Session) decide(msgType, correlationID string) {
	if s.role != protocol.RoleHost {
		s.notices.add(LevelWarning, "Only the host decides who joins")
		return
	}
	if s.findPending(correlationID) < 0 {
		s.notices.add(LevelWarning, "No pending request %s", correlationID)
		return
	}
	msg, err := protocol.NewMessage(msgType, protocol.JoinDecisionPayload{CorrelationID: correlationID})
	if err != nil {
		s.notices.add(LevelError, "%v", err)
		return
	}
	msg.RoomID = s.roomID
	if err := s.ch.Send(msg); err != nil {
		s.notices.add(LevelError, "Could not reach the relay: %v", err)
	}
}

func (s *Session) findPending(correlationID string) int {
	for i, p := range s.pending {
		if p.CorrelationID == correlationID {
			return i
		}
	}
	return -1
}

func (s *Session) EditCode(code string) error {
	return s.do(func() { s.report(s.doc.EditCode(code)) })
}

func (s *Session) EditLanguage(lang document.Language) error {
	return s.do(func() { s.report(s.doc.EditLanguage(lang)) })
}

// AddTestVector appends to the host's test vectors.
func (s *Session) AddTestVector(v document.TestVector) error {
	return s.do(func() {
		vectors := append(s.doc.Snapshot().Vectors, v)
		s.report(s.doc.EditTestVectors(vectors))
	})
}

func (s *Session) ClearTestVectors() error {
	return s.do(func() { s.report(s.doc.EditTestVectors(nil)) })
}

// report logs a failed local edit. Broadcast failures keep the edit.
func (s *Session) report(err error) {
	switch {
	case err == nil:
	case errors.Is(err, document.ErrNotPrivileged), errors.Is(err, document.ErrUnsupportedLanguage):
		s.notices.add(LevelWarning, "%v", err)
	default:
		s.notices.add(LevelWarning, "Edit kept locally, peer not updated: %v", err)
	}
}

// RunCode runs the shared code against the shared test vectors. The call
// happens off the loop; its result is posted back.
func (s *Session) RunCode() error {
	return s.do(func() {
		if s.phase == PhaseEnded {
			return
		}
		doc := s.doc.Snapshot()
		s.running++
		s.notices.add(LevelInfo, "Running %d test vectors in %s", len(doc.Vectors), doc.Language)
		go func() {
			res := s.exec.Run(s.ctx, doc.Language, doc.Code, doc.Vectors)
			s.do(func() {
				s.running--
				s.lastRun = &res
				s.noteRun("Run", res)
			})
		}()
	})
}

// Submit judges the shared code against problemID.
func (s *Session) Submit(problemID string) error {
	return s.do(func() {
		if s.phase == PhaseEnded {
			return
		}
		doc := s.doc.Snapshot()
		s.running++
		s.notices.add(LevelInfo, "Submitting for %s", problemID)
		go func() {
			res := s.exec.Submit(s.ctx, doc.Language, doc.Code, problemID)
			s.do(func() {
				s.running--
				s.lastSub = &res
				s.noteSubmit("Submission", res)
			})
		}()
	})
}

func (s *Session) noteRun(who string, res execution.RunResult) {
	if res.Kind == execution.KindInfrastructureFailure {
		s.notices.add(LevelError, "%s could not execute: %s", who, res.Error)
		return
	}
	passed := len(res.Vectors) - len(res.Failing())
	level := LevelInfo
	if !res.Passed() {
		level = LevelWarning
	}
	s.notices.add(level, "%s: %d/%d test vectors passed", who, passed, len(res.Vectors))
}

func (s *Session) noteSubmit(who string, res execution.SubmissionResult) {
	if res.Kind == execution.KindInfrastructureFailure {
		s.notices.add(LevelError, "%s could not execute: %s", who, res.Error)
		return
	}
	level := LevelInfo
	if !res.Accepted() {
		level = LevelWarning
	}
	s.notices.add(level, "%s verdict: %s", who, res.Verdict)
}

// SetMedia changes which local tracks are sent.
func (s *Session) SetMedia(want negotiation.MediaState) error {
	return s.do(func() {
		s.media = want
		if s.engine != nil {
			s.engine.SetMedia(s.ctx, want)
		}
	})
}

// Republish retries publishing after a suggested reconnect.
func (s *Session) Republish() error {
	return s.do(func() {
		if s.engine == nil {
			s.notices.add(LevelWarning, "No peer session to republish")
			return
		}
		if err := s.engine.Republish(s.ctx); err != nil {
			s.notices.add(LevelError, "Republish failed: %v", err)
			return
		}
		s.notices.add(LevelInfo, "Republishing local media")
	})
}

// Leave ends this participant's part in the room. A host leaving closes
// the room.
func (s *Session) Leave() error {
	return s.do(func() { s.leave(protocol.ReasonLeft) })
}

// leave releases local media before telling the relay.
func (s *Session) leave(reason string) {
	if s.phase == PhaseEnded {
		return
	}
	s.stopPeer()
	s.monitor.Deactivate()
	s.peerConn = ""
	if err := s.send(protocol.TypeLeave, protocol.LeavePayload{Reason: reason}); err != nil {
		s.log.Debug("send leave", zap.Error(err))
	}
	s.phase = PhaseEnded
	s.notices.add(LevelInfo, "You left the room")
}

func (s *Session) onViolation(v proctor.Violation) {
	s.do(func() {
		s.notices.add(LevelWarning, "Proctoring: %s", v.Message())
		if s.forward && s.phase == PhaseActive {
			if err := s.send(protocol.TypeProctoringViolation, v); err != nil {
				s.log.Debug("forward violation", zap.Error(err))
			}
		}
	})
}
