package room

import (
	"fmt"

	"github.com/BioHazard786/Warproom/cli/internal/execution"
	"github.com/BioHazard786/Warproom/cli/internal/proctor"
	"github.com/BioHazard786/Warproom/cli/internal/signaling"
	"github.com/BioHazard786/Warproom/internal/protocol"
)

func (s *Session) routes() *signaling.Handler {
	h := signaling.NewHandler().
		On(protocol.TypeError, s.onError).
		On(protocol.TypeOffer, s.fromPeer(s.onOffer)).
		On(protocol.TypeAnswer, s.fromPeer(s.onAnswer)).
		On(protocol.TypeICECandidate, s.fromPeer(s.onICECandidate)).
		On(protocol.TypeRenegotiationOffer, s.fromPeer(s.onRenegotiationOffer)).
		On(protocol.TypeRenegotiationAnswer, s.fromPeer(s.onRenegotiationAnswer)).
		On(protocol.TypeCodeChanged, s.fromPeer(s.onDocument)).
		On(protocol.TypeLanguageChanged, s.fromPeer(s.onDocument)).
		On(protocol.TypeTestVectorsChanged, s.fromPeer(s.onDocument))

	if s.role == protocol.RoleHost {
		h.On(protocol.TypeRoomCreated, s.onRoomCreated).
			On(protocol.TypeJoinRequest, s.onJoinRequest).
			On(protocol.TypeJoinWithdrawn, s.onJoinWithdrawn).
			On(protocol.TypeCandidateBound, s.onCandidateBound).
			On(protocol.TypeCandidateLeft, s.onCandidateLeft).
			On(protocol.TypeRunResult, s.fromPeer(s.onRunResult)).
			On(protocol.TypeSubmissionResult, s.fromPeer(s.onSubmissionResult)).
			On(protocol.TypeProctoringViolation, s.fromPeer(s.onPeerViolation))
	} else {
		h.On(protocol.TypeJoinAccepted, s.onJoinAccepted).
			On(protocol.TypeJoinRejected, s.onJoinRejected).
			On(protocol.TypeHostLeft, s.onHostLeft)
	}
	return h.OnUnknown(func(msg *protocol.Message) error {
		return fmt.Errorf("unexpected message %q for %s", msg.Type, s.role)
	})
}

// fromPeer drops peer events that do not come from the bound peer, such as
// stragglers from a candidate who already left.
func (s *Session) fromPeer(fn signaling.HandlerFunc) signaling.HandlerFunc {
	return func(msg *protocol.Message) error {
		if s.peerConn == "" || msg.From != s.peerConn {
			return nil
		}
		return fn(msg)
	}
}

func (s *Session) onError(msg *protocol.Message) error {
	var p protocol.ErrorPayload
	if err := msg.DecodePayload(&p); err != nil {
		return err
	}
	s.notices.add(LevelError, "Relay: %s", p.Error)
	return nil
}

func (s *Session) onRoomCreated(msg *protocol.Message) error {
	var p protocol.RoomCreatedPayload
	if err := msg.DecodePayload(&p); err != nil {
		return err
	}
	s.roomID = p.RoomID
	s.phase = PhaseAwaitingCandidate
	s.notices.add(LevelInfo, "Room %s is open", p.RoomID)
	return nil
}

func (s *Session) onJoinRequest(msg *protocol.Message) error {
	var p protocol.JoinRequestPayload
	if err := msg.DecodePayload(&p); err != nil {
		return err
	}
	if s.findPending(p.CorrelationID) >= 0 {
		return nil
	}
	s.pending = append(s.pending, p)
	s.notices.add(LevelInfo, "%s asks to join (accept %s)", p.Profile.Name, p.CorrelationID)
	return nil
}

func (s *Session) onJoinWithdrawn(msg *protocol.Message) error {
	var p protocol.JoinWithdrawnPayload
	if err := msg.DecodePayload(&p); err != nil {
		return err
	}
	if i := s.findPending(p.CorrelationID); i >= 0 {
		s.notices.add(LevelInfo, "%s withdrew", s.pending[i].Profile.Name)
		s.pending = append(s.pending[:i], s.pending[i+1:]...)
	}
	return nil
}

// onCandidateBound starts the host's side of the PeerSession and seeds the
// candidate with the host's document.
func (s *Session) onCandidateBound(msg *protocol.Message) error {
	var p protocol.CandidateBoundPayload
	if err := msg.DecodePayload(&p); err != nil {
		return err
	}
	profile := p.Profile
	s.peer = &profile
	s.peerConn = p.CandidateConnID
	s.pending = nil
	s.phase = PhaseActive
	s.notices.add(LevelInfo, "%s joined", profile.Name)

	s.startPeer()
	if err := s.doc.PushAll(); err != nil {
		s.notices.add(LevelWarning, "Could not share the document: %v", err)
	}
	return nil
}

func (s *Session) onCandidateLeft(msg *protocol.Message) error {
	var p protocol.LeavePayload
	_ = msg.DecodePayload(&p)
	name := "The candidate"
	if s.peer != nil {
		name = s.peer.Name
	}
	s.stopPeer()
	s.peer = nil
	s.peerConn = ""
	s.phase = PhaseAwaitingCandidate
	s.notices.add(LevelInfo, "%s left (%s); the room stays open", name, reasonText(p.Reason))
	return nil
}

func (s *Session) onJoinAccepted(msg *protocol.Message) error {
	var p protocol.JoinAcceptedPayload
	if err := msg.DecodePayload(&p); err != nil {
		return err
	}
	host := p.Host
	s.peer = &host
	s.peerConn = p.HostConnID
	s.roomID = p.RoomID
	s.phase = PhaseActive
	s.notices.add(LevelInfo, "Admitted to %s by %s", p.RoomID, host.Name)

	s.monitor.Activate()
	s.startPeer()
	return nil
}

func (s *Session) onJoinRejected(msg *protocol.Message) error {
	var p protocol.JoinRejectedPayload
	if err := msg.DecodePayload(&p); err != nil {
		return err
	}
	s.phase = PhaseEnded
	s.endErr = fmt.Errorf("%w: %s", ErrJoinRejected, p.Reason)
	s.notices.add(LevelError, "Could not join: %s", reasonText(p.Reason))
	return nil
}

// onHostLeft tears the PeerSession and local media down before the loop
// publishes the ended session.
func (s *Session) onHostLeft(msg *protocol.Message) error {
	var p protocol.LeavePayload
	_ = msg.DecodePayload(&p)
	s.stopPeer()
	s.monitor.Deactivate()
	s.peerConn = ""
	s.phase = PhaseEnded
	s.notices.add(LevelInfo, "The host ended the session (%s)", reasonText(p.Reason))
	return nil
}

func (s *Session) onOffer(msg *protocol.Message) error {
	if s.engine == nil {
		return nil
	}
	var d protocol.SessionDescription
	if err := msg.DecodePayload(&d); err != nil {
		return err
	}
	return s.engine.HandleOffer(s.ctx, d)
}

func (s *Session) onAnswer(msg *protocol.Message) error {
	if s.engine == nil {
		return nil
	}
	var d protocol.SessionDescription
	if err := msg.DecodePayload(&d); err != nil {
		return err
	}
	return s.engine.HandleAnswer(d)
}

func (s *Session) onICECandidate(msg *protocol.Message) error {
	if s.engine == nil {
		return nil
	}
	var c protocol.ICECandidatePayload
	if err := msg.DecodePayload(&c); err != nil {
		return err
	}
	s.engine.HandleICECandidate(c)
	return nil
}

func (s *Session) onRenegotiationOffer(msg *protocol.Message) error {
	if s.engine == nil {
		return nil
	}
	var d protocol.SessionDescription
	if err := msg.DecodePayload(&d); err != nil {
		return err
	}
	return s.engine.HandleRenegotiationOffer(d)
}

func (s *Session) onRenegotiationAnswer(msg *protocol.Message) error {
	if s.engine == nil {
		return nil
	}
	var d protocol.SessionDescription
	if err := msg.DecodePayload(&d); err != nil {
		return err
	}
	return s.engine.HandleRenegotiationAnswer(d)
}

func (s *Session) onDocument(msg *protocol.Message) error {
	_, err := s.doc.Apply(msg)
	return err
}

func (s *Session) onRunResult(msg *protocol.Message) error {
	var res execution.RunResult
	if err := msg.DecodePayload(&res); err != nil {
		return err
	}
	s.lastRun = &res
	s.noteRun(s.peerName()+"'s run", res)
	return nil
}

func (s *Session) onSubmissionResult(msg *protocol.Message) error {
	var res execution.SubmissionResult
	if err := msg.DecodePayload(&res); err != nil {
		return err
	}
	s.lastSub = &res
	s.noteSubmit(s.peerName()+"'s submission", res)
	return nil
}

func (s *Session) onPeerViolation(msg *protocol.Message) error {
	var v proctor.Violation
	if err := msg.DecodePayload(&v); err != nil {
		return err
	}
	s.notices.add(LevelWarning, "%s: %s", s.peerName(), v.Message())
	return nil
}

func (s *Session) peerName() string {
	if s.peer == nil || s.peer.Name == "" {
		return "Peer"
	}
	return s.peer.Name
}

func reasonText(reason string) string {
	switch reason {
	case protocol.ReasonRoomNotFound:
		return "room not found"
	case protocol.ReasonRoomOccupied:
		return "an interview is already in progress"
	case protocol.ReasonSessionTaken:
		return "another candidate was admitted"
	case protocol.ReasonRoomClosed:
		return "the room was closed"
	case protocol.ReasonDeclined:
		return "the host declined"
	case protocol.ReasonDisconnected:
		return "disconnected"
	case "":
		return "left"
	}
	return reason
}
