package room

import (
	"errors"

	"go.uber.org/zap"

	"github.com/BioHazard786/Warproom/cli/internal/negotiation"
)

// startPeer creates the negotiation engine for a new PeerSession. Events
// from engines of earlier sessions are discarded by generation.
func (s *Session) startPeer() {
	s.stopPeer()
	if s.newTransport == nil {
		s.notices.add(LevelWarning, "No media transport configured; continuing without audio or video")
		return
	}
	t, err := s.newTransport()
	if err != nil {
		s.notices.add(LevelWarning, "Peer connection unavailable, continuing without media: %v", err)
		return
	}

	s.gen++
	gen := s.gen
	s.engine = negotiation.NewEngine(negotiation.Options{
		Role:      s.role,
		Transport: t,
		Signal:    s.send,
		Emit: func(ev negotiation.Event) {
			select {
			case s.events <- peerEvent{gen: gen, ev: ev}:
			default:
				s.log.Warn("dropped negotiation event", zap.Int("kind", int(ev.Kind)))
			}
		},
		Media:          s.media,
		ConnectTimeout: s.timeout,
		Logger:         s.log,
	})
	if err := s.engine.Start(s.ctx); err != nil {
		s.notices.add(LevelWarning, "Negotiation did not start: %v", err)
	}
}

// stopPeer closes the engine, which stops local tracks before returning.
func (s *Session) stopPeer() {
	if s.engine == nil {
		return
	}
	if err := s.engine.Close(); err != nil {
		s.log.Debug("close peer", zap.Error(err))
	}
	s.engine = nil
	s.gen++
}

func (s *Session) onPeerEvent(ev negotiation.Event) {
	switch ev.Kind {
	case negotiation.EventConnected:
		s.notices.add(LevelInfo, "Peer connection established")
	case negotiation.EventWarning:
		if errors.Is(ev.Err, negotiation.ErrMediaUnavailable) {
			s.notices.add(LevelWarning, "Camera or microphone unavailable, continuing without them")
			return
		}
		s.notices.add(LevelWarning, "%v", ev.Err)
	case negotiation.EventReconnectSuggested:
		s.notices.add(LevelWarning, "Peer connection is taking too long; type 'republish' to retry")
	case negotiation.EventRemoteMedia:
		s.notices.add(LevelInfo, "Peer media: %s", describeMedia(ev.Media))
	}
}

func describeMedia(m negotiation.MediaState) string {
	switch {
	case m.Audio && m.Video:
		return "audio and video"
	case m.Audio:
		return "audio only"
	case m.Video:
		return "video only"
	}
	return "none"
}
