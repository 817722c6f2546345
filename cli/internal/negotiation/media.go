package negotiation

import (
	pion "github.com/pion/webrtc/v4"
)

type MediaKind string

const (
	KindAudio MediaKind = "audio"
	KindVideo MediaKind = "video"
)

// MediaSource opens local tracks. Capture devices live outside this
// package; an implementation feeds samples into the tracks it returns.
type MediaSource interface {
	Open(kind MediaKind) (pion.TrackLocal, error)
}

// SampleSource hands out sample-based tracks (Opus audio, VP8 video) for
// a capture pipeline to write into through Track.
type SampleSource struct {
	StreamID string

	tracks map[MediaKind]*pion.TrackLocalStaticSample
}

func NewSampleSource(streamID string) *SampleSource {
	return &SampleSource{StreamID: streamID, tracks: make(map[MediaKind]*pion.TrackLocalStaticSample)}
}

func (s *SampleSource) Open(kind MediaKind) (pion.TrackLocal, error) {
	mime := pion.MimeTypeOpus
	if kind == KindVideo {
		mime = pion.MimeTypeVP8
	}
	track, err := pion.NewTrackLocalStaticSample(pion.RTPCodecCapability{MimeType: mime}, string(kind), s.StreamID)
	if err != nil {
		return nil, NewError("open "+string(kind)+" track", err)
	}
	s.tracks[kind] = track
	return track, nil
}

// Track returns the most recently opened track of kind, or nil.
func (s *SampleSource) Track(kind MediaKind) *pion.TrackLocalStaticSample {
	return s.tracks[kind]
}
