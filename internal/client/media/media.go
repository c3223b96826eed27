// Package media holds the seams to the local capture and playback machinery,
// which live outside this module. The negotiation core only needs a track to
// attach and somewhere to hand remote tracks.
package media

import (
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/avdeyev/voicemesh/internal/domain"
)

// Source supplies the local audio track attached to every peer transport.
type Source interface {
	// Track returns the local track. Callers must wait on Ready first.
	Track() (webrtc.TrackLocal, error)
	// Ready is closed once the source can produce media.
	Ready() <-chan struct{}
	Close()
}

// Sink consumes remote audio tracks as transports connect.
type Sink interface {
	HandleTrack(peerID domain.ParticipantID, track *webrtc.TrackRemote)
}

// StaticSource is a Source backed by a pre-built sample track. It stands in
// for real capture, which is out of scope here.
type StaticSource struct {
	track *webrtc.TrackLocalStaticSample
	ready chan struct{}
}

func NewStaticSource(id, streamID string) (*StaticSource, error) {
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		id, streamID,
	)
	if err != nil {
		return nil, err
	}
	s := &StaticSource{track: track, ready: make(chan struct{})}
	close(s.ready)
	return s, nil
}

func (s *StaticSource) Track() (webrtc.TrackLocal, error) { return s.track, nil }
func (s *StaticSource) Ready() <-chan struct{}            { return s.ready }
func (s *StaticSource) Close()                            {}

// LogSink just records arriving tracks; rendering is out of scope.
type LogSink struct{}

func (LogSink) HandleTrack(peerID domain.ParticipantID, track *webrtc.TrackRemote) {
	log.Info().Str("module", "client.media").Str("peer", string(peerID)).
		Str("kind", track.Kind().String()).Str("track_id", track.ID()).
		Msg("remote track")
}
