// Package rtc adapts a pion PeerConnection to the negotiation engine's
// transport interface.
package rtc

import (
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/avdeyev/voicemesh/internal/client/media"
	"github.com/avdeyev/voicemesh/internal/client/peer"
	"github.com/avdeyev/voicemesh/internal/domain"
	"github.com/avdeyev/voicemesh/internal/protocol"
)

func DefaultConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: []string{"stun:stun.l.google.com:19302"},
			},
		},
	}
}

type Transport struct {
	pc     *webrtc.PeerConnection
	peerID domain.ParticipantID
}

// NewFactory returns a TransportFactory producing pion-backed transports for
// the given remote peer, with the local track attached and remote tracks fed
// to the sink.
func NewFactory(cfg webrtc.Configuration, peerID domain.ParticipantID, source media.Source, sink media.Sink) peer.TransportFactory {
	return func(h peer.Hooks) (peer.Transport, error) {
		pc, err := webrtc.NewPeerConnection(cfg)
		if err != nil {
			return nil, err
		}
		t := &Transport{pc: pc, peerID: peerID}

		track, err := source.Track()
		if err != nil {
			_ = pc.Close()
			return nil, err
		}
		if _, err := pc.AddTrack(track); err != nil {
			_ = pc.Close()
			return nil, err
		}

		pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
			if cand == nil || h.OnCandidate == nil {
				return
			}
			h.OnCandidate(toProtocol(cand.ToJSON()))
		})

		pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
			if sink != nil {
				sink.HandleTrack(peerID, remote)
			}
		})

		pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
			log.Info().Str("module", "client.rtc").Str("peer", string(peerID)).
				Str("state", s.String()).Msg("peer connection state")
			switch s {
			case webrtc.PeerConnectionStateConnected:
				if h.OnConnected != nil {
					h.OnConnected()
				}
			case webrtc.PeerConnectionStateDisconnected:
				if h.OnDisconnected != nil {
					h.OnDisconnected()
				}
			case webrtc.PeerConnectionStateFailed:
				if h.OnFailed != nil {
					h.OnFailed()
				}
			}
		})

		return t, nil
	}
}

func (t *Transport) CreateOffer() (string, error) {
	offer, err := t.pc.CreateOffer(nil)
	if err != nil {
		return "", err
	}
	if err := t.pc.SetLocalDescription(offer); err != nil {
		return "", err
	}
	return offer.SDP, nil
}

func (t *Transport) ApplyOffer(sdp string) (string, error) {
	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}
	if err := t.pc.SetRemoteDescription(offer); err != nil {
		return "", err
	}
	answer, err := t.pc.CreateAnswer(nil)
	if err != nil {
		return "", err
	}
	if err := t.pc.SetLocalDescription(answer); err != nil {
		return "", err
	}
	return answer.SDP, nil
}

func (t *Transport) ApplyAnswer(sdp string) error {
	return t.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  sdp,
	})
}

func (t *Transport) AddCandidate(c protocol.Candidate) error {
	return t.pc.AddICECandidate(fromProtocol(c))
}

func (t *Transport) HasRemoteDescription() bool {
	return t.pc.RemoteDescription() != nil
}

func (t *Transport) Close() {
	if err := t.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "client.rtc").
			Str("peer", string(t.peerID)).Msg("close error")
	}
}

func toProtocol(ci webrtc.ICECandidateInit) protocol.Candidate {
	c := protocol.Candidate{
		Type:      protocol.TypeCandidate,
		Candidate: ci.Candidate,
	}
	if ci.SDPMid != nil {
		c.SDPMid = *ci.SDPMid
	}
	if ci.SDPMLineIndex != nil {
		c.SDPMLineIndex = *ci.SDPMLineIndex
	}
	return c
}

func fromProtocol(c protocol.Candidate) webrtc.ICECandidateInit {
	ci := webrtc.ICECandidateInit{Candidate: c.Candidate}
	if c.SDPMid != "" {
		ci.SDPMid = &c.SDPMid
	}
	ci.SDPMLineIndex = &c.SDPMLineIndex
	return ci
}
