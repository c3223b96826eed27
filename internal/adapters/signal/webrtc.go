package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/avdeyev/voicemesh/internal/protocol"
)

// The handshake handlers re-tag the payload with the sender identity and
// hand it to the relay. SDP and candidate content passes through untouched.

func (ctl *Controller) handleOffer(s *connState, data []byte) {
	p := s.Participant()
	if p == nil {
		return
	}
	var msg protocol.Offer
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad offer payload")
		return
	}
	out := protocol.Marshal(protocol.Offer{
		Type:       protocol.TypeOffer,
		SenderID:   p.ID,
		SenderName: p.Name,
		SDP:        msg.SDP,
	})
	ctl.Relay.Forward(p.ID, msg.TargetID, out)
}

func (ctl *Controller) handleAnswer(s *connState, data []byte) {
	p := s.Participant()
	if p == nil {
		return
	}
	var msg protocol.Answer
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad answer payload")
		return
	}
	out := protocol.Marshal(protocol.Answer{
		Type:     protocol.TypeAnswer,
		SenderID: p.ID,
		SDP:      msg.SDP,
	})
	ctl.Relay.Forward(p.ID, msg.TargetID, out)
}

func (ctl *Controller) handleCandidate(s *connState, data []byte) {
	p := s.Participant()
	if p == nil {
		return
	}
	var msg protocol.Candidate
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad candidate payload")
		return
	}
	out := protocol.Marshal(protocol.Candidate{
		Type:          protocol.TypeCandidate,
		SenderID:      p.ID,
		Candidate:     msg.Candidate,
		SDPMid:        msg.SDPMid,
		SDPMLineIndex: msg.SDPMLineIndex,
	})
	ctl.Relay.Forward(p.ID, msg.TargetID, out)
}
