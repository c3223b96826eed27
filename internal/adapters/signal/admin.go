package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/avdeyev/voicemesh/internal/protocol"
)

func (ctl *Controller) handleAdmin(s *connState, msgType string, data []byte) {
	p := s.Participant()
	if p == nil {
		return
	}
	var cmd protocol.AdminCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad admin payload")
		return
	}
	ctl.Relay.ForwardAdmin(p, msgType, cmd.TargetID)
}

func (ctl *Controller) handleMuteState(s *connState, data []byte) {
	p := s.Participant()
	if p == nil {
		return
	}
	var msg protocol.MuteState
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad mute-state payload")
		return
	}
	ctl.Registry.SetMuted(p.ID, msg.Muted)
}
