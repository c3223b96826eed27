package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/avdeyev/voicemesh/internal/domain"
	"github.com/avdeyev/voicemesh/internal/protocol"
)

func (ctl *Controller) handleJoin(s *connState, data []byte) {
	if s.Participant() != nil {
		ctl.sendError(s.conn, "already joined")
		return
	}
	if !ctl.limiter.Allow(s.sid) {
		ctl.sendError(s.conn, "too many attempts")
		return
	}

	var p protocol.Join
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad join payload")
		ctl.sendError(s.conn, "bad_payload")
		return
	}
	role := p.Role
	if role == "" {
		role = domain.RoleMember
	}

	participant, err := ctl.Registry.Admit(s.conn, p.Name, role, p.MemberPassword, p.AdminPassword)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", s.sid).Msg("join rejected")
		ctl.sendJSON(s.conn, protocol.AuthFailed{
			Type:   protocol.TypeAuthFailed,
			Reason: domain.AuthReason(err),
		})
		return
	}
	ctl.limiter.Reset(s.sid)
	s.setParticipant(participant)

	ctl.sendJSON(s.conn, protocol.JoinOK{Type: protocol.TypeJoinOK, ID: participant.ID})
	ctl.sendJSON(s.conn, protocol.ExistingMembers{
		Type:    protocol.TypeExistingMembers,
		Members: ctl.Registry.Snapshot(participant.ID),
	})
}

// handleLeave removes the participant from the call without tearing down the
// websocket, so the client can join again later.
func (ctl *Controller) handleLeave(s *connState) {
	p := s.Participant()
	if p == nil {
		return
	}
	log.Info().Str("module", "signal").Str("id", string(p.ID)).Msg("leave")
	ctl.Registry.Remove(p.ID)
	s.setParticipant(nil)
}
