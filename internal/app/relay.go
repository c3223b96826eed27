package app

import (
	"github.com/rs/zerolog/log"

	"github.com/avdeyev/voicemesh/internal/core"
	"github.com/avdeyev/voicemesh/internal/domain"
	"github.com/avdeyev/voicemesh/internal/protocol"
)

// Relay forwards handshake and administrative payloads between named
// participants. It never inspects SDP or candidate content and never blocks
// the caller: a frame to a departed target is dropped, not erred.
type Relay struct {
	Registry *Registry
}

func NewRelay(reg *Registry) *Relay {
	return &Relay{Registry: reg}
}

// Forward delivers an already-encoded frame to targetID only.
func (r *Relay) Forward(senderID, targetID domain.ParticipantID, frame core.Frame) {
	ms, ok := r.Registry.Get(targetID)
	if !ok {
		log.Warn().Str("module", "app.relay").Str("sender", string(senderID)).
			Str("target", string(targetID)).Msg("target not connected, dropping")
		return
	}
	if err := ms.Signal().TrySend(frame); err != nil {
		log.Warn().Err(err).Str("module", "app.relay").
			Str("target", string(targetID)).Msg("forward dropped")
	}
}

// ForwardAdmin relays an admin command. Commands from non-admins are
// silently dropped. Single-target commands go to targetID; mute-all and
// unmute-all fan out to everyone but the admin.
func (r *Relay) ForwardAdmin(sender *domain.Participant, msgType string, targetID domain.ParticipantID) {
	if !sender.IsAdmin() {
		log.Warn().Str("module", "app.relay").Str("sender", string(sender.ID)).
			Str("cmd", msgType).Msg("admin command from non-admin, dropping")
		return
	}

	notice := protocol.Marshal(protocol.AdminNotice{
		Type:      adminNoticeType(msgType),
		AdminID:   sender.ID,
		AdminName: sender.Name,
	})

	switch msgType {
	case protocol.TypeMuteUser, protocol.TypeUnmuteUser:
		r.Forward(sender.ID, targetID, notice)
	case protocol.TypeMuteAll, protocol.TypeUnmuteAll:
		for _, m := range r.Registry.Snapshot(sender.ID) {
			r.Forward(sender.ID, m.ID, notice)
		}
	default:
		log.Warn().Str("module", "app.relay").Str("cmd", msgType).Msg("unknown admin command")
	}
}

func adminNoticeType(msgType string) string {
	switch msgType {
	case protocol.TypeMuteUser:
		return protocol.TypeAdminMute
	case protocol.TypeUnmuteUser:
		return protocol.TypeAdminUnmute
	case protocol.TypeMuteAll:
		return protocol.TypeAdminMuteAll
	case protocol.TypeUnmuteAll:
		return protocol.TypeAdminUnmuteAll
	}
	return msgType
}
