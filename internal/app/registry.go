package app

import (
	"crypto/subtle"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/avdeyev/voicemesh/internal/core"
	"github.com/avdeyev/voicemesh/internal/domain"
	"github.com/avdeyev/voicemesh/internal/protocol"
)

// Registry is the source of truth for room membership. All mutation happens
// under one mutex so that "insert member" and "snapshot + broadcast" can
// never interleave across two concurrent joins: no client observes a member
// that was added but not yet announced, or vice versa.
type Registry struct {
	room *domain.Room

	mu      sync.Mutex
	members map[domain.ParticipantID]core.MemberSession
	order   []domain.ParticipantID
	policy  Policy
}

func NewRegistry(room *domain.Room, policy Policy) *Registry {
	return &Registry{
		room:    room,
		members: make(map[domain.ParticipantID]core.MemberSession),
		policy:  policy,
	}
}

// Admit authenticates a candidate and, on success, allocates a fresh id,
// inserts the participant into the member set and announces the join to
// everyone else in one atomic step. On failure nothing is mutated and the
// connection stays usable for a retry.
func (r *Registry) Admit(conn core.SignalConnection, name string, role domain.Role, memberPw, adminPw string) (*domain.Participant, error) {
	if subtle.ConstantTimeCompare([]byte(memberPw), []byte(r.room.MemberPassword)) != 1 {
		return nil, domain.ErrInvalidMemberPassword
	}
	if role == domain.RoleAdmin &&
		subtle.ConstantTimeCompare([]byte(adminPw), []byte(r.room.AdminPassword)) != 1 {
		return nil, domain.ErrInvalidAdminPassword
	}

	p, err := domain.NewParticipant(name, role)
	if err != nil {
		return nil, err
	}
	sess := core.NewMemberSession(p, conn)

	joined := protocol.Marshal(protocol.MemberJoined{
		Type:   protocol.TypeMemberJoined,
		Member: protocol.MemberInfo{ID: p.ID, Name: p.Name, Role: p.Role},
	})

	r.mu.Lock()
	r.members[p.ID] = sess
	r.order = append(r.order, p.ID)
	r.broadcastLocked(p.ID, joined)
	r.mu.Unlock()

	log.Info().Str("module", "app.registry").Str("id", string(p.ID)).
		Str("name", p.Name).Str("role", string(p.Role)).Msg("participant admitted")
	return p, nil
}

// Snapshot returns the current members minus the caller, in join order. The
// order is stable for the lifetime of the call.
func (r *Registry) Snapshot(excluding domain.ParticipantID) []protocol.MemberInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked(excluding)
}

func (r *Registry) snapshotLocked(excluding domain.ParticipantID) []protocol.MemberInfo {
	out := make([]protocol.MemberInfo, 0, len(r.order))
	for _, id := range r.order {
		if id == excluding {
			continue
		}
		ms, ok := r.members[id]
		if !ok {
			continue
		}
		m := ms.Meta()
		out = append(out, protocol.MemberInfo{ID: m.ID, Name: m.Name, Role: m.Role})
	}
	return out
}

// Remove drops the participant and announces the departure. Idempotent:
// removing an absent id is a no-op.
func (r *Registry) Remove(id domain.ParticipantID) {
	r.mu.Lock()
	ms, ok := r.members[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.members, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	left := protocol.Marshal(protocol.MemberLeft{
		Type: protocol.TypeMemberLeft,
		ID:   id,
		Name: ms.Meta().Name,
	})
	r.broadcastLocked(id, left)
	r.mu.Unlock()

	log.Info().Str("module", "app.registry").Str("id", string(id)).Msg("participant removed")
}

// Get returns the live session for a participant, if any.
func (r *Registry) Get(id domain.ParticipantID) (core.MemberSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ms, ok := r.members[id]
	return ms, ok
}

// SetMuted records the participant's mute flag and announces it to the rest
// of the room.
func (r *Registry) SetMuted(id domain.ParticipantID, muted bool) {
	r.mu.Lock()
	ms, ok := r.members[id]
	if !ok {
		r.mu.Unlock()
		log.Warn().Str("module", "app.registry").Str("id", string(id)).Msg("mute state for unknown participant")
		return
	}
	ms.Meta().Muted = muted
	frame := protocol.Marshal(protocol.ParticipantMuted{
		Type:  protocol.TypeParticipantMuted,
		ID:    id,
		Name:  ms.Meta().Name,
		Muted: muted,
	})
	r.broadcastLocked(id, frame)
	r.mu.Unlock()
}

// Stats is the read-only view served by /api/stats.
type Stats struct {
	TotalMembers int                   `json:"totalMembers"`
	Rooms        int                   `json:"rooms"`
	Members      []protocol.MemberInfo `json:"members"`
}

func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		TotalMembers: len(r.members),
		Rooms:        1,
		Members:      r.snapshotLocked(""),
	}
}

func (r *Registry) MemberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// broadcastLocked fans a frame out to every member except from. Callers hold
// r.mu. Sessions that cannot keep up are handed to the policy after the
// fanout; the default policy kicks them.
func (r *Registry) broadcastLocked(from domain.ParticipantID, frame core.Frame) {
	var dropped []domain.ParticipantID
	for id, ms := range r.members {
		if id == from {
			continue
		}
		if err := ms.Signal().TrySend(frame); err != nil {
			dropped = append(dropped, id)
		}
	}
	if r.policy == nil {
		return
	}
	for _, id := range dropped {
		if r.policy.OnBackpressure(id) == KickMember {
			r.removeLocked(id)
		}
	}
}

// removeLocked handles backpressure kicks inside a broadcast. The departure
// must be announced here: once the id is gone from the member set, the kicked
// connection's own readPump teardown finds nothing to remove, so skipping the
// broadcast would leave every other participant holding a dead link. The
// fanout is best effort, without another policy round.
func (r *Registry) removeLocked(id domain.ParticipantID) {
	ms, ok := r.members[id]
	if !ok {
		return
	}
	delete(r.members, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	ms.Signal().Close()
	left := protocol.Marshal(protocol.MemberLeft{
		Type: protocol.TypeMemberLeft,
		ID:   id,
		Name: ms.Meta().Name,
	})
	for _, other := range r.members {
		_ = other.Signal().TrySend(left)
	}
	log.Warn().Str("module", "app.registry").Str("id", string(id)).Msg("kicked slow member")
}
