// Package mesh maintains one negotiation engine per remote participant and
// applies the initiator rules that keep the full mesh converging without
// duplicate links.
package mesh

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/avdeyev/voicemesh/internal/client/peer"
	"github.com/avdeyev/voicemesh/internal/config"
	"github.com/avdeyev/voicemesh/internal/domain"
	"github.com/avdeyev/voicemesh/internal/protocol"
)

// CallSignaler is everything the coordinator sends upstream: handshake
// messages for its engines plus mute state and admin commands.
type CallSignaler interface {
	peer.Signaler
	SendMuteState(muted bool) error
	SendAdminCommand(msgType string, target domain.ParticipantID) error
}

// TransportFactoryFor builds the transport factory for one remote peer.
type TransportFactoryFor func(remote domain.ParticipantID) peer.TransportFactory

type Coordinator struct {
	localID  domain.ParticipantID
	role     domain.Role
	signaler CallSignaler
	factory  TransportFactoryFor
	timings  config.Timings
	logger   zerolog.Logger

	mu      sync.Mutex
	engines map[domain.ParticipantID]*peer.Engine
	timers  map[*time.Timer]struct{}
	muted   bool
	closed  bool
}

func NewCoordinator(localID domain.ParticipantID, role domain.Role, sig CallSignaler, factory TransportFactoryFor, timings config.Timings) *Coordinator {
	return &Coordinator{
		localID:  localID,
		role:     role,
		signaler: sig,
		factory:  factory,
		timings:  timings,
		engines:  make(map[domain.ParticipantID]*peer.Engine),
		timers:   make(map[*time.Timer]struct{}),
		logger:   log.With().Str("module", "client.mesh").Str("id", string(localID)).Logger(),
	}
}

// HandleExistingMembers processes the snapshot received on join. The new
// joiner offers to everyone already present, unconditionally, with offers
// staggered by index to avoid an initiation storm in a large room.
func (c *Coordinator) HandleExistingMembers(members []protocol.MemberInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	for i, m := range members {
		eng, created := c.ensureEngineLocked(m, true)
		if !created {
			continue
		}
		delay := time.Duration(i) * c.timings.OfferStagger
		c.scheduleLocked(delay, eng.Initiate)
	}
}

// HandleMemberJoined tracks a participant that arrived after us. Here the
// initiator is decided by id order: the lesser id offers, the greater waits.
// This deliberately differs from the snapshot path above: both sides see the
// same join event, so the tiebreak must be symmetric.
func (c *Coordinator) HandleMemberJoined(m protocol.MemberInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	initiator := c.localID < m.ID
	eng, created := c.ensureEngineLocked(m, initiator)
	if !created {
		return
	}
	if initiator {
		c.scheduleLocked(c.timings.JoinOfferDelay, eng.Initiate)
	} else {
		c.logger.Info().Str("peer", string(m.ID)).Msg("waiting for peer to initiate")
	}
}

// HandleMemberLeft destroys the engine for a departed participant.
// Idempotent: a second leave for the same id is a no-op.
func (c *Coordinator) HandleMemberLeft(id domain.ParticipantID) {
	c.mu.Lock()
	eng, ok := c.engines[id]
	if ok {
		delete(c.engines, id)
	}
	c.mu.Unlock()
	if ok {
		eng.Close()
		c.logger.Info().Str("peer", string(id)).Msg("peer link destroyed")
	}
}

// HandleOffer routes a relayed offer to the pair's engine, creating one on
// first contact from a peer we have not tracked yet.
func (c *Coordinator) HandleOffer(senderID domain.ParticipantID, senderName, sdp string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	eng, _ := c.ensureEngineLocked(protocol.MemberInfo{ID: senderID, Name: senderName}, false)
	c.mu.Unlock()
	eng.HandleOffer(sdp, senderID)
}

func (c *Coordinator) HandleAnswer(senderID domain.ParticipantID, sdp string) {
	if eng := c.engineFor(senderID); eng != nil {
		eng.HandleAnswer(sdp)
		return
	}
	c.logger.Warn().Str("peer", string(senderID)).Msg("answer for unknown peer, dropping")
}

func (c *Coordinator) HandleCandidate(senderID domain.ParticipantID, cand protocol.Candidate) {
	if eng := c.engineFor(senderID); eng != nil {
		eng.HandleCandidate(cand)
		return
	}
	c.logger.Warn().Str("peer", string(senderID)).Msg("candidate for unknown peer, dropping")
}

// SetMuted flips the local mute flag and announces it.
func (c *Coordinator) SetMuted(muted bool) {
	c.mu.Lock()
	c.muted = muted
	c.mu.Unlock()
	if err := c.signaler.SendMuteState(muted); err != nil {
		c.logger.Warn().Err(err).Msg("send mute state failed")
	}
}

func (c *Coordinator) Muted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.muted
}

// HandleAdminMute applies an admin's mute or unmute. The flag is set, not
// toggled, so repeated mute-all commands leave the state unchanged.
func (c *Coordinator) HandleAdminMute(muted bool) {
	c.mu.Lock()
	if c.muted == muted {
		c.mu.Unlock()
		return
	}
	c.muted = muted
	c.mu.Unlock()
	if err := c.signaler.SendMuteState(muted); err != nil {
		c.logger.Warn().Err(err).Msg("send mute state failed")
	}
}

// Admin pass-throughs. The relay enforces the role server-side; the local
// check just avoids pointless round trips.

func (c *Coordinator) MuteAll() {
	c.sendAdmin(protocol.TypeMuteAll, "")
}

func (c *Coordinator) UnmuteAll() {
	c.sendAdmin(protocol.TypeUnmuteAll, "")
}

func (c *Coordinator) MuteOne(target domain.ParticipantID) {
	c.sendAdmin(protocol.TypeMuteUser, target)
}

func (c *Coordinator) UnmuteOne(target domain.ParticipantID) {
	c.sendAdmin(protocol.TypeUnmuteUser, target)
}

func (c *Coordinator) sendAdmin(msgType string, target domain.ParticipantID) {
	if c.role != domain.RoleAdmin {
		c.logger.Warn().Str("cmd", msgType).Msg("admin command without admin role, dropping")
		return
	}
	if err := c.signaler.SendAdminCommand(msgType, target); err != nil {
		c.logger.Warn().Err(err).Str("cmd", msgType).Msg("send admin command failed")
	}
}

// Peers returns the ids currently tracked.
func (c *Coordinator) Peers() []domain.ParticipantID {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.ParticipantID, 0, len(c.engines))
	for id := range c.engines {
		out = append(out, id)
	}
	return out
}

func (c *Coordinator) EngineFor(id domain.ParticipantID) *peer.Engine {
	return c.engineFor(id)
}

// Close cancels every engine and pending timer. Called before the leave
// message goes out, so no handshake traffic escapes after departure.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	for t := range c.timers {
		t.Stop()
	}
	c.timers = nil
	engines := make([]*peer.Engine, 0, len(c.engines))
	for _, eng := range c.engines {
		engines = append(engines, eng)
	}
	c.engines = make(map[domain.ParticipantID]*peer.Engine)
	c.mu.Unlock()

	for _, eng := range engines {
		eng.Close()
	}
	c.logger.Info().Int("links", len(engines)).Msg("coordinator closed")
}

func (c *Coordinator) engineFor(id domain.ParticipantID) *peer.Engine {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.engines[id]
}

// scheduleLocked runs fn after d and forgets the timer once it has fired, so
// a long-lived call with join churn does not accumulate dead timers. Callers
// hold c.mu; the callback re-takes it, so insertion always wins the race.
func (c *Coordinator) scheduleLocked(d time.Duration, fn func()) {
	var t *time.Timer
	t = time.AfterFunc(d, func() {
		c.mu.Lock()
		delete(c.timers, t)
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return
		}
		fn()
	})
	c.timers[t] = struct{}{}
}

// ensureEngineLocked returns the existing engine for the pair or creates
// one. At most one live link per unordered pair: duplicate member
// notifications collapse onto the same engine.
func (c *Coordinator) ensureEngineLocked(m protocol.MemberInfo, initiator bool) (*peer.Engine, bool) {
	if eng, ok := c.engines[m.ID]; ok {
		return eng, false
	}
	eng := peer.NewEngine(c.localID, m.ID, m.Name, initiator, c.signaler, c.factory(m.ID), c.timings)
	c.engines[m.ID] = eng
	c.logger.Info().Str("peer", string(m.ID)).Bool("initiator", initiator).Msg("peer link created")
	return eng, true
}
