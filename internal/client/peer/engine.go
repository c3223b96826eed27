// Package peer implements the per-remote negotiation engine: a state machine
// owning one peer transport's lifecycle, from offer/answer exchange through
// failure detection and restart.
package peer

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/avdeyev/voicemesh/internal/config"
	"github.com/avdeyev/voicemesh/internal/domain"
	"github.com/avdeyev/voicemesh/internal/protocol"
)

// Signaler sends handshake messages to the remote side through the relay.
type Signaler interface {
	SendOffer(target domain.ParticipantID, sdp string) error
	SendAnswer(target domain.ParticipantID, sdp string) error
	SendCandidate(target domain.ParticipantID, c protocol.Candidate) error
}

// Engine drives the connection to a single remote participant. All state is
// guarded by mu; transport callbacks are tagged with a generation counter so
// events from an already-replaced transport are ignored.
type Engine struct {
	localID    domain.ParticipantID
	remoteID   domain.ParticipantID
	remoteName string

	signaler Signaler
	factory  TransportFactory
	timings  config.Timings
	logger   zerolog.Logger

	mu        sync.Mutex
	state     State
	transport Transport
	pending   []protocol.Candidate
	// initiator is the decision made for this pair at creation time and
	// reused on every restart.
	initiator bool
	// backedDown marks the glare loser: it waits for the remote offer and
	// never re-offers on its own.
	backedDown bool
	gen        int

	restartTimer *time.Timer
	graceTimer   *time.Timer
}

func NewEngine(localID, remoteID domain.ParticipantID, remoteName string, initiator bool, sig Signaler, factory TransportFactory, timings config.Timings) *Engine {
	return &Engine{
		localID:    localID,
		remoteID:   remoteID,
		remoteName: remoteName,
		signaler:   sig,
		factory:    factory,
		timings:    timings,
		state:      StateIdle,
		initiator:  initiator,
		logger: log.With().Str("module", "client.peer").
			Str("peer", string(remoteID)).Logger(),
	}
}

func (e *Engine) RemoteID() domain.ParticipantID { return e.remoteID }
func (e *Engine) RemoteName() string             { return e.remoteName }
func (e *Engine) IsInitiator() bool              { return e.initiator }

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Initiate creates a local offer and sends it. Valid only from Idle; a
// transport creation failure is logged and leaves the link in Idle.
func (e *Engine) Initiate() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateIdle {
		e.logger.Warn().Str("state", e.state.String()).Msg("initiate in wrong state, dropping")
		return
	}
	if err := e.ensureTransportLocked(); err != nil {
		e.logger.Error().Err(err).Msg("transport creation failed, staying idle")
		return
	}
	sdp, err := e.transport.CreateOffer()
	if err != nil {
		e.logger.Error().Err(err).Msg("create offer failed, staying idle")
		e.closeTransportLocked()
		return
	}
	e.state = StateLocalOffering
	if err := e.signaler.SendOffer(e.remoteID, sdp); err != nil {
		e.logger.Error().Err(err).Msg("send offer failed")
	}
}

// HandleOffer processes a relayed remote offer, including glare resolution:
// when both sides offered concurrently the side with the greater id discards
// its own offer and waits, so exactly one offer survives.
func (e *Engine) HandleOffer(sdp string, senderID domain.ParticipantID) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case StateIdle:
		if err := e.ensureTransportLocked(); err != nil {
			e.logger.Error().Err(err).Msg("transport creation failed on remote offer")
			return
		}
		e.state = StateRemoteOffered
		answer, err := e.transport.ApplyOffer(sdp)
		if err != nil {
			e.logger.Error().Err(err).Msg("apply offer failed")
			e.closeTransportLocked()
			e.state = StateIdle
			return
		}
		e.drainPendingLocked()
		e.state = StateConnected
		if err := e.signaler.SendAnswer(e.remoteID, answer); err != nil {
			e.logger.Error().Err(err).Msg("send answer failed")
		}

	case StateLocalOffering:
		if e.localID > senderID {
			// Glare, and our id is greater: discard our offer, tear the
			// transport down and wait for their offer after a short pause.
			e.logger.Info().Msg("offer collision, backing down")
			e.backedDown = true
			e.closeTransportLocked()
			e.state = StateRestarting
			gen := e.gen
			time.AfterFunc(e.timings.JoinOfferDelay, func() { e.resetToIdle(gen) })
		} else {
			// Their id is greater: they will back down, our offer stands.
			e.logger.Info().Msg("offer collision, ignoring their offer")
		}

	default:
		e.logger.Warn().Str("state", e.state.String()).Msg("offer in unexpected state, dropping")
	}
}

// HandleAnswer applies a relayed remote answer. Valid only while a local
// offer is outstanding; anything else means the link already collided,
// restarted or closed, so the answer is dropped.
func (e *Engine) HandleAnswer(sdp string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateLocalOffering {
		e.logger.Warn().Str("state", e.state.String()).Msg("answer in unexpected state, dropping")
		return
	}
	if err := e.transport.ApplyAnswer(sdp); err != nil {
		e.logger.Error().Err(err).Msg("apply answer failed")
		return
	}
	e.drainPendingLocked()
	e.state = StateConnected
}

// HandleCandidate applies the candidate immediately when the remote
// description is in place, otherwise buffers it in arrival order.
func (e *Engine) HandleCandidate(c protocol.Candidate) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateClosed {
		return
	}
	if e.transport != nil && e.transport.HasRemoteDescription() {
		if err := e.transport.AddCandidate(c); err != nil {
			e.logger.Warn().Err(err).Msg("add candidate failed, dropping")
		}
		return
	}
	e.pending = append(e.pending, c)
}

// PendingCandidates reports the buffered candidate count.
func (e *Engine) PendingCandidates() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// Close tears the link down. Idempotent.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateClosed {
		return
	}
	e.stopTimersLocked()
	e.closeTransportLocked()
	e.pending = nil
	e.state = StateClosed
	e.logger.Info().Msg("engine closed")
}

// drainPendingLocked flushes buffered candidates in arrival order. Called
// the moment the remote description lands; the queue is cleared even when
// individual candidates fail to apply.
func (e *Engine) drainPendingLocked() {
	for _, c := range e.pending {
		if err := e.transport.AddCandidate(c); err != nil {
			e.logger.Warn().Err(err).Msg("buffered candidate failed, dropping")
		}
	}
	e.pending = nil
}

func (e *Engine) ensureTransportLocked() error {
	if e.transport != nil {
		return nil
	}
	e.gen++
	gen := e.gen
	t, err := e.factory(Hooks{
		OnCandidate: func(c protocol.Candidate) {
			// Pass-through: locally gathered candidates go straight out.
			if err := e.signaler.SendCandidate(e.remoteID, c); err != nil {
				e.logger.Warn().Err(err).Msg("send candidate failed")
			}
		},
		OnConnected:    func() { e.onConnected(gen) },
		OnDisconnected: func() { e.onDisconnected(gen) },
		OnFailed:       func() { e.onFailed(gen) },
	})
	if err != nil {
		return err
	}
	e.transport = t
	return nil
}

func (e *Engine) closeTransportLocked() {
	if e.transport != nil {
		e.transport.Close()
		e.transport = nil
	}
}

func (e *Engine) stopTimersLocked() {
	if e.restartTimer != nil {
		e.restartTimer.Stop()
		e.restartTimer = nil
	}
	if e.graceTimer != nil {
		e.graceTimer.Stop()
		e.graceTimer = nil
	}
}

func (e *Engine) onConnected(gen int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.gen || e.state == StateClosed {
		return
	}
	if e.graceTimer != nil {
		e.graceTimer.Stop()
		e.graceTimer = nil
	}
	e.state = StateConnected
	e.logger.Info().Msg("transport connected")
}

// onDisconnected is the tentative failure path: the transport may recover on
// its own, so a grace timer runs before the link is treated as failed.
func (e *Engine) onDisconnected(gen int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.gen || e.state == StateClosed || e.graceTimer != nil {
		return
	}
	e.logger.Info().Dur("grace", e.timings.DisconnectGrace).Msg("transport disconnected, starting grace window")
	e.graceTimer = time.AfterFunc(e.timings.DisconnectGrace, func() { e.onGraceExpired(gen) })
}

func (e *Engine) onGraceExpired(gen int) {
	e.mu.Lock()
	if gen != e.gen || e.state == StateClosed {
		e.mu.Unlock()
		return
	}
	e.graceTimer = nil
	e.mu.Unlock()
	e.onFailed(gen)
}

// onFailed is the terminal failure path: schedule a restart after a fixed
// delay. No backoff and no retry ceiling, a known limitation.
func (e *Engine) onFailed(gen int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.gen || e.state == StateClosed || e.state == StateFailed {
		return
	}
	e.logger.Warn().Msg("transport failed, scheduling restart")
	e.state = StateFailed
	if e.restartTimer != nil {
		e.restartTimer.Stop()
	}
	e.restartTimer = time.AfterFunc(e.timings.RestartDelay, e.restart)
}

// restart discards the old transport and starts over from Idle, re-applying
// the initiator decision made for this pair originally. A side that backed
// down from glare keeps waiting for the remote offer instead of re-offering.
func (e *Engine) restart() {
	e.mu.Lock()
	if e.state == StateClosed {
		e.mu.Unlock()
		return
	}
	e.restartTimer = nil
	e.closeTransportLocked()
	e.pending = nil
	e.state = StateIdle
	offer := e.initiator && !e.backedDown
	e.mu.Unlock()

	e.logger.Info().Bool("offering", offer).Msg("restarting link")
	if offer {
		e.Initiate()
	}
}

// resetToIdle finishes a glare back-down: fresh state, waiting for the
// surviving side's offer.
func (e *Engine) resetToIdle(gen int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.gen || e.state != StateRestarting {
		return
	}
	e.pending = nil
	e.state = StateIdle
	e.logger.Info().Msg("waiting for remote offer after back-down")
}
