// Package signaling is the client end of the websocket signaling channel.
// One ordered write queue per connection keeps each sender's emission order
// intact, which the candidate-buffering discipline on the far side relies on.
package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/avdeyev/voicemesh/internal/core"
	"github.com/avdeyev/voicemesh/internal/domain"
	"github.com/avdeyev/voicemesh/internal/protocol"
)

// Handlers receives decoded server messages. Unset handlers are skipped.
type Handlers struct {
	OnJoinOK           func(id domain.ParticipantID)
	OnAuthFailed       func(reason string)
	OnExistingMembers  func(members []protocol.MemberInfo)
	OnMemberJoined     func(m protocol.MemberInfo)
	OnMemberLeft       func(id domain.ParticipantID, name string)
	OnOffer            func(senderID domain.ParticipantID, senderName, sdp string)
	OnAnswer           func(senderID domain.ParticipantID, sdp string)
	OnCandidate        func(senderID domain.ParticipantID, c protocol.Candidate)
	OnParticipantMuted func(id domain.ParticipantID, muted bool)
	OnAdminMute        func(notice protocol.AdminNotice, muted bool)
}

type Client struct {
	conn     *websocket.Conn
	send     chan core.Frame
	handlers Handlers

	mu     sync.Mutex
	closed bool
}

func Dial(ctx context.Context, url string, handlers Handlers) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return &Client{
		conn:     conn,
		send:     make(chan core.Frame, 32),
		handlers: handlers,
	}, nil
}

// Run drives the read and write pumps until the context is canceled or the
// connection drops.
func (c *Client) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go c.writePump()
	return c.readPump(ctx)
}

// Close stops accepting frames and closes the send queue. The socket itself
// is torn down by the write pump once the queue is drained, so a frame
// enqueued just before Close (the leave, typically) is still delivered.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()
}

// writePump drains the send queue until Close and owns the socket teardown.
func (c *Client) writePump() {
	defer c.conn.Close()
	for data := range c.send {
		if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
			log.Error().Err(err).Str("module", "client.signaling").Msg("writePump set deadline")
			return
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Error().Err(err).Str("module", "client.signaling").Msg("writePump write error")
			return
		}
	}
}

func (c *Client) readPump(ctx context.Context) error {
	defer c.Close()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Info().Err(err).Str("module", "client.signaling").Msg("readPump read error")
				return err
			}
			c.dispatch(data)
		}
	}
}

func (c *Client) dispatch(data []byte) {
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "client.signaling").Msg("bad json")
		return
	}

	switch env.Type {
	case protocol.TypeJoinOK:
		var m protocol.JoinOK
		if decode(data, &m) && c.handlers.OnJoinOK != nil {
			c.handlers.OnJoinOK(m.ID)
		}
	case protocol.TypeAuthFailed:
		var m protocol.AuthFailed
		if decode(data, &m) && c.handlers.OnAuthFailed != nil {
			c.handlers.OnAuthFailed(m.Reason)
		}
	case protocol.TypeExistingMembers:
		var m protocol.ExistingMembers
		if decode(data, &m) && c.handlers.OnExistingMembers != nil {
			c.handlers.OnExistingMembers(m.Members)
		}
	case protocol.TypeMemberJoined:
		var m protocol.MemberJoined
		if decode(data, &m) && c.handlers.OnMemberJoined != nil {
			c.handlers.OnMemberJoined(m.Member)
		}
	case protocol.TypeMemberLeft:
		var m protocol.MemberLeft
		if decode(data, &m) && c.handlers.OnMemberLeft != nil {
			c.handlers.OnMemberLeft(m.ID, m.Name)
		}
	case protocol.TypeOffer:
		var m protocol.Offer
		if decode(data, &m) && c.handlers.OnOffer != nil {
			c.handlers.OnOffer(m.SenderID, m.SenderName, m.SDP)
		}
	case protocol.TypeAnswer:
		var m protocol.Answer
		if decode(data, &m) && c.handlers.OnAnswer != nil {
			c.handlers.OnAnswer(m.SenderID, m.SDP)
		}
	case protocol.TypeCandidate:
		var m protocol.Candidate
		if decode(data, &m) && c.handlers.OnCandidate != nil {
			c.handlers.OnCandidate(m.SenderID, m)
		}
	case protocol.TypeParticipantMuted:
		var m protocol.ParticipantMuted
		if decode(data, &m) && c.handlers.OnParticipantMuted != nil {
			c.handlers.OnParticipantMuted(m.ID, m.Muted)
		}
	case protocol.TypeAdminMute, protocol.TypeAdminMuteAll:
		var m protocol.AdminNotice
		if decode(data, &m) && c.handlers.OnAdminMute != nil {
			c.handlers.OnAdminMute(m, true)
		}
	case protocol.TypeAdminUnmute, protocol.TypeAdminUnmuteAll:
		var m protocol.AdminNotice
		if decode(data, &m) && c.handlers.OnAdminMute != nil {
			c.handlers.OnAdminMute(m, false)
		}
	case protocol.TypePong, protocol.TypeError:
		// Nothing to route.
	default:
		log.Warn().Str("module", "client.signaling").Str("type", env.Type).Msg("unknown message")
	}
}

func decode(data []byte, v any) bool {
	if err := json.Unmarshal(data, v); err != nil {
		log.Error().Err(err).Str("module", "client.signaling").Msg("bad payload")
		return false
	}
	return true
}

var ErrBackpressure = errors.New("backpressure")

func (c *Client) enqueue(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- b:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *Client) SendJoin(name string, role domain.Role, memberPw, adminPw string) error {
	return c.enqueue(protocol.Join{
		Type:           protocol.TypeJoin,
		Name:           name,
		Role:           role,
		MemberPassword: memberPw,
		AdminPassword:  adminPw,
	})
}

func (c *Client) SendLeave() error {
	return c.enqueue(protocol.Envelope{Type: protocol.TypeLeave})
}

func (c *Client) SendOffer(target domain.ParticipantID, sdp string) error {
	return c.enqueue(protocol.Offer{Type: protocol.TypeOffer, TargetID: target, SDP: sdp})
}

func (c *Client) SendAnswer(target domain.ParticipantID, sdp string) error {
	return c.enqueue(protocol.Answer{Type: protocol.TypeAnswer, TargetID: target, SDP: sdp})
}

func (c *Client) SendCandidate(target domain.ParticipantID, cand protocol.Candidate) error {
	cand.Type = protocol.TypeCandidate
	cand.TargetID = target
	cand.SenderID = ""
	return c.enqueue(cand)
}

func (c *Client) SendMuteState(muted bool) error {
	return c.enqueue(protocol.MuteState{Type: protocol.TypeMuteState, Muted: muted})
}

func (c *Client) SendAdminCommand(msgType string, target domain.ParticipantID) error {
	return c.enqueue(protocol.AdminCommand{Type: msgType, TargetID: target})
}

func (c *Client) SendPing() error {
	return c.enqueue(protocol.Envelope{Type: protocol.TypePing})
}
