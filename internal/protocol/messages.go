// Package protocol defines the JSON messages exchanged over the signaling
// websocket. Every message carries a "type" envelope field; payload structs
// are shared by the server adapters and the client.
package protocol

import (
	"encoding/json"

	"github.com/avdeyev/voicemesh/internal/domain"
)

// Client -> server message types.
const (
	TypeJoin       = "join"
	TypeLeave      = "leave"
	TypePing       = "ping"
	TypeOffer      = "offer"
	TypeAnswer     = "answer"
	TypeCandidate  = "candidate"
	TypeMuteState  = "mute-state"
	TypeMuteUser   = "mute-user"
	TypeUnmuteUser = "unmute-user"
	TypeMuteAll    = "mute-all"
	TypeUnmuteAll  = "unmute-all"
)

// Server -> client message types.
const (
	TypeJoinOK           = "join-ok"
	TypeAuthFailed       = "auth-failed"
	TypeExistingMembers  = "existing-members"
	TypeMemberJoined     = "member-joined"
	TypeMemberLeft       = "member-left"
	TypeParticipantMuted = "participant-muted"
	TypeAdminMute        = "admin-mute"
	TypeAdminUnmute      = "admin-unmute"
	TypeAdminMuteAll     = "admin-mute-all"
	TypeAdminUnmuteAll   = "admin-unmute-all"
	TypePong             = "pong"
	TypeError            = "error"
)

// Envelope is decoded first to pick the handler.
type Envelope struct {
	Type string `json:"type"`
}

// MemberInfo is the read-only participant view sent in snapshots and
// membership broadcasts.
type MemberInfo struct {
	ID   domain.ParticipantID `json:"id"`
	Name string               `json:"name"`
	Role domain.Role          `json:"role"`
}

type Join struct {
	Type           string      `json:"type"`
	Name           string      `json:"name"`
	Role           domain.Role `json:"role"`
	MemberPassword string      `json:"memberPassword"`
	AdminPassword  string      `json:"adminPassword,omitempty"`
}

type JoinOK struct {
	Type string               `json:"type"`
	ID   domain.ParticipantID `json:"id"`
}

type AuthFailed struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

type ExistingMembers struct {
	Type    string       `json:"type"`
	Members []MemberInfo `json:"members"`
}

type MemberJoined struct {
	Type   string     `json:"type"`
	Member MemberInfo `json:"member"`
}

type MemberLeft struct {
	Type string               `json:"type"`
	ID   domain.ParticipantID `json:"id"`
	Name string               `json:"name"`
}

// Offer doubles as the client request (TargetID set) and the relayed form
// (SenderID/SenderName set). The relay never reads SDP.
type Offer struct {
	Type       string               `json:"type"`
	TargetID   domain.ParticipantID `json:"targetId,omitempty"`
	SenderID   domain.ParticipantID `json:"senderId,omitempty"`
	SenderName string               `json:"senderName,omitempty"`
	SDP        string               `json:"sdp"`
}

type Answer struct {
	Type     string               `json:"type"`
	TargetID domain.ParticipantID `json:"targetId,omitempty"`
	SenderID domain.ParticipantID `json:"senderId,omitempty"`
	SDP      string               `json:"sdp"`
}

type Candidate struct {
	Type          string               `json:"type"`
	TargetID      domain.ParticipantID `json:"targetId,omitempty"`
	SenderID      domain.ParticipantID `json:"senderId,omitempty"`
	Candidate     string               `json:"candidate"`
	SDPMid        string               `json:"sdpMid,omitempty"`
	SDPMLineIndex uint16               `json:"sdpMLineIndex,omitempty"`
}

type MuteState struct {
	Type  string `json:"type"`
	Muted bool   `json:"muted"`
}

type ParticipantMuted struct {
	Type  string               `json:"type"`
	ID    domain.ParticipantID `json:"id"`
	Name  string               `json:"name"`
	Muted bool                 `json:"muted"`
}

// AdminCommand is the client request for mute-user/unmute-user; TargetID is
// empty for the mute-all/unmute-all forms.
type AdminCommand struct {
	Type     string               `json:"type"`
	TargetID domain.ParticipantID `json:"targetId,omitempty"`
}

// AdminNotice is the relayed form of an admin command.
type AdminNotice struct {
	Type      string               `json:"type"`
	AdminID   domain.ParticipantID `json:"adminId"`
	AdminName string               `json:"adminName"`
}

type ErrorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// Marshal encodes v, panicking never: marshal failures of these flat structs
// cannot happen at runtime, so callers get a nil-safe byte slice.
func Marshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
