// Package domain contains entities without logic, just meta-data.
package domain

import (
	"errors"

	"github.com/google/uuid"
)

const MaxNameLen = 36

var (
	ErrNameTooLong = errors.New("display name too long")
	ErrNameEmpty   = errors.New("display name empty")
)

type ParticipantID string

type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

// Participant is one authenticated member of the call. The ID is allocated
// by the registry at admit time and never chosen by the client.
type Participant struct {
	ID    ParticipantID `json:"id"`
	Name  string        `json:"name"`
	Role  Role          `json:"role"`
	Muted bool          `json:"muted"`
}

// NewParticipant is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewParticipant(name string, role Role) (*Participant, error) {
	if len(name) == 0 {
		return nil, ErrNameEmpty
	}
	if len(name) > MaxNameLen {
		return nil, ErrNameTooLong
	}
	return &Participant{ID: ParticipantID(uuid.NewString()), Name: name, Role: role}, nil
}

func (p *Participant) IsAdmin() bool { return p.Role == RoleAdmin }
