package app

import "github.com/avdeyev/voicemesh/internal/domain"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	MarkSlow
	KickMember
	DropFrame
)

type Policy interface {
	OnBackpressure(id domain.ParticipantID) BackpressureAction
}

type SimplePolicy struct{}

func (SimplePolicy) OnBackpressure(domain.ParticipantID) BackpressureAction {
	return KickMember
}
