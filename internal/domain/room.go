package domain

type RoomName string

// DefaultRoom is the single well-known room every participant joins.
const DefaultRoom RoomName = "main-call"

// Room holds the credentials gating entry. Membership itself lives in the
// registry, keyed by participant id.
type Room struct {
	Name           RoomName
	MemberPassword string
	AdminPassword  string
}
