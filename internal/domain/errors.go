package domain

import "errors"

// Auth failures keep the connection open for retry; no state is mutated.
var (
	ErrInvalidMemberPassword = errors.New("invalid member password")
	ErrInvalidAdminPassword  = errors.New("invalid admin password")
)

// AuthReason maps an auth error onto the wire-level reason string.
func AuthReason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidAdminPassword):
		return "invalid_admin_password"
	case errors.Is(err, ErrInvalidMemberPassword):
		return "invalid_member_password"
	default:
		return "auth_failed"
	}
}
