// Package domain contains entities without logic, just meta-data.
package domain

// ParticipantID is an opaque client identity, unique for the lifetime
// of a room membership.
type ParticipantID string

type Role string

const (
	RoleHost  Role = "host"
	RoleGuest Role = "guest"
)

func (r Role) Valid() bool {
	return r == RoleHost || r == RoleGuest
}
