package domain

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrSessionNotFound = errors.New("no active session")
	ErrLayoutNotFound  = errors.New("layout not found")

	ErrGuestSlotOccupied = errors.New("guest slot occupied")
	ErrCountdownActive   = errors.New("countdown already active")
	ErrMergeInFlight     = errors.New("composition already in flight")

	ErrNotHost          = errors.New("identity is not the room host")
	ErrNotGuest         = errors.New("identity is not the room guest")
	ErrNotMember        = errors.New("identity is not a room member")
	ErrIdentityMismatch = errors.New("identity mismatch")

	ErrInvalidRole = errors.New("invalid role")
	ErrInvalidSlot = errors.New("invalid slot number")
	ErrBadPayload  = errors.New("malformed payload")

	ErrMergeFailed = errors.New("merge failed")
)

// ErrorKind is the coarse protocol-level error taxonomy reported back to
// the offending connection.
type ErrorKind string

const (
	KindNotFound     ErrorKind = "not_found"
	KindConflict     ErrorKind = "conflict"
	KindUnauthorized ErrorKind = "unauthorized"
	KindValidation   ErrorKind = "validation"
	KindInternal     ErrorKind = "internal"
)

// KindOf classifies an error into the protocol taxonomy.
func KindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrRoomNotFound),
		errors.Is(err, ErrSessionNotFound),
		errors.Is(err, ErrLayoutNotFound):
		return KindNotFound
	case errors.Is(err, ErrGuestSlotOccupied),
		errors.Is(err, ErrCountdownActive),
		errors.Is(err, ErrMergeInFlight):
		return KindConflict
	case errors.Is(err, ErrNotHost),
		errors.Is(err, ErrNotGuest),
		errors.Is(err, ErrNotMember),
		errors.Is(err, ErrIdentityMismatch):
		return KindUnauthorized
	case errors.Is(err, ErrInvalidRole),
		errors.Is(err, ErrInvalidSlot),
		errors.Is(err, ErrBadPayload):
		return KindValidation
	default:
		var me *MissingSegmentsError
		if errors.As(err, &me) {
			return KindValidation
		}
		var ce *SlotCountError
		if errors.As(err, &ce) {
			return KindValidation
		}
		return KindInternal
	}
}

// MissingSegmentsError identifies which requested slot numbers have no
// uploaded segment.
type MissingSegmentsError struct {
	Missing []int
}

func (e *MissingSegmentsError) Error() string {
	sort.Ints(e.Missing)
	return fmt.Sprintf("segments missing for slots %v", e.Missing)
}

// SlotCountError reports a mismatch between a requested segment selection
// and the target layout's slot count.
type SlotCountError struct {
	Want, Got int
}

func (e *SlotCountError) Error() string {
	return fmt.Sprintf("layout expects %d slots, got %d", e.Want, e.Got)
}
