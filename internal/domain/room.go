package domain

import "time"

type RoomID string

// RoomState tracks the deletion lifecycle of a room. A room in
// StatePendingDeletion is still addressable; only expiry of the grace
// deadline makes it unreachable.
type RoomState int

const (
	StateActive RoomState = iota
	StatePendingDeletion
	StateDeleted
)

// DeletionPolicy decides what happens to the room when its host goes away.
type DeletionPolicy int

const (
	// DeleteImmediately destroys the room as soon as the host leaves.
	DeleteImmediately DeletionPolicy = iota
	// DeleteAfterGrace defers destruction behind a deadline that a host
	// rejoin cancels.
	DeleteAfterGrace
)

// CaptureMode selects the session topology of a room.
type CaptureMode string

const (
	// ModePair is a fixed host/guest pair shooting a numbered set of slots.
	ModePair CaptureMode = "pair"
	// ModeBooth is a rotating-guest booth: one single-shot session per
	// guest tenure, room and settings persist across turnover.
	ModeBooth CaptureMode = "booth"
)

func (m CaptureMode) Valid() bool {
	return m == ModePair || m == ModeBooth
}

// Room is the persistent container of a capture venue. Exactly one host for
// its entire lifetime, at most one guest at any instant.
type Room struct {
	ID           RoomID
	HostID       ParticipantID
	GuestID      ParticipantID // empty when unoccupied
	Mode         CaptureMode
	Policy       DeletionPolicy
	State        RoomState
	Settings     Settings
	CreatedAt    time.Time
	LastActiveAt time.Time
}
