package core

import (
	"context"
	"time"

	"github.com/KwakOri/vshot-server/internal/domain"
	"github.com/KwakOri/vshot-server/internal/layout"
)

// EventSink delivers outbound protocol events. Implemented by the signaling
// adapter; the coordinator and store only emit through it.
type EventSink interface {
	// Broadcast fans an event out to every member of the room, best effort.
	Broadcast(roomID domain.RoomID, v any)
	// ToIdentity delivers an event to a single identity if it currently
	// has an open connection.
	ToIdentity(id domain.ParticipantID, v any)
}

// MergeHint carries the room options the merge collaborator needs to place
// two per-role assets onto one canvas.
type MergeHint struct {
	LayoutID    string           `json:"layoutId"`
	Slot        int              `json:"slot"`
	AspectRatio string           `json:"aspectRatio"`
	Chroma      domain.ChromaKey `json:"chromaKey"`
}

// Merger is the external merge/compose collaborator. The core only passes
// asset refs around, never bytes.
type Merger interface {
	Merge(ctx context.Context, hostRef, guestRef string, hint MergeHint) (string, error)
	Compose(ctx context.Context, refs []string, frame *layout.Frame) (string, error)
}

// Task is a cancellable scheduled unit. Cancel reports whether it fired
// before the task did.
type Task interface {
	Cancel() bool
}

// Scheduler abstracts wall-clock timers so deletion deadlines and countdown
// ticks are testable without real waits.
type Scheduler interface {
	Now() time.Time
	After(d time.Duration, fn func()) Task
}
