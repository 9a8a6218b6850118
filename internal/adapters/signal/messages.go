package signal

import (
	"github.com/pion/webrtc/v4"

	"github.com/KwakOri/vshot-server/internal/core"
	"github.com/KwakOri/vshot-server/internal/domain"
)

// Inbound payloads. The envelope type selects the variant; unknown kinds
// are logged and ignored, never fatal to the connection.

type envelope struct {
	Type core.Kind `json:"type"`
}

type joinPayload struct {
	Type     core.Kind          `json:"type"`
	RoomID   string             `json:"roomId,omitempty"`
	Identity string             `json:"identity" validate:"required,max=64"`
	Role     domain.Role        `json:"role" validate:"required,oneof=host guest"`
	Mode     domain.CaptureMode `json:"mode,omitempty" validate:"omitempty,oneof=pair booth"`
}

type leavePayload struct {
	Type   core.Kind `json:"type"`
	RoomID string    `json:"roomId,omitempty"`
}

// relayPayload covers offer, answer and candidate. The SDP/candidate bodies
// are typed so malformed negotiation payloads are rejected at the boundary,
// but the relay itself forwards the original frame untouched.
type relayPayload struct {
	Type      core.Kind                  `json:"type"`
	From      string                     `json:"from,omitempty"`
	To        string                     `json:"to" validate:"required"`
	SDP       *webrtc.SessionDescription `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
}

type startCapturePayload struct {
	Type   core.Kind `json:"type"`
	RoomID string    `json:"roomId" validate:"required"`
}

type photoUploadedPayload struct {
	Type     core.Kind   `json:"type"`
	RoomID   string      `json:"roomId" validate:"required"`
	Role     domain.Role `json:"role" validate:"required,oneof=host guest"`
	Slot     int         `json:"slot,omitempty"`
	AssetRef string      `json:"assetRef" validate:"required"`
}

type segmentUploadedPayload struct {
	Type     core.Kind `json:"type"`
	RoomID   string    `json:"roomId" validate:"required"`
	Slot     int       `json:"slot" validate:"min=1"`
	AssetRef string    `json:"assetRef" validate:"required"`
	Size     int64     `json:"size" validate:"min=0"`
}

type composeSegmentsPayload struct {
	Type   core.Kind `json:"type"`
	RoomID string    `json:"roomId" validate:"required"`
	Slots  []int     `json:"slots" validate:"required,min=1,dive,min=1"`
}

type frameSelectedPayload struct {
	Type     core.Kind `json:"type"`
	RoomID   string    `json:"roomId" validate:"required"`
	LayoutID string    `json:"layoutId" validate:"required"`
}

type settingsSyncPayload struct {
	Type     core.Kind           `json:"type"`
	RoomID   string              `json:"roomId" validate:"required"`
	Settings domain.SettingsPatch `json:"settings"`
}

type sessionResetPayload struct {
	Type   core.Kind `json:"type"`
	RoomID string    `json:"roomId" validate:"required"`
}

// Outbound events owned by the adapter. The coordinator's events live in
// the app package.

type joinedEvent struct {
	Type      core.Kind            `json:"type"`
	RoomID    domain.RoomID        `json:"roomId"`
	Role      domain.Role          `json:"role"`
	HostID    domain.ParticipantID `json:"hostId"`
	GuestID   domain.ParticipantID `json:"guestId,omitempty"`
	Settings  domain.Settings      `json:"settings"`
	SessionID string               `json:"sessionId,omitempty"`
}

type peerJoinedEvent struct {
	Type   core.Kind            `json:"type"`
	PeerID domain.ParticipantID `json:"peerId"`
	Role   domain.Role          `json:"role"`
}

type peerLeftEvent struct {
	Type   core.Kind            `json:"type"`
	PeerID domain.ParticipantID `json:"peerId"`
	Role   domain.Role          `json:"role"`
}

type waitingEvent struct {
	Type core.Kind `json:"type"`
}

type leftEvent struct {
	Type core.Kind `json:"type"`
}

type roomClosedEvent struct {
	Type   core.Kind     `json:"type"`
	RoomID domain.RoomID `json:"roomId"`
}

type supersededEvent struct {
	Type   core.Kind `json:"type"`
	Reason string    `json:"reason"`
}

type settingsUpdatedEvent struct {
	Type     core.Kind       `json:"type"`
	Settings domain.Settings `json:"settings"`
	Display  map[string]any  `json:"display,omitempty"`
}

type frameSelectedEvent struct {
	Type      core.Kind `json:"type"`
	LayoutID  string    `json:"layoutId"`
	SlotCount int       `json:"slotCount"`
}

type sessionResetEvent struct {
	Type core.Kind `json:"type"`
}

type pongEvent struct {
	Type core.Kind `json:"type"`
}

type errorEvent struct {
	Type    core.Kind        `json:"type"`
	Kind    domain.ErrorKind `json:"kind"`
	Message string           `json:"message"`
}
