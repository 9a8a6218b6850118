package app

import (
	"github.com/KwakOri/vshot-server/internal/core"
	"github.com/KwakOri/vshot-server/internal/domain"
)

// Events emitted by the capture coordinator. The signaling adapter owns the
// rest of the outbound vocabulary.

type CaptureStartEvent struct {
	Type    core.Kind `json:"type"`
	Seconds int       `json:"seconds"`
}

type CountdownTickEvent struct {
	Type core.Kind `json:"type"`
	N    int       `json:"n"`
}

type CaptureNowEvent struct {
	Type core.Kind `json:"type"`
}

type AssetsMergedEvent struct {
	Type   core.Kind `json:"type"`
	Slot   int       `json:"slot,omitempty"`
	Merged string    `json:"merged,omitempty"`
	Refs   []string  `json:"refs,omitempty"`
	Result string    `json:"result,omitempty"`
}

type MergeFailedEvent struct {
	Type   core.Kind `json:"type"`
	Slot   int       `json:"slot,omitempty"`
	Reason string    `json:"reason"`
}

type SessionCompleteEvent struct {
	Type      core.Kind `json:"type"`
	SessionID string    `json:"sessionId"`
	Result    string    `json:"resultRef,omitempty"`
}

type SegmentUploadedEvent struct {
	Type     core.Kind            `json:"type"`
	Slot     int                  `json:"slot"`
	Uploader domain.ParticipantID `json:"uploaderId"`
	Count    int                  `json:"count"`
	Required int                  `json:"required"`
}

type AllSegmentsUploadedEvent struct {
	Type  core.Kind `json:"type"`
	Count int       `json:"count"`
}
