package signal

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/KwakOri/vshot-server/internal/core"
	"github.com/KwakOri/vshot-server/internal/domain"
)

// identified resolves the sender's identity; capture messages from an
// unjoined connection are rejected, not routed.
func (ctl *Controller) identified(c core.SignalConnection) (domain.ParticipantID, bool) {
	id, ok := ctl.Registry.IdentityOf(c)
	if !ok {
		ctl.sendError(c, fmt.Errorf("%w: join first", domain.ErrNotMember))
	}
	return id, ok
}

func (ctl *Controller) handleStartCapture(c core.SignalConnection, data []byte) {
	id, ok := ctl.identified(c)
	if !ok {
		return
	}
	var p startCapturePayload
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(c, fmt.Errorf("%w: bad start-capture payload", domain.ErrBadPayload))
		return
	}
	if err := ctl.validate.Struct(p); err != nil {
		ctl.sendError(c, fmt.Errorf("%w: %v", domain.ErrBadPayload, err))
		return
	}
	if err := ctl.Coordinator.StartCapture(domain.RoomID(p.RoomID), id); err != nil {
		ctl.sendError(c, err)
	}
}

func (ctl *Controller) handlePhotoUploaded(c core.SignalConnection, data []byte) {
	id, ok := ctl.identified(c)
	if !ok {
		return
	}
	var p photoUploadedPayload
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(c, fmt.Errorf("%w: bad photo-uploaded payload", domain.ErrBadPayload))
		return
	}
	if err := ctl.validate.Struct(p); err != nil {
		ctl.sendError(c, fmt.Errorf("%w: %v", domain.ErrBadPayload, err))
		return
	}
	if err := ctl.Coordinator.PhotoUploaded(domain.RoomID(p.RoomID), id, p.Role, p.Slot, p.AssetRef); err != nil {
		ctl.sendError(c, err)
	}
}

func (ctl *Controller) handleSegmentUploaded(c core.SignalConnection, data []byte) {
	id, ok := ctl.identified(c)
	if !ok {
		return
	}
	var p segmentUploadedPayload
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(c, fmt.Errorf("%w: bad segment-uploaded payload", domain.ErrBadPayload))
		return
	}
	if err := ctl.validate.Struct(p); err != nil {
		ctl.sendError(c, fmt.Errorf("%w: %v", domain.ErrBadPayload, err))
		return
	}
	if err := ctl.Coordinator.SegmentUploaded(domain.RoomID(p.RoomID), id, p.Slot, p.AssetRef, p.Size); err != nil {
		ctl.sendError(c, err)
	}
}

func (ctl *Controller) handleComposeSegments(c core.SignalConnection, data []byte) {
	id, ok := ctl.identified(c)
	if !ok {
		return
	}
	var p composeSegmentsPayload
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(c, fmt.Errorf("%w: bad compose-segments payload", domain.ErrBadPayload))
		return
	}
	if err := ctl.validate.Struct(p); err != nil {
		ctl.sendError(c, fmt.Errorf("%w: %v", domain.ErrBadPayload, err))
		return
	}
	if err := ctl.Coordinator.ComposeSegments(domain.RoomID(p.RoomID), id, p.Slots); err != nil {
		ctl.sendError(c, err)
	}
}

func (ctl *Controller) handleSessionReset(c core.SignalConnection, data []byte) {
	id, ok := ctl.identified(c)
	if !ok {
		return
	}
	var p sessionResetPayload
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(c, fmt.Errorf("%w: bad session-reset payload", domain.ErrBadPayload))
		return
	}
	if err := ctl.validate.Struct(p); err != nil {
		ctl.sendError(c, fmt.Errorf("%w: %v", domain.ErrBadPayload, err))
		return
	}
	roomID := domain.RoomID(p.RoomID)
	if err := ctl.Store.ResetRound(roomID, id); err != nil {
		ctl.sendError(c, err)
		return
	}
	log.Info().Str("module", "signal").Str("room", string(roomID)).Msg("capture round reset")
	ctl.toPeer(roomID, id, sessionResetEvent{Type: core.KindSessionReset})
}
