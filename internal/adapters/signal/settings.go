package signal

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/KwakOri/vshot-server/internal/app"
	"github.com/KwakOri/vshot-server/internal/core"
	"github.com/KwakOri/vshot-server/internal/domain"
)

// handleFrameSelected persists the chosen layout on the room and confirms
// the selection to the other party.
func (ctl *Controller) handleFrameSelected(c core.SignalConnection, data []byte) {
	id, ok := ctl.identified(c)
	if !ok {
		return
	}
	var p frameSelectedPayload
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(c, fmt.Errorf("%w: bad frame-selected payload", domain.ErrBadPayload))
		return
	}
	if err := ctl.validate.Struct(p); err != nil {
		ctl.sendError(c, fmt.Errorf("%w: %v", domain.ErrBadPayload, err))
		return
	}
	frame, ok := ctl.Layouts.Get(p.LayoutID)
	if !ok {
		ctl.sendError(c, fmt.Errorf("%w: %s", domain.ErrLayoutNotFound, p.LayoutID))
		return
	}
	roomID := domain.RoomID(p.RoomID)
	if _, err := ctl.Store.SelectFrame(roomID, id, frame.ID, frame.SlotCount); err != nil {
		ctl.sendError(c, err)
		return
	}
	log.Info().Str("module", "signal").Str("room", string(roomID)).Str("layout", frame.ID).Msg("frame selected")
	ctl.toPeer(roomID, id, frameSelectedEvent{Type: core.KindFrameSelected, LayoutID: frame.ID, SlotCount: frame.SlotCount})
}

// handleSettingsSync validates the tagged patch at the boundary, persists
// the durable categories and forwards the result to the other party.
// Ephemeral display options pass through without persisting.
func (ctl *Controller) handleSettingsSync(c core.SignalConnection, data []byte) {
	id, ok := ctl.identified(c)
	if !ok {
		return
	}
	var p settingsSyncPayload
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(c, fmt.Errorf("%w: bad settings-sync payload", domain.ErrBadPayload))
		return
	}
	if err := ctl.validate.Struct(p); err != nil {
		ctl.sendError(c, fmt.Errorf("%w: %v", domain.ErrBadPayload, err))
		return
	}
	if p.Settings.LayoutID != nil {
		if _, ok := ctl.Layouts.Get(*p.Settings.LayoutID); !ok {
			ctl.sendError(c, fmt.Errorf("%w: %s", domain.ErrLayoutNotFound, *p.Settings.LayoutID))
			return
		}
	}

	roomID := domain.RoomID(p.RoomID)
	if _, err := ctl.Store.RoleOf(roomID, id); err != nil {
		ctl.sendError(c, err)
		return
	}
	var (
		settings domain.Settings
		err      error
	)
	if p.Settings.Durable() {
		settings, err = ctl.Store.UpdateSettings(roomID, id, p.Settings)
	} else {
		var info app.RoomInfo
		info, err = ctl.Store.Info(roomID)
		settings = info.Settings
	}
	if err != nil {
		ctl.sendError(c, err)
		return
	}
	ctl.toPeer(roomID, id, settingsUpdatedEvent{
		Type:     core.KindSettingsUpdated,
		Settings: settings,
		Display:  p.Settings.Display,
	})
}
