package signal

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/KwakOri/vshot-server/internal/app"
	"github.com/KwakOri/vshot-server/internal/core"
	"github.com/KwakOri/vshot-server/internal/domain"
)

func (ctl *Controller) handleJoin(c core.SignalConnection, data []byte) {
	var p joinPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad join payload")
		ctl.sendError(c, fmt.Errorf("%w: bad join payload", domain.ErrBadPayload))
		return
	}
	if err := ctl.validate.Struct(p); err != nil {
		ctl.sendError(c, fmt.Errorf("%w: %v", domain.ErrBadPayload, err))
		return
	}

	id := domain.ParticipantID(p.Identity)
	switch p.Role {
	case domain.RoleHost:
		ctl.joinHost(c, id, p)
	case domain.RoleGuest:
		ctl.joinGuest(c, id, p)
	}
}

// joinHost creates a room when no id is given, otherwise rejoins the
// existing one (cancelling a pending deletion). The connection is only
// registered as a member after the store accepted the join.
func (ctl *Controller) joinHost(c core.SignalConnection, id domain.ParticipantID, p joinPayload) {
	var (
		info app.RoomInfo
		err  error
	)
	if p.RoomID == "" {
		mode := p.Mode
		if mode == "" {
			mode = domain.ModePair
		}
		policy := domain.DeleteAfterGrace
		if mode == domain.ModeBooth {
			policy = domain.DeleteImmediately
		}
		info, err = ctl.Store.CreateRoom(id, mode, policy)
	} else {
		info, err = ctl.Store.RejoinHost(domain.RoomID(p.RoomID), id)
	}
	if err != nil {
		ctl.sendError(c, err)
		return
	}

	ctl.register(id, c, info.ID)
	log.Info().Str("module", "signal").Str("room", string(info.ID)).Str("host", string(id)).Msg("host joined")

	ctl.sendJSON(c, joinedEvent{
		Type:     core.KindJoined,
		RoomID:   info.ID,
		Role:     domain.RoleHost,
		HostID:   info.HostID,
		GuestID:  info.GuestID,
		Settings: info.Settings,
	})
	if info.GuestID == "" {
		ctl.sendJSON(c, waitingEvent{Type: core.KindWaitingForPeer})
	}
}

func (ctl *Controller) joinGuest(c core.SignalConnection, id domain.ParticipantID, p joinPayload) {
	if p.RoomID == "" {
		ctl.sendError(c, fmt.Errorf("%w: guest join needs roomId", domain.ErrRoomNotFound))
		return
	}
	roomID := domain.RoomID(p.RoomID)
	info, err := ctl.Store.JoinGuest(roomID, id)
	if err != nil {
		// Not registered as a member on failure.
		ctl.sendError(c, err)
		return
	}

	ctl.register(id, c, roomID)
	log.Info().Str("module", "signal").Str("room", string(roomID)).Str("guest", string(id)).Msg("guest joined")

	ev := joinedEvent{
		Type:     core.KindJoined,
		RoomID:   info.ID,
		Role:     domain.RoleGuest,
		HostID:   info.HostID,
		GuestID:  id,
		Settings: info.Settings,
	}
	if info.CurrentSession != nil {
		ev.SessionID = info.CurrentSession.ID
	}
	ctl.sendJSON(c, ev)
	ctl.ToIdentity(info.HostID, peerJoinedEvent{Type: core.KindPeerJoined, PeerID: id, Role: domain.RoleGuest})
}

func (ctl *Controller) handleLeave(c core.SignalConnection, data []byte) {
	var p leavePayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad leave payload")
		return
	}
	id, ok := ctl.Registry.IdentityOf(c)
	if !ok {
		return
	}
	log.Info().Str("module", "signal").Str("id", string(id)).Msg("leave")
	ctl.leave(id, c, false)
	ctl.sendJSON(c, leftEvent{Type: core.KindLeft})
}

// onDisconnect treats an abrupt close as an implicit leave. A superseded
// connection resolves to no identity and falls through silently.
func (ctl *Controller) onDisconnect(c core.SignalConnection) {
	id, ok := ctl.Registry.IdentityOf(c)
	if !ok {
		return
	}
	log.Info().Str("module", "signal").Str("id", string(id)).Msg("abrupt disconnect")
	ctl.leave(id, c, true)
}

// leave applies the store transition matching the leaver's role and the
// room's deletion policy, then notifies the remaining peer.
func (ctl *Controller) leave(id domain.ParticipantID, c core.SignalConnection, abrupt bool) {
	roomID, inRoom := ctl.Registry.RoomOf(id)
	if inRoom {
		role, err := ctl.Store.RoleOf(roomID, id)
		switch {
		case err != nil:
			// Room already gone; nothing to transition.
		case role == domain.RoleHost:
			exit, err := ctl.Store.HostGone(roomID, id, abrupt)
			if err == nil && exit.Deleted && exit.GuestID != "" {
				ctl.ToIdentity(exit.GuestID, roomClosedEvent{Type: core.KindRoomClosed, RoomID: roomID})
				ctl.Registry.ClearRoom(exit.GuestID)
			}
			// A scheduled deletion stays silent: the guest only learns
			// about it if the deadline actually expires.
		case role == domain.RoleGuest:
			if err := ctl.Store.LeaveGuest(roomID, id); err == nil {
				if info, err := ctl.Store.Info(roomID); err == nil {
					ctl.ToIdentity(info.HostID, peerLeftEvent{Type: core.KindPeerLeft, PeerID: id, Role: domain.RoleGuest})
					ctl.ToIdentity(info.HostID, waitingEvent{Type: core.KindWaitingForPeer})
				}
			}
		}
	}
	ctl.Registry.Drop(id, c)
}
