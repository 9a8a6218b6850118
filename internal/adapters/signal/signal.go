package signal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/KwakOri/vshot-server/internal/app"
	"github.com/KwakOri/vshot-server/internal/core"
	"github.com/KwakOri/vshot-server/internal/domain"
	"github.com/KwakOri/vshot-server/internal/layout"
)

var ErrBackpressure = errors.New("backpressure")

// Controller is the single entry point for all inbound signaling messages:
// it classifies, authorizes and dispatches them, and implements the event
// sink the coordinator emits through.
type Controller struct {
	Registry    *app.Registry
	Store       *app.Store
	Coordinator *app.Coordinator
	Layouts     *layout.Catalog
	ReadLimit   int64
	PingPeriod  time.Duration

	validate *validator.Validate
}

func NewController(reg *app.Registry, store *app.Store, coord *app.Coordinator, layouts *layout.Catalog) *Controller {
	return &Controller{
		Registry:    reg,
		Store:       store,
		Coordinator: coord,
		Layouts:     layouts,
		validate:    validator.New(),
	}
}

var _ core.EventSink = (*Controller)(nil)

type wsConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *wsConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request and starts the connection pumps. The
// connection stays anonymous until a join message binds an identity to it.
func (ctl *Controller) HandleSignal(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	if ctl.ReadLimit > 0 {
		ws.SetReadLimit(ctl.ReadLimit)
	}
	log.Info().Str("module", "signal").Str("remote", ws.RemoteAddr().String()).Msg("new WS connection")

	conn := &wsConn{
		conn: ws,
		send: make(chan core.Frame, 32),
	}
	ctx, cancel := context.WithCancel(ctx)

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, conn)
}

func (ctl *Controller) sendJSON(c core.SignalConnection, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}

// sendError reports a recovered protocol violation to the offending
// connection only; the connection stays open.
func (ctl *Controller) sendError(c core.SignalConnection, err error) {
	ctl.sendJSON(c, errorEvent{
		Type:    core.KindError,
		Kind:    domain.KindOf(err),
		Message: err.Error(),
	})
}

// Broadcast implements core.EventSink: best-effort fan-out to the room.
func (ctl *Controller) Broadcast(roomID domain.RoomID, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("broadcast marshal")
		return
	}
	ctl.Registry.Broadcast(roomID, b)
}

// ToIdentity implements core.EventSink: addressed delivery, dropped if the
// identity has no open connection.
func (ctl *Controller) ToIdentity(id domain.ParticipantID, v any) {
	conn, ok := ctl.Registry.Lookup(id)
	if !ok {
		log.Warn().Str("module", "signal").Str("id", string(id)).Msg("addressed delivery dropped, no connection")
		return
	}
	ctl.sendJSON(conn, v)
}

// toPeer forwards an event to the other party of the room.
func (ctl *Controller) toPeer(roomID domain.RoomID, from domain.ParticipantID, v any) {
	info, err := ctl.Store.Info(roomID)
	if err != nil {
		return
	}
	switch from {
	case info.HostID:
		if info.GuestID != "" {
			ctl.ToIdentity(info.GuestID, v)
		}
	case info.GuestID:
		ctl.ToIdentity(info.HostID, v)
	}
}

// OnRoomExpired is wired to Store.NotifyDeleted: when a grace deadline
// elapses the remaining guest learns the room is gone.
func (ctl *Controller) OnRoomExpired(roomID domain.RoomID, guestID domain.ParticipantID) {
	if guestID == "" {
		return
	}
	ctl.ToIdentity(guestID, roomClosedEvent{Type: core.KindRoomClosed, RoomID: roomID})
	ctl.Registry.ClearRoom(guestID)
}

// register binds the identity to this connection, evicting a previous
// connection as superseded (a reconnect, not a departure).
func (ctl *Controller) register(id domain.ParticipantID, conn core.SignalConnection, roomID domain.RoomID) {
	farewell, _ := json.Marshal(supersededEvent{Type: core.KindSuperseded, Reason: "connection superseded by a newer one"})
	ctl.Registry.Register(id, conn, farewell)
	ctl.Registry.SetRoom(id, roomID)
}
