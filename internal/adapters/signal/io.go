package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/KwakOri/vshot-server/internal/core"
)

func (ctl *Controller) writePump(ctx context.Context, c *wsConn) {
	period := ctl.PingPeriod
	if period <= 0 {
		period = 54 * time.Second
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			return
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Info().Err(err).Str("module", "signal").Msg("writePump ping failed")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Info().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, cancel context.CancelFunc, c *wsConn) {
	defer func() {
		log.Info().Str("module", "signal").Msg("readPump closing")
		ctl.onDisconnect(c)
		cancel()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Info().Err(err).Str("module", "signal").Msg("readPump read error")
				return
			}
			ctl.dispatch(c, data)
		}
	}
}

// dispatch classifies an inbound message by its type tag. Unknown shapes
// are logged and ignored, never fatal to the connection.
func (ctl *Controller) dispatch(c core.SignalConnection, data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad json")
		return
	}

	switch env.Type {
	case core.KindJoin:
		ctl.handleJoin(c, data)
	case core.KindLeave:
		ctl.handleLeave(c, data)
	case core.KindPing:
		ctl.sendJSON(c, pongEvent{Type: core.KindPong})
	case core.KindOffer, core.KindAnswer, core.KindCandidate:
		ctl.handleRelay(c, env.Type, data)
	case core.KindStartCapture:
		ctl.handleStartCapture(c, data)
	case core.KindPhotoUploaded:
		ctl.handlePhotoUploaded(c, data)
	case core.KindSegmentUploaded:
		ctl.handleSegmentUploaded(c, data)
	case core.KindComposeSegments:
		ctl.handleComposeSegments(c, data)
	case core.KindFrameSelected:
		ctl.handleFrameSelected(c, data)
	case core.KindSettingsSync:
		ctl.handleSettingsSync(c, data)
	case core.KindSessionReset:
		ctl.handleSessionReset(c, data)
	default:
		log.Warn().Str("module", "signal").Str("type", string(env.Type)).Msg("unknown signal")
	}
}
