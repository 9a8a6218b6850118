package signal

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/KwakOri/vshot-server/internal/core"
	"github.com/KwakOri/vshot-server/internal/domain"
)

// handleRelay forwards offer/answer/candidate messages to the addressed
// identity. The relay validates the payload shape but never rewrites it,
// and it does not persist or replay anything: if the recipient has no open
// connection the message is dropped with a warning.
func (ctl *Controller) handleRelay(c core.SignalConnection, kind core.Kind, data []byte) {
	from, ok := ctl.Registry.IdentityOf(c)
	if !ok {
		ctl.sendError(c, fmt.Errorf("%w: join before relaying", domain.ErrNotMember))
		return
	}

	var p relayPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("type", string(kind)).Msg("bad relay payload")
		ctl.sendError(c, fmt.Errorf("%w: bad %s payload", domain.ErrBadPayload, kind))
		return
	}
	if err := ctl.validate.Struct(p); err != nil {
		ctl.sendError(c, fmt.Errorf("%w: %v", domain.ErrBadPayload, err))
		return
	}
	switch kind {
	case core.KindOffer, core.KindAnswer:
		if p.SDP == nil || p.SDP.SDP == "" {
			ctl.sendError(c, fmt.Errorf("%w: %s without sdp", domain.ErrBadPayload, kind))
			return
		}
	case core.KindCandidate:
		if p.Candidate == nil || p.Candidate.Candidate == "" {
			ctl.sendError(c, fmt.Errorf("%w: candidate without candidate body", domain.ErrBadPayload))
			return
		}
	}

	target := domain.ParticipantID(p.To)
	conn, ok := ctl.Registry.Lookup(target)
	if !ok {
		log.Warn().Str("module", "signal").Str("type", string(kind)).Str("from", string(from)).Str("to", string(target)).Msg("relay dropped, recipient offline")
		return
	}
	if err := conn.TrySend(core.Frame(data)); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("type", string(kind)).Str("to", string(target)).Msg("relay delivery failed")
	}
}
