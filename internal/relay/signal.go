package relay

import (
	"github.com/cwrk-planet/relay-service/internal/domain"
	"github.com/cwrk-planet/relay-service/internal/registry"
	"github.com/cwrk-planet/relay-service/internal/wire"
)

// SignalRelay forwards opaque call-control and negotiation envelopes between
// sessions. It never interprets the payload; routing uses only the "to" field
// and every envelope subtype (offer, answer, ice_candidate, call control) is
// handled identically.
type SignalRelay struct {
	reg *registry.Registry
}

func NewSignalRelay(reg *registry.Registry) *SignalRelay {
	return &SignalRelay{reg: reg}
}

// Relay forwards the payload verbatim with the sender's identity attached.
// An empty or "all" target fans out to every other session; a specific
// target that is no longer connected yields ErrTargetNotFound.
func (s *SignalRelay) Relay(sess *domain.Session, eventType string, payload map[string]any) error {
	to, _ := payload["to"].(string)

	fwd := make(map[string]any, len(payload)+2)
	for k, v := range payload {
		if k == "to" {
			continue
		}
		fwd[k] = v
	}
	fwd["from"] = sess.UserID
	fwd["fromName"] = sess.UserName

	env := wire.Envelope{Type: eventType, Payload: fwd}

	if to == "" || to == wire.TargetAll {
		s.reg.BroadcastAll(sess.ID, env)
		return nil
	}

	target, ok := s.reg.FindByUserID(to)
	if !ok {
		return domain.ErrTargetNotFound
	}
	return s.reg.SendTo(target.ID, env)
}
