package relay

import (
	"encoding/json"

	"github.com/collapsinghierarchy/chat-backend/internal/metrics"
)

// Call signaling is a stateless router keyed by the presence registry.
// The peers' own WebRTC state machines are the source of truth; no call
// attempt is stored here, payloads are never inspected, and out-of-order
// or unsolicited events are relayed as long as the target resolves.

// CallUser relays an offer to the callee, or tells the caller the callee
// is offline. This is the one signaling event with an explicit negative
// reply; the caller is waiting and should not have to time out.
func (c *Core) CallUser(handle, toUserID, fromUserID string, offer json.RawMessage) {
	target, ok := c.reg.Resolve(toUserID)
	if !ok {
		metrics.SignalsDropped.WithLabelValues("call-user", "offline").Inc()
		c.conns.EmitTo(handle, map[string]any{"type": "user-offline", "toUserId": toUserID})
		return
	}
	metrics.SignalsRelayed.WithLabelValues("call-user").Inc()
	c.conns.EmitTo(target, map[string]any{
		"type":       "incoming-call",
		"fromUserId": fromUserID,
		"offer":      offer,
	})
}

// AnswerCall relays an answer back to the original caller. If the caller
// vanished mid-handshake there is nothing useful to report; drop silently.
func (c *Core) AnswerCall(toUserID, fromUserID string, answer json.RawMessage) {
	target, ok := c.reg.Resolve(toUserID)
	if !ok {
		metrics.SignalsDropped.WithLabelValues("answer-call", "offline").Inc()
		return
	}
	metrics.SignalsRelayed.WithLabelValues("answer-call").Inc()
	c.conns.EmitTo(target, map[string]any{
		"type":       "call-answered",
		"fromUserId": fromUserID,
		"answer":     answer,
	})
}

// IceCandidate relays one ICE candidate, resolve-or-drop.
func (c *Core) IceCandidate(toUserID, fromUserID string, candidate json.RawMessage) {
	target, ok := c.reg.Resolve(toUserID)
	if !ok {
		metrics.SignalsDropped.WithLabelValues("ice-candidate", "offline").Inc()
		return
	}
	metrics.SignalsRelayed.WithLabelValues("ice-candidate").Inc()
	c.conns.EmitTo(target, map[string]any{
		"type":       "ice-candidate",
		"fromUserId": fromUserID,
		"candidate":  candidate,
	})
}

// EndCall tells the other party the call is over, resolve-or-drop.
func (c *Core) EndCall(toUserID string) {
	target, ok := c.reg.Resolve(toUserID)
	if !ok {
		metrics.SignalsDropped.WithLabelValues("end-call", "offline").Inc()
		return
	}
	metrics.SignalsRelayed.WithLabelValues("end-call").Inc()
	c.conns.EmitTo(target, map[string]any{"type": "call-ended"})
}
