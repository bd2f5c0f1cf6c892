package relay

import (
	"context"

	"go.uber.org/zap"

	"github.com/collapsinghierarchy/chat-backend/internal/metrics"
	"github.com/collapsinghierarchy/chat-backend/internal/store"
)

// Join moves a connection from Connected to Joined: it registers the
// identity (displacing any stale session), joins the identity-named room,
// broadcasts the new presence list, and replays recent history to the
// joining connection only.
//
// History runs after the registry update and outside its lock; a query
// failure is reported to the joiner but does not undo the join.
func (c *Core) Join(ctx context.Context, handle, identity string) {
	if identity == "" {
		c.log.Debug("join without identity dropped", zap.String("handle", handle))
		return
	}
	c.reg.Join(identity, handle)
	c.conns.JoinRoom(handle, identity)
	metrics.SetOnline(c.reg.Len())
	c.broadcastPresence()

	msgs, err := c.store.Recent(ctx, identity)
	if err != nil {
		metrics.HistoryFailures.Inc()
		c.log.Warn("history query failed", zap.String("identity", identity), zap.Error(err))
		c.conns.EmitTo(handle, errorEvent("Failed to load messages"))
		return
	}
	// Recent is newest-first; clients want chronological.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	if msgs == nil {
		msgs = []store.Message{}
	}
	metrics.HistoryReplays.Inc()
	c.conns.EmitTo(handle, map[string]any{"type": "load-messages", "messages": msgs})
}

// Disconnect handles the transport's disconnect notification. The guarded
// Leave means a stale connection whose identity already rejoined elsewhere
// removes nothing and triggers no broadcast.
func (c *Core) Disconnect(handle string) {
	identity, ok := c.reg.Leave(handle)
	if !ok {
		return
	}
	metrics.SetOnline(c.reg.Len())
	c.log.Debug("identity left", zap.String("identity", identity), zap.String("handle", handle))
	c.broadcastPresence()
}

func (c *Core) broadcastPresence() {
	c.conns.BroadcastAll(map[string]any{"type": "update-user-list", "users": c.reg.Snapshot()})
}
