package relay

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/collapsinghierarchy/chat-backend/internal/metrics"
)

// SendMessage validates, persists, and fans out one chat message.
//
// Malformed events are dropped without notification: the sender is an
// unverified peer and chat is fire-and-forget at the transport. A failed
// save is reported to the originating connection only, with zero fan-out,
// so a message can never look delivered to one party and not the other.
// On success both parties' rooms receive the canonical persisted record,
// including the server-assigned id and timestamp.
func (c *Core) SendMessage(ctx context.Context, handle, senderID, recipientID, text string) {
	if senderID == "" || recipientID == "" || text == "" {
		metrics.MessagesDropped.WithLabelValues("malformed").Inc()
		c.log.Debug("malformed send-message dropped", zap.String("handle", handle))
		return
	}
	msg, err := c.store.Save(ctx, text, senderID, recipientID, time.Now())
	if err != nil {
		metrics.MessageSaveFailures.Inc()
		c.log.Warn("save message failed",
			zap.String("sender", senderID),
			zap.String("recipient", recipientID),
			zap.Error(err),
		)
		c.conns.EmitTo(handle, errorEvent("Message not saved"))
		return
	}
	metrics.MessagesSaved.Inc()

	ev := map[string]any{"type": "new-message", "message": msg}
	c.conns.EmitRoom(recipientID, ev)
	if senderID != recipientID {
		c.conns.EmitRoom(senderID, ev)
	}
}
