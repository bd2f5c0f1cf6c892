// Package relay is the presence and message-relay core: it keeps the
// presence registry consistent across connects, joins, and disconnects,
// fans persisted chat messages out to both parties, and routes opaque
// call-setup signaling between two identities.
package relay

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/collapsinghierarchy/chat-backend/internal/presence"
	"github.com/collapsinghierarchy/chat-backend/internal/store"
)

// Emitter is the slice of the connection layer the core depends on.
// *hub.Hub satisfies it; tests substitute a recorder.
type Emitter interface {
	EmitTo(handle string, payload any) bool
	EmitRoom(room string, payload any)
	BroadcastAll(payload any)
	JoinRoom(handle, room string) bool
}

// MessageStore is the persistence collaborator. *store.Store satisfies it.
type MessageStore interface {
	Save(ctx context.Context, text, senderID, recipientID string, ts time.Time) (store.Message, error)
	Recent(ctx context.Context, identity string) ([]store.Message, error)
}

type Core struct {
	reg   *presence.Registry
	conns Emitter
	store MessageStore
	log   *zap.Logger
}

func New(reg *presence.Registry, conns Emitter, st MessageStore, log *zap.Logger) *Core {
	if log == nil {
		log = zap.NewNop()
	}
	return &Core{reg: reg, conns: conns, store: st, log: log}
}

func errorEvent(msg string) map[string]any {
	return map[string]any{"type": "error", "message": msg}
}
