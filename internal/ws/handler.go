package ws

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/collapsinghierarchy/chat-backend/internal/hub"
	"github.com/collapsinghierarchy/chat-backend/internal/metrics"
	"github.com/collapsinghierarchy/chat-backend/internal/relay"
)

type wsOpts struct {
	readBuf, writeBuf int
	maxMsg            int64
	heartbeat         time.Duration
	rl                interface{ AllowWS(*http.Request) bool } // nil => no limit
}
type Option func(*wsOpts)

func WithRateLimiter(rl interface{ AllowWS(*http.Request) bool }) Option {
	return func(o *wsOpts) { o.rl = rl }
}

func WithBuffers(read, write int) Option {
	return func(o *wsOpts) { o.readBuf, o.writeBuf = read, write }
}
func WithLimits(max int64, heartbeat time.Duration) Option {
	return func(o *wsOpts) { o.maxMsg, o.heartbeat = max, heartbeat }
}

// originAllowed checks if the Origin header is in the allowlist.
// - Empty Origin (non-browser clients) is allowed.
// - Items in allowedOrigins can be full origins (https://example.com) or hostnames (example.com).
func originAllowed(allowedOrigins []string, origin string) bool {
	if origin == "" {
		return true // non-browser clients typically omit Origin
	}
	if len(allowedOrigins) == 0 {
		return false
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	for _, a := range allowedOrigins {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		// exact origin match
		if strings.EqualFold(a, origin) {
			return true
		}
		// hostname match
		if strings.EqualFold(a, host) {
			return true
		}
	}
	return false
}

// NewWSHandler upgrades each client to a WebSocket, registers it with the
// hub under a fresh handle, and runs the read loop that feeds the relay
// core. Events for one connection are processed in arrival order; the
// core serializes cross-connection access to the presence registry.
func NewWSHandler(h *hub.Hub, core *relay.Core, allowedOrigins []string, lg *slog.Logger, dev bool, options ...Option) http.Handler {
	if lg == nil {
		lg = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	cfg := wsOpts{readBuf: 64 << 10, writeBuf: 64 << 10, maxMsg: 1 << 20, heartbeat: 45 * time.Second}
	for _, opt := range options {
		opt(&cfg)
	}
	pingPeriod := cfg.heartbeat * 9 / 10

	up := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if dev {
				return true
			}
			return originAllowed(allowedOrigins, r.Header.Get("Origin"))
		},
		ReadBufferSize:  cfg.readBuf,
		WriteBufferSize: cfg.writeBuf,
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !dev && !originAllowed(allowedOrigins, r.Header.Get("Origin")) {
			http.Error(w, "forbidden origin", http.StatusForbidden)
			return
		}
		if cfg.rl != nil && !cfg.rl.AllowWS(r) {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			lg.Warn("ws upgrade failed", "err", err)
			return
		}
		defer conn.Close()
		metrics.WSConnections.Inc()

		// One handle per physical connection; identity arrives later via "join".
		handle := uuid.NewString()
		h.Register(handle, conn)
		defer func() {
			h.Unregister(handle)
			core.Disconnect(handle)
		}()

		conn.SetReadLimit(cfg.maxMsg)
		_ = conn.SetReadDeadline(time.Now().Add(cfg.heartbeat))
		conn.SetPongHandler(func(data string) error {
			if err := conn.SetReadDeadline(time.Now().Add(cfg.heartbeat)); err != nil {
				return err
			}
			if ts, err := strconv.ParseInt(data, 10, 64); err == nil {
				metrics.WSRTTSeconds.Observe(time.Since(time.Unix(0, ts)).Seconds())
			}
			return nil
		})

		done := make(chan struct{})
		defer close(done)
		go func() {
			t := time.NewTicker(pingPeriod)
			defer t.Stop()
			for {
				select {
				case <-done:
					return
				case <-t.C:
					payload := []byte(strconv.FormatInt(time.Now().UnixNano(), 10))
					if err := h.Ping(handle, payload); err != nil {
						_ = conn.Close()
						return
					}
				}
			}
		}()

		for {
			mt, msg, err := conn.ReadMessage()
			if err != nil {
				// quiet on normal closes
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					lg.Warn("ws read error", "err", err)
				}
				return
			}
			metrics.WSFrameSize.WithLabelValues("in").Observe(float64(len(msg)))
			if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
				continue
			}
			var peek struct {
				Type string `json:"type"`
			}
			if err := json.Unmarshal(msg, &peek); err != nil {
				continue
			}
			t := strings.ToLower(peek.Type)
			if t == "" {
				t = "unknown"
			}
			metrics.Events.WithLabelValues(t).Inc()

			switch t {
			case "join":
				var m struct {
					UserID string `json:"userId"`
				}
				if err := json.Unmarshal(msg, &m); err == nil {
					core.Join(r.Context(), handle, m.UserID)
				}
			case "send-message":
				var m struct {
					SenderID    string `json:"senderId"`
					RecipientID string `json:"recipientId"`
					Text        string `json:"text"`
				}
				if err := json.Unmarshal(msg, &m); err == nil {
					core.SendMessage(r.Context(), handle, m.SenderID, m.RecipientID, m.Text)
				}
			case "call-user":
				var m struct {
					ToUserID   string          `json:"toUserId"`
					FromUserID string          `json:"fromUserId"`
					Offer      json.RawMessage `json:"offer"`
				}
				if err := json.Unmarshal(msg, &m); err == nil {
					core.CallUser(handle, m.ToUserID, m.FromUserID, m.Offer)
				}
			case "answer-call":
				var m struct {
					ToUserID   string          `json:"toUserId"`
					FromUserID string          `json:"fromUserId"`
					Answer     json.RawMessage `json:"answer"`
				}
				if err := json.Unmarshal(msg, &m); err == nil {
					core.AnswerCall(m.ToUserID, m.FromUserID, m.Answer)
				}
			case "ice-candidate":
				var m struct {
					ToUserID   string          `json:"toUserId"`
					FromUserID string          `json:"fromUserId"`
					Candidate  json.RawMessage `json:"candidate"`
				}
				if err := json.Unmarshal(msg, &m); err == nil {
					core.IceCandidate(m.ToUserID, m.FromUserID, m.Candidate)
				}
			case "end-call":
				var m struct {
					ToUserID string `json:"toUserId"`
				}
				if err := json.Unmarshal(msg, &m); err == nil {
					core.EndCall(m.ToUserID)
				}
			default:
				// ignore
			}
		}
	})
}
