package ws_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/collapsinghierarchy/chat-backend/internal/hub"
	"github.com/collapsinghierarchy/chat-backend/internal/presence"
	"github.com/collapsinghierarchy/chat-backend/internal/relay"
	"github.com/collapsinghierarchy/chat-backend/internal/store"
	"github.com/collapsinghierarchy/chat-backend/internal/ws"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "chat.db"), 100)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	h := hub.New()
	core := relay.New(presence.New(), h, st, nil)

	mux := http.NewServeMux()
	// allow all origins (dev=true), small heartbeat for tests
	mux.Handle("/ws", ws.NewWSHandler(h, core, nil, nil, true, ws.WithLimits(1<<20, 2*time.Second)))
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	u, _ := url.Parse(ts.URL)
	u.Scheme = "ws"
	u.Path = "/ws"

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	return c
}

func send(t *testing.T, c *websocket.Conn, frame string) {
	t.Helper()
	if err := c.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		t.Fatalf("write %s: %v", frame, err)
	}
}

// waitFor reads frames until one with the wanted type arrives, skipping
// interleaved presence broadcasts and other noise.
func waitFor(t *testing.T, c *websocket.Conn, typ string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		_ = c.SetReadDeadline(time.Now().Add(time.Second))
		_, p, err := c.ReadMessage()
		if err != nil {
			t.Fatalf("read while waiting for %q: %v", typ, err)
		}
		var m map[string]any
		if err := json.Unmarshal(p, &m); err != nil {
			continue
		}
		if m["type"] == typ {
			return m
		}
	}
	t.Fatalf("timed out waiting for %q", typ)
	return nil
}

func userList(m map[string]any) []string {
	raw, _ := m["users"].([]any)
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func TestJoinSendMessageDisconnectScenario(t *testing.T) {
	ts := newServer(t)

	a := dial(t, ts)
	defer a.Close()
	send(t, a, `{"type":"join","userId":"alice"}`)

	if users := userList(waitFor(t, a, "update-user-list")); !contains(users, "alice") {
		t.Fatalf("user list %v missing alice", users)
	}
	if msgs, ok := waitFor(t, a, "load-messages")["messages"].([]any); !ok || len(msgs) != 0 {
		t.Fatalf("expected empty history, got %v", msgs)
	}

	b := dial(t, ts)
	defer b.Close()
	send(t, b, `{"type":"join","userId":"bob"}`)
	waitFor(t, b, "load-messages")

	// A sees bob come online.
	for {
		users := userList(waitFor(t, a, "update-user-list"))
		if contains(users, "bob") {
			if !contains(users, "alice") {
				t.Fatalf("user list %v lost alice", users)
			}
			break
		}
	}

	// A -> B chat message; both parties get the canonical record.
	send(t, a, `{"type":"send-message","senderId":"alice","recipientId":"bob","text":"hi"}`)
	for _, c := range []*websocket.Conn{a, b} {
		ev := waitFor(t, c, "new-message")
		msg, ok := ev["message"].(map[string]any)
		if !ok {
			t.Fatalf("new-message without message: %v", ev)
		}
		if msg["text"] != "hi" || msg["senderId"] != "alice" || msg["recipientId"] != "bob" {
			t.Fatalf("bad message: %v", msg)
		}
		if msg["id"] == "" || msg["id"] == nil || msg["timestamp"] == nil {
			t.Fatalf("message missing server-assigned id/timestamp: %v", msg)
		}
	}

	// B drops; A's presence list loses bob.
	b.Close()
	for {
		users := userList(waitFor(t, a, "update-user-list"))
		if !contains(users, "bob") {
			break
		}
	}

	// Calling the departed bob reports offline, synchronously.
	send(t, a, `{"type":"call-user","toUserId":"bob","fromUserId":"alice","offer":{"sdp":"v=0"}}`)
	if ev := waitFor(t, a, "user-offline"); ev["toUserId"] != "bob" {
		t.Fatalf("user-offline names %v; want bob", ev["toUserId"])
	}
}

func TestHistoryReplayOnRejoin(t *testing.T) {
	ts := newServer(t)

	a := dial(t, ts)
	send(t, a, `{"type":"join","userId":"alice"}`)
	waitFor(t, a, "load-messages")
	send(t, a, `{"type":"send-message","senderId":"alice","recipientId":"bob","text":"one"}`)
	waitFor(t, a, "new-message")
	send(t, a, `{"type":"send-message","senderId":"alice","recipientId":"bob","text":"two"}`)
	waitFor(t, a, "new-message")
	a.Close()

	// Bob joins later and receives the conversation, chronological.
	b := dial(t, ts)
	defer b.Close()
	send(t, b, `{"type":"join","userId":"bob"}`)
	msgs, ok := waitFor(t, b, "load-messages")["messages"].([]any)
	if !ok || len(msgs) != 2 {
		t.Fatalf("expected 2 history messages, got %v", msgs)
	}
	first := msgs[0].(map[string]any)
	second := msgs[1].(map[string]any)
	if first["text"] != "one" || second["text"] != "two" {
		t.Fatalf("history out of order: %v then %v", first["text"], second["text"])
	}
}

func TestCallSignalingRoundTrip(t *testing.T) {
	ts := newServer(t)

	a := dial(t, ts)
	defer a.Close()
	send(t, a, `{"type":"join","userId":"alice"}`)
	waitFor(t, a, "load-messages")

	b := dial(t, ts)
	defer b.Close()
	send(t, b, `{"type":"join","userId":"bob"}`)
	waitFor(t, b, "load-messages")

	send(t, a, `{"type":"call-user","toUserId":"bob","fromUserId":"alice","offer":{"sdp":"offer-sdp"}}`)
	inc := waitFor(t, b, "incoming-call")
	if inc["fromUserId"] != "alice" {
		t.Fatalf("incoming-call from %v; want alice", inc["fromUserId"])
	}
	if offer, ok := inc["offer"].(map[string]any); !ok || offer["sdp"] != "offer-sdp" {
		t.Fatalf("offer not relayed verbatim: %v", inc["offer"])
	}

	send(t, b, `{"type":"answer-call","toUserId":"alice","fromUserId":"bob","answer":{"sdp":"answer-sdp"}}`)
	ans := waitFor(t, a, "call-answered")
	if ans["fromUserId"] != "bob" {
		t.Fatalf("call-answered from %v; want bob", ans["fromUserId"])
	}

	send(t, a, `{"type":"ice-candidate","toUserId":"bob","fromUserId":"alice","candidate":{"candidate":"udp 1"}}`)
	ice := waitFor(t, b, "ice-candidate")
	if ice["fromUserId"] != "alice" {
		t.Fatalf("ice-candidate from %v; want alice", ice["fromUserId"])
	}

	send(t, b, `{"type":"end-call","toUserId":"alice"}`)
	waitFor(t, a, "call-ended")
}

func TestMalformedFramesIgnored(t *testing.T) {
	ts := newServer(t)

	a := dial(t, ts)
	defer a.Close()
	send(t, a, `{"type":"join","userId":"alice"}`)
	waitFor(t, a, "load-messages")

	send(t, a, `not json at all`)
	send(t, a, `{"type":"send-message","senderId":"alice"}`)
	send(t, a, `{"type":"bogus-event"}`)

	// Connection must survive and keep working.
	send(t, a, `{"type":"send-message","senderId":"alice","recipientId":"alice","text":"still here"}`)
	ev := waitFor(t, a, "new-message")
	if msg := ev["message"].(map[string]any); msg["text"] != "still here" {
		t.Fatalf("bad message after garbage frames: %v", msg)
	}
}
