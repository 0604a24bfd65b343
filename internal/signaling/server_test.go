package signaling

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pairlink/signaling-broker/internal/broker"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testEnv struct {
	srv *httptest.Server
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = testLogger()
	}
	if cfg.Broker == nil {
		cfg.Broker = broker.New(cfg.Logger, nil)
	}

	mux := http.NewServeMux()
	NewServer(cfg).RegisterRoutes(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv}
}

func (e *testEnv) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// serverEvent is a superset envelope covering every broker->client event.
type serverEvent struct {
	Event      string          `json:"event"`
	RoomID     string          `json:"roomId"`
	Initiator  bool            `json:"initiator"`
	UserID     string          `json:"userId"`
	NumClients int             `json:"numClients"`
	UserIDs    []string        `json:"userIds"`
	Data       json.RawMessage `json:"data"`
	From       string          `json:"from"`
	Reason     string          `json:"reason"`
	Message    string          `json:"message"`
}

func readEvent(t *testing.T, conn *websocket.Conn) serverEvent {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read event: %v", err)
	}
	var ev serverEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("unmarshal event %q: %v", data, err)
	}
	return ev
}

func expectEvent(t *testing.T, conn *websocket.Conn, name string) serverEvent {
	t.Helper()
	ev := readEvent(t, conn)
	if ev.Event != name {
		t.Fatalf("got event %q, want %q (full: %+v)", ev.Event, name, ev)
	}
	return ev
}

func expectNoEvent(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	if _, data, err := conn.ReadMessage(); err == nil {
		t.Fatalf("expected no event, got %q", data)
	}
}

func sendJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	if err := conn.WriteJSON(v); err != nil {
		t.Fatalf("write message: %v", err)
	}
}

// pair connects two clients and drains their pairing events, returning the
// conns, their assigned ids and the shared room id.
func pair(t *testing.T, env *testEnv) (a, b *websocket.Conn, aID, bID, room string) {
	t.Helper()
	a = env.dial(t)
	joinedA := expectEvent(t, a, "joined-room")
	b = env.dial(t)
	joinedB := expectEvent(t, b, "joined-room")
	expectEvent(t, a, "start-chat")
	expectEvent(t, b, "start-chat")
	return a, b, joinedA.UserID, joinedB.UserID, joinedA.RoomID
}

func TestPairingHandshake(t *testing.T) {
	env := newTestEnv(t, Config{})

	a := env.dial(t)
	joinedA := expectEvent(t, a, "joined-room")
	if joinedA.RoomID != "chat-room-1" {
		t.Fatalf("got room %q, want chat-room-1", joinedA.RoomID)
	}
	if !joinedA.Initiator || joinedA.NumClients != 1 {
		t.Fatalf("first client: got initiator=%v numClients=%d, want true/1", joinedA.Initiator, joinedA.NumClients)
	}
	if joinedA.UserID == "" {
		t.Fatal("expected a non-empty user id")
	}

	b := env.dial(t)
	joinedB := expectEvent(t, b, "joined-room")
	if joinedB.RoomID != joinedA.RoomID {
		t.Fatalf("second client landed in %q, want %q", joinedB.RoomID, joinedA.RoomID)
	}
	if joinedB.Initiator || joinedB.NumClients != 2 {
		t.Fatalf("second client: got initiator=%v numClients=%d, want false/2", joinedB.Initiator, joinedB.NumClients)
	}

	startA := expectEvent(t, a, "start-chat")
	startB := expectEvent(t, b, "start-chat")
	want := []string{joinedA.UserID, joinedB.UserID}
	for _, start := range []serverEvent{startA, startB} {
		if start.RoomID != joinedA.RoomID {
			t.Fatalf("start-chat room %q, want %q", start.RoomID, joinedA.RoomID)
		}
		if len(start.UserIDs) != 2 || start.UserIDs[0] != want[0] || start.UserIDs[1] != want[1] {
			t.Fatalf("start-chat userIds %v, want %v", start.UserIDs, want)
		}
	}
}

func TestSignalRelayedVerbatim(t *testing.T) {
	env := newTestEnv(t, Config{})
	a, b, aID, _, room := pair(t, env)

	payload := json.RawMessage(`{"type":"offer","sdp":"v=0\r\no=- 0 0 IN IP4 127.0.0.1\r\n","custom":[1,2,3]}`)
	sendJSON(t, a, map[string]any{
		"event":  "signal",
		"roomId": room,
		"data":   payload,
		"from":   aID,
	})

	got := expectEvent(t, b, "signal")
	if string(got.Data) != string(payload) {
		t.Fatalf("payload modified in transit:\ngot  %s\nwant %s", got.Data, payload)
	}
	if got.From != aID {
		t.Fatalf("got from %q, want %q", got.From, aID)
	}

	// The sender must not hear its own signal.
	expectNoEvent(t, a)
}

func TestSignalMissingFieldsRejected(t *testing.T) {
	env := newTestEnv(t, Config{})
	a, b, aID, _, room := pair(t, env)

	sendJSON(t, a, map[string]any{
		"event": "signal",
		"data":  json.RawMessage(`{"type":"offer"}`),
		"from":  aID,
	})
	ev := expectEvent(t, a, "error")
	if ev.Message != "Invalid signal data" {
		t.Fatalf("got error message %q, want Invalid signal data", ev.Message)
	}

	sendJSON(t, a, map[string]any{
		"event":  "signal",
		"roomId": room,
		"data":   json.RawMessage(`{"type":"offer"}`),
	})
	ev = expectEvent(t, a, "error")
	if ev.Message != "Invalid signal data" {
		t.Fatalf("got error message %q, want Invalid signal data", ev.Message)
	}

	expectNoEvent(t, b)
}

func TestSignalToUnknownRoomGoesNowhere(t *testing.T) {
	env := newTestEnv(t, Config{})
	a, b, aID, _, _ := pair(t, env)

	sendJSON(t, a, map[string]any{
		"event":  "signal",
		"roomId": "chat-room-99",
		"data":   json.RawMessage(`{}`),
		"from":   aID,
	})

	expectNoEvent(t, b)
	expectNoEvent(t, a)
}

func TestNextPartnerReassigns(t *testing.T) {
	env := newTestEnv(t, Config{})
	a, b, aID, _, _ := pair(t, env)

	sendJSON(t, a, map[string]any{"event": "next-partner"})

	left := expectEvent(t, b, "peer-disconnected")
	if left.UserID != aID {
		t.Fatalf("got departed user %q, want %q", left.UserID, aID)
	}
	if left.Reason != "User requested a new partner" {
		t.Fatalf("got reason %q", left.Reason)
	}

	rejoined := expectEvent(t, a, "joined-room")
	if rejoined.RoomID != "chat-room-2" {
		t.Fatalf("requester re-landed in %q, want chat-room-2", rejoined.RoomID)
	}
	if !rejoined.Initiator || rejoined.NumClients != 1 {
		t.Fatalf("requester: got initiator=%v numClients=%d, want true/1", rejoined.Initiator, rejoined.NumClients)
	}
}

func TestCloseReasonReachesPartner(t *testing.T) {
	env := newTestEnv(t, Config{})
	a, b, _, bID, _ := pair(t, env)

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done chatting")
	if err := b.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil {
		t.Fatalf("send close: %v", err)
	}

	ev := expectEvent(t, a, "peer-disconnected")
	if ev.UserID != bID {
		t.Fatalf("got departed user %q, want %q", ev.UserID, bID)
	}
	if ev.Reason != "done chatting" {
		t.Fatalf("got reason %q, want the close frame text", ev.Reason)
	}
}

func TestProtocolNoiseIsIgnored(t *testing.T) {
	env := newTestEnv(t, Config{})

	a := env.dial(t)
	expectEvent(t, a, "joined-room")

	if err := a.WriteMessage(websocket.BinaryMessage, []byte{0xde, 0xad}); err != nil {
		t.Fatalf("write binary frame: %v", err)
	}
	if err := a.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write malformed frame: %v", err)
	}
	sendJSON(t, a, map[string]any{"event": "time-travel"})
	sendJSON(t, a, map[string]any{"event": "error", "message": "camera permission denied"})

	// The connection must survive all of the above.
	sendJSON(t, a, map[string]any{"event": "next-partner"})
	rejoined := expectEvent(t, a, "joined-room")
	if rejoined.RoomID != "chat-room-2" {
		t.Fatalf("got room %q, want chat-room-2", rejoined.RoomID)
	}
}

func TestRateLimitClosesConnection(t *testing.T) {
	env := newTestEnv(t, Config{MaxMessagesPerSecond: 2})

	a := env.dial(t)
	expectEvent(t, a, "joined-room")

	for i := 0; i < 3; i++ {
		sendJSON(t, a, map[string]any{"event": "noop"})
	}

	_ = a.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := a.ReadMessage()
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) {
		t.Fatalf("got err %v, want a close error", err)
	}
	if closeErr.Code != websocket.ClosePolicyViolation {
		t.Fatalf("got close code %d, want %d", closeErr.Code, websocket.ClosePolicyViolation)
	}
	if closeErr.Text != "rate limit exceeded" {
		t.Fatalf("got close text %q", closeErr.Text)
	}
}

func TestSilentClientIsDropped(t *testing.T) {
	env := newTestEnv(t, Config{
		PingInterval: 100 * time.Millisecond,
		IdleTimeout:  300 * time.Millisecond,
	})
	a, _, _, bID, _ := pair(t, env)

	// b stops reading, so it never pongs. a keeps reading and therefore
	// answers pings via the dialer's default ping handler.
	ev := expectEvent(t, a, "peer-disconnected")
	if ev.UserID != bID {
		t.Fatalf("got departed user %q, want %q", ev.UserID, bID)
	}
	if ev.Reason != "ping timeout" {
		t.Fatalf("got reason %q, want ping timeout", ev.Reason)
	}
}
