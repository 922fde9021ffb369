package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// envelope is the parsed WS message structure.
type envelope struct {
	Channel    string          `json:"channel"`
	Data       json.RawMessage `json:"data"`
	TS         string          `json:"ts"`
	Seq        int64           `json:"seq"`
	ChannelSeq int64           `json:"channel_seq"`
}

func TestBuildEnvelope(t *testing.T) {
	data := []byte(`{"ticker":"AAPL","decision":{"call":"Buy"}}`)
	now := time.Date(2026, 10, 19, 14, 0, 1, 0, time.UTC)

	buf := buildEnvelope(AdviceChannel("AAPL"), data, now, 42, 7)

	var env envelope
	if err := json.Unmarshal(buf, &env); err != nil {
		t.Fatalf("envelope is not valid JSON: %v\nraw: %s", err, buf)
	}
	if env.Channel != "pub:advice:AAPL" || env.Seq != 42 || env.ChannelSeq != 7 {
		t.Errorf("envelope %+v", env)
	}
	if env.TS != "2026-10-19T14:00:01Z" {
		t.Errorf("ts = %q", env.TS)
	}
	if string(env.Data) != string(data) {
		t.Errorf("data = %s", env.Data)
	}
}

func TestBroadcast_SequencesAndReplay(t *testing.T) {
	hub := NewHub(nil)
	for i := 0; i < 3; i++ {
		hub.Publish(CycleChannel, map[string]int{"n": i})
	}
	hub.Publish(AdviceChannel("AAPL"), map[string]string{"call": "Hold"})

	if got := hub.GetChannelSeq(CycleChannel); got != 3 {
		t.Fatalf("cycle seq = %d, want 3", got)
	}
	if got := hub.GetChannelSeq(AdviceChannel("AAPL")); got != 1 {
		t.Fatalf("advice seq = %d, want 1", got)
	}
	replay := hub.GetReplayRange(CycleChannel, 2, 3)
	if len(replay) != 2 {
		t.Fatalf("replay len = %d, want 2", len(replay))
	}
	var env envelope
	json.Unmarshal(replay[1], &env)
	if env.ChannelSeq != 3 || string(env.Data) != `{"n":2}` {
		t.Errorf("last replay %+v", env)
	}
	if string(hub.GetLatestAll()[CycleChannel]) != `{"n":2}` {
		t.Errorf("latest = %s", hub.GetLatestAll()[CycleChannel])
	}
}

func TestClient_MatchesChannel(t *testing.T) {
	c := &Client{tickers: map[string]bool{}}
	if !c.matchesChannel(AdviceChannel("MSFT")) {
		t.Error("no filter should match every ticker")
	}
	c.tickers["AAPL"] = true
	if c.matchesChannel(AdviceChannel("MSFT")) {
		t.Error("MSFT should be filtered out")
	}
	if !c.matchesChannel(AdviceChannel("aapl")) {
		t.Error("ticker match should ignore case")
	}
	if !c.matchesChannel(CycleChannel) {
		t.Error("cycle channel always matches")
	}
}

func dialStream(t *testing.T, hub *Hub) (*websocket.Conn, func()) {
	t.Helper()
	mux := http.NewServeMux()
	RegisterRoutes(mux, hub)
	srv := httptest.NewServer(mux)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("dial: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	return conn, func() { conn.Close(); srv.Close() }
}

func readJSON(t *testing.T, conn *websocket.Conn, v interface{}) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := json.Unmarshal(msg, v); err != nil {
		t.Fatalf("decode %s: %v", msg, err)
	}
}

func TestStream_SubscribeFiltersAdvice(t *testing.T) {
	hub := NewHub(nil)
	hub.Publish(AdviceChannel("AAPL"), map[string]string{"call": "Buy"})
	hub.Publish(AdviceChannel("MSFT"), map[string]string{"call": "Sell"})

	conn, done := dialStream(t, hub)
	defer done()

	// Initial state: both channels, in any order.
	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		var env envelope
		readJSON(t, conn, &env)
		seen[env.Channel] = true
	}
	if !seen[AdviceChannel("AAPL")] || !seen[AdviceChannel("MSFT")] {
		t.Fatalf("initial state %v", seen)
	}

	conn.WriteJSON(SubscribeMsg{Type: "SUBSCRIBE", ReqID: "r1", Tickers: []string{"AAPL"}})
	var snap SnapshotMsg
	readJSON(t, conn, &snap)
	if snap.Type != "SNAPSHOT" || snap.ReqID != "r1" || len(snap.Latest) != 1 {
		t.Fatalf("snapshot %+v", snap)
	}
	if _, ok := snap.Latest[AdviceChannel("AAPL")]; !ok {
		t.Fatalf("snapshot missing AAPL: %+v", snap)
	}

	hub.Publish(AdviceChannel("MSFT"), map[string]string{"call": "Hold"})
	hub.Publish(AdviceChannel("AAPL"), map[string]string{"call": "Strong Buy"})
	var env envelope
	readJSON(t, conn, &env)
	if env.Channel != AdviceChannel("AAPL") || string(env.Data) != `{"call":"Strong Buy"}` {
		t.Fatalf("expected filtered AAPL update, got %+v", env)
	}
}

func TestStream_PingAndUnknown(t *testing.T) {
	hub := NewHub(nil)
	conn, done := dialStream(t, hub)
	defer done()

	conn.WriteJSON(map[string]int64{"ping": 99})
	var pong struct {
		Type string `json:"type"`
		Ping int64  `json:"ping"`
	}
	readJSON(t, conn, &pong)
	if pong.Type != "pong" || pong.Ping != 99 {
		t.Fatalf("pong %+v", pong)
	}

	conn.WriteJSON(map[string]string{"type": "EXPLODE"})
	var e ErrorMsg
	readJSON(t, conn, &e)
	if e.Type != "ERROR" {
		t.Fatalf("error msg %+v", e)
	}
}

func TestMissedEndpoint(t *testing.T) {
	hub := NewHub(nil)
	for i := 0; i < 5; i++ {
		hub.Publish(CycleChannel, map[string]int{"n": i})
	}
	mux := http.NewServeMux()
	RegisterRoutes(mux, hub)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stream/missed?channel=pub:cycle&from=4&to=5", nil))
	var body struct {
		CurrentSeq int64             `json:"current_seq"`
		Envelopes  []json.RawMessage `json:"envelopes"`
	}
	json.NewDecoder(rec.Body).Decode(&body)
	if rec.Code != http.StatusOK || body.CurrentSeq != 5 || len(body.Envelopes) != 2 {
		t.Fatalf("missed: %d %+v", rec.Code, body)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stream/missed?channel=pub:cycle", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestStatusEnvelope(t *testing.T) {
	hub := NewHub(nil)
	var st struct {
		Type         string `json:"type"`
		Clients      int    `json:"clients"`
		MarketStatus string `json:"marketStatus"`
	}
	json.Unmarshal(hub.statusEnvelope(time.Now()), &st)
	if st.Type != "status" || st.Clients != 0 || !strings.HasPrefix(st.MarketStatus, "NYSE") {
		t.Fatalf("status %+v", st)
	}
}
