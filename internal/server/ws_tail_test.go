package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ericbosch/kettle-logbuffer/internal/logbuffer"
)

func dialTail(t *testing.T, ts *httptest.Server, query string, header http.Header) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/tail?" + query
	conn, res, err := websocket.DefaultDialer.Dial(u, header)
	if err != nil {
		status := 0
		if res != nil {
			status = res.StatusCode
		}
		t.Fatalf("dial %s: %v (status %d)", query, err, status)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readTail(t *testing.T, conn *websocket.Conn) tailMsg {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var m tailMsg
	if err := conn.ReadJSON(&m); err != nil {
		t.Fatalf("read: %v", err)
	}
	return m
}

func bearer(tok string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+tok)
	return h
}

func addMsg(buf *logbuffer.Buffer, channel, msg string) logbuffer.BufferLine {
	return buf.AddEvent(logbuffer.NewEvent(logbuffer.LevelBasic, channel, "test", msg))
}

func TestWSTail_ReplayThenLive(t *testing.T) {
	s, buf := newTestServer(t, "t")
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	for _, m := range []string{"a", "b", "c"} {
		addMsg(buf, "job", m)
	}

	conn := dialTail(t, ts, "last_n=2", bearer("t"))

	for _, want := range []uint64{2, 3} {
		m := readTail(t, conn)
		if m.Type != "line" || m.Line == nil || m.Line.Nr != want {
			t.Fatalf("expected replay line %d, got %+v", want, m)
		}
	}
	if m := readTail(t, conn); m.Type != "status" || m.State != "live" || m.LastNr != 3 {
		t.Fatalf("expected live status, got %+v", m)
	}

	addMsg(buf, "job", "d")
	m := readTail(t, conn)
	if m.Type != "line" || m.Line.Nr != 4 || m.Line.Event.Message != "d" {
		t.Fatalf("expected live line 4, got %+v", m)
	}
}

func TestWSTail_FromLineAndFilters(t *testing.T) {
	s, buf := newTestServer(t, "t")
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	addMsg(buf, "job", "one")
	addMsg(buf, "other", "two")
	addMsg(buf, "job", "three")

	conn := dialTail(t, ts, "from_line=1&channel=job", bearer("t"))
	if m := readTail(t, conn); m.Type != "line" || m.Line.Nr != 3 {
		t.Fatalf("expected line 3, got %+v", m)
	}
	if m := readTail(t, conn); m.Type != "status" {
		t.Fatalf("expected status, got %+v", m)
	}

	addMsg(buf, "other", "skipped")
	addMsg(buf, "job", "kept")
	if m := readTail(t, conn); m.Type != "line" || m.Line.Event.Message != "kept" {
		t.Fatalf("expected filtered live line, got %+v", m)
	}
}

func TestWSTail_TicketAuth(t *testing.T) {
	s, buf := newTestServer(t, "t")
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()
	addMsg(buf, "", "hello")

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/ws-ticket", nil)
	req.Header.Set("Authorization", "Bearer t")
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	var body struct {
		Ticket string `json:"ticket"`
	}
	err = json.NewDecoder(res.Body).Decode(&body)
	res.Body.Close()
	if err != nil || body.Ticket == "" {
		t.Fatalf("ticket: %v %+v", err, body)
	}

	conn := dialTail(t, ts, "ticket="+body.Ticket, nil)
	if m := readTail(t, conn); m.Type != "line" || m.Line.Event.Message != "hello" {
		t.Fatalf("unexpected first message %+v", m)
	}

	// single use
	u := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/tail?ticket=" + body.Ticket
	_, res, err = websocket.DefaultDialer.Dial(u, nil)
	if err == nil {
		t.Fatal("expected reused ticket to be rejected")
	}
	if res == nil || res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 on reuse, got %v", res)
	}
}

func TestWSTail_ListenerRemovedOnDisconnect(t *testing.T) {
	s, buf := newTestServer(t, "t")
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	conn := dialTail(t, ts, "", bearer("t"))
	if m := readTail(t, conn); m.Type != "status" {
		t.Fatalf("expected status, got %+v", m)
	}
	if n := buf.Listeners(); n != 1 {
		t.Fatalf("listeners=%d", n)
	}
	conn.Close()

	deadline := time.Now().Add(5 * time.Second)
	for buf.Listeners() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("listener not removed, still %d", buf.Listeners())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWSTail_PingPong(t *testing.T) {
	s, _ := newTestServer(t, "t")
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	conn := dialTail(t, ts, "", bearer("t"))
	readTail(t, conn)
	if err := conn.WriteJSON(clientMsg{Type: "ping", TS: 42}); err != nil {
		t.Fatal(err)
	}
	if m := readTail(t, conn); m.Type != "pong" || m.TS != 42 {
		t.Fatalf("expected pong, got %+v", m)
	}
}

// holdListener blocks delivery of one line number until released.
type holdListener struct {
	nr       uint64
	entered  chan struct{}
	released chan struct{}
}

func (h *holdListener) EventAdded(line logbuffer.BufferLine) {
	if line.Nr == h.nr {
		close(h.entered)
		<-h.released
	}
}

func TestWSTail_LiveLinesOutOfOrder(t *testing.T) {
	s, buf := newTestServer(t, "t")
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	// Registered first, so it sees each line before the tail does.
	hold := &holdListener{nr: 1, entered: make(chan struct{}), released: make(chan struct{})}
	buf.AddListener(hold)

	conn := dialTail(t, ts, "", bearer("t"))
	if m := readTail(t, conn); m.Type != "status" {
		t.Fatalf("expected status, got %+v", m)
	}

	go addMsg(buf, "job", "first")
	<-hold.entered
	addMsg(buf, "job", "second")

	if m := readTail(t, conn); m.Type != "line" || m.Line.Nr != 2 {
		t.Fatalf("expected line 2 first, got %+v", m)
	}
	close(hold.released)
	if m := readTail(t, conn); m.Type != "line" || m.Line.Nr != 1 || m.Line.Event.Message != "first" {
		t.Fatalf("expected delayed line 1, got %+v", m)
	}
}

func TestWSTail_ReplaySkipsQueuedDuplicates(t *testing.T) {
	s, buf := newTestServer(t, "t")
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	addMsg(buf, "job", "a")
	addMsg(buf, "job", "b")

	conn := dialTail(t, ts, "last_n=1", bearer("t"))
	if m := readTail(t, conn); m.Type != "line" || m.Line.Nr != 2 {
		t.Fatalf("expected replay line 2, got %+v", m)
	}
	if m := readTail(t, conn); m.Type != "status" || m.LastNr != 2 {
		t.Fatalf("expected status with cutoff 2, got %+v", m)
	}
	addMsg(buf, "job", "c")
	if m := readTail(t, conn); m.Type != "line" || m.Line.Nr != 3 {
		t.Fatalf("expected live line 3, got %+v", m)
	}
}

func TestTailDrops_OnlyAboveCutoffCount(t *testing.T) {
	var d tailDrops
	// Held until the cutoff is known.
	for _, nr := range []uint64{3, 5, 6} {
		if d.add(nr) {
			t.Fatalf("drop %d counted before cutoff", nr)
		}
	}
	if n := d.setCutoff(5); n != 1 {
		t.Fatalf("held drops counted %d, want 1", n)
	}
	if d.add(4) {
		t.Fatal("drop at or below cutoff counted")
	}
	if !d.add(9) {
		t.Fatal("drop above cutoff not counted")
	}
	if n := d.take(); n != 2 {
		t.Fatalf("take=%d want 2", n)
	}
	if n := d.take(); n != 0 {
		t.Fatalf("take after reset=%d", n)
	}
}
