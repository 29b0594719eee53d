package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/ericbosch/kettle-logbuffer/internal/logbuffer"
)

const (
	tailQueueSize     = 1024
	tailDefaultReplay = 256
	tailWriteTimeout  = 10 * time.Second
	tailPingInterval  = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WS tail protocol: the server sends tailMsg frames. "line" frames carry a
// buffer line; "status" announces "live" once replay is done and carries
// the replay cutoff in last_nr; "dropped" reports lines lost because the
// client fell behind. Live lines may arrive out of number order. The client
// may send {"type":"ping"} and gets a "pong".
type tailMsg struct {
	Type   string                `json:"type"`
	Line   *logbuffer.BufferLine `json:"line,omitempty"`
	State  string                `json:"state,omitempty"`
	Count  int64                 `json:"count,omitempty"`
	LastNr uint64                `json:"last_nr,omitempty"`
	TS     int64                 `json:"ts,omitempty"`
}

type clientMsg struct {
	Type string `json:"type"`
	TS   int64  `json:"ts"`
}

type tailParams struct {
	query    logbuffer.Query
	fromLine uint64
	hasFrom  bool
	lastN    int
}

func parseTailParams(r *http.Request) (tailParams, error) {
	v := r.URL.Query()
	q, err := parseLineQuery(v)
	if err != nil {
		return tailParams{}, err
	}
	p := tailParams{query: q, lastN: tailDefaultReplay}
	if raw := v.Get("from_line"); raw != "" {
		if p.fromLine, err = strconv.ParseUint(raw, 10, 64); err != nil {
			return tailParams{}, err
		}
		p.hasFrom = true
	}
	if raw := v.Get("last_n"); raw != "" {
		if p.lastN, err = strconv.Atoi(raw); err != nil {
			return tailParams{}, err
		}
	}
	p.query.From = p.fromLine
	p.query.To = 0
	return p, nil
}

// replay returns the lines to send before going live: everything after
// from_line when given, else the last last_n matching lines. cutoff is the
// highest line number the snapshot accounts for; the snapshot is taken under
// the buffer lock, so every matching line at or below cutoff is either in
// lines or was deliberately trimmed.
func (p tailParams) replay(buf *logbuffer.Buffer) (lines []logbuffer.BufferLine, cutoff uint64) {
	lines = buf.LinesRange(p.query)
	cutoff = p.fromLine
	if len(lines) > 0 {
		cutoff = lines[len(lines)-1].Nr
	}
	if !p.hasFrom && p.lastN >= 0 && len(lines) > p.lastN {
		lines = lines[len(lines)-p.lastN:]
	}
	return lines, cutoff
}

// tailDrops counts lines the listener could not queue. Numbers dropped
// before the replay cutoff is known are held until it is; only lines above
// the cutoff count, the replay covers the rest.
type tailDrops struct {
	mu      sync.Mutex
	cutoff  uint64
	known   bool
	pending []uint64
	count   int64
}

// add records a dropped line and reports whether it counted.
func (d *tailDrops) add(nr uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.known {
		d.pending = append(d.pending, nr)
		return false
	}
	if nr <= d.cutoff {
		return false
	}
	d.count++
	return true
}

// setCutoff fixes the cutoff and returns how many held drops counted.
func (d *tailDrops) setCutoff(cutoff uint64) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cutoff = cutoff
	d.known = true
	n := 0
	for _, nr := range d.pending {
		if nr > cutoff {
			n++
		}
	}
	d.pending = nil
	d.count += int64(n)
	return n
}

func (d *tailDrops) take() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := d.count
	d.count = 0
	return n
}

func (s *Server) handleWSTail(w http.ResponseWriter, r *http.Request) {
	p, err := parseTailParams(r)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, "invalid_query", err.Error(), "")
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	s.runTail(r.Context(), conn, p)
}

func (s *Server) runTail(ctx context.Context, conn *websocket.Conn, p tailParams) {
	logger := s.logger.With("remote", conn.RemoteAddr().String())

	// Register before taking the replay snapshot so no line falls between
	// the two. Queued lines at or below the replay cutoff were in the
	// snapshot and are skipped. Listeners may see lines out of order when
	// producers race, so the cutoff never moves after replay.
	queue := make(chan logbuffer.BufferLine, tailQueueSize)
	var drops tailDrops
	countDropped := func(n int) {
		for ; s.metrics != nil && n > 0; n-- {
			s.metrics.TailDropped()
		}
	}
	listener := logbuffer.ListenerFunc(func(line logbuffer.BufferLine) {
		if !p.query.Matches(line) {
			return
		}
		select {
		case queue <- line:
		default:
			if drops.add(line.Nr) {
				countDropped(1)
			}
		}
	})
	s.buf.AddListener(listener)
	defer s.buf.RemoveListener(listener)

	write := func(m tailMsg) error {
		_ = conn.SetWriteDeadline(time.Now().Add(tailWriteTimeout))
		return conn.WriteJSON(m)
	}

	replay, cutoff := p.replay(s.buf)
	countDropped(drops.setCutoff(cutoff))
	for _, line := range replay {
		if err := write(tailMsg{Type: "line", Line: &line}); err != nil {
			return
		}
	}
	if err := write(tailMsg{Type: "status", State: "live", LastNr: cutoff}); err != nil {
		return
	}

	pongs := make(chan int64, 4)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var c clientMsg
			if err := json.Unmarshal(msg, &c); err != nil {
				continue
			}
			if c.Type == "ping" {
				select {
				case pongs <- c.TS:
				default:
				}
			}
		}
	}()

	pingTicker := time.NewTicker(tailPingInterval)
	defer pingTicker.Stop()
	dropLog := rate.Sometimes{Interval: 10 * time.Second}

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(time.Second))
			return
		case <-done:
			return
		case ts := <-pongs:
			if err := write(tailMsg{Type: "pong", TS: ts}); err != nil {
				return
			}
		case <-pingTicker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(tailWriteTimeout)); err != nil {
				return
			}
		case line := <-queue:
			if n := drops.take(); n > 0 {
				dropLog.Do(func() {
					logger.Warn("tail client too slow, lines dropped", slog.Int64("count", n))
				})
				if err := write(tailMsg{Type: "dropped", Count: n}); err != nil {
					return
				}
			}
			if line.Nr <= cutoff {
				continue
			}
			if err := write(tailMsg{Type: "line", Line: &line}); err != nil {
				return
			}
		}
	}
}
