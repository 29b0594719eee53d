package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/ericbosch/kettle-logbuffer/internal/logbuffer"
	"github.com/ericbosch/kettle-logbuffer/internal/tailview"
)

type apiErrorEnvelope struct {
	Error *struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		Hint      string `json:"hint"`
		RequestID string `json:"request_id"`
	} `json:"error"`
}

type wsTicketResp struct {
	Ticket string `json:"ticket"`
}

type tailMsg struct {
	Type   string                `json:"type"`
	Line   *logbuffer.BufferLine `json:"line,omitempty"`
	State  string                `json:"state,omitempty"`
	Count  int64                 `json:"count,omitempty"`
	LastNr uint64                `json:"last_nr,omitempty"`
}

// errUnauthorized ends the tail instead of reconnecting.
var errUnauthorized = errors.New("unauthorized")

type tailOptions struct {
	Base     string
	Token    string
	LastN    int
	FromLine uint64
	Channels string
	General  bool
	Level    string
	Filter   string
	Follow   bool
	Timeout  time.Duration
}

type tailer struct {
	opts      tailOptions
	render    tailview.Renderer
	stderr    io.Writer
	client    *http.Client
	lines     lineTracker
	reconnect *rate.Limiter
}

func newTailer(opts tailOptions, render tailview.Renderer, stderr io.Writer) *tailer {
	return &tailer{
		opts:      opts,
		render:    render,
		stderr:    stderr,
		client:    &http.Client{Timeout: opts.Timeout},
		reconnect: rate.NewLimiter(rate.Every(2*time.Second), 1),
	}
}

// run tails until ctx ends. With Follow set a dropped connection is retried
// from the last replay cutoff; lines already shown are skipped.
func (t *tailer) run(ctx context.Context) error {
	for {
		err := t.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil || errors.Is(err, errUnauthorized) || !t.opts.Follow {
			return err
		}
		fmt.Fprintf(t.stderr, "tail: %s; reconnecting\n", scrubErr(err.Error()))
		if err := t.reconnect.Wait(ctx); err != nil {
			return nil
		}
	}
}

func (t *tailer) session(ctx context.Context) error {
	ticket, err := t.issueTicket(ctx)
	if err != nil {
		return fmt.Errorf("issue ticket: %w", err)
	}
	wsURL, err := t.tailURL(ticket)
	if err != nil {
		return err
	}

	d := websocket.Dialer{
		HandshakeTimeout: t.opts.Timeout,
		Proxy:            http.ProxyFromEnvironment,
		TLSClientConfig:  &tls.Config{MinVersion: tls.VersionTLS12},
	}
	conn, _, err := d.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		var m tailMsg
		if err := conn.ReadJSON(&m); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return err
		}
		if done, err := t.handle(m); done || err != nil {
			return err
		}
	}
}

// handle processes one frame and reports whether the session is finished.
// Live lines can arrive out of number order.
func (t *tailer) handle(m tailMsg) (done bool, err error) {
	switch m.Type {
	case "line":
		if m.Line == nil || !t.lines.show(m.Line.Nr) {
			return false, nil
		}
		return false, t.render.Render(*m.Line)
	case "dropped":
		fmt.Fprintf(t.stderr, "tail: %d lines dropped, client too slow\n", m.Count)
	case "status":
		t.lines.replayed(m.LastNr)
		return !t.opts.Follow, nil
	}
	return false, nil
}

func (t *tailer) tailURL(ticket string) (string, error) {
	u, err := url.Parse(strings.TrimRight(t.opts.Base, "/") + "/ws/tail")
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	q := url.Values{}
	q.Set("ticket", ticket)
	from, resuming := t.lines.resume()
	switch {
	case resuming:
		q.Set("from_line", strconv.FormatUint(max(from, t.opts.FromLine), 10))
	case t.opts.FromLine > 0:
		q.Set("from_line", strconv.FormatUint(t.opts.FromLine, 10))
	default:
		q.Set("last_n", strconv.Itoa(t.opts.LastN))
	}
	if t.opts.Channels != "" {
		q.Set("channel", t.opts.Channels)
	}
	if t.opts.General {
		q.Set("general", "true")
	}
	if t.opts.Level != "" {
		q.Set("level", t.opts.Level)
	}
	if t.opts.Filter != "" {
		q.Set("filter", t.opts.Filter)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (t *tailer) issueTicket(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(t.opts.Base, "/")+"/api/ws-ticket", strings.NewReader("{}"))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.opts.Token)

	res, err := t.client.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if res.StatusCode == http.StatusUnauthorized {
		return "", fmt.Errorf("%w: %s", errUnauthorized, summarizeAPIError(raw))
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return "", fmt.Errorf("http %d: %s", res.StatusCode, summarizeAPIError(raw))
	}
	var out wsTicketResp
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.Ticket) == "" {
		return "", fmt.Errorf("missing ticket")
	}
	return strings.TrimSpace(out.Ticket), nil
}

func summarizeAPIError(raw []byte) string {
	var env apiErrorEnvelope
	if err := json.Unmarshal(raw, &env); err == nil && env.Error != nil {
		parts := []string{}
		if env.Error.Code != "" {
			parts = append(parts, env.Error.Code)
		}
		if env.Error.Message != "" {
			parts = append(parts, env.Error.Message)
		}
		if env.Error.Hint != "" {
			parts = append(parts, "hint: "+env.Error.Hint)
		}
		if len(parts) > 0 {
			return strings.Join(parts, " · ")
		}
	}
	s := strings.TrimSpace(string(raw))
	if s == "" {
		return "(empty body)"
	}
	if len(s) > 200 {
		s = s[:200] + "…"
	}
	return s
}

// scrubErr keeps tickets out of printed errors; dial errors embed the URL.
func scrubErr(s string) string {
	const needle = "ticket="
	var out strings.Builder
	for {
		i := strings.Index(s, needle)
		if i < 0 {
			out.WriteString(s)
			return out.String()
		}
		j := i + len(needle)
		k := j
		for k < len(s) && s[k] != '&' && s[k] != ' ' && s[k] != '"' && s[k] != '\n' {
			k++
		}
		out.WriteString(s[:j])
		out.WriteString("REDACTED")
		s = s[k:]
	}
}
