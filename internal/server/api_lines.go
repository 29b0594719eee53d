package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/ericbosch/kettle-logbuffer/internal/logbuffer"
)

// eventRequest is the wire form of an event posted to /api/events. Level
// defaults to Basic and ts_ms to the time of receipt.
type eventRequest struct {
	Message   string           `json:"message"`
	Subject   string           `json:"subject"`
	ChannelID string           `json:"channel_id"`
	Level     *logbuffer.Level `json:"level"`
	TimeStamp int64            `json:"ts_ms"`
}

func (e eventRequest) event(now int64) logbuffer.Event {
	ev := logbuffer.Event{
		Message:   e.Message,
		Subject:   e.Subject,
		ChannelID: e.ChannelID,
		Level:     logbuffer.LevelBasic,
		TimeStamp: e.TimeStamp,
	}
	if e.Level != nil {
		ev.Level = *e.Level
	}
	if ev.TimeStamp == 0 {
		ev.TimeStamp = now
	}
	return ev
}

func (s *Server) handleBufferStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"size":         s.buf.Size(),
		"capacity":     s.buf.Capacity(),
		"last_line_nr": s.buf.LastLineNr(),
		"listeners":    s.buf.Listeners(),
	})
}

func (s *Server) handleAddEvents(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if err := jsonDecode(w, r, &raw); err != nil {
		writeAPIError(w, http.StatusBadRequest, "bad_request", "invalid JSON body", err.Error())
		return
	}
	var reqs []eventRequest
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &reqs); err != nil {
			writeAPIError(w, http.StatusBadRequest, "bad_request", "invalid event array", err.Error())
			return
		}
	} else {
		var one eventRequest
		if err := json.Unmarshal(trimmed, &one); err != nil {
			writeAPIError(w, http.StatusBadRequest, "bad_request", "invalid event", err.Error())
			return
		}
		reqs = append(reqs, one)
	}

	now := logbuffer.NowMS()
	out := make([]logbuffer.BufferLine, 0, len(reqs))
	for _, req := range reqs {
		out = append(out, s.buf.AddEvent(req.event(now)))
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleLines(w http.ResponseWriter, r *http.Request) {
	q, err := parseLineQuery(r.URL.Query())
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, "invalid_query", err.Error(), "")
		return
	}
	lines := s.buf.LinesRange(q)
	if lines == nil {
		lines = []logbuffer.BufferLine{}
	}
	writeJSON(w, http.StatusOK, lines)
}

func (s *Server) handleLogText(w http.ResponseWriter, r *http.Request) {
	q, err := parseLineQuery(r.URL.Query())
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, "invalid_query", err.Error(), "")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(s.buf.Text(q, s.layout)))
}

// handleRemoveLines clears the buffer, or with ?before=<ts_ms> drops older
// lines, or with ?general=true drops general-channel lines.
func (s *Server) handleRemoveLines(w http.ResponseWriter, r *http.Request) {
	v := r.URL.Query()
	var removed int
	switch {
	case v.Get("before") != "":
		ts, err := strconv.ParseInt(v.Get("before"), 10, 64)
		if err != nil {
			writeAPIError(w, http.StatusBadRequest, "invalid_query", "before must be a millisecond timestamp", "")
			return
		}
		removed = s.buf.RemoveBefore(ts)
	case isTrue(v.Get("general")):
		removed = s.buf.RemoveGeneral()
	default:
		removed = s.buf.Clear()
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
}

func (s *Server) handleRemoveChannel(w http.ResponseWriter, r *http.Request) {
	removed := s.buf.RemoveChannel(r.PathValue("id"))
	writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
}

// parseLineQuery reads from, to, channel, general, before, level and filter.
func parseLineQuery(v url.Values) (logbuffer.Query, error) {
	var q logbuffer.Query
	var err error
	if q.From, err = parseUint(v, "from"); err != nil {
		return q, err
	}
	if q.To, err = parseUint(v, "to"); err != nil {
		return q, err
	}
	for _, id := range strings.Split(v.Get("channel"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			q.ChannelIDs = append(q.ChannelIDs, id)
		}
	}
	q.IncludeGeneral = isTrue(v.Get("general"))

	var preds []logbuffer.Predicate
	if raw := v.Get("before"); raw != "" {
		ts, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return q, fmt.Errorf("before: %w", err)
		}
		preds = append(preds, func(l logbuffer.BufferLine) bool { return l.Event.TimeStamp < ts })
	}
	if raw := v.Get("level"); raw != "" {
		lvl, err := logbuffer.ParseLevel(raw)
		if err != nil {
			return q, err
		}
		preds = append(preds, logbuffer.VisibleAt(lvl))
	}
	filter, err := logbuffer.CompileFilter(v.Get("filter"))
	if err != nil {
		return q, err
	}
	q.Match = logbuffer.And(append(preds, filter)...)
	return q, nil
}

func parseUint(v url.Values, key string) (uint64, error) {
	raw := v.Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func isTrue(s string) bool {
	b, _ := strconv.ParseBool(s)
	return b
}
