// Package logbuffer implements the central in-memory log store: a bounded
// ring of log lines with monotonically increasing line numbers and
// synchronous listener fan-out.
//
// Typical use:
//
//	buf := logbuffer.NewBuffer(5000)
//	buf.AddListener(spool)
//	line := buf.AddEvent(logbuffer.NewEvent(logbuffer.LevelBasic, chID, "job", "started"))
//
//	// everything after the caller's last seen line, for one channel
//	lines := buf.LinesRange(logbuffer.Query{From: lastSeen, ChannelIDs: []string{chID}})
//
// Line numbers start at 1 and are never reused, including across Clear and
// evictions, so "tail from line N" requests stay valid.
package logbuffer
