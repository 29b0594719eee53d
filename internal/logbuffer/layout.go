package logbuffer

import (
	"strings"
	"time"
)

const DefaultTimeFormat = "2006/01/02 15:04:05"

// Layout turns events into display text:
//
//	2024/05/01 12:00:00 - subject - message
//
// Error lines get "ERROR : " in front of the message. A multi-line message
// produces one prefixed output line per message line.
type Layout struct {
	TimeFormat string
	Location   *time.Location
	OmitTime   bool
}

func (l Layout) prefix(ev Event) string {
	var sb strings.Builder
	if !l.OmitTime {
		format := l.TimeFormat
		if format == "" {
			format = DefaultTimeFormat
		}
		loc := l.Location
		if loc == nil {
			loc = time.Local
		}
		sb.WriteString(time.UnixMilli(ev.TimeStamp).In(loc).Format(format))
		sb.WriteString(" - ")
	}
	if ev.Subject != "" {
		sb.WriteString(ev.Subject)
		sb.WriteString(" - ")
	}
	if ev.Level.IsError() {
		sb.WriteString("ERROR : ")
	}
	return sb.String()
}

// Format renders ev without a trailing newline.
func (l Layout) Format(ev Event) string {
	prefix := l.prefix(ev)
	msg := strings.ReplaceAll(ev.Message, "\r\n", "\n")
	parts := strings.Split(msg, "\n")
	for i, p := range parts {
		parts[i] = prefix + p
	}
	return strings.Join(parts, "\n")
}

// Text renders the lines selected by q, each followed by a newline.
func (b *Buffer) Text(q Query, layout Layout) string {
	var sb strings.Builder
	for _, line := range b.LinesRange(q) {
		sb.WriteString(layout.Format(line.Event))
		sb.WriteByte('\n')
	}
	return sb.String()
}
