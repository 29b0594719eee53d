package capture

import (
	"bytes"
	"strings"
)

const maxPendingLine = 64 * 1024

// lineWriter splits a byte stream into lines. Carriage returns are dropped;
// a line longer than maxPendingLine is emitted in pieces.
type lineWriter struct {
	pending []byte
	emit    func(string)
}

func (w *lineWriter) Write(p []byte) (int, error) {
	n := len(p)
	for len(p) > 0 {
		i := bytes.IndexByte(p, '\n')
		if i < 0 {
			w.pending = append(w.pending, p...)
			for len(w.pending) >= maxPendingLine {
				w.emitLine(w.pending[:maxPendingLine])
				w.pending = append(w.pending[:0], w.pending[maxPendingLine:]...)
			}
			break
		}
		w.pending = append(w.pending, p[:i]...)
		w.emitLine(w.pending)
		w.pending = w.pending[:0]
		p = p[i+1:]
	}
	return n, nil
}

// Flush emits a trailing partial line, if any.
func (w *lineWriter) Flush() {
	if len(w.pending) > 0 {
		w.emitLine(w.pending)
		w.pending = w.pending[:0]
	}
}

func (w *lineWriter) emitLine(b []byte) {
	w.emit(strings.TrimRight(string(b), "\r"))
}
