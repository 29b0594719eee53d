package logbuffer

import (
	"iter"
	"log/slog"
	"sync"
)

// Buffer is a bounded, thread-safe store of log lines. Once it holds
// Capacity lines every insert evicts the oldest one. A capacity of zero or
// less means the buffer never evicts.
//
// Line storage and the line counter share one lock; listeners live in a
// separately synchronised set and are called with no lock held.
type Buffer struct {
	mu     sync.RWMutex
	max    int
	buf    []BufferLine // len(buf) == number of stored lines
	start  int          // index of the oldest line; non-zero only while full
	lastNr uint64

	listeners listenerSet
	logger    *slog.Logger
	metrics   MetricsHook
}

// Option configures a Buffer.
type Option func(*Buffer)

// WithLogger sets the logger used to report misbehaving listeners. It must
// not write back into the same buffer.
func WithLogger(l *slog.Logger) Option {
	return func(b *Buffer) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithMetrics installs a metrics hook.
func WithMetrics(m MetricsHook) Option {
	return func(b *Buffer) {
		if m != nil {
			b.metrics = m
		}
	}
}

func NewBuffer(maxLines int, opts ...Option) *Buffer {
	if maxLines < 0 {
		maxLines = 0
	}
	b := &Buffer{
		max:     maxLines,
		logger:  slog.Default(),
		metrics: NoopMetrics{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// AddEvent stores ev under the next line number, evicts the oldest line if
// the buffer is over capacity, then notifies every registered listener.
func (b *Buffer) AddEvent(ev Event) BufferLine {
	line := b.store(ev)
	for _, l := range b.listeners.load() {
		b.deliver(l, line)
	}
	return line
}

// store assigns the line number and inserts. The size is published while
// mu is held so a racing Clear cannot be overwritten by a stale value.
func (b *Buffer) store(ev Event) BufferLine {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastNr++
	line := BufferLine{Nr: b.lastNr, Event: ev}

	evicted := 0
	if b.max <= 0 || len(b.buf) < b.max {
		b.buf = append(b.buf, line)
	} else {
		b.buf[b.start] = line
		b.start = (b.start + 1) % b.max
		evicted = 1
	}
	b.metrics.ObserveAdd(len(b.buf), evicted)
	return line
}

func (b *Buffer) deliver(l Listener, line BufferLine) {
	defer func() {
		if r := recover(); r != nil {
			b.metrics.ObserveListenerPanic()
			b.logger.Error("log listener panicked", "line_nr", line.Nr, "panic", r)
		}
	}()
	l.EventAdded(line)
}

// AddListener registers l. It returns false if l is nil, already
// registered, or of a type that cannot be compared with ==; such a listener
// could never be removed. Wrap plain funcs with ListenerFunc.
func (b *Buffer) AddListener(l Listener) bool {
	added := b.listeners.add(l)
	if added {
		b.metrics.ObserveListeners(len(b.listeners.load()))
	}
	return added
}

// RemoveListener unregisters l and reports whether it was registered.
func (b *Buffer) RemoveListener(l Listener) bool {
	removed := b.listeners.remove(l)
	if removed {
		b.metrics.ObserveListeners(len(b.listeners.load()))
	}
	return removed
}

// Listeners returns the number of registered listeners.
func (b *Buffer) Listeners() int {
	return len(b.listeners.load())
}

// Snapshot returns a copy of the stored lines, oldest first.
func (b *Buffer) Snapshot() []BufferLine {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.collect(nil)
}

// Iterator returns a sequence over the lines stored at the time of the call.
// Ranging over it more than once yields the same lines.
func (b *Buffer) Iterator() iter.Seq[BufferLine] {
	lines := b.Snapshot()
	return func(yield func(BufferLine) bool) {
		for _, line := range lines {
			if !yield(line) {
				return
			}
		}
	}
}

// LinesBefore returns the stored lines whose timestamp is strictly less
// than ts, oldest first.
func (b *Buffer) LinesBefore(ts int64) []BufferLine {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.collect(func(line BufferLine) bool {
		return line.Event.TimeStamp < ts
	})
}

// Clear removes every stored line and returns how many there were. The line
// counter keeps counting and listeners stay registered.
func (b *Buffer) Clear() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	removed := len(b.buf)
	b.buf = nil
	b.start = 0
	b.metrics.ObserveRemove(removed, 0)
	return removed
}

func (b *Buffer) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.buf)
}

// Capacity returns the configured maximum number of lines; zero means
// unbounded.
func (b *Buffer) Capacity() int {
	return b.max
}

// LastLineNr returns the number assigned to the most recent line, or zero
// if nothing was ever added.
func (b *Buffer) LastLineNr() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastNr
}

// collect copies matching lines in order. Callers hold mu.
func (b *Buffer) collect(match func(BufferLine) bool) []BufferLine {
	n := len(b.buf)
	if n == 0 {
		return nil
	}
	out := make([]BufferLine, 0, n)
	for i := 0; i < n; i++ {
		line := b.buf[(b.start+i)%n]
		if match == nil || match(line) {
			out = append(out, line)
		}
	}
	return out
}

// retain drops every line for which keep returns false and compacts the
// storage. It returns the number of lines dropped.
func (b *Buffer) retain(keep func(BufferLine) bool) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	before := len(b.buf)
	b.buf = b.collect(keep)
	b.start = 0

	removed := before - len(b.buf)
	if removed > 0 {
		b.metrics.ObserveRemove(removed, len(b.buf))
	}
	return removed
}
