package logbuffer

import (
	"reflect"
	"sync"
	"sync/atomic"
)

// Listener is notified synchronously, in the adding goroutine, of every
// line stored after it was registered.
type Listener interface {
	EventAdded(line BufferLine)
}

type funcListener struct {
	fn func(BufferLine)
}

func (f *funcListener) EventAdded(line BufferLine) { f.fn(line) }

// ListenerFunc adapts fn to a Listener. Each call returns a distinct
// listener, so keep the result around to remove it later.
func ListenerFunc(fn func(BufferLine)) Listener {
	return &funcListener{fn: fn}
}

// listenerSet is a copy-on-write list of listeners. Writers serialise on mu;
// readers load the current slice without locking.
type listenerSet struct {
	mu   sync.Mutex
	list atomic.Pointer[[]Listener]
}

func (s *listenerSet) load() []Listener {
	p := s.list.Load()
	if p == nil {
		return nil
	}
	return *p
}

func (s *listenerSet) add(l Listener) bool {
	if !isComparable(l) {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.load()
	if indexOf(cur, l) >= 0 {
		return false
	}
	next := make([]Listener, len(cur), len(cur)+1)
	copy(next, cur)
	next = append(next, l)
	s.list.Store(&next)
	return true
}

func (s *listenerSet) remove(l Listener) bool {
	if !isComparable(l) {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.load()
	i := indexOf(cur, l)
	if i < 0 {
		return false
	}
	next := make([]Listener, 0, len(cur)-1)
	next = append(next, cur[:i]...)
	next = append(next, cur[i+1:]...)
	s.list.Store(&next)
	return true
}

// isComparable reports whether l can be compared with ==. Types like func
// adapters or structs with slice fields cannot, and neither can a struct
// whose interface field holds such a value; that case only shows up as a
// runtime panic.
func isComparable(l Listener) (ok bool) {
	if l == nil || !reflect.TypeOf(l).Comparable() {
		return false
	}
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return l == l
}

// indexOf compares by identity. Every stored listener passed isComparable, and
// so did l.
func indexOf(list []Listener, l Listener) int {
	for i, cur := range list {
		if cur == l {
			return i
		}
	}
	return -1
}
