package logbuffer

import (
	"bufio"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// JSONLSpool appends every event it is notified of to a JSON-lines file so
// the buffer can be primed again after a restart. With a size limit the file
// is rotated to RotatedPath once it reaches the limit, replacing the previous
// segment, so at most two segments stay on disk.
type JSONLSpool struct {
	path     string
	logger   *slog.Logger
	maxBytes int64

	mu   sync.Mutex
	f    *os.File
	size int64
}

// SpoolOption configures a JSONLSpool.
type SpoolOption func(*JSONLSpool)

// WithMaxBytes rotates the spool file once it holds n bytes. Zero or less
// disables rotation.
func WithMaxBytes(n int64) SpoolOption {
	return func(s *JSONLSpool) { s.maxBytes = n }
}

// RotatedPath names the previous spool segment.
func RotatedPath(path string) string { return path + ".1" }

func NewJSONLSpool(path string, logger *slog.Logger, opts ...SpoolOption) (*JSONLSpool, error) {
	if path == "" {
		return nil, errors.New("spool path required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	s := &JSONLSpool{path: path, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.open(); err != nil {
		return nil, err
	}
	return s, nil
}

// open (re)opens the active segment. Callers hold mu or own s exclusively.
func (s *JSONLSpool) open() error {
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}
	s.f = f
	s.size = st.Size()
	return nil
}

// rotate moves the active segment aside and starts a new one. Callers hold
// mu. A failed rename leaves the old file active; the next append retries.
func (s *JSONLSpool) rotate() error {
	closeErr := s.f.Close()
	s.f = nil
	renameErr := os.Rename(s.path, RotatedPath(s.path))
	if err := s.open(); err != nil {
		return err
	}
	if renameErr == nil {
		s.logger.Debug("spool rotated", "path", s.path)
	}
	return errors.Join(closeErr, renameErr)
}

func (s *JSONLSpool) Path() string { return s.path }

// EventAdded implements Listener. Write failures are logged and dropped.
func (s *JSONLSpool) EventAdded(line BufferLine) {
	if err := s.Append(line.Event); err != nil {
		s.logger.Warn("spool append failed", "path", s.path, "line_nr", line.Nr, "error", err)
	}
}

func (s *JSONLSpool) Append(ev Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return os.ErrClosed
	}
	n, err := s.f.Write(append(b, '\n'))
	s.size += int64(n)
	if err != nil {
		return err
	}
	if s.maxBytes > 0 && s.size >= s.maxBytes {
		return s.rotate()
	}
	return nil
}

func (s *JSONLSpool) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

// LoadTail reads the last max events from the spool file. A missing file
// yields no events. Malformed lines are skipped.
func (s *JSONLSpool) LoadTail(max int) ([]Event, error) {
	return LoadSpoolTail(s.path, max)
}

// LoadSpoolTail reads the last max events across the rotated and the active
// segment, oldest first.
func LoadSpoolTail(path string, max int) ([]Event, error) {
	if max <= 0 {
		return nil, nil
	}
	var all []Event
	for _, p := range []string{RotatedPath(path), path} {
		var err error
		if all, err = scanTail(p, max, all); err != nil {
			return nil, err
		}
	}
	return all, nil
}

// scanTail appends the events in path to all, keeping at most max.
func scanTail(path string, max int, all []Event) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return all, nil
		}
		return nil, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		var ev Event
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			continue
		}
		all = append(all, ev)
		if len(all) > max {
			copy(all, all[len(all)-max:])
			all = all[:max]
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return all, nil
}

// Restore adds evs to buf in order. The events get fresh line numbers.
func Restore(buf *Buffer, evs []Event) {
	for _, ev := range evs {
		buf.AddEvent(ev)
	}
}
