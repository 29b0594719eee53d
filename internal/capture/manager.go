package capture

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/ericbosch/kettle-logbuffer/internal/logbuffer"
)

// Manager starts and tracks captures writing into one buffer.
type Manager struct {
	buf    *logbuffer.Buffer
	logDir string
	logger *slog.Logger

	// OnStart, if set, is called after each successful start.
	OnStart func()

	mu       sync.RWMutex
	captures map[string]*Capture
	lastID   atomic.Uint64
}

// NewManager creates a capture manager. An empty logDir disables raw
// output files.
func NewManager(buf *logbuffer.Buffer, logDir string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		buf:      buf,
		logDir:   logDir,
		logger:   logger,
		captures: make(map[string]*Capture),
	}
}

// Create starts a capture. A missing name or channel is generated.
func (m *Manager) Create(ctx context.Context, spec Spec) (*Capture, error) {
	id := idString(m.lastID.Add(1))
	if spec.Name == "" {
		spec.Name = "capture-" + id
	}
	if spec.Channel == "" {
		spec.Channel = uuid.NewString()
	}
	// The process outlives the request that created it.
	c, err := Start(context.WithoutCancel(ctx), id, spec, m.buf, m.logDir, m.logger)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.captures[id] = c
	m.mu.Unlock()
	if m.OnStart != nil {
		m.OnStart()
	}
	m.logger.Info("capture started", "capture_id", id, "command", spec.Command, "channel", spec.Channel)
	go c.Run()
	return c, nil
}

// Get returns a capture by ID or nil.
func (m *Manager) Get(id string) *Capture {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.captures[id]
}

// List returns all captures ordered by creation.
func (m *Manager) List() []*Capture {
	m.mu.RLock()
	out := make([]*Capture, 0, len(m.captures))
	for _, c := range m.captures {
		out = append(out, c)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].Created.Before(out[j].Created)
	})
	return out
}

// Terminate stops a capture and forgets it. Its lines stay in the buffer.
func (m *Manager) Terminate(id string) error {
	m.mu.Lock()
	c := m.captures[id]
	delete(m.captures, id)
	m.mu.Unlock()
	if c == nil {
		return ErrNotFound
	}
	return c.Terminate()
}

// Shutdown terminates every capture.
func (m *Manager) Shutdown() {
	for _, c := range m.List() {
		_ = m.Terminate(c.ID)
	}
}

func idString(n uint64) string {
	return strconv.FormatUint(n, 36)
}
