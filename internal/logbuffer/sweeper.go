package logbuffer

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper periodically removes lines older than MaxAge from a buffer.
type Sweeper struct {
	Buffer   *Buffer
	MaxAge   time.Duration
	Interval time.Duration
	Logger   *slog.Logger

	now func() time.Time
}

// Sweep removes the expired lines once and returns how many were dropped.
func (s *Sweeper) Sweep() int {
	if s.MaxAge <= 0 {
		return 0
	}
	now := time.Now
	if s.now != nil {
		now = s.now
	}
	cutoff := now().Add(-s.MaxAge).UnixMilli()
	return s.Buffer.RemoveBefore(cutoff)
}

// Run sweeps every Interval until ctx is done. It returns immediately when
// MaxAge is not positive.
func (s *Sweeper) Run(ctx context.Context) error {
	if s.MaxAge <= 0 {
		return nil
	}
	interval := s.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if n := s.Sweep(); n > 0 {
				logger.Debug("swept expired log lines", "removed", n, "max_age", s.MaxAge)
			}
		}
	}
}
