package logbuffer

// MetricsHook observes buffer activity. Implementations must be safe for
// concurrent use and must not call back into the buffer: ObserveAdd and
// ObserveRemove run with the buffer lock held, so the size they report is
// never stale.
type MetricsHook interface {
	ObserveAdd(size int, evicted int)
	ObserveRemove(removed int, size int)
	ObserveListenerPanic()
	ObserveListeners(n int)
}

// NoopMetrics is used when no hook is configured.
type NoopMetrics struct{}

func (NoopMetrics) ObserveAdd(int, int)    {}
func (NoopMetrics) ObserveRemove(int, int) {}
func (NoopMetrics) ObserveListenerPanic()  {}
func (NoopMetrics) ObserveListeners(int)   {}
