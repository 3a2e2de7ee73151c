package broker

import "sync/atomic"

// Metrics tracks broker-wide counters: an interface with atomic-counter
// defaults so callers can swap in their own collector (e.g. a
// Prometheus-backed implementation) without the core depending on any
// particular exporter.
type Metrics interface {
	IncrementDatagramsReceived()
	IncrementDecodeErrors()
	IncrementSessionsStarted()
	IncrementSessionsEnded()
	IncrementCommandsCompleted(success bool)

	GetDatagramsReceived() int64
	GetDecodeErrors() int64
	GetSessionsStarted() int64
	GetSessionsEnded() int64
	GetCommandsSucceeded() int64
	GetCommandsFailed() int64
}

// DefaultMetrics implements Metrics with atomic counters.
type DefaultMetrics struct {
	datagramsReceived int64
	decodeErrors      int64
	sessionsStarted   int64
	sessionsEnded     int64
	commandsSucceeded int64
	commandsFailed    int64
}

// NewDefaultMetrics creates a zeroed DefaultMetrics.
func NewDefaultMetrics() *DefaultMetrics { return &DefaultMetrics{} }

func (m *DefaultMetrics) IncrementDatagramsReceived() { atomic.AddInt64(&m.datagramsReceived, 1) }
func (m *DefaultMetrics) IncrementDecodeErrors()      { atomic.AddInt64(&m.decodeErrors, 1) }
func (m *DefaultMetrics) IncrementSessionsStarted()   { atomic.AddInt64(&m.sessionsStarted, 1) }
func (m *DefaultMetrics) IncrementSessionsEnded()     { atomic.AddInt64(&m.sessionsEnded, 1) }

func (m *DefaultMetrics) IncrementCommandsCompleted(success bool) {
	if success {
		atomic.AddInt64(&m.commandsSucceeded, 1)
	} else {
		atomic.AddInt64(&m.commandsFailed, 1)
	}
}

func (m *DefaultMetrics) GetDatagramsReceived() int64 { return atomic.LoadInt64(&m.datagramsReceived) }
func (m *DefaultMetrics) GetDecodeErrors() int64      { return atomic.LoadInt64(&m.decodeErrors) }
func (m *DefaultMetrics) GetSessionsStarted() int64   { return atomic.LoadInt64(&m.sessionsStarted) }
func (m *DefaultMetrics) GetSessionsEnded() int64     { return atomic.LoadInt64(&m.sessionsEnded) }
func (m *DefaultMetrics) GetCommandsSucceeded() int64 { return atomic.LoadInt64(&m.commandsSucceeded) }
func (m *DefaultMetrics) GetCommandsFailed() int64    { return atomic.LoadInt64(&m.commandsFailed) }
