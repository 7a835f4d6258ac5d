// ABOUTME: Asynchronous append-only mirror with a bounded retry budget.
// ABOUTME: Callers never block; records that exhaust their retries are dropped and logged.

package mirror

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	// maxAttempts bounds how many times one record is offered to the sink.
	maxAttempts = 3
	// maxBackoff caps the delay between attempts.
	maxBackoff = 2 * time.Second
	// queueSize bounds how many records may wait for the worker.
	queueSize = 256
)

// Record is one mirrored event.
type Record struct {
	Kind    string
	Payload string
}

// Sink receives mirrored records. Implementations may fail transiently; the
// mirror retries within its budget and then gives up on that record.
type Sink interface {
	Write(ctx context.Context, rec Record) error
}

// Mirror fans records out to a sink from a single background worker. Append
// is non-blocking: when the queue is full the record is dropped immediately,
// because the mirror is an observer and must never stall call handling.
type Mirror struct {
	sink    Sink
	queue   chan Record
	logger  *slog.Logger
	backoff func(attempt int) time.Duration

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopped  chan struct{}
}

// New creates a mirror writing to sink. Run must be started for records to
// flow.
func New(sink Sink, logger *slog.Logger) *Mirror {
	return &Mirror{
		sink:    sink,
		queue:   make(chan Record, queueSize),
		logger:  logger.With("component", "mirror"),
		backoff: defaultBackoff,
		stopped: make(chan struct{}),
	}
}

func defaultBackoff(attempt int) time.Duration {
	d := time.Duration(1<<attempt) * 100 * time.Millisecond
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

// Append queues a record for mirroring. Never blocks: a full queue drops the
// record with a warning.
func (m *Mirror) Append(rec Record) {
	select {
	case <-m.stopped:
		m.logger.Warn("mirror stopped, dropping record", "kind", rec.Kind)
	case m.queue <- rec:
	default:
		m.logger.Warn("mirror queue full, dropping record", "kind", rec.Kind)
	}
}

// Run drains the queue until ctx is canceled, then flushes what is already
// queued and returns.
func (m *Mirror) Run(ctx context.Context) {
	m.logger.Info("mirror worker started")
	for {
		select {
		case <-ctx.Done():
			m.stopOnce.Do(func() { close(m.stopped) })
			m.drain()
			m.logger.Info("mirror worker stopped")
			return
		case rec := <-m.queue:
			m.deliver(ctx, rec)
		}
	}
}

// drain delivers whatever is still queued, without waiting for new records.
func (m *Mirror) drain() {
	for {
		select {
		case rec := <-m.queue:
			m.deliver(context.Background(), rec)
		default:
			return
		}
	}
}

// deliver offers one record to the sink within the retry budget.
func (m *Mirror) deliver(ctx context.Context, rec Record) {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				m.logger.Warn("mirror delivery aborted by shutdown", "kind", rec.Kind)
				return
			case <-time.After(m.backoff(attempt)):
			}
		}
		if lastErr = m.sink.Write(ctx, rec); lastErr == nil {
			return
		}
	}
	m.logger.Warn("mirror record dropped after retry budget",
		"kind", rec.Kind,
		"attempts", maxAttempts,
		"error", lastErr,
	)
}
