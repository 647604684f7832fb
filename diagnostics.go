package storefront

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Diagnostic is one recorded persistence failure.
type Diagnostic struct {
	Time      time.Time `json:"time"`
	Operation string    `json:"operation"`
	Handle    string    `json:"handle"`
	Message   string    `json:"message"`
}

// DiagnosticsLog accepts failure records without blocking the caller.
type DiagnosticsLog interface {
	Record(d Diagnostic)
}

// DiagnosticSink is the durable destination behind AsyncDiagnostics.
// *Store implements it.
type DiagnosticSink interface {
	AppendDiagnostic(ctx context.Context, d Diagnostic) error
}

// AsyncDiagnostics buffers records and writes them on a background
// goroutine, so a failing sink never slows or fails the request path. When
// the buffer is full, records are dropped with a warning.
type AsyncDiagnostics struct {
	sink   DiagnosticSink
	logger *slog.Logger
	queue  chan Diagnostic

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewAsyncDiagnostics starts the background writer. Call Close to drain it.
func NewAsyncDiagnostics(sink DiagnosticSink, buffer int, logger *slog.Logger) *AsyncDiagnostics {
	if buffer <= 0 {
		buffer = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	d := &AsyncDiagnostics{
		sink:   sink,
		logger: logger,
		queue:  make(chan Diagnostic, buffer),
		done:   make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *AsyncDiagnostics) run() {
	defer close(d.done)
	for rec := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := d.sink.AppendDiagnostic(ctx, rec); err != nil {
			d.logger.Warn("diagnostic write failed", "operation", rec.Operation, "handle", rec.Handle, "error", err)
		}
		cancel()
	}
}

// Record enqueues d. It never blocks.
func (d *AsyncDiagnostics) Record(rec Diagnostic) {
	if rec.Time.IsZero() {
		rec.Time = time.Now()
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.logger.Warn("diagnostic dropped after close", "operation", rec.Operation, "handle", rec.Handle)
		return
	}
	select {
	case d.queue <- rec:
	default:
		d.logger.Warn("diagnostic dropped, buffer full", "operation", rec.Operation, "handle", rec.Handle, "message", rec.Message)
	}
}

// Close stops accepting records and waits for queued ones to be written.
func (d *AsyncDiagnostics) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	<-d.done
}

// StartDiagnosticsPruner deletes diagnostics older than retention every
// interval. Returns a stop function.
func (s *Store) StartDiagnosticsPruner(retention, interval time.Duration, logger *slog.Logger) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.C:
				n, err := s.PruneDiagnostics(context.Background(), time.Now().Add(-retention))
				if err != nil {
					logger.Warn("diagnostics prune failed", "error", err)
				} else if n > 0 {
					logger.Debug("diagnostics pruned", "rows", n)
				}
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}
