package recorder

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"mercator-hq/rampart/pkg/audit"
)

// ErrBufferFull is returned when a record is dropped because the queue is
// full.
var ErrBufferFull = errors.New("audit buffer full")

// Config contains configuration for the audit recorder.
type Config struct {
	// Buffer is the size of the async write channel.
	// Default: 1000
	Buffer int

	// WriteTimeout bounds each storage write.
	// Default: 5 seconds
	WriteTimeout time.Duration
}

// DefaultConfig returns the default recorder configuration.
func DefaultConfig() *Config {
	return &Config{
		Buffer:       1000,
		WriteTimeout: 5 * time.Second,
	}
}

// Recorder writes audit records to storage asynchronously.
type Recorder struct {
	storage audit.Storage
	config  *Config
	logger  *slog.Logger

	records chan *audit.Record
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	dropped atomic.Int64
	written atomic.Int64
	failed  atomic.Int64
}

// New creates a recorder and starts its worker.
func New(storage audit.Storage, config *Config, logger *slog.Logger) *Recorder {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Buffer <= 0 {
		config.Buffer = DefaultConfig().Buffer
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = DefaultConfig().WriteTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	r := &Recorder{
		storage: storage,
		config:  config,
		logger:  logger.With("component", "audit.recorder"),
		records: make(chan *audit.Record, config.Buffer),
	}

	r.wg.Add(1)
	go r.worker()

	r.logger.Info("Audit recorder initialized",
		"buffer", config.Buffer,
		"write_timeout", config.WriteTimeout,
	)
	return r
}

// Record enqueues record for writing and returns immediately.
func (r *Recorder) Record(record *audit.Record) error {
	if record == nil {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return audit.NewRecorderError(record.ID, audit.ErrClosed)
	}

	select {
	case r.records <- record:
		return nil
	default:
		n := r.dropped.Add(1)
		r.logger.Warn("Audit buffer full, dropping record",
			"record_id", record.ID,
			"identifier", record.Identifier,
			"dropped_total", n,
		)
		return audit.NewRecorderError(record.ID, ErrBufferFull)
	}
}

// Dropped returns the number of records dropped because the buffer was full.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Written returns the number of records stored successfully.
func (r *Recorder) Written() int64 {
	return r.written.Load()
}

// Failed returns the number of records the storage rejected.
func (r *Recorder) Failed() int64 {
	return r.failed.Load()
}

// Pending returns the number of queued records.
func (r *Recorder) Pending() int {
	return len(r.records)
}

// Close stops accepting records and waits until queued records are written.
// It is safe to call more than once.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.records)
	r.mu.Unlock()

	r.logger.Info("Draining audit recorder", "pending", len(r.records))
	r.wg.Wait()
	r.logger.Info("Audit recorder closed",
		"written", r.written.Load(),
		"failed", r.failed.Load(),
		"dropped", r.dropped.Load(),
	)
	return nil
}

func (r *Recorder) worker() {
	defer r.wg.Done()
	for record := range r.records {
		r.write(record)
	}
}

func (r *Recorder) write(record *audit.Record) {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.WriteTimeout)
	defer cancel()

	start := time.Now()
	if err := r.storage.Store(ctx, record); err != nil {
		r.failed.Add(1)
		r.logger.Error("Failed to store audit record",
			"record_id", record.ID,
			"identifier", record.Identifier,
			"error", err,
		)
		return
	}
	r.written.Add(1)

	duration := time.Since(start)
	r.logger.Debug("Audit record stored",
		"record_id", record.ID,
		"verdict", record.Verdict,
		"duration_ms", duration.Milliseconds(),
	)
	if duration > r.config.WriteTimeout/2 {
		r.logger.Warn("Slow audit write",
			"record_id", record.ID,
			"duration_ms", duration.Milliseconds(),
			"threshold_ms", (r.config.WriteTimeout / 2).Milliseconds(),
		)
	}
}
