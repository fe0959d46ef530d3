package bootstrap

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/docpilot/metergate/domain/usage"
	"github.com/docpilot/metergate/ports"
)

// UsageRecorder buffers ledger events and writes them to the store in
// batches. Record never blocks the admission path: when the buffer is
// full the event is dropped and counted, never queued against the
// caller. Crash loss is bounded by the buffer size plus one flush
// interval.
type UsageRecorder struct {
	store         ports.UsageStore
	batchSize     int
	maxBuffered   int
	flushInterval time.Duration
	onDrop        func()
	log           zerolog.Logger

	mu      sync.Mutex
	buffer  []usage.Event
	dropped atomic.Int64

	stopCh    chan struct{}
	loopWG    sync.WaitGroup
	writeWG   sync.WaitGroup
	closeOnce sync.Once
}

// RecorderConfig configures the usage recorder.
type RecorderConfig struct {
	BatchSize     int           // events per write (default 100)
	MaxBuffered   int           // drop threshold (default 10x batch size)
	FlushInterval time.Duration // default 5s
	OnDrop        func()        // called once per dropped event, optional
}

// NewUsageRecorder creates a recorder and starts its flush loop.
func NewUsageRecorder(store ports.UsageStore, cfg RecorderConfig, log zerolog.Logger) *UsageRecorder {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.MaxBuffered <= 0 {
		cfg.MaxBuffered = cfg.BatchSize * 10
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}

	r := &UsageRecorder{
		store:         store,
		batchSize:     cfg.BatchSize,
		maxBuffered:   cfg.MaxBuffered,
		flushInterval: cfg.FlushInterval,
		onDrop:        cfg.OnDrop,
		log:           log,
		buffer:        make([]usage.Event, 0, cfg.BatchSize),
		stopCh:        make(chan struct{}),
	}

	r.loopWG.Add(1)
	go r.flushLoop()
	return r
}

// Record queues a usage event for processing.
func (r *UsageRecorder) Record(e usage.Event) {
	r.mu.Lock()
	if len(r.buffer) >= r.maxBuffered {
		r.mu.Unlock()
		r.dropped.Add(1)
		if r.onDrop != nil {
			r.onDrop()
		}
		return
	}
	r.buffer = append(r.buffer, e)
	var batch []usage.Event
	if len(r.buffer) >= r.batchSize {
		batch = r.take()
	}
	r.mu.Unlock()

	if batch != nil {
		r.writeAsync(batch)
	}
}

// Flush writes all queued events synchronously.
func (r *UsageRecorder) Flush(ctx context.Context) error {
	r.mu.Lock()
	batch := r.take()
	r.mu.Unlock()

	if batch == nil {
		return nil
	}
	return r.store.RecordBatch(ctx, batch)
}

// Close stops the flush loop, waits for in-flight writes and flushes
// the remaining buffer.
func (r *UsageRecorder) Close() error {
	var err error
	r.closeOnce.Do(func() {
		close(r.stopCh)
		r.loopWG.Wait()
		r.writeWG.Wait()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err = r.Flush(ctx)
	})
	return err
}

// Dropped returns the number of events discarded due to backpressure.
func (r *UsageRecorder) Dropped() int64 {
	return r.dropped.Load()
}

// take swaps out the current buffer. Caller must hold r.mu.
func (r *UsageRecorder) take() []usage.Event {
	if len(r.buffer) == 0 {
		return nil
	}
	batch := r.buffer
	r.buffer = make([]usage.Event, 0, r.batchSize)
	return batch
}

func (r *UsageRecorder) writeAsync(batch []usage.Event) {
	r.writeWG.Add(1)
	go func() {
		defer r.writeWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := r.store.RecordBatch(ctx, batch); err != nil {
			r.log.Error().Err(err).Int("events", len(batch)).Msg("usage batch write failed")
		}
	}()
}

func (r *UsageRecorder) flushLoop() {
	defer r.loopWG.Done()
	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := r.Flush(context.Background()); err != nil {
				r.log.Error().Err(err).Msg("usage flush failed")
			}
		case <-r.stopCh:
			return
		}
	}
}

var _ ports.UsageRecorder = (*UsageRecorder)(nil)
