package audit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// DispatcherConfig controls buffering of the dispatcher.
type DispatcherConfig struct {
	BufferSize   int
	WriteTimeout time.Duration
	Logger       *slog.Logger
	Now          func() time.Time
}

// Dispatcher hands entries to a Sink from a single background worker.
// Record never blocks: entries are dropped when the buffer is full.
type Dispatcher struct {
	sink    Sink
	cfg     DispatcherConfig
	ch      chan Entry
	done    chan struct{}
	wg      sync.WaitGroup
	dropped atomic.Uint64
	failed  atomic.Uint64
	written atomic.Uint64

	// mu orders sends against Close: once closed is set no send can land
	// in ch after the worker's final drain.
	mu     sync.RWMutex
	closed bool
}

// NewDispatcher starts the worker.
func NewDispatcher(sink Sink, cfg DispatcherConfig) *Dispatcher {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1024
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	d := &Dispatcher{
		sink: sink,
		cfg:  cfg,
		ch:   make(chan Entry, cfg.BufferSize),
		done: make(chan struct{}),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

// Record enqueues entry, stamping ID and Timestamp when missing. Entries
// that do not fit the buffer or arrive after Close are counted as dropped.
func (d *Dispatcher) Record(entry Entry) {
	if d == nil {
		return
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = d.cfg.Now().UTC()
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.dropped.Add(1)
		return
	}
	select {
	case d.ch <- entry:
	default:
		d.dropped.Add(1)
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case entry := <-d.ch:
			d.write(entry)
		case <-d.done:
			for {
				select {
				case entry := <-d.ch:
					d.write(entry)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) write(entry Entry) {
	defer func() {
		if rec := recover(); rec != nil {
			d.failed.Add(1)
			d.cfg.Logger.Error("audit sink panic", slog.Any("panic", rec), slog.String("action", entry.Action))
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.WriteTimeout)
	defer cancel()
	if err := d.sink.Write(ctx, entry); err != nil {
		d.failed.Add(1)
		d.cfg.Logger.Warn("audit write failed",
			slog.Any("error", err),
			slog.String("action", entry.Action),
			slog.String("resource", entry.Resource))
		return
	}
	d.written.Add(1)
}

// Close stops accepting entries and drains the buffer, or gives up when ctx ends.
func (d *Dispatcher) Close(ctx context.Context) error {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.done)
	}
	d.mu.Unlock()
	finished := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats reports counters since start.
type Stats struct {
	Written uint64
	Dropped uint64
	Failed  uint64
}

// Stats returns a snapshot of the dispatcher counters.
func (d *Dispatcher) Stats() Stats {
	if d == nil {
		return Stats{}
	}
	return Stats{Written: d.written.Load(), Dropped: d.dropped.Load(), Failed: d.failed.Load()}
}
