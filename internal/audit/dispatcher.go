package audit

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// Config controls dispatcher buffering behavior.
type Config struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// drainTimeout bounds how long Close spends flushing buffered entries; a
// wedged sink must not hold shutdown hostage.
const drainTimeout = 2 * time.Second

// droppedAction names the synthetic entry the dispatcher emits at Close
// when entries were lost, so the loss is visible in the log itself.
const droppedAction = "audit_dropped"

// Dispatcher asynchronously forwards audit entries to a sink so that the
// request path never blocks on audit I/O. Close drains buffered entries
// under a deadline and records any drops as a final summary entry.
type Dispatcher struct {
	cfg       Config
	sink      Sink
	ch        chan Entry
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		cfg:  cfg,
		sink: sink,
		ch:   make(chan Entry, cfg.BufferSize),
		done: make(chan struct{}),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case entry := <-d.ch:
			d.forward(context.Background(), entry)
		case <-d.done:
			d.drain()
			return
		}
	}
}

// forward hands one entry to the sink, stamping the time for emitters
// that left it zero.
func (d *Dispatcher) forward(ctx context.Context, entry Entry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	d.sink.Emit(ctx, entry)
}

// drain flushes the buffer under drainTimeout. Entries still buffered
// when the deadline hits count as dropped; any drops accumulated over the
// dispatcher's lifetime are then reported with one summary entry.
func (d *Dispatcher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

flush:
	for ctx.Err() == nil {
		select {
		case entry := <-d.ch:
			d.forward(ctx, entry)
		default:
			break flush
		}
	}
	if remaining := len(d.ch); remaining > 0 {
		d.dropped.Add(uint64(remaining))
	}

	if n := d.dropped.Load(); n > 0 {
		summaryCtx, cancelSummary := context.WithTimeout(context.Background(), time.Second)
		defer cancelSummary()
		d.forward(summaryCtx, Entry{
			Timestamp: time.Now().UTC(),
			Action:    droppedAction,
			Success:   false,
			Details:   map[string]string{"dropped": strconv.FormatUint(n, 10)},
		})
	}
}

func (d *Dispatcher) Emit(ctx context.Context, entry Entry) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.cfg.DropIfFull {
		select {
		case d.ch <- entry:
		case <-d.done:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.ch <- entry:
	case <-ctx.Done():
	case <-d.done:
	}
}

func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
