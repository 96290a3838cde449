package audit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// Config controls dispatcher buffering behavior. BufferSize applies to each sink's lane.
type Config struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// LaneStats reports delivery for one sink.
type LaneStats struct {
	// Sink is the sink's dynamic type, for example "*audit.RedisSink".
	Sink      string
	Delivered uint64
	Dropped   uint64
	Queued    int
}

// Dispatcher delivers entries to each sink through its own buffered lane and
// goroutine. A sink that stalls fills only its own lane; the others keep draining.
type Dispatcher struct {
	dropIfFull bool
	lanes      []*lane
	done       chan struct{}
	wg         sync.WaitGroup
	closed     atomic.Bool
	closeOnce  sync.Once
}

type lane struct {
	sink      Sink
	entries   chan Entry
	delivered atomic.Uint64
	dropped   atomic.Uint64
}

// NewDispatcher starts one lane per non-nil sink. It returns nil when cfg is disabled
// or no sink is given; a nil *Dispatcher is a valid no-op Sink.
func NewDispatcher(cfg Config, sinks ...Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}

	d := &Dispatcher{
		dropIfFull: cfg.DropIfFull,
		done:       make(chan struct{}),
	}
	for _, sink := range sinks {
		if sink == nil {
			continue
		}
		d.lanes = append(d.lanes, &lane{sink: sink, entries: make(chan Entry, cfg.BufferSize)})
	}
	if len(d.lanes) == 0 {
		return nil
	}

	for _, l := range d.lanes {
		d.wg.Add(1)
		go d.run(l)
	}
	return d
}

func (d *Dispatcher) run(l *lane) {
	defer d.wg.Done()

	for {
		select {
		case entry := <-l.entries:
			l.deliver(entry)
		case <-d.done:
			for {
				select {
				case entry := <-l.entries:
					l.deliver(entry)
				default:
					return
				}
			}
		}
	}
}

func (l *lane) deliver(entry Entry) {
	l.sink.Emit(context.Background(), entry)
	l.delivered.Add(1)
}

// Emit queues entry on every lane. With DropIfFull a full lane drops the entry;
// otherwise Emit waits for room until ctx ends, which also counts as a drop.
func (d *Dispatcher) Emit(ctx context.Context, entry Entry) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	for _, l := range d.lanes {
		d.enqueue(ctx, l, entry)
	}
}

func (d *Dispatcher) enqueue(ctx context.Context, l *lane, entry Entry) {
	if d.dropIfFull {
		select {
		case l.entries <- entry:
		case <-d.done:
		default:
			l.dropped.Add(1)
		}
		return
	}

	select {
	case l.entries <- entry:
	case <-ctx.Done():
		l.dropped.Add(1)
	case <-d.done:
	}
}

// Close stops accepting entries and drains every lane into its sink.
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

// Dropped returns the entries that never reached a sink, summed over lanes.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	var n uint64
	for _, l := range d.lanes {
		n += l.dropped.Load()
	}
	return n
}

// Stats returns per-sink delivery counters in sink order.
func (d *Dispatcher) Stats() []LaneStats {
	if d == nil {
		return nil
	}
	out := make([]LaneStats, len(d.lanes))
	for i, l := range d.lanes {
		out[i] = LaneStats{
			Sink:      fmt.Sprintf("%T", l.sink),
			Delivered: l.delivered.Load(),
			Dropped:   l.dropped.Load(),
			Queued:    len(l.entries),
		}
	}
	return out
}
