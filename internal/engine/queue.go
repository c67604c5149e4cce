package engine

import "sync"

// inputQueue is a thread-safe FIFO for external input events.
//
// The queue is unbounded so bursty producers (UI event storms) never
// block; backpressure toward consumers is handled structurally by the
// notify-coalescing subscription protocol, not here.
//
// Thread-safety covers external enqueuing (bridge goroutines, timers)
// while the tick loop drains. A capacity-1 signal channel coalesces
// wakeups for context-aware waiting.
type inputQueue struct {
	mu      sync.Mutex
	events  []InputEvent
	arrival int64
	closed  bool
	signal  chan struct{}
}

func newInputQueue() *inputQueue {
	return &inputQueue{
		events: make([]InputEvent, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue appends an event, assigning its arrival order.
// Returns false if the queue is closed.
func (q *inputQueue) Enqueue(ev InputEvent) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	ev.Arrival = q.arrival
	q.arrival++
	q.events = append(q.events, ev)

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// DrainBatch removes and returns every queued event in arrival order.
// The returned batch is what one tick ingests: events enqueued during
// propagation wait for the next tick.
func (q *inputQueue) DrainBatch() []InputEvent {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return nil
	}
	batch := q.events
	q.events = make([]InputEvent, 0, 64)
	return batch
}

// Wait returns a channel signalling that events may be available.
func (q *inputQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *inputQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Close stops further enqueues and wakes all waiters.
func (q *inputQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}

// Closed reports whether the queue has been closed.
func (q *inputQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
