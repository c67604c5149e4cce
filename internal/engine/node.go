package engine

import (
	"sync"
	"sync/atomic"

	"github.com/weftlang/weft/internal/value"
)

// CauseKind classifies what last changed a node.
type CauseKind string

const (
	// CauseInput marks a change triggered by an external input event.
	CauseInput CauseKind = "input"
	// CauseUpstream marks a change propagated from another slot.
	CauseUpstream CauseKind = "upstream"
	// CauseRestore marks a value installed by snapshot restore.
	CauseRestore CauseKind = "restore"
	// CauseInitial marks the first evaluation of the slot.
	CauseInitial CauseKind = "initial"
)

// Cause records why a node last changed - the debug surface's answer
// to "why did this change?" without replaying logs.
type Cause struct {
	Kind CauseKind
	// Port is the external port identity for CauseInput.
	Port string
	// Source is the upstream slot for CauseUpstream.
	Source SlotKey
	// Stamp is when the change was committed.
	Stamp TickStamp
}

// Node is one versioned value cell. It owns a current value, a
// monotonically increasing version counter, and the currently
// registered subscriber endpoints.
//
// Exactly one writer exists per node (the owning combinator, run by
// the tick loop); concurrent readers go through the versioned
// snapshot-read, never direct mutation.
type Node struct {
	key SlotKey

	mu      sync.Mutex
	current value.Value
	version uint64
	cause   Cause
	subs    []*Subscription
}

func newNode(key SlotKey) *Node {
	return &Node{key: key, current: value.Skip{}}
}

// Key returns the node's slot address.
func (n *Node) Key() SlotKey {
	return n.key
}

// Read returns the current value and version as one consistent pair.
func (n *Node) Read() (value.Value, uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current, n.version
}

// Version returns the current version counter.
func (n *Node) Version() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.version
}

// Cause returns the last-known trigger cause.
func (n *Node) Cause() Cause {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.cause
}

// commit stores a new value, bumps the version and notifies
// subscribers. Returns false when the value is unchanged (no version
// bump, no notification).
//
// Notification is decoupled from delivery: each subscriber gets a
// non-blocking send on its capacity-1 channel. A full channel means the
// consumer already has a pending notification; leaving it untouched is
// intentional coalescing, not data loss, because the consumer re-reads
// the current value, not a historical one.
func (n *Node) commit(v value.Value, cause Cause) bool {
	n.mu.Lock()
	if n.version > 0 && value.Equal(n.current, v) {
		n.mu.Unlock()
		return false
	}
	n.current = v
	n.version++
	n.cause = cause

	// Prune disconnected subscribers lazily while notifying.
	live := n.subs[:0]
	for _, sub := range n.subs {
		if sub.closed.Load() {
			continue
		}
		select {
		case sub.notify <- struct{}{}:
		default:
		}
		live = append(live, sub)
	}
	n.subs = live
	n.mu.Unlock()
	return true
}

// Subscribe registers a notification endpoint. It transmits no values:
// the subscriber polls with Changed/Pull.
// Thread-safe: may be called from any goroutine.
func (n *Node) Subscribe() *Subscription {
	sub := &Subscription{
		node:   n,
		notify: make(chan struct{}, 1),
	}
	n.mu.Lock()
	n.subs = append(n.subs, sub)
	n.mu.Unlock()
	return sub
}

// subscriberCount is exposed for tests.
func (n *Node) subscriberCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs)
}

// Subscription is a (target node, last-seen version) bookmark plus a
// single-slot notification channel. Memory per subscription is O(1)
// regardless of producer speed.
type Subscription struct {
	node     *Node
	lastSeen uint64
	notify   chan struct{}
	closed   atomic.Bool
}

// Wait returns the channel that signals "something may have changed".
// Use with select alongside context cancellation.
func (s *Subscription) Wait() <-chan struct{} {
	return s.notify
}

// Changed reports whether the node has advanced past the subscriber's
// bookmark.
func (s *Subscription) Changed() bool {
	return s.node.Version() > s.lastSeen
}

// Pull returns the current value and advances the bookmark. The second
// result is false when nothing changed since the last pull.
func (s *Subscription) Pull() (value.Value, bool) {
	v, ver := s.node.Read()
	if ver <= s.lastSeen {
		return nil, false
	}
	s.lastSeen = ver
	return v, true
}

// Close disconnects the subscription. The node prunes it on the next
// notify attempt - no separate garbage-collection pass required.
func (s *Subscription) Close() {
	s.closed.Store(true)
}
