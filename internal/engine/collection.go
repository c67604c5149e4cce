package engine

import "github.com/weftlang/weft/internal/value"

// DiffKind discriminates collection mutation records.
type DiffKind string

const (
	// DiffInsert adds an item after an anchor (nil anchor = front).
	DiffInsert DiffKind = "insert"
	// DiffRemove removes an item by key.
	DiffRemove DiffKind = "remove"
	// DiffUpdate replaces an item's value in place.
	DiffUpdate DiffKind = "update"
	// DiffReplace supersedes history with a full item listing.
	DiffReplace DiffKind = "replace"
)

// Diff is one identity-addressed collection mutation. Items are always
// addressed by ItemKey, never by positional index: positional diffs
// force every downstream consumer to recompute indices on each change,
// identity diffs keep per-change translation O(1).
type Diff struct {
	Kind  DiffKind
	Key   value.ItemKey
	After *value.ItemKey // insert anchor; nil inserts at the front
	Value value.Value
	Items []value.ListItem // DiffReplace only
	// Version is the collection version after applying this diff.
	Version uint64
}

// historyRetention is the bounded number of diffs retained for
// incremental catch-up; subscribers further behind get a full replace.
const historyRetention = 64

// DiffHistory is a bounded ring of recent diffs. It serves incremental
// updates to subscribers that are only slightly behind while bounding
// memory for those that fell far behind.
type DiffHistory struct {
	buf   []Diff
	limit int
}

// NewDiffHistory creates a history retaining at most limit diffs.
func NewDiffHistory(limit int) *DiffHistory {
	if limit <= 0 {
		limit = historyRetention
	}
	return &DiffHistory{limit: limit}
}

func (h *DiffHistory) push(d Diff) {
	if d.Kind == DiffReplace {
		// A replace is a checkpoint that supersedes prior history.
		h.buf = h.buf[:0]
	}
	h.buf = append(h.buf, d)
	if len(h.buf) > h.limit {
		h.buf = h.buf[len(h.buf)-h.limit:]
	}
}

// Since returns the diffs after version `since`. The second result is
// false when the gap exceeds retention and the caller needs a full
// replace instead.
func (h *DiffHistory) Since(since uint64) ([]Diff, bool) {
	if len(h.buf) == 0 {
		return nil, true
	}
	// A leading replace is a checkpoint: it carries the full listing, so
	// it catches up a subscriber at any earlier version.
	if h.buf[0].Version > since+1 && h.buf[0].Kind != DiffReplace {
		return nil, false
	}
	idx := len(h.buf)
	for i, d := range h.buf {
		if d.Version > since {
			idx = i
			break
		}
	}
	out := make([]Diff, len(h.buf)-idx)
	copy(out, h.buf[idx:])
	return out, true
}

// Collection maintains an ordered sequence of (ItemKey, value) items
// with stable per-item identity plus the bounded diff history.
//
// ItemKeys are allocated from a per-allocation-site monotonic counter
// and never reused after removal within a run, so two items are never
// confused after deletion/insertion churn.
type Collection struct {
	slot    SlotKey
	items   []value.ListItem
	index   map[value.ItemKey]int
	nextKey uint64
	version uint64
	history *DiffHistory

	// ops counts item-level evaluation work (predicate and template
	// runs, forwarded diffs) for O(1)-per-change verification.
	ops int
}

// NewCollection creates an empty collection owned by slot.
func NewCollection(slot SlotKey) *Collection {
	return &Collection{
		slot:    slot,
		index:   make(map[value.ItemKey]int),
		history: NewDiffHistory(historyRetention),
	}
}

// AllocKey draws the next item key from the site's monotonic counter.
func (c *Collection) AllocKey() value.ItemKey {
	k := value.ItemKey(c.nextKey)
	c.nextKey++
	return k
}

// Version returns the collection's current version.
func (c *Collection) Version() uint64 {
	return c.version
}

// Len returns the number of items.
func (c *Collection) Len() int {
	return len(c.items)
}

// Ops returns the accumulated instrumented operation count.
func (c *Collection) Ops() int {
	return c.ops
}

// ResetOps clears the instrumented operation count.
func (c *Collection) ResetOps() {
	c.ops = 0
}

// Contains reports whether key is currently present.
func (c *Collection) Contains(key value.ItemKey) bool {
	_, ok := c.index[key]
	return ok
}

// Get returns the value stored under key.
func (c *Collection) Get(key value.ItemKey) (value.Value, bool) {
	i, ok := c.index[key]
	if !ok {
		return nil, false
	}
	return c.items[i].Value, true
}

// Keys returns the item keys in order.
func (c *Collection) Keys() []value.ItemKey {
	out := make([]value.ItemKey, len(c.items))
	for i, it := range c.items {
		out[i] = it.Key
	}
	return out
}

// Snapshot returns the current items as an immutable List value.
func (c *Collection) Snapshot() value.List {
	return value.NewList(c.items)
}

// Append allocates a fresh key and inserts v at the back.
func (c *Collection) Append(v value.Value) (value.ItemKey, Diff) {
	key := c.AllocKey()
	var after *value.ItemKey
	if n := len(c.items); n > 0 {
		last := c.items[n-1].Key
		after = &last
	}
	return key, c.InsertWithKey(key, after, v)
}

// InsertWithKey inserts an externally-allocated key after the anchor.
// Derived collections use this to preserve upstream identity.
func (c *Collection) InsertWithKey(key value.ItemKey, after *value.ItemKey, v value.Value) Diff {
	pos := 0
	if after != nil {
		if i, ok := c.index[*after]; ok {
			pos = i + 1
		} else {
			pos = len(c.items)
		}
	}
	c.items = append(c.items, value.ListItem{})
	copy(c.items[pos+1:], c.items[pos:])
	c.items[pos] = value.ListItem{Key: key, Value: v}
	c.reindexFrom(pos)
	c.ops++
	return c.record(Diff{Kind: DiffInsert, Key: key, After: after, Value: v})
}

// Remove deletes the item under key. Returns false if absent.
func (c *Collection) Remove(key value.ItemKey) (Diff, bool) {
	i, ok := c.index[key]
	if !ok {
		return Diff{}, false
	}
	c.items = append(c.items[:i], c.items[i+1:]...)
	delete(c.index, key)
	c.reindexFrom(i)
	c.ops++
	return c.record(Diff{Kind: DiffRemove, Key: key}), true
}

// Update replaces the value under key. Returns false if absent or if
// the value is unchanged (no diff, no version bump).
func (c *Collection) Update(key value.ItemKey, v value.Value) (Diff, bool) {
	i, ok := c.index[key]
	if !ok {
		return Diff{}, false
	}
	if value.Equal(c.items[i].Value, v) {
		return Diff{}, false
	}
	c.items[i].Value = v
	c.ops++
	return c.record(Diff{Kind: DiffUpdate, Key: key, Value: v}), true
}

// Replace installs a full item listing as a checkpoint superseding
// history. Used by restore and by far-behind subscriber catch-up.
func (c *Collection) Replace(items []value.ListItem) Diff {
	c.items = make([]value.ListItem, len(items))
	copy(c.items, items)
	c.index = make(map[value.ItemKey]int, len(items))
	for i, it := range c.items {
		c.index[it.Key] = i
		if uint64(it.Key) >= c.nextKey {
			c.nextKey = uint64(it.Key) + 1
		}
	}
	c.ops++
	return c.record(Diff{Kind: DiffReplace, Items: c.Snapshot().Items()})
}

// Clear removes every item, expressed as a replace checkpoint.
func (c *Collection) Clear() Diff {
	return c.Replace(nil)
}

// DiffsSince returns the diffs a subscriber at version `since` needs.
// Subscribers within the retention window get the incremental tail; a
// subscriber that fell further behind gets a single full replace.
func (c *Collection) DiffsSince(since uint64) []Diff {
	if since >= c.version {
		return nil
	}
	if diffs, ok := c.history.Since(since); ok {
		return diffs
	}
	return []Diff{{Kind: DiffReplace, Items: c.Snapshot().Items(), Version: c.version}}
}

// RestoreCounter forces the key counter forward during restore so
// replayed allocations never reuse persisted keys.
func (c *Collection) RestoreCounter(next uint64) {
	if next > c.nextKey {
		c.nextKey = next
	}
}

// NextCounter exposes the key counter for snapshotting.
func (c *Collection) NextCounter() uint64 {
	return c.nextKey
}

func (c *Collection) record(d Diff) Diff {
	c.version++
	d.Version = c.version
	c.history.push(d)
	return d
}

func (c *Collection) reindexFrom(pos int) {
	for i := pos; i < len(c.items); i++ {
		c.index[c.items[i].Key] = i
	}
}
