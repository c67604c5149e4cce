package engine

import "github.com/weftlang/weft/internal/value"

// Derived collections: a filter or map over an upstream collection is
// itself a collection that translates each upstream diff in O(1) item
// evaluations - an insert runs the predicate/template once, a removal
// forwards only if the key was included, an update that flips predicate
// membership becomes a synthetic insert or remove. Nothing downstream
// ever rescans the whole collection for one upstream change.

// FilteredView maintains a predicate-filtered collection sharing the
// upstream's item keys.
type FilteredView struct {
	source *Collection
	out    *Collection
	// included tracks upstream keys currently passing the predicate.
	included map[value.ItemKey]bool
}

// NewFilteredView creates an empty filtered view over source, writing
// into out. The caller seeds it by applying a replace diff.
func NewFilteredView(source, out *Collection) *FilteredView {
	return &FilteredView{
		source:   source,
		out:      out,
		included: make(map[value.ItemKey]bool),
	}
}

// Out returns the derived collection.
func (v *FilteredView) Out() *Collection {
	return v.out
}

// Apply translates one upstream diff. pred is evaluated at most once
// per call (the single instrumented item operation).
func (v *FilteredView) Apply(d Diff, pred func(value.ItemKey, value.Value) bool) []Diff {
	switch d.Kind {
	case DiffInsert:
		if !pred(d.Key, d.Value) {
			return nil
		}
		v.included[d.Key] = true
		return []Diff{v.out.InsertWithKey(d.Key, v.includedAnchor(d.Key), d.Value)}

	case DiffRemove:
		if !v.included[d.Key] {
			return nil
		}
		delete(v.included, d.Key)
		if out, ok := v.out.Remove(d.Key); ok {
			return []Diff{out}
		}
		return nil

	case DiffUpdate:
		pass := pred(d.Key, d.Value)
		was := v.included[d.Key]
		switch {
		case pass && was:
			if out, ok := v.out.Update(d.Key, d.Value); ok {
				return []Diff{out}
			}
			return nil
		case pass && !was:
			// Membership flip: synthesize an insert.
			v.included[d.Key] = true
			return []Diff{v.out.InsertWithKey(d.Key, v.includedAnchor(d.Key), d.Value)}
		case !pass && was:
			// Membership flip: synthesize a remove.
			delete(v.included, d.Key)
			if out, ok := v.out.Remove(d.Key); ok {
				return []Diff{out}
			}
			return nil
		default:
			return nil
		}

	case DiffReplace:
		// Checkpoint: rebuild membership wholesale.
		v.included = make(map[value.ItemKey]bool)
		kept := make([]value.ListItem, 0, len(d.Items))
		for _, it := range d.Items {
			if pred(it.Key, it.Value) {
				v.included[it.Key] = true
				kept = append(kept, it)
			}
		}
		return []Diff{v.out.Replace(kept)}

	default:
		return nil
	}
}

// includedAnchor finds the nearest included predecessor of key in the
// upstream ordering, so the derived collection preserves relative
// order. Walks only the excluded run directly before the key.
func (v *FilteredView) includedAnchor(key value.ItemKey) *value.ItemKey {
	i, ok := v.source.index[key]
	if !ok {
		return nil
	}
	for j := i - 1; j >= 0; j-- {
		k := v.source.items[j].Key
		if v.included[k] {
			anchor := k
			return &anchor
		}
	}
	return nil
}

// MappedView maintains a per-item-transformed collection sharing the
// upstream's item keys. Each item's transform runs in its own child
// scope, so per-item state survives reordering.
type MappedView struct {
	source *Collection
	out    *Collection
	// mapped tracks upstream keys with a live transformed item.
	mapped map[value.ItemKey]bool
}

// NewMappedView creates an empty mapped view over source, writing into
// out.
func NewMappedView(source, out *Collection) *MappedView {
	return &MappedView{
		source: source,
		out:    out,
		mapped: make(map[value.ItemKey]bool),
	}
}

// Out returns the derived collection.
func (m *MappedView) Out() *Collection {
	return m.out
}

// Contains reports whether an upstream key has a live mapped item.
func (m *MappedView) Contains(key value.ItemKey) bool {
	return m.mapped[key]
}

// Apply translates one upstream diff. transform is evaluated once per
// affected item. When a transform yields the fail-fast marker, the
// remaining items of the pass are NOT evaluated: Apply stops, applies
// nothing further, and returns the marker as `flushed` so the owning
// expression propagates it instead of a partial result.
func (m *MappedView) Apply(d Diff, transform func(value.ItemKey, value.Value) value.Value) (diffs []Diff, flushed value.Value) {
	switch d.Kind {
	case DiffInsert:
		mv := transform(d.Key, d.Value)
		if value.IsFlushed(mv) {
			return nil, mv
		}
		m.mapped[d.Key] = true
		return []Diff{m.out.InsertWithKey(d.Key, m.mappedAnchor(d.Key), mv)}, nil

	case DiffRemove:
		if !m.mapped[d.Key] {
			return nil, nil
		}
		delete(m.mapped, d.Key)
		if out, ok := m.out.Remove(d.Key); ok {
			return []Diff{out}, nil
		}
		return nil, nil

	case DiffUpdate:
		if !m.mapped[d.Key] {
			return nil, nil
		}
		mv := transform(d.Key, d.Value)
		if value.IsFlushed(mv) {
			return nil, mv
		}
		if out, ok := m.out.Update(d.Key, mv); ok {
			return []Diff{out}, nil
		}
		return nil, nil

	case DiffReplace:
		m.mapped = make(map[value.ItemKey]bool)
		items := make([]value.ListItem, 0, len(d.Items))
		for _, it := range d.Items {
			mv := transform(it.Key, it.Value)
			if value.IsFlushed(mv) {
				return nil, mv
			}
			m.mapped[it.Key] = true
			items = append(items, value.ListItem{Key: it.Key, Value: mv})
		}
		return []Diff{m.out.Replace(items)}, nil

	default:
		return nil, nil
	}
}

func (m *MappedView) mappedAnchor(key value.ItemKey) *value.ItemKey {
	i, ok := m.source.index[key]
	if !ok {
		return nil
	}
	for j := i - 1; j >= 0; j-- {
		k := m.source.items[j].Key
		if m.mapped[k] {
			anchor := k
			return &anchor
		}
	}
	return nil
}
