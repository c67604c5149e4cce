package value

import (
	"fmt"
	"sort"
	"strings"
)

// ItemKey is a collection-item identity stable across reorderings and
// across ticks. Allocated from a per-allocation-site monotonic counter,
// never reused after removal within a run.
type ItemKey uint64

// Value is a sealed interface over the runtime value types.
// Only the types in this package implement it.
type Value interface {
	valueKind()
}

// Int is a 64-bit integer value.
type Int int64

// Float is a 64-bit floating point value.
type Float float64

// Text is a string value.
type Text string

// Bool is a boolean value.
type Bool bool

// Unit is the event value with no payload (a pulse).
type Unit struct{}

// Skip is the first-class "no value this tick" signal.
type Skip struct{}

// Flushed is the fail-fast marker wrapping an abort payload.
type Flushed struct {
	Inner Value
}

// Key is an ItemKey carried as a value (emitted by collection reads,
// consumed by List remove operations).
type Key ItemKey

// Object is an immutable record of named fields.
type Object struct {
	fields map[string]Value
}

// List is an ordered, identity-addressed sequence of items.
type List struct {
	items []ListItem
}

// ListItem pairs a stable item key with its value.
type ListItem struct {
	Key   ItemKey
	Value Value
}

func (Int) valueKind()     {}
func (Float) valueKind()   {}
func (Text) valueKind()    {}
func (Bool) valueKind()    {}
func (Unit) valueKind()    {}
func (Skip) valueKind()    {}
func (Flushed) valueKind() {}
func (Key) valueKind()     {}
func (Object) valueKind()  {}
func (List) valueKind()    {}

// NewObject builds an object from a map. The map is copied.
func NewObject(fields map[string]Value) Object {
	m := make(map[string]Value, len(fields))
	for k, v := range fields {
		m[k] = v
	}
	return Object{fields: m}
}

// Get returns the named field.
func (o Object) Get(name string) (Value, bool) {
	v, ok := o.fields[name]
	return v, ok
}

// With returns a copy of the object with one field replaced.
func (o Object) With(name string, v Value) Object {
	m := make(map[string]Value, len(o.fields)+1)
	for k, fv := range o.fields {
		m[k] = fv
	}
	m[name] = v
	return Object{fields: m}
}

// Len returns the number of fields.
func (o Object) Len() int {
	return len(o.fields)
}

// SortedKeys returns field names in lexicographic order for
// deterministic iteration.
func (o Object) SortedKeys() []string {
	keys := make([]string, 0, len(o.fields))
	for k := range o.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// NewList builds a list from items. The slice is copied.
func NewList(items []ListItem) List {
	out := make([]ListItem, len(items))
	copy(out, items)
	return List{items: out}
}

// Items returns the items in order. Callers must not mutate the result.
func (l List) Items() []ListItem {
	return l.items
}

// Len returns the number of items.
func (l List) Len() int {
	return len(l.items)
}

// Get returns the value stored under key.
func (l List) Get(key ItemKey) (Value, bool) {
	for _, it := range l.items {
		if it.Key == key {
			return it.Value, true
		}
	}
	return nil, false
}

// IsSkip reports whether v is the Skip signal.
func IsSkip(v Value) bool {
	_, ok := v.(Skip)
	return ok
}

// IsFlushed reports whether v carries the fail-fast marker.
func IsFlushed(v Value) bool {
	_, ok := v.(Flushed)
	return ok
}

// Unwrap removes the fail-fast marker at an unwrap boundary.
// Non-flushed values pass through unchanged.
func Unwrap(v Value) Value {
	if f, ok := v.(Flushed); ok {
		return f.Inner
	}
	return v
}

// Equal compares two values structurally. Skip equals only Skip.
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case Int:
		bv, ok := b.(Int)
		return ok && av == bv
	case Float:
		bv, ok := b.(Float)
		return ok && av == bv
	case Text:
		bv, ok := b.(Text)
		return ok && av == bv
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case Unit:
		_, ok := b.(Unit)
		return ok
	case Skip:
		_, ok := b.(Skip)
		return ok
	case Key:
		bv, ok := b.(Key)
		return ok && av == bv
	case Flushed:
		bv, ok := b.(Flushed)
		return ok && Equal(av.Inner, bv.Inner)
	case Object:
		bv, ok := b.(Object)
		if !ok || av.Len() != bv.Len() {
			return false
		}
		for k, v := range av.fields {
			bvv, ok := bv.fields[k]
			if !ok || !Equal(v, bvv) {
				return false
			}
		}
		return true
	case List:
		bv, ok := b.(List)
		if !ok || av.Len() != bv.Len() {
			return false
		}
		for i, it := range av.items {
			if it.Key != bv.items[i].Key || !Equal(it.Value, bv.items[i].Value) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// String renders a value for logs and diagnostics.
func String(v Value) string {
	switch val := v.(type) {
	case Int:
		return fmt.Sprintf("%d", int64(val))
	case Float:
		return fmt.Sprintf("%g", float64(val))
	case Text:
		return fmt.Sprintf("%q", string(val))
	case Bool:
		return fmt.Sprintf("%t", bool(val))
	case Unit:
		return "unit"
	case Skip:
		return "skip"
	case Key:
		return fmt.Sprintf("key(%d)", uint64(val))
	case Flushed:
		return "flushed(" + String(val.Inner) + ")"
	case Object:
		var b strings.Builder
		b.WriteByte('{')
		for i, k := range val.SortedKeys() {
			if i > 0 {
				b.WriteString(", ")
			}
			fv, _ := val.Get(k)
			fmt.Fprintf(&b, "%s: %s", k, String(fv))
		}
		b.WriteByte('}')
		return b.String()
	case List:
		var b strings.Builder
		b.WriteByte('[')
		for i, it := range val.Items() {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "#%d=%s", uint64(it.Key), String(it.Value))
		}
		b.WriteByte(']')
		return b.String()
	default:
		return "unknown"
	}
}
