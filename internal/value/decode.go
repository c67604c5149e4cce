package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// UnmarshalCanonical decodes a value previously encoded with
// MarshalCanonical. Numbers without a fraction or exponent decode as
// Int; everything else as Float.
func UnmarshalCanonical(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	return fromRaw(raw)
}

func fromRaw(raw any) (Value, error) {
	switch t := raw.(type) {
	case nil:
		return Unit{}, nil
	case bool:
		return Bool(t), nil
	case string:
		return Text(t), nil
	case json.Number:
		return numberValue(t)
	case []any:
		return listFromRaw(t)
	case map[string]any:
		return objectFromRaw(t)
	default:
		return nil, fmt.Errorf("decode value: unsupported JSON type %T", raw)
	}
}

func numberValue(n json.Number) (Value, error) {
	s := n.String()
	if !bytes.ContainsAny([]byte(s), ".eE") {
		i, err := n.Int64()
		if err == nil {
			return Int(i), nil
		}
	}
	f, err := n.Float64()
	if err != nil {
		return nil, fmt.Errorf("decode number %q: %w", s, err)
	}
	return Float(f), nil
}

func objectFromRaw(m map[string]any) (Value, error) {
	// Sentinel encodings first.
	if b, ok := m["$skip"].(bool); ok && b && len(m) == 1 {
		return Skip{}, nil
	}
	if b, ok := m["$unit"].(bool); ok && b && len(m) == 1 {
		return Unit{}, nil
	}
	if inner, ok := m["$flushed"]; ok && len(m) == 1 {
		v, err := fromRaw(inner)
		if err != nil {
			return nil, err
		}
		return Flushed{Inner: v}, nil
	}
	fields := make(map[string]Value, len(m))
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		v, err := fromRaw(m[name])
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		fields[name] = v
	}
	return NewObject(fields), nil
}

func listFromRaw(arr []any) (Value, error) {
	items := make([]ListItem, 0, len(arr))
	for i, el := range arr {
		m, ok := el.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("list item %d: expected keyed item object", i)
		}
		kn, ok := m["key"].(json.Number)
		if !ok {
			return nil, fmt.Errorf("list item %d: missing key", i)
		}
		k, err := kn.Int64()
		if err != nil {
			return nil, fmt.Errorf("list item %d key: %w", i, err)
		}
		v, err := fromRaw(m["value"])
		if err != nil {
			return nil, fmt.Errorf("list item %d value: %w", i, err)
		}
		items = append(items, ListItem{Key: ItemKey(k), Value: v})
	}
	return NewList(items), nil
}
