package store

import (
	"fmt"

	"github.com/weftlang/weft/internal/value"
)

// marshalValue serializes a value as canonical JSON text for storage.
func marshalValue(v value.Value) (string, error) {
	data, err := value.MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("marshal value: %w", err)
	}
	return string(data), nil
}

func unmarshalValue(s string) (value.Value, error) {
	v, err := value.UnmarshalCanonical([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("unmarshal value: %w", err)
	}
	return v, nil
}

// marshalItems serializes collection items as a canonical JSON list,
// preserving item keys and order.
func marshalItems(items []value.ListItem) (string, error) {
	return marshalValue(value.NewList(items))
}

func unmarshalItems(s string) ([]value.ListItem, error) {
	v, err := unmarshalValue(s)
	if err != nil {
		return nil, err
	}
	l, ok := v.(value.List)
	if !ok {
		return nil, fmt.Errorf("unmarshal items: expected list, got %T", v)
	}
	return l.Items(), nil
}
