package library

import (
	"encoding/json"
	"fmt"
)

// Overlay applies loosely-typed fields (a hydrated blob payload) on top of
// an item. Keys are JSON field names. skip, when non-nil, vetoes keys the
// caller has written since the payload was requested. The item identity is
// never overwritten and keys that do not decode are dropped one by one
// instead of failing the whole overlay. It returns the keys applied.
func Overlay(it *Item, fields map[string]json.RawMessage, skip func(key string) bool) ([]string, error) {
	base, err := toFieldMap(*it)
	if err != nil {
		return nil, err
	}

	var applied []string
	for key, val := range fields {
		if key == "id" {
			continue
		}
		if skip != nil && skip(key) {
			continue
		}
		prev, had := base[key]
		base[key] = val
		if _, err := fromFieldMap(base); err != nil {
			if had {
				base[key] = prev
			} else {
				delete(base, key)
			}
			continue
		}
		applied = append(applied, key)
	}

	merged, err := fromFieldMap(base)
	if err != nil {
		return nil, err
	}
	*it = merged
	return applied, nil
}

func toFieldMap(it Item) (map[string]json.RawMessage, error) {
	data, err := json.Marshal(it)
	if err != nil {
		return nil, fmt.Errorf("failed to encode item: %w", err)
	}
	m := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to split item fields: %w", err)
	}
	return m, nil
}

func fromFieldMap(m map[string]json.RawMessage) (Item, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return Item{}, err
	}
	return DecodeItem(data)
}
