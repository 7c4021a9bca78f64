package audit

import (
	"reflect"
)

// Change records a single field transition inside a diff
type Change struct {
	From interface{} `json:"from"`
	To   interface{} `json:"to"`
}

// DiffMap maps field names to Change values, or to the whole entity under
// the "created"/"deleted" keys for lifecycle transitions.
type DiffMap = map[string]interface{}

const (
	// KeyCreated holds the full entity when there is no before state
	KeyCreated = "created"
	// KeyDeleted holds the full entity when there is no after state
	KeyDeleted = "deleted"
)

// Diff computes a structural comparison over the union of both maps' keys.
// A key appears in the output only if its value changed by deep equality.
// A nil before yields a single created entry; a nil after yields a single
// deleted entry. The result is empty iff before and after are deep-equal.
func Diff(before, after map[string]interface{}) DiffMap {
	if before == nil && after == nil {
		return DiffMap{}
	}
	if before == nil {
		return DiffMap{KeyCreated: after}
	}
	if after == nil {
		return DiffMap{KeyDeleted: before}
	}

	diff := DiffMap{}
	for key, beforeVal := range before {
		afterVal, ok := after[key]
		if !ok {
			diff[key] = Change{From: beforeVal, To: nil}
			continue
		}
		if !reflect.DeepEqual(beforeVal, afterVal) {
			diff[key] = Change{From: beforeVal, To: afterVal}
		}
	}
	for key, afterVal := range after {
		if _, ok := before[key]; !ok {
			diff[key] = Change{From: nil, To: afterVal}
		}
	}
	return diff
}
