package models

import (
	"strconv"
	"strings"
)

// Snapshot is a JSON-shaped document addressed by dotted paths
type Snapshot map[string]any

// Lookup walks a dotted path. Numeric segments index into lists. A missing
// segment yields (nil, false).
func (s Snapshot) Lookup(path string) (any, bool) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, false
	}

	var current any = map[string]any(s)
	for _, segment := range strings.Split(path, ".") {
		switch node := current.(type) {
		case map[string]any:
			next, ok := node[segment]
			if !ok {
				return nil, false
			}
			current = next
		case Snapshot:
			next, ok := node[segment]
			if !ok {
				return nil, false
			}
			current = next
		case []any:
			idx, err := strconv.Atoi(segment)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			current = node[idx]
		case []string:
			idx, err := strconv.Atoi(segment)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			current = node[idx]
		default:
			return nil, false
		}
	}
	return current, true
}

// RefID reads a reference field that may hold either a bare id or a populated
// sub-document carrying _id or id.
func RefID(v any) string {
	switch ref := v.(type) {
	case nil:
		return ""
	case string:
		return ref
	case map[string]any:
		if id, ok := ref["_id"]; ok {
			return RefID(id)
		}
		if id, ok := ref["id"]; ok {
			return RefID(id)
		}
		return ""
	case float64:
		return strconv.FormatFloat(ref, 'f', -1, 64)
	case int:
		return strconv.Itoa(ref)
	case int64:
		return strconv.FormatInt(ref, 10)
	default:
		return ""
	}
}
