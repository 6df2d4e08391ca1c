package internal

// Change is the (previous, current) pair of one tracked field.
type Change struct {
	Previous any
	Current  any
}

// fieldSnapshot holds the persisted form of each tracked field, keyed by
// backend column name.
type fieldSnapshot map[string]any

func (s fieldSnapshot) clone() fieldSnapshot {
	out := make(fieldSnapshot, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// diff returns the fields of current that differ from s.
func (s fieldSnapshot) diff(current fieldSnapshot) map[string]Change {
	changes := make(map[string]Change)
	for field, value := range current {
		previous := s[field]
		if !valuesEqual(previous, value) {
			changes[field] = Change{Previous: previous, Current: value}
		}
	}
	return changes
}
