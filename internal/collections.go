package internal

// OrderedSet is a set that remembers insertion order, so anything rendered
// from it (join clauses, grouped statements) comes out deterministically.
type OrderedSet[T comparable] struct {
	index map[T]int
	items []T
}

// NewOrderedSet creates and returns a new empty OrderedSet.
func NewOrderedSet[T comparable]() *OrderedSet[T] {
	return &OrderedSet[T]{
		index: make(map[T]int),
	}
}

// Add inserts item and reports whether it was not already present.
func (s *OrderedSet[T]) Add(item T) bool {
	if _, exists := s.index[item]; exists {
		return false
	}
	s.index[item] = len(s.items)
	s.items = append(s.items, item)
	return true
}

// Contains checks if an item exists in the set.
func (s *OrderedSet[T]) Contains(item T) bool {
	_, exists := s.index[item]
	return exists
}

// Size returns the number of items in the set.
func (s *OrderedSet[T]) Size() int {
	return len(s.items)
}

// ToSlice returns the items in insertion order.
func (s *OrderedSet[T]) ToSlice() []T {
	out := make([]T, len(s.items))
	copy(out, s.items)
	return out
}

// GroupBy buckets items by key, keeping first-seen key order and the
// original item order within each bucket.
func GroupBy[K comparable, V any](items []V, key func(V) K) ([]K, map[K][]V) {
	keys := NewOrderedSet[K]()
	groups := make(map[K][]V)
	for _, item := range items {
		k := key(item)
		keys.Add(k)
		groups[k] = append(groups[k], item)
	}
	return keys.ToSlice(), groups
}
