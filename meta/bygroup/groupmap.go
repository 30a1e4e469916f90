package bygroup

import "github.com/zerfoo/metagraph/row"

// groupMap is an insertion-ordered map keyed by row.GroupKey: a slice of
// keys alongside the usual map index, so iteration order matches
// first-insertion order. This resolves the source's unspecified
// "arbitrary but deterministic" USE_ANY choice by construction: "first
// group seen" is well defined and stable within a process.
type groupMap[V any] struct {
	keys   []row.GroupKey
	index  map[row.GroupKey]int
	values []V
}

func newGroupMap[V any]() *groupMap[V] {
	return &groupMap[V]{index: make(map[row.GroupKey]int)}
}

// getOrCreate returns the existing value for key, or calls create and
// stores its result if key has not been seen before. create may fail;
// on failure the key is not inserted.
func (m *groupMap[V]) getOrCreate(key row.GroupKey, create func() (V, error)) (V, error) {
	if i, ok := m.index[key]; ok {
		return m.values[i], nil
	}
	v, err := create()
	if err != nil {
		var zero V
		return zero, err
	}
	m.index[key] = len(m.values)
	m.keys = append(m.keys, key)
	m.values = append(m.values, v)
	return v, nil
}

func (m *groupMap[V]) get(key row.GroupKey) (V, bool) {
	i, ok := m.index[key]
	if !ok {
		var zero V
		return zero, false
	}
	return m.values[i], true
}

// Keys returns every key seen, in first-insertion order.
func (m *groupMap[V]) Keys() []row.GroupKey {
	out := make([]row.GroupKey, len(m.keys))
	copy(out, m.keys)
	return out
}

func (m *groupMap[V]) Len() int { return len(m.keys) }
