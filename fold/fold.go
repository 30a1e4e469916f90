// Package fold computes the deterministic fold assignment used by the
// K-Fold Cross-Trainer and, internally, by the Best-Model Selector's
// per-candidate cross-trainers.
package fold

import "fmt"

// mix64 is a fixed-point 64-bit avalanche mixer (the finalizer from
// Austin Appleby's MurmurHash3, also used by splitmix64-derived
// generators). The constants are fixed across platforms and processes
// so that Fold is reproducible everywhere, which rules out Go's
// process-seeded hash/maphash.
func mix64(x uint64) uint64 {
	x ^= x >> 33
	x *= 0xff51afd7ed558ccd
	x ^= x >> 33
	x *= 0xc4ceb9fe1a85ec53
	x ^= x >> 33
	return x
}

// Hash computes a structural, platform-independent hash of a group
// value. It covers scalars, []string and []any; anything else (maps
// included) falls back to its %#v rendering.
func Hash(v any) uint64 {
	return fnv1a(render(v))
}

// render produces a canonical byte-for-byte-deterministic string
// encoding of v, independent of map iteration order.
func render(v any) string {
	switch t := v.(type) {
	case nil:
		return "nil"
	case string:
		return "s:" + t
	case bool:
		if t {
			return "b:1"
		}
		return "b:0"
	case int:
		return fmt.Sprintf("i:%d", t)
	case int32:
		return fmt.Sprintf("i32:%d", t)
	case int64:
		return fmt.Sprintf("i64:%d", t)
	case uint:
		return fmt.Sprintf("u:%d", t)
	case uint64:
		return fmt.Sprintf("u64:%d", t)
	case float32:
		return fmt.Sprintf("f32:%x", t)
	case float64:
		return fmt.Sprintf("f64:%x", t)
	case []string:
		out := "ss["
		for _, e := range t {
			out += render(e) + ","
		}
		return out + "]"
	case []any:
		out := "sa["
		for _, e := range t {
			out += render(e) + ","
		}
		return out + "]"
	default:
		return fmt.Sprintf("v:%#v", t)
	}
}

// fnv1a is the 64-bit FNV-1a hash, used only to fold an arbitrary-length
// canonical string down to a uint64 before the mix64 avalanche; it
// carries no determinism burden of its own, `mix64` does.
func fnv1a(s string) uint64 {
	const (
		offset uint64 = 14695981039346656037
		prime  uint64 = 1099511628211
	)
	h := offset
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime
	}
	return h
}

// Fold computes the deterministic fold assignment for a group value:
// fold(group, k, seed) = abs(mix64(hash(group) xor seed)) mod k.
// Identical (group, k, seed) always yields the same fold, independent
// of machine, process, or execution order.
func Fold(group any, k int, seed uint64) int {
	if k <= 0 {
		panic("fold: k must be positive")
	}
	h := Hash(group)
	mixed := mix64(h ^ seed)
	// mixed is unsigned already; "abs" in the spec's pseudocode guards
	// against a signed mix in languages without unsigned 64-bit ints.
	return int(mixed % uint64(k))
}
