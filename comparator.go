package keyedpager

// Comparator is a function type that compares two keys.
// It returns:
//   - negative value if a < b
//   - zero if a == b
//   - positive value if a > b
type Comparator[K any] func(a, b K) int

// Ordered is a constraint that permits any type with a natural < ordering.
type Ordered interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr |
		~float32 | ~float64 |
		~string
}

// NaturalOrder returns a comparator using the key type's natural ordering.
// This is the default order of a window when no comparator is supplied.
func NaturalOrder[K Ordered]() Comparator[K] {
	return func(a, b K) int {
		if a < b {
			return -1
		}
		if a > b {
			return 1
		}
		return 0
	}
}

// Reverse returns a new comparator that reverses the order of the original.
func Reverse[K any](cmp Comparator[K]) Comparator[K] {
	return func(a, b K) int {
		return cmp(b, a)
	}
}
