package attribution

import (
	"cmp"
	"slices"
)

// Sum is the accumulated value of one group.
type Sum[K comparable] struct {
	Key   K
	Total int64
	Count int
}

// SumBy groups items by key and sums value per group. Items for which key
// reports false are skipped. Groups keep first-seen order.
func SumBy[T any, K comparable](items []T, key func(T) (K, bool), value func(T) int64) []Sum[K] {
	index := make(map[K]int)

	var out []Sum[K]

	for _, item := range items {
		k, ok := key(item)
		if !ok {
			continue
		}

		i, seen := index[k]
		if !seen {
			i = len(out)
			index[k] = i
			out = append(out, Sum[K]{Key: k})
		}

		out[i].Total += value(item)
		out[i].Count++
	}

	return out
}

// TopN returns the n largest sums by Total, descending. Equal totals keep
// their input order. A non-positive n keeps every group.
func TopN[K comparable](sums []Sum[K], n int) []Sum[K] {
	out := slices.Clone(sums)

	slices.SortStableFunc(out, func(a, b Sum[K]) int {
		return cmp.Compare(b.Total, a.Total)
	})

	if n > 0 && len(out) > n {
		out = out[:n]
	}

	return out
}
