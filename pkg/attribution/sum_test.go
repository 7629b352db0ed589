package attribution_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Sumatoshi-tech/launchtrace/pkg/attribution"
)

type sample struct {
	key string
	val int64
}

func sampleKey(s sample) (string, bool) { return s.key, s.key != "" }

func sampleVal(s sample) int64 { return s.val }

// TestSumBy verifies grouping keeps first-seen order and skips rejected keys.
func TestSumBy(t *testing.T) {
	t.Parallel()

	items := []sample{{"b", 1}, {"a", 2}, {"", 100}, {"b", 3}}

	got := attribution.SumBy(items, sampleKey, sampleVal)

	assert.Equal(t, []attribution.Sum[string]{
		{Key: "b", Total: 4, Count: 2},
		{Key: "a", Total: 2, Count: 1},
	}, got)
}

// TestTopN verifies descending order, stable ties and truncation.
func TestTopN(t *testing.T) {
	t.Parallel()

	sums := []attribution.Sum[string]{
		{Key: "x", Total: 5},
		{Key: "y", Total: 9},
		{Key: "z", Total: 5},
		{Key: "w", Total: 1},
	}

	top := attribution.TopN(sums, 3)

	assert.Equal(t, []string{"y", "x", "z"}, keys(top))
	assert.Equal(t, "x", sums[0].Key, "input is not reordered")
	assert.Len(t, attribution.TopN(sums, 0), 4)
}

func keys(sums []attribution.Sum[string]) []string {
	out := make([]string, 0, len(sums))
	for _, s := range sums {
		out = append(out, s.Key)
	}

	return out
}
