package interval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test constants.
const (
	testLow10   = 10
	testHigh20  = 20
	testLow15   = 15
	testHigh25  = 25
	testLow30   = 30
	testHigh40  = 40
	testPoint12 = 12
	testPoint50 = 50
	testCount   = 1000
)

// TestNew verifies empty tree creation.
func TestNew(t *testing.T) {
	t.Parallel()

	tree := New[int64, int]()
	require.NotNil(t, tree)
	assert.Equal(t, 0, tree.Len())
	assert.Empty(t, tree.QueryOverlap(0, testPoint50))
}

// TestQueryOverlap_Basic verifies closed-range overlap semantics.
func TestQueryOverlap_Basic(t *testing.T) {
	t.Parallel()

	tree := New[int64, string]()
	tree.Insert(testLow10, testHigh20, "a")
	tree.Insert(testLow15, testHigh25, "b")
	tree.Insert(testLow30, testHigh40, "c")

	got := tree.QueryOverlap(testPoint12, testPoint12)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].Value)

	got = tree.QueryOverlap(testHigh20, testLow30)
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].Value)
	assert.Equal(t, "b", got[1].Value)
	assert.Equal(t, "c", got[2].Value)

	assert.Empty(t, tree.QueryOverlap(testPoint50, testPoint50))
}

// TestQueryOverlap_DuplicatesKeepInsertionOrder verifies stable ordering of equal keys.
func TestQueryOverlap_DuplicatesKeepInsertionOrder(t *testing.T) {
	t.Parallel()

	tree := New[int64, int]()
	for i := range 5 {
		tree.Insert(testLow10, testHigh20, i)
	}

	got := tree.QueryOverlap(testLow10, testLow10)
	require.Len(t, got, 5)

	for i, iv := range got {
		assert.Equal(t, i, iv.Value)
	}
}

// TestQueryOverlap_MatchesBruteForce verifies the tree against a linear scan.
func TestQueryOverlap_MatchesBruteForce(t *testing.T) {
	t.Parallel()

	tree := New[int64, int]()
	all := make([]Interval[int64, int], 0, testCount)

	for i := range testCount {
		low := int64((i * 7919) % testCount)
		high := low + int64(i%13)
		tree.Insert(low, high, i)
		all = append(all, Interval[int64, int]{Low: low, High: high, Value: i})
	}

	assert.Equal(t, testCount, tree.Len())

	for _, q := range [][2]int64{{0, 5}, {100, 120}, {500, 500}, {990, 2000}} {
		want := 0

		for _, iv := range all {
			if iv.Low <= q[1] && iv.High >= q[0] {
				want++
			}
		}

		got := tree.QueryOverlap(q[0], q[1])
		assert.Len(t, got, want, "query %v", q)

		for i := 1; i < len(got); i++ {
			assert.LessOrEqual(t, got[i-1].Low, got[i].Low)
		}
	}
}
