// Package interval provides an augmented interval tree for range-overlap
// queries over timestamps. Insert is O(log N) and QueryOverlap is
// O(log N + k), where k is the number of overlapping intervals.
//
// The tree is a red-black tree where each node stores the maximum right
// endpoint (maxHigh) of its subtree so overlap queries can prune whole
// subtrees.
package interval

import "cmp"

// Interval is a closed range [Low, High] with an attached Value.
type Interval[K cmp.Ordered, V any] struct {
	Low   K
	High  K
	Value V
}

// Tree is an insert-only augmented interval tree.
type Tree[K cmp.Ordered, V any] struct {
	root *node[K, V]
	size int
}

type node[K cmp.Ordered, V any] struct {
	interval    Interval[K, V]
	maxHigh     K
	left, right *node[K, V]
	parent      *node[K, V]
	color       color
}

type color bool

const (
	red   color = false
	black color = true
)

// New creates an empty tree.
func New[K cmp.Ordered, V any]() *Tree[K, V] {
	return &Tree[K, V]{}
}

// Len returns the number of intervals in the tree.
func (t *Tree[K, V]) Len() int {
	return t.size
}

// Insert adds [low, high] carrying value.
func (t *Tree[K, V]) Insert(low, high K, value V) {
	n := &node[K, V]{
		interval: Interval[K, V]{Low: low, High: high, Value: value},
		maxHigh:  high,
		color:    red,
	}

	t.bstInsert(n)
	t.insertFixup(n)
	t.size++
}

// QueryOverlap returns every interval [a, b] with a <= high and b >= low,
// ordered by Low, then High, then insertion order.
func (t *Tree[K, V]) QueryOverlap(low, high K) []Interval[K, V] {
	if t.root == nil {
		return nil
	}

	var results []Interval[K, V]

	collectOverlap(t.root, low, high, &results)

	return results
}

// bstInsert inserts by Low, then High; equal keys go right so in-order
// traversal keeps insertion order for duplicates.
func (t *Tree[K, V]) bstInsert(n *node[K, V]) {
	if t.root == nil {
		t.root = n

		return
	}

	current := t.root

	for {
		if n.interval.High > current.maxHigh {
			current.maxHigh = n.interval.High
		}

		if compareIntervals(n.interval, current.interval) < 0 {
			if current.left == nil {
				current.left = n
				n.parent = current

				return
			}

			current = current.left

			continue
		}

		if current.right == nil {
			current.right = n
			n.parent = current

			return
		}

		current = current.right
	}
}

func (t *Tree[K, V]) insertFixup(n *node[K, V]) {
	for n != t.root && nodeColor(n.parent) == red {
		parent := n.parent

		grandparent := parent.parent
		if grandparent == nil {
			break
		}

		leftCase := parent == grandparent.left
		uncle := childOf(grandparent, !leftCase)

		if nodeColor(uncle) == red {
			parent.color = black
			uncle.color = black
			grandparent.color = red
			n = grandparent

			continue
		}

		if n == childOf(parent, !leftCase) {
			t.rotate(parent, leftCase)
			n, parent = parent, n
		}

		parent.color = black
		grandparent.color = red
		t.rotate(grandparent, !leftCase)
	}

	t.root.color = black
}

// rotate rotates left at n when left is true, right otherwise.
func (t *Tree[K, V]) rotate(n *node[K, V], left bool) {
	var pivot *node[K, V]

	if left {
		pivot = n.right
		n.right = pivot.left

		if pivot.left != nil {
			pivot.left.parent = n
		}

		pivot.left = n
	} else {
		pivot = n.left
		n.left = pivot.right

		if pivot.right != nil {
			pivot.right.parent = n
		}

		pivot.right = n
	}

	pivot.parent = n.parent

	switch {
	case n.parent == nil:
		t.root = pivot
	case n == n.parent.left:
		n.parent.left = pivot
	default:
		n.parent.right = pivot
	}

	n.parent = pivot

	recalcMaxHigh(n)
	recalcMaxHigh(pivot)
}

func collectOverlap[K cmp.Ordered, V any](n *node[K, V], low, high K, results *[]Interval[K, V]) {
	if n == nil || n.maxHigh < low {
		return
	}

	collectOverlap(n.left, low, high, results)

	if n.interval.Low <= high && n.interval.High >= low {
		*results = append(*results, n.interval)
	}

	if n.interval.Low > high {
		return
	}

	collectOverlap(n.right, low, high, results)
}

func compareIntervals[K cmp.Ordered, V any](a, b Interval[K, V]) int {
	if c := cmp.Compare(a.Low, b.Low); c != 0 {
		return c
	}

	return cmp.Compare(a.High, b.High)
}

func nodeColor[K cmp.Ordered, V any](n *node[K, V]) color {
	if n == nil {
		return black
	}

	return n.color
}

func childOf[K cmp.Ordered, V any](n *node[K, V], left bool) *node[K, V] {
	if n == nil {
		return nil
	}

	if left {
		return n.left
	}

	return n.right
}

func recalcMaxHigh[K cmp.Ordered, V any](n *node[K, V]) {
	if n == nil {
		return
	}

	m := n.interval.High

	if n.left != nil && n.left.maxHigh > m {
		m = n.left.maxHigh
	}

	if n.right != nil && n.right.maxHigh > m {
		m = n.right.maxHigh
	}

	n.maxHigh = m
}
