package identity

import (
	"log/slog"
	"slices"
	"strings"

	"github.com/Sumatoshi-tech/launchtrace/pkg/cycle"
)

// Item is a trace or a snapshot taking part in matching.
type Item struct {
	Path     string `json:"path"`
	Snapshot bool   `json:"snapshot,omitempty"`
	// Group is the app group, 1-based; 0 means unrecognised.
	Group int `json:"group"`
}

// Groups maps app tokens to app groups.
type Groups struct {
	groups [][]string
}

// NewGroups creates the group table; group N is groups[N-1].
func NewGroups(groups [][]string) Groups {
	return Groups{groups: groups}
}

// Len returns the number of groups.
func (g Groups) Len() int {
	return len(g.groups)
}

// Of returns the group whose keyword is contained in app, or 0.
func (g Groups) Of(app string) int {
	app = strings.ToLower(app)

	for i, keywords := range g.groups {
		for _, kw := range keywords {
			if strings.Contains(app, kw) {
				return i + 1
			}
		}
	}

	return 0
}

// Trace classifies a trace file by its app token.
func (g Groups) Trace(path string) Item {
	item := Item{Path: path}

	if token, ok := cycle.Token(path); ok {
		item.Group = g.Of(token)
	}

	return item
}

// Snapshot classifies a snapshot by its group token.
func (g Groups) Snapshot(path string) Item {
	return Item{Path: path, Snapshot: true, Group: SnapshotGroup(path, g.Len())}
}

// Assignment maps trace paths to their identity table.
type Assignment map[string]Table

// Table returns the table assigned to path, or an empty table.
func (a Assignment) Table(path string) Table {
	if t, ok := a[path]; ok {
		return t
	}

	return Table{}
}

// ParseFunc loads one snapshot's table.
type ParseFunc func(Item) (Table, error)

// Match assigns every recognised trace the table of the next snapshot of its
// group. mark is the highest group seen, trace or snapshot, since the last
// cycle boundary; a trace whose group is below it starts a new cycle and
// every pending trace is then left with an empty table. Snapshots that
// fail to parse assign empty tables. Traces with group 0 are left out.
func Match(items []Item, parse ParseFunc, logger *slog.Logger) Assignment {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	sorted := slices.Clone(items)
	slices.SortStableFunc(sorted, func(a, b Item) int {
		return cycle.CompareFiles(a.Path, b.Path)
	})

	out := Assignment{}
	pending := make(map[int][]string)
	mark := 0

	flush := func() {
		for _, paths := range pending {
			for _, p := range paths {
				out[p] = Table{}
			}
		}

		clear(pending)
	}

	for _, it := range sorted {
		if it.Group == 0 {
			if !it.Snapshot {
				logger.Warn("trace excluded from snapshot matching", "file", it.Path)
			}

			continue
		}

		if !it.Snapshot {
			if it.Group < mark {
				flush()

				mark = 0
			}

			pending[it.Group] = append(pending[it.Group], it.Path)
			mark = max(mark, it.Group)

			continue
		}

		table, err := parse(it)
		if err != nil {
			logger.Warn("snapshot unreadable", "file", it.Path, "error", err)

			table = Table{}
		}

		for _, p := range pending[it.Group] {
			out[p] = table
		}

		delete(pending, it.Group)
		mark = max(mark, it.Group)
	}

	flush()

	return out
}
