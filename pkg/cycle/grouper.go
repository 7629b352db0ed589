// Package cycle buckets trace files into (app, cycle, entry/re-entry) slots.
package cycle

import (
	"cmp"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
)

// ErrUnknownKind is returned when decoding an unrecognised kind.
var ErrUnknownKind = errors.New("unknown cycle kind")

// Kind tells whether a trace is the first or second run of a cycle.
type Kind uint8

// Kinds.
const (
	Entry Kind = iota
	Reentry
)

func (k Kind) String() string {
	if k == Reentry {
		return "reentry"
	}

	return "entry"
}

// MarshalText encodes the kind name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name.
func (k *Kind) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "entry":
		*k = Entry
	case "reentry":
		*k = Reentry
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, text)
	}

	return nil
}

// Group is one trace's slot.
type Group struct {
	App string `json:"app"`
	// Ordinal is the 1-based occurrence of App in file order.
	Ordinal int    `json:"ordinal"`
	Cycle   int    `json:"cycle"`
	Kind    Kind   `json:"kind"`
	File    string `json:"file"`
}

// Slot returns ordinal-derived cycle index and kind.
func Slot(ordinal int) (int, Kind) {
	kind := Entry
	if ordinal%2 == 0 {
		kind = Reentry
	}

	return (ordinal - 1) / 2, kind
}

// Grouper assigns trace files to apps by keyword.
type Grouper struct {
	keywords []string
}

// NewGrouper creates a grouper. Keyword order is significant: the first
// keyword contained in a file's app token wins.
func NewGrouper(keywords []string) *Grouper {
	return &Grouper{keywords: slices.Clone(keywords)}
}

// Token returns the lower-cased last underscore-separated field of the file
// stem, and false when the stem has no underscore.
func Token(file string) (string, bool) {
	base := filepath.Base(file)
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	idx := strings.LastIndexByte(stem, '_')
	if idx < 0 {
		return "", false
	}

	return strings.ToLower(stem[idx+1:]), true
}

// Keyword returns the app keyword matching file.
func (g *Grouper) Keyword(file string) (string, bool) {
	token, ok := Token(file)
	if !ok {
		return "", false
	}

	for _, kw := range g.keywords {
		if strings.Contains(token, kw) {
			return kw, true
		}
	}

	return "", false
}

// CompareFiles orders trace paths by base name, then by full path. Capture
// names carry their timestamp, so this is capture order across directories.
func CompareFiles(a, b string) int {
	return cmp.Or(
		cmp.Compare(filepath.Base(a), filepath.Base(b)),
		cmp.Compare(a, b),
	)
}

// Group sorts files with CompareFiles and assigns each matching file its
// slot. Files matching no keyword are dropped.
func (g *Grouper) Group(files []string) []Group {
	sorted := slices.Clone(files)
	slices.SortFunc(sorted, CompareFiles)

	seen := make(map[string]int)

	var out []Group

	for _, f := range sorted {
		app, ok := g.Keyword(f)
		if !ok {
			continue
		}

		seen[app]++
		ordinal := seen[app]
		idx, kind := Slot(ordinal)

		out = append(out, Group{App: app, Ordinal: ordinal, Cycle: idx, Kind: kind, File: f})
	}

	return out
}

// ByApp indexes groups by app keyword, each list in ordinal order.
func ByApp(groups []Group) map[string][]Group {
	out := make(map[string][]Group)
	for _, g := range groups {
		out[g.App] = append(out[g.App], g)
	}

	return out
}
