// Package identity builds pid-to-name tables from memory snapshots and
// assigns each trace the snapshot taken after its run.
package identity

import (
	"regexp"
	"strconv"
	"strings"
)

// Table maps pids to process names. An empty table is valid.
type Table map[int]string

const (
	pssStart      = "Total PSS by process:"
	pssEnd        = "Total PSS by OOM adjustment:"
	pssSectionCap = 50_000
)

var pssLine = regexp.MustCompile(`^\s*([\d,]+)K:\s+(.+?)\s+\(pid\s+(\d+)`)

// ParsePSS extracts the table from the "Total PSS by process" section of a
// bugreport. Text without the section yields an empty table.
func ParsePSS(text string) Table {
	table := Table{}

	start := strings.Index(text, pssStart)
	if start < 0 {
		return table
	}

	section := text[start:]
	if end := strings.Index(section, pssEnd); end >= 0 {
		section = section[:end]
	} else if len(section) > pssSectionCap {
		section = section[:pssSectionCap]
	}

	for line := range strings.SplitSeq(section, "\n") {
		m := pssLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}

		pid, err := strconv.Atoi(m[3])
		if err != nil {
			continue
		}

		table[pid] = strings.TrimSpace(m[2])
	}

	return table
}
