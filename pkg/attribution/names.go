package attribution

import (
	"context"
	"fmt"
	"strconv"

	"github.com/Sumatoshi-tech/launchtrace/pkg/tracestore"
)

// nameTable resolves thread and process names of one trace.
type nameTable struct {
	threads   map[int]tracestore.Thread
	processes map[int]string
	mains     []tracestore.Thread
}

func (a *Aggregator) loadNames(ctx context.Context) (nameTable, error) {
	threads, err := a.store.Threads(ctx, tracestore.ThreadQuery{})
	if err != nil {
		return nameTable{}, fmt.Errorf("list threads: %w", err)
	}

	procs, err := a.store.Processes(ctx)
	if err != nil {
		return nameTable{}, fmt.Errorf("list processes: %w", err)
	}

	nt := nameTable{
		threads:   make(map[int]tracestore.Thread, len(threads)),
		processes: make(map[int]string, len(procs)),
	}

	for _, th := range threads {
		nt.threads[th.TID] = th

		if th.IsMain() {
			nt.mains = append(nt.mains, th)
		}
	}

	for _, p := range procs {
		nt.processes[p.PID] = p.Name
	}

	return nt, nil
}

// processName resolves a pid to the recorded process name, then the main
// thread name, then a "PID-n" placeholder. A snapshot name replaces the
// placeholder. With skipAnonymous, binder and kworker main threads do not
// name their process.
func (nt nameTable) processName(pid int, identity map[int]string, skipAnonymous bool) string {
	if name := nt.processes[pid]; name != "" {
		return name
	}

	if main, ok := nt.threads[pid]; ok && main.Name != "" {
		if !skipAnonymous || !anonymous(main.Name) {
			return main.Name
		}
	}

	if name := identity[pid]; name != "" {
		return name
	}

	return pidPrefix + strconv.Itoa(pid)
}

func anonymous(name string) bool {
	for _, p := range anonymousMainThreads {
		if tracestore.Like(p, name) {
			return true
		}
	}

	return false
}

// mainPIDs returns the pids whose process or main-thread name matches any of
// patterns.
func (nt nameTable) mainPIDs(patterns []string) []int {
	var out []int

	for _, th := range nt.mains {
		name := nt.processes[th.PID]
		if name == "" {
			name = th.Name
		}

		for _, p := range patterns {
			if tracestore.Like(p, name) {
				out = append(out, th.PID)

				break
			}
		}
	}

	return out
}
