package tracestore

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/Sumatoshi-tech/launchtrace/pkg/alg/interval"
)

// MemoryStore is a Store over an in-memory Dataset. Overlap queries run on
// interval trees built lazily on first use. Add methods must not be called
// concurrently with queries.
type MemoryStore struct {
	mu      sync.Mutex
	data    Dataset
	indexed bool

	byName   map[string][]int
	threads  map[int]Thread
	states   *interval.Tree[int64, int]
	sched    *interval.Tree[int64, int]
	nextSpan int64
	spanIDs  map[int64]struct{}
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// NewMemoryStoreFrom wraps an existing dataset. Zero and duplicate span IDs
// are reassigned in slice order.
func NewMemoryStoreFrom(data Dataset) *MemoryStore {
	ms := NewMemoryStore()

	for _, s := range data.Spans {
		ms.AddSpan(s)
	}

	ms.data.Threads = append(ms.data.Threads, data.Threads...)
	ms.data.Processes = append(ms.data.Processes, data.Processes...)
	ms.data.States = append(ms.data.States, data.States...)
	ms.data.Sched = append(ms.data.Sched, data.Sched...)

	return ms
}

// AddSpan appends a span and returns its ID. A zero or already used ID is
// replaced by one above every ID seen so far.
func (ms *MemoryStore) AddSpan(s Span) int64 {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if ms.spanIDs == nil {
		ms.spanIDs = make(map[int64]struct{})
	}

	if _, taken := ms.spanIDs[s.ID]; s.ID == 0 || taken {
		s.ID = ms.nextSpan + 1
	}

	ms.spanIDs[s.ID] = struct{}{}
	ms.nextSpan = max(ms.nextSpan, s.ID)

	ms.data.Spans = append(ms.data.Spans, s)
	ms.indexed = false

	return s.ID
}

// AddThread registers or renames a thread.
func (ms *MemoryStore) AddThread(th Thread) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	for i := range ms.data.Threads {
		if ms.data.Threads[i].TID == th.TID {
			ms.data.Threads[i] = th
			ms.indexed = false

			return
		}
	}

	ms.data.Threads = append(ms.data.Threads, th)
	ms.indexed = false
}

// AddProcess registers or renames a process.
func (ms *MemoryStore) AddProcess(p Process) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	for i := range ms.data.Processes {
		if ms.data.Processes[i].PID == p.PID {
			ms.data.Processes[i] = p

			return
		}
	}

	ms.data.Processes = append(ms.data.Processes, p)
}

// AddState appends a thread-state interval.
func (ms *MemoryStore) AddState(st StateSlice) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.data.States = append(ms.data.States, st)
	ms.indexed = false
}

// AddSched appends a CPU scheduling interval.
func (ms *MemoryStore) AddSched(sc SchedSlice) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.data.Sched = append(ms.data.Sched, sc)
	ms.indexed = false
}

// Dataset returns the store content with spans in query order.
func (ms *MemoryStore) Dataset() Dataset {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.index()

	return Dataset{
		Spans:     slices.Clone(ms.data.Spans),
		Threads:   slices.Clone(ms.data.Threads),
		Processes: slices.Clone(ms.data.Processes),
		States:    slices.Clone(ms.data.States),
		Sched:     slices.Clone(ms.data.Sched),
	}
}

// index must be called with mu held.
func (ms *MemoryStore) index() {
	if ms.indexed {
		return
	}

	slices.SortStableFunc(ms.data.Spans, func(a, b Span) int {
		if c := cmp.Compare(a.Start, b.Start); c != 0 {
			return c
		}

		return cmp.Compare(a.ID, b.ID)
	})

	ms.byName = make(map[string][]int)
	for i, s := range ms.data.Spans {
		ms.byName[s.Name] = append(ms.byName[s.Name], i)
	}

	ms.threads = make(map[int]Thread, len(ms.data.Threads))
	for _, th := range ms.data.Threads {
		ms.threads[th.TID] = th
	}

	ms.states = interval.New[int64, int]()

	for i, st := range ms.data.States {
		if st.Dur > 0 {
			ms.states.Insert(st.Start, st.Start+st.Dur-1, i)
		}
	}

	ms.sched = interval.New[int64, int]()

	for i, sc := range ms.data.Sched {
		if sc.Dur > 0 {
			ms.sched.Insert(sc.Start, sc.Start+sc.Dur-1, i)
		}
	}

	ms.indexed = true
}

// FirstSpan implements Store.
func (ms *MemoryStore) FirstSpan(ctx context.Context, q SpanQuery) (Span, bool, error) {
	q.Limit = 1

	spans, err := ms.Spans(ctx, q)
	if err != nil || len(spans) == 0 {
		return Span{}, false, err
	}

	return spans[0], true, nil
}

// Spans implements Store.
func (ms *MemoryStore) Spans(ctx context.Context, q SpanQuery) ([]Span, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.index()

	candidates := ms.candidates(q)
	if q.Descending {
		slices.Reverse(candidates)
	}

	var out []Span

	for _, idx := range candidates {
		s := ms.data.Spans[idx]
		if !matchSpan(q, s) {
			continue
		}

		out = append(out, s)

		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}

	return out, nil
}

// candidates returns span indexes in ascending order, narrowed by exact names.
func (ms *MemoryStore) candidates(q SpanQuery) []int {
	names := q.Names
	if q.Name != "" {
		names = []string{q.Name}
	}

	if len(names) == 0 {
		all := make([]int, len(ms.data.Spans))
		for i := range all {
			all[i] = i
		}

		return all
	}

	var out []int
	for _, n := range names {
		out = append(out, ms.byName[n]...)
	}

	slices.Sort(out)

	return slices.Compact(out)
}

func matchSpan(q SpanQuery, s Span) bool {
	if q.Name != "" && s.Name != q.Name {
		return false
	}

	if len(q.Names) > 0 && !slices.Contains(q.Names, s.Name) {
		return false
	}

	if q.Pattern != "" && !Like(q.Pattern, s.Name) {
		return false
	}

	if q.PID != 0 && s.PID != q.PID {
		return false
	}

	if q.TID != 0 && s.TID != q.TID {
		return false
	}

	switch q.Track {
	case TrackThread:
		if s.Async() {
			return false
		}
	case TrackProcess:
		if !s.Async() {
			return false
		}
	case TrackAny:
	}

	if lo, ok := q.MinStart.Get(); ok && s.Start < lo {
		return false
	}

	if hi, ok := q.MaxStart.Get(); ok && s.Start > hi {
		return false
	}

	return true
}

// Overlap implements Store.
func (ms *MemoryStore) Overlap(ctx context.Context, q OverlapQuery) ([]Segment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !q.Window.Valid() {
		return nil, nil
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.index()

	tree := ms.states
	if q.Timeline == TimelineSched {
		tree = ms.sched
	}

	hits := tree.QueryOverlap(q.Window.Start, q.Window.End-1)
	slices.SortFunc(hits, func(a, b interval.Interval[int64, int]) int {
		if c := cmp.Compare(a.Low, b.Low); c != 0 {
			return c
		}

		return cmp.Compare(a.Value, b.Value)
	})

	out := make([]Segment, 0, len(hits))

	for _, h := range hits {
		seg := ms.segment(q.Timeline, h.Value)

		if len(q.TIDs) > 0 && !slices.Contains(q.TIDs, seg.TID) {
			continue
		}

		if q.Timeline == TimelineSched && len(q.CPUs) > 0 && !slices.Contains(q.CPUs, seg.CPU) {
			continue
		}

		if q.Timeline == TimelineThreadState && len(q.Labels) > 0 && !slices.Contains(q.Labels, seg.Label) {
			continue
		}

		seg.Overlap = q.Window.Clip(seg.Start, seg.Start+seg.Dur)
		out = append(out, seg)
	}

	return out, nil
}

func (ms *MemoryStore) segment(tl Timeline, idx int) Segment {
	if tl == TimelineSched {
		sc := ms.data.Sched[idx]

		return Segment{
			Label: StateRunning,
			TID:   sc.TID,
			PID:   ms.threads[sc.TID].PID,
			CPU:   sc.CPU,
			Start: sc.Start,
			Dur:   sc.Dur,
		}
	}

	st := ms.data.States[idx]

	return Segment{
		Label: st.State,
		TID:   st.TID,
		PID:   ms.threads[st.TID].PID,
		CPU:   -1,
		Start: st.Start,
		Dur:   st.Dur,
	}
}

// Threads implements Store.
func (ms *MemoryStore) Threads(ctx context.Context, q ThreadQuery) ([]Thread, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	var out []Thread

	for _, th := range ms.data.Threads {
		if q.PID != 0 && th.PID != q.PID {
			continue
		}

		if q.MainOnly && !th.IsMain() {
			continue
		}

		if q.Pattern != "" && !Like(q.Pattern, th.Name) {
			continue
		}

		out = append(out, th)
	}

	slices.SortFunc(out, func(a, b Thread) int { return cmp.Compare(a.TID, b.TID) })

	return out, nil
}

// Processes implements Store.
func (ms *MemoryStore) Processes(ctx context.Context) ([]Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	out := slices.Clone(ms.data.Processes)
	slices.SortFunc(out, func(a, b Process) int { return cmp.Compare(a.PID, b.PID) })

	return out, nil
}

// Close implements Store.
func (ms *MemoryStore) Close() error {
	return nil
}
