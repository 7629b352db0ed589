// Package atrace loads Android systrace/atrace captures (ftrace text) into a
// tracestore.MemoryStore.
//
// Userspace slices come from tracing_mark_write B/E (thread slices) and S/F
// (process-track async slices). Thread states and CPU slices come from
// sched_switch and sched_wakeup events. Slices still open when the trace
// ends are closed at the last timestamp seen.
package atrace

import (
	"bufio"
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/Sumatoshi-tech/launchtrace/pkg/tracestore"
)

// ErrNoEvents is returned when a capture holds no parseable ftrace events.
var ErrNoEvents = errors.New("no trace events found")

const (
	nsPerSecond     = 1_000_000_000
	fracDigits      = 9
	maxLineBytes    = 4 << 20
	ctxCheckEvery   = 1 << 14
	unknownComm     = "<...>"
	markBegin       = 'B'
	markEnd         = 'E'
	markAsyncBegin  = 'S'
	markAsyncFinish = 'F'
)

var (
	lineRe = regexp.MustCompile(
		`^\s*(.+)-(\d+)\s+(?:\(\s*([\d-]+)\)\s+)?\[(\d+)\]\s+(?:\S+\s+)?(\d+)\.(\d+):\s+([\w.]+):\s?(.*)$`)
	switchRe = regexp.MustCompile(
		`prev_comm=(.*) prev_pid=(\d+) prev_prio=-?\d+ prev_state=(\S+) ==> next_comm=(.*) next_pid=(\d+) next_prio=-?\d+`)
	wakeupRe = regexp.MustCompile(`comm=(.*) pid=(\d+) prio=-?\d+`)
)

// event is one parsed ftrace line.
type event struct {
	comm    string
	tid     int
	tgid    int
	cpu     int
	ts      int64
	name    string
	payload string
}

type openSlice struct {
	name  string
	start int64
	pid   int
}

type asyncKey struct {
	pid    int
	name   string
	cookie string
}

type threadState struct {
	state string
	start int64
	cpu   int
}

// Options configures a parser.
type Options struct {
	Logger *slog.Logger
}

type parser struct {
	store  *tracestore.MemoryStore
	logger *slog.Logger

	threads map[int]*tracestore.Thread
	stacks  map[int][]openSlice
	async   map[asyncKey]openSlice
	states  map[int]*threadState

	lastTS  int64
	events  int
	skipped int
}

// LoadFile reads and parses a capture from disk.
func LoadFile(ctx context.Context, path string, opts Options) (*tracestore.MemoryStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read trace: %w", err)
	}

	return LoadBytes(ctx, data, opts)
}

// Load reads a capture from r and parses it.
func Load(ctx context.Context, r io.Reader, opts Options) (*tracestore.MemoryStore, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read trace: %w", err)
	}

	return LoadBytes(ctx, data, opts)
}

// LoadBytes unwraps and parses a capture held in memory.
func LoadBytes(ctx context.Context, data []byte, opts Options) (*tracestore.MemoryStore, error) {
	text, err := Unwrap(data)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	p := &parser{
		store:   tracestore.NewMemoryStore(),
		logger:  logger,
		threads: make(map[int]*tracestore.Thread),
		stacks:  make(map[int][]openSlice),
		async:   make(map[asyncKey]openSlice),
		states:  make(map[int]*threadState),
	}

	scanner := bufio.NewScanner(bytes.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	lines := 0

	for scanner.Scan() {
		lines++
		if lines%ctxCheckEvery == 0 {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
		}

		p.parseLine(scanner.Text())
	}

	if scanErr := scanner.Err(); scanErr != nil {
		return nil, fmt.Errorf("scan trace: %w", scanErr)
	}

	if p.events == 0 {
		return nil, ErrNoEvents
	}

	p.finish()

	logger.DebugContext(ctx, "trace parsed", "events", p.events, "skipped", p.skipped)

	return p.store, nil
}

func (p *parser) parseLine(line string) {
	if line == "" || line[0] == '#' {
		return
	}

	ev, ok := parseEvent(line)
	if !ok {
		p.skipped++

		return
	}

	p.events++
	p.lastTS = max(p.lastTS, ev.ts)
	p.noteThread(ev.tid, ev.tgid, ev.comm)

	switch ev.name {
	case "tracing_mark_write":
		p.onMark(ev)
	case "sched_switch":
		p.onSwitch(ev)
	case "sched_wakeup", "sched_wakeup_new", "sched_waking":
		p.onWakeup(ev)
	}
}

func parseEvent(line string) (event, bool) {
	m := lineRe.FindStringSubmatch(line)
	if m == nil {
		return event{}, false
	}

	tid, err := strconv.Atoi(m[2])
	if err != nil {
		return event{}, false
	}

	cpu, err := strconv.Atoi(m[4])
	if err != nil {
		return event{}, false
	}

	ts, ok := parseTimestamp(m[5], m[6])
	if !ok {
		return event{}, false
	}

	tgid, convErr := strconv.Atoi(m[3])
	if convErr != nil {
		tgid = 0
	}

	return event{
		comm:    strings.TrimSpace(m[1]),
		tid:     tid,
		tgid:    tgid,
		cpu:     cpu,
		ts:      ts,
		name:    m[7],
		payload: m[8],
	}, true
}

// parseTimestamp converts "seconds.fraction" into nanoseconds without going
// through floating point.
func parseTimestamp(secs, frac string) (int64, bool) {
	s, err := strconv.ParseInt(secs, 10, 64)
	if err != nil {
		return 0, false
	}

	if len(frac) > fracDigits {
		frac = frac[:fracDigits]
	}

	frac += strings.Repeat("0", fracDigits-len(frac))

	f, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, false
	}

	return s*nsPerSecond + f, true
}

func (p *parser) noteThread(tid, tgid int, comm string) {
	th, ok := p.threads[tid]
	if !ok {
		th = &tracestore.Thread{TID: tid}
		p.threads[tid] = th
	}

	if tgid > 0 {
		th.PID = tgid
	}

	if comm != "" && comm != unknownComm {
		th.Name = comm
	}
}

func (p *parser) pidOf(tid int) int {
	if th, ok := p.threads[tid]; ok {
		return th.PID
	}

	return 0
}

func (p *parser) onMark(ev event) {
	payload := strings.TrimRight(ev.payload, " \n")
	if payload == "" {
		return
	}

	fields := strings.Split(payload, "|")
	kind := fields[0]

	if len(kind) != 1 {
		return
	}

	pid := 0
	if len(fields) > 1 {
		if v, err := strconv.Atoi(fields[1]); err == nil {
			pid = v
		}
	}

	if pid > 0 && p.pidOf(ev.tid) == 0 {
		p.threads[ev.tid].PID = pid
	}

	if pid == 0 {
		pid = p.pidOf(ev.tid)
	}

	switch kind[0] {
	case markBegin:
		if len(fields) < 3 {
			return
		}

		name := strings.Join(fields[2:], "|")
		p.stacks[ev.tid] = append(p.stacks[ev.tid], openSlice{name: name, start: ev.ts, pid: pid})
	case markEnd:
		p.closeSlice(ev.tid, ev.ts)
	case markAsyncBegin, markAsyncFinish:
		if len(fields) < 3 {
			return
		}

		cookie := ""
		name := fields[2]

		if len(fields) > 3 {
			cookie = fields[len(fields)-1]
			name = strings.Join(fields[2:len(fields)-1], "|")
		}

		key := asyncKey{pid: pid, name: name, cookie: cookie}

		if kind[0] == markAsyncBegin {
			p.async[key] = openSlice{name: name, start: ev.ts, pid: pid}

			return
		}

		open, ok := p.async[key]
		if !ok {
			return
		}

		delete(p.async, key)
		p.store.AddSpan(tracestore.Span{Name: open.name, Start: open.start, Dur: ev.ts - open.start, PID: open.pid})
	}
}

func (p *parser) closeSlice(tid int, ts int64) {
	stack := p.stacks[tid]
	if len(stack) == 0 {
		return
	}

	top := stack[len(stack)-1]
	p.stacks[tid] = stack[:len(stack)-1]

	pid := top.pid
	if pid == 0 {
		pid = p.pidOf(tid)
	}

	p.store.AddSpan(tracestore.Span{
		Name:  top.name,
		Start: top.start,
		Dur:   ts - top.start,
		TID:   tid,
		PID:   pid,
		Depth: len(stack) - 1,
	})
}

func (p *parser) onSwitch(ev event) {
	m := switchRe.FindStringSubmatch(ev.payload)
	if m == nil {
		p.skipped++

		return
	}

	prevTID, _ := strconv.Atoi(m[2])
	nextTID, _ := strconv.Atoi(m[5])

	p.noteThread(prevTID, 0, m[1])
	p.noteThread(nextTID, 0, m[4])

	if prevTID != 0 {
		p.transition(prevTID, normalizeState(m[3]), ev.ts, ev.cpu)
	}

	if nextTID != 0 {
		p.transition(nextTID, tracestore.StateRunning, ev.ts, ev.cpu)
	}
}

func (p *parser) onWakeup(ev event) {
	m := wakeupRe.FindStringSubmatch(ev.payload)
	if m == nil {
		p.skipped++

		return
	}

	tid, _ := strconv.Atoi(m[2])
	p.noteThread(tid, 0, m[1])

	cur, ok := p.states[tid]
	if ok && (cur.state == tracestore.StateRunning || cur.state == tracestore.StateRunnable ||
		cur.state == tracestore.StateRunnablePreempt) {
		return
	}

	p.transition(tid, tracestore.StateRunnable, ev.ts, -1)
}

// transition closes the thread's current state at ts and opens next.
func (p *parser) transition(tid int, next string, ts int64, cpu int) {
	if cur, ok := p.states[tid]; ok {
		p.emitState(tid, cur, ts)
	}

	p.states[tid] = &threadState{state: next, start: ts, cpu: cpu}
}

func (p *parser) emitState(tid int, cur *threadState, end int64) {
	dur := end - cur.start
	if dur <= 0 {
		return
	}

	p.store.AddState(tracestore.StateSlice{TID: tid, Start: cur.start, Dur: dur, State: cur.state})

	if cur.state == tracestore.StateRunning && cur.cpu >= 0 {
		p.store.AddSched(tracestore.SchedSlice{CPU: cur.cpu, TID: tid, Start: cur.start, Dur: dur})
	}
}

// normalizeState maps a sched_switch prev_state to a store state.
func normalizeState(raw string) string {
	switch raw {
	case "R", "R+":
		return raw
	}

	if i := strings.IndexAny(raw, "|+"); i > 0 {
		raw = raw[:i]
	}

	return raw
}

func (p *parser) finish() {
	for _, tid := range slices.Sorted(maps.Keys(p.stacks)) {
		for range p.stacks[tid] {
			p.closeSlice(tid, p.lastTS)
		}
	}

	keys := slices.SortedFunc(maps.Keys(p.async), func(a, b asyncKey) int {
		return cmp.Or(
			cmp.Compare(p.async[a].start, p.async[b].start),
			cmp.Compare(a.pid, b.pid),
			cmp.Compare(a.name, b.name),
			cmp.Compare(a.cookie, b.cookie),
		)
	})

	for _, key := range keys {
		open := p.async[key]
		p.store.AddSpan(tracestore.Span{Name: open.name, Start: open.start, Dur: p.lastTS - open.start, PID: open.pid})
	}

	for _, tid := range slices.Sorted(maps.Keys(p.states)) {
		p.emitState(tid, p.states[tid], p.lastTS)
	}

	for _, tid := range slices.Sorted(maps.Keys(p.threads)) {
		p.store.AddThread(*p.threads[tid])
	}
}
