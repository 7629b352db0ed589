package anchor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Sumatoshi-tech/launchtrace/pkg/config"
	"github.com/Sumatoshi-tech/launchtrace/pkg/optional"
	"github.com/Sumatoshi-tech/launchtrace/pkg/tracestore"
)

// Sentinel errors for the fatal lookups.
var (
	ErrNoTouchDown   = errors.New("no touch-down input event")
	ErrNoPackage     = errors.New("no launching slice names the app package")
	ErrNoAppProcess  = errors.New("cannot resolve the app process")
	errStoreRequired = errors.New("anchor locator requires a store")
)

// Slice names the locator looks for.
const (
	touchDownPattern    = "deliverInputEvent%"
	touchUpPattern      = "dispatchInputEvent MotionEvent%UP%"
	launchingPattern    = "launching:%"
	launchingPrefix     = "launching:"
	processStartPattern = "startProcess:%"
	frameFamilyPattern  = "Choreographer#doFrame%"

	sliceActivityThreadMain = "ActivityThreadMain"
	sliceBindApplication    = "bindApplication"
	sliceActivityStart      = "activityStart"
	sliceActivityResume     = "activityResume"
	sliceActivityIdle       = "activityIdle"
	sliceAnimating          = "animating"

	sliceOnCreate     = "onCreate"
	sliceOpenCamera   = "OpenCameraRequest"
	sliceOnResume     = "onResume"
	sliceStartPreview = "StartPreviewRequest"
)

// Locator resolves anchors against one store.
type Locator struct {
	store  tracestore.Store
	apps   config.AppsConfig
	logger *slog.Logger
}

// NewLocator creates a locator. A nil logger discards output.
func NewLocator(store tracestore.Store, apps config.AppsConfig, logger *slog.Logger) (*Locator, error) {
	if store == nil {
		return nil, errStoreRequired
	}

	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Locator{store: store, apps: apps, logger: logger}, nil
}

// Locate resolves the full anchor set for the trace stored under fileName.
func (l *Locator) Locate(ctx context.Context, fileName string) (Set, error) {
	set := Set{Recent: IsRecentFile(fileName)}

	var err error

	set.TouchDown, err = l.TouchDown(ctx)
	if err != nil {
		return Set{}, err
	}

	set.Package, set.PackageFallback, err = l.AppPackage(ctx, set.Recent)
	if err != nil {
		return Set{}, err
	}

	set.LauncherPID, err = l.LauncherPID(ctx)
	if err != nil {
		return Set{}, err
	}

	set.Process, err = l.AppProcess(ctx, set.Recent, set.LauncherPID)
	if err != nil {
		return Set{}, err
	}

	err = l.locateOptional(ctx, &set)
	if err != nil {
		return Set{}, err
	}

	if missing := set.Missing(); len(missing) > 0 {
		l.logger.DebugContext(ctx, "anchors absent", "file", fileName, "missing", missing)
	}

	return set, nil
}

func (l *Locator) locateOptional(ctx context.Context, set *Set) error {
	pid := set.Process.PID

	steps := []struct {
		dst *Opt
		run func() (Opt, error)
	}{
		{&set.TouchUp, func() (Opt, error) { return l.TouchUp(ctx, set.LauncherPID) }},
		{&set.ProcessStart, func() (Opt, error) { return l.ProcessStart(ctx, set.Package) }},
		{&set.ActivityThreadMain, func() (Opt, error) { return l.Named(ctx, sliceActivityThreadMain, pid) }},
		{&set.BindApplication, func() (Opt, error) { return l.Named(ctx, sliceBindApplication, pid) }},
		{&set.ActivityStart, func() (Opt, error) { return l.activityStart(ctx, set) }},
		{&set.ActivityResume, func() (Opt, error) { return l.Named(ctx, sliceActivityResume, pid) }},
		{&set.IdleSettle, func() (Opt, error) { return l.IdleSettle(ctx) }},
		{&set.LaunchingEnd, func() (Opt, error) { return l.LaunchingEnd(ctx, set.Package) }},
		{&set.AnimationEnd, func() (Opt, error) { return l.AnimationEnd(ctx) }},
	}

	for _, step := range steps {
		found, err := step.run()
		if err != nil {
			return err
		}

		*step.dst = found
	}

	notBefore := optional.Map(set.ActivityResume, Anchor.End).GetOr(0)

	frame, err := l.FirstRelevantFrame(ctx, pid, notBefore)
	if err != nil {
		return err
	}

	set.FirstFrame = frame

	set.Camera, err = l.CameraAnchors(ctx, pid)

	return err
}

// activityStart is scoped to the launcher process for Recent launches.
func (l *Locator) activityStart(ctx context.Context, set *Set) (Opt, error) {
	if !set.Recent {
		return l.Named(ctx, sliceActivityStart, set.Process.PID)
	}

	launcher, ok := set.LauncherPID.Get()
	if !ok {
		return Opt{}, nil
	}

	return l.Named(ctx, sliceActivityStart, launcher)
}

// TouchDown returns the first touch input event.
func (l *Locator) TouchDown(ctx context.Context) (Anchor, error) {
	found, err := l.first(ctx, tracestore.SpanQuery{Pattern: touchDownPattern})
	if err != nil {
		return Anchor{}, err
	}

	a, ok := found.Get()
	if !ok {
		return Anchor{}, ErrNoTouchDown
	}

	return a, nil
}

// TouchUp returns the first touch-release dispatch in the launcher process.
func (l *Locator) TouchUp(ctx context.Context, launcherPID optional.Option[int]) (Opt, error) {
	pid, ok := launcherPID.Get()
	if !ok {
		return Opt{}, nil
	}

	return l.first(ctx, tracestore.SpanQuery{Pattern: touchUpPattern, PID: pid})
}

// AppPackage extracts the launched package from the first "launching:" span.
// Recent launches without one resolve to the launcher package; the second
// return value reports that fallback.
func (l *Locator) AppPackage(ctx context.Context, recent bool) (string, bool, error) {
	span, ok, err := l.store.FirstSpan(ctx, tracestore.SpanQuery{Pattern: launchingPattern})
	if err != nil {
		return "", false, fmt.Errorf("find package: %w", err)
	}

	if ok {
		_, pkg, _ := strings.Cut(span.Name, launchingPrefix)
		if pkg = strings.TrimSpace(pkg); pkg != "" {
			return pkg, false, nil
		}
	}

	if recent && l.apps.LauncherPackage != "" {
		return l.apps.LauncherPackage, true, nil
	}

	return "", false, ErrNoPackage
}

// LauncherPID returns the pid of the foreground launcher, found by its main
// thread name.
func (l *Locator) LauncherPID(ctx context.Context) (optional.Option[int], error) {
	if l.apps.LauncherThreadPattern == "" {
		return optional.None[int](), nil
	}

	threads, err := l.store.Threads(ctx, tracestore.ThreadQuery{
		Pattern:  l.apps.LauncherThreadPattern,
		MainOnly: true,
	})
	if err != nil {
		return optional.None[int](), fmt.Errorf("find launcher: %w", err)
	}

	if len(threads) == 0 {
		return optional.None[int](), nil
	}

	return optional.Some(threads[0].PID), nil
}

// AppProcess resolves the launched process from its activity lifecycle
// spans, falling back to the launcher process.
func (l *Locator) AppProcess(ctx context.Context, recent bool, launcherPID optional.Option[int]) (AppProcess, error) {
	q := tracestore.SpanQuery{Names: []string{sliceActivityStart, sliceActivityResume}, Track: tracestore.TrackThread}
	if recent {
		q = tracestore.SpanQuery{Name: sliceActivityResume, Track: tracestore.TrackThread}
	}

	span, ok, err := l.store.FirstSpan(ctx, q)
	if err != nil {
		return AppProcess{}, fmt.Errorf("find app process: %w", err)
	}

	proc := AppProcess{PID: span.PID, TID: span.TID}

	if !ok {
		pid, found := launcherPID.Get()
		if !found {
			return AppProcess{}, ErrNoAppProcess
		}

		proc = AppProcess{PID: pid, TID: pid, Launcher: true}
	}

	proc.Name, err = l.processName(ctx, proc.PID)
	if err != nil {
		return AppProcess{}, err
	}

	return proc, nil
}

func (l *Locator) processName(ctx context.Context, pid int) (string, error) {
	procs, err := l.store.Processes(ctx)
	if err != nil {
		return "", fmt.Errorf("list processes: %w", err)
	}

	for _, p := range procs {
		if p.PID == pid && p.Name != "" {
			return p.Name, nil
		}
	}

	threads, err := l.store.Threads(ctx, tracestore.ThreadQuery{PID: pid, MainOnly: true})
	if err != nil {
		return "", fmt.Errorf("list threads: %w", err)
	}

	if len(threads) > 0 {
		return threads[0].Name, nil
	}

	return "", nil
}

// ProcessStart returns the process-start span naming pkg, else the first
// process-start span of the trace.
func (l *Locator) ProcessStart(ctx context.Context, pkg string) (Opt, error) {
	if pkg != "" {
		found, err := l.first(ctx, tracestore.SpanQuery{Pattern: "startProcess:%" + pkg + "%"})
		if err != nil || found.Set() {
			return found, err
		}
	}

	return l.first(ctx, tracestore.SpanQuery{Pattern: processStartPattern})
}

// Named returns the first span with exactly this name in process pid.
func (l *Locator) Named(ctx context.Context, name string, pid int) (Opt, error) {
	return l.first(ctx, tracestore.SpanQuery{Name: name, PID: pid})
}

// FirstRelevantFrame returns the first frame callback on thread tid that
// starts at or after notBefore.
func (l *Locator) FirstRelevantFrame(ctx context.Context, tid int, notBefore int64) (Opt, error) {
	return l.first(ctx, tracestore.SpanQuery{
		Pattern:  frameFamilyPattern,
		TID:      tid,
		MinStart: optional.Some(notBefore),
	})
}

// IdleSettle returns the first activity-idle span. It is recorded by the
// system process, so the lookup is not scoped to the app.
func (l *Locator) IdleSettle(ctx context.Context) (Opt, error) {
	return l.first(ctx, tracestore.SpanQuery{Name: sliceActivityIdle})
}

// AnimationEnd returns the first transition-animation span on a process
// track.
func (l *Locator) AnimationEnd(ctx context.Context) (Opt, error) {
	return l.first(ctx, tracestore.SpanQuery{Name: sliceAnimating, Track: tracestore.TrackProcess})
}

// LaunchingEnd returns the "launching: <pkg>" span, accepting the variant
// without a space.
func (l *Locator) LaunchingEnd(ctx context.Context, pkg string) (Opt, error) {
	if pkg == "" {
		return Opt{}, nil
	}

	for _, name := range []string{launchingPrefix + " " + pkg, launchingPrefix + pkg} {
		found, err := l.first(ctx, tracestore.SpanQuery{Name: name})
		if err != nil || found.Set() {
			return found, err
		}
	}

	return Opt{}, nil
}

// CameraAnchors returns the camera lifecycle spans of process pid.
func (l *Locator) CameraAnchors(ctx context.Context, pid int) (Camera, error) {
	var cam Camera

	targets := []struct {
		dst  *Opt
		name string
	}{
		{&cam.OnCreate, sliceOnCreate},
		{&cam.OpenCameraRequest, sliceOpenCamera},
		{&cam.OnResume, sliceOnResume},
		{&cam.StartPreview, sliceStartPreview},
	}

	for _, target := range targets {
		found, err := l.Named(ctx, target.name, pid)
		if err != nil {
			return Camera{}, err
		}

		*target.dst = found
	}

	return cam, nil
}

func (l *Locator) first(ctx context.Context, q tracestore.SpanQuery) (Opt, error) {
	span, ok, err := l.store.FirstSpan(ctx, q)
	if err != nil {
		return Opt{}, fmt.Errorf("query %q: %w", cmpName(q), err)
	}

	if !ok {
		return Opt{}, nil
	}

	return optional.Some(FromSpan(span)), nil
}

func cmpName(q tracestore.SpanQuery) string {
	switch {
	case q.Name != "":
		return q.Name
	case q.Pattern != "":
		return q.Pattern
	default:
		return strings.Join(q.Names, "|")
	}
}
