package phase

import (
	"time"

	"github.com/Sumatoshi-tech/launchtrace/pkg/anchor"
	"github.com/Sumatoshi-tech/launchtrace/pkg/optional"
	"github.com/Sumatoshi-tech/launchtrace/pkg/tracestore"
	"github.com/Sumatoshi-tech/launchtrace/pkg/units"
)

type ts = optional.Option[int64]

// Thresholds are the tunable durations used by the window policies.
type Thresholds struct {
	// InternetIdleDiscard is how far idle-settle may trail launching-end
	// before it is treated as spurious on Internet launches.
	InternetIdleDiscard time.Duration
	// RecentFallback is added to touch-down when a Recent launch has neither
	// idle-settle nor launching-end.
	RecentFallback time.Duration
}

// Result is the reconstructed timeline of one launch.
type Result struct {
	Category   Category          `json:"category"`
	LaunchType LaunchType        `json:"launch_type"`
	Window     tracestore.Window `json:"window"`
	// ExecutionMs is window end minus touch-down.
	ExecutionMs float64 `json:"execution_ms"`
	// IdleDiscarded is set when the policy rejected the idle-settle anchor.
	IdleDiscarded bool    `json:"idle_discarded,omitempty"`
	Phases        []Phase `json:"phases"`
	Camera        []Phase `json:"camera,omitempty"`
}

// Get returns the duration of the named phase, or 0.
func (r Result) Get(name string) float64 {
	for _, p := range r.Phases {
		if p.Name == name {
			return p.Ms
		}
	}

	for _, p := range r.Camera {
		if p.Name == name {
			return p.Ms
		}
	}

	return 0
}

// view is the flattened anchor input shared by the policies.
type view struct {
	touch        int64
	recent       bool
	anim         ts
	idleStart    ts
	idleEnd      ts
	launchingEnd ts
	preview      anchor.Opt
	th           Thresholds
}

// policy picks the window end and whether the idle-settle anchor stays valid.
type policy func(v view) (end ts, keepIdle bool)

var policies = map[Category]policy{
	CategoryCamera:   cameraEnd,
	CategoryRecent:   recentEnd,
	CategoryInternet: internetEnd,
	CategoryNormal:   defaultEnd,
}

func cameraEnd(v view) (ts, bool) {
	if p, ok := v.preview.Get(); ok && p.Dur > 0 {
		return optional.Some(p.End()), true
	}

	return v.anim, true
}

func recentEnd(v view) (ts, bool) {
	end := v.idleEnd.Or(v.launchingEnd)
	if !end.Set() {
		end = optional.Some(v.touch + int64(v.th.RecentFallback))
	}

	return end, true
}

func internetEnd(v view) (ts, bool) {
	idle, idleOK := v.idleStart.Get()
	launching, launchingOK := v.launchingEnd.Get()

	if idleOK && launchingOK && launching+int64(v.th.InternetIdleDiscard) < idle {
		return v.anim, false
	}

	return defaultEnd(v)
}

func defaultEnd(v view) (ts, bool) {
	if v.idleEnd.Set() {
		return v.idleEnd, true
	}

	return v.anim, false
}

// Reconstruct builds the window and the phase list for one launch. It never
// fails: missing or out-of-order anchors yield zero-valued phases.
func Reconstruct(set anchor.Set, cat Category, th Thresholds) Result {
	recent := cat == CategoryRecent || set.Recent

	v := view{
		touch:        set.TouchDown.Start,
		recent:       recent,
		idleStart:    startOf(set.IdleSettle),
		idleEnd:      endOf(set.IdleSettle),
		launchingEnd: endOf(set.LaunchingEnd),
		preview:      set.Camera.StartPreview,
		th:           th,
	}

	if !recent {
		v.anim = endOf(set.AnimationEnd)
	}

	pick, ok := policies[cat]
	if !ok {
		pick = defaultEnd
	}

	end, keepIdle := pick(v)

	if !recent {
		end = maxOpt(end, v.anim)
	}

	res := Result{Category: cat, LaunchType: launchType(set, recent), IdleDiscarded: !keepIdle && set.IdleSettle.Set()}

	res.Window = tracestore.Window{Start: v.touch, End: v.touch}
	if e, ok := end.Get(); ok && e >= v.touch {
		res.Window.End = e
	}

	res.ExecutionMs = units.Milliseconds(res.Window.Dur())

	idle := set.IdleSettle
	if !keepIdle {
		idle = anchor.Opt{}
	}

	res.Phases = phases(set, v, res, idle, end)

	if cat == CategoryCamera {
		res.Camera = cameraPhases(set.Camera)
	}

	return res
}

func launchType(set anchor.Set, recent bool) LaunchType {
	if !recent && set.BindApplication.Set() {
		return Cold
	}

	return Warm
}

func phases(set anchor.Set, v view, res Result, idle anchor.Opt, end ts) []Phase {
	touch := optional.Some(v.touch)
	frame := set.FirstFrame
	camera := res.Category == CategoryCamera

	list := []Phase{
		Between(TouchDuration, ChainWarm, touch, startOf(set.TouchUp)),
		Between(TouchUpToActivityStart, ChainWarm, startOf(set.TouchUp), startOf(set.ActivityStart)),
		Between(TouchDownToStartProc, ChainCold, touch, startOf(set.ProcessStart)),
		Length(StartProc, ChainCold, set.ProcessStart),
		Between(StartProcToThreadMain, ChainCold, endOf(set.ProcessStart), startOf(set.ActivityThreadMain)),
		Length(ActivityThreadMain, ChainCold, set.ActivityThreadMain),
		Between(ThreadMainToBindApp, ChainCold, endOf(set.ActivityThreadMain), startOf(set.BindApplication)),
		Length(BindApplication, ChainCold, set.BindApplication),
		Between(BindAppToActivityStart, ChainCold, endOf(set.BindApplication), startOf(set.ActivityStart)),
		Length(ActivityStart, ChainCommon, set.ActivityStart),
		Between(ActivityStartToResume, ChainCommon, endOf(set.ActivityStart), startOf(set.ActivityResume)),
		Length(ActivityResume, ChainCommon, set.ActivityResume),
		Between(ResumeToChoreographer, ChainCommon, endOf(set.ActivityResume), startOf(frame)),
		choreographer(frame, end, camera),
		choreographerToIdle(frame, idle, v.launchingEnd, camera),
		Length(ActivityIdle, ChainCommon, idle),
		idleToAnimation(frame, idle, v),
	}

	for i := range list {
		if !list[i].Chain.Applies(res.LaunchType) {
			list[i].Ms = 0
		}
	}

	return list
}

func choreographer(frame anchor.Opt, end ts, camera bool) Phase {
	f, ok := frame.Get()
	if !ok {
		return Phase{Name: Choreographer}
	}

	if e, endOK := end.Get(); camera && endOK && e > f.Start {
		return Phase{Name: Choreographer, Ms: units.Milliseconds(e - f.Start), Resolved: true}
	}

	return Length(Choreographer, ChainCommon, frame)
}

func choreographerToIdle(frame, idle anchor.Opt, launchingEnd ts, camera bool) Phase {
	if camera {
		return Between(ChoreographerToIdle, ChainCommon, launchingEnd, startOf(idle))
	}

	return Between(ChoreographerToIdle, ChainCommon, endOf(frame), startOf(idle))
}

func idleToAnimation(frame, idle anchor.Opt, v view) Phase {
	if idle.Set() && v.anim.Set() && !v.recent {
		return Between(IdleToAnimationEnd, ChainCommon, endOf(idle), v.anim)
	}

	return Between(IdleToAnimationEnd, ChainCommon, endOf(frame), v.anim)
}

func cameraPhases(c anchor.Camera) []Phase {
	return []Phase{
		Length(CameraOnCreate, ChainCommon, c.OnCreate),
		Length(CameraOpenRequest, ChainCommon, c.OpenCameraRequest),
		Length(CameraOnResume, ChainCommon, c.OnResume),
		Length(CameraStartPreview, ChainCommon, c.StartPreview),
	}
}

// Between is the gap from one endpoint to the next. It is 0 unless both
// are present and to is after from.
func Between(name string, chain Chain, from, to ts) Phase {
	f, fromOK := from.Get()
	t, toOK := to.Get()

	p := Phase{Name: name, Chain: chain, Resolved: fromOK && toOK}
	if p.Resolved && t > f {
		p.Ms = units.Milliseconds(t - f)
	}

	return p
}

// Length is the duration of a, or 0 when absent.
func Length(name string, chain Chain, a anchor.Opt) Phase {
	v, ok := a.Get()

	p := Phase{Name: name, Chain: chain, Resolved: ok}
	if ok && v.Dur > 0 {
		p.Ms = units.Milliseconds(v.Dur)
	}

	return p
}

func startOf(a anchor.Opt) ts {
	return optional.Map(a, func(v anchor.Anchor) int64 { return v.Start })
}

func endOf(a anchor.Opt) ts {
	return optional.Map(a, anchor.Anchor.End)
}

func maxOpt(a, b ts) ts {
	av, aok := a.Get()
	bv, bok := b.Get()

	switch {
	case aok && bok:
		return optional.Some(max(av, bv))
	case aok:
		return a
	default:
		return b
	}
}
