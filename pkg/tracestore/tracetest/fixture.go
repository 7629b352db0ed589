// Package tracetest builds small synthetic launch traces for tests.
package tracetest

import (
	"slices"
	"time"

	"github.com/Sumatoshi-tech/launchtrace/pkg/tracestore"
)

// Identifiers used by the cold-launch fixture.
const (
	AppPackage  = "com.example.app"
	AppPID      = 1000
	RenderTID   = 1001
	LauncherPID = 300
	SystemPID   = 500
	BinderTID   = 510
	OtherPID    = 2000
	GmsPID      = 2500
	SurfacePID  = 600
)

// MS converts milliseconds to trace nanoseconds.
func MS(n float64) int64 {
	return int64(n * float64(time.Millisecond))
}

// ColdLaunch returns a complete cold launch of AppPackage: touch at 0,
// idle settle ending at 320ms and the transition animation ending at 400ms.
func ColdLaunch() tracestore.Dataset {
	return tracestore.Dataset{
		Spans: []tracestore.Span{
			{Name: "deliverInputEvent src=0x1002", Start: 0, Dur: MS(2), TID: LauncherPID, PID: LauncherPID},
			{Name: "launching: " + AppPackage, Start: MS(5), Dur: MS(395), PID: SystemPID},
			{Name: "startProcess:" + AppPackage, Start: MS(10), Dur: MS(5), TID: BinderTID, PID: SystemPID},
			{Name: "ActivityThreadMain", Start: MS(20), Dur: MS(3), TID: AppPID, PID: AppPID},
			{Name: "bindApplication", Start: MS(30), Dur: MS(40), TID: AppPID, PID: AppPID},
			{Name: "1com.example.lib , libfoo.so", Start: 35_900_000, Dur: MS(2), TID: AppPID, PID: AppPID, Depth: 1},
			{Name: "animating", Start: MS(50), Dur: MS(350), PID: SystemPID},
			{Name: "dispatchInputEvent MotionEvent ACTION_UP", Start: MS(60), Dur: MS(1), TID: LauncherPID, PID: LauncherPID},
			{Name: "activityStart", Start: MS(80), Dur: MS(10), TID: AppPID, PID: AppPID},
			{Name: "Choreographer#doFrame 1", Start: MS(90), Dur: MS(5), TID: AppPID, PID: AppPID},
			{Name: "activityResume", Start: MS(95), Dur: MS(5), TID: AppPID, PID: AppPID},
			{Name: "binder transaction", Start: MS(100), Dur: MS(4), TID: AppPID, PID: AppPID},
			{Name: "Choreographer#doFrame 2", Start: MS(110), Dur: MS(30), TID: AppPID, PID: AppPID},
			{Name: "binder transaction", Start: MS(150), Dur: MS(6), TID: AppPID, PID: AppPID},
			{Name: "bindApplication", Start: MS(200), Dur: MS(15), TID: OtherPID, PID: OtherPID},
			{Name: "LoadApkAssets(/system/app/Foo.apk)", Start: MS(210), Dur: MS(60), TID: SystemPID, PID: SystemPID},
			{Name: "activityIdle", Start: MS(300), Dur: MS(20), TID: BinderTID, PID: SystemPID},
		},
		Threads: []tracestore.Thread{
			{TID: LauncherPID, PID: LauncherPID, Name: "id.app.launcher"},
			{TID: SystemPID, PID: SystemPID, Name: "system_server"},
			{TID: BinderTID, PID: SystemPID, Name: "binder:500_1"},
			{TID: SurfacePID, PID: SurfacePID, Name: "surfaceflinger"},
			{TID: AppPID, PID: AppPID, Name: "com.example.app"},
			{TID: RenderTID, PID: AppPID, Name: "RenderThread"},
			{TID: OtherPID, PID: OtherPID, Name: "com.other.svc"},
			{TID: GmsPID, PID: GmsPID, Name: "com.google.android.gms.persistent"},
		},
		Processes: []tracestore.Process{
			{PID: AppPID, Name: AppPackage},
			{PID: SystemPID, Name: "system_server"},
		},
		States: []tracestore.StateSlice{
			{TID: AppPID, Start: 0, Dur: MS(20), State: tracestore.StateSleeping},
			{TID: AppPID, Start: MS(20), Dur: MS(15), State: tracestore.StateRunning},
			{TID: AppPID, Start: MS(35), Dur: MS(1), State: tracestore.StateRunning},
			{TID: AppPID, Start: MS(36), Dur: MS(4), State: tracestore.StateUninterruptible},
			{TID: AppPID, Start: MS(40), Dur: MS(10), State: tracestore.StateRunnable},
			{TID: AppPID, Start: MS(50), Dur: MS(200), State: tracestore.StateRunning},
			{TID: AppPID, Start: MS(250), Dur: MS(200), State: tracestore.StateSleeping},
			{TID: GmsPID, Start: MS(100), Dur: MS(15), State: tracestore.StateRunning},
		},
		Sched: []tracestore.SchedSlice{
			{CPU: 1, TID: AppPID, Start: MS(20), Dur: MS(15)},
			{CPU: 1, TID: AppPID, Start: MS(50), Dur: MS(200)},
			{CPU: 2, TID: RenderTID, Start: MS(120), Dur: MS(40)},
			{CPU: 3, TID: SystemPID, Start: MS(0), Dur: MS(100)},
			{CPU: 0, TID: SystemPID, Start: MS(100), Dur: MS(100)},
			{CPU: 4, TID: GmsPID, Start: MS(100), Dur: MS(15)},
		},
	}
}

// Store returns a memory store holding data.
func Store(data tracestore.Dataset) *tracestore.MemoryStore {
	return tracestore.NewMemoryStoreFrom(data)
}

// Without returns a copy of data without the spans carrying any of names.
func Without(data tracestore.Dataset, names ...string) tracestore.Dataset {
	out := data
	out.Spans = nil

	for _, s := range data.Spans {
		if !slices.Contains(names, s.Name) {
			out.Spans = append(out.Spans, s)
		}
	}

	return out
}

// Identifiers used by the reaction fixture.
const (
	SystemUIPID      = 800
	SystemUIShellTID = 810
	LauncherRender   = 301
)

// Reaction returns a tap on a launcher icon up to the launcher's first
// frame after the opening animation: touch at 0, drawFrame ending at 174ms.
func Reaction() tracestore.Dataset {
	return tracestore.Dataset{
		Spans: []tracestore.Span{
			{Name: "deliverInputEvent src=0x1002", Start: 0, Dur: MS(2), TID: LauncherPID, PID: LauncherPID},
			{Name: "launching: " + AppPackage, Start: MS(5), Dur: MS(300), PID: SystemPID},
			{Name: "dispatchInputEvent MotionEvent ACTION_UP", Start: MS(40), Dur: MS(1), TID: LauncherPID, PID: LauncherPID},
			{Name: "Choreographer#doFrame 7", Start: MS(45), Dur: MS(2), TID: SystemUIShellTID, PID: SystemUIPID},
			{Name: "addStartingWindow", Start: MS(50), Dur: MS(10), TID: SystemUIShellTID, PID: SystemUIPID},
			{Name: "Choreographer#doFrame 8", Start: MS(70), Dur: MS(8), TID: SystemUIShellTID, PID: SystemUIPID},
			{Name: "onTransactionReady", Start: MS(100), Dur: MS(5), TID: BinderTID, PID: SystemPID},
			{Name: "animator", Start: MS(110), Dur: MS(40), PID: LauncherPID},
			{Name: "DrawFrame 40", Start: MS(150), Dur: MS(3), TID: LauncherRender, PID: LauncherPID},
			{Name: "animator", Start: MS(160), Dur: MS(30), PID: LauncherPID},
			{Name: "DrawFrame 41", Start: MS(170), Dur: MS(4), TID: LauncherRender, PID: LauncherPID},
		},
		Threads: []tracestore.Thread{
			{TID: LauncherPID, PID: LauncherPID, Name: "id.app.launcher"},
			{TID: LauncherRender, PID: LauncherPID, Name: "RenderThread"},
			{TID: SystemPID, PID: SystemPID, Name: "system_server"},
			{TID: BinderTID, PID: SystemPID, Name: "binder:500_1"},
			{TID: SystemUIPID, PID: SystemUIPID, Name: "com.android.systemui"},
			{TID: SystemUIShellTID, PID: SystemUIPID, Name: "wmshell.main"},
		},
	}
}
