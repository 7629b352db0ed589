package phase_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/launchtrace/pkg/anchor"
	"github.com/Sumatoshi-tech/launchtrace/pkg/optional"
	"github.com/Sumatoshi-tech/launchtrace/pkg/phase"
	tt "github.com/Sumatoshi-tech/launchtrace/pkg/tracestore/tracetest"
)

// Preview anchor of the camera scenario.
const (
	previewStart = 50_000_000
	previewDur   = 120_000_000
)

var thresholds = phase.Thresholds{
	InternetIdleDiscard: 100 * time.Millisecond,
	RecentFallback:      500 * time.Millisecond,
}

func at(startMs, durMs float64) anchor.Opt {
	return optional.Some(anchor.Anchor{Start: tt.MS(startMs), Dur: tt.MS(durMs)})
}

func coldSet() anchor.Set {
	return anchor.Set{
		Package:            tt.AppPackage,
		TouchDown:          anchor.Anchor{Start: 0, Dur: tt.MS(2)},
		TouchUp:            at(60, 1),
		ProcessStart:       at(10, 5),
		ActivityThreadMain: at(20, 3),
		BindApplication:    at(30, 40),
		ActivityStart:      at(80, 10),
		ActivityResume:     at(95, 5),
		FirstFrame:         at(110, 30),
		IdleSettle:         at(300, 20),
		LaunchingEnd:       at(5, 395),
		AnimationEnd:       at(50, 350),
	}
}

// TestReconstruct_CameraPreviewWindow verifies the preview anchor closes the camera window.
func TestReconstruct_CameraPreviewWindow(t *testing.T) {
	t.Parallel()

	set := anchor.Set{
		Package:      "com.sec.android.app.camera",
		TouchDown:    anchor.Anchor{Start: 0},
		AnimationEnd: at(20, 80),
		Camera: anchor.Camera{
			StartPreview: optional.Some(anchor.Anchor{Start: previewStart, Dur: previewDur}),
		},
	}

	cat := phase.DetectCategory("DEVICE_250101_100000_camera.log", set.Package)
	require.Equal(t, phase.CategoryCamera, cat)

	res := phase.Reconstruct(set, cat, thresholds)

	assert.Equal(t, phase.Warm, res.LaunchType)
	assert.Equal(t, int64(0), res.Window.Start)
	assert.Equal(t, int64(previewStart+previewDur), res.Window.End)
	assert.InDelta(t, 170.000, res.ExecutionMs, 1e-9)
	assert.InDelta(t, 120.000, res.Get(phase.CameraStartPreview), 1e-9)
	assert.Len(t, res.Camera, 4)
}

// TestReconstruct_CameraWithoutPreview verifies the animation end is used instead.
func TestReconstruct_CameraWithoutPreview(t *testing.T) {
	t.Parallel()

	set := coldSet()
	set.Camera.StartPreview = at(50, 0)

	res := phase.Reconstruct(set, phase.CategoryCamera, thresholds)

	assert.Equal(t, tt.MS(400), res.Window.End)
	// Camera measures the first frame up to the window end.
	assert.InDelta(t, 290.0, res.Get(phase.Choreographer), 1e-9)
	// Camera measures idle distance from launching-end.
	assert.InDelta(t, 0.0, res.Get(phase.ChoreographerToIdle), 1e-9)
}

// TestReconstruct_ColdLaunch verifies every phase of a complete cold launch.
func TestReconstruct_ColdLaunch(t *testing.T) {
	t.Parallel()

	res := phase.Reconstruct(coldSet(), phase.CategoryNormal, thresholds)

	assert.Equal(t, phase.Cold, res.LaunchType)
	assert.Equal(t, tt.MS(400), res.Window.End, "floored at animation end")
	assert.InDelta(t, 400.0, res.ExecutionMs, 1e-9)

	want := map[string]float64{
		phase.TouchDuration:          0,
		phase.TouchUpToActivityStart: 0,
		phase.TouchDownToStartProc:   10,
		phase.StartProc:              5,
		phase.StartProcToThreadMain:  5,
		phase.ActivityThreadMain:     3,
		phase.ThreadMainToBindApp:    7,
		phase.BindApplication:        40,
		phase.BindAppToActivityStart: 10,
		phase.ActivityStart:          10,
		phase.ActivityStartToResume:  5,
		phase.ActivityResume:         5,
		phase.ResumeToChoreographer:  10,
		phase.Choreographer:          30,
		phase.ChoreographerToIdle:    160,
		phase.ActivityIdle:           20,
		phase.IdleToAnimationEnd:     80,
	}

	require.Len(t, res.Phases, len(want))

	for _, p := range res.Phases {
		assert.InDelta(t, want[p.Name], p.Ms, 1e-9, p.Name)
		assert.True(t, p.Resolved, p.Name)
	}
}

// TestReconstruct_WarmChainExclusive verifies the cold chain is zeroed on warm launches.
func TestReconstruct_WarmChainExclusive(t *testing.T) {
	t.Parallel()

	set := coldSet()
	set.BindApplication = anchor.Opt{}

	res := phase.Reconstruct(set, phase.CategoryNormal, thresholds)

	assert.Equal(t, phase.Warm, res.LaunchType)
	assert.InDelta(t, 60.0, res.Get(phase.TouchDuration), 1e-9)
	assert.InDelta(t, 20.0, res.Get(phase.TouchUpToActivityStart), 1e-9)
	assert.Zero(t, res.Get(phase.TouchDownToStartProc))
	assert.Zero(t, res.Get(phase.StartProc))
	assert.Zero(t, res.Get(phase.ActivityThreadMain))
}

// TestReconstruct_Recent verifies the Recent end fallbacks and the forced warm type.
func TestReconstruct_Recent(t *testing.T) {
	t.Parallel()

	t.Run("idle end", func(t *testing.T) {
		t.Parallel()

		res := phase.Reconstruct(coldSet(), phase.CategoryRecent, thresholds)
		assert.Equal(t, tt.MS(320), res.Window.End, "no animation floor")
		assert.Equal(t, phase.Warm, res.LaunchType)
	})

	t.Run("launching end", func(t *testing.T) {
		t.Parallel()

		set := coldSet()
		set.IdleSettle = anchor.Opt{}

		res := phase.Reconstruct(set, phase.CategoryRecent, thresholds)
		assert.Equal(t, tt.MS(400), res.Window.End)
	})

	t.Run("touch fallback", func(t *testing.T) {
		t.Parallel()

		set := coldSet()
		set.IdleSettle = anchor.Opt{}
		set.LaunchingEnd = anchor.Opt{}
		set.TouchDown = anchor.Anchor{Start: tt.MS(1000)}

		res := phase.Reconstruct(set, phase.CategoryRecent, thresholds)
		assert.Equal(t, tt.MS(1500), res.Window.End)
		assert.InDelta(t, 500.0, res.ExecutionMs, 1e-9)
	})
}

// TestReconstruct_InternetIdleDiscard verifies a late idle-settle is ignored.
func TestReconstruct_InternetIdleDiscard(t *testing.T) {
	t.Parallel()

	set := coldSet()
	set.LaunchingEnd = at(5, 100)
	set.AnimationEnd = at(50, 200)

	res := phase.Reconstruct(set, phase.CategoryInternet, thresholds)

	assert.True(t, res.IdleDiscarded)
	assert.Equal(t, tt.MS(250), res.Window.End)
	assert.Zero(t, res.Get(phase.ActivityIdle))
	assert.Zero(t, res.Get(phase.ChoreographerToIdle))

	normal := phase.Reconstruct(set, phase.CategoryNormal, thresholds)
	assert.False(t, normal.IdleDiscarded)
	assert.Equal(t, tt.MS(320), normal.Window.End)
}

// TestReconstruct_MissingAnchors verifies absent anchors give exact zeros.
func TestReconstruct_MissingAnchors(t *testing.T) {
	t.Parallel()

	set := anchor.Set{TouchDown: anchor.Anchor{Start: tt.MS(5)}}

	res := phase.Reconstruct(set, phase.CategoryNormal, thresholds)

	assert.False(t, res.Window.Valid())
	assert.Zero(t, res.ExecutionMs)

	for _, p := range res.Phases {
		assert.Zero(t, p.Ms, p.Name)
		assert.False(t, p.Resolved, p.Name)
	}
}

// TestReconstruct_NeverNegative verifies reversed anchors clamp to zero.
func TestReconstruct_NeverNegative(t *testing.T) {
	t.Parallel()

	offsets := []float64{0, 7, 13, 40, 90, 200}

	for _, a := range offsets {
		for _, b := range offsets {
			set := anchor.Set{
				TouchDown:          anchor.Anchor{Start: tt.MS(100)},
				TouchUp:            at(b, 1),
				ProcessStart:       at(a+b, 3),
				ActivityThreadMain: at(a, 2),
				BindApplication:    at(b/2, 4),
				ActivityStart:      at(a/2, 1),
				ActivityResume:     at(b, 9),
				FirstFrame:         at(a, 5),
				IdleSettle:         at(b, 1),
				LaunchingEnd:       at(a, 1),
				AnimationEnd:       at(b, 2),
			}

			for _, cat := range []phase.Category{phase.CategoryNormal, phase.CategoryCamera, phase.CategoryRecent, phase.CategoryInternet} {
				res := phase.Reconstruct(set, cat, thresholds)

				assert.GreaterOrEqual(t, res.ExecutionMs, 0.0)
				assert.GreaterOrEqual(t, res.Window.End, res.Window.Start)

				for _, p := range res.Phases {
					assert.GreaterOrEqual(t, p.Ms, 0.0, p.Name)
				}
			}
		}
	}
}

// TestDetectCategory verifies the classification order.
func TestDetectCategory(t *testing.T) {
	t.Parallel()

	tests := []struct {
		file string
		pkg  string
		want phase.Category
	}{
		{"D_1_2_camera.log", "com.sec.android.app.camera", phase.CategoryCamera},
		{"D_1_2_recent.log", "com.sec.android.app.camera", phase.CategoryCamera},
		{"D_1_2_recent.log", "com.sec.android.app.launcher", phase.CategoryRecent},
		{"D_1_2_internet.log", "com.sec.android.app.sbrowser", phase.CategoryInternet},
		{"D_1_2_chrome.log", "com.android.browser", phase.CategoryInternet},
		{"D_1_2_gallery.log", "com.sec.android.gallery3d", phase.CategoryNormal},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.want, phase.DetectCategory(tc.file, tc.pkg), tc.file)
	}
}
