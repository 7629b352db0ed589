package reaction_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/launchtrace/pkg/anchor"
	"github.com/Sumatoshi-tech/launchtrace/pkg/config"
	"github.com/Sumatoshi-tech/launchtrace/pkg/reaction"
	"github.com/Sumatoshi-tech/launchtrace/pkg/tracestore"
	tt "github.com/Sumatoshi-tech/launchtrace/pkg/tracestore/tracetest"
)

func analyze(t *testing.T, data tracestore.Dataset) (reaction.Record, error) {
	t.Helper()

	return reaction.Analyze(context.Background(), tt.Store(data), reaction.Options{Apps: config.Default().Apps})
}

// TestAnalyze_FullReaction verifies every reaction phase of a complete trace.
func TestAnalyze_FullReaction(t *testing.T) {
	t.Parallel()

	rec, err := analyze(t, tt.Reaction())
	require.NoError(t, err)

	want := map[string]float64{
		reaction.TouchDuration:             40,
		reaction.TouchUpToStartingWindow:   10,
		reaction.StartingWindow:            10,
		reaction.StartingWindowToFrame:     10,
		reaction.Choreographer:             8,
		reaction.ChoreographerToTransition: 30,
		reaction.TransactionReady:          5,
		reaction.TransactionToDrawFrame:    65,
		reaction.DrawFrame:                 4,
		reaction.ReactionTime:              174,
	}

	got := make(map[string]float64, len(rec.Phases))
	for _, p := range rec.Phases {
		got[p.Name] = p.Ms
		assert.True(t, p.Resolved, p.Name)
	}

	assert.Equal(t, want, got)
	assert.Equal(t, tt.AppPackage, rec.Package)
	assert.Equal(t, tracestore.Window{Start: 0, End: tt.MS(174)}, rec.Window)
	assert.Equal(t, reaction.ReactionTime, rec.Phases[len(rec.Phases)-1].Name)
}

// TestAnalyze_FrameAfterStartingWindow verifies the SystemUI frame before the
// starting window is skipped.
func TestAnalyze_FrameAfterStartingWindow(t *testing.T) {
	t.Parallel()

	rec, err := analyze(t, tt.Reaction())
	require.NoError(t, err)

	assert.Equal(t, tt.MS(70), rec.Milestones.Frame.MustGet().Start)
	assert.Equal(t, tt.MS(170), rec.Milestones.DrawFrame.MustGet().Start)
}

// TestAnalyze_NoAnimator verifies a missing draw frame zeroes its phases.
func TestAnalyze_NoAnimator(t *testing.T) {
	t.Parallel()

	rec, err := analyze(t, tt.Without(tt.Reaction(), "animator"))
	require.NoError(t, err)

	assert.False(t, rec.Milestones.DrawFrame.Set())
	assert.Zero(t, rec.Get(reaction.DrawFrame))
	assert.Zero(t, rec.Get(reaction.TransactionToDrawFrame))
	assert.Zero(t, rec.ReactionMs)
	assert.False(t, rec.Window.Valid())
	assert.InDelta(t, 30, rec.Get(reaction.ChoreographerToTransition), 1e-9)
}

// TestAnalyze_NoSystemUI verifies a trace without SystemUI degrades to zero frame phases.
func TestAnalyze_NoSystemUI(t *testing.T) {
	t.Parallel()

	data := tt.Reaction()
	data.Threads = data.Threads[:4]

	rec, err := analyze(t, data)
	require.NoError(t, err)

	assert.False(t, rec.Milestones.Frame.Set())
	assert.Zero(t, rec.Get(reaction.Choreographer))
	assert.Zero(t, rec.Get(reaction.StartingWindowToFrame))
	assert.InDelta(t, 10, rec.Get(reaction.StartingWindow), 1e-9)
	assert.InDelta(t, 174, rec.ReactionMs, 1e-9)
}

// TestAnalyze_NoPackage verifies a trace without a launch still analyses.
func TestAnalyze_NoPackage(t *testing.T) {
	t.Parallel()

	rec, err := analyze(t, tt.Without(tt.Reaction(), "launching: "+tt.AppPackage))
	require.NoError(t, err)

	assert.Empty(t, rec.Package)
	assert.InDelta(t, 174, rec.ReactionMs, 1e-9)
}

// TestAnalyze_NoTouchDown verifies the only fatal condition.
func TestAnalyze_NoTouchDown(t *testing.T) {
	t.Parallel()

	_, err := analyze(t, tt.Without(tt.Reaction(), "deliverInputEvent src=0x1002"))
	require.ErrorIs(t, err, anchor.ErrNoTouchDown)
}
