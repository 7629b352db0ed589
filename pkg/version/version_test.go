package version

import (
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestApply verifies build info fills only unset fields. It mutates package
// state, so it does not run in parallel.
func TestApply(t *testing.T) {
	saved := [3]string{Version, Commit, Date}
	t.Cleanup(func() { Version, Commit, Date = saved[0], saved[1], saved[2] })

	Version, Commit, Date = "dev", "<unknown>", "2026-01-01"

	apply(&debug.BuildInfo{
		Main: debug.Module{Version: "v1.4.0"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "0123456789abcdef0123"},
			{Key: "vcs.time", Value: "2025-12-31T00:00:00Z"},
		},
	})

	assert.Equal(t, "v1.4.0", Version)
	assert.Equal(t, "0123456789ab", Commit)
	assert.Equal(t, "2026-01-01", Date)
	assert.Equal(t, "v1.4.0 (commit: 0123456789ab, built: 2026-01-01)", String())
}

// TestApply_Devel verifies a devel main module keeps the default version.
func TestApply_Devel(t *testing.T) {
	saved := Version
	t.Cleanup(func() { Version = saved })

	Version = "dev"

	apply(&debug.BuildInfo{Main: debug.Module{Version: "(devel)"}})

	assert.Equal(t, "dev", Version)
}
