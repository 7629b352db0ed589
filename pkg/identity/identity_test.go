package identity_test

import (
	"archive/zip"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/launchtrace/pkg/config"
	"github.com/Sumatoshi-tech/launchtrace/pkg/identity"
)

const pssSample = `
------ DUMPSYS MEMINFO ------
Total PSS by process:
    314,911K: com.android.systemui (pid 2009)                             (   26,367K in swap)
    276,444K: system (pid 1335)                                           (   23,311K in swap)
    219,752K: com.sec.android.app.launcher (pid 2806 / activities)        (   17,672K in swap)
     73,464K: com.samsung.android.honeyboard (pid 4350)

Total PSS by OOM adjustment:
    649,176K: Native (pid 1)
`

// TestParsePSS verifies the process section is parsed and bounded.
func TestParsePSS(t *testing.T) {
	t.Parallel()

	table := identity.ParsePSS(pssSample)

	assert.Equal(t, identity.Table{
		2009: "com.android.systemui",
		1335: "system",
		2806: "com.sec.android.app.launcher",
		4350: "com.samsung.android.honeyboard",
	}, table)

	assert.Empty(t, identity.ParsePSS("no meminfo here"))
}

// TestSnapshotGroup verifies both token spellings and the valid range.
func TestSnapshotGroup(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		want int
	}{
		{"A576_BOS_251128_085123_1part_Bugreport.zip", 1},
		{"A576_BOS_251128_085123_Part4_bugreport", 4},
		{"A576_BOS_251128_085123_9part_Bugreport.zip", 0},
		{"A576_BOS_251128_085123_Bugreport.zip", 0},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.want, identity.SnapshotGroup(tc.name, 6), tc.name)
	}
}

// TestGroupsOf verifies contains matching on app tokens.
func TestGroupsOf(t *testing.T) {
	t.Parallel()

	g := identity.NewGroups(config.DefaultGroups())

	assert.Equal(t, 1, g.Of("camera"))
	assert.Equal(t, 2, g.Of("helloworld"))
	assert.Equal(t, 5, g.Of("MyFiles"))
	assert.Equal(t, 0, g.Of("weather"))
}

// TestMatch_Wraparound verifies a lower group after a higher one starts a new cycle.
func TestMatch_Wraparound(t *testing.T) {
	t.Parallel()

	g1 := identity.Table{1: "g1"}
	g2 := identity.Table{2: "g2"}

	items := []identity.Item{
		{Path: "a_01_camera.log", Group: 1},
		{Path: "a_02_camera.log", Group: 1},
		{Path: "a_03_1part_bugreport.zip", Group: 1, Snapshot: true},
		{Path: "a_04_clock.log", Group: 2},
		{Path: "a_05_2part_bugreport.zip", Group: 2, Snapshot: true},
		{Path: "a_06_camera.log", Group: 1},
	}

	parse := func(it identity.Item) (identity.Table, error) {
		if it.Group == 1 {
			return g1, nil
		}

		return g2, nil
	}

	got := identity.Match(items, parse, nil)

	assert.Equal(t, g1, got["a_01_camera.log"])
	assert.Equal(t, g1, got["a_02_camera.log"])
	assert.Equal(t, g2, got["a_04_clock.log"])
	assert.Equal(t, identity.Table{}, got["a_06_camera.log"])
	assert.Len(t, got, 4)
}

// TestMatch_FlushOnNewCycle verifies pending traces lose their snapshot on wraparound.
func TestMatch_FlushOnNewCycle(t *testing.T) {
	t.Parallel()

	items := []identity.Item{
		{Path: "b_01_gallery.log", Group: 4},
		{Path: "b_02_camera.log", Group: 1},
		{Path: "b_03_4part_bugreport.zip", Group: 4, Snapshot: true},
		{Path: "b_04_weather.log", Group: 0},
	}

	got := identity.Match(items, func(identity.Item) (identity.Table, error) {
		return identity.Table{9: "late"}, nil
	}, nil)

	assert.Equal(t, identity.Table{}, got["b_01_gallery.log"])
	assert.Equal(t, identity.Table{}, got["b_02_camera.log"])
	assert.NotContains(t, got, "b_04_weather.log")
	assert.Equal(t, identity.Table{}, got.Table("b_04_weather.log"))
}

// TestMatch_SnapshotKeepsHighWaterMark verifies a lower-group snapshot does
// not lower the cycle mark, so a later trace still closes the earlier cycle.
func TestMatch_SnapshotKeepsHighWaterMark(t *testing.T) {
	t.Parallel()

	g2 := identity.Table{2: "g2"}

	items := []identity.Item{
		{Path: "d_01_gallery.log", Group: 3},
		{Path: "d_02_1part_bugreport.zip", Group: 1, Snapshot: true},
		{Path: "d_03_clock.log", Group: 2},
		{Path: "d_04_2part_bugreport.zip", Group: 2, Snapshot: true},
		{Path: "d_05_3part_bugreport.zip", Group: 3, Snapshot: true},
	}

	got := identity.Match(items, func(it identity.Item) (identity.Table, error) {
		if it.Group == 2 {
			return g2, nil
		}

		return identity.Table{9: "other"}, nil
	}, nil)

	assert.Equal(t, identity.Table{}, got["d_01_gallery.log"])
	assert.Equal(t, g2, got["d_03_clock.log"])
}

// TestMatch_UnreadableSnapshot verifies parse failures degrade to empty tables.
func TestMatch_UnreadableSnapshot(t *testing.T) {
	t.Parallel()

	items := []identity.Item{
		{Path: "c_01_camera.log", Group: 1},
		{Path: "c_02_1part_bugreport.zip", Group: 1, Snapshot: true},
	}

	got := identity.Match(items, func(identity.Item) (identity.Table, error) {
		return nil, errors.New("corrupt")
	}, nil)

	assert.Equal(t, identity.Table{}, got["c_01_camera.log"])
}

// TestDiscoverAndRead verifies zip and folder snapshots are found and read.
func TestDiscoverAndRead(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	zipPath := filepath.Join(dir, "DEV_1part_Bugreport.zip")
	writeZip(t, zipPath, map[string]string{
		"small.txt":            "tiny",
		"bugreport-dev.txt":    pssSample,
		"FS/data/ignored.json": "{}",
	})

	folder := filepath.Join(dir, "DEV_2part_bugreport")
	require.NoError(t, os.Mkdir(folder, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(folder, "dumpstate.txt"), []byte(pssSample), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(folder, "a.txt"), []byte("x"), 0o600))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "DEV_1_2_camera.log"), []byte("trace"), 0o600))

	found, err := identity.Discover(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{zipPath, folder}, found)

	for _, p := range found {
		table, loadErr := identity.LoadTable(p)
		require.NoError(t, loadErr)
		assert.Equal(t, "system", table[1335])
	}

	g := identity.NewGroups(config.DefaultGroups())
	assert.Equal(t, 1, g.Snapshot(zipPath).Group)
	assert.Equal(t, 2, g.Snapshot(folder).Group)
}

// TestReadSnapshot_NoText verifies archives without a report are rejected.
func TestReadSnapshot_NoText(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "empty_bugreport.zip")
	writeZip(t, path, map[string]string{"data.bin": "x"})

	_, err := identity.ReadSnapshot(path)
	require.ErrorIs(t, err, identity.ErrNoSnapshotText)
}

func writeZip(t *testing.T, path string, files map[string]string) {
	t.Helper()

	f, err := os.Create(path)
	require.NoError(t, err)

	zw := zip.NewWriter(f)

	for name, body := range files {
		w, createErr := zw.Create(name)
		require.NoError(t, createErr)

		_, writeErr := w.Write([]byte(body))
		require.NoError(t, writeErr)
	}

	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}
