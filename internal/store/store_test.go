package store

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/avolkov/quotabot/internal/quota"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSettingsRoundTrip(t *testing.T) {
	files, err := New(t.TempDir())
	require.NoError(t, err)

	saved := quota.Settings{DailyLimit: 25, UpdatedAt: time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)}
	require.NoError(t, files.SaveSettings(saved))

	loaded, err := files.LoadSettings()
	require.NoError(t, err)
	assert.Equal(t, 25, loaded.DailyLimit)
	assert.True(t, saved.UpdatedAt.Equal(loaded.UpdatedAt))
}

func TestLoadSettingsMissingFile(t *testing.T) {
	files, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = files.LoadSettings()
	assert.Error(t, err)
}

func TestVIPsRoundTripPreservesOrder(t *testing.T) {
	files, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, files.SaveVIPs([]int64{300, 100, 200}))

	loaded, err := files.LoadVIPs()
	require.NoError(t, err)
	assert.Equal(t, []int64{300, 100, 200}, loaded)
}

func TestLoadVIPsMissingFileMeansEmpty(t *testing.T) {
	files, err := New(t.TempDir())
	require.NoError(t, err)

	loaded, err := files.LoadVIPs()
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestRecordsRoundTrip(t *testing.T) {
	files, err := New(t.TempDir())
	require.NoError(t, err)

	saved := map[int64]quota.Record{
		42: {Count: 3, Date: "2026-08-30"},
		7:  {Count: 1, Date: "2026-08-29"},
	}
	require.NoError(t, files.SaveRecords(saved))

	loaded, err := files.LoadRecords()
	require.NoError(t, err)
	assert.Equal(t, saved, loaded)
}

func TestLoadRecordsSkipsBadKeys(t *testing.T) {
	dir := t.TempDir()
	files, err := New(dir)
	require.NoError(t, err)

	raw := `{"42": {"count": 2, "date": "2026-08-30"}, "not-a-number": {"count": 9, "date": "2026-08-30"}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, userDataFile), []byte(raw), 0o600))

	loaded, err := files.LoadRecords()
	require.NoError(t, err)
	assert.Len(t, loaded, 1)
	assert.Equal(t, 2, loaded[42].Count)
}

func TestLoadRecordsCorruptFile(t *testing.T) {
	dir := t.TempDir()
	files, err := New(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, userDataFile), []byte("{not json"), 0o600))

	_, err = files.LoadRecords()
	assert.Error(t, err)
}

// A simulated restart: a fresh service over the same directory reproduces the
// exact state that was last saved.
func TestServiceStateSurvivesRestart(t *testing.T) {
	dir := t.TempDir()

	files, err := New(dir)
	require.NoError(t, err)

	first := quota.NewService(testLogger(), files)
	require.NoError(t, first.SetLimit(15))
	first.AddVIP(99)
	first.Increment(42)
	first.Increment(42)

	reopened, err := New(dir)
	require.NoError(t, err)
	second := quota.NewService(testLogger(), reopened)

	assert.Equal(t, 15, second.Limit())
	assert.Equal(t, []int64{99}, second.VIPs())
	used, limit := second.Usage(42)
	assert.Equal(t, 2, used)
	assert.Equal(t, 15, limit)
}
