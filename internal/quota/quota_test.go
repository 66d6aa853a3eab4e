package quota

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory Store with injectable failures.
type fakeStore struct {
	settings     Settings
	hasSettings  bool
	vips         []int64
	records      map[int64]Record
	failAll      bool
	settingsSave int
	vipSaves     int
	recordSaves  int
}

var errDisk = errors.New("disk unavailable")

func (f *fakeStore) LoadSettings() (Settings, error) {
	if f.failAll || !f.hasSettings {
		return Settings{}, errDisk
	}
	return f.settings, nil
}

func (f *fakeStore) SaveSettings(s Settings) error {
	f.settingsSave++
	if f.failAll {
		return errDisk
	}
	f.settings = s
	f.hasSettings = true
	return nil
}

func (f *fakeStore) LoadVIPs() ([]int64, error) {
	if f.failAll {
		return nil, errDisk
	}
	return f.vips, nil
}

func (f *fakeStore) SaveVIPs(ids []int64) error {
	f.vipSaves++
	if f.failAll {
		return errDisk
	}
	f.vips = append([]int64(nil), ids...)
	return nil
}

func (f *fakeStore) LoadRecords() (map[int64]Record, error) {
	if f.failAll {
		return nil, errDisk
	}
	return f.records, nil
}

func (f *fakeStore) SaveRecords(records map[int64]Record) error {
	f.recordSaves++
	if f.failAll {
		return errDisk
	}
	f.records = records
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T, store *fakeStore) *Service {
	t.Helper()
	svc := NewService(testLogger(), store)
	svc.now = func() time.Time {
		return time.Date(2026, 8, 30, 12, 0, 0, 0, time.Local)
	}
	return svc
}

func TestCheckLimitExhaustsAfterLimit(t *testing.T) {
	svc := newTestService(t, &fakeStore{})
	require.NoError(t, svc.SetLimit(3))

	for i := range 3 {
		allowed, remaining := svc.CheckLimit(1)
		require.True(t, allowed, "request %d should be allowed", i+1)
		assert.Equal(t, 3-i, remaining)
		svc.Increment(1)
	}

	allowed, remaining := svc.CheckLimit(1)
	assert.False(t, allowed)
	assert.Equal(t, 0, remaining)
}

func TestCheckLimitVIPUnlimited(t *testing.T) {
	svc := newTestService(t, &fakeStore{})
	require.NoError(t, svc.SetLimit(1))
	svc.AddVIP(7)

	for range 5 {
		allowed, remaining := svc.CheckLimit(7)
		assert.True(t, allowed)
		assert.Equal(t, Unlimited, remaining)
		svc.Increment(7)
	}

	// VIPs are never charged
	used, _ := svc.Usage(7)
	assert.Equal(t, 0, used)
}

func TestCheckLimitRollsOverStaleRecord(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(t, store)

	svc.Increment(1)
	svc.Increment(1)
	used, _ := svc.Usage(1)
	require.Equal(t, 2, used)

	// Next day: the stale record counts as zero before any read or write.
	svc.now = func() time.Time {
		return time.Date(2026, 8, 31, 0, 0, 1, 0, time.Local)
	}

	saves := store.recordSaves
	allowed, remaining := svc.CheckLimit(1)
	assert.True(t, allowed)
	assert.Equal(t, DefaultDailyLimit, remaining)
	assert.Greater(t, store.recordSaves, saves, "rollover is a mutation and must persist")

	used, _ = svc.Usage(1)
	assert.Equal(t, 0, used)
}

func TestIncrementChargesExactlyOne(t *testing.T) {
	svc := newTestService(t, &fakeStore{})

	svc.Increment(9)
	used, _ := svc.Usage(9)
	assert.Equal(t, 1, used)

	_, remaining := svc.CheckLimit(9)
	assert.Equal(t, DefaultDailyLimit-1, remaining)
}

func TestSetLimitValidatesRange(t *testing.T) {
	svc := newTestService(t, &fakeStore{})

	for _, bad := range []int{0, -5, 1001} {
		err := svc.SetLimit(bad)
		require.Error(t, err, "limit %d should be rejected", bad)
		assert.Equal(t, DefaultDailyLimit, svc.Limit(), "rejected limit must not change state")
	}

	require.NoError(t, svc.SetLimit(500))
	assert.Equal(t, 500, svc.Limit())

	allowed, remaining := svc.CheckLimit(1)
	assert.True(t, allowed)
	assert.Equal(t, 500, remaining)
}

func TestAddVIPIdempotent(t *testing.T) {
	svc := newTestService(t, &fakeStore{})

	assert.True(t, svc.AddVIP(5))
	assert.False(t, svc.AddVIP(5), "second add should report already present")
	assert.Len(t, svc.VIPs(), 1)
}

func TestRemoveVIPNotFound(t *testing.T) {
	svc := newTestService(t, &fakeStore{})
	svc.AddVIP(5)

	assert.False(t, svc.RemoveVIP(6))
	assert.Len(t, svc.VIPs(), 1)

	assert.True(t, svc.RemoveVIP(5))
	assert.Empty(t, svc.VIPs())
}

func TestVIPsPreserveInsertionOrder(t *testing.T) {
	svc := newTestService(t, &fakeStore{})
	svc.AddVIP(30)
	svc.AddVIP(10)
	svc.AddVIP(20)

	assert.Equal(t, []int64{30, 10, 20}, svc.VIPs())
}

func TestResetAllClearsEveryUser(t *testing.T) {
	svc := newTestService(t, &fakeStore{})
	svc.Increment(1)
	svc.Increment(2)
	svc.Increment(2)

	svc.ResetAll()

	for _, id := range []int64{1, 2} {
		used, _ := svc.Usage(id)
		assert.Equal(t, 0, used)
	}
}

func TestResetAndRolloverOverlapIsIdempotent(t *testing.T) {
	svc := newTestService(t, &fakeStore{})
	svc.Increment(1)

	// Scheduler reset and per-read rollover in either order leave count at 0.
	svc.now = func() time.Time {
		return time.Date(2026, 8, 31, 0, 0, 0, 0, time.Local)
	}
	_, _ = svc.CheckLimit(1)
	svc.ResetAll()

	used, _ := svc.Usage(1)
	assert.Equal(t, 0, used)

	allowed, remaining := svc.CheckLimit(1)
	assert.True(t, allowed)
	assert.Equal(t, DefaultDailyLimit, remaining)
}

func TestPersistenceFailuresAreNonFatal(t *testing.T) {
	store := &fakeStore{failAll: true}
	svc := newTestService(t, store)

	svc.Increment(1)
	require.NoError(t, svc.SetLimit(20))
	svc.AddVIP(2)

	// In-memory state stays authoritative despite every save failing.
	used, limit := svc.Usage(1)
	assert.Equal(t, 1, used)
	assert.Equal(t, 20, limit)
	assert.True(t, svc.IsVIP(2))
}

func TestNewServiceLoadsPersistedState(t *testing.T) {
	store := &fakeStore{
		settings:    Settings{DailyLimit: 42},
		hasSettings: true,
		vips:        []int64{8},
		records:     map[int64]Record{3: {Count: 2, Date: "2026-08-30"}},
	}
	svc := newTestService(t, store)

	assert.Equal(t, 42, svc.Limit())
	assert.True(t, svc.IsVIP(8))
	used, _ := svc.Usage(3)
	assert.Equal(t, 2, used)
}

func TestNewServiceWritesDefaultSettingsWhenMissing(t *testing.T) {
	store := &fakeStore{}
	svc := NewService(testLogger(), store)

	assert.Equal(t, DefaultDailyLimit, svc.Limit())
	assert.Equal(t, 1, store.settingsSave, "missing settings should be written back with the default")
}

func TestNextMidnight(t *testing.T) {
	now := time.Date(2026, 8, 30, 23, 59, 30, 0, time.Local)
	next := nextMidnight(now)

	assert.True(t, next.After(now))
	assert.LessOrEqual(t, next.Sub(now), 24*time.Hour)
	assert.Equal(t, 0, next.Hour())
	assert.Equal(t, 0, next.Minute())
	assert.Equal(t, 31, next.Day())
}

func TestRunDailyResetStopsOnCancel(t *testing.T) {
	svc := newTestService(t, &fakeStore{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		svc.RunDailyReset(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after context cancellation")
	}
}
