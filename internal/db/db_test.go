package db

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/openml-pimp/internal/importance"
	"github.com/banshee-data/openml-pimp/internal/openml"
	"github.com/banshee-data/openml-pimp/internal/timeutil"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "bench.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpen_Migrates(t *testing.T) {
	db := openTestDB(t)

	version, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)

	var journal string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&journal))
	assert.Equal(t, "wal", journal)

	// Already at latest.
	require.NoError(t, db.MigrateUp())

	require.NoError(t, db.MigrateDown())
	version, _, err = db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	var n int
	err = db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE name = 'importance_runs'`).Scan(&n)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSetupStore(t *testing.T) {
	db := openTestDB(t)
	clock := timeutil.NewMockClock(time.Date(2017, 3, 1, 0, 0, 0, 0, time.UTC))
	store := NewSetupStore(db, clock)

	_, ok, err := store.GetSetup(7)
	require.NoError(t, err)
	assert.False(t, ok)

	setup := openml.Setup{SetupID: 7, FlowID: 6970, Parameters: []openml.SetupParameter{
		{ID: 1, Name: "param_distributions", Value: `{"classifier__bootstrap": [true, false]}`},
		{ID: 2, Name: "bootstrap", Value: "true"},
	}}
	require.NoError(t, store.PutSetup(setup))

	got, ok, err := store.GetSetup(7)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, setup, got)

	setup.Parameters[1].Value = "false"
	require.NoError(t, store.PutSetup(setup))
	got, _, err = store.GetSetup(7)
	require.NoError(t, err)
	assert.Equal(t, "false", got.Parameters[1].Value)

	n, err := store.CountForFlow(6970)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var fetched string
	require.NoError(t, db.QueryRow(`SELECT fetched_at FROM openml_setups WHERE setup_id = 7`).Scan(&fetched))
	assert.Equal(t, "2017-03-01T00:00:00Z", fetched)
}

func sampleResult(t *testing.T) *importance.Result {
	t.Helper()
	totals := importance.NewTotals([]string{"a", "b"})
	all := importance.NewAllRanks()
	res := &importance.Result{RunID: "run-1", AllRanks: all, PerTaskRanks: map[int]importance.Ranks{}}

	for taskID, scores := range map[int]importance.Scores{
		6: {{Name: "a", Importance: 1}, {Name: "b", Importance: 3}},
	} {
		all.Set(taskID, scores)
		res.PerTaskRanks[taskID] = importance.Rank(scores)
		require.NoError(t, totals.Add(res.PerTaskRanks[taskID], false))
	}
	scores := importance.Scores{{Name: "a", Importance: 3}, {Name: "b", Importance: 1}}
	all.Set(3, scores)
	res.PerTaskRanks[3] = importance.Rank(scores)
	require.NoError(t, totals.Add(res.PerTaskRanks[3], false))

	res.Totals = totals
	res.NumTasks = 2
	avg, err := totals.Divide(2)
	require.NoError(t, err)
	res.Average = avg
	return res
}

func TestResultStore_SaveAndRead(t *testing.T) {
	db := openTestDB(t)
	store := NewResultStore(db)
	started := time.Date(2017, 3, 1, 10, 0, 0, 0, time.UTC)

	rec := RunRecord{
		RunID: "run-1", FlowID: 6970, StudyID: 14, ModelFamily: "random_forest",
		Modus: "fanova", NumTasks: 2, OutputDir: "/out",
		StartedAt: started, CompletedAt: started.Add(time.Hour),
	}
	require.NoError(t, store.SaveRun(rec, sampleResult(t)))

	got, err := store.GetRun("run-1")
	require.NoError(t, err)
	assert.Equal(t, rec, *got)

	scores, err := store.ListTaskScores("run-1")
	require.NoError(t, err)
	assert.Equal(t, []TaskScore{
		{TaskID: 6, Param: "a", Importance: 1, Rank: 2},
		{TaskID: 6, Param: "b", Importance: 3, Rank: 1},
		{TaskID: 3, Param: "a", Importance: 3, Rank: 1},
		{TaskID: 3, Param: "b", Importance: 1, Rank: 2},
	}, scores)

	avg, err := store.AverageRanks("run-1")
	require.NoError(t, err)
	assert.Equal(t, []AverageRank{{Param: "a", AverageRank: 1.5}, {Param: "b", AverageRank: 1.5}}, avg)

	// Duplicate run id rolls back.
	err = store.SaveRun(rec, sampleResult(t))
	require.Error(t, err)
	scores, err = store.ListTaskScores("run-1")
	require.NoError(t, err)
	assert.Len(t, scores, 4)

	runs, err := store.ListRuns()
	require.NoError(t, err)
	require.Len(t, runs, 1)

	require.NoError(t, store.DeleteRun("run-1"))
	_, err = store.GetRun("run-1")
	assert.True(t, errors.Is(err, ErrRunNotFound))
	scores, err = store.ListTaskScores("run-1")
	require.NoError(t, err)
	assert.Empty(t, scores)
}

func TestResultStore_NoAverage(t *testing.T) {
	db := openTestDB(t)
	store := NewResultStore(db)
	res := &importance.Result{RunID: "empty", AllRanks: importance.NewAllRanks(), PerTaskRanks: map[int]importance.Ranks{}}
	now := time.Date(2017, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.SaveRun(RunRecord{RunID: "empty", StartedAt: now, CompletedAt: now}, res))
	avg, err := store.AverageRanks("empty")
	require.NoError(t, err)
	assert.Empty(t, avg)

	got, err := store.GetRun("empty")
	require.NoError(t, err)
	assert.Empty(t, got.OutputDir)
}

func TestIsSQLiteBusy(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"database is locked", errors.New("database is locked (5) (SQLITE_BUSY)"), true},
		{"SQLITE_BUSY", errors.New("SQLITE_BUSY"), true},
		{"other error", errors.New("some other error"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isSQLiteBusy(tt.err); got != tt.expected {
				t.Errorf("isSQLiteBusy(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestRetryOnBusy(t *testing.T) {
	mock := timeutil.NewMockClock(time.Time{})
	prev := busyClock
	busyClock = mock
	t.Cleanup(func() { busyClock = prev })

	busy := errors.New("database is locked (5) (SQLITE_BUSY)")

	t.Run("success after retry", func(t *testing.T) {
		calls := 0
		err := retryOnBusy(func() error {
			calls++
			if calls < 3 {
				return busy
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 3, calls)
		assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, mock.Sleeps())
	})

	t.Run("non-busy error fails immediately", func(t *testing.T) {
		testErr := errors.New("some other error")
		calls := 0
		err := retryOnBusy(func() error {
			calls++
			return testErr
		})
		assert.Equal(t, testErr, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("max attempts exceeded", func(t *testing.T) {
		calls := 0
		err := retryOnBusy(func() error {
			calls++
			return busy
		})
		assert.True(t, errors.Is(err, busy))
		assert.Equal(t, 5, calls)
	})
}
