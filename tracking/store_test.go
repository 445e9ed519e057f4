package tracking

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricepipe/pricepipe/pkg/errors"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	sqlite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "db", "tracking.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func newRunInfo(id string) *RunInfo {
	return &RunInfo{
		ID:         id,
		Experiment: "default",
		Stage:      "train",
		Status:     StatusRunning,
		StartTime:  time.Now().UTC(),
	}
}

func TestStore_RunLifecycle(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.CreateRun(ctx, newRunInfo("run-1")))
			require.NoError(t, s.LogParam(ctx, "run-1", "n_estimators", "50"))
			require.NoError(t, s.LogParam(ctx, "run-1", "n_estimators", "50"), "same value is idempotent")
			require.NoError(t, s.LogMetric(ctx, "run-1", "MSE", 3.5, time.Now()))
			require.NoError(t, s.LogMetric(ctx, "run-1", "MSE", 2.5, time.Now()))
			require.NoError(t, s.UpdateRun(ctx, "run-1", StatusFinished, time.Now().UTC()))

			got, err := s.GetRun(ctx, "run-1")
			require.NoError(t, err)
			assert.Equal(t, StatusFinished, got.Status)
			assert.Equal(t, "train", got.Stage)
			assert.Equal(t, "50", got.Params["n_estimators"])
			assert.Equal(t, 2.5, got.Metrics["MSE"])
			assert.False(t, got.EndTime.IsZero())
		})
	}
}

func TestStore_Errors(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.CreateRun(ctx, newRunInfo("run-2")))
			require.NoError(t, s.LogParam(ctx, "run-2", "max_depth", "3"))

			err := s.LogParam(ctx, "run-2", "max_depth", "4")
			var se *errors.SinkError
			require.True(t, errors.As(err, &se), "got %v", err)

			err = s.LogMetric(ctx, "missing", "MSE", 1, time.Now())
			require.True(t, errors.As(err, &se), "got %v", err)
			assert.True(t, errors.Is(err, errors.ErrNotFound))

			_, err = s.GetRun(ctx, "missing")
			assert.True(t, errors.Is(err, errors.ErrNotFound))

			err = s.UpdateRun(ctx, "missing", StatusFailed, time.Now())
			assert.True(t, errors.Is(err, errors.ErrNotFound))

			_, err = s.GetModelVersion(ctx, "demo", 1)
			assert.True(t, errors.Is(err, errors.ErrNotFound))
		})
	}
}

func TestStore_ModelVersionsIncrease(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			v1, err := s.CreateModelVersion(ctx, "demo", "runs:/a/demo", "a")
			require.NoError(t, err)
			v2, err := s.CreateModelVersion(ctx, "demo", "runs:/b/demo", "b")
			require.NoError(t, err)
			other, err := s.CreateModelVersion(ctx, "other", "runs:/c/other", "c")
			require.NoError(t, err)

			assert.Equal(t, "demo:1", v1.String())
			assert.Equal(t, "demo:2", v2.String())
			assert.Equal(t, 1, other.Version)

			got, err := s.GetModelVersion(ctx, "demo", 2)
			require.NoError(t, err)
			assert.Equal(t, "runs:/b/demo", got.Source)
			assert.Equal(t, "b", got.RunID)
		})
	}
}

func TestStore_ConcurrentRegistrations(t *testing.T) {
	ctx := context.Background()
	const n = 8

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			var wg sync.WaitGroup
			versions := make([]int, n)
			errs := make([]error, n)
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					mv, err := s.CreateModelVersion(ctx, "demo", "runs:/x/demo", "x")
					if err != nil {
						errs[i] = err
						return
					}
					versions[i] = mv.Version
				}(i)
			}
			wg.Wait()

			for _, err := range errs {
				require.NoError(t, err)
			}
			seen := map[int]bool{}
			for _, v := range versions {
				assert.False(t, seen[v], "duplicate version %d", v)
				seen[v] = true
			}
			for v := 1; v <= n; v++ {
				assert.True(t, seen[v], "missing version %d", v)
			}
		})
	}
}

func TestOpen(t *testing.T) {
	s, err := Open("memory://")
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = Open("sqlite://" + filepath.Join(t.TempDir(), "t.db"))
	require.NoError(t, err)
	assert.IsType(t, &GormStore{}, s)
	require.NoError(t, s.Close())

	for _, uri := range []string{"mlruns", "http://localhost:5000", "sqlite://"} {
		_, err := Open(uri)
		var ve *errors.ValidationError
		assert.True(t, errors.As(err, &ve), "uri %q", uri)
	}
}
