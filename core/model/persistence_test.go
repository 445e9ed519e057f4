package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pricepipe/pricepipe/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// meanRegressor predicts the training mean; enough to exercise persistence.
type meanRegressor struct {
	BaseEstimator
	Mean     float64
	Features []string
}

func (m *meanRegressor) Fit(X, y mat.Matrix) error {
	r, c := X.Dims()
	sum := 0.0
	for i := 0; i < r; i++ {
		sum += y.At(i, 0)
	}
	m.Mean = sum / float64(r)
	m.SetFitted(r, c)
	return nil
}

func (m *meanRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	r, _ := X.Dims()
	out := mat.NewDense(r, 1, nil)
	for i := 0; i < r; i++ {
		out.Set(i, 0, m.Mean)
	}
	return out, nil
}

func (m *meanRegressor) Kind() string { return "MeanRegressor" }

func (m *meanRegressor) GetParams() map[string]interface{} {
	return map[string]interface{}{"strategy": "mean"}
}

func (m *meanRegressor) FeatureNames() []string { return m.Features }

func init() {
	Register("MeanRegressor", func() Regressor { return &meanRegressor{} })
}

func TestSaveLoadArtifact(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "model")

	m := &meanRegressor{Features: []string{"Segment", "km"}}
	require.NoError(t, m.Fit(mat.NewDense(3, 2, []float64{1, 2, 3, 4, 5, 6}), mat.NewDense(3, 1, []float64{1, 2, 6})))
	require.NoError(t, SaveArtifact(m, dir))

	assert.FileExists(t, filepath.Join(dir, MetadataFile))
	assert.FileExists(t, filepath.Join(dir, WeightsFile))

	loaded, meta, err := LoadArtifact(dir)
	require.NoError(t, err)
	assert.Equal(t, "MeanRegressor", meta.Kind)
	assert.Equal(t, FormatVersion, meta.FormatVersion)
	assert.Equal(t, []string{"Segment", "km"}, meta.Features)
	assert.Equal(t, "mean", meta.Params["strategy"])

	pred, err := loaded.Predict(mat.NewDense(1, 2, []float64{0, 0}))
	require.NoError(t, err)
	assert.InDelta(t, 3.0, pred.At(0, 0), 1e-12)

	fc, ok := loaded.(FittedChecker)
	require.True(t, ok)
	assert.True(t, fc.IsFitted(), "fitted state must survive gob encoding")
}

func TestSaveArtifactOverwrites(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, "stale.txt")
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0o644))

	m := &meanRegressor{}
	require.NoError(t, m.Fit(mat.NewDense(1, 1, []float64{1}), mat.NewDense(1, 1, []float64{1})))
	require.NoError(t, SaveArtifact(m, dir))

	assert.NoFileExists(t, stale)
}

func TestSaveArtifactNotFitted(t *testing.T) {
	err := SaveArtifact(&meanRegressor{}, t.TempDir())

	var notFitted *errors.NotFittedError
	assert.True(t, errors.As(err, &notFitted))
}

func TestLoadArtifactErrors(t *testing.T) {
	t.Run("missing directory", func(t *testing.T) {
		_, _, err := LoadArtifact(filepath.Join(t.TempDir(), "nope"))
		var ioErr *errors.IOError
		assert.True(t, errors.As(err, &ioErr))
	})

	t.Run("unknown kind", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, MetadataFile), []byte("kind: Prophet\nformat_version: 1\n"), 0o644))
		_, _, err := LoadArtifact(dir)
		assert.True(t, errors.Is(err, errors.ErrUnknownModelKind))
	})

	t.Run("malformed metadata", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, MetadataFile), []byte("kind: [unterminated"), 0o644))
		_, _, err := LoadArtifact(dir)
		assert.Error(t, err)
	})

	t.Run("missing weights", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, MetadataFile), []byte("kind: MeanRegressor\nformat_version: 1\n"), 0o644))
		_, _, err := LoadArtifact(dir)
		var ioErr *errors.IOError
		assert.True(t, errors.As(err, &ioErr))
	})
}
