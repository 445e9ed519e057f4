package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePartition(t *testing.T, path string, start, n int) {
	t.Helper()
	var b strings.Builder
	b.WriteString("Segment,km,price\n")
	for i := start; i < start+n; i++ {
		fmt.Fprintf(&b, "%d,%d,%d\n", i%3, i*1000, 20000-i*150+(i%3)*2000)
	}
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PRICEPIPE_TRACKING_URI", "sqlite://"+filepath.Join(dir, "mlruns", "tracking.db"))
	t.Setenv("PRICEPIPE_ARTIFACT_ROOT", filepath.Join(dir, "mlruns", "artifacts"))
	t.Setenv("PRICEPIPE_METRICS_TEXTFILE", filepath.Join(dir, "metrics", "train.prom"))

	writePartition(t, filepath.Join(dir, "train", "train.csv"), 0, 40)
	writePartition(t, filepath.Join(dir, "test", "test.csv"), 40, 10)

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{
		"--train_data", filepath.Join(dir, "train"),
		"--test_data", filepath.Join(dir, "test"),
		"--model_output", filepath.Join(dir, "model"),
		"--n_estimators", "10",
	}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	out := stdout.String()
	assert.Contains(t, out, "Number of Estimators: 10")
	assert.Contains(t, out, "Max Depth: 3")
	assert.Contains(t, out, "Mean Square error of RandomForest Regressor on test set:")
	assert.FileExists(t, filepath.Join(dir, "model", "MLmodel"))
	assert.FileExists(t, filepath.Join(dir, "metrics", "train.prom"))
}

func TestRun_InvalidHyperparameters(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PRICEPIPE_TRACKING_URI", "memory://")

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{
		"--train_data", filepath.Join(dir, "train"),
		"--test_data", filepath.Join(dir, "test"),
		"--model_output", filepath.Join(dir, "model"),
		"--max_depth", "0",
	}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "max_depth")
	assert.NoDirExists(t, filepath.Join(dir, "model"))
}
