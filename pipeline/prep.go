package pipeline

import (
	"context"
	"path/filepath"

	"github.com/pricepipe/pricepipe/dataset"
	"github.com/pricepipe/pricepipe/pkg/errors"
	"github.com/pricepipe/pricepipe/pkg/log"
)

// PrepOptions are the inputs of the data preparation stage
type PrepOptions struct {
	RawData        string
	TrainData      string // output directory for train.csv
	TestData       string // output directory for test.csv
	TestTrainRatio float64
}

// PrepResult summarizes a Prep run
type PrepResult struct {
	TrainRows int
	TestRows  int
	TrainPath string
	TestPath  string
	// Classes are the Segment values in code order
	Classes []string
}

func (o PrepOptions) validate() error {
	if !(o.TestTrainRatio > 0 && o.TestTrainRatio < 1) {
		return errors.NewValidationError("test_train_ratio", "must be in (0, 1)", o.TestTrainRatio)
	}
	if o.RawData == "" {
		return errors.NewValidationError("raw_data", "is required", o.RawData)
	}
	if o.TrainData == "" {
		return errors.NewValidationError("train_data", "is required", o.TrainData)
	}
	if o.TestData == "" {
		return errors.NewValidationError("test_data", "is required", o.TestData)
	}
	return nil
}

// Prep reads the raw table, label-encodes Segment, splits the rows with the
// fixed seed and writes train.csv and test.csv.
func Prep(ctx context.Context, run RunLogger, opts PrepOptions) (*PrepResult, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	logger := log.GetLoggerWithName("pipeline.prep").With(log.RunIDKey, run.ID())

	raw, err := dataset.ReadCSV(opts.RawData)
	if err != nil {
		return nil, err
	}
	logger.Info("Raw data loaded", log.PhaseKey, log.PhasePreprocessing, log.PathKey, opts.RawData, log.SamplesKey, raw.NRows())

	enc, err := raw.EncodeColumn(CategoricalColumn)
	if err != nil {
		return nil, err
	}
	logger.Debug("Column encoded", log.ColumnKey, CategoricalColumn, "classes", enc.Classes)

	train, test, err := dataset.TrainTestSplit(raw, opts.TestTrainRatio, Seed)
	if err != nil {
		return nil, err
	}

	res := &PrepResult{
		TrainRows: train.NRows(),
		TestRows:  test.NRows(),
		TrainPath: filepath.Join(opts.TrainData, TrainFile),
		TestPath:  filepath.Join(opts.TestData, TestFile),
		Classes:   enc.Classes,
	}
	if err := dataset.WriteCSV(train, res.TrainPath); err != nil {
		return nil, err
	}
	if err := dataset.WriteCSV(test, res.TestPath); err != nil {
		return nil, err
	}
	logger.Info("Partitions written",
		"train_path", res.TrainPath,
		"test_path", res.TestPath,
		"train_rows", res.TrainRows,
		"test_rows", res.TestRows)

	if err := run.LogParam(ctx, "test_train_ratio", opts.TestTrainRatio); err != nil {
		return nil, err
	}
	if err := run.LogMetric(ctx, "train size", float64(res.TrainRows)); err != nil {
		return nil, err
	}
	if err := run.LogMetric(ctx, "test size", float64(res.TestRows)); err != nil {
		return nil, err
	}
	return res, nil
}
