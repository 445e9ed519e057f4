package pipeline

import (
	"context"
	"path/filepath"
	"slices"

	"gonum.org/v1/gonum/mat"

	"github.com/pricepipe/pricepipe/core/model"
	"github.com/pricepipe/pricepipe/dataset"
	"github.com/pricepipe/pricepipe/metrics"
	"github.com/pricepipe/pricepipe/pkg/errors"
	"github.com/pricepipe/pricepipe/pkg/log"
	"github.com/pricepipe/pricepipe/sklearn/ensemble"
)

// PlotFile is the scatter plot written into the run artifact directory
const PlotFile = "predicted_vs_actual.png"

// TrainOptions are the inputs of the training stage
type TrainOptions struct {
	TrainData   string // directory containing train.csv
	TestData    string // directory containing test.csv
	ModelOutput string
	NEstimators int
	MaxDepth    int

	// LogPlots writes a predicted-vs-actual plot into the run artifact directory
	LogPlots bool
}

// TrainResult summarizes a Train run. RMSE, MAE and R2 are only reported, not logged.
type TrainResult struct {
	MSE         float64
	RMSE        float64
	MAE         float64
	R2          float64
	ModelOutput string
	Features    []string
	PlotPath    string
}

func (o TrainOptions) validate() error {
	if o.NEstimators <= 0 {
		return errors.NewValidationError("n_estimators", "must be positive", o.NEstimators)
	}
	if o.MaxDepth <= 0 {
		return errors.NewValidationError("max_depth", "must be positive", o.MaxDepth)
	}
	if o.TrainData == "" {
		return errors.NewValidationError("train_data", "is required", o.TrainData)
	}
	if o.TestData == "" {
		return errors.NewValidationError("test_data", "is required", o.TestData)
	}
	if o.ModelOutput == "" {
		return errors.NewValidationError("model_output", "is required", o.ModelOutput)
	}
	return nil
}

// Train fits a random forest on train.csv, evaluates it on test.csv and saves
// the model artifact to ModelOutput.
func Train(ctx context.Context, run RunLogger, opts TrainOptions) (*TrainResult, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	logger := log.GetLoggerWithName("pipeline.train").With(log.RunIDKey, run.ID())

	XTrain, yTrain, features, err := loadXY(filepath.Join(opts.TrainData, TrainFile))
	if err != nil {
		return nil, err
	}
	testPath := filepath.Join(opts.TestData, TestFile)
	XTest, yTest, testFeatures, err := loadXY(testPath)
	if err != nil {
		return nil, err
	}
	if err := sameFeatures(testPath, features, testFeatures); err != nil {
		return nil, err
	}

	forest := ensemble.NewRandomForestRegressor(
		ensemble.WithNEstimators(opts.NEstimators),
		ensemble.WithMaxDepth(opts.MaxDepth),
		ensemble.WithRandomState(Seed),
		ensemble.WithFeatureNames(features),
	)

	if err := run.LogParam(ctx, "model", forest.Kind()); err != nil {
		return nil, err
	}
	if err := run.LogParam(ctx, "n_estimators", opts.NEstimators); err != nil {
		return nil, err
	}
	if err := run.LogParam(ctx, "max_depth", opts.MaxDepth); err != nil {
		return nil, err
	}

	rows, cols := XTrain.Dims()
	logger.Info("Fitting model",
		log.ModelNameKey, forest.Kind(),
		log.OperationKey, log.OperationFit,
		log.SamplesKey, rows,
		log.FeaturesKey, cols)
	if err := forest.Fit(XTrain, yTrain); err != nil {
		return nil, err
	}

	pred, err := forest.Predict(XTest)
	if err != nil {
		return nil, err
	}

	res := &TrainResult{ModelOutput: opts.ModelOutput, Features: features}
	if res.MSE, err = metrics.MSEMatrix(yTest, pred); err != nil {
		return nil, err
	}
	if err := errors.CheckScalar("MSE", res.MSE); err != nil {
		return nil, err
	}
	yPred := metrics.ColumnVector(pred)
	res.RMSE, _ = metrics.RMSE(yTest, yPred)
	res.MAE, _ = metrics.MAE(yTest, yPred)
	// テストの目的変数が定数だと R² は定義されない
	if r2, err := metrics.R2Score(yTest, yPred); err == nil {
		res.R2 = r2
	}
	logger.Info("Model evaluated",
		log.OperationKey, log.OperationPredict,
		log.PhaseKey, log.PhaseTesting,
		"mse", res.MSE,
		"mae", res.MAE,
		log.R2ScoreKey, res.R2)

	if err := run.LogMetric(ctx, "MSE", res.MSE); err != nil {
		return nil, err
	}

	if imp, err := forest.FeatureImportances(); err == nil {
		fields := make([]any, 0, 2*len(features))
		for i, f := range features {
			fields = append(fields, "importance."+f, imp[i])
		}
		logger.Debug("Feature importances", fields...)
	}

	if err := model.SaveArtifact(forest, opts.ModelOutput); err != nil {
		return nil, err
	}
	logger.Info("Model saved", log.PathKey, opts.ModelOutput)

	if opts.LogPlots {
		res.PlotPath = filepath.Join(run.ArtifactDir(), PlotFile)
		if err := savePredictionPlot(res.PlotPath, yTest, yPred); err != nil {
			return nil, err
		}
		logger.Debug("Plot saved", log.PathKey, res.PlotPath)
	}
	return res, nil
}

func loadXY(path string) (*mat.Dense, *mat.VecDense, []string, error) {
	t, err := dataset.ReadCSV(path)
	if err != nil {
		return nil, nil, nil, err
	}
	return dataset.XY(t, TargetColumn)
}

func sameFeatures(testPath string, train, test []string) error {
	if slices.Equal(train, test) {
		return nil
	}
	for _, c := range train {
		if !slices.Contains(test, c) {
			return errors.NewSchemaError(testPath, c)
		}
	}
	return errors.NewValueError("Train", "feature columns of "+testPath+" do not match the train table")
}
