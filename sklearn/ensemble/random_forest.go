package ensemble

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/pricepipe/pricepipe/core/model"
	"github.com/pricepipe/pricepipe/metrics"
	"github.com/pricepipe/pricepipe/pkg/errors"
	"github.com/pricepipe/pricepipe/pkg/log"
	"github.com/pricepipe/pricepipe/sklearn/tree"
)

// Kind is the artifact kind recorded for RandomForestRegressor
const Kind = "RandomForestRegressor"

func init() {
	model.Register(Kind, func() model.Regressor { return &RandomForestRegressor{} })
}

// RandomForestRegressor implements a random forest regressor with scikit-learn compatible API
type RandomForestRegressor struct {
	model.BaseEstimator

	// Hyperparameters (matching scikit-learn)
	NEstimators     int    // Number of trees in the forest
	MaxDepth        int    // Maximum tree depth, 0 for no limit
	MinSamplesSplit int    // Minimum number of samples to split an internal node
	MinSamplesLeaf  int    // Minimum number of samples in a leaf
	Bootstrap       bool   // Fit each tree on a bootstrap sample
	RandomState     uint64 // Seed for bootstrap sampling

	// Fitted state
	Estimators []*tree.DecisionTreeRegressor
	Features   []string
}

// Option configures a RandomForestRegressor
type Option func(*RandomForestRegressor)

// WithNEstimators sets the number of trees
func WithNEstimators(n int) Option {
	return func(rf *RandomForestRegressor) {
		rf.NEstimators = n
	}
}

// WithMaxDepth sets the maximum depth of each tree
func WithMaxDepth(d int) Option {
	return func(rf *RandomForestRegressor) {
		rf.MaxDepth = d
	}
}

// WithMinSamplesSplit sets the minimum number of samples required to split a node
func WithMinSamplesSplit(n int) Option {
	return func(rf *RandomForestRegressor) {
		rf.MinSamplesSplit = n
	}
}

// WithMinSamplesLeaf sets the minimum number of samples required at a leaf
func WithMinSamplesLeaf(n int) Option {
	return func(rf *RandomForestRegressor) {
		rf.MinSamplesLeaf = n
	}
}

// WithBootstrap enables or disables bootstrap sampling
func WithBootstrap(b bool) Option {
	return func(rf *RandomForestRegressor) {
		rf.Bootstrap = b
	}
}

// WithRandomState sets the random seed
func WithRandomState(seed uint64) Option {
	return func(rf *RandomForestRegressor) {
		rf.RandomState = seed
	}
}

// WithFeatureNames records the feature names stored alongside the artifact
func WithFeatureNames(names []string) Option {
	return func(rf *RandomForestRegressor) {
		rf.Features = append([]string(nil), names...)
	}
}

// NewRandomForestRegressor creates a new random forest regressor with default parameters
func NewRandomForestRegressor(opts ...Option) *RandomForestRegressor {
	rf := &RandomForestRegressor{
		NEstimators:     100,
		MaxDepth:        0, // No limit
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		Bootstrap:       true,
		RandomState:     42,
	}
	for _, opt := range opts {
		opt(rf)
	}
	return rf
}

// Kind returns the artifact kind
func (rf *RandomForestRegressor) Kind() string {
	return Kind
}

// GetParams returns the hyperparameters
func (rf *RandomForestRegressor) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_estimators":      rf.NEstimators,
		"max_depth":         rf.MaxDepth,
		"min_samples_split": rf.MinSamplesSplit,
		"min_samples_leaf":  rf.MinSamplesLeaf,
		"bootstrap":         rf.Bootstrap,
		"random_state":      rf.RandomState,
	}
}

// FeatureNames returns the feature names recorded at fit time
func (rf *RandomForestRegressor) FeatureNames() []string {
	return rf.Features
}

func (rf *RandomForestRegressor) validate() error {
	if rf.NEstimators <= 0 {
		return errors.NewValidationError("n_estimators", "must be positive", rf.NEstimators)
	}
	if rf.MaxDepth < 0 {
		return errors.NewValidationError("max_depth", "must be positive, or 0 for no limit", rf.MaxDepth)
	}
	return nil
}

// Fit trains the forest. Trees are fitted sequentially.
func (rf *RandomForestRegressor) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "RandomForestRegressor.Fit")

	if err := rf.validate(); err != nil {
		return err
	}

	rows, cols := X.Dims()
	yRows, yCols := y.Dims()
	if rows == 0 || cols == 0 {
		return errors.NewModelError("RandomForestRegressor.Fit", "empty data", errors.ErrEmptyData)
	}
	if rows != yRows {
		return errors.NewDimensionError("Fit", rows, yRows, 0)
	}
	if yCols != 1 {
		return errors.NewDimensionError("Fit", 1, yCols, 1)
	}
	if len(rf.Features) != 0 && len(rf.Features) != cols {
		return errors.NewDimensionError("Fit", len(rf.Features), cols, 1)
	}

	logger := log.GetLoggerWithName("ensemble.random_forest")
	logger.Debug("Training RandomForestRegressor",
		log.SamplesKey, rows,
		log.FeaturesKey, cols,
		"n_estimators", rf.NEstimators,
		"max_depth", rf.MaxDepth,
		log.RandomSeedKey, rf.RandomState)

	rng := rand.New(rand.NewPCG(rf.RandomState, rf.RandomState))
	rf.Reset()
	rf.Estimators = make([]*tree.DecisionTreeRegressor, rf.NEstimators)

	samples := make([]int, rows)
	for e := range rf.Estimators {
		for i := range samples {
			if rf.Bootstrap {
				samples[i] = rng.IntN(rows)
			} else {
				samples[i] = i
			}
		}

		est := tree.NewDecisionTreeRegressor(
			tree.WithMaxDepth(rf.MaxDepth),
			tree.WithMinSamplesSplit(rf.MinSamplesSplit),
			tree.WithMinSamplesLeaf(rf.MinSamplesLeaf),
		)
		if err := est.FitSamples(X, y, samples); err != nil {
			return errors.Wrapf(err, "tree %d", e)
		}
		rf.Estimators[e] = est
	}

	rf.SetFitted(rows, cols)
	logger.Debug("Training completed", "n_trees", len(rf.Estimators))
	return nil
}

// Predict averages the predictions of all trees
func (rf *RandomForestRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	if !rf.IsFitted() {
		return nil, errors.NewNotFittedError("RandomForestRegressor", "Predict")
	}
	rows, cols := X.Dims()
	if cols != rf.NFeatures {
		return nil, errors.NewDimensionError("Predict", rf.NFeatures, cols, 1)
	}

	out := mat.NewDense(rows, 1, nil)
	row := make([]float64, cols)
	nTrees := float64(len(rf.Estimators))
	for i := 0; i < rows; i++ {
		mat.Row(row, i, X)
		var sum float64
		for _, est := range rf.Estimators {
			sum += est.PredictRow(row)
		}
		out.Set(i, 0, sum/nTrees)
	}
	return out, nil
}

// Score returns the coefficient of determination R^2 of the prediction
func (rf *RandomForestRegressor) Score(X, y mat.Matrix) (float64, error) {
	pred, err := rf.Predict(X)
	if err != nil {
		return 0, err
	}
	return metrics.R2Score(metrics.ColumnVector(y), metrics.ColumnVector(pred))
}

// FeatureImportances returns the mean of the per-tree normalized importances
func (rf *RandomForestRegressor) FeatureImportances() ([]float64, error) {
	if !rf.IsFitted() {
		return nil, errors.NewNotFittedError("RandomForestRegressor", "FeatureImportances")
	}
	out := make([]float64, rf.NFeatures)
	var used float64
	for _, est := range rf.Estimators {
		imp, err := est.FeatureImportances()
		if err != nil {
			return nil, err
		}
		var total float64
		for j, v := range imp {
			out[j] += v
			total += v
		}
		// 分割のない木は平均に含めない
		if total > 0 {
			used++
		}
	}
	if used == 0 {
		return out, nil
	}
	for j := range out {
		out[j] /= used
	}
	return out, nil
}

func (rf *RandomForestRegressor) String() string {
	return fmt.Sprintf("RandomForestRegressor(n_estimators=%d, max_depth=%d, random_state=%d, fitted=%t)",
		rf.NEstimators, rf.MaxDepth, rf.RandomState, rf.IsFitted())
}
