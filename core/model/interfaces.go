package model

import (
	"gonum.org/v1/gonum/mat"
)

// Scorer is the interface for models that can compute a score.
type Scorer interface {
	// Score returns the coefficient of determination R^2 of the prediction.
	Score(X mat.Matrix, y mat.Matrix) (float64, error)
}

// FittedChecker is implemented by every estimator embedding BaseEstimator.
type FittedChecker interface {
	IsFitted() bool
}

// FeatureNamer is the interface for models that remember the names of the
// columns they were trained on.
type FeatureNamer interface {
	FeatureNames() []string
}

// FeatureImportancer is the interface for models exposing normalized
// impurity-based feature importances.
type FeatureImportancer interface {
	FeatureImportances() ([]float64, error)
}
