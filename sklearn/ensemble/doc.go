// Package ensemble provides bagged tree ensembles.
//
// RandomForestRegressor fits each tree on a bootstrap sample drawn from a
// PCG generator seeded with RandomState, so identical inputs and
// hyperparameters always produce identical trees and predictions. Trees are
// built one after another on the calling goroutine.
//
// Example:
//
//	rf := ensemble.NewRandomForestRegressor(
//		ensemble.WithNEstimators(50),
//		ensemble.WithMaxDepth(3),
//		ensemble.WithRandomState(42),
//	)
//	if err := rf.Fit(X, y); err != nil {
//		return err
//	}
//	pred, err := rf.Predict(XTest)
//
// Importing this package registers the "RandomForestRegressor" artifact kind
// with core/model, so model.LoadArtifact can restore saved forests.
package ensemble
