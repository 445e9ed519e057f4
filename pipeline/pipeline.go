// Package pipeline implements the three batch stages: Prep, Train and Register.
//
// Each stage reads its inputs from the file system, records parameters and
// metrics through a RunLogger and writes its outputs back to the file system.
// Stages do not retry and do not clean up partial outputs; re-running a stage
// with the same inputs overwrites them.
package pipeline

import (
	"context"

	"github.com/pricepipe/pricepipe/core/model"
	"github.com/pricepipe/pricepipe/tracking"
)

const (
	// CategoricalColumn is label-encoded by Prep
	CategoricalColumn = "Segment"
	// TargetColumn is the regression target used by Train
	TargetColumn = "price"

	TrainFile = "train.csv"
	TestFile  = "test.csv"

	// Seed is shared by the row split and the forest
	Seed = 42
)

// Stage names recorded on tracking runs
const (
	StagePrep     = "prep"
	StageTrain    = "train"
	StageRegister = "register"
)

// RunLogger is the part of a tracking run the stages write to
type RunLogger interface {
	ID() string
	ArtifactDir() string
	LogParam(ctx context.Context, key string, value interface{}) error
	LogMetric(ctx context.Context, key string, value float64) error
	LogModel(ctx context.Context, m model.Regressor, name string) (string, error)
}

// ModelRegistry assigns catalog versions
type ModelRegistry interface {
	RegisterModel(ctx context.Context, uri, name string) (*tracking.ModelVersion, error)
}

var (
	_ RunLogger     = (*tracking.Run)(nil)
	_ ModelRegistry = (*tracking.Tracker)(nil)
)
