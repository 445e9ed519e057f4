package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pricepipe/pricepipe/core/model"
	"github.com/pricepipe/pricepipe/pkg/errors"
	"github.com/pricepipe/pricepipe/pkg/log"
	"github.com/pricepipe/pricepipe/tracking"
)

// ModelInfo is the descriptor written for downstream consumers
type ModelInfo struct {
	ID string `json:"id"`
}

// encode renders the descriptor as {"id": "<name>:<version>"}
func (m ModelInfo) encode() ([]byte, error) {
	id, err := json.Marshal(m.ID)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(id)+10)
	out = append(out, `{"id": `...)
	out = append(out, id...)
	out = append(out, '}')
	return out, nil
}

// ReadModelInfo parses a descriptor written by Register
func ReadModelInfo(path string) (*ModelInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewIOError("read", path, err)
	}
	var info ModelInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, errors.NewValueError("ReadModelInfo", path+": "+err.Error())
	}
	return &info, nil
}

// RegisterOptions are the inputs of the registration stage
type RegisterOptions struct {
	ModelName           string
	ModelPath           string
	ModelInfoOutputPath string
}

// RegisterResult summarizes a Register run
type RegisterResult struct {
	Name    string
	Version int
	ID      string
	URI     string
}

func (o RegisterOptions) validate() error {
	if err := tracking.ValidateModelName(o.ModelName); err != nil {
		return err
	}
	if o.ModelPath == "" {
		return errors.NewValidationError("model_path", "is required", o.ModelPath)
	}
	if o.ModelInfoOutputPath == "" {
		return errors.NewValidationError("model_info_output_path", "is required", o.ModelInfoOutputPath)
	}
	return nil
}

// Register loads the saved model, logs it to the run, registers it in the
// catalog and writes the model info descriptor. A failed descriptor write does
// not undo the registration.
func Register(ctx context.Context, run RunLogger, registry ModelRegistry, opts RegisterOptions) (*RegisterResult, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	logger := log.GetLoggerWithName("pipeline.register").With(log.RunIDKey, run.ID())

	m, meta, err := model.LoadArtifact(opts.ModelPath)
	if err != nil {
		return nil, err
	}
	logger.Info("Model loaded", log.ModelNameKey, meta.Kind, log.PathKey, opts.ModelPath)

	uri, err := run.LogModel(ctx, m, opts.ModelName)
	if err != nil {
		return nil, err
	}

	mv, err := registry.RegisterModel(ctx, uri, opts.ModelName)
	if err != nil {
		return nil, err
	}
	res := &RegisterResult{
		Name:    mv.Name,
		Version: mv.Version,
		ID:      mv.String(),
		URI:     uri,
	}
	logger.Info("Model registered",
		log.PhaseKey, log.PhaseRegistration,
		log.ModelURIKey, uri,
		log.ModelVersionKey, mv.Version)

	data, err := ModelInfo{ID: res.ID}.encode()
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode model info")
	}
	if dir := filepath.Dir(opts.ModelInfoOutputPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.NewIOError("mkdir", dir, err)
		}
	}
	if err := os.WriteFile(opts.ModelInfoOutputPath, data, 0o644); err != nil {
		return nil, errors.NewIOError("write", opts.ModelInfoOutputPath, err)
	}
	logger.Info("Model info written", log.PathKey, opts.ModelInfoOutputPath, "id", res.ID)
	return res, nil
}
