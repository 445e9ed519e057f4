package tracking

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pricepipe/pricepipe/core/model"
	"github.com/pricepipe/pricepipe/pkg/errors"
	"github.com/pricepipe/pricepipe/pkg/log"
)

const (
	runsScheme   = "runs:/"
	modelsScheme = "models:/"
)

// Tracker はランの開始とモデルカタログへの登録を担う
type Tracker struct {
	store        Store
	artifactRoot string
	experiment   string
	textfile     string
	logger       log.Logger
}

// Option configures a Tracker
type Option func(*Tracker)

// WithArtifactRoot sets the directory under which run artifacts are stored
func WithArtifactRoot(dir string) Option {
	return func(t *Tracker) { t.artifactRoot = dir }
}

// WithExperiment sets the experiment name recorded on new runs
func WithExperiment(name string) Option {
	return func(t *Tracker) { t.experiment = name }
}

// WithTextfile enables Prometheus textfile export of run metrics
func WithTextfile(path string) Option {
	return func(t *Tracker) { t.textfile = path }
}

// WithLogger overrides the logger
func WithLogger(l log.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

// New は store を使う Tracker を作成する
func New(store Store, opts ...Option) *Tracker {
	t := &Tracker{
		store:        store,
		artifactRoot: "mlruns/artifacts",
		experiment:   "default",
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.logger == nil {
		t.logger = log.GetLoggerWithName("tracking")
	}
	return t
}

// Store は背後のストアを返す
func (t *Tracker) Store() Store {
	return t.store
}

// Close はストアを閉じる
func (t *Tracker) Close() error {
	return t.store.Close()
}

// StartRun は新しいランを開始する。呼び出し側は必ず Run.End を呼ぶこと。
// 通常は WithRun を使う。
func (t *Tracker) StartRun(ctx context.Context, stage string) (*Run, error) {
	info := &RunInfo{
		ID:         uuid.NewString(),
		Experiment: t.experiment,
		Stage:      stage,
		Status:     StatusRunning,
		StartTime:  time.Now().UTC(),
	}
	if err := t.store.CreateRun(ctx, info); err != nil {
		return nil, err
	}

	run := &Run{
		tracker: t,
		id:      info.ID,
		stage:   stage,
		start:   info.StartTime,
		metrics: map[string]float64{},
		logger:  t.logger.With(log.RunIDKey, info.ID, log.StageKey, stage),
	}
	run.logger.Info("Run started", "experiment", t.experiment)
	return run, nil
}

// WithRun はランを開いて fn を実行し、どの経路で戻っても必ずランを終了させる。
// fn のエラーと panic はランを FAILED にしたうえで呼び出し側に返る。
func (t *Tracker) WithRun(ctx context.Context, stage string, fn func(ctx context.Context, run *Run) error) (err error) {
	run, err := t.StartRun(ctx, stage)
	if err != nil {
		return err
	}
	defer func() {
		if endErr := run.End(ctx, err); endErr != nil && err == nil {
			err = endErr
		}
	}()
	defer errors.Recover(&err, "tracking.WithRun("+stage+")")

	return fn(ctx, run)
}

// ValidateModelName はモデル名が成果物ディレクトリ内の相対パスとして安全かを検査する。
// 空・絶対パス・".." を含む名前は拒否する。
func ValidateModelName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return errors.NewValidationError("model_name", "must not be empty", name)
	case filepath.IsAbs(name) || strings.HasPrefix(name, "/"):
		return errors.NewValidationError("model_name", "must be a relative path", name)
	case slices.Contains(strings.Split(filepath.ToSlash(name), "/"), ".."):
		return errors.NewValidationError("model_name", `must not contain ".."`, name)
	case !filepath.IsLocal(filepath.FromSlash(name)):
		return errors.NewValidationError("model_name", "must stay inside the artifact directory", name)
	}
	return nil
}

// RegisterModel は uri のモデルを name としてカタログに登録する。
// バージョン番号はストアが割り当てる。
func (t *Tracker) RegisterModel(ctx context.Context, uri, name string) (*ModelVersion, error) {
	if err := ValidateModelName(name); err != nil {
		return nil, err
	}

	dir, runID, err := t.resolve(ctx, uri)
	if err != nil {
		return nil, err
	}
	if _, err := model.ReadArtifactMetadata(dir); err != nil {
		return nil, errors.Wrapf(err, "register %s", uri)
	}

	mv, err := t.store.CreateModelVersion(ctx, name, uri, runID)
	if err != nil {
		return nil, err
	}
	t.logger.Info("Model registered",
		log.ModelNameKey, mv.Name,
		log.ModelVersionKey, mv.Version,
		log.ModelURIKey, uri)
	return mv, nil
}

// LoadModel はパス、runs:/<run>/<name>、models:/<name>/<version> のいずれかからモデルを読み込む
func (t *Tracker) LoadModel(ctx context.Context, ref string) (model.Regressor, error) {
	dir, _, err := t.resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	m, _, err := model.LoadArtifact(dir)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// resolve returns the local artifact directory for ref and the run that produced it
func (t *Tracker) resolve(ctx context.Context, ref string) (string, string, error) {
	switch {
	case strings.HasPrefix(ref, runsScheme):
		runID, name, ok := strings.Cut(strings.TrimPrefix(ref, runsScheme), "/")
		if !ok || runID == "" || name == "" {
			return "", "", errors.NewValueError("resolve", "malformed run URI "+ref)
		}
		if !filepath.IsLocal(runID) || strings.ContainsAny(runID, `/\`) {
			return "", "", errors.NewValidationError("run_id", "must be a single path element", runID)
		}
		if err := ValidateModelName(name); err != nil {
			return "", "", err
		}
		return filepath.Join(t.artifactRoot, runID, filepath.FromSlash(name)), runID, nil

	case strings.HasPrefix(ref, modelsScheme):
		name, v, ok := strings.Cut(strings.TrimPrefix(ref, modelsScheme), "/")
		version, convErr := strconv.Atoi(v)
		if !ok || name == "" || convErr != nil || version < 1 {
			return "", "", errors.NewValueError("resolve", "malformed model URI "+ref)
		}
		mv, err := t.store.GetModelVersion(ctx, name, version)
		if err != nil {
			return "", "", err
		}
		if strings.HasPrefix(mv.Source, modelsScheme) {
			return "", "", errors.NewValueError("resolve", "model source refers to another model: "+mv.Source)
		}
		return t.resolve(ctx, mv.Source)

	default:
		if _, err := os.Stat(ref); err != nil {
			return "", "", errors.NewIOError("stat", ref, err)
		}
		return ref, "", nil
	}
}
