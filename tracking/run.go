package tracking

import (
	"context"
	"math"
	"path/filepath"
	"time"

	"github.com/spf13/cast"

	"github.com/pricepipe/pricepipe/core/model"
	"github.com/pricepipe/pricepipe/pkg/errors"
	"github.com/pricepipe/pricepipe/pkg/log"
)

// Run は1回のステージ実行に対応するトラッキングのスコープ
type Run struct {
	tracker *Tracker
	id      string
	stage   string
	start   time.Time
	metrics map[string]float64
	ended   bool
	logger  log.Logger
}

// ID はランIDを返す
func (r *Run) ID() string { return r.id }

// Stage はランを開いたステージ名を返す
func (r *Run) Stage() string { return r.stage }

// ArtifactDir はこのランの成果物ディレクトリを返す
func (r *Run) ArtifactDir() string {
	return filepath.Join(r.tracker.artifactRoot, r.id)
}

// LogParam はパラメータを文字列に変換して記録する
func (r *Run) LogParam(ctx context.Context, key string, value interface{}) error {
	s, err := cast.ToStringE(value)
	if err != nil {
		return errors.NewValidationError(key, "param value is not convertible to string", value)
	}
	if err := r.tracker.store.LogParam(ctx, r.id, key, s); err != nil {
		return err
	}
	r.logger.Debug("Param logged", "key", key, "value", s)
	return nil
}

// LogMetric はメトリクスを記録する
func (r *Run) LogMetric(ctx context.Context, key string, value float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		r.logger.Warn("Logging non-finite metric", "key", key, "value", value)
	}
	if err := r.tracker.store.LogMetric(ctx, r.id, key, value, time.Now().UTC()); err != nil {
		return err
	}
	r.metrics[key] = value
	r.logger.Debug("Metric logged", "key", key, "value", value)
	return nil
}

// LogModel はモデルをランの成果物として保存し、runs:/<run_id>/<name> 形式のURIを返す
func (r *Run) LogModel(ctx context.Context, m model.Regressor, name string) (string, error) {
	if err := ValidateModelName(name); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dir := filepath.Join(r.ArtifactDir(), filepath.FromSlash(name))
	if err := model.SaveArtifact(m, dir); err != nil {
		return "", err
	}
	uri := runsScheme + r.id + "/" + name
	r.logger.Info("Model logged", log.ModelNameKey, m.Kind(), log.ModelURIKey, uri)
	return uri, nil
}

// End はランを終了させる。cause が nil なら FINISHED、そうでなければ FAILED。
// 2回目以降の呼び出しは何もしない。
func (r *Run) End(ctx context.Context, cause error) error {
	if r.ended {
		return nil
	}
	r.ended = true

	status := StatusFinished
	if cause != nil {
		status = StatusFailed
	}
	end := time.Now().UTC()
	// 呼び出し側の ctx がキャンセル済みでも終了状態は記録する
	if err := r.tracker.store.UpdateRun(context.WithoutCancel(ctx), r.id, status, end); err != nil {
		return err
	}

	if r.tracker.textfile != "" {
		if err := writeTextfile(r.tracker.textfile, r, status, end); err != nil {
			r.logger.Warn("Failed to write metrics textfile", log.PathKey, r.tracker.textfile, "error", err.Error())
		}
	}

	duration := end.Sub(r.start)
	if cause != nil {
		r.logger.Error("Run failed", cause, log.DurationMsKey, duration.Milliseconds())
	} else {
		r.logger.Info("Run finished", log.DurationMsKey, duration.Milliseconds())
	}
	return nil
}
