package tracking

import (
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pricepipe/pricepipe/pkg/errors"
)

// writeTextfile はランのメトリクスを node_exporter の textfile collector 形式で書き出す
func writeTextfile(path string, r *Run, status RunStatus, end time.Time) error {
	reg := prometheus.NewRegistry()

	metric := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pricepipe_run_metric",
		Help: "Last value of each metric logged by a pipeline run.",
	}, []string{"stage", "run_id", "key"})
	success := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pricepipe_run_success",
		Help: "1 if the last run of the stage finished, 0 if it failed.",
	}, []string{"stage", "run_id"})
	duration := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pricepipe_run_duration_seconds",
		Help: "Wall-clock duration of the last run of the stage.",
	}, []string{"stage", "run_id"})
	lastEnd := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pricepipe_run_end_timestamp_seconds",
		Help: "Unix time at which the last run of the stage ended.",
	}, []string{"stage", "run_id"})
	reg.MustRegister(metric, success, duration, lastEnd)

	for key, v := range r.metrics {
		metric.WithLabelValues(r.stage, r.id, key).Set(v)
	}
	ok := 0.0
	if status == StatusFinished {
		ok = 1
	}
	success.WithLabelValues(r.stage, r.id).Set(ok)
	duration.WithLabelValues(r.stage, r.id).Set(end.Sub(r.start).Seconds())
	lastEnd.WithLabelValues(r.stage, r.id).Set(float64(end.Unix()))

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.NewIOError("mkdir", dir, err)
		}
	}
	if err := prometheus.WriteToTextfile(path, reg); err != nil {
		return errors.NewIOError("write", path, err)
	}
	return nil
}
