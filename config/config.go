// Package config はパイプライン各ステージ共通の設定を読み込む。
//
// 優先順位は 環境変数 > YAMLファイル > デフォルト値 で、コマンドラインフラグは
// 呼び出し側でさらに上書きする。
package config

import (
	"os"
	"strings"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"

	"github.com/pricepipe/pricepipe/pkg/errors"
	"github.com/pricepipe/pricepipe/pkg/log"
)

// EnvPrefix は上書きに使う環境変数の接頭辞
const EnvPrefix = "PRICEPIPE_"

// Config はアプリケーション全体の設定
type Config struct {
	Tracking TrackingConfig `yaml:"tracking"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Prep     PrepConfig     `yaml:"prep"`
	Train    TrainConfig    `yaml:"train"`
}

// TrackingConfig はトラッキングシンクの設定
type TrackingConfig struct {
	// URI は sqlite://<path>, postgres://..., memory:// のいずれか
	URI          string `yaml:"uri"`
	ArtifactRoot string `yaml:"artifact_root"`
	Experiment   string `yaml:"experiment"`
	// LogPlots が true なら学習時に予測値と実測値の散布図を保存する
	LogPlots bool `yaml:"log_plots"`
}

// LoggingConfig はログ出力の設定
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// MetricsConfig はPrometheusテキストファイル出力の設定
type MetricsConfig struct {
	// Textfile が空でなければ、ラン終了時にメトリクスをこのパスへ書き出す
	Textfile string `yaml:"textfile"`
}

// PrepConfig はデータ準備ステージのデフォルト値
type PrepConfig struct {
	TestTrainRatio float64 `yaml:"test_train_ratio"`
}

// TrainConfig は学習ステージのデフォルト値
type TrainConfig struct {
	NEstimators int `yaml:"n_estimators"`
	MaxDepth    int `yaml:"max_depth"`
}

// Default はデフォルト設定を返す
func Default() *Config {
	return &Config{
		Tracking: TrackingConfig{
			URI:          "sqlite://mlruns/tracking.db",
			ArtifactRoot: "mlruns/artifacts",
			Experiment:   "default",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Prep: PrepConfig{
			TestTrainRatio: 0.2,
		},
		Train: TrainConfig{
			NEstimators: 50,
			MaxDepth:    3,
		},
	}
}

// Load はデフォルト値にYAMLファイル（path が空なら省略）と環境変数を重ねて設定を作る
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.NewIOError("read", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "failed to parse YAML config %s", path)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	str("TRACKING_URI", &c.Tracking.URI)
	str("ARTIFACT_ROOT", &c.Tracking.ArtifactRoot)
	str("EXPERIMENT", &c.Tracking.Experiment)
	str("LOG_LEVEL", &c.Logging.Level)
	str("LOG_FORMAT", &c.Logging.Format)
	str("METRICS_TEXTFILE", &c.Metrics.Textfile)

	if v, ok := lookup(EnvPrefix + "LOG_PLOTS"); ok && v != "" {
		b, err := cast.ToBoolE(v)
		if err != nil {
			return errors.NewValidationError(EnvPrefix+"LOG_PLOTS", "must be a boolean", v)
		}
		c.Tracking.LogPlots = b
	}
	if v, ok := lookup(EnvPrefix + "TEST_TRAIN_RATIO"); ok && v != "" {
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return errors.NewValidationError(EnvPrefix+"TEST_TRAIN_RATIO", "must be a number", v)
		}
		c.Prep.TestTrainRatio = f
	}
	if v, ok := lookup(EnvPrefix + "N_ESTIMATORS"); ok && v != "" {
		n, err := cast.ToIntE(v)
		if err != nil {
			return errors.NewValidationError(EnvPrefix+"N_ESTIMATORS", "must be an integer", v)
		}
		c.Train.NEstimators = n
	}
	if v, ok := lookup(EnvPrefix + "MAX_DEPTH"); ok && v != "" {
		n, err := cast.ToIntE(v)
		if err != nil {
			return errors.NewValidationError(EnvPrefix+"MAX_DEPTH", "must be an integer", v)
		}
		c.Train.MaxDepth = n
	}
	return nil
}

// Validate は設定値を検証する。ステージ固有のパラメータはフラグで上書きされうるため、
// ここではトラッキングとログの設定だけを見る。
func (c *Config) Validate() error {
	if _, err := log.ToLogLevel(c.Logging.Level); err != nil {
		return errors.NewValidationError("logging.level", "must be one of debug, info, warn, error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return errors.NewValidationError("logging.format", "must be json or console", c.Logging.Format)
	}

	scheme, _, ok := strings.Cut(c.Tracking.URI, "://")
	if !ok {
		return errors.NewValidationError("tracking.uri", "must be of the form <scheme>://...", c.Tracking.URI)
	}
	switch scheme {
	case "sqlite", "postgres", "postgresql", "memory":
	default:
		return errors.NewValidationError("tracking.uri", "unsupported scheme "+scheme, c.Tracking.URI)
	}
	if c.Tracking.ArtifactRoot == "" {
		return errors.NewValidationError("tracking.artifact_root", "must not be empty", c.Tracking.ArtifactRoot)
	}
	if c.Tracking.Experiment == "" {
		return errors.NewValidationError("tracking.experiment", "must not be empty", c.Tracking.Experiment)
	}
	return nil
}
