// Package tracking は実験管理とモデルレジストリ（トラッキングシンク）を提供する。
//
// 各ステージは Tracker.WithRun で1つのランを開き、パラメータ・メトリクス・モデルを
// そのランに記録する。ランは成功・失敗・panic のいずれでも必ず終了状態になる。
// 永続化は Store インターフェースの背後にあり、SQLite・PostgreSQL（gorm）と
// テスト用のインメモリ実装を URI で切り替える。
package tracking

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pricepipe/pricepipe/pkg/errors"
)

// RunStatus はランの状態
type RunStatus string

const (
	StatusRunning  RunStatus = "RUNNING"
	StatusFinished RunStatus = "FINISHED"
	StatusFailed   RunStatus = "FAILED"
)

// RunInfo はストアに記録されたランの内容
type RunInfo struct {
	ID         string
	Experiment string
	Stage      string
	Status     RunStatus
	StartTime  time.Time
	EndTime    time.Time

	// Params と Metrics はキーごとの値。メトリクスは最後に記録した値
	Params  map[string]string
	Metrics map[string]float64
}

// ModelVersion はモデルカタログへの登録記録。登録後は変更されない。
type ModelVersion struct {
	Name      string
	Version   int
	Source    string
	RunID     string
	CreatedAt time.Time
}

// String は "<name>:<version>" 形式の識別子を返す
func (v *ModelVersion) String() string {
	return fmt.Sprintf("%s:%d", v.Name, v.Version)
}

// Store はトラッキングシンクの永続化バックエンド
type Store interface {
	CreateRun(ctx context.Context, run *RunInfo) error
	UpdateRun(ctx context.Context, runID string, status RunStatus, endTime time.Time) error

	// LogParam はパラメータを記録する。同じキーに異なる値を記録するとエラー
	LogParam(ctx context.Context, runID, key, value string) error
	// LogMetric はメトリクスを追記する
	LogMetric(ctx context.Context, runID, key string, value float64, ts time.Time) error
	GetRun(ctx context.Context, runID string) (*RunInfo, error)

	// CreateModelVersion は name の次のバージョン番号をアトミックに割り当てて登録する
	CreateModelVersion(ctx context.Context, name, source, runID string) (*ModelVersion, error)
	GetModelVersion(ctx context.Context, name string, version int) (*ModelVersion, error)

	Close() error
}

// Open は URI のスキームに応じてストアを開く
//
//	memory://                 インメモリ（テスト用）
//	sqlite://<path>           SQLite ファイル
//	postgres://user@host/db   PostgreSQL
func Open(uri string) (Store, error) {
	scheme, rest, ok := strings.Cut(uri, "://")
	if !ok {
		return nil, errors.NewValidationError("tracking.uri", "must be of the form <scheme>://...", uri)
	}
	switch scheme {
	case "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		if rest == "" {
			return nil, errors.NewValidationError("tracking.uri", "sqlite path is empty", uri)
		}
		return NewSQLiteStore(rest)
	case "postgres", "postgresql":
		return NewPostgresStore(uri)
	default:
		return nil, errors.NewValidationError("tracking.uri", "unsupported scheme "+scheme, uri)
	}
}

func notFound(format string, args ...interface{}) error {
	return errors.Wrapf(errors.ErrNotFound, format, args...)
}
