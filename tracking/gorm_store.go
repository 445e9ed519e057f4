package tracking

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"github.com/pricepipe/pricepipe/pkg/errors"
)

// runRecord はランのテーブル
type runRecord struct {
	ID         string    `gorm:"primaryKey;type:varchar(36)"`
	Experiment string    `gorm:"not null;size:255;index"`
	Stage      string    `gorm:"not null;size:64"`
	Status     string    `gorm:"not null;size:20"`
	StartTime  time.Time `gorm:"not null"`
	EndTime    *time.Time
}

func (runRecord) TableName() string { return "runs" }

type paramRecord struct {
	RunID string `gorm:"primaryKey;type:varchar(36)"`
	Key   string `gorm:"primaryKey;size:255"`
	Value string `gorm:"type:text;not null"`
}

func (paramRecord) TableName() string { return "params" }

type metricRecord struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	RunID     string    `gorm:"type:varchar(36);not null;index:idx_metric_run_key"`
	Key       string    `gorm:"size:255;not null;index:idx_metric_run_key"`
	Value     float64   `gorm:"not null"`
	Timestamp time.Time `gorm:"not null"`
}

func (metricRecord) TableName() string { return "metrics" }

type registeredModelRecord struct {
	Name      string `gorm:"primaryKey;size:255"`
	CreatedAt time.Time
}

func (registeredModelRecord) TableName() string { return "registered_models" }

// (name, version) の一意制約が同時登録時の重複を防ぐ
type modelVersionRecord struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	Name      string `gorm:"size:255;not null;uniqueIndex:idx_model_name_version"`
	Version   int    `gorm:"not null;uniqueIndex:idx_model_name_version"`
	Source    string `gorm:"type:text;not null"`
	RunID     string `gorm:"type:varchar(36)"`
	CreatedAt time.Time
}

func (modelVersionRecord) TableName() string { return "model_versions" }

// GormStore は gorm で実装した Store。SQLite と PostgreSQL に対応する。
type GormStore struct {
	db *gorm.DB
}

// NewSQLiteStore は純Goの modernc.org/sqlite ドライバで SQLite ストアを開く。
// 親ディレクトリは必要に応じて作成する。
func NewSQLiteStore(path string) (*GormStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.NewIOError("mkdir", dir, err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path)
	dialector := sqlite.New(sqlite.Config{DriverName: "sqlite", DSN: dsn})
	store, err := newGormStore("sqlite", dialector)
	if err != nil {
		return nil, err
	}
	// SQLite の書き込みは1接続に直列化する
	sqlDB, err := store.db.DB()
	if err != nil {
		return nil, errors.NewSinkError("open sqlite", err)
	}
	sqlDB.SetMaxOpenConns(1)
	return store, nil
}

// NewPostgresStore は PostgreSQL ストアを開く
func NewPostgresStore(dsn string) (*GormStore, error) {
	return newGormStore("postgres", postgres.Open(dsn))
}

func newGormStore(name string, dialector gorm.Dialector) (*GormStore, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.NewSinkError("open "+name, err)
	}
	if err := db.AutoMigrate(
		&runRecord{},
		&paramRecord{},
		&metricRecord{},
		&registeredModelRecord{},
		&modelVersionRecord{},
	); err != nil {
		return nil, errors.NewSinkError("migrate "+name, err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) CreateRun(ctx context.Context, run *RunInfo) error {
	rec := runRecord{
		ID:         run.ID,
		Experiment: run.Experiment,
		Stage:      run.Stage,
		Status:     string(run.Status),
		StartTime:  run.StartTime,
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return errors.NewSinkError("create run", err)
	}
	return nil
}

func (s *GormStore) UpdateRun(ctx context.Context, runID string, status RunStatus, endTime time.Time) error {
	res := s.db.WithContext(ctx).Model(&runRecord{}).Where("id = ?", runID).
		Updates(map[string]interface{}{"status": string(status), "end_time": endTime})
	if res.Error != nil {
		return errors.NewSinkError("update run", res.Error)
	}
	if res.RowsAffected == 0 {
		return errors.NewSinkError("update run", notFound("run %s", runID))
	}
	return nil
}

func (s *GormStore) LogParam(ctx context.Context, runID, key, value string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.requireRun(tx, runID); err != nil {
			return err
		}
		var existing paramRecord
		err := tx.Where("run_id = ? AND key = ?", runID, key).Take(&existing).Error
		switch {
		case err == nil:
			if existing.Value != value {
				return errors.Newf("param %q already logged with value %q, got %q", key, existing.Value, value)
			}
			return nil
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(&paramRecord{RunID: runID, Key: key, Value: value}).Error
		default:
			return err
		}
	})
	if err != nil {
		return errors.NewSinkError("log param", err)
	}
	return nil
}

func (s *GormStore) LogMetric(ctx context.Context, runID, key string, value float64, ts time.Time) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.requireRun(tx, runID); err != nil {
			return err
		}
		return tx.Create(&metricRecord{RunID: runID, Key: key, Value: value, Timestamp: ts}).Error
	})
	if err != nil {
		return errors.NewSinkError("log metric", err)
	}
	return nil
}

func (s *GormStore) requireRun(tx *gorm.DB, runID string) error {
	var count int64
	if err := tx.Model(&runRecord{}).Where("id = ?", runID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return notFound("run %s", runID)
	}
	return nil
}

func (s *GormStore) GetRun(ctx context.Context, runID string) (*RunInfo, error) {
	db := s.db.WithContext(ctx)

	var rec runRecord
	if err := db.Where("id = ?", runID).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NewSinkError("get run", notFound("run %s", runID))
		}
		return nil, errors.NewSinkError("get run", err)
	}

	info := &RunInfo{
		ID:         rec.ID,
		Experiment: rec.Experiment,
		Stage:      rec.Stage,
		Status:     RunStatus(rec.Status),
		StartTime:  rec.StartTime,
		Params:     map[string]string{},
		Metrics:    map[string]float64{},
	}
	if rec.EndTime != nil {
		info.EndTime = *rec.EndTime
	}

	var params []paramRecord
	if err := db.Where("run_id = ?", runID).Find(&params).Error; err != nil {
		return nil, errors.NewSinkError("get run", err)
	}
	for _, p := range params {
		info.Params[p.Key] = p.Value
	}

	// 挿入順に読むので、同じキーは最後の値が残る
	var metrics []metricRecord
	if err := db.Where("run_id = ?", runID).Order("id").Find(&metrics).Error; err != nil {
		return nil, errors.NewSinkError("get run", err)
	}
	for _, m := range metrics {
		info.Metrics[m.Key] = m.Value
	}
	return info, nil
}

func (s *GormStore) CreateModelVersion(ctx context.Context, name, source, runID string) (*ModelVersion, error) {
	var rec modelVersionRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&registeredModelRecord{Name: name, CreatedAt: time.Now().UTC()}).Error; err != nil {
			return err
		}

		var latest int
		if err := tx.Model(&modelVersionRecord{}).
			Where("name = ?", name).
			Select("COALESCE(MAX(version), 0)").
			Scan(&latest).Error; err != nil {
			return err
		}

		rec = modelVersionRecord{
			Name:      name,
			Version:   latest + 1,
			Source:    source,
			RunID:     runID,
			CreatedAt: time.Now().UTC(),
		}
		return tx.Create(&rec).Error
	})
	if err != nil {
		return nil, errors.NewSinkError("register model", err)
	}
	return rec.toModelVersion(), nil
}

func (s *GormStore) GetModelVersion(ctx context.Context, name string, version int) (*ModelVersion, error) {
	var rec modelVersionRecord
	err := s.db.WithContext(ctx).Where("name = ? AND version = ?", name, version).Take(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NewSinkError("get model version", notFound("model %s version %d", name, version))
		}
		return nil, errors.NewSinkError("get model version", err)
	}
	return rec.toModelVersion(), nil
}

func (r *modelVersionRecord) toModelVersion() *ModelVersion {
	return &ModelVersion{
		Name:      r.Name,
		Version:   r.Version,
		Source:    r.Source,
		RunID:     r.RunID,
		CreatedAt: r.CreatedAt,
	}
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return errors.NewSinkError("close", err)
	}
	return sqlDB.Close()
}
