package tracking

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/pricepipe/pricepipe/pkg/errors"
)

// MemoryStore はプロセス内だけで完結する Store。テストと memory:// で使う。
type MemoryStore struct {
	mu       sync.Mutex
	runs     map[string]*RunInfo
	versions map[string][]*ModelVersion
}

// NewMemoryStore は空の MemoryStore を作成する
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:     map[string]*RunInfo{},
		versions: map[string][]*ModelVersion{},
	}
}

func (s *MemoryStore) CreateRun(_ context.Context, run *RunInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.runs[run.ID]; dup {
		return errors.NewSinkError("create run", errors.Newf("run %s already exists", run.ID))
	}
	stored := *run
	stored.Params = map[string]string{}
	stored.Metrics = map[string]float64{}
	s.runs[run.ID] = &stored
	return nil
}

func (s *MemoryStore) run(op, runID string) (*RunInfo, error) {
	r, ok := s.runs[runID]
	if !ok {
		return nil, errors.NewSinkError(op, notFound("run %s", runID))
	}
	return r, nil
}

func (s *MemoryStore) UpdateRun(_ context.Context, runID string, status RunStatus, endTime time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.run("update run", runID)
	if err != nil {
		return err
	}
	r.Status = status
	r.EndTime = endTime
	return nil
}

func (s *MemoryStore) LogParam(_ context.Context, runID, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.run("log param", runID)
	if err != nil {
		return err
	}
	if old, ok := r.Params[key]; ok && old != value {
		return errors.NewSinkError("log param",
			errors.Newf("param %q already logged with value %q, got %q", key, old, value))
	}
	r.Params[key] = value
	return nil
}

func (s *MemoryStore) LogMetric(_ context.Context, runID, key string, value float64, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.run("log metric", runID)
	if err != nil {
		return err
	}
	r.Metrics[key] = value
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, runID string) (*RunInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.run("get run", runID)
	if err != nil {
		return nil, err
	}
	out := *r
	out.Params = maps.Clone(r.Params)
	out.Metrics = maps.Clone(r.Metrics)
	return &out, nil
}

func (s *MemoryStore) CreateModelVersion(_ context.Context, name, source, runID string) (*ModelVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mv := &ModelVersion{
		Name:      name,
		Version:   len(s.versions[name]) + 1,
		Source:    source,
		RunID:     runID,
		CreatedAt: time.Now().UTC(),
	}
	s.versions[name] = append(s.versions[name], mv)
	out := *mv
	return &out, nil
}

func (s *MemoryStore) GetModelVersion(_ context.Context, name string, version int) (*ModelVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	vs := s.versions[name]
	if version < 1 || version > len(vs) {
		return nil, errors.NewSinkError("get model version", notFound("model %s version %d", name, version))
	}
	out := *vs[version-1]
	return &out, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
