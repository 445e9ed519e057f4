package model

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/pricepipe/pricepipe/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	// MetadataFile はアーティファクトディレクトリ内のメタデータファイル名
	MetadataFile = "MLmodel"
	// WeightsFile はgobでエンコードされた推定器のファイル名
	WeightsFile = "model.gob"
	// FormatVersion はアーティファクト形式のバージョン
	FormatVersion = 1
)

// ArtifactMetadata は MLmodel ファイルの内容
type ArtifactMetadata struct {
	Kind          string                 `yaml:"kind"`
	FormatVersion int                    `yaml:"format_version"`
	CreatedAt     time.Time              `yaml:"created_at"`
	Params        map[string]interface{} `yaml:"params,omitempty"`
	Features      []string               `yaml:"features,omitempty"`
}

// Factory は空の推定器を生成する。LoadArtifact はこれに gob をデコードする。
type Factory func() Regressor

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register はモデル種別とファクトリを登録する。推定器パッケージの init から呼ばれるため、
// アーティファクトを読み込むプログラムは該当パッケージを import しておく必要がある。
func Register(kind string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[kind]; dup {
		panic(fmt.Sprintf("model: Register called twice for kind %q", kind))
	}
	registry[kind] = factory
}

// RegisteredKinds は登録済みのモデル種別を返す
func RegisteredKinds() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	kinds := make([]string, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

func lookup(kind string) (Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[kind]
	return f, ok
}

// SaveArtifact は学習済みモデルを自己完結したディレクトリとして保存する。
// 既存のディレクトリは上書きされる。
//
// 使用例:
//
//	forest := ensemble.NewRandomForestRegressor()
//	// ... モデルの学習 ...
//	err := model.SaveArtifact(forest, "outputs/model")
func SaveArtifact(m Regressor, dir string) error {
	if fc, ok := m.(FittedChecker); ok && !fc.IsFitted() {
		return errors.NewNotFittedError(m.Kind(), "SaveArtifact")
	}
	if err := os.RemoveAll(dir); err != nil {
		return errors.NewIOError("remove", dir, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.NewIOError("mkdir", dir, err)
	}

	if err := SaveModel(m, filepath.Join(dir, WeightsFile)); err != nil {
		return err
	}

	meta := ArtifactMetadata{
		Kind:          m.Kind(),
		FormatVersion: FormatVersion,
		CreatedAt:     time.Now().UTC(),
		Params:        m.GetParams(),
	}
	if fn, ok := m.(FeatureNamer); ok {
		meta.Features = fn.FeatureNames()
	}
	data, err := yaml.Marshal(&meta)
	if err != nil {
		return errors.Wrap(err, "failed to encode artifact metadata")
	}
	path := filepath.Join(dir, MetadataFile)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.NewIOError("write", path, err)
	}
	return nil
}

// ReadArtifactMetadata はアーティファクトディレクトリの MLmodel を読み込む
func ReadArtifactMetadata(dir string) (*ArtifactMetadata, error) {
	path := filepath.Join(dir, MetadataFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewIOError("read", path, err)
	}
	var meta ArtifactMetadata
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return nil, errors.NewModelError("ReadArtifactMetadata", "malformed "+MetadataFile, err)
	}
	if meta.Kind == "" {
		return nil, errors.NewModelError("ReadArtifactMetadata", "missing kind", nil)
	}
	if meta.FormatVersion != FormatVersion {
		return nil, errors.NewModelError("ReadArtifactMetadata",
			fmt.Sprintf("unsupported format_version %d", meta.FormatVersion), nil)
	}
	return &meta, nil
}

// LoadArtifact はディレクトリからモデルを読み込む。ディレクトリが有効な
// アーティファクトでなければエラーを返す。
func LoadArtifact(dir string) (Regressor, *ArtifactMetadata, error) {
	meta, err := ReadArtifactMetadata(dir)
	if err != nil {
		return nil, nil, err
	}
	factory, ok := lookup(meta.Kind)
	if !ok {
		return nil, nil, errors.Wrapf(errors.ErrUnknownModelKind, "%s (registered: %v)", meta.Kind, RegisteredKinds())
	}
	m := factory()
	if err := LoadModel(m, filepath.Join(dir, WeightsFile)); err != nil {
		return nil, nil, err
	}
	if fc, ok := m.(FittedChecker); ok && !fc.IsFitted() {
		return nil, nil, errors.NewNotFittedError(meta.Kind, "LoadArtifact")
	}
	return m, meta, nil
}

// SaveModel はモデルをgobでファイルに保存する
func SaveModel(model interface{}, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return errors.NewIOError("create", filename, err)
	}
	defer file.Close()

	encoder := gob.NewEncoder(file)
	if err := encoder.Encode(model); err != nil {
		return errors.NewModelError("SaveModel", "failed to encode model", err)
	}

	return file.Close()
}

// LoadModel はgobファイルからモデルを読み込む
//
// パラメータ:
//   - model: 読み込み先のモデル（ポインタ）
//   - filename: 読み込み元のファイルパス
func LoadModel(model interface{}, filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return errors.NewIOError("open", filename, err)
	}
	defer file.Close()

	decoder := gob.NewDecoder(file)
	if err := decoder.Decode(model); err != nil {
		return errors.NewModelError("LoadModel", "failed to decode model", err)
	}

	return nil
}
