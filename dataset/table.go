// Package dataset は区切りテキスト形式の表データの読み書き・分割・行列化を扱う。
//
// セルは文字列のまま保持されるため、変換しない列は読み込み時と同じ表現で書き出される。
package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pricepipe/pricepipe/pkg/errors"
	"github.com/pricepipe/pricepipe/preprocessing"
)

// Table はヘッダー付きの表データ
type Table struct {
	// Name はエラーメッセージ用の表の名前（通常はファイルパス）
	Name    string
	Columns []string
	Rows    [][]string
}

// NRows は行数を返す
func (t *Table) NRows() int {
	return len(t.Rows)
}

// ColumnIndex は列名のインデックスを返す。存在しなければ SchemaError。
func (t *Table) ColumnIndex(name string) (int, error) {
	for i, c := range t.Columns {
		if c == name {
			return i, nil
		}
	}
	return -1, errors.NewSchemaError(t.Name, name)
}

// Column は列の値を行順に返す
func (t *Table) Column(name string) ([]string, error) {
	idx, err := t.ColumnIndex(name)
	if err != nil {
		return nil, err
	}
	values := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		values[i] = row[idx]
	}
	return values, nil
}

// EncodeColumn は列をラベルエンコードし、セルを整数コードで置き換える。
// 学習済みのエンコーダーを返す。
func (t *Table) EncodeColumn(name string) (*preprocessing.LabelEncoder, error) {
	idx, err := t.ColumnIndex(name)
	if err != nil {
		return nil, err
	}
	values, _ := t.Column(name)

	enc := preprocessing.NewLabelEncoder()
	codes, err := enc.FitTransform(values)
	if err != nil {
		return nil, errors.Wrapf(err, "encode column %q", name)
	}
	for i, row := range t.Rows {
		row[idx] = strconv.Itoa(codes[i])
	}
	return enc, nil
}

// subset は指定した行インデックスからなる新しい表を作る。行スライスは共有しない。
func (t *Table) subset(name string, indices []int) *Table {
	out := &Table{
		Name:    name,
		Columns: append([]string(nil), t.Columns...),
		Rows:    make([][]string, len(indices)),
	}
	for i, idx := range indices {
		out.Rows[i] = append([]string(nil), t.Rows[idx]...)
	}
	return out
}

// ReadCSV はヘッダー行付きのCSVを読み込む
func ReadCSV(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.NewIOError("open", path, err)
	}
	defer f.Close()

	t, err := decode(f)
	if err != nil {
		return nil, errors.NewIOError("read", path, err)
	}
	t.Name = path
	return t, nil
}

func decode(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("missing header row")
	}
	if err != nil {
		return nil, err
	}

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	return &Table{Columns: header, Rows: rows}, nil
}

// WriteCSV は表をヘッダー行付きCSVとして書き出す。親ディレクトリは必要に応じて作成する。
func WriteCSV(t *Table, path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.NewIOError("mkdir", dir, err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.NewIOError("create", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(t.Columns); err != nil {
		return errors.NewIOError("write", path, err)
	}
	if err := w.WriteAll(t.Rows); err != nil {
		return errors.NewIOError("write", path, err)
	}
	if err := f.Close(); err != nil {
		return errors.NewIOError("close", path, err)
	}
	return nil
}
