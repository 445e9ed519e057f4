// Package preprocessing はモデル学習前のデータ変換を提供する。
package preprocessing

import (
	"fmt"
	"sort"

	"github.com/pricepipe/pricepipe/pkg/errors"
)

// LabelEncoder はscikit-learn互換のラベルエンコーダー
// カテゴリ値を辞書順に並べ、そのインデックスを整数コードとして割り当てる
//
// 木モデル向けの順序エンコーディングであり、未知のカテゴリへの汎化は行わない。
type LabelEncoder struct {
	// Classes は辞書順に並んだカテゴリ値。コードは Classes 内のインデックス
	Classes []string

	index map[string]int
}

// NewLabelEncoder は新しいLabelEncoderを作成する
//
// 使用例:
//
//	enc := preprocessing.NewLabelEncoder()
//	codes, err := enc.FitTransform([]string{"suv", "sedan", "suv"})
//	// codes == []int{1, 0, 1}
func NewLabelEncoder() *LabelEncoder {
	return &LabelEncoder{}
}

// Fit は観測されたカテゴリ値から対応表を作る
func (e *LabelEncoder) Fit(values []string) error {
	if len(values) == 0 {
		return errors.NewModelError("LabelEncoder.Fit", "empty data", errors.ErrEmptyData)
	}

	seen := make(map[string]struct{}, len(values))
	classes := make([]string, 0)
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		classes = append(classes, v)
	}
	sort.Strings(classes)

	e.Classes = classes
	e.buildIndex()
	return nil
}

func (e *LabelEncoder) buildIndex() {
	e.index = make(map[string]int, len(e.Classes))
	for i, c := range e.Classes {
		e.index[c] = i
	}
}

// IsFitted は対応表が作られているかを返す
func (e *LabelEncoder) IsFitted() bool {
	return len(e.Classes) > 0
}

// Transform はカテゴリ値を整数コードに変換する。未知の値はエラー。
func (e *LabelEncoder) Transform(values []string) ([]int, error) {
	if !e.IsFitted() {
		return nil, errors.NewNotFittedError("LabelEncoder", "Transform")
	}
	if e.index == nil {
		e.buildIndex()
	}

	codes := make([]int, len(values))
	for i, v := range values {
		code, ok := e.index[v]
		if !ok {
			return nil, errors.NewValueError("LabelEncoder.Transform",
				fmt.Sprintf("previously unseen label %q at row %d", v, i))
		}
		codes[i] = code
	}
	return codes, nil
}

// FitTransform は Fit と Transform を続けて実行する
func (e *LabelEncoder) FitTransform(values []string) ([]int, error) {
	if err := e.Fit(values); err != nil {
		return nil, err
	}
	return e.Transform(values)
}

// InverseTransform は整数コードを元のカテゴリ値に戻す
func (e *LabelEncoder) InverseTransform(codes []int) ([]string, error) {
	if !e.IsFitted() {
		return nil, errors.NewNotFittedError("LabelEncoder", "InverseTransform")
	}

	values := make([]string, len(codes))
	for i, c := range codes {
		if c < 0 || c >= len(e.Classes) {
			return nil, errors.NewValueError("LabelEncoder.InverseTransform",
				fmt.Sprintf("code %d out of range [0, %d)", c, len(e.Classes)))
		}
		values[i] = e.Classes[c]
	}
	return values, nil
}

// NClasses はカテゴリ数 k を返す
func (e *LabelEncoder) NClasses() int {
	return len(e.Classes)
}

// GetParams はエンコーダーのパラメータを返す
func (e *LabelEncoder) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_classes": len(e.Classes),
	}
}
