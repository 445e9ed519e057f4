package dataset

import (
	"fmt"
	"strings"

	"github.com/spf13/cast"
	"gonum.org/v1/gonum/mat"

	"github.com/pricepipe/pricepipe/pkg/errors"
)

// XY は target 列を目的変数、それ以外の列を特徴量として数値化する。
// 特徴量名は元の列順で返る。
func XY(t *Table, target string) (*mat.Dense, *mat.VecDense, []string, error) {
	tIdx, err := t.ColumnIndex(target)
	if err != nil {
		return nil, nil, nil, err
	}
	if t.NRows() == 0 {
		return nil, nil, nil, errors.NewValueError("XY", fmt.Sprintf("%s: no rows", t.Name))
	}

	features := make([]string, 0, len(t.Columns)-1)
	for i, c := range t.Columns {
		if i != tIdx {
			features = append(features, c)
		}
	}
	if len(features) == 0 {
		return nil, nil, nil, errors.NewValueError("XY", fmt.Sprintf("%s: no feature columns besides %q", t.Name, target))
	}

	n := t.NRows()
	X := mat.NewDense(n, len(features), nil)
	y := mat.NewVecDense(n, nil)
	for i, row := range t.Rows {
		j := 0
		for c, cell := range row {
			v, err := parseCell(cell)
			if err != nil {
				return nil, nil, nil, errors.NewValueError("XY",
					fmt.Sprintf("%s: row %d, column %q: non-numeric value %q", t.Name, i+1, t.Columns[c], cell))
			}
			if err := errors.CheckScalar(t.Name+"."+t.Columns[c], v); err != nil {
				return nil, nil, nil, err
			}
			if c == tIdx {
				y.SetVec(i, v)
				continue
			}
			X.Set(i, j, v)
			j++
		}
	}
	return X, y, features, nil
}

func parseCell(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty cell")
	}
	return cast.ToFloat64E(s)
}
