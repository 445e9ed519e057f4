package dataset

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/pricepipe/pricepipe/pkg/errors"
)

// DefaultSeed は分割とモデル学習で使う固定シード
const DefaultSeed = 42

// TestSize は n 行・比率 ratio のときのテスト行数 round(n*ratio) を返す
func TestSize(n int, ratio float64) int {
	return int(math.Round(float64(n) * ratio))
}

// TrainTestSplit は行をシャッフルし、先頭 round(n*ratio) 行をテスト、残りを学習用に割り当てる。
// 同じ入力・比率・シードなら常に同じ分割になる。
//
// どちらかが空になる分割はエラーを返す。これは比率の設定エラー（ValidationError）ではなく、
// 行数に対するデータのエラーとして ValueError で報告する。
func TrainTestSplit(t *Table, ratio float64, seed uint64) (train, test *Table, err error) {
	if !(ratio > 0 && ratio < 1) {
		return nil, nil, errors.NewValidationError("test_train_ratio", "must be in (0, 1)", ratio)
	}

	n := t.NRows()
	nTest := TestSize(n, ratio)
	nTrain := n - nTest
	if nTest == 0 || nTrain == 0 {
		return nil, nil, errors.NewValueError("TrainTestSplit",
			fmt.Sprintf("%d rows with ratio %g gives train=%d test=%d; both partitions must be non-empty", n, ratio, nTrain, nTest))
	}

	rng := rand.New(rand.NewPCG(seed, seed))
	perm := rng.Perm(n)

	test = t.subset("test", perm[:nTest])
	train = t.subset("train", perm[nTest:])
	return train, test, nil
}
