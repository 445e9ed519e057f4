// Package tree は分散減少で分割する回帰決定木を提供する。
package tree

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/pricepipe/pricepipe/core/model"
	"github.com/pricepipe/pricepipe/pkg/errors"
)

// Kind は DecisionTreeRegressor のアーティファクト種別
const Kind = "DecisionTreeRegressor"

func init() {
	model.Register(Kind, func() model.Regressor { return &DecisionTreeRegressor{} })
}

// minGain 未満の不純度減少では分割しない
const minGain = 1e-12

// Node represents a single node in a flat tree. Children are indices into
// DecisionTreeRegressor.Nodes; leaves have Left == Right == -1.
type Node struct {
	Feature   int
	Threshold float64
	Left      int
	Right     int

	// Value はノードに属するサンプルの目的変数の平均
	Value    float64
	NSamples int
	// Impurity はノード内の平均二乗誤差
	Impurity float64
}

// IsLeaf returns true if the node has no children
func (n *Node) IsLeaf() bool {
	return n.Left < 0
}

// DecisionTreeRegressor はscikit-learn互換の回帰決定木
//
// 各ノードで全特徴量を走査し、二乗誤差の和が最も減る閾値で分割する。
// x <= Threshold のサンプルが左の子に入る。
type DecisionTreeRegressor struct {
	model.BaseEstimator

	// MaxDepth は木の最大深さ。0 以下は無制限
	MaxDepth int
	// MinSamplesSplit は内部ノードを分割するのに必要な最小サンプル数
	MinSamplesSplit int
	// MinSamplesLeaf は葉に必要な最小サンプル数
	MinSamplesLeaf int

	Nodes []Node

	// Importances は特徴量ごとの不純度減少の合計（正規化前）
	Importances []float64
}

// Option configures a DecisionTreeRegressor
type Option func(*DecisionTreeRegressor)

// WithMaxDepth sets the maximum depth of the tree
func WithMaxDepth(depth int) Option {
	return func(t *DecisionTreeRegressor) {
		t.MaxDepth = depth
	}
}

// WithMinSamplesSplit sets the minimum number of samples required to split a node
func WithMinSamplesSplit(n int) Option {
	return func(t *DecisionTreeRegressor) {
		t.MinSamplesSplit = n
	}
}

// WithMinSamplesLeaf sets the minimum number of samples required at a leaf
func WithMinSamplesLeaf(n int) Option {
	return func(t *DecisionTreeRegressor) {
		t.MinSamplesLeaf = n
	}
}

// NewDecisionTreeRegressor は新しいDecisionTreeRegressorを作成する
//
// 使用例:
//
//	dt := tree.NewDecisionTreeRegressor(tree.WithMaxDepth(3))
//	err := dt.Fit(X, y)
//	pred, err := dt.Predict(XTest)
func NewDecisionTreeRegressor(opts ...Option) *DecisionTreeRegressor {
	t := &DecisionTreeRegressor{
		MaxDepth:        0,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Kind はアーティファクト種別を返す
func (t *DecisionTreeRegressor) Kind() string {
	return Kind
}

// GetParams はハイパーパラメータを返す
func (t *DecisionTreeRegressor) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"max_depth":         t.MaxDepth,
		"min_samples_split": t.MinSamplesSplit,
		"min_samples_leaf":  t.MinSamplesLeaf,
	}
}

func (t *DecisionTreeRegressor) validate() error {
	if t.MinSamplesSplit < 2 {
		return errors.NewValidationError("min_samples_split", "must be at least 2", t.MinSamplesSplit)
	}
	if t.MinSamplesLeaf < 1 {
		return errors.NewValidationError("min_samples_leaf", "must be at least 1", t.MinSamplesLeaf)
	}
	return nil
}

// Fit は全サンプルで木を学習する
func (t *DecisionTreeRegressor) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "DecisionTreeRegressor.Fit")

	rows, _ := X.Dims()
	samples := make([]int, rows)
	for i := range samples {
		samples[i] = i
	}
	return t.FitSamples(X, y, samples)
}

// FitSamples は samples で指定した行（重複可）だけで木を学習する。
// ブートストラップ標本から木を作るアンサンブルが使う。
func (t *DecisionTreeRegressor) FitSamples(X, y mat.Matrix, samples []int) error {
	rows, cols := X.Dims()
	yRows, yCols := y.Dims()
	if rows == 0 || cols == 0 {
		return errors.NewModelError("DecisionTreeRegressor.Fit", "empty data", errors.ErrEmptyData)
	}
	if rows != yRows {
		return errors.NewDimensionError("Fit", rows, yRows, 0)
	}
	if yCols != 1 {
		return errors.NewDimensionError("Fit", 1, yCols, 1)
	}
	if len(samples) == 0 {
		return errors.NewModelError("DecisionTreeRegressor.Fit", "no samples", errors.ErrEmptyData)
	}
	if err := t.validate(); err != nil {
		return err
	}

	b := &builder{
		tree:    t,
		X:       X,
		y:       mat.Col(nil, 0, y),
		nFeat:   cols,
		scratch: make([]sample, len(samples)),
	}
	t.Nodes = t.Nodes[:0]
	t.Importances = make([]float64, cols)

	idx := append([]int(nil), samples...)
	b.build(idx, 0)

	t.SetFitted(len(samples), cols)
	return nil
}

// Predict は各行の予測値を n×1 の行列で返す
func (t *DecisionTreeRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	if !t.IsFitted() {
		return nil, errors.NewNotFittedError("DecisionTreeRegressor", "Predict")
	}
	rows, cols := X.Dims()
	if cols != t.NFeatures {
		return nil, errors.NewDimensionError("Predict", t.NFeatures, cols, 1)
	}

	out := mat.NewDense(rows, 1, nil)
	row := make([]float64, cols)
	for i := 0; i < rows; i++ {
		mat.Row(row, i, X)
		out.Set(i, 0, t.PredictRow(row))
	}
	return out, nil
}

// PredictRow は1サンプルの予測値を返す。学習済みであることは呼び出し側が保証する。
func (t *DecisionTreeRegressor) PredictRow(x []float64) float64 {
	id := 0
	for {
		n := &t.Nodes[id]
		if n.IsLeaf() {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			id = n.Left
		} else {
			id = n.Right
		}
	}
}

// Depth は学習済みの木の深さを返す（根のみなら 0）
func (t *DecisionTreeRegressor) Depth() int {
	if len(t.Nodes) == 0 {
		return 0
	}
	var walk func(id int) int
	walk = func(id int) int {
		n := &t.Nodes[id]
		if n.IsLeaf() {
			return 0
		}
		return 1 + max(walk(n.Left), walk(n.Right))
	}
	return walk(0)
}

// NLeaves は葉の数を返す
func (t *DecisionTreeRegressor) NLeaves() int {
	count := 0
	for i := range t.Nodes {
		if t.Nodes[i].IsLeaf() {
			count++
		}
	}
	return count
}

// FeatureImportances は合計が1になるよう正規化した不純度ベースの重要度を返す
func (t *DecisionTreeRegressor) FeatureImportances() ([]float64, error) {
	if !t.IsFitted() {
		return nil, errors.NewNotFittedError("DecisionTreeRegressor", "FeatureImportances")
	}
	return normalize(t.Importances), nil
}

func normalize(v []float64) []float64 {
	out := make([]float64, len(v))
	var total float64
	for _, x := range v {
		total += x
	}
	if total <= 0 {
		return out
	}
	for i, x := range v {
		out[i] = x / total
	}
	return out
}

func (t *DecisionTreeRegressor) String() string {
	if !t.IsFitted() {
		return fmt.Sprintf("DecisionTreeRegressor(max_depth=%d, fitted=false)", t.MaxDepth)
	}
	return fmt.Sprintf("DecisionTreeRegressor(max_depth=%d, nodes=%d, leaves=%d)", t.MaxDepth, len(t.Nodes), t.NLeaves())
}

type sample struct {
	value float64
	idx   int
}

type split struct {
	feature   int
	threshold float64
	gain      float64
	nLeft     int
}

type builder struct {
	tree    *DecisionTreeRegressor
	X       mat.Matrix
	y       []float64
	nFeat   int
	scratch []sample
}

// build appends the subtree for idx and returns the index of its root
func (b *builder) build(idx []int, depth int) int {
	t := b.tree
	n := len(idx)

	var sum, sumSq float64
	for _, i := range idx {
		sum += b.y[i]
		sumSq += b.y[i] * b.y[i]
	}
	mean := sum / float64(n)
	sse := math.Max(sumSq-sum*sum/float64(n), 0)

	id := len(t.Nodes)
	t.Nodes = append(t.Nodes, Node{
		Feature:  -1,
		Left:     -1,
		Right:    -1,
		Value:    mean,
		NSamples: n,
		Impurity: sse / float64(n),
	})

	if (t.MaxDepth > 0 && depth >= t.MaxDepth) ||
		n < t.MinSamplesSplit ||
		n < 2*t.MinSamplesLeaf ||
		sse <= minGain {
		return id
	}

	best, ok := b.bestSplit(idx, sum, sumSq, sse)
	if !ok {
		return id
	}

	left := make([]int, 0, best.nLeft)
	right := make([]int, 0, n-best.nLeft)
	for _, i := range idx {
		if b.X.At(i, best.feature) <= best.threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	t.Importances[best.feature] += best.gain
	t.Nodes[id].Feature = best.feature
	t.Nodes[id].Threshold = best.threshold

	l := b.build(left, depth+1)
	r := b.build(right, depth+1)
	t.Nodes[id].Left = l
	t.Nodes[id].Right = r
	return id
}

// bestSplit scans every feature in index order; ties keep the first candidate
func (b *builder) bestSplit(idx []int, sum, sumSq, sse float64) (split, bool) {
	n := len(idx)
	minLeaf := b.tree.MinSamplesLeaf
	best := split{gain: minGain}
	found := false

	values := b.scratch[:n]
	for f := 0; f < b.nFeat; f++ {
		for k, i := range idx {
			values[k] = sample{value: b.X.At(i, f), idx: i}
		}
		sort.SliceStable(values, func(a, c int) bool {
			return values[a].value < values[c].value
		})
		if values[0].value == values[n-1].value {
			continue
		}

		var leftSum, leftSq float64
		for k := 0; k < n-1; k++ {
			yv := b.y[values[k].idx]
			leftSum += yv
			leftSq += yv * yv

			if values[k].value == values[k+1].value {
				continue
			}
			nl := k + 1
			nr := n - nl
			if nl < minLeaf || nr < minLeaf {
				continue
			}

			rightSum := sum - leftSum
			leftSSE := leftSq - leftSum*leftSum/float64(nl)
			rightSSE := (sumSq - leftSq) - rightSum*rightSum/float64(nr)
			gain := sse - leftSSE - rightSSE
			if gain > best.gain {
				threshold := (values[k].value + values[k+1].value) / 2
				// 隣接する浮動小数点数では中点が上側の値に丸められる
				if threshold >= values[k+1].value {
					threshold = values[k].value
				}
				best = split{
					feature:   f,
					threshold: threshold,
					gain:      gain,
					nLeft:     nl,
				}
				found = true
			}
		}
	}
	return best, found
}
