package model

// EstimatorState はモデルの学習状態を表す
type EstimatorState int

const (
	// NotFitted はモデルが未学習の状態
	NotFitted EstimatorState = iota
	// Fitted はモデルが学習済みの状態
	Fitted
)

// BaseEstimator は全てのモデルの基底となる構造体
//
// フィールドはgobでアーティファクトに保存されるため公開している。
type BaseEstimator struct {
	State EstimatorState

	// NFeatures と NSamples は Fit 時の入力の形状
	NFeatures int
	NSamples  int
}

// IsFitted はモデルが学習済みかどうかを返す
func (e *BaseEstimator) IsFitted() bool {
	return e.State == Fitted
}

// SetFitted はモデルを学習済み状態に設定する
func (e *BaseEstimator) SetFitted(nSamples, nFeatures int) {
	e.State = Fitted
	e.NSamples = nSamples
	e.NFeatures = nFeatures
}

// Reset はモデルを初期状態にリセットする
func (e *BaseEstimator) Reset() {
	e.State = NotFitted
	e.NSamples = 0
	e.NFeatures = 0
}
