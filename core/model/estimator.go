package model

import "gonum.org/v1/gonum/mat"

// Fitter は学習可能なモデルのインターフェース
type Fitter interface {
	// Fit はモデルを訓練データで学習させる。y は n×1 の列ベクトル
	Fit(X, y mat.Matrix) error
}

// Predictor は予測可能なモデルのインターフェース
type Predictor interface {
	// Predict は入力データに対する予測を n×1 の行列で返す
	Predict(X mat.Matrix) (mat.Matrix, error)
}

// Regressor はパイプラインが扱う回帰モデル。Fit・Predict・永続化が可能であれば
// 具体的な推定器の型に依存せずにパイプラインへ差し込める。
type Regressor interface {
	Fitter
	Predictor

	// Kind はアーティファクトに記録されるモデル種別（例: "RandomForestRegressor"）
	Kind() string

	// GetParams はモデルのハイパーパラメータを返す
	GetParams() map[string]interface{}
}
