package pipeline

import (
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/pricepipe/pricepipe/pkg/errors"
)

// savePredictionPlot は予測値と実測値の散布図を y=x の参照線付きで保存する
func savePredictionPlot(path string, yTrue, yPred *mat.VecDense) error {
	n := yTrue.Len()
	pts := make(plotter.XYs, n)
	lo, hi := math.Inf(1), math.Inf(-1)
	for i := 0; i < n; i++ {
		pts[i].X = yTrue.AtVec(i)
		pts[i].Y = yPred.AtVec(i)
		lo = math.Min(lo, math.Min(pts[i].X, pts[i].Y))
		hi = math.Max(hi, math.Max(pts[i].X, pts[i].Y))
	}

	p := plot.New()
	p.Title.Text = "Predicted vs actual " + TargetColumn
	p.X.Label.Text = "actual"
	p.Y.Label.Text = "predicted"

	scatter, err := plotter.NewScatter(pts)
	if err != nil {
		return errors.Wrap(err, "failed to build scatter plot")
	}
	ref, err := plotter.NewLine(plotter.XYs{{X: lo, Y: lo}, {X: hi, Y: hi}})
	if err != nil {
		return errors.Wrap(err, "failed to build reference line")
	}
	ref.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
	p.Add(scatter, ref, plotter.NewGrid())

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.NewIOError("mkdir", filepath.Dir(path), err)
	}
	if err := p.Save(5*vg.Inch, 5*vg.Inch, path); err != nil {
		return errors.NewIOError("write", path, err)
	}
	return nil
}
