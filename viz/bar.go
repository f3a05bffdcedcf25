package viz

import (
	"fmt"
	"math"

	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/YuminosukeSato/heartml/pkg/errors"
)

// CountPlot draws one vertical bar per category with its frequency.
func CountPlot(categories []string, counts []int, path string, opts ...Option) error {
	const op = "viz.CountPlot"
	s := newSettings("Count", opts)
	if err := s.validate(op); err != nil {
		return err
	}
	if len(categories) == 0 {
		return errors.NewValueError(op, "no categories to plot")
	}
	if len(categories) != len(counts) {
		return errors.NewDimensionError(op, len(categories), len(counts), 0)
	}

	values := make(plotter.Values, len(counts))
	for i, c := range counts {
		if c < 0 {
			return errors.NewValidationError("counts", fmt.Sprintf("count of %q is negative", categories[i]), c)
		}
		values[i] = float64(c)
	}

	p := s.newPlot()
	bars, err := plotter.NewBarChart(values, vg.Points(60))
	if err != nil {
		return errors.Wrap(err, op)
	}
	bars.Color = barColor
	bars.LineStyle.Width = 0
	p.Add(bars)
	p.NominalX(categories...)
	p.Y.Min = 0
	return s.save(p, path, op)
}

// FeatureImportanceBar draws horizontal bars of feature importances. The
// first feature is drawn at the top, so pass them sorted in descending
// order to get a ranking chart.
func FeatureImportanceBar(features []string, importances []float64, path string, opts ...Option) error {
	const op = "viz.FeatureImportanceBar"
	s := newSettings("Feature importance", opts)
	if err := s.validate(op); err != nil {
		return err
	}
	if len(features) == 0 {
		return errors.NewValueError(op, "no features to plot")
	}
	if len(features) != len(importances) {
		return errors.NewDimensionError(op, len(features), len(importances), 0)
	}

	// 先頭を上に描くため y 方向は逆順に並べる
	n := len(features)
	values := make(plotter.Values, n)
	names := make([]string, n)
	for i, v := range importances {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.NewValidationError("importances", fmt.Sprintf("importance of %q is not finite", features[i]), v)
		}
		values[n-1-i] = v
		names[n-1-i] = features[i]
	}

	p := s.newPlot()
	barWidth := (s.height - 2*vg.Inch) / vg.Length(n+1)
	if barWidth < vg.Points(4) {
		barWidth = vg.Points(4)
	}
	bars, err := plotter.NewBarChart(values, barWidth)
	if err != nil {
		return errors.Wrap(err, op)
	}
	bars.Horizontal = true
	bars.Color = barColor
	bars.LineStyle.Width = 0
	p.Add(bars)
	p.NominalY(names...)
	p.X.Min = 0
	return s.save(p, path, op)
}
