package viz

import (
	"image/color"
	"math"
	"strconv"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/brewer"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/text"

	"github.com/YuminosukeSato/heartml/pkg/errors"
)

// nanColor fills cells whose value is undefined, e.g. the correlation of a
// constant column.
var nanColor = color.RGBA{R: 220, G: 220, B: 220, A: 255}

// matrixGrid adapts a matrix to plotter.GridXYZ with row 0 drawn at the top.
type matrixGrid struct {
	m mat.Matrix
}

func (g matrixGrid) Dims() (c, r int) {
	r, c = g.m.Dims()
	return c, r
}

func (g matrixGrid) Z(c, r int) float64 {
	rows, _ := g.m.Dims()
	return g.m.At(rows-1-r, c)
}

func (g matrixGrid) X(c int) float64 { return float64(c) }
func (g matrixGrid) Y(r int) float64 { return float64(r) }

func reversed(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[len(names)-1-i] = n
	}
	return out
}

func checkSquare(op string, m mat.Matrix, labels []string) error {
	if m == nil {
		return errors.NewValueError(op, "matrix is nil")
	}
	r, c := m.Dims()
	if r == 0 || r != c {
		return errors.NewDimensionError(op, r, c, 1)
	}
	if len(labels) != r {
		return errors.NewDimensionError(op, r, len(labels), 0)
	}
	return nil
}

// CorrelationHeatmap draws a correlation matrix with a diverging blue-red
// color map fixed to [-1, 1]. Cells are not annotated.
func CorrelationHeatmap(columns []string, corr mat.Matrix, path string, opts ...Option) error {
	const op = "viz.CorrelationHeatmap"
	s := newSettings("Correlation matrix", opts)
	if err := s.validate(op); err != nil {
		return err
	}
	if err := checkSquare(op, corr, columns); err != nil {
		return err
	}

	cmap := moreland.SmoothBlueRed()
	cmap.SetMin(-1)
	cmap.SetMax(1)
	h := plotter.NewHeatMap(matrixGrid{m: corr}, cmap.Palette(255))
	h.Min, h.Max = -1, 1
	h.NaN = nanColor

	p := s.newPlot()
	p.Add(h)
	nominalAxes(p, columns)
	p.X.Tick.Label.Rotation = math.Pi / 4
	p.X.Tick.Label.XAlign = text.XRight
	p.X.Tick.Label.YAlign = text.YCenter
	return s.save(p, path, op)
}

// ConfusionMatrixHeatmap draws a confusion matrix annotated with integer
// counts. Rows are true labels and columns predicted labels.
func ConfusionMatrixHeatmap(cm mat.Matrix, labels []string, path string, opts ...Option) error {
	const op = "viz.ConfusionMatrixHeatmap"
	s := newSettings("Confusion matrix", opts)
	if s.xLabel == "" && s.yLabel == "" {
		s.xLabel, s.yLabel = "Predicted", "Actual"
	}
	if err := s.validate(op); err != nil {
		return err
	}
	if err := checkSquare(op, cm, labels); err != nil {
		return err
	}
	pal, err := brewer.GetPalette(brewer.TypeSequential, s.palette, 9)
	if err != nil {
		return errors.NewValidationError("palette", err.Error(), s.palette)
	}

	n, _ := cm.Dims()
	lo, hi := 0.0, 0.0
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			v := cm.At(i, j)
			if v < 0 || math.IsNaN(v) {
				return errors.NewValidationError("cm", "counts must be non-negative", v)
			}
			hi = math.Max(hi, v)
		}
	}
	if hi <= lo {
		hi = lo + 1
	}

	h := plotter.NewHeatMap(matrixGrid{m: cm}, pal)
	h.Min, h.Max = lo, hi

	annotations, err := annotate(cm, lo, hi)
	if err != nil {
		return errors.Wrap(err, op)
	}

	p := s.newPlot()
	p.Add(h, annotations)
	nominalAxes(p, labels)
	return s.save(p, path, op)
}

// annotate places the integer value at the center of every cell. Text on
// the darker half of the palette is white.
func annotate(m mat.Matrix, lo, hi float64) (*plotter.Labels, error) {
	n, _ := m.Dims()
	xyl := plotter.XYLabels{
		XYs:    make(plotter.XYs, 0, n*n),
		Labels: make([]string, 0, n*n),
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			xyl.XYs = append(xyl.XYs, plotter.XY{X: float64(j), Y: float64(n - 1 - i)})
			xyl.Labels = append(xyl.Labels, strconv.FormatFloat(m.At(i, j), 'f', 0, 64))
		}
	}
	labels, err := plotter.NewLabels(xyl)
	if err != nil {
		return nil, err
	}
	for k := range labels.TextStyle {
		i, j := k/n, k%n
		labels.TextStyle[k].XAlign = text.XCenter
		labels.TextStyle[k].YAlign = text.YCenter
		labels.TextStyle[k].Color = color.Black
		if (m.At(i, j)-lo)/(hi-lo) > 0.5 {
			labels.TextStyle[k].Color = color.White
		}
	}
	return labels, nil
}

func nominalAxes(p *plot.Plot, names []string) {
	p.NominalX(names...)
	p.NominalY(reversed(names)...)
}
