// Package viz renders the exploratory and evaluation charts of a study to
// image files with gonum/plot. The output format follows the file
// extension (png, svg, pdf, ...).
package viz

import (
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/vg"

	"github.com/YuminosukeSato/heartml/pkg/errors"
	"github.com/YuminosukeSato/heartml/pkg/log"
)

// Default figure size.
const (
	DefaultWidth  = 8 * vg.Inch
	DefaultHeight = 6 * vg.Inch
)

// Sequential palettes accepted by WithPalette.
const (
	PaletteBlues  = "Blues"
	PaletteGreens = "Greens"
)

// barColor is the first color of seaborn's default palette.
var barColor = color.RGBA{R: 76, G: 114, B: 176, A: 255}

// Option configures a chart.
type Option func(*settings)

type settings struct {
	width   vg.Length
	height  vg.Length
	title   string
	xLabel  string
	yLabel  string
	palette string
}

func newSettings(title string, opts []Option) settings {
	s := settings{
		width:   DefaultWidth,
		height:  DefaultHeight,
		title:   title,
		palette: PaletteBlues,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// WithSize sets the figure size.
func WithSize(width, height vg.Length) Option {
	return func(s *settings) {
		s.width = width
		s.height = height
	}
}

// WithTitle overrides the chart title.
func WithTitle(title string) Option {
	return func(s *settings) { s.title = title }
}

// WithAxisLabels sets the x and y axis labels.
func WithAxisLabels(x, y string) Option {
	return func(s *settings) {
		s.xLabel = x
		s.yLabel = y
	}
}

// WithPalette selects the ColorBrewer sequential palette of a confusion
// matrix heatmap, e.g. PaletteBlues or PaletteGreens.
func WithPalette(name string) Option {
	return func(s *settings) { s.palette = name }
}

func (s settings) newPlot() *plot.Plot {
	p := plot.New()
	p.Title.Text = s.title
	p.X.Label.Text = s.xLabel
	p.Y.Label.Text = s.yLabel
	return p
}

func (s settings) validate(op string) error {
	if s.width <= 0 || s.height <= 0 {
		return errors.NewValidationError("size", op+": width and height must be positive",
			[2]float64{float64(s.width), float64(s.height)})
	}
	return nil
}

// save writes p to path, creating the parent directory.
func (s settings) save(p *plot.Plot, path, kind string) error {
	if path == "" {
		return errors.NewValidationError("path", kind+": output path is empty", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "%s: create output directory", kind)
	}
	// gonum/plot の描画は不正な範囲で panic することがある
	err := errors.SafeExecute("viz."+kind, func() error {
		return p.Save(s.width, s.height, path)
	})
	if err != nil {
		return errors.Wrapf(err, "%s: save %s", kind, path)
	}
	log.GetLoggerWithName("viz").Debug("plot written",
		log.OperationKey, kind,
		log.OutputPathKey, path,
	)
	return nil
}
