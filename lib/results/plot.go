package results

import (
	"fmt"
	"image/color"

	"github.com/gotmc/eis"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// Plot keeps a Nyquist plot (Re[Z] against Im[Z]) of the sweep up to date
// on disk. The image format follows the file extension.
type Plot struct {
	path   string
	title  string
	width  vg.Length
	height vg.Length
	points plotter.XYs
}

// NewPlot returns a Plot that is rewritten to path after every sample.
func NewPlot(path, title string) *Plot {
	return &Plot{path: path, title: title, width: 6 * vg.Inch, height: 5 * vg.Inch}
}

// Path returns the image file name.
func (p *Plot) Path() string { return p.path }

func (p *Plot) Accept(s eis.ImpedanceSample) error {
	p.points = append(p.points, plotter.XY{X: s.ReZOhm, Y: s.ImZOhm})
	return p.render()
}

// Close renders the final plot.
func (p *Plot) Close() error {
	if len(p.points) == 0 {
		return nil
	}
	return p.render()
}

func (p *Plot) render() error {
	pl := plot.New()
	pl.Title.Text = p.title
	pl.X.Label.Text = "Re[Z] (Ω)"
	pl.Y.Label.Text = "Im[Z] (Ω)"
	pl.Add(plotter.NewGrid())

	line, err := plotter.NewLine(p.points)
	if err != nil {
		return fmt.Errorf("nyquist line: %w", err)
	}
	line.LineStyle.Color = color.RGBA{B: 200, A: 255}
	scatter, err := plotter.NewScatter(p.points)
	if err != nil {
		return fmt.Errorf("nyquist points: %w", err)
	}
	scatter.GlyphStyle.Color = color.RGBA{R: 200, A: 255}
	pl.Add(line, scatter)

	if err := pl.Save(p.width, p.height, p.path); err != nil {
		return fmt.Errorf("saving plot: %w", err)
	}
	return nil
}
