package report

import (
	"errors"
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/openml-pimp/internal/importance"
)

// ErrNothingToPlot is returned when there are no ranks to draw.
var ErrNothingToPlot = errors.New("report: nothing to plot")

// PlotAverageRanks saves a bar chart of avg, best parameter first, to path.
// The image format follows the file extension.
func PlotAverageRanks(avg *importance.Totals, title, path string) error {
	if avg == nil || avg.Len() == 0 {
		return ErrNothingToPlot
	}

	names := avg.Sorted()
	values := make(plotter.Values, len(names))
	for i, name := range names {
		values[i], _ = avg.Value(name)
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Hyperparameter"
	p.Y.Label.Text = "Average rank"
	p.Y.Min = 0

	bars, err := plotter.NewBarChart(values, vg.Points(20))
	if err != nil {
		return fmt.Errorf("create bar chart: %w", err)
	}
	bars.LineStyle.Width = vg.Length(0)
	bars.Color = color.RGBA{R: 70, G: 130, B: 180, A: 255}
	p.Add(bars)
	p.NominalX(names...)

	width := vg.Length(len(names)) * vg.Inch
	if width < 6*vg.Inch {
		width = 6 * vg.Inch
	}
	if err := p.Save(width, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("save rank plot: %w", err)
	}
	return nil
}
