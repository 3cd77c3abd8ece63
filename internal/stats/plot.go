package stats

import (
	"errors"
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"drivenet/internal/model"
)

var (
	bestColor = color.RGBA{R: 0xd6, G: 0x27, B: 0x28, A: 0xff}
	meanColor = color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff}
	minColor  = color.RGBA{R: 0x7f, G: 0x7f, B: 0x7f, A: 0xff}
)

// WriteFitnessPlot renders best, mean and min fitness per generation to a
// PNG at path.
func WriteFitnessPlot(path, title string, diagnostics []model.GenerationDiagnostics) error {
	if len(diagnostics) == 0 {
		return errors.New("no generations to plot")
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Fitness by generation %s", title)
	p.X.Label.Text = "Generation"
	p.Y.Label.Text = "Fitness"

	best := make(plotter.XYs, 0, len(diagnostics))
	mean := make(plotter.XYs, 0, len(diagnostics))
	low := make(plotter.XYs, 0, len(diagnostics))
	for _, d := range diagnostics {
		x := float64(d.Generation)
		best = append(best, plotter.XY{X: x, Y: d.BestFitness})
		mean = append(mean, plotter.XY{X: x, Y: d.MeanFitness})
		low = append(low, plotter.XY{X: x, Y: d.MinFitness})
	}

	series := []struct {
		label string
		pts   plotter.XYs
		color color.Color
	}{
		{"best", best, bestColor},
		{"mean", mean, meanColor},
		{"min", low, minColor},
	}
	for _, s := range series {
		line, err := plotter.NewLine(s.pts)
		if err != nil {
			return err
		}
		line.Color = s.color
		line.Width = vg.Points(1.5)
		p.Add(line)
		p.Legend.Add(s.label, line)
	}
	p.Legend.Top = true
	p.Legend.Left = true
	p.Add(plotter.NewGrid())

	return p.Save(8*vg.Inch, 4*vg.Inch, path)
}
