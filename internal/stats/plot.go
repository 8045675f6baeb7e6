package stats

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// PlotResponse draws the forward and backward sweeps of a substrate and
// saves the figure; the format follows the file extension.
func PlotResponse(path, title string, inputs, forward, backward []float64) error {
	if len(inputs) == 0 || len(inputs) != len(forward) || len(inputs) != len(backward) {
		return fmt.Errorf("plot response: mismatched series lengths %d/%d/%d", len(inputs), len(forward), len(backward))
	}
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "input"
	p.Y.Label.Text = "output"

	fwd := make(plotter.XYs, len(inputs))
	bwd := make(plotter.XYs, len(inputs))
	for i, x := range inputs {
		fwd[i].X, fwd[i].Y = x, forward[i]
		bwd[i].X, bwd[i].Y = x, backward[i]
	}

	fwdLine, err := plotter.NewLine(fwd)
	if err != nil {
		return err
	}
	bwdLine, err := plotter.NewLine(bwd)
	if err != nil {
		return err
	}
	bwdLine.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}

	p.Add(plotter.NewGrid(), fwdLine, bwdLine)
	p.Legend.Add("forward", fwdLine)
	p.Legend.Add("backward", bwdLine)
	p.Legend.Top = true
	p.Legend.Left = true

	return p.Save(6*vg.Inch, 4*vg.Inch, path)
}
