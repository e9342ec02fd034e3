// Package report renders finished runs for the terminal.
package report

import (
	"fmt"
	"io"
	"math"

	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/nmpcsim/internal/sim"
	"github.com/san-kum/nmpcsim/internal/viz"
)

type PlotOptions struct {
	Width  int
	Height int
}

func DefaultPlotOptions() PlotOptions {
	return PlotOptions{Width: 80, Height: 10}
}

var stateLabels = []string{"x [m]", "y [m]", "theta [rad]"}
var inputLabels = []string{"v [m/s]", "omega [rad/s]"}

// downsample picks n evenly spaced samples.
func downsample(v []float64, n int) []float64 {
	if n <= 0 || len(v) <= n {
		return v
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = v[i*(len(v)-1)/(n-1)]
	}
	return out
}

// Plot writes each state against its reference, then each input, then the
// x-y path.
func Plot(w io.Writer, h *sim.History, opts PlotOptions) error {
	if h.Len() == 0 {
		return fmt.Errorf("no data to plot")
	}

	for i, label := range stateLabels {
		actual := downsample(sim.Column(h.States, i), opts.Width)
		ref := downsample(sim.Column(h.References, i), opts.Width)
		graph := asciigraph.PlotMany([][]float64{actual, ref},
			asciigraph.Height(opts.Height),
			asciigraph.Width(opts.Width),
			asciigraph.SeriesColors(asciigraph.Blue, asciigraph.Red),
			asciigraph.Caption(label+" (blue) vs reference (red)"),
		)
		if _, err := fmt.Fprintf(w, "%s\n\n", graph); err != nil {
			return err
		}
	}

	for i, label := range inputLabels {
		graph := asciigraph.Plot(downsample(sim.InputColumn(h.Inputs, i), opts.Width),
			asciigraph.Height(opts.Height),
			asciigraph.Width(opts.Width),
			asciigraph.Caption(label),
		)
		if _, err := fmt.Fprintf(w, "%s\n\n", graph); err != nil {
			return err
		}
	}

	_, err := fmt.Fprintf(w, "%s\nx-y path (trajectory and reference)\n", Path(h, opts.Width/2, opts.Height*2))
	return err
}

// Path draws the plant and reference x-y traces on one braille canvas with
// equal axis scaling.
func Path(h *sim.History, cols, rows int) string {
	xs, ys := sim.Column(h.States, 0), sim.Column(h.States, 1)
	rx, ry := sim.Column(h.References, 0), sim.Column(h.References, 1)

	b := viz.BoundsOf(append(append([]float64{}, xs...), rx...), append(append([]float64{}, ys...), ry...))
	c := viz.NewCanvas(cols, rows)
	c.Polyline(b, rx, ry)
	c.Polyline(b, xs, ys)
	return c.String()
}

// finite drops NaN and Inf values.
func finite(v []float64) []float64 {
	out := v[:0:0]
	for _, x := range v {
		if !math.IsNaN(x) && !math.IsInf(x, 0) {
			out = append(out, x)
		}
	}
	return out
}
