package wgan_go

import (
	"fmt"
	"image/color"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gorgonia.org/tensor"
)

// Column Returns copy of j-th column of [N, M] matrix
func Column(t *tensor.Dense, j int) ([]float64, error) {
	if t.Dims() != 2 {
		return nil, fmt.Errorf("Matrix expected, but got %d dimensions", t.Dims())
	}
	rows, cols := t.Shape()[0], t.Shape()[1]
	if j < 0 || j >= cols {
		return nil, fmt.Errorf("Column %d is out of range [0, %d)", j, cols)
	}
	data, ok := t.Data().([]float64)
	if !ok {
		return nil, fmt.Errorf("Matrix must be float64, got %v", t.Dtype())
	}
	column := make([]float64, rows)
	for i := range column {
		column[i] = data[i*cols+j]
	}
	return column, nil
}

// PlotXY Plot chart for input y(x). Optional reference points are drawn with different color
func PlotXY(x, y []float64, fname string, reference ...plotter.XYs) error {
	if len(x) != len(y) {
		return fmt.Errorf("X and Y(X) must have same number of elements, but X has %d elements and Y(X) has %d elements", len(x), len(y))
	}
	scatterData := make(plotter.XYs, len(x))
	for i := range x {
		scatterData[i].X = x[i]
		scatterData[i].Y = y[i]
	}
	scatter, err := plotter.NewScatter(scatterData)
	if err != nil {
		return errors.Wrap(err, "Can't init new scatter")
	}
	scatter.GlyphStyle.Color = color.RGBA{R: 255, B: 128, A: 255}
	p := plot.New()
	p.X.Label.Text = "X"
	p.Y.Label.Text = "Y"
	p.Add(plotter.NewGrid())
	for i := range reference {
		ref, err := plotter.NewScatter(reference[i])
		if err != nil {
			return errors.Wrap(err, "Can't init reference scatter")
		}
		ref.GlyphStyle.Color = color.RGBA{G: 128, B: 255, A: 255}
		p.Add(ref)
	}
	p.Add(scatter)
	// Save the plot to a PNG file.
	if err := p.Save(4*vg.Inch, 4*vg.Inch, fname); err != nil {
		return errors.Wrap(err, "Can't save plot")
	}
	return nil
}
