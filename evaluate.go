package wgan_go

import (
	"bytes"
	"fmt"
	"image/color"
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

const histogramBins = 100

// Evaluation Comparison of generated and real targets over validation set
//
// Generated, Real - per-column values, Generated[j] and Real[j] belong to j-th target
// ROCAUC - mean over columns of ROC AUC of separating real values from generated ones. 0.5 means indistinguishable
// Histogram - PNG image with normalized histograms of every column
//
type Evaluation struct {
	Generated [][]float64
	Real      [][]float64
	ROCAUC    float64
	Histogram []byte
}

// NewEvaluation Computes ROC AUC and renders histograms. Names are used as plot titles (column index if not provided)
func NewEvaluation(generated, realColumns [][]float64, names []string) (*Evaluation, error) {
	if len(generated) != len(realColumns) || len(realColumns) == 0 {
		return nil, fmt.Errorf("Generated and real must have the same non-zero number of columns, got %d and %d", len(generated), len(realColumns))
	}
	aucSum := 0.0
	for j := range realColumns {
		auc, err := RocAUC(realColumns[j], generated[j])
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("Can't compute ROC AUC for column #%d", j))
		}
		aucSum += auc
	}
	hist, err := RenderHistograms(generated, realColumns, names)
	if err != nil {
		return nil, err
	}
	return &Evaluation{
		Generated: generated,
		Real:      realColumns,
		ROCAUC:    aucSum / float64(len(realColumns)),
		Histogram: hist,
	}, nil
}

// RocAUC Area under ROC curve of classifier which treats bigger values as real ones
func RocAUC(realValues, generated []float64) (float64, error) {
	if len(realValues) == 0 || len(generated) == 0 {
		return 0, fmt.Errorf("Both real and generated samples are required, got %d and %d", len(realValues), len(generated))
	}
	type scored struct {
		value  float64
		isReal bool
	}
	all := make([]scored, 0, len(realValues)+len(generated))
	for _, v := range realValues {
		all = append(all, scored{v, true})
	}
	for _, v := range generated {
		all = append(all, scored{v, false})
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].value < all[j].value
	})
	y := make([]float64, len(all))
	classes := make([]bool, len(all))
	for i := range all {
		y[i] = all[i].value
		classes[i] = all[i].isReal
	}
	tpr, fpr, _ := stat.ROC(nil, y, classes, nil)
	return integrate.Trapezoidal(fpr, tpr), nil
}

// RenderHistograms Draws one subplot per column: real values (opaque) and generated ones (translucent) on top
func RenderHistograms(generated, realColumns [][]float64, names []string) ([]byte, error) {
	plots := make([][]*plot.Plot, len(realColumns))
	for j := range realColumns {
		p := plot.New()
		p.Title.Text = fmt.Sprintf("feature #%d", j)
		if j < len(names) {
			p.Title.Text = names[j]
		}
		if err := addHistogram(p, realColumns[j], "real", color.RGBA{R: 31, G: 119, B: 180, A: 255}); err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("Can't plot real values of column #%d", j))
		}
		if err := addHistogram(p, generated[j], "generated", color.RGBA{R: 255, G: 127, B: 14, A: 128}); err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("Can't plot generated values of column #%d", j))
		}
		if j == 0 {
			p.Legend.Top = true
		}
		plots[j] = []*plot.Plot{p}
	}

	img := vgimg.New(10*vg.Inch, vg.Length(len(plots))*4*vg.Inch)
	dc := draw.New(img)
	tiles := draw.Tiles{
		Rows: len(plots),
		Cols: 1,
		PadX: vg.Millimeter,
		PadY: 4 * vg.Millimeter,
	}
	canvases := plot.Align(plots, tiles, dc)
	for j := range plots {
		plots[j][0].Draw(canvases[j][0])
	}
	buf := bytes.Buffer{}
	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(&buf); err != nil {
		return nil, errors.Wrap(err, "Can't encode histograms")
	}
	return buf.Bytes(), nil
}

func addHistogram(p *plot.Plot, values []float64, label string, fill color.Color) error {
	if len(values) == 0 {
		return nil
	}
	hist, err := plotter.NewHist(plotter.Values(values), histogramBins)
	if err != nil {
		return err
	}
	hist.Normalize(1)
	hist.FillColor = fill
	p.Add(hist)
	p.Legend.Add(label, hist)
	return nil
}
