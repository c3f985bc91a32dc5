package wgan_go

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Batch Pair of condition features X [N, F] and targets Y [N] or [N, T]
type Batch struct {
	X *tensor.Dense
	Y *tensor.Dense
}

// Size Number of examples in batch
func (b Batch) Size() int {
	if b.X == nil || b.X.Dims() == 0 {
		return 0
	}
	return b.X.Shape()[0]
}

// Targets Returns Y as [N, T] matrix. Vector [N] is treated as [N, 1]
func (b Batch) Targets() (*tensor.Dense, error) {
	if b.Y == nil {
		return nil, fmt.Errorf("Batch has no targets")
	}
	switch b.Y.Dims() {
	case 2:
		return b.Y, nil
	case 1:
		n := b.Y.Shape()[0]
		return tensor.New(tensor.WithShape(n, 1), tensor.WithBacking(b.Y.Data().([]float64))), nil
	default:
		return nil, &ShapeMismatchError{What: "batch targets", Want: []int{b.Size(), 1}, Got: b.Y.Shape().Clone()}
	}
}

// BatchLoader Source of batches in fixed order
type BatchLoader interface {
	Len() int
	Batch(i int) (Batch, error)
}

// Dataset In-memory table of conditions and targets
//
// X - [Length, F]
// Y - [Length, T]
//
type Dataset struct {
	X      *tensor.Dense
	Y      *tensor.Dense
	Length int
}

// NewDataset Creates dataset from rows. All rows must have equal width
func NewDataset(x, y [][]float64) (*Dataset, error) {
	if len(x) != len(y) {
		return nil, fmt.Errorf("Number of condition rows %d doesn't match number of target rows %d", len(x), len(y))
	}
	if len(x) == 0 {
		return nil, fmt.Errorf("Dataset is empty")
	}
	xData, err := flatten(x)
	if err != nil {
		return nil, errors.Wrap(err, "Can't flatten conditions")
	}
	yData, err := flatten(y)
	if err != nil {
		return nil, errors.Wrap(err, "Can't flatten targets")
	}
	return &Dataset{
		X:      tensor.New(tensor.WithShape(len(x), len(x[0])), tensor.WithBacking(xData)),
		Y:      tensor.New(tensor.WithShape(len(y), len(y[0])), tensor.WithBacking(yData)),
		Length: len(x),
	}, nil
}

func flatten(rows [][]float64) ([]float64, error) {
	width := len(rows[0])
	if width == 0 {
		return nil, fmt.Errorf("Rows must not be empty")
	}
	data := make([]float64, 0, len(rows)*width)
	for i, row := range rows {
		if len(row) != width {
			return nil, fmt.Errorf("Row #%d has %d values, but %d expected", i, len(row), width)
		}
		data = append(data, row...)
	}
	return data, nil
}

type ReferenceFunction func(float64) float64
type ArgumentFunction func() float64

// GenerateConditionalSet Samples numSamples conditions with xFunc and computes targets as yFunc(x)
func GenerateConditionalSet(numSamples int, xFunc ArgumentFunction, yFunc ReferenceFunction) (*Dataset, error) {
	if numSamples <= 0 {
		return nil, fmt.Errorf("Number of samples must be positive, got %d", numSamples)
	}
	dataXAxis := make([]float64, numSamples)
	dataYAxis := make([]float64, numSamples)
	for i := range dataXAxis {
		dataXAxis[i] = xFunc()
		dataYAxis[i] = yFunc(dataXAxis[i])
	}
	return &Dataset{
		X:      tensor.New(tensor.WithShape(numSamples, 1), tensor.WithBacking(dataXAxis)),
		Y:      tensor.New(tensor.WithShape(numSamples, 1), tensor.WithBacking(dataYAxis)),
		Length: numSamples,
	}, nil
}

// Loader Splits dataset into consecutive batches. Last batch may be smaller
func (ds *Dataset) Loader(batchSize int) (*DatasetLoader, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("Batch size must be positive, got %d", batchSize)
	}
	return &DatasetLoader{ds: ds, batchSize: batchSize}, nil
}

// DatasetLoader BatchLoader over in-memory dataset
type DatasetLoader struct {
	ds        *Dataset
	batchSize int
}

// Len Number of batches
func (dl *DatasetLoader) Len() int {
	return (dl.ds.Length + dl.batchSize - 1) / dl.batchSize
}

// Batch Returns copy of rows [i*batchSize, (i+1)*batchSize)
func (dl *DatasetLoader) Batch(i int) (Batch, error) {
	if i < 0 || i >= dl.Len() {
		return Batch{}, fmt.Errorf("Batch index %d is out of range [0, %d)", i, dl.Len())
	}
	start := i * dl.batchSize
	end := start + dl.batchSize
	if end > dl.ds.Length {
		end = dl.ds.Length
	}
	return Batch{
		X: rowsCopy(dl.ds.X, start, end),
		Y: rowsCopy(dl.ds.Y, start, end),
	}, nil
}

// rowsCopy Copies rows [start, end) of matrix into new dense
func rowsCopy(t *tensor.Dense, start, end int) *tensor.Dense {
	width := t.Shape()[1]
	data := make([]float64, (end-start)*width)
	copy(data, t.Data().([]float64)[start*width:end*width])
	return tensor.New(tensor.WithShape(end-start, width), tensor.WithBacking(data))
}

// LoadCSV Reads dataset from CSV file with header. Columns are selected by names
func LoadCSV(path string, conditionColumns, targetColumns []string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "Can't open dataset")
	}
	defer f.Close()
	return ReadCSV(f, conditionColumns, targetColumns)
}

// ReadCSV See ref. LoadCSV
func ReadCSV(r io.Reader, conditionColumns, targetColumns []string) (*Dataset, error) {
	if len(conditionColumns) == 0 || len(targetColumns) == 0 {
		return nil, fmt.Errorf("Both condition and target columns must be provided")
	}
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		return nil, errors.Wrap(err, "Can't read CSV header")
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[name] = i
	}
	xIdx, err := columnIndices(index, conditionColumns)
	if err != nil {
		return nil, err
	}
	yIdx, err := columnIndices(index, targetColumns)
	if err != nil {
		return nil, err
	}
	x, y := [][]float64{}, [][]float64{}
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("Can't read CSV line %d", line))
		}
		xRow, err := parseColumns(record, xIdx)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("Line %d", line))
		}
		yRow, err := parseColumns(record, yIdx)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("Line %d", line))
		}
		x = append(x, xRow)
		y = append(y, yRow)
	}
	return NewDataset(x, y)
}

func columnIndices(index map[string]int, names []string) ([]int, error) {
	idx := make([]int, len(names))
	for i, name := range names {
		j, ok := index[name]
		if !ok {
			return nil, fmt.Errorf("Column '%s' is not found in CSV header", name)
		}
		idx[i] = j
	}
	return idx, nil
}

func parseColumns(record []string, idx []int) ([]float64, error) {
	row := make([]float64, len(idx))
	for i, j := range idx {
		v, err := strconv.ParseFloat(record[j], 64)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("Can't parse column #%d", j))
		}
		row[i] = v
	}
	return row, nil
}
