package wgan_go

import (
	"math/rand"

	"gorgonia.org/tensor"
)

// NoiseSource Produces i.i.d. noise for generator input and interpolation coefficients for gradient penalty
type NoiseSource struct {
	rng  *rand.Rand
	dims int
}

// NewNoiseSource Creates source of noise vectors of provided dimensionality
func NewNoiseSource(dims int, seed int64) *NoiseSource {
	return &NoiseSource{
		rng:  rand.New(rand.NewSource(seed)),
		dims: dims,
	}
}

// Dims Noise vector width Z
func (ns *NoiseSource) Dims() int {
	return ns.dims
}

// Sample Returns [batchSize, Z] tensor.Dense filled with standard normally distributed values
func (ns *NoiseSource) Sample(batchSize int) *tensor.Dense {
	return ns.NormRandDense(batchSize, ns.dims)
}

// NormRandDense Return reference to tensor.Dense filled with normally distributed float64 values
//
// batchSize - Simply batch size
// n - Number of elements in each batch
// Resulting dense will have batchSize*n elements
//
func (ns *NoiseSource) NormRandDense(batchSize, n int) *tensor.Dense {
	data := make([]float64, batchSize*n)
	for i := range data {
		data[i] = ns.rng.NormFloat64()
	}
	return tensor.New(tensor.WithShape(batchSize, n), tensor.WithBacking(data))
}

// UniformRandDense Return reference to tensor.Dense filled with pseudo-random float64 values in range [0.0,1.0)
func (ns *NoiseSource) UniformRandDense(batchSize, n int) *tensor.Dense {
	data := make([]float64, batchSize*n)
	for i := range data {
		data[i] = ns.rng.Float64()
	}
	return tensor.New(tensor.WithShape(batchSize, n), tensor.WithBacking(data))
}

// Interpolation Returns [batchSize, width] coefficients: one uniform value in [0,1) per example, repeated across the row
func (ns *NoiseSource) Interpolation(batchSize, width int) *tensor.Dense {
	data := make([]float64, batchSize*width)
	for i := 0; i < batchSize; i++ {
		eps := ns.rng.Float64()
		row := data[i*width : (i+1)*width]
		for j := range row {
			row[j] = eps
		}
	}
	return tensor.New(tensor.WithShape(batchSize, width), tensor.WithBacking(data))
}
