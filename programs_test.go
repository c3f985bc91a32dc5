package wgan_go

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

func TestSelectionMatrix(t *testing.T) {
	s := selectionMatrix(2, 5, 3)
	assert.Equal(t, tensor.Shape{2, 5}, s.Shape())
	assert.Equal(t, []float64{
		0, 0, 0, 1, 0,
		0, 0, 0, 0, 1,
	}, s.Data())
}

func TestPlaceColumnsSingleTarget(t *testing.T) {
	g := gorgonia.NewGraph()
	targets := gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(3, 1), gorgonia.WithName("targets"),
		gorgonia.WithValue(tensor.New(tensor.WithShape(3, 1), tensor.WithBacking([]float64{1, 2, 3}))))
	features := gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(3, 2), gorgonia.WithName("features"),
		gorgonia.WithValue(tensor.New(tensor.WithShape(3, 2), tensor.WithBacking([]float64{10, 11, 20, 21, 30, 31}))))
	weights := gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(3, 3), gorgonia.WithName("weights"),
		gorgonia.WithValue(tensor.New(tensor.WithShape(3, 3), tensor.WithBacking([]float64{0.5, 1, 1, -1, 1, 1, 2, 1, 1}))))

	placed, err := placeColumns(g, targets, features)
	require.NoError(t, err)
	weighted, err := gorgonia.HadamardProd(placed, weights)
	require.NoError(t, err)
	cost, err := gorgonia.Sum(weighted)
	require.NoError(t, err)
	_, err = gorgonia.Grad(cost, targets)
	require.NoError(t, err)

	var placedVal gorgonia.Value
	gorgonia.Read(placed, &placedVal)
	vm := gorgonia.NewTapeMachine(g, gorgonia.BindDualValues(targets))
	defer vm.Close()
	require.NoError(t, vm.RunAll())

	assert.Equal(t, tensor.Shape{3, 3}, placedVal.Shape())
	assert.InDeltaSlice(t, []float64{1, 10, 11, 2, 20, 21, 3, 30, 31}, placedVal.Data(), 1e-12)

	// Gradient w.r.t. single target column keeps [N, 1] shape and equals first column of weights
	grad, err := targets.Grad()
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{3, 1}, grad.Shape())
	assert.InDeltaSlice(t, []float64{0.5, -1, 2}, grad.Data(), 1e-12)
}
