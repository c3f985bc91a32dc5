package wgan_go

import (
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Network Abstraction for neural network.
//
// Name - prefix for node names (e.g. 'generator', 'critic')
// Layers - simple sequence of layers
// grads - binding whose dual values hold the most recent gradients (nil if none)
//
type Network struct {
	Name   string
	Layers []*Layer

	grads *BoundNetwork
}

// InputDim Width of input of the first layer
func (net *Network) InputDim() int {
	if len(net.Layers) == 0 {
		return 0
	}
	return net.Layers[0].InputDim()
}

// OutputDim Width of output of the last layer
func (net *Network) OutputDim() int {
	if len(net.Layers) == 0 {
		return 0
	}
	return net.Layers[len(net.Layers)-1].OutputDim()
}

// Parameters Returns master values of all parameters in order of learnables
func (net *Network) Parameters() []*tensor.Dense {
	params := make([]*tensor.Dense, 0, 2*len(net.Layers))
	for _, l := range net.Layers {
		if l != nil {
			params = append(params, l.Parameters()...)
		}
	}
	return params
}

// ParameterNames Returns names of parameters in order of Parameters()
func (net *Network) ParameterNames() []string {
	names := make([]string, 0, 2*len(net.Layers))
	for i, l := range net.Layers {
		if l != nil {
			names = append(names, l.parameterNames(net.Name, i)...)
		}
	}
	return names
}

// Snapshot Deep copy of parameters' values
func (net *Network) Snapshot() [][]float64 {
	params := net.Parameters()
	snapshot := make([][]float64, len(params))
	for i, p := range params {
		data := p.Data().([]float64)
		snapshot[i] = make([]float64, len(data))
		copy(snapshot[i], data)
	}
	return snapshot
}

// Validate Checks that consecutive layers have compatible widths
func (net *Network) Validate() error {
	if len(net.Layers) == 0 {
		return fmt.Errorf("Network '%s' must have one layer atleast", net.Name)
	}
	for i, l := range net.Layers {
		if l == nil {
			return fmt.Errorf("Network '%s' layer #%d is nil", net.Name, i)
		}
		if i > 0 && net.Layers[i-1].OutputDim() != l.InputDim() {
			return &ShapeMismatchError{
				What: fmt.Sprintf("%s layer #%d input", net.Name, i),
				Want: []int{net.Layers[i-1].OutputDim()},
				Got:  []int{l.InputDim()},
			}
		}
	}
	return nil
}

// Bind Instantiates network's parameters as nodes of provided graph.
// Nodes are bound to the master tensors, so all bindings of the same network share parameter values.
func (net *Network) Bind(g *gorgonia.ExprGraph) (*BoundNetwork, error) {
	if err := net.Validate(); err != nil {
		return nil, err
	}
	bn := &BoundNetwork{
		net:    net,
		g:      g,
		layers: make([]*boundLayer, len(net.Layers)),
	}
	for i, l := range net.Layers {
		bl, err := l.bind(g, net.Name, i)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("[%s]", net.Name))
		}
		bn.layers[i] = bl
	}
	return bn, nil
}

// BoundNetwork Network instantiated on certain graph
type BoundNetwork struct {
	net    *Network
	g      *gorgonia.ExprGraph
	layers []*boundLayer
	passes int
}

// ForwardTrace Result of single feedforward: output node and intermediate nodes of every layer
type ForwardTrace struct {
	Input     *gorgonia.Node
	Out       *gorgonia.Node
	batchSize int
	layers    []*layerTrace
}

// Network Returns network which parameters are bound
func (bn *BoundNetwork) Network() *Network {
	return bn.net
}

// Learnables Returns learnables nodes
func (bn *BoundNetwork) Learnables() gorgonia.Nodes {
	learnables := make(gorgonia.Nodes, 0, 2*len(bn.layers))
	for _, bl := range bn.layers {
		learnables = append(learnables, bl.learnables()...)
	}
	return learnables
}

// Fwd Initializates feedforward for provided input
//
// input - Input node
// batchSize - batch size. If it's >= 2 then broadcast function will be applied
//
func (bn *BoundNetwork) Fwd(input *gorgonia.Node, batchSize int) (*ForwardTrace, error) {
	pass := bn.passes
	bn.passes++
	trace := &ForwardTrace{
		Input:     input,
		batchSize: batchSize,
		layers:    make([]*layerTrace, len(bn.layers)),
	}
	last := input
	for i, bl := range bn.layers {
		tr, err := bl.fwd(last, batchSize)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("[%s, Layer #%d] Can't feedforward input", bn.net.Name, i))
		}
		gorgonia.WithName(fmt.Sprintf("%s_pass%d_activated_%d", bn.net.Name, pass, i))(tr.out)
		trace.layers[i] = tr
		last = tr.out
	}
	trace.Out = last
	return trace, nil
}

// InputGradient Builds gradient of SUM of network outputs w.r.t. input of provided feedforward.
// Since samples of a batch don't interact, row i of result is the gradient of i-th output w.r.t. i-th input.
// Result is an ordinary node: it could be used in loss and differentiated w.r.t. learnables once again.
func (bn *BoundNetwork) InputGradient(trace *ForwardTrace) (*gorgonia.Node, error) {
	if trace == nil || len(trace.layers) != len(bn.layers) {
		return nil, fmt.Errorf("[%s] Trace doesn't belong to this network", bn.net.Name)
	}
	upstream := gorgonia.NewMatrix(
		bn.g,
		gorgonia.Float64,
		gorgonia.WithShape(trace.Out.Shape()...),
		gorgonia.WithName(fmt.Sprintf("%s_upstream_ones_%d", bn.net.Name, bn.passes)),
		gorgonia.WithInit(gorgonia.Ones()),
	)
	var err error
	for i := len(bn.layers) - 1; i >= 0; i-- {
		upstream, err = bn.layers[i].inputGrad(upstream, trace.layers[i])
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("[%s, Layer #%d] Can't build input gradient", bn.net.Name, i))
		}
	}
	return upstream, nil
}

// Refresh Binds master values to learnables nodes. Should be called before running a machine of this graph
func (bn *BoundNetwork) Refresh() error {
	params := bn.net.Parameters()
	learnables := bn.Learnables()
	if len(params) != len(learnables) {
		return fmt.Errorf("[%s] Number of parameters %d doesn't match number of learnables %d", bn.net.Name, len(params), len(learnables))
	}
	for i := range learnables {
		if err := gorgonia.Let(learnables[i], params[i]); err != nil {
			return errors.Wrap(err, fmt.Sprintf("Can't bind value to '%s'", learnables[i].Name()))
		}
	}
	return nil
}

// zeroGrad Zeroes gradients held by dual values of learnables. Learnables without dual values (frozen bindings) are skipped
func (bn *BoundNetwork) zeroGrad() {
	for _, l := range bn.Learnables() {
		grad, err := l.Grad()
		if err != nil {
			continue
		}
		if z, ok := grad.(interface{ Zero() }); ok {
			z.Zero()
		}
	}
}

// absorb Copies learnables' values into master tensors when a solver replaced them instead of in-place update
func (bn *BoundNetwork) absorb() error {
	params := bn.net.Parameters()
	learnables := bn.Learnables()
	for i := range learnables {
		val, ok := learnables[i].Value().(*tensor.Dense)
		if !ok {
			return fmt.Errorf("Value of '%s' is not *tensor.Dense", learnables[i].Name())
		}
		if val == params[i] {
			continue
		}
		copy(params[i].Data().([]float64), val.Data().([]float64))
	}
	return nil
}
