package wgan_go

import (
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

type LayerType uint16

const (
	// LayerLinear z = x*W^T + b
	LayerLinear = LayerType(iota)
	// LayerOblivious Ensemble of soft oblivious decision trees (building block of NODE)
	LayerOblivious
)

func (lt LayerType) String() string {
	switch lt {
	case LayerLinear:
		return "linear"
	case LayerOblivious:
		return "oblivious"
	default:
		return fmt.Sprintf("layer(%d)", uint16(lt))
	}
}

// Layer Weight+Bias+Activation combo. Holds master values of parameters: graph nodes are created on Network.Bind()
//
// Linear layer:
// Weight - [out, in]
// Bias - [1, out]
//
// Oblivious layer (NumTrees trees of depth Depth, L = 2^Depth leaves per tree):
// Weight - [NumTrees*Depth, in], feature combination for each decision
// Bias - [1, NumTrees*Depth], decision thresholds
// Response - [NumTrees*L, out], leaf responses
// ResponseBias - [1, out]
//
type Layer struct {
	Type       LayerType
	Activation Activation

	Weight       *tensor.Dense
	Bias         *tensor.Dense
	Response     *tensor.Dense
	ResponseBias *tensor.Dense

	NumTrees int
	Depth    int
}

// NewLinearLayer Creates fully-connected layer. Weights are initialized by provided function, bias is zero
func NewLinearLayer(in, out int, activation Activation, init gorgonia.InitWFn) *Layer {
	return &Layer{
		Type:       LayerLinear,
		Activation: activation,
		Weight:     initDense(init, out, in),
		Bias:       tensor.New(tensor.WithShape(1, out), tensor.WithBacking(make([]float64, out))),
	}
}

// NewObliviousLayer Creates layer of numTrees soft oblivious decision trees of provided depth
func NewObliviousLayer(in, out, numTrees, depth int, activation Activation, init gorgonia.InitWFn) *Layer {
	decisions := numTrees * depth
	leaves := numTrees * (1 << uint(depth))
	return &Layer{
		Type:         LayerOblivious,
		Activation:   activation,
		Weight:       initDense(init, decisions, in),
		Bias:         tensor.New(tensor.WithShape(1, decisions), tensor.WithBacking(make([]float64, decisions))),
		Response:     initDense(init, leaves, out),
		ResponseBias: tensor.New(tensor.WithShape(1, out), tensor.WithBacking(make([]float64, out))),
		NumTrees:     numTrees,
		Depth:        depth,
	}
}

func initDense(init gorgonia.InitWFn, rows, cols int) *tensor.Dense {
	data := init(tensor.Float64, rows, cols).([]float64)
	return tensor.New(tensor.WithShape(rows, cols), tensor.WithBacking(data))
}

// InputDim Width of input
func (l *Layer) InputDim() int {
	return l.Weight.Shape()[1]
}

// OutputDim Width of output
func (l *Layer) OutputDim() int {
	if l.Type == LayerOblivious {
		return l.Response.Shape()[1]
	}
	return l.Weight.Shape()[0]
}

// Parameters Master values in the same order as learnables of bound layer
func (l *Layer) Parameters() []*tensor.Dense {
	params := make([]*tensor.Dense, 0, 4)
	for _, p := range []*tensor.Dense{l.Weight, l.Bias, l.Response, l.ResponseBias} {
		if p != nil {
			params = append(params, p)
		}
	}
	return params
}

func (l *Layer) parameterNames(prefix string, idx int) []string {
	switch l.Type {
	case LayerOblivious:
		return []string{
			fmt.Sprintf("%s_w%d", prefix, idx),
			fmt.Sprintf("%s_b%d", prefix, idx),
			fmt.Sprintf("%s_r%d", prefix, idx),
			fmt.Sprintf("%s_rb%d", prefix, idx),
		}
	default:
		return []string{
			fmt.Sprintf("%s_w%d", prefix, idx),
			fmt.Sprintf("%s_b%d", prefix, idx),
		}
	}
}

// boundLayer Layer instantiated on certain graph
type boundLayer struct {
	layer *Layer

	weight       *gorgonia.Node
	bias         *gorgonia.Node
	response     *gorgonia.Node
	responseBias *gorgonia.Node

	// Constant routing matrices of oblivious trees, [NumTrees*Depth, NumTrees*L]
	bits           *gorgonia.Node
	bitsComplement *gorgonia.Node
}

// layerTrace Nodes produced by single feedforward through layer. Needed for input gradient construction
type layerTrace struct {
	input     *gorgonia.Node
	pre       *gorgonia.Node
	out       *gorgonia.Node
	decisions *gorgonia.Node
	leaves    *gorgonia.Node
}

func (l *Layer) bind(g *gorgonia.ExprGraph, prefix string, idx int) (*boundLayer, error) {
	if l.Weight == nil || l.Bias == nil {
		return nil, fmt.Errorf("Layer #%d has nil weights", idx)
	}
	names := l.parameterNames(prefix, idx)
	bl := &boundLayer{
		layer:  l,
		weight: gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(l.Weight.Shape()...), gorgonia.WithName(names[0]), gorgonia.WithValue(l.Weight)),
		bias:   gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(l.Bias.Shape()...), gorgonia.WithName(names[1]), gorgonia.WithValue(l.Bias)),
	}
	switch l.Type {
	case LayerLinear:
		return bl, nil
	case LayerOblivious:
		if l.Response == nil || l.ResponseBias == nil {
			return nil, fmt.Errorf("Oblivious layer #%d has nil leaf responses", idx)
		}
		bl.response = gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(l.Response.Shape()...), gorgonia.WithName(names[2]), gorgonia.WithValue(l.Response))
		bl.responseBias = gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(l.ResponseBias.Shape()...), gorgonia.WithName(names[3]), gorgonia.WithValue(l.ResponseBias))
		bits, complement := obliviousRouting(l.NumTrees, l.Depth)
		bl.bits = gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(bits.Shape()...), gorgonia.WithName(fmt.Sprintf("%s_bits%d", prefix, idx)), gorgonia.WithValue(bits))
		bl.bitsComplement = gorgonia.NewMatrix(g, gorgonia.Float64, gorgonia.WithShape(complement.Shape()...), gorgonia.WithName(fmt.Sprintf("%s_bits_complement%d", prefix, idx)), gorgonia.WithValue(complement))
		return bl, nil
	default:
		return nil, fmt.Errorf("Layer #%d's type '%d' (uint16) is not handled", idx, l.Type)
	}
}

// obliviousRouting Builds matrices B and C such that for tree t, decision d and leaf l:
// B[t*D+d, t*L+l] = 1 if d-th bit of l is set, C[t*D+d, t*L+l] = 1 if it is not; all cross-tree entries are zero.
// Then log(P(leaf)) = log(s)*B + log(1-s)*C, where s - decision probabilities
func obliviousRouting(numTrees, depth int) (*tensor.Dense, *tensor.Dense) {
	leaves := 1 << uint(depth)
	rows, cols := numTrees*depth, numTrees*leaves
	bits := make([]float64, rows*cols)
	complement := make([]float64, rows*cols)
	for t := 0; t < numTrees; t++ {
		for d := 0; d < depth; d++ {
			row := t*depth + d
			for l := 0; l < leaves; l++ {
				col := t*leaves + l
				if (l>>uint(d))&1 == 1 {
					bits[row*cols+col] = 1
				} else {
					complement[row*cols+col] = 1
				}
			}
		}
	}
	return tensor.New(tensor.WithShape(rows, cols), tensor.WithBacking(bits)), tensor.New(tensor.WithShape(rows, cols), tensor.WithBacking(complement))
}

func (bl *boundLayer) learnables() gorgonia.Nodes {
	learnables := gorgonia.Nodes{bl.weight, bl.bias}
	if bl.response != nil {
		learnables = append(learnables, bl.response, bl.responseBias)
	}
	return learnables
}

// addBias Adds [1, n] bias to [batchSize, n] node
func addBias(a, bias *gorgonia.Node, batchSize int) (*gorgonia.Node, error) {
	if batchSize < 2 {
		return gorgonia.Add(a, bias)
	}
	return gorgonia.BroadcastAdd(a, bias, nil, []byte{0})
}

// linear Does x*W^T + b
func linear(input, weight, bias *gorgonia.Node, batchSize int) (*gorgonia.Node, error) {
	tOp, err := gorgonia.Transpose(weight)
	if err != nil {
		return nil, errors.Wrap(err, "Can't transpose weights")
	}
	mul, err := gorgonia.Mul(input, tOp)
	if err != nil {
		return nil, errors.Wrap(err, "Can't multiply input and weights")
	}
	out, err := addBias(mul, bias, batchSize)
	if err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("Can't add bias [batch_size = %d] to non-activated output", batchSize))
	}
	return out, nil
}

func (bl *boundLayer) fwd(input *gorgonia.Node, batchSize int) (*layerTrace, error) {
	tr := &layerTrace{input: input}
	switch bl.layer.Type {
	case LayerLinear:
		pre, err := linear(input, bl.weight, bl.bias, batchSize)
		if err != nil {
			return nil, err
		}
		tr.pre = pre
	case LayerOblivious:
		decisions, err := linear(input, bl.weight, bl.bias, batchSize)
		if err != nil {
			return nil, errors.Wrap(err, "Can't evaluate tree decisions")
		}
		// log(sigmoid(z)) = -softplus(-z), log(1 - sigmoid(z)) = -softplus(z)
		negDecisions, err := gorgonia.Neg(decisions)
		if err != nil {
			return nil, errors.Wrap(err, "Can't do -1*x")
		}
		spNeg, err := gorgonia.Softplus(negDecisions)
		if err != nil {
			return nil, errors.Wrap(err, "Can't do softplus(-x)")
		}
		logS, err := gorgonia.Neg(spNeg)
		if err != nil {
			return nil, errors.Wrap(err, "Can't do -1*x")
		}
		sp, err := gorgonia.Softplus(decisions)
		if err != nil {
			return nil, errors.Wrap(err, "Can't do softplus(x)")
		}
		logNotS, err := gorgonia.Neg(sp)
		if err != nil {
			return nil, errors.Wrap(err, "Can't do -1*x")
		}
		logRight, err := gorgonia.Mul(logS, bl.bits)
		if err != nil {
			return nil, errors.Wrap(err, "Can't route right branches")
		}
		logLeft, err := gorgonia.Mul(logNotS, bl.bitsComplement)
		if err != nil {
			return nil, errors.Wrap(err, "Can't route left branches")
		}
		logLeaves, err := gorgonia.Add(logRight, logLeft)
		if err != nil {
			return nil, errors.Wrap(err, "Can't do (x+y)")
		}
		leaves, err := gorgonia.Exp(logLeaves)
		if err != nil {
			return nil, errors.Wrap(err, "Can't do exp(x)")
		}
		mul, err := gorgonia.Mul(leaves, bl.response)
		if err != nil {
			return nil, errors.Wrap(err, "Can't multiply leaf probabilities and responses")
		}
		pre, err := addBias(mul, bl.responseBias, batchSize)
		if err != nil {
			return nil, errors.Wrap(err, "Can't add response bias")
		}
		tr.decisions = decisions
		tr.leaves = leaves
		tr.pre = pre
	default:
		return nil, fmt.Errorf("Layer type '%d' (uint16) is not handled", bl.layer.Type)
	}
	out, err := bl.layer.Activation.Fwd(tr.pre)
	if err != nil {
		return nil, errors.Wrap(err, "Can't apply activation function to non-activated output")
	}
	tr.out = out
	return tr, nil
}

// inputGrad Given upstream = d(sum of net output)/d(layer output), builds d(sum of net output)/d(layer input).
// Uses only first-order differentiable ops, so the result could be differentiated w.r.t. parameters.
func (bl *boundLayer) inputGrad(upstream *gorgonia.Node, tr *layerTrace) (*gorgonia.Node, error) {
	delta := upstream
	deriv, err := bl.layer.Activation.Derivative(tr.pre, tr.out)
	if err != nil {
		return nil, errors.Wrap(err, "Can't build derivative of activation")
	}
	if deriv != nil {
		delta, err = gorgonia.HadamardProd(upstream, deriv)
		if err != nil {
			return nil, errors.Wrap(err, "Can't do (x.*y)")
		}
	}
	switch bl.layer.Type {
	case LayerLinear:
		grad, err := gorgonia.Mul(delta, bl.weight)
		if err != nil {
			return nil, errors.Wrap(err, "Can't propagate gradient through weights")
		}
		return grad, nil
	case LayerOblivious:
		tResponse, err := gorgonia.Transpose(bl.response)
		if err != nil {
			return nil, errors.Wrap(err, "Can't transpose leaf responses")
		}
		gradLeaves, err := gorgonia.Mul(delta, tResponse)
		if err != nil {
			return nil, errors.Wrap(err, "Can't propagate gradient to leaves")
		}
		// dP/d(logP) = P
		gradLogLeaves, err := gorgonia.HadamardProd(gradLeaves, tr.leaves)
		if err != nil {
			return nil, errors.Wrap(err, "Can't do (x.*y)")
		}
		tBits, err := gorgonia.Transpose(bl.bits)
		if err != nil {
			return nil, errors.Wrap(err, "Can't transpose routing")
		}
		tComplement, err := gorgonia.Transpose(bl.bitsComplement)
		if err != nil {
			return nil, errors.Wrap(err, "Can't transpose routing")
		}
		gradRight, err := gorgonia.Mul(gradLogLeaves, tBits)
		if err != nil {
			return nil, errors.Wrap(err, "Can't propagate gradient to right branches")
		}
		gradLeft, err := gorgonia.Mul(gradLogLeaves, tComplement)
		if err != nil {
			return nil, errors.Wrap(err, "Can't propagate gradient to left branches")
		}
		// d(log s)/dz = 1 - s, d(log(1-s))/dz = -s
		s, err := gorgonia.Sigmoid(tr.decisions)
		if err != nil {
			return nil, errors.Wrap(err, "Can't do sigmoid(x)")
		}
		one := gorgonia.NewScalar(s.Graph(), s.Dtype(), gorgonia.WithName("one"), gorgonia.WithValue(1.0))
		notS, err := gorgonia.Sub(one, s)
		if err != nil {
			return nil, errors.Wrap(err, "Can't do (1-x)")
		}
		right, err := gorgonia.HadamardProd(gradRight, notS)
		if err != nil {
			return nil, errors.Wrap(err, "Can't do (x.*y)")
		}
		left, err := gorgonia.HadamardProd(gradLeft, s)
		if err != nil {
			return nil, errors.Wrap(err, "Can't do (x.*y)")
		}
		gradDecisions, err := gorgonia.Sub(right, left)
		if err != nil {
			return nil, errors.Wrap(err, "Can't do (x-y)")
		}
		grad, err := gorgonia.Mul(gradDecisions, bl.weight)
		if err != nil {
			return nil, errors.Wrap(err, "Can't propagate gradient through decision weights")
		}
		return grad, nil
	default:
		return nil, fmt.Errorf("Layer type '%d' (uint16) is not handled", bl.layer.Type)
	}
}
