package wgan_go

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
)

// OptimizerAlgorithm Closed set of supported solvers
type OptimizerAlgorithm uint16

const (
	OptimizerAdam = OptimizerAlgorithm(iota + 1)
	OptimizerRMSProp
)

func (oa OptimizerAlgorithm) String() string {
	switch oa {
	case OptimizerAdam:
		return "adam"
	case OptimizerRMSProp:
		return "rmsprop"
	default:
		return fmt.Sprintf("optimizer(%d)", uint16(oa))
	}
}

// ParseOptimizer Case-insensitive lookup of optimizer algorithm. Role is used for error message only
func ParseOptimizer(role, name string) (OptimizerAlgorithm, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "adam":
		return OptimizerAdam, nil
	case "rmsprop":
		return OptimizerRMSProp, nil
	default:
		return 0, &UnknownOptimizerError{Role: role, Name: name}
	}
}

// Optimizer Stateful solver bound to parameters of single network
type Optimizer struct {
	Algorithm OptimizerAlgorithm

	solver gorgonia.Solver
	net    *Network
	steps  int
}

// NewOptimizer Builds optimizer for network.
//
// name - algorithm name ('adam', 'rmsprop')
// params - optional solver hyperparameters
// learningRate - learning rate
// weightDecay - L2 regularization coefficient, ignored if <= 0
//
func NewOptimizer(name string, params OptimizerParams, learningRate, weightDecay float64, net *Network) (*Optimizer, error) {
	if net == nil {
		return nil, fmt.Errorf("Can't bind optimizer to nil network")
	}
	algorithm, err := ParseOptimizer(net.Name, name)
	if err != nil {
		return nil, err
	}
	if learningRate <= 0 {
		return nil, fmt.Errorf("Learning rate of %s must be positive, got %f", net.Name, learningRate)
	}
	opts := []gorgonia.SolverOpt{gorgonia.WithLearnRate(learningRate)}
	if weightDecay > 0 {
		opts = append(opts, gorgonia.WithL2Reg(weightDecay))
	}
	if params.Eps > 0 {
		opts = append(opts, gorgonia.WithEps(params.Eps))
	}
	var solver gorgonia.Solver
	switch algorithm {
	case OptimizerAdam:
		if params.Beta1 > 0 {
			opts = append(opts, gorgonia.WithBeta1(params.Beta1))
		}
		if params.Beta2 > 0 {
			opts = append(opts, gorgonia.WithBeta2(params.Beta2))
		}
		solver = gorgonia.NewAdamSolver(opts...)
	case OptimizerRMSProp:
		if params.Rho > 0 {
			opts = append(opts, gorgonia.WithRho(params.Rho))
		}
		solver = gorgonia.NewRMSPropSolver(opts...)
	}
	return &Optimizer{
		Algorithm: algorithm,
		solver:    solver,
		net:       net,
	}, nil
}

// ZeroGrad Zeroes gradients computed for the network since last step, so Step() fails until the next forward-backward pass
func (o *Optimizer) ZeroGrad() {
	if o.net.grads != nil {
		o.net.grads.zeroGrad()
	}
	o.net.grads = nil
}

// Step Applies solver to the most recently computed gradients and updates network's parameters
func (o *Optimizer) Step() error {
	bn := o.net.grads
	if bn == nil {
		return errors.Wrap(ErrNoGradients, o.net.Name)
	}
	if err := o.solver.Step(gorgonia.NodesToValueGrads(bn.Learnables())); err != nil {
		return errors.Wrap(err, fmt.Sprintf("Can't do solver step for %s", o.net.Name))
	}
	if err := bn.absorb(); err != nil {
		return errors.Wrap(err, fmt.Sprintf("Can't update parameters of %s", o.net.Name))
	}
	o.net.grads = nil
	o.steps++
	return nil
}

// Steps Number of successful Step() calls
func (o *Optimizer) Steps() int {
	return o.steps
}
