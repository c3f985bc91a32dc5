package wgan_go

import (
	"strings"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
)

// Activation Nonlinearity applied to non-activated output of a layer.
//
// Every activation knows how to build its own derivative as graph nodes: critic's input gradient
// is constructed explicitly (see BoundNetwork.InputGradient), so the derivative must consist of ordinary differentiable ops.
//
type Activation uint16

const (
	ActivationIdentity = Activation(iota)
	ActivationTanh
	ActivationSigmoid
	ActivationSoftplus
	ActivationRectify
)

var activationNames = map[string]Activation{
	"":         ActivationIdentity,
	"none":     ActivationIdentity,
	"identity": ActivationIdentity,
	"linear":   ActivationIdentity,
	"tanh":     ActivationTanh,
	"sigmoid":  ActivationSigmoid,
	"softplus": ActivationSoftplus,
	"relu":     ActivationRectify,
	"rectify":  ActivationRectify,
}

// ParseActivation Case-insensitive lookup of activation by its name
func ParseActivation(name string) (Activation, error) {
	a, ok := activationNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return ActivationIdentity, &UnknownActivationError{Name: name}
	}
	return a, nil
}

func (a Activation) String() string {
	switch a {
	case ActivationIdentity:
		return "identity"
	case ActivationTanh:
		return "tanh"
	case ActivationSigmoid:
		return "sigmoid"
	case ActivationSoftplus:
		return "softplus"
	case ActivationRectify:
		return "relu"
	default:
		return "unknown"
	}
}

// TwiceDifferentiable Whether derivative of activation could be differentiated once more
func (a Activation) TwiceDifferentiable() bool {
	return a != ActivationRectify
}

// Fwd Applies activation to provided node
func (a Activation) Fwd(x *gorgonia.Node) (*gorgonia.Node, error) {
	switch a {
	case ActivationIdentity:
		return x, nil
	case ActivationTanh:
		return gorgonia.Tanh(x)
	case ActivationSigmoid:
		return gorgonia.Sigmoid(x)
	case ActivationSoftplus:
		return gorgonia.Softplus(x)
	case ActivationRectify:
		return gorgonia.Rectify(x)
	default:
		return nil, errors.Errorf("Activation type '%d' (uint16) is not handled", a)
	}
}

// Derivative Builds d(activated)/d(pre) element-wise.
//
// pre - non-activated node
// activated - node returned by Fwd(pre)
// Returns nil node for identity: multiplication by ones should be skipped by caller
//
func (a Activation) Derivative(pre, activated *gorgonia.Node) (*gorgonia.Node, error) {
	switch a {
	case ActivationIdentity:
		return nil, nil
	case ActivationTanh:
		// 1 - tanh(z)^2
		one := gorgonia.NewScalar(activated.Graph(), activated.Dtype(), gorgonia.WithName("one"), gorgonia.WithValue(1.0))
		sqr, err := gorgonia.Square(activated)
		if err != nil {
			return nil, errors.Wrap(err, "Can't do (x^2)")
		}
		return gorgonia.Sub(one, sqr)
	case ActivationSigmoid:
		// s(z) * (1 - s(z))
		one := gorgonia.NewScalar(activated.Graph(), activated.Dtype(), gorgonia.WithName("one"), gorgonia.WithValue(1.0))
		complement, err := gorgonia.Sub(one, activated)
		if err != nil {
			return nil, errors.Wrap(err, "Can't do (1-x)")
		}
		return gorgonia.HadamardProd(activated, complement)
	case ActivationSoftplus:
		return gorgonia.Sigmoid(pre)
	case ActivationRectify:
		return nil, &UnknownActivationError{Name: a.String(), Reason: "derivative is a step function and can't be differentiated again"}
	default:
		return nil, errors.Errorf("Activation type '%d' (uint16) is not handled", a)
	}
}
