package wgan_go

import (
	"fmt"
	"strings"

	"gorgonia.org/gorgonia"
)

// Architecture Closed set of network architectures known to model factory
type Architecture uint16

const (
	ArchitectureNODE = Architecture(iota + 1)
	ArchitectureFCN
)

func (a Architecture) String() string {
	switch a {
	case ArchitectureNODE:
		return "node"
	case ArchitectureFCN:
		return "fcn"
	default:
		return fmt.Sprintf("architecture(%d)", uint16(a))
	}
}

// ParseArchitecture Case-insensitive lookup of architecture. Role is used for error message only
func ParseArchitecture(role, name string) (Architecture, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "node":
		return ArchitectureNODE, nil
	case "fcn":
		return ArchitectureFCN, nil
	default:
		return 0, &UnknownArchitectureError{Role: role, Name: name}
	}
}

// Role Which part of adversarial pair network plays
type Role string

const (
	RoleGenerator = Role("generator")
	RoleCritic    = Role("critic")
)

// NetworkSpec Everything model factory needs to know to build a network
//
// InputDim - for generator it is F+Z, for critic T+F
// OutputDim - for generator it is T, for critic 1
// ModelType - weights initialization scheme: 'glorot_normal' (default), 'glorot_uniform', 'gaussian'
//
type NetworkSpec struct {
	Role      Role
	InputDim  int
	OutputDim int
	Params    ModelParams
	ModelType string
}

// ModelFactory Builds network of provided architecture
type ModelFactory interface {
	Build(arch Architecture, spec NetworkSpec) (*Network, error)
}

// DefaultFactory Builds FCN (stack of linear layers) and NODE (stack of soft oblivious decision tree layers)
type DefaultFactory struct{}

// Build See ref. ModelFactory
func (DefaultFactory) Build(arch Architecture, spec NetworkSpec) (*Network, error) {
	if spec.InputDim <= 0 || spec.OutputDim <= 0 {
		return nil, fmt.Errorf("Network dimensions must be positive, got in=%d out=%d", spec.InputDim, spec.OutputDim)
	}
	init, err := initializer(spec.ModelType, spec.Params.InitGain)
	if err != nil {
		return nil, err
	}
	hiddenActivation, err := ParseActivation(spec.Params.Activation)
	if err != nil {
		return nil, err
	}
	outputActivation, err := ParseActivation(spec.Params.OutputActivation)
	if err != nil {
		return nil, err
	}
	if spec.Role == RoleCritic {
		for _, a := range []Activation{hiddenActivation, outputActivation} {
			if !a.TwiceDifferentiable() {
				return nil, &UnknownActivationError{Name: a.String(), Reason: "critic must be twice differentiable for gradient penalty"}
			}
		}
	}
	net := &Network{Name: string(spec.Role)}
	in := spec.InputDim
	switch arch {
	case ArchitectureFCN:
		for _, width := range spec.Params.Hidden {
			if width <= 0 {
				return nil, fmt.Errorf("Hidden layer width must be positive, got %d", width)
			}
			net.Layers = append(net.Layers, NewLinearLayer(in, width, hiddenActivation, init))
			in = width
		}
		net.Layers = append(net.Layers, NewLinearLayer(in, spec.OutputDim, outputActivation, init))
	case ArchitectureNODE:
		numTrees, depth := spec.Params.NumTrees, spec.Params.Depth
		if numTrees <= 0 {
			numTrees = 8
		}
		if depth <= 0 {
			depth = 3
		}
		if depth > 10 {
			return nil, fmt.Errorf("Tree depth %d is too big: number of leaves grows as 2^depth", depth)
		}
		for _, width := range spec.Params.Hidden {
			if width <= 0 {
				return nil, fmt.Errorf("Hidden layer width must be positive, got %d", width)
			}
			net.Layers = append(net.Layers, NewObliviousLayer(in, width, numTrees, depth, hiddenActivation, init))
			in = width
		}
		net.Layers = append(net.Layers, NewObliviousLayer(in, spec.OutputDim, numTrees, depth, outputActivation, init))
	default:
		return nil, &UnknownArchitectureError{Role: string(spec.Role), Name: arch.String()}
	}
	return net, nil
}

func initializer(modelType string, gain float64) (gorgonia.InitWFn, error) {
	if gain <= 0 {
		gain = 1.0
	}
	switch strings.ToLower(strings.TrimSpace(modelType)) {
	case "", "default", "glorot_normal":
		return gorgonia.GlorotN(gain), nil
	case "glorot_uniform":
		return gorgonia.GlorotU(gain), nil
	case "gaussian":
		return gorgonia.Gaussian(0, 0.02*gain), nil
	default:
		return nil, fmt.Errorf("Unknown model type: '%s'", modelType)
	}
}
