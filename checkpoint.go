package wgan_go

import (
	"encoding/gob"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// ParameterState Named parameter tensor flattened in row-major order
type ParameterState struct {
	Name  string
	Shape []int
	Data  []float64
}

// Checkpoint State of both networks at certain point of training
type Checkpoint struct {
	Epoch                 int
	Iteration             int
	GeneratorArchitecture string
	CriticArchitecture    string
	Generator             []ParameterState
	Critic                []ParameterState
}

// CheckpointName Returns file name of checkpoint: epoch_<epoch>_iter_<iteration>.ckpt
func CheckpointName(epoch, iteration int) string {
	return fmt.Sprintf("epoch_%d_iter_%d.ckpt", epoch, iteration)
}

// State Returns parameters of provided role
func (c *Checkpoint) State(role Role) []ParameterState {
	if role == RoleGenerator {
		return c.Generator
	}
	return c.Critic
}

func networkState(net *Network) []ParameterState {
	params := net.Parameters()
	names := net.ParameterNames()
	snapshot := net.Snapshot()
	states := make([]ParameterState, len(params))
	for i, p := range params {
		states[i] = ParameterState{
			Name:  names[i],
			Shape: p.Shape().Clone(),
			Data:  snapshot[i],
		}
	}
	return states
}

// SaveCheckpoint Writes gob-encoded checkpoint
func SaveCheckpoint(path string, c *Checkpoint) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "Can't create checkpoint file")
	}
	if err = gob.NewEncoder(f).Encode(c); err != nil {
		f.Close()
		return errors.Wrap(err, fmt.Sprintf("Can't encode checkpoint '%s'", path))
	}
	return errors.Wrap(f.Close(), "Can't close checkpoint file")
}

// ReadCheckpoint Reads checkpoint written by SaveCheckpoint. Any failure is *CheckpointLoadError
func ReadCheckpoint(path string) (*Checkpoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &CheckpointLoadError{Path: path, Err: err}
	}
	defer f.Close()
	c := &Checkpoint{}
	if err := gob.NewDecoder(f).Decode(c); err != nil {
		return nil, &CheckpointLoadError{Path: path, Err: errors.Wrap(err, "corrupted checkpoint")}
	}
	return c, nil
}

// LoadNetworkState Copies parameters of provided role from checkpoint into network. Network's structure must match stored one
func LoadNetworkState(path string, role Role, net *Network) error {
	c, err := ReadCheckpoint(path)
	if err != nil {
		return err
	}
	if err := restoreNetwork(c.State(role), net); err != nil {
		return &CheckpointLoadError{Path: path, Err: errors.Wrap(err, string(role))}
	}
	return nil
}

// restoreNetwork Values are checked completely before any parameter is overwritten
func restoreNetwork(states []ParameterState, net *Network) error {
	params := net.Parameters()
	names := net.ParameterNames()
	if len(states) != len(params) {
		return fmt.Errorf("checkpoint has %d parameters, network has %d", len(states), len(params))
	}
	for i, st := range states {
		if st.Name != names[i] {
			return fmt.Errorf("parameter #%d is '%s' in checkpoint, but '%s' in network", i, st.Name, names[i])
		}
		if !params[i].Shape().Eq(tensor.Shape(st.Shape)) {
			return &ShapeMismatchError{What: st.Name, Want: params[i].Shape().Clone(), Got: st.Shape}
		}
		if len(st.Data) != params[i].Shape().TotalSize() {
			return fmt.Errorf("parameter '%s' has %d values, but %d expected", st.Name, len(st.Data), params[i].Shape().TotalSize())
		}
	}
	for i, st := range states {
		copy(params[i].Data().([]float64), st.Data)
	}
	return nil
}
