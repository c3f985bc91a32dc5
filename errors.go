package wgan_go

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrNoValidationLoader Evaluation checkpoint reached without validation data
	ErrNoValidationLoader = errors.New("validation loader is required when display_step > 0")
	// ErrNoGradients Optimizer step requested before any gradients were computed for its network
	ErrNoGradients = errors.New("no gradients computed since last ZeroGrad")
	// ErrUnsupportedDevice Only CPU engine is available
	ErrUnsupportedDevice = errors.New("unsupported device")
)

// UnknownArchitectureError Architecture name is not one of NODE, FCN
type UnknownArchitectureError struct {
	Role string
	Name string
}

func (e *UnknownArchitectureError) Error() string {
	return fmt.Sprintf("Unknown %s architecture: '%s'", e.Role, e.Name)
}

// UnknownOptimizerError Optimizer name is not supported
type UnknownOptimizerError struct {
	Role string
	Name string
}

func (e *UnknownOptimizerError) Error() string {
	return fmt.Sprintf("Unknown %s optimizer name: '%s'", e.Role, e.Name)
}

// UnknownActivationError Activation name is not supported (or can't be used in provided context)
type UnknownActivationError struct {
	Name   string
	Reason string
}

func (e *UnknownActivationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("Activation '%s' is not allowed: %s", e.Name, e.Reason)
	}
	return fmt.Sprintf("Unknown activation: '%s'", e.Name)
}

// CheckpointLoadError Saved parameter state can't be read or doesn't fit the network
type CheckpointLoadError struct {
	Path string
	Err  error
}

func (e *CheckpointLoadError) Error() string {
	return fmt.Sprintf("Can't load checkpoint '%s': %v", e.Path, e.Err)
}

// Cause Support for github.com/pkg/errors.Cause
func (e *CheckpointLoadError) Cause() error { return e.Err }

// Unwrap Support for errors.Is / errors.As
func (e *CheckpointLoadError) Unwrap() error { return e.Err }

// ShapeMismatchError Tensor dimensions are inconsistent with configured widths
type ShapeMismatchError struct {
	What string
	Want []int
	Got  []int
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("Shape mismatch for %s: want %v, got %v", e.What, e.Want, e.Got)
}
