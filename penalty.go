package wgan_go

import (
	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
)

// normStabilizer Keeps sqrt differentiable when gradient is exactly zero
const normStabilizer = 1e-12

// GradientPenalty Builds WGAN-GP regularization term: mean over batch of (||d critic(v) / dv||_2 - 1)^2,
// where v = epsilon*real + (1-epsilon)*fake.
//
// critic - critic bound to the same graph as samples
// real, fake - [N, D] samples
// epsilon - [N, D] interpolation coefficients: single uniform value per example repeated across features
// batchSize - N
//
// Gradient w.r.t. v is built explicitly by BoundNetwork.InputGradient, so returned node is differentiable w.r.t. critic learnables.
// Only critic's nodes take part in the term: samples are treated as constants.
//
func GradientPenalty(critic *BoundNetwork, realSample, fake, epsilon *gorgonia.Node, batchSize int) (*gorgonia.Node, error) {
	diff, err := gorgonia.Sub(realSample, fake)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (real-fake)")
	}
	scaled, err := gorgonia.HadamardProd(epsilon, diff)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (eps.*x)")
	}
	interpolated, err := gorgonia.Add(fake, scaled)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (fake+x)")
	}
	gorgonia.WithName("interpolated")(interpolated)
	trace, err := critic.Fwd(interpolated, batchSize)
	if err != nil {
		return nil, errors.Wrap(err, "Can't feedforward interpolated samples through critic")
	}
	grad, err := critic.InputGradient(trace)
	if err != nil {
		return nil, errors.Wrap(err, "Can't build gradient of critic w.r.t. interpolated samples")
	}
	return gradientNormPenalty(grad)
}

// gradientNormPenalty mean((||g_i||_2 - 1)^2) for rows g_i of [N, D] node
func gradientNormPenalty(grad *gorgonia.Node) (*gorgonia.Node, error) {
	sqr, err := gorgonia.Square(grad)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (x^2)")
	}
	sumSqr, err := gorgonia.Sum(sqr, 1)
	if err != nil {
		return nil, errors.Wrap(err, "Can't sum squares over features")
	}
	stabilizer := gorgonia.NewScalar(grad.Graph(), grad.Dtype(), gorgonia.WithName("norm_stabilizer"), gorgonia.WithValue(normStabilizer))
	stabilized, err := gorgonia.Add(sumSqr, stabilizer)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (x+eps)")
	}
	norm, err := gorgonia.Sqrt(stabilized)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do √x")
	}
	one := gorgonia.NewScalar(grad.Graph(), grad.Dtype(), gorgonia.WithName("one"), gorgonia.WithValue(1.0))
	dev, err := gorgonia.Sub(norm, one)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (x-1)")
	}
	dev2, err := gorgonia.Square(dev)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (x^2)")
	}
	penalty, err := gorgonia.Mean(dev2)
	if err != nil {
		return nil, errors.Wrap(err, "Can't average penalty over batch")
	}
	gorgonia.WithName("gradient_penalty")(penalty)
	return penalty, nil
}
