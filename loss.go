package wgan_go

import (
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
)

type LossReduction uint16

const (
	LossReductionSum = LossReduction(iota)
	LossReductionMean
)

func reduce(a *gorgonia.Node, reduction ...LossReduction) (*gorgonia.Node, error) {
	reductionDefault := LossReductionMean
	if len(reduction) != 0 {
		reductionDefault = reduction[0]
	}
	switch reductionDefault {
	case LossReductionSum:
		return gorgonia.Sum(a)
	case LossReductionMean:
		return gorgonia.Mean(a)
	default:
		return nil, fmt.Errorf("Reduction type %d is not supported", reductionDefault)
	}
}

// WassersteinGeneratorLoss Generator maximizes critic's evaluation of generated samples: loss = -mean(critic(fake))
// Default reduction is 'mean'
func WassersteinGeneratorLoss(fakeScores *gorgonia.Node, reduction ...LossReduction) (*gorgonia.Node, error) {
	reduced, err := reduce(fakeScores, reduction...)
	if err != nil {
		return nil, errors.Wrap(err, "Can't reduce critic scores")
	}
	return gorgonia.Neg(reduced)
}

// CriticTerms Parts of critic objective
//
// FakeMean - mean critic score on generated samples
// RealMean - mean critic score on real samples
// Distance - FakeMean - RealMean. Negated estimate of Wasserstein-1 distance, critic minimizes it
//
type CriticTerms struct {
	FakeMean *gorgonia.Node
	RealMean *gorgonia.Node
	Distance *gorgonia.Node
}

// WassersteinCriticTerms Builds critic objective without gradient penalty
func WassersteinCriticTerms(fakeScores, realScores *gorgonia.Node) (*CriticTerms, error) {
	fakeMean, err := gorgonia.Mean(fakeScores)
	if err != nil {
		return nil, errors.Wrap(err, "Can't average critic scores on generated samples")
	}
	realMean, err := gorgonia.Mean(realScores)
	if err != nil {
		return nil, errors.Wrap(err, "Can't average critic scores on real samples")
	}
	distance, err := gorgonia.Sub(fakeMean, realMean)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (fake-real)")
	}
	return &CriticTerms{
		FakeMean: fakeMean,
		RealMean: realMean,
		Distance: distance,
	}, nil
}
