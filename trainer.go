package wgan_go

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
)

const inferenceWarmUp = 10

// TrainerOption Optional dependency of Trainer
type TrainerOption func(*Trainer)

// WithTrainerLogger Replaces pair's logger for progress messages
func WithTrainerLogger(l *log.Logger) TrainerOption {
	return func(t *Trainer) {
		t.logger = l
	}
}

// Trainer Alternates critic and generator updates over batches of training set
type Trainer struct {
	pair *AdversarialPair
	sink MetricsSink
	cfg  TrainerConfig

	generatorOptimizer *Optimizer
	criticOptimizer    *Optimizer
	logger             *log.Logger
}

// NewTrainer Creates trainer and configures optimizers of pair.
//
// cfg.CriticStep and cfg.MaxEpoch get defaults if not positive.
// cfg.DisplayStep <= 0 disables checkpoints and evaluation.
//
func NewTrainer(pair *AdversarialPair, sink MetricsSink, cfg TrainerConfig, opts ...TrainerOption) (*Trainer, error) {
	if pair == nil {
		return nil, fmt.Errorf("Can't create trainer for nil pair")
	}
	if sink == nil {
		return nil, fmt.Errorf("Metrics sink is required")
	}
	if cfg.CriticStep <= 0 {
		cfg.CriticStep = DefaultCriticStep
	}
	if cfg.MaxEpoch <= 0 {
		cfg.MaxEpoch = DefaultMaxEpoch
	}
	if cfg.SavePath == "" {
		cfg.SavePath = "."
	}
	generatorOptimizer, criticOptimizer, err := pair.ConfigureOptimizers()
	if err != nil {
		return nil, err
	}
	t := &Trainer{
		pair:               pair,
		sink:               sink,
		cfg:                cfg,
		generatorOptimizer: generatorOptimizer,
		criticOptimizer:    criticOptimizer,
		logger:             pair.Logger(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// GeneratorOptimizer Returns optimizer of generator
func (t *Trainer) GeneratorOptimizer() *Optimizer {
	return t.generatorOptimizer
}

// CriticOptimizer Returns optimizer of critic
func (t *Trainer) CriticOptimizer() *Optimizer {
	return t.criticOptimizer
}

// Fit Runs epochs [startEpoch, MaxEpoch). Context is checked between iterations only
//
// train - training batches
// validation - batches for evaluation, required if DisplayStep > 0
// startEpoch - number of the first epoch (for resumed training)
//
func (t *Trainer) Fit(ctx context.Context, train, validation BatchLoader, startEpoch int) error {
	if train == nil {
		return fmt.Errorf("Training loader is required")
	}
	if t.cfg.DisplayStep > 0 && validation == nil {
		return ErrNoValidationLoader
	}
	for epoch := startEpoch; epoch < t.cfg.MaxEpoch; epoch++ {
		st := time.Now()
		for iteration := 0; iteration < train.Len(); iteration++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			batch, err := train.Batch(iteration)
			if err != nil {
				return errors.Wrap(err, fmt.Sprintf("Can't get batch #%d", iteration))
			}
			if err := t.Step(batch); err != nil {
				return errors.Wrap(err, fmt.Sprintf("Epoch #%d, iteration #%d", epoch, iteration))
			}
			if t.cfg.DisplayStep > 0 && iteration%t.cfg.DisplayStep == 0 {
				if err := t.display(validation, epoch, iteration); err != nil {
					return errors.Wrap(err, fmt.Sprintf("Epoch #%d, iteration #%d", epoch, iteration))
				}
			}
		}
		t.logger.Printf("Epoch #%d is done in %v\n", epoch, time.Since(st))
	}
	return nil
}

// Step Single training iteration: CriticStep critic updates, then one generator update (unless generator is frozen).
// Emits G/loss (if generator is trained) and metrics of the last critic update.
func (t *Trainer) Step(batch Batch) error {
	var criticLosses CriticLosses
	for k := 0; k < t.cfg.CriticStep; k++ {
		t.criticOptimizer.ZeroGrad()
		losses, err := t.pair.TrainCritic(batch)
		if err != nil {
			return errors.Wrap(err, "Can't train critic")
		}
		if err := t.criticOptimizer.Step(); err != nil {
			return errors.Wrap(err, "Can't update critic")
		}
		criticLosses = losses
	}

	t.generatorOptimizer.ZeroGrad()
	if !t.cfg.FreezeGenerator {
		generatorLosses, err := t.pair.TrainGenerator(batch)
		if err != nil {
			return errors.Wrap(err, "Can't train generator")
		}
		if err := t.generatorOptimizer.Step(); err != nil {
			return errors.Wrap(err, "Can't update generator")
		}
		if err := t.emit(generatorLosses.Metrics()); err != nil {
			return err
		}
	}
	return t.emit(criticLosses.Metrics())
}

func (t *Trainer) emit(metrics []Metric) error {
	for _, m := range metrics {
		if err := t.sink.LogMetric(m.Name, m.Value); err != nil {
			return errors.Wrap(err, fmt.Sprintf("Can't log '%s'", m.Name))
		}
	}
	return nil
}

// display Saves checkpoint and reports evaluation on validation set
func (t *Trainer) display(validation BatchLoader, epoch, iteration int) error {
	if err := os.MkdirAll(t.cfg.SavePath, 0755); err != nil {
		return errors.Wrap(err, "Can't create directory for checkpoints")
	}
	path, err := t.pair.SaveModels(t.cfg.SavePath, epoch, iteration)
	if err != nil {
		return errors.Wrap(err, "Can't save models")
	}
	t.logger.Printf("Checkpoint saved to '%s'\n", path)
	evaluation, err := t.pair.Evaluate(validation)
	if err != nil {
		return errors.Wrap(err, "Can't evaluate")
	}
	if err := t.sink.LogImage(ImageHistograms, evaluation.Histogram); err != nil {
		return errors.Wrap(err, "Can't log histograms")
	}
	return t.emit([]Metric{{Name: MetricROCAUC, Value: evaluation.ROCAUC}})
}

// InferenceTime Measures generation time for batch of random conditions.
// Does 10 warm-up runs first, then emits mean and standard deviation (milliseconds) of repetitions runs.
func (t *Trainer) InferenceTime(batchSize, repetitions int) (mean, std float64, err error) {
	if batchSize <= 0 || repetitions <= 0 {
		return 0, 0, fmt.Errorf("Batch size and number of repetitions must be positive, got %d and %d", batchSize, repetitions)
	}
	batch := Batch{X: t.pair.noise.NormRandDense(batchSize, t.pair.cfg.XDimensions)}
	for i := 0; i < inferenceWarmUp; i++ {
		if _, err = t.pair.Generate(batch); err != nil {
			return 0, 0, errors.Wrap(err, "Can't do warm-up run")
		}
	}
	timings := make([]float64, repetitions)
	for i := range timings {
		st := time.Now()
		if _, err = t.pair.Generate(batch); err != nil {
			return 0, 0, errors.Wrap(err, "Can't do timed run")
		}
		timings[i] = float64(time.Since(st)) / float64(time.Millisecond)
	}
	mean, std = stat.PopMeanStdDev(timings, nil)
	if err = t.emit([]Metric{{Name: MetricMeanTime, Value: mean}, {Name: MetricStdTime, Value: std}}); err != nil {
		return 0, 0, err
	}
	return mean, std, nil
}
