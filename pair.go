package wgan_go

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

const (
	MetricGeneratorLoss   = "G/loss"
	MetricCriticLoss      = "C/loss"
	MetricCriticFakePred  = "C/fake_pred"
	MetricCriticRealPred  = "C/real_pred"
	MetricGradientPenalty = "gradient penalty"
	MetricROCAUC          = "rocauc"
	MetricMeanTime        = "mean_time"
	MetricStdTime         = "std_time"
	ImageHistograms       = "Histograms"
)

// Metric Named scalar reported by training
type Metric struct {
	Name  string
	Value float64
}

// GeneratorLosses Result of single generator pass
type GeneratorLosses struct {
	Loss float64
}

// Metrics Returns losses in reporting order
func (l GeneratorLosses) Metrics() []Metric {
	return []Metric{{Name: MetricGeneratorLoss, Value: l.Loss}}
}

// CriticLosses Result of single critic pass
//
// Loss - Wasserstein + lambda*GradientPenalty, the value critic minimizes
// Wasserstein - FakePred - RealPred
// FakePred, RealPred - mean critic scores on generated and real samples
// GradientPenalty - penalty term before multiplication by lambda
//
type CriticLosses struct {
	Loss            float64
	Wasserstein     float64
	FakePred        float64
	RealPred        float64
	GradientPenalty float64
}

// Metrics Returns losses in reporting order
func (l CriticLosses) Metrics() []Metric {
	return []Metric{
		{Name: MetricCriticLoss, Value: l.Loss},
		{Name: MetricCriticFakePred, Value: l.FakePred},
		{Name: MetricCriticRealPred, Value: l.RealPred},
		{Name: MetricGradientPenalty, Value: l.GradientPenalty},
	}
}

// PairOption Optional dependency of AdversarialPair
type PairOption func(*AdversarialPair)

// WithFactory Replaces DefaultFactory
func WithFactory(f ModelFactory) PairOption {
	return func(p *AdversarialPair) {
		p.factory = f
	}
}

// WithLogger Replaces default logger (stderr)
func WithLogger(l *log.Logger) PairOption {
	return func(p *AdversarialPair) {
		p.logger = l
	}
}

// WithNoiseSource Replaces noise source seeded from configuration
func WithNoiseSource(ns *NoiseSource) PairOption {
	return func(p *AdversarialPair) {
		p.noise = ns
	}
}

// AdversarialPair Conditional generator and critic trained against each other.
//
// Generator maps [x, noise] ([N, F+Z]) to targets [N, T].
// Critic maps [targets, x] ([N, T+F]) to unconstrained score [N, 1].
//
type AdversarialPair struct {
	cfg           Config
	generatorArch Architecture
	criticArch    Architecture
	generator     *Network
	critic        *Network

	factory ModelFactory
	noise   *NoiseSource
	logger  *log.Logger

	inference      map[int]*inferenceProgram
	generatorTrain map[int]*generatorProgram
	criticTrain    map[int]*criticProgram
}

// NewPair Builds generator and critic from configuration. Configuration is copied, so later changes of cfg don't affect the pair.
func NewPair(cfg Config, opts ...PairOption) (*AdversarialPair, error) {
	cfg = cfg.clone()
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "Invalid configuration")
	}
	generatorArch, err := ParseArchitecture(string(RoleGenerator), cfg.architectureName(RoleGenerator))
	if err != nil {
		return nil, err
	}
	criticArch, err := ParseArchitecture(string(RoleCritic), cfg.architectureName(RoleCritic))
	if err != nil {
		return nil, err
	}
	pair := &AdversarialPair{
		cfg:            cfg,
		generatorArch:  generatorArch,
		criticArch:     criticArch,
		factory:        DefaultFactory{},
		logger:         log.New(os.Stderr, "[wgan] ", log.LstdFlags),
		inference:      make(map[int]*inferenceProgram),
		generatorTrain: make(map[int]*generatorProgram),
		criticTrain:    make(map[int]*criticProgram),
	}
	for _, opt := range opts {
		opt(pair)
	}
	if pair.noise == nil {
		pair.noise = NewNoiseSource(cfg.ZDimensions, cfg.Seed)
	}
	if pair.noise.Dims() != cfg.ZDimensions {
		return nil, &ShapeMismatchError{What: "noise", Want: []int{cfg.ZDimensions}, Got: []int{pair.noise.Dims()}}
	}
	pair.generator, err = pair.buildNetwork(RoleGenerator, generatorArch, cfg.XDimensions+cfg.ZDimensions, cfg.YDimensions)
	if err != nil {
		return nil, err
	}
	pair.critic, err = pair.buildNetwork(RoleCritic, criticArch, cfg.YDimensions+cfg.XDimensions, 1)
	if err != nil {
		return nil, err
	}
	return pair, nil
}

func (p *AdversarialPair) buildNetwork(role Role, arch Architecture, inputDim, outputDim int) (*Network, error) {
	nc := p.cfg.network(role)
	p.logger.Printf("Creating %s model for %s\n", arch, role)
	p.logger.Printf("Model params: %+v\n", nc.Params)
	net, err := p.factory.Build(arch, NetworkSpec{
		Role:      role,
		InputDim:  inputDim,
		OutputDim: outputDim,
		Params:    nc.Params,
		ModelType: p.cfg.modelType(role),
	})
	if err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("Can't build %s", role))
	}
	// Node names of generator and critic must not clash: both are bound to the same graph during generator training
	net.Name = string(role)
	if err := net.Validate(); err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("Invalid %s", role))
	}
	if net.InputDim() != inputDim || net.OutputDim() != outputDim {
		return nil, &ShapeMismatchError{
			What: fmt.Sprintf("%s input/output", role),
			Want: []int{inputDim, outputDim},
			Got:  []int{net.InputDim(), net.OutputDim()},
		}
	}
	if nc.CheckpointPath != "" {
		if err := LoadNetworkState(nc.CheckpointPath, role, net); err != nil {
			return nil, err
		}
		p.logger.Printf("Loaded %s state from '%s'\n", role, nc.CheckpointPath)
	}
	return net, nil
}

// Config Returns copy of pair's configuration (with defaults filled)
func (p *AdversarialPair) Config() Config {
	return p.cfg.clone()
}

// Generator Returns generator network
func (p *AdversarialPair) Generator() *Network {
	return p.generator
}

// Critic Returns critic network
func (p *AdversarialPair) Critic() *Network {
	return p.critic
}

// Logger Returns pair's logger
func (p *AdversarialPair) Logger() *log.Logger {
	return p.logger
}

// ConfigureOptimizers Creates optimizers for generator and critic (in that order)
func (p *AdversarialPair) ConfigureOptimizers() (*Optimizer, *Optimizer, error) {
	gc, cc := p.cfg.Generator, p.cfg.Critic
	generatorOptimizer, err := NewOptimizer(gc.Optimizer, gc.OptimizerParams, gc.LearningRate, gc.WeightDecay, p.generator)
	if err != nil {
		return nil, nil, errors.Wrap(err, "Can't configure optimizer for generator")
	}
	criticOptimizer, err := NewOptimizer(cc.Optimizer, cc.OptimizerParams, cc.LearningRate, cc.WeightDecay, p.critic)
	if err != nil {
		return nil, nil, errors.Wrap(err, "Can't configure optimizer for critic")
	}
	return generatorOptimizer, criticOptimizer, nil
}

// TrainGenerator Computes generator loss -mean(critic(G(x, z), x)) on fresh noise and gradients w.r.t. generator parameters only.
// Parameters are not changed: call Step() of generator's optimizer.
func (p *AdversarialPair) TrainGenerator(batch Batch) (GeneratorLosses, error) {
	x, err := p.conditions(batch)
	if err != nil {
		return GeneratorLosses{}, err
	}
	n := x.Shape()[0]
	prog, ok := p.generatorTrain[n]
	if !ok {
		prog, err = newGeneratorProgram(p.generator, p.critic, n, p.cfg.XDimensions, p.cfg.ZDimensions)
		if err != nil {
			return GeneratorLosses{}, errors.Wrap(err, "Can't compile generator training")
		}
		p.generatorTrain[n] = prog
	}
	return prog.run(x, p.noise.Sample(n))
}

// TrainCritic Computes critic loss (fake_mean - real_mean + lambda*gp) and gradients w.r.t. critic parameters only.
// Generated samples are produced beforehand and passed to critic as plain values.
// Parameters are not changed: call Step() of critic's optimizer.
func (p *AdversarialPair) TrainCritic(batch Batch) (CriticLosses, error) {
	x, err := p.conditions(batch)
	if err != nil {
		return CriticLosses{}, err
	}
	y, err := p.targets(batch)
	if err != nil {
		return CriticLosses{}, err
	}
	n := x.Shape()[0]
	inference, err := p.inferenceProgram(n)
	if err != nil {
		return CriticLosses{}, err
	}
	fake, err := inference.run(x, p.noise.Sample(n))
	if err != nil {
		return CriticLosses{}, errors.Wrap(err, "Can't generate samples for critic")
	}
	prog, ok := p.criticTrain[n]
	if !ok {
		prog, err = newCriticProgram(p.critic, n, p.cfg.XDimensions, p.cfg.YDimensions, p.cfg.GradientPenaltyCoefficient)
		if err != nil {
			return CriticLosses{}, errors.Wrap(err, "Can't compile critic training")
		}
		p.criticTrain[n] = prog
	}
	epsilon := p.noise.Interpolation(n, p.cfg.YDimensions+p.cfg.XDimensions)
	return prog.run(x, y, fake, epsilon)
}

// Generate Returns [N, T] generated targets for conditions of batch. Targets of batch are ignored
func (p *AdversarialPair) Generate(batch Batch) (*tensor.Dense, error) {
	x, err := p.conditions(batch)
	if err != nil {
		return nil, err
	}
	n := x.Shape()[0]
	prog, err := p.inferenceProgram(n)
	if err != nil {
		return nil, err
	}
	return prog.run(x, p.noise.Sample(n))
}

func (p *AdversarialPair) inferenceProgram(batchSize int) (*inferenceProgram, error) {
	if prog, ok := p.inference[batchSize]; ok {
		return prog, nil
	}
	prog, err := newInferenceProgram(p.generator, batchSize, p.cfg.XDimensions, p.cfg.ZDimensions)
	if err != nil {
		return nil, errors.Wrap(err, "Can't compile inference")
	}
	p.inference[batchSize] = prog
	return prog, nil
}

// Evaluate Generates targets for every batch of loader and compares them with real targets
func (p *AdversarialPair) Evaluate(loader BatchLoader) (*Evaluation, error) {
	if loader == nil {
		return nil, ErrNoValidationLoader
	}
	generated := make([][]float64, p.cfg.YDimensions)
	realColumns := make([][]float64, p.cfg.YDimensions)
	for i := 0; i < loader.Len(); i++ {
		batch, err := loader.Batch(i)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("Can't get validation batch #%d", i))
		}
		y, err := p.targets(batch)
		if err != nil {
			return nil, err
		}
		out, err := p.Generate(batch)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("Can't generate for validation batch #%d", i))
		}
		appendColumns(generated, out)
		appendColumns(realColumns, y)
	}
	return NewEvaluation(generated, realColumns, p.cfg.FeaturesNames)
}

// SaveModels Writes state of both networks to dir/epoch_<epoch>_iter_<iteration>.ckpt. Returns path of written file
func (p *AdversarialPair) SaveModels(dir string, epoch, iteration int) (string, error) {
	path := filepath.Join(dir, CheckpointName(epoch, iteration))
	state := &Checkpoint{
		Epoch:                 epoch,
		Iteration:             iteration,
		GeneratorArchitecture: p.generatorArch.String(),
		CriticArchitecture:    p.criticArch.String(),
		Generator:             networkState(p.generator),
		Critic:                networkState(p.critic),
	}
	if err := SaveCheckpoint(path, state); err != nil {
		return "", err
	}
	return path, nil
}

// Close Releases resources of every compiled program
func (p *AdversarialPair) Close() error {
	var firstErr error
	closeVM := func(vm interface{ Close() error }) {
		if err := vm.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for n, prog := range p.inference {
		closeVM(prog.vm)
		delete(p.inference, n)
	}
	for n, prog := range p.generatorTrain {
		closeVM(prog.vm)
		delete(p.generatorTrain, n)
	}
	for n, prog := range p.criticTrain {
		closeVM(prog.vm)
		delete(p.criticTrain, n)
	}
	return firstErr
}

// conditions Returns batch.X as [N, F] matrix
func (p *AdversarialPair) conditions(batch Batch) (*tensor.Dense, error) {
	if batch.X == nil {
		return nil, fmt.Errorf("Batch has no conditions")
	}
	x := batch.X
	data, ok := x.Data().([]float64)
	if !ok {
		return nil, fmt.Errorf("Batch conditions must be float64, got %v", x.Dtype())
	}
	if x.Dims() == 1 && p.cfg.XDimensions == 1 {
		x = tensor.New(tensor.WithShape(len(data), 1), tensor.WithBacking(data))
	}
	if x.Dims() != 2 || x.Shape()[1] != p.cfg.XDimensions || x.Shape()[0] == 0 {
		return nil, &ShapeMismatchError{What: "batch conditions", Want: []int{batch.Size(), p.cfg.XDimensions}, Got: x.Shape().Clone()}
	}
	return x, nil
}

// targets Returns batch.Y as [N, T] matrix, N must match number of conditions
func (p *AdversarialPair) targets(batch Batch) (*tensor.Dense, error) {
	y, err := batch.Targets()
	if err != nil {
		return nil, err
	}
	if y.Shape()[0] != batch.Size() || y.Shape()[1] != p.cfg.YDimensions {
		return nil, &ShapeMismatchError{What: "batch targets", Want: []int{batch.Size(), p.cfg.YDimensions}, Got: y.Shape().Clone()}
	}
	if _, ok := y.Data().([]float64); !ok {
		return nil, fmt.Errorf("Batch targets must be float64, got %v", y.Dtype())
	}
	return y, nil
}

// appendColumns Appends columns of [N, T] matrix to per-column slices
func appendColumns(columns [][]float64, t *tensor.Dense) {
	width := t.Shape()[1]
	data := t.Data().([]float64)
	for i := 0; i < len(data)/width; i++ {
		for j := range columns {
			columns[j] = append(columns[j], data[i*width+j])
		}
	}
}
