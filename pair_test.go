package wgan_go

import (
	"fmt"
	"io"
	"log"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// testConfig z=2, F=3, T=1
func testConfig(arch string) Config {
	return Config{
		GeneratorArchitecture: arch,
		CriticArchitecture:    arch,
		ZDimensions:           2,
		XDimensions:           3,
		Seed:                  42,
		Generator: NetworkConfig{
			Params:       ModelParams{Hidden: []int{8}, Activation: "relu", NumTrees: 2, Depth: 2},
			Optimizer:    "adam",
			LearningRate: 1e-2,
		},
		Critic: NetworkConfig{
			Params:       ModelParams{Hidden: []int{8}, Activation: "tanh", NumTrees: 2, Depth: 2},
			Optimizer:    "rmsprop",
			LearningRate: 1e-2,
		},
		Trainer: TrainerConfig{MaxEpoch: 1, CriticStep: 2},
	}
}

func testBatch(seed int64, n, features, targets int) Batch {
	rng := rand.New(rand.NewSource(seed))
	return Batch{X: randomDense(rng, n, features), Y: randomDense(rng, n, targets)}
}

func newTestPair(t *testing.T, cfg Config) *AdversarialPair {
	pair, err := NewPair(cfg, WithLogger(quietLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { pair.Close() })
	return pair
}

func assertFinite(t *testing.T, values ...float64) {
	for i, v := range values {
		assert.False(t, math.IsNaN(v) || math.IsInf(v, 0), "value #%d is not finite: %v", i, v)
	}
}

func TestNewPairUnknownArchitecture(t *testing.T) {
	factory := &countingFactory{}
	cfg := testConfig("fcn")
	cfg.CriticArchitecture = "transformer"
	_, err := NewPair(cfg, WithLogger(quietLogger()), WithFactory(factory))
	var archErr *UnknownArchitectureError
	require.ErrorAs(t, err, &archErr)
	assert.Equal(t, "critic", archErr.Role)
	assert.Zero(t, factory.calls, "no network must be built when any architecture is unknown")
}

type countingFactory struct {
	calls int
}

func (f *countingFactory) Build(arch Architecture, spec NetworkSpec) (*Network, error) {
	f.calls++
	return DefaultFactory{}.Build(arch, spec)
}

func TestNewPairDimensions(t *testing.T) {
	factory := &countingFactory{}
	pair, err := NewPair(testConfig("FCN"), WithLogger(quietLogger()), WithFactory(factory))
	require.NoError(t, err)
	defer pair.Close()
	assert.Equal(t, 2, factory.calls)
	assert.Equal(t, 5, pair.Generator().InputDim())
	assert.Equal(t, 1, pair.Generator().OutputDim())
	assert.Equal(t, 4, pair.Critic().InputDim())
	assert.Equal(t, 1, pair.Critic().OutputDim())
	assert.Equal(t, 1, pair.Config().YDimensions)
}

func TestNewPairErrors(t *testing.T) {
	relu := testConfig("fcn")
	relu.Critic.Params.Activation = "relu"
	_, err := NewPair(relu, WithLogger(quietLogger()))
	var activationErr *UnknownActivationError
	require.ErrorAs(t, err, &activationErr)

	gpu := testConfig("fcn")
	gpu.Device = "cuda"
	_, err = NewPair(gpu, WithLogger(quietLogger()))
	require.ErrorIs(t, err, ErrUnsupportedDevice)

	noise := testConfig("fcn")
	_, err = NewPair(noise, WithLogger(quietLogger()), WithNoiseSource(NewNoiseSource(5, 1)))
	var shapeErr *ShapeMismatchError
	require.ErrorAs(t, err, &shapeErr)
}

func TestPairConfigureOptimizers(t *testing.T) {
	pair := newTestPair(t, testConfig("fcn"))
	generatorOptimizer, criticOptimizer, err := pair.ConfigureOptimizers()
	require.NoError(t, err)
	assert.Equal(t, OptimizerAdam, generatorOptimizer.Algorithm)
	assert.Equal(t, OptimizerRMSProp, criticOptimizer.Algorithm)

	cfg := testConfig("fcn")
	cfg.Critic.Optimizer = "adagrad"
	broken := newTestPair(t, cfg)
	_, _, err = broken.ConfigureOptimizers()
	var optErr *UnknownOptimizerError
	require.ErrorAs(t, err, &optErr)
	assert.Equal(t, "critic", optErr.Role)
}

func TestPairConfigIsCopied(t *testing.T) {
	cfg := testConfig("fcn")
	pair := newTestPair(t, cfg)
	cfg.Generator.Params.Hidden[0] = 100
	cfg.ZDimensions = 7
	assert.Equal(t, 8, pair.Config().Generator.Params.Hidden[0])
	assert.Equal(t, 2, pair.Config().ZDimensions)
}

func TestPairShapes(t *testing.T) {
	for _, arch := range []string{"fcn", "node"} {
		t.Run(arch, func(t *testing.T) {
			pair := newTestPair(t, testConfig(arch))
			batch := testBatch(1, 4, 3, 1)

			generated, err := pair.Generate(batch)
			require.NoError(t, err)
			assert.Equal(t, tensor.Shape{4, 1}, generated.Shape())

			// Generated sample [G(x, z), x] has the same shape as real sample [y, x]
			realSample, err := tensor.Concat(1, batch.Y, batch.X)
			require.NoError(t, err)
			fake, err := tensor.Concat(1, generated, batch.X)
			require.NoError(t, err)
			assert.Equal(t, realSample.Shape(), fake.Shape())

			criticLosses, err := pair.TrainCritic(batch)
			require.NoError(t, err)
			assertFinite(t, criticLosses.Loss, criticLosses.Wasserstein, criticLosses.FakePred, criticLosses.RealPred, criticLosses.GradientPenalty)
			assert.GreaterOrEqual(t, criticLosses.GradientPenalty, 0.0)
			assert.InDelta(t, criticLosses.FakePred-criticLosses.RealPred, criticLosses.Wasserstein, 1e-9)
			assert.InDelta(t, criticLosses.Wasserstein+DefaultGradientPenaltyCoefficient*criticLosses.GradientPenalty, criticLosses.Loss, 1e-9)

			generatorLosses, err := pair.TrainGenerator(batch)
			require.NoError(t, err)
			assertFinite(t, generatorLosses.Loss)

			// Other batch size compiles its own programs
			small := testBatch(2, 1, 3, 1)
			generated, err = pair.Generate(small)
			require.NoError(t, err)
			assert.Equal(t, tensor.Shape{1, 1}, generated.Shape())
			_, err = pair.TrainCritic(small)
			require.NoError(t, err)
		})
	}
}

func TestTrainGeneratorTargetWidths(t *testing.T) {
	for _, arch := range []string{"fcn", "node"} {
		for _, targets := range []int{1, 2} {
			t.Run(fmt.Sprintf("%s_%d", arch, targets), func(t *testing.T) {
				cfg := testConfig(arch)
				cfg.YDimensions = targets
				pair := newTestPair(t, cfg)
				generatorOptimizer, _, err := pair.ConfigureOptimizers()
				require.NoError(t, err)
				for _, n := range []int{1, 4} {
					before := pair.Generator().Snapshot()
					generatorOptimizer.ZeroGrad()
					losses, err := pair.TrainGenerator(testBatch(int64(n), n, 3, targets))
					require.NoError(t, err)
					assertFinite(t, losses.Loss)
					require.NoError(t, generatorOptimizer.Step())
					assert.NotEqual(t, before, pair.Generator().Snapshot())
				}
			})
		}
	}
}

// networkGradients Copies gradients of the most recent pass of network
func networkGradients(t *testing.T, net *Network) [][]float64 {
	require.NotNil(t, net.grads)
	learnables := net.grads.Learnables()
	grads := make([][]float64, len(learnables))
	for i, l := range learnables {
		grad, err := l.Grad()
		require.NoError(t, err)
		grads[i] = append([]float64(nil), grad.Data().([]float64)...)
	}
	return grads
}

func TestRepeatedPassesDoNotAccumulateGradients(t *testing.T) {
	for _, arch := range []string{"fcn", "node"} {
		t.Run(arch, func(t *testing.T) {
			pair := newTestPair(t, testConfig(arch))
			batch := testBatch(6, 4, 3, 1)

			pair.noise = NewNoiseSource(2, 99)
			_, err := pair.TrainCritic(batch)
			require.NoError(t, err)
			first := networkGradients(t, pair.Critic())
			pair.noise = NewNoiseSource(2, 99)
			_, err = pair.TrainCritic(batch)
			require.NoError(t, err)
			second := networkGradients(t, pair.Critic())
			for i := range first {
				assert.InDeltaSlice(t, first[i], second[i], 1e-12, "critic parameter #%d", i)
			}

			pair.noise = NewNoiseSource(2, 99)
			_, err = pair.TrainGenerator(batch)
			require.NoError(t, err)
			first = networkGradients(t, pair.Generator())
			pair.noise = NewNoiseSource(2, 99)
			_, err = pair.TrainGenerator(batch)
			require.NoError(t, err)
			second = networkGradients(t, pair.Generator())
			for i := range first {
				assert.InDeltaSlice(t, first[i], second[i], 1e-12, "generator parameter #%d", i)
			}
		})
	}
}

func TestOptimizerZeroGradClearsGradients(t *testing.T) {
	pair := newTestPair(t, testConfig("fcn"))
	_, criticOptimizer, err := pair.ConfigureOptimizers()
	require.NoError(t, err)
	_, err = pair.TrainCritic(testBatch(7, 4, 3, 1))
	require.NoError(t, err)
	bound := pair.Critic().grads
	require.NotNil(t, bound)

	criticOptimizer.ZeroGrad()
	for _, l := range bound.Learnables() {
		grad, err := l.Grad()
		require.NoError(t, err)
		for _, v := range grad.Data().([]float64) {
			assert.Zero(t, v, l.Name())
		}
	}
	require.ErrorIs(t, criticOptimizer.Step(), ErrNoGradients)
}

func TestPairGenerateIgnoresTargets(t *testing.T) {
	pair := newTestPair(t, testConfig("fcn"))
	batch := testBatch(3, 4, 3, 1)
	batch.Y = nil
	generated, err := pair.Generate(batch)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{4, 1}, generated.Shape())

	_, err = pair.TrainCritic(batch)
	assert.Error(t, err)
}

func TestPairShapeMismatch(t *testing.T) {
	pair := newTestPair(t, testConfig("fcn"))
	var shapeErr *ShapeMismatchError

	_, err := pair.Generate(testBatch(1, 4, 2, 1))
	require.ErrorAs(t, err, &shapeErr)

	_, err = pair.TrainCritic(testBatch(1, 4, 3, 2))
	require.ErrorAs(t, err, &shapeErr)

	_, err = pair.TrainGenerator(Batch{})
	assert.Error(t, err)
}

func TestCriticStepLeavesGeneratorUnchanged(t *testing.T) {
	pair := newTestPair(t, testConfig("fcn"))
	generatorOptimizer, criticOptimizer, err := pair.ConfigureOptimizers()
	require.NoError(t, err)
	batch := testBatch(4, 4, 3, 1)

	generatorBefore := pair.Generator().Snapshot()
	criticBefore := pair.Critic().Snapshot()
	criticOptimizer.ZeroGrad()
	_, err = pair.TrainCritic(batch)
	require.NoError(t, err)
	require.NoError(t, criticOptimizer.Step())
	assert.Equal(t, generatorBefore, pair.Generator().Snapshot())
	assert.NotEqual(t, criticBefore, pair.Critic().Snapshot())

	// Generator optimizer has nothing to apply after critic pass
	require.ErrorIs(t, generatorOptimizer.Step(), ErrNoGradients)
}

func TestGeneratorStepLeavesCriticUnchanged(t *testing.T) {
	pair := newTestPair(t, testConfig("fcn"))
	generatorOptimizer, criticOptimizer, err := pair.ConfigureOptimizers()
	require.NoError(t, err)
	batch := testBatch(5, 4, 3, 1)

	generatorBefore := pair.Generator().Snapshot()
	criticBefore := pair.Critic().Snapshot()
	generatorOptimizer.ZeroGrad()
	_, err = pair.TrainGenerator(batch)
	require.NoError(t, err)
	require.NoError(t, generatorOptimizer.Step())
	assert.Equal(t, criticBefore, pair.Critic().Snapshot())
	assert.NotEqual(t, generatorBefore, pair.Generator().Snapshot())

	require.ErrorIs(t, criticOptimizer.Step(), ErrNoGradients)
}

func TestWassersteinNegativeWhenRealScoredHigher(t *testing.T) {
	cfg := testConfig("fcn")
	pair := newTestPair(t, cfg)
	// Critic scores sample by its target value only: critic([y, x]) = y
	critic := pair.Critic()
	critic.Layers = []*Layer{{
		Type:       LayerLinear,
		Activation: ActivationIdentity,
		Weight:     tensor.New(tensor.WithShape(1, 4), tensor.WithBacking([]float64{1, 0, 0, 0})),
		Bias:       tensor.New(tensor.WithShape(1, 1), tensor.WithBacking([]float64{0})),
	}}
	batch := testBatch(6, 4, 3, 1)
	generated, err := pair.Generate(batch)
	require.NoError(t, err)
	maxGenerated := math.Inf(-1)
	for _, v := range generated.Data().([]float64) {
		maxGenerated = math.Max(maxGenerated, v)
	}
	// Real targets are far above anything generator produces
	y := batch.Y.Data().([]float64)
	for i := range y {
		y[i] = maxGenerated + 100 + y[i]
	}
	losses, err := pair.TrainCritic(batch)
	require.NoError(t, err)
	assert.Less(t, losses.Wasserstein, 0.0)
	assert.Greater(t, losses.RealPred, losses.FakePred)
	// ||d critic / dv|| = 1 everywhere
	assert.InDelta(t, 0.0, losses.GradientPenalty, 1e-9)
}

func TestLossesMetrics(t *testing.T) {
	g := GeneratorLosses{Loss: 1}.Metrics()
	require.Len(t, g, 1)
	assert.Equal(t, MetricGeneratorLoss, g[0].Name)

	c := CriticLosses{Loss: 1, FakePred: 2, RealPred: 3, GradientPenalty: 4}.Metrics()
	names := make([]string, len(c))
	for i := range c {
		names[i] = c[i].Name
	}
	assert.Equal(t, []string{"C/loss", "C/fake_pred", "C/real_pred", "gradient penalty"}, names)
	assert.Equal(t, 4.0, c[3].Value)
}
