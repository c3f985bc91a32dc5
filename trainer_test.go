package wgan_go

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTrainer(t *testing.T, cfg Config) (*Trainer, *MemorySink) {
	pair := newTestPair(t, cfg)
	sink := &MemorySink{}
	trainer, err := NewTrainer(pair, sink, cfg.Trainer, WithTrainerLogger(quietLogger()))
	require.NoError(t, err)
	return trainer, sink
}

func testLoader(t *testing.T, seed int64, rows, batchSize int) BatchLoader {
	batch := testBatch(seed, rows, 3, 1)
	ds := &Dataset{X: batch.X, Y: batch.Y, Length: rows}
	loader, err := ds.Loader(batchSize)
	require.NoError(t, err)
	return loader
}

func TestTrainerStep(t *testing.T) {
	// z=2, F=3, N=4, critic_step=2
	trainer, sink := newTestTrainer(t, testConfig("fcn"))
	require.NoError(t, trainer.Step(testBatch(1, 4, 3, 1)))

	assert.Equal(t, 2, trainer.CriticOptimizer().Steps())
	assert.Equal(t, 1, trainer.GeneratorOptimizer().Steps())
	assert.Equal(t, []string{"G/loss", "C/loss", "C/fake_pred", "C/real_pred", "gradient penalty"}, sink.Names())
	for _, r := range sink.Records {
		assertFinite(t, r.Value)
	}
}

func TestTrainerStepFrozenGenerator(t *testing.T) {
	cfg := testConfig("fcn")
	cfg.Trainer.FreezeGenerator = true
	cfg.Trainer.CriticStep = 3
	trainer, sink := newTestTrainer(t, cfg)
	generatorBefore := trainer.pair.Generator().Snapshot()

	require.NoError(t, trainer.Step(testBatch(2, 4, 3, 1)))
	assert.Equal(t, 3, trainer.CriticOptimizer().Steps())
	assert.Zero(t, trainer.GeneratorOptimizer().Steps())
	assert.Equal(t, generatorBefore, trainer.pair.Generator().Snapshot())
	assert.Equal(t, []string{"C/loss", "C/fake_pred", "C/real_pred", "gradient penalty"}, sink.Names())
}

func TestTrainerFitRequiresValidation(t *testing.T) {
	cfg := testConfig("fcn")
	cfg.Trainer.DisplayStep = 1
	trainer, sink := newTestTrainer(t, cfg)
	err := trainer.Fit(context.Background(), testLoader(t, 1, 8, 4), nil, 0)
	require.ErrorIs(t, err, ErrNoValidationLoader)
	assert.Empty(t, sink.Records, "nothing must be trained before validation loader is checked")
}

func TestTrainerFit(t *testing.T) {
	cfg := testConfig("fcn")
	cfg.FeaturesNames = []string{"dll"}
	cfg.Trainer = TrainerConfig{
		MaxEpoch:    2,
		DisplayStep: 2,
		CriticStep:  1,
		SavePath:    filepath.Join(t.TempDir(), "checkpoints"),
	}
	trainer, sink := newTestTrainer(t, cfg)
	train := testLoader(t, 1, 12, 4)
	validation := testLoader(t, 2, 6, 4)

	require.NoError(t, trainer.Fit(context.Background(), train, validation, 1))

	// Only epoch #1 is run, iterations 0 and 2 are displayed
	assert.Equal(t, 3, trainer.CriticOptimizer().Steps())
	assert.Equal(t, 3, trainer.GeneratorOptimizer().Steps())
	for _, name := range []string{"epoch_1_iter_0.ckpt", "epoch_1_iter_2.ckpt"} {
		_, err := os.Stat(filepath.Join(cfg.Trainer.SavePath, name))
		assert.NoError(t, err, name)
	}
	_, err := os.Stat(filepath.Join(cfg.Trainer.SavePath, "epoch_1_iter_1.ckpt"))
	assert.True(t, os.IsNotExist(err))

	assert.Len(t, sink.Values(MetricGeneratorLoss), 3)
	assert.Len(t, sink.Values(MetricGradientPenalty), 3)
	rocauc := sink.Values(MetricROCAUC)
	require.Len(t, rocauc, 2)
	for _, v := range rocauc {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}
	images := 0
	for _, r := range sink.Records {
		if r.Name == ImageHistograms {
			images++
			assert.True(t, bytes.HasPrefix(r.Image, pngHeader))
		}
	}
	assert.Equal(t, 2, images)
}

func TestTrainerFitCanceled(t *testing.T) {
	cfg := testConfig("fcn")
	trainer, sink := newTestTrainer(t, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := trainer.Fit(ctx, testLoader(t, 1, 8, 4), testLoader(t, 2, 4, 4), 0)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, sink.Records)
}

func TestTrainerInferenceTime(t *testing.T) {
	trainer, sink := newTestTrainer(t, testConfig("fcn"))
	mean, std, err := trainer.InferenceTime(8, 5)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, mean, 0.0)
	assert.GreaterOrEqual(t, std, 0.0)
	assert.Equal(t, []string{MetricMeanTime, MetricStdTime}, sink.Names())

	_, _, err = trainer.InferenceTime(0, 5)
	assert.Error(t, err)
}

func TestNewTrainerErrors(t *testing.T) {
	cfg := testConfig("fcn")
	cfg.Generator.Optimizer = "nesterov"
	pair := newTestPair(t, cfg)
	_, err := NewTrainer(pair, &MemorySink{}, cfg.Trainer)
	var optErr *UnknownOptimizerError
	require.ErrorAs(t, err, &optErr)

	_, err = NewTrainer(pair, nil, cfg.Trainer)
	assert.Error(t, err)
	_, err = NewTrainer(nil, &MemorySink{}, cfg.Trainer)
	assert.Error(t, err)
}
