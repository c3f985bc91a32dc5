package wgan_go

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckpointName(t *testing.T) {
	assert.Equal(t, "epoch_3_iter_1000.ckpt", CheckpointName(3, 1000))
}

func TestCheckpointRoundTrip(t *testing.T) {
	dir := t.TempDir()
	pair := newTestPair(t, testConfig("fcn"))
	path, err := pair.SaveModels(dir, 2, 10)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "epoch_2_iter_10.ckpt"), path)

	saved, err := ReadCheckpoint(path)
	require.NoError(t, err)
	assert.Equal(t, 2, saved.Epoch)
	assert.Equal(t, 10, saved.Iteration)
	assert.Equal(t, "fcn", saved.GeneratorArchitecture)
	assert.Equal(t, "fcn", saved.CriticArchitecture)
	require.Len(t, saved.Generator, 4)
	assert.Equal(t, "generator_w0", saved.Generator[0].Name)
	assert.Equal(t, []int{8, 5}, saved.Generator[0].Shape)

	cfg := testConfig("fcn")
	cfg.Generator.CheckpointPath = path
	cfg.Critic.CheckpointPath = path
	restored := newTestPair(t, cfg)
	assert.Equal(t, pair.Generator().Snapshot(), restored.Generator().Snapshot())
	assert.Equal(t, pair.Critic().Snapshot(), restored.Critic().Snapshot())

	// Noise sources of both pairs are seeded equally, so restored generator gives the same values
	batch := testBatch(1, 3, 3, 1)
	original, err := pair.Generate(batch)
	require.NoError(t, err)
	reloaded, err := restored.Generate(batch)
	require.NoError(t, err)
	assert.Equal(t, original.Data(), reloaded.Data())
}

func TestCheckpointOnlyOneRole(t *testing.T) {
	dir := t.TempDir()
	pair := newTestPair(t, testConfig("fcn"))
	path, err := pair.SaveModels(dir, 0, 0)
	require.NoError(t, err)

	cfg := testConfig("fcn")
	cfg.Critic.CheckpointPath = path
	restored := newTestPair(t, cfg)
	assert.Equal(t, pair.Critic().Snapshot(), restored.Critic().Snapshot())
	assert.NotEqual(t, pair.Generator().Snapshot(), restored.Generator().Snapshot())
}

func TestCheckpointLoadErrors(t *testing.T) {
	dir := t.TempDir()
	var loadErr *CheckpointLoadError

	missing := testConfig("fcn")
	missing.Generator.CheckpointPath = filepath.Join(dir, "missing.ckpt")
	_, err := NewPair(missing, WithLogger(quietLogger()))
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, missing.Generator.CheckpointPath, loadErr.Path)

	corrupted := filepath.Join(dir, "corrupted.ckpt")
	require.NoError(t, os.WriteFile(corrupted, []byte("definitely not gob"), 0644))
	broken := testConfig("fcn")
	broken.Critic.CheckpointPath = corrupted
	_, err = NewPair(broken, WithLogger(quietLogger()))
	require.ErrorAs(t, err, &loadErr)

	pair := newTestPair(t, testConfig("fcn"))
	path, err := pair.SaveModels(dir, 0, 0)
	require.NoError(t, err)
	incompatible := testConfig("fcn")
	incompatible.Generator.Params.Hidden = []int{16}
	incompatible.Generator.CheckpointPath = path
	_, err = NewPair(incompatible, WithLogger(quietLogger()))
	require.ErrorAs(t, err, &loadErr)
	var shapeErr *ShapeMismatchError
	assert.ErrorAs(t, err, &shapeErr)

	deeper := testConfig("fcn")
	deeper.Critic.Params.Hidden = []int{8, 8}
	deeper.Critic.CheckpointPath = path
	_, err = NewPair(deeper, WithLogger(quietLogger()))
	require.ErrorAs(t, err, &loadErr)
}
