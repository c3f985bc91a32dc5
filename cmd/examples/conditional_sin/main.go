package main

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"

	wgan "github.com/LdDl/wgan-go"
	"gonum.org/v1/plot/plotter"
)

func generateX() float64 {
	return 2 * math.Pi * rand.Float64()
}

// generateY Target is noisy, so generator has to learn conditional distribution rather than single value
func generateY(x float64) float64 {
	return math.Sin(x) + 0.1*rand.NormFloat64()
}

var (
	outputFolder = "./output"
	batchSize    = 64
	numEpoches   = 200
	displayStep  = 8
)

func main() {
	// Initialize seed with constant value to reproduce results
	rand.Seed(1337)

	if err := os.MkdirAll(outputFolder, 0755); err != nil {
		log.Fatalf("can't create output folder: %v", err)
	}

	trainSet, err := wgan.GenerateConditionalSet(1024, generateX, generateY)
	if err != nil {
		log.Fatalf("can't generate training set: %v", err)
	}
	validationSet, err := wgan.GenerateConditionalSet(512, generateX, generateY)
	if err != nil {
		log.Fatalf("can't generate validation set: %v", err)
	}

	cfg := wgan.Config{
		GeneratorArchitecture: "fcn",
		CriticArchitecture:    "fcn",
		ZDimensions:           2,
		XDimensions:           1,
		YDimensions:           1,
		FeaturesNames:         []string{"sin(x)"},
		Seed:                  1337,
		Generator: wgan.NetworkConfig{
			Params:       wgan.ModelParams{Hidden: []int{32, 32}, Activation: "relu"},
			Optimizer:    "adam",
			LearningRate: 1e-3,
			OptimizerParams: wgan.OptimizerParams{
				Beta1: 0.5,
				Beta2: 0.9,
			},
		},
		Critic: wgan.NetworkConfig{
			Params:       wgan.ModelParams{Hidden: []int{32, 32}, Activation: "tanh"},
			Optimizer:    "adam",
			LearningRate: 1e-3,
			OptimizerParams: wgan.OptimizerParams{
				Beta1: 0.5,
				Beta2: 0.9,
			},
		},
		Trainer: wgan.TrainerConfig{
			MaxEpoch:    numEpoches,
			DisplayStep: displayStep,
			CriticStep:  5,
			SavePath:    fmt.Sprintf("%s/checkpoints", outputFolder),
		},
	}

	pair, err := wgan.NewPair(cfg)
	if err != nil {
		log.Fatalf("can't create models: %v", err)
	}
	defer pair.Close()

	trainLoader, err := trainSet.Loader(batchSize)
	if err != nil {
		log.Fatalf("can't create train loader: %v", err)
	}
	validationLoader, err := validationSet.Loader(batchSize)
	if err != nil {
		log.Fatalf("can't create validation loader: %v", err)
	}

	sink := wgan.NewLogSink(pair.Logger(), outputFolder)
	trainer, err := wgan.NewTrainer(pair, sink, cfg.Trainer)
	if err != nil {
		log.Fatalf("can't create trainer: %v", err)
	}
	if err := trainer.Fit(context.Background(), trainLoader, validationLoader, 0); err != nil {
		log.Fatalf("training failed: %v", err)
	}

	// Final test of Generator
	fmt.Println("Start testing generator after final epoch")
	xs, ys := []float64{}, []float64{}
	reference := plotter.XYs{}
	for i := 0; i < validationLoader.Len(); i++ {
		batch, err := validationLoader.Batch(i)
		if err != nil {
			log.Fatalf("can't get validation batch: %v", err)
		}
		generated, err := pair.Generate(batch)
		if err != nil {
			log.Fatalf("can't generate: %v", err)
		}
		x, err := wgan.Column(batch.X, 0)
		if err != nil {
			log.Fatalf("can't extract conditions: %v", err)
		}
		y, err := wgan.Column(generated, 0)
		if err != nil {
			log.Fatalf("can't extract generated values: %v", err)
		}
		realY, err := wgan.Column(batch.Y, 0)
		if err != nil {
			log.Fatalf("can't extract real values: %v", err)
		}
		for j := range x {
			reference = append(reference, plotter.XY{X: x[j], Y: realY[j]})
		}
		xs = append(xs, x...)
		ys = append(ys, y...)
	}
	// Plot output of Generator together with reference values
	if err := wgan.PlotXY(xs, ys, fmt.Sprintf("%s/gen_reference_func_final.png", outputFolder), reference); err != nil {
		log.Fatalf("can't plot: %v", err)
	}
	if _, _, err := trainer.InferenceTime(batchSize, 100); err != nil {
		log.Fatalf("can't measure inference time: %v", err)
	}
}
