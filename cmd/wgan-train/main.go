package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	wgan "github.com/LdDl/wgan-go"
)

func main() {
	cfgPath := flag.String("config", "wgan.yaml", "Path to YAML config")
	savePath := flag.String("out", "", "Override directory for checkpoints")
	maxEpoch := flag.Int("epochs", 0, "Override number of epochs")
	displayStep := flag.Int("display-step", 0, "Override checkpoint/evaluation period (iterations)")
	criticStep := flag.Int("critic-step", 0, "Override number of critic updates per generator update")
	batchSize := flag.Int("batch-size", 0, "Override batch size")
	seed := flag.Int64("seed", 0, "Override PRNG seed")
	startEpoch := flag.Int("start-epoch", 0, "Number of the first epoch (when resuming from checkpoint)")
	imagesDir := flag.String("images", "", "Directory for histograms (not saved if empty)")
	inferenceReps := flag.Int("inference-reps", 0, "Measure inference time with N repetitions after training")

	flag.Parse()

	cfg, err := wgan.LoadConfig(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	cfg.ApplyOverrides(wgan.Overrides{
		SavePath:    *savePath,
		MaxEpoch:    *maxEpoch,
		DisplayStep: *displayStep,
		CriticStep:  *criticStep,
		BatchSize:   *batchSize,
		Seed:        *seed,
	})
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	train, err := loadData(cfg.Data.TrainPath, cfg)
	if err != nil {
		log.Fatalf("failed to load training data: %v", err)
	}
	var validation wgan.BatchLoader
	if cfg.Data.ValidationPath != "" {
		validation, err = loadData(cfg.Data.ValidationPath, cfg)
		if err != nil {
			log.Fatalf("failed to load validation data: %v", err)
		}
	}

	logger := log.New(os.Stderr, "[wgan] ", log.LstdFlags)
	pair, err := wgan.NewPair(cfg, wgan.WithLogger(logger))
	if err != nil {
		log.Fatalf("failed to create models: %v", err)
	}
	defer pair.Close()

	trainer, err := wgan.NewTrainer(pair, wgan.NewLogSink(logger, *imagesDir), cfg.Trainer)
	if err != nil {
		log.Fatalf("failed to create trainer: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := trainer.Fit(ctx, train, validation, *startEpoch); err != nil {
		log.Fatalf("training failed: %v", err)
	}
	if *inferenceReps > 0 {
		mean, std, err := trainer.InferenceTime(cfg.Data.BatchSize, *inferenceReps)
		if err != nil {
			log.Fatalf("failed to measure inference time: %v", err)
		}
		logger.Printf("inference time: %.3f ms ± %.3f ms\n", mean, std)
	}
}

func loadData(path string, cfg wgan.Config) (wgan.BatchLoader, error) {
	ds, err := wgan.LoadCSV(path, cfg.Data.ConditionColumns, cfg.Data.TargetColumns)
	if err != nil {
		return nil, err
	}
	log.Printf("file=%s rows=%d", path, ds.Length)
	return ds.Loader(cfg.Data.BatchSize)
}
