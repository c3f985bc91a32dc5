package wgan_go

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ModelParams Parameters passed to model factory
//
// Hidden - widths of hidden layers (FCN) or hidden tree layers (NODE)
// Activation - activation of hidden layers
// OutputActivation - activation of the last layer
// NumTrees, Depth - NODE only
// InitGain - gain for weights initialization (default 1.0)
//
type ModelParams struct {
	Hidden           []int   `yaml:"hidden"`
	Activation       string  `yaml:"activation"`
	OutputActivation string  `yaml:"output_activation"`
	NumTrees         int     `yaml:"num_trees"`
	Depth            int     `yaml:"depth"`
	InitGain         float64 `yaml:"init_gain"`
}

// OptimizerParams Optional hyperparameters of solver. Zero value means solver's default
type OptimizerParams struct {
	Beta1 float64 `yaml:"beta1"`
	Beta2 float64 `yaml:"beta2"`
	Eps   float64 `yaml:"eps"`
	Rho   float64 `yaml:"rho"`
}

// NetworkConfig Per-role section of configuration
type NetworkConfig struct {
	Architecture    string          `yaml:"architecture"`
	Params          ModelParams     `yaml:"params"`
	Optimizer       string          `yaml:"optimizer"`
	OptimizerParams OptimizerParams `yaml:"optimizer_params"`
	LearningRate    float64         `yaml:"learning_rate"`
	WeightDecay     float64         `yaml:"weight_decay"`
	CheckpointPath  string          `yaml:"checkpoint_path"`
	ModelType       string          `yaml:"model_type"`
}

// TrainerConfig Knobs of training loop
type TrainerConfig struct {
	MaxEpoch        int    `yaml:"max_epoch"`
	DisplayStep     int    `yaml:"display_step"`
	CriticStep      int    `yaml:"critic_step"`
	SavePath        string `yaml:"save_path"`
	FreezeGenerator bool   `yaml:"freeze_generator"`
}

// DataConfig Where CSV datasets are and which columns are conditions/targets
type DataConfig struct {
	TrainPath        string   `yaml:"train_path"`
	ValidationPath   string   `yaml:"validation_path"`
	ConditionColumns []string `yaml:"condition_columns"`
	TargetColumns    []string `yaml:"target_columns"`
	BatchSize        int      `yaml:"batch_size"`
}

// Config Configuration of adversarial pair and training loop. Treated as immutable value after NewPair()
type Config struct {
	GeneratorArchitecture string `yaml:"generator_architecture"`
	CriticArchitecture    string `yaml:"critic_architecture"`
	GeneratorModelType    string `yaml:"generator_model_type"`
	CriticModelType       string `yaml:"critic_model_type"`
	Device                string `yaml:"device"`

	// ZDimensions - noise width Z
	ZDimensions int `yaml:"z_dimensions"`
	// XDimensions - condition features width F
	XDimensions int `yaml:"x_dimensions"`
	// YDimensions - target width T (number of generated features)
	YDimensions int `yaml:"y_dimensions"`
	// FeaturesNames - names of target columns, used for histograms
	FeaturesNames []string `yaml:"features_names"`

	GradientPenaltyCoefficient float64 `yaml:"gradient_penalty_coefficient"`
	Seed                       int64   `yaml:"seed"`

	Generator NetworkConfig `yaml:"generator"`
	Critic    NetworkConfig `yaml:"critic"`
	Trainer   TrainerConfig `yaml:"trainer"`
	Data      DataConfig    `yaml:"data"`
}

const (
	DefaultGradientPenaltyCoefficient = 10.0
	DefaultCriticStep                 = 8
	DefaultDisplayStep                = 1000
	DefaultMaxEpoch                   = 10000
	DefaultBatchSize                  = 64
	DefaultLearningRate               = 1e-4
)

// Overrides Values supplied from CLI. Zero values are ignored
type Overrides struct {
	SavePath    string
	MaxEpoch    int
	DisplayStep int
	CriticStep  int
	BatchSize   int
	Seed        int64
}

// LoadConfig Reads YAML configuration from file
func LoadConfig(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "Can't open config")
	}
	defer f.Close()
	return ParseConfig(f)
}

// ParseConfig Decodes YAML configuration. Unknown keys are rejected
func ParseConfig(r io.Reader) (Config, error) {
	cfg := Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "Can't parse config")
	}
	return cfg, nil
}

// ApplyOverrides Updates cfg using any non-zero override
func (cfg *Config) ApplyOverrides(o Overrides) {
	if o.SavePath != "" {
		cfg.Trainer.SavePath = o.SavePath
	}
	if o.MaxEpoch > 0 {
		cfg.Trainer.MaxEpoch = o.MaxEpoch
	}
	if o.DisplayStep > 0 {
		cfg.Trainer.DisplayStep = o.DisplayStep
	}
	if o.CriticStep > 0 {
		cfg.Trainer.CriticStep = o.CriticStep
	}
	if o.BatchSize > 0 {
		cfg.Data.BatchSize = o.BatchSize
	}
	if o.Seed != 0 {
		cfg.Seed = o.Seed
	}
}

// Validate Fills defaults and checks that config is usable. Architecture and optimizer names are resolved later by NewPair and ConfigureOptimizers
func (cfg *Config) Validate() error {
	if cfg.Device == "" {
		cfg.Device = "cpu"
	}
	if strings.ToLower(cfg.Device) != "cpu" {
		return errors.Wrap(ErrUnsupportedDevice, cfg.Device)
	}
	if cfg.YDimensions == 0 {
		cfg.YDimensions = len(cfg.FeaturesNames)
		if cfg.YDimensions == 0 {
			cfg.YDimensions = 1
		}
	}
	if cfg.ZDimensions <= 0 {
		return fmt.Errorf("z_dimensions must be > 0 (got %d)", cfg.ZDimensions)
	}
	if cfg.XDimensions <= 0 {
		return fmt.Errorf("x_dimensions must be > 0 (got %d)", cfg.XDimensions)
	}
	if cfg.YDimensions <= 0 {
		return fmt.Errorf("y_dimensions must be > 0 (got %d)", cfg.YDimensions)
	}
	if len(cfg.FeaturesNames) != 0 && len(cfg.FeaturesNames) != cfg.YDimensions {
		return fmt.Errorf("features_names has %d entries, but y_dimensions = %d", len(cfg.FeaturesNames), cfg.YDimensions)
	}
	if n := len(cfg.Data.ConditionColumns); n != 0 && n != cfg.XDimensions {
		return &ShapeMismatchError{What: "data.condition_columns vs x_dimensions", Want: []int{cfg.XDimensions}, Got: []int{n}}
	}
	if n := len(cfg.Data.TargetColumns); n != 0 && n != cfg.YDimensions {
		return &ShapeMismatchError{What: "data.target_columns vs y_dimensions", Want: []int{cfg.YDimensions}, Got: []int{n}}
	}
	if cfg.GradientPenaltyCoefficient == 0 {
		cfg.GradientPenaltyCoefficient = DefaultGradientPenaltyCoefficient
	}
	if cfg.GradientPenaltyCoefficient < 0 {
		return fmt.Errorf("gradient_penalty_coefficient must be >= 0 (got %f)", cfg.GradientPenaltyCoefficient)
	}
	if cfg.Trainer.CriticStep <= 0 {
		cfg.Trainer.CriticStep = DefaultCriticStep
	}
	if cfg.Trainer.DisplayStep <= 0 {
		cfg.Trainer.DisplayStep = DefaultDisplayStep
	}
	if cfg.Trainer.MaxEpoch <= 0 {
		cfg.Trainer.MaxEpoch = DefaultMaxEpoch
	}
	if cfg.Trainer.SavePath == "" {
		cfg.Trainer.SavePath = "."
	}
	if cfg.Data.BatchSize <= 0 {
		cfg.Data.BatchSize = DefaultBatchSize
	}
	for _, nc := range []*NetworkConfig{&cfg.Generator, &cfg.Critic} {
		if nc.LearningRate == 0 {
			nc.LearningRate = DefaultLearningRate
		}
	}
	return nil
}

// architectureName Role's own architecture has priority over top-level one
func (cfg *Config) architectureName(role Role) string {
	switch role {
	case RoleGenerator:
		if cfg.Generator.Architecture != "" {
			return cfg.Generator.Architecture
		}
		return cfg.GeneratorArchitecture
	default:
		if cfg.Critic.Architecture != "" {
			return cfg.Critic.Architecture
		}
		return cfg.CriticArchitecture
	}
}

func (cfg *Config) modelType(role Role) string {
	switch role {
	case RoleGenerator:
		if cfg.Generator.ModelType != "" {
			return cfg.Generator.ModelType
		}
		return cfg.GeneratorModelType
	default:
		if cfg.Critic.ModelType != "" {
			return cfg.Critic.ModelType
		}
		return cfg.CriticModelType
	}
}

func (cfg *Config) network(role Role) NetworkConfig {
	if role == RoleGenerator {
		return cfg.Generator
	}
	return cfg.Critic
}

// clone Deep copy of slices so that caller's mutations don't leak into pair
func (cfg Config) clone() Config {
	cp := cfg
	cp.FeaturesNames = append([]string(nil), cfg.FeaturesNames...)
	cp.Generator.Params.Hidden = append([]int(nil), cfg.Generator.Params.Hidden...)
	cp.Critic.Params.Hidden = append([]int(nil), cfg.Critic.Params.Hidden...)
	cp.Data.ConditionColumns = append([]string(nil), cfg.Data.ConditionColumns...)
	cp.Data.TargetColumns = append([]string(nil), cfg.Data.TargetColumns...)
	return cp
}
