// Package config loads and validates the YAML configuration that drives a
// dataset-generation run: provider selection, file locations, and the tuning
// parameters for generation, judging, and filtering.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// Config is the root configuration document.
type Config struct {
	LLM        LLMConfig        `yaml:"llm" validate:"required"`
	Data       DataConfig       `yaml:"data" validate:"required"`
	Processing ProcessingConfig `yaml:"processing"`

	// MetricsAddr, when non-empty, exposes Prometheus metrics on that
	// address for the duration of the run.
	MetricsAddr string `yaml:"metrics_addr"`
}

// LLMConfig selects and tunes the language-model backend.
type LLMConfig struct {
	// Provider selects the backend: openai, anthropic, or google.
	Provider string `yaml:"provider" validate:"required,oneof=openai anthropic google"`

	// Model names the model; empty means the provider default.
	Model string `yaml:"model"`

	// BaseURL overrides the provider endpoint (OpenAI-compatible gateways,
	// Azure deployments).
	BaseURL string `yaml:"base_url"`

	// Temperature for generation calls. Judge calls use
	// Processing.JudgeTemperature instead.
	Temperature float64 `yaml:"temperature" validate:"min=0,max=2"`

	// MaxTokens limits generated output length.
	MaxTokens int `yaml:"max_tokens" validate:"min=1,max=100000"`

	// TimeoutSeconds bounds each provider call.
	TimeoutSeconds int `yaml:"timeout_seconds" validate:"min=1,max=600"`

	// MaxRetries bounds transport-level retries with backoff.
	MaxRetries int `yaml:"max_retries" validate:"min=0,max=10"`

	// BaseDelayMS and MaxDelayMS shape the retry backoff curve.
	BaseDelayMS int `yaml:"base_delay_ms" validate:"min=0,max=60000"`
	MaxDelayMS  int `yaml:"max_delay_ms" validate:"min=0,max=300000"`

	// RequestsPerSecond and Burst configure the shared rate limiter.
	RequestsPerSecond float64 `yaml:"requests_per_second" validate:"min=0"`
	Burst             int     `yaml:"burst" validate:"min=0"`
}

// Timeout returns the per-call timeout as a duration.
func (c LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// DataConfig locates the run's inputs and outputs.
type DataConfig struct {
	// Communities is the community-detection result file (JSON).
	Communities string `yaml:"communities" validate:"required"`

	// Mapping is the semantic-id to arXiv-id mapping table (JSON).
	Mapping string `yaml:"mapping" validate:"required"`

	// CorpusPath is a directory of pre-extracted paper text files.
	CorpusPath string `yaml:"corpus_path"`

	// CorpusDB is a SQLite corpus database; takes precedence over
	// CorpusPath when both are set.
	CorpusDB string `yaml:"corpus_db"`

	// OutputDir receives intermediate artifacts, audit records, and the
	// final dataset.
	OutputDir string `yaml:"output_dir" validate:"required"`
}

// ProcessingConfig carries the pipeline tuning parameters. These are tuning
// knobs, not structural behavior; all have working defaults.
type ProcessingConfig struct {
	// Workers is the number of communities processed in parallel.
	Workers int `yaml:"workers" validate:"min=1,max=64"`

	// MaxParseRetries is how many model calls are attempted per community
	// when responses fail to parse, each with the same prompt, before the
	// community is skipped.
	MaxParseRetries int `yaml:"max_parse_retries" validate:"min=1,max=10"`

	// MaxContentChars caps the total paper content assembled into a
	// prompt; earlier papers in community order take priority.
	MaxContentChars int `yaml:"max_content_chars" validate:"min=1000"`

	// MinPaperKB and MaxPaperKB filter corpus files by size; out-of-range
	// papers are treated as unresolvable.
	MinPaperKB int `yaml:"min_paper_kb" validate:"min=0"`
	MaxPaperKB int `yaml:"max_paper_kb" validate:"min=0"`

	// AcceptThreshold is the minimum judge score (1-10 scale) for a
	// candidate to be accepted. The judge must also pass it explicitly.
	AcceptThreshold float64 `yaml:"accept_threshold" validate:"min=1,max=10"`

	// JudgeTemperature and JudgeMaxTokens tune the judging calls; the
	// low default temperature keeps verdicts consistent.
	JudgeTemperature float64 `yaml:"judge_temperature" validate:"min=0,max=2"`
	JudgeMaxTokens   int     `yaml:"judge_max_tokens" validate:"min=1,max=100000"`
}

// Default returns a configuration with every tuning parameter at its
// default. Paths and the provider section must still be filled in.
func Default() Config {
	return Config{
		LLM: LLMConfig{
			Provider:          "openai",
			Temperature:       0.7,
			MaxTokens:         2048,
			TimeoutSeconds:    120,
			MaxRetries:        3,
			BaseDelayMS:       1000,
			MaxDelayMS:        30000,
			RequestsPerSecond: 2,
			Burst:             4,
		},
		Data: DataConfig{
			OutputDir: "output",
		},
		Processing: ProcessingConfig{
			Workers:          4,
			MaxParseRetries:  2,
			MaxContentChars:  120000,
			MinPaperKB:       10,
			MaxPaperKB:       200,
			AcceptThreshold:  7.0,
			JudgeTemperature: 0.0,
			JudgeMaxTokens:   1024,
		},
	}
}

// Load reads, defaults, and validates a configuration file.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the structural and cross-field constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Data.CorpusPath == "" && c.Data.CorpusDB == "" {
		return fmt.Errorf("one of data.corpus_path or data.corpus_db must be set")
	}
	if c.Processing.MaxPaperKB > 0 && c.Processing.MinPaperKB > c.Processing.MaxPaperKB {
		return fmt.Errorf("processing.min_paper_kb exceeds processing.max_paper_kb")
	}
	return nil
}
