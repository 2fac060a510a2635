// Command mdaqa builds a multi-document question-answering dataset from
// communities of related academic papers. Each subcommand runs one pipeline
// stage; run executes all of them.
package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/huihuang/mdaqa/infrastructure/corpus"
	"github.com/huihuang/mdaqa/infrastructure/llm"
	"github.com/huihuang/mdaqa/infrastructure/metrics"
	"github.com/huihuang/mdaqa/internal/assembler"
	"github.com/huihuang/mdaqa/internal/config"
	"github.com/huihuang/mdaqa/internal/evaluator"
	"github.com/huihuang/mdaqa/internal/generator"
	"github.com/huihuang/mdaqa/internal/pipeline"
	"github.com/huihuang/mdaqa/internal/ports"
)

var (
	version = "dev"

	configPath string
	verbose    bool
)

func main() {
	root := &cobra.Command{
		Use:           "mdaqa",
		Short:         "Build a multi-document QA dataset from paper communities",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "configuration file")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newGenerateCmd(),
		newEvaluateCmd(),
		newAssembleCmd(),
		newRunCmd(),
		newImportCmd(),
		newVersionCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "mdaqa", version)
		},
	}
}

// app holds everything a subcommand needs, built once from the config file.
type app struct {
	cfg     config.Config
	logger  *zap.Logger
	store   ports.PaperStore
	mapper  *corpus.JSONMapper
	llm     ports.LLMClient
	metrics ports.MetricsCollector
	closers []func() error
}

// newApp loads the environment and configuration and opens every external
// collaborator. Callers must invoke close when done.
func newApp() (*app, error) {
	// API keys commonly live in a local .env file; a missing file is fine.
	_ = godotenv.Load()

	logger, err := newLogger()
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger}
	a.closers = append(a.closers, func() error {
		_ = logger.Sync()
		return nil
	})

	if err := a.openStore(); err != nil {
		a.close()
		return nil, err
	}

	a.mapper, err = corpus.LoadJSONMapper(cfg.Data.Mapping)
	if err != nil {
		a.close()
		return nil, err
	}
	logger.Info("identifier mapping loaded",
		zap.String("path", cfg.Data.Mapping),
		zap.Int("entries", a.mapper.Len()))

	a.setupMetrics()

	a.llm, err = a.buildLLMClient()
	if err != nil {
		a.close()
		return nil, err
	}

	if err := os.MkdirAll(cfg.Data.OutputDir, 0o755); err != nil {
		a.close()
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", zap.Error(err))
		}
	}
}

func newLogger() (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if verbose {
		zcfg = zap.NewDevelopmentConfig()
	}
	logger, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	return logger, nil
}

func (a *app) openStore() error {
	if db := a.cfg.Data.CorpusDB; db != "" {
		store, err := corpus.OpenSQLiteStore(db)
		if err != nil {
			return err
		}
		a.store = store
		a.closers = append(a.closers, store.Close)
		a.logger.Info("using SQLite corpus", zap.String("path", db))
		return nil
	}

	store, err := corpus.NewFSStore(a.cfg.Data.CorpusPath,
		a.cfg.Processing.MinPaperKB, a.cfg.Processing.MaxPaperKB)
	if err != nil {
		return err
	}
	a.store = store
	a.logger.Info("using file corpus", zap.String("path", a.cfg.Data.CorpusPath))
	return nil
}

func (a *app) setupMetrics() {
	registry := prometheus.NewRegistry()
	a.metrics = metrics.NewPrometheusCollector(registry)

	if addr := a.cfg.MetricsAddr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				a.logger.Warn("metrics server stopped", zap.Error(err))
			}
		}()
		a.closers = append(a.closers, server.Close)
		a.logger.Info("metrics exposed", zap.String("addr", addr))
	}
}

// llmMiddleware builds the standard chain: retry with backoff outermost so
// each attempt gets a fresh per-attempt timeout, then rate limiting, metrics,
// and tracing closest to the provider call.
func llmMiddleware(lc config.LLMConfig, collector ports.MetricsCollector) []llm.Middleware {
	middleware := []llm.Middleware{
		llm.RetryMiddleware(lc.MaxRetries,
			time.Duration(lc.BaseDelayMS)*time.Millisecond,
			time.Duration(lc.MaxDelayMS)*time.Millisecond),
		llm.TimeoutMiddleware(lc.Timeout()),
	}
	if lc.RequestsPerSecond > 0 {
		middleware = append(middleware,
			llm.RateLimitMiddleware(rate.Limit(lc.RequestsPerSecond), lc.Burst))
	}
	return append(middleware,
		llm.MetricsMiddleware(collector),
		llm.TracingMiddleware("mdaqa"),
	)
}

// buildLLMClient creates the provider client with the standard middleware
// chain.
func (a *app) buildLLMClient() (ports.LLMClient, error) {
	lc := a.cfg.LLM
	middleware := llmMiddleware(lc, a.metrics)

	providers := make(map[string]llm.ProviderSettings, len(llm.DefaultProviders))
	for name, settings := range llm.DefaultProviders {
		if name == lc.Provider && lc.BaseURL != "" {
			settings.BaseURL = lc.BaseURL
		}
		providers[name] = settings
	}

	registry := llm.NewRegistry(llm.RegistryConfig{
		Providers:         providers,
		DefaultTimeout:    lc.Timeout(),
		DefaultMiddleware: middleware,
	})

	spec := lc.Provider
	if lc.Model != "" {
		spec += "/" + lc.Model
	}
	client, err := registry.Client(spec)
	if err != nil {
		return nil, err
	}
	a.logger.Info("LLM client ready",
		zap.String("provider", lc.Provider),
		zap.String("model", client.GetModel()))
	return client, nil
}

// buildRunner wires the three pipeline stages onto the app's collaborators.
func (a *app) buildRunner(resume bool) (*pipeline.Runner, *pipeline.AuditLog, error) {
	proc := a.cfg.Processing

	gen, err := generator.New(a.store, a.mapper, a.llm, generator.Config{
		MaxContentChars: proc.MaxContentChars,
		MaxAttempts:     proc.MaxParseRetries,
		Temperature:     a.cfg.LLM.Temperature,
		MaxTokens:       a.cfg.LLM.MaxTokens,
	}, a.logger)
	if err != nil {
		return nil, nil, err
	}

	eval, err := evaluator.New(a.llm, evaluator.Config{
		AcceptThreshold: proc.AcceptThreshold,
		MaxAttempts:     proc.MaxParseRetries,
		MaxContentChars: proc.MaxContentChars,
		Temperature:     proc.JudgeTemperature,
		MaxTokens:       proc.JudgeMaxTokens,
	}, a.logger)
	if err != nil {
		return nil, nil, err
	}

	asm, err := assembler.New(a.mapper, a.logger)
	if err != nil {
		return nil, nil, err
	}

	audit, err := pipeline.OpenAuditLog(a.cfg.Data.OutputDir)
	if err != nil {
		return nil, nil, err
	}

	runner, err := pipeline.NewRunner(gen, eval, asm, a.store, a.mapper,
		a.metrics, audit, a.logger, pipeline.Config{
			Workers:   proc.Workers,
			OutputDir: a.cfg.Data.OutputDir,
			Resume:    resume,
		})
	if err != nil {
		audit.Close()
		return nil, nil, err
	}
	return runner, audit, nil
}
