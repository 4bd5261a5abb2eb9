package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/satark-cli/internal/anomaly"
	cfgpkg "github.com/KaramelBytes/satark-cli/internal/config"
	"github.com/KaramelBytes/satark-cli/internal/datagov"
	"github.com/KaramelBytes/satark-cli/internal/merge"
	"github.com/KaramelBytes/satark-cli/internal/normalize"
	"github.com/KaramelBytes/satark-cli/internal/pipeline"
	"github.com/KaramelBytes/satark-cli/internal/store"
	"github.com/KaramelBytes/satark-cli/internal/table"
	"github.com/KaramelBytes/satark-cli/internal/utils"
)

var (
	// Global flags
	cfgFile       string
	debug         bool
	flagLogFormat string
	flagDataDir   string
	flagBackend   string
	// Retry/HTTP flags (override config if set)
	flagHTTPTimeoutSec   int
	flagRetryMaxAttempts int
	flagRetryBaseDelayMs int
	flagRetryMaxDelayMs  int

	// Loaded configuration
	cfg    *cfgpkg.Global
	logger = slog.New(slog.DiscardHandler)
)

var rootCmd = &cobra.Command{
	Use:   "satark",
	Short: "Satark: find districts falling behind on mandatory updates",
	Long: `Satark ingests enrolment, biometric and demographic update extracts, keeps
deduplicated master tables per dataset, and ranks districts by their update
gap with statistical outlier detection on top of the threshold rules.`,
	SilenceUsage: true,
}

// Execute is the entry point called by main.main()
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "✗ Error:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(loadConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.satark/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "", "log format: text|json (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "directory for stored masters and model (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagBackend, "backend", "", "store backend: file|badger|postgres (overrides config)")
	rootCmd.PersistentFlags().IntVar(&flagHTTPTimeoutSec, "http-timeout", 0, "HTTP client timeout in seconds (overrides config)")
	rootCmd.PersistentFlags().IntVar(&flagRetryMaxAttempts, "retry-max", 0, "max retry attempts on 429/5xx (overrides config)")
	rootCmd.PersistentFlags().IntVar(&flagRetryBaseDelayMs, "retry-base-ms", 0, "base retry backoff in ms (overrides config)")
	rootCmd.PersistentFlags().IntVar(&flagRetryMaxDelayMs, "retry-max-ms", 0, "max retry backoff cap in ms (overrides config)")
}

func loadConfig() {
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		// Non-fatal: allow running commands that don't need config
		fmt.Fprintf(os.Stderr, "⚠ Warning: failed to load config: %v\n", err)
		return
	}
	cfg = c

	// Apply CLI overrides if provided
	f := rootCmd.PersistentFlags()
	if f.Changed("http-timeout") && flagHTTPTimeoutSec > 0 {
		cfg.HTTPTimeoutSec = flagHTTPTimeoutSec
	}
	if f.Changed("retry-max") && flagRetryMaxAttempts > 0 {
		cfg.RetryMaxAttempts = flagRetryMaxAttempts
	}
	if f.Changed("retry-base-ms") && flagRetryBaseDelayMs > 0 {
		cfg.RetryBaseDelayMs = flagRetryBaseDelayMs
	}
	if f.Changed("retry-max-ms") && flagRetryMaxDelayMs > 0 {
		cfg.RetryMaxDelayMs = flagRetryMaxDelayMs
	}
	if f.Changed("data-dir") && flagDataDir != "" {
		cfg.DataDir = flagDataDir
	}
	if f.Changed("backend") && flagBackend != "" {
		cfg.StoreBackend = flagBackend
	}
	if f.Changed("log-format") && flagLogFormat != "" {
		cfg.LogFormat = flagLogFormat
	}
	if debug {
		cfg.LogLevel = "debug"
	}
	logger = newLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
}

func newLogger(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func requireConfig() error {
	if cfg == nil {
		c, err := cfgpkg.Load(cfgFile)
		if err != nil {
			return err
		}
		cfg = c
	}
	return nil
}

// openStore builds the full processing stack from configuration.
func openStore(ctx context.Context) (*store.Store, error) {
	if err := requireConfig(); err != nil {
		return nil, err
	}
	aliases, err := utils.ExpandHome(cfg.AliasesFile)
	if err != nil {
		return nil, err
	}
	ref, err := normalize.LoadReference(aliases)
	if err != nil {
		return nil, fmt.Errorf("aliases_file: %w", err)
	}
	norm := normalize.New(ref)

	policy, err := merge.ParsePolicy(cfg.MergePolicy)
	if err != nil {
		return nil, err
	}
	merger := merge.New(norm, merge.Options{Keys: cfg.DedupKeys, Policy: policy})

	params := anomaly.Params{
		NumTrees:      cfg.NumTrees,
		MaxSamples:    cfg.MaxSamples,
		Contamination: cfg.Contamination,
		Seed:          cfg.RandomSeed,
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	p := pipeline.New(norm, anomaly.NewDetector(params, logger), logger)

	dataDir, err := utils.ExpandHome(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	backend, err := store.OpenBackend(ctx, store.BackendOptions{
		Kind:        cfg.StoreBackend,
		DataDir:     dataDir,
		PostgresURL: cfg.PostgresURL,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}
	st, err := store.Open(ctx, backend, merger, p, logger)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	return st, nil
}

// newDataGovClient builds the portal client from configuration.
func newDataGovClient() (*datagov.Client, error) {
	if err := requireConfig(); err != nil {
		return nil, err
	}
	resources := make(map[table.Kind]string, len(cfg.DataGovResources))
	for k, id := range cfg.DataGovResources {
		kind, err := table.ParseKind(k)
		if err != nil {
			return nil, fmt.Errorf("datagov_resources: %w", err)
		}
		resources[kind] = id
	}
	return datagov.NewClient(datagov.Options{
		APIKey:            cfg.DataGovAPIKey,
		BaseURL:           cfg.DataGovBaseURL,
		PageSize:          cfg.DataGovPageSize,
		MaxRecords:        cfg.DataGovMaxRecords,
		Resources:         resources,
		HTTPTimeout:       cfg.HTTPTimeout(),
		RetryMaxAttempts:  cfg.RetryMaxAttempts,
		RetryBaseDelay:    cfg.RetryBaseDelay(),
		RetryMaxDelay:     cfg.RetryMaxDelay(),
		RequestsPerSecond: cfg.DataGovRPS,
		Logger:            logger,
	}), nil
}

func parseDelimiter(s string) (rune, error) {
	switch s {
	case "":
		return 0, nil
	case ",":
		return ',', nil
	case "\t", "tab":
		return '\t', nil
	case ";":
		return ';', nil
	case "|", "pipe":
		return '|', nil
	}
	return 0, fmt.Errorf("unsupported --delimiter: %s", s)
}
