package cmd

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	cfgpkg "github.com/KaramelBytes/satark-cli/internal/config"
	"github.com/KaramelBytes/satark-cli/internal/merge"
	"github.com/KaramelBytes/satark-cli/internal/store"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or set Satark configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if cfg == nil {
			fmt.Fprintln(out, "No config loaded")
			return nil
		}
		fmt.Fprintf(out, "data_dir: %s\n", cfg.DataDir)
		fmt.Fprintf(out, "store_backend: %s\n", cfg.StoreBackend)
		if cfg.PostgresURL != "" {
			fmt.Fprintf(out, "postgres_url: %s\n", mask(cfg.PostgresURL))
		}
		if cfg.AliasesFile != "" {
			fmt.Fprintf(out, "aliases_file: %s\n", cfg.AliasesFile)
		}
		fmt.Fprintf(out, "dedup_keys: %s\n", strings.Join(cfg.DedupKeys, ","))
		fmt.Fprintf(out, "merge_policy: %s\n", cfg.MergePolicy)
		fmt.Fprintf(out, "contamination: %.3f\n", cfg.Contamination)
		fmt.Fprintf(out, "num_trees: %d\n", cfg.NumTrees)
		fmt.Fprintf(out, "max_samples: %d\n", cfg.MaxSamples)
		fmt.Fprintf(out, "random_seed: %d\n", cfg.RandomSeed)
		fmt.Fprintf(out, "datagov_api_key: %s\n", mask(cfg.DataGovAPIKey))
		fmt.Fprintf(out, "datagov_base_url: %s\n", cfg.DataGovBaseURL)
		fmt.Fprintf(out, "datagov_page_size: %d\n", cfg.DataGovPageSize)
		fmt.Fprintf(out, "datagov_max_records: %d\n", cfg.DataGovMaxRecords)
		fmt.Fprintf(out, "datagov_rps: %.2f\n", cfg.DataGovRPS)
		if len(cfg.DataGovResources) > 0 {
			keys := make([]string, 0, len(cfg.DataGovResources))
			for k := range cfg.DataGovResources {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(out, "datagov_resources.%s: %s\n", k, cfg.DataGovResources[k])
			}
		}
		fmt.Fprintf(out, "http_timeout_sec: %d\n", cfg.HTTPTimeoutSec)
		fmt.Fprintf(out, "retry_max_attempts: %d\n", cfg.RetryMaxAttempts)
		fmt.Fprintf(out, "retry_base_delay_ms: %d\n", cfg.RetryBaseDelayMs)
		fmt.Fprintf(out, "retry_max_delay_ms: %d\n", cfg.RetryMaxDelayMs)
		fmt.Fprintf(out, "server_addr: %s\n", cfg.ServerAddr)
		fmt.Fprintf(out, "cors_origins: %s\n", strings.Join(cfg.CORSOrigins, ","))
		fmt.Fprintf(out, "log_level: %s\n", cfg.LogLevel)
		fmt.Fprintf(out, "log_format: %s\n", cfg.LogFormat)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value and save to disk",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireConfig(); err != nil {
			return err
		}
		if err := setConfigValue(cfg, args[0], args[1]); err != nil {
			return err
		}
		if err := cfgpkg.Save(cfg, cfgFile); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Saved config")
		return nil
	},
}

func setConfigValue(c *cfgpkg.Global, key, val string) error {
	switch key {
	case "data_dir":
		c.DataDir = val
	case "store_backend":
		switch strings.ToLower(val) {
		case store.BackendFile, store.BackendBadger, store.BackendPostgres:
			c.StoreBackend = strings.ToLower(val)
		default:
			return fmt.Errorf("invalid store_backend: %s (use file, badger or postgres)", val)
		}
	case "postgres_url":
		c.PostgresURL = val
	case "aliases_file":
		c.AliasesFile = val
	case "dedup_keys":
		keys := splitList(val)
		if len(keys) == 0 {
			return fmt.Errorf("dedup_keys must name at least one column")
		}
		c.DedupKeys = keys
	case "merge_policy":
		if _, err := merge.ParsePolicy(val); err != nil {
			return err
		}
		c.MergePolicy = val
	case "contamination":
		f, err := strconv.ParseFloat(val, 64)
		if err != nil || f <= 0 || f > 0.5 {
			return fmt.Errorf("invalid contamination: %v (want 0 < c <= 0.5)", val)
		}
		c.Contamination = f
	case "num_trees", "max_samples", "datagov_page_size", "datagov_max_records",
		"http_timeout_sec", "retry_max_attempts", "retry_base_delay_ms", "retry_max_delay_ms":
		i, err := strconv.Atoi(val)
		if err != nil || i < 0 {
			return fmt.Errorf("invalid int for %s: %v", key, val)
		}
		setIntKey(c, key, i)
	case "random_seed":
		u, err := strconv.ParseUint(val, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid seed: %w", err)
		}
		c.RandomSeed = u
	case "datagov_api_key":
		c.DataGovAPIKey = val
	case "datagov_base_url":
		c.DataGovBaseURL = val
	case "datagov_rps":
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("invalid float for datagov_rps: %w", err)
		}
		c.DataGovRPS = f
	case "server_addr":
		c.ServerAddr = val
	case "cors_origins":
		c.CORSOrigins = splitList(val)
	case "log_level":
		c.LogLevel = val
	case "log_format":
		switch val {
		case "text", "json":
			c.LogFormat = val
		default:
			return fmt.Errorf("invalid log_format: %s (use text or json)", val)
		}
	default:
		if kind, ok := strings.CutPrefix(key, "datagov_resources."); ok {
			if c.DataGovResources == nil {
				c.DataGovResources = map[string]string{}
			}
			c.DataGovResources[kind] = val
			return nil
		}
		return fmt.Errorf("unknown key: %s", key)
	}
	return nil
}

func setIntKey(c *cfgpkg.Global, key string, i int) {
	switch key {
	case "num_trees":
		c.NumTrees = i
	case "max_samples":
		c.MaxSamples = i
	case "datagov_page_size":
		c.DataGovPageSize = i
	case "datagov_max_records":
		c.DataGovMaxRecords = i
	case "http_timeout_sec":
		c.HTTPTimeoutSec = i
	case "retry_max_attempts":
		c.RetryMaxAttempts = i
	case "retry_base_delay_ms":
		c.RetryBaseDelayMs = i
	case "retry_max_delay_ms":
		c.RetryMaxDelayMs = i
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 6 {
		return "******"
	}
	return s[:3] + "****" + s[len(s)-3:]
}
