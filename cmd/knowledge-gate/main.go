// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the knowledge-gate CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/kawidev/knowledge-gate/internal/issues"
	"github.com/kawidev/knowledge-gate/internal/logging"
	"github.com/kawidev/knowledge-gate/internal/pipeline"
	"github.com/kawidev/knowledge-gate/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

var (
	// cfg is the resolved configuration, set before any subcommand runs.
	cfg types.PipelineConfig

	logger = logging.Nop()

	// configErr holds a failure to read an explicitly named config file.
	configErr error
)

const maxWorkers = 256

// rootCmd is the base command for the knowledge-gate CLI.
var rootCmd = &cobra.Command{
	Use:   "knowledge-gate",
	Short: "Quality gate and curation library for knowledge extractions",
	Long: `knowledge-gate turns raw knowledge extraction records into a curated
library. Records are canonicalized, validated against the canonical
contract, aggregated into a QA report, judged by a policy-driven export
gate, and partitioned into ready and reject streams.

Each stage is a subcommand: qa, schema, gate, export and library. Stages
read the artifacts of the previous stage from the data directory and
recompute them when missing.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configErr != nil {
			return configErr
		}
		c, err := resolveConfig(viper.GetViper())
		if err != nil {
			return err
		}
		l, err := logging.New(logging.Options{Level: c.LogLevel, JSON: c.LogJSON})
		if err != nil {
			return err
		}
		cfg, logger = c, l
		logger.Debugw("configuration resolved", "data_dir", c.DataDir, "workers", c.Workers)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (default: ./knowledge-gate.yaml or ~/.config/knowledge-gate/knowledge-gate.yaml)")
	pf.String("data-dir", "", "base data directory (contains raw/, processed/, library/)")
	pf.String("log-level", "", "log level: debug, info, warn, error")
	pf.Bool("log-json", false, "write JSON log lines instead of console output")
	pf.Int("workers", 0, "QA worker count (default: number of CPUs)")
	pf.String("rules-file", "", "diagnostic rules YAML replacing the built-in code sets")
	pf.String("policy-file", "", "gate policy override document (JSON, or YAML by extension)")

	for key, flag := range map[string]string{
		"data_dir":    "data-dir",
		"log_level":   "log-level",
		"log_json":    "log-json",
		"workers":     "workers",
		"rules_file":  "rules-file",
		"policy_file": "policy-file",
	} {
		_ = viper.BindPFlag(key, pf.Lookup(flag))
	}
	setDefaults(viper.GetViper())
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("knowledge-gate")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "knowledge-gate"))
		}
	}

	configureEnv(viper.GetViper())

	err := viper.ReadInConfig()
	switch {
	case err == nil:
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	case cfgFile != "":
		configErr = errors.Wrapf(err, "reading config file %s", cfgFile)
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", "./data")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
	v.SetDefault("workers", min(runtime.NumCPU(), maxWorkers))
	v.SetDefault("schema_contract_version", types.DefaultSchemaContractVersion)
	v.SetDefault("policy_file", "")
	v.SetDefault("rules_file", "")
	v.SetDefault("library.dir", "")
	v.SetDefault("library.max_results", 20)
}

// configureEnv maps KNOWLEDGE_GATE_* variables onto config keys. DATA_DIR
// and LOG_LEVEL are still honoured when the prefixed names are unset.
func configureEnv(v *viper.Viper) {
	v.SetEnvPrefix("KNOWLEDGE_GATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("data_dir", "KNOWLEDGE_GATE_DATA_DIR", "DATA_DIR")
	_ = v.BindEnv("log_level", "KNOWLEDGE_GATE_LOG_LEVEL", "LOG_LEVEL")
}

var configValidator = validator.New()

// resolveConfig decodes and validates the pipeline configuration held by v.
func resolveConfig(v *viper.Viper) (types.PipelineConfig, error) {
	var c types.PipelineConfig
	if err := v.Unmarshal(&c); err != nil {
		return types.PipelineConfig{}, errors.Wrap(err, "decoding configuration")
	}
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if err := configValidator.Struct(c); err != nil {
		return types.PipelineConfig{}, errors.WithHint(
			errors.Wrap(err, "invalid configuration"),
			"check knowledge-gate.yaml, KNOWLEDGE_GATE_* variables and command flags")
	}
	return c, nil
}

// newPipeline builds the stage runner for the resolved configuration.
func newPipeline(c types.PipelineConfig, log *zap.SugaredLogger) (*pipeline.Pipeline, error) {
	classifier := issues.Default()
	if c.RulesFile != "" {
		rules, err := issues.LoadRules(c.RulesFile)
		if err != nil {
			return nil, err
		}
		classifier = issues.NewClassifier(rules)
	}
	paths := pipeline.NewPaths(c.DataDir).WithLibraryDir(c.Library.Dir)
	return pipeline.New(paths,
		pipeline.WithWorkers(c.Workers),
		pipeline.WithClassifier(classifier),
		pipeline.WithLogger(log),
	), nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
