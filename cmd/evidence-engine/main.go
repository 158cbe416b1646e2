// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the evidence-engine CLI.
package main

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/evidence-engine/internal/logging"
	"github.com/pdiddy/evidence-engine/internal/secrets"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// appConfig is the merged configuration, loaded before any subcommand runs.
var appConfig types.Config

// rootCmd is the base command for the evidence-engine CLI.
var rootCmd = &cobra.Command{
	Use:   "evidence-engine",
	Short: "Answer clinical questions from retrieved, cited evidence",
	Long: `evidence-engine answers medical questions from evidence it retrieves at
question time: clinical guidelines, PubMed and Europe PMC literature,
DailyMed drug labels, and optional scholarly and web sources. Candidates are
normalized, deduplicated, filtered, reranked, and checked for sufficiency
before a cited answer is generated and every citation is verified against
the evidence pack.

Subcommands: ask answers a question, search shows the ranked evidence
without generating, analyze shows how a question is parsed and routed,
guidelines manages the local guideline index, and serve exposes the
pipeline over HTTP.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		appConfig = cfg
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (default: ./evidence-engine.yaml or ~/.config/evidence-engine/config.yaml)")
	pf.String("secrets-dir", ".secrets/", "directory of API key files")
	pf.String("log-level", "", "log level: debug, info, warn, error (default info)")
	pf.String("log-format", "", "log format: text or json (default text)")

	viper.BindPFlag("log.level", pf.Lookup("log-level"))
	viper.BindPFlag("log.format", pf.Lookup("log-format"))
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("evidence-engine")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "evidence-engine"))
		}
	}

	viper.SetEnvPrefix("EVIDENCE_ENGINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	// Keys that usually arrive through the environment rather than a file.
	for _, key := range []string{
		"synthesis.api_key", "synthesis.model", "synthesis.endpoint",
		"embedding.api_key", "embedding.model", "embedding.endpoint",
		"rerank.cache_backend", "rerank.redis_addr", "rerank.redis_password",
		"server.addr", "guidelines.dir",
	} {
		viper.BindEnv(key)
	}

	viper.ReadInConfig()
}

// loadConfig merges defaults, the config file, environment, and the secrets
// directory, then configures logging.
func loadConfig(cmd *cobra.Command) (types.Config, error) {
	cfg := types.DefaultConfig()
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, err
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return cfg, err
	}
	logging.Init(level, cfg.Log.Format, cmd.ErrOrStderr())
	log := logging.New("cli")
	if used := viper.ConfigFileUsed(); used != "" {
		log.Info("using config file", "path", used)
	}

	dir, _ := cmd.Flags().GetString("secrets-dir")
	s, err := secrets.Load(dir)
	if err != nil {
		return cfg, err
	}
	if len(s) > 0 {
		keys := make([]string, 0, len(s))
		for k := range s {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		log.Debug("loaded secrets", "keys", keys)
	}
	secrets.Apply(&cfg, s)
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
