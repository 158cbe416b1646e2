// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pdiddy/evidence-engine/internal/pipeline"
	"github.com/pdiddy/evidence-engine/internal/render"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a clinical question with verified citations",
	Long: `Ask retrieves evidence for the question from the routed sources, ranks
it, checks that it covers the question (running one wider fallback search
when it does not), and generates an answer whose citations are verified
against the evidence pack.

The exit status is non-zero when citation verification fails or no usable
evidence was found, unless --allow-unverified is set.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().String("format", "text", "output format: text, json, yaml, or csl")
	askCmd.Flags().String("save", "", "also save the answer to this YAML file")
	askCmd.Flags().Bool("allow-unverified", false, "exit zero even when verification fails")

	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	format, err := render.ParseFormat(flagString(cmd, "format"))
	if err != nil {
		return err
	}
	if err := requireGenerator(appConfig); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, appConfig, false)
	if err != nil {
		return err
	}
	defer a.Close()

	ans, err := a.pipeline.Ask(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}

	if err := render.Answer(cmd.OutOrStdout(), ans, format); err != nil {
		return err
	}
	if path := flagString(cmd, "save"); path != "" {
		if err := render.WriteAnswerFile(path, ans); err != nil {
			return err
		}
	}

	allow, _ := cmd.Flags().GetBool("allow-unverified")
	if ans.Status != types.StatusVerified && !allow {
		return fmt.Errorf("answer not verified: %w", pipeline.Err(ans))
	}
	return nil
}

func flagString(cmd *cobra.Command, name string) string {
	v, _ := cmd.Flags().GetString(name)
	return v
}
