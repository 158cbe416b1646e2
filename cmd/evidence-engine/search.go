// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pdiddy/evidence-engine/internal/query"
	"github.com/pdiddy/evidence-engine/internal/render"
	"github.com/pdiddy/evidence-engine/internal/sufficiency"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

var searchCmd = &cobra.Command{
	Use:   "search [question]",
	Short: "Show the ranked evidence pack for a question without generating",
	Long: `Search runs retrieval, normalization, deduplication, relevance
filtering, reranking, and gap analysis, then prints the ranked evidence pack.
No answer is generated, so no synthesis API key is needed.

Use --sources to override routing for the first round.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().Bool("json", false, "output the pack as JSON")
	searchCmd.Flags().StringSlice("sources", nil, "sources to query first (default: from config and question)")

	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, appConfig, false)
	if err != nil {
		return err
	}
	defer a.Close()

	q := a.pipeline.Analyze(strings.Join(args, " "))
	routing := query.Route(q, appConfig.Retrieval)
	if names, _ := cmd.Flags().GetStringSlice("sources"); len(names) > 0 {
		routing = types.Routing{}
		for _, n := range names {
			s := types.Source(strings.TrimSpace(n))
			if _, ok := a.registry.Get(s); !ok {
				return fmt.Errorf("unknown or unavailable source %q (have %v)", n, a.registry.Names())
			}
			routing[s] = true
		}
	}

	pack, gap, err := a.pipeline.Evidence(ctx, q, routing)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return render.PackJSON(w, pack)
	}
	render.Pack(w, pack)
	fmt.Fprintf(w, "gap: %s (%s)\n", sufficiency.Summary(gap), gap.Recommendation)
	return nil
}
