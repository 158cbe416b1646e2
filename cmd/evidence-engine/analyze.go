// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/evidence-engine/internal/query"
	"github.com/pdiddy/evidence-engine/internal/render"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [question]",
	Short: "Show how a question is parsed and routed",
	Long: `Analyze prints the query analysis for a question: intent, extracted
diseases, drugs and procedures, expanded abbreviations, complexity, search
variants, and the sources the first retrieval round would query. No network
calls are made.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		q := query.NewAnalyzer(nil).Analyze(strings.Join(args, " "))
		routing := query.Route(q, appConfig.Retrieval)

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				Query   any `json:"query"`
				Sources any `json:"sources"`
			}{q, routing.Enabled()})
		}
		render.Analysis(cmd.OutOrStdout(), q, routing)
		return nil
	},
}

func init() {
	analyzeCmd.Flags().Bool("json", false, "output the analysis as JSON")
	rootCmd.AddCommand(analyzeCmd)
}
