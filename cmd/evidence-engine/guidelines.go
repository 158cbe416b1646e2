// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pdiddy/evidence-engine/internal/guidelines"
)

var guidelinesCmd = &cobra.Command{
	Use:   "guidelines",
	Short: "Manage the local clinical guideline index",
	Long: `Guidelines manages the SQLite FTS5 index behind the guidelines source.
Documents are Markdown files with YAML front matter, or YAML files, placed
in the configured docs directory.`,
}

var guidelinesIngestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Index guideline documents from the docs directory",
	Long: `Ingest parses every .md, .yaml, and .yml file in the guideline docs
directory, splits it into heading-scoped chunks, and indexes them.
Unchanged files are skipped on subsequent runs.`,
	RunE: runGuidelinesIngest,
}

var guidelinesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List indexed guideline documents",
	RunE:  runGuidelinesList,
}

func init() {
	guidelinesListCmd.Flags().Bool("json", false, "output as JSON")

	guidelinesCmd.AddCommand(guidelinesIngestCmd)
	guidelinesCmd.AddCommand(guidelinesListCmd)
	rootCmd.AddCommand(guidelinesCmd)
}

func runGuidelinesIngest(cmd *cobra.Command, args []string) error {
	store, err := guidelines.NewStore(appConfig.Guidelines)
	if err != nil {
		return err
	}
	defer store.Close()

	summary, err := store.Ingest(context.Background(), cmd.OutOrStdout())
	if err != nil {
		return err
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d document(s) failed indexing", summary.Failed)
	}
	return nil
}

func runGuidelinesList(cmd *cobra.Command, args []string) error {
	store, err := guidelines.NewStore(appConfig.Guidelines)
	if err != nil {
		return err
	}
	defer store.Close()

	docs, err := store.Documents(context.Background())
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(docs)
	}
	if len(docs) == 0 {
		fmt.Fprintf(w, "No guidelines indexed. Add documents to %s and run 'guidelines ingest'.\n", store.DocsDir())
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tORGANIZATION\tPUBLISHED\tCHUNKS")
	for _, d := range docs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", d.ID, d.Title, d.Organization, d.Published, d.Chunks)
	}
	return tw.Flush()
}
