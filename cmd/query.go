package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var queryCmd = &cobra.Command{
	Use:   "query [question]",
	Short: "Search the knowledge base used for coverage estimates",
	Long:  `Searches the indexed reference documents with a natural language query. Useful to check why an output scored a knowledge gap.`,
	Args:  cobra.MinimumNArgs(1),
	RunE:  runQuery,
}

func init() {
	queryCmd.Flags().Int("limit", 5, "maximum number of results")
	queryCmd.Flags().Bool("json", false, "output results as JSON")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	queryText := strings.Join(args, " ")

	limit, _ := cmd.Flags().GetInt("limit")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.knowledge == nil {
		return errors.New("no knowledge configured: set knowledge.root and run `hitl index`")
	}
	w := cmd.OutOrStdout()
	if a.knowledge.Count() == 0 {
		fmt.Fprintln(w, "Knowledge base is empty. Run `hitl index` first.")
		return nil
	}

	results, err := a.knowledge.Search(ctx, queryText, limit)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	if jsonOutput {
		return printJSON(w, results)
	}
	if len(results) == 0 {
		fmt.Fprintln(w, "No results found.")
		return nil
	}

	for i, r := range results {
		fmt.Fprintf(w, "\n--- Result %d ---\n", i+1)
		fmt.Fprintf(w, "Source: %s (chunk %d)\n", r.Document.Source, r.Document.Chunk)
		fmt.Fprintf(w, "Similarity: %.1f%%\n\n", r.Similarity*100)
		fmt.Fprintln(w, r.Document.Content)
	}
	return nil
}
