// Package search provides similarity search over the vector store.
package search

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/docfoundry/docfoundry/internal/cmdutil"
	"github.com/docfoundry/docfoundry/internal/config"
	"github.com/docfoundry/docfoundry/internal/vectorstore"
)

var (
	searchTopK      int
	searchThreshold float64
	searchOutput    string
)

// SearchCmd embeds a query and ranks stored document chunks against it.
var SearchCmd = &cobra.Command{
	Use:   "search QUERY",
	Short: "Search ingested documents by semantic similarity",
	Long: "Search ingested documents by semantic similarity.\n\n" +
		"Embeds the query with the configured embedding provider and scores " +
		"every stored record by cosine similarity, returning the best matches. " +
		"The scan is linear over all records.",
	Example: `  # Find the five closest chunks
  docfoundry search "quarterly revenue forecast"

  # Wider net with a score floor
  docfoundry search "onboarding checklist" --top-k 20 --threshold 0.3`,
	Args:    cobra.ExactArgs(1),
	PreRunE: validateSearch,
	RunE:    runSearch,
}

func init() {
	SearchCmd.Flags().IntVar(&searchTopK, "top-k", 5, "Maximum number of results")
	SearchCmd.Flags().Float64Var(&searchThreshold, "threshold", 0.0, "Minimum similarity score")
	SearchCmd.Flags().StringVarP(&searchOutput, "output", "o", "table", "Output format (table|json)")
}

func validateSearch(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	if searchTopK <= 0 {
		return fmt.Errorf("--top-k must be positive")
	}
	if searchOutput != "table" && searchOutput != "json" {
		return fmt.Errorf("invalid output format %q", searchOutput)
	}
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config; %w", err)
	}

	ctx := cmd.Context()

	emb, err := cmdutil.NewEmbedder(cfg)
	if err != nil {
		return err
	}
	if !emb.Available() {
		return fmt.Errorf("embedding provider %q is not available (missing API key?)", cfg.Embedding.Provider)
	}

	store, closeStore, err := cmdutil.OpenVectorStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	defer func() { _ = store.Close() }()

	vectors, err := emb.EmbedBatch(ctx, []string{args[0]})
	if err != nil {
		return fmt.Errorf("failed to embed query; %w", err)
	}
	if len(vectors) != 1 {
		return fmt.Errorf("embedder returned %d vectors for one query", len(vectors))
	}

	results, err := store.SearchSimilar(ctx, vectors[0], searchTopK, searchThreshold)
	if err != nil {
		return fmt.Errorf("search failed; %w", err)
	}

	if searchOutput == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	return printResults(results)
}

func printResults(results []vectorstore.SearchResult) error {
	if len(results) == 0 {
		fmt.Println("No matches.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SCORE\tDOCUMENT\tTITLE\tSNIPPET")
	for _, res := range results {
		title := ""
		snippet := ""
		if len(res.Record.EmbeddedChunks) > 0 {
			chunk := res.Record.EmbeddedChunks[0]
			title = chunk.Title
			snippet = truncate(chunk.Text, 80)
		}
		fmt.Fprintf(w, "%.4f\t%s\t%s\t%s\n", res.Score, res.Record.DocumentID, title, snippet)
	}
	return w.Flush()
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
