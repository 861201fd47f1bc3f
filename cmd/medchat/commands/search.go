package commands

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/54b3r/medchat-go/internal/logging"
	"github.com/54b3r/medchat-go/internal/pipeline"
	"github.com/54b3r/medchat-go/internal/rag"
)

// snippetRunes bounds the chunk text printed per hit.
const snippetRunes = 100

// NewSearchCmd constructs the `medchat search` command, which runs a
// semantic search against the knowledge base and prints the scored hits.
func NewSearchCmd() *cobra.Command {
	var (
		topK      int
		threshold float32
		showCtx   bool
	)

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search the knowledge base",
		Long: `Embed a query and print the nearest knowledge-base chunks with their
similarity scores. Useful for tuning RAG_TOP_K and RAG_SCORE_THRESHOLD.

Examples:
  medchat search "high blood pressure"
  medchat search --top-k 10 --threshold 0 "chest pain"
  medchat search --context "migraine triggers"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)
			out := cmd.OutOrStdout()

			settings := pipeline.SettingsFromEnv()
			if !cmd.Flags().Changed("top-k") {
				topK = settings.TopK
			}
			if !cmd.Flags().Changed("threshold") {
				threshold = settings.ScoreThreshold
			}

			kb, err := buildKnowledgeBase(log)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}
			defer kb.close()

			if _, err := kb.manager.Load(ctx); err != nil {
				return fmt.Errorf("search: %w", err)
			}
			if !kb.manager.Ready() {
				return fmt.Errorf("search: no index found in %s, run 'medchat rebuild --from <dataset>' first", kb.paths.Manifest)
			}

			results := kb.manager.Search(ctx, strings.Join(args, " "), topK, threshold)
			if len(results) == 0 {
				fmt.Fprintln(out, "no results above the score threshold")
				return nil
			}

			if showCtx {
				fmt.Fprintln(out, rag.BuildContext(results, settings.MaxContext))
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "SCORE\tPOS\tTITLE\tTEXT")
			for _, r := range results {
				title, _ := r.Metadata["title"].(string)
				fmt.Fprintf(tw, "%.4f\t%d\t%s\t%s\n", r.Score, r.Position, title, snippet(r.Text))
			}
			return tw.Flush() //nolint:wrapcheck // stdout
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", pipeline.DefaultTopK, "Maximum number of hits (env: RAG_TOP_K)")
	cmd.Flags().Float32VarP(&threshold, "threshold", "t", pipeline.DefaultScoreThreshold, "Minimum similarity score, inclusive (env: RAG_SCORE_THRESHOLD)")
	cmd.Flags().BoolVar(&showCtx, "context", false, "Print the assembled prompt context instead of the hit table")

	return cmd
}

// snippet flattens text onto one line and shortens it for display.
func snippet(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if r := []rune(text); len(r) > snippetRunes {
		return string(r[:snippetRunes]) + "..."
	}
	return text
}
