package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/54b3r/medchat-go/internal/audit"
	"github.com/54b3r/medchat-go/internal/ingestion"
	"github.com/54b3r/medchat-go/internal/logging"
	"github.com/54b3r/medchat-go/internal/rag"
)

// NewRebuildCmd constructs the `medchat rebuild` command, which re-embeds
// the knowledge base and publishes a fresh index.
func NewRebuildCmd() *cobra.Command {
	var (
		from    string
		chunker ingestion.Chunker
	)

	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild the knowledge-base index",
		Long: `Embed every chunk of the knowledge base and publish a new index.

Without --from the persisted chunk collection (RAG_DATA_DIR/chunks.json) is
re-embedded, which is what you want after changing EMBEDDING_MODEL. With
--from the chunks are read from a dataset instead:

  *.json               array of {"text": ..., "metadata": {...}} or strings
  *.jsonl, *.ndjson    one such item per line
  *.txt, *.md          split into overlapping windows (--chunk-size, --chunk-overlap)

A directory is walked recursively in lexical order.

Examples:
  medchat rebuild
  medchat rebuild --from ./medical_final_dataset.json
  RAG_BACKEND=qdrant medchat rebuild --from ./docs --chunk-size 800`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			kb, err := buildKnowledgeBase(log)
			if err != nil {
				return fmt.Errorf("rebuild: %w", err)
			}
			defer kb.close()

			var chunks []rag.Chunk
			if from != "" {
				chunks, err = ingestion.Load(ctx, from, &ingestion.Config{
					Chunker: chunker,
					Exclude: persistedFiles(kb),
					Logger:  log,
				})
				if err != nil {
					return fmt.Errorf("rebuild: %w", err)
				}
			}

			if _, err := kb.manager.Rebuild(ctx, chunks); err != nil {
				return fmt.Errorf("rebuild: %w", err)
			}

			st := kb.manager.Status()
			audit.LogRebuild(log, audit.Rebuild{
				Origin:    "cli",
				Source:    from,
				Backend:   st.Backend,
				Chunks:    st.ChunksCount,
				Dimension: st.Dimension,
			})
			fmt.Fprintf(cmd.OutOrStdout(), "rebuilt %s index: %d chunks, dimension %d\n", st.Backend, st.ChunksCount, st.Dimension)
			return nil
		},
	}

	cmd.Flags().StringVarP(&from, "from", "f", "", "Dataset file or directory to ingest instead of the persisted chunks")
	addChunkerFlags(cmd, &chunker)

	return cmd
}

// addChunkerFlags registers the text splitting flags shared by rebuild and
// serve --watch.
func addChunkerFlags(cmd *cobra.Command, c *ingestion.Chunker) {
	cmd.Flags().IntVar(&c.Size, "chunk-size", ingestion.DefaultChunkSize, "Maximum chunk length in characters for text and markdown sources")
	cmd.Flags().IntVar(&c.Overlap, "chunk-overlap", ingestion.DefaultChunkOverlap, "Characters shared by consecutive chunks")
}

// persistedFiles lists the knowledge base's own files so a dataset
// directory that doubles as RAG_DATA_DIR does not ingest them.
func persistedFiles(kb *knowledgeBase) []string {
	return []string{kb.paths.Chunks, kb.paths.Embeddings, kb.paths.Manifest}
}
