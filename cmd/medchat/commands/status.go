package commands

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/54b3r/medchat-go/internal/logging"
	"github.com/54b3r/medchat-go/internal/pipeline"
	"github.com/54b3r/medchat-go/internal/provider"
	"github.com/54b3r/medchat-go/internal/rag"
	"github.com/54b3r/medchat-go/internal/server"
)

// statusReport is the JSON printed by `medchat status`.
type statusReport struct {
	RAG      rag.Status          `json:"rag"`
	Settings pipeline.Settings   `json:"settings"`
	Provider string              `json:"provider"`
	Model    string              `json:"model"`
	Probes   *server.ReadyReport `json:"probes,omitempty"`
}

// NewStatusCmd constructs the `medchat status` command, which prints the
// knowledge-base state and effective settings, optionally probing every
// dependency the server would check for readiness.
func NewStatusCmd() *cobra.Command {
	var probe bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show knowledge-base status and effective settings",
		Long: `Load the persisted knowledge base and print its status together with
the effective retrieval settings and model selection as JSON.

With --probe the chat model endpoint, Qdrant (when RAG_BACKEND=qdrant) and
the index are checked the same way GET /api/ready checks them, and the
command exits non-zero when any of them fails.

Examples:
  medchat status
  medchat status --probe`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			pcfg := provider.ConfigFromEnv()
			report := statusReport{
				Settings: pipeline.SettingsFromEnv(),
				Provider: string(pcfg.Backend),
				Model:    pcfg.ModelName(),
			}

			kb, err := buildKnowledgeBase(log)
			if err != nil {
				return fmt.Errorf("status: %w", err)
			}
			defer kb.close()
			if _, err := kb.manager.Load(ctx); err != nil {
				log.Warn("status: persisted index is unreadable", slog.Any("error", err))
			}
			report.RAG = kb.manager.Status()

			if probe {
				chatModel, err := provider.New(ctx, pcfg)
				if err != nil {
					return fmt.Errorf("status: %w", err)
				}
				pingers := buildPingers(&service{model: chatModel, provider: pcfg, kb: kb})
				checks := server.NewMultiPinger(pingers...).Check(ctx)
				report.Probes = &checks
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return fmt.Errorf("status: %w", err)
			}
			if report.Probes != nil && !report.Probes.Ready {
				return fmt.Errorf("status: one or more dependencies are not ready")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&probe, "probe", false, "Also check the model endpoint, Qdrant and the index")

	return cmd
}
