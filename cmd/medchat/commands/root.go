// Package commands defines all Cobra CLI commands for the medchat binary.
package commands

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/54b3r/medchat-go/internal/audit"
	"github.com/54b3r/medchat-go/internal/config"
	"github.com/54b3r/medchat-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// closeLog releases the LOG_FILE handle opened for the running command.
var closeLog = func() {}

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "medchat",
		Short: "MedChat, a medical information assistant with retrieval-augmented answers",
		Long: `MedChat answers general health questions in plain language.

Questions are routed by intent: greetings, thanks and similar small talk get
a fixed reply, and medical questions are answered by an LLM grounded in a
local knowledge base of medical reference text.

Model provider is selected via the MODEL_PROVIDER environment variable
or a YAML config file (~/.medchat/config.yaml).
See 'medchat --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// YAML values become env vars, so they must be applied before
			// the logger reads LOG_LEVEL, LOG_FORMAT and LOG_FILE.
			path, err := config.Load(configPath, slog.Default())
			if err != nil {
				return err
			}

			log, closeFn := logging.New()
			closeLog = closeFn
			slog.SetDefault(log)
			cmd.SetContext(logging.WithLogger(cmd.Context(), log))

			audit.LogCommandStart(log, cmd.Name(), path)
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			closeLog()
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.medchat/config.yaml)")

	root.AddCommand(
		NewServeCmd(),
		NewAskCmd(),
		NewRebuildCmd(),
		NewSearchCmd(),
		NewClassifyCmd(),
		NewStatusCmd(),
		NewVersionCmd(),
	)

	return root
}
