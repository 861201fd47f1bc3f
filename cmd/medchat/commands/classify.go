package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/medchat-go/internal/intent"
)

// NewClassifyCmd constructs the `medchat classify` command, which prints the
// intent a question would be routed to without calling any model.
func NewClassifyCmd() *cobra.Command {
	var reply bool

	cmd := &cobra.Command{
		Use:   "classify [question]",
		Short: "Print the intent a question is routed to",
		Long: `Classify a question with the intent vocabulary and print the result.

No model or knowledge base is touched, so this is a quick way to check a
custom INTENT_VOCABULARY file.

Examples:
  medchat classify "hi there"
  medchat classify --reply "thanks a lot"
  INTENT_VOCABULARY=./vocab.yaml medchat classify "what is gout?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			classifier, err := buildClassifier()
			if err != nil {
				return fmt.Errorf("classify: %w", err)
			}

			got := classifier.Classify(strings.Join(args, " "))
			fmt.Fprintln(cmd.OutOrStdout(), got)
			if reply && intent.IsStatic(got) {
				fmt.Fprintln(cmd.OutOrStdout(), intent.StaticResponse(got))
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&reply, "reply", "r", false, "Also print the fixed reply for non-medical intents")

	return cmd
}
