package commands

import (
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/medchat-go/internal/answer"
	"github.com/54b3r/medchat-go/internal/logging"
	"github.com/54b3r/medchat-go/internal/tracing"
)

// NewAskCmd constructs the `medchat ask` command, which answers a single
// question and prints the reply to stdout.
func NewAskCmd() *cobra.Command {
	var (
		stream  bool
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask MedChat a single question",
		Long: `Ask MedChat a question and print the answer.

The question is routed exactly as it would be by the server: small talk gets
a fixed reply, medical questions are answered by the configured model with
references from the local knowledge base when it is available.

Examples:
  medchat ask "what are the symptoms of type 2 diabetes?"
  medchat ask --stream "how is asthma treated?"
  medchat ask -v "hello"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)
			out := cmd.OutOrStdout()

			if flush, ok := tracing.Enable(); ok {
				defer flush()
			}

			svc, err := buildService(ctx, log, nil)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer svc.close()

			question := strings.Join(args, " ")

			if !stream {
				res, err := svc.pipeline.Handle(ctx, question, nil)
				if err != nil {
					return fmt.Errorf("ask: %w", err)
				}
				if verbose {
					fmt.Fprintf(cmd.ErrOrStderr(), "[%s, context used: %t]\n", res.Intent, res.ContextUsed)
				}
				fmt.Fprintln(out, res.Answer)
				return nil
			}

			res, err := svc.pipeline.HandleStream(ctx, question)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			if verbose {
				fmt.Fprintf(cmd.ErrOrStderr(), "[%s, context used: %t]\n", res.Intent, res.ContextUsed)
			}
			if res.Frames == nil {
				fmt.Fprintln(out, res.Static)
				return nil
			}
			return printStream(out, res.Frames)
		},
	}

	cmd.Flags().BoolVarP(&stream, "stream", "s", false, "Print the answer token by token as it is generated")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print the question type and whether references were used to stderr")

	return cmd
}

// printStream writes tokens as they arrive and returns the stream's error
// frame, if any.
func printStream(w io.Writer, frames iter.Seq[answer.Frame]) error {
	for f := range frames {
		switch {
		case f.Err != nil:
			fmt.Fprintln(w)
			return fmt.Errorf("ask: stream failed: %w", f.Err)
		case f.Done:
			fmt.Fprintln(w)
			return nil
		default:
			fmt.Fprint(w, f.Token)
		}
	}
	return nil
}
