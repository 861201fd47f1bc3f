// Command medchat is the entry point for the MedChat medical question
// answering service. It provides a CLI (via Cobra) for one-off questions and
// knowledge-base maintenance, and an HTTP server for interactive use.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/medchat-go/cmd/medchat/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
