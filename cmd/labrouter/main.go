// Command labrouter serves the lab router and its form, and drives the form
// from the command line or a terminal view.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// errReported marks failures whose message was already written for the user.
var errReported = errors.New("reported")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts serveOptions

	root := &cobra.Command{
		Use:   "labrouter",
		Short: "Turn a free-text request into an Instruqt lab invite",
		Long: `labrouter maps a prompt to an Instruqt track and mints an invite for it.

Run without a subcommand to start the HTTP service (same as "labrouter serve").`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
	addServeFlags(root, &opts)

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the lab router API and web form",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
	addServeFlags(serve, &opts)

	root.AddCommand(serve, newResolveCmd(), newFormCmd())
	return root
}
