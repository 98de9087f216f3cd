package main

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/MahdiBaghbani/labrouter-go/internal/components/labform"
	"github.com/MahdiBaghbani/labrouter-go/internal/components/tui"
	"github.com/MahdiBaghbani/labrouter-go/internal/components/ui"
	httpclient "github.com/MahdiBaghbani/labrouter-go/internal/platform/http/client"
)

func newFormCmd() *cobra.Command {
	var opts clientOptions
	cmd := &cobra.Command{
		Use:   "form",
		Short: "Open the lab router form in the terminal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			r := labform.NewClient(opts.url, httpclient.NewTrusted())
			m := tui.New(cmd.Context(), r, ui.DefaultTitle, opts.resolveToken())
			_, err := tea.NewProgram(m,
				tea.WithContext(cmd.Context()),
				tea.WithInput(cmd.InOrStdin()),
				tea.WithOutput(cmd.OutOrStdout()),
			).Run()
			return err
		},
	}
	addClientFlags(cmd, &opts)
	return cmd
}
