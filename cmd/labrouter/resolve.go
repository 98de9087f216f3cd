package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/MahdiBaghbani/labrouter-go/internal/components/labform"
	httpclient "github.com/MahdiBaghbani/labrouter-go/internal/platform/http/client"
)

const defaultBackendURL = "http://localhost:8000"

type clientOptions struct {
	url     string
	token   string
	timeout time.Duration
}

func addClientFlags(cmd *cobra.Command, o *clientOptions) {
	cmd.Flags().StringVar(&o.url, "url", defaultBackendURL, "Lab router base URL, including any path prefix")
	cmd.Flags().StringVar(&o.token, "token", "", "API token (defaults to $ROUTER_API_KEY)")
	cmd.Flags().DurationVar(&o.timeout, "timeout", 60*time.Second, "Request timeout")
}

func (o clientOptions) resolveToken() string {
	if o.token != "" {
		return o.token
	}
	return os.Getenv("ROUTER_API_KEY")
}

func newResolveCmd() *cobra.Command {
	var (
		opts   clientOptions
		prompt string
	)
	cmd := &cobra.Command{
		Use:   "resolve [prompt]",
		Short: "Submit one prompt and print the invite link",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				prompt = args[0]
			}
			r := labform.NewClient(opts.url, httpclient.NewTrusted())
			return runResolve(cmd.Context(), r, opts.resolveToken(), prompt, opts.timeout,
				cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	addClientFlags(cmd, &opts)
	cmd.Flags().StringVar(&prompt, "prompt", "", "What you want to learn")
	return cmd
}

// runResolve drives a form through one submission. The invite link goes to
// out; a failure message goes to errOut and the command exits non-zero.
func runResolve(ctx context.Context, r labform.Resolver, token, prompt string, timeout time.Duration, out, errOut io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	form := labform.NewForm(r, nil)
	form.Dispatch(labform.TokenChanged{Value: token})
	form.Dispatch(labform.PromptChanged{Value: prompt})
	st := form.Submit(ctx)

	if st.Phase() == labform.PhaseSuccess {
		fmt.Fprintln(out, st.Result.InviteURL)
		return nil
	}
	fmt.Fprintln(errOut, st.Error)
	return errReported
}
