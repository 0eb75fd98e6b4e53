package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/grasp-labs/ds-keyproxy-go-sdk/keyproxy"
)

const CliName = "keyproxyctl"

// NewRootCommand builds the keyproxyctl command tree.
func NewRootCommand(opts ...Option) *cobra.Command {
	return newRootCommand(newApp(opts...))
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           CliName,
		Short:         "keyproxyctl talks to the KeyProxy customer portal",
		Long:          "keyproxyctl signs in to the KeyProxy portal backend and stores, lists and fetches secrets.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd.Context(), cmd.InOrStdin(), cmd.ErrOrStderr())
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&a.configPath, "config", "", "config file (default $KEYPROXY_CONFIG or ~/.keyproxy/config.yaml)")
	f.StringVar(&a.server, "server", "", "portal backend base URL")
	f.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn or error")

	root.AddCommand(
		newLoginCmd(a),
		newSignupCmd(a),
		newLogoutCmd(a),
		newStatusCmd(a),
		newSecretCmd(a),
		newKMSCmd(a),
	)
	return root
}

// Execute runs the CLI with args and returns the process exit code.
func Execute(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer, opts ...Option) int {
	return execute(ctx, newApp(opts...), args, stdin, stdout, stderr)
}

// execute closes the session store on every path; cobra skips
// PersistentPostRunE when a command fails.
func execute(ctx context.Context, a *app, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cmd := newRootCommand(a)
	cmd.SetArgs(args)
	cmd.SetIn(stdin)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	err := cmd.ExecuteContext(ctx)
	if cerr := a.close(); err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %s\n", keyproxy.UserMessage(err))
		return 1
	}
	return 0
}
