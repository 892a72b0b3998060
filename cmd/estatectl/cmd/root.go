// Package cmd implements the estatectl command tree.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/pilab-dev/estate-auth/config"
	"github.com/spf13/cobra"
)

// AppName is the binary name.
const AppName = "estatectl"

// errReported marks a failure the user was already told about through a
// notification. Execute exits non-zero without printing it again.
var errReported = errors.New("already reported")

type appKey struct{}

func appFrom(cmd *cobra.Command) *app {
	return cmd.Context().Value(appKey{}).(*app)
}

func newRootCmd(in io.Reader, out, errOut io.Writer) *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:           AppName,
		Short:         "estatectl signs you in to the Estate API from the terminal",
		Long:          `A command-line client for the Estate authentication API: password and Google sign-in, registration, session inspection and logout.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgFile)
			if err != nil {
				return err
			}
			if p, _ := cmd.Flags().GetString("profile"); p != "" {
				cfg.Profile = p
			}

			a, err := newApp(cmd.Context(), cfg, out, errOut)
			if err != nil {
				return err
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey{}, a))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a, ok := cmd.Context().Value(appKey{}).(*app); ok {
				a.close(cmd.Context())
			}
		},
	}

	rootCmd.SetIn(in)
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		fmt.Sprintf("config file (default is $HOME/.%s/config.yaml)", "estate-auth"))
	rootCmd.PersistentFlags().String("profile", "", "state profile to use (overrides PROFILE)")

	rootCmd.AddCommand(newAuthCmd())
	return rootCmd
}

// Execute runs the CLI and returns the process exit code.
func Execute(ctx context.Context) int {
	return run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
}

func run(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer) int {
	rootCmd := newRootCmd(in, out, errOut)
	rootCmd.SetArgs(args)

	executed, err := rootCmd.ExecuteContextC(ctx)
	if err == nil {
		return 0
	}
	// PersistentPostRun does not run when the command fails.
	if executed != nil && executed.Context() != nil {
		if a, ok := executed.Context().Value(appKey{}).(*app); ok {
			a.close(ctx)
		}
	}
	if !errors.Is(err, errReported) {
		fmt.Fprintln(errOut, "Error:", err)
	}
	return 1
}
