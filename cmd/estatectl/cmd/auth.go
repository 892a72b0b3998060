package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pilab-dev/estate-auth/domain"
	"github.com/pilab-dev/estate-auth/session"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

func newAuthCmd() *cobra.Command {
	authCmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage your Estate session",
	}
	authCmd.AddCommand(
		newLoginCmd(),
		newRegisterCmd(),
		newLogoutCmd(),
		newWhoamiCmd(),
		newGoogleCmd(),
	)
	return authCmd
}

func newLoginCmd() *cobra.Command {
	var username string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with username and password",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			reader := bufio.NewReader(cmd.InOrStdin())

			// No prompting while the form is disabled; the store turns the
			// submission down with the usual notice.
			if a.store.SubmitDisabled(domain.OperationLogin) {
				return resultErr(a.store.Login(cmd.Context(), domain.Credentials{Username: username}))
			}

			if username == "" {
				var err error
				if username, err = prompt(cmd, reader, "Username: "); err != nil {
					return err
				}
			}
			password, err := readPassword(cmd, reader, "Password: ")
			if err != nil {
				return err
			}

			return resultErr(a.store.Login(cmd.Context(), domain.Credentials{Username: username, Password: password}))
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "username (prompted when empty)")
	return cmd
}

func newRegisterCmd() *cobra.Command {
	var reg domain.Registration

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			reader := bufio.NewReader(cmd.InOrStdin())

			if a.store.SubmitDisabled(domain.OperationRegister) {
				return resultErr(a.store.Register(cmd.Context(), reg))
			}

			fields := []struct {
				label string
				value *string
			}{
				{"Username: ", &reg.Username},
				{"Email: ", &reg.Email},
				{"Full name: ", &reg.FullName},
			}
			for _, f := range fields {
				if *f.value != "" {
					continue
				}
				v, err := prompt(cmd, reader, f.label)
				if err != nil {
					return err
				}
				*f.value = v
			}

			password, err := readPassword(cmd, reader, "Password: ")
			if err != nil {
				return err
			}
			confirm, err := readPassword(cmd, reader, "Confirm password: ")
			if err != nil {
				return err
			}
			if password != confirm {
				return errors.New("passwords do not match")
			}
			reg.Password = password

			return resultErr(a.store.Register(cmd.Context(), reg))
		},
	}
	cmd.Flags().StringVarP(&reg.Username, "username", "u", "", "username (prompted when empty)")
	cmd.Flags().StringVar(&reg.Email, "email", "", "email address (prompted when empty)")
	cmd.Flags().StringVar(&reg.FullName, "full-name", "", "full name (prompted when empty)")
	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the local session",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			res := a.store.Logout(cmd.Context())

			// The local session goes away whatever the server said.
			if err := a.jar.Clear(); err != nil {
				a.logger.Warn(cmd.Context(), "failed to clear stored cookies", map[string]interface{}{"error": err.Error()})
			}
			return resultErr(res)
		},
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			res := a.store.FetchCurrent(cmd.Context())
			if !res.OK {
				return errors.New(a.store.Snapshot().LastError)
			}
			if res.Identity == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "Not signed in.")
				return nil
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(res.Identity)
		},
	}
}

func newGoogleCmd() *cobra.Command {
	var (
		noBrowser   bool
		redirectURL string
	)

	cmd := &cobra.Command{
		Use:   "google",
		Short: "Sign in with Google",
		Long: `Sign in with Google in the browser.

On a machine without a browser use --no-browser: open the printed link anywhere,
then pass the address the browser was redirected to with --redirect-url.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			if a.google == nil {
				return errors.New("google sign-in is not configured, set ESTATE_GOOGLE_CLIENT_ID and ESTATE_GOOGLE_CLIENT_SECRET")
			}

			switch {
			case redirectURL != "":
				a.google.SetCallbackURL(redirectURL)
				res := a.store.ResumePendingSignIn(cmd.Context())
				if res.OK && res.Identity == nil {
					return errors.New("no sign-in result in the given address")
				}
				return resultErr(res)

			case noBrowser:
				authURL, err := a.google.BeginRedirect(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Open this link in a browser and sign in:\n\n  %s\n\n", authURL)
				fmt.Fprintf(cmd.OutOrStdout(), "Then run:\n\n  %s auth google --redirect-url '<address you were sent to>'\n", AppName)
				return nil

			default:
				return resultErr(a.store.SignInWithProvider(cmd.Context()))
			}
		},
	}
	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "print a sign-in link instead of waiting for the browser")
	cmd.Flags().StringVar(&redirectURL, "redirect-url", "", "complete a --no-browser sign-in with the address the browser was sent to")
	cmd.MarkFlagsMutuallyExclusive("no-browser", "redirect-url")
	return cmd
}

// resultErr converts a session result into the command error. Failures were
// already shown by the notification relay.
func resultErr(res session.Result) error {
	if res.OK {
		return nil
	}
	return fmt.Errorf("%w: %v", errReported, res.Err)
}

func prompt(cmd *cobra.Command, reader *bufio.Reader, label string) (string, error) {
	fmt.Fprint(cmd.OutOrStdout(), label)
	line, err := reader.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// readPassword reads without echo from a terminal and falls back to a plain
// line read for piped input.
func readPassword(cmd *cobra.Command, reader *bufio.Reader, label string) (string, error) {
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(cmd.OutOrStdout(), label)
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.OutOrStdout())
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(b), nil
	}
	return prompt(cmd, reader, label)
}
