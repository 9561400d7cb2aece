package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/sessionkit/pkg/authsdk"
)

var (
	loginUsername string
	loginPassword string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with a username and password",
	Long: `Sign in with a username (or email) and password. Missing credentials are
prompted for; the password may also be given in SESSIONKIT_PASSWORD.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		creds := authsdk.Credentials{Username: loginUsername, Password: loginPassword}
		if creds.Password == "" {
			creds.Password = os.Getenv("SESSIONKIT_PASSWORD")
		}
		if creds.Username == "" || creds.Password == "" {
			if err := promptCredentials(&creds); err != nil {
				return err
			}
		}
		return runLogin(ctx, application.Client, cmd.OutOrStdout(), creds)
	},
}

func init() {
	loginCmd.Flags().StringVarP(&loginUsername, "username", "u", "", "Username or email")
	loginCmd.Flags().StringVarP(&loginPassword, "password", "p", "", "Password (prompted for when omitted)")
	rootCmd.AddCommand(loginCmd)
}

func promptCredentials(creds *authsdk.Credentials) error {
	required := func(field string) func(string) error {
		return func(s string) error {
			if s == "" {
				return errors.New(field + " is required")
			}
			return nil
		}
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Username").
				Value(&creds.Username).
				Validate(required("username")),
			huh.NewInput().
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Value(&creds.Password).
				Validate(required("password")),
		),
	)
	return form.Run()
}

func runLogin(ctx context.Context, c *authsdk.Client, w io.Writer, creds authsdk.Credentials) error {
	sess, err := c.Login(ctx, creds)
	if err != nil {
		return describe(err)
	}
	if jsonOutput {
		return writeJSON(w, statusView(sess, true, c.Store().Clock().Now()))
	}
	fmt.Fprintf(w, "Signed in as %s.\n", sess.UserID)
	return nil
}

// describe prefers the service's own wording for API failures.
func describe(err error) error {
	var apiErr *authsdk.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	msg := apiErr.Message
	if msg == "" {
		msg = apiErr.Code
	}
	for field, problems := range apiErr.Details {
		for _, p := range problems {
			msg += fmt.Sprintf("\n  %s: %s", field, p)
		}
	}
	return errors.New(msg)
}
