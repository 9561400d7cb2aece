package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check whether a username or email is still available",
}

var validateUsernameCmd = &cobra.Command{
	Use:   "username <name>",
	Short: "Check whether a username is available",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		return runValidate(ctx, cmd.OutOrStdout(), "Username", args[0], application.Client.ValidateUsername)
	},
}

var validateEmailCmd = &cobra.Command{
	Use:   "email <address>",
	Short: "Check whether an email address is available",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		return runValidate(ctx, cmd.OutOrStdout(), "Email", args[0], application.Client.ValidateEmail)
	},
}

func init() {
	validateCmd.AddCommand(validateUsernameCmd, validateEmailCmd)
	rootCmd.AddCommand(validateCmd)
}

func runValidate(ctx context.Context, w io.Writer, what, value string, check func(context.Context, string) (bool, error)) error {
	ok, err := check(ctx, value)
	if err != nil {
		return describe(err)
	}
	if jsonOutput {
		return writeJSON(w, map[string]any{"value": value, "available": ok})
	}
	if ok {
		fmt.Fprintf(w, "%s %s is available.\n", what, value)
	} else {
		fmt.Fprintf(w, "%s %s is already in use.\n", what, value)
	}
	return nil
}
