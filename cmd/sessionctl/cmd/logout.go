package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/sessionkit/pkg/authsdk"
)

var (
	logoutAll    bool
	logoutOthers bool
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the session",
	Long: `End the session on the server and locally. With --all every session of the
user is ended; with --others every session except this one.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		return runLogout(ctx, application.Client, cmd.OutOrStdout(), logoutAll, logoutOthers)
	},
}

func init() {
	logoutCmd.Flags().BoolVar(&logoutAll, "all", false, "End every session of the user")
	logoutCmd.Flags().BoolVar(&logoutOthers, "others", false, "End every other session of the user")
	logoutCmd.MarkFlagsMutuallyExclusive("all", "others")
	rootCmd.AddCommand(logoutCmd)
}

func runLogout(ctx context.Context, c *authsdk.Client, w io.Writer, all, others bool) error {
	if !c.Store().Authenticated() {
		fmt.Fprintln(w, "Not signed in.")
		return nil
	}

	switch {
	case others:
		reply, err := c.LogoutOthers(ctx)
		if err != nil {
			return describe(err)
		}
		fmt.Fprintln(w, orDefault(reply.Success, "Other sessions ended."))
		return nil
	case all:
		if err := c.LogoutAll(ctx, ""); err != nil {
			fmt.Fprintln(w, "Signed out locally.")
			return describe(err)
		}
	default:
		if err := c.Logout(ctx, ""); err != nil {
			fmt.Fprintln(w, "Signed out locally.")
			return describe(err)
		}
	}
	fmt.Fprintln(w, "Signed out.")
	return nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
