package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/sessionkit/pkg/authsdk"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Renew the session token now",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		return runRefresh(ctx, application.Client, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(refreshCmd)
}

func runRefresh(ctx context.Context, c *authsdk.Client, w io.Writer) error {
	sess, err := c.Refresh(ctx)
	if err != nil {
		return describe(err)
	}
	if jsonOutput {
		return writeJSON(w, statusView(sess, true, c.Store().Clock().Now()))
	}
	fmt.Fprintf(w, "Session renewed until %s.\n", time.UnixMilli(sess.Expires).UTC().Format(time.RFC3339))
	return nil
}
