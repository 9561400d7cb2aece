package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/sessionkit/internal/app"
	"github.com/aussiebroadwan/sessionkit/internal/callback"
	"github.com/aussiebroadwan/sessionkit/pkg/popup"
)

var accessToken string

var socialCmd = &cobra.Command{
	Use:   "social <provider>",
	Short: "Sign in through an external provider",
	Long: `Sign in through an external provider. The provider's login page opens in the
browser and the auth service redirects back to a local callback server once
it is done. With --access-token an already obtained provider token is
exchanged directly.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		provider := args[0]
		w := cmd.OutOrStdout()
		if accessToken != "" {
			res, err := application.Client.TokenSocialAuth(ctx, provider, accessToken)
			if err != nil {
				return describe(err)
			}
			if res.Session == nil {
				fmt.Fprintln(w, orDefault(res.Success, "Done."))
				return nil
			}
			fmt.Fprintf(w, "Signed in as %s.\n", res.Session.UserID)
			return nil
		}

		return withCallback(ctx, application, w, func(ctx context.Context) (popup.Result, error) {
			return application.Client.SocialAuth(ctx, provider)
		})
	},
}

var linkCmd = &cobra.Command{
	Use:   "link <provider>",
	Short: "Link an external provider to the account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		provider := args[0]
		w := cmd.OutOrStdout()
		if accessToken != "" {
			reply, err := application.Client.TokenLink(ctx, provider, accessToken)
			if err != nil {
				return describe(err)
			}
			fmt.Fprintln(w, orDefault(reply.Success, popup.LinkedMessage(provider)))
			return nil
		}

		return withCallback(ctx, application, w, func(ctx context.Context) (popup.Result, error) {
			return application.Client.Link(ctx, provider)
		})
	},
}

var unlinkCmd = &cobra.Command{
	Use:   "unlink <provider>",
	Short: "Remove an external provider from the account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		reply, err := application.Client.Unlink(ctx, args[0])
		if err != nil {
			return describe(err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), orDefault(reply.Success, popup.Capitalize(args[0])+" unlinked."))
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{socialCmd, linkCmd} {
		c.Flags().StringVar(&accessToken, "access-token", "", "Provider access token to use instead of the browser")
	}
	rootCmd.AddCommand(socialCmd, linkCmd, unlinkCmd)
}

// withCallback serves popup completions on the configured loopback address
// while flow runs.
func withCallback(ctx context.Context, a *app.Application, w io.Writer, flow func(context.Context) (popup.Result, error)) error {
	srv, err := callback.Listen(a.Config.CallbackAddr, a.Coordinator, a.Logger, app.BuildVersion)
	if err != nil {
		return err
	}
	defer func() {
		if err := srv.Shutdown(context.WithoutCancel(ctx)); err != nil {
			a.Logger.Warn("callback server shutdown failed", "error", err)
		}
	}()

	fmt.Fprintf(w, "Complete the sign in in your browser. Waiting on %s ...\n", srv.URL())
	res, err := flow(ctx)
	if err != nil {
		return describe(err)
	}

	switch {
	case res.Session != nil:
		fmt.Fprintf(w, "Signed in as %s.\n", res.Session.UserID)
	default:
		fmt.Fprintln(w, res.Message)
	}
	return nil
}
