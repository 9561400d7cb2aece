package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/sessionkit/internal/app"
)

var (
	baseURL    string
	jsonOutput bool

	// application is built before every command that talks to the auth
	// service and closed after it.
	application *app.Application
)

var rootCmd = &cobra.Command{
	Use:   "sessionctl",
	Short: "Manage a session with a token based auth service",
	Long: `sessionctl signs in to an auth service, keeps the session on disk and
refreshes it before it expires.

Environment Variables:
  SESSIONKIT_BASE_URL         Auth endpoint prefix, e.g. https://auth.example.com/auth/
  SESSIONKIT_STORAGE          local (default) or session
  SESSIONKIT_STORAGE_DRIVER   file (default), sqlite, bbolt or memory
  SESSIONKIT_PROVIDERS        Enabled social providers, comma separated
  SESSIONKIT_CALLBACK_ADDR    Loopback address popups complete on (default: 127.0.0.1:8765)

Values may also be set in a .env file in the working directory.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := app.LoadConfig()
		if baseURL != "" {
			cfg.BaseURL = baseURL
		}

		a, err := app.New(cfg)
		if err != nil {
			return err
		}
		application = a
		application.Navigate()
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if application == nil {
			return nil
		}
		err := application.Close()
		application = nil
		return err
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "Auth endpoint prefix (overrides SESSIONKIT_BASE_URL)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output JSON instead of human-readable text")
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
