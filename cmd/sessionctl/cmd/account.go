package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/sessionkit/pkg/authsdk"
)

var registerForm authsdk.Registration

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		reg := registerForm
		if reg.Email == "" || reg.Password == "" {
			if err := promptRegistration(&reg); err != nil {
				return err
			}
		}
		if reg.ConfirmPassword == "" {
			reg.ConfirmPassword = reg.Password
		}
		return runRegister(ctx, application.Client, cmd.OutOrStdout(), reg)
	},
}

var verifyEmailCmd = &cobra.Command{
	Use:   "verify-email <token>",
	Short: "Confirm an email address with the token from the verification mail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		reply, err := application.Client.VerifyEmail(ctx, args[0])
		if err != nil {
			return describe(err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), orDefault(reply.Success, "Email verified."))
		return nil
	},
}

var forgotPasswordCmd = &cobra.Command{
	Use:   "forgot-password <email>",
	Short: "Request a password reset mail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		reply, err := application.Client.ForgotPassword(ctx, args[0])
		if err != nil {
			return describe(err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), orDefault(reply.Success, "Check your mail for a reset link."))
		return nil
	},
}

func init() {
	registerCmd.Flags().StringVar(&registerForm.Name, "name", "", "Display name")
	registerCmd.Flags().StringVar(&registerForm.Username, "username", "", "Username")
	registerCmd.Flags().StringVar(&registerForm.Email, "email", "", "Email address")
	registerCmd.Flags().StringVar(&registerForm.Password, "password", "", "Password (prompted for when omitted)")
	rootCmd.AddCommand(registerCmd, verifyEmailCmd, forgotPasswordCmd)
}

func promptRegistration(reg *authsdk.Registration) error {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Email").Value(&reg.Email),
			huh.NewInput().Title("Username").Description("Optional").Value(&reg.Username),
			huh.NewInput().Title("Password").EchoMode(huh.EchoModePassword).Value(&reg.Password),
			huh.NewInput().Title("Confirm password").EchoMode(huh.EchoModePassword).Value(&reg.ConfirmPassword),
		),
	).Run()
}

func runRegister(ctx context.Context, c *authsdk.Client, w io.Writer, reg authsdk.Registration) error {
	res, err := c.Register(ctx, reg)
	if err != nil {
		return describe(err)
	}
	if res.Session != nil {
		fmt.Fprintf(w, "Account created. Signed in as %s.\n", res.Session.UserID)
		return nil
	}
	fmt.Fprintln(w, orDefault(res.Success, "Account created."))
	return nil
}
