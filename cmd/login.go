package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newLoginCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with a one-time code sent to your phone",
	}

	cmd.AddCommand(newLoginRequestCmd(app), newLoginVerifyCmd(app))

	return cmd
}

func newLoginRequestCmd(app *app) *cobra.Command {
	var name, phone string

	cmd := &cobra.Command{
		Use:   "request",
		Short: "Send a one-time code to a phone number",
		RunE: func(cmd *cobra.Command, _ []string) error {
			err := runWithSpinner(cmd.Context(), cmd.ErrOrStderr(), "Requesting one-time code...", func(ctx context.Context) error {
				return app.otp.RequestOTP(ctx, name, phone)
			})
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Code sent to %s. Finish with: vayu login verify --phone %s --otp <code>\n", phone, phone)
			return err
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Your display name")
	cmd.Flags().StringVar(&phone, "phone", "", "Phone number in international format")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("phone")

	return cmd
}

func newLoginVerifyCmd(app *app) *cobra.Command {
	var phone, otp string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Exchange the one-time code for a session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			result, err := app.otp.VerifyOTP(cmd.Context(), phone, otp)
			if err != nil {
				return err
			}

			app.currentSession(cmd.Context())
			if err := app.session.SignIn(cmd.Context(), result.Token, result.User); err != nil {
				return err
			}

			session := app.session.Session()
			if !session.Authenticated() {
				return fmt.Errorf("sign in: server issued an already expired token")
			}

			who := session.User().DisplayName()
			if who == "" {
				who = phone
			}

			out := cmd.OutOrStdout()
			if _, err := fmt.Fprintf(out, "Signed in as %s\n", who); err != nil {
				return err
			}
			if exp := session.ExpiresAt(); exp != nil {
				_, err = fmt.Fprintf(out, "Session expires at %s\n", exp.Local().Format(time.RFC1123))
			}
			return err
		},
	}

	cmd.Flags().StringVar(&phone, "phone", "", "Phone number the code was sent to")
	cmd.Flags().StringVar(&otp, "otp", "", "One-time code")
	_ = cmd.MarkFlagRequired("phone")
	_ = cmd.MarkFlagRequired("otp")

	return cmd
}

func newLogoutCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and remove the stored session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !app.currentSession(cmd.Context()).Authenticated() {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "Not signed in.")
				return err
			}

			if err := app.session.SignOut(cmd.Context()); err != nil {
				return fmt.Errorf("sign out: %w", err)
			}

			_, err := fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
			return err
		},
	}
}
