package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/target/bizdesk/internal/service"
)

func (a *app) registerCmd() *cobra.Command {
	var (
		in            service.RegisterInput
		passwordStdin bool
	)
	cmd := &cobra.Command{
		Use:         "register",
		Short:       "Create an account",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationView: "/register"},
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			password, err := newLineReader(cmd, passwordStdin).secret("Password: ")
			if err != nil {
				return err
			}
			in.Password = password
			msg, err := a.stack.Session.Register(cmd.Context(), in)
			if err != nil {
				return err
			}
			if msg == "" {
				msg = "Account created. Sign in with `bizdesk login`."
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), msg)
			return err
		}),
	}
	cmd.Flags().StringVar(&in.Email, "email", "", "Account email")
	cmd.Flags().StringVar(&in.Name, "name", "", "Display name")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Read the password from stdin without prompting")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (a *app) profileCmd() *cobra.Command {
	var name, email string
	cmd := &cobra.Command{
		Use:         "profile",
		Short:       "Update the signed-in user's name or email",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationView: "/profile"},
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			var upd service.ProfileUpdate
			if cmd.Flags().Changed("name") {
				upd.Name = &name
			}
			if cmd.Flags().Changed("email") {
				upd.Email = &email
			}
			if upd.Name == nil && upd.Email == nil {
				return errors.New("nothing to update: pass --name and/or --email")
			}

			ctx := cmd.Context()
			if err := a.stack.Session.CheckAuth(ctx, false); err != nil {
				return err
			}
			if !a.stack.Session.State().IsAuthenticated {
				return errNotSignedIn
			}
			id, err := a.stack.Session.UpdateProfile(ctx, upd)
			if err != nil {
				return err
			}
			return writeIdentity(cmd.OutOrStdout(), id, "table")
		}),
	}
	cmd.Flags().StringVar(&name, "name", "", "New display name")
	cmd.Flags().StringVar(&email, "email", "", "New email")
	return cmd
}

func (a *app) changePasswordCmd() *cobra.Command {
	var quiet bool
	cmd := &cobra.Command{
		Use:         "change-password",
		Short:       "Change the signed-in user's password",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationView: "/profile"},
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			lines := newLineReader(cmd, quiet)
			current, err := lines.secret("Current password: ")
			if err != nil {
				return err
			}
			next, err := lines.secret("New password: ")
			if err != nil {
				return err
			}
			if err := a.stack.Session.ChangePassword(cmd.Context(), current, next); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "Password changed.")
			return err
		}),
	}
	cmd.Flags().BoolVar(&quiet, "password-stdin", false, "Read current and new password from stdin, one per line")
	return cmd
}

func (a *app) forgotPasswordCmd() *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:         "forgot-password",
		Short:       "Request a password reset email",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationView: "/forgot-password"},
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			if err := a.stack.Session.ForgotPassword(cmd.Context(), email); err != nil {
				return err
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "If the account exists, a reset link is on its way.")
			return err
		}),
	}
	cmd.Flags().StringVar(&email, "email", "", "Account email")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (a *app) resetPasswordCmd() *cobra.Command {
	var (
		token         string
		passwordStdin bool
	)
	cmd := &cobra.Command{
		Use:         "reset-password",
		Short:       "Set a new password with a reset token",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationView: "/reset-password"},
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			password, err := newLineReader(cmd, passwordStdin).secret("New password: ")
			if err != nil {
				return err
			}
			if err := a.stack.Session.ResetPassword(cmd.Context(), token, password); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "Password reset. Sign in with `bizdesk login`.")
			return err
		}),
	}
	cmd.Flags().StringVar(&token, "token", "", "Reset token from the email")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Read the password from stdin without prompting")
	_ = cmd.MarkFlagRequired("token")
	return cmd
}
