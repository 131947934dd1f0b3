package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"anipink/internal/session"
)

func newAuthCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newLoginCommand(ctx),
		newRegisterCommand(ctx),
		newLogoutCommand(ctx),
		newWhoamiCommand(ctx),
	}
}

func newLoginCommand(ctx *commandContext) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to sync your list",
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				var err error
				if password, err = prompt(cmd.InOrStdin(), cmd.OutOrStdout(), "Password: "); err != nil {
					return err
				}
			}
			err := ctx.gate.SignIn(cmd.Context(), session.Credentials{Email: email, Password: password})
			return finishSignIn(cmd, ctx, err)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&password, "password", "", "Account password (prompted when empty)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newRegisterCommand(ctx *commandContext) *cobra.Command {
	var reg session.Registration
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			in, out := bufio.NewReader(cmd.InOrStdin()), cmd.OutOrStdout()
			var err error
			if reg.Password == "" {
				if reg.Password, err = promptLine(in, out, "Password: "); err != nil {
					return err
				}
			}
			if reg.ConfirmPassword == "" {
				if reg.ConfirmPassword, err = promptLine(in, out, "Confirm password: "); err != nil {
					return err
				}
			}
			err = ctx.gate.Register(cmd.Context(), reg)
			return finishSignIn(cmd, ctx, err)
		},
	}
	cmd.Flags().StringVar(&reg.Email, "email", "", "Account email")
	cmd.Flags().StringVar(&reg.Username, "username", "", "Display name (defaults to the email prefix)")
	cmd.Flags().StringVar(&reg.Password, "password", "", "Password, at least 8 characters")
	cmd.Flags().StringVar(&reg.ConfirmPassword, "confirm-password", "", "Repeat the password")
	cmd.Flags().BoolVar(&reg.Consent, "accept-policy", false, "Accept the privacy policy and consent to data processing")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func finishSignIn(cmd *cobra.Command, ctx *commandContext, err error) error {
	if errors.Is(err, session.ErrPendingActivation) || errors.Is(err, session.ErrAccessDenied) {
		return errors.New(ctx.gate.Message())
	}
	if err != nil {
		return err
	}
	user, _ := ctx.gate.User()
	if err := session.SaveToken(ctx.config.TokenPath, user); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✅ signed in as %s\n", displayName(user.Username, user.Email))
	return nil
}

func newLogoutCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and revoke the saved token",
		RunE: func(cmd *cobra.Command, args []string) error {
			saved, ok, err := session.LoadToken(ctx.config.TokenPath)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "not signed in")
				return nil
			}
			if err := ctx.gate.Resume(cmd.Context(), saved); err == nil {
				if err := ctx.gate.SignOut(cmd.Context()); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
				}
			}
			if err := session.ClearToken(ctx.config.TokenPath); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✅ signed out")
			return nil
		},
	}
}

func newWhoamiCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx.resume(cmd.Context(), cmd.ErrOrStderr())
			user, ok := ctx.gate.User()
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "guest (not signed in)")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s <%s> id=%s\n", displayName(user.Username, user.Email), user.Email, user.UserID)
			return nil
		},
	}
}

func displayName(username, email string) string {
	if username != "" {
		return username
	}
	return email
}

func prompt(in io.Reader, out io.Writer, label string) (string, error) {
	return promptLine(bufio.NewReader(in), out, label)
}

func promptLine(r *bufio.Reader, out io.Writer, label string) (string, error) {
	fmt.Fprint(out, label)
	line, err := r.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
