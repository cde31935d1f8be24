package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	loginEmail   string
	loginIDToken string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Exchange an identity token for a session",
	Long: `Exchange an identity provider token for a backend session token.
The session is persisted locally and reused by subsequent commands
until it expires or the backend rejects it.`,
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Clear the local session",
	Long: `Clear the local session and the completed-submission log. The next
submission after a logout starts from a clean slate.`,
	RunE: runLogout,
}

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)

	loginCmd.Flags().StringVar(&loginEmail, "email", "", "account email")
	loginCmd.Flags().StringVar(&loginIDToken, "id-token", "",
		"identity provider token to exchange")
}

func runLogin(cmd *cobra.Command, args []string) error {
	if loginEmail == "" || loginIDToken == "" {
		return fmt.Errorf("--email and --id-token are required")
	}

	ctx := cmd.Context()

	a, cleanup, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	result, err := a.backend.Login(ctx, loginEmail, loginIDToken)
	if err != nil {
		return fmt.Errorf("logging in: %w", err)
	}

	if !result.Success {
		if result.Message != "" {
			return fmt.Errorf("login rejected: %s", result.Message)
		}

		return fmt.Errorf("login rejected")
	}

	if result.Token == "" || result.TokenExpiry <= 0 {
		return fmt.Errorf("login response is missing a token or expiry")
	}

	expiry := time.UnixMilli(result.TokenExpiry)

	if err := a.sessions.Establish(
		ctx, result.Token, expiry, result.Role, result.Email,
	); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}

	log.WithField("email", result.Email).
		WithField("role", result.Role).
		WithField("expires", expiry.Format(time.RFC3339)).
		Info("Logged in")

	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, cleanup, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if !a.sessions.Authenticated() {
		log.Info("Not logged in")

		return nil
	}

	a.sessions.ForceLogout(ctx)

	log.Info("Logged out")

	return nil
}
