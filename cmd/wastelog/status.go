package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hdjv-envi/wastelog/pkg/session"
)

var statusValidate bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the local session and submission state",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVar(&statusValidate, "validate", false,
		"also validate the session against the backend")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, cleanup, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if !a.sessions.Authenticated() {
		fmt.Println("session:    not logged in")
		fmt.Printf("completed:  %d submissions in the last 24h\n", a.dedup.CompletedCount())

		return nil
	}

	fmt.Printf("session:    %s (%s)\n", a.sessions.Email(), a.sessions.Role())
	fmt.Printf("expires in: %d minutes\n", a.sessions.MinutesRemaining())

	if a.sessions.MinutesRemaining() < int(session.ExpiryWarnThreshold.Minutes()) {
		fmt.Println("warning:    session expires soon, consider re-login")
	}

	fmt.Printf("completed:  %d submissions in the last 24h\n", a.dedup.CompletedCount())
	fmt.Printf("in flight:  %d locks\n", a.dedup.PendingLocks())

	if statusValidate {
		if a.sessions.Validate(ctx) {
			fmt.Println("backend:    token valid")
		} else if !a.sessions.Authenticated() {
			fmt.Println("backend:    token rejected, logged out")
		} else {
			fmt.Println("backend:    unreachable, session kept")
		}
	}

	return nil
}
