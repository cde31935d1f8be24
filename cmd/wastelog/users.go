package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hdjv-envi/wastelog/pkg/backend"
	"github.com/hdjv-envi/wastelog/pkg/session"
)

var usersPendingOnly bool

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Administer registered users (admin only)",
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered users",
	RunE:  runUsersList,
}

var usersApproveCmd = &cobra.Command{
	Use:   "approve <email>",
	Short: "Approve a pending user",
	Args:  cobra.ExactArgs(1),
	RunE: adminAction(func(ctx context.Context, a *app, args []string) error {
		return a.backend.ApproveUser(ctx, args[0])
	}, "User approved"),
}

var usersRejectCmd = &cobra.Command{
	Use:   "reject <email>",
	Short: "Reject a pending user",
	Args:  cobra.ExactArgs(1),
	RunE: adminAction(func(ctx context.Context, a *app, args []string) error {
		return a.backend.RejectUser(ctx, args[0])
	}, "User rejected"),
}

var usersRoleCmd = &cobra.Command{
	Use:   "role <email> <role>",
	Short: "Change a user's role",
	Args:  cobra.ExactArgs(2),
	RunE: adminAction(func(ctx context.Context, a *app, args []string) error {
		return a.backend.UpdateUserRole(ctx, args[0], args[1])
	}, "Role updated"),
}

var usersDeleteCmd = &cobra.Command{
	Use:   "delete <email>",
	Short: "Delete a user",
	Args:  cobra.ExactArgs(1),
	RunE: adminAction(func(ctx context.Context, a *app, args []string) error {
		return a.backend.DeleteUser(ctx, args[0])
	}, "User deleted"),
}

func init() {
	rootCmd.AddCommand(usersCmd)
	usersCmd.AddCommand(usersListCmd)
	usersCmd.AddCommand(usersApproveCmd)
	usersCmd.AddCommand(usersRejectCmd)
	usersCmd.AddCommand(usersRoleCmd)
	usersCmd.AddCommand(usersDeleteCmd)

	usersListCmd.Flags().BoolVar(&usersPendingOnly, "pending", false,
		"only show users awaiting approval")
}

func runUsersList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, cleanup, err := setupAdminApp(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	users, err := a.backend.Users(ctx)
	if err != nil {
		return fmt.Errorf("listing users: %w", err)
	}

	shown := 0

	for _, u := range users {
		if usersPendingOnly && u.Status != backend.StatusPending {
			continue
		}

		fmt.Printf("%-32s %-10s %s\n", u.Email, u.Status, u.Role)

		shown++
	}

	if shown == 0 {
		fmt.Println("no users")
	}

	return nil
}

// adminAction wraps a single backend call with app setup and the admin
// role gate.
func adminAction(
	fn func(ctx context.Context, a *app, args []string) error,
	done string,
) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, cleanup, err := setupAdminApp(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		if err := fn(ctx, a, args); err != nil {
			return err
		}

		log.WithField("email", args[0]).Info(done)

		return nil
	}
}

func setupAdminApp(ctx context.Context) (*app, func(), error) {
	a, cleanup, err := setupApp(ctx)
	if err != nil {
		return nil, nil, err
	}

	if err := a.requireAuth(); err != nil {
		cleanup()

		return nil, nil, err
	}

	if !session.IsAdminRole(a.sessions.Role()) {
		cleanup()

		return nil, nil, fmt.Errorf("admin role required (current role: %s)", a.sessions.Role())
	}

	return a, cleanup, nil
}
