package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vibast-solutions/ms-go-hr-auth/app/entity"
	"github.com/vibast-solutions/ms-go-hr-auth/app/repository"
	"github.com/vibast-solutions/ms-go-hr-auth/app/service"
	"github.com/vibast-solutions/ms-go-hr-auth/config"

	"github.com/spf13/cobra"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Operator actions on user accounts",
}

var accountDeactivateCmd = &cobra.Command{
	Use:   "deactivate <email>",
	Short: "Block future logins and token refreshes for an account",
	Long: `Block future logins and token refreshes for an account.
Access tokens already issued stay valid until they expire.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAccountAction(cmd.Context(), args[0], func(ctx context.Context, svc service.AccountAdminService) (*entity.User, error) {
			return svc.Deactivate(ctx, args[0])
		})
	},
}

var accountReactivateCmd = &cobra.Command{
	Use:   "reactivate <email>",
	Short: "Re-enable a verified account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAccountAction(cmd.Context(), args[0], func(ctx context.Context, svc service.AccountAdminService) (*entity.User, error) {
			return svc.Reactivate(ctx, args[0])
		})
	},
}

var accountSetRoleCmd = &cobra.Command{
	Use:   "set-role <email> <admin|manager|user>",
	Short: "Change an account's role; tokens pick it up on the next refresh",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAccountAction(cmd.Context(), args[0], func(ctx context.Context, svc service.AccountAdminService) (*entity.User, error) {
			return svc.SetRole(ctx, args[0], args[1])
		})
	},
}

func init() {
	accountCmd.AddCommand(accountDeactivateCmd)
	accountCmd.AddCommand(accountReactivateCmd)
	accountCmd.AddCommand(accountSetRoleCmd)
	rootCmd.AddCommand(accountCmd)
}

func runAccountAction(ctx context.Context, email string, action func(context.Context, service.AccountAdminService) (*entity.User, error)) error {
	svc, db, err := newAccountAdminServiceForCommands(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	user, err := action(ctx, svc)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUserNotFound):
			return fmt.Errorf("no account for %q", email)
		case errors.Is(err, service.ErrEmailNotVerified):
			return fmt.Errorf("account %q has not confirmed its email address", email)
		case errors.Is(err, service.ErrUnknownRole):
			return fmt.Errorf("%w (expected admin, manager or user)", err)
		}
		return err
	}

	fmt.Printf("user_id: %d\n", user.ID)
	fmt.Printf("email: %s\n", user.Email)
	fmt.Printf("role: %s\n", user.Role)
	fmt.Printf("is_active: %t\n", user.IsActive)
	fmt.Printf("updated_at: %s\n", user.UpdatedAt.Format(time.RFC3339))
	return nil
}

func newAccountAdminServiceForCommands(ctx context.Context) (service.AccountAdminService, *sql.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if err = configureLogging(cfg); err != nil {
		return nil, nil, err
	}

	db, err := openDB(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	return service.NewAccountAdminService(repository.NewUserRepository(db)), db, nil
}
