package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"modular-auth/internal/auth"
	"modular-auth/internal/domain"
	"modular-auth/internal/repository"
	"modular-auth/internal/service"
)

var initStorageCmd = &cobra.Command{
	Use:   "init-storage",
	Short: "Create or upgrade the user store",
	Long:  `Creates the JSON document or the database tables of the configured backend. Existing data is kept.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		store, err := openBackend(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer store.close()

		if err := store.users.Init(cmd.Context()); err != nil {
			return fmt.Errorf("init %s storage: %w", cfg.Storage.Backend, err)
		}
		if err := ensureGroups(cmd.Context(), store, domain.AdminGroup); err != nil {
			return err
		}
		logger.WithField("backend", cfg.Storage.Backend).Infof("storage ready at %s", store.location)
		return nil
	},
}

var createUserFlags struct {
	Username string
	Name     string
	Email    string
	Password string
	Groups   []string
	Inactive bool
}

var createUserCmd = &cobra.Command{
	Use:   "create-user",
	Short: "Add a user, for example the first administrator",
	Example: `  modauth create-user --username admin --email admin@example.com --group admin
  modauth create-user --username bob --password 's3cret-pass' --group staff --group ops`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		store, err := openBackend(ctx, cfg)
		if err != nil {
			return err
		}
		defer store.close()
		if err := store.users.Init(ctx); err != nil {
			return fmt.Errorf("init %s storage: %w", cfg.Storage.Backend, err)
		}

		password := createUserFlags.Password
		generated := password == ""
		if generated {
			if password, err = auth.RandomToken(12); err != nil {
				return err
			}
		}

		if err := ensureGroups(ctx, store, createUserFlags.Groups...); err != nil {
			return err
		}
		admin := service.NewAdminService(store.users, store.groups, auth.NewArgon2Hasher(), logger)
		user, err := admin.CreateUser(ctx, service.CreateUserInput{
			Username: createUserFlags.Username,
			Name:     createUserFlags.Name,
			Email:    createUserFlags.Email,
			Password: password,
			Active:   !createUserFlags.Inactive,
			Groups:   createUserFlags.Groups,
		}, "cli")
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "created user %s", user.Username)
		if len(user.Groups) > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), " in groups %s", strings.Join(user.Groups, ", "))
		}
		fmt.Fprintln(cmd.OutOrStdout())
		if generated {
			fmt.Fprintf(cmd.OutOrStdout(), "password: %s\n", password)
		}
		return nil
	},
}

// ensureGroups creates missing groups on backends with a group registry.
func ensureGroups(ctx context.Context, store *backend, names ...string) error {
	if !store.registry {
		return nil
	}
	for _, name := range lo.Uniq(lo.Compact(names)) {
		_, err := store.groups.Create(ctx, &domain.Group{Name: name, Active: true, CreatedBy: "cli", UpdatedBy: "cli"})
		if err != nil && !errors.Is(err, repository.ErrConflict) {
			return fmt.Errorf("create group %s: %w", name, err)
		}
	}
	return nil
}

func init() {
	flags := createUserCmd.Flags()
	flags.StringVar(&createUserFlags.Username, "username", "", "Login name")
	flags.StringVar(&createUserFlags.Name, "name", "", "Display name")
	flags.StringVar(&createUserFlags.Email, "email", "", "Email address used for password resets")
	flags.StringVar(&createUserFlags.Password, "password", "", "Password (generated and printed when empty)")
	flags.StringSliceVar(&createUserFlags.Groups, "group", nil, "Permission group, repeatable")
	flags.BoolVar(&createUserFlags.Inactive, "inactive", false, "Create the user disabled")
	_ = createUserCmd.MarkFlagRequired("username")
}
