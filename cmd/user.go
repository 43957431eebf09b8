/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	"github.com/sfm-market/storefront/internal/credential"
	"github.com/sfm-market/storefront/internal/db"
	"github.com/sfm-market/storefront/internal/services"
	"github.com/sfm-market/storefront/internal/store"
	"github.com/sfm-market/storefront/types"
	"github.com/spf13/cobra"
)

var (
	promoteEmail string
	promoteRole  string
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage storefront accounts",
}

// userPromoteCmd changes an account's role directly in the database. It is
// how the first ADMIN is created.
var userPromoteCmd = &cobra.Command{
	Use:   "promote",
	Short: "Set the role of an existing account",
	RunE: func(cmd *cobra.Command, args []string) error {
		role, ok := types.ParseRole(promoteRole)
		if !ok {
			return fmt.Errorf("unknown role %q", promoteRole)
		}

		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		client := db.NewClient(cfg.Database)
		defer client.Close()
		conn, err := client.DB(cmd.Context())
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}

		hasher, err := credential.NewHasher(cfg.BcryptCost)
		if err != nil {
			return err
		}
		users := services.NewUserService(store.NewUserRepository(conn), hasher, nil, nil, log)
		user, err := users.SetRole(cmd.Context(), promoteEmail, role)
		if err != nil {
			return fmt.Errorf("promote %s: %w", promoteEmail, err)
		}
		log.Info("role updated", "user", user.ID, "email", user.Email, "role", user.Role)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userPromoteCmd)

	userPromoteCmd.Flags().StringVar(&promoteEmail, "email", "", "email of the account to change")
	userPromoteCmd.Flags().StringVar(&promoteRole, "role", "", "new role: USER, SELLER or ADMIN")
	_ = userPromoteCmd.MarkFlagRequired("email")
	_ = userPromoteCmd.MarkFlagRequired("role")
}
