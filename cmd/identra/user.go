// Copyright 2026 The Identra Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/identra/identra/internal/audit"
	"github.com/identra/identra/internal/identity"
	"github.com/identra/identra/internal/store/postgres"
)

var (
	userUsername string
	userEmail    string
	userPassword string
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage user accounts",
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a user account",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		db, err := openDatabase(cmd.Context(), cfg)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()

		identityService := identity.NewService(
			postgres.NewUserRepository(db),
			newPasswordHasher(cfg),
			audit.NewSlogLogger(),
		)

		user, err := identityService.CreateUser(cmd.Context(), userUsername, userEmail, userPassword)
		if err != nil {
			return err
		}

		fmt.Printf("Created user %s (%s)\n", user.Username, user.ID)
		return nil
	},
}

func init() {
	userCreateCmd.Flags().StringVar(&userUsername, "username", "", "username (required)")
	userCreateCmd.Flags().StringVar(&userEmail, "email", "", "email address (required)")
	userCreateCmd.Flags().StringVar(&userPassword, "password", "", "password (required)")
	userCreateCmd.MarkFlagRequired("username")
	userCreateCmd.MarkFlagRequired("email")
	userCreateCmd.MarkFlagRequired("password")

	userCmd.AddCommand(userCreateCmd)
}
