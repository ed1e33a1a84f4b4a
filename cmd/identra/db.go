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

	"github.com/identra/identra/internal/store/postgres"
)

var dbForce bool

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the database schema",
}

var dbCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Apply the schema",
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

		if err := db.Migrate(cmd.Context(), postgres.InitialSchema); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}

		fmt.Println("Schema applied.")
		return nil
	},
}

var dbDropCmd = &cobra.Command{
	Use:   "drop",
	Short: "Drop all tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !dbForce {
			return fmt.Errorf("refusing to drop schema without --force")
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		db, err := openDatabase(cmd.Context(), cfg)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()

		if err := db.Migrate(cmd.Context(), postgres.DropSchema); err != nil {
			return fmt.Errorf("failed to drop schema: %w", err)
		}

		fmt.Println("Schema dropped.")
		return nil
	},
}

func init() {
	dbDropCmd.Flags().BoolVar(&dbForce, "force", false, "confirm dropping all tables")
	dbCmd.AddCommand(dbCreateCmd)
	dbCmd.AddCommand(dbDropCmd)
}
