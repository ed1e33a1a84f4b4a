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

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete expired tokens and authorization codes",
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

		tokens, err := postgres.NewTokenRepository(db).DeleteExpired(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to delete expired tokens: %w", err)
		}

		codes, err := postgres.NewAuthorizationCodeRepository(db).DeleteExpired(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to delete expired authorization codes: %w", err)
		}

		fmt.Printf("Deleted %d expired tokens and %d expired authorization codes.\n", tokens, codes)
		return nil
	},
}
