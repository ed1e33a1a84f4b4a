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
	"github.com/identra/identra/internal/oauth2"
	"github.com/identra/identra/internal/store/postgres"
)

var (
	clientName         string
	clientRedirectURIs []string
	clientGrantTypes   []string
	clientScopes       []string
	clientPublic       bool
)

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Manage OAuth2 clients",
}

var clientCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Register an OAuth2 client",
	Long: `Register an OAuth2 client.

For confidential clients the generated secret is printed exactly once;
only its hash is stored.`,
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

		clientService := oauth2.NewClientService(
			postgres.NewClientRepository(db),
			newPasswordHasher(cfg),
			audit.NewSlogLogger(),
		)

		client, secret, err := clientService.CreateClient(cmd.Context(), oauth2.CreateClientInput{
			ClientName:   clientName,
			RedirectURIs: clientRedirectURIs,
			GrantTypes:   clientGrantTypes,
			Scopes:       clientScopes,
			Public:       clientPublic,
		})
		if err != nil {
			return err
		}

		fmt.Printf("Created client %q\n", client.ClientName)
		fmt.Printf("  client_id:     %s\n", client.ID)
		if secret != "" {
			fmt.Printf("  client_secret: %s\n", secret)
			fmt.Println("Store the secret now; it cannot be recovered later.")
		}
		return nil
	},
}

func init() {
	clientCreateCmd.Flags().StringVar(&clientName, "name", "", "client name (required)")
	clientCreateCmd.Flags().StringSliceVar(&clientRedirectURIs, "redirect-uri", nil, "allowed redirect URI (repeatable, required)")
	clientCreateCmd.Flags().StringSliceVar(&clientGrantTypes, "grant-type", nil, "allowed grant type (repeatable, required)")
	clientCreateCmd.Flags().StringSliceVar(&clientScopes, "scope", nil, "allowed scope (repeatable)")
	clientCreateCmd.Flags().BoolVar(&clientPublic, "public", false, "register a public client without a secret")
	clientCreateCmd.MarkFlagRequired("name")
	clientCreateCmd.MarkFlagRequired("redirect-uri")
	clientCreateCmd.MarkFlagRequired("grant-type")

	clientCmd.AddCommand(clientCreateCmd)
}
