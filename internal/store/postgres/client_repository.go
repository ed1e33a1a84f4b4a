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

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/identra/identra/internal/oauth2"
)

// ClientRepository implements oauth2.ClientRepository
type ClientRepository struct {
	db *DB
}

// NewClientRepository creates a new client repository
func NewClientRepository(db *DB) *ClientRepository {
	return &ClientRepository{db: db}
}

// Create creates a new OAuth2 client
func (r *ClientRepository) Create(ctx context.Context, client *oauth2.Client) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO clients (
			id, client_name, client_secret_hash, redirect_uris,
			grant_types, scopes, is_confidential, is_active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		client.ID, client.ClientName, client.ClientSecretHash, client.RedirectURIs,
		client.GrantTypes, client.Scopes, client.IsConfidential, client.IsActive,
		client.CreatedAt, client.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	return nil
}

// GetByID retrieves a client by ID
func (r *ClientRepository) GetByID(ctx context.Context, id string) (*oauth2.Client, error) {
	var client oauth2.Client
	err := r.db.pool.QueryRow(ctx, `
		SELECT id, client_name, client_secret_hash, redirect_uris,
		       grant_types, scopes, is_confidential, is_active, created_at, updated_at
		FROM clients
		WHERE id = $1
	`, id).Scan(
		&client.ID, &client.ClientName, &client.ClientSecretHash, &client.RedirectURIs,
		&client.GrantTypes, &client.Scopes, &client.IsConfidential, &client.IsActive,
		&client.CreatedAt, &client.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	return &client, nil
}

// Update updates client information
func (r *ClientRepository) Update(ctx context.Context, client *oauth2.Client) error {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE clients
		SET client_name = $2, client_secret_hash = $3, redirect_uris = $4,
		    grant_types = $5, scopes = $6, is_confidential = $7, is_active = $8,
		    updated_at = $9
		WHERE id = $1
	`,
		client.ID, client.ClientName, client.ClientSecretHash, client.RedirectURIs,
		client.GrantTypes, client.Scopes, client.IsConfidential, client.IsActive,
		client.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update client: %w", err)
	}
	if result.RowsAffected() == 0 {
		return oauth2.ErrClientNotFound
	}
	return nil
}
