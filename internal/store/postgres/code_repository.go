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
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/identra/identra/internal/oauth2"
)

// AuthorizationCodeRepository implements oauth2.AuthorizationCodeRepository
type AuthorizationCodeRepository struct {
	db *DB
}

// NewAuthorizationCodeRepository creates a new authorization code repository
func NewAuthorizationCodeRepository(db *DB) *AuthorizationCodeRepository {
	return &AuthorizationCodeRepository{db: db}
}

// Create creates a new authorization code
func (r *AuthorizationCodeRepository) Create(ctx context.Context, code *oauth2.AuthorizationCode) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO authorization_codes (
			id, code, client_id, user_id, redirect_uri, scopes,
			code_challenge, code_challenge_method, state, expires_at, is_used, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		code.ID, code.Code, code.ClientID, code.UserID, code.RedirectURI, code.Scopes,
		code.CodeChallenge, code.CodeChallengeMethod, code.State, code.ExpiresAt,
		code.IsUsed, code.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create authorization code: %w", err)
	}
	return nil
}

// GetByCode retrieves an authorization code by its code string
func (r *AuthorizationCodeRepository) GetByCode(ctx context.Context, codeValue string) (*oauth2.AuthorizationCode, error) {
	var code oauth2.AuthorizationCode
	err := r.db.pool.QueryRow(ctx, `
		SELECT id, code, client_id, user_id, redirect_uri, scopes,
		       code_challenge, code_challenge_method, state, expires_at, is_used, created_at
		FROM authorization_codes
		WHERE code = $1
	`, codeValue).Scan(
		&code.ID, &code.Code, &code.ClientID, &code.UserID, &code.RedirectURI, &code.Scopes,
		&code.CodeChallenge, &code.CodeChallengeMethod, &code.State, &code.ExpiresAt,
		&code.IsUsed, &code.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get authorization code: %w", err)
	}
	return &code, nil
}

// MarkAsUsed flips is_used on an unused code. The WHERE clause closes the
// replay window: only one of several concurrent redemptions updates a row.
func (r *AuthorizationCodeRepository) MarkAsUsed(ctx context.Context, id string) (bool, error) {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE authorization_codes SET is_used = true
		WHERE id = $1 AND is_used = false
	`, id)
	if err != nil {
		return false, fmt.Errorf("failed to mark authorization code as used: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// Delete deletes an authorization code by ID
func (r *AuthorizationCodeRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.pool.Exec(ctx, `
		DELETE FROM authorization_codes WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("failed to delete authorization code: %w", err)
	}
	return nil
}

// DeleteExpired deletes all expired codes, returning the count
func (r *AuthorizationCodeRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.pool.Exec(ctx, `
		DELETE FROM authorization_codes WHERE expires_at < $1
	`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired authorization codes: %w", err)
	}
	return result.RowsAffected(), nil
}
