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
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/identra/identra/internal/oauth2"
)

// TokenRepository implements oauth2.TokenRepository
type TokenRepository struct {
	db *DB
}

// NewTokenRepository creates a new token repository
func NewTokenRepository(db *DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// Create persists an issued token pair
func (r *TokenRepository) Create(ctx context.Context, token *oauth2.Token) error {
	var refreshToken sql.NullString
	if token.RefreshToken != "" {
		refreshToken = sql.NullString{String: token.RefreshToken, Valid: true}
	}

	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO tokens (
			id, user_id, client_id, access_token, token_type,
			expires_at, scopes, refresh_token, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		token.ID, token.UserID, token.ClientID, token.AccessToken, token.TokenType,
		token.ExpiresAt, token.Scopes, refreshToken, token.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create token: %w", err)
	}
	return nil
}

// GetByAccessToken retrieves a token by its access token string
func (r *TokenRepository) GetByAccessToken(ctx context.Context, accessToken string) (*oauth2.Token, error) {
	return r.getOne(ctx, "access_token = $1", accessToken)
}

// GetByRefreshToken retrieves a token by its refresh token string
func (r *TokenRepository) GetByRefreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, nil
	}
	return r.getOne(ctx, "refresh_token = $1", refreshToken)
}

func (r *TokenRepository) getOne(ctx context.Context, where string, arg any) (*oauth2.Token, error) {
	var token oauth2.Token
	var refreshToken sql.NullString

	err := r.db.pool.QueryRow(ctx, `
		SELECT id, user_id, client_id, access_token, token_type,
		       expires_at, scopes, refresh_token, created_at
		FROM tokens
		WHERE `+where,
		arg,
	).Scan(
		&token.ID, &token.UserID, &token.ClientID, &token.AccessToken, &token.TokenType,
		&token.ExpiresAt, &token.Scopes, &refreshToken, &token.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get token: %w", err)
	}

	if refreshToken.Valid {
		token.RefreshToken = refreshToken.String
	}
	return &token, nil
}

// Revoke deletes the token row. The conditional delete makes concurrent
// rotation safe: exactly one caller observes a deleted row.
func (r *TokenRepository) Revoke(ctx context.Context, id string) (bool, error) {
	result, err := r.db.pool.Exec(ctx, `
		DELETE FROM tokens WHERE id = $1
	`, id)
	if err != nil {
		return false, fmt.Errorf("failed to revoke token: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// DeleteExpired deletes all expired tokens, returning the count
func (r *TokenRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.pool.Exec(ctx, `
		DELETE FROM tokens WHERE expires_at < $1
	`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired tokens: %w", err)
	}
	return result.RowsAffected(), nil
}
