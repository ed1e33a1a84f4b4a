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

package oauth2

import (
	"context"
	"errors"
	"time"
)

// Domain errors (internal, never rendered to clients directly)
var (
	ErrClientNotFound      = errors.New("client not found")
	ErrClientAlreadyExists = errors.New("client already exists")
	ErrTokenNotFound       = errors.New("token not found")
	ErrTokenExpired        = errors.New("token expired")
)

// Grant type identifiers (RFC 6749)
const (
	GrantTypePassword          = "password"
	GrantTypeRefreshToken      = "refresh_token"
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeClientCredentials = "client_credentials"
)

// Client represents an OAuth2 client application
type Client struct {
	ID               string    `json:"id"`
	ClientName       string    `json:"client_name"`
	ClientSecretHash string    `json:"-"`
	RedirectURIs     []string  `json:"redirect_uris"`
	GrantTypes       []string  `json:"grant_types"`
	Scopes           []string  `json:"scopes"`
	IsConfidential   bool      `json:"is_confidential"`
	IsActive         bool      `json:"is_active"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// IsPublic reports whether the client has no secret (RFC 6749 Section 2.1)
func (c *Client) IsPublic() bool {
	return c.ClientSecretHash == ""
}

// ValidateRedirectURI checks if the redirect URI is registered for this
// client. Matching is exact (RFC 6749 Section 3.1.2).
func (c *Client) ValidateRedirectURI(redirectURI string) bool {
	for _, uri := range c.RedirectURIs {
		if uri == redirectURI {
			return true
		}
	}
	return false
}

// ValidateGrantType checks if the client may use the given grant type
func (c *Client) ValidateGrantType(grantType string) bool {
	for _, gt := range c.GrantTypes {
		if gt == grantType {
			return true
		}
	}
	return false
}

// ValidateScopes checks if every requested scope is allowed for this client
func (c *Client) ValidateScopes(requested []string) bool {
	for _, scope := range requested {
		allowed := false
		for _, s := range c.Scopes {
			if s == scope {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}
	return true
}

// Token represents an issued access/refresh token pair. RefreshToken is empty
// for grants that do not issue one.
type Token struct {
	ID           string
	UserID       string
	ClientID     string
	AccessToken  string
	TokenType    string
	ExpiresAt    time.Time
	Scopes       []string
	RefreshToken string
	CreatedAt    time.Time
}

// IsExpired checks if the access token has expired
func (t *Token) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}

// AuthorizationCode represents a short-lived authorization code
type AuthorizationCode struct {
	ID                  string
	Code                string
	ClientID            string
	UserID              string
	RedirectURI         string
	Scopes              []string
	CodeChallenge       string
	CodeChallengeMethod string
	State               string
	ExpiresAt           time.Time
	IsUsed              bool
	CreatedAt           time.Time
}

// IsExpired checks if the authorization code has expired
func (a *AuthorizationCode) IsExpired() bool {
	return time.Now().After(a.ExpiresAt)
}

// ClientRepository defines the interface for OAuth2 client persistence.
// Lookups return (nil, nil) when no row matches.
type ClientRepository interface {
	// Create creates a new OAuth2 client
	Create(ctx context.Context, client *Client) error

	// GetByID retrieves a client by ID
	GetByID(ctx context.Context, id string) (*Client, error)

	// Update updates client information
	Update(ctx context.Context, client *Client) error
}

// TokenRepository defines the interface for token persistence
type TokenRepository interface {
	// Create persists an issued token pair
	Create(ctx context.Context, token *Token) error

	// GetByAccessToken retrieves a token by its access token string
	GetByAccessToken(ctx context.Context, accessToken string) (*Token, error)

	// GetByRefreshToken retrieves a token by its refresh token string
	GetByRefreshToken(ctx context.Context, refreshToken string) (*Token, error)

	// Revoke deletes the token row, reporting whether a row was deleted.
	// Concurrent callers race on the delete; exactly one sees true.
	Revoke(ctx context.Context, id string) (bool, error)

	// DeleteExpired deletes all expired tokens, returning the count
	DeleteExpired(ctx context.Context) (int64, error)
}

// AuthorizationCodeRepository defines the interface for code persistence
type AuthorizationCodeRepository interface {
	// Create creates a new authorization code
	Create(ctx context.Context, code *AuthorizationCode) error

	// GetByCode retrieves an authorization code by its code string
	GetByCode(ctx context.Context, code string) (*AuthorizationCode, error)

	// MarkAsUsed flips is_used on an unused code, reporting whether this
	// caller won the flip. Concurrent redemptions race on the update.
	MarkAsUsed(ctx context.Context, id string) (bool, error)

	// Delete deletes an authorization code by ID
	Delete(ctx context.Context, id string) error

	// DeleteExpired deletes all expired codes, returning the count
	DeleteExpired(ctx context.Context) (int64, error)
}
