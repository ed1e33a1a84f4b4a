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
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/identra/identra/internal/audit"
)

// SecretHasher hashes client secrets for storage
type SecretHasher interface {
	Hash(secret string) (string, error)
}

// ClientService manages OAuth2 client registration
type ClientService struct {
	repo        ClientRepository
	hasher      SecretHasher
	auditLogger audit.Logger
}

// NewClientService creates a new client service
func NewClientService(repo ClientRepository, hasher SecretHasher, auditLogger audit.Logger) *ClientService {
	return &ClientService{
		repo:        repo,
		hasher:      hasher,
		auditLogger: auditLogger,
	}
}

// CreateClientInput holds the registration parameters
type CreateClientInput struct {
	ClientName   string
	RedirectURIs []string
	GrantTypes   []string
	Scopes       []string
	Public       bool
}

// CreateClient registers a new client. For confidential clients the plaintext
// secret is returned exactly once; only its hash is stored.
func (s *ClientService) CreateClient(ctx context.Context, input CreateClientInput) (*Client, string, error) {
	if input.ClientName == "" {
		return nil, "", fmt.Errorf("client name is required")
	}
	if len(input.RedirectURIs) == 0 {
		return nil, "", fmt.Errorf("at least one redirect URI is required")
	}
	if len(input.GrantTypes) == 0 {
		return nil, "", fmt.Errorf("at least one grant type is required")
	}
	for _, gt := range input.GrantTypes {
		switch gt {
		case GrantTypePassword, GrantTypeRefreshToken, GrantTypeAuthorizationCode, GrantTypeClientCredentials:
		default:
			return nil, "", fmt.Errorf("unknown grant type: %s", gt)
		}
	}
	if input.Public {
		// Public clients are limited to the redirect-based flow
		for _, gt := range input.GrantTypes {
			if gt == GrantTypePassword || gt == GrantTypeClientCredentials {
				return nil, "", fmt.Errorf("public clients may not use the %s grant", gt)
			}
		}
	}

	var secret, secretHash string
	if !input.Public {
		secret = GenerateClientSecret()
		hash, err := s.hasher.Hash(secret)
		if err != nil {
			return nil, "", fmt.Errorf("failed to hash client secret: %w", err)
		}
		secretHash = hash
	}

	now := time.Now().UTC()
	client := &Client{
		ID:               uuid.NewString(),
		ClientName:       input.ClientName,
		ClientSecretHash: secretHash,
		RedirectURIs:     input.RedirectURIs,
		GrantTypes:       input.GrantTypes,
		Scopes:           input.Scopes,
		IsConfidential:   !input.Public,
		IsActive:         true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.repo.Create(ctx, client); err != nil {
		return nil, "", fmt.Errorf("failed to create client: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeClientCreated,
		ActorID:  client.ID,
		Resource: client.ClientName,
	})

	return client, secret, nil
}

// GetClient retrieves a client by ID
func (s *ClientService) GetClient(ctx context.Context, id string) (*Client, error) {
	client, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load client: %w", err)
	}
	if client == nil {
		return nil, ErrClientNotFound
	}
	return client, nil
}

// Deactivate disables a client. Pending grants fail on the next token request.
func (s *ClientService) Deactivate(ctx context.Context, id string) error {
	client, err := s.GetClient(ctx, id)
	if err != nil {
		return err
	}

	client.IsActive = false
	client.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, client); err != nil {
		return fmt.Errorf("failed to update client: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:    audit.TypeClientDeactivated,
		ActorID: id,
	})
	return nil
}

// GenerateClientSecret generates a new random client secret
func GenerateClientSecret() string {
	b := make([]byte, 32)
	rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
