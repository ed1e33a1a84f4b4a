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

// Package memory provides in-memory store implementations, used by the unit
// suites and as a zero-dependency stand-in during local development.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/identra/identra/internal/identity"
	"github.com/identra/identra/internal/oauth2"
)

// UserRepository is an in-memory identity.UserRepository
type UserRepository struct {
	mu    sync.RWMutex
	users map[string]*identity.User
}

func NewUserRepository() *UserRepository {
	return &UserRepository{users: make(map[string]*identity.User)}
}

func (r *UserRepository) Create(ctx context.Context, user *identity.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u := *user
	r.users[user.ID] = &u
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*identity.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	copied := *u
	return &copied, nil
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*identity.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if u.Username == username {
			copied := *u
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*identity.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *UserRepository) Update(ctx context.Context, user *identity.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u := *user
	r.users[user.ID] = &u
	return nil
}

// ClientRepository is an in-memory oauth2.ClientRepository
type ClientRepository struct {
	mu      sync.RWMutex
	clients map[string]*oauth2.Client
}

func NewClientRepository() *ClientRepository {
	return &ClientRepository{clients: make(map[string]*oauth2.Client)}
}

func (r *ClientRepository) Create(ctx context.Context, client *oauth2.Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.clients[client.ID]; exists {
		return oauth2.ErrClientAlreadyExists
	}
	c := *client
	r.clients[client.ID] = &c
	return nil
}

func (r *ClientRepository) GetByID(ctx context.Context, id string) (*oauth2.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[id]
	if !ok {
		return nil, nil
	}
	copied := *c
	return &copied, nil
}

func (r *ClientRepository) Update(ctx context.Context, client *oauth2.Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *client
	r.clients[client.ID] = &c
	return nil
}

// TokenRepository is an in-memory oauth2.TokenRepository
type TokenRepository struct {
	mu     sync.Mutex
	tokens map[string]*oauth2.Token
}

func NewTokenRepository() *TokenRepository {
	return &TokenRepository{tokens: make(map[string]*oauth2.Token)}
}

func (r *TokenRepository) Create(ctx context.Context, token *oauth2.Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := *token
	r.tokens[token.ID] = &t
	return nil
}

func (r *TokenRepository) GetByAccessToken(ctx context.Context, accessToken string) (*oauth2.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tokens {
		if t.AccessToken == accessToken {
			copied := *t
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *TokenRepository) GetByRefreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tokens {
		if t.RefreshToken == refreshToken {
			copied := *t
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *TokenRepository) Revoke(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tokens[id]; !ok {
		return false, nil
	}
	delete(r.tokens, id)
	return true, nil
}

func (r *TokenRepository) DeleteExpired(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	now := time.Now()
	for id, t := range r.tokens {
		if now.After(t.ExpiresAt) {
			delete(r.tokens, id)
			count++
		}
	}
	return count, nil
}

// AuthorizationCodeRepository is an in-memory oauth2.AuthorizationCodeRepository
type AuthorizationCodeRepository struct {
	mu    sync.Mutex
	codes map[string]*oauth2.AuthorizationCode
}

func NewAuthorizationCodeRepository() *AuthorizationCodeRepository {
	return &AuthorizationCodeRepository{codes: make(map[string]*oauth2.AuthorizationCode)}
}

func (r *AuthorizationCodeRepository) Create(ctx context.Context, code *oauth2.AuthorizationCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *code
	r.codes[code.ID] = &c
	return nil
}

func (r *AuthorizationCodeRepository) GetByCode(ctx context.Context, code string) (*oauth2.AuthorizationCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.codes {
		if c.Code == code {
			copied := *c
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *AuthorizationCodeRepository) MarkAsUsed(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.codes[id]
	if !ok || c.IsUsed {
		return false, nil
	}
	c.IsUsed = true
	return true, nil
}

func (r *AuthorizationCodeRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.codes, id)
	return nil
}

func (r *AuthorizationCodeRepository) DeleteExpired(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	now := time.Now()
	for id, c := range r.codes {
		if now.After(c.ExpiresAt) {
			delete(r.codes, id)
			count++
		}
	}
	return count, nil
}

// Cache is an in-memory cache.Cache with per-entry expiry
type Cache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	value     string
	expiresAt time.Time
}

func NewCache() *Cache {
	return &Cache{entries: make(map[string]cacheEntry)}
}

func (c *Cache) Get(ctx context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return "", false, nil
	}
	if time.Now().After(e.expiresAt) {
		delete(c.entries, key)
		return "", false, nil
	}
	return e.value, true, nil
}

func (c *Cache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{value: value, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (c *Cache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}
