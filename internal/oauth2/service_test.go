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

package oauth2_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/identra/identra/internal/audit"
	"github.com/identra/identra/internal/identity"
	"github.com/identra/identra/internal/oauth2"
	"github.com/identra/identra/internal/store/memory"
)

// RFC 7636 Appendix B reference vectors
const (
	pkceVerifier  = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	pkceChallenge = "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
)

type testEnv struct {
	svc      *oauth2.Service
	signer   *oauth2.Signer
	clients  *memory.ClientRepository
	tokens   *memory.TokenRepository
	codes    *memory.AuthorizationCodeRepository
	cache    *memory.Cache
	identity *identity.Service
	hasher   *identity.PasswordHasher
}

func newTestSigner(t *testing.T, accessTTL, refreshTTL time.Duration) *oauth2.Signer {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	privatePEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	publicDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("failed to marshal public key: %v", err)
	}
	publicPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: publicDER,
	})

	signer, err := oauth2.NewSigner(privatePEM, publicPEM, "identra-test", accessTTL, refreshTTL)
	if err != nil {
		t.Fatalf("failed to create signer: %v", err)
	}
	return signer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	signer := newTestSigner(t, 30*time.Minute, 720*time.Hour)
	hasher := identity.NewPasswordHasher(1024, 1, 1, 16, 32)
	auditLogger := audit.NewSlogLogger()

	users := memory.NewUserRepository()
	clients := memory.NewClientRepository()
	tokens := memory.NewTokenRepository()
	codes := memory.NewAuthorizationCodeRepository()
	tokenCache := memory.NewCache()

	identitySvc := identity.NewService(users, hasher, auditLogger)
	svc := oauth2.NewService(clients, tokens, codes, identitySvc, signer, tokenCache, hasher, auditLogger, 10*time.Minute)

	return &testEnv{
		svc:      svc,
		signer:   signer,
		clients:  clients,
		tokens:   tokens,
		codes:    codes,
		cache:    tokenCache,
		identity: identitySvc,
		hasher:   hasher,
	}
}

func (e *testEnv) createClient(t *testing.T, name string, grantTypes, scopes []string, public bool) (*oauth2.Client, string) {
	t.Helper()

	var secret, secretHash string
	if !public {
		secret = oauth2.GenerateClientSecret()
		hash, err := e.hasher.Hash(secret)
		if err != nil {
			t.Fatalf("failed to hash secret: %v", err)
		}
		secretHash = hash
	}

	now := time.Now().UTC()
	client := &oauth2.Client{
		ID:               name + "-id",
		ClientName:       name,
		ClientSecretHash: secretHash,
		RedirectURIs:     []string{"https://app.example.com/callback"},
		GrantTypes:       grantTypes,
		Scopes:           scopes,
		IsConfidential:   !public,
		IsActive:         true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := e.clients.Create(context.Background(), client); err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	return client, secret
}

func (e *testEnv) createUser(t *testing.T, username, password string) *identity.User {
	t.Helper()
	user, err := e.identity.CreateUser(context.Background(), username, username+"@example.com", password)
	if err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	return user
}

func assertOAuthError(t *testing.T, err error, code string) {
	t.Helper()
	var oe *oauth2.Error
	if !errors.As(err, &oe) {
		t.Fatalf("expected *oauth2.Error with code %q, got %v", code, err)
	}
	if oe.Code != code {
		t.Errorf("expected error code %q, got %q (%s)", code, oe.Code, oe.Description)
	}
}

// TestPurpose: Validates the resource owner password credentials grant,
// including client authentication, credential failure and scope narrowing.
// Scope: Unit Test
// Security: Client and resource owner authentication
// Expected: Tokens for valid requests; RFC 6749 error codes otherwise.
func TestOAuth2_PasswordGrant(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	client, secret := env.createClient(t, "web-app",
		[]string{"password", "refresh_token"}, []string{"read", "write"}, false)
	user := env.createUser(t, "alice", "SecurePassword123")

	resp, err := env.svc.Token(ctx, &oauth2.TokenRequest{
		GrantType:    "password",
		ClientID:     client.ID,
		ClientSecret: secret,
		Username:     "alice",
		Password:     "SecurePassword123",
		Scope:        "read",
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if resp.AccessToken == "" || resp.RefreshToken == "" {
		t.Error("expected both access and refresh tokens")
	}
	if resp.TokenType != "Bearer" {
		t.Errorf("expected Bearer token type, got %s", resp.TokenType)
	}
	if resp.Scope != "read" {
		t.Errorf("expected narrowed scope 'read', got %q", resp.Scope)
	}

	claims, err := env.signer.VerifyToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("failed to verify issued token: %v", err)
	}
	if claims.Subject != user.ID {
		t.Errorf("expected sub %s, got %s", user.ID, claims.Subject)
	}
	if claims.TokenType != "access" {
		t.Errorf("expected type 'access', got %s", claims.TokenType)
	}

	// Wrong resource owner password
	_, err = env.svc.Token(ctx, &oauth2.TokenRequest{
		GrantType: "password", ClientID: client.ID, ClientSecret: secret,
		Username: "alice", Password: "wrong",
	})
	assertOAuthError(t, err, oauth2.ErrInvalidGrant)

	// Wrong client secret
	_, err = env.svc.Token(ctx, &oauth2.TokenRequest{
		GrantType: "password", ClientID: client.ID, ClientSecret: "wrong",
		Username: "alice", Password: "SecurePassword123",
	})
	assertOAuthError(t, err, oauth2.ErrInvalidClient)

	// Unknown client
	_, err = env.svc.Token(ctx, &oauth2.TokenRequest{
		GrantType: "password", ClientID: "ghost", ClientSecret: secret,
		Username: "alice", Password: "SecurePassword123",
	})
	assertOAuthError(t, err, oauth2.ErrInvalidClient)

	// Scope beyond client grants
	_, err = env.svc.Token(ctx, &oauth2.TokenRequest{
		GrantType: "password", ClientID: client.ID, ClientSecret: secret,
		Username: "alice", Password: "SecurePassword123", Scope: "read admin",
	})
	assertOAuthError(t, err, oauth2.ErrInvalidScope)

	// Unsupported grant type
	_, err = env.svc.Token(ctx, &oauth2.TokenRequest{
		GrantType: "device_code", ClientID: client.ID, ClientSecret: secret,
	})
	assertOAuthError(t, err, oauth2.ErrUnsupportedGrantType)

	// Public clients may never use the password grant
	public, _ := env.createClient(t, "spa",
		[]string{"authorization_code", "refresh_token"}, []string{"read"}, true)
	_, err = env.svc.Token(ctx, &oauth2.TokenRequest{
		GrantType: "password", ClientID: public.ID,
		Username: "alice", Password: "SecurePassword123",
	})
	assertOAuthError(t, err, oauth2.ErrUnauthorizedClient)
}

// TestPurpose: Validates single-use refresh token rotation: the old token is
// dead after one use and the replacement works.
// Scope: Unit Test
// Security: Refresh token replay resistance
// Expected: invalid_grant on reuse; fresh pair from the rotated token.
func TestOAuth2_RefreshTokenGrant_Rotation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	client, secret := env.createClient(t, "web-app",
		[]string{"password", "refresh_token"}, []string{"read"}, false)
	env.createUser(t, "alice", "SecurePassword123")

	first, err := env.svc.Token(ctx, &oauth2.TokenRequest{
		GrantType: "password", ClientID: client.ID, ClientSecret: secret,
		Username: "alice", Password: "SecurePassword123",
	})
	if err != nil {
		t.Fatalf("password grant failed: %v", err)
	}

	second, err := env.svc.Token(ctx, &oauth2.TokenRequest{
		GrantType: "refresh_token", ClientID: client.ID, ClientSecret: secret,
		RefreshToken: first.RefreshToken,
	})
	if err != nil {
		t.Fatalf("refresh grant failed: %v", err)
	}
	if second.AccessToken == first.AccessToken {
		t.Error("expected a new access token after rotation")
	}
	if second.RefreshToken == first.RefreshToken {
		t.Error("expected a new refresh token after rotation")
	}

	// The consumed refresh token is single use
	_, err = env.svc.Token(ctx, &oauth2.TokenRequest{
		GrantType: "refresh_token", ClientID: client.ID, ClientSecret: secret,
		RefreshToken: first.RefreshToken,
	})
	assertOAuthError(t, err, oauth2.ErrInvalidGrant)

	// The replacement still works
	third, err := env.svc.Token(ctx, &oauth2.TokenRequest{
		GrantType: "refresh_token", ClientID: client.ID, ClientSecret: secret,
		RefreshToken: second.RefreshToken,
	})
	if err != nil {
		t.Fatalf("rotated refresh token should work: %v", err)
	}

	// An access token is not a refresh token
	_, err = env.svc.Token(ctx, &oauth2.TokenRequest{
		GrantType: "refresh_token", ClientID: client.ID, ClientSecret: secret,
		RefreshToken: third.AccessToken,
	})
	assertOAuthError(t, err, oauth2.ErrInvalidGrant)

	// A refresh token of one client is useless to another
	other, otherSecret := env.createClient(t, "other",
		[]string{"refresh_token"}, []string{"read"}, false)
	_, err = env.svc.Token(ctx, &oauth2.TokenRequest{
		GrantType: "refresh_token", ClientID: other.ID, ClientSecret: otherSecret,
		RefreshToken: third.RefreshToken,
	})
	assertOAuthError(t, err, oauth2.ErrInvalidGrant)
}

// TestPurpose: Validates the authorization code flow end to end, including
// PKCE verification against the RFC 7636 reference vectors and replay
// rejection.
// Scope: Unit Test
// Security: Code interception (PKCE) and replay resistance
// Expected: Tokens for a valid redemption, invalid_grant for every misuse.
func TestOAuth2_AuthorizationCodeGrant(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	client, secret := env.createClient(t, "web-app",
		[]string{"authorization_code", "refresh_token"}, []string{"read", "write"}, false)
	user := env.createUser(t, "alice", "SecurePassword123")

	authReq := &oauth2.AuthorizeRequest{
		ClientID:            client.ID,
		RedirectURI:         "https://app.example.com/callback",
		ResponseType:        "code",
		Scope:               "read",
		State:               "xyz",
		CodeChallenge:       pkceChallenge,
		CodeChallengeMethod: "S256",
	}
	if _, err := env.svc.ValidateAuthorizeRequest(ctx, authReq); err != nil {
		t.Fatalf("authorize request should validate: %v", err)
	}

	code, err := env.svc.CreateAuthorizationCode(ctx, authReq, user.ID)
	if err != nil {
		t.Fatalf("failed to create code: %v", err)
	}
	if code.Code == "" || code.State != "xyz" {
		t.Errorf("unexpected code %+v", code)
	}

	// Wrong verifier
	_, err = env.svc.Token(ctx, &oauth2.TokenRequest{
		GrantType: "authorization_code", ClientID: client.ID, ClientSecret: secret,
		Code: code.Code, RedirectURI: authReq.RedirectURI, CodeVerifier: "wrong-verifier-wrong-verifier-wrong-verifier",
	})
	assertOAuthError(t, err, oauth2.ErrInvalidGrant)

	// Missing verifier
	_, err = env.svc.Token(ctx, &oauth2.TokenRequest{
		GrantType: "authorization_code", ClientID: client.ID, ClientSecret: secret,
		Code: code.Code, RedirectURI: authReq.RedirectURI,
	})
	assertOAuthError(t, err, oauth2.ErrInvalidRequest)

	// Redirect URI mismatch
	_, err = env.svc.Token(ctx, &oauth2.TokenRequest{
		GrantType: "authorization_code", ClientID: client.ID, ClientSecret: secret,
		Code: code.Code, RedirectURI: "https://evil.example.com/", CodeVerifier: pkceVerifier,
	})
	assertOAuthError(t, err, oauth2.ErrInvalidGrant)

	// Valid redemption
	resp, err := env.svc.Token(ctx, &oauth2.TokenRequest{
		GrantType: "authorization_code", ClientID: client.ID, ClientSecret: secret,
		Code: code.Code, RedirectURI: authReq.RedirectURI, CodeVerifier: pkceVerifier,
	})
	if err != nil {
		t.Fatalf("redemption failed: %v", err)
	}
	claims, err := env.signer.VerifyToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("failed to verify token: %v", err)
	}
	if claims.Subject != user.ID {
		t.Errorf("expected sub %s, got %s", user.ID, claims.Subject)
	}
	if resp.Scope != "read" {
		t.Errorf("expected scope 'read', got %q", resp.Scope)
	}

	// Replay
	_, err = env.svc.Token(ctx, &oauth2.TokenRequest{
		GrantType: "authorization_code", ClientID: client.ID, ClientSecret: secret,
		Code: code.Code, RedirectURI: authReq.RedirectURI, CodeVerifier: pkceVerifier,
	})
	assertOAuthError(t, err, oauth2.ErrInvalidGrant)

	// Unknown code
	_, err = env.svc.Token(ctx, &oauth2.TokenRequest{
		GrantType: "authorization_code", ClientID: client.ID, ClientSecret: secret,
		Code: "nope", RedirectURI: authReq.RedirectURI, CodeVerifier: pkceVerifier,
	})
	assertOAuthError(t, err, oauth2.ErrInvalidGrant)
}

// TestPurpose: Validates the plain PKCE method and that a code issued to one
// client cannot be redeemed by another.
// Scope: Unit Test
// Security: Code binding
// Expected: plain verifier compares byte for byte; cross-client redemption
// yields invalid_grant.
func TestOAuth2_AuthorizationCodeGrant_PlainPKCE(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	client, secret := env.createClient(t, "web-app",
		[]string{"authorization_code"}, []string{"read"}, false)
	intruder, intruderSecret := env.createClient(t, "intruder",
		[]string{"authorization_code"}, []string{"read"}, false)
	user := env.createUser(t, "alice", "SecurePassword123")

	authReq := &oauth2.AuthorizeRequest{
		ClientID:      client.ID,
		RedirectURI:   "https://app.example.com/callback",
		ResponseType:  "code",
		Scope:         "read",
		CodeChallenge: "plain-challenge-value-plain-challenge-value",
		// empty method defaults to plain
	}
	if _, err := env.svc.ValidateAuthorizeRequest(ctx, authReq); err != nil {
		t.Fatalf("authorize request should validate: %v", err)
	}
	code, err := env.svc.CreateAuthorizationCode(ctx, authReq, user.ID)
	if err != nil {
		t.Fatalf("failed to create code: %v", err)
	}

	// Another client cannot redeem it
	_, err = env.svc.Token(ctx, &oauth2.TokenRequest{
		GrantType: "authorization_code", ClientID: intruder.ID, ClientSecret: intruderSecret,
		Code: code.Code, RedirectURI: authReq.RedirectURI,
		CodeVerifier: "plain-challenge-value-plain-challenge-value",
	})
	assertOAuthError(t, err, oauth2.ErrInvalidGrant)

	// The owner can
	if _, err := env.svc.Token(ctx, &oauth2.TokenRequest{
		GrantType: "authorization_code", ClientID: client.ID, ClientSecret: secret,
		Code: code.Code, RedirectURI: authReq.RedirectURI,
		CodeVerifier: "plain-challenge-value-plain-challenge-value",
	}); err != nil {
		t.Fatalf("redemption failed: %v", err)
	}
}

// TestPurpose: Validates that racing redemptions of one authorization code
// yield exactly one token response.
// Scope: Unit Test
// Security: Code replay under concurrent clients
// Expected: one success; every other racer gets invalid_grant.
func TestOAuth2_AuthorizationCodeGrant_ConcurrentRedemption(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	client, secret := env.createClient(t, "web-app",
		[]string{"authorization_code"}, []string{"read"}, false)
	user := env.createUser(t, "alice", "SecurePassword123")

	authReq := &oauth2.AuthorizeRequest{
		ClientID:            client.ID,
		RedirectURI:         "https://app.example.com/callback",
		ResponseType:        "code",
		Scope:               "read",
		CodeChallenge:       pkceChallenge,
		CodeChallengeMethod: "S256",
	}
	code, err := env.svc.CreateAuthorizationCode(ctx, authReq, user.ID)
	if err != nil {
		t.Fatalf("failed to create code: %v", err)
	}

	const racers = 4
	results := make([]error, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = env.svc.Token(ctx, &oauth2.TokenRequest{
				GrantType: "authorization_code", ClientID: client.ID, ClientSecret: secret,
				Code: code.Code, RedirectURI: authReq.RedirectURI, CodeVerifier: pkceVerifier,
			})
		}(i)
	}
	wg.Wait()

	var wins, replays int
	for _, err := range results {
		if err == nil {
			wins++
			continue
		}
		var oe *oauth2.Error
		if errors.As(err, &oe) && oe.Code == oauth2.ErrInvalidGrant {
			replays++
		} else {
			t.Errorf("unexpected redemption error: %v", err)
		}
	}
	if wins != 1 || replays != racers-1 {
		t.Errorf("expected exactly one redemption, got %d wins and %d replays", wins, replays)
	}
}

// TestPurpose: Validates the client credentials grant: the client itself is
// the token subject and no refresh token is issued.
// Scope: Unit Test
// Security: Service-to-service authentication
// Expected: Access token with sub == client ID and empty refresh_token.
func TestOAuth2_ClientCredentialsGrant(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	client, secret := env.createClient(t, "batch-job",
		[]string{"client_credentials"}, []string{"read"}, false)

	resp, err := env.svc.Token(ctx, &oauth2.TokenRequest{
		GrantType: "client_credentials", ClientID: client.ID, ClientSecret: secret,
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if resp.RefreshToken != "" {
		t.Error("client_credentials must not issue a refresh token")
	}

	claims, err := env.signer.VerifyToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("failed to verify token: %v", err)
	}
	if claims.Subject != client.ID {
		t.Errorf("expected sub to be the client ID %s, got %s", client.ID, claims.Subject)
	}

	// Grant not allowed for the client
	other, otherSecret := env.createClient(t, "web-only",
		[]string{"password"}, []string{"read"}, false)
	_, err = env.svc.Token(ctx, &oauth2.TokenRequest{
		GrantType: "client_credentials", ClientID: other.ID, ClientSecret: otherSecret,
	})
	assertOAuthError(t, err, oauth2.ErrUnauthorizedClient)
}

// TestPurpose: Validates authorization request pre-checks: redirect URI exact
// match, response_type, scope subsetting and PKCE method whitelist.
// Scope: Unit Test
// Security: Open redirect prevention
// Expected: invalid_request family errors before any code is minted.
func TestOAuth2_ValidateAuthorizeRequest(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	client, _ := env.createClient(t, "web-app",
		[]string{"authorization_code"}, []string{"read"}, false)

	base := oauth2.AuthorizeRequest{
		ClientID:     client.ID,
		RedirectURI:  "https://app.example.com/callback",
		ResponseType: "code",
	}

	req := base
	req.RedirectURI = "https://app.example.com/callback/extra"
	_, err := env.svc.ValidateAuthorizeRequest(ctx, &req)
	assertOAuthError(t, err, oauth2.ErrInvalidRequest)

	req = base
	req.ResponseType = "token"
	_, err = env.svc.ValidateAuthorizeRequest(ctx, &req)
	assertOAuthError(t, err, oauth2.ErrUnsupportedResponseType)

	req = base
	req.Scope = "read admin"
	_, err = env.svc.ValidateAuthorizeRequest(ctx, &req)
	assertOAuthError(t, err, oauth2.ErrInvalidScope)

	req = base
	req.CodeChallenge = pkceChallenge
	req.CodeChallengeMethod = "S512"
	_, err = env.svc.ValidateAuthorizeRequest(ctx, &req)
	assertOAuthError(t, err, oauth2.ErrInvalidRequest)

	// Unknown clients and clients without the grant are both invalid_client
	req = base
	req.ClientID = "ghost"
	_, err = env.svc.ValidateAuthorizeRequest(ctx, &req)
	assertOAuthError(t, err, oauth2.ErrInvalidClient)

	machine, _ := env.createClient(t, "machine",
		[]string{"client_credentials"}, []string{"read"}, false)
	req = base
	req.ClientID = machine.ID
	_, err = env.svc.ValidateAuthorizeRequest(ctx, &req)
	assertOAuthError(t, err, oauth2.ErrInvalidClient)

	// Public clients must send a code challenge
	public, _ := env.createClient(t, "spa",
		[]string{"authorization_code"}, []string{"read"}, true)
	req = base
	req.ClientID = public.ID
	_, err = env.svc.ValidateAuthorizeRequest(ctx, &req)
	assertOAuthError(t, err, oauth2.ErrInvalidRequest)

	req.CodeChallenge = pkceChallenge
	req.CodeChallengeMethod = "S256"
	if _, err := env.svc.ValidateAuthorizeRequest(ctx, &req); err != nil {
		t.Errorf("public client with PKCE should validate: %v", err)
	}
}

// TestPurpose: Validates RFC 7662 introspection including the Redis-shaped
// cache path and revocation coherence.
// Scope: Unit Test
// Security: Token state disclosure
// Expected: active=true cached under token:introspect:<token>; inactive after
// revocation and for garbage input.
func TestOAuth2_Introspection(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	client, secret := env.createClient(t, "web-app",
		[]string{"password", "refresh_token"}, []string{"read"}, false)
	user := env.createUser(t, "alice", "SecurePassword123")

	resp, err := env.svc.Token(ctx, &oauth2.TokenRequest{
		GrantType: "password", ClientID: client.ID, ClientSecret: secret,
		Username: "alice", Password: "SecurePassword123",
	})
	if err != nil {
		t.Fatalf("password grant failed: %v", err)
	}

	intro := env.svc.Introspect(ctx, resp.AccessToken)
	if !intro.Active {
		t.Fatal("expected active token")
	}
	if intro.ClientID != client.ID || intro.Scope != "read" {
		t.Errorf("unexpected introspection payload: %+v", intro)
	}
	if intro.Username != user.ID {
		t.Errorf("expected username %s, got %s", user.ID, intro.Username)
	}

	// Only access tokens are introspectable; a live refresh token is opaque
	if intro := env.svc.Introspect(ctx, resp.RefreshToken); intro.Active {
		t.Error("expected refresh token to introspect as inactive")
	}

	// First lookup populates the cache
	if _, found, _ := env.cache.Get(ctx, "token:introspect:"+resp.AccessToken); !found {
		t.Error("expected cache entry after introspection")
	}

	// Second lookup is served from the cache
	if intro := env.svc.Introspect(ctx, resp.AccessToken); !intro.Active {
		t.Error("expected active token on cache hit")
	}

	// Garbage is simply inactive
	if intro := env.svc.Introspect(ctx, "not-a-jwt"); intro.Active {
		t.Error("expected inactive for garbage input")
	}

	// A foreign signature is inactive
	foreign := newTestSigner(t, time.Minute, time.Hour)
	foreignToken, _, err := foreign.CreateAccessToken("u", client.ID, nil, 0)
	if err != nil {
		t.Fatalf("failed to mint foreign token: %v", err)
	}
	if intro := env.svc.Introspect(ctx, foreignToken); intro.Active {
		t.Error("expected inactive for foreign signature")
	}

	// Revocation flips the answer and clears the cache
	if err := env.svc.Revoke(ctx, client, resp.AccessToken, ""); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}
	if intro := env.svc.Introspect(ctx, resp.AccessToken); intro.Active {
		t.Error("expected inactive after revocation")
	}
	if _, found, _ := env.cache.Get(ctx, "token:introspect:"+resp.AccessToken); found {
		t.Error("expected cache entry removed after revocation")
	}
}

// TestPurpose: Validates RFC 7009 revocation semantics: idempotent, silent on
// unknown tokens, and scoped to the requesting client.
// Scope: Unit Test
// Security: Cross-client revocation prevention
// Expected: nil error always; foreign tokens stay valid.
func TestOAuth2_Revocation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	client, secret := env.createClient(t, "web-app",
		[]string{"password", "refresh_token"}, []string{"read"}, false)
	other, _ := env.createClient(t, "other",
		[]string{"password"}, []string{"read"}, false)
	env.createUser(t, "alice", "SecurePassword123")

	resp, err := env.svc.Token(ctx, &oauth2.TokenRequest{
		GrantType: "password", ClientID: client.ID, ClientSecret: secret,
		Username: "alice", Password: "SecurePassword123",
	})
	if err != nil {
		t.Fatalf("password grant failed: %v", err)
	}

	// Unknown token is success
	if err := env.svc.Revoke(ctx, client, "unknown-token", ""); err != nil {
		t.Errorf("unknown token revocation must succeed, got %v", err)
	}

	// Another client cannot revoke the token, and learns nothing
	if err := env.svc.Revoke(ctx, other, resp.AccessToken, ""); err != nil {
		t.Errorf("foreign revocation must be silent, got %v", err)
	}
	if intro := env.svc.Introspect(ctx, resp.AccessToken); !intro.Active {
		t.Error("token must survive a foreign revocation attempt")
	}

	// Revoking by refresh token hint kills the pair
	if err := env.svc.Revoke(ctx, client, resp.RefreshToken, "refresh_token"); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}
	if intro := env.svc.Introspect(ctx, resp.AccessToken); intro.Active {
		t.Error("expected access token dead after pair revocation")
	}

	// Idempotent
	if err := env.svc.Revoke(ctx, client, resp.RefreshToken, "refresh_token"); err != nil {
		t.Errorf("second revocation must succeed, got %v", err)
	}
}

// TestPurpose: Validates expired token and code cleanup bookkeeping.
// Scope: Unit Test
// Expected: Expired rows removed and counted; live rows untouched.
func TestOAuth2_CleanupExpired(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	now := time.Now().UTC()
	env.tokens.Create(ctx, &oauth2.Token{ID: "live", AccessToken: "a1", ExpiresAt: now.Add(time.Hour)})
	env.tokens.Create(ctx, &oauth2.Token{ID: "dead", AccessToken: "a2", ExpiresAt: now.Add(-time.Hour)})
	env.codes.Create(ctx, &oauth2.AuthorizationCode{ID: "c-live", Code: "x1", ExpiresAt: now.Add(time.Hour)})
	env.codes.Create(ctx, &oauth2.AuthorizationCode{ID: "c-dead", Code: "x2", ExpiresAt: now.Add(-time.Hour)})

	tokens, codes, err := env.svc.CleanupExpired(ctx)
	if err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	if tokens != 1 || codes != 1 {
		t.Errorf("expected 1 token and 1 code removed, got %d and %d", tokens, codes)
	}

	if live, _ := env.tokens.GetByAccessToken(ctx, "a1"); live == nil {
		t.Error("live token must survive cleanup")
	}
	if dead, _ := env.tokens.GetByAccessToken(ctx, "a2"); dead != nil {
		t.Error("expired token must be removed")
	}
}
