package oauth2

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/identra/identra/internal/audit"
	"github.com/identra/identra/internal/cache"
	"github.com/identra/identra/internal/identity"
)

// introspectionCachePrefix keys the Redis entries that short-circuit repeat
// introspection lookups. Values are "1" with TTL = remaining token lifetime.
const introspectionCachePrefix = "token:introspect:"

// UserDirectory is the slice of the identity service the grant engine needs
type UserDirectory interface {
	Authenticate(ctx context.Context, username, password string) (*identity.User, error)
	GetUser(ctx context.Context, userID string) (*identity.User, error)
}

// SecretVerifier verifies a client secret against its stored hash
type SecretVerifier interface {
	Verify(secret, encodedHash string) (bool, error)
}

// Service provides the OAuth2 grant engine
type Service struct {
	clientRepo  ClientRepository
	tokenRepo   TokenRepository
	codeRepo    AuthorizationCodeRepository
	users       UserDirectory
	signer      *Signer
	cache       cache.Cache
	hasher      SecretVerifier
	auditLogger audit.Logger

	authCodeLifetime time.Duration
}

// NewService creates a new OAuth2 service
func NewService(
	clientRepo ClientRepository,
	tokenRepo TokenRepository,
	codeRepo AuthorizationCodeRepository,
	users UserDirectory,
	signer *Signer,
	tokenCache cache.Cache,
	hasher SecretVerifier,
	auditLogger audit.Logger,
	authCodeLifetime time.Duration,
) *Service {
	if authCodeLifetime <= 0 {
		authCodeLifetime = 10 * time.Minute
	}
	return &Service{
		clientRepo:       clientRepo,
		tokenRepo:        tokenRepo,
		codeRepo:         codeRepo,
		users:            users,
		signer:           signer,
		cache:            tokenCache,
		hasher:           hasher,
		auditLogger:      auditLogger,
		authCodeLifetime: authCodeLifetime,
	}
}

// AuthorizeRequest represents an OAuth2 authorization request (RFC 6749 Section 4.1.1)
type AuthorizeRequest struct {
	ClientID            string
	RedirectURI         string
	ResponseType        string
	Scope               string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
}

// TokenRequest represents an OAuth2 token request
type TokenRequest struct {
	GrantType    string
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	RefreshToken string
	Code         string
	RedirectURI  string
	CodeVerifier string
	Scope        string
}

// TokenResponse represents an OAuth2 token response (RFC 6749 Section 5.1)
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// IntrospectionResponse represents an RFC 7662 introspection response
type IntrospectionResponse struct {
	Active    bool   `json:"active"`
	Scope     string `json:"scope,omitempty"`
	ClientID  string `json:"client_id,omitempty"`
	Username  string `json:"username,omitempty"`
	Sub       string `json:"sub,omitempty"`
	TokenType string `json:"token_type,omitempty"`
	Exp       int64  `json:"exp,omitempty"`
	Iat       int64  `json:"iat,omitempty"`
	Iss       string `json:"iss,omitempty"`
}

// Token dispatches a token request to the matching grant handler
// (RFC 6749 Section 3.2)
func (s *Service) Token(ctx context.Context, req *TokenRequest) (*TokenResponse, error) {
	switch req.GrantType {
	case GrantTypePassword:
		return s.passwordGrant(ctx, req)
	case GrantTypeRefreshToken:
		return s.refreshTokenGrant(ctx, req)
	case GrantTypeAuthorizationCode:
		return s.authorizationCodeGrant(ctx, req)
	case GrantTypeClientCredentials:
		return s.clientCredentialsGrant(ctx, req)
	case "":
		return nil, NewError(ErrInvalidRequest, "grant_type is required")
	default:
		return nil, NewError(ErrUnsupportedGrantType, "unsupported grant type: "+req.GrantType)
	}
}

// ValidateClientCredentials authenticates a client (RFC 6749 Section 3.2.1).
// Public clients carry no secret and authenticate with an empty one.
func (s *Service) ValidateClientCredentials(ctx context.Context, clientID, clientSecret string) (*Client, error) {
	client, err := s.clientRepo.GetByID(ctx, clientID)
	if err != nil {
		return nil, NewError(ErrServerError, "failed to load client")
	}
	if client == nil {
		return nil, NewError(ErrInvalidClient, "invalid client credentials")
	}

	if !client.IsActive {
		return nil, NewError(ErrInvalidClient, "client is disabled")
	}

	if client.IsPublic() {
		if clientSecret != "" {
			return nil, NewError(ErrInvalidClient, "invalid client credentials")
		}
		return client, nil
	}

	valid, err := s.hasher.Verify(clientSecret, client.ClientSecretHash)
	if err != nil || !valid {
		return nil, NewError(ErrInvalidClient, "invalid client credentials")
	}

	return client, nil
}

// passwordGrant implements the resource owner password credentials grant
// (RFC 6749 Section 4.3)
func (s *Service) passwordGrant(ctx context.Context, req *TokenRequest) (*TokenResponse, error) {
	client, err := s.ValidateClientCredentials(ctx, req.ClientID, req.ClientSecret)
	if err != nil {
		return nil, err
	}

	// Public clients never hold resource owner credentials
	if client.IsPublic() || !client.ValidateGrantType(GrantTypePassword) {
		return nil, NewError(ErrUnauthorizedClient, "client is not authorized for the password grant")
	}

	if req.Username == "" || req.Password == "" {
		return nil, NewError(ErrInvalidRequest, "username and password are required")
	}

	user, err := s.users.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		return nil, NewError(ErrInvalidGrant, "invalid username or password")
	}

	scopes, err := s.resolveScopes(client, req.Scope)
	if err != nil {
		return nil, err
	}

	return s.issueTokens(ctx, user.ID, client, scopes, true)
}

// refreshTokenGrant implements single-use refresh token rotation
// (RFC 6749 Section 6)
func (s *Service) refreshTokenGrant(ctx context.Context, req *TokenRequest) (*TokenResponse, error) {
	client, err := s.ValidateClientCredentials(ctx, req.ClientID, req.ClientSecret)
	if err != nil {
		return nil, err
	}

	if !client.ValidateGrantType(GrantTypeRefreshToken) {
		return nil, NewError(ErrUnauthorizedClient, "client is not authorized for the refresh_token grant")
	}

	if req.RefreshToken == "" {
		return nil, NewError(ErrInvalidRequest, "refresh_token is required")
	}

	claims, err := s.signer.VerifyToken(req.RefreshToken)
	if err != nil || claims.TokenType != TokenTypeRefresh {
		return nil, NewError(ErrInvalidGrant, "invalid refresh token")
	}

	token, err := s.tokenRepo.GetByRefreshToken(ctx, req.RefreshToken)
	if err != nil {
		return nil, NewError(ErrServerError, "failed to load token")
	}
	if token == nil {
		// Already rotated or revoked
		return nil, NewError(ErrInvalidGrant, "refresh token is no longer valid")
	}

	if token.ClientID != client.ID {
		return nil, NewError(ErrInvalidGrant, "refresh token was issued to another client")
	}

	user, err := s.users.GetUser(ctx, token.UserID)
	if err != nil || !user.IsActive {
		return nil, NewError(ErrInvalidGrant, "user is no longer active")
	}

	// Rotation: delete the old pair first. Exactly one concurrent caller
	// wins the delete; the loser's token is gone and it gets invalid_grant.
	revoked, err := s.tokenRepo.Revoke(ctx, token.ID)
	if err != nil {
		return nil, NewError(ErrServerError, "failed to rotate refresh token")
	}
	if !revoked {
		return nil, NewError(ErrInvalidGrant, "refresh token is no longer valid")
	}
	s.dropIntrospectionCache(ctx, token.AccessToken)

	return s.issueTokens(ctx, token.UserID, client, token.Scopes, true)
}

// authorizationCodeGrant redeems an authorization code (RFC 6749 Section 4.1.3)
func (s *Service) authorizationCodeGrant(ctx context.Context, req *TokenRequest) (*TokenResponse, error) {
	client, err := s.ValidateClientCredentials(ctx, req.ClientID, req.ClientSecret)
	if err != nil {
		return nil, err
	}

	if !client.ValidateGrantType(GrantTypeAuthorizationCode) {
		return nil, NewError(ErrUnauthorizedClient, "client is not authorized for the authorization_code grant")
	}

	if req.Code == "" {
		return nil, NewError(ErrInvalidRequest, "code is required")
	}

	code, err := s.codeRepo.GetByCode(ctx, req.Code)
	if err != nil {
		return nil, NewError(ErrServerError, "failed to load authorization code")
	}
	if code == nil {
		return nil, NewError(ErrInvalidGrant, "invalid authorization code")
	}

	if code.IsUsed || code.IsExpired() {
		_ = s.codeRepo.Delete(ctx, code.ID)
		return nil, NewError(ErrInvalidGrant, "invalid authorization code")
	}

	if code.ClientID != client.ID {
		return nil, NewError(ErrInvalidGrant, "authorization code was issued to another client")
	}

	if code.RedirectURI != req.RedirectURI {
		return nil, NewError(ErrInvalidGrant, "redirect_uri mismatch")
	}

	// PKCE verification (RFC 7636 Section 4.6)
	if code.CodeChallenge != "" {
		if req.CodeVerifier == "" {
			return nil, NewError(ErrInvalidRequest, "code_verifier is required")
		}
		if !VerifyPKCE(code.CodeChallenge, code.CodeChallengeMethod, req.CodeVerifier) {
			return nil, NewError(ErrInvalidGrant, "invalid code_verifier")
		}
	} else if client.IsPublic() {
		// Public clients must have bound PKCE at authorization time
		return nil, NewError(ErrInvalidGrant, "authorization code was issued without PKCE")
	}

	won, err := s.codeRepo.MarkAsUsed(ctx, code.ID)
	if err != nil {
		return nil, NewError(ErrServerError, "failed to consume authorization code")
	}
	if !won {
		_ = s.codeRepo.Delete(ctx, code.ID)
		return nil, NewError(ErrInvalidGrant, "invalid authorization code")
	}

	user, err := s.users.GetUser(ctx, code.UserID)
	if err != nil || !user.IsActive {
		return nil, NewError(ErrInvalidGrant, "user is no longer active")
	}

	resp, err := s.issueTokens(ctx, code.UserID, client, code.Scopes, true)
	if err != nil {
		return nil, err
	}

	// The consumed code row is only bookkeeping now
	_ = s.codeRepo.Delete(ctx, code.ID)

	s.auditLogger.Log(ctx, audit.Event{
		Type:    audit.TypeCodeRedeemed,
		ActorID: code.UserID,
		Metadata: map[string]any{
			"client_id": client.ID,
		},
	})

	return resp, nil
}

// clientCredentialsGrant implements the client credentials grant
// (RFC 6749 Section 4.4). The token's subject is the client itself and no
// refresh token is issued.
func (s *Service) clientCredentialsGrant(ctx context.Context, req *TokenRequest) (*TokenResponse, error) {
	client, err := s.ValidateClientCredentials(ctx, req.ClientID, req.ClientSecret)
	if err != nil {
		return nil, err
	}

	if client.IsPublic() || !client.ValidateGrantType(GrantTypeClientCredentials) {
		return nil, NewError(ErrUnauthorizedClient, "client is not authorized for the client_credentials grant")
	}

	scopes, err := s.resolveScopes(client, req.Scope)
	if err != nil {
		return nil, err
	}

	return s.issueTokens(ctx, client.ID, client, scopes, false)
}

// resolveScopes validates requested scopes against the client's allowed set.
// An empty request falls back to the client defaults (RFC 6749 Section 3.3).
func (s *Service) resolveScopes(client *Client, requested string) ([]string, error) {
	scopes := strings.Fields(requested)
	if len(scopes) == 0 {
		return client.Scopes, nil
	}
	if !client.ValidateScopes(scopes) {
		return nil, NewError(ErrInvalidScope, "requested scope exceeds client grants")
	}
	return scopes, nil
}

// issueTokens mints and persists a token pair
func (s *Service) issueTokens(ctx context.Context, userID string, client *Client, scopes []string, withRefresh bool) (*TokenResponse, error) {
	accessToken, expiresAt, err := s.signer.CreateAccessToken(userID, client.ID, scopes, 0)
	if err != nil {
		return nil, NewError(ErrServerError, "failed to issue access token")
	}

	var refreshToken string
	if withRefresh && client.ValidateGrantType(GrantTypeRefreshToken) {
		refreshToken, _, err = s.signer.CreateRefreshToken(userID, client.ID, scopes)
		if err != nil {
			return nil, NewError(ErrServerError, "failed to issue refresh token")
		}
	}

	now := time.Now().UTC()
	token := &Token{
		ID:           uuid.NewString(),
		UserID:       userID,
		ClientID:     client.ID,
		AccessToken:  accessToken,
		TokenType:    "Bearer",
		ExpiresAt:    expiresAt,
		Scopes:       scopes,
		RefreshToken: refreshToken,
		CreatedAt:    now,
	}

	if err := s.tokenRepo.Create(ctx, token); err != nil {
		return nil, NewError(ErrServerError, "failed to persist token")
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:    audit.TypeTokenIssued,
		ActorID: userID,
		Metadata: map[string]any{
			"client_id": client.ID,
			"scope":     strings.Join(scopes, " "),
			"has_rt":    refreshToken != "",
		},
	})

	return &TokenResponse{
		AccessToken:  accessToken,
		TokenType:    "Bearer",
		ExpiresIn:    int(time.Until(expiresAt).Seconds()),
		RefreshToken: refreshToken,
		Scope:        strings.Join(scopes, " "),
	}, nil
}

// ValidateAuthorizeRequest validates an authorization request
// (RFC 6749 Section 4.1.1)
func (s *Service) ValidateAuthorizeRequest(ctx context.Context, req *AuthorizeRequest) (*Client, error) {
	client, err := s.clientRepo.GetByID(ctx, req.ClientID)
	if err != nil {
		return nil, NewError(ErrServerError, "failed to load client")
	}
	if client == nil {
		return nil, NewError(ErrInvalidClient, "invalid client_id")
	}

	if !client.IsActive {
		return nil, NewError(ErrInvalidClient, "client is disabled")
	}

	// Exact-match redirect URI (RFC 6749 Section 3.1.2)
	if !client.ValidateRedirectURI(req.RedirectURI) {
		return nil, NewError(ErrInvalidRequest, "invalid redirect_uri")
	}

	if req.ResponseType != "code" {
		return nil, NewError(ErrUnsupportedResponseType, "response_type must be 'code'")
	}

	if !client.ValidateGrantType(GrantTypeAuthorizationCode) {
		return nil, NewError(ErrInvalidClient, "client is not authorized for the authorization_code grant")
	}

	if req.Scope != "" && !client.ValidateScopes(strings.Fields(req.Scope)) {
		return nil, NewError(ErrInvalidScope, "requested scope exceeds client grants")
	}

	if req.CodeChallenge != "" && !ValidCodeChallengeMethod(req.CodeChallengeMethod) {
		return nil, NewError(ErrInvalidRequest, "transform algorithm not supported")
	}

	// Public clients must bind PKCE at authorization time
	if client.IsPublic() && req.CodeChallenge == "" {
		return nil, NewError(ErrInvalidRequest, "code_challenge is required for public clients")
	}

	return client, nil
}

// CreateAuthorizationCode creates a short-lived authorization code after the
// resource owner approved the request (RFC 6749 Section 4.1.2)
func (s *Service) CreateAuthorizationCode(ctx context.Context, req *AuthorizeRequest, userID string) (*AuthorizationCode, error) {
	scopes := strings.Fields(req.Scope)
	if len(scopes) == 0 {
		client, err := s.clientRepo.GetByID(ctx, req.ClientID)
		if err != nil || client == nil {
			return nil, NewError(ErrServerError, "failed to load client")
		}
		scopes = client.Scopes
	}

	code := &AuthorizationCode{
		ID:                  uuid.NewString(),
		Code:                generateAuthorizationCode(),
		ClientID:            req.ClientID,
		UserID:              userID,
		RedirectURI:         req.RedirectURI,
		Scopes:              scopes,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
		State:               req.State,
		ExpiresAt:           time.Now().UTC().Add(s.authCodeLifetime),
		IsUsed:              false,
		CreatedAt:           time.Now().UTC(),
	}

	if err := s.codeRepo.Create(ctx, code); err != nil {
		return nil, NewError(ErrServerError, "failed to persist authorization code")
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:    audit.TypeCodeIssued,
		ActorID: userID,
		Metadata: map[string]any{
			"client_id": req.ClientID,
		},
	})

	return code, nil
}

// Introspect reports token state per RFC 7662. Backend cache failures are
// logged and treated as misses; the database stays the source of truth.
func (s *Service) Introspect(ctx context.Context, tokenString string) *IntrospectionResponse {
	inactive := &IntrospectionResponse{Active: false}

	claims, err := s.signer.DecodeToken(tokenString)
	if err != nil {
		return inactive
	}

	// Boundary included: a token expiring exactly now is already inactive
	expiresAt := claims.ExpiresAt.Time
	if !expiresAt.After(time.Now()) {
		return inactive
	}

	cacheKey := introspectionCachePrefix + tokenString
	if _, found, err := s.cache.Get(ctx, cacheKey); err != nil {
		slog.WarnContext(ctx, "introspection cache read failed", "error", err)
	} else if found {
		return s.activeResponse(claims)
	}

	// Miss: consult the database for revocation. Only the access-token
	// column is consulted; refresh tokens always introspect as inactive.
	token, err := s.tokenRepo.GetByAccessToken(ctx, tokenString)
	if err != nil || token == nil {
		return inactive
	}

	if err := s.cache.Set(ctx, cacheKey, "1", time.Until(expiresAt)); err != nil {
		slog.WarnContext(ctx, "introspection cache write failed", "error", err)
	}

	return s.activeResponse(claims)
}

func (s *Service) activeResponse(claims *Claims) *IntrospectionResponse {
	return &IntrospectionResponse{
		Active:    true,
		Scope:     strings.Join(claims.Scopes, " "),
		ClientID:  claims.ClientID,
		Username:  claims.Subject,
		Sub:       claims.Subject,
		TokenType: "Bearer",
		Exp:       claims.ExpiresAt.Unix(),
		Iat:       claims.IssuedAt.Unix(),
		Iss:       claims.Issuer,
	}
}

// Revoke invalidates a token per RFC 7009. Unknown tokens and tokens bound
// to another client both yield success; revocation never leaks token state.
func (s *Service) Revoke(ctx context.Context, client *Client, tokenString, tokenTypeHint string) error {
	token, err := s.lookupByHint(ctx, tokenString, tokenTypeHint)
	if err != nil {
		return NewError(ErrServerError, "failed to load token")
	}
	if token == nil || token.ClientID != client.ID {
		return nil
	}

	// Delete the row before the cache entry so a crash between the two can
	// only leave a cache entry that expires on its own TTL.
	if _, err := s.tokenRepo.Revoke(ctx, token.ID); err != nil {
		return NewError(ErrServerError, "failed to revoke token")
	}
	s.dropIntrospectionCache(ctx, token.AccessToken)

	s.auditLogger.Log(ctx, audit.Event{
		Type:    audit.TypeTokenRevoked,
		ActorID: token.UserID,
		Metadata: map[string]any{
			"client_id": client.ID,
		},
	})

	return nil
}

func (s *Service) lookupByHint(ctx context.Context, tokenString, hint string) (*Token, error) {
	if hint == "refresh_token" {
		token, err := s.tokenRepo.GetByRefreshToken(ctx, tokenString)
		if err != nil || token != nil {
			return token, err
		}
		return s.tokenRepo.GetByAccessToken(ctx, tokenString)
	}

	token, err := s.tokenRepo.GetByAccessToken(ctx, tokenString)
	if err != nil || token != nil {
		return token, err
	}
	return s.tokenRepo.GetByRefreshToken(ctx, tokenString)
}

func (s *Service) dropIntrospectionCache(ctx context.Context, tokenString string) {
	if err := s.cache.Delete(ctx, introspectionCachePrefix+tokenString); err != nil {
		slog.WarnContext(ctx, "introspection cache delete failed", "error", err)
	}
}

// VerifyAccessToken verifies a bearer access token for first-party API use:
// valid signature, access type, not expired, not revoked.
func (s *Service) VerifyAccessToken(ctx context.Context, tokenString string) (*Claims, error) {
	claims, err := s.signer.VerifyToken(tokenString)
	if err != nil {
		return nil, ErrTokenExpired
	}
	if claims.TokenType != TokenTypeAccess {
		return nil, ErrTokenNotFound
	}

	token, err := s.tokenRepo.GetByAccessToken(ctx, tokenString)
	if err != nil {
		return nil, err
	}
	if token == nil {
		return nil, ErrTokenNotFound
	}

	return claims, nil
}

// CleanupExpired removes expired tokens and authorization codes
func (s *Service) CleanupExpired(ctx context.Context) (tokens, codes int64, err error) {
	tokens, err = s.tokenRepo.DeleteExpired(ctx)
	if err != nil {
		return 0, 0, err
	}
	codes, err = s.codeRepo.DeleteExpired(ctx)
	if err != nil {
		return tokens, 0, err
	}
	return tokens, codes, nil
}

func generateAuthorizationCode() string {
	b := make([]byte, 32)
	rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
