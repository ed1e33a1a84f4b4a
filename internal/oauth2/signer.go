package oauth2

import (
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token type claim values
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Claims are the JWT claims carried by every issued token
type Claims struct {
	ClientID  string   `json:"client_id"`
	Scopes    []string `json:"scopes"`
	TokenType string   `json:"type"`
	jwt.RegisteredClaims
}

// JWK represents a JSON Web Key (RFC 7517)
type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// JWKS represents a JSON Web Key Set (RFC 7517)
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// Signer mints and verifies RS256 JWTs. Keys are loaded once at startup and
// never rotated at runtime.
type Signer struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	kid        string
}

// NewSigner creates a signer from PEM-encoded RSA key material
func NewSigner(privatePEM, publicPEM []byte, issuer string, accessTTL, refreshTTL time.Duration) (*Signer, error) {
	privateKey, err := jwt.ParseRSAPrivateKeyFromPEM(privatePEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	publicKey, err := jwt.ParseRSAPublicKeyFromPEM(publicPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}

	// Stable, deterministic kid derived from the modulus
	hash := sha256.Sum256(publicKey.N.Bytes())
	kid := base64.RawURLEncoding.EncodeToString(hash[:16])

	return &Signer{
		privateKey: privateKey,
		publicKey:  publicKey,
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		kid:        kid,
	}, nil
}

// CreateAccessToken mints a signed access token. A non-positive expiresIn
// falls back to the configured default lifetime.
func (s *Signer) CreateAccessToken(userID, clientID string, scopes []string, expiresIn time.Duration) (string, time.Time, error) {
	if expiresIn <= 0 {
		expiresIn = s.accessTTL
	}
	return s.mint(userID, clientID, scopes, TokenTypeAccess, expiresIn)
}

// CreateRefreshToken mints a signed refresh token
func (s *Signer) CreateRefreshToken(userID, clientID string, scopes []string) (string, time.Time, error) {
	return s.mint(userID, clientID, scopes, TokenTypeRefresh, s.refreshTTL)
}

func (s *Signer) mint(userID, clientID string, scopes []string, tokenType string, ttl time.Duration) (string, time.Time, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(ttl)

	claims := &Claims{
		ClientID:  clientID,
		Scopes:    scopes,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    s.issuer,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = s.kid

	signed, err := token.SignedString(s.privateKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// VerifyToken verifies signature, issuer and expiry, returning the claims
func (s *Signer) VerifyToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, s.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(s.issuer),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// DecodeToken verifies the signature but skips expiry validation, so callers
// can inspect claims of expired tokens (introspection, revocation).
func (s *Signer) DecodeToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, s.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

func (s *Signer) keyFunc(token *jwt.Token) (any, error) {
	return s.publicKey, nil
}

// GetJWKS returns the public key in JWKS format (RFC 7517)
func (s *Signer) GetJWKS() JWKS {
	n := base64.RawURLEncoding.EncodeToString(s.publicKey.N.Bytes())
	e := base64.RawURLEncoding.EncodeToString(bigIntToBytes(s.publicKey.E))

	return JWKS{
		Keys: []JWK{
			{
				Kty: "RSA",
				Use: "sig",
				Alg: "RS256",
				Kid: s.kid,
				N:   n,
				E:   e,
			},
		},
	}
}

func bigIntToBytes(n int) []byte {
	if n == 0 {
		return []byte{0}
	}
	var res []byte
	for n > 0 {
		res = append([]byte{byte(n & 0xff)}, res...)
		n >>= 8
	}
	return res
}
