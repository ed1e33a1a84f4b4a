package oauth2

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
)

// PKCE challenge methods (RFC 7636)
const (
	CodeChallengeMethodPlain = "plain"
	CodeChallengeMethodS256  = "S256"
)

// ValidCodeChallengeMethod reports whether the method is supported. The
// empty string is accepted and treated as "plain" (RFC 7636 Section 4.3).
func ValidCodeChallengeMethod(method string) bool {
	return method == "" || method == CodeChallengeMethodPlain || method == CodeChallengeMethodS256
}

// VerifyPKCE checks a code_verifier against the stored challenge
// (RFC 7636 Section 4.6).
func VerifyPKCE(challenge, method, verifier string) bool {
	switch method {
	case "", CodeChallengeMethodPlain:
		return subtle.ConstantTimeCompare([]byte(challenge), []byte(verifier)) == 1
	case CodeChallengeMethodS256:
		hash := sha256.Sum256([]byte(verifier))
		computed := base64.RawURLEncoding.EncodeToString(hash[:])
		return subtle.ConstantTimeCompare([]byte(challenge), []byte(computed)) == 1
	}
	return false
}
