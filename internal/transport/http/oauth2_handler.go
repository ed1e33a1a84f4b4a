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

package http

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/identra/identra/internal/audit"
	"github.com/identra/identra/internal/oauth2"
	"github.com/identra/identra/internal/observability/logger"
)

// Authorize validates an authorization request and returns the consent
// payload the authorization UI renders (RFC 6749 Section 4.1.1).
func (h *Handler) Authorize(w http.ResponseWriter, r *http.Request) {
	req := authorizeRequestFromQuery(r)

	client, err := h.oauth2Service.ValidateAuthorizeRequest(r.Context(), req)
	if err != nil {
		slog.ErrorContext(r.Context(), "invalid authorize request",
			logger.Error(err),
			logger.ClientID(req.ClientID),
			logger.RedirectURI(req.RedirectURI),
		)
		h.respondAuthorizeError(w, r, req, err)
		return
	}

	scope := req.Scope
	if scope == "" {
		scope = strings.Join(client.Scopes, " ")
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"client_id":             client.ID,
		"client_name":           client.ClientName,
		"redirect_uri":          req.RedirectURI,
		"scope":                 scope,
		"state":                 req.State,
		"code_challenge":        req.CodeChallenge,
		"code_challenge_method": req.CodeChallengeMethod,
	})
}

// ApproveAuthorize handles the resource owner's consent decision. The
// user_id form field carries the identifier already verified by the caller's
// login layer; on success the browser is redirected back to the client with
// the authorization code.
func (h *Handler) ApproveAuthorize(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.respondOAuthError(w, oauth2.NewError(oauth2.ErrInvalidRequest, "invalid request"))
		return
	}

	req := authorizeRequestFromForm(r)
	if _, err := h.oauth2Service.ValidateAuthorizeRequest(r.Context(), req); err != nil {
		h.respondAuthorizeError(w, r, req, err)
		return
	}

	userID := r.Form.Get("user_id")
	if userID == "" {
		h.respondOAuthError(w, oauth2.NewError(oauth2.ErrInvalidRequest, "user_id is required"))
		return
	}
	user, err := h.identityService.GetUser(r.Context(), userID)
	if err != nil || !user.IsActive {
		h.respondOAuthError(w, oauth2.NewError(oauth2.ErrInvalidRequest, "unknown or inactive user"))
		return
	}

	code, err := h.oauth2Service.CreateAuthorizationCode(r.Context(), req, user.ID)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to create authorization code", logger.Error(err))
		http.Redirect(w, r, addQueryParams(req.RedirectURI, map[string]string{
			"error": oauth2.ErrServerError,
			"state": req.State,
		}), http.StatusFound)
		return
	}

	http.Redirect(w, r, addQueryParams(req.RedirectURI, map[string]string{
		"code":  code.Code,
		"state": req.State,
	}), http.StatusFound)
}

// DenyAuthorize redirects back to the client with access_denied
// (RFC 6749 Section 4.1.2.1). It takes only redirect_uri and an optional
// state; the request being denied needs no further validation.
func (h *Handler) DenyAuthorize(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.respondOAuthError(w, oauth2.NewError(oauth2.ErrInvalidRequest, "invalid request"))
		return
	}

	redirectURI := r.Form.Get("redirect_uri")
	if redirectURI == "" {
		h.respondOAuthError(w, oauth2.NewError(oauth2.ErrInvalidRequest, "redirect_uri is required"))
		return
	}
	state := r.Form.Get("state")

	h.auditLogger.Log(r.Context(), audit.Event{
		Type:      audit.TypeLoginFailed,
		Resource:  r.Form.Get("client_id"),
		IPAddress: getIPAddress(r),
		Metadata:  map[string]any{"reason": "consent_denied"},
	})

	http.Redirect(w, r, addQueryParams(redirectURI, map[string]string{
		"error": oauth2.ErrAccessDenied,
		"state": state,
	}), http.StatusFound)
}

// Token is the token endpoint for all four grant types (RFC 6749 Section 3.2)
func (h *Handler) Token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.respondOAuthError(w, oauth2.NewError(oauth2.ErrInvalidRequest, "invalid request"))
		return
	}

	clientID, clientSecret := clientCredentials(r)

	req := &oauth2.TokenRequest{
		GrantType:    r.Form.Get("grant_type"),
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Username:     r.Form.Get("username"),
		Password:     r.Form.Get("password"),
		RefreshToken: r.Form.Get("refresh_token"),
		Code:         r.Form.Get("code"),
		RedirectURI:  r.Form.Get("redirect_uri"),
		CodeVerifier: r.Form.Get("code_verifier"),
		Scope:        r.Form.Get("scope"),
	}

	resp, err := h.oauth2Service.Token(r.Context(), req)
	if err != nil {
		slog.WarnContext(r.Context(), "token request failed",
			logger.Error(err),
			logger.GrantType(req.GrantType),
			logger.ClientID(req.ClientID),
		)
		h.respondOAuthError(w, err)
		return
	}

	// Prevent caching (RFC 6749 Section 5.1)
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")

	respondJSON(w, http.StatusOK, resp)
}

// Introspect reports token state to an authenticated client (RFC 7662)
func (h *Handler) Introspect(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.respondOAuthError(w, oauth2.NewError(oauth2.ErrInvalidRequest, "invalid request"))
		return
	}

	clientID, clientSecret := clientCredentials(r)
	if _, err := h.oauth2Service.ValidateClientCredentials(r.Context(), clientID, clientSecret); err != nil {
		h.respondOAuthError(w, err)
		return
	}

	token := r.Form.Get("token")
	if token == "" {
		h.respondOAuthError(w, oauth2.NewError(oauth2.ErrInvalidRequest, "missing token"))
		return
	}

	respondJSON(w, http.StatusOK, h.oauth2Service.Introspect(r.Context(), token))
}

// Revoke invalidates a token (RFC 7009). Per Section 2.2 the response is
// 200 OK whether or not the token existed.
func (h *Handler) Revoke(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.respondOAuthError(w, oauth2.NewError(oauth2.ErrInvalidRequest, "invalid request"))
		return
	}

	clientID, clientSecret := clientCredentials(r)
	client, err := h.oauth2Service.ValidateClientCredentials(r.Context(), clientID, clientSecret)
	if err != nil {
		h.respondOAuthError(w, err)
		return
	}

	token := r.Form.Get("token")
	if token == "" {
		h.respondOAuthError(w, oauth2.NewError(oauth2.ErrInvalidRequest, "missing token"))
		return
	}

	if err := h.oauth2Service.Revoke(r.Context(), client, token, r.Form.Get("token_type_hint")); err != nil {
		h.respondOAuthError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// clientCredentials extracts client authentication from the form body or
// HTTP Basic auth (RFC 6749 Section 2.3.1)
func clientCredentials(r *http.Request) (string, string) {
	clientID := r.Form.Get("client_id")
	clientSecret := r.Form.Get("client_secret")
	if clientID == "" {
		if username, password, ok := r.BasicAuth(); ok {
			clientID = username
			clientSecret = password
		}
	}
	return clientID, clientSecret
}

func authorizeRequestFromQuery(r *http.Request) *oauth2.AuthorizeRequest {
	query := r.URL.Query()
	return &oauth2.AuthorizeRequest{
		ClientID:            query.Get("client_id"),
		RedirectURI:         query.Get("redirect_uri"),
		ResponseType:        query.Get("response_type"),
		Scope:               query.Get("scope"),
		State:               query.Get("state"),
		CodeChallenge:       query.Get("code_challenge"),
		CodeChallengeMethod: query.Get("code_challenge_method"),
	}
}

func authorizeRequestFromForm(r *http.Request) *oauth2.AuthorizeRequest {
	return &oauth2.AuthorizeRequest{
		ClientID:            r.Form.Get("client_id"),
		RedirectURI:         r.Form.Get("redirect_uri"),
		ResponseType:        r.Form.Get("response_type"),
		Scope:               r.Form.Get("scope"),
		State:               r.Form.Get("state"),
		CodeChallenge:       r.Form.Get("code_challenge"),
		CodeChallengeMethod: r.Form.Get("code_challenge_method"),
	}
}

// respondAuthorizeError renders a front-channel failure. Client resolution
// failures and an untrusted redirect URI stay on our side; every later error
// sends the browser back to the client (RFC 6749 Section 4.1.2.1).
func (h *Handler) respondAuthorizeError(w http.ResponseWriter, r *http.Request, req *oauth2.AuthorizeRequest, err error) {
	oe, ok := err.(*oauth2.Error)
	if !ok {
		h.respondOAuthError(w, err)
		return
	}

	if oe.Code == oauth2.ErrInvalidClient ||
		(oe.Code == oauth2.ErrInvalidRequest && strings.Contains(oe.Description, "redirect")) {
		h.respondOAuthError(w, err)
		return
	}

	http.Redirect(w, r, addQueryParams(req.RedirectURI, map[string]string{
		"error":             oe.Code,
		"error_description": oe.Description,
		"state":             req.State,
	}), http.StatusFound)
}

// respondOAuthError maps protocol error codes to HTTP status
// (RFC 6749 Section 5.2)
func (h *Handler) respondOAuthError(w http.ResponseWriter, err error) {
	if oauthErr, ok := err.(*oauth2.Error); ok {
		status := http.StatusBadRequest
		switch oauthErr.Code {
		case oauth2.ErrInvalidClient:
			status = http.StatusUnauthorized
			w.Header().Set("WWW-Authenticate", `Basic realm="identra"`)
		case oauth2.ErrServerError:
			status = http.StatusInternalServerError
		}
		respondJSON(w, status, oauthErr)
		return
	}

	// Opaque fallback for internal errors
	respondJSON(w, http.StatusInternalServerError, oauth2.NewError(oauth2.ErrServerError, "internal server error"))
}

// addQueryParams appends URL-encoded query parameters, skipping empty values
func addQueryParams(rawURL string, params map[string]string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	for k, v := range params {
		if v != "" {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}
