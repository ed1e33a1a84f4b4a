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
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/identra/identra/internal/identity"
	"github.com/identra/identra/internal/oauth2"
	"github.com/identra/identra/internal/observability/logger"
)

// CreateUserRequest is the user registration payload
type CreateUserRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UserResponse is the API representation of a user. The password hash
// never leaves the service layer.
type UserResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toUserResponse(user *identity.User) UserResponse {
	return UserResponse{
		ID:        user.ID,
		Username:  user.Username,
		Email:     user.Email,
		IsActive:  user.IsActive,
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	}
}

// CreateUser registers a new user account
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.identityService.CreateUser(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrUserAlreadyExists):
			respondError(w, http.StatusConflict, err.Error())
		case errors.Is(err, identity.ErrInvalidUsername),
			errors.Is(err, identity.ErrInvalidEmail),
			errors.Is(err, identity.ErrWeakPassword):
			respondError(w, http.StatusBadRequest, err.Error())
		default:
			slog.ErrorContext(r.Context(), "failed to create user", logger.Error(err))
			respondError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	respondJSON(w, http.StatusCreated, toUserResponse(user))
}

// GetUser retrieves a user by ID
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.identityService.GetUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			respondError(w, http.StatusNotFound, "user not found")
			return
		}
		slog.ErrorContext(r.Context(), "failed to get user", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	respondJSON(w, http.StatusOK, toUserResponse(user))
}

// DeactivateUser disables a user account. Existing JWTs stay valid until
// expiry; introspection reports them inactive once their rows are revoked.
func (h *Handler) DeactivateUser(w http.ResponseWriter, r *http.Request) {
	if err := h.identityService.Deactivate(r.Context(), chi.URLParam(r, "userID")); err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			respondError(w, http.StatusNotFound, "user not found")
			return
		}
		slog.ErrorContext(r.Context(), "failed to deactivate user", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

// CreateClientRequest is the client registration payload
type CreateClientRequest struct {
	ClientName   string   `json:"client_name"`
	RedirectURIs []string `json:"redirect_uris"`
	GrantTypes   []string `json:"grant_types"`
	Scopes       []string `json:"scopes"`
	Public       bool     `json:"public"`
}

// CreateClientResponse carries the one-time plaintext secret alongside the
// stored client record
type CreateClientResponse struct {
	*oauth2.Client
	ClientSecret string `json:"client_secret,omitempty"`
}

// CreateClient registers a new OAuth2 client
func (h *Handler) CreateClient(w http.ResponseWriter, r *http.Request) {
	var req CreateClientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	client, secret, err := h.clientService.CreateClient(r.Context(), oauth2.CreateClientInput{
		ClientName:   req.ClientName,
		RedirectURIs: req.RedirectURIs,
		GrantTypes:   req.GrantTypes,
		Scopes:       req.Scopes,
		Public:       req.Public,
	})
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondJSON(w, http.StatusCreated, CreateClientResponse{
		Client:       client,
		ClientSecret: secret,
	})
}

// GetClient retrieves a client by ID
func (h *Handler) GetClient(w http.ResponseWriter, r *http.Request) {
	client, err := h.clientService.GetClient(r.Context(), chi.URLParam(r, "clientID"))
	if err != nil {
		if errors.Is(err, oauth2.ErrClientNotFound) {
			respondError(w, http.StatusNotFound, "client not found")
			return
		}
		slog.ErrorContext(r.Context(), "failed to get client", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	respondJSON(w, http.StatusOK, client)
}

// DeactivateClient disables a client
func (h *Handler) DeactivateClient(w http.ResponseWriter, r *http.Request) {
	if err := h.clientService.Deactivate(r.Context(), chi.URLParam(r, "clientID")); err != nil {
		if errors.Is(err, oauth2.ErrClientNotFound) {
			respondError(w, http.StatusNotFound, "client not found")
			return
		}
		slog.ErrorContext(r.Context(), "failed to deactivate client", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}
