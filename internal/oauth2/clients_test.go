package oauth2_test

import (
	"context"
	"testing"

	"github.com/identra/identra/internal/audit"
	"github.com/identra/identra/internal/identity"
	"github.com/identra/identra/internal/oauth2"
	"github.com/identra/identra/internal/store/memory"
)

// TestPurpose: Validates client registration: secret handling for
// confidential clients, grant restrictions for public ones, deactivation.
// Scope: Unit Test
// Security: Secret storage (hash only) and one-time disclosure
func TestOAuth2_ClientService(t *testing.T) {
	repo := memory.NewClientRepository()
	hasher := identity.NewPasswordHasher(1024, 1, 1, 16, 32)
	svc := oauth2.NewClientService(repo, hasher, audit.NewSlogLogger())
	ctx := context.Background()

	client, secret, err := svc.CreateClient(ctx, oauth2.CreateClientInput{
		ClientName:   "web-app",
		RedirectURIs: []string{"https://app.example.com/callback"},
		GrantTypes:   []string{"authorization_code", "refresh_token"},
		Scopes:       []string{"read"},
	})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	if secret == "" {
		t.Fatal("expected a generated secret for a confidential client")
	}
	if client.ClientSecretHash == "" || client.ClientSecretHash == secret {
		t.Error("expected only a hash of the secret to be stored")
	}
	if !client.IsConfidential || !client.IsActive {
		t.Errorf("unexpected client flags: %+v", client)
	}

	ok, err := hasher.Verify(secret, client.ClientSecretHash)
	if err != nil || !ok {
		t.Errorf("stored hash must verify the returned secret, got ok=%v err=%v", ok, err)
	}

	// Public clients carry no secret and cannot hold credential grants
	public, publicSecret, err := svc.CreateClient(ctx, oauth2.CreateClientInput{
		ClientName:   "spa",
		RedirectURIs: []string{"https://spa.example.com/cb"},
		GrantTypes:   []string{"authorization_code"},
		Public:       true,
	})
	if err != nil {
		t.Fatalf("failed to create public client: %v", err)
	}
	if publicSecret != "" || !public.IsPublic() {
		t.Error("public client must have no secret")
	}

	if _, _, err := svc.CreateClient(ctx, oauth2.CreateClientInput{
		ClientName:   "bad-spa",
		RedirectURIs: []string{"https://spa.example.com/cb"},
		GrantTypes:   []string{"password"},
		Public:       true,
	}); err == nil {
		t.Error("public client with password grant must be rejected")
	}

	if _, _, err := svc.CreateClient(ctx, oauth2.CreateClientInput{
		ClientName:   "bad-grant",
		RedirectURIs: []string{"https://app.example.com/callback"},
		GrantTypes:   []string{"implicit"},
	}); err == nil {
		t.Error("unknown grant type must be rejected")
	}

	// Every client registers at least one redirect URI
	if _, _, err := svc.CreateClient(ctx, oauth2.CreateClientInput{
		ClientName: "no-redirect",
		GrantTypes: []string{"client_credentials"},
	}); err == nil {
		t.Error("client without a redirect URI must be rejected")
	}

	if err := svc.Deactivate(ctx, client.ID); err != nil {
		t.Fatalf("failed to deactivate: %v", err)
	}
	got, err := svc.GetClient(ctx, client.ID)
	if err != nil {
		t.Fatalf("failed to load client: %v", err)
	}
	if got.IsActive {
		t.Error("expected client inactive after deactivation")
	}

	if _, err := svc.GetClient(ctx, "ghost"); err != oauth2.ErrClientNotFound {
		t.Errorf("expected ErrClientNotFound, got %v", err)
	}
}
