package federation

import (
	"context"

	"github.com/pilab-dev/estate-auth/domain"
)

// ProviderUser is the minimal identity extracted from a successful provider sign-in.
type ProviderUser struct {
	UID         string // Unique ID of the user within the external provider (e.g., Google's 'sub')
	Email       string
	DisplayName string
	PhotoURL    string
}

// Assertion converts the provider user into the reconciliation payload.
func (u *ProviderUser) Assertion() domain.FederatedAssertion {
	if u == nil {
		return domain.FederatedAssertion{}
	}
	return domain.FederatedAssertion{
		FirebaseUID: u.UID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		PhotoURL:    u.PhotoURL,
	}
}

// Provider is an external identity provider.
//
//go:generate go run go.uber.org/mock/mockgen -source=$GOFILE -destination=mock/mock_$GOFILE -package=mock_$GOPACKAGE Provider PendingStore
type Provider interface {
	// Name returns the unique identifier for the provider (e.g., "google").
	Name() string

	// SignInInteractive runs the interactive sign-in and blocks until the user
	// completes or abandons it.
	SignInInteractive(ctx context.Context) (*ProviderUser, error)

	// RedirectResult returns the outcome of a pending redirect-based sign-in,
	// or (nil, nil) when there is none.
	RedirectResult(ctx context.Context) (*ProviderUser, error)

	// SignOut ends the provider-side sign-in.
	SignOut(ctx context.Context) error
}

// PendingStore persists redirect-based sign-ins between process runs.
type PendingStore interface {
	SavePending(ctx context.Context, pending domain.PendingSignIn) error
	// LoadPending returns (nil, nil) when nothing is pending for provider.
	LoadPending(ctx context.Context, provider string) (*domain.PendingSignIn, error)
	DeletePending(ctx context.Context, provider string) error
}
