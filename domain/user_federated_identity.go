package domain

import (
	"errors"
	"strings"
)

// FederatedAssertion is the minimal identity assertion extracted from an external
// identity provider and sent to POST /api/firebase-auth for reconciliation
// against the application's own user records.
type FederatedAssertion struct {
	FirebaseUID string `json:"firebaseUid"` // User's unique ID at the external provider
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoURL"`
}

var (
	errMissingProviderUID = errors.New("federated identity is missing the provider user id")
	errMissingEmail       = errors.New("federated identity is missing an email address")
)

// Validate reports whether the assertion carries the fields the server needs to
// reconcile it. It never touches the network.
func (a FederatedAssertion) Validate() error {
	if strings.TrimSpace(a.FirebaseUID) == "" {
		return errMissingProviderUID
	}
	if strings.TrimSpace(a.Email) == "" {
		return errMissingEmail
	}
	return nil
}
