package domain

import "time"

// PendingSignIn is a redirect-based federated sign-in that was started but whose
// provider callback has not been processed yet.
type PendingSignIn struct {
	Provider    string    `json:"provider"`
	State       string    `json:"state"`
	Verifier    string    `json:"verifier"` // PKCE code verifier
	RedirectURL string    `json:"redirect_url"`
	CreatedAt   time.Time `json:"created_at"`
}
