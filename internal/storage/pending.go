package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pilab-dev/estate-auth/domain"
)

const (
	pendingBucket = "pending_sign_ins"

	// PendingSignInTTL bounds how long a started redirect sign-in can be resumed.
	PendingSignInTTL = 15 * time.Minute
)

// PendingStore keeps redirect sign-ins that were started but not yet
// completed, scoped to a profile.
type PendingStore struct {
	store   *BBoltStore
	profile string
}

// NewPendingStore returns the pending sign-in store for profile.
func NewPendingStore(store *BBoltStore, profile string) *PendingStore {
	return &PendingStore{store: store, profile: profile}
}

func (p *PendingStore) key(provider string) string {
	return p.profile + "/" + provider
}

// SavePending replaces any pending sign-in for the same provider.
func (p *PendingStore) SavePending(_ context.Context, pending domain.PendingSignIn) error {
	raw, err := json.Marshal(pending)
	if err != nil {
		return fmt.Errorf("failed to encode pending sign-in: %w", err)
	}
	return p.store.Set(pendingBucket, p.key(pending.Provider), raw, PendingSignInTTL)
}

// LoadPending returns (nil, nil) when nothing is pending or the entry expired.
func (p *PendingStore) LoadPending(_ context.Context, provider string) (*domain.PendingSignIn, error) {
	raw, _, found, err := p.store.Get(pendingBucket, p.key(provider))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	var pending domain.PendingSignIn
	if err := json.Unmarshal(raw, &pending); err != nil {
		return nil, fmt.Errorf("failed to decode pending sign-in: %w", err)
	}
	return &pending, nil
}

func (p *PendingStore) DeletePending(_ context.Context, provider string) error {
	return p.store.Delete(pendingBucket, p.key(provider))
}
