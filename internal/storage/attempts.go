package storage

import (
	"context"
	"time"

	"github.com/pilab-dev/estate-auth/domain"
	"github.com/pilab-dev/estate-auth/log"
)

const attemptsBucket = "submission_attempts"

// AttemptStore remembers the last accepted credential submission per
// operation kind and profile. Entries expire with their cooldown window.
type AttemptStore struct {
	store   *BBoltStore
	profile string
	logger  log.Logger
}

// NewAttemptStore returns the attempt store for profile.
func NewAttemptStore(store *BBoltStore, profile string, logger log.Logger) *AttemptStore {
	if logger == nil {
		logger = log.NewNop()
	}
	return &AttemptStore{
		store:   store,
		profile: profile,
		logger:  logger.With(map[string]interface{}{"component": "attempt_store", "profile": profile}),
	}
}

func (a *AttemptStore) key(kind domain.OperationKind) string {
	return a.profile + "/" + string(kind)
}

// LastAttempt reports the stored attempt time. Read failures count as no
// attempt; the in-process gate still applies.
func (a *AttemptStore) LastAttempt(kind domain.OperationKind) (time.Time, bool) {
	raw, _, found, err := a.store.Get(attemptsBucket, a.key(kind))
	if err != nil {
		a.logger.Warn(context.Background(), "failed to read submission attempt", map[string]interface{}{
			"operation": string(kind),
			"error":     err.Error(),
		})
		return time.Time{}, false
	}
	if !found {
		return time.Time{}, false
	}

	var at time.Time
	if err := at.UnmarshalText(raw); err != nil {
		a.logger.Warn(context.Background(), "discarding corrupt submission attempt", map[string]interface{}{
			"operation": string(kind),
			"error":     err.Error(),
		})
		return time.Time{}, false
	}
	return at, true
}

// RecordAttempt stores at until the window has passed.
func (a *AttemptStore) RecordAttempt(kind domain.OperationKind, at time.Time, window time.Duration) {
	if window <= 0 {
		return
	}
	raw, err := at.MarshalText()
	if err == nil {
		err = a.store.Set(attemptsBucket, a.key(kind), raw, window)
	}
	if err != nil {
		a.logger.Warn(context.Background(), "failed to record submission attempt", map[string]interface{}{
			"operation": string(kind),
			"error":     err.Error(),
		})
	}
}
