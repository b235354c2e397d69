// Package storage defines the persistence boundary for identity records and
// the registration guard locks.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/katalystmx/dashboard/internal/identity"
)

var (
	// ErrNotFound indicates a requested identity record is missing.
	ErrNotFound = errors.New("identity not found")
	// ErrAlreadyExists indicates a write conflicted with an existing record.
	ErrAlreadyExists = errors.New("identity already exists")
	// ErrContactAlreadyBound indicates the identity already references a
	// different CRM contact. The binding is write-once.
	ErrContactAlreadyBound = errors.New("identity is bound to another contact")
)

// Store persists identity records. Identities are never hard-deleted.
type Store interface {
	FindByEmail(ctx context.Context, email string) (identity.Identity, error)
	FindByContactID(ctx context.Context, contactID string) (identity.Identity, error)
	Create(ctx context.Context, ident identity.Identity) error
	SetExternalContactID(ctx context.Context, email, contactID string) error
	AddAssociatedGroup(ctx context.Context, email, groupID string) error
}

// RegistrationLocker is a short-lived, store-backed exclusion guard keyed by
// email. Unlike an in-process set, acquisition is correct across multiple
// server instances sharing the store.
type RegistrationLocker interface {
	TryAcquireRegistration(ctx context.Context, email string, ttl time.Duration) (bool, error)
	ReleaseRegistration(ctx context.Context, email string) error
}
