// Package contact reconciles local identities with CRM contact items: given
// an email it finds the existing contact item or creates one, keeping the
// identity's contact binding consistent either way.
package contact

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/katalystmx/dashboard/internal/crm"
	"github.com/katalystmx/dashboard/internal/crm/columns"
	"github.com/katalystmx/dashboard/internal/identity"
	identitystorage "github.com/katalystmx/dashboard/internal/identity/storage"
	apperrors "github.com/katalystmx/dashboard/internal/platform/errors"
)

const defaultLockTTL = 30 * time.Second

// ErrResolutionInProgress indicates another request currently holds the
// per-email resolution lock.
var ErrResolutionInProgress = apperrors.New(apperrors.CodeRegistrationInProgress,
	"contact resolution already in progress for this email")

// CRM is the transport surface the resolver needs.
type CRM interface {
	ItemsByColumnValue(ctx context.Context, boardID, columnID, value string) ([]crm.Item, error)
	CreateItem(ctx context.Context, boardID, name string, columnValues map[string]any) (string, error)
}

// IdentityStore is the identity persistence surface the resolver needs.
type IdentityStore interface {
	FindByEmail(ctx context.Context, email string) (identity.Identity, error)
	Create(ctx context.Context, ident identity.Identity) error
	SetExternalContactID(ctx context.Context, email, contactID string) error
}

// Profile carries optional person fields applied when a contact item has to
// be created. Fields without a mapped board column are omitted.
type Profile struct {
	Email        string
	FirstName    string
	PaternalName string
	MaternalName string
	Phone        string
	StatusLabel  string
}

// DisplayName derives the item name for a new contact.
func (p Profile) DisplayName() string {
	name := strings.TrimSpace(strings.TrimSpace(p.FirstName) + " " + strings.TrimSpace(p.PaternalName))
	if name == "" {
		return p.Email
	}
	return name
}

// Result reports the outcome of one resolution.
type Result struct {
	ContactID string
	// Created is true when a new CRM contact item was created by this call.
	Created bool
}

// Config wires a Resolver.
type Config struct {
	CRM        CRM
	Identities IdentityStore
	Locks      identitystorage.RegistrationLocker
	BoardID    string
	Mapping    columns.Mapping
	LockTTL    time.Duration
	Clock      func() time.Time
}

// Resolver performs contact resolution. Calls for the same email are
// collapsed in-process through singleflight and serialized across processes
// through the store-backed registration lock, so at most one contact item is
// created per email.
type Resolver struct {
	cfg   Config
	group singleflight.Group
}

// NewResolver builds a Resolver.
func NewResolver(cfg Config) (*Resolver, error) {
	if cfg.CRM == nil {
		return nil, fmt.Errorf("crm client is required")
	}
	if cfg.Identities == nil {
		return nil, fmt.Errorf("identity store is required")
	}
	if strings.TrimSpace(cfg.BoardID) == "" {
		return nil, fmt.Errorf("contacts board id is required")
	}
	if _, ok := cfg.Mapping.ColumnID(columns.FieldEmail); !ok {
		return nil, fmt.Errorf("contact mapping must resolve the email column")
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = defaultLockTTL
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Resolver{cfg: cfg}, nil
}

// Resolve returns the CRM contact item ID for an email, creating the contact
// and backfilling the identity binding as needed.
func (r *Resolver) Resolve(ctx context.Context, email string) (Result, error) {
	return r.ResolveProfile(ctx, Profile{Email: email})
}

// ResolveProfile is Resolve with optional person fields for item creation.
func (r *Resolver) ResolveProfile(ctx context.Context, profile Profile) (Result, error) {
	normalized, err := identity.NormalizeEmail(profile.Email)
	if err != nil {
		return Result{}, err
	}
	profile.Email = normalized

	value, err, _ := r.group.Do(normalized, func() (any, error) {
		return r.resolve(ctx, profile)
	})
	if err != nil {
		return Result{}, err
	}
	return value.(Result), nil
}

func (r *Resolver) resolve(ctx context.Context, profile Profile) (Result, error) {
	email := profile.Email

	ident, err := r.cfg.Identities.FindByEmail(ctx, email)
	identityExists := err == nil
	if err != nil && !errors.Is(err, identitystorage.ErrNotFound) {
		return Result{}, fmt.Errorf("find identity: %w", err)
	}
	if identityExists && ident.ExternalContactID != "" {
		return Result{ContactID: ident.ExternalContactID}, nil
	}

	if r.cfg.Locks != nil {
		acquired, err := r.cfg.Locks.TryAcquireRegistration(ctx, email, r.cfg.LockTTL)
		if err != nil {
			return Result{}, fmt.Errorf("acquire resolution lock: %w", err)
		}
		if !acquired {
			return Result{}, ErrResolutionInProgress
		}
		defer func() {
			_ = r.cfg.Locks.ReleaseRegistration(ctx, email)
		}()

		// Another holder may have completed between our first read and
		// taking the lock.
		ident, err = r.cfg.Identities.FindByEmail(ctx, email)
		identityExists = err == nil
		if err != nil && !errors.Is(err, identitystorage.ErrNotFound) {
			return Result{}, fmt.Errorf("re-check identity: %w", err)
		}
		if identityExists && ident.ExternalContactID != "" {
			return Result{ContactID: ident.ExternalContactID}, nil
		}
	}

	emailColumnID, _ := r.cfg.Mapping.ColumnID(columns.FieldEmail)
	items, err := r.cfg.CRM.ItemsByColumnValue(ctx, r.cfg.BoardID, emailColumnID, email)
	if err != nil {
		return Result{}, err
	}
	if len(items) > 0 {
		contactID := items[0].ID
		if err := r.persistBinding(ctx, profile, contactID, identityExists); err != nil {
			return Result{}, err
		}
		return Result{ContactID: contactID}, nil
	}

	contactID, err := r.cfg.CRM.CreateItem(ctx, r.cfg.BoardID, profile.DisplayName(), r.columnValues(profile))
	if err != nil {
		return Result{}, err
	}
	if err := r.persistBinding(ctx, profile, contactID, identityExists); err != nil {
		return Result{}, err
	}
	return Result{ContactID: contactID, Created: true}, nil
}

func (r *Resolver) persistBinding(ctx context.Context, profile Profile, contactID string, identityExists bool) error {
	if identityExists {
		if err := r.cfg.Identities.SetExternalContactID(ctx, profile.Email, contactID); err != nil {
			if errors.Is(err, identitystorage.ErrContactAlreadyBound) {
				return apperrors.Wrap(apperrors.CodeContactAlreadyBound,
					"identity is already bound to a different contact", err)
			}
			return fmt.Errorf("backfill contact id: %w", err)
		}
		return nil
	}

	now := r.cfg.Clock().UTC()
	err := r.cfg.Identities.Create(ctx, identity.Identity{
		Email:             profile.Email,
		DisplayName:       profile.DisplayName(),
		ExternalContactID: contactID,
		CreatedAt:         now,
		UpdatedAt:         now,
	})
	if err != nil {
		if errors.Is(err, identitystorage.ErrAlreadyExists) {
			// Lost a create race; fall back to the backfill path.
			return r.persistBinding(ctx, profile, contactID, true)
		}
		return fmt.Errorf("create identity: %w", err)
	}
	return nil
}

// columnValues maps profile fields through the board mapping, omitting any
// field without a resolved column.
func (r *Resolver) columnValues(profile Profile) map[string]any {
	values := make(map[string]any)
	if id, ok := r.cfg.Mapping.ColumnID(columns.FieldEmail); ok {
		values[id] = map[string]any{"email": profile.Email, "text": profile.Email}
	}
	setText := func(field, text string) {
		text = strings.TrimSpace(text)
		if text == "" {
			return
		}
		if id, ok := r.cfg.Mapping.ColumnID(field); ok {
			values[id] = text
		}
	}
	setText(columns.FieldFirstName, profile.FirstName)
	setText(columns.FieldPaternalName, profile.PaternalName)
	setText(columns.FieldMaternalName, profile.MaternalName)
	if phone := strings.TrimSpace(profile.Phone); phone != "" {
		if id, ok := r.cfg.Mapping.ColumnID(columns.FieldPhone); ok {
			values[id] = map[string]any{"phone": phone}
		}
	}
	if label := strings.TrimSpace(profile.StatusLabel); label != "" {
		if col, ok := r.cfg.Mapping.Column(columns.FieldStatus); ok {
			if value, ok := columns.LabelColumnValue(col, label); ok {
				values[col.ID] = value
			}
		}
	}
	return values
}
