// Package identity provides the application-owned user identity model that
// bridges local accounts and external CRM contact items.
package identity

import (
	"strings"
	"time"

	apperrors "github.com/katalystmx/dashboard/internal/platform/errors"
)

// ErrInvalidEmail indicates a missing or malformed email address.
var ErrInvalidEmail = apperrors.New(apperrors.CodeInvalidEmail, "a valid email address is required")

// Identity is one application user record keyed by email.
//
// ExternalContactID references the CRM contact item for this person. It is
// set at most once; contacts and identities are 1:1 and never reassigned.
type Identity struct {
	Email              string
	DisplayName        string
	ExternalContactID  string
	AssociatedGroupIDs []string
	VerifiedAt         *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// NormalizeEmail lowercases and trims an email address and applies a
// syntactic sanity check. Full RFC validation is left to the mail provider.
func NormalizeEmail(email string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))
	if normalized == "" {
		return "", ErrInvalidEmail
	}
	at := strings.Index(normalized, "@")
	if at <= 0 || at == len(normalized)-1 {
		return "", ErrInvalidEmail
	}
	if !strings.Contains(normalized[at+1:], ".") {
		return "", ErrInvalidEmail
	}
	if strings.ContainsAny(normalized, " \t\n") {
		return "", ErrInvalidEmail
	}
	return normalized, nil
}
