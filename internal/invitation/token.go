// Package invitation provides the invitation token lifecycle: issuing
// tokens that bind an invitee email to a target group and inviter contact,
// and redeeming them into CRM relation links and identity associations.
package invitation

import (
	"crypto/sha256"
	"encoding/base32"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/katalystmx/dashboard/internal/platform/errors"
	"github.com/katalystmx/dashboard/internal/platform/id"
)

var (
	// ErrEmptyInviteeEmail indicates a missing invitee email.
	ErrEmptyInviteeEmail = apperrors.New(apperrors.CodeMissingParameters, "invitee email is required")
	// ErrEmptyTargetGroupID indicates a missing target group ID.
	ErrEmptyTargetGroupID = apperrors.New(apperrors.CodeMissingParameters, "target group id is required")
	// ErrEmptyInviterContactID indicates a missing inviter contact ID.
	ErrEmptyInviterContactID = apperrors.New(apperrors.CodeMissingParameters, "inviter contact id is required")
)

// Status represents the lifecycle status of an invitation token.
type Status int

const (
	// StatusUnspecified represents an invalid token status.
	StatusUnspecified Status = iota
	// StatusPending indicates a token is available to redeem.
	StatusPending
	// StatusAccepted indicates a token has been redeemed.
	StatusAccepted
)

// Token binds an invitee email to a target group and an inviter contact.
// A token transitions pending to accepted exactly once.
type Token struct {
	Token            string
	InviteeEmail     string
	TargetGroupID    string
	InviterContactID string
	Status           Status
	IssuedAt         time.Time
	ExpiresAt        *time.Time
	AcceptedAt       *time.Time
}

// Expired reports whether the token carries an expiry that has passed.
func (t Token) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && !now.Before(*t.ExpiresAt)
}

// MintInput describes the bindings hashed into a new token.
type MintInput struct {
	InviteeEmail     string
	TargetGroupID    string
	InviterContactID string
	IssuedAt         time.Time
}

// Mint derives an opaque unique token from the invitation bindings, the
// issuance timestamp, and a random salt, hashed and base32-encoded.
func Mint(input MintInput) (string, error) {
	if strings.TrimSpace(input.InviteeEmail) == "" {
		return "", ErrEmptyInviteeEmail
	}
	if strings.TrimSpace(input.TargetGroupID) == "" {
		return "", ErrEmptyTargetGroupID
	}

	salt, err := id.NewID()
	if err != nil {
		return "", fmt.Errorf("generate token salt: %w", err)
	}

	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%d|%s", input.InviteeEmail, input.TargetGroupID,
		input.InviterContactID, input.IssuedAt.UTC().UnixNano(), salt)

	encoded := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(h.Sum(nil))
	return strings.ToLower(encoded), nil
}

// StatusLabel returns the string label for a token status.
func StatusLabel(status Status) string {
	switch status {
	case StatusPending:
		return "PENDING"
	case StatusAccepted:
		return "ACCEPTED"
	default:
		return "UNSPECIFIED"
	}
}

// StatusFromLabel converts a status label to a Status value.
func StatusFromLabel(label string) Status {
	switch strings.ToUpper(strings.TrimSpace(label)) {
	case "PENDING":
		return StatusPending
	case "ACCEPTED":
		return StatusAccepted
	default:
		return StatusUnspecified
	}
}
