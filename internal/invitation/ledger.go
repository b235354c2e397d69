package invitation

import (
	"context"
	"errors"
	"time"

	apperrors "github.com/katalystmx/dashboard/internal/platform/errors"
)

var (
	// ErrTokenNotFound indicates a token is not present in the ledger.
	ErrTokenNotFound = errors.New("invitation token not found")
	// ErrTokenAlreadyExists indicates a token value collision on create.
	ErrTokenAlreadyExists = errors.New("invitation token already exists")
	// ErrAlreadyAccepted indicates the pending-to-accepted transition was
	// already taken; MarkAccepted is a compare-and-swap on status. Redeem
	// treats it as a benign race, so the conflict code only surfaces if a
	// caller returns the error unhandled.
	ErrAlreadyAccepted error = apperrors.New(apperrors.CodeInviteAlreadyAccepted, "invitation token already accepted")
)

// Ledger persists invitation tokens.
type Ledger interface {
	FindByToken(ctx context.Context, token string) (Token, error)
	Create(ctx context.Context, token Token) error
	// MarkAccepted transitions a token from pending to accepted exactly
	// once. A second call fails with ErrAlreadyAccepted instead of
	// rewriting the transition.
	MarkAccepted(ctx context.Context, token string, at time.Time) error
}
