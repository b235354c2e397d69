package invitation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/katalystmx/dashboard/internal/contact"
	"github.com/katalystmx/dashboard/internal/crm"
	"github.com/katalystmx/dashboard/internal/crm/columns"
	"github.com/katalystmx/dashboard/internal/identity"
	identitystorage "github.com/katalystmx/dashboard/internal/identity/storage"
	"github.com/katalystmx/dashboard/internal/mailer"
	"github.com/katalystmx/dashboard/internal/mailer/render"
	apperrors "github.com/katalystmx/dashboard/internal/platform/errors"
)

// CRM is the transport surface the service needs for relation mutations.
type CRM interface {
	ItemColumnValues(ctx context.Context, itemID string, columnIDs []string) ([]crm.ColumnValue, error)
	ChangeColumnValues(ctx context.Context, boardID, itemID string, columnValues map[string]any) error
}

// ContactResolver resolves an email into a CRM contact item ID. A
// successful Resolve leaves an identity row bound to the returned
// contact ID in the identity store; Redeem records the group
// association against that row.
type ContactResolver interface {
	Resolve(ctx context.Context, email string) (contact.Result, error)
}

// IdentityStore is the identity persistence surface the service needs.
type IdentityStore interface {
	FindByEmail(ctx context.Context, email string) (identity.Identity, error)
	FindByContactID(ctx context.Context, contactID string) (identity.Identity, error)
	AddAssociatedGroup(ctx context.Context, email, groupID string) error
}

// ServiceConfig wires the invitation orchestrator.
type ServiceConfig struct {
	Ledger     Ledger
	Identities IdentityStore
	Contacts   ContactResolver
	CRM        CRM
	Mailer     mailer.Mailer

	// GroupsBoardID is the board holding group/program items; GroupMapping
	// is resolved against that board's schema at startup and must bind the
	// contact relation column.
	GroupsBoardID string
	GroupMapping  columns.Mapping

	BaseURL    string
	LinkSecret []byte
	// TokenTTL bounds token lifetime. Zero disables expiry.
	TokenTTL time.Duration
	Locale   string

	Clock func() time.Time
}

// Service orchestrates the invitation lifecycle across the ledger, the
// identity store, and the CRM.
type Service struct {
	cfg    ServiceConfig
	tracer trace.Tracer
}

// NewService builds the invitation service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Ledger == nil {
		return nil, fmt.Errorf("invitation ledger is required")
	}
	if cfg.Identities == nil {
		return nil, fmt.Errorf("identity store is required")
	}
	if cfg.Contacts == nil {
		return nil, fmt.Errorf("contact resolver is required")
	}
	if cfg.CRM == nil {
		return nil, fmt.Errorf("crm client is required")
	}
	if cfg.Mailer == nil {
		return nil, fmt.Errorf("mailer is required")
	}
	if strings.TrimSpace(cfg.GroupsBoardID) == "" {
		return nil, fmt.Errorf("groups board id is required")
	}
	if _, ok := cfg.GroupMapping.ColumnID(columns.FieldContactLink); !ok {
		return nil, fmt.Errorf("group mapping must resolve the contact relation column")
	}
	if len(cfg.LinkSecret) == 0 {
		return nil, fmt.Errorf("link signing secret is required")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Service{cfg: cfg, tracer: otel.Tracer("katalyst.invitation")}, nil
}

// IssueInput describes one invitation request.
type IssueInput struct {
	InviteeEmail     string
	InviteeName      string
	TargetGroupID    string
	GroupName        string
	InviterContactID string
}

// IssueResult reports the minted token and whether the invitee was already
// known. KnownInvitee varies email copy only, never behavior.
type IssueResult struct {
	Token        Token
	Link         string
	KnownInvitee bool
}

// Issue resolves or creates the invitee's CRM contact, mints a pending
// token, and mails the signed redemption link.
func (s *Service) Issue(ctx context.Context, input IssueInput) (IssueResult, error) {
	ctx, span := s.tracer.Start(ctx, "invitation.issue")
	defer span.End()

	email, err := identity.NormalizeEmail(input.InviteeEmail)
	if err != nil {
		return IssueResult{}, err
	}
	groupID := strings.TrimSpace(input.TargetGroupID)
	if groupID == "" {
		return IssueResult{}, ErrEmptyTargetGroupID
	}
	inviterID := strings.TrimSpace(input.InviterContactID)
	if inviterID == "" {
		return IssueResult{}, ErrEmptyInviterContactID
	}

	resolved, err := s.cfg.Contacts.Resolve(ctx, email)
	if err != nil {
		return IssueResult{}, err
	}
	known := !resolved.Created

	now := s.cfg.Clock().UTC()
	value, err := Mint(MintInput{
		InviteeEmail:     email,
		TargetGroupID:    groupID,
		InviterContactID: inviterID,
		IssuedAt:         now,
	})
	if err != nil {
		return IssueResult{}, fmt.Errorf("mint token: %w", err)
	}

	token := Token{
		Token:            value,
		InviteeEmail:     email,
		TargetGroupID:    groupID,
		InviterContactID: inviterID,
		Status:           StatusPending,
		IssuedAt:         now,
	}
	if s.cfg.TokenTTL > 0 {
		expiresAt := now.Add(s.cfg.TokenTTL)
		token.ExpiresAt = &expiresAt
	}

	if err := s.cfg.Ledger.Create(ctx, token); err != nil {
		return IssueResult{}, fmt.Errorf("persist invitation token: %w", err)
	}

	link, err := SignRedemptionLink(s.cfg.LinkSecret, s.cfg.BaseURL, token)
	if err != nil {
		return IssueResult{}, fmt.Errorf("sign redemption link: %w", err)
	}

	rendered := render.Invitation(s.cfg.Locale, render.Input{
		InviteeName:  input.InviteeName,
		GroupName:    input.GroupName,
		Link:         link,
		KnownInvitee: known,
	})
	if err := s.cfg.Mailer.Send(ctx, mailer.Message{
		To:      email,
		Subject: rendered.Subject,
		HTML:    rendered.HTML,
	}); err != nil {
		return IssueResult{}, err
	}

	span.SetAttributes(attribute.Bool("invitation.known_invitee", known))
	return IssueResult{Token: token, Link: link, KnownInvitee: known}, nil
}

// RedeemInput identifies the invitation to redeem. Token may be empty when
// the caller already possesses both the target group and inviter contact
// IDs (tokenless redemption).
type RedeemInput struct {
	Token            string
	TargetGroupID    string
	InviterContactID string
}

// RedeemResult reports the effect of one redemption.
type RedeemResult struct {
	Email           string
	ContactID       string
	GroupID         string
	AlreadyAccepted bool
}

// Redeem links the invitee's CRM contact to the target group item, marks the
// token accepted, and records the association on the identity.
//
// The CRM relation write happens before any local state commit: a failed
// relation write leaves the token pending and the identity unmodified, so
// re-running Redeem is always safe.
func (s *Service) Redeem(ctx context.Context, input RedeemInput) (RedeemResult, error) {
	ctx, span := s.tracer.Start(ctx, "invitation.redeem")
	defer span.End()

	token, err := s.lookupToken(ctx, input.Token)
	if err != nil {
		return RedeemResult{}, err
	}

	groupID := strings.TrimSpace(input.TargetGroupID)
	inviterID := strings.TrimSpace(input.InviterContactID)
	var email string
	now := s.cfg.Clock().UTC()

	if token != nil {
		groupID = token.TargetGroupID
		inviterID = token.InviterContactID
		email = token.InviteeEmail

		if token.Status == StatusAccepted {
			// Idempotent re-redemption: success-equivalent, no mutations.
			span.SetAttributes(attribute.Bool("invitation.already_accepted", true))
			return RedeemResult{Email: email, GroupID: groupID, AlreadyAccepted: true}, nil
		}
		if token.Expired(now) {
			return RedeemResult{}, apperrors.WithMetadata(apperrors.CodeInviteTokenExpired,
				"invitation token has expired", map[string]string{"token": token.Token})
		}
	} else {
		// Tokenless redemption is supported when the caller supplies both
		// IDs; the invitee is the inviter's own identity in that case.
		if groupID == "" || inviterID == "" {
			return RedeemResult{}, apperrors.New(apperrors.CodeMissingParameters,
				"target group id and inviter contact id are required without a stored invitation")
		}
		ident, err := s.cfg.Identities.FindByContactID(ctx, inviterID)
		if err != nil {
			if errors.Is(err, identitystorage.ErrNotFound) {
				return RedeemResult{}, apperrors.WithMetadata(apperrors.CodeIdentityNotFound,
					"no identity is bound to the inviter contact",
					map[string]string{"contact_id": inviterID})
			}
			return RedeemResult{}, fmt.Errorf("find inviter identity: %w", err)
		}
		email = ident.Email
	}

	resolved, err := s.cfg.Contacts.Resolve(ctx, email)
	if err != nil {
		return RedeemResult{}, err
	}
	contactID := resolved.ContactID

	if err := s.linkContactToGroup(ctx, groupID, contactID); err != nil {
		return RedeemResult{}, err
	}

	alreadyAccepted := false
	if token != nil {
		err := s.cfg.Ledger.MarkAccepted(ctx, token.Token, now)
		if err != nil {
			if errors.Is(err, ErrAlreadyAccepted) {
				// A concurrent redeem took the transition; the relation
				// merge above is set-semantic, so this is benign.
				alreadyAccepted = true
			} else {
				return RedeemResult{}, fmt.Errorf("mark token accepted: %w", err)
			}
		}
	}

	if err := s.cfg.Identities.AddAssociatedGroup(ctx, email, groupID); err != nil {
		return RedeemResult{}, fmt.Errorf("record group association: %w", err)
	}

	span.SetAttributes(
		attribute.String("invitation.group_id", groupID),
		attribute.Bool("invitation.already_accepted", alreadyAccepted),
	)
	return RedeemResult{
		Email:           email,
		ContactID:       contactID,
		GroupID:         groupID,
		AlreadyAccepted: alreadyAccepted,
	}, nil
}

// RedeemGrant verifies a signed redemption grant and redeems it.
func (s *Service) RedeemGrant(ctx context.Context, grant string) (RedeemResult, error) {
	claims, err := ParseRedemptionGrant(s.cfg.LinkSecret, grant, s.cfg.Clock)
	if err != nil {
		return RedeemResult{}, err
	}
	return s.Redeem(ctx, RedeemInput{
		Token:            claims.InviteToken,
		TargetGroupID:    claims.TargetGroupID,
		InviterContactID: claims.InviterContactID,
	})
}

// lookupToken returns the stored token, nil for the tokenless path, or an
// error for storage failures. An unknown token value falls back to the
// tokenless path rather than failing outright.
func (s *Service) lookupToken(ctx context.Context, value string) (*Token, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	token, err := s.cfg.Ledger.FindByToken(ctx, value)
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("find invitation token: %w", err)
	}
	return &token, nil
}

// linkContactToGroup merges the contact into the group item's relation
// column with set semantics; an already-linked contact is a no-op with no
// CRM write.
func (s *Service) linkContactToGroup(ctx context.Context, groupID, contactID string) error {
	relationColumnID, _ := s.cfg.GroupMapping.ColumnID(columns.FieldContactLink)

	values, err := s.cfg.CRM.ItemColumnValues(ctx, groupID, []string{relationColumnID})
	if err != nil {
		return err
	}
	var current []string
	for _, value := range values {
		if value.ID == relationColumnID {
			current = crm.ParseRelationIDs(value.Value)
			break
		}
	}
	for _, id := range current {
		if id == contactID {
			return nil
		}
	}

	merged := crm.MergeRelationIDs(current, contactID)
	return s.cfg.CRM.ChangeColumnValues(ctx, s.cfg.GroupsBoardID, groupID, map[string]any{
		relationColumnID: crm.RelationColumnValue(merged),
	})
}
