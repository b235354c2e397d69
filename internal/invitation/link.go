package invitation

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/katalystmx/dashboard/internal/platform/errors"
)

// GrantClaims are the signed redemption-link parameters. Carrying the token,
// group, and inviter inside one signed grant keeps the tokenless fallback
// parameters tamper-evident when they originate from our own email.
type GrantClaims struct {
	InviteToken      string `json:"tok"`
	TargetGroupID    string `json:"grp"`
	InviterContactID string `json:"inv"`
	jwt.RegisteredClaims
}

// SignRedemptionLink builds the redemption URL mailed to the invitee,
// carrying an HS256-signed grant with the token and its bindings.
func SignRedemptionLink(secret []byte, baseURL string, token Token) (string, error) {
	if len(secret) == 0 {
		return "", fmt.Errorf("link signing secret is required")
	}
	base := strings.TrimSpace(baseURL)
	if base == "" {
		return "", fmt.Errorf("base url is required")
	}

	claims := GrantClaims{
		InviteToken:      token.Token,
		TargetGroupID:    token.TargetGroupID,
		InviterContactID: token.InviterContactID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  token.InviteeEmail,
			IssuedAt: jwt.NewNumericDate(token.IssuedAt),
		},
	}
	if token.ExpiresAt != nil {
		claims.ExpiresAt = jwt.NewNumericDate(*token.ExpiresAt)
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign redemption grant: %w", err)
	}

	link, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	link = link.JoinPath("invite", "redeem")
	query := link.Query()
	query.Set("grant", signed)
	link.RawQuery = query.Encode()
	return link.String(), nil
}

// ParseRedemptionGrant verifies a signed grant and returns its claims.
// Expired or tampered grants fail with a NOT_FOUND-style domain error so the
// caller surfaces them as unknown invitations rather than internal faults.
func ParseRedemptionGrant(secret []byte, grant string, now func() time.Time) (GrantClaims, error) {
	if len(secret) == 0 {
		return GrantClaims{}, fmt.Errorf("link signing secret is required")
	}
	if strings.TrimSpace(grant) == "" {
		return GrantClaims{}, apperrors.New(apperrors.CodeMissingParameters, "redemption grant is required")
	}

	claims := GrantClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(now),
	)
	_, err := parser.ParseWithClaims(grant, &claims, func(*jwt.Token) (any, error) {
		return secret, nil
	})
	if err != nil {
		return GrantClaims{}, apperrors.Wrap(apperrors.CodeNotFound, "redemption grant is invalid", err)
	}
	return claims, nil
}
