package invitation

import (
	"net/url"
	"strings"
	"testing"
	"time"

	apperrors "github.com/katalystmx/dashboard/internal/platform/errors"
)

func TestSignAndParseRedemptionLink(t *testing.T) {
	secret := []byte("test-signing-secret")
	issuedAt := time.Date(2026, time.March, 14, 9, 30, 0, 0, time.UTC)
	token := Token{
		Token:            "tok123",
		InviteeEmail:     "ana@example.com",
		TargetGroupID:    "grp-100",
		InviterContactID: "contact-7",
		IssuedAt:         issuedAt,
	}

	link, err := SignRedemptionLink(secret, "https://dashboard.example.com", token)
	if err != nil {
		t.Fatalf("SignRedemptionLink() error = %v", err)
	}
	if !strings.HasPrefix(link, "https://dashboard.example.com/invite/redeem?") {
		t.Fatalf("SignRedemptionLink() = %q, want /invite/redeem path", link)
	}

	parsed, err := url.Parse(link)
	if err != nil {
		t.Fatalf("url.Parse() error = %v", err)
	}
	grant := parsed.Query().Get("grant")
	if grant == "" {
		t.Fatal("redemption link carries no grant parameter")
	}

	claims, err := ParseRedemptionGrant(secret, grant, func() time.Time { return issuedAt.Add(time.Hour) })
	if err != nil {
		t.Fatalf("ParseRedemptionGrant() error = %v", err)
	}
	if claims.InviteToken != token.Token {
		t.Errorf("InviteToken = %q, want %q", claims.InviteToken, token.Token)
	}
	if claims.TargetGroupID != token.TargetGroupID {
		t.Errorf("TargetGroupID = %q, want %q", claims.TargetGroupID, token.TargetGroupID)
	}
	if claims.InviterContactID != token.InviterContactID {
		t.Errorf("InviterContactID = %q, want %q", claims.InviterContactID, token.InviterContactID)
	}
	if claims.Subject != token.InviteeEmail {
		t.Errorf("Subject = %q, want %q", claims.Subject, token.InviteeEmail)
	}
}

func TestParseRedemptionGrantRejectsTampering(t *testing.T) {
	secret := []byte("test-signing-secret")
	token := Token{
		Token:         "tok123",
		InviteeEmail:  "ana@example.com",
		TargetGroupID: "grp-100",
		IssuedAt:      time.Now().UTC(),
	}
	link, err := SignRedemptionLink(secret, "https://dashboard.example.com", token)
	if err != nil {
		t.Fatalf("SignRedemptionLink() error = %v", err)
	}
	parsed, err := url.Parse(link)
	if err != nil {
		t.Fatalf("url.Parse() error = %v", err)
	}
	grant := parsed.Query().Get("grant")

	_, err = ParseRedemptionGrant([]byte("other-secret"), grant, time.Now)
	if !apperrors.IsCode(err, apperrors.CodeNotFound) {
		t.Fatalf("ParseRedemptionGrant() with wrong secret error code = %v, want %v",
			apperrors.GetCode(err), apperrors.CodeNotFound)
	}

	_, err = ParseRedemptionGrant(secret, grant+"x", time.Now)
	if !apperrors.IsCode(err, apperrors.CodeNotFound) {
		t.Fatalf("ParseRedemptionGrant() with mangled grant error code = %v, want %v",
			apperrors.GetCode(err), apperrors.CodeNotFound)
	}
}

func TestParseRedemptionGrantExpired(t *testing.T) {
	secret := []byte("test-signing-secret")
	issuedAt := time.Date(2026, time.March, 14, 9, 30, 0, 0, time.UTC)
	expiresAt := issuedAt.Add(time.Hour)
	token := Token{
		Token:         "tok123",
		InviteeEmail:  "ana@example.com",
		TargetGroupID: "grp-100",
		IssuedAt:      issuedAt,
		ExpiresAt:     &expiresAt,
	}
	link, err := SignRedemptionLink(secret, "https://dashboard.example.com", token)
	if err != nil {
		t.Fatalf("SignRedemptionLink() error = %v", err)
	}
	parsed, err := url.Parse(link)
	if err != nil {
		t.Fatalf("url.Parse() error = %v", err)
	}
	grant := parsed.Query().Get("grant")

	_, err = ParseRedemptionGrant(secret, grant, func() time.Time { return expiresAt.Add(time.Minute) })
	if !apperrors.IsCode(err, apperrors.CodeNotFound) {
		t.Fatalf("ParseRedemptionGrant() after expiry error code = %v, want %v",
			apperrors.GetCode(err), apperrors.CodeNotFound)
	}
}

func TestParseRedemptionGrantEmpty(t *testing.T) {
	_, err := ParseRedemptionGrant([]byte("secret"), "  ", time.Now)
	if !apperrors.IsCode(err, apperrors.CodeMissingParameters) {
		t.Fatalf("ParseRedemptionGrant() error code = %v, want %v",
			apperrors.GetCode(err), apperrors.CodeMissingParameters)
	}
}
