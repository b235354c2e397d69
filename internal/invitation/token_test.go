package invitation

import (
	"errors"
	"testing"
	"time"

	apperrors "github.com/katalystmx/dashboard/internal/platform/errors"
)

func TestMint(t *testing.T) {
	issuedAt := time.Date(2026, time.March, 14, 9, 30, 0, 0, time.UTC)
	input := MintInput{
		InviteeEmail:     "ana@example.com",
		TargetGroupID:    "grp-100",
		InviterContactID: "contact-7",
		IssuedAt:         issuedAt,
	}

	first, err := Mint(input)
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}
	if first == "" {
		t.Fatal("Mint() returned empty token")
	}
	for _, r := range first {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			t.Fatalf("Mint() token contains unexpected rune %q", r)
		}
	}

	second, err := Mint(input)
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}
	if first == second {
		t.Fatal("Mint() produced identical tokens for identical input")
	}
}

func TestMintValidation(t *testing.T) {
	tests := []struct {
		name    string
		input   MintInput
		wantErr error
	}{
		{
			name:    "missing email",
			input:   MintInput{TargetGroupID: "grp-100"},
			wantErr: ErrEmptyInviteeEmail,
		},
		{
			name:    "missing group",
			input:   MintInput{InviteeEmail: "ana@example.com"},
			wantErr: ErrEmptyTargetGroupID,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Mint(tt.input)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Mint() error = %v, want %v", err, tt.wantErr)
			}
			if !apperrors.IsCode(err, apperrors.CodeMissingParameters) {
				t.Fatalf("Mint() error code = %v, want %v", apperrors.GetCode(err), apperrors.CodeMissingParameters)
			}
		})
	}
}

func TestTokenExpired(t *testing.T) {
	now := time.Date(2026, time.March, 14, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	tests := []struct {
		name      string
		expiresAt *time.Time
		want      bool
	}{
		{name: "no expiry", expiresAt: nil, want: false},
		{name: "future expiry", expiresAt: &future, want: false},
		{name: "past expiry", expiresAt: &past, want: true},
		{name: "expiry at now", expiresAt: &now, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token := Token{ExpiresAt: tt.expiresAt}
			if got := token.Expired(now); got != tt.want {
				t.Fatalf("Expired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStatusLabelRoundTrip(t *testing.T) {
	for _, status := range []Status{StatusPending, StatusAccepted} {
		if got := StatusFromLabel(StatusLabel(status)); got != status {
			t.Fatalf("StatusFromLabel(StatusLabel(%v)) = %v", status, got)
		}
	}
	if got := StatusFromLabel("bogus"); got != StatusUnspecified {
		t.Fatalf("StatusFromLabel(bogus) = %v, want %v", got, StatusUnspecified)
	}
}
