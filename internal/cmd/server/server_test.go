package server

import (
	"flag"
	"strings"
	"testing"
	"time"
)

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("expected default http addr, got %q", cfg.HTTPAddr)
	}
	if cfg.CRMEndpoint != "https://api.monday.com/v2" {
		t.Errorf("expected default crm endpoint, got %q", cfg.CRMEndpoint)
	}
	if cfg.Locale != "es" {
		t.Errorf("expected default locale es, got %q", cfg.Locale)
	}
	if cfg.InviteTTL != 0 {
		t.Errorf("expected no invite expiry by default, got %v", cfg.InviteTTL)
	}
	if cfg.RegistrationLockTTL != 30*time.Second {
		t.Errorf("expected default lock ttl 30s, got %v", cfg.RegistrationLockTTL)
	}
}

func TestParseConfigOverrides(t *testing.T) {
	t.Setenv("KATALYST_HTTP_ADDR", "env-addr")
	t.Setenv("KATALYST_PROGRAM_BOARD_IDS", "100,200,300")
	t.Setenv("KATALYST_INVITE_TTL", "72h")

	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	args := []string{"-http-addr", "flag-addr", "-identity-db", "/tmp/identity.db"}
	cfg, err := ParseConfig(fs, args)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.HTTPAddr != "flag-addr" {
		t.Errorf("expected flag addr to win, got %q", cfg.HTTPAddr)
	}
	if cfg.IdentityDBPath != "/tmp/identity.db" {
		t.Errorf("expected flag identity db, got %q", cfg.IdentityDBPath)
	}
	if len(cfg.ProgramBoardIDs) != 3 || cfg.ProgramBoardIDs[1] != "200" {
		t.Errorf("expected program boards from env, got %v", cfg.ProgramBoardIDs)
	}
	if cfg.InviteTTL != 72*time.Hour {
		t.Errorf("expected invite ttl 72h, got %v", cfg.InviteTTL)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{
		CRMToken:        "token",
		ContactsBoardID: "1",
		GroupsBoardID:   "2",
		MailAPIKey:      "key",
		LinkSecret:      "secret",
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	cfg.CRMToken = ""
	cfg.LinkSecret = " "
	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() error = nil with missing settings")
	}
	for _, key := range []string{"KATALYST_CRM_TOKEN", "KATALYST_LINK_SECRET"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("Validate() error %q does not name %s", err, key)
		}
	}
}
