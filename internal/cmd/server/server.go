// Package server wires configuration, storage, the CRM client, and the HTTP
// API into the dashboard server process.
package server

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/katalystmx/dashboard/internal/api"
	"github.com/katalystmx/dashboard/internal/contact"
	"github.com/katalystmx/dashboard/internal/crm"
	"github.com/katalystmx/dashboard/internal/crm/columns"
	identitysqlite "github.com/katalystmx/dashboard/internal/identity/storage/sqlite"
	"github.com/katalystmx/dashboard/internal/invitation"
	invitationsqlite "github.com/katalystmx/dashboard/internal/invitation/storage/sqlite"
	"github.com/katalystmx/dashboard/internal/mailer"
	"github.com/katalystmx/dashboard/internal/platform/config"
	"github.com/katalystmx/dashboard/internal/platform/otel"
	"github.com/katalystmx/dashboard/internal/programs"
)

// Config holds the dashboard server configuration.
type Config struct {
	HTTPAddr string `env:"KATALYST_HTTP_ADDR" envDefault:":8080"`
	BaseURL  string `env:"KATALYST_BASE_URL" envDefault:"http://localhost:8080"`

	IdentityDBPath   string `env:"KATALYST_IDENTITY_DB_PATH" envDefault:"data/identity.db"`
	InvitationDBPath string `env:"KATALYST_INVITATION_DB_PATH" envDefault:"data/invitation.db"`

	CRMEndpoint     string   `env:"KATALYST_CRM_ENDPOINT" envDefault:"https://api.monday.com/v2"`
	CRMToken        string   `env:"KATALYST_CRM_TOKEN"`
	ContactsBoardID string   `env:"KATALYST_CONTACTS_BOARD_ID"`
	GroupsBoardID   string   `env:"KATALYST_GROUPS_BOARD_ID"`
	ProgramBoardIDs []string `env:"KATALYST_PROGRAM_BOARD_IDS" envSeparator:","`

	MailEndpoint string `env:"KATALYST_MAIL_ENDPOINT"`
	MailAPIKey   string `env:"KATALYST_MAIL_API_KEY"`
	MailFrom     string `env:"KATALYST_MAIL_FROM" envDefault:"Katalyst <no-reply@katalyst.mx>"`

	LinkSecret string `env:"KATALYST_LINK_SECRET"`
	Locale     string `env:"KATALYST_LOCALE" envDefault:"es"`

	// InviteTTL bounds invitation token lifetime; zero disables expiry.
	InviteTTL time.Duration `env:"KATALYST_INVITE_TTL"`
	// RegistrationLockTTL bounds the cross-process contact creation lock.
	RegistrationLockTTL time.Duration `env:"KATALYST_REGISTRATION_LOCK_TTL" envDefault:"30s"`

	DoneLabels []string `env:"KATALYST_DONE_LABELS" envSeparator:","`
}

// ParseConfig loads configuration from the environment, then applies flag
// overrides.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "The dashboard HTTP server address")
	fs.StringVar(&cfg.IdentityDBPath, "identity-db", cfg.IdentityDBPath, "Path to the identity SQLite database")
	fs.StringVar(&cfg.InvitationDBPath, "invitation-db", cfg.InvitationDBPath, "Path to the invitation SQLite database")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the settings that have no usable default.
func (c Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.CRMToken) == "" {
		missing = append(missing, "KATALYST_CRM_TOKEN")
	}
	if strings.TrimSpace(c.ContactsBoardID) == "" {
		missing = append(missing, "KATALYST_CONTACTS_BOARD_ID")
	}
	if strings.TrimSpace(c.GroupsBoardID) == "" {
		missing = append(missing, "KATALYST_GROUPS_BOARD_ID")
	}
	if strings.TrimSpace(c.MailAPIKey) == "" {
		missing = append(missing, "KATALYST_MAIL_API_KEY")
	}
	if strings.TrimSpace(c.LinkSecret) == "" {
		missing = append(missing, "KATALYST_LINK_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Run starts the dashboard server and blocks until the context ends or the
// server fails.
func Run(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	shutdownOtel, err := otel.Setup(ctx, "katalyst-dashboard")
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOtel(shutdownCtx); err != nil {
			log.Printf("telemetry shutdown: %v", err)
		}
	}()

	identityStore, err := openStore(cfg.IdentityDBPath, identitysqlite.Open)
	if err != nil {
		return fmt.Errorf("open identity store: %w", err)
	}
	defer func() { _ = identityStore.Close() }()

	invitationStore, err := openStore(cfg.InvitationDBPath, invitationsqlite.Open)
	if err != nil {
		return fmt.Errorf("open invitation store: %w", err)
	}
	defer func() { _ = invitationStore.Close() }()

	crmClient, err := crm.New(crm.Config{Endpoint: cfg.CRMEndpoint, Token: cfg.CRMToken})
	if err != nil {
		return fmt.Errorf("build crm client: %w", err)
	}

	// Column mappings are resolved against the live board schemas once at
	// startup; a board missing its required columns stops the process here.
	contactMapping, err := resolveBoardMapping(ctx, crmClient, cfg.ContactsBoardID, columns.ContactFieldSpecs())
	if err != nil {
		return fmt.Errorf("resolve contacts board columns: %w", err)
	}
	groupMapping, err := resolveBoardMapping(ctx, crmClient, cfg.GroupsBoardID, columns.GroupFieldSpecs())
	if err != nil {
		return fmt.Errorf("resolve groups board columns: %w", err)
	}

	resolver, err := contact.NewResolver(contact.Config{
		CRM:        crmClient,
		Identities: identityStore,
		Locks:      identityStore,
		BoardID:    cfg.ContactsBoardID,
		Mapping:    contactMapping,
		LockTTL:    cfg.RegistrationLockTTL,
	})
	if err != nil {
		return fmt.Errorf("build contact resolver: %w", err)
	}

	mail, err := mailer.NewResend(mailer.ResendConfig{
		Endpoint: cfg.MailEndpoint,
		APIKey:   cfg.MailAPIKey,
		From:     cfg.MailFrom,
	})
	if err != nil {
		return fmt.Errorf("build mailer: %w", err)
	}

	inviteService, err := invitation.NewService(invitation.ServiceConfig{
		Ledger:        invitationStore,
		Identities:    identityStore,
		Contacts:      resolver,
		CRM:           crmClient,
		Mailer:        mail,
		GroupsBoardID: cfg.GroupsBoardID,
		GroupMapping:  groupMapping,
		BaseURL:       cfg.BaseURL,
		LinkSecret:    []byte(cfg.LinkSecret),
		TokenTTL:      cfg.InviteTTL,
		Locale:        cfg.Locale,
	})
	if err != nil {
		return fmt.Errorf("build invitation service: %w", err)
	}

	programBoards := make([]programs.Board, 0, len(cfg.ProgramBoardIDs))
	for _, boardID := range cfg.ProgramBoardIDs {
		boardID = strings.TrimSpace(boardID)
		if boardID == "" {
			continue
		}
		programBoards = append(programBoards, programs.Board{ID: boardID})
	}
	programService, err := programs.NewService(programs.Config{
		CRM:        crmClient,
		Boards:     programBoards,
		DoneLabels: cfg.DoneLabels,
	})
	if err != nil {
		return fmt.Errorf("build program service: %w", err)
	}
	if err := programService.ResolveMappings(ctx); err != nil {
		return fmt.Errorf("resolve program board columns: %w", err)
	}

	apiServer, err := api.New(inviteService, programService, log.Default())
	if err != nil {
		return fmt.Errorf("build api server: %w", err)
	}

	mux := http.NewServeMux()
	apiServer.RegisterRoutes(mux)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Printf("dashboard listening at %s", cfg.HTTPAddr)
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		if err := <-serveErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	}
}

type boardSchema interface {
	BoardColumns(ctx context.Context, boardID string) ([]crm.Column, error)
}

func resolveBoardMapping(ctx context.Context, client boardSchema, boardID string, specs []columns.FieldSpec) (columns.Mapping, error) {
	cols, err := client.BoardColumns(ctx, boardID)
	if err != nil {
		return columns.Mapping{}, err
	}
	return columns.ResolveMapping(cols, specs)
}

func openStore[S interface{ Close() error }](path string, open func(string) (S, error)) (S, error) {
	var zero S
	if dir := filepath.Dir(filepath.Clean(path)); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return zero, fmt.Errorf("create storage dir: %w", err)
		}
	}
	return open(path)
}
