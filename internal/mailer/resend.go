package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/katalystmx/dashboard/internal/platform/errors"
)

const (
	defaultEndpoint = "https://api.resend.com/emails"
	defaultTimeout  = 15 * time.Second
)

// ResendConfig configures the Resend-compatible email endpoint.
type ResendConfig struct {
	Endpoint   string
	APIKey     string
	From       string
	HTTPClient *http.Client
}

type resendMailer struct {
	cfg ResendConfig
}

// NewResend builds a Mailer backed by a Resend-compatible REST endpoint.
func NewResend(cfg ResendConfig) (Mailer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("mail api key is required")
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, fmt.Errorf("mail from address is required")
	}
	if strings.TrimSpace(cfg.Endpoint) == "" {
		cfg.Endpoint = defaultEndpoint
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: defaultTimeout}
	}
	return &resendMailer{cfg: cfg}, nil
}

// Send posts one message to the provider. A transport failure or non-2xx
// response yields a MAIL_DELIVERY_FAILED domain error; no retry is attempted.
func (m *resendMailer) Send(ctx context.Context, msg Message) error {
	if strings.TrimSpace(msg.To) == "" {
		return fmt.Errorf("recipient is required")
	}
	if msg.From == "" {
		msg.From = m.cfg.From
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal mail payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build mail request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.cfg.APIKey)

	resp, err := m.cfg.HTTPClient.Do(req)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeMailDeliveryFailed, "mail request failed", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apperrors.WithMetadata(apperrors.CodeMailDeliveryFailed,
			fmt.Sprintf("mail provider returned status %d", resp.StatusCode),
			map[string]string{"status": fmt.Sprintf("%d", resp.StatusCode)})
	}
	return nil
}
