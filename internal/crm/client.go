// Package crm provides the GraphQL transport for the external board/item
// system that acts as the contact and program system of record.
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/katalystmx/dashboard/internal/platform/errors"
)

const defaultTimeout = 30 * time.Second

// Config configures the CRM GraphQL endpoint and credentials.
type Config struct {
	Endpoint   string
	Token      string
	HTTPClient *http.Client
}

// Client executes GraphQL queries and mutations against the CRM API.
type Client struct {
	endpoint   string
	token      string
	httpClient *http.Client
	tracer     trace.Tracer
}

// New builds a CRM client. The endpoint and token are required; the HTTP
// client defaults to one with a 30s timeout when not provided.
func New(cfg Config) (*Client, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("crm endpoint is required")
	}
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, fmt.Errorf("crm api token is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		endpoint:   endpoint,
		token:      cfg.Token,
		httpClient: httpClient,
		tracer:     otel.Tracer("katalyst.crm"),
	}, nil
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphqlEnvelope struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphqlError  `json:"errors"`
}

type graphqlError struct {
	Message string `json:"message"`
}

// Execute runs one GraphQL operation and returns the raw data payload.
// A non-2xx status or an errors array in the envelope yields an
// UPSTREAM_ERROR domain error; no retry is attempted.
func (c *Client) Execute(ctx context.Context, query string, variables map[string]any) (json.RawMessage, error) {
	if c == nil {
		return nil, fmt.Errorf("crm client is not configured")
	}

	ctx, span := c.tracer.Start(ctx, "crm.execute",
		trace.WithAttributes(attribute.String("crm.endpoint", c.endpoint)))
	defer span.End()

	body, err := json.Marshal(graphqlRequest{Query: query, Variables: variables})
	if err != nil {
		return nil, fmt.Errorf("marshal graphql request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build crm request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.SetStatus(codes.Error, "request failed")
		return nil, apperrors.Wrap(apperrors.CodeUpstreamError, "crm request failed", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		span.SetStatus(codes.Error, "read body failed")
		return nil, apperrors.Wrap(apperrors.CodeUpstreamError, "read crm response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		span.SetStatus(codes.Error, "non-2xx status")
		return nil, apperrors.WithMetadata(apperrors.CodeUpstreamError,
			fmt.Sprintf("crm returned status %d", resp.StatusCode),
			map[string]string{"status": fmt.Sprintf("%d", resp.StatusCode)})
	}

	var envelope graphqlEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		span.SetStatus(codes.Error, "decode failed")
		return nil, apperrors.Wrap(apperrors.CodeUpstreamError, "decode crm response", err)
	}
	if len(envelope.Errors) > 0 {
		span.SetStatus(codes.Error, "graphql errors")
		return nil, apperrors.New(apperrors.CodeUpstreamError,
			fmt.Sprintf("crm error: %s", envelope.Errors[0].Message))
	}

	return envelope.Data, nil
}
