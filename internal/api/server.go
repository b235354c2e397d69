// Package api exposes the dashboard's JSON surface: invitation issue and
// redemption, program status reads, and the health probe.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/katalystmx/dashboard/internal/invitation"
	apperrors "github.com/katalystmx/dashboard/internal/platform/errors"
	"github.com/katalystmx/dashboard/internal/programs"
)

// InvitationService is the invitation surface the handlers call.
type InvitationService interface {
	Issue(ctx context.Context, input invitation.IssueInput) (invitation.IssueResult, error)
	Redeem(ctx context.Context, input invitation.RedeemInput) (invitation.RedeemResult, error)
	RedeemGrant(ctx context.Context, grant string) (invitation.RedeemResult, error)
}

// ProgramService is the program aggregation surface the handlers call.
type ProgramService interface {
	ForContact(ctx context.Context, contactID string) ([]programs.Status, error)
}

// Server holds the handler dependencies.
type Server struct {
	invites  InvitationService
	programs ProgramService
	logger   *log.Logger
}

// New builds the API server.
func New(invites InvitationService, programService ProgramService, logger *log.Logger) (*Server, error) {
	if invites == nil {
		return nil, fmt.Errorf("invitation service is required")
	}
	if programService == nil {
		return nil, fmt.Errorf("program service is required")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Server{invites: invites, programs: programService, logger: logger}, nil
}

// RegisterRoutes attaches all API routes to the mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	if s == nil || mux == nil {
		return
	}
	mux.HandleFunc("/api/invites", s.handleIssue)
	mux.HandleFunc("/api/invites/redeem", s.handleRedeem)
	mux.HandleFunc("/api/programs/status", s.handleProgramStatus)
	mux.HandleFunc("/healthz", s.handleHealth)
}

type issueRequest struct {
	InviteeEmail     string `json:"invitee_email"`
	InviteeName      string `json:"invitee_name"`
	TargetGroupID    string `json:"target_group_id"`
	GroupName        string `json:"group_name"`
	InviterContactID string `json:"inviter_contact_id"`
}

type issueResponse struct {
	OK           bool   `json:"ok"`
	Token        string `json:"token"`
	Link         string `json:"link"`
	KnownInvitee bool   `json:"known_invitee"`
}

func (s *Server) handleIssue(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var request issueRequest
	if err := decodeJSON(r, &request); err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := s.invites.Issue(r.Context(), invitation.IssueInput{
		InviteeEmail:     request.InviteeEmail,
		InviteeName:      request.InviteeName,
		TargetGroupID:    request.TargetGroupID,
		GroupName:        request.GroupName,
		InviterContactID: request.InviterContactID,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, issueResponse{
		OK:           true,
		Token:        result.Token.Token,
		Link:         result.Link,
		KnownInvitee: result.KnownInvitee,
	})
}

type redeemRequest struct {
	Grant            string `json:"grant"`
	Token            string `json:"token"`
	TargetGroupID    string `json:"target_group_id"`
	InviterContactID string `json:"inviter_contact_id"`
}

type redeemResponse struct {
	OK              bool   `json:"ok"`
	Email           string `json:"email"`
	ContactID       string `json:"contact_id"`
	GroupID         string `json:"group_id"`
	AlreadyAccepted bool   `json:"already_accepted"`
}

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var request redeemRequest
	if err := decodeJSON(r, &request); err != nil {
		s.writeError(w, r, err)
		return
	}

	var result invitation.RedeemResult
	var err error
	if strings.TrimSpace(request.Grant) != "" {
		result, err = s.invites.RedeemGrant(r.Context(), request.Grant)
	} else {
		result, err = s.invites.Redeem(r.Context(), invitation.RedeemInput{
			Token:            request.Token,
			TargetGroupID:    request.TargetGroupID,
			InviterContactID: request.InviterContactID,
		})
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, redeemResponse{
		OK:              true,
		Email:           result.Email,
		ContactID:       result.ContactID,
		GroupID:         result.GroupID,
		AlreadyAccepted: result.AlreadyAccepted,
	})
}

type programStatusResponse struct {
	OK       bool              `json:"ok"`
	Programs []programs.Status `json:"programs"`
}

func (s *Server) handleProgramStatus(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	contactID := r.URL.Query().Get("contact_id")
	statuses, err := s.programs.ForContact(r.Context(), contactID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, programStatusResponse{OK: true, Programs: statuses})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type errorResponse struct {
	OK       bool              `json:"ok"`
	Code     string            `json:"code"`
	Error    string            `json:"error"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := apperrors.GetCode(err)
	status := code.HTTPStatus()

	message := "internal error"
	var domainErr *apperrors.Error
	if errors.As(err, &domainErr) && status < http.StatusInternalServerError {
		message = domainErr.Message
	}
	if status >= http.StatusInternalServerError {
		s.logger.Printf("%s %s failed: %v", r.Method, r.URL.Path, err)
	}

	writeJSON(w, status, errorResponse{
		Code:     string(code),
		Error:    message,
		Metadata: apperrors.GetMetadata(err),
	})
}

func decodeJSON(r *http.Request, target any) error {
	defer func() { _, _ = io.Copy(io.Discard, r.Body) }()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		return apperrors.Wrap(apperrors.CodeInvalidArgument, "request body is not valid JSON", err)
	}
	return nil
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	writeJSON(w, http.StatusMethodNotAllowed, errorResponse{
		Code:  string(apperrors.CodeInvalidArgument),
		Error: "method not allowed",
	})
	return false
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	_ = encoder.Encode(payload)
}
