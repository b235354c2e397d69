// Package programs reports per-program membership and progress for one
// contact by scanning configured program boards. This is a read-only
// fan-out; nothing here mutates the CRM.
package programs

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/katalystmx/dashboard/internal/crm"
	"github.com/katalystmx/dashboard/internal/crm/columns"
	apperrors "github.com/katalystmx/dashboard/internal/platform/errors"
)

// CRM is the transport surface the aggregation needs.
type CRM interface {
	BoardColumns(ctx context.Context, boardID string) ([]crm.Column, error)
	BoardItems(ctx context.Context, boardID string) ([]crm.Item, error)
}

// Board identifies one configured program board.
type Board struct {
	ID   string
	Name string
}

// Checklist is a sub-item completion ratio.
type Checklist struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

// Status is one program's view of a contact: whether the contact is linked
// to the program item, the item's status text, and its checklist progress.
type Status struct {
	BoardID     string    `json:"board_id"`
	BoardName   string    `json:"board_name"`
	ItemID      string    `json:"item_id"`
	ItemName    string    `json:"item_name"`
	Linked      bool      `json:"linked"`
	StatusLabel string    `json:"status,omitempty"`
	Checklist   Checklist `json:"checklist"`
}

// Config wires the program aggregation service.
type Config struct {
	CRM    CRM
	Boards []Board
	// DoneLabels is the status vocabulary counted as completed on sub-item
	// checklists. Empty uses the default bilingual set.
	DoneLabels []string
}

func defaultDoneLabels() []string {
	return []string{"Done", "Listo", "Completado", "Hecho"}
}

// Service aggregates program status across configured boards.
type Service struct {
	crm        CRM
	boards     []Board
	doneLabels map[string]bool
	tracer     trace.Tracer

	mu       sync.RWMutex
	mappings map[string]columns.Mapping
}

// NewService builds the aggregation service.
func NewService(cfg Config) (*Service, error) {
	if cfg.CRM == nil {
		return nil, fmt.Errorf("crm client is required")
	}
	labels := cfg.DoneLabels
	if len(labels) == 0 {
		labels = defaultDoneLabels()
	}
	done := make(map[string]bool, len(labels))
	for _, label := range labels {
		done[strings.ToLower(strings.TrimSpace(label))] = true
	}
	return &Service{
		crm:        cfg.CRM,
		boards:     cfg.Boards,
		doneLabels: done,
		tracer:     otel.Tracer("katalyst.programs"),
		mappings:   make(map[string]columns.Mapping),
	}, nil
}

// ResolveMappings binds every configured board's schema up front so that a
// misconfigured board fails at startup rather than on the first read.
func (s *Service) ResolveMappings(ctx context.Context) error {
	for _, board := range s.boards {
		if _, err := s.mapping(ctx, board.ID); err != nil {
			return fmt.Errorf("resolve columns for board %s: %w", board.ID, err)
		}
	}
	return nil
}

// ForContact reports the contact's standing on every configured board. A
// board the contact is not linked to still appears in the result with
// Linked false and no item details.
func (s *Service) ForContact(ctx context.Context, contactID string) ([]Status, error) {
	ctx, span := s.tracer.Start(ctx, "programs.for_contact")
	defer span.End()

	contactID = strings.TrimSpace(contactID)
	if contactID == "" {
		return nil, apperrors.New(apperrors.CodeMissingParameters, "contact id is required")
	}

	statuses := make([]Status, 0, len(s.boards))
	for _, board := range s.boards {
		status, err := s.boardStatus(ctx, board, contactID)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, status)
	}
	span.SetAttributes(attribute.Int("programs.boards", len(statuses)))
	return statuses, nil
}

func (s *Service) boardStatus(ctx context.Context, board Board, contactID string) (Status, error) {
	mapping, err := s.mapping(ctx, board.ID)
	if err != nil {
		return Status{}, err
	}

	items, err := s.crm.BoardItems(ctx, board.ID)
	if err != nil {
		return Status{}, err
	}

	status := Status{BoardID: board.ID, BoardName: board.Name}
	for _, item := range items {
		if !s.itemLinksContact(item, mapping, contactID) {
			continue
		}
		status.Linked = true
		status.ItemID = item.ID
		status.ItemName = item.Name
		if columnID, ok := mapping.ColumnID(columns.FieldProgramStatus); ok {
			if cell, ok := item.ColumnValueByID(columnID); ok {
				status.StatusLabel = cell.Text
			}
		}
		status.Checklist = s.checklist(item.Subitems)
		break
	}
	return status, nil
}

// itemLinksContact reports whether a program item references the contact,
// either through the relation column or through the plain-text external
// contact reference column.
func (s *Service) itemLinksContact(item crm.Item, mapping columns.Mapping, contactID string) bool {
	if columnID, ok := mapping.ColumnID(columns.FieldContactLink); ok {
		if cell, ok := item.ColumnValueByID(columnID); ok {
			for _, linked := range crm.ParseRelationIDs(cell.Value) {
				if linked == contactID {
					return true
				}
			}
		}
	}
	if columnID, ok := mapping.ColumnID(columns.FieldExternalRef); ok {
		if cell, ok := item.ColumnValueByID(columnID); ok {
			if strings.TrimSpace(cell.Text) == contactID {
				return true
			}
		}
	}
	return false
}

// checklist counts sub-items whose status text is in the done vocabulary.
// Sub-items without a status column contribute to the total only.
func (s *Service) checklist(subitems []crm.Item) Checklist {
	result := Checklist{Total: len(subitems)}
	for _, subitem := range subitems {
		for _, cell := range subitem.ColumnValues {
			if cell.Type != "status" {
				continue
			}
			if s.doneLabels[strings.ToLower(strings.TrimSpace(cell.Text))] {
				result.Completed++
			}
			break
		}
	}
	return result
}

func (s *Service) mapping(ctx context.Context, boardID string) (columns.Mapping, error) {
	s.mu.RLock()
	mapping, ok := s.mappings[boardID]
	s.mu.RUnlock()
	if ok {
		return mapping, nil
	}

	cols, err := s.crm.BoardColumns(ctx, boardID)
	if err != nil {
		return columns.Mapping{}, err
	}
	mapping, err = columns.ResolveMapping(cols, columns.ProgramFieldSpecs())
	if err != nil {
		return columns.Mapping{}, err
	}
	_, hasRelation := mapping.Column(columns.FieldContactLink)
	_, hasExternalRef := mapping.Column(columns.FieldExternalRef)
	if !hasRelation && !hasExternalRef {
		return columns.Mapping{}, apperrors.WithMetadata(apperrors.CodeColumnMappingUnresolved,
			"board carries neither a contact relation nor a contact id column",
			map[string]string{"board_id": boardID})
	}

	s.mu.Lock()
	s.mappings[boardID] = mapping
	s.mu.Unlock()
	return mapping, nil
}
