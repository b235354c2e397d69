package programs

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/katalystmx/dashboard/internal/crm"
	apperrors "github.com/katalystmx/dashboard/internal/platform/errors"
)

type fakeCRM struct {
	columns      map[string][]crm.Column
	items        map[string][]crm.Item
	columnsCalls map[string]int
}

func newFakeCRM() *fakeCRM {
	return &fakeCRM{
		columns:      make(map[string][]crm.Column),
		items:        make(map[string][]crm.Item),
		columnsCalls: make(map[string]int),
	}
}

func (f *fakeCRM) BoardColumns(_ context.Context, boardID string) ([]crm.Column, error) {
	f.columnsCalls[boardID]++
	cols, ok := f.columns[boardID]
	if !ok {
		return nil, apperrors.New(apperrors.CodeNotFound, "board not found")
	}
	return cols, nil
}

func (f *fakeCRM) BoardItems(_ context.Context, boardID string) ([]crm.Item, error) {
	items, ok := f.items[boardID]
	if !ok {
		return nil, apperrors.New(apperrors.CodeNotFound, "board not found")
	}
	return items, nil
}

func programColumns() []crm.Column {
	return []crm.Column{
		{ID: "link_col", Title: "Contacto", Type: "board_relation"},
		{ID: "ref_col", Title: "Contact ID", Type: "text"},
		{ID: "status_col", Title: "Status", Type: "status"},
	}
}

func relationValue(ids ...string) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf(`{"linkedPulseId":%s}`, id))
	}
	return `{"linkedPulseIds":[` + strings.Join(parts, ",") + `]}`
}

func subitem(id, statusText string) crm.Item {
	item := crm.Item{ID: id, Name: "Task " + id}
	if statusText != "" {
		item.ColumnValues = []crm.ColumnValue{
			{ID: "sub_status", Type: "status", Text: statusText},
		}
	}
	return item
}

func TestForContact(t *testing.T) {
	fake := newFakeCRM()
	fake.columns["board-1"] = programColumns()
	fake.items["board-1"] = []crm.Item{
		{
			ID:   "10",
			Name: "Cohorte 2026",
			ColumnValues: []crm.ColumnValue{
				{ID: "link_col", Type: "board_relation", Value: relationValue("901", "902")},
				{ID: "status_col", Type: "status", Text: "Activo"},
			},
			Subitems: []crm.Item{
				subitem("s1", "Done"),
				subitem("s2", "Listo"),
				subitem("s3", "Working on it"),
				subitem("s4", ""),
			},
		},
		{
			ID:   "11",
			Name: "Other cohort",
			ColumnValues: []crm.ColumnValue{
				{ID: "link_col", Type: "board_relation", Value: relationValue("333")},
			},
		},
	}
	fake.columns["board-2"] = programColumns()
	fake.items["board-2"] = []crm.Item{
		{
			ID:   "20",
			Name: "Mentoring",
			ColumnValues: []crm.ColumnValue{
				{ID: "ref_col", Type: "text", Text: "901"},
				{ID: "status_col", Type: "status", Text: "Completado"},
			},
		},
	}
	fake.columns["board-3"] = programColumns()
	fake.items["board-3"] = []crm.Item{
		{
			ID:   "30",
			Name: "Unrelated",
			ColumnValues: []crm.ColumnValue{
				{ID: "ref_col", Type: "text", Text: "555"},
			},
		},
	}

	service, err := NewService(Config{
		CRM: fake,
		Boards: []Board{
			{ID: "board-1", Name: "Cohorts"},
			{ID: "board-2", Name: "Mentoring"},
			{ID: "board-3", Name: "Workshops"},
		},
	})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}

	got, err := service.ForContact(context.Background(), "901")
	if err != nil {
		t.Fatalf("ForContact() error = %v", err)
	}
	want := []Status{
		{
			BoardID:     "board-1",
			BoardName:   "Cohorts",
			ItemID:      "10",
			ItemName:    "Cohorte 2026",
			Linked:      true,
			StatusLabel: "Activo",
			Checklist:   Checklist{Completed: 2, Total: 4},
		},
		{
			BoardID:     "board-2",
			BoardName:   "Mentoring",
			ItemID:      "20",
			ItemName:    "Mentoring",
			Linked:      true,
			StatusLabel: "Completado",
		},
		{
			BoardID:   "board-3",
			BoardName: "Workshops",
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ForContact() mismatch (-want +got):\n%s", diff)
	}
}

func TestForContactMappingCached(t *testing.T) {
	fake := newFakeCRM()
	fake.columns["board-1"] = programColumns()
	fake.items["board-1"] = nil

	service, err := NewService(Config{CRM: fake, Boards: []Board{{ID: "board-1"}}})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}

	for range 3 {
		if _, err := service.ForContact(context.Background(), "901"); err != nil {
			t.Fatalf("ForContact() error = %v", err)
		}
	}
	if got := fake.columnsCalls["board-1"]; got != 1 {
		t.Errorf("BoardColumns calls = %d, want 1", got)
	}
}

func TestForContactMissingContactID(t *testing.T) {
	service, err := NewService(Config{CRM: newFakeCRM()})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	_, err = service.ForContact(context.Background(), "  ")
	if !apperrors.IsCode(err, apperrors.CodeMissingParameters) {
		t.Fatalf("ForContact() error code = %v, want %v", apperrors.GetCode(err), apperrors.CodeMissingParameters)
	}
}

func TestForContactCustomDoneLabels(t *testing.T) {
	fake := newFakeCRM()
	fake.columns["board-1"] = programColumns()
	fake.items["board-1"] = []crm.Item{
		{
			ID:   "10",
			Name: "Cohort",
			ColumnValues: []crm.ColumnValue{
				{ID: "ref_col", Type: "text", Text: "901"},
			},
			Subitems: []crm.Item{
				subitem("s1", "Entregado"),
				subitem("s2", "Done"),
			},
		},
	}

	service, err := NewService(Config{
		CRM:        fake,
		Boards:     []Board{{ID: "board-1"}},
		DoneLabels: []string{"Entregado"},
	})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}

	got, err := service.ForContact(context.Background(), "901")
	if err != nil {
		t.Fatalf("ForContact() error = %v", err)
	}
	if got[0].Checklist.Completed != 1 || got[0].Checklist.Total != 2 {
		t.Errorf("checklist = %+v, want 1/2", got[0].Checklist)
	}
}

func TestResolveMappingsRejectsUnlinkableBoard(t *testing.T) {
	fake := newFakeCRM()
	fake.columns["board-1"] = []crm.Column{
		{ID: "status_col", Title: "Status", Type: "status"},
	}

	service, err := NewService(Config{CRM: fake, Boards: []Board{{ID: "board-1"}}})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	err = service.ResolveMappings(context.Background())
	if !apperrors.IsCode(err, apperrors.CodeColumnMappingUnresolved) {
		t.Fatalf("ResolveMappings() error code = %v, want %v",
			apperrors.GetCode(err), apperrors.CodeColumnMappingUnresolved)
	}
}
