package columns

import (
	"testing"

	"github.com/katalystmx/dashboard/internal/crm"
	apperrors "github.com/katalystmx/dashboard/internal/platform/errors"
)

func contactColumns() []crm.Column {
	return []crm.Column{
		{ID: "name_1", Title: "Nombre", Type: "text"},
		{ID: "paterno_1", Title: "Apellido Paterno", Type: "text"},
		{ID: "materno_1", Title: "Apellido Materno", Type: "text"},
		{ID: "email_1", Title: "Email", Type: "email"},
		{ID: "phone_1", Title: "Teléfono", Type: "phone"},
		{ID: "status_1", Title: "Status", Type: "status", SettingsStr: `{"labels":{"0":"Activo","1":"Inactivo","5":"Prospecto"}}`},
		{ID: "programs_1", Title: "Programas del contacto", Type: "dropdown", SettingsStr: `{"labels":[{"id":1,"name":"Impulso"},{"id":2,"name":"Crecimiento"}]}`},
	}
}

func TestResolveExactTitleFirst(t *testing.T) {
	t.Parallel()

	cols := contactColumns()

	paterno, ok := Resolve(cols, "Apellido Paterno", "")
	if !ok || paterno.ID != "paterno_1" {
		t.Fatalf("expected paterno_1, got %+v ok=%v", paterno, ok)
	}
	materno, ok := Resolve(cols, "Apellido Materno", "")
	if !ok || materno.ID != "materno_1" {
		t.Fatalf("expected materno_1, got %+v ok=%v", materno, ok)
	}

	// "Apellido" alone is ambiguous and falls back to substring order.
	first, ok := Resolve(cols, "Apellido", "")
	if !ok || first.ID != "paterno_1" {
		t.Fatalf("expected substring fallback to first candidate, got %+v ok=%v", first, ok)
	}
}

func TestResolveIsCaseInsensitive(t *testing.T) {
	t.Parallel()

	col, ok := Resolve(contactColumns(), "email", "")
	if !ok || col.ID != "email_1" {
		t.Fatalf("expected email_1, got %+v ok=%v", col, ok)
	}
}

func TestResolveNarrowsByType(t *testing.T) {
	t.Parallel()

	cols := []crm.Column{
		{ID: "status_text", Title: "Status", Type: "text"},
		{ID: "status_real", Title: "Status", Type: "status"},
	}
	col, ok := Resolve(cols, "Status", "status")
	if !ok || col.ID != "status_real" {
		t.Fatalf("expected status_real, got %+v ok=%v", col, ok)
	}
}

func TestResolveMissingTitle(t *testing.T) {
	t.Parallel()

	if _, ok := Resolve(contactColumns(), "Fecha de nacimiento", ""); ok {
		t.Fatal("expected no match for absent column")
	}
	if _, ok := Resolve(contactColumns(), "", ""); ok {
		t.Fatal("expected no match for empty title")
	}
}

func TestResolveStatusIndex(t *testing.T) {
	t.Parallel()

	status, _ := Resolve(contactColumns(), "Status", "status")

	index, ok := ResolveStatusIndex(status, "Prospecto")
	if !ok || index != 5 {
		t.Fatalf("expected index 5, got %d ok=%v", index, ok)
	}

	// Label matching is exact and case-sensitive.
	if _, ok := ResolveStatusIndex(status, "prospecto"); ok {
		t.Fatal("expected case-sensitive miss")
	}
	if _, ok := ResolveStatusIndex(status, "No existe"); ok {
		t.Fatal("expected miss for unknown label")
	}
}

func TestResolveStatusIndexMalformedSettings(t *testing.T) {
	t.Parallel()

	col := crm.Column{ID: "status_1", Title: "Status", Type: "status", SettingsStr: "{broken"}
	if _, ok := ResolveStatusIndex(col, "Activo"); ok {
		t.Fatal("expected fail-soft miss for malformed settings")
	}
}

func TestResolveDropdownID(t *testing.T) {
	t.Parallel()

	dropdown, _ := Resolve(contactColumns(), "Programas del contacto", "dropdown")

	id, ok := ResolveDropdownID(dropdown, "Crecimiento")
	if !ok || id != 2 {
		t.Fatalf("expected id 2, got %d ok=%v", id, ok)
	}
	if _, ok := ResolveDropdownID(dropdown, "crecimiento"); ok {
		t.Fatal("expected case-sensitive miss")
	}
}

func TestLabelColumnValue(t *testing.T) {
	t.Parallel()

	cols := contactColumns()
	status, _ := Resolve(cols, "Status", "status")
	dropdown, _ := Resolve(cols, "Programas del contacto", "dropdown")
	text := crm.Column{ID: "name_1", Title: "Nombre", Type: "text"}

	value, ok := LabelColumnValue(status, "Activo")
	if !ok {
		t.Fatal("expected status label value")
	}
	if value.(map[string]any)["index"] != 0 {
		t.Fatalf("unexpected status value %v", value)
	}

	value, ok = LabelColumnValue(dropdown, "Impulso")
	if !ok {
		t.Fatal("expected dropdown label value")
	}
	ids := value.(map[string]any)["ids"].([]int)
	if len(ids) != 1 || ids[0] != 1 {
		t.Fatalf("unexpected dropdown value %v", value)
	}

	if _, ok := LabelColumnValue(text, "Algo"); ok {
		t.Fatal("expected miss for non-label column type")
	}
	if _, ok := LabelColumnValue(status, "No existe"); ok {
		t.Fatal("expected miss for unknown label")
	}
}

func TestResolveMappingRequiredFieldMissing(t *testing.T) {
	t.Parallel()

	cols := []crm.Column{
		{ID: "name_1", Title: "Nombre", Type: "text"},
	}
	_, err := ResolveMapping(cols, ContactFieldSpecs())
	if !apperrors.IsCode(err, apperrors.CodeColumnMappingUnresolved) {
		t.Fatalf("expected COLUMN_MAPPING_UNRESOLVED, got %v", err)
	}
	if meta := apperrors.GetMetadata(err); meta["fields"] != "email" {
		t.Fatalf("expected missing fields metadata, got %v", meta)
	}
}

func TestResolveMappingOptionalFieldsOmitted(t *testing.T) {
	t.Parallel()

	cols := []crm.Column{
		{ID: "email_1", Title: "Email", Type: "email"},
	}
	mapping, err := ResolveMapping(cols, ContactFieldSpecs())
	if err != nil {
		t.Fatalf("resolve mapping: %v", err)
	}

	if id, ok := mapping.ColumnID(FieldEmail); !ok || id != "email_1" {
		t.Fatalf("expected email_1, got %q ok=%v", id, ok)
	}
	if _, ok := mapping.ColumnID(FieldPhone); ok {
		t.Fatal("expected optional phone field to be absent")
	}
}

func TestResolveMappingRelaxesTypeForTitleMatch(t *testing.T) {
	t.Parallel()

	// Operator board models email as a plain text column.
	cols := []crm.Column{
		{ID: "email_text", Title: "Email", Type: "text"},
	}
	mapping, err := ResolveMapping(cols, ContactFieldSpecs())
	if err != nil {
		t.Fatalf("resolve mapping: %v", err)
	}
	if id, ok := mapping.ColumnID(FieldEmail); !ok || id != "email_text" {
		t.Fatalf("expected email_text, got %q ok=%v", id, ok)
	}
}

func TestGroupFieldSpecsResolveRelation(t *testing.T) {
	t.Parallel()

	cols := []crm.Column{
		{ID: "rel_1", Title: "Contacto asignado", Type: "board_relation"},
		{ID: "status_1", Title: "Status", Type: "status"},
	}
	mapping, err := ResolveMapping(cols, GroupFieldSpecs())
	if err != nil {
		t.Fatalf("resolve mapping: %v", err)
	}
	if id, ok := mapping.ColumnID(FieldContactLink); !ok || id != "rel_1" {
		t.Fatalf("expected rel_1 via substring match, got %q ok=%v", id, ok)
	}
}
