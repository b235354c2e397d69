package columns

import (
	"strings"

	"github.com/katalystmx/dashboard/internal/crm"
	apperrors "github.com/katalystmx/dashboard/internal/platform/errors"
)

// Semantic contact-board field names used across the invitation and
// resolution workflows.
const (
	FieldEmail         = "email"
	FieldFirstName     = "first_name"
	FieldPaternalName  = "paternal_name"
	FieldMaternalName  = "maternal_name"
	FieldPhone         = "phone"
	FieldStatus        = "status"
	FieldContactLink   = "contact_link"
	FieldExternalRef   = "external_ref"
	FieldProgramStatus = "program_status"
)

// FieldSpec declares one semantic field to resolve against a board schema.
type FieldSpec struct {
	Field    string
	Title    string
	Type     string
	Required bool
}

// Mapping is a validated field-to-column binding for one board, resolved at
// startup against the live schema rather than per request.
type Mapping struct {
	columns map[string]crm.Column
}

// ResolveMapping binds each declared field to a board column. Required
// fields that cannot be resolved produce a configuration error naming every
// missing field; optional fields are simply absent from the mapping.
func ResolveMapping(cols []crm.Column, specs []FieldSpec) (Mapping, error) {
	mapping := Mapping{columns: make(map[string]crm.Column, len(specs))}
	var missing []string
	for _, spec := range specs {
		col, ok := Resolve(cols, spec.Title, spec.Type)
		if !ok && spec.Type != "" {
			// Operator-defined boards sometimes use a compatible column
			// type under the expected title; retry without the narrowing.
			col, ok = Resolve(cols, spec.Title, "")
		}
		if !ok {
			if spec.Required {
				missing = append(missing, spec.Field)
			}
			continue
		}
		mapping.columns[spec.Field] = col
	}
	if len(missing) > 0 {
		return Mapping{}, apperrors.WithMetadata(apperrors.CodeColumnMappingUnresolved,
			"required board columns could not be resolved: "+strings.Join(missing, ", "),
			map[string]string{"fields": strings.Join(missing, ",")})
	}
	return mapping, nil
}

// Column returns the resolved column for a field.
func (m Mapping) Column(field string) (crm.Column, bool) {
	col, ok := m.columns[field]
	return col, ok
}

// ColumnID returns the resolved column ID for a field.
func (m Mapping) ColumnID(field string) (string, bool) {
	col, ok := m.columns[field]
	return col.ID, ok
}

// ContactFieldSpecs is the default contact-board field declaration. Email is
// the only hard requirement; the remaining fields are operator-optional and
// omitted from mutations when absent.
func ContactFieldSpecs() []FieldSpec {
	return []FieldSpec{
		{Field: FieldEmail, Title: "Email", Type: "email", Required: true},
		{Field: FieldFirstName, Title: "Nombre", Type: "text"},
		{Field: FieldPaternalName, Title: "Apellido Paterno", Type: "text"},
		{Field: FieldMaternalName, Title: "Apellido Materno", Type: "text"},
		{Field: FieldPhone, Title: "Teléfono", Type: "phone"},
		{Field: FieldStatus, Title: "Status", Type: "status"},
	}
}

// GroupFieldSpecs declares the group/program board fields: the contact
// relation column and the optional plain-text external contact reference.
func GroupFieldSpecs() []FieldSpec {
	return []FieldSpec{
		{Field: FieldContactLink, Title: "Contacto", Type: "board_relation", Required: true},
		{Field: FieldExternalRef, Title: "Contact ID", Type: "text"},
		{Field: FieldProgramStatus, Title: "Status", Type: "status"},
	}
}

// ProgramFieldSpecs declares the program board fields read by the status
// aggregation. Nothing is individually required; a board must carry at
// least one of the two linkage columns, which the caller checks.
func ProgramFieldSpecs() []FieldSpec {
	return []FieldSpec{
		{Field: FieldContactLink, Title: "Contacto", Type: "board_relation"},
		{Field: FieldExternalRef, Title: "Contact ID", Type: "text"},
		{Field: FieldProgramStatus, Title: "Status", Type: "status"},
	}
}
