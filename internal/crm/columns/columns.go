// Package columns resolves semantic field names to CRM board column IDs and
// maps human labels to the raw values the CRM mutation API expects.
//
// Board schemas are operator-configured: optional fields may be missing or
// renamed, and settings payloads may be malformed. Resolution therefore
// degrades to "field omitted" instead of failing the caller, except where a
// required field is declared through a Mapping.
package columns

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/katalystmx/dashboard/internal/crm"
)

// Resolve returns the column matching the given title. Matching is
// case-insensitive and exact-title-first; substring matching is the fallback
// so that, with both "Apellido Paterno" and "Apellido Materno" present,
// resolving one never returns the other. A non-empty columnType narrows
// candidates to that CRM column type.
func Resolve(cols []crm.Column, title string, columnType string) (crm.Column, bool) {
	want := strings.ToLower(strings.TrimSpace(title))
	if want == "" {
		return crm.Column{}, false
	}

	for _, col := range cols {
		if columnType != "" && col.Type != columnType {
			continue
		}
		if strings.ToLower(strings.TrimSpace(col.Title)) == want {
			return col, true
		}
	}
	for _, col := range cols {
		if columnType != "" && col.Type != columnType {
			continue
		}
		if strings.Contains(strings.ToLower(col.Title), want) {
			return col, true
		}
	}
	return crm.Column{}, false
}

type statusSettings struct {
	Labels map[string]string `json:"labels"`
}

type dropdownSettings struct {
	Labels []struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	} `json:"labels"`
}

// ResolveStatusIndex maps a human label to its numeric index in a status
// column's settings. Matching is exact and case-sensitive against the label
// text as stored; a miss or malformed settings yields false, never an error.
func ResolveStatusIndex(col crm.Column, label string) (int, bool) {
	var settings statusSettings
	if err := json.Unmarshal([]byte(col.SettingsStr), &settings); err != nil {
		return 0, false
	}
	for key, value := range settings.Labels {
		if value != label {
			continue
		}
		index, err := strconv.Atoi(key)
		if err != nil {
			return 0, false
		}
		return index, true
	}
	return 0, false
}

// ResolveDropdownID maps a human label to its id in a dropdown column's
// settings, with the same exact-match, fail-soft contract as status labels.
func ResolveDropdownID(col crm.Column, label string) (int, bool) {
	var settings dropdownSettings
	if err := json.Unmarshal([]byte(col.SettingsStr), &settings); err != nil {
		return 0, false
	}
	for _, entry := range settings.Labels {
		if entry.Name == label {
			return entry.ID, true
		}
	}
	return 0, false
}

// LabelColumnValue builds the mutation value for a status or dropdown column
// from a human label. The second return is false when the label cannot be
// resolved or the column type carries no label dictionary; callers omit the
// column in that case.
func LabelColumnValue(col crm.Column, label string) (any, bool) {
	switch col.Type {
	case "status", "color":
		index, ok := ResolveStatusIndex(col, label)
		if !ok {
			return nil, false
		}
		return map[string]any{"index": index}, true
	case "dropdown":
		id, ok := ResolveDropdownID(col, label)
		if !ok {
			return nil, false
		}
		return map[string]any{"ids": []int{id}}, true
	default:
		return nil, false
	}
}
