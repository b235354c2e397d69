package crm

import (
	"encoding/json"
	"strconv"
	"strings"
)

type linkedPulse struct {
	LinkedPulseID int64 `json:"linkedPulseId"`
}

type relationValue struct {
	LinkedPulseIDs []linkedPulse `json:"linkedPulseIds"`
}

// ParseRelationIDs extracts the linked item IDs from a relation column's raw
// value. A missing or malformed value is treated as an empty relation.
func ParseRelationIDs(rawValue string) []string {
	raw := strings.TrimSpace(rawValue)
	if raw == "" || raw == "null" {
		return nil
	}
	var value relationValue
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return nil
	}
	ids := make([]string, 0, len(value.LinkedPulseIDs))
	for _, pulse := range value.LinkedPulseIDs {
		ids = append(ids, strconv.FormatInt(pulse.LinkedPulseID, 10))
	}
	return ids
}

// RelationColumnValue builds the mutation value for a relation column from a
// list of item IDs. Non-numeric IDs are skipped; the CRM addresses linked
// items by numeric pulse ID only.
func RelationColumnValue(itemIDs []string) map[string]any {
	pulses := make([]map[string]any, 0, len(itemIDs))
	for _, id := range itemIDs {
		numeric, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
		if err != nil {
			continue
		}
		pulses = append(pulses, map[string]any{"linkedPulseId": numeric})
	}
	return map[string]any{"linkedPulseIds": pulses}
}

// MergeRelationIDs appends candidate IDs to existing ones with set semantics,
// preserving first-seen order.
func MergeRelationIDs(existing []string, candidates ...string) []string {
	merged := make([]string, 0, len(existing)+len(candidates))
	seen := make(map[string]bool, len(existing)+len(candidates))
	for _, id := range existing {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		merged = append(merged, id)
	}
	for _, id := range candidates {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		merged = append(merged, id)
	}
	return merged
}
