package crm

// Column describes one board column as reported by the CRM schema query.
// SettingsStr carries column-type-specific options (label dictionaries for
// status and dropdown columns) as a JSON-encoded string.
type Column struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Type        string `json:"type"`
	SettingsStr string `json:"settings_str"`
}

// ColumnValue is one cell of an item. Text is the CRM's display rendering;
// Value is the raw JSON value, used for relation columns.
type ColumnValue struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Text  string `json:"text"`
	Value string `json:"value"`
}

// Item is one board record with its cells and optional sub-items.
type Item struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	ColumnValues []ColumnValue `json:"column_values"`
	Subitems     []Item        `json:"subitems"`
}

// ColumnValueByID returns the cell with the given column ID, if present.
func (i Item) ColumnValueByID(columnID string) (ColumnValue, bool) {
	for _, cv := range i.ColumnValues {
		if cv.ID == columnID {
			return cv, true
		}
	}
	return ColumnValue{}, false
}
