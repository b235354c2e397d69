package crm

import (
	"context"
	"encoding/json"
	"fmt"

	apperrors "github.com/katalystmx/dashboard/internal/platform/errors"
)

const itemsPageLimit = 100

// BoardColumns fetches the column descriptors for one board.
func (c *Client) BoardColumns(ctx context.Context, boardID string) ([]Column, error) {
	const query = `query ($boardID: [ID!]) {
  boards (ids: $boardID) {
    columns { id title type settings_str }
  }
}`
	data, err := c.Execute(ctx, query, map[string]any{"boardID": []string{boardID}})
	if err != nil {
		return nil, err
	}

	var payload struct {
		Boards []struct {
			Columns []Column `json:"columns"`
		} `json:"boards"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeUpstreamError, "decode board columns", err)
	}
	if len(payload.Boards) == 0 {
		return nil, apperrors.WithMetadata(apperrors.CodeNotFound, "board not found",
			map[string]string{"board_id": boardID})
	}
	return payload.Boards[0].Columns, nil
}

// ItemsByColumnValue returns the items on a board whose column matches value.
func (c *Client) ItemsByColumnValue(ctx context.Context, boardID, columnID, value string) ([]Item, error) {
	const query = `query ($boardID: ID!, $columnID: String!, $value: String!) {
  items_by_column_values (board_id: $boardID, column_id: $columnID, column_value: $value) {
    id
    name
    column_values { id type text value }
  }
}`
	data, err := c.Execute(ctx, query, map[string]any{
		"boardID":  boardID,
		"columnID": columnID,
		"value":    value,
	})
	if err != nil {
		return nil, err
	}

	var payload struct {
		Items []Item `json:"items_by_column_values"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeUpstreamError, "decode items by column value", err)
	}
	return payload.Items, nil
}

// CreateItem creates one item on a board and returns its ID. Column values
// are serialized to the CRM's JSON argument form; labels missing from status
// and dropdown dictionaries are created rather than rejected.
func (c *Client) CreateItem(ctx context.Context, boardID, name string, columnValues map[string]any) (string, error) {
	encoded, err := json.Marshal(columnValues)
	if err != nil {
		return "", fmt.Errorf("marshal column values: %w", err)
	}

	const query = `mutation ($boardID: ID!, $itemName: String!, $columnValues: JSON) {
  create_item (board_id: $boardID, item_name: $itemName, column_values: $columnValues, create_labels_if_missing: true) {
    id
  }
}`
	data, err := c.Execute(ctx, query, map[string]any{
		"boardID":      boardID,
		"itemName":     name,
		"columnValues": string(encoded),
	})
	if err != nil {
		return "", err
	}

	var payload struct {
		CreateItem struct {
			ID string `json:"id"`
		} `json:"create_item"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", apperrors.Wrap(apperrors.CodeUpstreamError, "decode create item", err)
	}
	if payload.CreateItem.ID == "" {
		return "", apperrors.New(apperrors.CodeUpstreamError, "crm did not return a created item id")
	}
	return payload.CreateItem.ID, nil
}

// ChangeColumnValues updates multiple columns on one item.
func (c *Client) ChangeColumnValues(ctx context.Context, boardID, itemID string, columnValues map[string]any) error {
	encoded, err := json.Marshal(columnValues)
	if err != nil {
		return fmt.Errorf("marshal column values: %w", err)
	}

	const query = `mutation ($boardID: ID!, $itemID: ID!, $columnValues: JSON!) {
  change_multiple_column_values (board_id: $boardID, item_id: $itemID, column_values: $columnValues) {
    id
  }
}`
	data, err := c.Execute(ctx, query, map[string]any{
		"boardID":      boardID,
		"itemID":       itemID,
		"columnValues": string(encoded),
	})
	if err != nil {
		return err
	}

	var payload struct {
		Change struct {
			ID string `json:"id"`
		} `json:"change_multiple_column_values"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return apperrors.Wrap(apperrors.CodeUpstreamError, "decode change column values", err)
	}
	if payload.Change.ID == "" {
		return apperrors.New(apperrors.CodeUpstreamError, "crm did not acknowledge the column mutation")
	}
	return nil
}

// ItemColumnValues fetches selected cells of one item.
func (c *Client) ItemColumnValues(ctx context.Context, itemID string, columnIDs []string) ([]ColumnValue, error) {
	const query = `query ($itemID: [ID!], $columnIDs: [String!]) {
  items (ids: $itemID) {
    column_values (ids: $columnIDs) { id type text value }
  }
}`
	data, err := c.Execute(ctx, query, map[string]any{
		"itemID":    []string{itemID},
		"columnIDs": columnIDs,
	})
	if err != nil {
		return nil, err
	}

	var payload struct {
		Items []struct {
			ColumnValues []ColumnValue `json:"column_values"`
		} `json:"items"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeUpstreamError, "decode item column values", err)
	}
	if len(payload.Items) == 0 {
		return nil, apperrors.WithMetadata(apperrors.CodeNotFound, "item not found",
			map[string]string{"item_id": itemID})
	}
	return payload.Items[0].ColumnValues, nil
}

// BoardItems enumerates all items on a board, following the items_page
// cursor until exhausted. Sub-items are included for checklist reads.
func (c *Client) BoardItems(ctx context.Context, boardID string) ([]Item, error) {
	const firstPage = `query ($boardID: [ID!], $limit: Int!) {
  boards (ids: $boardID) {
    items_page (limit: $limit) {
      cursor
      items {
        id
        name
        column_values { id type text value }
        subitems {
          id
          name
          column_values { id type text value }
        }
      }
    }
  }
}`
	const nextPage = `query ($cursor: String!, $limit: Int!) {
  next_items_page (cursor: $cursor, limit: $limit) {
    cursor
    items {
      id
      name
      column_values { id type text value }
      subitems {
        id
        name
        column_values { id type text value }
      }
    }
  }
}`

	type page struct {
		Cursor string `json:"cursor"`
		Items  []Item `json:"items"`
	}

	data, err := c.Execute(ctx, firstPage, map[string]any{
		"boardID": []string{boardID},
		"limit":   itemsPageLimit,
	})
	if err != nil {
		return nil, err
	}

	var first struct {
		Boards []struct {
			ItemsPage page `json:"items_page"`
		} `json:"boards"`
	}
	if err := json.Unmarshal(data, &first); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeUpstreamError, "decode board items", err)
	}
	if len(first.Boards) == 0 {
		return nil, apperrors.WithMetadata(apperrors.CodeNotFound, "board not found",
			map[string]string{"board_id": boardID})
	}

	items := first.Boards[0].ItemsPage.Items
	cursor := first.Boards[0].ItemsPage.Cursor
	for cursor != "" {
		data, err := c.Execute(ctx, nextPage, map[string]any{
			"cursor": cursor,
			"limit":  itemsPageLimit,
		})
		if err != nil {
			return nil, err
		}
		var next struct {
			NextItemsPage page `json:"next_items_page"`
		}
		if err := json.Unmarshal(data, &next); err != nil {
			return nil, apperrors.Wrap(apperrors.CodeUpstreamError, "decode board items page", err)
		}
		items = append(items, next.NextItemsPage.Items...)
		cursor = next.NextItemsPage.Cursor
	}
	return items, nil
}
