package pagination

import (
	"encoding/json"
	"fmt"
)

// PageInfo mirrors the page metadata sent by the backend.
type PageInfo struct {
	HasNextPage     bool   `json:"hasNextPage"`
	HasPreviousPage bool   `json:"hasPreviousPage"`
	StartCursor     string `json:"startCursor"`
	EndCursor       string `json:"endCursor"`
}

// Page is one fetched window of a collection.
type Page[T any] struct {
	Items      []T      `json:"items"`
	PageInfo   PageInfo `json:"pageInfo"`
	TotalCount int      `json:"totalCount"`
}

// Filter narrows a fetched page locally. Search matches the item's text
// fields case-insensitively; the ID fields match exactly. The zero
// Filter matches everything.
type Filter struct {
	Search     string
	CategoryID string
	StoreID    string
}

// IsZero reports whether the filter matches everything.
func (f Filter) IsZero() bool {
	return f.Search == "" && f.CategoryID == "" && f.StoreID == ""
}

// Matchable lets item types answer a local filter.
type Matchable interface {
	MatchFilter(filter Filter) bool
}

// connection is the wire shape of a paginated collection. Both the
// edges form and the flat nodes form occur; edges win when both are
// present.
type connection[T any] struct {
	Edges []struct {
		Node   T      `json:"node"`
		Cursor string `json:"cursor"`
	} `json:"edges"`
	Nodes      []T      `json:"nodes"`
	TotalCount int      `json:"totalCount"`
	PageInfo   PageInfo `json:"pageInfo"`
}

// DecodeConnection normalizes a raw collection payload into a Page.
func DecodeConnection[T any](raw json.RawMessage) (*Page[T], error) {
	var conn connection[T]
	if err := json.Unmarshal(raw, &conn); err != nil {
		return nil, fmt.Errorf("decode connection: %w", err)
	}

	page := &Page[T]{
		PageInfo:   conn.PageInfo,
		TotalCount: conn.TotalCount,
	}

	if len(conn.Edges) > 0 {
		page.Items = make([]T, 0, len(conn.Edges))
		for _, edge := range conn.Edges {
			page.Items = append(page.Items, edge.Node)
		}
		return page, nil
	}

	page.Items = conn.Nodes
	if page.Items == nil {
		page.Items = []T{}
	}
	return page, nil
}
