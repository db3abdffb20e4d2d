package pagination

import "strconv"

// Direction tells which way a window moves through a collection.
type Direction string

const (
	DirectionForward  Direction = "forward"
	DirectionBackward Direction = "backward"
)

// Window describes one page request against a cursor-paginated
// collection. A window never carries both cursors: forward windows pair
// the page size with an optional After cursor, backward windows with a
// Before cursor.
type Window struct {
	PageSize  int
	After     string
	Before    string
	Direction Direction
}

// FirstWindow returns the window for the first page of a collection.
func FirstWindow(pageSize int) Window {
	return Window{PageSize: pageSize, Direction: DirectionForward}
}

// NextWindow returns the forward window after the given end cursor.
func NextWindow(pageSize int, endCursor string) Window {
	return Window{PageSize: pageSize, After: endCursor, Direction: DirectionForward}
}

// PreviousWindow returns the backward window before the given start
// cursor.
func PreviousWindow(pageSize int, startCursor string) Window {
	return Window{PageSize: pageSize, Before: startCursor, Direction: DirectionBackward}
}

// Variables renders the window as query variables: {first, after} for
// forward windows, {last, before} for backward ones. Empty cursors are
// omitted.
func (w Window) Variables() map[string]any {
	vars := make(map[string]any, 2)
	if w.Direction == DirectionBackward {
		vars["last"] = w.PageSize
		if w.Before != "" {
			vars["before"] = w.Before
		}
		return vars
	}
	vars["first"] = w.PageSize
	if w.After != "" {
		vars["after"] = w.After
	}
	return vars
}

// Params renders the window as flat string parameters for cache keys.
// Two windows share a cache entry only when Params match exactly.
func (w Window) Params() map[string]string {
	params := make(map[string]string, 2)
	if w.Direction == DirectionBackward {
		params["last"] = strconv.Itoa(w.PageSize)
		if w.Before != "" {
			params["before"] = w.Before
		}
		return params
	}
	params["first"] = strconv.Itoa(w.PageSize)
	if w.After != "" {
		params["after"] = w.After
	}
	return params
}
