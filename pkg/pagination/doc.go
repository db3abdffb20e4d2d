// Package pagination walks cursor-paginated collections one window at a
// time.
//
// A Window pairs a page size with at most one cursor: forward windows
// render as {first, after}, backward windows as {last, before}. The
// Engine keeps the current window and page, follows pageInfo cursors in
// either direction, and can speculatively prefetch the next window into
// a page cache so the following Next needs no backend call.
//
// Example usage:
//
//	engine, err := pagination.NewEngine(fetchProducts, pagination.Config{
//		PageSize:   20,
//		Collection: "products",
//	})
//	page, err := engine.Load(ctx)
//	_ = engine.PrefetchNext(ctx)     // read-ahead, position unchanged
//	page, err = engine.Next(ctx)     // served from the cache
//	visible := engine.ApplyFilter(pagination.Filter{Search: "pizza"})
//
// The engine:
//   - Normalizes both collection wire forms (edges and flat nodes)
//   - Refuses to move past the first or last page (no-op instead)
//   - Keys cached pages by their exact window parameters
//   - Filters locally without touching cursors or counts
package pagination
