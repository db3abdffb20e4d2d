package pagination

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tverberg/storefront-client/pkg/cache"
)

// Prometheus metrics for page navigation.
var (
	pagesFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_pages_fetched_total",
		Help: "Total page loads by direction and source (backend or cache)",
	}, []string{"direction", "source"})

	prefetchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_prefetches_total",
		Help: "Total speculative next-page fetches",
	})
)

// Fetcher loads one window of a collection from the backend.
type Fetcher[T any] func(ctx context.Context, window Window) (*Page[T], error)

// PageCache stores fetched pages keyed by their exact window. Both
// cache.Manager and cache.Memory satisfy it.
type PageCache interface {
	Get(ctx context.Context, key cache.Key) (*cache.Entry, error)
	Set(ctx context.Context, key cache.Key, entry *cache.Entry) error
}

// Config holds engine configuration.
type Config struct {
	// PageSize is the window size for every fetch. Defaults to 20.
	PageSize int

	// Collection names the dataset in cache keys and logs, e.g.
	// "products". Defaults to "items".
	Collection string

	// Cache holds fetched pages keyed by window. Defaults to an
	// in-process cache.Memory; pass a cache.Manager to share pages
	// across instances.
	Cache PageCache

	// CacheTTL bounds how long a cached page may serve. Defaults to 60
	// seconds.
	CacheTTL time.Duration
}

// Engine walks a cursor-paginated collection one window at a time:
// forward, backward, with speculative prefetch and page-local
// filtering. Navigation is serialized; Prefetch may run concurrently.
type Engine[T Matchable] struct {
	fetch  Fetcher[T]
	config Config
	logger zerolog.Logger

	mu     sync.Mutex
	window Window
	page   *Page[T]
	filter Filter
}

// NewEngine creates an Engine over the given fetcher.
func NewEngine[T Matchable](fetch Fetcher[T], cfg Config) (*Engine[T], error) {
	if fetch == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 20
	}
	if cfg.Collection == "" {
		cfg.Collection = "items"
	}
	if cfg.Cache == nil {
		cfg.Cache = cache.NewMemory()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 60 * time.Second
	}

	return &Engine[T]{
		fetch:  fetch,
		config: cfg,
		logger: log.With().Str("component", "pagination").Str("collection", cfg.Collection).Logger(),
	}, nil
}

// Load fetches the first window of the collection and returns the
// visible view of it.
func (e *Engine[T]) Load(ctx context.Context) (*Page[T], error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.load(ctx, FirstWindow(e.config.PageSize), DirectionForward)
}

// Next advances to the window after the current page. On the last page
// (or before any load) the position does not move past the data: the
// last page returns unchanged, an empty engine loads the first window.
func (e *Engine[T]) Next(ctx context.Context) (*Page[T], error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.page == nil {
		return e.load(ctx, FirstWindow(e.config.PageSize), DirectionForward)
	}
	if !e.page.PageInfo.HasNextPage || e.page.PageInfo.EndCursor == "" {
		return e.visible(), nil
	}
	return e.load(ctx, NextWindow(e.config.PageSize, e.page.PageInfo.EndCursor), DirectionForward)
}

// Previous moves to the window before the current page. On the first
// page it returns the current view unchanged.
func (e *Engine[T]) Previous(ctx context.Context) (*Page[T], error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.page == nil {
		return e.load(ctx, FirstWindow(e.config.PageSize), DirectionForward)
	}
	if !e.page.PageInfo.HasPreviousPage || e.page.PageInfo.StartCursor == "" {
		return e.visible(), nil
	}
	return e.load(ctx, PreviousWindow(e.config.PageSize, e.page.PageInfo.StartCursor), DirectionBackward)
}

// PrefetchNext speculatively fetches the window after the current page
// into the cache. The engine's position, page, and filter never change;
// a later Next is served from the cache without a backend call.
func (e *Engine[T]) PrefetchNext(ctx context.Context) error {
	e.mu.Lock()
	if e.page == nil || !e.page.PageInfo.HasNextPage || e.page.PageInfo.EndCursor == "" {
		e.mu.Unlock()
		return nil
	}
	window := NextWindow(e.config.PageSize, e.page.PageInfo.EndCursor)
	e.mu.Unlock()

	if _, ok := e.cached(ctx, window); ok {
		return nil
	}

	page, err := e.fetch(ctx, window)
	if err != nil {
		return err
	}

	prefetchesTotal.Inc()
	e.store(ctx, window, page)
	e.logger.Debug().
		Str("cursor", window.After).
		Int("page_size", window.PageSize).
		Msg("Prefetched next page")
	return nil
}

// ApplyFilter narrows the visible items of the current page and returns
// them. Filtering is local: it never fetches, and the page metadata
// (cursors, flags, total count) stays exactly as the backend sent it.
// A zero Filter clears the narrowing.
func (e *Engine[T]) ApplyFilter(filter Filter) []T {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.filter = filter
	view := e.visible()
	if view == nil {
		return nil
	}
	return view.Items
}

// Reset drops the current position, page, and filter. The next
// navigation starts from the first window again.
func (e *Engine[T]) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.window = Window{}
	e.page = nil
	e.filter = Filter{}
}

// Items returns the current page's items with the local filter applied.
func (e *Engine[T]) Items() []T {
	e.mu.Lock()
	defer e.mu.Unlock()

	view := e.visible()
	if view == nil {
		return nil
	}
	return view.Items
}

// Window returns the window that produced the current page.
func (e *Engine[T]) Window() Window {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.window
}

// PageInfo returns the current page's metadata.
func (e *Engine[T]) PageInfo() PageInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.page == nil {
		return PageInfo{}
	}
	return e.page.PageInfo
}

// TotalCount returns the backend's count for the whole unfiltered
// collection as of the current page.
func (e *Engine[T]) TotalCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.page == nil {
		return 0
	}
	return e.page.TotalCount
}

// load resolves the given window, cache first, and commits it as the
// current page. Callers hold the mutex.
func (e *Engine[T]) load(ctx context.Context, window Window, direction Direction) (*Page[T], error) {
	if page, ok := e.cached(ctx, window); ok {
		pagesFetchedTotal.WithLabelValues(string(direction), "cache").Inc()
		e.logger.Debug().
			Str("direction", string(direction)).
			Bool("cache_hit", true).
			Msg("Page served from cache")
		e.commit(window, page)
		return e.visible(), nil
	}

	page, err := e.fetch(ctx, window)
	if err != nil {
		return nil, err
	}

	pagesFetchedTotal.WithLabelValues(string(direction), "backend").Inc()
	e.store(ctx, window, page)
	e.commit(window, page)
	return e.visible(), nil
}

func (e *Engine[T]) commit(window Window, page *Page[T]) {
	e.window = window
	e.page = page
}

// visible returns the current page with the local filter applied. The
// metadata is copied through untouched: filtering never re-counts the
// backend collection.
func (e *Engine[T]) visible() *Page[T] {
	if e.page == nil {
		return nil
	}

	view := &Page[T]{
		PageInfo:   e.page.PageInfo,
		TotalCount: e.page.TotalCount,
	}
	if e.filter.IsZero() {
		view.Items = append([]T(nil), e.page.Items...)
		return view
	}

	view.Items = make([]T, 0, len(e.page.Items))
	for _, item := range e.page.Items {
		if item.MatchFilter(e.filter) {
			view.Items = append(view.Items, item)
		}
	}
	return view
}

func (e *Engine[T]) key(window Window) cache.Key {
	return cache.Key{Collection: e.config.Collection, Params: window.Params()}
}

func (e *Engine[T]) cached(ctx context.Context, window Window) (*Page[T], bool) {
	entry, err := e.config.Cache.Get(ctx, e.key(window))
	if err != nil {
		return nil, false
	}
	var page Page[T]
	if err := json.Unmarshal(entry.Data, &page); err != nil {
		return nil, false
	}
	return &page, true
}

func (e *Engine[T]) store(ctx context.Context, window Window, page *Page[T]) {
	data, err := json.Marshal(page)
	if err != nil {
		return
	}
	if err := e.config.Cache.Set(ctx, e.key(window), cache.NewEntry(data, e.config.CacheTTL)); err != nil {
		e.logger.Debug().Err(err).Msg("Page cache write failed")
	}
}
