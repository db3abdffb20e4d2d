// Package cache provides the keyed page cache used by pagination prefetch.
//
// The cache stores raw page payloads under deterministic keys derived from
// the exact request parameters that produced them:
//
// - Deterministic key generation (collection + sorted parameters)
// - TTL management per entry
// - Redis backend for shared caches, in-memory backend for embedding
// - Idempotent writes (re-storing a key replaces the entry)
// - Prometheus metrics for observability
//
// # Basic Usage
//
//	// Create Redis client
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	// Create cache manager
//	manager := cache.NewManager(redisClient)
//
//	// Key for one page of the products collection
//	key := cache.Key{
//		Collection: "products",
//		Params:     map[string]string{"first": "20", "after": "abc"},
//	}
//
//	// Get from cache
//	entry, err := manager.Get(ctx, key)
//	if err == cache.ErrCacheMiss {
//		// Cache miss - fetch the page from the backend
//	}
//
// # Storing Pages
//
//	entry := cache.NewEntry(payload, 60*time.Second)
//	if err := manager.Set(ctx, key, entry); err != nil {
//		return err
//	}
//
// # Metrics
//
// The cache exports Prometheus metrics:
//
//   - storefront_page_cache_hits_total{layer} - Cache hits
//   - storefront_page_cache_misses_total - Cache misses
//   - storefront_page_cache_bytes_written_total{layer} - Bytes written
//   - storefront_page_cache_errors_total{operation} - Operation errors
package cache
