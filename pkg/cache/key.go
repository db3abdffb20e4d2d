package cache

import (
	"fmt"
	"sort"
	"strings"
)

// Key identifies one cached page of a collection.
type Key struct {
	// Collection is the logical dataset, e.g. "products".
	Collection string

	// Params are the exact request parameters that produced the page,
	// e.g. {"first": "20", "after": "abc"}. Two windows share an entry
	// only when every parameter matches.
	Params map[string]string
}

// String generates a deterministic cache key string.
// Format: storefront:pages:collection:param1=val1:param2=val2
//
// Example:
//
//	storefront:pages:products:after=abc:first=20
func (k Key) String() string {
	parts := []string{"storefront", "pages"}

	collection := strings.Trim(k.Collection, ":")
	if collection != "" {
		parts = append(parts, collection)
	}

	// Params sorted for determinism
	if len(k.Params) > 0 {
		keys := make([]string, 0, len(k.Params))
		for key := range k.Params {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for _, key := range keys {
			parts = append(parts, fmt.Sprintf("%s=%s", key, k.Params[key]))
		}
	}

	return strings.Join(parts, ":")
}
