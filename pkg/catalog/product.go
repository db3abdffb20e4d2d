// Package catalog exposes the storefront's product data: windowed
// product pages, single-product lookup, and the category listing.
package catalog

import (
	"strings"

	"github.com/tverberg/storefront-client/pkg/pagination"
)

// Product is one catalog item as served by the backend.
type Product struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	CategoryID  string `json:"categoryId"`
	StoreID     string `json:"storeId"`
	Thumbnail   string `json:"thumbnail"`
	Price       Price  `json:"price"`
}

// Price is a display amount. The backend owns rounding; this is not an
// accounting value.
type Price struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

// Category is one entry of the category listing.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// MatchFilter reports whether the product passes a page-local filter:
// case-insensitive substring on name and description, exact match on
// the id fields. A product without a category or store id never matches
// the corresponding exact filter.
func (p Product) MatchFilter(filter pagination.Filter) bool {
	if filter.Search != "" {
		needle := strings.ToLower(filter.Search)
		if !strings.Contains(strings.ToLower(p.Name), needle) &&
			!strings.Contains(strings.ToLower(p.Description), needle) {
			return false
		}
	}
	if filter.CategoryID != "" && p.CategoryID != filter.CategoryID {
		return false
	}
	if filter.StoreID != "" && p.StoreID != filter.StoreID {
		return false
	}
	return true
}
