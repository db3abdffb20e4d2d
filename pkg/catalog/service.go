package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tverberg/storefront-client/pkg/apierr"
	"github.com/tverberg/storefront-client/pkg/client"
	"github.com/tverberg/storefront-client/pkg/pagination"
)

// productsQuery pages through the product collection. The variables
// carry pagination only; filters stay client-side.
const productsQuery = `query Products($first: Int, $after: String, $last: Int, $before: String) {
  products(first: $first, after: $after, last: $last, before: $before) {
    edges {
      node {
        id
        name
        description
        categoryId
        storeId
        thumbnail
        price {
          amount
          currency
        }
      }
      cursor
    }
    totalCount
    pageInfo {
      hasNextPage
      hasPreviousPage
      startCursor
      endCursor
    }
  }
}`

const productQuery = `query Product($id: ID!) {
  product(id: $id) {
    id
    name
    description
    categoryId
    storeId
    thumbnail
    price {
      amount
      currency
    }
  }
}`

// Sender dispatches described requests. client.Dispatcher satisfies it.
type Sender interface {
	Send(ctx context.Context, desc client.Descriptor) (json.RawMessage, error)
}

// Service exposes the catalog read operations.
type Service struct {
	sender Sender
	logger zerolog.Logger
}

// NewService creates a catalog service over the given sender.
func NewService(sender Sender) (*Service, error) {
	if sender == nil {
		return nil, fmt.Errorf("sender is required")
	}
	return &Service{
		sender: sender,
		logger: log.With().Str("component", "catalog").Logger(),
	}, nil
}

// FetchPage loads one window of the product collection. It satisfies
// pagination.Fetcher[Product].
func (s *Service) FetchPage(ctx context.Context, window pagination.Window) (*pagination.Page[Product], error) {
	desc := client.NewQuery(productsQuery, window.Variables()).WithOperation("Products")
	data, err := s.sender.Send(ctx, desc)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Products json.RawMessage `json:"products"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decode products payload: %w", err)
	}

	page, err := pagination.DecodeConnection[Product](payload.Products)
	if err != nil {
		return nil, err
	}

	s.logger.Debug().
		Int("page_size", window.PageSize).
		Str("direction", string(window.Direction)).
		Int("items", len(page.Items)).
		Msg("Fetched product page")
	return page, nil
}

// NewProductEngine builds a pagination engine over the product
// collection.
func (s *Service) NewProductEngine(cfg pagination.Config) (*pagination.Engine[Product], error) {
	if cfg.Collection == "" {
		cfg.Collection = "products"
	}
	return pagination.NewEngine[Product](s.FetchPage, cfg)
}

// ProductByID fetches a single product by its id.
func (s *Service) ProductByID(ctx context.Context, id string) (*Product, error) {
	if id == "" {
		return nil, apierr.Classify(apierr.Raw{
			Code:    apierr.CodeBadInput,
			Message: "product id is required",
		}, apierr.RequestContext{Method: http.MethodPost, Target: "Product"})
	}

	desc := client.NewQuery(productQuery, map[string]any{"id": id}).WithOperation("Product")
	data, err := s.sender.Send(ctx, desc)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Product *Product `json:"product"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decode product payload: %w", err)
	}
	if payload.Product == nil {
		return nil, apierr.Classify(apierr.Raw{
			Code:    apierr.CodeNotFound,
			Message: "product " + id + " not found",
		}, apierr.RequestContext{Method: http.MethodPost, Target: "Product"})
	}
	return payload.Product, nil
}

// Categories lists the product categories over the plain route.
func (s *Service) Categories(ctx context.Context) ([]Category, error) {
	desc := client.NewRequest(http.MethodGet, "/categories", nil).WithOperation("Categories")
	data, err := s.sender.Send(ctx, desc)
	if err != nil {
		return nil, err
	}

	var categories []Category
	if err := json.Unmarshal(data, &categories); err != nil {
		return nil, fmt.Errorf("decode categories payload: %w", err)
	}
	return categories, nil
}
