package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tverberg/storefront-client/pkg/apierr"
	"github.com/tverberg/storefront-client/pkg/client"
	"github.com/tverberg/storefront-client/pkg/pagination"
)

// queryRecorder captures the query wire shape and serves a canned
// response per operation name.
type queryRecorder struct {
	srv       *httptest.Server
	responses map[string]string

	lastOperation string
	lastVariables map[string]any
	queryCount    int
}

func newQueryRecorder(t *testing.T) *queryRecorder {
	t.Helper()

	rec := &queryRecorder{responses: make(map[string]string)}
	mux := http.NewServeMux()
	mux.HandleFunc("/graphql", func(w http.ResponseWriter, r *http.Request) {
		rec.queryCount++

		var body struct {
			Query         string         `json:"query"`
			OperationName string         `json:"operationName"`
			Variables     map[string]any `json:"variables"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("Failed to decode query body: %v", err)
		}
		rec.lastOperation = body.OperationName
		rec.lastVariables = body.Variables

		resp, ok := rec.responses[body.OperationName]
		if !ok {
			t.Errorf("No canned response for operation %q", body.OperationName)
			resp = `{"data":null}`
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(resp))
	})
	mux.HandleFunc("/categories", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id":"cat-pizza","name":"Pizza"},{"id":"cat-fast","name":"Fast Food"}]`))
	})

	rec.srv = httptest.NewServer(mux)
	t.Cleanup(rec.srv.Close)
	return rec
}

func newTestService(t *testing.T, rec *queryRecorder) *Service {
	t.Helper()

	dispatcher, err := client.New(client.DefaultConfig(rec.srv.URL, "web-shop"))
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}
	service, err := NewService(dispatcher)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	return service
}

func TestNewService_RequiresSender(t *testing.T) {
	if _, err := NewService(nil); err == nil {
		t.Error("Expected error for nil sender")
	}
}

func TestServiceFetchPage_ForwardWindow(t *testing.T) {
	rec := newQueryRecorder(t)
	rec.responses["Products"] = `{"data":{"products":{
		"edges":[
			{"node":{"id":"p-1","name":"Pizza Margherita","price":{"amount":8.5,"currency":"EUR"}},"cursor":"a"},
			{"node":{"id":"p-2","name":"Pizza Funghi","price":{"amount":9.0,"currency":"EUR"}},"cursor":"b"}
		],
		"totalCount":12,
		"pageInfo":{"hasNextPage":true,"hasPreviousPage":true,"startCursor":"a","endCursor":"b"}
	}}}`
	service := newTestService(t, rec)

	page, err := service.FetchPage(context.Background(), pagination.NextWindow(20, "abc"))
	if err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}

	if rec.lastOperation != "Products" {
		t.Errorf("operationName = %q, want Products", rec.lastOperation)
	}
	wantVars := map[string]any{"first": float64(20), "after": "abc"}
	if len(rec.lastVariables) != len(wantVars) {
		t.Errorf("variables = %v, want exactly %v", rec.lastVariables, wantVars)
	}
	for k, v := range wantVars {
		if rec.lastVariables[k] != v {
			t.Errorf("variables[%s] = %v, want %v", k, rec.lastVariables[k], v)
		}
	}

	if len(page.Items) != 2 || page.Items[0].ID != "p-1" {
		t.Errorf("Items = %+v, want two products from the edges form", page.Items)
	}
	if page.Items[1].Price.Amount != 9.0 || page.Items[1].Price.Currency != "EUR" {
		t.Errorf("Price = %+v, want 9.0 EUR", page.Items[1].Price)
	}
	if page.TotalCount != 12 {
		t.Errorf("TotalCount = %d, want 12", page.TotalCount)
	}
	if !page.PageInfo.HasNextPage || page.PageInfo.EndCursor != "b" {
		t.Errorf("PageInfo = %+v, want cursors carried through", page.PageInfo)
	}
}

func TestServiceFetchPage_BackwardWindow(t *testing.T) {
	rec := newQueryRecorder(t)
	rec.responses["Products"] = `{"data":{"products":{
		"nodes":[{"id":"p-3","name":"Hot Dog"}],
		"totalCount":12,
		"pageInfo":{"hasNextPage":true,"hasPreviousPage":false,"startCursor":"c","endCursor":"c"}
	}}}`
	service := newTestService(t, rec)

	page, err := service.FetchPage(context.Background(), pagination.PreviousWindow(20, "xyz"))
	if err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}

	wantVars := map[string]any{"last": float64(20), "before": "xyz"}
	if len(rec.lastVariables) != len(wantVars) {
		t.Errorf("variables = %v, want exactly %v", rec.lastVariables, wantVars)
	}
	for k, v := range wantVars {
		if rec.lastVariables[k] != v {
			t.Errorf("variables[%s] = %v, want %v", k, rec.lastVariables[k], v)
		}
	}

	if len(page.Items) != 1 || page.Items[0].ID != "p-3" {
		t.Errorf("Items = %+v, want the flat nodes form normalized", page.Items)
	}
}

func TestServiceFetchPage_PropagatesClassifiedError(t *testing.T) {
	rec := newQueryRecorder(t)
	rec.responses["Products"] = `{"data":null,"errors":[{"message":"not signed in","extensions":{"code":"AUTH_UNAUTHENTICATED"}}]}`
	service := newTestService(t, rec)

	_, err := service.FetchPage(context.Background(), pagination.FirstWindow(20))
	var classified *apierr.Error
	if !errors.As(err, &classified) {
		t.Fatalf("Expected classified error, got %T: %v", err, err)
	}
	if classified.Kind != apierr.KindAuthUnauthenticated {
		t.Errorf("Kind = %q, want %q", classified.Kind, apierr.KindAuthUnauthenticated)
	}
}

func TestServiceProductByID(t *testing.T) {
	rec := newQueryRecorder(t)
	rec.responses["Product"] = `{"data":{"product":{"id":"p-1","name":"Pizza Margherita","categoryId":"cat-pizza"}}}`
	service := newTestService(t, rec)

	product, err := service.ProductByID(context.Background(), "p-1")
	if err != nil {
		t.Fatalf("ProductByID() error = %v", err)
	}

	if rec.lastVariables["id"] != "p-1" {
		t.Errorf("variables[id] = %v, want p-1", rec.lastVariables["id"])
	}
	if product.Name != "Pizza Margherita" || product.CategoryID != "cat-pizza" {
		t.Errorf("Product = %+v, want decoded fields", product)
	}
}

func TestServiceProductByID_NullProduct(t *testing.T) {
	rec := newQueryRecorder(t)
	rec.responses["Product"] = `{"data":{"product":null}}`
	service := newTestService(t, rec)

	_, err := service.ProductByID(context.Background(), "missing")
	var classified *apierr.Error
	if !errors.As(err, &classified) {
		t.Fatalf("Expected classified error, got %T: %v", err, err)
	}
	if classified.Kind != apierr.KindNotFound {
		t.Errorf("Kind = %q, want %q", classified.Kind, apierr.KindNotFound)
	}
	if classified.Retryable {
		t.Error("Not-found must not be retryable")
	}
}

func TestServiceProductByID_EmptyID(t *testing.T) {
	rec := newQueryRecorder(t)
	service := newTestService(t, rec)

	_, err := service.ProductByID(context.Background(), "")
	var classified *apierr.Error
	if !errors.As(err, &classified) {
		t.Fatalf("Expected classified error, got %T: %v", err, err)
	}
	if classified.Kind != apierr.KindBadInput {
		t.Errorf("Kind = %q, want %q", classified.Kind, apierr.KindBadInput)
	}
	if rec.queryCount != 0 {
		t.Errorf("Query count = %d, want 0 for local validation", rec.queryCount)
	}
}

func TestServiceCategories(t *testing.T) {
	rec := newQueryRecorder(t)
	service := newTestService(t, rec)

	categories, err := service.Categories(context.Background())
	if err != nil {
		t.Fatalf("Categories() error = %v", err)
	}

	if len(categories) != 2 {
		t.Fatalf("Categories len = %d, want 2", len(categories))
	}
	if categories[0].ID != "cat-pizza" || categories[1].Name != "Fast Food" {
		t.Errorf("Categories = %+v, want decoded listing", categories)
	}
	if rec.queryCount != 0 {
		t.Errorf("Query count = %d, want 0 (categories use the plain route)", rec.queryCount)
	}
}

func TestServiceWithEngine_FilterScenario(t *testing.T) {
	rec := newQueryRecorder(t)
	rec.responses["Products"] = `{"data":{"products":{
		"edges":[
			{"node":{"id":"p-1","name":"Pizza Margherita","description":"Classic"},"cursor":"a"},
			{"node":{"id":"p-2","name":"Pizza Funghi","description":"Mushrooms"},"cursor":"b"},
			{"node":{"id":"p-3","name":"Hot Dog","description":"Mustard"},"cursor":"c"},
			{"node":{"id":"p-4","name":"Hawaii","description":"Pizza with pineapple"},"cursor":"d"},
			{"node":{"id":"p-5","name":"Burger","description":"Cheddar"},"cursor":"e"}
		],
		"totalCount":5,
		"pageInfo":{"hasNextPage":false,"hasPreviousPage":false,"startCursor":"a","endCursor":"e"}
	}}}`
	service := newTestService(t, rec)

	engine, err := service.NewProductEngine(pagination.Config{PageSize: 5})
	if err != nil {
		t.Fatalf("NewProductEngine() error = %v", err)
	}
	if _, err := engine.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	queriesBefore := rec.queryCount

	visible := engine.ApplyFilter(pagination.Filter{Search: "pizza"})
	if len(visible) != 3 {
		t.Errorf("Filtered items = %d, want 3", len(visible))
	}
	if rec.queryCount != queriesBefore {
		t.Errorf("Query count = %d, want unchanged %d (filter is page-local)", rec.queryCount, queriesBefore)
	}
}
