package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/tverberg/storefront-client/internal/testutil"
	"github.com/tverberg/storefront-client/pkg/apierr"
	"github.com/tverberg/storefront-client/pkg/auth"
	"github.com/tverberg/storefront-client/pkg/cache"
	"github.com/tverberg/storefront-client/pkg/catalog"
	"github.com/tverberg/storefront-client/pkg/client"
	"github.com/tverberg/storefront-client/pkg/pagination"
	"github.com/tverberg/storefront-client/pkg/token"
)

func setupTestRedis(t *testing.T) (*redis.Client, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := redisC.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := redisC.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	cleanup := func() {
		redisClient.Close()
		redisC.Terminate(ctx)
	}

	return redisClient, cleanup
}

func newTestCatalog(t *testing.T, mock *testutil.MockStorefront) *catalog.Service {
	t.Helper()

	dispatcher, err := client.New(client.DefaultConfig(mock.URL(), "web-shop"))
	if err != nil {
		t.Fatalf("Failed to create dispatcher: %v", err)
	}

	service, err := catalog.NewService(dispatcher)
	if err != nil {
		t.Fatalf("Failed to create catalog service: %v", err)
	}
	return service
}

func TestHealthEndpoint(t *testing.T) {
	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	healthHandler(w, req)

	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	if string(body) != "OK" {
		t.Errorf("Expected body 'OK', got %s", string(body))
	}
}

func TestReadyEndpoint(t *testing.T) {
	redisClient, cleanup := setupTestRedis(t)
	defer cleanup()

	handler := readyHandler(redisClient)

	t.Run("ready", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/ready", nil)
		w := httptest.NewRecorder()

		handler(w, req)

		resp := w.Result()
		body, _ := io.ReadAll(resp.Body)

		if resp.StatusCode != http.StatusOK {
			t.Errorf("Expected status 200, got %d", resp.StatusCode)
		}

		if string(body) != "OK" {
			t.Errorf("Expected body 'OK', got %s", string(body))
		}
	})

	t.Run("not_ready_redis_down", func(t *testing.T) {
		// Close Redis to simulate failure
		redisClient.Close()

		req := httptest.NewRequest("GET", "/ready", nil)
		w := httptest.NewRecorder()

		handler(w, req)

		resp := w.Result()

		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("Expected status 503, got %d", resp.StatusCode)
		}
	})
}

func TestMetricsEndpoint(t *testing.T) {
	// Metrics register at package import, so the handler alone suffices.
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	handler := promhttp.Handler()
	handler.ServeHTTP(w, req)

	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	bodyStr := string(body)

	if !strings.Contains(bodyStr, "# HELP") || !strings.Contains(bodyStr, "# TYPE") {
		t.Error("Expected Prometheus format metrics output")
	}

	// The prefetch counter is a plain counter, present even before any
	// requests are made.
	if !strings.Contains(bodyStr, "storefront_prefetches_total") {
		t.Error("Expected metrics output to contain storefront_prefetches_total")
	}
}

func TestProductsHandler(t *testing.T) {
	mock := testutil.NewMockStorefront()
	defer mock.Close()

	redisClient, cleanup := setupTestRedis(t)
	defer cleanup()

	service := newTestCatalog(t, mock)
	handler := productsHandler(service, cache.NewManager(redisClient))

	getPage := func(t *testing.T, target string, wantStatus int) pagination.Page[catalog.Product] {
		t.Helper()

		req := httptest.NewRequest("GET", target, nil)
		w := httptest.NewRecorder()
		handler(w, req)

		resp := w.Result()
		if resp.StatusCode != wantStatus {
			body, _ := io.ReadAll(resp.Body)
			t.Fatalf("Expected status %d, got %d (body %s)", wantStatus, resp.StatusCode, body)
		}

		var page pagination.Page[catalog.Product]
		if wantStatus == http.StatusOK {
			if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
				t.Fatalf("Failed to decode page: %v", err)
			}
		}
		return page
	}

	t.Run("first_page", func(t *testing.T) {
		page := getPage(t, "/catalog/products?size=3", http.StatusOK)

		if len(page.Items) != 3 {
			t.Errorf("Expected 3 items, got %d", len(page.Items))
		}
		if !page.PageInfo.HasNextPage {
			t.Error("Expected hasNextPage true")
		}
		if page.TotalCount != 8 {
			t.Errorf("Expected totalCount 8, got %d", page.TotalCount)
		}
		if got := mock.QueryCalls(); got != 1 {
			t.Errorf("Expected 1 backend query, got %d", got)
		}
	})

	t.Run("cached_page_skips_backend", func(t *testing.T) {
		getPage(t, "/catalog/products?size=3", http.StatusOK)

		if got := mock.QueryCalls(); got != 1 {
			t.Errorf("Expected cached page to skip the backend, got %d queries", got)
		}
	})

	t.Run("page_local_filter", func(t *testing.T) {
		page := getPage(t, "/catalog/products?size=5&search=pizza", http.StatusOK)

		if len(page.Items) != 3 {
			t.Errorf("Expected 3 filtered items, got %d", len(page.Items))
		}
		for _, item := range page.Items {
			text := strings.ToLower(item.Name + " " + item.Description)
			if !strings.Contains(text, "pizza") {
				t.Errorf("Item %s does not match the filter", item.ID)
			}
		}
		// Filtering narrows items only; page metadata stays untouched.
		if page.TotalCount != 8 {
			t.Errorf("Expected totalCount 8, got %d", page.TotalCount)
		}
		if !page.PageInfo.HasNextPage {
			t.Error("Expected hasNextPage true after filtering")
		}
	})

	t.Run("conflicting_cursors", func(t *testing.T) {
		getPage(t, "/catalog/products?after=cur-1&before=cur-3", http.StatusBadRequest)
	})
}

func TestProductHandler(t *testing.T) {
	mock := testutil.NewMockStorefront()
	defer mock.Close()

	service := newTestCatalog(t, mock)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /catalog/products/{id}", productHandler(service))

	t.Run("found", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/catalog/products/p-3", nil)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)

		resp := w.Result()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("Expected status 200, got %d", resp.StatusCode)
		}

		var product catalog.Product
		if err := json.NewDecoder(resp.Body).Decode(&product); err != nil {
			t.Fatalf("Failed to decode product: %v", err)
		}
		if product.Name != "Hot Dog" {
			t.Errorf("Expected Hot Dog, got %s", product.Name)
		}
	})

	t.Run("not_found", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/catalog/products/p-999", nil)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)

		resp := w.Result()
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("Expected status 404, got %d", resp.StatusCode)
		}

		var failure map[string]string
		if err := json.NewDecoder(resp.Body).Decode(&failure); err != nil {
			t.Fatalf("Failed to decode failure body: %v", err)
		}
		if failure["kind"] != string(apierr.KindNotFound) {
			t.Errorf("Expected kind %s, got %s", apierr.KindNotFound, failure["kind"])
		}
	})
}

func TestAuthHandlers(t *testing.T) {
	mock := testutil.NewMockStorefront()
	defer mock.Close()

	store := token.NewMemoryStore()
	manager, err := auth.NewManager(store, auth.DefaultConfig(mock.URL(), "web-shop"))
	if err != nil {
		t.Fatalf("Failed to create session manager: %v", err)
	}

	verify := verifyHandler(manager)
	session := sessionHandler(manager, store)
	logout := logoutHandler(manager)

	t.Run("wrong_otp", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/auth/verify",
			strings.NewReader(`{"phone_number":"+4711111111","otp":"000000"}`))
		w := httptest.NewRecorder()
		verify(w, req)

		resp := w.Result()
		if resp.StatusCode != http.StatusForbidden {
			t.Fatalf("Expected status 403, got %d", resp.StatusCode)
		}
	})

	t.Run("verify_establishes_session", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/auth/verify",
			strings.NewReader(`{"phone_number":"+4711111111","otp":"`+testutil.ValidOTP+`"}`))
		w := httptest.NewRecorder()
		verify(w, req)

		resp := w.Result()
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			t.Fatalf("Expected status 200, got %d (body %s)", resp.StatusCode, body)
		}

		var payload map[string]any
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if payload["state"] != string(auth.StateAuthenticated) {
			t.Errorf("Expected state authenticated, got %v", payload["state"])
		}
	})

	t.Run("session_reflects_identity", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/auth/session", nil)
		w := httptest.NewRecorder()
		session(w, req)

		var payload map[string]any
		if err := json.NewDecoder(w.Result().Body).Decode(&payload); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if payload["state"] != string(auth.StateAuthenticated) {
			t.Errorf("Expected state authenticated, got %v", payload["state"])
		}
		user, ok := payload["user"].(map[string]any)
		if !ok || user["sub"] != "user-+4711111111" {
			t.Errorf("Expected session user, got %v", payload["user"])
		}
	})

	t.Run("logout_clears_session", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/auth/logout", nil)
		w := httptest.NewRecorder()
		logout(w, req)

		if w.Result().StatusCode != http.StatusNoContent {
			t.Fatalf("Expected status 204, got %d", w.Result().StatusCode)
		}

		req = httptest.NewRequest("GET", "/auth/session", nil)
		w = httptest.NewRecorder()
		session(w, req)

		var payload map[string]any
		if err := json.NewDecoder(w.Result().Body).Decode(&payload); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if payload["state"] != string(auth.StateUnauthenticated) {
			t.Errorf("Expected state unauthenticated, got %v", payload["state"])
		}
	})
}

func TestStatusForKind(t *testing.T) {
	tests := []struct {
		kind apierr.Kind
		want int
	}{
		{apierr.KindBadInput, http.StatusBadRequest},
		{apierr.KindAuthNotAuthorized, http.StatusUnauthorized},
		{apierr.KindAuthUnauthenticated, http.StatusUnauthorized},
		{apierr.KindForbidden, http.StatusForbidden},
		{apierr.KindNotFound, http.StatusNotFound},
		{apierr.KindNetwork, http.StatusBadGateway},
		{apierr.KindInternal, http.StatusBadGateway},
		{apierr.KindUnknown, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			if got := statusForKind(tt.kind); got != tt.want {
				t.Errorf("statusForKind(%s) = %d, want %d", tt.kind, got, tt.want)
			}
		})
	}
}
