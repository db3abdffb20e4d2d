package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/tverberg/storefront-client/pkg/apierr"
	"github.com/tverberg/storefront-client/pkg/auth"
	"github.com/tverberg/storefront-client/pkg/cache"
	"github.com/tverberg/storefront-client/pkg/catalog"
	"github.com/tverberg/storefront-client/pkg/client"
	"github.com/tverberg/storefront-client/pkg/logging"
	"github.com/tverberg/storefront-client/pkg/pagination"
	"github.com/tverberg/storefront-client/pkg/token"
)

const pageCacheTTL = 60 * time.Second

func main() {
	logging.Setup(logging.Config{
		Level:  logging.LogLevel(getEnv("LOG_LEVEL", "info")),
		Output: os.Stderr,
	})

	// Configuration from environment
	backendURL := getEnv("BACKEND_URL", "")
	if backendURL == "" {
		log.Fatal().Msg("BACKEND_URL is required")
	}
	authURL := getEnv("AUTH_URL", backendURL)
	redisURL := getEnv("REDIS_URL", "localhost:6379")
	port := getEnv("PORT", "8080")
	appID := getEnv("APP_ID", "web-shop")

	// Setup Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr: redisURL,
	})

	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Str("redis_url", redisURL).Msg("Failed to connect to Redis")
	}
	log.Info().Str("redis_url", redisURL).Msg("Connected to Redis")

	// Session manager over the Redis token store
	store := token.NewRedisStore(redisClient)
	manager, err := auth.NewManager(store, auth.DefaultConfig(authURL, appID))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create session manager")
	}

	// Dispatcher and catalog service
	cfg := client.DefaultConfig(backendURL, appID)
	cfg.Tokens = manager
	dispatcher, err := client.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create dispatcher")
	}

	service, err := catalog.NewService(dispatcher)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create catalog service")
	}

	pages := cache.NewManager(redisClient)

	// HTTP Server
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler)
	mux.HandleFunc("GET /ready", readyHandler(redisClient))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("POST /auth/start", startHandler(manager))
	mux.HandleFunc("POST /auth/verify", verifyHandler(manager))
	mux.HandleFunc("POST /auth/logout", logoutHandler(manager))
	mux.HandleFunc("GET /auth/session", sessionHandler(manager, store))
	mux.HandleFunc("GET /catalog/products", productsHandler(service, pages))
	mux.HandleFunc("GET /catalog/products/{id}", productHandler(service))
	mux.HandleFunc("GET /catalog/categories", categoriesHandler(service))

	addr := ":" + port
	log.Info().
		Str("addr", addr).
		Str("backend_url", backendURL).
		Str("app_id", appID).
		Msg("Starting storefront proxy")

	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

func readyHandler(redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
			return
		}

		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	}
}

func startHandler(manager *auth.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			PhoneNumber string `json:"phone_number"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "malformed JSON body", http.StatusBadRequest)
			return
		}

		start, err := manager.StartPasswordless(r.Context(), body.PhoneNumber)
		if err != nil {
			writeFailure(w, err)
			return
		}
		writeJSON(w, http.StatusOK, start)
	}
}

func verifyHandler(manager *auth.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			PhoneNumber string `json:"phone_number"`
			OTP         string `json:"otp"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "malformed JSON body", http.StatusBadRequest)
			return
		}

		identity, err := manager.VerifyOTP(r.Context(), body.PhoneNumber, body.OTP)
		if err != nil {
			writeFailure(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"state": manager.State(),
			"user":  identity,
		})
	}
}

func logoutHandler(manager *auth.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := manager.Logout(r.Context()); err != nil {
			writeFailure(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func sessionHandler(manager *auth.Manager, store token.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]any{"state": manager.State()}
		if _, identity, err := store.Read(r.Context()); err == nil && identity != nil {
			payload["user"] = identity
		}
		writeJSON(w, http.StatusOK, payload)
	}
}

func productsHandler(service *catalog.Service, pages *cache.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		size, _ := strconv.Atoi(q.Get("size"))
		if size <= 0 {
			size = 20
		}
		after := q.Get("after")
		before := q.Get("before")
		if after != "" && before != "" {
			http.Error(w, "after and before are mutually exclusive", http.StatusBadRequest)
			return
		}

		var window pagination.Window
		switch {
		case before != "":
			window = pagination.PreviousWindow(size, before)
		case after != "":
			window = pagination.NextWindow(size, after)
		default:
			window = pagination.FirstWindow(size)
		}

		page, err := loadPage(r.Context(), service, pages, window)
		if err != nil {
			writeFailure(w, err)
			return
		}

		// Filters never touch the network; they narrow the loaded page.
		filter := pagination.Filter{
			Search:     q.Get("search"),
			CategoryID: q.Get("category"),
			StoreID:    q.Get("store"),
		}
		items := page.Items
		if !filter.IsZero() {
			filtered := make([]catalog.Product, 0, len(items))
			for _, product := range items {
				if product.MatchFilter(filter) {
					filtered = append(filtered, product)
				}
			}
			items = filtered
		}

		writeJSON(w, http.StatusOK, pagination.Page[catalog.Product]{
			Items:      items,
			PageInfo:   page.PageInfo,
			TotalCount: page.TotalCount,
		})
	}
}

// loadPage reads through the shared Redis page cache so repeated windows
// skip the backend entirely.
func loadPage(ctx context.Context, service *catalog.Service, pages *cache.Manager, window pagination.Window) (*pagination.Page[catalog.Product], error) {
	key := cache.Key{Collection: "products", Params: window.Params()}

	if entry, err := pages.Get(ctx, key); err == nil && entry != nil {
		var page pagination.Page[catalog.Product]
		if json.Unmarshal(entry.Data, &page) == nil {
			return &page, nil
		}
	}

	page, err := service.FetchPage(ctx, window)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(page); err == nil {
		if err := pages.Set(ctx, key, cache.NewEntry(data, pageCacheTTL)); err != nil {
			log.Warn().Err(err).Msg("Failed to cache product page")
		}
	}
	return page, nil
}

func productHandler(service *catalog.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		product, err := service.ProductByID(r.Context(), r.PathValue("id"))
		if err != nil {
			writeFailure(w, err)
			return
		}
		writeJSON(w, http.StatusOK, product)
	}
}

func categoriesHandler(service *catalog.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		categories, err := service.Categories(r.Context())
		if err != nil {
			writeFailure(w, err)
			return
		}
		writeJSON(w, http.StatusOK, categories)
	}
}

// writeFailure translates classified errors into proxy status codes.
func writeFailure(w http.ResponseWriter, err error) {
	var classified *apierr.Error
	if !errors.As(err, &classified) {
		status := http.StatusBadGateway
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		http.Error(w, err.Error(), status)
		return
	}

	message := classified.UserMessage
	if message == "" {
		message = classified.RawMessage
	}
	writeJSON(w, statusForKind(classified.Kind), map[string]any{
		"kind":    string(classified.Kind),
		"message": message,
		"detail":  classified.RawMessage,
	})
}

func statusForKind(kind apierr.Kind) int {
	switch kind {
	case apierr.KindBadInput:
		return http.StatusBadRequest
	case apierr.KindAuthNotAuthorized, apierr.KindAuthUnauthenticated:
		return http.StatusUnauthorized
	case apierr.KindForbidden:
		return http.StatusForbidden
	case apierr.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("Failed to write response")
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
