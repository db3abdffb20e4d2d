// Package testutil provides testing utilities for the storefront client.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ValidOTP is the one-time password the mock verify endpoint accepts.
const ValidOTP = "123456"

// MockPrice is the price of a mock catalog item.
type MockPrice struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

// MockProduct is one item of the mock catalog.
type MockProduct struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CategoryID  string    `json:"categoryId"`
	StoreID     string    `json:"storeId"`
	Thumbnail   string    `json:"thumbnail"`
	Price       MockPrice `json:"price"`
}

// DefaultCatalog returns the fixed product dataset the mock serves.
func DefaultCatalog() []MockProduct {
	return []MockProduct{
		{ID: "p-1", Name: "Pizza Margherita", Description: "Tomato, mozzarella and fresh basil", CategoryID: "cat-pizza", StoreID: "store-1", Thumbnail: "/img/p-1.jpg", Price: MockPrice{Amount: 8.5, Currency: "EUR"}},
		{ID: "p-2", Name: "Pizza Funghi", Description: "Mushrooms and mozzarella", CategoryID: "cat-pizza", StoreID: "store-1", Thumbnail: "/img/p-2.jpg", Price: MockPrice{Amount: 9.0, Currency: "EUR"}},
		{ID: "p-3", Name: "Hot Dog", Description: "Classic with mustard", CategoryID: "cat-fast", StoreID: "store-2", Thumbnail: "/img/p-3.jpg", Price: MockPrice{Amount: 4.0, Currency: "EUR"}},
		{ID: "p-4", Name: "Hawaii", Description: "Pizza with pineapple", CategoryID: "cat-pizza", StoreID: "store-1", Thumbnail: "/img/p-4.jpg", Price: MockPrice{Amount: 9.5, Currency: "EUR"}},
		{ID: "p-5", Name: "Burger", Description: "Beef patty and cheddar", CategoryID: "cat-fast", StoreID: "store-2", Thumbnail: "/img/p-5.jpg", Price: MockPrice{Amount: 7.0, Currency: "EUR"}},
		{ID: "p-6", Name: "Caesar Salad", Description: "Romaine and parmesan", CategoryID: "cat-salad", StoreID: "store-1", Thumbnail: "/img/p-6.jpg", Price: MockPrice{Amount: 6.5, Currency: "EUR"}},
		{ID: "p-7", Name: "Pizza Diavola", Description: "Spicy salami", CategoryID: "cat-pizza", StoreID: "store-2", Thumbnail: "/img/p-7.jpg", Price: MockPrice{Amount: 10.0, Currency: "EUR"}},
		{ID: "p-8", Name: "Lemonade", Description: "Fresh lemons, lightly sweetened", CategoryID: "cat-drinks", StoreID: "store-1", Thumbnail: "/img/p-8.jpg", Price: MockPrice{Amount: 3.0, Currency: "EUR"}},
	}
}

// MockStorefront is a configurable fake backend: the query endpoint
// over a fixed product catalog, the passwordless auth endpoints, the
// token exchange, and the category listing.
type MockStorefront struct {
	server *httptest.Server

	mu            sync.RWMutex
	products      []MockProduct
	handlers      map[string]http.HandlerFunc
	refreshTokens map[string]string

	// UseNodesForm switches the products payload from the edges form to
	// the flat nodes form.
	UseNodesForm bool

	// AccessTokenTTL is the lifetime of minted access tokens.
	AccessTokenTTL time.Duration

	// Tracking
	QueryCount        int
	StartCount        int
	VerifyCount       int
	AuthenticateCount int
	CategoriesCount   int
	LastRequestHeader http.Header
}

// NewMockStorefront creates a mock backend serving the default catalog.
func NewMockStorefront() *MockStorefront {
	mock := &MockStorefront{
		products:       DefaultCatalog(),
		handlers:       make(map[string]http.HandlerFunc),
		refreshTokens:  make(map[string]string),
		AccessTokenTTL: time.Hour,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/graphql", mock.handleQuery)
	mux.HandleFunc("/passwordless/start", mock.handleStart)
	mux.HandleFunc("/passwordless/verify", mock.handleVerify)
	mux.HandleFunc("/authenticate", mock.handleAuthenticate)
	mux.HandleFunc("/categories", mock.handleCategories)

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.LastRequestHeader = r.Header.Clone()
		mock.mu.Unlock()

		mock.mu.RLock()
		custom, ok := mock.handlers[r.URL.Path]
		mock.mu.RUnlock()
		if ok {
			custom(w, r)
			return
		}

		mux.ServeHTTP(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockStorefront) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockStorefront) Close() {
	m.server.Close()
}

// Reset clears tracking counters and issued refresh tokens.
func (m *MockStorefront) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.QueryCount = 0
	m.StartCount = 0
	m.VerifyCount = 0
	m.AuthenticateCount = 0
	m.CategoriesCount = 0
	m.LastRequestHeader = nil
	m.refreshTokens = make(map[string]string)
}

// SetHandler overrides the behaviour of one path.
func (m *MockStorefront) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetProducts replaces the catalog dataset.
func (m *MockStorefront) SetProducts(products []MockProduct) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products = append([]MockProduct(nil), products...)
}

// IssueTriple mints a full token triple for the subject with the given
// access-token expiry, registering the refresh token so /authenticate
// accepts it. Used to seed sessions without walking the OTP flow.
func (m *MockStorefront) IssueTriple(subject string, accessExpiry time.Time) (access, id, refresh string) {
	access = MintAccessToken(subject, accessExpiry)
	id = MintIDToken(subject)
	refresh = uuid.NewString()

	m.mu.Lock()
	m.refreshTokens[refresh] = subject
	m.mu.Unlock()
	return access, id, refresh
}

// QueryCalls returns how many query documents the mock received.
func (m *MockStorefront) QueryCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.QueryCount
}

// AuthenticateCalls returns how many token exchanges the mock received.
func (m *MockStorefront) AuthenticateCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.AuthenticateCount
}

// VerifyCalls returns how many OTP verifications the mock received.
func (m *MockStorefront) VerifyCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.VerifyCount
}

// Header returns the headers of the most recent request.
func (m *MockStorefront) Header() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastRequestHeader
}

func (m *MockStorefront) handleQuery(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.QueryCount++
	m.mu.Unlock()

	var body struct {
		Query         string         `json:"query"`
		OperationName string         `json:"operationName"`
		Variables     map[string]any `json:"variables"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeQueryError(w, "BAD_INPUT", "malformed query payload")
		return
	}

	switch {
	case strings.Contains(body.Query, "products("):
		m.writeProductsPage(w, body.Variables)
	case strings.Contains(body.Query, "product("):
		m.writeProduct(w, body.Variables)
	default:
		writeQueryError(w, "BAD_INPUT", "unsupported query document")
	}
}

func (m *MockStorefront) writeProductsPage(w http.ResponseWriter, vars map[string]any) {
	m.mu.RLock()
	items := append([]MockProduct(nil), m.products...)
	nodesForm := m.UseNodesForm
	m.mu.RUnlock()

	first := intVar(vars, "first")
	last := intVar(vars, "last")
	after, _ := vars["after"].(string)
	before, _ := vars["before"].(string)

	var start, end int
	if last > 0 {
		end = len(items)
		if before != "" {
			end = cursorIndex(before)
			if end < 0 {
				writeQueryError(w, "BAD_INPUT", "invalid before cursor")
				return
			}
		}
		start = end - last
		if start < 0 {
			start = 0
		}
	} else {
		if first <= 0 {
			first = 20
		}
		if after != "" {
			idx := cursorIndex(after)
			if idx < 0 {
				writeQueryError(w, "BAD_INPUT", "invalid after cursor")
				return
			}
			start = idx + 1
		}
		end = start + first
		if end > len(items) {
			end = len(items)
		}
	}
	if start > len(items) {
		start = len(items)
	}
	if end < start {
		end = start
	}

	window := items[start:end]
	pageInfo := map[string]any{
		"hasNextPage":     end < len(items),
		"hasPreviousPage": start > 0,
		"startCursor":     "",
		"endCursor":       "",
	}
	if len(window) > 0 {
		pageInfo["startCursor"] = cursorFor(start)
		pageInfo["endCursor"] = cursorFor(end - 1)
	}

	connection := map[string]any{
		"totalCount": len(items),
		"pageInfo":   pageInfo,
	}
	if nodesForm {
		connection["nodes"] = window
	} else {
		edges := make([]map[string]any, 0, len(window))
		for i, product := range window {
			edges = append(edges, map[string]any{"node": product, "cursor": cursorFor(start + i)})
		}
		connection["edges"] = edges
	}

	writeJSON(w, map[string]any{"data": map[string]any{"products": connection}})
}

func (m *MockStorefront) writeProduct(w http.ResponseWriter, vars map[string]any) {
	id, _ := vars["id"].(string)

	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, product := range m.products {
		if product.ID == id {
			writeJSON(w, map[string]any{"data": map[string]any{"product": product}})
			return
		}
	}
	writeJSON(w, map[string]any{"data": map[string]any{"product": nil}})
}

func (m *MockStorefront) handleStart(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.StartCount++
	m.mu.Unlock()

	var body struct {
		PhoneNumber string `json:"phone_number"`
		Channel     string `json:"channel"`
		Origin      string `json:"origin"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.PhoneNumber == "" {
		writeError(w, http.StatusBadRequest, "BAD_INPUT", "phone_number is required")
		return
	}

	writeJSON(w, map[string]any{
		"_id":            uuid.NewString(),
		"phone_number":   body.PhoneNumber,
		"phone_verified": false,
	})
}

func (m *MockStorefront) handleVerify(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.VerifyCount++
	ttl := m.AccessTokenTTL
	m.mu.Unlock()

	var body struct {
		PhoneNumber string `json:"phone_number"`
		OTP         string `json:"otp"`
		Audience    string `json:"audience"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_INPUT", "malformed verify payload")
		return
	}
	if body.OTP != ValidOTP {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "Wrong phone number or verification code.")
		return
	}

	subject := "user-" + body.PhoneNumber
	access, id, refresh := m.IssueTriple(subject, time.Now().Add(ttl))

	writeJSON(w, map[string]any{
		"access_token":  access,
		"id_token":      id,
		"refresh_token": refresh,
		"expires_in":    int(ttl / time.Second),
		"user": map[string]any{
			"sub":          subject,
			"phone_number": body.PhoneNumber,
		},
	})
}

func (m *MockStorefront) handleAuthenticate(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.AuthenticateCount++
	ttl := m.AccessTokenTTL
	m.mu.Unlock()

	var body struct {
		RefreshToken string `json:"refresh_token"`
		IDToken      string `json:"id_token"`
		AccessToken  string `json:"access_token"`
		ForceRefresh bool   `json:"force_refresh"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_INPUT", "malformed authenticate payload")
		return
	}

	// Refresh tokens rotate: each one is good for a single exchange.
	m.mu.Lock()
	subject, ok := m.refreshTokens[body.RefreshToken]
	if ok {
		delete(m.refreshTokens, body.RefreshToken)
	}
	m.mu.Unlock()
	if !ok {
		writeError(w, http.StatusUnauthorized, "AUTH_UNAUTHENTICATED", "unknown refresh token")
		return
	}

	access, id, refresh := m.IssueTriple(subject, time.Now().Add(ttl))
	writeJSON(w, map[string]any{
		"tokens": map[string]any{
			"accessToken":  access,
			"idToken":      id,
			"refreshToken": refresh,
		},
		"user": map[string]any{"sub": subject},
	})
}

func (m *MockStorefront) handleCategories(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.CategoriesCount++
	m.mu.Unlock()

	m.mu.RLock()
	seen := make(map[string]bool)
	categories := make([]map[string]string, 0)
	for _, product := range m.products {
		if product.CategoryID == "" || seen[product.CategoryID] {
			continue
		}
		seen[product.CategoryID] = true
		categories = append(categories, map[string]string{
			"id":   product.CategoryID,
			"name": strings.TrimPrefix(product.CategoryID, "cat-"),
		})
	}
	m.mu.RUnlock()

	writeJSON(w, categories)
}

func cursorFor(index int) string { return fmt.Sprintf("cur-%d", index) }

func cursorIndex(cursor string) int {
	n, err := strconv.Atoi(strings.TrimPrefix(cursor, "cur-"))
	if err != nil || n < 0 {
		return -1
	}
	return n
}

func intVar(vars map[string]any, key string) int {
	if f, ok := vars[key].(float64); ok {
		return int(f)
	}
	return 0
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"code": code, "message": message})
}

func writeQueryError(w http.ResponseWriter, code, message string) {
	writeJSON(w, map[string]any{
		"data": nil,
		"errors": []map[string]any{
			{"message": message, "extensions": map[string]string{"code": code}},
		},
	})
}
