// Package client dispatches described requests to the storefront
// backend with bearer injection, app identity headers, bounded retries,
// and uniform error classification.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tverberg/storefront-client/pkg/apierr"
)

// Prometheus metrics for request dispatch.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_requests_total",
		Help: "Total dispatched requests by operation and HTTP status",
	}, []string{"operation", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storefront_request_duration_seconds",
		Help:    "Request duration in seconds by operation, retries included",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"operation"})

	requestErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_request_errors_total",
		Help: "Total classified request failures by error kind",
	}, []string{"kind"})
)

// TokenProvider supplies the bearer token for a request. An empty token
// with a nil error means the session is anonymous and the request goes
// out without an Authorization header. auth.Manager implements this.
type TokenProvider interface {
	EnsureValidAccessToken(ctx context.Context) (string, error)
}

// Config holds dispatcher configuration.
type Config struct {
	// BaseURL is the backend origin without a trailing slash (REQUIRED).
	BaseURL string

	// QueryPath is the endpoint query documents are POSTed to.
	// Defaults to "/graphql".
	QueryPath string

	// AppID is sent as the X-App-Id header on every request (REQUIRED).
	AppID string

	// UserAgent identifies the application.
	// Format: "AppName/Version (contact-email)"
	UserAgent string

	// Tokens supplies bearer tokens. When nil every request goes out
	// anonymously.
	Tokens TokenProvider

	// MaxAttempts bounds the attempt loop for retryable failures.
	MaxAttempts int

	// InitialBackoff is the wait before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps the exponential backoff.
	MaxBackoff time.Duration

	// BackoffMultiplier grows the backoff between attempts.
	BackoffMultiplier float64

	// HTTPClient overrides the default HTTP client (30s timeout).
	HTTPClient *http.Client
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig(baseURL, appID string) Config {
	return Config{
		BaseURL:           baseURL,
		QueryPath:         "/graphql",
		AppID:             appID,
		UserAgent:         "storefront-client/1.0",
		MaxAttempts:       3,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// Dispatcher sends described requests to the backend.
type Dispatcher struct {
	config     Config
	httpClient *http.Client
	logger     zerolog.Logger
}

// New creates a Dispatcher from the given configuration.
func New(cfg Config) (*Dispatcher, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if cfg.AppID == "" {
		return nil, fmt.Errorf("app ID is required")
	}
	if cfg.QueryPath == "" {
		cfg.QueryPath = "/graphql"
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 1 * time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	if cfg.BackoffMultiplier <= 1 {
		cfg.BackoffMultiplier = 2.0
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Dispatcher{
		config:     cfg,
		httpClient: httpClient,
		logger:     log.With().Str("component", "dispatcher").Logger(),
	}, nil
}

// SetHTTPClient replaces the underlying HTTP client. Primarily useful
// for testing.
func (d *Dispatcher) SetHTTPClient(client *http.Client) {
	d.httpClient = client
}

// Send dispatches the described request and returns the response
// payload. Query responses are unwrapped exactly one level to the data
// object; other responses return the raw body. Every failure comes back
// as a *apierr.Error, except caller cancellation, which returns the
// plain context error and is never classified.
func (d *Dispatcher) Send(ctx context.Context, desc Descriptor) (json.RawMessage, error) {
	operation := desc.Operation()
	reqCtx := apierr.RequestContext{
		Method:    desc.method,
		Target:    operation,
		RequestID: uuid.NewString(),
	}

	start := time.Now()
	defer func() {
		requestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}()

	// 1. Resolve the bearer token before anything goes on the wire
	bearer, err := d.resolveBearer(ctx, reqCtx)
	if err != nil {
		return nil, err
	}

	// 2. Render the payload once; every attempt reuses it
	payload, target, err := d.buildPayload(desc)
	if err != nil {
		return nil, apierr.Classify(apierr.Raw{Code: apierr.CodeBadInput, Message: err.Error()}, reqCtx)
	}

	// 3. Attempt loop with exponential backoff for retryable failures
	backoff := d.config.InitialBackoff
	var lastErr *apierr.Error

	for attempt := 1; attempt <= d.config.MaxAttempts; attempt++ {
		data, retryAfter, err := d.attempt(ctx, desc, target, payload, bearer, reqCtx)
		if err == nil {
			if attempt > 1 {
				d.logger.Info().
					Str("operation", operation).
					Int("attempt", attempt).
					Msg("Request succeeded after retry")
			}
			return data, nil
		}

		var classified *apierr.Error
		if !errors.As(err, &classified) {
			// Caller cancellation surfaces as the bare context error.
			return nil, err
		}

		lastErr = classified
		requestErrorsTotal.WithLabelValues(string(classified.Kind)).Inc()

		if !classified.Retryable || attempt == d.config.MaxAttempts {
			break
		}

		wait := withJitter(backoff)
		if retryAfter > wait {
			wait = retryAfter
		}

		retriesTotal.WithLabelValues(string(classified.Kind)).Inc()
		d.logger.Debug().
			Str("operation", operation).
			Str("kind", string(classified.Kind)).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Msg("Retrying request after backoff")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}

		backoff = nextBackoff(backoff, d.config.BackoffMultiplier, d.config.MaxBackoff)
	}

	if lastErr.Retryable {
		retryExhaustedTotal.WithLabelValues(string(lastErr.Kind)).Inc()
		d.logger.Warn().
			Str("operation", operation).
			Str("kind", string(lastErr.Kind)).
			Int("max_attempts", d.config.MaxAttempts).
			Msg("Retry attempts exhausted")
	}
	return nil, lastErr
}

// resolveBearer asks the token provider for a token. Classified errors
// pass through untouched so callers see why authentication failed.
func (d *Dispatcher) resolveBearer(ctx context.Context, reqCtx apierr.RequestContext) (string, error) {
	if d.config.Tokens == nil {
		return "", nil
	}
	token, err := d.config.Tokens.EnsureValidAccessToken(ctx)
	if err == nil {
		return token, nil
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	var classified *apierr.Error
	if errors.As(err, &classified) {
		return "", err
	}
	return "", apierr.Classify(apierr.Raw{Err: err}, reqCtx)
}

type queryPayload struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
}

// buildPayload renders the request body and resolves the target URL.
func (d *Dispatcher) buildPayload(desc Descriptor) ([]byte, string, error) {
	if desc.IsQuery() {
		payload, err := json.Marshal(queryPayload{
			Query:         desc.document,
			OperationName: desc.operation,
			Variables:     desc.variables,
		})
		if err != nil {
			return nil, "", fmt.Errorf("marshal query payload: %w", err)
		}
		return payload, d.config.BaseURL + d.config.QueryPath, nil
	}

	if desc.route == "" {
		return nil, "", fmt.Errorf("descriptor has no route")
	}
	target := d.config.BaseURL + desc.route
	if desc.body == nil {
		return nil, target, nil
	}
	payload, err := json.Marshal(desc.body)
	if err != nil {
		return nil, "", fmt.Errorf("marshal request body: %w", err)
	}
	return payload, target, nil
}

// attempt performs a single round trip. The returned error is either a
// classified *apierr.Error or, when the caller's context ended, the bare
// context error. retryAfter carries the server's backpressure hint when
// one was sent.
func (d *Dispatcher) attempt(ctx context.Context, desc Descriptor, target string, payload []byte, bearer string, reqCtx apierr.RequestContext) (json.RawMessage, time.Duration, error) {
	var body io.Reader
	if len(payload) > 0 {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, desc.method, target, body)
	if err != nil {
		return nil, 0, apierr.Classify(apierr.Raw{Code: apierr.CodeBadInput, Message: err.Error()}, reqCtx)
	}

	for key, value := range desc.headers {
		req.Header.Set(key, value)
	}
	req.Header.Set("X-App-Id", d.config.AppID)
	req.Header.Set("X-Request-Id", reqCtx.RequestID)
	req.Header.Set("Accept", "application/json")
	if d.config.UserAgent != "" {
		req.Header.Set("User-Agent", d.config.UserAgent)
	}
	if len(payload) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}
		return nil, 0, apierr.Classify(apierr.Raw{Err: err}, reqCtx)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}
		return nil, 0, apierr.Classify(apierr.Raw{StatusCode: resp.StatusCode, Err: err}, reqCtx)
	}

	requestsTotal.WithLabelValues(reqCtx.Target, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, retryAfterHint(resp.Header), d.classifyFailure(resp.StatusCode, raw, reqCtx)
	}

	if desc.IsQuery() {
		data, err := unwrapQueryData(raw, reqCtx)
		return data, 0, err
	}
	return raw, 0, nil
}

// classifyFailure turns a non-success response into a classified error.
// The body text is captured first; a structured decode upgrades it to a
// code and message, otherwise the raw text stands.
func (d *Dispatcher) classifyFailure(status int, body []byte, reqCtx apierr.RequestContext) error {
	failure := apierr.Raw{
		StatusCode: status,
		Message:    strings.TrimSpace(string(body)),
	}
	if code, message, ok := apierr.DecodeErrorBody(body); ok {
		failure.Code = code
		if message != "" {
			failure.Message = message
		}
	} else if len(body) > 0 {
		d.logger.Warn().
			Str("operation", reqCtx.Target).
			Int("status", status).
			Msg("Unstructured error body, classifying from raw text")
	}
	return apierr.Classify(failure, reqCtx)
}

type queryEnvelope struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message    string `json:"message"`
		Extensions struct {
			Code string `json:"code"`
		} `json:"extensions"`
	} `json:"errors"`
}

// unwrapQueryData peels exactly one envelope level from a query
// response. Responses that report errors without any data classify by
// the first error's code; partial data wins over its errors.
func unwrapQueryData(raw []byte, reqCtx apierr.RequestContext) (json.RawMessage, error) {
	var envelope queryEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, apierr.Classify(apierr.Raw{
			Message:    "malformed query response: " + err.Error(),
			StatusCode: http.StatusOK,
			Err:        err,
		}, reqCtx)
	}

	if len(envelope.Errors) > 0 && isNullJSON(envelope.Data) {
		first := envelope.Errors[0]
		return nil, apierr.Classify(apierr.Raw{
			Code:       first.Extensions.Code,
			Message:    first.Message,
			StatusCode: http.StatusOK,
		}, reqCtx)
	}

	return envelope.Data, nil
}

func isNullJSON(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed == "" || trimmed == "null"
}
