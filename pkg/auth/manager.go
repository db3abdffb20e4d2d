// Package auth manages the session token lifecycle: the passwordless
// phone login flow, proactive single-flight token refresh, and logout.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/tverberg/storefront-client/pkg/apierr"
	"github.com/tverberg/storefront-client/pkg/token"
)

// Prometheus metrics for session lifecycle operations.
var (
	authRefreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_token_refreshes_total",
		Help: "Total token refresh network calls by outcome",
	}, []string{"outcome"})

	authRefreshWaitersTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_refresh_waiters_total",
		Help: "Total callers that waited on a token refresh",
	})

	authSessionsClearedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_sessions_cleared_total",
		Help: "Total sessions cleared by reason",
	}, []string{"reason"})
)

// SessionState describes the manager's view of the session. The state
// lives in the manager only; the store persists tokens, never state.
type SessionState string

const (
	// StateUnauthenticated means no usable session exists.
	StateUnauthenticated SessionState = "unauthenticated"

	// StateAuthenticated means a complete triple is stored.
	StateAuthenticated SessionState = "authenticated"

	// StateRefreshing means a refresh call is in flight.
	StateRefreshing SessionState = "refreshing"
)

// Config holds the manager configuration.
type Config struct {
	// BaseURL of the auth backend, without trailing slash.
	BaseURL string

	// AppID is sent as the X-App-Id header on every auth call.
	AppID string

	// Audience requested during OTP verification.
	Audience string

	// Origin reported when starting the passwordless flow.
	Origin string

	// Channel for OTP delivery (default "sms").
	Channel string

	// LogoutPath, when set, is POSTed best-effort during logout. Failures
	// are logged and swallowed; the local session always clears.
	LogoutPath string

	// ClockSkew widens the expiry check so tokens refresh before the
	// backend rejects them (default 30s).
	ClockSkew time.Duration

	// HTTPClient used for auth endpoints (default 30s timeout).
	HTTPClient *http.Client
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(baseURL, appID string) Config {
	return Config{
		BaseURL:   baseURL,
		AppID:     appID,
		Channel:   "sms",
		ClockSkew: 30 * time.Second,
	}
}

// Manager owns the session lifecycle on top of a token store.
type Manager struct {
	store      token.Store
	cfg        Config
	httpClient *http.Client
	logger     zerolog.Logger
	now        func() time.Time

	group singleflight.Group

	mu    sync.Mutex
	state SessionState
}

// Option customizes a Manager.
type Option func(*Manager)

// WithNow overrides the manager's clock. Tests use it to pin expiry.
func WithNow(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithLogger replaces the component logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a session manager. It reads the store once to pick
// up a session persisted by an earlier process.
func NewManager(store token.Store, cfg Config, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("token store is required")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if cfg.AppID == "" {
		return nil, fmt.Errorf("app ID is required")
	}
	if cfg.Channel == "" {
		cfg.Channel = "sms"
	}
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = 30 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	m := &Manager{
		store:      store,
		cfg:        cfg,
		httpClient: httpClient,
		logger:     log.With().Str("component", "auth-manager").Logger(),
		now:        time.Now,
		state:      StateUnauthenticated,
	}
	for _, opt := range opts {
		opt(m)
	}

	if triple, _, err := store.Read(context.Background()); err == nil && triple.Complete() {
		m.state = StateAuthenticated
	}

	return m, nil
}

// State returns the manager's current view of the session.
func (m *Manager) State() SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) setState(s SessionState) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// EnsureValidAccessToken returns an access token that is safe to attach
// to a request. Without a stored session it returns "" and no error, so
// callers proceed anonymously. An expired token triggers one shared
// refresh: however many callers arrive concurrently, exactly one
// /authenticate call goes out and every caller receives its outcome.
func (m *Manager) EnsureValidAccessToken(ctx context.Context) (string, error) {
	triple, _, err := m.store.Read(ctx)
	if err != nil {
		return "", fmt.Errorf("read session: %w", err)
	}
	if !triple.Complete() {
		return "", nil
	}

	if !m.tokenExpired(triple.AccessToken) {
		return triple.AccessToken, nil
	}

	refreshed, err := m.refresh(ctx)
	if err != nil {
		return "", err
	}
	return refreshed.AccessToken, nil
}

// tokenExpired applies the skew-widened expiry check. A token whose
// expiry cannot be decoded counts as expired.
func (m *Manager) tokenExpired(raw string) bool {
	exp, err := TokenExpiry(raw)
	if err != nil {
		m.logger.Debug().Err(err).Msg("Token expiry undecodable, treating as expired")
		return true
	}
	return IsExpired(exp, m.now(), m.cfg.ClockSkew)
}

// refresh joins the single-flight token refresh. The network call runs
// detached from any one caller's context: a caller that cancels stops
// waiting, but the refresh still completes and the other waiters share
// its outcome.
func (m *Manager) refresh(ctx context.Context) (*token.Triple, error) {
	authRefreshWaitersTotal.Inc()

	ch := m.group.DoChan("refresh", func() (any, error) {
		return m.doRefresh(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*token.Triple), nil
	}
}

// doRefresh performs the actual /authenticate exchange. A failed refresh
// is fatal to the session: the triple is cleared so the next caller
// starts unauthenticated instead of looping on a dead refresh token.
func (m *Manager) doRefresh(ctx context.Context) (*token.Triple, error) {
	triple, identity, err := m.store.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}
	if !triple.Complete() {
		return nil, apierr.Classify(apierr.Raw{
			Code:       apierr.CodeAuthUnauthenticated,
			Message:    "no session to refresh",
			StatusCode: http.StatusUnauthorized,
		}, apierr.RequestContext{Method: http.MethodPost, Target: "/authenticate"})
	}

	// A flight that started after a completed refresh sees the fresh
	// token here and skips the network call.
	if !m.tokenExpired(triple.AccessToken) {
		return triple, nil
	}

	m.setState(StateRefreshing)
	m.logger.Debug().Msg("Refreshing session tokens")

	var resp authenticateResponse
	err = m.postJSON(ctx, "/authenticate", authenticateRequest{
		RefreshToken: triple.RefreshToken,
		IDToken:      triple.IdentityToken,
		AccessToken:  triple.AccessToken,
		ForceRefresh: false,
	}, &resp)

	fresh := &token.Triple{
		AccessToken:   resp.Tokens.AccessToken,
		IdentityToken: resp.Tokens.IDToken,
		RefreshToken:  resp.Tokens.RefreshToken,
	}
	if err == nil && !fresh.Complete() {
		err = apierr.Classify(apierr.Raw{
			Message: "authenticate response missing tokens",
		}, apierr.RequestContext{Method: http.MethodPost, Target: "/authenticate"})
	}

	if err != nil {
		if clearErr := m.store.Clear(ctx); clearErr != nil {
			m.logger.Error().Err(clearErr).Msg("Failed to clear session after refresh failure")
		}
		m.setState(StateUnauthenticated)
		authRefreshesTotal.WithLabelValues("failure").Inc()
		authSessionsClearedTotal.WithLabelValues("refresh_failed").Inc()
		m.logger.Warn().Err(err).Msg("Token refresh failed, session cleared")
		return nil, err
	}

	if len(resp.User) > 0 {
		identity = resp.User
	}
	if err := m.store.Write(ctx, fresh, identity); err != nil {
		m.setState(StateUnauthenticated)
		authRefreshesTotal.WithLabelValues("failure").Inc()
		return nil, fmt.Errorf("persist refreshed session: %w", err)
	}

	m.setState(StateAuthenticated)
	authRefreshesTotal.WithLabelValues("success").Inc()
	m.logger.Info().Msg("Session tokens refreshed")
	return fresh, nil
}

// Login stores a freshly issued triple with its identity and marks the
// session authenticated.
func (m *Manager) Login(ctx context.Context, triple *token.Triple, identity token.Identity) error {
	if !triple.Complete() {
		return token.ErrPartialTriple
	}
	if err := m.store.Write(ctx, triple, identity); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}

	m.setState(StateAuthenticated)
	m.logger.Info().Str("subject", identity.Subject()).Msg("Logged in")
	return nil
}

// Logout ends the session. When a logout path is configured the remote
// call is best-effort and its failure only logs; the local session
// clears either way.
func (m *Manager) Logout(ctx context.Context) error {
	if m.cfg.LogoutPath != "" {
		if err := m.postJSON(ctx, m.cfg.LogoutPath, struct{}{}, nil); err != nil {
			m.logger.Warn().Err(err).Msg("Best-effort logout call failed")
		}
	}

	if err := m.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}

	m.setState(StateUnauthenticated)
	authSessionsClearedTotal.WithLabelValues("logout").Inc()
	m.logger.Info().Msg("Logged out")
	return nil
}

// authenticateRequest is the refresh exchange payload. The backend
// accepts snake_case here.
type authenticateRequest struct {
	RefreshToken string `json:"refresh_token"`
	IDToken      string `json:"id_token,omitempty"`
	AccessToken  string `json:"access_token,omitempty"`
	ForceRefresh bool   `json:"force_refresh"`
}

// authenticateResponse is the refresh exchange result. Unlike the other
// auth endpoints this one answers in camelCase.
type authenticateResponse struct {
	Tokens struct {
		AccessToken  string `json:"accessToken"`
		IDToken      string `json:"idToken"`
		RefreshToken string `json:"refreshToken"`
	} `json:"tokens"`
	User token.Identity `json:"user"`
}
