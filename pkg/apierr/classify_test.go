package apierr

import (
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifyBackendCodes(t *testing.T) {
	tests := []struct {
		code string
		want Kind
	}{
		{CodeAuthNotAuthorized, KindAuthNotAuthorized},
		{CodeAuthUnauthenticated, KindAuthUnauthenticated},
		{CodeBadInput, KindBadInput},
		{CodeForbidden, KindForbidden},
		{CodeNotFound, KindNotFound},
		{CodeInternal, KindInternal},
		{"RATE_LIMITED", KindUnknown},
		{"SOMETHING_NEW", KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			got := Classify(Raw{Code: tt.code, Message: "boom"}, RequestContext{})
			require.Equal(t, tt.want, got.Kind)
			require.Equal(t, "boom", got.RawMessage)
		})
	}
}

func TestClassifyStatusFallback(t *testing.T) {
	tests := []struct {
		status int
		want   Kind
	}{
		{400, KindBadInput},
		{401, KindAuthUnauthenticated},
		{403, KindForbidden},
		{404, KindNotFound},
		{409, KindUnknown},
		{429, KindUnknown},
		{500, KindInternal},
		{503, KindInternal},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			got := Classify(Raw{StatusCode: tt.status, Message: "body text"}, RequestContext{})
			require.Equal(t, tt.want, got.Kind)
			require.Equal(t, tt.status, got.StatusCode)
		})
	}
}

func TestClassifyCodeWinsOverStatus(t *testing.T) {
	// A structured payload code takes precedence over whatever status
	// carried it.
	got := Classify(Raw{Code: CodeNotFound, StatusCode: 500}, RequestContext{})
	require.Equal(t, KindNotFound, got.Kind)
}

func TestClassifyTransportFailure(t *testing.T) {
	cause := &net.OpError{Op: "dial", Err: errors.New("connection refused")}

	got := Classify(Raw{Err: cause}, RequestContext{Method: "POST", Target: "Products"})
	require.Equal(t, KindNetwork, got.Kind)
	require.True(t, got.Retryable)
	require.False(t, got.RequiresAuth)
	require.Zero(t, got.StatusCode)
	require.ErrorIs(t, got, cause)
}

func TestClassifyEmptyInput(t *testing.T) {
	got := Classify(Raw{}, RequestContext{})
	require.Equal(t, KindUnknown, got.Kind)
	require.True(t, got.Retryable)
}

func TestClassifyRetryableFlags(t *testing.T) {
	tests := []struct {
		name string
		raw  Raw
		want bool
	}{
		{"internal is retryable", Raw{Code: CodeInternal, StatusCode: 500}, true},
		{"network is retryable", Raw{Err: errors.New("timeout")}, true},
		{"unknown is retryable", Raw{Code: "WEIRD", StatusCode: 502}, true},
		{"bad input is terminal", Raw{Code: CodeBadInput, StatusCode: 400}, false},
		{"forbidden is terminal", Raw{Code: CodeForbidden, StatusCode: 403}, false},
		{"not found is terminal", Raw{Code: CodeNotFound, StatusCode: 404}, false},
		{"status 400 forces terminal even for internal code", Raw{Code: CodeInternal, StatusCode: 400}, false},
		{"status 401 forces terminal even for unknown code", Raw{Code: "ODD", StatusCode: 401}, false},
		{"status 404 forces terminal", Raw{StatusCode: 404}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.raw, RequestContext{})
			require.Equal(t, tt.want, got.Retryable)
		})
	}
}

func TestClassifyRequiresAuthFlags(t *testing.T) {
	tests := []struct {
		raw  Raw
		want bool
	}{
		{Raw{Code: CodeAuthNotAuthorized}, true},
		{Raw{Code: CodeAuthUnauthenticated}, true},
		{Raw{Code: CodeForbidden}, true},
		{Raw{Code: CodeBadInput}, false},
		{Raw{Code: CodeNotFound}, false},
		{Raw{Code: CodeInternal}, false},
		{Raw{Err: errors.New("refused")}, false},
	}

	for _, tt := range tests {
		t.Run(string(classifyKind(tt.raw)), func(t *testing.T) {
			got := Classify(tt.raw, RequestContext{})
			require.Equal(t, tt.want, got.RequiresAuth)
		})
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	raw := Raw{Code: CodeForbidden, Message: "nope", StatusCode: 403}
	reqCtx := RequestContext{Method: "POST", Target: "Products", RequestID: "req-1"}

	first := Classify(raw, reqCtx)
	second := Classify(raw, reqCtx)
	require.Equal(t, first, second)
}

func TestClassifyCarriesRequestContext(t *testing.T) {
	reqCtx := RequestContext{Method: "GET", Target: "/categories", RequestID: "abc-123"}

	got := Classify(Raw{StatusCode: 404}, reqCtx)
	require.Equal(t, reqCtx, got.Request)
	require.NotEmpty(t, got.UserMessage)
}

func TestErrorFormatting(t *testing.T) {
	withCause := &Error{Kind: KindNetwork, RawMessage: "dial failed", Cause: errors.New("refused")}
	require.Contains(t, withCause.Error(), "network_error")
	require.Contains(t, withCause.Error(), "refused")

	withoutCause := &Error{Kind: KindNotFound, StatusCode: 404, RawMessage: "no such product"}
	require.Contains(t, withoutCause.Error(), "status 404")
	require.Contains(t, withoutCause.Error(), "no such product")

	// Falls back to the user message when the backend sent no text.
	bare := Classify(Raw{StatusCode: 500}, RequestContext{})
	require.Contains(t, bare.Error(), kindUserMessages[KindInternal])
}

func TestErrorKindMatching(t *testing.T) {
	classified := Classify(Raw{Code: CodeAuthUnauthenticated, StatusCode: 401}, RequestContext{})
	wrapped := fmt.Errorf("fetch products: %w", classified)

	require.True(t, IsKind(wrapped, KindAuthUnauthenticated))
	require.False(t, IsKind(wrapped, KindForbidden))
	require.True(t, NeedsAuth(wrapped))
	require.False(t, IsRetryable(wrapped))
	require.True(t, errors.Is(wrapped, &Error{Kind: KindAuthUnauthenticated}))

	require.False(t, IsKind(errors.New("plain"), KindUnknown))
	require.False(t, IsRetryable(nil))
}
