package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/tverberg/storefront-client/pkg/apierr"
)

// postJSON sends one JSON request to an auth endpoint and decodes the
// response into out when provided. Auth endpoints are public: no bearer
// header travels here. Failures come back classified except for caller
// cancellation, which surfaces as the bare context error.
func (m *Manager) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-App-Id", m.cfg.AppID)

	reqCtx := apierr.RequestContext{
		Method:    http.MethodPost,
		Target:    path,
		RequestID: uuid.NewString(),
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return apierr.Classify(apierr.Raw{Err: err}, reqCtx)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return apierr.Classify(apierr.Raw{StatusCode: resp.StatusCode, Err: err}, reqCtx)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		failure := apierr.Raw{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(raw)),
		}
		if code, message, ok := apierr.DecodeErrorBody(raw); ok {
			failure.Code = code
			if message != "" {
				failure.Message = message
			}
		}
		return apierr.Classify(failure, reqCtx)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
