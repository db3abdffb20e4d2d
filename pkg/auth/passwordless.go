package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/tverberg/storefront-client/pkg/apierr"
	"github.com/tverberg/storefront-client/pkg/token"
)

// PasswordlessStart is the backend acknowledgement of an OTP dispatch.
type PasswordlessStart struct {
	ID            string `json:"_id"`
	PhoneNumber   string `json:"phone_number"`
	PhoneVerified bool   `json:"phone_verified"`
}

type passwordlessStartRequest struct {
	PhoneNumber string `json:"phone_number"`
	Channel     string `json:"channel"`
	Origin      string `json:"origin,omitempty"`
}

type verifyOTPRequest struct {
	PhoneNumber string `json:"phone_number"`
	OTP         string `json:"otp"`
	Audience    string `json:"audience,omitempty"`
}

type verifyOTPResponse struct {
	AccessToken  string         `json:"access_token"`
	IDToken      string         `json:"id_token"`
	RefreshToken string         `json:"refresh_token"`
	ExpiresIn    int64          `json:"expires_in"`
	User         token.Identity `json:"user"`
}

// StartPasswordless asks the backend to send a one-time password to the
// phone number over the configured channel.
func (m *Manager) StartPasswordless(ctx context.Context, phoneNumber string) (*PasswordlessStart, error) {
	if phoneNumber == "" {
		return nil, apierr.Classify(apierr.Raw{
			Code:       apierr.CodeBadInput,
			Message:    "phone number is required",
			StatusCode: http.StatusBadRequest,
		}, apierr.RequestContext{Method: http.MethodPost, Target: "/passwordless/start"})
	}

	var resp PasswordlessStart
	err := m.postJSON(ctx, "/passwordless/start", passwordlessStartRequest{
		PhoneNumber: phoneNumber,
		Channel:     m.cfg.Channel,
		Origin:      m.cfg.Origin,
	}, &resp)
	if err != nil {
		return nil, err
	}

	m.logger.Debug().
		Str("channel", m.cfg.Channel).
		Bool("phone_verified", resp.PhoneVerified).
		Msg("Passwordless flow started")

	return &resp, nil
}

// VerifyOTP exchanges the one-time password for a session. On success
// the triple is stored and the manager becomes authenticated; the
// returned identity is the user profile the backend issued with it.
func (m *Manager) VerifyOTP(ctx context.Context, phoneNumber, otp string) (token.Identity, error) {
	var resp verifyOTPResponse
	err := m.postJSON(ctx, "/passwordless/verify", verifyOTPRequest{
		PhoneNumber: phoneNumber,
		OTP:         otp,
		Audience:    m.cfg.Audience,
	}, &resp)
	if err != nil {
		return nil, err
	}

	triple := &token.Triple{
		AccessToken:   resp.AccessToken,
		IdentityToken: resp.IDToken,
		RefreshToken:  resp.RefreshToken,
	}
	if resp.ExpiresIn > 0 {
		exp := m.now().Add(time.Duration(resp.ExpiresIn) * time.Second)
		triple.ExpiresAt = &exp
	}
	if !triple.Complete() {
		return nil, apierr.Classify(apierr.Raw{
			Message: "verify response missing tokens",
		}, apierr.RequestContext{Method: http.MethodPost, Target: "/passwordless/verify"})
	}

	if err := m.Login(ctx, triple, resp.User); err != nil {
		return nil, err
	}
	return resp.User, nil
}
