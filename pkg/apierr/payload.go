package apierr

import (
	"encoding/json"
)

// flatEnvelope matches the REST-style error bodies:
// {"code": "...", "message": "..."} and {"error": "..."}.
type flatEnvelope struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	ErrorText string `json:"error"`
}

// queryEnvelope matches the query endpoint error body:
// {"errors": [{"message": "...", "extensions": {"code": "..."}}]}.
type queryEnvelope struct {
	Errors []struct {
		Message    string `json:"message"`
		Extensions struct {
			Code string `json:"code"`
		} `json:"extensions"`
	} `json:"errors"`
}

// DecodeErrorBody attempts the known structured error shapes over a raw
// response body. The first error of a multi-error payload wins. ok is
// false when no shape matched; callers then degrade to the raw body text.
func DecodeErrorBody(body []byte) (code, message string, ok bool) {
	var qenv queryEnvelope
	if err := json.Unmarshal(body, &qenv); err == nil && len(qenv.Errors) > 0 {
		first := qenv.Errors[0]
		if first.Extensions.Code != "" || first.Message != "" {
			return first.Extensions.Code, first.Message, true
		}
	}

	var fenv flatEnvelope
	if err := json.Unmarshal(body, &fenv); err == nil {
		if fenv.Code != "" || fenv.Message != "" {
			return fenv.Code, fenv.Message, true
		}
		if fenv.ErrorText != "" {
			return "", fenv.ErrorText, true
		}
	}

	return "", "", false
}
