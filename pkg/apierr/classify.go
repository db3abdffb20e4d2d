package apierr

// Backend error codes carried in structured error payloads.
const (
	CodeAuthNotAuthorized   = "AUTH_NOT_AUTHORIZED"
	CodeAuthUnauthenticated = "AUTH_UNAUTHENTICATED"
	CodeBadInput            = "BAD_INPUT"
	CodeForbidden           = "FORBIDDEN"
	CodeNotFound            = "NOT_FOUND"
	CodeInternal            = "INTERNAL_SERVER_ERROR"
)

// codeKinds maps backend error codes to kinds. Codes outside this table
// classify as KindUnknown.
var codeKinds = map[string]Kind{
	CodeAuthNotAuthorized:   KindAuthNotAuthorized,
	CodeAuthUnauthenticated: KindAuthUnauthenticated,
	CodeBadInput:            KindBadInput,
	CodeForbidden:           KindForbidden,
	CodeNotFound:            KindNotFound,
	CodeInternal:            KindInternal,
}

// kindRetryable marks the kinds a dispatcher may retry. Absent kinds are
// terminal.
var kindRetryable = map[Kind]bool{
	KindInternal: true,
	KindNetwork:  true,
	KindUnknown:  true,
}

// kindRequiresAuth marks the kinds that demand a fresh authentication
// before the operation can succeed.
var kindRequiresAuth = map[Kind]bool{
	KindAuthNotAuthorized:   true,
	KindAuthUnauthenticated: true,
	KindForbidden:           true,
}

// kindUserMessages holds the fixed user-facing copy per kind. Presentation
// layers show these verbatim; RawMessage stays diagnostic-only.
var kindUserMessages = map[Kind]string{
	KindAuthNotAuthorized:   "Your session is not authorized. Please sign in again.",
	KindAuthUnauthenticated: "Please sign in to continue.",
	KindBadInput:            "The request was invalid. Please check your input.",
	KindForbidden:           "You do not have permission to do that.",
	KindNotFound:            "We could not find what you were looking for.",
	KindInternal:            "Something went wrong on our side. Please try again.",
	KindNetwork:             "We could not reach the store. Check your connection.",
	KindUnknown:             "Something unexpected went wrong. Please try again.",
}

// Raw is the unclassified failure handed to Classify. A structured backend
// payload fills Code/Message; a completed request without a parseable
// payload fills StatusCode/Message only; a transport failure fills Err and
// leaves StatusCode zero.
type Raw struct {
	Code       string
	Message    string
	StatusCode int
	Err        error
}

// Classify turns a raw failure into a classified Error. It is pure: the
// same input always yields the same classification, and no I/O happens.
//
// Precedence: a backend code wins over the HTTP status, the status wins
// over the transport error, and an empty input classifies as unknown.
func Classify(raw Raw, req RequestContext) *Error {
	kind := classifyKind(raw)

	retryable := kindRetryable[kind]
	switch raw.StatusCode {
	case 400, 401, 403, 404:
		// These statuses are terminal no matter which kind the payload
		// code mapped to.
		retryable = false
	}

	return &Error{
		Kind:         kind,
		RawMessage:   raw.Message,
		UserMessage:  kindUserMessages[kind],
		Retryable:    retryable,
		RequiresAuth: kindRequiresAuth[kind],
		StatusCode:   raw.StatusCode,
		Cause:        raw.Err,
		Request:      req,
	}
}

func classifyKind(raw Raw) Kind {
	if raw.Code != "" {
		if kind, ok := codeKinds[raw.Code]; ok {
			return kind
		}
		return KindUnknown
	}

	if raw.StatusCode > 0 {
		switch {
		case raw.StatusCode == 400:
			return KindBadInput
		case raw.StatusCode == 401:
			return KindAuthUnauthenticated
		case raw.StatusCode == 403:
			return KindForbidden
		case raw.StatusCode == 404:
			return KindNotFound
		case raw.StatusCode >= 500:
			return KindInternal
		default:
			return KindUnknown
		}
	}

	if raw.Err != nil {
		return KindNetwork
	}

	return KindUnknown
}
