// Package apierror provides the typed error taxonomy that the request
// router and HTTP handlers use to produce the status codes and bodies
// documented for the proxy's inbound API.
package apierror

import "fmt"

// Kind identifies which error taxonomy entry an APIError represents.
type Kind string

const (
	KindAuth             Kind = "auth_error"
	KindNoUpstream       Kind = "no_upstream"
	KindNoKeys           Kind = "no_api_keys"
	KindUnsupportedSvc   Kind = "unsupported_service"
	KindAllKeysExhausted Kind = "all_keys_exhausted"
	KindFatalUpstream    Kind = "fatal_upstream"
	KindStream           Kind = "stream_error"
	KindInternal         Kind = "internal_error"
)

// APIError is a typed error with an HTTP status and a client-facing body.
type APIError struct {
	Kind       Kind
	Status     int
	Code       string
	Message    string
	Upstream   map[string]any
	Reason     string
	Hint       string
	RawBody    []byte
	RawHeaders map[string][]string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Body renders the client-facing JSON body for this error. FatalUpstream
// and AllKeysExhausted-with-verbatim-body callers should prefer RawBody
// directly; Body is used for the synthesized-error cases.
func (e *APIError) Body() map[string]any {
	body := map[string]any{"error": e.Message}
	if e.Code != "" {
		body["code"] = e.Code
	}
	if e.Upstream != nil {
		body["upstream"] = e.Upstream
	}
	if e.Reason != "" {
		body["reason"] = e.Reason
	}
	if e.Hint != "" {
		body["hint"] = e.Hint
	}
	return body
}

// NewAuthError builds the 401 returned when the inbound proxy key is
// missing or wrong.
func NewAuthError() *APIError {
	return &APIError{Kind: KindAuth, Status: 401, Message: "invalid or missing proxy API key"}
}

// NewNoUpstreamError builds the 503 returned when zero channels are
// configured.
func NewNoUpstreamError() *APIError {
	return &APIError{Kind: KindNoUpstream, Status: 503, Code: "NO_UPSTREAM", Message: "no upstream channel is configured"}
}

// NewNoKeysError builds the 503 returned when the selected channel has an
// empty key list.
func NewNoKeysError(channel string) *APIError {
	return &APIError{Kind: KindNoKeys, Status: 503, Code: "NO_API_KEYS", Message: fmt.Sprintf("upstream channel %q has no configured API keys", channel)}
}

// NewUnsupportedServiceError builds the 400 returned for an unknown
// serviceType.
func NewUnsupportedServiceError(serviceType string) *APIError {
	return &APIError{Kind: KindUnsupportedSvc, Status: 400, Message: fmt.Sprintf("unsupported service type %q", serviceType)}
}

// NewInternalError builds the generic 500 for uncaught failures.
func NewInternalError(cause error) *APIError {
	msg := "Internal server error"
	return &APIError{Kind: KindInternal, Status: 500, Message: msg, Reason: causeString(cause)}
}

// NewAllKeysExhaustedError builds the error returned when every key of a
// channel produced a failover outcome. The last upstream failover's status
// and body are forwarded verbatim via RawBody/Status; callers should prefer
// those over Body() unless the upstream body was HTML, in which case
// NewUpstreamHTMLError should be used instead.
func NewAllKeysExhaustedError(status int, rawBody []byte) *APIError {
	return &APIError{Kind: KindAllKeysExhausted, Status: status, RawBody: rawBody}
}

// NewUpstreamHTMLError synthesizes the JSON body substituted for an
// HTML (often Cloudflare challenge) upstream error page, per the
// AllKeysExhaustedError HTML-replacement rule. status is the last
// upstream failover's original HTTP status (e.g. 500, 502, 503) and is
// carried through unchanged rather than assumed to be 502.
func NewUpstreamHTMLError(channelName, baseURL string, status int, cloudflare bool) *APIError {
	code := "UPSTREAM_HTML_ERROR"
	reason := "upstream returned an HTML error page"
	hint := ""
	if cloudflare {
		code = "UPSTREAM_CLOUDFLARE_CHALLENGE"
		reason = "upstream is behind a Cloudflare challenge"
		hint = "the upstream provider may be blocking this IP or user agent"
	}
	return &APIError{
		Kind:     KindAllKeysExhausted,
		Status:   status,
		Code:     code,
		Message:  "all upstream keys exhausted",
		Upstream: map[string]any{"name": channelName, "baseUrl": baseURL},
		Reason:   reason,
		Hint:     hint,
	}
}

// NewNoAttemptError builds the 500 surfaced when no response was captured
// and no failover error was recorded either (e.g. the scheduler yielded no
// key because all were already marked failed, or every attempt failed at
// the transport level).
func NewNoAttemptError() *APIError {
	return &APIError{Kind: KindAllKeysExhausted, Status: 500, Message: "all upstream keys unavailable"}
}

// NewFatalUpstreamError wraps a fatal-pass-through classification: the
// upstream response is forwarded to the client unchanged.
func NewFatalUpstreamError(status int, rawBody []byte, rawHeaders map[string][]string) *APIError {
	return &APIError{Kind: KindFatalUpstream, Status: status, RawBody: rawBody, RawHeaders: rawHeaders}
}

func causeString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
