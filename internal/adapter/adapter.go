// Package adapter defines the common translation contract every provider
// implementation satisfies, and a registry keyed by config.ServiceType that
// the Request Router uses to select one per request.
package adapter

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/claudeproxy/claudeproxy/internal/canonical"
	"github.com/claudeproxy/claudeproxy/internal/config"
	"github.com/claudeproxy/claudeproxy/internal/streampump"
)

// UpstreamRequest is the pure-data description of an outbound HTTP request
// to a provider, produced by BuildUpstreamRequest before any network I/O
// happens.
type UpstreamRequest struct {
	Method  string
	URL     string
	Headers http.Header
	Body    []byte
}

// ToHTTPRequest materializes an *http.Request from an UpstreamRequest.
func (r *UpstreamRequest) ToHTTPRequest(ctx context.Context) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, r.Method, r.URL, bodyReader(r.Body))
	if err != nil {
		return nil, err
	}
	req.Header = r.Headers
	return req, nil
}

func bodyReader(body []byte) io.Reader {
	if body == nil {
		return nil
	}
	return bytes.NewReader(body)
}

// Adapter is the per-provider translation contract: a request converter and
// a pair of response converters (streaming, non-streaming).
type Adapter interface {
	// Name identifies the adapter for logging/metrics.
	Name() string

	// Passthrough reports whether this adapter's upstream wire format IS
	// already the canonical Claude format, so streaming responses should be
	// forwarded byte-for-byte rather than re-emitted through the Event
	// Emitter (spec §4.3.1: the Claude adapter is pass-through; its
	// per-line decoder exists only for observation/logging).
	Passthrough() bool

	// BuildUpstreamRequest translates a canonical client request into the
	// provider's wire form. It is pure: no network I/O, no mutation of
	// channel or key beyond reading them. rawRequestJSON is the original
	// client body, needed verbatim by passthrough adapters. clientHeaders
	// are forwarded verbatim except for the inbound auth headers, which
	// every implementation must strip via CopyClientHeaders.
	BuildUpstreamRequest(cm *canonical.CanonicalMessage, rawRequestJSON []byte, baseURL, apiKey string, channel *config.UpstreamChannel, clientHeaders http.Header) (*UpstreamRequest, error)

	// TranslateNonStream converts a complete, non-streaming provider JSON
	// body into a Claude Messages JSON body.
	TranslateNonStream(upstreamBody []byte) ([]byte, error)

	// NewStreamTranslator returns a fresh per-stream decoder closure for use
	// with internal/streampump; state the decoder accumulates (tool-call
	// argument fragments, whether a text block is open) lives exactly as
	// long as the returned closure, matching the per-stream, per-block-index
	// accumulator lifecycle the specification requires.
	NewStreamTranslator(model string) streampump.Decoder
}

// strippedAuthHeaders is the set of inbound headers never forwarded
// upstream; every adapter replaces them with its own provider-specific
// auth header. Auth-header-stripping is total (spec testable property 9):
// no outbound request carries a client-sourced value under any of these
// names.
var strippedAuthHeaders = []string{"X-Api-Key", "Authorization", "X-Goog-Api-Key"}

// CopyClientHeaders returns a copy of clientHeaders with the inbound auth
// headers removed, ready for a provider-specific auth header to be set on
// top.
func CopyClientHeaders(clientHeaders http.Header) http.Header {
	out := make(http.Header, len(clientHeaders))
	for k, v := range clientHeaders {
		out[k] = append([]string(nil), v...)
	}
	for _, h := range strippedAuthHeaders {
		out.Del(h)
	}
	return out
}

// Registry resolves an Adapter by config.ServiceType.
type Registry struct {
	byType map[config.ServiceType]Adapter
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byType: make(map[config.ServiceType]Adapter)}
}

// Register binds an Adapter to a service type.
func (r *Registry) Register(serviceType config.ServiceType, a Adapter) {
	r.byType[serviceType] = a
}

// Get resolves the Adapter for a service type, reporting false if none is
// registered (the caller should surface apierror.NewUnsupportedServiceError).
func (r *Registry) Get(serviceType config.ServiceType) (Adapter, bool) {
	a, ok := r.byType[serviceType]
	return a, ok
}
