// Package router implements the Request Router: the per-request failover
// loop that selects a key, builds and issues one upstream attempt, classifies
// the result, and either returns a captured response or retries the next key.
package router

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"

	"github.com/claudeproxy/claudeproxy/internal/adapter"
	"github.com/claudeproxy/claudeproxy/internal/apierror"
	"github.com/claudeproxy/claudeproxy/internal/canonical"
	"github.com/claudeproxy/claudeproxy/internal/classify"
	"github.com/claudeproxy/claudeproxy/internal/config"
	"github.com/claudeproxy/claudeproxy/internal/keysched"
	"github.com/claudeproxy/claudeproxy/internal/metrics"
	log "github.com/sirupsen/logrus"
	"golang.org/x/net/proxy"
)

// Attempt carries the successfully-captured upstream response, ready for the
// API layer to translate (streaming or non-streaming) and forward.
type Attempt struct {
	Adapter     adapter.Adapter
	Response    *http.Response
	Model       string
	Stream      bool
	ChannelName string

	// Attempts is the 1-based count of upstream keys tried before this
	// response was captured (1 means the first key succeeded).
	Attempts int
}

// Router owns the shared per-channel HTTP clients and drives the failover
// loop documented for the Request Router.
type Router struct {
	registry  *adapter.Registry
	scheduler *keysched.Scheduler

	mu      sync.Mutex
	clients map[string]*http.Client
}

// New creates a Router.
func New(registry *adapter.Registry, scheduler *keysched.Scheduler) *Router {
	return &Router{
		registry:  registry,
		scheduler: scheduler,
		clients:   make(map[string]*http.Client),
	}
}

// clientFor returns the shared *http.Client for a channel, creating one
// (with or without TLS verification per channel.InsecureSkipVerify) the
// first time the channel is seen. One client is cached per channel name so
// a channel with InsecureSkipVerify never shares a transport with one
// without it.
func (r *Router) clientFor(channel *config.UpstreamChannel) *http.Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.clients[channel.Name]; ok {
		return c
	}

	transport := &http.Transport{}
	if channel.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	if channel.ProxyURL != "" {
		if err := applyChannelProxy(transport, channel.ProxyURL); err != nil {
			log.Warnf("router: channel %q: invalid proxy-url, falling back to direct connection: %v", channel.Name, err)
		}
	}
	client := &http.Client{Transport: transport}
	r.clients[channel.Name] = client
	return client
}

// applyChannelProxy routes transport's outbound connections through a
// SOCKS5 or HTTP(S) proxy. Grounded on the same per-channel proxy dialer
// construction the teacher uses for its outbound CLI-account traffic.
func applyChannelProxy(transport *http.Transport, rawURL string) error {
	proxyURL, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	switch proxyURL.Scheme {
	case "socks5":
		var auth *proxy.Auth
		if proxyURL.User != nil {
			password, _ := proxyURL.User.Password()
			auth = &proxy.Auth{User: proxyURL.User.Username(), Password: password}
		}
		dialer, err := proxy.SOCKS5("tcp", proxyURL.Host, auth, proxy.Direct)
		if err != nil {
			return err
		}
		transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialer.Dial(network, addr)
		}
	case "http", "https":
		transport.Proxy = http.ProxyURL(proxyURL)
	}
	return nil
}

// Dispatch runs the failover loop for one inbound request against channel
// and returns the captured upstream attempt on success. On failure it
// returns an *apierror.APIError describing what the client should see.
func (r *Router) Dispatch(ctx context.Context, cfg *config.Config, channel *config.UpstreamChannel, rawRequestJSON []byte, clientHeaders http.Header) (*Attempt, error) {
	a, ok := r.registry.Get(channel.ServiceType)
	if !ok {
		return nil, apierror.NewUnsupportedServiceError(string(channel.ServiceType))
	}
	if len(channel.APIKeys) == 0 {
		return nil, apierror.NewNoKeysError(channel.Name)
	}

	cm := canonical.ParseClaudeRequest(rawRequestJSON)
	client := r.clientFor(channel)

	excluded := make(map[string]struct{})
	var deprioritizeCandidates []string
	var lastFailoverStatus int
	var lastFailoverBody []byte
	var lastFailoverResult classify.Result
	haveFailover := false

	maxAttempts := len(channel.APIKeys)
	for attempt := 0; attempt < maxAttempts; attempt++ {
		key, err := r.scheduler.NextKey(channel, excluded)
		if err != nil {
			break
		}

		upstreamReq, err := a.BuildUpstreamRequest(cm, rawRequestJSON, channel.BaseURL, key, channel, clientHeaders)
		if err != nil {
			return nil, apierror.NewInternalError(err)
		}
		httpReq, err := upstreamReq.ToHTTPRequest(ctx)
		if err != nil {
			return nil, apierror.NewInternalError(err)
		}

		resp, err := client.Do(httpReq)
		if err != nil {
			log.Warnf("router: channel %q key attempt failed (transport): %v", channel.Name, err)
			excluded[key] = struct{}{}
			r.scheduler.MarkKeyFailed(channel.Name, key)
			metrics.KeyFailoversTotal.WithLabelValues(channel.Name).Inc()
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			for _, k := range deprioritizeCandidates {
				r.scheduler.DeprioritizeKey(cfg, channel.Name, k)
				metrics.KeyDeprioritizationsTotal.WithLabelValues(channel.Name).Inc()
			}
			return &Attempt{
				Adapter:     a,
				Response:    resp,
				Model:       cm.Model,
				Stream:      cm.Stream,
				ChannelName: channel.Name,
				Attempts:    attempt + 1,
			}, nil
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			log.Warnf("router: channel %q key attempt failed (body read): %v", channel.Name, readErr)
			excluded[key] = struct{}{}
			r.scheduler.MarkKeyFailed(channel.Name, key)
			metrics.KeyFailoversTotal.WithLabelValues(channel.Name).Inc()
			continue
		}

		result := classify.Classify(resp.StatusCode, body)
		switch result.Outcome {
		case classify.FatalPassThrough:
			return nil, apierror.NewFatalUpstreamError(resp.StatusCode, body, resp.Header)

		case classify.Failover:
			haveFailover = true
			lastFailoverStatus = resp.StatusCode
			lastFailoverBody = body
			lastFailoverResult = result
			if result.QuotaRelated {
				deprioritizeCandidates = append(deprioritizeCandidates, key)
			}
			excluded[key] = struct{}{}
			r.scheduler.MarkKeyFailed(channel.Name, key)
			metrics.KeyFailoversTotal.WithLabelValues(channel.Name).Inc()
			continue
		}
	}

	if haveFailover {
		if lastFailoverResult.IsHTML {
			return nil, apierror.NewUpstreamHTMLError(channel.Name, channel.BaseURL, lastFailoverStatus, lastFailoverResult.CloudflareHit)
		}
		return nil, apierror.NewAllKeysExhaustedError(lastFailoverStatus, lastFailoverBody)
	}
	return nil, apierror.NewNoAttemptError()
}
