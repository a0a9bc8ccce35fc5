package api

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/claudeproxy/claudeproxy/internal/apierror"
	"github.com/claudeproxy/claudeproxy/internal/logging"
	"github.com/claudeproxy/claudeproxy/internal/metrics"
	"github.com/claudeproxy/claudeproxy/internal/router"
	"github.com/claudeproxy/claudeproxy/internal/sse"
	"github.com/claudeproxy/claudeproxy/internal/streampump"
	"github.com/claudeproxy/claudeproxy/internal/tokenestimate"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

func (s *Server) handleHealth(c *gin.Context) {
	currentUpstream, loadBalance, upstreamCount := s.Store.Get().Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"status":          "ok",
		"timestamp":       time.Now().UTC().Format(time.RFC3339),
		"uptime":          time.Since(s.startedAt).String(),
		"upstreamCount":   upstreamCount,
		"currentUpstream": currentUpstream,
		"loadBalance":     loadBalance,
	})
}

func (s *Server) handleAdminReload(c *gin.Context) {
	if err := s.Store.Reload(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reloaded"})
}

func (s *Server) handleMessages(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		writeAPIError(c, apierror.NewInternalError(err))
		return
	}

	cfg := s.Store.Get()
	channel, ok := cfg.Current()
	if !ok {
		writeAPIError(c, apierror.NewNoUpstreamError())
		return
	}
	c.Set(logging.CtxChannel, channel.Name)
	c.Set(logging.CtxServiceType, string(channel.ServiceType))

	attempt, err := s.Router.Dispatch(c.Request.Context(), cfg, channel, body, c.Request.Header)
	if err != nil {
		metrics.RequestsTotal.WithLabelValues(channel.Name, "error").Inc()
		writeAPIError(c, err)
		return
	}
	defer attempt.Response.Body.Close()
	c.Set(logging.CtxAttempts, attempt.Attempts)

	metrics.RequestsTotal.WithLabelValues(channel.Name, "success").Inc()

	if attempt.Stream {
		s.streamResponse(c, attempt)
		return
	}
	s.nonStreamResponse(c, attempt)
}

func (s *Server) nonStreamResponse(c *gin.Context, attempt *router.Attempt) {
	upstreamBody, err := io.ReadAll(attempt.Response.Body)
	if err != nil {
		writeAPIError(c, apierror.NewInternalError(err))
		return
	}

	translated, err := attempt.Adapter.TranslateNonStream(upstreamBody)
	if err != nil {
		writeAPIError(c, apierror.NewInternalError(err))
		return
	}

	translated = fillMissingUsage(translated)

	c.Data(http.StatusOK, "application/json", translated)
}

// fillMissingUsage patches in a tiktoken-estimated output_tokens figure
// when a translated response carries a zero output_tokens count alongside
// non-empty text content — some OpenAI-compatible upstreams omit usage on
// non-streaming completions entirely.
func fillMissingUsage(body []byte) []byte {
	root := gjson.ParseBytes(body)
	if root.Get("usage.output_tokens").Int() > 0 {
		return body
	}
	var text string
	root.Get("content").ForEach(func(_, block gjson.Result) bool {
		if block.Get("type").String() == "text" {
			text += block.Get("text").String()
		}
		return true
	})
	if text == "" {
		return body
	}
	estimated := tokenestimate.Estimate(text)
	patched, err := sjson.SetBytes(body, "usage.output_tokens", estimated)
	if err != nil {
		return body
	}
	return patched
}

func (s *Server) streamResponse(c *gin.Context, attempt *router.Attempt) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	flusher, canFlush := c.Writer.(http.Flusher)

	if attempt.Adapter.Passthrough() {
		s.streamPassthrough(c, attempt, flusher, canFlush)
		return
	}
	s.streamCanonical(c, attempt, flusher, canFlush)
}

// streamPassthrough forwards the upstream SSE body byte-for-byte, per the
// Claude adapter's pass-through contract (spec §4.3.1): the wire format is
// already the canonical format, so nothing is re-derived.
func (s *Server) streamPassthrough(c *gin.Context, attempt *router.Attempt, flusher http.Flusher, canFlush bool) {
	buf := make([]byte, 4096)
	for {
		n, err := attempt.Response.Body.Read(buf)
		if n > 0 {
			if _, writeErr := c.Writer.Write(buf[:n]); writeErr != nil {
				return
			}
			if canFlush {
				flusher.Flush()
			}
		}
		if err != nil {
			if err != io.EOF {
				log.Warnf("api: passthrough stream for channel %q aborted: %v", attempt.ChannelName, err)
			}
			return
		}
		select {
		case <-c.Request.Context().Done():
			return
		default:
		}
	}
}

// streamCanonical runs the provider's decoder through internal/streampump
// and forwards the re-emitted canonical SSE frames.
func (s *Server) streamCanonical(c *gin.Context, attempt *router.Attempt, flusher http.Flusher, canFlush bool) {
	events := make(chan sse.Event)
	decode := attempt.Adapter.NewStreamTranslator(attempt.Model)

	go func() {
		defer close(events)
		if err := streampump.Run(c.Request.Context(), attempt.Response.Body, attempt.Model, decode, events); err != nil {
			log.Warnf("api: stream for channel %q aborted: %v", attempt.ChannelName, err)
		}
	}()

	for ev := range events {
		if _, err := c.Writer.Write([]byte(ev.Frame())); err != nil {
			return
		}
		if canFlush {
			flusher.Flush()
		}
	}
}

// writeAPIError renders an *apierror.APIError (or wraps any other error as
// an internal error) to the client.
func writeAPIError(c *gin.Context, err error) {
	apiErr, ok := err.(*apierror.APIError)
	if !ok {
		apiErr = apierror.NewInternalError(err)
	}

	if apiErr.RawBody != nil {
		contentType := "application/json"
		if apiErr.RawHeaders != nil {
			if ct, exists := apiErr.RawHeaders["Content-Type"]; exists && len(ct) > 0 {
				contentType = ct[0]
			}
		}
		c.Data(apiErr.Status, contentType, apiErr.RawBody)
		return
	}

	body, marshalErr := json.Marshal(apiErr.Body())
	if marshalErr != nil {
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Data(apiErr.Status, "application/json", body)
}
