// Package streampump reads an upstream chunked HTTP body, frames it by SSE
// "data:" lines, and delegates per-line decoding to a provider adapter,
// forwarding the resulting canonical events and guaranteeing a terminal
// message_stop frame on clean completion.
package streampump

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"

	"github.com/claudeproxy/claudeproxy/internal/sse"
)

// DoneMarker is the literal upstream payload that signals end-of-stream for
// OpenAI-family providers.
const DoneMarker = "[DONE]"

// DecodeResult is what a per-line decoder hands back to the pump: the
// events produced from this line, plus the block-index counters to use for
// the next call. A zero DecodeResult returned with ErrSkip means the line
// produced nothing and the counters are unchanged.
type DecodeResult struct {
	Events        []sse.Event
	NextTextIndex int
	NextToolIndex int
}

// ErrSkip is returned by a Decoder to indicate the line carried no event
// (e.g. a role-only delta, a heartbeat comment); it is not a failure.
var ErrSkip = errors.New("streampump: line produced no event")

// Decoder turns one decoded JSON line into canonical SSE events. The
// block-index counters are threaded through textIndex/toolIndex; any other
// per-stream state (open blocks, tool-call bookkeeping) lives in the
// decoder's own closure, created fresh per stream.
type Decoder func(line string, textIndex, toolIndex int) (DecodeResult, error)

// Run frames one upstream stream through a Decoder, emitting events to out.
// The caller owns out: Run never closes it, so the caller closes it after
// Run returns.
//
// Run emits message_start before reading any upstream bytes and, on clean
// completion, message_stop after the last decoded line. If the context is
// canceled, the upstream read fails, or the decoder returns a non-ErrSkip
// error for any line other than the EOF-truncated final fragment, Run
// returns that error and does NOT emit message_stop — the caller observes
// an aborted transfer. A decode error on that final fragment is ignored.
func Run(ctx context.Context, upstream io.ReadCloser, model string, decode Decoder, out chan<- sse.Event) error {
	defer upstream.Close()

	emitter := sse.NewEmitter(model)
	select {
	case out <- emitter.EmitMessageStart():
	case <-ctx.Done():
		return ctx.Err()
	}

	lines := make(chan lineMsg)
	readErrCh := make(chan error, 1)
	go produceLines(upstream, lines, readErrCh)

	textIndex, toolIndex := 0, 0

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-lines:
			if !ok {
				// produceLines always sends a pending read error to readErrCh
				// before closing lines, but select picks uniformly among
				// ready cases: without this check, a mid-stream transport
				// error can race the "lines closed" branch and be silently
				// swallowed, wrongly emitting message_stop. Drain it first.
				select {
				case err := <-readErrCh:
					if err != nil {
						return err
					}
				default:
				}
				select {
				case out <- sse.EmitMessageStop():
				case <-ctx.Done():
					return ctx.Err()
				}
				return nil
			}
			result, err := decode(msg.text, textIndex, toolIndex)
			if err != nil {
				if errors.Is(err, ErrSkip) {
					continue
				}
				// A malformed trailing fragment at a clean EOF is treated
				// as "nothing more to decode" rather than a stream error;
				// see the declared open-question decision for this.
				if msg.final {
					continue
				}
				return err
			}
			textIndex, toolIndex = result.NextTextIndex, result.NextToolIndex
			for _, ev := range result.Events {
				select {
				case out <- ev:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		case err := <-readErrCh:
			if err != nil {
				return err
			}
		}
	}
}

type lineMsg struct {
	text  string
	final bool
}

// produceLines reads upstream bytes, splits them on "\n", extracts the
// data: payload of each complete SSE line, and sends non-empty, non-[DONE]
// candidates to lines. On upstream EOF it attempts one final decode of any
// leftover buffered fragment before closing lines. A read error is sent on
// errCh and lines is closed without further output.
func produceLines(upstream io.Reader, lines chan<- lineMsg, errCh chan<- error) {
	defer close(lines)

	reader := bufio.NewReader(upstream)
	var carry strings.Builder

	for {
		chunk, err := reader.ReadString('\n')
		carry.WriteString(chunk)

		if buffered := carry.String(); strings.Contains(buffered, "\n") {
			segments := strings.Split(buffered, "\n")
			carry.Reset()
			carry.WriteString(segments[len(segments)-1])
			for _, seg := range segments[:len(segments)-1] {
				if line, ok := extractPayload(seg); ok {
					lines <- lineMsg{text: line}
				}
			}
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				if line, ok := extractPayload(carry.String()); ok {
					lines <- lineMsg{text: line, final: true}
				}
				return
			}
			errCh <- err
			return
		}
	}
}

// extractPayload strips whitespace and the "data:" prefix from a raw SSE
// line, reporting whether the result is a candidate worth decoding.
func extractPayload(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", false
	}
	if after, found := strings.CutPrefix(trimmed, "data:"); found {
		trimmed = strings.TrimSpace(after)
	}
	if trimmed == "" || trimmed == DoneMarker {
		return "", false
	}
	return trimmed, true
}
