// Package provider defines the streaming adapter interface and one adapter
// per upstream LLM backend (OpenAI-compatible, Anthropic, Gemini).
//
// An adapter call moves Idle → Streaming → one of Completed (channel
// closed after the last chunk), UpstreamError (a single terminal chunk
// with Err set) or Cancelled (Close called by the relay). Adapters never
// retry; retry policy belongs to the caller and applies only before the
// first chunk has been produced.
package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/abdhe/llm-chat-gateway/pkg/chat"
)

// Chunk is one increment of generated text, or the stream's single
// terminal error.
type Chunk struct {
	Text string
	Err  error
}

// CallOptions carries per-call transport parameters chosen by the router
// and the key pool. BaseURL overrides the adapter default when non-empty.
type CallOptions struct {
	APIKey  string
	BaseURL string
}

// Adapter opens streaming completions against one upstream backend.
// Implementations must not inspect the caller's original model selector;
// the concrete model name arrives in the CanonicalRequest.
type Adapter interface {
	// Name returns the adapter identifier used in logs and metrics.
	Name() string

	// StartStream encodes req, opens the upstream call and returns a live
	// Stream. A non-nil error means the stream never started (no output
	// was produced); once a Stream is returned, failures are delivered as
	// a terminal chunk instead.
	StartStream(ctx context.Context, req chat.CanonicalRequest, opts CallOptions) (*Stream, error)
}

// Stream is a lazy, finite, non-restartable sequence of text chunks from
// one upstream call.
type Stream struct {
	chunks    chan Chunk
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func newStream(cancel context.CancelFunc) *Stream {
	return &Stream{
		chunks: make(chan Chunk, 16),
		cancel: cancel,
	}
}

// Chunks returns the chunk channel. It is closed when the upstream call
// completes, fails or is cancelled.
func (s *Stream) Chunks() <-chan Chunk {
	return s.chunks
}

// Close cancels the upstream call and releases its resources. Idempotent;
// safe to call after the stream has already finished. No further chunks
// are produced after Close returns.
func (s *Stream) Close() {
	s.closeOnce.Do(s.cancel)
}

// emit delivers a chunk unless the stream has been cancelled.
func (s *Stream) emit(ctx context.Context, c Chunk) bool {
	select {
	case s.chunks <- c:
		return true
	case <-ctx.Done():
		return false
	}
}

// APIError is a non-2xx answer from an upstream API, observed before any
// streamed output.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: API error %d: %s", e.Provider, e.StatusCode, e.Body)
}

// IsRetryable reports whether err is a rate-limit or server-side failure
// for which opening the stream again may succeed.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.StatusCode {
	case 429, 500, 502, 503, 504:
		return true
	}
	return false
}
