// Package relay owns the client-facing side of one stream session: it
// pumps chunks from a provider stream to the client writer, detects
// disconnects, and guarantees the upstream stream is released exactly
// once on every exit path.
//
// Known limitation, kept for wire compatibility: by the time an upstream
// failure occurs the 200 status has already been sent, so the failure is
// only visible in the body as the fallback message.
package relay

import (
	"context"
	"io"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/abdhe/llm-chat-gateway/pkg/metrics"
	"github.com/abdhe/llm-chat-gateway/pkg/provider"
)

// FallbackMessage is the single chunk sent to the client when the
// upstream stream fails; the provider error itself is never forwarded.
const FallbackMessage = "Couldn't get a response. If this persists, please contact support."

// Outcome classifies how a session ended.
type Outcome string

const (
	OutcomeCompleted        Outcome = "completed"
	OutcomeUpstreamError    Outcome = "upstream_error"
	OutcomeClientDisconnect Outcome = "client_disconnect"
)

// Session binds one client writer to one upstream stream for the lifetime
// of a single completion request. Sessions are never persisted or shared.
type Session struct {
	ID       string
	Provider string
	Model    string
}

// NewSession creates a session for one accepted completion request.
func NewSession(providerName, model string) *Session {
	return &Session{
		ID:       uuid.NewString(),
		Provider: providerName,
		Model:    model,
	}
}

// Run pumps the stream to w until completion, upstream failure or client
// disconnect. Each chunk is written (and flushed by the caller's writer)
// before the next one is pulled, so a slow client backpressures the
// upstream read instead of growing a buffer.
//
// payloadSummary describes the outbound provider request and is logged
// together with any upstream error for diagnosis.
//
// The upstream stream is closed exactly once on every exit path. On
// disconnect (ctx done or a failed write) the close happens within one
// loop iteration and nothing further is forwarded.
func (s *Session) Run(ctx context.Context, w io.Writer, stream *provider.Stream, payloadSummary string) Outcome {
	start := time.Now()
	metrics.ActiveSessions.Inc()

	defer func() {
		stream.Close()
		metrics.ActiveSessions.Dec()
		metrics.SessionDuration.WithLabelValues(s.Provider, s.Model).Observe(time.Since(start).Seconds())
	}()

	firstChunk := true
	for {
		select {
		case <-ctx.Done():
			log.Printf("[relay] session %s: client disconnected, stopping %s stream", s.ID, s.Provider)
			metrics.ClientDisconnects.WithLabelValues(s.Provider).Inc()
			metrics.RequestsTotal.WithLabelValues(string(OutcomeClientDisconnect)).Inc()
			return OutcomeClientDisconnect

		case chunk, ok := <-stream.Chunks():
			if !ok {
				// Upstream signalled completion. No end marker is written;
				// closing the response body is the completion signal.
				metrics.RequestsTotal.WithLabelValues(string(OutcomeCompleted)).Inc()
				return OutcomeCompleted
			}

			if chunk.Err != nil {
				log.Printf("[relay] session %s: %s streaming error: %v", s.ID, s.Provider, chunk.Err)
				log.Printf("[relay] session %s: outbound payload: %s", s.ID, payloadSummary)
				// Best effort; the client may already be gone.
				_, _ = io.WriteString(w, FallbackMessage)
				metrics.UpstreamErrors.WithLabelValues(s.Provider).Inc()
				metrics.RequestsTotal.WithLabelValues(string(OutcomeUpstreamError)).Inc()
				return OutcomeUpstreamError
			}

			if firstChunk {
				metrics.TimeToFirstChunk.WithLabelValues(s.Provider, s.Model).Observe(time.Since(start).Seconds())
				firstChunk = false
			}

			if _, err := io.WriteString(w, chunk.Text); err != nil {
				// A failed write is the transport telling us the client left.
				log.Printf("[relay] session %s: write failed, treating as disconnect: %v", s.ID, err)
				metrics.ClientDisconnects.WithLabelValues(s.Provider).Inc()
				metrics.RequestsTotal.WithLabelValues(string(OutcomeClientDisconnect)).Inc()
				return OutcomeClientDisconnect
			}
			metrics.ChunksForwarded.WithLabelValues(s.Provider, s.Model).Inc()
		}
	}
}
