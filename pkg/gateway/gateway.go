// Package gateway exposes the HTTP surface of the completion gateway:
// POST /v1/chat-completion streams raw generated text back to the caller
// as a chunked plain-text body.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/abdhe/llm-chat-gateway/pkg/attachment"
	"github.com/abdhe/llm-chat-gateway/pkg/auth"
	"github.com/abdhe/llm-chat-gateway/pkg/chat"
	"github.com/abdhe/llm-chat-gateway/pkg/metrics"
	"github.com/abdhe/llm-chat-gateway/pkg/provider"
	"github.com/abdhe/llm-chat-gateway/pkg/relay"
	"github.com/abdhe/llm-chat-gateway/pkg/resilience"
	"github.com/abdhe/llm-chat-gateway/pkg/router"
)

const (
	// MaxRequestBodySize bounds the decoded request body (1MB).
	MaxRequestBodySize = 1 * 1024 * 1024

	// MaxMessageCount bounds the number of messages per conversation.
	MaxMessageCount = 100
)

// Config holds the server's collaborators.
type Config struct {
	Gate     *auth.Gate
	Table    *router.Table
	Resolver attachment.Resolver
	Adapters map[router.Kind]provider.Adapter
	KeyPools map[string]*resilience.KeyPool
	Breakers map[router.Kind]*resilience.CircuitBreaker

	RetryConfig    resilience.RetryConfig
	RequestTimeout time.Duration
}

// Server handles completion requests.
type Server struct {
	gate     *auth.Gate
	table    *router.Table
	resolver attachment.Resolver
	adapters map[router.Kind]provider.Adapter
	keyPools map[string]*resilience.KeyPool
	breakers map[router.Kind]*resilience.CircuitBreaker

	retryCfg       resilience.RetryConfig
	requestTimeout time.Duration
}

// NewServer creates a gateway server from cfg.
func NewServer(cfg Config) *Server {
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 2 * time.Minute
	}
	if cfg.RetryConfig.Retryable == nil {
		cfg.RetryConfig.Retryable = provider.IsRetryable
	}
	return &Server{
		gate:           cfg.Gate,
		table:          cfg.Table,
		resolver:       cfg.Resolver,
		adapters:       cfg.Adapters,
		keyPools:       cfg.KeyPools,
		breakers:       cfg.Breakers,
		retryCfg:       cfg.RetryConfig,
		requestTimeout: cfg.RequestTimeout,
	}
}

// Routes returns the gateway's HTTP mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat-completion", s.withAuth(s.handleChatCompletion))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})
	return mux
}

type contextKey string

const identityContextKey contextKey = "identity"

// withAuth resolves the bearer credential before any other work happens;
// rejected callers never reach the router or a provider.
func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, err := s.gate.Authenticate(r.Context(), r.Header.Get("Authorization"))
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrForbidden):
				s.reject(w, http.StatusForbidden, "No subscription")
			case errors.Is(err, auth.ErrUnauthenticated):
				s.reject(w, http.StatusUnauthorized, "Could not validate credentials")
			default:
				log.Printf("[gateway] auth check failed: %v", err)
				s.reject(w, http.StatusInternalServerError, "Internal error")
			}
			return
		}
		ctx := context.WithValue(r.Context(), identityContextKey, identity)
		next(w, r.WithContext(ctx))
	}
}

// completionRequest is the inbound body of POST /v1/chat-completion.
type completionRequest struct {
	Model    string            `json:"model"`
	Messages []chat.RawMessage `json:"messages"`
}

func (s *Server) handleChatCompletion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.reject(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req completionRequest
	body := http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		s.reject(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if len(req.Messages) == 0 {
		s.reject(w, http.StatusBadRequest, "No messages provided.")
		return
	}
	if len(req.Messages) > MaxMessageCount {
		s.reject(w, http.StatusBadRequest, "Too many messages")
		return
	}

	route, err := s.table.Resolve(req.Model)
	if err != nil {
		s.reject(w, http.StatusBadRequest, "Invalid model specified.")
		return
	}

	adapter, ok := s.adapters[route.Provider]
	if !ok {
		log.Printf("[gateway] no adapter registered for provider %q", route.Provider)
		s.reject(w, http.StatusInternalServerError, "Internal error")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	canonical, err := chat.Normalize(ctx, req.Messages, s.resolver, route.Model)
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrEmptyMessage):
			s.reject(w, http.StatusBadRequest, "Message must contain text or a file")
		case errors.Is(err, chat.ErrAttachmentUnavailable):
			s.reject(w, http.StatusBadRequest, "File not found")
		default:
			log.Printf("[gateway] normalize failed: %v", err)
			s.reject(w, http.StatusInternalServerError, "Internal error")
		}
		return
	}

	stream, err := s.openStream(ctx, adapter, route, canonical)
	if err != nil {
		log.Printf("[gateway] %s: failed to open stream for model %s: %v", adapter.Name(), route.Model, err)
		metrics.StreamOpenFailures.WithLabelValues(adapter.Name()).Inc()
		// Nothing has been streamed yet, so the failure can still use a
		// real status code.
		s.reject(w, http.StatusBadGateway, relay.FallbackMessage)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	identity, _ := r.Context().Value(identityContextKey).(auth.Identity)
	session := relay.NewSession(adapter.Name(), route.Model)
	log.Printf("[gateway] session %s: user %s streaming %s via %s", session.ID, identity.UserID, route.Model, adapter.Name())
	session.Run(ctx, newFlushWriter(w), stream, summarizePayload(canonical))
}

// openStream draws an API key and opens the upstream stream, retrying
// rate-limit and server-side failures behind the provider's circuit
// breaker. Retries stop the moment a stream exists; from then on failure
// handling belongs to the relay.
func (s *Server) openStream(ctx context.Context, adapter provider.Adapter, route router.Route, canonical chat.CanonicalRequest) (*provider.Stream, error) {
	pool, ok := s.keyPools[route.KeyPool]
	if !ok {
		return nil, fmt.Errorf("no key pool %q configured", route.KeyPool)
	}

	var stream *provider.Stream
	open := func(ctx context.Context) error {
		key, err := pool.Next()
		if err != nil {
			return err
		}
		st, err := adapter.StartStream(ctx, canonical, provider.CallOptions{
			APIKey:  key,
			BaseURL: route.BaseURL,
		})
		if err != nil {
			var apiErr *provider.APIError
			if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
				pool.MarkRateLimited(key, time.Now().Add(60*time.Second))
			}
			return err
		}
		stream = st
		return nil
	}

	cb := s.breakers[route.Provider]
	var err error
	if cb == nil {
		err = resilience.Retry(ctx, s.retryCfg, open)
	} else {
		err = cb.Execute(func() error {
			return resilience.Retry(ctx, s.retryCfg, open)
		})
		metrics.CircuitBreakerState.WithLabelValues(adapter.Name()).Set(float64(cb.State()))
	}
	if err != nil {
		return nil, err
	}
	return stream, nil
}

func (s *Server) reject(w http.ResponseWriter, status int, msg string) {
	metrics.RequestsTotal.WithLabelValues("rejected").Inc()
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprint(w, msg)
}

// summarizePayload renders the outbound conversation for diagnostic logs
// without dumping attachment bytes.
func summarizePayload(req chat.CanonicalRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "model=%s messages=[", req.TargetModel)
	for i, m := range req.Messages {
		if i > 0 {
			b.WriteString(" ")
		}
		fmt.Fprintf(&b, "{role=%s text=%dB", m.Role.WireName(), len(m.Text))
		if a := m.Attachment; a != nil {
			fmt.Fprintf(&b, " file=%s(%s,%dB)", a.OriginalName, a.MIMEType, len(a.Bytes))
		}
		b.WriteString("}")
	}
	b.WriteString("]")
	return b.String()
}

// flushWriter flushes after every write so each chunk leaves the process
// immediately; the flush also provides the backpressure point the relay
// relies on before pulling the next upstream chunk.
type flushWriter struct {
	w io.Writer
	f http.Flusher
}

func newFlushWriter(w http.ResponseWriter) flushWriter {
	fw := flushWriter{w: w}
	if f, ok := w.(http.Flusher); ok {
		fw.f = f
	}
	return fw
}

func (fw flushWriter) Write(p []byte) (int, error) {
	n, err := fw.w.Write(p)
	if err == nil && fw.f != nil {
		fw.f.Flush()
	}
	return n, err
}
