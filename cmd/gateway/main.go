// LLM Chat Gateway — main entry point
//
// Environment variables:
//   HTTP_PORT           — gateway HTTP port (default: 8080)
//   METRICS_PORT        — Prometheus metrics HTTP port (default: 9090)
//   REDIS_ADDR          — Redis address (default: localhost:6379)
//   REDIS_PASSWORD      — Redis password (default: "")
//   REDIS_DB            — Redis database (default: 0)
//   JWT_SECRET          — HS256 signing secret for bearer tokens (required)
//   MODEL_TABLE_PATH    — optional YAML model route table
//   OPENAI_API_KEYS     — Comma-separated OpenAI API keys
//   ANTHROPIC_API_KEYS  — Comma-separated Anthropic API keys
//   GEMINI_API_KEYS     — Comma-separated Gemini API keys
//   DEEPSEEK_API_KEYS   — Comma-separated DeepSeek API keys
//   OPENAI_BASE_URL     — OpenAI endpoint override
//   ANTHROPIC_BASE_URL  — Anthropic endpoint override
//   GEMINI_BASE_URL     — Gemini endpoint override
//   REQUEST_TIMEOUT     — Whole-request timeout (default: 2m)
//   MAX_STREAM_OPEN_RETRIES — Retry attempts for opening a stream (default: 3)
//   CB_FAILURE_THRESHOLD — Circuit breaker failure threshold (default: 5)
//   CB_COOLDOWN         — Circuit breaker cooldown (default: 30s)
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/abdhe/llm-chat-gateway/pkg/attachment"
	"github.com/abdhe/llm-chat-gateway/pkg/auth"
	"github.com/abdhe/llm-chat-gateway/pkg/gateway"
	"github.com/abdhe/llm-chat-gateway/pkg/provider"
	"github.com/abdhe/llm-chat-gateway/pkg/resilience"
	"github.com/abdhe/llm-chat-gateway/pkg/router"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Starting LLM Chat Gateway...")

	// -------------------------------------------------------------------------
	// Configuration from environment
	// -------------------------------------------------------------------------
	httpPort := envOrDefault("HTTP_PORT", "8080")
	metricsPort := envOrDefault("METRICS_PORT", "9090")
	redisAddr := envOrDefault("REDIS_ADDR", "localhost:6379")
	redisPassword := envOrDefault("REDIS_PASSWORD", "")
	redisDB := envIntOrDefault("REDIS_DB", 0)
	jwtSecret := os.Getenv("JWT_SECRET")
	modelTablePath := os.Getenv("MODEL_TABLE_PATH")
	requestTimeout := envDurationOrDefault("REQUEST_TIMEOUT", 2*time.Minute)
	maxRetries := envIntOrDefault("MAX_STREAM_OPEN_RETRIES", 3)
	cbFailureThreshold := envIntOrDefault("CB_FAILURE_THRESHOLD", 5)
	cbCooldown := envDurationOrDefault("CB_COOLDOWN", 30*time.Second)

	if jwtSecret == "" {
		log.Fatal("JWT_SECRET must be set")
	}

	// -------------------------------------------------------------------------
	// Model route table
	// -------------------------------------------------------------------------
	table := router.DefaultTable()
	if modelTablePath != "" {
		var err error
		table, err = router.LoadTable(modelTablePath)
		if err != nil {
			log.Fatalf("Failed to load model table: %v", err)
		}
	}
	log.Printf("Model table: %s", strings.Join(table.Selectors(), ", "))

	// -------------------------------------------------------------------------
	// Redis-backed collaborators: attachment store, entitlement store
	// -------------------------------------------------------------------------
	redisClient := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: redisPassword,
		DB:       redisDB,
	})
	resolver := attachment.NewRedisResolver(redisClient)

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := resolver.Ping(pingCtx); err != nil {
		log.Printf("WARNING: Redis connection failed: %v", err)
	}
	pingCancel()

	gate := auth.NewGate([]byte(jwtSecret), auth.NewRedisEntitlements(redisClient))

	// -------------------------------------------------------------------------
	// Provider adapters
	// -------------------------------------------------------------------------
	adapters := map[router.Kind]provider.Adapter{
		router.KindOpenAI:    provider.NewOpenAIAdapter(os.Getenv("OPENAI_BASE_URL")),
		router.KindAnthropic: provider.NewAnthropicAdapter(os.Getenv("ANTHROPIC_BASE_URL")),
		router.KindGemini:    provider.NewGeminiAdapter(os.Getenv("GEMINI_BASE_URL")),
	}

	// -------------------------------------------------------------------------
	// API key pools
	// -------------------------------------------------------------------------
	keyPools := make(map[string]*resilience.KeyPool)
	for pool, envVar := range map[string]string{
		"openai":    "OPENAI_API_KEYS",
		"anthropic": "ANTHROPIC_API_KEYS",
		"gemini":    "GEMINI_API_KEYS",
		"deepseek":  "DEEPSEEK_API_KEYS",
	} {
		keys := splitKeys(os.Getenv(envVar))
		if len(keys) > 0 {
			keyPools[pool] = resilience.NewKeyPool(keys)
			log.Printf("%s key pool: %d keys", pool, len(keys))
		}
	}

	// -------------------------------------------------------------------------
	// Circuit breakers, one per provider
	// -------------------------------------------------------------------------
	cbCfg := resilience.CircuitBreakerConfig{
		FailureThreshold: cbFailureThreshold,
		Cooldown:         cbCooldown,
	}
	breakers := map[router.Kind]*resilience.CircuitBreaker{
		router.KindOpenAI:    resilience.NewCircuitBreaker(cbCfg),
		router.KindAnthropic: resilience.NewCircuitBreaker(cbCfg),
		router.KindGemini:    resilience.NewCircuitBreaker(cbCfg),
	}

	// -------------------------------------------------------------------------
	// Gateway server
	// -------------------------------------------------------------------------
	srv := gateway.NewServer(gateway.Config{
		Gate:     gate,
		Table:    table,
		Resolver: resolver,
		Adapters: adapters,
		KeyPools: keyPools,
		Breakers: breakers,
		RetryConfig: resilience.RetryConfig{
			MaxRetries: maxRetries,
			BaseDelay:  500 * time.Millisecond,
			MaxDelay:   30 * time.Second,
			Retryable:  provider.IsRetryable,
		},
		RequestTimeout: requestTimeout,
	})

	httpServer := &http.Server{
		Addr:        ":" + httpPort,
		Handler:     srv.Routes(),
		ReadTimeout: 30 * time.Second,
		// No WriteTimeout: responses are long-lived streams.
	}

	go func() {
		log.Printf("Gateway listening on :%s", httpPort)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Gateway server error: %v", err)
		}
	}()

	// -------------------------------------------------------------------------
	// Metrics server
	// -------------------------------------------------------------------------
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})

	metricsServer := &http.Server{
		Addr:         ":" + metricsPort,
		Handler:      metricsMux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Metrics server listening on :%s/metrics", metricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Metrics server error: %v", err)
		}
	}()

	// -------------------------------------------------------------------------
	// Graceful shutdown
	// -------------------------------------------------------------------------
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	log.Printf("Received signal %v, shutting down...", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Gateway server shutdown error: %v", err)
	}
	log.Println("Gateway server stopped")

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Metrics server shutdown error: %v", err)
	}
	log.Println("Metrics server stopped")

	if err := redisClient.Close(); err != nil {
		log.Printf("Redis close error: %v", err)
	}

	log.Println("LLM Chat Gateway shut down successfully")
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envIntOrDefault(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func envDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func splitKeys(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	var keys []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			keys = append(keys, p)
		}
	}
	return keys
}
