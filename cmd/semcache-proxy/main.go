// Command semcache-proxy fronts an upstream generation service with the
// semantic cache. Misses are forwarded to the upstream; hits are served
// from cache.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/Sternrassler/semantic-cache/pkg/logging"
	"github.com/Sternrassler/semantic-cache/pkg/semcache"
	"github.com/Sternrassler/semantic-cache/pkg/store"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Configuration from environment
	redisURL := getEnv("REDIS_URL", "localhost:6379")
	port := getEnv("PORT", "8080")
	upstreamURL := getEnv("UPSTREAM_URL", "")
	logLevel := getEnv("LOG_LEVEL", "info")
	threshold := getEnvFloat("SIMILARITY_THRESHOLD", semcache.DefaultSimilarityThreshold)
	entryTTL := getEnvDuration("CACHE_TTL", semcache.DefaultEntryTTL)
	optimizeInterval := getEnvDuration("OPTIMIZE_INTERVAL", time.Hour)

	logging.Setup(logging.Config{Level: logging.LogLevel(logLevel), Output: os.Stderr})
	logger := logging.NewLogger("semcache-proxy")

	if upstreamURL == "" {
		logger.Fatal().Msg("UPSTREAM_URL is required")
	}

	// Setup Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr: redisURL,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Str("redis_url", redisURL).Msg("Failed to connect to Redis")
	}
	logger.Info().Str("redis_url", redisURL).Msg("Connected to Redis")

	// Create cache
	cfg := semcache.DefaultConfig(store.NewRedis(redisClient))
	cfg.SimilarityThreshold = threshold
	cfg.EntryTTL = entryTTL

	cache, err := semcache.New(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create cache")
	}

	// Periodic maintenance
	go cache.RunMaintenance(ctx, optimizeInterval)

	upstream := &http.Client{Timeout: 120 * time.Second}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/ready", readyHandler(redisClient))
	mux.HandleFunc("/v1/generate", generateHandler(cache, upstream, upstreamURL))
	mux.HandleFunc("/v1/similar", similarHandler(cache))
	mux.HandleFunc("/v1/invalidate", invalidateHandler(cache))
	mux.HandleFunc("/v1/optimize", optimizeHandler(cache))
	mux.HandleFunc("/v1/stats", statsHandler(cache))
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:    ":" + port,
		Handler: mux,
	}

	go func() {
		logger.Info().
			Str("addr", server.Addr).
			Str("upstream", upstreamURL).
			Float64("threshold", threshold).
			Dur("ttl", entryTTL).
			Msg("Starting semcache proxy")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Shutdown failed")
	}
}

// generateRequest is the request body for /v1/generate and /v1/invalidate.
type generateRequest struct {
	Text      string         `json:"text"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Threshold *float64       `json:"threshold,omitempty"`
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

func readyHandler(redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := redisClient.Ping(r.Context()).Err(); err != nil {
			http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK")
	}
}

func generateHandler(cache *semcache.Cache, upstream *http.Client, upstreamURL string) http.HandlerFunc {
	logger := logging.NewLogger("semcache-proxy")

	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		requestID := uuid.NewString()

		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
			logger.Warn().Str("request_id", requestID).Msg("Invalid generate request")
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		startTime := time.Now()
		response, err := cache.GetOrCompute(r.Context(),
			semcache.Request{Text: req.Text, Metadata: req.Metadata},
			func(ctx context.Context, cacheReq semcache.Request) ([]byte, error) {
				return callUpstream(ctx, upstream, upstreamURL, cacheReq)
			})
		if err != nil {
			logger.Error().
				Err(err).
				Str("request_id", requestID).
				Msg("Generate failed")
			http.Error(w, fmt.Sprintf("generate failed: %v", err), http.StatusBadGateway)
			return
		}

		logger.Debug().
			Str("request_id", requestID).
			Dur("duration", time.Since(startTime)).
			Int("size", len(response)).
			Msg("Generate served")

		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write(response); err != nil {
			logger.Warn().Err(err).Str("request_id", requestID).Msg("Failed to write response")
		}
	}
}

// callUpstream forwards a cache miss to the upstream generation service.
func callUpstream(ctx context.Context, client *http.Client, url string, req semcache.Request) ([]byte, error) {
	body, err := json.Marshal(map[string]any{
		"text":     req.Text,
		"metadata": req.Metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal upstream request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create upstream request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("upstream request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("upstream returned status %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

func similarHandler(cache *semcache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		threshold := semcache.DefaultSimilarityThreshold
		if req.Threshold != nil {
			threshold = *req.Threshold
		}

		responses := cache.GetSimilarResponses(semcache.Request{Text: req.Text, Metadata: req.Metadata}, threshold)

		results := make([]json.RawMessage, len(responses))
		for i, resp := range responses {
			results[i] = json.RawMessage(resp)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"count":     len(results),
			"responses": results,
		})
	}
}

func invalidateHandler(cache *semcache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		threshold := semcache.DefaultInvalidateThreshold
		if req.Threshold != nil {
			threshold = *req.Threshold
		}

		removed := cache.InvalidateSimilar(r.Context(), semcache.Request{Text: req.Text, Metadata: req.Metadata}, threshold)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]int{"removed": removed})
	}
}

func optimizeHandler(cache *semcache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		if err := cache.OptimizeCache(r.Context()); err != nil {
			http.Error(w, fmt.Sprintf("optimize interrupted: %v", err), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK")
	}
}

func statsHandler(cache *semcache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(cache.GetStatistics())
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
