package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Sternrassler/semantic-cache/internal/testutil"
	"github.com/Sternrassler/semantic-cache/pkg/semcache"
	"github.com/Sternrassler/semantic-cache/pkg/store"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis creates a Redis container for integration testing.
func setupRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	cleanup := func() {
		redisClient.Close()
		_ = container.Terminate(ctx)
	}

	return redisClient, cleanup
}

func newCache(t *testing.T, redisClient *redis.Client, threshold float64) *semcache.Cache {
	t.Helper()

	cfg := semcache.DefaultConfig(store.NewRedis(redisClient))
	if threshold > 0 {
		cfg.SimilarityThreshold = threshold
	}

	cache, err := semcache.New(cfg)
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}
	return cache
}

// upstreamCompute wraps the mock generator in a ComputeFunc, the way the
// proxy binary forwards misses upstream.
func upstreamCompute(client *http.Client, url string) semcache.ComputeFunc {
	return func(ctx context.Context, req semcache.Request) ([]byte, error) {
		body, err := json.Marshal(testutil.GenerateRequest{Text: req.Text, Metadata: req.Metadata})
		if err != nil {
			return nil, err
		}
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(body)))
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(httpReq)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("upstream status %d", resp.StatusCode)
		}
		var out testutil.GenerateResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, err
		}
		return []byte(out.Result), nil
	}
}

func TestCacheFlow_EndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	generator := testutil.NewMockGenerator()
	defer generator.Close()
	generator.SetResponse("generate unit tests for Order entity", "func TestOrder(t *testing.T) {}")

	cache := newCache(t, redisClient, 0)
	compute := upstreamCompute(&http.Client{}, generator.URL())
	ctx := context.Background()

	req := semcache.Request{
		Text:     "generate unit tests for Order entity",
		Metadata: map[string]any{"type": "test-generation"},
	}

	// Miss: computes via upstream
	resp, err := cache.GetOrCompute(ctx, req, compute)
	if err != nil {
		t.Fatalf("GetOrCompute failed: %v", err)
	}
	if string(resp) != "func TestOrder(t *testing.T) {}" {
		t.Errorf("Response = %s", resp)
	}

	// Exact hit from Redis: upstream not called again
	resp, err = cache.GetOrCompute(ctx, req, compute)
	if err != nil {
		t.Fatalf("GetOrCompute failed: %v", err)
	}
	if string(resp) != "func TestOrder(t *testing.T) {}" {
		t.Errorf("Response = %s", resp)
	}
	if generator.Requests() != 1 {
		t.Errorf("Upstream called %d times, want 1", generator.Requests())
	}

	// Exact hit survives an orchestrator restart (Redis persistence)
	restarted := newCache(t, redisClient, 0)
	resp, err = restarted.GetOrCompute(ctx, req, compute)
	if err != nil {
		t.Fatalf("GetOrCompute after restart failed: %v", err)
	}
	if string(resp) != "func TestOrder(t *testing.T) {}" {
		t.Errorf("Response after restart = %s", resp)
	}
	if generator.Requests() != 1 {
		t.Errorf("Upstream called %d times after restart, want 1", generator.Requests())
	}
}

func TestCacheFlow_SimilarityHit(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	generator := testutil.NewMockGenerator()
	defer generator.Close()

	cache := newCache(t, redisClient, 0.5)
	compute := upstreamCompute(&http.Client{}, generator.URL())
	ctx := context.Background()

	if _, err := cache.GetOrCompute(ctx,
		semcache.Request{Text: "generate unit tests for Order entity"}, compute); err != nil {
		t.Fatalf("Seeding failed: %v", err)
	}

	// Jaccard 5/7 over threshold 0.5: served from the index
	if _, err := cache.GetOrCompute(ctx,
		semcache.Request{Text: "generate unit tests for Order class"}, compute); err != nil {
		t.Fatalf("GetOrCompute failed: %v", err)
	}
	if generator.Requests() != 1 {
		t.Errorf("Upstream called %d times, want 1 (similarity hit expected)", generator.Requests())
	}
}

func TestCacheFlow_SingleFlightUnderLoad(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	generator := testutil.NewMockGenerator()
	defer generator.Close()
	generator.SetDelay(200 * time.Millisecond)

	cache := newCache(t, redisClient, 0)
	compute := upstreamCompute(&http.Client{}, generator.URL())
	req := semcache.Request{Text: "expensive concurrent generation request"}

	const callers = 8
	var failures atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := cache.GetOrCompute(context.Background(), req, compute)
			if err != nil || len(resp) == 0 {
				failures.Add(1)
			}
		}()
	}
	wg.Wait()

	if failures.Load() != 0 {
		t.Errorf("%d callers failed", failures.Load())
	}
	if got := generator.Requests(); got != 1 {
		t.Errorf("Upstream called %d times for concurrent identical requests, want 1", got)
	}
}

func TestCacheFlow_InvalidateAndStats(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	generator := testutil.NewMockGenerator()
	defer generator.Close()

	cache := newCache(t, redisClient, 0)
	compute := upstreamCompute(&http.Client{}, generator.URL())
	ctx := context.Background()

	texts := []string{
		"summarize the quarterly report",
		"draft an email to the customer",
		"completely unrelated request words",
	}
	for _, text := range texts {
		req := semcache.Request{Text: text, Metadata: map[string]any{"type": "assistant"}}
		if _, err := cache.GetOrCompute(ctx, req, compute); err != nil {
			t.Fatalf("Seeding %q failed: %v", text, err)
		}
	}

	stats := cache.GetStatistics()
	if stats.TotalEntries != 3 {
		t.Errorf("TotalEntries = %d, want 3", stats.TotalEntries)
	}
	if len(stats.MostCommonRequestTypes) == 0 || stats.MostCommonRequestTypes[0] != "assistant" {
		t.Errorf("MostCommonRequestTypes = %v, want [assistant]", stats.MostCommonRequestTypes)
	}

	removed := cache.InvalidateSimilar(ctx,
		semcache.Request{Text: "summarize the quarterly report", Metadata: map[string]any{"type": "assistant"}}, 0.9)
	if removed != 1 {
		t.Errorf("InvalidateSimilar removed %d, want 1", removed)
	}

	// Removed from Redis too: a fresh lookup recomputes
	before := generator.Requests()
	if _, err := cache.GetOrCompute(ctx,
		semcache.Request{Text: "summarize the quarterly report", Metadata: map[string]any{"type": "assistant"}}, compute); err != nil {
		t.Fatalf("GetOrCompute after invalidation failed: %v", err)
	}
	if generator.Requests() != before+1 {
		t.Error("Expected recompute after invalidation")
	}
}
