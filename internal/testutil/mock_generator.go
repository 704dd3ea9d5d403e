// Package testutil provides testing utilities for the semantic cache.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// GenerateRequest is the payload the mock generator accepts.
type GenerateRequest struct {
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// GenerateResponse is the payload the mock generator returns.
type GenerateResponse struct {
	Text   string `json:"text"`
	Result string `json:"result"`
}

// MockGenerator is a configurable mock upstream generation service for
// testing. By default it echoes a deterministic result derived from the
// request text; per-text overrides, failures and delays can be injected.
type MockGenerator struct {
	server *httptest.Server

	mu        sync.Mutex
	responses map[string]string
	failWith  int
	delay     time.Duration

	// RequestCount tracks how many generate calls reached the server.
	RequestCount int
}

// NewMockGenerator creates and starts a mock generator server.
func NewMockGenerator() *MockGenerator {
	mock := &MockGenerator{
		responses: make(map[string]string),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		failWith := mock.failWith
		delay := mock.delay
		mock.mu.Unlock()

		if delay > 0 {
			time.Sleep(delay)
		}

		if failWith != 0 {
			http.Error(w, "injected failure", failWith)
			return
		}

		var req GenerateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		mock.mu.Lock()
		result, ok := mock.responses[req.Text]
		mock.mu.Unlock()
		if !ok {
			result = fmt.Sprintf("generated for: %s", req.Text)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(GenerateResponse{
			Text:   req.Text,
			Result: result,
		})
	}))

	return mock
}

// URL returns the server's base URL.
func (m *MockGenerator) URL() string {
	return m.server.URL
}

// SetResponse fixes the result returned for a given request text.
func (m *MockGenerator) SetResponse(text, result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[text] = result
}

// FailWith makes the server answer every request with the given HTTP
// status. Pass 0 to restore normal behavior.
func (m *MockGenerator) FailWith(status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = status
}

// SetDelay delays every response by d, for concurrency tests.
func (m *MockGenerator) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// Requests returns the number of generate calls served so far.
func (m *MockGenerator) Requests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.RequestCount
}

// Close shuts the server down.
func (m *MockGenerator) Close() {
	m.server.Close()
}
