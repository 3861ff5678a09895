package embedder

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// embeddingsHandler mimics the OpenAI-compatible embeddings wire format,
// answering each input with a one-element vector derived from its index.
func embeddingsHandler(t *testing.T, calls *atomic.Int32) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)

		var apiReq struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&apiReq); err != nil {
			t.Errorf("decode request: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		data := make([]map[string]interface{}, len(apiReq.Input))
		for i := range apiReq.Input {
			data[i] = map[string]interface{}{
				"index":     i,
				"embedding": []float32{float32(i) + 0.5},
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"model": apiReq.Model,
			"data":  data,
		})
	}
}

func TestOpenAIProvider(t *testing.T) {
	t.Run("generates embeddings through the API", func(t *testing.T) {
		var calls atomic.Int32
		var gotAuth atomic.Value
		handler := embeddingsHandler(t, &calls)
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth.Store(r.Header.Get("Authorization"))
			handler(w, r)
		}))
		defer server.Close()

		cache := NewCache(10)
		provider, err := NewOpenAIProvider("test-key", cache)
		require.NoError(t, err)
		defer provider.Close()
		provider.baseURL = server.URL

		emb, err := provider.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "what is a chunk"})
		require.NoError(t, err)

		assert.Equal(t, "Bearer test-key", gotAuth.Load())
		assert.Equal(t, []float32{0.5}, emb.Vector)
		assert.Equal(t, ProviderOpenAI, emb.Provider)
		assert.Equal(t, DefaultOpenAIModel, emb.Model)
		assert.Equal(t, ComputeHash("what is a chunk"), emb.Hash)
		assert.Equal(t, 1, cache.Size())
	})

	t.Run("batch preserves input order", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(embeddingsHandler(t, &calls))
		defer server.Close()

		provider, err := NewOpenAIProvider("test-key", nil)
		require.NoError(t, err)
		defer provider.Close()
		provider.baseURL = server.URL

		resp, err := provider.GenerateBatch(context.Background(), BatchEmbeddingRequest{
			Texts: []string{"first", "second", "third"},
		})
		require.NoError(t, err)
		require.Len(t, resp.Embeddings, 3)

		assert.Equal(t, []float32{0.5}, resp.Embeddings[0].Vector)
		assert.Equal(t, []float32{1.5}, resp.Embeddings[1].Vector)
		assert.Equal(t, []float32{2.5}, resp.Embeddings[2].Vector)
		assert.Equal(t, ComputeHash("second"), resp.Embeddings[1].Hash)
		assert.Equal(t, int32(1), calls.Load(), "batch should be one API call")
	})

	t.Run("cache hit skips the API", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(embeddingsHandler(t, &calls))
		defer server.Close()

		cache := NewCache(10)
		provider, err := NewOpenAIProvider("test-key", cache)
		require.NoError(t, err)
		defer provider.Close()
		provider.baseURL = server.URL

		ctx := context.Background()
		first, err := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "cached text"})
		require.NoError(t, err)

		second, err := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "cached text"})
		require.NoError(t, err)

		assert.Equal(t, first.Vector, second.Vector)
		assert.Equal(t, int32(1), calls.Load(), "second request should be served from cache")
	})

	t.Run("retries transient failures", func(t *testing.T) {
		var calls atomic.Int32
		handler := embeddingsHandler(t, &calls)
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Load() < 2 {
				calls.Add(1)
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			handler(w, r)
		}))
		defer server.Close()

		provider, err := NewOpenAIProvider("test-key", nil)
		require.NoError(t, err)
		defer provider.Close()
		provider.baseURL = server.URL

		emb, err := provider.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "flaky"})
		require.NoError(t, err)
		assert.Equal(t, []float32{0.5}, emb.Vector)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("gives up after exhausting retries", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
		}))
		defer server.Close()

		provider, err := NewOpenAIProvider("test-key", nil)
		require.NoError(t, err)
		defer provider.Close()
		provider.baseURL = server.URL

		_, err = provider.GenerateBatch(context.Background(), BatchEmbeddingRequest{Texts: []string{"doomed"}})
		require.ErrorIs(t, err, ErrProviderFailed)
		assert.Equal(t, int32(MaxRetries), calls.Load())
	})

	t.Run("missing api key", func(t *testing.T) {
		clearProviderEnv(t)
		_, err := NewOpenAIProvider("", nil)
		require.ErrorIs(t, err, ErrProviderNotConfigured)
	})

	t.Run("validation errors", func(t *testing.T) {
		provider, err := NewOpenAIProvider("test-key", nil)
		require.NoError(t, err)
		defer provider.Close()

		ctx := context.Background()

		_, err = provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: ""})
		assert.ErrorIs(t, err, ErrEmptyText)

		_, err = provider.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: []string{}})
		assert.ErrorIs(t, err, ErrInvalidInput)

		largeTexts := make([]string, MaxBatchSize+1)
		for i := range largeTexts {
			largeTexts[i] = "text"
		}
		_, err = provider.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: largeTexts})
		assert.ErrorIs(t, err, ErrBatchTooLarge)
	})

	t.Run("provider metadata", func(t *testing.T) {
		provider, err := NewOpenAIProvider("test-key", nil)
		require.NoError(t, err)
		defer provider.Close()

		assert.Equal(t, ProviderOpenAI, provider.Provider())
		assert.Equal(t, OpenAIDimension, provider.Dimension())
		assert.Equal(t, DefaultOpenAIModel, provider.Model())
	})
}

func TestJinaProvider(t *testing.T) {
	t.Run("provider metadata", func(t *testing.T) {
		provider, err := NewJinaProvider("test-key", NewCache(10))
		require.NoError(t, err)
		defer provider.Close()

		assert.Equal(t, ProviderJina, provider.Provider())
		assert.Equal(t, JinaDimension, provider.Dimension())
		assert.Equal(t, DefaultJinaModel, provider.Model())
	})

	t.Run("missing api key", func(t *testing.T) {
		clearProviderEnv(t)
		_, err := NewJinaProvider("", nil)
		require.ErrorIs(t, err, ErrProviderNotConfigured)
	})

	t.Run("sends bearer auth to the API", func(t *testing.T) {
		var calls atomic.Int32
		var gotAuth atomic.Value
		handler := embeddingsHandler(t, &calls)
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth.Store(r.Header.Get("Authorization"))
			handler(w, r)
		}))
		defer server.Close()

		provider, err := NewJinaProvider("jina-test-key", nil)
		require.NoError(t, err)
		defer provider.Close()
		provider.baseURL = server.URL

		emb, err := provider.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "hello"})
		require.NoError(t, err)

		assert.Equal(t, "Bearer jina-test-key", gotAuth.Load())
		assert.Equal(t, []float32{0.5}, emb.Vector)
		assert.Equal(t, ProviderJina, emb.Provider)
	})
}

func TestOllamaProvider(t *testing.T) {
	t.Run("no api key required", func(t *testing.T) {
		clearProviderEnv(t)
		provider, err := NewOllamaProvider("", nil)
		require.NoError(t, err)
		defer provider.Close()

		assert.Equal(t, DefaultOllamaURL, provider.baseURL)
		assert.Equal(t, ProviderOllama, provider.Provider())
		assert.Equal(t, DefaultOllamaModel, provider.Model())
	})

	t.Run("trims trailing slash from base url", func(t *testing.T) {
		provider, err := NewOllamaProvider("http://embed-host:11434/", nil)
		require.NoError(t, err)
		defer provider.Close()

		assert.Equal(t, "http://embed-host:11434", provider.baseURL)
	})

	t.Run("generates embeddings via api embed", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/embed", r.URL.Path)
			assert.Empty(t, r.Header.Get("Authorization"))

			var apiReq struct {
				Model string   `json:"model"`
				Input []string `json:"input"`
			}
			if err := json.NewDecoder(r.Body).Decode(&apiReq); err != nil {
				t.Errorf("decode request: %v", err)
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			assert.Equal(t, DefaultOllamaModel, apiReq.Model)

			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"model":      apiReq.Model,
				"embeddings": [][]float32{{0.1, 0.2, 0.3}},
			})
		}))
		defer server.Close()

		cache := NewCache(10)
		provider, err := NewOllamaProvider(server.URL, cache)
		require.NoError(t, err)
		defer provider.Close()

		emb, err := provider.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "what is a term"})
		require.NoError(t, err)

		assert.Equal(t, []float32{0.1, 0.2, 0.3}, emb.Vector)
		assert.Equal(t, 3, emb.Dimension)
		assert.Equal(t, ProviderOllama, emb.Provider)
		assert.Equal(t, 1, cache.Size())
	})

	t.Run("batch preserves input order", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"model":      DefaultOllamaModel,
				"embeddings": [][]float32{{1.0}, {2.0}},
			})
		}))
		defer server.Close()

		provider, err := NewOllamaProvider(server.URL, nil)
		require.NoError(t, err)
		defer provider.Close()

		resp, err := provider.GenerateBatch(context.Background(), BatchEmbeddingRequest{
			Texts: []string{"first", "second"},
		})
		require.NoError(t, err)
		require.Len(t, resp.Embeddings, 2)
		assert.Equal(t, []float32{1.0}, resp.Embeddings[0].Vector)
		assert.Equal(t, []float32{2.0}, resp.Embeddings[1].Vector)
	})

	t.Run("embedding count mismatch is an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"model":      DefaultOllamaModel,
				"embeddings": [][]float32{{1.0}},
			})
		}))
		defer server.Close()

		provider, err := NewOllamaProvider(server.URL, nil)
		require.NoError(t, err)
		defer provider.Close()

		_, err = provider.callAPI(context.Background(), []string{"first", "second"}, DefaultOllamaModel)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "got 1 embeddings for 2 inputs")
	})

	t.Run("dimension follows the model", func(t *testing.T) {
		provider, err := NewOllamaProvider("", nil)
		require.NoError(t, err)
		defer provider.Close()

		assert.Equal(t, 768, provider.Dimension())

		provider.model = "mxbai-embed-large"
		assert.Equal(t, 1024, provider.Dimension())

		provider.model = "some-unknown-model"
		assert.Equal(t, OllamaDimension, provider.Dimension())
	})
}

func TestRetryWithBackoff(t *testing.T) {
	t.Run("immediate success does not retry", func(t *testing.T) {
		callCount := 0
		result, err := retryWithBackoff(context.Background(), DefaultRetryConfig(), func() (int, error) {
			callCount++
			return 42, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 42, result)
		assert.Equal(t, 1, callCount)
	})

	t.Run("succeeds after transient failure", func(t *testing.T) {
		config := RetryConfig{
			MaxRetries: 3,
			BaseDelay:  1 * time.Millisecond,
			MaxDelay:   10 * time.Millisecond,
			Multiplier: 2.0,
		}

		callCount := 0
		result, err := retryWithBackoff(context.Background(), config, func() (string, error) {
			callCount++
			if callCount < 2 {
				return "", fmt.Errorf("transient error")
			}
			return "success", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "success", result)
		assert.Equal(t, 2, callCount)
	})

	t.Run("returns last error after max retries", func(t *testing.T) {
		config := RetryConfig{
			MaxRetries: 5,
			BaseDelay:  1 * time.Millisecond,
			MaxDelay:   10 * time.Millisecond,
			Multiplier: 2.0,
		}

		callCount := 0
		_, err := retryWithBackoff(context.Background(), config, func() (bool, error) {
			callCount++
			return false, fmt.Errorf("error %d", callCount)
		})
		require.Error(t, err)
		assert.Equal(t, 5, callCount)
		assert.Contains(t, err.Error(), "error 5")
	})

	t.Run("waits with exponential backoff", func(t *testing.T) {
		config := RetryConfig{
			MaxRetries: 3,
			BaseDelay:  10 * time.Millisecond,
			MaxDelay:   100 * time.Millisecond,
			Multiplier: 2.0,
		}

		start := time.Now()
		_, err := retryWithBackoff(context.Background(), config, func() (int, error) {
			return 0, fmt.Errorf("always fails")
		})
		elapsed := time.Since(start)

		require.Error(t, err)
		// 10ms after the first failure, 20ms after the second
		assert.GreaterOrEqual(t, elapsed.Milliseconds(), int64(30))
	})

	t.Run("context cancellation stops retrying", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		config := RetryConfig{
			MaxRetries: 10,
			BaseDelay:  50 * time.Millisecond,
			MaxDelay:   100 * time.Millisecond,
			Multiplier: 2.0,
		}

		callCount := 0
		_, err := retryWithBackoff(ctx, config, func() (string, error) {
			callCount++
			if callCount == 2 {
				cancel()
			}
			return "", fmt.Errorf("error")
		})
		require.ErrorIs(t, err, context.Canceled)
		assert.LessOrEqual(t, callCount, 3)
	})

	t.Run("delay is capped at max delay", func(t *testing.T) {
		config := RetryConfig{
			MaxRetries: 5,
			BaseDelay:  10 * time.Millisecond,
			MaxDelay:   20 * time.Millisecond, // Uncapped growth would be 10, 40, 160, 640
			Multiplier: 4.0,
		}

		var delays []time.Duration
		callCount := 0
		lastCall := time.Now()
		_, err := retryWithBackoff(context.Background(), config, func() (int, error) {
			callCount++
			if callCount > 1 {
				delays = append(delays, time.Since(lastCall))
			}
			lastCall = time.Now()
			return 0, fmt.Errorf("error")
		})
		require.Error(t, err)

		for i, delay := range delays {
			// Tolerance for scheduler jitter
			assert.LessOrEqual(t, delay.Milliseconds(), int64(35), "delay %d should be capped", i)
		}
	})
}

func TestNormalizeVector(t *testing.T) {
	t.Run("three four five triangle", func(t *testing.T) {
		got := NormalizeVector([]float32{3.0, 4.0})
		assert.InDelta(t, 0.6, got[0], 1e-6)
		assert.InDelta(t, 0.8, got[1], 1e-6)
	})

	t.Run("result has unit length", func(t *testing.T) {
		got := NormalizeVector([]float32{0.3, -1.2, 4.7, 2.2})
		var sum float64
		for _, v := range got {
			sum += float64(v) * float64(v)
		}
		assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-5)
	})

	t.Run("zero vector unchanged", func(t *testing.T) {
		got := NormalizeVector([]float32{0, 0, 0})
		assert.Equal(t, []float32{0, 0, 0}, got)
	})

	t.Run("input is not mutated", func(t *testing.T) {
		in := []float32{3.0, 4.0}
		_ = NormalizeVector(in)
		assert.Equal(t, []float32{3.0, 4.0}, in)
	})
}

func TestProviderClose(t *testing.T) {
	openai, err := NewOpenAIProvider("test-key", nil)
	require.NoError(t, err)
	jina, err := NewJinaProvider("test-key", nil)
	require.NoError(t, err)
	ollama, err := NewOllamaProvider("", nil)
	require.NoError(t, err)

	providers := []struct {
		name     string
		provider Embedder
	}{
		{name: "openai", provider: openai},
		{name: "jina", provider: jina},
		{name: "ollama", provider: ollama},
	}

	for _, tc := range providers {
		t.Run(tc.name, func(t *testing.T) {
			assert.NoError(t, tc.provider.Close())
		})
	}
}
