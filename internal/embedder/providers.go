package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"strings"
	"time"
)

// Provider names, default models, and endpoints
const (
	ProviderOpenAI = "openai"
	ProviderJina   = "jina"
	ProviderOllama = "ollama"

	DefaultOpenAIModel = "text-embedding-3-small"
	DefaultJinaModel   = "jina-embeddings-v3"
	DefaultOllamaModel = "nomic-embed-text"

	OpenAIDimension = 1536
	JinaDimension   = 1024
	OllamaDimension = 768

	DefaultOpenAIURL = "https://api.openai.com/v1/embeddings"
	DefaultJinaURL   = "https://api.jina.ai/v1/embeddings"
	DefaultOllamaURL = "http://localhost:11434"

	// Batch limits
	DefaultBatchSize = 50
	MaxBatchSize     = 100
)

// singleViaBatch serves a one-text request through the batch path so each
// provider keeps a single code path to its API. The cache is consulted
// first; the batch path fills it on the way back.
func singleViaBatch(ctx context.Context, cache *Cache, req EmbeddingRequest,
	batch func(context.Context, BatchEmbeddingRequest) (*BatchEmbeddingResponse, error)) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	if cache != nil {
		if emb, ok := cache.Get(ComputeHash(req.Text)); ok {
			return emb, nil
		}
	}

	resp, err := batch(ctx, BatchEmbeddingRequest{Texts: []string{req.Text}, Model: req.Model})
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("%w: no embeddings returned", ErrProviderFailed)
	}
	return resp.Embeddings[0], nil
}

// runBatch is the pipeline every provider's GenerateBatch shares: validate,
// resolve the model, retry the API call with backoff, then stamp content
// hashes and fill the cache.
func runBatch(ctx context.Context, req BatchEmbeddingRequest, cache *Cache, defaultModel, providerName string,
	call func(ctx context.Context, texts []string, model string) ([]*Embedding, error)) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}
	if len(req.Texts) > MaxBatchSize {
		return nil, fmt.Errorf("%w: max %d texts allowed", ErrBatchTooLarge, MaxBatchSize)
	}

	model := req.Model
	if model == "" {
		model = defaultModel
	}

	config := DefaultRetryConfig()
	embeddings, err := retryWithBackoff(ctx, config, func() ([]*Embedding, error) {
		return call(ctx, req.Texts, model)
	})
	if err != nil {
		return nil, fmt.Errorf("%w after %d retries: %v", ErrProviderFailed, config.MaxRetries, err)
	}

	for i, emb := range embeddings {
		emb.Hash = ComputeHash(req.Texts[i])
		if cache != nil {
			cache.Set(emb.Hash, emb)
		}
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   providerName,
		Model:      model,
	}, nil
}

// postEmbeddings speaks the OpenAI-compatible embeddings wire format used by
// both OpenAI and Jina: {input, model} out, {data: [{index, embedding}]} back.
func postEmbeddings(ctx context.Context, hc *http.Client, url, apiKey, providerName string, texts []string, model string) ([]*Embedding, error) {
	body, err := json.Marshal(map[string]interface{}{
		"input": texts,
		"model": model,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("api error %d: %s", resp.StatusCode, msg)
	}

	var decoded struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
		Model string `json:"model"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	embeddings := make([]*Embedding, len(decoded.Data))
	for i, d := range decoded.Data {
		embeddings[i] = &Embedding{
			Vector:    d.Embedding,
			Dimension: len(d.Embedding),
			Provider:  providerName,
			Model:     decoded.Model,
		}
	}
	return embeddings, nil
}

// OpenAIProvider implements Embedder using the OpenAI embeddings API
type OpenAIProvider struct {
	apiKey     string
	model      string
	baseURL    string // Overridable for tests
	httpClient *http.Client
	cache      *Cache
}

// NewOpenAIProvider creates an OpenAI-backed embedder.
// An empty apiKey falls back to the KBCONTEXT_OPENAI_API_KEY environment variable.
func NewOpenAIProvider(apiKey string, cache *Cache) (*OpenAIProvider, error) {
	if apiKey == "" {
		apiKey = os.Getenv(EnvOpenAIAPIKey)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrProviderNotConfigured, EnvOpenAIAPIKey)
	}

	return &OpenAIProvider{
		apiKey:     apiKey,
		model:      DefaultOpenAIModel,
		baseURL:    DefaultOpenAIURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		cache:      cache,
	}, nil
}

func (o *OpenAIProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	return singleViaBatch(ctx, o.cache, req, o.GenerateBatch)
}

func (o *OpenAIProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	return runBatch(ctx, req, o.cache, o.model, ProviderOpenAI, o.callAPI)
}

func (o *OpenAIProvider) callAPI(ctx context.Context, texts []string, model string) ([]*Embedding, error) {
	return postEmbeddings(ctx, o.httpClient, o.baseURL, o.apiKey, ProviderOpenAI, texts, model)
}

func (o *OpenAIProvider) Dimension() int   { return OpenAIDimension }
func (o *OpenAIProvider) Provider() string { return ProviderOpenAI }
func (o *OpenAIProvider) Model() string    { return o.model }

func (o *OpenAIProvider) Close() error {
	o.httpClient.CloseIdleConnections()
	return nil
}

// JinaProvider implements Embedder using the Jina AI embeddings API, which
// is wire-compatible with OpenAI's
type JinaProvider struct {
	apiKey     string
	model      string
	baseURL    string // Overridable for tests
	httpClient *http.Client
	cache      *Cache
}

// NewJinaProvider creates a Jina-backed embedder.
// An empty apiKey falls back to the KBCONTEXT_JINA_API_KEY environment variable.
func NewJinaProvider(apiKey string, cache *Cache) (*JinaProvider, error) {
	if apiKey == "" {
		apiKey = os.Getenv(EnvJinaAPIKey)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrProviderNotConfigured, EnvJinaAPIKey)
	}

	return &JinaProvider{
		apiKey:     apiKey,
		model:      DefaultJinaModel,
		baseURL:    DefaultJinaURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		cache:      cache,
	}, nil
}

func (j *JinaProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	return singleViaBatch(ctx, j.cache, req, j.GenerateBatch)
}

func (j *JinaProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	return runBatch(ctx, req, j.cache, j.model, ProviderJina, j.callAPI)
}

func (j *JinaProvider) callAPI(ctx context.Context, texts []string, model string) ([]*Embedding, error) {
	return postEmbeddings(ctx, j.httpClient, j.baseURL, j.apiKey, ProviderJina, texts, model)
}

func (j *JinaProvider) Dimension() int   { return JinaDimension }
func (j *JinaProvider) Provider() string { return ProviderJina }
func (j *JinaProvider) Model() string    { return j.model }

func (j *JinaProvider) Close() error {
	j.httpClient.CloseIdleConnections()
	return nil
}

// OllamaProvider implements Embedder against a local Ollama instance.
// No API key is required; indexing works fully offline.
type OllamaProvider struct {
	model      string
	baseURL    string
	httpClient *http.Client
	cache      *Cache
}

// ollamaModelDims maps known Ollama embedding models to their output dimensions
var ollamaModelDims = map[string]int{
	"nomic-embed-text":  768,
	"mxbai-embed-large": 1024,
	"all-minilm":        384,
}

// NewOllamaProvider creates an embedder backed by the Ollama /api/embed endpoint.
// An empty baseURL falls back to KBCONTEXT_OLLAMA_URL, then to localhost:11434.
func NewOllamaProvider(baseURL string, cache *Cache) (*OllamaProvider, error) {
	if baseURL == "" {
		baseURL = os.Getenv(EnvOllamaURL)
	}
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}

	return &OllamaProvider{
		model:   DefaultOllamaModel,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			// First request after daemon start loads the model into memory
			Timeout: 120 * time.Second,
		},
		cache: cache,
	}, nil
}

func (p *OllamaProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	return singleViaBatch(ctx, p.cache, req, p.GenerateBatch)
}

func (p *OllamaProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	return runBatch(ctx, req, p.cache, p.model, ProviderOllama, p.callAPI)
}

// callAPI uses Ollama's native /api/embed shape, which returns a bare array
// of vectors instead of the OpenAI data envelope.
func (p *OllamaProvider) callAPI(ctx context.Context, texts []string, model string) ([]*Embedding, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"model": model,
		"input": texts,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/embed", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("api error %d: %s", resp.StatusCode, msg)
	}

	var decoded struct {
		Model      string      `json:"model"`
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if len(decoded.Embeddings) != len(texts) {
		return nil, fmt.Errorf("got %d embeddings for %d inputs", len(decoded.Embeddings), len(texts))
	}

	embeddings := make([]*Embedding, len(decoded.Embeddings))
	for i, vec := range decoded.Embeddings {
		embeddings[i] = &Embedding{
			Vector:    vec,
			Dimension: len(vec),
			Provider:  ProviderOllama,
			Model:     decoded.Model,
		}
	}
	return embeddings, nil
}

// Dimension follows the configured model, falling back to the
// nomic-embed-text dimension for models not in the table
func (p *OllamaProvider) Dimension() int {
	if d, ok := ollamaModelDims[p.model]; ok {
		return d
	}
	return OllamaDimension
}

func (p *OllamaProvider) Provider() string { return ProviderOllama }
func (p *OllamaProvider) Model() string    { return p.model }

func (p *OllamaProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}

// NormalizeVector scales a vector to unit length without mutating the input.
// Zero vectors are returned unchanged.
func NormalizeVector(v []float32) []float32 {
	var sum float64
	for _, val := range v {
		sum += float64(val * val)
	}
	if sum == 0 {
		return v
	}

	norm := float32(math.Sqrt(sum))
	result := make([]float32, len(v))
	for i, val := range v {
		result[i] = val / norm
	}
	return result
}
