package embedder

import (
	"fmt"
	"os"
	"strings"
)

// Environment variables consulted by NewFromEnv and the provider constructors
const (
	EnvProvider     = "KBCONTEXT_EMBED_PROVIDER"
	EnvOpenAIAPIKey = "KBCONTEXT_OPENAI_API_KEY"
	EnvJinaAPIKey   = "KBCONTEXT_JINA_API_KEY"
	EnvOllamaURL    = "KBCONTEXT_OLLAMA_URL"
	EnvEmbedModel   = "KBCONTEXT_EMBED_MODEL"
)

// Config holds explicit embedder configuration
type Config struct {
	Provider  string
	APIKey    string
	BaseURL   string // Ollama daemon address; ignored by cloud providers
	Model     string // Optional: override the provider's default model
	CacheSize int
}

// NewFromEnv creates an embedder based on environment variables.
// Priority:
//  1. KBCONTEXT_EMBED_PROVIDER names the provider explicitly (openai, jina, ollama)
//  2. First configured API key wins: KBCONTEXT_OPENAI_API_KEY, then KBCONTEXT_JINA_API_KEY
//  3. Fall back to a local Ollama instance (offline mode)
func NewFromEnv() (Embedder, error) {
	return New(Config{
		Provider:  DetectProvider(),
		Model:     os.Getenv(EnvEmbedModel),
		CacheSize: DefaultCacheSize,
	})
}

// New creates an embedder with explicit configuration.
// Empty keys and URLs fall back to the corresponding environment variables.
func New(cfg Config) (Embedder, error) {
	var cache *Cache
	if cfg.CacheSize > 0 {
		cache = NewCache(cfg.CacheSize)
	}

	switch strings.ToLower(cfg.Provider) {
	case ProviderOpenAI:
		p, err := NewOpenAIProvider(cfg.APIKey, cache)
		if err != nil {
			return nil, err
		}
		if cfg.Model != "" {
			p.model = cfg.Model
		}
		return p, nil
	case ProviderJina:
		p, err := NewJinaProvider(cfg.APIKey, cache)
		if err != nil {
			return nil, err
		}
		if cfg.Model != "" {
			p.model = cfg.Model
		}
		return p, nil
	case ProviderOllama:
		p, err := NewOllamaProvider(cfg.BaseURL, cache)
		if err != nil {
			return nil, err
		}
		if cfg.Model != "" {
			p.model = cfg.Model
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, cfg.Provider)
	}
}

// DetectProvider returns the provider NewFromEnv would choose for the
// current environment
func DetectProvider() string {
	if provider := os.Getenv(EnvProvider); provider != "" {
		return strings.ToLower(provider)
	}

	if os.Getenv(EnvOpenAIAPIKey) != "" {
		return ProviderOpenAI
	}
	if os.Getenv(EnvJinaAPIKey) != "" {
		return ProviderJina
	}

	return ProviderOllama
}
