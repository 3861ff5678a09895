package indexer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/dshills/kbcontext-mcp/pkg/types"
)

const (
	// RepoConfigFile is the optional per-repository configuration file,
	// looked up at the repository root.
	RepoConfigFile = "kbcontext.yaml"

	// DefaultMaxFileSize bounds the documents the walker will consider.
	DefaultMaxFileSize = 1 << 20 // 1 MiB
)

// SourceRule maps a path pattern (doublestar syntax, matched against the
// slash-separated path relative to the repository root) to a content
// category. Rules are evaluated in order; the first match wins.
type SourceRule struct {
	Pattern  string `yaml:"pattern"`
	Category string `yaml:"category"`
}

// RepoConfig is the parsed kbcontext.yaml. Every field is optional; a
// repository without the file is indexed with extension-based defaults.
type RepoConfig struct {
	// Name overrides the display name (default: base of the root path).
	Name string `yaml:"name"`

	// Sources assigns categories by path pattern, ahead of extension defaults.
	Sources []SourceRule `yaml:"sources"`

	// Exclude lists path patterns to leave out of the index entirely.
	Exclude []string `yaml:"exclude"`

	// MaxFileSize in bytes; larger files are not considered (default 1 MiB).
	MaxFileSize int64 `yaml:"max_file_size"`

	// MaxTokens / OverlapTokens override the chunking budgets for this
	// repository. Zero keeps the defaults.
	MaxTokens     int `yaml:"max_tokens"`
	OverlapTokens int `yaml:"overlap_tokens"`
}

// DefaultRepoConfig returns the configuration used when no kbcontext.yaml
// is present.
func DefaultRepoConfig() *RepoConfig {
	return &RepoConfig{
		MaxFileSize: DefaultMaxFileSize,
	}
}

// LoadRepoConfig reads kbcontext.yaml from the repository root. A missing
// file is not an error; a present but malformed or invalid file is.
func LoadRepoConfig(rootPath string) (*RepoConfig, error) {
	data, err := os.ReadFile(filepath.Join(rootPath, RepoConfigFile))
	if os.IsNotExist(err) {
		return DefaultRepoConfig(), nil
	}
	if err != nil {
		return nil, err
	}

	cfg := DefaultRepoConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", RepoConfigFile, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", RepoConfigFile, err)
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = DefaultMaxFileSize
	}

	return cfg, nil
}

func (c *RepoConfig) validate() error {
	for _, rule := range c.Sources {
		if strings.TrimSpace(rule.Pattern) == "" {
			return fmt.Errorf("source rule with empty pattern")
		}
		if !doublestar.ValidatePattern(rule.Pattern) {
			return fmt.Errorf("invalid source pattern %q", rule.Pattern)
		}
		if !knownCategory(rule.Category) {
			return fmt.Errorf("unknown category %q for pattern %q", rule.Category, rule.Pattern)
		}
	}

	for _, pattern := range c.Exclude {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("invalid exclude pattern %q", pattern)
		}
	}

	return nil
}

// knownCategory reports whether raw names a category from the closed set.
// ParseCategory folds unknown tags to "other", so config validation has to
// compare against the set itself: a typo in a rule should be an error, not
// a silent downgrade.
func knownCategory(raw string) bool {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	for _, c := range types.AllCategories {
		if normalized == string(c) {
			return true
		}
	}
	return false
}

// resolveName returns the display name for the repository.
func (c *RepoConfig) resolveName(rootPath string) string {
	if c.Name != "" {
		return c.Name
	}
	return filepath.Base(rootPath)
}
