package indexer

import (
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/gabriel-vasile/mimetype"

	"github.com/dshills/kbcontext-mcp/pkg/types"
)

// extensionCategories maps well-known file extensions to their default
// category. Config rules take precedence over this table.
var extensionCategories = map[string]types.Category{
	".md":       types.CategoryDoc,
	".markdown": types.CategoryDoc,
	".mdx":      types.CategoryDoc,

	".txt":  types.CategoryKnowledge,
	".rst":  types.CategoryKnowledge,
	".adoc": types.CategoryKnowledge,

	".go":   types.CategoryCode,
	".ts":   types.CategoryCode,
	".tsx":  types.CategoryCode,
	".js":   types.CategoryCode,
	".jsx":  types.CategoryCode,
	".py":   types.CategoryCode,
	".rb":   types.CategoryCode,
	".rs":   types.CategoryCode,
	".java": types.CategoryCode,

	".sol": types.CategoryContract,

	".sh":   types.CategoryScript,
	".bash": types.CategoryScript,
	".zsh":  types.CategoryScript,
	".ps1":  types.CategoryScript,
}

// glossaryNames are base filenames (sans extension) that mark a prose file
// as a glossary when no config rule says otherwise.
var glossaryNames = map[string]bool{
	"glossary":    true,
	"definitions": true,
	"terms":       true,
}

// classifier assigns categories to repository paths: explicit config rules
// first, filename conventions second, extension defaults third. Files with
// an unknown extension are kept as plain text when their content sniffs as
// text and skipped when it does not.
type classifier struct {
	rules   []SourceRule
	exclude []string
}

func newClassifier(cfg *RepoConfig) *classifier {
	return &classifier{
		rules:   cfg.Sources,
		exclude: cfg.Exclude,
	}
}

// Classify returns the category for relPath. The second return value is
// false when the file should not be indexed at all (binary content).
func (c *classifier) Classify(relPath string, content []byte) (types.Category, bool) {
	// Explicit rules win, first match first.
	for _, rule := range c.rules {
		if matched, _ := doublestar.Match(rule.Pattern, relPath); matched {
			return types.ParseCategory(rule.Category), true
		}
	}

	ext := strings.ToLower(path.Ext(relPath))
	base := strings.TrimSuffix(strings.ToLower(path.Base(relPath)), ext)

	if category, ok := extensionCategories[ext]; ok {
		// A prose file named glossary.md is a glossary unless a rule
		// already claimed it.
		if glossaryNames[base] && (category == types.CategoryDoc || category == types.CategoryKnowledge) {
			return types.CategoryGlossary, true
		}
		return category, true
	}

	if isTextContent(content) {
		return types.CategoryOther, true
	}
	return "", false
}

// Excluded reports whether relPath matches an exclude pattern.
func (c *classifier) Excluded(relPath string) bool {
	for _, pattern := range c.exclude {
		if matched, _ := doublestar.Match(pattern, relPath); matched {
			return true
		}
	}
	return false
}

// isTextContent sniffs content and walks the detected MIME type's parents;
// anything rooted in text/plain (json, xml, yaml, csv, ...) is text.
func isTextContent(content []byte) bool {
	for m := mimetype.Detect(content); m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}
