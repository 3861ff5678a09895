package parser

import (
	"path/filepath"
	"strings"

	"github.com/dshills/kbcontext-mcp/pkg/types"
)

// Dialect identifies the grammar used to parse a code document.
type Dialect string

const (
	DialectGo         Dialect = "go"
	DialectTypeScript Dialect = "typescript"
	DialectTSX        Dialect = "tsx"
	DialectJavaScript Dialect = "javascript"
	DialectUnknown    Dialect = "unknown"
)

// DialectFromPath derives the dialect from a file extension.
func DialectFromPath(path string) Dialect {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".go":
		return DialectGo
	case ".ts", ".mts", ".cts":
		return DialectTypeScript
	case ".tsx":
		return DialectTSX
	case ".js", ".jsx", ".mjs", ".cjs":
		return DialectJavaScript
	default:
		return DialectUnknown
	}
}

// Parse extracts the import block and top-level constructs from source.
//
// Parsing is tolerant: syntax errors are recorded on the result and whatever
// declarations survive still come back as constructs. The TypeScript and TSX
// grammars are siblings that reject each other's edge cases (JSX elements
// versus angle-bracket type assertions), so a broken tree under one is
// retried under the other. DialectUnknown starts from TypeScript, which
// covers untyped JavaScript as well.
func Parse(source []byte, dialect Dialect) (*types.ParseResult, error) {
	switch dialect {
	case DialectGo:
		return parseGo(source)
	case DialectTypeScript:
		return parseScriptWithRetry(source, DialectTypeScript, DialectTSX)
	case DialectTSX:
		return parseScriptWithRetry(source, DialectTSX, DialectTypeScript)
	case DialectJavaScript:
		return parseScript(source, DialectJavaScript)
	default:
		return parseScriptWithRetry(source, DialectTypeScript, DialectTSX)
	}
}

func parseScriptWithRetry(source []byte, primary, sibling Dialect) (*types.ParseResult, error) {
	result, err := parseScript(source, primary)
	if err == nil && !result.HasErrors() {
		return result, nil
	}
	if retried, retryErr := parseScript(source, sibling); retryErr == nil && !retried.HasErrors() {
		return retried, nil
	}
	return result, err
}
