package types

// ConstructKind represents the kind of top-level code construct
type ConstructKind string

const (
	ConstructImport    ConstructKind = "import"
	ConstructFunction  ConstructKind = "function"
	ConstructMethod    ConstructKind = "method"
	ConstructClass     ConstructKind = "class"
	ConstructInterface ConstructKind = "interface"
	ConstructTypeAlias ConstructKind = "type_alias"
	ConstructType      ConstructKind = "type"
	ConstructEnum      ConstructKind = "enum"
	ConstructVariable  ConstructKind = "variable"
)

// Construct is one top-level declaration extracted from a code document.
// Text holds the full source slice including the immediately preceding
// documentation comment, so a construct is self-contained for embedding.
type Construct struct {
	Kind      ConstructKind
	Name      string
	Text      string
	StartLine int // 1-based
	EndLine   int // 1-based, inclusive
}

// ParseResult represents the output of parsing one code document
type ParseResult struct {
	// ImportBlock is the combined import statements (for Go, the package
	// clause followed by the import declarations). Empty if the source
	// declares no imports.
	ImportBlock string

	// Constructs are the extracted declarations in source order.
	Constructs []Construct

	// Errors encountered during parsing. A populated Constructs slice with
	// non-empty Errors means the parser recovered partially.
	Errors []ParseError
}

// HasErrors returns true if any parsing errors occurred
func (pr *ParseResult) HasErrors() bool {
	return len(pr.Errors) > 0
}

// AddError adds a parsing error to the result
func (pr *ParseResult) AddError(line, col int, msg string) {
	pr.Errors = append(pr.Errors, ParseError{Line: line, Column: col, Message: msg})
}

// ParseError represents an error that occurred during parsing
type ParseError struct {
	Line    int
	Column  int
	Message string
}

// Error implements the error interface
func (pe *ParseError) Error() string {
	return pe.Message
}
