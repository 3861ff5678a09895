package parser

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	tstype "github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/dshills/kbcontext-mcp/pkg/types"
)

// languageFor returns the tree-sitter grammar for a script dialect.
func languageFor(dialect Dialect) *sitter.Language {
	switch dialect {
	case DialectTSX:
		return tsx.GetLanguage()
	case DialectJavaScript:
		return javascript.GetLanguage()
	default:
		return tstype.GetLanguage()
	}
}

// parseScript extracts declarations from TypeScript, TSX, or JavaScript
// source. Like the Go side, a tree with errors still yields whatever
// top-level declarations parsed cleanly.
func parseScript(source []byte, dialect Dialect) (*types.ParseResult, error) {
	p := sitter.NewParser()
	defer p.Close()
	p.SetLanguage(languageFor(dialect))

	tree, err := p.ParseCtx(context.Background(), nil, source)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	result := &types.ParseResult{}
	root := tree.RootNode()
	if root.HasError() {
		result.AddError(0, 0, "syntax error")
	}

	e := &scriptExtractor{source: source, result: result}
	for i := 0; i < int(root.NamedChildCount()); i++ {
		e.visit(root.NamedChild(i))
	}
	e.finish()

	return result, nil
}

// scriptExtractor walks the top level of a parsed script, attaching runs of
// adjacent comments to the declaration that follows them.
type scriptExtractor struct {
	source  []byte
	result  *types.ParseResult
	imports []string
	pending []*sitter.Node
}

func (e *scriptExtractor) visit(n *sitter.Node) {
	if n.Type() == "comment" {
		e.holdComment(n)
		return
	}

	switch n.Type() {
	case "import_statement":
		e.imports = append(e.imports, e.text(n))
	case "export_statement":
		e.visitExport(n)
	default:
		if kind, ok := declarationKind(n); ok {
			e.addConstruct(n, kind, declarationName(n, e.source))
		}
	}
	e.pending = nil
}

// visitExport keeps the export keyword inside the construct text by
// classifying the inner declaration but slicing the outer statement.
func (e *scriptExtractor) visitExport(n *sitter.Node) {
	if decl := n.ChildByFieldName("declaration"); decl != nil {
		if kind, ok := declarationKind(decl); ok {
			e.addConstruct(n, kind, declarationName(decl, e.source))
		}
		return
	}
	if n.ChildByFieldName("value") != nil {
		// export default <expression>
		e.addConstruct(n, types.ConstructVariable, "default")
		return
	}
	// Bare re-exports reference another module, so they ride with the
	// imports rather than standing as declarations.
	if n.ChildByFieldName("source") != nil {
		e.imports = append(e.imports, e.text(n))
	}
}

func (e *scriptExtractor) holdComment(n *sitter.Node) {
	if len(e.pending) > 0 {
		last := e.pending[len(e.pending)-1]
		if n.StartPoint().Row > last.EndPoint().Row+1 {
			e.pending = e.pending[:0]
		}
	}
	e.pending = append(e.pending, n)
}

func (e *scriptExtractor) addConstruct(n *sitter.Node, kind types.ConstructKind, name string) {
	start := n.StartByte()
	startRow := n.StartPoint().Row
	if len(e.pending) > 0 {
		last := e.pending[len(e.pending)-1]
		if n.StartPoint().Row <= last.EndPoint().Row+1 {
			start = e.pending[0].StartByte()
			startRow = e.pending[0].StartPoint().Row
		}
	}
	e.result.Constructs = append(e.result.Constructs, types.Construct{
		Kind:      kind,
		Name:      name,
		Text:      string(e.source[start:n.EndByte()]),
		StartLine: int(startRow) + 1,
		EndLine:   int(n.EndPoint().Row) + 1,
	})
}

func (e *scriptExtractor) finish() {
	if len(e.imports) > 0 {
		e.result.ImportBlock = strings.Join(e.imports, "\n")
	}
}

func (e *scriptExtractor) text(n *sitter.Node) string {
	return string(e.source[n.StartByte():n.EndByte()])
}

// declarationKind maps a top-level node type to a construct kind. Statements
// and expressions report false: extraction targets declarations, scripts
// made of bare statements fall through to plain segmentation instead.
func declarationKind(n *sitter.Node) (types.ConstructKind, bool) {
	switch n.Type() {
	case "function_declaration", "generator_function_declaration":
		return types.ConstructFunction, true
	case "class_declaration", "abstract_class_declaration":
		return types.ConstructClass, true
	case "interface_declaration":
		return types.ConstructInterface, true
	case "type_alias_declaration":
		return types.ConstructTypeAlias, true
	case "enum_declaration":
		return types.ConstructEnum, true
	case "module", "internal_module":
		return types.ConstructType, true
	case "lexical_declaration", "variable_declaration":
		if hasFunctionValue(n) {
			return types.ConstructFunction, true
		}
		return types.ConstructVariable, true
	case "ambient_declaration":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			if kind, ok := declarationKind(n.NamedChild(i)); ok {
				return kind, true
			}
		}
	}
	return "", false
}

// declarationName pulls the declared identifier out of a node, reaching
// through declarators and ambient wrappers.
func declarationName(n *sitter.Node, source []byte) string {
	if name := n.ChildByFieldName("name"); name != nil {
		return string(source[name.StartByte():name.EndByte()])
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		switch child.Type() {
		case "variable_declarator":
			if name := child.ChildByFieldName("name"); name != nil {
				return string(source[name.StartByte():name.EndByte()])
			}
		case "lexical_declaration", "variable_declaration", "function_declaration",
			"generator_function_declaration", "class_declaration",
			"abstract_class_declaration", "interface_declaration",
			"type_alias_declaration", "enum_declaration", "module", "internal_module":
			return declarationName(child, source)
		}
	}
	return ""
}

// hasFunctionValue reports whether a const/let/var declaration binds a
// function, so `const handler = () => {}` classifies as a function.
func hasFunctionValue(n *sitter.Node) bool {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child.Type() != "variable_declarator" {
			continue
		}
		value := child.ChildByFieldName("value")
		if value == nil {
			continue
		}
		switch value.Type() {
		case "arrow_function", "function", "function_expression", "generator_function":
			return true
		}
	}
	return false
}
