// Package parser extracts top-level constructs from code documents so the
// chunker can split along declaration boundaries.
//
// Go sources are parsed with the standard library (go/parser, go/ast);
// TypeScript, TSX, and JavaScript go through tree-sitter grammars. Both
// backends produce the same shape: an import block plus the declarations in
// source order, each carrying its preceding doc comment.
//
// # Basic Usage
//
//	result, err := parser.Parse(source, parser.DialectFromPath("handler.ts"))
//	if err != nil {
//	    return err
//	}
//
//	for _, c := range result.Constructs {
//	    fmt.Printf("%s %s: lines %d-%d\n", c.Kind, c.Name, c.StartLine, c.EndLine)
//	}
//
// # Dialects
//
// The dialect is a hint, normally derived from the file extension with
// DialectFromPath. DialectUnknown tries the TypeScript grammar, which also
// reads plain JavaScript; a tree broken under TypeScript is retried as TSX
// and vice versa, since the two grammars reject each other's edge cases.
//
// # Error Handling
//
// Parsing is tolerant. Syntax errors land in result.Errors while the
// declarations that survived still come back:
//
//	result, err := parser.Parse(broken, parser.DialectGo)
//	// err is nil even for syntax errors
//
//	if result.HasErrors() {
//	    log.Printf("partial parse: %d constructs", len(result.Constructs))
//	}
//
// A source that yields no constructs at all (prose, bare statements, an
// import-only file) is not an error either; callers decide the fallback.
package parser
