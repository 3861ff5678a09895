package parser

import (
	"fmt"
	"go/ast"
	goparser "go/parser"
	"go/token"
	"strings"

	"github.com/dshills/kbcontext-mcp/pkg/types"
)

// parseGo extracts declarations from Go source with go/ast. Syntax errors
// are non-fatal: go/parser returns a partial AST and the declarations it
// recovered still become constructs.
func parseGo(source []byte) (*types.ParseResult, error) {
	result := &types.ParseResult{}

	fset := token.NewFileSet()
	file, err := goparser.ParseFile(fset, "source.go", source, goparser.ParseComments)
	if err != nil {
		result.AddError(0, 0, fmt.Sprintf("syntax error: %v", err))
	}
	if file == nil {
		return result, nil
	}

	offset := func(pos token.Pos) int { return fset.Position(pos).Offset }

	// Positions in a partial AST can be bogus, so every slice is bounds
	// checked before use.
	slice := func(start, end token.Pos) (string, bool) {
		s, e := offset(start), offset(end)
		if s < 0 || e > len(source) || s >= e {
			return "", false
		}
		return string(source[s:e]), true
	}

	var importDecls []string
	for _, decl := range file.Decls {
		gen, isGen := decl.(*ast.GenDecl)
		if !isGen || gen.Tok != token.IMPORT {
			continue
		}
		if text, ok := slice(gen.Pos(), gen.End()); ok {
			importDecls = append(importDecls, text)
		}
	}
	if len(importDecls) > 0 {
		block := strings.Join(importDecls, "\n\n")
		// The package clause rides along so the import chunk names the
		// package it belongs to.
		if file.Name != nil {
			block = "package " + file.Name.Name + "\n\n" + block
		}
		result.ImportBlock = block
	}

	addConstruct := func(kind types.ConstructKind, name string, start, end token.Pos) {
		text, ok := slice(start, end)
		if !ok {
			return
		}
		result.Constructs = append(result.Constructs, types.Construct{
			Kind:      kind,
			Name:      name,
			Text:      text,
			StartLine: fset.Position(start).Line,
			EndLine:   fset.Position(end).Line,
		})
	}

	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			start := d.Pos()
			if d.Doc != nil {
				start = d.Doc.Pos()
			}
			kind := types.ConstructFunction
			if d.Recv != nil && len(d.Recv.List) > 0 {
				kind = types.ConstructMethod
			}
			addConstruct(kind, d.Name.Name, start, d.End())

		case *ast.GenDecl:
			if d.Tok == token.IMPORT {
				continue
			}
			start := d.Pos()
			if d.Doc != nil {
				start = d.Doc.Pos()
			}
			addConstruct(genDeclKind(d), genDeclName(d), start, d.End())
		}
	}

	return result, nil
}

// genDeclKind classifies a non-import GenDecl. A grouped type ( ... ) block
// stays one construct, classified by its first spec.
func genDeclKind(d *ast.GenDecl) types.ConstructKind {
	if d.Tok == token.CONST || d.Tok == token.VAR {
		return types.ConstructVariable
	}
	for _, spec := range d.Specs {
		ts, isType := spec.(*ast.TypeSpec)
		if !isType {
			continue
		}
		switch ts.Type.(type) {
		case *ast.InterfaceType:
			return types.ConstructInterface
		case *ast.StructType:
			return types.ConstructType
		}
		if ts.Assign.IsValid() {
			return types.ConstructTypeAlias
		}
		return types.ConstructType
	}
	return types.ConstructType
}

// genDeclName returns the first declared name in a GenDecl.
func genDeclName(d *ast.GenDecl) string {
	for _, spec := range d.Specs {
		switch s := spec.(type) {
		case *ast.TypeSpec:
			return s.Name.Name
		case *ast.ValueSpec:
			if len(s.Names) > 0 {
				return s.Names[0].Name
			}
		}
	}
	return ""
}
