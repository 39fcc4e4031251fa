// Package syntaxgate provides a pre-write syntax sanity check for
// generated or patched file content, adapted from the corpus's
// CoderShard.applyEdits gate (go/parser for Go, tree-sitter for
// TypeScript/JavaScript/Python/Rust). It answers one question only: does
// this content parse as syntactically valid source for its language? It
// never inspects semantics, types, or imports.
package syntaxgate

import (
	"context"
	"go/parser"
	"go/token"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// Check parses content according to the language implied by relPath's
// extension, returning a non-nil error when it does not parse: for Go, the
// parser's error list; for the tree-sitter languages, an error quoting the
// first 80 bytes of content. Unknown extensions are not checked and always
// pass.
func Check(ctx context.Context, relPath, content string) error {
	switch strings.ToLower(filepath.Ext(relPath)) {
	case ".go":
		return checkGo(content)
	case ".ts", ".tsx":
		return checkTreeSitter(ctx, content, typescript.GetLanguage())
	case ".js", ".jsx":
		return checkTreeSitter(ctx, content, javascript.GetLanguage())
	case ".py":
		return checkTreeSitter(ctx, content, python.GetLanguage())
	case ".rs":
		return checkTreeSitter(ctx, content, rust.GetLanguage())
	default:
		return nil
	}
}

func checkGo(content string) error {
	fset := token.NewFileSet()
	_, err := parser.ParseFile(fset, "", content, parser.AllErrors)
	return err
}

func checkTreeSitter(ctx context.Context, content string, lang *sitter.Language) error {
	p := sitter.NewParser()
	p.SetLanguage(lang)
	tree, err := p.ParseCtx(ctx, nil, []byte(content))
	if err != nil {
		return err
	}
	if tree.RootNode().HasError() {
		return errSyntax(content)
	}
	return nil
}

type syntaxError struct{ snippet string }

func (e *syntaxError) Error() string { return "syntax error near: " + e.snippet }

func errSyntax(content string) error {
	snippet := content
	if len(snippet) > 80 {
		snippet = snippet[:80]
	}
	return &syntaxError{snippet: snippet}
}
