// Package rewrite instruments Go source at the AST level so that plain
// memory accesses report to the hb tracker.
//
// The transformation inserts hook calls in front of the statements that
// touch memory:
//
//	counter = counter + 1
//
// becomes
//
//	hb.Read(unsafe.Pointer(&counter))
//	hb.Write(unsafe.Pointer(&counter))
//	counter = counter + 1
//
// and func main gains hb.Boot() / defer hb.Shutdown() so the run prints a
// race summary on exit. The required imports are injected when missing.
//
// The rewriter is deliberately conservative: it only instruments targets
// whose address is provably legal to take without type information (plain
// identifiers, selector chains, pointer dereferences). Map index
// expressions, call results and composite literals are skipped and
// counted, never guessed at. Short variable declarations get read hooks
// on the right-hand side only; the defined name does not exist before the
// statement runs and its first write cannot race.
//
// Known limit: without type information a plain identifier on the
// right-hand side is assumed to be a variable. A file that loads named
// constants or passes declared functions by name will get hooks that do
// not compile; the subject programs this tool targets spell constants as
// literals.
package rewrite

import (
	"bytes"
	"fmt"
	"go/ast"
	"go/parser"
	"go/printer"
	"go/token"
	"strconv"
)

const (
	// hookImportPath is the runtime package injected into rewritten files.
	hookImportPath = "github.com/racelens/racelens/hb"
	hookAlias      = "hb"
)

// Stats counts what the rewriter did to one file.
type Stats struct {
	Reads   int // read hooks inserted
	Writes  int // write hooks inserted
	Skipped int // accesses seen but left alone
}

// Total is the number of hook calls inserted.
func (s Stats) Total() int { return s.Reads + s.Writes }

// Result is the outcome of rewriting one file.
type Result struct {
	// Code is the instrumented source.
	Code []byte

	// Stats counts inserted and skipped accesses.
	Stats Stats

	// BootInjected reports whether a func main was found and given the
	// Boot/Shutdown lifecycle.
	BootInjected bool
}

// File rewrites one Go source file. src follows the parser.ParseFile
// contract: nil reads from filename, otherwise it may be a string, []byte
// or io.Reader.
func File(filename string, src any) (*Result, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, filename, src, parser.ParseComments)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filename, err)
	}

	rw := &rewriter{}
	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Body == nil {
			continue
		}
		fn.Body.List = rw.stmts(fn.Body.List)
		if fn.Recv == nil && fn.Name.Name == "main" {
			injectLifecycle(fn)
			rw.booted = true
		}
	}

	if rw.stats.Total() > 0 || rw.booted {
		// unsafe is only referenced by hook calls; injecting it for a
		// hook-free file would leave an unused import behind.
		injectImports(file, rw.stats.Total() > 0)
	}

	var buf bytes.Buffer
	cfg := printer.Config{Mode: printer.UseSpaces | printer.TabIndent, Tabwidth: 8}
	if err := cfg.Fprint(&buf, fset, file); err != nil {
		return nil, fmt.Errorf("print %s: %w", filename, err)
	}

	return &Result{Code: buf.Bytes(), Stats: rw.stats, BootInjected: rw.booted}, nil
}

type rewriter struct {
	stats  Stats
	booted bool
}

// stmts rewrites one statement list, recursing into nested blocks and
// prefixing memory-touching statements with their hook calls.
func (r *rewriter) stmts(list []ast.Stmt) []ast.Stmt {
	out := make([]ast.Stmt, 0, len(list))
	for _, stmt := range list {
		r.nested(stmt)
		out = append(out, r.hooksFor(stmt)...)
		out = append(out, stmt)
	}
	return out
}

// nested descends into the statement's own blocks.
func (r *rewriter) nested(stmt ast.Stmt) {
	switch s := stmt.(type) {
	case *ast.BlockStmt:
		s.List = r.stmts(s.List)
	case *ast.IfStmt:
		s.Body.List = r.stmts(s.Body.List)
		if s.Else != nil {
			r.nested(s.Else)
		}
	case *ast.ForStmt:
		s.Body.List = r.stmts(s.Body.List)
	case *ast.RangeStmt:
		s.Body.List = r.stmts(s.Body.List)
	case *ast.SwitchStmt:
		r.nested(s.Body)
	case *ast.TypeSwitchStmt:
		r.nested(s.Body)
	case *ast.SelectStmt:
		r.nested(s.Body)
	case *ast.CaseClause:
		s.Body = r.stmts(s.Body)
	case *ast.CommClause:
		s.Body = r.stmts(s.Body)
	case *ast.LabeledStmt:
		r.nested(s.Stmt)
	case *ast.GoStmt:
		if fn, ok := s.Call.Fun.(*ast.FuncLit); ok {
			fn.Body.List = r.stmts(fn.Body.List)
		}
	case *ast.DeferStmt:
		if fn, ok := s.Call.Fun.(*ast.FuncLit); ok {
			fn.Body.List = r.stmts(fn.Body.List)
		}
	}
}

// hooksFor returns the hook statements to insert before stmt.
func (r *rewriter) hooksFor(stmt ast.Stmt) []ast.Stmt {
	var hooks []ast.Stmt

	switch s := stmt.(type) {
	case *ast.AssignStmt:
		// Right-hand side reads first; a compound assignment (x += y)
		// reads the target before writing it.
		for _, rhs := range s.Rhs {
			hooks = append(hooks, r.readHooks(rhs)...)
		}
		if s.Tok == token.DEFINE {
			// The target is born by this statement; no address to hook yet.
			return hooks
		}
		compound := s.Tok != token.ASSIGN
		for _, lhs := range s.Lhs {
			addr, ok := r.addrOf(lhs)
			if !ok {
				continue
			}
			if compound {
				hooks = append(hooks, hookCall("Read", addr))
				r.stats.Reads++
			}
			hooks = append(hooks, hookCall("Write", addr))
			r.stats.Writes++
		}

	case *ast.IncDecStmt:
		// i++ reads and writes i.
		if addr, ok := r.addrOf(s.X); ok {
			hooks = append(hooks,
				hookCall("Read", addr),
				hookCall("Write", addr))
			r.stats.Reads++
			r.stats.Writes++
		}
	}
	return hooks
}

// readHooks collects read hooks for the identifiers an expression loads.
// Only plain identifiers are hooked; anything whose addressability depends
// on type information is counted as skipped.
func (r *rewriter) readHooks(expr ast.Expr) []ast.Stmt {
	var hooks []ast.Stmt
	switch e := expr.(type) {
	case *ast.Ident:
		if isBuiltinValue(e.Name) || e.Name == "_" {
			r.stats.Skipped++
			return nil
		}
		hooks = append(hooks, hookCall("Read", &ast.UnaryExpr{Op: token.AND, X: ast.NewIdent(e.Name)}))
		r.stats.Reads++
	case *ast.ParenExpr:
		hooks = append(hooks, r.readHooks(e.X)...)
	case *ast.BinaryExpr:
		hooks = append(hooks, r.readHooks(e.X)...)
		hooks = append(hooks, r.readHooks(e.Y)...)
	case *ast.CallExpr:
		// The callee runs its own hooks; only argument loads happen here.
		for _, arg := range e.Args {
			hooks = append(hooks, r.readHooks(arg)...)
		}
	case *ast.StarExpr:
		// *p loads through the pointer; the pointer itself is the address.
		hooks = append(hooks, hookCall("Read", e.X))
		r.stats.Reads++
	case *ast.BasicLit, *ast.FuncLit, *ast.CompositeLit:
		// No named memory involved.
	case *ast.UnaryExpr:
		if e.Op == token.AND {
			// &x takes the address without loading the value.
			return nil
		}
		hooks = append(hooks, r.readHooks(e.X)...)
	default:
		// Selector and index loads need type information to hook safely.
		r.stats.Skipped++
	}
	return hooks
}

// addrOf returns the address expression for a write target, or false when
// taking its address is not provably legal.
func (r *rewriter) addrOf(lhs ast.Expr) (ast.Expr, bool) {
	switch e := lhs.(type) {
	case *ast.Ident:
		if e.Name == "_" {
			r.stats.Skipped++
			return nil, false
		}
		return &ast.UnaryExpr{Op: token.AND, X: ast.NewIdent(e.Name)}, true
	case *ast.StarExpr:
		// *p = v writes through p; the address is p itself.
		return e.X, true
	case *ast.SelectorExpr:
		return &ast.UnaryExpr{Op: token.AND, X: e}, true
	default:
		// Index targets may be map entries, which are not addressable.
		r.stats.Skipped++
		return nil, false
	}
}

func isBuiltinValue(name string) bool {
	switch name {
	case "nil", "true", "false", "iota":
		return true
	}
	return false
}

// hookCall builds hb.<name>(unsafe.Pointer(addr)).
func hookCall(name string, addr ast.Expr) ast.Stmt {
	return &ast.ExprStmt{X: &ast.CallExpr{
		Fun: &ast.SelectorExpr{X: ast.NewIdent(hookAlias), Sel: ast.NewIdent(name)},
		Args: []ast.Expr{&ast.CallExpr{
			Fun:  &ast.SelectorExpr{X: ast.NewIdent("unsafe"), Sel: ast.NewIdent("Pointer")},
			Args: []ast.Expr{addr},
		}},
	}}
}

// injectLifecycle prepends hb.Boot() and defer hb.Shutdown() to func main.
func injectLifecycle(fn *ast.FuncDecl) {
	boot := &ast.ExprStmt{X: &ast.CallExpr{
		Fun: &ast.SelectorExpr{X: ast.NewIdent(hookAlias), Sel: ast.NewIdent("Boot")},
	}}
	shutdown := &ast.DeferStmt{Call: &ast.CallExpr{
		Fun: &ast.SelectorExpr{X: ast.NewIdent(hookAlias), Sel: ast.NewIdent("Shutdown")},
	}}
	fn.Body.List = append([]ast.Stmt{boot, shutdown}, fn.Body.List...)
}

// injectImports adds the hb import, and the unsafe import when needed,
// unless the file already has them.
func injectImports(file *ast.File, needUnsafe bool) {
	hasHook, hasUnsafe := false, false
	for _, imp := range file.Imports {
		path, err := strconv.Unquote(imp.Path.Value)
		if err != nil {
			continue
		}
		switch path {
		case hookImportPath:
			hasHook = true
		case "unsafe":
			hasUnsafe = true
		}
	}
	if hasHook && (hasUnsafe || !needUnsafe) {
		return
	}

	var importDecl *ast.GenDecl
	for _, decl := range file.Decls {
		gd, ok := decl.(*ast.GenDecl)
		if ok && gd.Tok == token.IMPORT {
			importDecl = gd
			break
		}
	}
	if importDecl == nil {
		importDecl = &ast.GenDecl{Tok: token.IMPORT, Lparen: 1}
		file.Decls = append([]ast.Decl{importDecl}, file.Decls...)
	}

	addSpec := func(alias, path string) *ast.ImportSpec {
		spec := &ast.ImportSpec{
			Path: &ast.BasicLit{Kind: token.STRING, Value: strconv.Quote(path)},
		}
		if alias != "" {
			spec.Name = ast.NewIdent(alias)
		}
		importDecl.Specs = append(importDecl.Specs, spec)
		file.Imports = append(file.Imports, spec)
		return spec
	}
	if !hasHook {
		addSpec(hookAlias, hookImportPath)
	}
	if needUnsafe && !hasUnsafe {
		addSpec("", "unsafe")
	}
	if len(importDecl.Specs) > 1 && importDecl.Lparen == token.NoPos {
		importDecl.Lparen = 1
	}
}
