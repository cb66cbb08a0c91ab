package trace

import (
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"reflect"
	"runtime"
	"strings"
)

// FuncInfo locates a trace function's source.
type FuncInfo struct {
	// Name is the function name without its package path, e.g.
	// "TestAdd.func1" for a closure inside TestAdd.
	Name string

	// File is the absolute path of the source file.
	File string

	// Lines is the half-open line range [start, end) of the function.
	Lines [2]int

	// Source is the function's source text. Empty if the file is not
	// readable at runtime.
	Source string
}

// DescribeFunc resolves provenance for fn from the runtime symbol table and,
// when the source file is available, the parsed source.
func DescribeFunc(fn any) FuncInfo {
	rv := reflect.ValueOf(fn)
	if rv.Kind() != reflect.Func || rv.IsNil() {
		return FuncInfo{}
	}
	rf := runtime.FuncForPC(rv.Pointer())
	if rf == nil {
		return FuncInfo{}
	}

	info := FuncInfo{Name: shortFuncName(rf.Name())}
	file, line := rf.FileLine(rf.Entry())
	info.File = file
	info.Lines = [2]int{line, line + 1}

	src, err := os.ReadFile(file)
	if err != nil {
		return info
	}
	fset := token.NewFileSet()
	parsed, err := parser.ParseFile(fset, file, src, parser.SkipObjectResolution)
	if err != nil {
		return info
	}

	var found ast.Node
	ast.Inspect(parsed, func(n ast.Node) bool {
		if found != nil {
			return false
		}
		switch n.(type) {
		case *ast.FuncDecl, *ast.FuncLit:
			if fset.Position(n.Pos()).Line == line {
				found = n
				return false
			}
		}
		return true
	})
	if found == nil {
		return info
	}

	start := fset.Position(found.Pos())
	end := fset.Position(found.End())
	info.Lines = [2]int{start.Line, end.Line + 1}
	info.Source = string(src[start.Offset:end.Offset])
	return info
}

// shortFuncName strips the import path and package from a runtime symbol:
// "github.com/a/b/pkg.TestAdd.func1" -> "TestAdd.func1".
func shortFuncName(full string) string {
	if i := strings.LastIndex(full, "/"); i >= 0 {
		full = full[i+1:]
	}
	if i := strings.Index(full, "."); i >= 0 {
		full = full[i+1:]
	}
	return full
}
