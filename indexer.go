// Copyright (c) 2022 Stephan Lukits. All rights reserved.
//  Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// indexer provides the suiteTestsIndexer-type whose only task it is
// to index the suite methods of a source file by their appearance.
// Reflection enumerates methods alphabetically; the order-preserving
// registration contract demands declaration order, hence the file is
// parsed once and its suite-methods are mapped to indices.

package spec

import (
	"go/ast"
	"go/parser"
	"go/token"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

var indexer = suiteTestsIndexer{}

// suiteTestsIndexer provides ensureIndexingOf(fileName) which parses
// a source file's suites and their test-methods to index the latter
// in order of their appearance, while get(fileName, suiteName,
// testName) retrieves the mapping created by ensureIndexingOf.
// These operations are concurrency save, e.g. while a file is parsed
// no index may be retrieved and vice versa.
type suiteTestsIndexer struct {
	// In case suites of the same package are registered in parallel
	// one of the registering goroutines per source file indexes the
	// suite-methods; parallel registrations of the same file must
	// wait for the calculation to finish.
	mutex sync.Mutex
	index map[string]map[string]map[string]int
}

// get returns a given test's index which is defined in given suite
// which in turn is defined in given source file.
func (i *suiteTestsIndexer) get(file, suite, test string) int {
	i.mutex.Lock()
	defer i.mutex.Unlock()
	return i.index[file][suite][test]
}

// ensureIndexingOf parses given source file for its suites and
// suite-tests whereas the latter are mapped to indices in order of
// appearance.
func (i *suiteTestsIndexer) ensureIndexingOf(name string) error {
	i.mutex.Lock()
	defer i.mutex.Unlock()

	if _, ok := i.index[name]; ok {
		return nil
	}
	f, err := parser.ParseFile(token.NewFileSet(), name, nil, 0)
	if err != nil {
		return err
	}
	if i.index == nil {
		//          file-name  suite-name test-name  index
		i.index = map[string]map[string]map[string]int{}
	}
	i.index[name] = map[string]map[string]int{}
	i.parseSuites(f, name)
	if len(i.index[name]) == 0 {
		return nil
	}
	i.parseSuiteTests(f, name)
	return nil
}

func (i *suiteTestsIndexer) has(suite, inFile string) bool {
	_, ok := i.index[inFile][suite]
	return ok
}

// isIdent helps investigating if a method's receiver field type
// refers to a known suite by returning given field-type's
// identifier-name if there is any.
func (i *suiteTestsIndexer) isIdent(fldType ast.Expr) (string, bool) {
	if ident, ok := fldType.(*ast.Ident); ok {
		return ident.Name, true
	}

	starExpr, ok := fldType.(*ast.StarExpr)
	if !ok {
		return "", false
	}
	ident, ok := starExpr.X.(*ast.Ident)
	if !ok {
		return "", false
	}

	return ident.Name, true
}

var isLower = regexp.MustCompile(`^[_a-z]`)

// isSuiteTest returns a suite's name, the suite-test's name and true
// in case given function declaration represents a suite-test;
// zero-strings and false otherwise.
func (i *suiteTestsIndexer) isSuiteTest(fd *ast.FuncDecl, fl string) (
	suite, test string, _ bool) {

	if fd.Recv == nil {
		return "", "", false
	}
	if strings.Contains(special, fd.Name.Name) ||
		len(fd.Type.Params.List) != 1 ||
		isLower.MatchString(fd.Name.Name) {
		return "", "", false
	}
	for _, field := range fd.Recv.List {
		name, ok := i.isIdent(field.Type)
		if !ok {
			continue
		}
		if !i.has(name, fl) {
			continue
		}
		return name, fd.Name.Name, true
	}
	return "", "", false
}

func (i *suiteTestsIndexer) parseSuiteTests(f *ast.File, fname string) {
	ast.Inspect(f, func(n ast.Node) bool {
		switch n := n.(type) {
		case *ast.FuncDecl:
			if suite, name, ok := i.isSuiteTest(n, fname); ok {
				idx := len(i.index[fname][suite])
				i.index[fname][suite][name] = idx
				return true
			}
		}
		return true
	})
}

const modulePath = `"github.com/epishkin/scalatest-google-code-sub009"`

// parseImports determines the local name under which the spec
// package is imported into a source file, a necessity for a file
// defining method suites.
func (i *suiteTestsIndexer) parseImports(f *ast.File) (string, bool) {
	for _, imp := range f.Imports {
		if imp.Path.Value != modulePath {
			continue
		}
		if imp.Name != nil {
			if imp.Name.Name != "." {
				return imp.Name.Name, true
			}
			return "", true
		}
		return filepath.Base(strings.Trim(
			imp.Path.Value, `"`)), true
	}
	return "", false
}

// isSuite returns true if given struct-type embeds the Suite-struct.
func (i *suiteTestsIndexer) isSuite(
	st *ast.StructType, selector string) bool {

	for _, field := range st.Fields.List {
		if selector == "" {
			if ident, ok := field.Type.(*ast.Ident); ok {
				if ident.Name == "Suite" {
					return true
				}
			}
		} else {
			if slc, ok := field.Type.(*ast.SelectorExpr); ok {
				if slc.Sel.Name != "Suite" {
					return false
				}
				if selIdent, ok := slc.X.(*ast.Ident); ok {
					if selIdent.Name == selector {
						return true
					}
				}
			}
		}
	}
	return false
}

// isStruct returns a struct's name its ast-representation and true
// in case given node is a struct-definition; zeros and false
// otherwise.
func (i *suiteTestsIndexer) isStruct(n ast.Node) (
	string, *ast.StructType, bool) {

	var typeSpec *ast.TypeSpec
	var structType *ast.StructType
	var ok bool
	if typeSpec, ok = n.(*ast.TypeSpec); !ok {
		return "", nil, false
	}
	if structType, ok = typeSpec.Type.(*ast.StructType); !ok {
		return "", nil, false
	}
	return typeSpec.Name.Name, structType, true
}

// parseSuites extracts all the struct types from a source file
// embedding the Suite-type.  NOTE since suite-methods may be defined
// 'before' the suite-type is defined the suites are parsed in an
// extra first pass.
func (i *suiteTestsIndexer) parseSuites(f *ast.File, fname string) {
	selector, ok := i.parseImports(f)
	if !ok {
		return
	}

	ast.Inspect(f, func(n ast.Node) bool {
		name, structType, ok := i.isStruct(n)
		if !ok {
			return true
		}
		if !i.isSuite(structType, selector) {
			return true
		}
		i.index[fname][name] = map[string]int{}
		return true
	})
}
