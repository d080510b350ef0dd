// Copyright (c) 2022 Stephan Lukits. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package spec

import (
	"reflect"
	"runtime"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Suite implements the private methods of the SuiteEmbedder
// interface, i.e. to register a method-based suite's tests with an
// engine you must embed this type:
//
//	type MySuite struct { spec.Suite }
//
//	// optional SetUp-method, run before every suite-test
//	// optional TearDown-method, run after every suite-test
//
//	// ... the suite-tests as methods of *MySuite ...
//
//	e := spec.NewEngine("MySuite", "Suite")
//	err := spec.RegisterSuite(e, &MySuite{})
//
// Every exported method with exactly one *T argument which is not
// special becomes one engine test named after the method, registered
// in declaration order of the suite's source file.
type Suite struct {
	file string
}

// init records the source file the suite was registered from; the
// indexer parses it to restore declaration order since reflection
// enumerates methods alphabetically.
func (s *Suite) init(file string) *Suite {
	s.file = file
	return s
}

// File reports the source file the suite was registered from.
func (s *Suite) File() string { return s.file }

const special = "SetUpTearDown"

// SuiteEmbedder is automatically implemented by embedding a
// Suite-instance.  I.e.:
//
//	type MySuite struct{ spec.Suite }
//
// implements the SuiteEmbedder-interface's private methods.
type SuiteEmbedder interface {
	init(string) *Suite
}

// RegisterSuite registers all test-methods of given suite-embedder
// with given engine: exported methods with exactly one argument of
// type *T which are not special (SetUp, TearDown).  A SetUp-method
// runs before, a TearDown-method after every suite-test, the latter
// also if the test fails, cancels or is pending.  Tests register in
// the order of their appearance in the suite's source file.
func RegisterSuite(e *Engine, suite SuiteEmbedder) error {
	_, file, _, ok := runtime.Caller(1)
	if !ok {
		file = ""
	}
	suite.init(file)

	value := reflect.ValueOf(suite)
	rtype := reflect.TypeOf(suite)
	tArg := reflect.TypeOf(&T{})

	var setUp, tearDown *reflect.Method
	tests := []reflect.Method{}
	for i := 0; i < rtype.NumMethod(); i++ {
		m := rtype.Method(i)
		if m.Type.NumIn() != 2 || m.Type.In(1) != tArg {
			continue
		}
		if strings.Contains(special, m.Name) {
			m := m
			switch m.Name {
			case "SetUp":
				setUp = &m
			case "TearDown":
				tearDown = &m
			}
			continue
		}
		tests = append(tests, m)
	}

	suiteName := rtype.Elem().Name()
	if file != "" {
		if err := indexer.ensureIndexingOf(file); err == nil {
			sort.SliceStable(tests, func(i, j int) bool {
				return indexer.get(file, suiteName, tests[i].Name) <
					indexer.get(file, suiteName, tests[j].Name)
			})
		}
	}

	for _, m := range tests {
		m := m
		fn := func(t *T) {
			tVl := reflect.ValueOf(t)
			if tearDown != nil {
				defer tearDown.Func.Call(
					[]reflect.Value{value, tVl})
			}
			if setUp != nil {
				setUp.Func.Call([]reflect.Value{value, tVl})
			}
			m.Func.Call([]reflect.Value{value, tVl})
		}
		if _, err := e.RegisterTest(m.Name, fn); err != nil {
			return errors.WithMessagef(err,
				"registering suite %q", suiteName)
		}
	}
	return nil
}
