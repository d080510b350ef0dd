// Copyright (c) 2022 Stephan Lukits. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package spec

// FunSpec is the function-based suite style: scopes are declared
// with Describe, tests with It, and the suite is replayed by Run:
//
//	s := spec.NewFunSpec("stack")
//	s.Describe("an empty stack", func() {
//	    s.It("is empty", func(t *spec.T) { t.True(true) })
//	    s.It("pops nothing", func(t *spec.T) { t.Pending() })
//	})
//	err := s.Run("", spec.NewArgs(reporter))
//
// Registration happens at construction time; registration errors are
// construction-time defects and hence surface as panics.
type FunSpec struct {
	e *Engine
}

// NewFunSpec returns a suite with given name whose registration
// phase is open.
func NewFunSpec(name string) *FunSpec {
	return &FunSpec{e: NewEngine(name, "FunSpec")}
}

// Engine exposes the suite's underlying engine for read-only
// accessors and custom run wiring.
func (s *FunSpec) Engine() *Engine { return s.e }

// Describe declares a named scope; body declares the scope's tests
// and nested scopes.
func (s *FunSpec) Describe(text string, body func()) {
	if err := s.e.RegisterNestedBranch(text, "", body); err != nil {
		panic(err)
	}
}

// It declares a test under the enclosing scopes.
func (s *FunSpec) It(text string, fn func(*T), tags ...string) {
	if _, err := s.e.RegisterTest(text, fn, tags...); err != nil {
		panic(err)
	}
}

// Ignore declares a test which is surfaced as ignored instead of
// being executed; it still appears in TestNames.
func (s *FunSpec) Ignore(text string, fn func(*T), tags ...string) {
	if _, err := s.e.RegisterIgnoredTest(text, fn, tags...); err != nil {
		panic(err)
	}
}

// Info raises a suite-level informer message replaying at its
// declaration position.
func (s *FunSpec) Info(message string) { s.e.Info(message) }

// Markup raises a suite-level documenter message replaying at its
// declaration position.
func (s *FunSpec) Markup(message string) { s.e.Markup(message) }

// TestNames reports the full names of all declared tests in
// declaration order.
func (s *FunSpec) TestNames() []string { return s.e.TestNames() }

// Run closes registration and replays the declared tree; testName
// restricts the run to a single test if non-empty.
func (s *FunSpec) Run(testName string, args Args) error {
	return s.e.Run(testName, args,
		func(name string, args Args) error {
			return s.e.RunTests(name, args,
				func(name string, args Args) error {
					return s.e.RunTest(name, args, DefaultInvoker)
				})
		})
}
