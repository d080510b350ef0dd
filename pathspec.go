// Copyright (c) 2022 Stephan Lukits. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package spec

// PathSpec is the construction-time execution style: test bodies run
// while the suite is being declared, once per leaf over repeated
// construction passes, so every test observes a fresh evaluation of
// all enclosing scope bodies.  The later Run merely replays the
// recorded outcomes.
//
//	s := spec.NewPathSpec("counter", func(s *spec.PathSpecPass) {
//	    n := 0
//	    s.Describe("incremented once", func() {
//	        n++
//	        s.It("is one", func(t *spec.T) { t.Eq(1, n) })
//	        s.It("is still one", func(t *spec.T) { t.Eq(1, n) })
//	    })
//	})
//	err := s.Run("", spec.NewArgs(reporter))
//
// Both tests see n == 1 since the describe body re-runs for each.
type PathSpec struct {
	pe  *PathEngine
	err error
}

// PathSpecPass is handed to a path suite's construction function; it
// routes declarations into the engine's per-pass handlers.  A pass
// declares the complete suite; the engine decides which single leaf
// executes.
type PathSpecPass struct {
	pe *PathEngine
}

// Describe declares a named scope; body declares the scope's tests
// and nested scopes and re-executes on every pass routed through it.
func (p *PathSpecPass) Describe(text string, body func()) {
	if err := p.pe.HandleNestedBranch(text, body); err != nil {
		panic(err)
	}
}

// It declares a test; its body executes during the one construction
// pass targeting it.
func (p *PathSpecPass) It(text string, fn func(*T), tags ...string) {
	if err := p.pe.HandleTest(text, fn, tags...); err != nil {
		panic(err)
	}
}

// NewPathSpec discovers and executes all leaves of the suite built
// by construct, constructing it once per leaf.  The returned suite
// is ready to be replayed with Run.
func NewPathSpec(
	name string, construct func(*PathSpecPass),
) *PathSpec {
	pe := NewPathEngine(name, "PathSpec")
	err := pe.RunPasses(func(Path) {
		construct(&PathSpecPass{pe: pe})
	})
	return &PathSpec{pe: pe, err: err}
}

// Engine exposes the suite's underlying engine.
func (s *PathSpec) Engine() *Engine { return s.pe.Engine }

// PathEngine exposes the suite's path engine, e.g. for TestPath.
func (s *PathSpec) PathEngine() *PathEngine { return s.pe }

// TestNames reports the full names of all discovered tests in
// discovery order.
func (s *PathSpec) TestNames() []string { return s.pe.TestNames() }

// Run replays the outcomes observed at construction time as an
// ordinary event stream; testName restricts the replay to a single
// test if non-empty.
func (s *PathSpec) Run(testName string, args Args) error {
	if s.err != nil {
		return s.err
	}
	return s.pe.Run(testName, args,
		func(name string, args Args) error {
			return s.pe.RunTests(name, args,
				func(name string, args Args) error {
					return s.pe.RunTest(name, args, DefaultInvoker)
				})
		})
}
