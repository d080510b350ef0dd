// Copyright (c) 2022 Stephan Lukits. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package spec_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	spec "github.com/epishkin/scalatest-google-code-sub009"
	"github.com/epishkin/scalatest-google-code-sub009/pkg/report"
)

func runSuite(e *spec.Engine, rep spec.Reporter) error {
	return e.Run("", spec.NewArgs(rep),
		func(name string, args spec.Args) error {
			return e.RunTests(name, args,
				func(name string, args spec.Args) error {
					return e.RunTest(name, args, spec.DefaultInvoker)
				})
		})
}

// OrderSuite's test-methods are deliberately declared in
// non-alphabetical order; registration must follow the declaration
// order below, not reflection's alphabetical enumeration.
type OrderSuite struct {
	spec.Suite
	calls []string
}

func (s *OrderSuite) Zulu(t *spec.T) { s.calls = append(s.calls, "Zulu") }

func (s *OrderSuite) Alpha(t *spec.T) { s.calls = append(s.calls, "Alpha") }

func (s *OrderSuite) Mike(t *spec.T) { s.calls = append(s.calls, "Mike") }

// helper is not a suite-test, it starts lowercase.
func (s *OrderSuite) helper(t *spec.T) {}

func TestSuiteTestsRegisterInDeclarationOrder(t *testing.T) {
	e := spec.NewEngine("OrderSuite", "Suite")
	s := &OrderSuite{}
	require.NoError(t, spec.RegisterSuite(e, s))

	assert.Equal(t, []string{"Zulu", "Alpha", "Mike"}, e.TestNames())

	rec := &report.Recorder{}
	require.NoError(t, runSuite(e, rec))
	assert.Equal(t, []string{"Zulu", "Alpha", "Mike"}, s.calls)
	assert.Len(t, rec.OfKind(spec.TestSucceeded), 3)
}

type HookSuite struct {
	spec.Suite
	calls []string
}

func (s *HookSuite) SetUp(t *spec.T) { s.calls = append(s.calls, "SetUp") }

func (s *HookSuite) TearDown(t *spec.T) {
	s.calls = append(s.calls, "TearDown")
}

func (s *HookSuite) Passes(t *spec.T) {
	s.calls = append(s.calls, "Passes")
}

func (s *HookSuite) Pends(t *spec.T) {
	s.calls = append(s.calls, "Pends")
	t.Pending()
}

func TestSuiteHooksWrapEveryTest(t *testing.T) {
	e := spec.NewEngine("HookSuite", "Suite")
	s := &HookSuite{}
	require.NoError(t, spec.RegisterSuite(e, s))

	assert.Equal(t, []string{"Passes", "Pends"}, e.TestNames())

	rec := &report.Recorder{}
	require.NoError(t, runSuite(e, rec))

	assert.Equal(t, []string{
		"SetUp", "Passes", "TearDown",
		"SetUp", "Pends", "TearDown",
	}, s.calls)
	assert.Len(t, rec.OfKind(spec.TestSucceeded), 1)
	assert.Len(t, rec.OfKind(spec.TestPending), 1)
}

func TestRecorderResolvesOutcomesByName(t *testing.T) {
	s := spec.NewFunSpec("resolved")
	s.Describe("a scope", func() {
		s.It("passes", func(*spec.T) {})
		s.It("fails", func(t *spec.T) { t.Error("nope") })
	})

	rec := &report.Recorder{}
	require.NoError(t, s.Run("", spec.NewArgs(rec)))

	e, ok := rec.Outcome("a scope passes")
	require.True(t, ok)
	assert.Equal(t, spec.TestSucceeded, e.Kind)
	e, ok = rec.Outcome("a scope fails")
	require.True(t, ok)
	assert.Equal(t, spec.TestFailed, e.Kind)
	_, ok = rec.Outcome("a scope unknown")
	assert.False(t, ok)

	assert.Len(t, rec.OfTest("a scope fails"), 2)
	assert.Len(t, rec.Events(), 6)
	rec.Reset()
	assert.Empty(t, rec.Events())
}
