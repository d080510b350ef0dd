// Copyright (c) 2022 Stephan Lukits. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package spec

import (
	"runtime"
	"sync/atomic"
	"time"
)

// EventKind discriminates the ordered outcome- and message-events an
// engine emits into a [Reporter] while it walks the registration tree.
type EventKind int

const (
	// ScopeOpened is emitted before a description branch's children
	// are traversed; it is always paired with a ScopeClosed.
	ScopeOpened EventKind = iota

	// ScopeClosed is emitted after a description branch's children
	// were traversed, also if one of them failed.
	ScopeClosed

	// TestStarting is emitted before a test's body is invoked.
	TestStarting

	// TestSucceeded is emitted for a test body returning normally
	// without accumulated errors.
	TestSucceeded

	// TestFailed is emitted for a test body erroring or panicking
	// with anything but a control signal or abort condition.
	TestFailed

	// TestPending is emitted for a test declaring itself not yet
	// implemented; neither a success nor a failure.
	TestPending

	// TestCanceled is emitted for a test declaring an unmet
	// precondition; neither a success nor a failure.
	TestCanceled

	// TestIgnored is emitted instead of TestStarting for a test the
	// filter marks as ignored; its body is never invoked.
	TestIgnored

	// InfoProvided carries an informer message.
	InfoProvided

	// MarkupProvided carries a documenter message.
	MarkupProvided
)

// Location is a source position reported along events and recorded
// with every registered tree node.
type Location struct {
	File string
	Line int
}

// callerLocation resolves the source position skip frames above its
// caller; the zero Location is returned if the runtime can't tell.
func callerLocation(skip int) Location {
	_, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return Location{}
	}
	return Location{File: file, Line: line}
}

// Event is one element of the ordered event stream an engine run
// produces.  Which fields are meaningful depends on Kind: completion
// events carry Duration and Err, message events carry Message plus the
// delayed-delivery flags, scope events carry Message (the scope text).
type Event struct {
	Kind      EventKind
	Ordinal   uint64
	SuiteName string

	// TestName is the full, prefix-joined test name; TestText the raw
	// text the test was registered with.  Both are empty for scope
	// and suite-level message events.
	TestName string
	TestText string

	Message  string
	Err      error
	Duration time.Duration

	// Indent is a formatter hint: the nesting depth of the emitting
	// tree node.
	Indent   int
	Location Location

	// FromConstructing reports whether a message event was raised by
	// the goroutine which constructed (and runs) the suite.  Foreign
	// goroutine messages are forwarded immediately instead of being
	// buffered until the test's outcome is known.
	FromConstructing bool

	// WasPending and WasCanceled tag a buffered message event with
	// the disposition of the test it was raised in.
	WasPending  bool
	WasCanceled bool
}

// Reporter consumes the ordered event stream of an engine run.  The
// engine guarantees the pairings and orderings documented on the
// event kinds; rendering is the reporter's concern.  A reporter must
// be safe for concurrent use if tests are run through a distributor.
type Reporter interface {
	Apply(Event)
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(Event)

// Apply implements Reporter.
func (f ReporterFunc) Apply(e Event) { f(e) }

// Tracker hands out the strictly increasing ordinals stamped onto
// events.  It is safe for concurrent use.
type Tracker struct{ ordinal atomic.Uint64 }

// Next returns the next event ordinal.
func (t *Tracker) Next() uint64 { return t.ordinal.Add(1) }

// Stopper is polled between traversal steps; once it reports true no
// further untouched test or branch is entered.  A test already
// started always runs to completion.
type Stopper interface {
	ShouldStop() bool
}

// StopperFunc adapts a function to the Stopper interface.
type StopperFunc func() bool

// ShouldStop implements Stopper.
func (f StopperFunc) ShouldStop() bool { return f() }

// NeverStop is the default Stopper which never trips.
var NeverStop Stopper = StopperFunc(func() bool { return false })

// TagSet is a set of tag strings associated with one test.
type TagSet map[string]struct{}

// TagMap associates full test names with their tag sets.  Engines
// hand snapshots of it to the filter.
type TagMap map[string]TagSet

// IgnoreTag is the reserved tag marking a test registered through
// [Engine.RegisterIgnoredTest]: such a test is surfaced as ignored
// instead of being executed.
const IgnoreTag = "spec:ignore"

// Filter decides per test whether it is run, ignored or dropped from
// the run altogether.  Its internals are opaque policy to the engine.
type Filter interface {
	Apply(testName string, tags TagMap) (excluded, ignored bool)
}

// FilterFunc adapts a function to the Filter interface.
type FilterFunc func(testName string, tags TagMap) (excluded, ignored bool)

// Apply implements Filter.
func (f FilterFunc) Apply(n string, tt TagMap) (bool, bool) { return f(n, tt) }

// DefaultFilter excludes nothing and ignores exactly the tests
// carrying the reserved ignore-tag.
var DefaultFilter Filter = FilterFunc(
	func(name string, tags TagMap) (bool, bool) {
		_, ignored := tags[name][IgnoreTag]
		return false, ignored
	})

// Distributor schedules test executions on behalf of the engine.  If
// one is provided the engine submits each leaf's run to it and waits
// at every scope boundary, keeping scope events balanced while the
// tests of a scope may run concurrently.  Wait surfaces the first
// error a submitted run returned.
type Distributor interface {
	Submit(name string, run func() error)
	Wait() error
}

// ConfigMap carries free-form per-run configuration for suites which
// want to consult it; the engine itself only passes it through.
type ConfigMap map[string]interface{}
