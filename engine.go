// Copyright (c) 2022 Stephan Lukits. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package spec

import (
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
)

// Engine accumulates the tests and nested scopes a spec-style suite
// declares at construction time and later replays the recorded tree,
// producing an ordered event stream of scope, outcome and message
// events.  Registration is append-only and closes permanently the
// first time a run begins.
//
// All shared mutable state, the bundle snapshot and the
// informer/documenter slot, is swapped wholesale through atomic
// compare-and-swap: registration is expected to be single-goroutine,
// a failed swap is reported as ErrConcurrentModification and never
// retried.
type Engine struct {
	suiteName    string
	styleName    string
	constructing constructing
	trunk        *branch
	bundle       atomic.Pointer[bundle]
	slot         atomic.Pointer[slotEntry]
}

// NewEngine returns an engine for given suite whose registration
// phase is open and whose informer slot buffers suite-level messages
// into the registration tree.  styleName flavors the phrasing of
// registration errors for the DSL style sitting on top.
func NewEngine(suiteName, styleName string) *Engine {
	if styleName == "" {
		styleName = "spec"
	}
	e := &Engine{
		suiteName:    suiteName,
		styleName:    styleName,
		constructing: captureConstructing(),
		trunk:        &branch{},
	}
	e.bundle.Store(newBundle(e.trunk))
	e.slot.Store(&slotEntry{s: &registrationSink{e: e}})
	return e
}

// SuiteName reports the name the engine was constructed for.
func (e *Engine) SuiteName() string { return e.suiteName }

// TestNames returns the full names of all registered tests in exactly
// the order the corresponding registrations occurred, regardless of
// their nesting depth.
func (e *Engine) TestNames() []string {
	return slices.Clone(e.bundle.Load().testNames)
}

// Tags returns a snapshot of the accumulated test-name to tag-set
// association.
func (e *Engine) Tags() TagMap {
	return e.bundle.Load().shallow().tags
}

// Info routes given message through the currently installed informer:
// during construction it becomes an info leaf replaying at its
// registration position, during a run it is forwarded to the
// reporter.  After the run completed it panics with ErrSinkExpired.
func (e *Engine) Info(message string) {
	e.currentSink().info(message, callerLocation(1))
}

// Markup is Info's documenter counterpart.
func (e *Engine) Markup(message string) {
	e.currentSink().markup(message, callerLocation(1))
}

func (e *Engine) currentSink() sink { return e.slot.Load().s }

// swapBundle installs next given that the slot still holds old;
// otherwise another goroutine mutated registration state concurrently
// which is a usage error, never retried.
func (e *Engine) swapBundle(old, next *bundle) error {
	if !e.bundle.CompareAndSwap(old, next) {
		return errors.WithMessage(ErrConcurrentModification,
			"registration state swapped underneath")
	}
	return nil
}

func (e *Engine) closedErr() error {
	return errors.WithMessagef(ErrRegistrationClosed,
		"%s suite %q: cannot register once running", e.styleName,
		e.suiteName)
}

// RegisterTest records a test under the name derived from the
// enclosing scope texts joined with given text and returns that name.
// It fails with ErrRegistrationClosed after the first run began, with
// ErrDuplicateTestName if the computed name is taken and with
// ErrConcurrentModification on a detected concurrent registration.
func (e *Engine) RegisterTest(
	text string, fn func(*T), tags ...string,
) (string, error) {
	return e.registerTestLeaf(testRegistration{
		text: text, fn: fn, tags: tags, location: callerLocation(1),
	})
}

// RegisterIgnoredTest records a test like [Engine.RegisterTest] but
// additionally tags it with the reserved ignore-tag: the test is
// surfaced as ignored at run time and its body is never invoked,
// while it still appears in TestNames.
func (e *Engine) RegisterIgnoredTest(
	text string, fn func(*T), tags ...string,
) (string, error) {
	return e.registerTestLeaf(testRegistration{
		text: text, fn: fn, tags: append(tags, IgnoreTag),
		location: callerLocation(1),
	})
}

// testRegistration carries a test registration's arguments; the
// recorded fields are only set by the path engine registering replay
// leaves for already executed tests.
type testRegistration struct {
	text     string
	fn       func(*T)
	tags     []string
	location Location

	recordedDuration    time.Duration
	hasRecordedDuration bool
	recordedMessages    []recordedMessage
}

func (e *Engine) registerTestLeaf(r testRegistration) (string, error) {
	b := e.bundle.Load()
	if b.registrationClosed {
		return "", e.closedErr()
	}
	name := fullTestName(b.currentBranch, r.text)
	if _, ok := b.tests[name]; ok {
		return "", errors.WithMessagef(ErrDuplicateTestName,
			"%s suite %q: test %q", e.styleName, e.suiteName, name)
	}
	leaf := &TestLeaf{
		parent:              b.currentBranch,
		TestName:            name,
		TestText:            r.text,
		Fn:                  r.fn,
		Location:            r.location,
		RecordedDuration:    r.recordedDuration,
		HasRecordedDuration: r.hasRecordedDuration,
		recorded:            r.recordedMessages,
	}
	next := b.shallow()
	next.tests[name] = leaf
	next.testNames = append(next.testNames, name)
	if len(r.tags) > 0 {
		set := next.tags[name]
		if set == nil {
			set = TagSet{}
			next.tags[name] = set
		}
		for _, tag := range r.tags {
			set[tag] = struct{}{}
		}
	}
	if err := e.swapBundle(b, next); err != nil {
		return "", err
	}
	b.currentBranch.children = append(b.currentBranch.children, leaf)
	return name, nil
}

// RegisterNestedBranch pushes a new description branch with given
// text (and optional child-prefix for flatter styles) as child of the
// current branch, makes it current, executes body and restores the
// prior branch.  body typically registers further tests and branches.
func (e *Engine) RegisterNestedBranch(
	text, childPrefix string, body func(),
) (err error) {
	b := e.bundle.Load()
	if b.registrationClosed {
		return e.closedErr()
	}
	br := &branch{
		parent:      b.currentBranch,
		text:        text,
		childPrefix: childPrefix,
		location:    callerLocation(1),
	}
	next := b.shallow()
	next.currentBranch = br
	if err := e.swapBundle(b, next); err != nil {
		return err
	}
	b.currentBranch.children = append(b.currentBranch.children, br)
	defer func() {
		after := e.bundle.Load()
		restored := after.shallow()
		restored.currentBranch = br.parent
		if cerr := e.swapBundle(after, restored); cerr != nil &&
			err == nil {
			err = cerr
		}
	}()
	body()
	return nil
}

// registerInfoLeaf records a suite-level informer message raised
// during construction outside any test.  DSL misuse after the close
// transition surfaces as panic since the informer contract has no
// error return.
func (e *Engine) registerInfoLeaf(message string, loc Location) {
	b := e.bundle.Load()
	if b.registrationClosed {
		panic(e.closedErr())
	}
	if err := e.swapBundle(b, b.shallow()); err != nil {
		panic(err)
	}
	b.currentBranch.children = append(b.currentBranch.children,
		&infoLeaf{parent: b.currentBranch, message: message, location: loc})
}

func (e *Engine) registerMarkupLeaf(message string, loc Location) {
	b := e.bundle.Load()
	if b.registrationClosed {
		panic(e.closedErr())
	}
	if err := e.swapBundle(b, b.shallow()); err != nil {
		panic(err)
	}
	b.currentBranch.children = append(b.currentBranch.children,
		&markupLeaf{parent: b.currentBranch, message: message, location: loc})
}

// Args bundles the collaborators of a run.  Reporter, Stopper, Filter,
// Config and Tracker must be non-nil; NewArgs fills the defaults.
type Args struct {
	Reporter    Reporter
	Stopper     Stopper
	Filter      Filter
	Config      ConfigMap
	Distributor Distributor
	Tracker     *Tracker
}

// NewArgs returns run arguments for given reporter with a never
// tripping stopper, the default filter, an empty config map and a
// fresh tracker.
func NewArgs(r Reporter) Args {
	return Args{
		Reporter: r,
		Stopper:  NeverStop,
		Filter:   DefaultFilter,
		Config:   ConfigMap{},
		Tracker:  &Tracker{},
	}
}

func (a Args) validate() error {
	switch {
	case a.Reporter == nil:
		return errors.WithMessage(ErrNilArgument, "reporter")
	case a.Stopper == nil:
		return errors.WithMessage(ErrNilArgument, "stopper")
	case a.Filter == nil:
		return errors.WithMessage(ErrNilArgument, "filter")
	case a.Config == nil:
		return errors.WithMessage(ErrNilArgument, "config map")
	case a.Tracker == nil:
		return errors.WithMessage(ErrNilArgument, "tracker")
	}
	return nil
}

// closeRegistration flips the registration-closed flag exactly once.
// The transition is idempotent: if the bundle is already closed the
// flag update is skipped since a swap failure would be spurious for a
// no-op.
func (e *Engine) closeRegistration() error {
	b := e.bundle.Load()
	if b.registrationClosed {
		return nil
	}
	next := b.shallow()
	next.registrationClosed = true
	if !e.bundle.CompareAndSwap(b, next) {
		if !e.bundle.Load().registrationClosed {
			return errors.WithMessage(ErrConcurrentModification,
				"closing registration")
		}
	}
	return nil
}

// Run is the top-level run entry point: it closes registration,
// installs the live informer bound to this run's reporter and tracker
// and delegates to superRun, the surrounding suite's own run hook.
// Regardless of superRun's outcome the informer slot is restored to a
// terminal zombie sink; if another goroutine swapped the slot in the
// meantime ErrConcurrentModification is reported, though an error of
// superRun takes precedence over the cleanup's.  The zombie state is
// terminal: a second Run is rejected with ErrRunCompleted.
func (e *Engine) Run(
	testName string, args Args,
	superRun func(testName string, args Args) error,
) (err error) {
	if superRun == nil {
		return errors.WithMessage(ErrNilArgument, "superRun")
	}
	if err := args.validate(); err != nil {
		return err
	}
	if _, done := e.currentSink().(zombieSink); done {
		return errors.WithMessagef(ErrRunCompleted,
			"%s suite %q", e.styleName, e.suiteName)
	}
	if err := e.closeRegistration(); err != nil {
		return err
	}
	entry := &slotEntry{s: &concurrentSink{
		e: e, reporter: args.Reporter, tracker: args.Tracker,
	}}
	e.slot.Store(entry)
	defer func() {
		if !e.slot.CompareAndSwap(entry, &slotEntry{s: zombieSink{}}) {
			e.slot.Store(&slotEntry{s: zombieSink{}})
			if err == nil {
				err = errors.WithMessage(ErrConcurrentModification,
					"informer slot swapped during run")
			}
		}
	}()
	return superRun(testName, args)
}

// RunTests traverses the registered tree depth-first in registration
// order if testName is empty, or runs the single named test.  Each
// description branch yields a paired scope-opened/scope-closed event
// also if a child fails; info and markup leaves are emitted
// immediately as already finalized messages.  The stopper is polled
// between leaves only.  runTest is the per-test entry, typically
// wrapping [Engine.RunTest].
func (e *Engine) RunTests(
	testName string, args Args,
	runTest func(name string, args Args) error,
) error {
	if runTest == nil {
		return errors.WithMessage(ErrNilArgument, "runTest")
	}
	if err := args.validate(); err != nil {
		return err
	}
	b := e.bundle.Load()
	if testName != "" {
		if _, ok := b.tests[testName]; !ok {
			return errors.WithMessagef(ErrUnknownTest, "%q", testName)
		}
		excluded, ignored := args.Filter.Apply(testName, b.tags)
		switch {
		case excluded:
			return nil
		case ignored:
			e.emitIgnored(b.tests[testName], args)
			return nil
		}
		return runTest(testName, args)
	}
	err := e.traverse(e.trunk, b, args, runTest)
	if args.Distributor != nil {
		if werr := args.Distributor.Wait(); werr != nil && err == nil {
			err = werr
		}
	}
	return err
}

func (e *Engine) traverse(
	br *branch, b *bundle, args Args,
	runTest func(string, Args) error,
) error {
	for _, child := range br.children {
		if args.Stopper.ShouldStop() {
			break
		}
		switch n := child.(type) {
		case *branch:
			if err := e.traverseScope(n, b, args, runTest); err != nil {
				return err
			}
		case *TestLeaf:
			excluded, ignored := args.Filter.Apply(n.TestName, b.tags)
			switch {
			case excluded:
			case ignored:
				e.emitIgnored(n, args)
			case args.Distributor != nil:
				name := n.TestName
				args.Distributor.Submit(name, func() error {
					return runTest(name, args)
				})
			default:
				if err := runTest(n.TestName, args); err != nil {
					return err
				}
			}
		case *infoLeaf:
			args.Reporter.Apply(Event{
				Kind:             InfoProvided,
				Ordinal:          args.Tracker.Next(),
				SuiteName:        e.suiteName,
				Message:          n.message,
				Indent:           n.parent.depth(),
				Location:         n.location,
				FromConstructing: true,
			})
		case *markupLeaf:
			args.Reporter.Apply(Event{
				Kind:             MarkupProvided,
				Ordinal:          args.Tracker.Next(),
				SuiteName:        e.suiteName,
				Message:          n.message,
				Indent:           n.parent.depth(),
				Location:         n.location,
				FromConstructing: true,
			})
		}
	}
	return nil
}

// traverseScope pairs the scope events around a branch's children:
// the closing event fires also if a child errors, event consumers
// expect balanced open/close.  With a distributor present all of the
// scope's submitted tests are awaited before the scope closes.
func (e *Engine) traverseScope(
	n *branch, b *bundle, args Args,
	runTest func(string, Args) error,
) (err error) {
	e.emitScope(ScopeOpened, n, args)
	defer func() {
		if args.Distributor != nil {
			if werr := args.Distributor.Wait(); werr != nil && err == nil {
				err = werr
			}
		}
		e.emitScope(ScopeClosed, n, args)
	}()
	return e.traverse(n, b, args, runTest)
}

func (e *Engine) emitScope(kind EventKind, n *branch, args Args) {
	args.Reporter.Apply(Event{
		Kind:      kind,
		Ordinal:   args.Tracker.Next(),
		SuiteName: e.suiteName,
		Message:   n.text,
		Indent:    n.depth() - 1,
		Location:  n.location,
	})
}

func (e *Engine) emitIgnored(leaf *TestLeaf, args Args) {
	args.Reporter.Apply(Event{
		Kind:      TestIgnored,
		Ordinal:   args.Tracker.Next(),
		SuiteName: e.suiteName,
		TestName:  leaf.TestName,
		TestText:  leaf.TestText,
		Indent:    leaf.parent.depth(),
		Location:  leaf.Location,
	})
}

// Invoker runs a test leaf's closure, possibly threading a fixture
// value into it; the engine is parameterized over the strategy so the
// same run logic serves zero-argument and fixture-taking styles.
type Invoker func(leaf *TestLeaf, t *T)

// DefaultInvoker calls the leaf's closure directly.
var DefaultInvoker Invoker = func(leaf *TestLeaf, t *T) { leaf.Fn(t) }

// RunTest runs the named test: it emits the starting event, hands a
// per-test message recorder to the test context, invokes the body
// through given strategy and classifies the outcome into exactly one
// of succeeded, failed, pending or canceled.  The recorder is bound
// to the test, not to the engine's informer slot, so concurrently
// distributed tests record independently.  In a guaranteed cleanup
// step the recorder's buffered messages are flushed tagged with the
// final disposition and pre-recorded path-engine messages follow.
func (e *Engine) RunTest(
	testName string, args Args, invoke Invoker,
) error {
	if testName == "" {
		return errors.WithMessage(ErrNilArgument, "test name")
	}
	if invoke == nil {
		return errors.WithMessage(ErrNilArgument, "invoker")
	}
	if err := args.validate(); err != nil {
		return err
	}
	b := e.bundle.Load()
	leaf, ok := b.tests[testName]
	if !ok {
		return errors.WithMessagef(ErrUnknownTest, "%q", testName)
	}
	indent := leaf.parent.depth()
	args.Reporter.Apply(Event{
		Kind:      TestStarting,
		Ordinal:   args.Tracker.Next(),
		SuiteName: e.suiteName,
		TestName:  leaf.TestName,
		TestText:  leaf.TestText,
		Indent:    indent,
		Location:  leaf.Location,
	})

	rec := newMessageRecorder(e, args.Reporter, args.Tracker, leaf)

	var wasPending, wasCanceled bool
	defer func() {
		rec.fireRecorded(wasPending, wasCanceled)
		e.flushPrerecorded(leaf, args, wasPending, wasCanceled)
	}()

	t := newT(e, leaf, args.Config, rec)
	start := time.Now()
	outcome := classifyInvocation(leaf, t, invoke)
	duration := time.Since(start)
	if leaf.HasRecordedDuration {
		duration = leaf.RecordedDuration
	}

	completion := Event{
		Ordinal:   args.Tracker.Next(),
		SuiteName: e.suiteName,
		TestName:  leaf.TestName,
		TestText:  leaf.TestText,
		Indent:    indent,
		Location:  leaf.Location,
		Duration:  duration,
		Err:       outcome.Err,
	}
	switch outcome.Kind {
	case OutcomeSucceeded:
		completion.Kind = TestSucceeded
	case OutcomeFailed:
		completion.Kind = TestFailed
	case OutcomePending:
		completion.Kind = TestPending
		wasPending = true
	case OutcomeCanceled:
		completion.Kind = TestCanceled
		wasCanceled = true
	}
	args.Reporter.Apply(completion)
	return nil
}

func (e *Engine) flushPrerecorded(
	leaf *TestLeaf, args Args, wasPending, wasCanceled bool,
) {
	for _, m := range leaf.recorded {
		kind := InfoProvided
		if m.isMarkup {
			kind = MarkupProvided
		}
		args.Reporter.Apply(Event{
			Kind:             kind,
			Ordinal:          args.Tracker.Next(),
			SuiteName:        e.suiteName,
			TestName:         leaf.TestName,
			TestText:         leaf.TestText,
			Message:          m.message,
			Indent:           leaf.parent.depth() + 1,
			Location:         m.location,
			FromConstructing: true,
			WasPending:       wasPending,
			WasCanceled:      wasCanceled,
		})
	}
}

// OutcomeKind enumerates the classifications of a test invocation.
type OutcomeKind int

const (
	OutcomeSucceeded OutcomeKind = iota
	OutcomeFailed
	OutcomePending
	OutcomeCanceled
)

// Outcome is the explicit result of the test-invocation boundary;
// pending and cancellation control signals as well as ordinary panics
// are converted into it, abort conditions are not.
type Outcome struct {
	Kind OutcomeKind
	Err  error
}

// classifyInvocation guards a test body's invocation: control signals
// become pending/canceled, arbitrary panics become failures, abort
// conditions are re-panicked unrecorded.
func classifyInvocation(
	leaf *TestLeaf, t *T, invoke Invoker,
) (oc Outcome) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		switch s := r.(type) {
		case pendingSignal:
			oc = Outcome{Kind: OutcomePending}
		case canceledSignal:
			oc = Outcome{Kind: OutcomeCanceled, Err: errors.New(s.reason)}
		case failNowSignal:
			oc = Outcome{Kind: OutcomeFailed, Err: t.err()}
		case *AbortError:
			panic(r)
		default:
			oc = Outcome{
				Kind: OutcomeFailed,
				Err:  errors.Errorf("test panicked: %v", r),
			}
		}
	}()
	invoke(leaf, t)
	if err := t.err(); err != nil {
		return Outcome{Kind: OutcomeFailed, Err: err}
	}
	return Outcome{Kind: OutcomeSucceeded}
}
