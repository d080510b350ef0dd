// Copyright (c) 2022 Stephan Lukits. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package spec

import (
	"sync"
	"testing"

	pkgerr "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testReporter captures the event stream for assertions.  The root
// package can't use pkg/report's Recorder without an import cycle.
type testReporter struct {
	mu     sync.Mutex
	events []Event
}

func (r *testReporter) Apply(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *testReporter) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kk := []EventKind{}
	for _, e := range r.events {
		kk = append(kk, e.Kind)
	}
	return kk
}

func (r *testReporter) ofKind(k EventKind) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	ee := []Event{}
	for _, e := range r.events {
		if e.Kind == k {
			ee = append(ee, e)
		}
	}
	return ee
}

func noopTest(*T) {}

func TestRegistrationPreservesOrder(t *testing.T) {
	e := NewEngine("order", "")
	_, err := e.RegisterTest("first", noopTest)
	require.NoError(t, err)
	require.NoError(t, e.RegisterNestedBranch("scope", "", func() {
		_, err := e.RegisterTest("second", noopTest)
		require.NoError(t, err)
		_, err = e.RegisterTest("third", noopTest)
		require.NoError(t, err)
	}))
	_, err = e.RegisterTest("fourth", noopTest)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"first", "scope second", "scope third", "fourth",
	}, e.TestNames())
}

func TestRegistrationRejectsDuplicateFullName(t *testing.T) {
	e := NewEngine("dup", "")
	_, err := e.RegisterTest("A", noopTest)
	require.NoError(t, err)
	_, err = e.RegisterTest("A", noopTest)
	require.ErrorIs(t, err, ErrDuplicateTestName)
}

func TestSameTextInDifferentScopesIsDistinct(t *testing.T) {
	e := NewEngine("scoped", "")
	require.NoError(t, e.RegisterNestedBranch("f1", "", func() {
		_, err := e.RegisterTest("A", noopTest)
		require.NoError(t, err)
	}))
	require.NoError(t, e.RegisterNestedBranch("f2", "", func() {
		_, err := e.RegisterTest("A", noopTest)
		require.NoError(t, err)
	}))
	assert.Equal(t, []string{"f1 A", "f2 A"}, e.TestNames())
}

func TestFullNameJoinsScopeTextsWithSingleSpaces(t *testing.T) {
	e := NewEngine("names", "")
	require.NoError(t, e.RegisterNestedBranch("outer ", "", func() {
		require.NoError(t, e.RegisterNestedBranch(" inner", "", func() {
			name, err := e.RegisterTest(" does it ", noopTest)
			require.NoError(t, err)
			assert.Equal(t, "outer inner does it", name)
		}))
	}))
}

func TestChildPrefixExtendsNamePrefix(t *testing.T) {
	e := NewEngine("prefixed", "")
	require.NoError(t, e.RegisterNestedBranch(
		"a stack", "should", func() {
			name, err := e.RegisterTest("pop in lifo order", noopTest)
			require.NoError(t, err)
			assert.Equal(t, "a stack should pop in lifo order", name)
		}))
}

func TestFirstRunClosesRegistrationPermanently(t *testing.T) {
	e := NewEngine("closing", "")
	_, err := e.RegisterTest("kept", noopTest)
	require.NoError(t, err)

	rep := &testReporter{}
	require.NoError(t, e.Run("", NewArgs(rep),
		func(string, Args) error { return nil }))

	_, err = e.RegisterTest("late", noopTest)
	require.ErrorIs(t, err, ErrRegistrationClosed)
	err = e.RegisterNestedBranch("late scope", "", func() {})
	require.ErrorIs(t, err, ErrRegistrationClosed)
	assert.Equal(t, []string{"kept"}, e.TestNames())
}

func TestRunValidatesCollaborators(t *testing.T) {
	e := NewEngine("args", "")
	args := NewArgs(nil)
	err := e.Run("", args, func(string, Args) error { return nil })
	require.ErrorIs(t, err, ErrNilArgument)

	args = NewArgs(&testReporter{})
	args.Stopper = nil
	err = e.Run("", args, func(string, Args) error { return nil })
	require.ErrorIs(t, err, ErrNilArgument)
}

func TestRunTestReportsUnknownName(t *testing.T) {
	e := NewEngine("unknown", "")
	rep := &testReporter{}
	err := e.Run("", NewArgs(rep), func(_ string, args Args) error {
		return e.RunTest("no such test", args, DefaultInvoker)
	})
	require.ErrorIs(t, err, ErrUnknownTest)
}

func runAll(e *Engine, args Args) error {
	return e.Run("", args, func(name string, args Args) error {
		return e.RunTests(name, args,
			func(name string, args Args) error {
				return e.RunTest(name, args, DefaultInvoker)
			})
	})
}

func TestTraversalEmitsOrderedScopedEvents(t *testing.T) {
	e := NewEngine("ordered", "")
	require.NoError(t, e.RegisterNestedBranch("outer", "", func() {
		_, err := e.RegisterTest("works", noopTest)
		require.NoError(t, err)
	}))

	rep := &testReporter{}
	require.NoError(t, runAll(e, NewArgs(rep)))

	require.Equal(t, []EventKind{
		ScopeOpened, TestStarting, TestSucceeded, ScopeClosed,
	}, rep.kinds())
	assert.Equal(t, "outer", rep.events[0].Message)
	assert.Equal(t, 0, rep.events[0].Indent)
	assert.Equal(t, "outer works", rep.events[1].TestName)
	assert.Equal(t, "works", rep.events[1].TestText)
	assert.Equal(t, 1, rep.events[1].Indent)
	for i, e := range rep.events {
		assert.Equal(t, uint64(i+1), e.Ordinal)
	}
}

func TestScopeEventsStayBalancedOnFailure(t *testing.T) {
	e := NewEngine("balanced", "")
	require.NoError(t, e.RegisterNestedBranch("outer", "", func() {
		require.NoError(t, e.RegisterNestedBranch("inner", "", func() {
			_, err := e.RegisterTest("blows up", func(*T) {
				panic("boom")
			})
			require.NoError(t, err)
		}))
	}))

	rep := &testReporter{}
	require.NoError(t, runAll(e, NewArgs(rep)))

	require.Equal(t, []EventKind{
		ScopeOpened, ScopeOpened, TestStarting, TestFailed,
		ScopeClosed, ScopeClosed,
	}, rep.kinds())
	failed := rep.ofKind(TestFailed)[0]
	assert.ErrorContains(t, failed.Err, "boom")
}

func TestAccumulatedErrorsFailTheTest(t *testing.T) {
	e := NewEngine("erroring", "")
	_, err := e.RegisterTest("fails twice", func(t *T) {
		t.Error("first problem")
		t.Errorf("%s problem", "second")
	})
	require.NoError(t, err)

	rep := &testReporter{}
	require.NoError(t, runAll(e, NewArgs(rep)))

	failed := rep.ofKind(TestFailed)
	require.Len(t, failed, 1)
	assert.ErrorContains(t, failed[0].Err, "first problem")
	assert.ErrorContains(t, failed[0].Err, "second problem")
}

func TestFailNowCutsTheBodyShort(t *testing.T) {
	e := NewEngine("fatal", "")
	reached := false
	_, err := e.RegisterTest("stops", func(t *T) {
		t.Fatal("fatal problem")
		reached = true
	})
	require.NoError(t, err)

	rep := &testReporter{}
	require.NoError(t, runAll(e, NewArgs(rep)))

	assert.False(t, reached)
	failed := rep.ofKind(TestFailed)
	require.Len(t, failed, 1)
	assert.ErrorContains(t, failed[0].Err, "fatal problem")
}

func TestPendingAndCanceledAreNeitherSuccessNorFailure(t *testing.T) {
	e := NewEngine("dispositions", "")
	_, err := e.RegisterTest("unwritten", func(t *T) { t.Pending() })
	require.NoError(t, err)
	_, err = e.RegisterTest("unmet", func(t *T) {
		t.Cancel("database down")
	})
	require.NoError(t, err)

	rep := &testReporter{}
	require.NoError(t, runAll(e, NewArgs(rep)))

	require.Len(t, rep.ofKind(TestPending), 1)
	canceled := rep.ofKind(TestCanceled)
	require.Len(t, canceled, 1)
	assert.ErrorContains(t, canceled[0].Err, "database down")
	assert.Empty(t, rep.ofKind(TestFailed))
	assert.Empty(t, rep.ofKind(TestSucceeded))
}

func TestMessagesAreDelayedUntilOutcomeIsKnown(t *testing.T) {
	e := NewEngine("delayed", "")
	_, err := e.RegisterTest("informs then fails", func(t *T) {
		t.Info("one")
		t.Info("two")
		t.Markup("* three")
		t.Error("boom")
	})
	require.NoError(t, err)

	rep := &testReporter{}
	require.NoError(t, runAll(e, NewArgs(rep)))

	require.Equal(t, []EventKind{
		TestStarting, TestFailed, InfoProvided, InfoProvided,
		MarkupProvided,
	}, rep.kinds())
	assert.Equal(t, "one", rep.events[2].Message)
	assert.Equal(t, "two", rep.events[3].Message)
	assert.Equal(t, "* three", rep.events[4].Message)
	for _, e := range rep.events[2:] {
		assert.True(t, e.FromConstructing)
		assert.False(t, e.WasPending)
		assert.False(t, e.WasCanceled)
	}
}

func TestDelayedMessagesCarryTheDisposition(t *testing.T) {
	e := NewEngine("tagged", "")
	_, err := e.RegisterTest("informs then pends", func(t *T) {
		t.Info("so far so good")
		t.Pending()
	})
	require.NoError(t, err)

	rep := &testReporter{}
	require.NoError(t, runAll(e, NewArgs(rep)))

	infos := rep.ofKind(InfoProvided)
	require.Len(t, infos, 1)
	assert.True(t, infos[0].WasPending)
	assert.False(t, infos[0].WasCanceled)
	require.Equal(t, []EventKind{
		TestStarting, TestPending, InfoProvided,
	}, rep.kinds())
}

func TestForeignGoroutineMessagesAreForwardedImmediately(t *testing.T) {
	e := NewEngine("foreign", "")
	_, err := e.RegisterTest("spawns", func(t *T) {
		done := make(chan struct{})
		go func() {
			defer close(done)
			t.Info("from the side")
		}()
		<-done
	})
	require.NoError(t, err)

	rep := &testReporter{}
	require.NoError(t, runAll(e, NewArgs(rep)))

	require.Equal(t, []EventKind{
		TestStarting, InfoProvided, TestSucceeded,
	}, rep.kinds())
	assert.False(t, rep.events[1].FromConstructing)
}

func TestIgnoredTestsAreSurfacedButNeverInvoked(t *testing.T) {
	e := NewEngine("ignoring", "")
	invoked := false
	_, err := e.RegisterIgnoredTest("skipped", func(*T) {
		invoked = true
	})
	require.NoError(t, err)

	rep := &testReporter{}
	require.NoError(t, runAll(e, NewArgs(rep)))

	assert.False(t, invoked)
	require.Equal(t, []EventKind{TestIgnored}, rep.kinds())
	assert.Equal(t, []string{"skipped"}, e.TestNames())
}

func TestFilterExcludesTestsFromTheRun(t *testing.T) {
	e := NewEngine("filtered", "")
	ran := []string{}
	for _, text := range []string{"wanted", "unwanted"} {
		text := text
		_, err := e.RegisterTest(text, func(*T) {
			ran = append(ran, text)
		})
		require.NoError(t, err)
	}

	rep := &testReporter{}
	args := NewArgs(rep)
	args.Filter = FilterFunc(func(name string, _ TagMap) (bool, bool) {
		return name == "unwanted", false
	})
	require.NoError(t, runAll(e, args))

	assert.Equal(t, []string{"wanted"}, ran)
}

func TestStopperPreventsFurtherTests(t *testing.T) {
	e := NewEngine("stopped", "")
	ran := 0
	for _, text := range []string{"one", "two", "three"} {
		_, err := e.RegisterTest(text, func(*T) { ran++ })
		require.NoError(t, err)
	}

	rep := &testReporter{}
	args := NewArgs(rep)
	args.Stopper = StopperFunc(func() bool { return ran > 0 })
	require.NoError(t, runAll(e, args))

	assert.Equal(t, 1, ran)
}

func TestSuiteLevelMessagesReplayAtTheirPosition(t *testing.T) {
	e := NewEngine("documented", "")
	e.Info("before the scope")
	require.NoError(t, e.RegisterNestedBranch("scope", "", func() {
		_, err := e.RegisterTest("works", noopTest)
		require.NoError(t, err)
	}))
	e.Markup("# after the scope")

	rep := &testReporter{}
	require.NoError(t, runAll(e, NewArgs(rep)))

	require.Equal(t, []EventKind{
		InfoProvided, ScopeOpened, TestStarting, TestSucceeded,
		ScopeClosed, MarkupProvided,
	}, rep.kinds())
	assert.Equal(t, "before the scope", rep.events[0].Message)
	assert.True(t, rep.events[0].FromConstructing)
	assert.Equal(t, "# after the scope", rep.events[5].Message)
}

func TestSingleTestRunSkipsUnrelatedTests(t *testing.T) {
	e := NewEngine("single", "")
	ran := []string{}
	require.NoError(t, e.RegisterNestedBranch("scope", "", func() {
		for _, text := range []string{"one", "two"} {
			text := text
			_, err := e.RegisterTest(text, func(*T) {
				ran = append(ran, text)
			})
			require.NoError(t, err)
		}
	}))

	rep := &testReporter{}
	err := e.Run("scope two", NewArgs(rep),
		func(name string, args Args) error {
			return e.RunTests(name, args,
				func(name string, args Args) error {
					return e.RunTest(name, args, DefaultInvoker)
				})
		})
	require.NoError(t, err)
	assert.Equal(t, []string{"two"}, ran)
}

func TestMessagingAfterRunPanicsWithExpiredSink(t *testing.T) {
	e := NewEngine("expired", "")
	_, err := e.RegisterTest("works", noopTest)
	require.NoError(t, err)
	require.NoError(t, runAll(e, NewArgs(&testReporter{})))

	require.PanicsWithValue(t, ErrSinkExpired, func() {
		e.Info("too late")
	})
}

func TestAbortConditionsAreNotConvertedIntoFailures(t *testing.T) {
	e := NewEngine("aborting", "")
	cause := pkgerr.New("out of disk")
	_, err := e.RegisterTest("aborts", func(*T) { Abort(cause) })
	require.NoError(t, err)

	rep := &testReporter{}
	defer func() {
		r := recover()
		require.NotNil(t, r)
		ae, ok := r.(*AbortError)
		require.True(t, ok)
		assert.ErrorIs(t, ae, cause)
		assert.Empty(t, rep.ofKind(TestFailed))
	}()
	_ = runAll(e, NewArgs(rep))
}

func TestDistributedRunsWaitAtScopeBoundaries(t *testing.T) {
	e := NewEngine("distributed", "")
	var mu sync.Mutex
	ran := map[string]bool{}
	require.NoError(t, e.RegisterNestedBranch("scope", "", func() {
		for _, text := range []string{"one", "two", "three"} {
			text := text
			_, err := e.RegisterTest(text, func(*T) {
				mu.Lock()
				defer mu.Unlock()
				ran[text] = true
			})
			require.NoError(t, err)
		}
	}))

	rep := &testReporter{}
	args := NewArgs(rep)
	args.Distributor = &goDistributor{}
	require.NoError(t, runAll(e, args))

	assert.Len(t, ran, 3)
	kinds := rep.kinds()
	require.Equal(t, ScopeOpened, kinds[0])
	require.Equal(t, ScopeClosed, kinds[len(kinds)-1])
	assert.Len(t, rep.ofKind(TestSucceeded), 3)
}

// goDistributor is the simplest conforming distributor: one goroutine
// per submission, surfacing the first run error through Wait.
type goDistributor struct {
	wg  sync.WaitGroup
	mu  sync.Mutex
	err error
}

func (d *goDistributor) Submit(_ string, run func() error) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := run(); err != nil {
			d.mu.Lock()
			if d.err == nil {
				d.err = err
			}
			d.mu.Unlock()
		}
	}()
}

func (d *goDistributor) Wait() error {
	d.wg.Wait()
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

// steppedDistributor defers its submissions until Wait and completes
// the first one strictly before the second, forcing two test runs to
// overlap without nesting.
type steppedDistributor struct {
	bothStarted   chan struct{}
	releaseFirst  chan struct{}
	releaseSecond chan struct{}
	runs          []func() error
}

func (d *steppedDistributor) Submit(_ string, run func() error) {
	d.runs = append(d.runs, run)
}

func (d *steppedDistributor) Wait() error {
	if len(d.runs) < 2 {
		return nil
	}
	first := make(chan error, 1)
	second := make(chan error, 1)
	run1, run2 := d.runs[0], d.runs[1]
	d.runs = nil
	go func() { first <- run1() }()
	go func() { second <- run2() }()
	<-d.bothStarted
	close(d.releaseFirst)
	if err := <-first; err != nil {
		return err
	}
	close(d.releaseSecond)
	return <-second
}

func TestOverlappingDistributedTestsRecordIndependently(t *testing.T) {
	d := &steppedDistributor{
		bothStarted:   make(chan struct{}),
		releaseFirst:  make(chan struct{}),
		releaseSecond: make(chan struct{}),
	}
	e := NewEngine("overlapping", "")
	firstStarted := make(chan struct{})
	_, err := e.RegisterTest("first", func(t *T) {
		close(firstStarted)
		t.Info("from first")
		<-d.releaseFirst
	})
	require.NoError(t, err)
	_, err = e.RegisterTest("second", func(t *T) {
		<-firstStarted
		t.Info("from second")
		close(d.bothStarted)
		<-d.releaseSecond
	})
	require.NoError(t, err)

	rep := &testReporter{}
	args := NewArgs(rep)
	args.Distributor = d
	require.NoError(t, runAll(e, args))

	assert.Len(t, rep.ofKind(TestSucceeded), 2)
	infos := rep.ofKind(InfoProvided)
	require.Len(t, infos, 2)
	for _, info := range infos {
		switch info.Message {
		case "from first":
			assert.Equal(t, "first", info.TestName)
		case "from second":
			assert.Equal(t, "second", info.TestName)
		default:
			t.Errorf("unexpected message %q", info.Message)
		}
	}
}

func TestDistributedRunErrorsSurfaceThroughWait(t *testing.T) {
	e := NewEngine("failing schedule", "")
	_, err := e.RegisterTest("scheduled", noopTest)
	require.NoError(t, err)

	scheduled := pkgerr.New("scheduled failure")
	args := NewArgs(&testReporter{})
	args.Distributor = &goDistributor{}
	err = e.Run("", args, func(name string, args Args) error {
		return e.RunTests(name, args,
			func(string, Args) error { return scheduled })
	})
	require.ErrorIs(t, err, scheduled)
}

func TestFailedBundleSwapSurfacesWithoutRetry(t *testing.T) {
	e := NewEngine("raced", "")
	current := e.bundle.Load()
	stale := current.shallow()

	err := e.swapBundle(stale, stale.shallow())
	require.ErrorIs(t, err, ErrConcurrentModification)
	require.Same(t, current, e.bundle.Load())
}

func TestSlotSwapDuringRunIsDetected(t *testing.T) {
	e := NewEngine("hijacked", "")
	_, err := e.RegisterTest("works", noopTest)
	require.NoError(t, err)

	err = e.Run("", NewArgs(&testReporter{}),
		func(string, Args) error {
			e.slot.Store(&slotEntry{s: zombieSink{}})
			return nil
		})
	require.ErrorIs(t, err, ErrConcurrentModification)
}

func TestSecondRunIsRejected(t *testing.T) {
	e := NewEngine("terminal", "")
	_, err := e.RegisterTest("works", noopTest)
	require.NoError(t, err)
	require.NoError(t, runAll(e, NewArgs(&testReporter{})))

	err = runAll(e, NewArgs(&testReporter{}))
	require.ErrorIs(t, err, ErrRunCompleted)
}
