// Copyright (c) 2022 Stephan Lukits. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package spec

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
)

// T instances are passed into test bodies providing means for
// messaging, assertion, failing and cancellation of a test:
//
//	s := spec.NewFunSpec("examples")
//	s.It("adds", func(t *spec.T) {
//	    t.Eq(4, 2+2)
//	})
//
// Info and Markup messages raised through t on the goroutine which
// constructed the suite are buffered and flushed only after the
// test's own outcome event; messages from other goroutines are
// forwarded to the reporter immediately.
type T struct {
	e      *Engine
	leaf   *TestLeaf
	config ConfigMap

	// msgs is the test's own message sink, typically its message
	// recorder; per-test recording bypasses the engine's shared
	// informer slot.
	msgs sink

	mu   sync.Mutex
	errs []error

	// errorer is the failure recorder of t's assertions; the Not
	// negations swap it out to probe an assertion without failing.
	errorer func(args ...interface{})

	// Not provides the negations of t's assertions, e.g. t.Not.True.
	Not Not
}

func newT(e *Engine, leaf *TestLeaf, config ConfigMap, msgs sink) *T {
	t := &T{e: e, leaf: leaf, config: config, msgs: msgs}
	t.errorer = t.record
	t.Not = Not{t: t}
	return t
}

func (t *T) messages() sink {
	if t.msgs != nil {
		return t.msgs
	}
	return t.e.currentSink()
}

func (t *T) record(args ...interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errs = append(t.errs, errors.New(fmt.Sprint(args...)))
}

// Name reports the full name of the running test.
func (t *T) Name() string { return t.leaf.TestName }

// Config returns the run's configuration map as passed to the run
// entry point; the engine itself never interprets it.
func (t *T) Config() ConfigMap { return t.config }

// Info routes given message through the suite's current informer;
// see the delivery semantics documented on T.
func (t *T) Info(message string) {
	t.messages().info(message, callerLocation(1))
}

// Infof formats leveraging fmt.Sprintf and routes like [T.Info].
func (t *T) Infof(format string, args ...interface{}) {
	t.messages().info(
		fmt.Sprintf(format, args...), callerLocation(1))
}

// Markup routes given markup text through the suite's documenter.
func (t *T) Markup(message string) {
	t.messages().markup(message, callerLocation(1))
}

// Log is an alias of [T.Info] easing the transition from the
// standard testing package.
func (t *T) Log(args ...interface{}) {
	t.messages().info(fmt.Sprint(args...), callerLocation(1))
}

// Logf is an alias of [T.Infof].
func (t *T) Logf(format string, args ...interface{}) {
	t.messages().info(
		fmt.Sprintf(format, args...), callerLocation(1))
}

// Error flags the test as failed recording given arguments as error
// message but continues its execution.
func (t *T) Error(args ...interface{}) {
	t.errorer(args...)
}

// Errorf flags the test as failed recording given format string
// leveraging fmt.Sprintf but continues its execution.
func (t *T) Errorf(format string, args ...interface{}) {
	t.errorer(fmt.Sprintf(format, args...))
}

// Failed reports whether the test accumulated errors so far.
func (t *T) Failed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.errs) > 0
}

// err joins the accumulated errors; nil if there are none.
func (t *T) err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch len(t.errs) {
	case 0:
		return nil
	case 1:
		return t.errs[0]
	}
	msg := ""
	for i, e := range t.errs {
		if i > 0 {
			msg += "; "
		}
		msg += e.Error()
	}
	return errors.New(msg)
}

// FailNow cuts the test body short; the test is reported as failed
// with the errors accumulated so far.  FailNow must be called from
// the goroutine running the test body.
func (t *T) FailNow() {
	t.mu.Lock()
	if len(t.errs) == 0 {
		t.errs = append(t.errs, errors.New("test failed"))
	}
	t.mu.Unlock()
	panic(failNowSignal{})
}

// Fatal records given arguments and cuts the test body short (see
// [T.FailNow]).
func (t *T) Fatal(args ...interface{}) {
	t.Error(args...)
	panic(failNowSignal{})
}

// Fatalf records given format string leveraging fmt.Sprintf and cuts
// the test body short (see [T.FailNow]).
func (t *T) Fatalf(format string, args ...interface{}) {
	t.Errorf(format, args...)
	panic(failNowSignal{})
}

// FatalOn cuts the test short reporting given error iff it is not
// nil and is a no-op otherwise.
func (t *T) FatalOn(err error) {
	if err == nil {
		return
	}
	t.Fatal(err.Error())
}

// FatalIfNot cuts the test short iff passed argument is false and is
// a no-op otherwise.
func (t *T) FatalIfNot(assertion bool) {
	if assertion {
		return
	}
	t.FailNow()
}

// Pending declares the test as intentionally not yet implemented; it
// cuts the body short and the test is reported as pending, neither a
// success nor a failure.
func (t *T) Pending() {
	panic(pendingSignal{})
}

// Cancel declares that the test's precondition could not be met; it
// cuts the body short and the test is reported as canceled, neither
// a success nor a failure.
func (t *T) Cancel(args ...interface{}) {
	panic(canceledSignal{reason: fmt.Sprint(args...)})
}

// Cancelf cancels like [T.Cancel] with a fmt.Sprintf formatted
// reason.
func (t *T) Cancelf(format string, args ...interface{}) {
	panic(canceledSignal{reason: fmt.Sprintf(format, args...)})
}
