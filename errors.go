// Copyright (c) 2022 Stephan Lukits. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package spec

import (
	"fmt"

	"github.com/pkg/errors"
)

// The engine's error taxonomy.  All registration and run operations
// report their failures as (wrapped) instances of these sentinels, i.e.
// they are matched with errors.Is.
var (
	// ErrRegistrationClosed flags a test- or branch-registration
	// after the engine transitioned into its run phase.
	ErrRegistrationClosed = errors.New("registration closed")

	// ErrDuplicateTestName flags the registration of a test whose
	// computed full name is already taken.
	ErrDuplicateTestName = errors.New("duplicate test name")

	// ErrConcurrentModification flags a detected concurrent writer of
	// engine state.  The engine's shared state is swapped through
	// compare-and-swap operations which are expected to succeed since
	// registration and run are expected to be driven by one goroutine.
	// A failed swap is a usage error and is never retried.
	ErrConcurrentModification = errors.New("concurrent modification")

	// ErrNilArgument flags a nil collaborator passed to a run
	// operation.
	ErrNilArgument = errors.New("nil argument")

	// ErrUnknownTest flags a RunTest call with an unregistered name.
	ErrUnknownTest = errors.New("unknown test")

	// ErrSinkExpired flags the use of a suite's informer or
	// documenter after its run completed.
	ErrSinkExpired = errors.New("message sink expired: run completed")

	// ErrRunCompleted flags a repeated Run call; an engine's
	// lifecycle is terminal once its run completed.
	ErrRunCompleted = errors.New("run already completed")
)

// AbortError marks a condition the engine must not convert into a
// failed-test event.  A test body panicking with an *AbortError is
// re-panicked unrecorded and aborts the whole run.
type AbortError struct {
	Cause error
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("run aborted: %v", e.Cause)
}

func (e *AbortError) Unwrap() error { return e.Cause }

// Abort panics with an *AbortError wrapping given cause.  It is the
// one escape hatch for test bodies hitting conditions which make
// continuing the run pointless, e.g. exhausted resources.
func Abort(cause error) {
	panic(&AbortError{Cause: cause})
}

// pendingSignal is the control value a test body panics with to
// declare itself not yet implemented; see [T.Pending].
type pendingSignal struct{}

// canceledSignal is the control value a test body panics with to
// declare an unmet precondition; see [T.Cancel].
type canceledSignal struct{ reason string }

// failNowSignal is the control value cutting a test body short after
// a fatal assertion; see [T.FailNow].
type failNowSignal struct{}
