// Copyright (c) 2022 Stephan Lukits. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// recorder.go holds the message sinks an engine swaps through its
// informer/documenter slot over a suite's lifecycle: a registration
// sink buffering into the tree, a concurrent sink forwarding live
// during a run, a per-test recorder delaying delivery until the
// test's outcome is known and a zombie sink ending the lifecycle.

package spec

// sink is the narrow contract of the informer/documenter slot: it
// accepts info and markup messages raised by suite or test code.
type sink interface {
	info(message string, loc Location)
	markup(message string, loc Location)
}

// slotEntry wraps the sink currently installed in an engine's slot.
// The wrapper exists so save/restore can verify by pointer identity
// that no other goroutine swapped the slot in between.
type slotEntry struct{ s sink }

// recordedMessage is one buffered informer/documenter message kept in
// original order until the surrounding test's outcome is known.
type recordedMessage struct {
	message  string
	isMarkup bool
	location Location
}

// registrationSink buffers messages raised during construction
// outside any test as info/markup leaves into the registration tree
// so they replay at the correct position during traversal.
type registrationSink struct{ e *Engine }

func (s *registrationSink) info(message string, loc Location) {
	s.e.registerInfoLeaf(message, loc)
}

func (s *registrationSink) markup(message string, loc Location) {
	s.e.registerMarkupLeaf(message, loc)
}

// concurrentSink forwards messages live to the run's reporter,
// attributing constructing-goroutine messages to the suite scope.
// It is installed for the duration of Run, outside individual tests.
type concurrentSink struct {
	e        *Engine
	reporter Reporter
	tracker  *Tracker
}

func (s *concurrentSink) emit(kind EventKind, message string, loc Location) {
	s.reporter.Apply(Event{
		Kind:             kind,
		Ordinal:          s.tracker.Next(),
		SuiteName:        s.e.suiteName,
		Message:          message,
		Location:         loc,
		FromConstructing: s.e.constructing.is(),
	})
}

func (s *concurrentSink) info(message string, loc Location) {
	s.emit(InfoProvided, message, loc)
}

func (s *concurrentSink) markup(message string, loc Location) {
	s.emit(MarkupProvided, message, loc)
}

// messageRecorder is the per-test sink, handed to the test context
// for the duration of its run; it is never installed in the engine's
// shared informer slot, concurrently distributed tests each record
// into their own instance.  Messages raised by the constructing
// goroutine are buffered in call order and flushed only after the
// test's own outcome event, tagged with the test's final
// disposition.  Foreign-goroutine messages cannot be delayed, there
// is no single safe owner to flush them later, so they are forwarded
// immediately.
type messageRecorder struct {
	e        *Engine
	reporter Reporter
	tracker  *Tracker
	testName string
	testText string
	indent   int

	// buffered is only ever touched by the constructing goroutine.
	buffered []recordedMessage
	flushed  bool
}

func newMessageRecorder(
	e *Engine, reporter Reporter, tracker *Tracker, leaf *TestLeaf,
) *messageRecorder {
	return &messageRecorder{
		e:        e,
		reporter: reporter,
		tracker:  tracker,
		testName: leaf.TestName,
		testText: leaf.TestText,
		indent:   leaf.parent.depth() + 1,
	}
}

// record buffers given message; it must only be called by the
// constructing goroutine.
func (r *messageRecorder) record(m recordedMessage) {
	r.buffered = append(r.buffered, m)
}

func (r *messageRecorder) apply(m recordedMessage) {
	if r.e.constructing.is() && !r.flushed {
		r.record(m)
		return
	}
	kind := InfoProvided
	if m.isMarkup {
		kind = MarkupProvided
	}
	r.reporter.Apply(Event{
		Kind:             kind,
		Ordinal:          r.tracker.Next(),
		SuiteName:        r.e.suiteName,
		TestName:         r.testName,
		TestText:         r.testText,
		Message:          m.message,
		Indent:           r.indent,
		Location:         m.location,
		FromConstructing: false,
	})
}

func (r *messageRecorder) info(message string, loc Location) {
	r.apply(recordedMessage{message: message, location: loc})
}

func (r *messageRecorder) markup(message string, loc Location) {
	r.apply(recordedMessage{message: message, isMarkup: true, location: loc})
}

// fireRecorded replays every buffered message in recorded order, now
// tagging each with the test's final disposition.  It must be called
// exactly once, after the guarded test body completed.
func (r *messageRecorder) fireRecorded(wasPending, wasCanceled bool) {
	r.flushed = true
	for _, m := range r.buffered {
		kind := InfoProvided
		if m.isMarkup {
			kind = MarkupProvided
		}
		r.reporter.Apply(Event{
			Kind:             kind,
			Ordinal:          r.tracker.Next(),
			SuiteName:        r.e.suiteName,
			TestName:         r.testName,
			TestText:         r.testText,
			Message:          m.message,
			Indent:           r.indent,
			Location:         m.location,
			FromConstructing: true,
			WasPending:       wasPending,
			WasCanceled:      wasCanceled,
		})
	}
	r.buffered = nil
}

// zombieSink terminates a suite's lifecycle: any message raised after
// the run completed is a usage error.
type zombieSink struct{}

func (zombieSink) info(string, Location) { panic(ErrSinkExpired) }

func (zombieSink) markup(string, Location) { panic(ErrSinkExpired) }
