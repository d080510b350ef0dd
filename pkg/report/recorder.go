// Copyright (c) 2022 Stephan Lukits. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package report

import (
	"sync"

	spec "github.com/epishkin/scalatest-google-code-sub009"
)

// Recorder captures the event stream concurrency save for later
// inspection.  The zero value is ready to use; a Recorder must not be
// copied after its first use.
type Recorder struct {
	mutex  sync.Mutex
	events []spec.Event
}

// Apply implements spec.Reporter.
func (r *Recorder) Apply(e spec.Event) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events in report-order.
func (r *Recorder) Events() []spec.Event {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	ee := make([]spec.Event, len(r.events))
	copy(ee, r.events)
	return ee
}

// Kinds returns the recorded event kinds in report-order.
func (r *Recorder) Kinds() []spec.EventKind {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	kk := make([]spec.EventKind, 0, len(r.events))
	for _, e := range r.events {
		kk = append(kk, e.Kind)
	}
	return kk
}

// OfKind returns the recorded events of given kind in report-order.
func (r *Recorder) OfKind(k spec.EventKind) []spec.Event {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	ee := []spec.Event{}
	for _, e := range r.events {
		if e.Kind != k {
			continue
		}
		ee = append(ee, e)
	}
	return ee
}

// OfTest returns the recorded events of the test with given full name
// in report-order.
func (r *Recorder) OfTest(name string) []spec.Event {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	ee := []spec.Event{}
	for _, e := range r.events {
		if e.TestName != name {
			continue
		}
		ee = append(ee, e)
	}
	return ee
}

// Outcome returns the completion event of the test with given full
// name; ok is false if no completion event was recorded for it.
func (r *Recorder) Outcome(name string) (e spec.Event, ok bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	for _, evt := range r.events {
		if evt.TestName != name {
			continue
		}
		switch evt.Kind {
		case spec.TestSucceeded, spec.TestFailed, spec.TestPending,
			spec.TestCanceled, spec.TestIgnored:
			return evt, true
		}
	}
	return spec.Event{}, false
}

// Reset drops all recorded events.
func (r *Recorder) Reset() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.events = nil
}
