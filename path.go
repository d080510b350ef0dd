// Copyright (c) 2022 Stephan Lukits. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// path.go holds the path engine, the specialization supporting
// styles whose test bodies run at suite construction time.  The
// suite's construction is repeated, once per discovered leaf, each
// pass aiming at a different target leaf identified by its path
// vector; the ordinary run phase then merely replays the observed
// outcomes.

package spec

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Path identifies a node's position in the registration tree as the
// sequence of child indices at each nesting level.
type Path []int

// String renders p in bracketed form, e.g. "[0 1]".
func (p Path) String() string {
	ss := make([]string, len(p))
	for i, c := range p {
		ss[i] = fmt.Sprintf("%d", c)
	}
	return "[" + strings.Join(ss, " ") + "]"
}

// Equal reports whether p and q are component-wise equal.
func (p Path) Equal(q Path) bool {
	if len(p) != len(q) {
		return false
	}
	for i := range p {
		if p[i] != q[i] {
			return false
		}
	}
	return true
}

func (p Path) key() string { return p.String() }

func (p Path) allZeros() bool {
	for _, c := range p {
		if c != 0 {
			return false
		}
	}
	return true
}

// isInTargetPath reports whether candidate lies on the route to
// target: with no target set only the all-zero path is on route
// (first pass, dive down the first child at every level); otherwise
// candidate must be a prefix of target, equal to it, or extend it
// with zero components only.
func isInTargetPath(candidate, target Path) bool {
	if target == nil {
		return candidate.allZeros()
	}
	if len(candidate) <= len(target) {
		return candidate.Equal(target[:len(candidate)])
	}
	return Path(candidate[:len(target)]).Equal(target) &&
		Path(candidate[len(target):]).allZeros()
}

// PathEngine drives the repeated construction of a suite whose tests
// execute while the suite is built.  Declarations are routed through
// HandleNestedBranch and HandleTest instead of the base registration
// API; each construction pass executes exactly the one leaf whose
// path is on route to the pass's target and notes the first path
// discovered beyond it as the next pass's target.  The pass loop
// terminates when a pass discovers no new path, meaning every leaf
// has been visited.
type PathEngine struct {
	*Engine

	// per-pass state, reset by beginPass.
	targetPath    Path
	currentPath   Path
	usedPaths     map[string]bool
	levelCounters []int
	targetReached bool
	leafExecuted  bool
	nextTarget    Path
	insideTest    bool

	// branches registered into the base engine's tree across passes,
	// keyed by path, so a pass re-entering a known branch navigates
	// instead of re-registering.
	knownBranches map[string]*branch
}

// NewPathEngine returns a path engine for given suite name.
func NewPathEngine(suiteName, styleName string) *PathEngine {
	if styleName == "" {
		styleName = "path"
	}
	return &PathEngine{
		Engine:        NewEngine(suiteName, styleName),
		knownBranches: map[string]*branch{},
	}
}

func (pe *PathEngine) beginPass(target Path) {
	pe.targetPath = target
	pe.currentPath = nil
	pe.usedPaths = map[string]bool{}
	pe.levelCounters = []int{0}
	pe.targetReached = false
	pe.leafExecuted = false
	pe.nextTarget = nil
	pe.insideTest = false
}

// nextPath assigns the next unused path at the current nesting level,
// skipping any path already used in this pass.
func (pe *PathEngine) nextPath() Path {
	level := len(pe.currentPath)
	for len(pe.levelCounters) <= level {
		pe.levelCounters = append(pe.levelCounters, 0)
	}
	for {
		candidate := append(append(Path{}, pe.currentPath...),
			pe.levelCounters[level])
		pe.levelCounters[level]++
		if pe.usedPaths[candidate.key()] {
			continue
		}
		pe.usedPaths[candidate.key()] = true
		return candidate
	}
}

// noteSkipped records a path whose node this pass did not enter or
// execute.  The first such path after the target was reached becomes
// the next pass's target.  On the very first pass, before any leaf
// executed, a skipped path likewise becomes the next target: that is
// the empty-leading-branch case where the all-zero route holds no
// leaf at all.
func (pe *PathEngine) noteSkipped(p Path) {
	if pe.nextTarget != nil {
		return
	}
	if pe.targetReached ||
		(pe.targetPath == nil && !pe.leafExecuted) {
		pe.nextTarget = append(Path{}, p...)
	}
}

// HandleNestedBranch registers a description scope during a
// construction pass.  Its body only executes when the branch lies on
// the route to the pass's target; a branch discovered beyond the
// target is noted as the next target instead.
func (pe *PathEngine) HandleNestedBranch(
	text string, body func(),
) error {
	if pe.insideTest {
		return errors.WithMessagef(ErrRegistrationClosed,
			"%s suite %q: a scope may not be declared inside a test",
			pe.styleName, pe.suiteName)
	}
	path := pe.nextPath()
	if !isInTargetPath(path, pe.targetPath) {
		pe.noteSkipped(path)
		return nil
	}
	if br, known := pe.knownBranches[path.key()]; known {
		return pe.descendInto(br, path, body)
	}
	return pe.registerPathBranch(text, path, body)
}

// registerPathBranch records a branch seen for the first time across
// all passes and runs its body with the branch current.
func (pe *PathEngine) registerPathBranch(
	text string, path Path, body func(),
) error {
	return pe.RegisterNestedBranch(text, "", func() {
		pe.knownBranches[path.key()] = pe.bundle.Load().currentBranch
		pe.runBranchBody(path, body)
	})
}

// descendInto makes a branch registered in an earlier pass current
// again and runs the body against it.
func (pe *PathEngine) descendInto(
	br *branch, path Path, body func(),
) (err error) {
	b := pe.bundle.Load()
	if b.registrationClosed {
		return pe.closedErr()
	}
	next := b.shallow()
	next.currentBranch = br
	if err := pe.swapBundle(b, next); err != nil {
		return err
	}
	defer func() {
		after := pe.bundle.Load()
		restored := after.shallow()
		restored.currentBranch = br.parent
		if cerr := pe.swapBundle(after, restored); cerr != nil &&
			err == nil {
			err = cerr
		}
	}()
	pe.runBranchBody(path, body)
	return nil
}

func (pe *PathEngine) runBranchBody(path Path, body func()) {
	prior := pe.currentPath
	pe.currentPath = path
	if path.Equal(pe.targetPath) {
		pe.targetReached = true
	}
	defer func() { pe.currentPath = prior }()
	body()
}

// HandleTest registers a test during a construction pass.  The one
// test whose path is on route to the target executes its body right
// now; its observed outcome, duration and buffered messages are
// registered as a replay leaf which the ordinary run phase fires
// without re-executing the body.
func (pe *PathEngine) HandleTest(
	text string, fn func(*T), tags ...string,
) error {
	if pe.insideTest {
		return errors.WithMessagef(ErrRegistrationClosed,
			"%s suite %q: a test may not be declared inside a test",
			pe.styleName, pe.suiteName)
	}
	path := pe.nextPath()
	if pe.leafExecuted || !isInTargetPath(path, pe.targetPath) {
		pe.noteSkipped(path)
		return nil
	}
	pe.leafExecuted = true
	pe.targetReached = true

	outcome, duration, recorded := pe.executeNow(fn)
	_, err := pe.registerTestLeaf(testRegistration{
		text:                text,
		fn:                  replayOutcome(outcome),
		tags:                tags,
		location:            callerLocation(1),
		recordedDuration:    duration,
		hasRecordedDuration: true,
		recordedMessages:    recorded,
	})
	return err
}

// executeNow runs a test body at construction time, buffering its
// messages and classifying its outcome like the run phase would.
func (pe *PathEngine) executeNow(
	fn func(*T),
) (oc Outcome, d time.Duration, recorded []recordedMessage) {
	pe.insideTest = true
	defer func() { pe.insideTest = false }()

	// messages raised now are buffered locally; the replay leaf
	// flushes them once the real run knows the outcome ordering.
	buf := &bufferSink{}
	leaf := &TestLeaf{parent: pe.bundle.Load().currentBranch}
	t := newT(pe.Engine, leaf, ConfigMap{}, buf)
	start := time.Now()
	oc = classifyInvocation(leaf, t, func(_ *TestLeaf, t *T) { fn(t) })
	return oc, time.Since(start), buf.buffered
}

// bufferSink buffers construction-time test messages for later
// replay.
type bufferSink struct{ buffered []recordedMessage }

func (s *bufferSink) info(message string, loc Location) {
	s.buffered = append(s.buffered,
		recordedMessage{message: message, location: loc})
}

func (s *bufferSink) markup(message string, loc Location) {
	s.buffered = append(s.buffered,
		recordedMessage{message: message, isMarkup: true, location: loc})
}

// replayOutcome converts an observed outcome back into the behavior
// the run phase expects from a test body.
func replayOutcome(oc Outcome) func(*T) {
	return func(t *T) {
		switch oc.Kind {
		case OutcomePending:
			t.Pending()
		case OutcomeCanceled:
			reason := ""
			if oc.Err != nil {
				reason = oc.Err.Error()
			}
			t.Cancel(reason)
		case OutcomeFailed:
			if oc.Err != nil {
				t.Error(oc.Err.Error())
			} else {
				t.Error("test failed")
			}
		}
	}
}

// RunPasses repeatedly invokes construct, once per discovered leaf,
// passing the pass's explicit target path; construct must rebuild
// the suite from scratch routing every declaration through
// HandleNestedBranch and HandleTest.  The loop terminates when a
// pass discovers no path beyond its target.
func (pe *PathEngine) RunPasses(construct func(target Path)) error {
	var target Path
	for {
		pe.beginPass(target)
		construct(target)
		if pe.nextTarget == nil {
			return nil
		}
		target = pe.nextTarget
	}
}

// TestPath returns the path vector of given registered test's leaf
// position; ok is false for unknown names.
func (pe *PathEngine) TestPath(testName string) (Path, bool) {
	leaf, ok := pe.bundle.Load().tests[testName]
	if !ok {
		return nil, false
	}
	return leafPath(leaf), true
}

// leafPath recomputes a leaf's path from its position in the tree.
func leafPath(leaf *TestLeaf) Path {
	var path Path
	var n node = leaf
	for br := n.parentBranch(); br != nil; br = n.parentBranch() {
		for i, child := range br.children {
			if child == n {
				path = append(Path{i}, path...)
				break
			}
		}
		n = br
	}
	return path
}
