// Copyright (c) 2022 Stephan Lukits. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// tree.go holds the registration tree an engine builds at suite
// construction time and the immutable bundle snapshot it is accessed
// through.  Nodes are only ever appended, never re-parented, hence
// the tree is acyclic by construction.

package spec

import (
	"strings"
	"time"
)

// node is the closed interface over the registration tree's five
// variants: the trunk, description branches, test leaves and the two
// message leaves.  Traversal sites switch exhaustively over it.
type node interface {
	parentBranch() *branch
}

// branch is a scope which owns an ordered, insertion-ordered list of
// child nodes.  The unique root branch (the trunk) has no parent and
// no text.
type branch struct {
	parent      *branch
	text        string
	childPrefix string
	location    Location
	children    []node
}

func (b *branch) parentBranch() *branch { return b.parent }

func (b *branch) isTrunk() bool { return b.parent == nil }

// depth is the number of description branches above b; used as the
// formatter indentation hint on scope and test events.
func (b *branch) depth() int {
	d := 0
	for p := b; p != nil && !p.isTrunk(); p = p.parent {
		d++
	}
	return d
}

// namePrefix walks from the trunk down to b concatenating the branch
// texts outer to inner, each joined with a single space, appending a
// branch's child-prefix for flatter styles that don't nest.
func (b *branch) namePrefix() string {
	if b.isTrunk() {
		return ""
	}
	prefix := strings.TrimSpace(
		strings.TrimSpace(b.parent.namePrefix()) + " " +
			strings.TrimSpace(b.text))
	if b.childPrefix != "" {
		prefix = strings.TrimSpace(prefix + " " + b.childPrefix)
	}
	return prefix
}

// fullTestName joins the name prefix of the branch a test is
// registered in with the test's own text.
func fullTestName(in *branch, testText string) string {
	return strings.TrimSpace(
		in.namePrefix() + " " + strings.TrimSpace(testText))
}

// TestLeaf represents one registered test: its computed full name,
// the raw text it was registered with, its body and its registration
// source position.  RecordedDuration and recorded messages are only
// set by the path engine whose tests already ran once at discovery
// time; the run phase then replays the observed outcome.
type TestLeaf struct {
	parent   *branch
	TestName string
	TestText string
	Fn       func(*T)
	Location Location

	// RecordedDuration is valid iff HasRecordedDuration; it replaces
	// the wall-clock measurement on the completion event.
	RecordedDuration    time.Duration
	HasRecordedDuration bool

	recorded []recordedMessage
}

func (l *TestLeaf) parentBranch() *branch { return l.parent }

// infoLeaf holds an informer message raised during construction
// outside any test; it is replayed at its registration position
// during traversal.
type infoLeaf struct {
	parent   *branch
	message  string
	location Location
}

func (l *infoLeaf) parentBranch() *branch { return l.parent }

// markupLeaf is infoLeaf's documenter counterpart.
type markupLeaf struct {
	parent   *branch
	message  string
	location Location
}

func (l *markupLeaf) parentBranch() *branch { return l.parent }

// bundle is the immutable snapshot of all registration state.  It is
// replaced wholesale through a compare-and-swap on every registration
// and on the closing transition, giving optimistic-locking semantics:
// a failed swap means an unexpected concurrent writer and surfaces as
// ErrConcurrentModification, it is never retried.
type bundle struct {
	currentBranch      *branch
	testNames          []string
	tests              map[string]*TestLeaf
	tags               TagMap
	registrationClosed bool
}

func newBundle(trunk *branch) *bundle {
	return &bundle{
		currentBranch: trunk,
		tests:         map[string]*TestLeaf{},
		tags:          TagMap{},
	}
}

// shallow copies b's maps and name list so a derived snapshot never
// aliases its predecessor's containers.
func (b *bundle) shallow() *bundle {
	cp := &bundle{
		currentBranch:      b.currentBranch,
		testNames:          append([]string(nil), b.testNames...),
		tests:              make(map[string]*TestLeaf, len(b.tests)),
		tags:               make(TagMap, len(b.tags)),
		registrationClosed: b.registrationClosed,
	}
	for k, v := range b.tests {
		cp.tests[k] = v
	}
	for k, v := range b.tags {
		set := make(TagSet, len(v))
		for t := range v {
			set[t] = struct{}{}
		}
		cp.tags[k] = set
	}
	return cp
}
