// Copyright (c) 2022 Stephan Lukits. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package spec implements the registration and execution engine
// underlying spec-style test suites: behavior-driven declarations of
// nested scopes and tests which are recorded at suite construction
// time and replayed later as an ordered stream of scope, outcome and
// message events.
//
// The central type is [Engine].  During construction DSL front-ends
// register tests and nested scopes into an append-only tree through
// [Engine.RegisterTest], [Engine.RegisterIgnoredTest] and
// [Engine.RegisterNestedBranch]; the first call of [Engine.Run]
// closes registration permanently.  The run phase traverses the
// recorded tree depth-first in registration order, classifying every
// test into exactly one of succeeded, failed, pending, canceled or
// ignored and guaranteeing paired scope-opened/scope-closed events
// around every scope, also under failure.
//
// Info and markup messages raised during a test on the goroutine
// which constructed the suite are buffered and flushed only after
// the test's own outcome event, tagged with the test's final
// disposition; messages from other goroutines are forwarded to the
// reporter immediately since there is no safe single owner to flush
// them later.
//
// Two suite styles ship with the package: [FunSpec], the
// function-based describe/it style running test bodies during the
// run phase, and [PathSpec], whose test bodies execute at
// construction time over repeated construction passes driven by
// [PathEngine] so every test observes a fresh evaluation of its
// enclosing scope bodies.  Method-based suites embedding [Suite]
// register their test-methods in source declaration order through
// [RegisterSuite].
//
// The engine consumes its collaborators behind narrow interfaces:
// [Reporter] and [Tracker] for the event stream, [Filter] for
// run/ignore/exclude policy, [Stopper] for cancellation between
// tests and [Distributor] for delegated scheduling.  Reference
// implementations live in pkg/filter, pkg/report, pkg/dist and
// pkg/config.
package spec
