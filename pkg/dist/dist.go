// Copyright (c) 2022 Stephan Lukits. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package dist provides a bounded worker-pool implementation of the
// engine's Distributor capability.  The engine submits each leaf's
// run and awaits the pool at every scope boundary which keeps scope
// events balanced while the tests of a scope run concurrently.
package dist

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Pool schedules submitted test runs on at most Workers concurrent
// goroutines.  The zero value is not ready to use; create instances
// with New.
type Pool struct {
	group *errgroup.Group
}

// New returns a pool running at most workers submissions
// concurrently; workers < 1 means no limit.
func New(workers int) *Pool {
	g, _ := errgroup.WithContext(context.Background())
	if workers > 0 {
		g.SetLimit(workers)
	}
	return &Pool{group: g}
}

// Submit schedules given test run; its error surfaces through Wait.
// name is carried for diagnostics of panicking runs.
func (p *Pool) Submit(name string, run func() error) {
	p.group.Go(run)
}

// Wait blocks until all submitted runs completed.
func (p *Pool) Wait() error { return p.group.Wait() }
