// Copyright (c) 2022 Stephan Lukits. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package filter provides reference implementations of the engine's
// Filter capability: tag-based inclusion/exclusion and glob-based
// test-name selection, composable into one policy.
package filter

import (
	"github.com/bmatcuk/doublestar/v4"

	spec "github.com/epishkin/scalatest-google-code-sub009"
)

// Tags filters on a test's tag set: a test is excluded if it carries
// any Exclude-tag or if Include is non-empty and the test carries no
// Include-tag; a non-excluded test is ignored if it carries the
// reserved ignore-tag.
type Tags struct {
	Include []string
	Exclude []string
}

// Apply implements spec.Filter.
func (f Tags) Apply(
	name string, tags spec.TagMap,
) (excluded, ignored bool) {
	set := tags[name]
	for _, tag := range f.Exclude {
		if _, ok := set[tag]; ok {
			return true, false
		}
	}
	if len(f.Include) > 0 {
		found := false
		for _, tag := range f.Include {
			if _, ok := set[tag]; ok {
				found = true
				break
			}
		}
		if !found {
			return true, false
		}
	}
	_, ignore := set[spec.IgnoreTag]
	return false, ignore
}

// Globs filters on a test's full name: a test is excluded unless its
// name matches at least one of the doublestar patterns.  An empty
// pattern list matches everything.  The ignore-tag is honored like
// in [Tags].
type Globs struct {
	Patterns []string
}

// Apply implements spec.Filter.  Malformed patterns match nothing.
func (f Globs) Apply(
	name string, tags spec.TagMap,
) (excluded, ignored bool) {
	if len(f.Patterns) > 0 {
		found := false
		for _, p := range f.Patterns {
			if ok, err := doublestar.Match(p, name); err == nil && ok {
				found = true
				break
			}
		}
		if !found {
			return true, false
		}
	}
	_, ignore := tags[name][spec.IgnoreTag]
	return false, ignore
}

// And combines given filters: a test is excluded if any filter
// excludes it and ignored if any filter ignores it.
func And(ff ...spec.Filter) spec.Filter {
	return spec.FilterFunc(func(
		name string, tags spec.TagMap,
	) (excluded, ignored bool) {
		for _, f := range ff {
			ex, ig := f.Apply(name, tags)
			excluded = excluded || ex
			ignored = ignored || ig
		}
		return excluded, ignored
	})
}
