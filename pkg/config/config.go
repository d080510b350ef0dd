// Copyright (c) 2022 Stephan Lukits. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config loads run configuration for spec suites from TOML.
// A configuration names the tag- and glob-selection of the run, the
// distributor's parallelism and free-form key-value pairs handed to
// the tests through the run's config map.
package config

import (
	"os"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	spec "github.com/epishkin/scalatest-google-code-sub009"
	"github.com/epishkin/scalatest-google-code-sub009/pkg/dist"
	"github.com/epishkin/scalatest-google-code-sub009/pkg/filter"
)

// RunConfig is the TOML-mapped run configuration:
//
//	include-tags = ["fast"]
//	exclude-tags = ["wip"]
//	name-globs   = ["stack *"]
//	parallel     = 4
//	verbose      = true
//
//	[values]
//	db = "postgres://localhost/test"
type RunConfig struct {
	IncludeTags []string `toml:"include-tags"`
	ExcludeTags []string `toml:"exclude-tags"`
	NameGlobs   []string `toml:"name-globs"`

	// Parallel is the distributor's worker count; zero or one means
	// sequential execution.
	Parallel int `toml:"parallel"`

	Verbose bool `toml:"verbose"`

	// Values is handed verbatim to the tests as the run's config
	// map.
	Values map[string]interface{} `toml:"values"`
}

// Load decodes a run configuration from given TOML source.
func Load(source string) (*RunConfig, error) {
	c := &RunConfig{}
	if _, err := toml.Decode(source, c); err != nil {
		return nil, errors.WithMessage(err, "config: decoding")
	}
	return c, nil
}

// LoadFile decodes a run configuration from given TOML file.
func LoadFile(path string) (*RunConfig, error) {
	bb, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithMessagef(err, "config: reading %q", path)
	}
	return Load(string(bb))
}

// Filter composes the configuration's tag- and glob-selection into
// one engine filter.
func (c *RunConfig) Filter() spec.Filter {
	ff := []spec.Filter{filter.Tags{
		Include: c.IncludeTags, Exclude: c.ExcludeTags,
	}}
	if len(c.NameGlobs) > 0 {
		ff = append(ff, filter.Globs{Patterns: c.NameGlobs})
	}
	return filter.And(ff...)
}

// Distributor returns a worker pool sized to the configuration's
// parallelism; nil for sequential runs, which is what the engine
// expects in that case.
func (c *RunConfig) Distributor() spec.Distributor {
	if c.Parallel < 2 {
		return nil
	}
	return dist.New(c.Parallel)
}

// ConfigMap returns the free-form values as the engine's config-map
// type; never nil.
func (c *RunConfig) ConfigMap() spec.ConfigMap {
	m := spec.ConfigMap{}
	for k, v := range c.Values {
		m[k] = v
	}
	return m
}
