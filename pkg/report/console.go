// Copyright (c) 2022 Stephan Lukits. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package report provides reporter implementations consuming the
// engine's event stream: a styled console reporter and a thread-save
// recorder for tests.
package report

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"

	spec "github.com/epishkin/scalatest-google-code-sub009"
)

var (
	scopeStyle   = lipgloss.NewStyle().Bold(true)
	passStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	pendStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	cancelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("5"))
	ignoreStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	messageStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	timingStyle  = lipgloss.NewStyle().Faint(true)
)

// Console writes a styled, indented rendition of the event stream to
// Writer.  A Console instance must not be copied after its first use;
// its Report method may be called concurrently.
type Console struct {
	mutex sync.Mutex

	// Writer receives the rendered events; defaults to io.Discard if
	// unset.
	Writer io.Writer

	// Durations renders a test's duration after its outcome line.
	Durations bool

	// Trace logs every received event through given logger which is
	// handy to debug suite runs.
	Trace *log.Logger
}

// NewConsole returns a console reporter writing to w.
func NewConsole(w io.Writer) *Console { return &Console{Writer: w} }

// Apply implements spec.Reporter.
func (c *Console) Apply(e spec.Event) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.Trace != nil {
		c.Trace.Debug("event",
			"kind", e.Kind, "ordinal", e.Ordinal, "test", e.TestName)
	}
	line := c.render(e)
	if line == "" {
		return
	}
	w := c.Writer
	if w == nil {
		w = io.Discard
	}
	fmt.Fprintln(w, line)
}

func (c *Console) render(e spec.Event) string {
	pad := strings.Repeat("  ", e.Indent)
	switch e.Kind {
	case spec.ScopeOpened:
		return pad + scopeStyle.Render(e.Message)
	case spec.ScopeClosed, spec.TestStarting:
		return ""
	case spec.TestSucceeded:
		return pad + passStyle.Render("✓ "+e.TestText) +
			c.timing(e.Duration)
	case spec.TestFailed:
		s := pad + failStyle.Render("✗ "+e.TestText) +
			c.timing(e.Duration)
		if e.Err != nil {
			s += "\n" + pad + "  " + failStyle.Render(e.Err.Error())
		}
		return s
	case spec.TestPending:
		return pad + pendStyle.Render("- "+e.TestText+" (pending)")
	case spec.TestCanceled:
		s := pad + cancelStyle.Render("- "+e.TestText+" (canceled)")
		if e.Err != nil {
			s += "\n" + pad + "  " + cancelStyle.Render(e.Err.Error())
		}
		return s
	case spec.TestIgnored:
		return pad + ignoreStyle.Render("- "+e.TestText+" (ignored)")
	case spec.InfoProvided, spec.MarkupProvided:
		return pad + "  " + messageStyle.Render("+ "+e.Message)
	}
	return ""
}

func (c *Console) timing(d time.Duration) string {
	if !c.Durations {
		return ""
	}
	return " " + timingStyle.Render(d.Round(time.Microsecond).String())
}
