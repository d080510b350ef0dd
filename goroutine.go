// Copyright (c) 2022 Stephan Lukits. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package spec

import (
	"bytes"
	"runtime"
	"strconv"
)

// goroutineID extracts the current goroutine's id from its stack
// header ("goroutine N [running]: ...").  The runtime doesn't expose
// the id on purpose; the engine needs it solely to discriminate
// messages raised by the constructing goroutine, which may be
// buffered, from foreign-goroutine messages, which must be forwarded
// immediately.
func goroutineID() uint64 {
	buf := make([]byte, 64)
	buf = buf[:runtime.Stack(buf, false)]
	buf = bytes.TrimPrefix(buf, []byte("goroutine "))
	if i := bytes.IndexByte(buf, ' '); i >= 0 {
		buf = buf[:i]
	}
	id, err := strconv.ParseUint(string(buf), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// constructing records the identity of the goroutine which built a
// suite's engine.  It is captured once at engine construction.
type constructing struct{ id uint64 }

func captureConstructing() constructing {
	return constructing{id: goroutineID()}
}

// is reports whether the calling goroutine is the constructing one.
func (c constructing) is() bool { return c.id == goroutineID() }
