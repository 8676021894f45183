// Package common holds small debugging helpers shared by the storage
// packages; none of it is part of the public API.
package common

import (
	"bytes"
	"runtime"
	"strconv"
)

// GoID returns the current goroutine's id, parsed out of runtime.Stack.
// Used only in debug logging around page latches and pin-count bookkeeping,
// where knowing which goroutine touched a frame last is worth more than a
// generic log line.
func GoID() int64 {
	b := make([]byte, 64)
	b = b[:runtime.Stack(b, false)]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	i := bytes.IndexByte(b, ' ')
	if i < 0 {
		return -1
	}
	n, err := strconv.ParseInt(string(b[:i]), 10, 64)
	if err != nil {
		return -1
	}
	return n
}

// Assert panics with msg if cond is false. Reserved for structural
// invariants that should abort in debug builds, never for recoverable
// conditions like a missing key or a full buffer pool, which return
// errors instead.
func Assert(cond bool, msg string) {
	if !cond {
		panic("invariant violation: " + msg)
	}
}
