// Package herr defines the closed set of error kinds shared by every core
// subsystem and a process-wide "last error" channel.
//
// Most operations here also return a normal Go error, wrapping one of the
// sentinels below, so callers that want idiomatic handling can use
// errors.Is. The Channel exists for boundary operations that report
// failure as a sentinel return value (-1 or nil) and expect the caller to
// consult a side channel for the reason, mirroring how the original
// embedded implementation surfaced errors without exceptions. The page
// pool is the only component that records into it; the address space,
// syscall, and VFS layers return wrapped errors only.
package herr

import "errors"

// Kinds of errors. The set is closed: every failure in the system maps to
// exactly one of these.
var (
	Io              = errors.New("io error")
	NotExec         = errors.New("not executable")
	Unsupported     = errors.New("unsupported")
	OutOfMemory     = errors.New("out of memory")
	BadDescriptor   = errors.New("bad descriptor")
	AccessDenied    = errors.New("access denied")
	NotFound        = errors.New("not found")
	Exists          = errors.New("exists")
	NotDirectory    = errors.New("not a directory")
	NotEmpty        = errors.New("not empty")
	InvalidArgument = errors.New("invalid argument")
	Again           = errors.New("would block")
	BusyMount       = errors.New("mount busy")
	Fault           = errors.New("fault")
)

// Channel is a process-wide record of the most recent error. Operations
// that fail by sentinel return set it before returning; callers that
// observed a sentinel may consult it to learn why.
//
// The scheduling model is single-threaded and cooperative (nothing here
// preempts a guest tick), so the channel needs no synchronization of its
// own.
type Channel struct {
	last error
}

// Set records err as the most recent failure. Passing nil clears it.
func (c *Channel) Set(err error) {
	c.last = err
}

// Last returns the most recently recorded error, or nil if none has been
// set (or it was last cleared).
func (c *Channel) Last() error {
	return c.last
}

// Clear resets the channel.
func (c *Channel) Clear() {
	c.last = nil
}
