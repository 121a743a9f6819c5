package uthread

import (
	"errors"
)

// Standard errors.
var (
	// ErrTableFull is returned by Create when every thread slot is occupied.
	ErrTableFull = errors.New("uthread: thread table full")

	// ErrStackAllocation is returned by Create when a stack cannot be
	// allocated for the new thread.
	ErrStackAllocation = errors.New("uthread: stack allocation failed")
)

// Errno returns the per-thread error slot of the calling thread, set by
// operations such as SetPrio and Join on failure. It is not cleared on
// success.
func (r *Runtime) Errno() error {
	return r.cur.errno
}
