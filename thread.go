package uthread

import (
	"runtime"

	"github.com/joeycumines/go-uthread/internal/mctx"
)

// ID identifies a thread. It doubles as the thread's index into the thread
// table. InvalidID is returned by Create on failure and never identifies a
// live thread.
type ID int

// InvalidID is the sentinel for "no thread". Slot 0 belongs to the first
// thread and is never free after New, but the sentinel is deliberately
// distinct from any valid slot index.
const InvalidID ID = -1

// Func is the entry point of a created thread. If it returns, the thread
// exits with a nil status, as if it had called Exit(nil).
type Func func(arg1 int64, arg2 any)

// thread is one slot of the thread table. A slot with state StateNone is
// free; everything except id is zero in that case.
type thread struct {
	id    ID
	state ThreadState
	prio  int

	ctx   mctx.Context
	stack []byte

	// link places the thread on at most one queue at a time: a run queue
	// when runnable, a primitive's waiter queue when waiting, the reap queue
	// when zombie.
	link queueLink

	detachState DetachState
	hasExited   bool
	exitValue   any

	// waiter is the unique thread blocked in Join on this one, if any.
	waiter *thread

	errno error

	// noPreemptCount suppresses preemption while positive. Reserved hook:
	// the core is cooperative and never preempts on its own.
	noPreemptCount int
}

// alloc locates a free slot, scanning from index 1 (slot 0 is reserved for
// the first thread). Returns InvalidID when the table is full.
func (r *Runtime) alloc() ID {
	for i := 1; i < len(r.threads); i++ {
		if r.threads[i].state == StateNone {
			return ID(i)
		}
	}
	return InvalidID
}

// destroy reclaims a terminated thread: the parked carrier is released, the
// stack is freed exactly once, and the slot is reset to free. The slot keeps
// its id, preserving the id-equals-index invariant.
func (r *Runtime) destroy(t *thread) {
	if t.state != StateZombie {
		panic(`uthread: destroy of a thread that is not a zombie`)
	}
	r.log.Trace().
		Int(`thread`, int(t.id)).
		Log(`destroying thread`)
	mctx.Release(&t.ctx)
	r.freeStack(t.stack)
	*t = thread{id: t.id}
}

// allocStack returns a fresh stack region, or nil on failure.
func (r *Runtime) allocStack() []byte {
	if r.testHooks != nil && r.testHooks.AllocStack != nil {
		return r.testHooks.AllocStack()
	}
	return make([]byte, r.stackSize)
}

// freeStack releases a stack region allocated by allocStack. The region must
// not be referenced afterwards.
func (r *Runtime) freeStack(stack []byte) {
	_ = stack
}

// runtimeTestHooks provides injection points for deterministic tests.
type runtimeTestHooks struct {
	// AllocStack overrides stack allocation; returning nil simulates
	// allocation failure.
	AllocStack func() []byte

	// PreSwitch is called after a victor is selected, before the context
	// swap.
	PreSwitch func(prev, victor ID)
}

// getGoroutineID returns the current goroutine's ID.
func getGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}

// checkCurrent panics if the calling goroutine is not the carrier of the
// thread currently on CPU. Every runtime entry point must be invoked from
// the running thread; a call from a foreign goroutine breaks the cooperative
// discipline and would silently corrupt scheduler state.
func (r *Runtime) checkCurrent(op string) {
	if getGoroutineID() != r.curGID.Load() {
		panic(`uthread: ` + op + ` called from a goroutine that is not the current thread`)
	}
}
